package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/migration"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/migrations"
)

var (
	ErrInvalidConnectionString = errors.New("invalid PostgreSQL connection string")
	ErrEmbeddedCredentials     = errors.New("connection string must not contain a password")
	ErrUnknownTable            = errors.New("unknown sync table")
	ErrNotOpen                 = errors.New("remote is not open")
)

// Remote mirrors queued operations into PostgreSQL. Each record is stored
// whole as JSONB; the newest operation timestamp wins.
type Remote struct {
	connStr string
	db      *sql.DB
}

func New(connStr string) *Remote {
	return &Remote{connStr: withSearchPath(connStr)}
}

func (r *Remote) Name() string {
	return "postgresql"
}

// withSearchPath pins the session to the application schema unless the
// connection string already chooses one.
func withSearchPath(connStr string) string {
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		u, err := url.Parse(connStr)
		if err != nil {
			return connStr
		}
		q := u.Query()
		if q.Get("search_path") == "" {
			q.Set("search_path", constants.AppName)
			u.RawQuery = q.Encode()
		}
		return u.String()
	}

	for _, part := range strings.Fields(connStr) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 && strings.EqualFold(kv[0], "search_path") {
			return connStr
		}
	}
	return strings.TrimSpace(connStr) + " search_path=" + constants.AppName
}

func hasSSLMode(connStr string) bool {
	if u, err := url.Parse(connStr); err == nil && u.Scheme != "" {
		for key := range u.Query() {
			if strings.EqualFold(key, "sslmode") {
				return true
			}
		}
	}
	for _, part := range strings.Fields(connStr) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 && strings.EqualFold(kv[0], "sslmode") {
			return true
		}
	}
	return false
}

// ValidateConnString checks that connStr parses as a PostgreSQL URI or DSN
// and carries no password. Passwords belong in ~/.pgpass or PGPASSWORD.
func ValidateConnString(connStr string) error {
	if strings.TrimSpace(connStr) == "" {
		return fmt.Errorf("%w: connection string cannot be empty", ErrInvalidConnectionString)
	}
	if _, err := pq.NewConnector(connStr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConnectionString, err)
	}

	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		u, err := url.Parse(connStr)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConnectionString, err)
		}
		if _, isSet := u.User.Password(); isSet {
			return ErrEmbeddedCredentials
		}
		if u.Host == "" && u.User == nil && (u.Path == "" || u.Path == "/") {
			return fmt.Errorf("%w: connection URL is incomplete", ErrInvalidConnectionString)
		}
		return nil
	}

	for _, pair := range strings.Fields(connStr) {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 && strings.EqualFold(strings.TrimSpace(kv[0]), "password") {
			return ErrEmbeddedCredentials
		}
	}
	return nil
}

// Open connects, creates the schema and applies migrations.
func (r *Remote) Open(ctx context.Context) error {
	if r.db != nil {
		return nil
	}

	db, err := sql.Open("postgres", r.connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "SSL is not enabled on the server") && !hasSSLMode(r.connStr) {
			return fmt.Errorf("failed to connect to database: %w (hint: try adding ?sslmode=disable to your connection string)", err)
		}
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(constants.AppName)); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	subFS, err := fs.Sub(migrations.FS, "postgres")
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to access postgres migrations: %w", err)
	}
	if _, err := migration.NewRunner(db, subFS).Apply(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.db = db
	return nil
}

func (r *Remote) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// record is the part of every payload the tables index on
type record struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	HabitID string `json:"habit_id"`
}

// Apply upserts or deletes the record an operation describes.
func (r *Remote) Apply(ctx context.Context, op models.PendingOperation) error {
	if r.db == nil {
		return ErrNotOpen
	}

	var rec record
	if err := json.Unmarshal(op.Data, &rec); err != nil {
		return fmt.Errorf("invalid payload for operation %s: %w", op.ID, err)
	}
	if rec.ID == "" {
		return fmt.Errorf("payload for operation %s has no id", op.ID)
	}

	stmts, err := statementsFor(op, rec)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("failed to apply %s to %s: %w", op.Type, op.Table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	logger.Debug("Applied remote operation", "op", op.ID, "type", op.Type, "table", op.Table, "id", rec.ID)
	return nil
}

type statement struct {
	query string
	args  []any
}

func statementsFor(op models.PendingOperation, rec record) ([]statement, error) {
	switch op.Table {
	case models.TableHabits, models.TableCategories, models.TableHabitEntries:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, op.Table)
	}
	table := pq.QuoteIdentifier(op.Table)

	switch op.Type {
	case models.OperationDelete:
		stmts := []statement{{query: "DELETE FROM " + table + " WHERE id = $1", args: []any{rec.ID}}}
		// The remote cascades a habit's entries itself
		if op.Table == models.TableHabits {
			stmts = append(stmts, statement{query: "DELETE FROM habit_entries WHERE habit_id = $1", args: []any{rec.ID}})
		}
		return stmts, nil

	case models.OperationCreate, models.OperationUpdate:
		if op.Table == models.TableHabitEntries {
			return []statement{{
				query: `INSERT INTO habit_entries (id, user_id, habit_id, data, updated_at) VALUES ($1, $2, $3, $4, $5)
					ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, habit_id = EXCLUDED.habit_id,
						data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
					WHERE habit_entries.updated_at <= EXCLUDED.updated_at`,
				args: []any{rec.ID, rec.UserID, rec.HabitID, string(op.Data), op.Timestamp},
			}}, nil
		}
		return []statement{{
			query: "INSERT INTO " + table + ` (id, user_id, data, updated_at) VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
				WHERE ` + table + `.updated_at <= EXCLUDED.updated_at`,
			args: []any{rec.ID, rec.UserID, string(op.Data), op.Timestamp},
		}}, nil
	}
	return nil, fmt.Errorf("unknown operation type %q", op.Type)
}
