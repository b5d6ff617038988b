package system

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/config"
	"github.com/julianstephens/habitual/internal/keyring"
	"github.com/julianstephens/habitual/internal/sync/postgres"
)

type SyncCmd struct {
	Push          SyncPushCmd          `cmd:"" help:"Send queued changes to the remote." default:"1"`
	SetConnection SyncSetConnectionCmd `cmd:"" name:"set-connection" help:"Store the PostgreSQL connection string in the OS keyring."`
	Status        SyncStatusCmd        `cmd:"" help:"Show sync configuration."`
	Forget        SyncForgetCmd        `cmd:"" help:"Remove the stored connection string."`
}

type SyncPushCmd struct{}

func (c *SyncPushCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	syncer, closeRemote, err := ctx.Syncer(bg)
	if err != nil {
		return err
	}
	defer closeRemote()

	res, err := syncer.Push(bg)
	if res.Applied > 0 {
		fmt.Printf("✓ Pushed %d changes\n", res.Applied)
	}
	if err != nil {
		fmt.Printf("%d changes still queued\n", res.Remaining)
		return err
	}
	if res.Applied == 0 {
		fmt.Println("Nothing to sync.")
	}
	return nil
}

// SyncSetConnectionCmd stores the connection string in the OS keyring
type SyncSetConnectionCmd struct {
	ConnectionString string `arg:"" help:"PostgreSQL connection string without a password."`
}

func (cmd *SyncSetConnectionCmd) Run(ctx *cli.Context) error {
	if !strings.HasPrefix(cmd.ConnectionString, "postgres://") &&
		!strings.HasPrefix(cmd.ConnectionString, "postgresql://") &&
		!strings.Contains(cmd.ConnectionString, "host=") {
		return errors.New("connection string must be a valid PostgreSQL connection string")
	}

	if err := postgres.ValidateConnString(cmd.ConnectionString); err != nil {
		if errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return fmt.Errorf("%w: keep the password in ~/.pgpass or PGPASSWORD", err)
		}
		return fmt.Errorf("invalid connection string: %w", err)
	}

	if err := keyring.SyncConnection().Set(cmd.ConnectionString); err != nil {
		return err
	}

	fmt.Println("✓ Connection string stored in OS keyring")
	if ctx.Config != nil && ctx.Config.Sync.Backend != config.SyncPostgres {
		fmt.Println("  Set sync.backend = \"postgres\" in your config to enable sync")
	}
	return nil
}

type SyncStatusCmd struct{}

func (cmd *SyncStatusCmd) Run(ctx *cli.Context) error {
	fmt.Printf("Backend: %s\n", ctx.Config.Sync.Backend)

	n, err := ctx.Queue.Len(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Queued changes: %d\n", n)

	connStr, err := keyring.SyncConnection().Resolve(ctx.Config.Sync.ConnectionEnv)
	switch {
	case err == nil:
		fmt.Printf("Connection: %s\n", maskPassword(connStr))
	case errors.Is(err, keyring.ErrNotFound):
		fmt.Printf("Connection: not set (use $%s or 'sync set-connection')\n", ctx.Config.Sync.ConnectionEnv)
	default:
		fmt.Printf("Connection: unavailable (%v)\n", err)
	}
	return nil
}

type SyncForgetCmd struct{}

func (cmd *SyncForgetCmd) Run(ctx *cli.Context) error {
	if err := keyring.SyncConnection().Delete(); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no connection string found in keyring")
		}
		return err
	}
	fmt.Println("✓ Connection string deleted from OS keyring")
	return nil
}

// maskPassword masks passwords in connection strings for display
func maskPassword(connStr string) string {
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		if idx := strings.Index(connStr, "://"); idx != -1 {
			remaining := connStr[idx+3:]
			if atIdx := strings.LastIndex(remaining, "@"); atIdx != -1 {
				userInfo := remaining[:atIdx]
				if colonIdx := strings.Index(userInfo, ":"); colonIdx != -1 {
					return connStr[:idx+3] + userInfo[:colonIdx] + ":****" + connStr[idx+3+atIdx:]
				}
			}
		}
	}

	if strings.Contains(connStr, "password=") {
		parts := strings.Fields(connStr)
		for i, part := range parts {
			if strings.HasPrefix(part, "password=") {
				parts[i] = "password=****"
			}
		}
		return strings.Join(parts, " ")
	}

	return connStr
}
