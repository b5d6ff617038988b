package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/julianstephens/habitual/internal/analytics"
	"github.com/julianstephens/habitual/internal/backup"
	"github.com/julianstephens/habitual/internal/config"
	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/habits"
	"github.com/julianstephens/habitual/internal/keyring"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/notify"
	"github.com/julianstephens/habitual/internal/queue"
	"github.com/julianstephens/habitual/internal/storage"
	"github.com/julianstephens/habitual/internal/sync"
	"github.com/julianstephens/habitual/internal/sync/postgres"
	"github.com/julianstephens/habitual/internal/utils"
)

type Context struct {
	Config     *config.Config
	ConfigPath string
	DataDir    string
	Location   *time.Location

	Store     *storage.SnapshotStore
	Queue     *queue.Queue
	Backups   *backup.Rotator
	Analytics *analytics.Engine
	Habits    *habits.Service

	// Now is the clock, time.Now when nil
	Now func() time.Time
}

// NewContext wires the application from cfg. Nothing is read from disk
// until the first command touches the store.
func NewContext(cfg *config.Config, configPath string) (*Context, error) {
	dataDir, err := cfg.DataPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var backend storage.Backend
	switch cfg.Storage.Backend {
	case config.StorageSQLite:
		backend = storage.NewSQLiteBackend(filepath.Join(dataDir, constants.SnapshotDBFileName))
	default:
		backend = storage.NewFileBackend(filepath.Join(dataDir, constants.SnapshotFileName))
	}

	c := &Context{
		Config:     cfg,
		ConfigPath: configPath,
		DataDir:    dataDir,
		Location:   loc,
	}

	// Every component reads the clock through c so tests can pin it
	c.Store = storage.NewSnapshotStore(backend, storage.Options{
		UserID:       cfg.UserID,
		WriteTimeout: cfg.Storage.WriteTimeout.Duration,
		Now:          c.now,
	})
	c.Backups = backup.NewRotator(filepath.Join(dataDir, constants.BackupDirName), c.Store, cfg.Backup.Retention)
	c.Store.OnWrite(c.Backups.Hook())

	c.Queue = queue.New(c.Store)
	c.Analytics = analytics.NewEngine(analytics.Options{
		StreakTTL: cfg.Analytics.StreakTTL.Duration,
		StatsTTL:  cfg.Analytics.StatsTTL.Duration,
		Location:  loc,
		Now:       c.now,
	})
	c.Habits = habits.NewService(c.Store, c.Queue, c.Analytics, c.Backups, habits.Options{
		UserID:   cfg.UserID,
		Location: loc,
		Now:      c.now,
		Notifier: newNotifier(cfg, dataDir),
	})
	return c, nil
}

func newNotifier(cfg *config.Config, dataDir string) notify.Notifier {
	if cfg.Notify.Backend != config.NotifyTray {
		return notify.LogNotifier{}
	}
	lockfile := cfg.Notify.TrayLockfile
	if lockfile == "" {
		lockfile = filepath.Join(dataDir, constants.TrayLockfileName)
	}
	return notify.Multi{notify.LogNotifier{}, notify.NewTrayNotifier(lockfile)}
}

// Close waits for in-flight backups and releases the store.
func (c *Context) Close() error {
	c.Backups.Wait()
	return c.Store.Close()
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// ResolveDate accepts YYYY-MM-DD or a phrase such as "yesterday".
func (c *Context) ResolveDate(input string) (string, error) {
	return utils.ResolveDate(input, c.now(), c.Location)
}

// Syncer connects to the configured remote. The caller closes the returned
// closer when done.
func (c *Context) Syncer(ctx context.Context) (*sync.Syncer, func() error, error) {
	if c.Config.Sync.Backend != config.SyncPostgres {
		return nil, nil, fmt.Errorf("sync is disabled; set sync.backend = %q in %s", config.SyncPostgres, c.ConfigPath)
	}

	connStr, err := keyring.SyncConnection().Resolve(c.Config.Sync.ConnectionEnv)
	if err != nil {
		return nil, nil, fmt.Errorf("no sync connection string: set %s or run 'habitual sync set-connection': %w", c.Config.Sync.ConnectionEnv, err)
	}
	if err := postgres.ValidateConnString(connStr); err != nil {
		return nil, nil, err
	}

	remote := postgres.New(connStr)
	if err := remote.Open(ctx); err != nil {
		return nil, nil, err
	}
	logger.Debug("Connected to sync remote", "remote", remote.Name())
	return sync.NewSyncer(remote, c.Queue), remote.Close, nil
}
