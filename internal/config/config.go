package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/utils"
)

// Storage backends
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Sync backends
const (
	SyncNone     = "none"
	SyncPostgres = "postgres"
)

// Notifier backends
const (
	NotifyLog  = "log"
	NotifyTray = "tray"
)

// Duration is a time.Duration written as a string such as "5m".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config is the habitual configuration file.
type Config struct {
	DataDir   string          `toml:"data_dir"`
	UserID    string          `toml:"user_id"`
	Timezone  string          `toml:"timezone"`
	Debug     bool            `toml:"debug"`
	Storage   StorageConfig   `toml:"storage"`
	Backup    BackupConfig    `toml:"backup"`
	Analytics AnalyticsConfig `toml:"analytics"`
	Sync      SyncConfig      `toml:"sync"`
	Notify    NotifyConfig    `toml:"notify"`
}

// StorageConfig selects where the snapshot lives.
type StorageConfig struct {
	Backend      string   `toml:"backend"` // "file" (default) or "sqlite"
	WriteTimeout Duration `toml:"write_timeout"`
}

type BackupConfig struct {
	Retention int `toml:"retention"`
}

type AnalyticsConfig struct {
	StreakTTL Duration `toml:"streak_ttl"`
	StatsTTL  Duration `toml:"stats_ttl"`
}

// SyncConfig selects the remote. The connection string itself is never
// stored here: it comes from ConnectionEnv or the OS keyring.
type SyncConfig struct {
	Backend       string `toml:"backend"` // "none" (default) or "postgres"
	ConnectionEnv string `toml:"connection_env"`
}

type NotifyConfig struct {
	Backend      string `toml:"backend"` // "log" (default) or "tray"
	TrayLockfile string `toml:"tray_lockfile,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DataDir:  constants.DefaultDataDir,
		UserID:   constants.LocalUserID,
		Timezone: "Local",
		Storage: StorageConfig{
			Backend:      StorageFile,
			WriteTimeout: Duration{constants.DefaultWriteTimeout},
		},
		Backup: BackupConfig{Retention: constants.MaxBackups},
		Analytics: AnalyticsConfig{
			StreakTTL: Duration{constants.DefaultStreakTTL},
			StatsTTL:  Duration{constants.DefaultStatsTTL},
		},
		Sync: SyncConfig{
			Backend:       SyncNone,
			ConnectionEnv: constants.DefaultSyncConnectionEnv,
		},
		Notify: NotifyConfig{Backend: NotifyLog},
	}
}

// Read decodes a Config from r on top of the defaults.
func Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	path, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Write encodes cfg to path, creating parent directories.
func Write(path string, cfg *Config) error {
	path, err := ExpandHome(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks every field that has a closed set of values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir must be set")
	}
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New("user_id must be set")
	}
	if !utils.ValidateTimezone(c.Timezone) {
		return fmt.Errorf("unknown timezone %q", c.Timezone)
	}
	switch c.Storage.Backend {
	case StorageFile, StorageSQLite:
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", StorageFile, StorageSQLite, c.Storage.Backend)
	}
	if c.Storage.WriteTimeout.Duration <= 0 {
		return errors.New("storage.write_timeout must be positive")
	}
	if c.Backup.Retention < 1 {
		return errors.New("backup.retention must be at least 1")
	}
	if c.Analytics.StreakTTL.Duration < 0 || c.Analytics.StatsTTL.Duration < 0 {
		return errors.New("analytics ttl cannot be negative")
	}
	switch c.Sync.Backend {
	case SyncNone, SyncPostgres:
	default:
		return fmt.Errorf("sync.backend must be %q or %q, got %q", SyncNone, SyncPostgres, c.Sync.Backend)
	}
	switch c.Notify.Backend {
	case NotifyLog, NotifyTray:
	default:
		return fmt.Errorf("notify.backend must be %q or %q, got %q", NotifyLog, NotifyTray, c.Notify.Backend)
	}
	return nil
}

// DataPath returns the expanded data directory.
func (c *Config) DataPath() (string, error) {
	return ExpandHome(c.DataDir)
}

// Location returns the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return utils.LoadLocation(c.Timezone)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
