package constants

import "time"

const (
	AppName            = "habitual"
	DefaultKeyringUser = "sync-connection"
	DefaultConfigPath  = "~/.config/habitual/config.toml"
	DefaultDataDir     = "~/.config/habitual"
	Version            = "v0.1.0"

	// DateFormat is the local calendar date format used for entry dates (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the reminder time format (HH:MM)
	TimeFormat = "15:04"

	// Snapshot constants
	SnapshotFileName    = "snapshot.json"
	SnapshotDBFileName  = "snapshot.db"
	SnapshotVersion     = 1
	DefaultWriteTimeout = 10 * time.Second

	// Backup constants
	MaxBackups       = 5
	BackupVersion    = "1.0"
	BackupDirName    = "backups"
	BackupFilePrefix = "habitual-backup-"
	BackupFileSuffix = ".json"
	// BackupTimestampFormat sorts lexically in creation order
	BackupTimestampFormat = "20060102-150405.000000000"

	// Analytics cache lifetimes
	DefaultStreakTTL = 5 * time.Minute
	DefaultStatsTTL  = 2 * time.Minute

	// Analytics windows
	CompletionRateWindowDays = 30
	LastDaysWindow           = 7

	// Sync
	DefaultSyncConnectionEnv = "HABITUAL_SYNC_CONNECTION"

	// Tray notifications
	TrayAppExecutable      = "habitual-tray"
	TrayLockfileName       = "habitual-tray.lock"
	NotificationDurationMs = 5000

	// Default ids
	LocalUserID           = "local-user"
	UncategorizedCategory = "uncategorized"
)
