package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/cli/backups"
	"github.com/julianstephens/habitual/internal/cli/system"
	"github.com/julianstephens/habitual/internal/cli/tracking"
	"github.com/julianstephens/habitual/internal/config"
	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/logger"
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"Config file path." type:"path" default:"${config_path}"`
	Debug   bool   `help:"Log debug output to stderr."`

	Init     system.InitCmd       `cmd:"" help:"Initialize habitual storage and config."`
	Today    tracking.TodayCmd    `cmd:"" help:"Show today's habits." default:"1"`
	Toggle   tracking.ToggleCmd   `cmd:"" help:"Mark a habit done, or undone, for a day."`
	Note     tracking.NoteCmd     `cmd:"" help:"Attach a note to a day's entry."`
	Stats    tracking.StatsCmd    `cmd:"" help:"Show habit statistics."`
	History  tracking.HistoryCmd  `cmd:"" help:"Show a habit's recent history."`
	Habit    tracking.HabitCmd    `cmd:"" help:"Manage habits."`
	Category tracking.CategoryCmd `cmd:"" help:"Manage categories."`
	Backup   struct {
		Create  backups.BackupCreateCmd  `cmd:"" help:"Create a manual backup." default:"1"`
		List    backups.BackupListCmd    `cmd:"" help:"List available backups."`
		Restore backups.BackupRestoreCmd `cmd:"" help:"Restore from a backup."`
	} `cmd:"" help:"Manage backups."`
	Queue    system.QueueCmd    `cmd:"" help:"Inspect changes waiting to be synced."`
	Sync     system.SyncCmd     `cmd:"" help:"Sync with the remote database."`
	Watch    system.WatchCmd    `cmd:"" help:"Show a live summary that follows changes from other processes."`
	Validate system.ValidateCmd `cmd:"" help:"Check local data for inconsistencies."`
	Doctor   system.DoctorCmd   `cmd:"" help:"Run health checks and diagnostics."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Habit tracker with local-first storage and optional sync"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":     constants.Version,
			"config_path": constants.DefaultConfigPath,
		},
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		errors.Fatal(err)
	}
	if CLI.Debug {
		cfg.Debug = true
	}

	dataDir, err := cfg.DataPath()
	if err != nil {
		errors.Fatal(err)
	}
	if err := logger.Init(logger.Config{Debug: cfg.Debug, DataDir: dataDir}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}

	appCtx, err := cli.NewContext(cfg, CLI.Config)
	if err != nil {
		errors.Fatal(err)
	}

	err = ctx.Run(appCtx)
	if closeErr := appCtx.Close(); closeErr != nil {
		logger.Warn("Failed to close storage", "error", closeErr)
	}
	errors.Fatal(err)
}
