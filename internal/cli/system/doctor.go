package system

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/config"
	"github.com/julianstephens/habitual/internal/keyring"
	"github.com/julianstephens/habitual/internal/sync/postgres"
)

type DoctorCmd struct{}

type check struct {
	name string
	// skipIfDown skips the check when local storage is unreadable
	skipIfDown bool
	// warnOnly reports failure as a warning
	warnOnly bool
	run      func(*cli.Context) error
}

var checks = []check{
	{name: "Local storage readable", run: checkStorage},
	{name: "Data validation", skipIfDown: true, run: checkValidation},
	{name: "Backups present", warnOnly: true, run: checkBackups},
	{name: "Clock/timezone", run: checkClockTimezone},
	{name: "Pending changes", skipIfDown: true, warnOnly: true, run: checkQueue},
	{name: "Sync connection", warnOnly: true, run: checkSyncConnection},
}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	fmt.Println("Running diagnostics...")
	fmt.Println()

	hasError := false
	storageOK := true
	for i, c := range checks {
		if c.skipIfDown && !storageOK {
			fmt.Printf("⊘ %s: SKIPPED (local storage not readable)\n", c.name)
			continue
		}
		err := c.run(ctx)
		switch {
		case err == nil:
			fmt.Printf("✓ %s: OK\n", c.name)
		case c.warnOnly:
			fmt.Printf("⚠ %s: WARNING\n", c.name)
			fmt.Printf("   %v\n", err)
		default:
			fmt.Printf("❌ %s: FAIL\n", c.name)
			fmt.Printf("   Error: %v\n", err)
			hasError = true
			if i == 0 {
				storageOK = false
			}
		}
	}

	fmt.Println()
	if hasError {
		fmt.Println("Some checks failed.")
		return errors.New("diagnostics failed")
	}
	fmt.Println("All checks passed.")
	return nil
}

func checkStorage(ctx *cli.Context) error {
	_, err := ctx.Store.Snapshot(context.Background())
	return err
}

func checkValidation(ctx *cli.Context) error {
	result, _, err := ctx.Habits.Validate(context.Background(), false)
	if err != nil {
		return err
	}
	if result.HasConflicts() {
		return fmt.Errorf("%d conflicts found; run 'habitual validate' for details", len(result.Conflicts))
	}
	return nil
}

func checkBackups(ctx *cli.Context) error {
	records, err := ctx.Backups.ListBackups()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no backups in %s; run 'habitual backup create'", ctx.Backups.Dir())
	}
	return nil
}

func checkClockTimezone(ctx *cli.Context) error {
	now := time.Now()
	if now.Year() < 2020 || now.Year() > 2100 {
		return fmt.Errorf("system time appears incorrect: %s", now.Format(time.RFC3339))
	}
	if ctx.Location == nil {
		return fmt.Errorf("timezone %q not loaded", ctx.Config.Timezone)
	}
	return nil
}

func checkQueue(ctx *cli.Context) error {
	n, err := ctx.Queue.Len(context.Background())
	if err != nil {
		return err
	}
	if n > 0 && ctx.Config.Sync.Backend == config.SyncPostgres {
		return fmt.Errorf("%d changes waiting; run 'habitual sync push'", n)
	}
	return nil
}

func checkSyncConnection(ctx *cli.Context) error {
	if ctx.Config.Sync.Backend != config.SyncPostgres {
		return nil
	}
	if !keyring.IsAvailable() {
		return keyring.ErrKeyringUnavailable
	}
	connStr, err := keyring.SyncConnection().Resolve(ctx.Config.Sync.ConnectionEnv)
	if err != nil {
		return err
	}
	return postgres.ValidateConnString(connStr)
}
