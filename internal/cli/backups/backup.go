package backups

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitual/internal/cli"
)

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(ctx *cli.Context) error {
	rec, err := ctx.Habits.CreateBackup(context.Background())
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	fmt.Printf("✓ Backup created: %s\n", filepath.Base(rec.Path))
	fmt.Printf("  %d habits, %d entries, %d categories\n", rec.Stats.TotalHabits, rec.Stats.TotalEntries, rec.Stats.TotalCategories)
	return nil
}

type BackupListCmd struct{}

func (c *BackupListCmd) Run(ctx *cli.Context) error {
	records, err := ctx.Habits.Backups()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No backups found.")
		fmt.Printf("Backups are stored in: %s\n", ctx.Backups.Dir())
		return nil
	}

	fmt.Printf("Available backups (%d total, keeping most recent %d):\n\n", len(records), ctx.Backups.Retention())
	for _, b := range records {
		sizeKB := float64(b.Size) / 1024.0
		timestamp := b.Timestamp.In(ctx.Location).Format("2006-01-02 15:04:05")
		fmt.Printf("  %s  %s  (%.1f KB, %d habits, %d entries)\n",
			timestamp, b.ID, sizeKB, b.Stats.TotalHabits, b.Stats.TotalEntries)
	}
	fmt.Printf("\nBackup directory: %s\n", ctx.Backups.Dir())
	return nil
}

type BackupRestoreCmd struct {
	Backup string `arg:"" help:"Backup id or file name, as shown by 'backup list'."`
	Yes    bool   `short:"y" help:"Skip confirmation."`
}

var errRestoreRejected = errors.New("backup could not be restored; local data is unchanged")

func (c *BackupRestoreCmd) Run(ctx *cli.Context) error {
	if !c.Yes {
		ok := false
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Restore " + c.Backup + "?").
					Description("Habits, categories and entries are replaced with the backup.\nUnsynced changes stay queued.").
					Affirmative("Restore").
					Negative("Cancel").
					Value(&ok),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("confirmation form error: %w", err)
		}
		if !ok {
			fmt.Println("Restore cancelled.")
			return nil
		}
	}

	if !ctx.Habits.RestoreBackup(context.Background(), c.Backup) {
		return errRestoreRejected
	}

	fmt.Println("✓ Restored successfully!")
	fmt.Println("  Restart any running 'habitual watch' processes to pick up the restored data.")
	return nil
}
