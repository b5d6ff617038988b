package system

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/config"
	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/storage"
)

// WatchCmd keeps a live summary of today's progress, refreshing whenever
// another process changes the snapshot.
type WatchCmd struct {
	Debounce time.Duration `help:"Quiet period before reloading after a change." default:"250ms"`
}

func snapshotPath(ctx *cli.Context) string {
	if ctx.Config.Storage.Backend == config.StorageSQLite {
		return filepath.Join(ctx.DataDir, constants.SnapshotDBFileName)
	}
	return filepath.Join(ctx.DataDir, constants.SnapshotFileName)
}

func (c *WatchCmd) Run(ctx *cli.Context) error {
	bg, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := printSummary(bg, ctx); err != nil {
		return err
	}

	w, err := storage.NewWatcher(snapshotPath(ctx), c.Debounce, func() {
		changed, err := ctx.Habits.Reload(bg)
		if err != nil {
			logger.Warn("Reload failed", "error", err)
			return
		}
		if changed {
			if err := printSummary(bg, ctx); err != nil {
				logger.Warn("Failed to render summary", "error", err)
			}
		}
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Println(cli.MutedStyle.Render("Watching for changes, press Ctrl+C to stop."))
	<-bg.Done()
	return nil
}

func printSummary(ctx context.Context, app *cli.Context) error {
	overview, err := app.Habits.Overview(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(cli.TitleStyle.Render(app.Habits.Today()))
	for _, o := range overview {
		fmt.Printf("%s %-24s %s  %d day streak\n",
			cli.Check(o.Stats.LastSevenDays[6]),
			o.Habit.Name,
			cli.Week(o.Stats.LastSevenDays),
			o.Stats.CurrentStreak,
		)
	}
	return nil
}
