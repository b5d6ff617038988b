package system

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/queue"
)

type QueueCmd struct {
	List  QueueListCmd  `cmd:"" help:"List changes waiting to be synced." default:"1"`
	Clear QueueClearCmd `cmd:"" help:"Discard every unsynced change."`
}

type QueueListCmd struct {
	Compact bool `help:"Show only the last change per record."`
}

func (c *QueueListCmd) Run(ctx *cli.Context) error {
	ops, err := ctx.Habits.PendingOperations(context.Background())
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		fmt.Println("Nothing to sync.")
		return nil
	}

	total := len(ops)
	if c.Compact {
		ops = queue.Compact(ops)
	}
	for _, op := range ops {
		fmt.Printf("%s  %-6s %-13s %s\n",
			cli.MutedStyle.Render(op.Timestamp.In(ctx.Location).Format("2006-01-02 15:04:05")),
			op.Type, op.Table, op.TargetID())
	}
	if c.Compact {
		fmt.Printf("\n%d records changed (%d queued changes)\n", len(ops), total)
	} else {
		fmt.Printf("\n%d queued changes\n", total)
	}
	return nil
}

type QueueClearCmd struct {
	Yes bool `short:"y" help:"Skip confirmation."`
}

func (c *QueueClearCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	n, err := ctx.Queue.Len(bg)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Println("Nothing to clear.")
		return nil
	}

	if !c.Yes {
		ok := false
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Discard %d unsynced changes?", n)).
					Description("Local data is kept but the remote will never see these changes.").
					Value(&ok),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("confirmation form error: %w", err)
		}
		if !ok {
			fmt.Println("Clear cancelled.")
			return nil
		}
	}

	if err := ctx.Habits.ClearPending(bg); err != nil {
		return err
	}
	fmt.Printf("✓ Discarded %d queued changes\n", n)
	return nil
}
