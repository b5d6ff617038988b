package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/habits"
	"github.com/julianstephens/habitual/internal/models"
)

type HabitCmd struct {
	Add    HabitAddCmd    `cmd:"" help:"Add a new habit."`
	List   HabitListCmd   `cmd:"" help:"List habits."`
	Edit   HabitEditCmd   `cmd:"" help:"Edit an existing habit."`
	Delete HabitDeleteCmd `cmd:"" help:"Delete a habit and its history."`
}

type HabitAddCmd struct {
	Name        string `arg:"" help:"Habit name."`
	Category    string `short:"c" help:"Category id."`
	Description string `short:"d" help:"Short description."`
	Frequency   string `short:"f" help:"Frequency (daily|weekly|monthly|custom)." default:"daily"`
	Reminder    string `short:"r" help:"Reminder time (HH:MM)."`
	Color       string `help:"Display color (hex)."`
	Icon        string `help:"Icon name."`
	Stacking    string `help:"Existing habit this one follows."`
	Intention   string `help:"Implementation intention, e.g. 'after coffee'."`
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func (c *HabitAddCmd) Run(ctx *cli.Context) error {
	h, err := ctx.Habits.CreateHabit(context.Background(), habits.HabitInput{
		Name:         c.Name,
		CategoryID:   c.Category,
		Description:  optional(c.Description),
		Frequency:    models.Frequency(c.Frequency),
		ReminderTime: optional(c.Reminder),
		Color:        c.Color,
		Icon:         c.Icon,
		Stacking:     optional(c.Stacking),
		Intention:    optional(c.Intention),
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Added habit %q (%s) in %s\n", h.Name, h.ID, h.Category.Name)
	return nil
}

type HabitListCmd struct {
	All bool `short:"a" help:"Include inactive habits."`
}

func (c *HabitListCmd) Run(ctx *cli.Context) error {
	list, err := ctx.Habits.Habits(context.Background())
	if err != nil {
		return err
	}

	shown := 0
	for _, h := range list {
		if !h.IsActive && !c.All {
			continue
		}
		status := ""
		if !h.IsActive {
			status = cli.MutedStyle.Render(" [INACTIVE]")
		}
		fmt.Printf("%s  %s  %s%s\n",
			cli.MutedStyle.Render(h.ID),
			cli.TitleStyle.Render(h.Name),
			cli.MutedStyle.Render(fmt.Sprintf("%s · %s", h.Category.Name, h.Frequency)),
			status,
		)
		if h.Intention != nil {
			fmt.Printf("    %s\n", cli.MutedStyle.Render(*h.Intention))
		}
		shown++
	}

	if shown == 0 {
		fmt.Println("No habits found.")
	}
	return nil
}

type HabitEditCmd struct {
	Habit       string  `arg:"" help:"Habit id or name."`
	Name        *string `help:"New name."`
	Category    *string `short:"c" help:"New category id."`
	Description *string `short:"d" help:"New description."`
	Frequency   *string `short:"f" help:"New frequency (daily|weekly|monthly|custom)."`
	Reminder    *string `short:"r" help:"New reminder time (HH:MM)."`
	Active      *bool   `help:"Set active status."`
	Color       *string `help:"New display color (hex)."`
	Icon        *string `help:"New icon name."`
	Stacking    *string `help:"New stacking cue."`
	Intention   *string `help:"New implementation intention."`
}

func (c *HabitEditCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	h, err := ctx.Habits.FindHabit(bg, c.Habit)
	if err != nil {
		return err
	}

	upd := habits.HabitUpdate{
		Name:         c.Name,
		CategoryID:   c.Category,
		Description:  c.Description,
		ReminderTime: c.Reminder,
		IsActive:     c.Active,
		Color:        c.Color,
		Icon:         c.Icon,
		Stacking:     c.Stacking,
		Intention:    c.Intention,
	}
	if c.Frequency != nil {
		f := models.Frequency(*c.Frequency)
		upd.Frequency = &f
	}

	updated, err := ctx.Habits.UpdateHabit(bg, h.ID, upd)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Updated habit %q\n", updated.Name)
	return nil
}

type HabitDeleteCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
	Yes   bool   `short:"y" help:"Skip confirmation."`
}

// errCancelled is returned when the user declines a confirmation
var errCancelled = errors.New("cancelled")

func confirm(title, description string) error {
	ok := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("confirmation form error: %w", err)
	}
	if !ok {
		return errCancelled
	}
	return nil
}

func (c *HabitDeleteCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	h, err := ctx.Habits.FindHabit(bg, c.Habit)
	if err != nil {
		return err
	}

	if !c.Yes {
		err := confirm(
			fmt.Sprintf("Delete %q?", h.Name),
			"The habit and its whole history are removed. A backup is kept.",
		)
		if errors.Is(err, errCancelled) {
			fmt.Println("Delete cancelled.")
			return nil
		}
		if err != nil {
			return err
		}
	}

	if err := ctx.Habits.DeleteHabit(bg, h.ID); err != nil {
		return err
	}
	fmt.Printf("✓ Deleted habit %q\n", h.Name)
	return nil
}
