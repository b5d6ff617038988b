package tracking

import (
	"context"
	"fmt"

	"github.com/julianstephens/habitual/internal/cli"
)

type ToggleCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
	Date  string `short:"d" help:"Date as YYYY-MM-DD or a phrase like 'yesterday' (default: today)."`
}

func (c *ToggleCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	date, err := ctx.ResolveDate(c.Date)
	if err != nil {
		return err
	}
	h, err := ctx.Habits.FindHabit(bg, c.Habit)
	if err != nil {
		return err
	}

	entry, err := ctx.Habits.ToggleCompletion(bg, h.ID, date)
	if err != nil {
		return err
	}

	if entry.IsCompleted {
		fmt.Printf("%s %s on %s\n", cli.Check(true), h.Name, date)
		streak, err := ctx.Habits.Streak(bg, h.ID)
		if err == nil && streak.Current > 1 {
			fmt.Printf("    %s\n", cli.DoneStyle.Render(fmt.Sprintf("%d day streak", streak.Current)))
		}
	} else {
		fmt.Printf("%s %s on %s\n", cli.Check(false), h.Name, date)
	}
	return nil
}

type NoteCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
	Text  string `arg:"" optional:"" help:"Note text; omit to clear."`
	Date  string `short:"d" help:"Date as YYYY-MM-DD or a phrase like 'yesterday' (default: today)."`
}

func (c *NoteCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	date, err := ctx.ResolveDate(c.Date)
	if err != nil {
		return err
	}
	h, err := ctx.Habits.FindHabit(bg, c.Habit)
	if err != nil {
		return err
	}

	if _, err := ctx.Habits.SetEntryNotes(bg, h.ID, date, c.Text); err != nil {
		return err
	}
	if c.Text == "" {
		fmt.Printf("✓ Cleared note for %s on %s\n", h.Name, date)
	} else {
		fmt.Printf("✓ Saved note for %s on %s\n", h.Name, date)
	}
	return nil
}

type TodayCmd struct {
	Date string `short:"d" help:"Date as YYYY-MM-DD or a phrase like 'yesterday' (default: today)."`
}

func (c *TodayCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	date, err := ctx.ResolveDate(c.Date)
	if err != nil {
		return err
	}

	list, err := ctx.Habits.Habits(bg)
	if err != nil {
		return err
	}
	entries, err := ctx.Habits.EntriesForDate(bg, date)
	if err != nil {
		return err
	}

	done := make(map[string]bool, len(entries))
	notes := make(map[string]string)
	for _, e := range entries {
		done[e.HabitID] = e.IsCompleted
		if e.Notes != nil {
			notes[e.HabitID] = *e.Notes
		}
	}

	fmt.Println(cli.TitleStyle.Render("Habits for " + date))
	fmt.Println()
	active, completed := 0, 0
	for _, h := range list {
		if !h.IsActive {
			continue
		}
		active++
		if done[h.ID] {
			completed++
		}
		fmt.Printf("%s %s\n", cli.Check(done[h.ID]), h.Name)
		if n, ok := notes[h.ID]; ok {
			fmt.Printf("    %s\n", cli.MutedStyle.Render(n))
		}
	}

	if active == 0 {
		fmt.Println("No habits found.")
		return nil
	}
	fmt.Printf("\nCompleted: %d/%d\n", completed, active)
	return nil
}
