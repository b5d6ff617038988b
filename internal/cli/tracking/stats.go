package tracking

import (
	"context"
	"fmt"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/habits"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/utils"
)

type StatsCmd struct {
	Habit string `arg:"" optional:"" help:"Habit id or name (default: all active habits)."`
}

func (c *StatsCmd) Run(ctx *cli.Context) error {
	bg := context.Background()

	if c.Habit != "" {
		h, err := ctx.Habits.FindHabit(bg, c.Habit)
		if err != nil {
			return err
		}
		stats, err := ctx.Habits.Stats(bg, h.ID)
		if err != nil {
			return err
		}
		printStats(habits.HabitOverview{Habit: h, Stats: stats})
		return nil
	}

	overview, err := ctx.Habits.Overview(bg)
	if err != nil {
		return err
	}
	if len(overview) == 0 {
		fmt.Println("No habits found.")
		return nil
	}
	for i, o := range overview {
		if i > 0 {
			fmt.Println()
		}
		printStats(o)
	}
	return nil
}

func printStats(o habits.HabitOverview) {
	s := o.Stats
	fmt.Printf("%s  %s\n", cli.TitleStyle.Render(o.Habit.Name), cli.MutedStyle.Render(o.Habit.Category.Name))
	fmt.Printf("  Last 7 days    %s\n", cli.Week(s.LastSevenDays))
	fmt.Printf("  Streak         %d current, %d longest\n", s.CurrentStreak, s.LongestStreak)
	fmt.Printf("  Completions    %d total, %.1f per week\n", s.TotalCompletions, s.AverageCompletionsPerWeek)
	fmt.Printf("  Last 30 days   %s\n", cli.Bar(s.CompletionRate, 20))
	fmt.Printf("  This month     %s\n", cli.Bar(s.MonthlyProgress, 20))
}

type HistoryCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
	Days  int    `help:"Number of days to show." default:"14"`
}

func (c *HistoryCmd) Validate() error {
	if c.Days < 1 || c.Days > 366 {
		return fmt.Errorf("days must be between 1 and 366")
	}
	return nil
}

func (c *HistoryCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	h, err := ctx.Habits.FindHabit(bg, c.Habit)
	if err != nil {
		return err
	}
	entries, err := ctx.Habits.Entries(bg, h.ID)
	if err != nil {
		return err
	}

	byDate := make(map[string]models.HabitEntry, len(entries))
	for _, e := range entries {
		byDate[e.EntryDate] = e
	}

	today, err := ctx.ResolveDate("")
	if err != nil {
		return err
	}

	fmt.Println(cli.TitleStyle.Render(h.Name))
	for i := c.Days - 1; i >= 0; i-- {
		day, err := utils.AddDays(today, -i)
		if err != nil {
			return err
		}
		e, ok := byDate[day]
		line := fmt.Sprintf("%s %s", cli.Check(ok && e.IsCompleted), day)
		if ok && e.Notes != nil {
			line += "  " + cli.MutedStyle.Render(*e.Notes)
		}
		fmt.Println(line)
	}
	return nil
}
