package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/utils"
)

// completedDates returns the set of completed entry dates up to and
// including today. Completions dated after today are ignored.
func completedDates(entries []models.HabitEntry, today string) (map[string]bool, error) {
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsCompleted {
			continue
		}
		if !utils.ValidateDate(e.EntryDate) {
			return nil, fmt.Errorf("entry %s has invalid date %q", e.ID, e.EntryDate)
		}
		// YYYY-MM-DD compares correctly as a string
		if e.EntryDate > today {
			continue
		}
		set[e.EntryDate] = true
	}
	return set, nil
}

func sortedDates(set map[string]bool) []string {
	dates := make([]string, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// CalculateStreak derives the current and longest streak as of today
// (YYYY-MM-DD, local). A streak is still current if its last completion
// was yesterday, since today is not over.
func CalculateStreak(entries []models.HabitEntry, today string) (models.HabitStreak, error) {
	if !utils.ValidateDate(today) {
		return models.HabitStreak{}, fmt.Errorf("invalid date %q", today)
	}

	done, err := completedDates(entries, today)
	if err != nil {
		return models.HabitStreak{}, err
	}
	if len(done) == 0 {
		return models.HabitStreak{}, nil
	}

	var streak models.HabitStreak

	yesterday, _ := utils.AddDays(today, -1)
	start := ""
	switch {
	case done[today]:
		start = today
	case done[yesterday]:
		start = yesterday
	}
	for day := start; day != "" && done[day]; {
		streak.Current++
		day, _ = utils.AddDays(day, -1)
	}

	dates := sortedDates(done)
	run := 0
	prev := ""
	for _, d := range dates {
		if prev != "" {
			if next, _ := utils.AddDays(prev, 1); next == d {
				run++
			} else {
				run = 1
			}
		} else {
			run = 1
		}
		if run > streak.Longest {
			streak.Longest = run
		}
		prev = d
	}

	last := dates[len(dates)-1]
	streak.LastCompletedDate = &last
	return streak, nil
}

// CalculateStats derives the full statistics for one habit as of today.
// Monthly progress divides by every day of the month, not only the days
// elapsed, so it reaches 1.0 only on the last day.
func CalculateStats(entries []models.HabitEntry, today string) (models.HabitStats, error) {
	streak, err := CalculateStreak(entries, today)
	if err != nil {
		return models.HabitStats{}, err
	}
	done, err := completedDates(entries, today)
	if err != nil {
		return models.HabitStats{}, err
	}

	stats := models.HabitStats{
		TotalCompletions: len(done),
		CurrentStreak:    streak.Current,
		LongestStreak:    streak.Longest,
	}
	if len(done) == 0 {
		return stats, nil
	}

	windowStart, _ := utils.AddDays(today, -(constants.CompletionRateWindowDays - 1))
	month := today[:len("2006-01")]
	inWindow, inMonth := 0, 0
	for d := range done {
		if d >= windowStart {
			inWindow++
		}
		if strings.HasPrefix(d, month) {
			inMonth++
		}
	}
	stats.CompletionRate = float64(inWindow) / constants.CompletionRateWindowDays

	daysInMonth, err := utils.DaysInMonth(today)
	if err != nil {
		return models.HabitStats{}, err
	}
	stats.MonthlyProgress = float64(inMonth) / float64(daysInMonth)

	for i := 0; i < constants.LastDaysWindow; i++ {
		day, _ := utils.AddDays(today, i-(constants.LastDaysWindow-1))
		stats.LastSevenDays[i] = done[day]
	}

	first := sortedDates(done)[0]
	days, err := utils.DaysBetween(first, today)
	if err != nil {
		return models.HabitStats{}, err
	}
	weeks := math.Max(1, math.Ceil(float64(days+1)/7))
	stats.AverageCompletionsPerWeek = float64(len(done)) / weeks

	return stats, nil
}
