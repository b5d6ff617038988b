package models

import "time"

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCustom  Frequency = "custom"
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyCustom:
		return true
	}
	return false
}

// Category groups habits for display
type Category struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Icon      string    `json:"icon"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Habit represents a recurring practice to track
type Habit struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CategoryID   string    `json:"category_id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	Frequency    Frequency `json:"frequency"`
	ReminderTime *string   `json:"reminder_time,omitempty"` // HH:MM format
	IsActive     bool      `json:"is_active"`
	Color        string    `json:"color"`
	Icon         string    `json:"icon"`
	Stacking     *string   `json:"stacking,omitempty"`
	Intention    *string   `json:"intention,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HabitWithCategory is a habit carrying a denormalized copy of its category.
// The embedded category is rebuilt from Snapshot.Categories on every read.
type HabitWithCategory struct {
	Habit
	Category Category `json:"category"`
}

// HabitEntry represents a single day's record of a habit
type HabitEntry struct {
	ID          string     `json:"id"`
	HabitID     string     `json:"habit_id"`
	UserID      string     `json:"user_id"`
	EntryDate   string     `json:"entry_date"` // YYYY-MM-DD, device-local calendar date
	IsCompleted bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// HabitStreak is derived from entry history and never persisted
type HabitStreak struct {
	Current           int     `json:"current"`
	Longest           int     `json:"longest"`
	LastCompletedDate *string `json:"last_completed_date,omitempty"`
}

// HabitStats is derived from entry history and never persisted
type HabitStats struct {
	TotalCompletions          int     `json:"total_completions"`
	CompletionRate            float64 `json:"completion_rate"`
	CurrentStreak             int     `json:"current_streak"`
	LongestStreak             int     `json:"longest_streak"`
	AverageCompletionsPerWeek float64 `json:"average_completions_per_week"`
	LastSevenDays             [7]bool `json:"last_seven_days"` // oldest first, index 6 is today
	MonthlyProgress           float64 `json:"monthly_progress"`
}
