package models

import (
	"time"

	"github.com/julianstephens/habitual/internal/constants"
)

// defaultEpoch keeps default category timestamps stable across runs so the
// migration never rewrites a category that is already present.
var defaultEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type categorySeed struct {
	id, name, color, icon string
}

var categorySeeds = []categorySeed{
	{"health", "Health", "#10B981", "heart"},
	{"productivity", "Productivity", "#3B82F6", "briefcase"},
	{"mindfulness", "Mindfulness", "#8B5CF6", "leaf"},
	{"learning", "Learning", "#F59E0B", "book"},
	{"social", "Social", "#EC4899", "people"},
}

// DefaultCategories returns the built-in categories for userID.
// New defaults are appended here; existing snapshots pick them up on load.
func DefaultCategories(userID string) []Category {
	cats := make([]Category, 0, len(categorySeeds))
	for _, seed := range categorySeeds {
		cats = append(cats, Category{
			ID:        seed.id,
			UserID:    userID,
			Name:      seed.name,
			Color:     seed.color,
			Icon:      seed.icon,
			CreatedAt: defaultEpoch,
			UpdatedAt: defaultEpoch,
		})
	}
	return cats
}

// DefaultCategory is the synthesized fallback for habits whose category is gone.
func DefaultCategory(userID string) Category {
	return Category{
		ID:        constants.UncategorizedCategory,
		UserID:    userID,
		Name:      "General",
		Color:     "#6B7280",
		Icon:      "star",
		CreatedAt: defaultEpoch,
		UpdatedAt: defaultEpoch,
	}
}

// StarterHabits returns the habits created on first run.
func StarterHabits(userID string, now time.Time) []Habit {
	water := "Eight glasses over the day"
	reading := "At least ten pages"
	return []Habit{
		{
			ID:          "starter-drink-water",
			UserID:      userID,
			CategoryID:  "health",
			Name:        "Drink water",
			Description: &water,
			Frequency:   FrequencyDaily,
			IsActive:    true,
			Color:       "#10B981",
			Icon:        "water",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:          "starter-read",
			UserID:      userID,
			CategoryID:  "learning",
			Name:        "Read",
			Description: &reading,
			Frequency:   FrequencyDaily,
			IsActive:    true,
			Color:       "#F59E0B",
			Icon:        "book",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

// NewDefaultSnapshot builds the first-run snapshot.
func NewDefaultSnapshot(userID string, now time.Time) Snapshot {
	snap := Snapshot{
		Version:    constants.SnapshotVersion,
		Categories: DefaultCategories(userID),
	}
	for _, c := range snap.Categories {
		snap.AppliedDefaults = append(snap.AppliedDefaults, c.ID)
	}
	for _, h := range StarterHabits(userID, now) {
		snap.Habits = append(snap.Habits, snap.WithCategory(h))
	}
	snap.Normalize()
	return snap
}

// MergeDefaultCategories appends each default category that has never been
// applied to s and reports whether the snapshot changed. A default that was
// applied and later deleted stays deleted. Existing categories are untouched.
func MergeDefaultCategories(s *Snapshot, userID string) bool {
	applied := make(map[string]bool, len(s.AppliedDefaults))
	for _, id := range s.AppliedDefaults {
		applied[id] = true
	}

	changed := false
	for _, def := range DefaultCategories(userID) {
		if applied[def.ID] {
			continue
		}
		if _, ok := s.FindCategory(def.ID); !ok {
			s.Categories = append(s.Categories, def)
		}
		s.AppliedDefaults = append(s.AppliedDefaults, def.ID)
		changed = true
	}
	return changed
}
