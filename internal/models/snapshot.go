package models

import (
	"encoding/json"
	"time"
)

type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// Tables a pending operation can target
const (
	TableHabits       = "habits"
	TableCategories   = "categories"
	TableHabitEntries = "habit_entries"
)

// PendingOperation is a local mutation not yet confirmed by the remote
type PendingOperation struct {
	ID        string          `json:"id"`
	Type      OperationType   `json:"type"`
	Table     string          `json:"table"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// TargetID extracts the "id" field of the payload, if any.
func (op PendingOperation) TargetID() string {
	var target struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(op.Data, &target); err != nil {
		return ""
	}
	return target.ID
}

// Snapshot is the complete local copy of domain data
type Snapshot struct {
	Version      int                 `json:"version"`
	Habits       []HabitWithCategory `json:"habits"`
	Categories   []Category          `json:"categories"`
	HabitEntries []HabitEntry        `json:"habitEntries"`
	PendingSync  []PendingOperation  `json:"pendingSync"`
	// AppliedDefaults lists the default category ids already offered to
	// this snapshot, so a deleted default is not injected again.
	AppliedDefaults []string `json:"appliedDefaults,omitempty"`
}

// Normalize replaces nil collections with empty ones so older or partial
// documents behave like empty ones.
func (s *Snapshot) Normalize() {
	if s.Habits == nil {
		s.Habits = []HabitWithCategory{}
	}
	if s.Categories == nil {
		s.Categories = []Category{}
	}
	if s.HabitEntries == nil {
		s.HabitEntries = []HabitEntry{}
	}
	if s.PendingSync == nil {
		s.PendingSync = []PendingOperation{}
	}
}

// Clone returns a deep copy that shares no slices with s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Version:      s.Version,
		Habits:       make([]HabitWithCategory, len(s.Habits)),
		Categories:   make([]Category, len(s.Categories)),
		HabitEntries: make([]HabitEntry, len(s.HabitEntries)),
		PendingSync:  make([]PendingOperation, len(s.PendingSync)),
	}
	copy(out.Habits, s.Habits)
	copy(out.Categories, s.Categories)
	copy(out.HabitEntries, s.HabitEntries)
	for i, op := range s.PendingSync {
		op.Data = append(json.RawMessage(nil), op.Data...)
		out.PendingSync[i] = op
	}
	if s.AppliedDefaults != nil {
		out.AppliedDefaults = append([]string(nil), s.AppliedDefaults...)
	}
	return out
}

// FindCategory returns the category with the given id.
func (s *Snapshot) FindCategory(id string) (Category, bool) {
	for _, c := range s.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// HabitIndex returns the slice index of the habit, or -1.
func (s *Snapshot) HabitIndex(id string) int {
	for i, h := range s.Habits {
		if h.ID == id {
			return i
		}
	}
	return -1
}

// EntryIndex returns the slice index of the entry for (habitID, date), or -1.
func (s *Snapshot) EntryIndex(habitID, date string) int {
	for i, e := range s.HabitEntries {
		if e.HabitID == habitID && e.EntryDate == date {
			return i
		}
	}
	return -1
}

// EntriesForHabit returns the entries of a single habit.
func (s *Snapshot) EntriesForHabit(habitID string) []HabitEntry {
	var entries []HabitEntry
	for _, e := range s.HabitEntries {
		if e.HabitID == habitID {
			entries = append(entries, e)
		}
	}
	return entries
}

// WithCategory joins a habit to its category, falling back to the
// synthesized default when the category no longer exists.
func (s *Snapshot) WithCategory(h Habit) HabitWithCategory {
	cat, ok := s.FindCategory(h.CategoryID)
	if !ok {
		cat = DefaultCategory(h.UserID)
	}
	return HabitWithCategory{Habit: h, Category: cat}
}

// RefreshCategories rebuilds every habit's embedded category.
func (s *Snapshot) RefreshCategories() {
	for i := range s.Habits {
		s.Habits[i] = s.WithCategory(s.Habits[i].Habit)
	}
}

// BackupStats is the cheap summary stored alongside a backup
type BackupStats struct {
	TotalHabits     int `json:"totalHabits"`
	TotalEntries    int `json:"totalEntries"`
	TotalCategories int `json:"totalCategories"`
}

// StatsOf computes the backup header counts for a snapshot.
func StatsOf(s Snapshot) BackupStats {
	return BackupStats{
		TotalHabits:     len(s.Habits),
		TotalEntries:    len(s.HabitEntries),
		TotalCategories: len(s.Categories),
	}
}

// BackupRecord describes a backup on disk without its snapshot payload
type BackupRecord struct {
	ID        string      `json:"id"`
	Path      string      `json:"path"`
	Timestamp time.Time   `json:"timestamp"`
	Version   string      `json:"version"`
	Size      int64       `json:"size"`
	Stats     BackupStats `json:"stats"`
}
