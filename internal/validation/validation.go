package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/utils"
)

// ConflictType represents the type of validation conflict
type ConflictType string

const (
	ConflictDuplicateHabitName ConflictType = "duplicate_habit_name"
	ConflictMissingID          ConflictType = "missing_id"
	ConflictInvalidDateTime    ConflictType = "invalid_datetime"
	ConflictInvalidFrequency   ConflictType = "invalid_frequency"
	ConflictOrphanEntry        ConflictType = "orphan_entry"
	ConflictDuplicateEntry     ConflictType = "duplicate_entry"
	ConflictMissingCategory    ConflictType = "missing_category"
)

// Conflict represents a detected problem in a snapshot
type Conflict struct {
	Type        ConflictType
	Description string
	Date        string   // YYYY-MM-DD format (if applicable)
	Items       []string // Habit names involved
	HabitIDs    []string
	EntryIDs    []string
}

// ValidationResult contains all detected conflicts
type ValidationResult struct {
	Conflicts []Conflict
}

// FixAction represents an action taken during auto-fix
type FixAction struct {
	Action string
	// EntryID is the habit entry the action removed
	EntryID        string
	SourceConflict Conflict
}

// HasConflicts returns true if there are any conflicts
func (vr *ValidationResult) HasConflicts() bool {
	return len(vr.Conflicts) > 0
}

// FormatReport returns a human-readable report of all conflicts
func (vr *ValidationResult) FormatReport() string {
	if !vr.HasConflicts() {
		return "No conflicts detected."
	}

	var b strings.Builder
	b.WriteString("Conflicts detected:\n")
	for _, conflict := range vr.Conflicts {
		fmt.Fprintf(&b, "- %s\n", conflict.Description)
	}
	return b.String()
}

// ErrInvalidHabit is returned by ValidateHabit
var ErrInvalidHabit = errors.New("invalid habit")

// ValidateHabit checks the fields a user can set on a habit.
func ValidateHabit(h models.Habit) error {
	if strings.TrimSpace(h.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidHabit)
	}
	if !h.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidHabit, h.Frequency)
	}
	if h.ReminderTime != nil && !utils.ValidateTimeFormat(*h.ReminderTime) {
		return fmt.Errorf("%w: reminder time %q is not HH:MM", ErrInvalidHabit, *h.ReminderTime)
	}
	return nil
}

// Validator checks a snapshot for inconsistencies the store itself does not
// prevent, e.g. after a hand-edited file or a restore from an old backup.
type Validator struct{}

// New creates a new Validator
func New() *Validator {
	return &Validator{}
}

// ValidateSnapshot checks habits and entries for conflicts
func (v *Validator) ValidateSnapshot(snap models.Snapshot) ValidationResult {
	result := ValidationResult{Conflicts: []Conflict{}}

	habitNames := make(map[string]string, len(snap.Habits))
	nameCount := make(map[string][]string)
	for _, h := range snap.Habits {
		if h.ID == "" {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictMissingID,
				Description: fmt.Sprintf("Habit \"%s\" has no id", h.Name),
				Items:       []string{h.Name},
			})
			continue
		}
		habitNames[h.ID] = h.Name

		if h.Name != "" {
			key := strings.ToLower(h.Name)
			nameCount[key] = append(nameCount[key], h.ID)
		}

		if !h.Frequency.Valid() {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictInvalidFrequency,
				Description: fmt.Sprintf("Habit \"%s\" has unknown frequency: %s", h.Name, h.Frequency),
				Items:       []string{h.Name},
				HabitIDs:    []string{h.ID},
			})
		}
		if h.ReminderTime != nil && !utils.ValidateTimeFormat(*h.ReminderTime) {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictInvalidDateTime,
				Description: fmt.Sprintf("Habit \"%s\" has invalid reminder time: %s", h.Name, *h.ReminderTime),
				Items:       []string{h.Name},
				HabitIDs:    []string{h.ID},
			})
		}
		if _, ok := snap.FindCategory(h.CategoryID); !ok && h.CategoryID != models.DefaultCategory(h.UserID).ID {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictMissingCategory,
				Description: fmt.Sprintf("Habit \"%s\" references missing category %q", h.Name, h.CategoryID),
				Items:       []string{h.Name},
				HabitIDs:    []string{h.ID},
			})
		}
	}

	keys := make([]string, 0, len(nameCount))
	for k := range nameCount {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ids := nameCount[k]
		if len(ids) > 1 {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictDuplicateHabitName,
				Description: fmt.Sprintf("Duplicate habit name: \"%s\" (IDs: %v)", habitNames[ids[0]], ids),
				Items:       []string{habitNames[ids[0]]},
				HabitIDs:    ids,
			})
		}
	}

	seen := make(map[string]string)
	for _, e := range snap.HabitEntries {
		name, ok := habitNames[e.HabitID]
		if !ok {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictOrphanEntry,
				Description: fmt.Sprintf("Entry %s on %s belongs to missing habit %q", e.ID, e.EntryDate, e.HabitID),
				Date:        e.EntryDate,
				HabitIDs:    []string{e.HabitID},
				EntryIDs:    []string{e.ID},
			})
			continue
		}
		if !utils.ValidateDate(e.EntryDate) {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictInvalidDateTime,
				Description: fmt.Sprintf("Entry %s of \"%s\" has invalid date: %s", e.ID, name, e.EntryDate),
				Items:       []string{name},
				HabitIDs:    []string{e.HabitID},
				EntryIDs:    []string{e.ID},
			})
			continue
		}

		key := e.HabitID + "|" + e.EntryDate
		if first, dup := seen[key]; dup {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictDuplicateEntry,
				Description: fmt.Sprintf("Habit \"%s\" has more than one entry on %s", name, e.EntryDate),
				Date:        e.EntryDate,
				Items:       []string{name},
				HabitIDs:    []string{e.HabitID},
				EntryIDs:    []string{first, e.ID},
			})
			continue
		}
		seen[key] = e.ID
	}

	return result
}

// Fix repairs what can be repaired without guessing: orphaned, duplicate
// and undated entries are removed, keeping the first entry per day.
// Conflicts that need a user decision are left alone.
func (v *Validator) Fix(snap *models.Snapshot, result ValidationResult) []FixAction {
	drop := make(map[string]Conflict)
	for _, c := range result.Conflicts {
		switch c.Type {
		case ConflictOrphanEntry:
			drop[c.EntryIDs[0]] = c
		case ConflictDuplicateEntry:
			drop[c.EntryIDs[1]] = c
		case ConflictInvalidDateTime:
			if len(c.EntryIDs) == 1 {
				drop[c.EntryIDs[0]] = c
			}
		}
	}
	if len(drop) == 0 {
		return nil
	}

	var actions []FixAction
	kept := snap.HabitEntries[:0]
	for _, e := range snap.HabitEntries {
		c, ok := drop[e.ID]
		if !ok {
			kept = append(kept, e)
			continue
		}
		// Entry ids are unique in practice; remove only the first match
		delete(drop, e.ID)
		actions = append(actions, FixAction{
			Action:         fmt.Sprintf("Removed entry %s (%s)", e.ID, c.Type),
			EntryID:        e.ID,
			SourceConflict: c,
		})
	}
	snap.HabitEntries = kept
	return actions
}
