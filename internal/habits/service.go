package habits

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitual/internal/analytics"
	"github.com/julianstephens/habitual/internal/backup"
	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/notify"
	"github.com/julianstephens/habitual/internal/queue"
	"github.com/julianstephens/habitual/internal/storage"
	"github.com/julianstephens/habitual/internal/utils"
	"github.com/julianstephens/habitual/internal/validation"
)

var (
	ErrHabitNotFound    = errors.New("habit not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrInvalidInput     = errors.New("invalid input")
)

// StoreError reports a failure to read or persist local data. Lookup and
// validation failures are returned as plain errors instead.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Options configures a Service
type Options struct {
	UserID   string
	Location *time.Location
	Now      func() time.Time
	Notifier notify.Notifier
}

// Service is the single entry point for reading and changing habit data.
// Every mutation persists the change and its pending operation in one
// snapshot write, then invalidates the affected analytics.
type Service struct {
	store     *storage.SnapshotStore
	queue     *queue.Queue
	analytics *analytics.Engine
	backups   *backup.Rotator
	notifier  notify.Notifier

	userID string
	loc    *time.Location
	now    func() time.Time
}

func NewService(store *storage.SnapshotStore, q *queue.Queue, engine *analytics.Engine, backups *backup.Rotator, opts Options) *Service {
	if opts.UserID == "" {
		opts.UserID = constants.LocalUserID
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.LogNotifier{}
	}
	return &Service{
		store:     store,
		queue:     q,
		analytics: engine,
		backups:   backups,
		notifier:  opts.Notifier,
		userID:    opts.UserID,
		loc:       opts.Location,
		now:       opts.Now,
	}
}

// UserID returns the user every record is created for.
func (s *Service) UserID() string {
	return s.userID
}

// Today returns the current local date.
func (s *Service) Today() string {
	return utils.Today(s.now(), s.loc)
}

// update runs fn inside a snapshot write and wraps storage failures.
func (s *Service) update(ctx context.Context, op string, fn func(*models.Snapshot) error) error {
	err := s.store.Update(ctx, fn)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrHabitNotFound) || errors.Is(err, ErrCategoryNotFound) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func (s *Service) snapshot(ctx context.Context, op string) (models.Snapshot, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return models.Snapshot{}, &StoreError{Op: op, Err: err}
	}
	return snap, nil
}

// HabitInput holds the user-settable fields of a new habit
type HabitInput struct {
	Name         string
	CategoryID   string
	Description  *string
	Frequency    models.Frequency
	ReminderTime *string
	Color        string
	Icon         string
	Stacking     *string
	Intention    *string
}

// HabitUpdate is a partial update; nil fields are left unchanged
type HabitUpdate struct {
	Name         *string
	CategoryID   *string
	Description  *string
	Frequency    *models.Frequency
	ReminderTime *string
	IsActive     *bool
	Color        *string
	Icon         *string
	Stacking     *string
	Intention    *string
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

func checkCategory(snap *models.Snapshot, id string) error {
	if id == constants.UncategorizedCategory {
		return nil
	}
	if _, ok := snap.FindCategory(id); !ok {
		return fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
	}
	return nil
}

// CreateHabit adds a habit. An empty category id files it under the
// default category.
func (s *Service) CreateHabit(ctx context.Context, in HabitInput) (models.HabitWithCategory, error) {
	now := s.now().UTC()
	h := models.Habit{
		ID:           uuid.New().String(),
		UserID:       s.userID,
		CategoryID:   in.CategoryID,
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		Frequency:    in.Frequency,
		ReminderTime: in.ReminderTime,
		IsActive:     true,
		Color:        in.Color,
		Icon:         in.Icon,
		Stacking:     in.Stacking,
		Intention:    in.Intention,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if h.CategoryID == "" {
		h.CategoryID = constants.UncategorizedCategory
	}
	if h.Frequency == "" {
		h.Frequency = models.FrequencyDaily
	}
	if err := validation.ValidateHabit(h); err != nil {
		return models.HabitWithCategory{}, invalid(err)
	}

	var created models.HabitWithCategory
	err := s.update(ctx, "create habit", func(snap *models.Snapshot) error {
		if err := checkCategory(snap, h.CategoryID); err != nil {
			return err
		}
		created = snap.WithCategory(h)
		snap.Habits = append(snap.Habits, created)
		_, err := s.queue.Append(snap, models.OperationCreate, models.TableHabits, h)
		return err
	})
	if err != nil {
		return models.HabitWithCategory{}, err
	}

	logger.Info("Created habit", "id", h.ID, "name", h.Name)
	return created, nil
}

// UpdateHabit applies the non-nil fields of upd.
func (s *Service) UpdateHabit(ctx context.Context, id string, upd HabitUpdate) (models.HabitWithCategory, error) {
	var updated models.HabitWithCategory
	err := s.update(ctx, "update habit", func(snap *models.Snapshot) error {
		i := snap.HabitIndex(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrHabitNotFound, id)
		}

		h := snap.Habits[i].Habit
		if upd.Name != nil {
			h.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.CategoryID != nil {
			if err := checkCategory(snap, *upd.CategoryID); err != nil {
				return err
			}
			h.CategoryID = *upd.CategoryID
		}
		if upd.Description != nil {
			h.Description = upd.Description
		}
		if upd.Frequency != nil {
			h.Frequency = *upd.Frequency
		}
		if upd.ReminderTime != nil {
			h.ReminderTime = upd.ReminderTime
		}
		if upd.IsActive != nil {
			h.IsActive = *upd.IsActive
		}
		if upd.Color != nil {
			h.Color = *upd.Color
		}
		if upd.Icon != nil {
			h.Icon = *upd.Icon
		}
		if upd.Stacking != nil {
			h.Stacking = upd.Stacking
		}
		if upd.Intention != nil {
			h.Intention = upd.Intention
		}
		if err := validation.ValidateHabit(h); err != nil {
			return invalid(err)
		}
		h.UpdatedAt = s.now().UTC()

		updated = snap.WithCategory(h)
		snap.Habits[i] = updated
		_, err := s.queue.Append(snap, models.OperationUpdate, models.TableHabits, h)
		return err
	})
	if err != nil {
		return models.HabitWithCategory{}, err
	}

	s.analytics.Invalidate(id, s.userID)
	return updated, nil
}

// DeleteHabit removes the habit and its entries locally. Only the habit
// delete is queued; the remote removes its own entries.
func (s *Service) DeleteHabit(ctx context.Context, id string) error {
	err := s.update(ctx, "delete habit", func(snap *models.Snapshot) error {
		i := snap.HabitIndex(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrHabitNotFound, id)
		}
		snap.Habits = append(snap.Habits[:i], snap.Habits[i+1:]...)

		kept := snap.HabitEntries[:0]
		for _, e := range snap.HabitEntries {
			if e.HabitID != id {
				kept = append(kept, e)
			}
		}
		snap.HabitEntries = kept

		_, err := s.queue.Append(snap, models.OperationDelete, models.TableHabits, map[string]string{"id": id})
		return err
	})
	if err != nil {
		return err
	}

	s.analytics.Invalidate(id, s.userID)
	logger.Info("Deleted habit", "id", id)
	return nil
}

// ToggleCompletion flips the entry for (habitID, date), creating it as
// completed if none exists. date is YYYY-MM-DD; empty means today.
func (s *Service) ToggleCompletion(ctx context.Context, habitID, date string) (models.HabitEntry, error) {
	if date == "" {
		date = s.Today()
	}
	if !utils.ValidateDate(date) {
		return models.HabitEntry{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidInput, date)
	}

	var entry models.HabitEntry
	var habit models.HabitWithCategory
	err := s.update(ctx, "toggle completion", func(snap *models.Snapshot) error {
		hi := snap.HabitIndex(habitID)
		if hi < 0 {
			return fmt.Errorf("%w: %s", ErrHabitNotFound, habitID)
		}
		habit = snap.WithCategory(snap.Habits[hi].Habit)

		now := s.now().UTC()
		kind := models.OperationUpdate
		if i := snap.EntryIndex(habitID, date); i >= 0 {
			entry = snap.HabitEntries[i]
			entry.IsCompleted = !entry.IsCompleted
			if entry.IsCompleted {
				entry.CompletedAt = &now
			} else {
				entry.CompletedAt = nil
			}
			entry.UpdatedAt = now
			snap.HabitEntries[i] = entry
		} else {
			kind = models.OperationCreate
			entry = models.HabitEntry{
				ID:          uuid.New().String(),
				HabitID:     habitID,
				UserID:      s.userID,
				EntryDate:   date,
				IsCompleted: true,
				CompletedAt: &now,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			snap.HabitEntries = append(snap.HabitEntries, entry)
		}

		_, err := s.queue.Append(snap, kind, models.TableHabitEntries, entry)
		return err
	})
	if err != nil {
		return models.HabitEntry{}, err
	}

	s.analytics.Invalidate(habitID, s.userID)
	if err := s.notifier.EntryToggled(ctx, habit, entry); err != nil {
		logger.Warn("Notifier failed", "habit", habitID, "error", err)
	}
	return entry, nil
}

// SetEntryNotes attaches notes to the entry for (habitID, date), creating
// an uncompleted entry if needed. Empty notes clear them.
func (s *Service) SetEntryNotes(ctx context.Context, habitID, date, notes string) (models.HabitEntry, error) {
	if date == "" {
		date = s.Today()
	}
	if !utils.ValidateDate(date) {
		return models.HabitEntry{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidInput, date)
	}

	var entry models.HabitEntry
	err := s.update(ctx, "set notes", func(snap *models.Snapshot) error {
		if snap.HabitIndex(habitID) < 0 {
			return fmt.Errorf("%w: %s", ErrHabitNotFound, habitID)
		}

		now := s.now().UTC()
		var value *string
		if notes = strings.TrimSpace(notes); notes != "" {
			value = &notes
		}

		kind := models.OperationUpdate
		if i := snap.EntryIndex(habitID, date); i >= 0 {
			entry = snap.HabitEntries[i]
			entry.Notes = value
			entry.UpdatedAt = now
			snap.HabitEntries[i] = entry
		} else {
			kind = models.OperationCreate
			entry = models.HabitEntry{
				ID:        uuid.New().String(),
				HabitID:   habitID,
				UserID:    s.userID,
				EntryDate: date,
				Notes:     value,
				CreatedAt: now,
				UpdatedAt: now,
			}
			snap.HabitEntries = append(snap.HabitEntries, entry)
		}

		_, err := s.queue.Append(snap, kind, models.TableHabitEntries, entry)
		return err
	})
	if err != nil {
		return models.HabitEntry{}, err
	}
	return entry, nil
}

// CategoryInput holds the user-settable fields of a category
type CategoryInput struct {
	Name  string
	Color string
	Icon  string
}

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (models.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Category{}, fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}

	now := s.now().UTC()
	c := models.Category{
		ID:        uuid.New().String(),
		UserID:    s.userID,
		Name:      name,
		Color:     in.Color,
		Icon:      in.Icon,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.update(ctx, "create category", func(snap *models.Snapshot) error {
		snap.Categories = append(snap.Categories, c)
		_, err := s.queue.Append(snap, models.OperationCreate, models.TableCategories, c)
		return err
	})
	if err != nil {
		return models.Category{}, err
	}
	return c, nil
}

// UpdateCategory replaces the name, color and icon of a category. Empty
// fields keep their current value.
func (s *Service) UpdateCategory(ctx context.Context, id string, in CategoryInput) (models.Category, error) {
	var updated models.Category
	err := s.update(ctx, "update category", func(snap *models.Snapshot) error {
		i := -1
		for j, c := range snap.Categories {
			if c.ID == id {
				i = j
				break
			}
		}
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
		}

		c := snap.Categories[i]
		if name := strings.TrimSpace(in.Name); name != "" {
			c.Name = name
		}
		if in.Color != "" {
			c.Color = in.Color
		}
		if in.Icon != "" {
			c.Icon = in.Icon
		}
		c.UpdatedAt = s.now().UTC()
		snap.Categories[i] = c
		snap.RefreshCategories()
		updated = c

		_, err := s.queue.Append(snap, models.OperationUpdate, models.TableCategories, c)
		return err
	})
	if err != nil {
		return models.Category{}, err
	}
	return updated, nil
}

// DeleteCategory removes a category. Habits that reference it keep the
// reference and read back with the default category.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	return s.update(ctx, "delete category", func(snap *models.Snapshot) error {
		i := -1
		for j, c := range snap.Categories {
			if c.ID == id {
				i = j
				break
			}
		}
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
		}
		snap.Categories = append(snap.Categories[:i], snap.Categories[i+1:]...)
		snap.RefreshCategories()

		_, err := s.queue.Append(snap, models.OperationDelete, models.TableCategories, map[string]string{"id": id})
		return err
	})
}

// Habits returns every habit with its category resolved, in creation order.
func (s *Service) Habits(ctx context.Context) ([]models.HabitWithCategory, error) {
	snap, err := s.snapshot(ctx, "list habits")
	if err != nil {
		return nil, err
	}
	out := make([]models.HabitWithCategory, 0, len(snap.Habits))
	for _, h := range snap.Habits {
		out = append(out, snap.WithCategory(h.Habit))
	}
	return out, nil
}

func (s *Service) Habit(ctx context.Context, id string) (models.HabitWithCategory, error) {
	snap, err := s.snapshot(ctx, "get habit")
	if err != nil {
		return models.HabitWithCategory{}, err
	}
	i := snap.HabitIndex(id)
	if i < 0 {
		return models.HabitWithCategory{}, fmt.Errorf("%w: %s", ErrHabitNotFound, id)
	}
	return snap.WithCategory(snap.Habits[i].Habit), nil
}

// FindHabit resolves a habit by id, or by case-insensitive name when
// exactly one habit has that name.
func (s *Service) FindHabit(ctx context.Context, ref string) (models.HabitWithCategory, error) {
	habits, err := s.Habits(ctx)
	if err != nil {
		return models.HabitWithCategory{}, err
	}

	var matches []models.HabitWithCategory
	for _, h := range habits {
		if h.ID == ref {
			return h, nil
		}
		if strings.EqualFold(h.Name, ref) {
			matches = append(matches, h)
		}
	}
	switch len(matches) {
	case 0:
		return models.HabitWithCategory{}, fmt.Errorf("%w: %s", ErrHabitNotFound, ref)
	case 1:
		return matches[0], nil
	}
	return models.HabitWithCategory{}, fmt.Errorf("%w: %d habits are named %q, use the id", ErrInvalidInput, len(matches), ref)
}

func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	snap, err := s.snapshot(ctx, "list categories")
	if err != nil {
		return nil, err
	}
	return snap.Categories, nil
}

// Entries returns a habit's entries ordered by date.
func (s *Service) Entries(ctx context.Context, habitID string) ([]models.HabitEntry, error) {
	snap, err := s.snapshot(ctx, "list entries")
	if err != nil {
		return nil, err
	}
	if snap.HabitIndex(habitID) < 0 {
		return nil, fmt.Errorf("%w: %s", ErrHabitNotFound, habitID)
	}
	entries := snap.EntriesForHabit(habitID)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].EntryDate < entries[j].EntryDate
	})
	return entries, nil
}

// EntriesForDate returns every entry recorded on date.
func (s *Service) EntriesForDate(ctx context.Context, date string) ([]models.HabitEntry, error) {
	if !utils.ValidateDate(date) {
		return nil, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidInput, date)
	}
	snap, err := s.snapshot(ctx, "list entries")
	if err != nil {
		return nil, err
	}
	var entries []models.HabitEntry
	for _, e := range snap.HabitEntries {
		if e.EntryDate == date {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *Service) Streak(ctx context.Context, habitID string) (models.HabitStreak, error) {
	entries, err := s.Entries(ctx, habitID)
	if err != nil {
		return models.HabitStreak{}, err
	}
	return s.analytics.Streak(habitID, s.userID, entries), nil
}

func (s *Service) Stats(ctx context.Context, habitID string) (models.HabitStats, error) {
	entries, err := s.Entries(ctx, habitID)
	if err != nil {
		return models.HabitStats{}, err
	}
	return s.analytics.Stats(habitID, s.userID, entries), nil
}

// HabitOverview pairs a habit with its statistics
type HabitOverview struct {
	Habit models.HabitWithCategory
	Stats models.HabitStats
}

// Overview returns every active habit with its statistics from a single
// snapshot read.
func (s *Service) Overview(ctx context.Context) ([]HabitOverview, error) {
	snap, err := s.snapshot(ctx, "overview")
	if err != nil {
		return nil, err
	}

	var out []HabitOverview
	for _, h := range snap.Habits {
		if !h.IsActive {
			continue
		}
		out = append(out, HabitOverview{
			Habit: snap.WithCategory(h.Habit),
			Stats: s.analytics.Stats(h.ID, s.userID, snap.EntriesForHabit(h.ID)),
		})
	}
	return out, nil
}

func (s *Service) PendingOperations(ctx context.Context) ([]models.PendingOperation, error) {
	ops, err := s.queue.Drain(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list pending operations", Err: err}
	}
	return ops, nil
}

func (s *Service) ClearPending(ctx context.Context) error {
	if err := s.queue.Clear(ctx); err != nil {
		return &StoreError{Op: "clear pending operations", Err: err}
	}
	return nil
}

func (s *Service) Backups() ([]models.BackupRecord, error) {
	records, err := s.backups.ListBackups()
	if err != nil {
		return nil, &StoreError{Op: "list backups", Err: err}
	}
	return records, nil
}

// CreateBackup backs up the current snapshot synchronously.
func (s *Service) CreateBackup(ctx context.Context) (models.BackupRecord, error) {
	snap, err := s.snapshot(ctx, "create backup")
	if err != nil {
		return models.BackupRecord{}, err
	}
	rec, err := s.backups.CreateBackup(snap)
	if err != nil {
		return models.BackupRecord{}, &StoreError{Op: "create backup", Err: err}
	}
	return rec, nil
}

// RestoreBackup replaces local data with a backup and drops every cached
// statistic. It reports false if the backup was rejected.
func (s *Service) RestoreBackup(ctx context.Context, id string) bool {
	if !s.backups.Restore(ctx, id) {
		return false
	}
	s.analytics.InvalidateAll()
	return true
}

// Reload re-reads local data after an outside change, e.g. another
// process writing the snapshot, and drops cached statistics if it changed.
func (s *Service) Reload(ctx context.Context) (bool, error) {
	changed, err := s.store.Refresh(ctx)
	if err != nil {
		return false, &StoreError{Op: "reload", Err: err}
	}
	if changed {
		s.analytics.InvalidateAll()
	}
	return changed, nil
}

// Validate checks local data for inconsistencies and, when fix is set,
// removes the entries that cannot be valid.
func (s *Service) Validate(ctx context.Context, fix bool) (validation.ValidationResult, []validation.FixAction, error) {
	v := validation.New()
	snap, err := s.snapshot(ctx, "validate")
	if err != nil {
		return validation.ValidationResult{}, nil, err
	}
	result := v.ValidateSnapshot(snap)
	if !fix || !result.HasConflicts() {
		return result, nil, nil
	}

	var actions []validation.FixAction
	err = s.update(ctx, "fix", func(snap *models.Snapshot) error {
		actions = v.Fix(snap, v.ValidateSnapshot(*snap))
		for _, a := range actions {
			if _, err := s.queue.Append(snap, models.OperationDelete, models.TableHabitEntries, map[string]string{"id": a.EntryID}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return result, nil, err
	}
	if len(actions) > 0 {
		s.analytics.InvalidateAll()
	}
	return result, actions, nil
}
