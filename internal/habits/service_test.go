package habits

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/julianstephens/habitual/internal/analytics"
	"github.com/julianstephens/habitual/internal/backup"
	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/queue"
	"github.com/julianstephens/habitual/internal/storage"
)

var testNow = func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }

// failingBackend passes reads through and fails writes while fail is set
type failingBackend struct {
	storage.Backend
	mu   sync.Mutex
	fail bool
}

func (b *failingBackend) setFail(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = v
}

func (b *failingBackend) Write(ctx context.Context, data []byte) error {
	b.mu.Lock()
	fail := b.fail
	b.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return b.Backend.Write(ctx, data)
}

// recordingNotifier captures toggles
type recordingNotifier struct {
	mu      sync.Mutex
	entries []models.HabitEntry
	err     error
}

func (n *recordingNotifier) EntryToggled(_ context.Context, _ models.HabitWithCategory, entry models.HabitEntry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, entry)
	return n.err
}

type fixture struct {
	svc      *Service
	store    *storage.SnapshotStore
	backend  *failingBackend
	rotator  *backup.Rotator
	notifier *recordingNotifier
}

func setupService(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	backend := &failingBackend{Backend: storage.NewFileBackend(filepath.Join(dir, constants.SnapshotFileName))}
	store := storage.NewSnapshotStore(backend, storage.Options{UserID: "u1", Now: testNow})
	rotator := backup.NewRotator(filepath.Join(dir, constants.BackupDirName), store, 0)
	store.OnWrite(rotator.Hook())
	t.Cleanup(func() {
		rotator.Wait()
		store.Close()
	})

	engine := analytics.NewEngine(analytics.Options{Location: time.UTC, Now: testNow})
	notifier := &recordingNotifier{}
	svc := NewService(store, queue.New(store), engine, rotator, Options{
		UserID:   "u1",
		Location: time.UTC,
		Now:      testNow,
		Notifier: notifier,
	})
	return &fixture{svc: svc, store: store, backend: backend, rotator: rotator, notifier: notifier}
}

func (f *fixture) pending(t *testing.T) []models.PendingOperation {
	t.Helper()
	ops, err := f.svc.PendingOperations(context.Background())
	if err != nil {
		t.Fatalf("PendingOperations failed: %v", err)
	}
	return ops
}

func TestCreateHabit(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	h, err := f.svc.CreateHabit(ctx, HabitInput{Name: "  Meditate ", CategoryID: "mindfulness"})
	if err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	if h.ID == "" || h.Name != "Meditate" || h.UserID != "u1" {
		t.Errorf("unexpected habit %+v", h.Habit)
	}
	if h.Frequency != models.FrequencyDaily || !h.IsActive {
		t.Errorf("expected active daily habit, got %s active=%v", h.Frequency, h.IsActive)
	}
	if h.Category.Name != "Mindfulness" {
		t.Errorf("expected category Mindfulness, got %q", h.Category.Name)
	}

	got, err := f.svc.Habit(ctx, h.ID)
	if err != nil {
		t.Fatalf("Habit failed: %v", err)
	}
	if got.Name != "Meditate" {
		t.Errorf("expected persisted habit, got %+v", got.Habit)
	}

	ops := f.pending(t)
	if len(ops) != 1 || ops[0].Type != models.OperationCreate || ops[0].Table != models.TableHabits || ops[0].TargetID() != h.ID {
		t.Errorf("expected one create op for the habit, got %+v", ops)
	}
}

func TestCreateHabitRejectsInvalidInput(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	reminder := "25:00"

	tests := []struct {
		name string
		in   HabitInput
		want error
	}{
		{"blank name", HabitInput{Name: "  "}, ErrInvalidInput},
		{"unknown frequency", HabitInput{Name: "Run", Frequency: "hourly"}, ErrInvalidInput},
		{"bad reminder", HabitInput{Name: "Run", ReminderTime: &reminder}, ErrInvalidInput},
		{"unknown category", HabitInput{Name: "Run", CategoryID: "nope"}, ErrCategoryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateHabit(ctx, tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			var se *StoreError
			if errors.As(err, &se) {
				t.Errorf("validation failure reported as StoreError: %v", err)
			}
		})
	}

	if ops := f.pending(t); len(ops) != 0 {
		t.Errorf("rejected input was queued: %+v", ops)
	}
}

func TestUpdateHabit(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	h, err := f.svc.CreateHabit(ctx, HabitInput{Name: "Run"})
	if err != nil {
		t.Fatal(err)
	}

	name := "Run 5k"
	active := false
	weekly := models.FrequencyWeekly
	updated, err := f.svc.UpdateHabit(ctx, h.ID, HabitUpdate{Name: &name, IsActive: &active, Frequency: &weekly})
	if err != nil {
		t.Fatalf("UpdateHabit failed: %v", err)
	}
	if updated.Name != "Run 5k" || updated.IsActive || updated.Frequency != models.FrequencyWeekly {
		t.Errorf("update not applied: %+v", updated.Habit)
	}
	if updated.CreatedAt != h.CreatedAt {
		t.Error("update changed created_at")
	}

	if _, err := f.svc.UpdateHabit(ctx, "missing", HabitUpdate{Name: &name}); !errors.Is(err, ErrHabitNotFound) {
		t.Errorf("expected ErrHabitNotFound, got %v", err)
	}
	blank := ""
	if _, err := f.svc.UpdateHabit(ctx, h.ID, HabitUpdate{Name: &blank}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	if ops := f.pending(t); len(ops) != 2 || ops[1].Type != models.OperationUpdate {
		t.Errorf("expected create then update, got %+v", ops)
	}
}

func TestToggleCompletionTwiceRestoresState(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	h, err := f.svc.CreateHabit(ctx, HabitInput{Name: "Stretch"})
	if err != nil {
		t.Fatal(err)
	}

	first, err := f.svc.ToggleCompletion(ctx, h.ID, "2024-03-10")
	if err != nil {
		t.Fatalf("first toggle failed: %v", err)
	}
	if !first.IsCompleted || first.CompletedAt == nil {
		t.Fatalf("expected completed entry, got %+v", first)
	}

	second, err := f.svc.ToggleCompletion(ctx, h.ID, "2024-03-10")
	if err != nil {
		t.Fatalf("second toggle failed: %v", err)
	}
	if second.ID != first.ID {
		t.Error("second toggle created a new entry")
	}
	if second.IsCompleted || second.CompletedAt != nil {
		t.Errorf("expected entry toggled off, got %+v", second)
	}

	entries, err := f.svc.Entries(ctx, h.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected a single entry for the day, got %d", len(entries))
	}

	ops := f.pending(t)
	if len(ops) != 3 {
		t.Fatalf("expected 3 queued ops, got %d", len(ops))
	}
	if ops[1].Type != models.OperationCreate || ops[2].Type != models.OperationUpdate || ops[1].Table != models.TableHabitEntries {
		t.Errorf("unexpected entry ops %+v", ops[1:])
	}

	if len(f.notifier.entries) != 2 {
		t.Errorf("expected 2 notifications, got %d", len(f.notifier.entries))
	}
}

func TestToggleCompletionDefaultsToToday(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	entry, err := f.svc.ToggleCompletion(ctx, "starter-read", "")
	if err != nil {
		t.Fatal(err)
	}
	if entry.EntryDate != "2024-03-10" {
		t.Errorf("expected today's date, got %s", entry.EntryDate)
	}

	if _, err := f.svc.ToggleCompletion(ctx, "starter-read", "03/10/2024"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.svc.ToggleCompletion(ctx, "missing", ""); !errors.Is(err, ErrHabitNotFound) {
		t.Errorf("expected ErrHabitNotFound, got %v", err)
	}
}

func TestToggleCompletionIgnoresNotifierFailure(t *testing.T) {
	f := setupService(t)
	f.notifier.err = errors.New("tray gone")

	entry, err := f.svc.ToggleCompletion(context.Background(), "starter-read", "")
	if err != nil {
		t.Fatalf("notifier failure leaked into toggle: %v", err)
	}
	if !entry.IsCompleted {
		t.Error("expected completed entry")
	}
}

func TestToggleCompletionInvalidatesStats(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	before, err := f.svc.Streak(ctx, "starter-read")
	if err != nil {
		t.Fatal(err)
	}
	if before.Current != 0 {
		t.Fatalf("expected no streak, got %d", before.Current)
	}

	if _, err := f.svc.ToggleCompletion(ctx, "starter-read", "2024-03-09"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ToggleCompletion(ctx, "starter-read", "2024-03-10"); err != nil {
		t.Fatal(err)
	}

	after, err := f.svc.Streak(ctx, "starter-read")
	if err != nil {
		t.Fatal(err)
	}
	if after.Current != 2 {
		t.Errorf("expected fresh streak 2, got %d", after.Current)
	}

	stats, err := f.svc.Stats(ctx, "starter-read")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalCompletions != 2 || !stats.LastSevenDays[6] {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestMutationsQueueInOrder(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	h, err := f.svc.CreateHabit(ctx, HabitInput{Name: "Journal"})
	if err != nil {
		t.Fatal(err)
	}
	cat, err := f.svc.CreateCategory(ctx, CategoryInput{Name: "Evening"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ToggleCompletion(ctx, h.ID, "2024-03-10"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SetEntryNotes(ctx, h.ID, "2024-03-10", "two pages"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.UpdateCategory(ctx, cat.ID, CategoryInput{Color: "#000000"}); err != nil {
		t.Fatal(err)
	}

	want := []struct {
		kind  models.OperationType
		table string
	}{
		{models.OperationCreate, models.TableHabits},
		{models.OperationCreate, models.TableCategories},
		{models.OperationCreate, models.TableHabitEntries},
		{models.OperationUpdate, models.TableHabitEntries},
		{models.OperationUpdate, models.TableCategories},
	}
	ops := f.pending(t)
	if len(ops) != len(want) {
		t.Fatalf("expected %d ops, got %d", len(want), len(ops))
	}
	for i, w := range want {
		if ops[i].Type != w.kind || ops[i].Table != w.table {
			t.Errorf("op %d: expected %s %s, got %s %s", i, w.kind, w.table, ops[i].Type, ops[i].Table)
		}
	}
}

func TestDeleteHabitRemovesEntries(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	for _, d := range []string{"2024-03-08", "2024-03-09"} {
		if _, err := f.svc.ToggleCompletion(ctx, "starter-read", d); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.svc.ToggleCompletion(ctx, "starter-drink-water", "2024-03-09"); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.DeleteHabit(ctx, "starter-read"); err != nil {
		t.Fatalf("DeleteHabit failed: %v", err)
	}

	if _, err := f.svc.Habit(ctx, "starter-read"); !errors.Is(err, ErrHabitNotFound) {
		t.Errorf("expected habit gone, got %v", err)
	}
	entries, err := f.svc.EntriesForDate(ctx, "2024-03-09")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].HabitID != "starter-drink-water" {
		t.Errorf("expected only the other habit's entry, got %+v", entries)
	}

	ops := f.pending(t)
	last := ops[len(ops)-1]
	if last.Type != models.OperationDelete || last.Table != models.TableHabits || last.TargetID() != "starter-read" {
		t.Errorf("expected a habit delete op, got %+v", last)
	}
	if len(ops) != 4 {
		t.Errorf("expected no entry delete ops, got %d ops", len(ops))
	}

	if err := f.svc.DeleteHabit(ctx, "starter-read"); !errors.Is(err, ErrHabitNotFound) {
		t.Errorf("expected ErrHabitNotFound on second delete, got %v", err)
	}
}

func TestDeleteCategoryFallsBackToDefault(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	if err := f.svc.DeleteCategory(ctx, "learning"); err != nil {
		t.Fatalf("DeleteCategory failed: %v", err)
	}

	h, err := f.svc.Habit(ctx, "starter-read")
	if err != nil {
		t.Fatal(err)
	}
	if h.CategoryID != "learning" {
		t.Errorf("expected habit to keep its category reference, got %q", h.CategoryID)
	}
	if h.Category.ID != constants.UncategorizedCategory {
		t.Errorf("expected default category, got %+v", h.Category)
	}

	if err := f.svc.DeleteCategory(ctx, "learning"); !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestDeletedDefaultCategoryStaysDeleted(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	if err := f.svc.DeleteCategory(ctx, "learning"); err != nil {
		t.Fatalf("DeleteCategory failed: %v", err)
	}

	// Reload runs the default-category migration again, as a new process would
	snap, err := f.store.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if _, ok := snap.FindCategory("learning"); ok {
		t.Error("deleted default category was injected again on load")
	}
	if _, ok := snap.FindCategory("health"); !ok {
		t.Error("other default categories should be untouched")
	}

	ops := f.pending(t)
	last := ops[len(ops)-1]
	if last.Type != models.OperationDelete || last.Table != models.TableCategories || last.TargetID() != "learning" {
		t.Errorf("expected queued category delete, got %+v", last)
	}
}

func TestUpdateCategoryRefreshesHabits(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	if _, err := f.svc.UpdateCategory(ctx, "learning", CategoryInput{Name: "Study"}); err != nil {
		t.Fatal(err)
	}
	h, err := f.svc.Habit(ctx, "starter-read")
	if err != nil {
		t.Fatal(err)
	}
	if h.Category.Name != "Study" {
		t.Errorf("expected embedded category renamed, got %q", h.Category.Name)
	}
}

func TestSetEntryNotes(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	entry, err := f.svc.SetEntryNotes(ctx, "starter-read", "2024-03-10", " chapter 3 ")
	if err != nil {
		t.Fatal(err)
	}
	if entry.IsCompleted || entry.Notes == nil || *entry.Notes != "chapter 3" {
		t.Errorf("unexpected entry %+v", entry)
	}

	cleared, err := f.svc.SetEntryNotes(ctx, "starter-read", "2024-03-10", "")
	if err != nil {
		t.Fatal(err)
	}
	if cleared.ID != entry.ID || cleared.Notes != nil {
		t.Errorf("expected notes cleared on the same entry, got %+v", cleared)
	}
}

func TestStoreErrorWrapsWriteFailure(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	if _, err := f.svc.Habits(ctx); err != nil {
		t.Fatal(err)
	}
	f.backend.setFail(true)

	_, err := f.svc.ToggleCompletion(ctx, "starter-read", "")
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError, got %T %v", err, err)
	}
	if se.Op != "toggle completion" {
		t.Errorf("unexpected op %q", se.Op)
	}
	if len(f.notifier.entries) != 0 {
		t.Error("notifier called for a failed write")
	}

	f.backend.setFail(false)
	entries, err := f.svc.Entries(ctx, "starter-read")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("failed write left an entry behind: %+v", entries)
	}
	if ops := f.pending(t); len(ops) != 0 {
		t.Errorf("failed write left a queued op: %+v", ops)
	}
}

func TestConcurrentTogglesKeepEveryOperation(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	const n = 10
	ids := make([]string, n)
	for i := range ids {
		h, err := f.svc.CreateHabit(ctx, HabitInput{Name: fmt.Sprintf("habit %d", i)})
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = h.ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := f.svc.ToggleCompletion(ctx, id, "2024-03-10"); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("toggle failed: %v", err)
	}

	entries, err := f.svc.EntriesForDate(ctx, "2024-03-10")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != n {
		t.Errorf("expected %d entries, got %d", n, len(entries))
	}
	if ops := f.pending(t); len(ops) != 2*n {
		t.Errorf("expected %d queued ops, got %d", 2*n, len(ops))
	}
}

func TestFindHabit(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	h, err := f.svc.FindHabit(ctx, "read")
	if err != nil || h.ID != "starter-read" {
		t.Errorf("expected name lookup to find starter-read, got %v %v", h.ID, err)
	}
	if _, err := f.svc.FindHabit(ctx, "starter-drink-water"); err != nil {
		t.Errorf("expected id lookup to succeed, got %v", err)
	}

	if _, err := f.svc.CreateHabit(ctx, HabitInput{Name: "Read"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.FindHabit(ctx, "Read"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ambiguous name error, got %v", err)
	}
}

func TestOverviewSkipsInactive(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	inactive := false
	if _, err := f.svc.UpdateHabit(ctx, "starter-read", HabitUpdate{IsActive: &inactive}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ToggleCompletion(ctx, "starter-drink-water", ""); err != nil {
		t.Fatal(err)
	}

	overview, err := f.svc.Overview(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(overview) != 1 || overview[0].Habit.ID != "starter-drink-water" {
		t.Fatalf("unexpected overview %+v", overview)
	}
	if overview[0].Stats.TotalCompletions != 1 {
		t.Errorf("expected 1 completion, got %d", overview[0].Stats.TotalCompletions)
	}
}

func TestBackupAndRestore(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	if _, err := f.svc.ToggleCompletion(ctx, "starter-read", "2024-03-10"); err != nil {
		t.Fatal(err)
	}
	rec, err := f.svc.CreateBackup(ctx)
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	if rec.Stats.TotalEntries != 1 {
		t.Errorf("expected 1 entry in backup, got %d", rec.Stats.TotalEntries)
	}

	if err := f.svc.DeleteHabit(ctx, "starter-read"); err != nil {
		t.Fatal(err)
	}
	// Warm the cache so restore has something to drop
	if _, err := f.svc.Stats(ctx, "starter-drink-water"); err != nil {
		t.Fatal(err)
	}

	if !f.svc.RestoreBackup(ctx, rec.ID) {
		t.Fatal("RestoreBackup reported failure")
	}
	streak, err := f.svc.Streak(ctx, "starter-read")
	if err != nil {
		t.Fatalf("restored habit missing: %v", err)
	}
	if streak.Current != 1 {
		t.Errorf("expected restored streak 1, got %d", streak.Current)
	}

	if f.svc.RestoreBackup(ctx, "no-such-backup") {
		t.Error("expected restore of unknown backup to fail")
	}

	f.rotator.Wait()
	records, err := f.svc.Backups()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) == 0 || len(records) > constants.MaxBackups {
		t.Errorf("expected between 1 and %d backups, got %d", constants.MaxBackups, len(records))
	}
}

func TestValidateFix(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	err := f.store.Update(ctx, func(snap *models.Snapshot) error {
		snap.HabitEntries = append(snap.HabitEntries,
			models.HabitEntry{ID: "orphan", HabitID: "gone", EntryDate: "2024-03-10", IsCompleted: true},
			models.HabitEntry{ID: "ok", HabitID: "starter-read", EntryDate: "2024-03-10", IsCompleted: true},
		)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	result, actions, err := f.svc.Validate(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if !result.HasConflicts() || actions != nil {
		t.Fatalf("expected a conflict and no fixes, got %+v %+v", result, actions)
	}

	_, actions, err = f.svc.Validate(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 || actions[0].EntryID != "orphan" {
		t.Errorf("expected the orphan removed, got %+v", actions)
	}

	// The removal is queued so the remote drops the entry too
	ops := f.pending(t)
	if len(ops) != 1 {
		t.Fatalf("expected 1 queued operation, got %d", len(ops))
	}
	if ops[0].Type != models.OperationDelete || ops[0].Table != models.TableHabitEntries || ops[0].TargetID() != "orphan" {
		t.Errorf("expected queued entry delete, got %+v", ops[0])
	}

	entries, err := f.svc.EntriesForDate(ctx, "2024-03-10")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != "ok" {
		t.Errorf("expected only the valid entry to remain, got %+v", entries)
	}
}
