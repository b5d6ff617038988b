package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/storage"
)

// Store is the part of the snapshot store a restore writes through
type Store interface {
	Update(ctx context.Context, fn func(*models.Snapshot) error) error
}

// File is the on-disk backup document
type File struct {
	Timestamp time.Time          `json:"timestamp"`
	Version   string             `json:"version"`
	Data      models.Snapshot    `json:"data"`
	Stats     models.BackupStats `json:"stats"`
}

// header is File without the snapshot, so listing skips decoding data
type header struct {
	Timestamp time.Time          `json:"timestamp"`
	Version   string             `json:"version"`
	Stats     models.BackupStats `json:"stats"`
}

// Rotator writes timestamped snapshot copies and keeps the newest Retention
type Rotator struct {
	dir       string
	store     Store
	retention int
	now       func() time.Time

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewRotator creates a rotator writing into dir. A retention below one
// falls back to constants.MaxBackups.
func NewRotator(dir string, store Store, retention int) *Rotator {
	if retention < 1 {
		retention = constants.MaxBackups
	}
	return &Rotator{
		dir:       dir,
		store:     store,
		retention: retention,
		now:       time.Now,
	}
}

// Dir returns the backup directory path
func (r *Rotator) Dir() string {
	return r.dir
}

// Retention returns how many backups are kept
func (r *Rotator) Retention() int {
	return r.retention
}

// CreateBackup writes snap to a new backup file and prunes old ones.
// A pruning failure is logged and does not fail the backup.
func (r *Rotator) CreateBackup(snap models.Snapshot) (models.BackupRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.writeLocked(snap)
	if err != nil {
		return models.BackupRecord{}, err
	}

	if err := r.pruneLocked(); err != nil {
		logger.Warn("Failed to rotate old backups", "error", err)
	}
	return rec, nil
}

func (r *Rotator) writeLocked(snap models.Snapshot) (models.BackupRecord, error) {
	if err := os.MkdirAll(r.dir, 0700); err != nil {
		return models.BackupRecord{}, fmt.Errorf("failed to create backup directory: %w", err)
	}

	// Nanosecond names rarely collide; when they do, step forward until free
	ts := r.now().UTC()
	path := r.pathFor(ts)
	for {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		ts = ts.Add(time.Nanosecond)
		path = r.pathFor(ts)
	}

	snap.Normalize()
	doc := File{
		Timestamp: ts,
		Version:   constants.BackupVersion,
		Data:      snap,
		Stats:     models.StatsOf(snap),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return models.BackupRecord{}, fmt.Errorf("failed to serialize backup: %w", err)
	}

	if err := storage.WriteFileAtomic(path, data); err != nil {
		return models.BackupRecord{}, fmt.Errorf("failed to write backup: %w", err)
	}

	logger.Debug("Created backup", "path", path, "habits", doc.Stats.TotalHabits)
	return models.BackupRecord{
		ID:        idFor(ts),
		Path:      path,
		Timestamp: ts,
		Version:   doc.Version,
		Size:      int64(len(data)),
		Stats:     doc.Stats,
	}, nil
}

// Hook returns a snapshot write hook that backs up each persisted snapshot
// on its own goroutine. Failures are only logged.
func (r *Rotator) Hook() storage.WriteHook {
	return func(snap models.Snapshot) {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if _, err := r.CreateBackup(snap); err != nil {
				logger.Error("Background backup failed", "error", err)
			}
		}()
	}
}

// Wait blocks until every backup started by Hook has finished.
func (r *Rotator) Wait() {
	r.wg.Wait()
}

// ListBackups returns all backups, newest first. Files that are not
// backups, or whose header cannot be read, are skipped.
func (r *Rotator) ListBackups() ([]models.BackupRecord, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.BackupRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	records := []models.BackupRecord{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := parseName(entry.Name())
		if !ok {
			continue
		}

		rec, err := r.readRecord(id)
		if err != nil {
			logger.Warn("Skipping unreadable backup", "file", entry.Name(), "error", err)
			continue
		}
		records = append(records, rec)
	}

	// The id is the timestamp in a lexically sortable layout
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID > records[j].ID
	})
	return records, nil
}

func (r *Rotator) readRecord(id string) (models.BackupRecord, error) {
	path := filepath.Join(r.dir, constants.BackupFilePrefix+id+constants.BackupFileSuffix)
	data, err := os.ReadFile(path)
	if err != nil {
		return models.BackupRecord{}, err
	}

	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return models.BackupRecord{}, err
	}
	return models.BackupRecord{
		ID:        id,
		Path:      path,
		Timestamp: h.Timestamp,
		Version:   h.Version,
		Size:      int64(len(data)),
		Stats:     h.Stats,
	}, nil
}

func (r *Rotator) pruneLocked() error {
	backups, err := r.ListBackups()
	if err != nil {
		return err
	}
	if len(backups) <= r.retention {
		return nil
	}

	for _, b := range backups[r.retention:] {
		if err := os.Remove(b.Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", filepath.Base(b.Path), err)
		}
		logger.Debug("Removed old backup", "path", b.Path)
	}
	return nil
}

// Restore replaces habits, categories and entries with the contents of the
// backup. The pending-operation queue of the live snapshot is kept. It
// returns false, leaving live data untouched, if the backup is missing,
// unparsable or incomplete.
func (r *Rotator) Restore(ctx context.Context, id string) bool {
	doc, err := r.Load(id)
	if err != nil {
		logger.Error("Backup restore rejected", "id", id, "error", err)
		return false
	}

	err = r.store.Update(ctx, func(snap *models.Snapshot) error {
		snap.Habits = doc.Data.Habits
		snap.Categories = doc.Data.Categories
		snap.HabitEntries = doc.Data.HabitEntries
		if doc.Data.AppliedDefaults != nil {
			snap.AppliedDefaults = doc.Data.AppliedDefaults
		}
		snap.RefreshCategories()
		return nil
	})
	if err != nil {
		logger.Error("Backup restore failed", "id", id, "error", err)
		return false
	}

	logger.Info("Restored backup", "id", id, "habits", len(doc.Data.Habits), "entries", len(doc.Data.HabitEntries))
	return true
}

// Load reads and validates a backup without applying it.
func (r *Rotator) Load(id string) (File, error) {
	id = strings.TrimSuffix(strings.TrimPrefix(id, constants.BackupFilePrefix), constants.BackupFileSuffix)
	if _, err := time.Parse(constants.BackupTimestampFormat, id); err != nil {
		return File{}, fmt.Errorf("invalid backup id %q", id)
	}

	path := filepath.Join(r.dir, constants.BackupFilePrefix+id+constants.BackupFileSuffix)
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read backup: %w", err)
	}
	return Parse(data)
}

// Parse decodes a backup document. The snapshot must carry habits,
// categories and habitEntries as arrays; empty arrays are fine.
func Parse(data []byte) (File, error) {
	var raw struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return File{}, fmt.Errorf("backup is not valid JSON: %w", err)
	}
	if raw.Data == nil {
		return File{}, fmt.Errorf("backup has no data")
	}
	for _, field := range []string{"habits", "categories", "habitEntries"} {
		value, ok := raw.Data[field]
		if !ok {
			return File{}, fmt.Errorf("backup data is missing %s", field)
		}
		if !bytes.HasPrefix(bytes.TrimSpace(value), []byte("[")) {
			return File{}, fmt.Errorf("backup data field %s is not an array", field)
		}
	}

	var doc File
	if err := json.Unmarshal(data, &doc); err != nil {
		return File{}, fmt.Errorf("backup data is malformed: %w", err)
	}
	doc.Data.Normalize()
	return doc, nil
}

func (r *Rotator) pathFor(ts time.Time) string {
	return filepath.Join(r.dir, constants.BackupFilePrefix+idFor(ts)+constants.BackupFileSuffix)
}

func idFor(ts time.Time) string {
	return ts.UTC().Format(constants.BackupTimestampFormat)
}

// parseName extracts the id from a backup file name.
func parseName(name string) (string, bool) {
	if !strings.HasPrefix(name, constants.BackupFilePrefix) || !strings.HasSuffix(name, constants.BackupFileSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, constants.BackupFilePrefix), constants.BackupFileSuffix)
	if _, err := time.Parse(constants.BackupTimestampFormat, id); err != nil {
		return "", false
	}
	return id, true
}
