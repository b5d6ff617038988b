package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/models"
)

// Options configures a SnapshotStore
type Options struct {
	// UserID owns the starter data created on first run
	UserID string
	// WriteTimeout bounds a single backend write
	WriteTimeout time.Duration
	// Now is the clock, time.Now when nil
	Now func() time.Time
}

// WriteHook observes every successfully persisted snapshot. Hooks run while
// the store lock is held and must not block or call back into the store.
type WriteHook func(models.Snapshot)

// SnapshotStore owns the single local snapshot. Every read-modify-write is
// serialized through mu so concurrent callers never drop each other's changes.
type SnapshotStore struct {
	backend Backend
	opts    Options

	mu     sync.Mutex
	snap   *models.Snapshot
	digest [sha256.Size]byte
	hooks  []WriteHook
	closed bool
	// inflight is the result of a write that timed out and may still land
	inflight chan error
}

func NewSnapshotStore(backend Backend, opts Options) *SnapshotStore {
	if opts.UserID == "" {
		opts.UserID = constants.LocalUserID
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = constants.DefaultWriteTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SnapshotStore{backend: backend, opts: opts}
}

// OnWrite registers a hook invoked with a copy of each persisted snapshot.
func (s *SnapshotStore) OnWrite(hook WriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Location describes where the snapshot is persisted.
func (s *SnapshotStore) Location() string {
	return s.backend.Location()
}

// Load reads the persisted snapshot, bootstrapping the default one on first
// run and injecting any default categories the stored snapshot predates.
func (s *SnapshotStore) Load(ctx context.Context) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		return models.Snapshot{}, err
	}
	return s.snap.Clone(), nil
}

// Snapshot returns a copy of the current snapshot, loading it if needed.
func (s *SnapshotStore) Snapshot(ctx context.Context) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return models.Snapshot{}, err
	}
	return s.snap.Clone(), nil
}

// Save overwrites the whole snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.settleLocked(); err != nil {
		return err
	}

	next := snap.Clone()
	next.Normalize()
	next.RefreshCategories()
	if next.Version == 0 {
		next.Version = constants.SnapshotVersion
	}
	return s.writeLocked(ctx, &next)
}

// Update applies fn to a working copy and persists the result. If fn or the
// write fails, neither the persisted nor the in-memory snapshot changes.
func (s *SnapshotStore) Update(ctx context.Context, fn func(*models.Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}

	next := s.snap.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	next.Normalize()
	return s.writeLocked(ctx, &next)
}

// Reload drops the in-memory snapshot and re-reads the backend.
func (s *SnapshotStore) Reload(ctx context.Context) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = nil
	if err := s.loadLocked(ctx); err != nil {
		return models.Snapshot{}, err
	}
	return s.snap.Clone(), nil
}

// Refresh re-reads the backend and reports whether its content differs from
// what this store last read or wrote, e.g. after another process restored a
// backup.
func (s *SnapshotStore) Refresh(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	if err := s.settleLocked(); err != nil {
		return false, err
	}

	data, err := s.backend.Read(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if s.snap != nil && err == nil && sha256.Sum256(data) == s.digest {
		return false, nil
	}
	if err := s.loadLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the backend.
func (s *SnapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}

func (s *SnapshotStore) ensureLoadedLocked(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.settleLocked(); err != nil {
		return err
	}
	if s.snap != nil {
		return nil
	}
	return s.loadLocked(ctx)
}

func (s *SnapshotStore) loadLocked(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.settleLocked(); err != nil {
		return err
	}

	data, err := s.backend.Read(ctx)
	if errors.Is(err, ErrNotFound) {
		logger.Info("No snapshot found, creating default data", "location", s.backend.Location())
		snap := models.NewDefaultSnapshot(s.opts.UserID, s.opts.Now())
		return s.writeLocked(ctx, &snap)
	}
	if err != nil {
		return fmt.Errorf("unable to load snapshot: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("unable to load snapshot: failed to parse %s: %w", s.backend.Location(), err)
	}
	snap.Normalize()

	changed := models.MergeDefaultCategories(&snap, s.opts.UserID)
	if snap.Version < constants.SnapshotVersion {
		snap.Version = constants.SnapshotVersion
		changed = true
	}
	snap.RefreshCategories()

	if changed {
		logger.Info("Migrated snapshot", "categories", len(snap.Categories))
		return s.writeLocked(ctx, &snap)
	}

	s.snap = &snap
	s.digest = sha256.Sum256(data)
	return nil
}

// writeLocked persists snap and, on success, installs it as the current
// snapshot and notifies hooks.
func (s *SnapshotStore) writeLocked(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to save snapshot: failed to serialize: %w", err)
	}

	if err := s.writeWithTimeout(ctx, data); err != nil {
		return err
	}

	s.snap = snap
	s.digest = sha256.Sum256(data)

	for _, hook := range s.hooks {
		hook(snap.Clone())
	}
	return nil
}

func (s *SnapshotStore) writeWithTimeout(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// The backend write is not cancellable once started, so it runs
	// detached from ctx and only the wait is bounded.
	done := make(chan error, 1)
	payload := bytes.Clone(data)
	go func() {
		done <- s.backend.Write(context.WithoutCancel(ctx), payload)
	}()

	timer := time.NewTimer(s.opts.WriteTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("unable to save snapshot: %w", err)
		}
		return nil
	case <-timer.C:
		// The write may still land. Nothing else touches storage until
		// it has, then the next access re-reads what actually persisted.
		s.snap = nil
		s.inflight = done
		logger.Error("Snapshot write timed out", "location", s.backend.Location(), "timeout", s.opts.WriteTimeout)
		return ErrStorageTimeout
	}
}

// settleLocked waits, up to the write timeout, for a write that previously
// timed out. While that write is still running every operation fails with
// ErrStorageTimeout, so a later write can never be overtaken by it.
func (s *SnapshotStore) settleLocked() error {
	if s.inflight == nil {
		return nil
	}

	timer := time.NewTimer(s.opts.WriteTimeout)
	defer timer.Stop()

	select {
	case err := <-s.inflight:
		s.inflight = nil
		s.snap = nil
		if err != nil {
			logger.Warn("Timed out snapshot write failed", "error", err)
		} else {
			logger.Info("Timed out snapshot write completed", "location", s.backend.Location())
		}
		return nil
	case <-timer.C:
		return ErrStorageTimeout
	}
}
