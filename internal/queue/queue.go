package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/storage"
)

var ErrOperationNotFound = errors.New("pending operation not found")

// Queue is the ordered log of local mutations awaiting the remote. It has no
// state of its own: operations live in the snapshot's pendingSync array, so
// they are persisted by the same write as the change they describe.
type Queue struct {
	store *storage.SnapshotStore
	now   func() time.Time
}

func New(store *storage.SnapshotStore) *Queue {
	return &Queue{store: store, now: time.Now}
}

// NewOperation builds an operation with a fresh id and timestamp.
func NewOperation(kind models.OperationType, table string, payload any, now time.Time) (models.PendingOperation, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return models.PendingOperation{}, fmt.Errorf("failed to encode %s payload: %w", table, err)
	}
	return models.PendingOperation{
		ID:        uuid.New().String(),
		Type:      kind,
		Table:     table,
		Data:      data,
		Timestamp: now.UTC(),
	}, nil
}

// Append adds an operation to snap. Callers use it inside
// SnapshotStore.Update so the mutation and its queue entry land together.
func (q *Queue) Append(snap *models.Snapshot, kind models.OperationType, table string, payload any) (models.PendingOperation, error) {
	op, err := NewOperation(kind, table, payload, q.now())
	if err != nil {
		return models.PendingOperation{}, err
	}
	snap.PendingSync = append(snap.PendingSync, op)
	return op, nil
}

// Enqueue appends an operation in its own write.
func (q *Queue) Enqueue(ctx context.Context, kind models.OperationType, table string, payload any) (models.PendingOperation, error) {
	var op models.PendingOperation
	err := q.store.Update(ctx, func(snap *models.Snapshot) error {
		var err error
		op, err = q.Append(snap, kind, table, payload)
		return err
	})
	if err != nil {
		return models.PendingOperation{}, err
	}
	return op, nil
}

// Drain returns the pending operations in append order without removing them.
func (q *Queue) Drain(ctx context.Context) ([]models.PendingOperation, error) {
	snap, err := q.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.PendingSync, nil
}

// Remove acknowledges a single operation.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.store.Update(ctx, func(snap *models.Snapshot) error {
		for i, op := range snap.PendingSync {
			if op.ID == id {
				snap.PendingSync = append(snap.PendingSync[:i], snap.PendingSync[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	})
}

// Acknowledge removes every listed operation in a single write. Ids that
// are no longer queued are ignored.
func (q *Queue) Acknowledge(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	done := make(map[string]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}
	return q.store.Update(ctx, func(snap *models.Snapshot) error {
		kept := snap.PendingSync[:0]
		for _, op := range snap.PendingSync {
			if !done[op.ID] {
				kept = append(kept, op)
			}
		}
		snap.PendingSync = kept
		return nil
	})
}

func (q *Queue) Clear(ctx context.Context) error {
	return q.store.Update(ctx, func(snap *models.Snapshot) error {
		snap.PendingSync = []models.PendingOperation{}
		return nil
	})
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	snap, err := q.store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return len(snap.PendingSync), nil
}

// Compact keeps only the last operation per (table, target id), in the
// order those survivors were originally appended. Operations without a
// target id are always kept. The queue itself is never compacted.
func Compact(ops []models.PendingOperation) []models.PendingOperation {
	type key struct{ table, id string }

	last := make(map[key]int, len(ops))
	for i, op := range ops {
		if id := op.TargetID(); id != "" {
			last[key{op.Table, id}] = i
		}
	}

	out := make([]models.PendingOperation, 0, len(ops))
	for i, op := range ops {
		id := op.TargetID()
		if id != "" && last[key{op.Table, id}] != i {
			continue
		}
		out = append(out, op)
	}
	return out
}
