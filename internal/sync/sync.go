// Package sync pushes the pending-operation queue to a remote system of
// record.
package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/models"
)

// Remote applies a single queued operation to the system of record. Apply
// must be idempotent: an operation may be re-sent if acknowledging it
// locally failed.
type Remote interface {
	Apply(ctx context.Context, op models.PendingOperation) error
	Name() string
}

// Queue is the view of the pending-operation queue a push needs
type Queue interface {
	Drain(ctx context.Context) ([]models.PendingOperation, error)
	Acknowledge(ctx context.Context, ids []string) error
}

// Result summarizes a push
type Result struct {
	Applied   int
	Remaining int
	// Failed is the operation that stopped the push, if any
	Failed *models.PendingOperation
}

type Syncer struct {
	remote Remote
	queue  Queue
}

func NewSyncer(remote Remote, queue Queue) *Syncer {
	return &Syncer{remote: remote, queue: queue}
}

// Push sends queued operations in order. It stops at the first failure so
// a later operation on the same record never overtakes an earlier one.
// Accepted operations are removed from the queue in one write when the run
// ends, whether or not it finished.
func (s *Syncer) Push(ctx context.Context) (Result, error) {
	ops, err := s.queue.Drain(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read pending operations: %w", err)
	}

	res := Result{Remaining: len(ops)}
	applied := make([]string, 0, len(ops))
	var pushErr error
	for i := range ops {
		op := ops[i]
		if err := ctx.Err(); err != nil {
			pushErr = err
			break
		}

		if err := s.remote.Apply(ctx, op); err != nil {
			res.Failed = &op
			logger.Warn("Sync stopped", "remote", s.remote.Name(), "op", op.ID, "table", op.Table, "error", err)
			pushErr = fmt.Errorf("%s rejected %s on %s: %w", s.remote.Name(), op.Type, op.Table, err)
			break
		}
		applied = append(applied, op.ID)
		res.Applied++
		res.Remaining--
	}

	// Acknowledge even when the caller's context is done, or the remote
	// would receive the same operations again.
	if err := s.queue.Acknowledge(context.WithoutCancel(ctx), applied); err != nil {
		ackErr := fmt.Errorf("failed to acknowledge %d operations: %w", len(applied), err)
		return res, errors.Join(pushErr, ackErr)
	}
	if pushErr != nil {
		return res, pushErr
	}

	logger.Info("Sync complete", "remote", s.remote.Name(), "applied", res.Applied)
	return res, nil
}
