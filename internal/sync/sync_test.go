package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/queue"
	"github.com/julianstephens/habitual/internal/storage"
)

type fakeRemote struct {
	applied []string
	failOn  string
}

func (r *fakeRemote) Apply(_ context.Context, op models.PendingOperation) error {
	if op.TargetID() == r.failOn {
		return errors.New("connection reset")
	}
	r.applied = append(r.applied, op.TargetID())
	return nil
}

func (r *fakeRemote) Name() string { return "fake" }

func setupQueue(t *testing.T, ids ...string) *queue.Queue {
	t.Helper()
	store := storage.NewSnapshotStore(
		storage.NewFileBackend(filepath.Join(t.TempDir(), "snapshot.json")),
		storage.Options{UserID: "u1"},
	)
	t.Cleanup(func() { store.Close() })

	q := queue.New(store)
	for _, id := range ids {
		if _, err := q.Enqueue(context.Background(), models.OperationCreate, models.TableHabits, map[string]string{"id": id}); err != nil {
			t.Fatal(err)
		}
	}
	return q
}

func TestPushAppliesInOrderAndAcknowledges(t *testing.T) {
	q := setupQueue(t, "a", "b", "c")
	remote := &fakeRemote{}

	res, err := NewSyncer(remote, q).Push(context.Background())
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if res.Applied != 3 || res.Remaining != 0 || res.Failed != nil {
		t.Errorf("unexpected result %+v", res)
	}
	if fmt.Sprint(remote.applied) != "[a b c]" {
		t.Errorf("expected in-order delivery, got %v", remote.applied)
	}
	if n, _ := q.Len(context.Background()); n != 0 {
		t.Errorf("expected empty queue, got %d", n)
	}
}

func TestPushStopsAtFirstFailure(t *testing.T) {
	q := setupQueue(t, "a", "b", "c")
	remote := &fakeRemote{failOn: "b"}

	res, err := NewSyncer(remote, q).Push(context.Background())
	if err == nil {
		t.Fatal("expected push error")
	}
	if res.Applied != 1 || res.Remaining != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Failed == nil || res.Failed.TargetID() != "b" {
		t.Errorf("expected b to be reported as failed, got %+v", res.Failed)
	}

	ops, _ := q.Drain(context.Background())
	if len(ops) != 2 || ops[0].TargetID() != "b" || ops[1].TargetID() != "c" {
		t.Errorf("expected b and c to stay queued in order, got %d ops", len(ops))
	}
}

func TestPushEmptyQueue(t *testing.T) {
	res, err := NewSyncer(&fakeRemote{}, setupQueue(t)).Push(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied != 0 || res.Remaining != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestPushHonorsCancellation(t *testing.T) {
	q := setupQueue(t, "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	remote := &fakeRemote{}
	if _, err := NewSyncer(remote, q).Push(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(remote.applied) != 0 {
		t.Error("cancelled push applied operations")
	}
}

// countingBackend counts snapshot writes
type countingBackend struct {
	storage.Backend
	writes int
}

func (b *countingBackend) Write(ctx context.Context, data []byte) error {
	b.writes++
	return b.Backend.Write(ctx, data)
}

func TestPushAcknowledgesInOneWrite(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{Backend: storage.NewFileBackend(filepath.Join(t.TempDir(), "snapshot.json"))}
	store := storage.NewSnapshotStore(backend, storage.Options{UserID: "u1"})
	t.Cleanup(func() { store.Close() })

	q := queue.New(store)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		if _, err := q.Enqueue(ctx, models.OperationCreate, models.TableHabits, map[string]string{"id": id}); err != nil {
			t.Fatal(err)
		}
	}

	before := backend.writes
	res, err := NewSyncer(&fakeRemote{failOn: "f"}, q).Push(ctx)
	if err == nil {
		t.Fatal("expected push error")
	}
	if res.Applied != 5 {
		t.Errorf("expected 5 applied, got %+v", res)
	}
	if got := backend.writes - before; got != 1 {
		t.Errorf("expected a single acknowledgement write, got %d", got)
	}

	ops, _ := q.Drain(ctx)
	if len(ops) != 1 || ops[0].TargetID() != "f" {
		t.Errorf("expected only f to stay queued, got %d ops", len(ops))
	}
}
