package queue

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/store"

	"github.com/oklog/ulid/v2"
)

// Queue is the ordered log of pending operations. The in-memory slice is the
// source of truth for the session; every change is mirrored to storage under
// store.KeyPendingOperations. Persistence failures are logged and swallowed.
type Queue struct {
	mu      sync.Mutex
	ops     []Operation
	storage store.Storage
	logger  logging.Logger
	clock   func() time.Time
	entropy io.Reader
	// epoch advances on every Reset so holders of an older epoch can tell
	// the queue now belongs to another namespace.
	epoch uint64
}

// New returns an empty queue backed by storage. Call Load to restore persisted
// operations.
func New(storage store.Storage, logger logging.Logger) *Queue {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Queue{
		storage: storage,
		logger:  logger,
		clock:   time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// SetClock overrides the timestamp source.
func (q *Queue) SetClock(clock func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clock = clock
}

// Load replaces the in-memory queue with the persisted one.
func (q *Queue) Load(ctx context.Context) error {
	var ops []Operation
	if _, err := store.GetJSON(ctx, q.storage, store.KeyPendingOperations, &ops); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = ops
	return nil
}

// Reset points the queue at a different storage (a new identity namespace)
// and clears the in-memory operations.
func (q *Queue) Reset(storage store.Storage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.storage = storage
	q.ops = nil
	q.epoch++
}

// Epoch identifies the namespace the queue is currently bound to.
func (q *Queue) Epoch() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.epoch
}

// Prepare builds an operation with a fresh id and timestamp without queuing
// it. The only errors are an unknown type or an unserializable payload.
func (q *Queue) Prepare(opType OpType, payload interface{}) (Operation, error) {
	if !opType.IsValid() {
		return Operation{}, fmt.Errorf("unknown operation type %q", opType)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Operation{}, fmt.Errorf("marshal %s payload: %w", opType, err)
	}
	entity, err := EntityKey(opType, raw)
	if err != nil {
		return Operation{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock()
	return Operation{
		ID:        ulid.MustNew(ulid.Timestamp(now), q.entropy).String(),
		Type:      opType,
		Entity:    entity,
		Payload:   raw,
		Timestamp: now,
	}, nil
}

// Enqueue appends a new operation and persists the queue. It never touches
// the network.
func (q *Queue) Enqueue(ctx context.Context, opType OpType, payload interface{}) (Operation, error) {
	op, err := q.Prepare(opType, payload)
	if err != nil {
		return Operation{}, err
	}
	q.Append(ctx, op)
	return op, nil
}

// Append queues a prepared operation, typically one whose direct remote call
// just failed.
func (q *Queue) Append(ctx context.Context, op Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
	q.persistLocked(ctx)

	q.logger.Debug("Operation queued", logging.Op(op.ID, op.Type, op.Entity)...)
}

// Snapshot returns a copy of the queued operations in enqueue order.
func (q *Queue) Snapshot() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.copyLocked()
}

// SnapshotAt is Snapshot for a caller bound to epoch. ok is false once the
// queue has been Reset since.
func (q *Queue) SnapshotAt(epoch uint64) (ops []Operation, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.epoch != epoch {
		return nil, false
	}
	return q.copyLocked(), true
}

func (q *Queue) copyLocked() []Operation {
	out := make([]Operation, len(q.ops))
	copy(out, q.ops)
	return out
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Pending returns the queued operations of the given types, in order. With no
// types it returns every operation.
func (q *Queue) Pending(types ...OpType) []Operation {
	if len(types) == 0 {
		return q.Snapshot()
	}
	want := make(map[OpType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []Operation
	for _, op := range q.Snapshot() {
		if want[op.Type] {
			out = append(out, op)
		}
	}
	return out
}

// Remove drops acknowledged operations by id. The remaining operations keep
// their relative order.
func (q *Queue) Remove(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(ctx, ids)
}

// RemoveAt is Remove for a caller bound to epoch. Nothing is removed and false
// is returned once the queue has been Reset since.
func (q *Queue) RemoveAt(ctx context.Context, epoch uint64, ids ...string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.epoch != epoch {
		return false
	}
	if len(ids) > 0 {
		q.removeLocked(ctx, ids)
	}
	return true
}

func (q *Queue) removeLocked(ctx context.Context, ids []string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := q.ops[:0:0]
	for _, op := range q.ops {
		if !drop[op.ID] {
			kept = append(kept, op)
		}
	}
	if len(kept) == len(q.ops) {
		return
	}
	q.ops = kept
	q.persistLocked(ctx)
}

func (q *Queue) persistLocked(ctx context.Context) {
	if err := store.SetJSON(ctx, q.storage, store.KeyPendingOperations, q.ops); err != nil {
		q.logger.WithError(err).Warn("Failed to persist operation queue",
			logging.F(logging.FieldCount, len(q.ops)))
	}
}
