package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type txPayload struct {
	ID     string `json:"id"`
	Amount string `json:"amount"`
}

func TestEnqueue_AssignsIDTimestampAndEntity(t *testing.T) {
	ctx := context.Background()
	q := New(store.NewMemoryStorage(), nil)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return now })

	op, err := q.Enqueue(ctx, OpAddTransaction, txPayload{ID: "t1", Amount: "50"})
	require.NoError(t, err)

	assert.Len(t, op.ID, 26)
	assert.Equal(t, now, op.Timestamp)
	assert.Equal(t, "transaction:t1", op.Entity)

	var p txPayload
	require.NoError(t, op.Decode(&p))
	assert.Equal(t, "50", p.Amount)
}

func TestEnqueue_IDsSortInEnqueueOrder(t *testing.T) {
	ctx := context.Background()
	q := New(store.NewMemoryStorage(), nil)
	fixed := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return fixed })

	var ids []string
	for i := 0; i < 50; i++ {
		op, err := q.Enqueue(ctx, OpSetBudget, "100")
		require.NoError(t, err)
		ids = append(ids, op.ID)
	}
	assert.True(t, sort.StringsAreSorted(ids), "ULIDs within one millisecond must stay ordered")
}

func TestEnqueue_Rejects(t *testing.T) {
	ctx := context.Background()
	q := New(store.NewMemoryStorage(), nil)

	_, err := q.Enqueue(ctx, OpType("DROP_TABLE"), nil)
	assert.Error(t, err)

	_, err = q.Enqueue(ctx, OpDeleteTransaction, IDPayload{})
	assert.Error(t, err, "transaction ops need an id")

	_, err = q.Enqueue(ctx, OpSetIncome, func() {})
	assert.Error(t, err)

	assert.Equal(t, 0, q.Len())
}

func TestQueue_PersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStorage()
	ns := store.NewNamespaced(mem, "u1")

	q := New(ns, nil)
	a, err := q.Enqueue(ctx, OpAddTransaction, txPayload{ID: "a"})
	require.NoError(t, err)
	b, err := q.Enqueue(ctx, OpAddCategory, IDPayload{ID: "c1"})
	require.NoError(t, err)
	c, err := q.Enqueue(ctx, OpSetCurrency, "EUR")
	require.NoError(t, err)

	q.Remove(ctx, b.ID)

	reloaded := New(ns, nil)
	require.NoError(t, reloaded.Load(ctx))
	ops := reloaded.Snapshot()
	require.Len(t, ops, 2)
	assert.Equal(t, a.ID, ops[0].ID)
	assert.Equal(t, c.ID, ops[1].ID)
	assert.Equal(t, "setting:SET_CURRENCY", ops[1].Entity)
}

func TestQueue_PersistFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStorage()
	mem.SetFailure(errors.New("disk full"))
	logger := logging.NewMockLogger()

	q := New(mem, logger)
	_, err := q.Enqueue(ctx, OpSetBudget, "10")

	require.NoError(t, err)
	assert.Equal(t, 1, q.Len())
	assert.True(t, logger.HasEntry("WARN", "Failed to persist operation queue"))
}

func TestQueue_PendingFiltersByType(t *testing.T) {
	ctx := context.Background()
	q := New(store.NewMemoryStorage(), nil)
	_, _ = q.Enqueue(ctx, OpAddTransaction, txPayload{ID: "a"})
	_, _ = q.Enqueue(ctx, OpDeleteTransaction, txPayload{ID: "a"})
	_, _ = q.Enqueue(ctx, OpAddTransaction, txPayload{ID: "b"})

	adds := q.Pending(OpAddTransaction)
	require.Len(t, adds, 2)
	assert.Equal(t, "transaction:a", adds[0].Entity)
	assert.Equal(t, "transaction:b", adds[1].Entity)
	assert.Len(t, q.Pending(), 3)
}

func TestQueue_ResetSwitchesStorage(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStorage()
	q := New(store.NewNamespaced(mem, "alice"), nil)
	_, _ = q.Enqueue(ctx, OpSetBudget, "10")

	q.Reset(store.NewNamespaced(mem, "bob"))
	require.NoError(t, q.Load(ctx))
	assert.Equal(t, 0, q.Len())

	q.Reset(store.NewNamespaced(mem, "alice"))
	require.NoError(t, q.Load(ctx))
	assert.Equal(t, 1, q.Len())
}

func TestQueue_StaleEpochSeesNothing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStorage()
	q := New(store.NewNamespaced(mem, "alice"), nil)
	aliceOp, err := q.Enqueue(ctx, OpSetBudget, "10")
	require.NoError(t, err)
	aliceEpoch := q.Epoch()

	ops, ok := q.SnapshotAt(aliceEpoch)
	require.True(t, ok)
	require.Len(t, ops, 1)

	q.Reset(store.NewNamespaced(mem, "bob"))
	bobOp, err := q.Enqueue(ctx, OpSetBudget, "20")
	require.NoError(t, err)
	assert.NotEqual(t, aliceEpoch, q.Epoch())

	ops, ok = q.SnapshotAt(aliceEpoch)
	assert.False(t, ok)
	assert.Empty(t, ops)
	assert.False(t, q.RemoveAt(ctx, aliceEpoch, bobOp.ID, aliceOp.ID))
	assert.Equal(t, 1, q.Len())

	assert.True(t, q.RemoveAt(ctx, q.Epoch(), bobOp.ID))
	assert.Equal(t, 0, q.Len())
}

func TestEntityKey(t *testing.T) {
	raw := json.RawMessage(`{"id":"x"}`)
	tests := []struct {
		op   OpType
		want string
	}{
		{OpRestoreTransaction, "transaction:x"},
		{OpDeleteCategory, "category:x"},
		{OpUpdateAchievements, "achievements"},
		{OpDismissWarning, "setting:DISMISS_WARNING"},
	}
	for _, tt := range tests {
		got, err := EntityKey(tt.op, raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestPrepare_DoesNotQueueUntilAppended(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()
	q := New(storage, nil)

	op, err := q.Prepare(OpSetCurrency, "EUR")
	require.NoError(t, err)
	assert.Equal(t, "setting:SET_CURRENCY", op.Entity)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, storage.Writes())

	q.Append(ctx, op)
	require.Equal(t, 1, q.Len())
	assert.Equal(t, op.ID, q.Snapshot()[0].ID)
	assert.Equal(t, 1, storage.Writes())
}
