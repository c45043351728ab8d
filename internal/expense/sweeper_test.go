package expense

import (
	"context"
	"testing"
	"time"

	"edwinliby/xpense-sync/internal/queue"
	"edwinliby/xpense-sync/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_PurgesExpiredTrashAndPropagates(t *testing.T) {
	f := newFixture(t, false, func(o *Options) { o.Retention = time.Hour })
	ctx := context.Background()
	old := f.add(expense("1"))
	fresh := f.add(expense("2"))
	require.NoError(t, f.store.DeleteTransaction(ctx, old.ID))

	f.now = baseTime.Add(50 * time.Minute)
	require.NoError(t, f.store.DeleteTransaction(ctx, fresh.ID))

	f.now = baseTime.Add(61 * time.Minute)
	assert.Equal(t, 1, f.store.Sweep(ctx))
	f.assertExclusive()

	trash := f.store.Trash()
	require.Len(t, trash, 1)
	assert.Equal(t, fresh.ID, trash[0].ID)
	_, ok := f.backend.Transaction(owner, old.ID)
	assert.False(t, ok)
	_, ok = f.backend.Transaction(owner, fresh.ID)
	assert.True(t, ok)

	assert.Equal(t, 0, f.store.Sweep(ctx))
}

func TestSweep_OfflineQueuesPermanentDeletes(t *testing.T) {
	f := newFixture(t, true, func(o *Options) { o.Retention = time.Minute })
	ctx := context.Background()
	tx := f.add(expense("1"))
	require.NoError(t, f.store.DeleteTransaction(ctx, tx.ID))

	f.now = baseTime.Add(2 * time.Minute)
	assert.Equal(t, 1, f.store.Sweep(ctx))

	pending := f.store.PendingOperations()
	last := pending[len(pending)-1]
	assert.Equal(t, queue.OpPermanentlyDeleteTransaction, last.Type)
	var p queue.IDPayload
	require.NoError(t, last.Decode(&p))
	assert.Equal(t, tx.ID, p.ID)
}

func TestStartClose_SchedulesJobsOnce(t *testing.T) {
	sched := scheduler.New(nil)
	f := newFixture(t, true, func(o *Options) {
		o.Scheduler = sched
		o.SweepInterval = time.Second
		o.RetryInterval = time.Second
	})

	require.NoError(t, f.store.Start())
	require.NoError(t, f.store.Start())
	assert.ElementsMatch(t, []string{SweepJob, RetryJob}, sched.Jobs())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f.store.Close(ctx)
	f.store.Close(ctx)

	// A stopped scheduler refuses new jobs.
	assert.Error(t, sched.Every("late", time.Second, func(context.Context) {}))
}

func TestRetryJob_DrainsWhenOnline(t *testing.T) {
	sched := scheduler.New(nil)
	f := newFixture(t, false, func(o *Options) {
		o.Scheduler = sched
		o.RetryInterval = time.Second
	})
	f.backend.FailNext(1)
	f.add(expense("1"))
	require.Len(t, f.store.PendingOperations(), 1)

	require.NoError(t, f.store.Start())
	require.Eventually(t, func() bool {
		return len(f.store.PendingOperations()) == 0
	}, 3*time.Second, 50*time.Millisecond)
}
