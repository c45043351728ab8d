package expense

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"edwinliby/xpense-sync/internal/connectivity"
	"edwinliby/xpense-sync/internal/currency"
	"edwinliby/xpense-sync/internal/identity"
	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/models"
	"edwinliby/xpense-sync/internal/queue"
	"edwinliby/xpense-sync/internal/remote"
	"edwinliby/xpense-sync/internal/store"
	"edwinliby/xpense-sync/internal/syncerror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "u1"

var baseTime = time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	t       *testing.T
	store   *Store
	storage *store.MemoryStorage
	backend *remote.MemoryBackend
	session *identity.Session
	monitor *connectivity.Monitor
	rates   *currency.StaticRates
	logger  *logging.MockLogger
	now     time.Time
}

type fixtureOpt func(*Options)

func newFixture(t *testing.T, offline bool, opts ...fixtureOpt) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		storage: store.NewMemoryStorage(),
		backend: remote.NewMemoryBackend(),
		logger:  logging.NewMockLogger(),
		rates:   currency.NewStaticRates(),
		now:     baseTime,
	}
	f.session = identity.NewSession(f.logger)
	require.NoError(t, f.session.Login(owner))
	f.monitor = connectivity.NewMonitor(nil, offline, f.logger)

	var seq atomic.Int64
	o := Options{
		Storage: f.storage,
		Backend: f.backend,
		Session: f.session,
		Monitor: f.monitor,
		Rates:   f.rates,
		Logger:  f.logger,
		Clock:   func() time.Time { return f.now },
		NewID: func() string {
			return fmt.Sprintf("id-%d", seq.Add(1))
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	f.store = New(o)
	require.NoError(t, f.store.Load(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		f.store.Close(ctx)
	})
	return f
}

func expense(amount string) models.Transaction {
	return models.Transaction{
		Amount:   decimal.RequireFromString(amount),
		Type:     models.TypeExpense,
		Category: "Food",
		Date:     baseTime,
	}
}

func (f *fixture) add(tx models.Transaction) models.Transaction {
	f.t.Helper()
	got, err := f.store.AddTransaction(context.Background(), tx)
	require.NoError(f.t, err)
	return got
}

// persisted reads a key from the current owner's namespace.
func (f *fixture) persisted(key string, v interface{}) bool {
	f.t.Helper()
	ok, err := store.GetJSON(context.Background(), store.NewNamespaced(f.storage, f.store.Owner()), key, v)
	require.NoError(f.t, err)
	return ok
}

func (f *fixture) goOnline() {
	f.monitor.SetOffline(false)
	f.store.WaitDrains()
}

func (f *fixture) assertExclusive() {
	f.t.Helper()
	active := map[string]bool{}
	for _, tx := range f.store.Transactions() {
		assert.Nil(f.t, tx.DeletedAt, "active %s has deletedAt", tx.ID)
		active[tx.ID] = true
	}
	for _, tx := range f.store.Trash() {
		assert.NotNil(f.t, tx.DeletedAt, "trashed %s has no deletedAt", tx.ID)
		assert.False(f.t, active[tx.ID], "%s is both active and trashed", tx.ID)
	}
}

func opTypes(ops []queue.Operation) []queue.OpType {
	out := make([]queue.OpType, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.Type)
	}
	return out
}

func TestAddTransaction_OfflineQueuesThenDrainsOnReconnect(t *testing.T) {
	f := newFixture(t, true)
	tx := f.add(expense("50"))

	active := f.store.Transactions()
	require.Len(t, active, 1)
	assert.Equal(t, tx.ID, active[0].ID)

	var stored []models.Transaction
	require.True(t, f.persisted(store.KeyTransactions, &stored))
	require.Len(t, stored, 1)

	pending := f.store.PendingOperations()
	require.Len(t, pending, 1)
	assert.Equal(t, queue.OpAddTransaction, pending[0].Type)
	assert.Zero(t, f.backend.CallCount("InsertTransaction"))

	f.goOnline()

	assert.Empty(t, f.store.PendingOperations())
	assert.Equal(t, 1, f.backend.CallCount("InsertTransaction"))
	remoteTx, ok := f.backend.Transaction(owner, tx.ID)
	require.True(t, ok)
	assert.True(t, remoteTx.Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, models.TypeExpense, remoteTx.Type)
	assert.Equal(t, "Food", remoteTx.Category)
	assert.True(t, baseTime.Equal(remoteTx.Date))
}

func TestAddTransaction_OnlineCallsRemoteDirectly(t *testing.T) {
	f := newFixture(t, false)
	tx := f.add(expense("12.345"))

	assert.Equal(t, "12.35", tx.Amount.String())
	assert.Equal(t, models.DefaultCurrency, tx.Currency)
	assert.Empty(t, f.store.PendingOperations())
	assert.Equal(t, 1, f.backend.CallCount("InsertTransaction"))
}

func TestAddTransaction_DirectFailureFallsBackToQueue(t *testing.T) {
	f := newFixture(t, false)
	f.backend.FailNext(1)

	tx := f.add(expense("20"))
	require.Len(t, f.store.Transactions(), 1)
	pending := f.store.PendingOperations()
	require.Len(t, pending, 1)
	assert.Equal(t, "transaction:"+tx.ID, pending[0].Entity)
	assert.True(t, f.logger.HasEntry("WARN", "Remote call failed, operation queued"))

	res := f.store.Drain(context.Background())
	assert.Equal(t, 1, res.Succeeded)
	assert.Empty(t, f.store.PendingOperations())
	_, ok := f.backend.Transaction(owner, tx.ID)
	assert.True(t, ok)
}

func TestMutations_QueueBehindPendingOps(t *testing.T) {
	f := newFixture(t, false)
	f.backend.SetUnavailable(true)
	tx := f.add(expense("20"))
	tx.Amount = decimal.NewFromInt(25)
	f.backend.SetUnavailable(false)

	// The queue is not empty, so the edit must not overtake the add.
	_, err := f.store.EditTransaction(context.Background(), tx)
	require.NoError(t, err)
	f.store.WaitDrains()

	assert.Empty(t, f.store.PendingOperations())
	remoteTx, ok := f.backend.Transaction(owner, tx.ID)
	require.True(t, ok)
	assert.Equal(t, "25", remoteTx.Amount.String())
}

func TestAddTransaction_Validation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	bad := []models.Transaction{
		{Amount: decimal.Zero, Type: models.TypeExpense, Category: "Food", Date: baseTime},
		{Amount: decimal.NewFromInt(-3), Type: models.TypeExpense, Category: "Food", Date: baseTime},
		{Amount: decimal.NewFromInt(3), Type: "gift", Category: "Food", Date: baseTime},
		{Amount: decimal.NewFromInt(3), Type: models.TypeIncome, Category: " ", Date: baseTime},
		{Amount: decimal.NewFromInt(3), Type: models.TypeIncome, Category: "Salary"},
	}
	for i, tx := range bad {
		_, err := f.store.AddTransaction(ctx, tx)
		assert.True(t, syncerror.IsValidation(err), "case %d: %v", i, err)
	}
	assert.Empty(t, f.store.Transactions())
	assert.Empty(t, f.store.PendingOperations())
}

func TestMutation_PersistFailureDoesNotBlock(t *testing.T) {
	f := newFixture(t, true)
	f.storage.SetFailure(errors.New("disk full"))

	tx := f.add(expense("5"))
	require.NoError(t, f.store.SetBudget(context.Background(), decimal.NewFromInt(100)))

	require.Len(t, f.store.Transactions(), 1)
	assert.Equal(t, tx.ID, f.store.Transactions()[0].ID)
	assert.Equal(t, "100", f.store.Settings().Budget.String())
	assert.True(t, f.logger.HasEntry("WARN", "Failed to persist local state"))
	assert.Len(t, f.store.PendingOperations(), 2)
}

func TestDeleteRestore_RoundTrip(t *testing.T) {
	f := newFixture(t, true)
	in := expense("42.10")
	in.Description = "Dinner"
	in.IsLent = true
	in.LentTo = "Sam"
	tx := f.add(in)
	before, _, _ := f.store.Transaction(tx.ID)

	require.NoError(t, f.store.DeleteTransaction(context.Background(), tx.ID))
	f.assertExclusive()
	assert.Empty(t, f.store.Transactions())
	trash := f.store.Trash()
	require.Len(t, trash, 1)
	require.NotNil(t, trash[0].DeletedAt)
	assert.True(t, baseTime.Equal(*trash[0].DeletedAt))

	var storedTrash []models.Transaction
	require.True(t, f.persisted(store.KeyTrash, &storedTrash))
	assert.Len(t, storedTrash, 1)

	require.NoError(t, f.store.RestoreTransaction(context.Background(), tx.ID))
	f.assertExclusive()
	after, trashed, ok := f.store.Transaction(tx.ID)
	require.True(t, ok)
	assert.False(t, trashed)
	assert.Equal(t, before, after)

	assert.Equal(t, []queue.OpType{
		queue.OpAddTransaction, queue.OpDeleteTransaction, queue.OpRestoreTransaction,
	}, opTypes(f.store.PendingOperations()))
}

func TestDeleteTransaction_NotFound(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	assert.ErrorIs(t, f.store.DeleteTransaction(ctx, "missing"), syncerror.ErrNotFound)
	assert.ErrorIs(t, f.store.RestoreTransaction(ctx, "missing"), syncerror.ErrNotFound)
	assert.ErrorIs(t, f.store.PermanentlyDeleteTransaction(ctx, "missing"), syncerror.ErrNotFound)

	tx := f.add(expense("1"))
	// Only trashed transactions can be purged.
	assert.ErrorIs(t, f.store.PermanentlyDeleteTransaction(ctx, tx.ID), syncerror.ErrNotFound)
}

func TestPermanentlyDelete_RemovesRemoteRow(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	tx := f.add(expense("9"))

	require.NoError(t, f.store.DeleteTransaction(ctx, tx.ID))
	remoteTx, ok := f.backend.Transaction(owner, tx.ID)
	require.True(t, ok)
	assert.NotNil(t, remoteTx.DeletedAt)

	require.NoError(t, f.store.PermanentlyDeleteTransaction(ctx, tx.ID))
	f.assertExclusive()
	assert.Empty(t, f.store.Trash())
	_, ok = f.backend.Transaction(owner, tx.ID)
	assert.False(t, ok)
}

func TestRecurringTemplate_ExpandsOnAdd(t *testing.T) {
	f := newFixture(t, true)
	in := expense("9.99")
	in.IsRecurring = true
	in.RecurrenceInterval = models.IntervalMonthly
	tpl := f.add(in)

	require.NotNil(t, tpl.NextOccurrence)
	assert.True(t, baseTime.AddDate(0, 13, 0).Equal(*tpl.NextOccurrence))

	instances := 0
	for _, tx := range f.store.Transactions() {
		if tx.ParentID == tpl.ID {
			instances++
			assert.False(t, tx.IsRecurring)
			assert.False(t, tx.Date.After(baseTime.AddDate(1, 0, 0)))
		}
	}
	assert.Equal(t, 12, instances)
	assert.Len(t, f.store.PendingOperations(), 13)
}

func TestDeleteTemplate_TrashesFutureInstances(t *testing.T) {
	f := newFixture(t, true, func(o *Options) { o.HorizonMonths = 2 })
	in := expense("30")
	in.IsRecurring = true
	in.Date = baseTime.AddDate(0, -1, 0)
	tpl := f.add(in)

	// Instances on today, +1 and +2 months; only the last two are future.
	active := f.store.Transactions()
	require.Len(t, active, 4)
	queuedBefore := len(f.store.PendingOperations())

	require.NoError(t, f.store.DeleteTransaction(context.Background(), tpl.ID))
	f.assertExclusive()

	trash := f.store.Trash()
	require.Len(t, trash, 3)
	trashed := map[string]bool{}
	for _, tx := range trash {
		trashed[tx.ID] = true
		assert.True(t, tx.ID == tpl.ID || tx.Date.After(baseTime))
	}
	assert.True(t, trashed[tpl.ID])

	remaining := f.store.Transactions()
	require.Len(t, remaining, 1)
	assert.Equal(t, tpl.ID, remaining[0].ParentID)
	assert.True(t, baseTime.Equal(remaining[0].Date))

	deletes := f.store.PendingOperations()[queuedBefore:]
	require.Len(t, deletes, 3)
	for _, op := range deletes {
		assert.Equal(t, queue.OpDeleteTransaction, op.Type)
		var tx models.Transaction
		require.NoError(t, op.Decode(&tx))
		assert.True(t, trashed[tx.ID])
		assert.NotNil(t, tx.DeletedAt)
	}
}

func TestEditTransaction_RestartsScheduleWhenIntervalChanges(t *testing.T) {
	f := newFixture(t, true, func(o *Options) { o.HorizonMonths = 1 })
	in := expense("10")
	in.IsRecurring = true
	tpl := f.add(in)
	require.NotNil(t, tpl.NextOccurrence)

	tpl.RecurrenceInterval = models.IntervalWeekly
	edited, err := f.store.EditTransaction(context.Background(), tpl)
	require.NoError(t, err)

	weekly := 0
	for _, tx := range f.store.Transactions() {
		if tx.ParentID == tpl.ID && tx.Date.Sub(baseTime)%(7*24*time.Hour) == 0 && tx.Date.Weekday() == baseTime.Weekday() {
			weekly++
		}
	}
	assert.GreaterOrEqual(t, weekly, 4)
	assert.True(t, edited.NextOccurrence.After(baseTime.AddDate(0, 1, 0)))
}

func TestMarkPaidBack(t *testing.T) {
	f := newFixture(t, true)
	in := expense("15")
	in.IsLent = true
	in.LentTo = "Ana"
	tx := f.add(in)

	got, err := f.store.MarkPaidBack(context.Background(), tx.ID, true)
	require.NoError(t, err)
	assert.True(t, got.IsPaidBack)
	assert.Equal(t, queue.OpUpdateTransaction, f.store.PendingOperations()[1].Type)

	_, err = f.store.MarkPaidBack(context.Background(), "nope", true)
	assert.ErrorIs(t, err, syncerror.ErrNotFound)
}

func TestSetCurrency_ConvertsEverything(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.rates.Set("USD", "EUR", decimal.RequireFromString("0.9"))

	require.NoError(t, f.store.SetBudget(ctx, decimal.NewFromInt(1000)))
	require.NoError(t, f.store.SetIncome(ctx, decimal.NewFromInt(3000)))
	a := f.add(expense("50"))
	b := f.add(expense("33.33"))
	c := f.add(expense("10"))
	require.NoError(t, f.store.DeleteTransaction(ctx, c.ID))

	require.NoError(t, f.store.SetCurrency(ctx, "eur"))

	settings := f.store.Settings()
	assert.Equal(t, "EUR", settings.Currency)
	assert.Equal(t, "900", settings.Budget.String())
	assert.Equal(t, "2700", settings.Income.String())

	want := map[string]string{a.ID: "45", b.ID: "30", c.ID: "9"}
	for _, tx := range append(f.store.Transactions(), f.store.Trash()...) {
		assert.Equal(t, want[tx.ID], tx.Amount.String(), tx.ID)
		assert.Equal(t, "EUR", tx.Currency)
		require.NotNil(t, tx.ExchangeRate)
		assert.Equal(t, "0.9", tx.ExchangeRate.String())
		require.NotNil(t, tx.OriginalAmount)

		remoteTx, ok := f.backend.Transaction(owner, tx.ID)
		require.True(t, ok)
		assert.Equal(t, want[tx.ID], remoteTx.Amount.String())
		assert.Equal(t, "EUR", remoteTx.Currency)
	}
	f.assertExclusive()

	var stored string
	require.True(t, f.persisted(store.KeyCurrency, &stored))
	assert.Equal(t, "EUR", stored)
	raw, ok := f.backend.Setting(owner, models.SettingCurrency)
	require.True(t, ok)
	assert.JSONEq(t, `"EUR"`, string(raw))
	raw, ok = f.backend.Setting(owner, models.SettingBudget)
	require.True(t, ok)
	assert.JSONEq(t, `"900"`, string(raw))
	assert.Empty(t, f.store.PendingOperations())
}

func TestSetCurrency_SecondChangeKeepsConversionConsistent(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.rates.Set("USD", "EUR", decimal.RequireFromString("0.9"))
	f.rates.Set("EUR", "GBP", decimal.RequireFromString("0.5"))
	tx := f.add(expense("50"))

	require.NoError(t, f.store.SetCurrency(ctx, "EUR"))
	require.NoError(t, f.store.SetCurrency(ctx, "GBP"))

	got, _, ok := f.store.Transaction(tx.ID)
	require.True(t, ok)
	assert.Equal(t, "GBP", got.Currency)
	assert.Equal(t, "22.5", got.Amount.String())
	require.NotNil(t, got.OriginalAmount)
	require.NotNil(t, got.ExchangeRate)
	assert.Equal(t, "45", got.OriginalAmount.String())
	assert.Equal(t, "0.5", got.ExchangeRate.String())
	assert.True(t, got.Amount.Equal(models.ConvertAmount(*got.OriginalAmount, *got.ExchangeRate)))
}

func TestSetCurrency_RateFailureChangesNothing(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.store.SetBudget(ctx, decimal.NewFromInt(100)))
	f.add(expense("10"))
	queued := len(f.store.PendingOperations())
	f.rates.SetError(errors.New("rate service down"))

	err := f.store.SetCurrency(ctx, "EUR")
	var rateErr *syncerror.RateError
	require.True(t, errors.As(err, &rateErr))
	assert.Equal(t, "USD", rateErr.From)

	assert.Equal(t, "USD", f.store.Settings().Currency)
	assert.Equal(t, "100", f.store.Settings().Budget.String())
	assert.Equal(t, "10", f.store.Transactions()[0].Amount.String())
	assert.Len(t, f.store.PendingOperations(), queued)
}

func TestSetCurrency_OfflineQueuesWholeBatch(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.rates.Set("USD", "GBP", decimal.RequireFromString("0.8"))
	f.add(expense("10"))
	f.add(expense("20"))
	queued := len(f.store.PendingOperations())

	require.NoError(t, f.store.SetCurrency(ctx, "GBP"))
	batch := f.store.PendingOperations()[queued:]
	assert.Equal(t, []queue.OpType{
		queue.OpUpdateTransaction, queue.OpUpdateTransaction,
		queue.OpSetBudget, queue.OpSetIncome, queue.OpSetCurrency,
	}, opTypes(batch))

	// Same currency is a no-op.
	require.NoError(t, f.store.SetCurrency(ctx, "gbp"))
	assert.Len(t, f.store.PendingOperations(), queued+5)

	assert.True(t, syncerror.IsValidation(f.store.SetCurrency(ctx, "pounds")))
}

func TestSetCurrency_ConcurrentCallsAreSerialized(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.rates.Set("USD", "EUR", decimal.RequireFromString("0.5"))
	f.rates.Set("EUR", "USD", decimal.RequireFromString("2"))
	f.add(expense("100"))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.store.SetCurrency(ctx, "EUR")
		}()
	}
	wg.Wait()

	// Only one conversion applies; the second call sees EUR and does nothing.
	assert.Equal(t, "50", f.store.Transactions()[0].Amount.String())
	assert.Equal(t, "EUR", f.store.Settings().Currency)
}

func TestSettings_SyncAndPersist(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, f.store.SetIncome(ctx, decimal.RequireFromString("2500.5")))
	require.NoError(t, f.store.SetIncomeStartDate(ctx, &start))
	assert.True(t, syncerror.IsValidation(f.store.SetBudget(ctx, decimal.NewFromInt(-1))))

	var income decimal.Decimal
	require.True(t, f.persisted(store.KeyIncome, &income))
	assert.Equal(t, "2500.5", income.String())

	raw, ok := f.backend.Setting(owner, models.SettingIncomeStartDate)
	require.True(t, ok)
	assert.JSONEq(t, `"2025-01-01T00:00:00Z"`, string(raw))

	require.NoError(t, f.store.SetIncomeStartDate(ctx, nil))
	assert.Nil(t, f.store.Settings().IncomeStartDate)
	raw, _ = f.backend.Setting(owner, models.SettingIncomeStartDate)
	assert.Equal(t, "null", string(raw))
}

func TestBudgetWarnings(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.store.SetBudget(ctx, decimal.NewFromInt(100)))
	assert.Empty(t, f.store.BudgetWarnings())

	f.add(expense("85"))
	warnings := f.store.BudgetWarnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "2025-04:80", warnings[0].Key)
	assert.True(t, f.logger.HasEntry("WARN", "Budget threshold reached"))

	income := expense("500")
	income.Type = models.TypeIncome
	f.add(income)
	lastMonth := expense("300")
	lastMonth.Date = baseTime.AddDate(0, -1, 0)
	f.add(lastMonth)
	assert.Len(t, f.store.BudgetWarnings(), 1)

	f.add(expense("20"))
	assert.Len(t, f.store.BudgetWarnings(), 2)
	assert.Equal(t, "105", f.store.MonthlySpending().String())

	require.NoError(t, f.store.DismissWarning(ctx, "2025-04:80"))
	require.NoError(t, f.store.DismissWarning(ctx, "2025-04:80"))
	warnings = f.store.BudgetWarnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, 100, warnings[0].Threshold)

	var dismissed []string
	require.True(t, f.persisted(store.KeyDismissedWarnings, &dismissed))
	assert.Equal(t, []string{"2025-04:80"}, dismissed)
	assert.Len(t, f.store.queue.Pending(queue.OpDismissWarning), 1)
}

func TestAchievements(t *testing.T) {
	evaluator := func(active []models.Transaction, current []models.Achievement) []models.Achievement {
		return []models.Achievement{{ID: "transactions", Progress: len(active)}}
	}
	f := newFixture(t, false, func(o *Options) { o.Evaluator = evaluator })
	ctx := context.Background()

	f.add(expense("1"))
	f.add(expense("2"))
	got := f.store.Achievements()
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Progress)

	unlocked := baseTime
	require.NoError(t, f.store.UpdateAchievements(ctx, []models.Achievement{{ID: "saver", Progress: 1, UnlockedAt: &unlocked}}))
	assert.Len(t, f.store.Achievements(), 2)

	remoteList, err := f.backend.FetchAchievements(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, remoteList, 2)
}
