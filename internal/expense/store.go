// Package expense is the application-state object of the sync core. Every
// mutation is applied to memory and persisted locally before the call returns,
// then sent to the remote store directly or through the operation queue.
package expense

import (
	"context"
	"sort"
	"sync"
	"time"

	"edwinliby/xpense-sync/internal/connectivity"
	"edwinliby/xpense-sync/internal/currency"
	"edwinliby/xpense-sync/internal/identity"
	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/models"
	"edwinliby/xpense-sync/internal/queue"
	"edwinliby/xpense-sync/internal/recurring"
	"edwinliby/xpense-sync/internal/remote"
	"edwinliby/xpense-sync/internal/scheduler"
	"edwinliby/xpense-sync/internal/store"
	"edwinliby/xpense-sync/internal/syncer"

	"github.com/google/uuid"
)

// Scheduler job names.
const (
	SweepJob = "trash-sweeper"
	RetryJob = "sync-retry"
)

// Defaults applied by New for zero Options fields.
const (
	DefaultRetention     = 72 * time.Hour
	DefaultSweepInterval = time.Minute
	DefaultRetryInterval = 30 * time.Second
	DefaultRemoteTimeout = 15 * time.Second
)

// AchievementEvaluator recomputes achievement progress after a transaction
// mutation. It returns nil when nothing changed.
type AchievementEvaluator func(active []models.Transaction, current []models.Achievement) []models.Achievement

// Options configures a Store. Storage is required; everything else has a
// usable default.
type Options struct {
	Storage   store.Storage
	Backend   remote.Backend
	Session   *identity.Session
	Monitor   *connectivity.Monitor
	Rates     currency.RateProvider
	Scheduler *scheduler.Scheduler
	Logger    logging.Logger

	Clock func() time.Time
	NewID func() string

	Retention     time.Duration
	SweepInterval time.Duration
	RetryInterval time.Duration
	RemoteTimeout time.Duration
	HorizonMonths int

	PredefinedCategories []models.Category
	DefaultCurrency      string
	Evaluator            AchievementEvaluator
}

// Store owns the in-memory state for the current identity.
type Store struct {
	// mu guards the state below. dispatchMu serializes remote dispatch so
	// that mutations reach the remote in the order they were applied.
	mu         sync.RWMutex
	dispatchMu sync.Mutex
	currencyMu sync.Mutex

	owner        string
	transactions []models.Transaction
	trash        []models.Transaction
	categories   []models.Category
	settings     models.Settings
	achievements []models.Achievement
	raised       map[string]bool

	base     store.Storage
	storage  store.Storage
	queue    *queue.Queue
	syncer   *syncer.Synchronizer
	backend  remote.Backend
	session  *identity.Session
	monitor  *connectivity.Monitor
	rates    currency.RateProvider
	sched    *scheduler.Scheduler
	expander *recurring.Expander
	logger   logging.Logger

	clock         func() time.Time
	newID         func() string
	retention     time.Duration
	sweepInterval time.Duration
	retryInterval time.Duration
	predefined    []models.Category
	defaultCcy    string
	evaluator     AchievementEvaluator

	bgCtx    context.Context
	bgCancel context.CancelFunc
	drains   sync.WaitGroup
	lifeMu   sync.Mutex
	started  bool
	closed   bool

	// sessionCtx is cancelled on every identity change; guarded by mu.
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
}

// New builds a Store from opts. Call Load before use.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	monitor := opts.Monitor
	if monitor == nil {
		monitor = connectivity.NewMonitor(nil, false, logger)
	}
	predefined := opts.PredefinedCategories
	if len(predefined) == 0 {
		predefined = models.DefaultCategories()
	}
	defaultCcy := currency.NormalizeCode(opts.DefaultCurrency)
	if defaultCcy == "" {
		defaultCcy = models.DefaultCurrency
	}
	timeout := opts.RemoteTimeout
	if timeout == 0 {
		timeout = DefaultRemoteTimeout
	}

	expander := recurring.New(opts.HorizonMonths)
	expander.Now = clock
	expander.NewID = newID

	q := queue.New(store.NewNamespaced(opts.Storage, ""), logger)
	q.SetClock(clock)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	sessionCtx, sessionCancel := context.WithCancel(bgCtx)
	s := &Store{
		base:          opts.Storage,
		storage:       store.NewNamespaced(opts.Storage, ""),
		queue:         q,
		backend:       opts.Backend,
		session:       opts.Session,
		monitor:       monitor,
		rates:         opts.Rates,
		sched:         opts.Scheduler,
		expander:      expander,
		logger:        logger,
		clock:         clock,
		newID:         newID,
		retention:     withDefault(opts.Retention, DefaultRetention),
		sweepInterval: withDefault(opts.SweepInterval, DefaultSweepInterval),
		retryInterval: withDefault(opts.RetryInterval, DefaultRetryInterval),
		predefined:    models.CloneCategories(predefined),
		defaultCcy:    defaultCcy,
		evaluator:     opts.Evaluator,
		bgCtx:         bgCtx,
		bgCancel:      bgCancel,
		sessionCtx:    sessionCtx,
		sessionCancel: sessionCancel,
		raised:        make(map[string]bool),
	}
	if opts.Backend != nil {
		s.syncer = syncer.New(opts.Backend, logger, timeout)
	}
	s.resetLocked()

	monitor.OnChange(s.onConnectivityChange)
	if opts.Session != nil {
		opts.Session.OnChange(s.onIdentityChange)
	}
	return s
}

func withDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// resetLocked restores the empty state of a fresh identity.
func (s *Store) resetLocked() {
	s.transactions = nil
	s.trash = nil
	s.categories = models.CloneCategories(s.predefined)
	s.settings = models.Settings{Currency: s.defaultCcy}
	s.achievements = nil
	s.raised = make(map[string]bool)
}

func (s *Store) onConnectivityChange(offline bool) {
	if offline {
		return
	}
	s.kickDrain()
}

func (s *Store) onIdentityChange(string) {
	if err := s.Reload(s.bgCtx); err != nil {
		s.logger.WithError(err).Error("Reload after identity change failed")
	}
}

// Owner returns the identity the state belongs to; empty when anonymous.
func (s *Store) Owner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// Offline reports the monitor state.
func (s *Store) Offline() bool {
	return s.monitor.IsOffline()
}

// Transactions returns the active transactions, newest first.
func (s *Store) Transactions() []models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneTransactions(s.transactions)
}

// Trash returns the soft-deleted transactions, most recently deleted first.
func (s *Store) Trash() []models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneTransactions(s.trash)
}

// Transaction looks up id in both lists.
func (s *Store) Transaction(id string) (tx models.Transaction, trashed bool, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.transactions, id); i >= 0 {
		return s.transactions[i].Clone(), false, true
	}
	if i := indexOf(s.trash, id); i >= 0 {
		return s.trash[i].Clone(), true, true
	}
	return models.Transaction{}, false, false
}

// Categories returns the category set, predefined first.
func (s *Store) Categories() []models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneCategories(s.categories)
}

// Settings returns a copy of the current settings.
func (s *Store) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.settings
	out.DismissedWarnings = append([]string(nil), s.settings.DismissedWarnings...)
	if s.settings.IncomeStartDate != nil {
		out.IncomeStartDate = models.TimePtr(*s.settings.IncomeStartDate)
	}
	return out
}

// Achievements returns the achievement list.
func (s *Store) Achievements() []models.Achievement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Achievement(nil), s.achievements...)
}

// PendingOperations returns the queued operations in order.
func (s *Store) PendingOperations() []queue.Operation {
	return s.queue.Snapshot()
}

// Start registers the trash sweeper and the drain retry job and starts the
// scheduler. It is a no-op after the first call or without a scheduler.
func (s *Store) Start() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.started || s.closed || s.sched == nil {
		return nil
	}
	if err := s.sched.Every(SweepJob, s.sweepInterval, func(ctx context.Context) {
		s.Sweep(ctx)
	}); err != nil {
		return err
	}
	if err := s.sched.Every(RetryJob, s.retryInterval, func(ctx context.Context) {
		if s.queue.Len() > 0 && !s.monitor.IsOffline() {
			s.Drain(ctx)
		}
	}); err != nil {
		return err
	}
	s.sched.Start()
	s.started = true
	return nil
}

// Close stops scheduled jobs and waits for background drains.
func (s *Store) Close(ctx context.Context) {
	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return
	}
	s.closed = true
	s.lifeMu.Unlock()

	if s.sched != nil {
		s.sched.Stop(ctx)
	}
	s.bgCancel()

	done := make(chan struct{})
	go func() {
		s.drains.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Close timed out waiting for drains")
	}
}

// persistLocked writes the given keys. Failures are logged and swallowed.
func (s *Store) persistLocked(ctx context.Context, keys ...string) {
	for _, key := range keys {
		var v interface{}
		switch key {
		case store.KeyTransactions:
			v = s.transactions
		case store.KeyTrash:
			v = s.trash
		case store.KeyCategories:
			v = s.categories
		case store.KeyBudget:
			v = s.settings.Budget
		case store.KeyIncome:
			v = s.settings.Income
		case store.KeyIncomeStartDate:
			v = s.settings.IncomeStartDate
		case store.KeyCurrency:
			v = s.settings.Currency
		case store.KeyDismissedWarnings:
			v = s.settings.DismissedWarnings
		case store.KeyAchievements:
			v = s.achievements
		default:
			continue
		}
		if err := store.SetJSON(ctx, s.storage, key, v); err != nil {
			s.logger.WithError(err).Warn("Failed to persist local state",
				logging.F(logging.FieldKey, key))
		}
	}
}

func indexOf(txs []models.Transaction, id string) int {
	for i := range txs {
		if txs[i].ID == id {
			return i
		}
	}
	return -1
}

func removeAt(txs []models.Transaction, i int) []models.Transaction {
	return append(txs[:i:i], txs[i+1:]...)
}

func sortByDate(txs []models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date)
	})
}

func sortByDeletedAt(txs []models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i].DeletedAt, txs[j].DeletedAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})
}
