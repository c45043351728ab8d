package remote

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"edwinliby/xpense-sync/internal/models"
)

// ErrUnavailable is returned by MemoryBackend when a failure is injected.
var ErrUnavailable = errors.New("remote unavailable")

// Hook runs before every MemoryBackend call. A non-nil error fails the call.
// Hooks may block to simulate a slow remote.
type Hook func(ctx context.Context, method, id string) error

type ownerData struct {
	transactions map[string]models.Transaction
	categories   map[string]models.Category
	settings     map[string]json.RawMessage
	achievements map[string]models.Achievement
}

// Call records one MemoryBackend invocation.
type Call struct {
	Method string
	Owner  string
	ID     string
}

// MemoryBackend is an in-process Backend. It is used by the memory remote
// driver and as a controllable fake in tests.
type MemoryBackend struct {
	mu       sync.Mutex
	owners   map[string]*ownerData
	calls    []Call
	failAll  bool
	failNext int
	hook     Hook
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{owners: make(map[string]*ownerData)}
}

// SetUnavailable makes every subsequent call fail until reset.
func (m *MemoryBackend) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = down
}

// FailNext makes the next n calls fail.
func (m *MemoryBackend) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// SetHook installs h. Pass nil to remove it.
func (m *MemoryBackend) SetHook(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = h
}

// Calls returns a copy of the call log.
func (m *MemoryBackend) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times method was invoked.
func (m *MemoryBackend) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (m *MemoryBackend) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// enter logs the call, runs the hook outside the lock and applies injected
// failures. On success it returns with m.mu held.
func (m *MemoryBackend) enter(ctx context.Context, method, owner, id string) error {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Method: method, Owner: owner, ID: id})
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, method, id); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.failAll {
		m.mu.Unlock()
		return ErrUnavailable
	}
	if m.failNext > 0 {
		m.failNext--
		m.mu.Unlock()
		return ErrUnavailable
	}
	return nil
}

func (m *MemoryBackend) data(owner string) *ownerData {
	d, ok := m.owners[owner]
	if !ok {
		d = &ownerData{
			transactions: make(map[string]models.Transaction),
			categories:   make(map[string]models.Category),
			settings:     make(map[string]json.RawMessage),
			achievements: make(map[string]models.Achievement),
		}
		m.owners[owner] = d
	}
	return d
}

func (m *MemoryBackend) InsertTransaction(ctx context.Context, owner string, tx models.Transaction) error {
	if err := m.enter(ctx, "InsertTransaction", owner, tx.ID); err != nil {
		return remoteErr("insert", CollectionTransactions, tx.ID, err)
	}
	defer m.mu.Unlock()
	m.data(owner).transactions[tx.ID] = tx.Clone()
	return nil
}

func (m *MemoryBackend) UpdateTransaction(ctx context.Context, owner string, tx models.Transaction) error {
	if err := m.enter(ctx, "UpdateTransaction", owner, tx.ID); err != nil {
		return remoteErr("update", CollectionTransactions, tx.ID, err)
	}
	defer m.mu.Unlock()
	d := m.data(owner)
	if _, ok := d.transactions[tx.ID]; ok {
		d.transactions[tx.ID] = tx.Clone()
	}
	return nil
}

func (m *MemoryBackend) DeleteTransaction(ctx context.Context, owner, id string) error {
	if err := m.enter(ctx, "DeleteTransaction", owner, id); err != nil {
		return remoteErr("delete", CollectionTransactions, id, err)
	}
	defer m.mu.Unlock()
	delete(m.data(owner).transactions, id)
	return nil
}

func (m *MemoryBackend) FetchTransactions(ctx context.Context, owner string) ([]models.Transaction, error) {
	if err := m.enter(ctx, "FetchTransactions", owner, ""); err != nil {
		return nil, remoteErr("fetch", CollectionTransactions, "", err)
	}
	defer m.mu.Unlock()
	d := m.data(owner)
	out := make([]models.Transaction, 0, len(d.transactions))
	for _, tx := range d.transactions {
		out = append(out, tx.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

func (m *MemoryBackend) InsertCategory(ctx context.Context, owner string, c models.Category) error {
	if err := m.enter(ctx, "InsertCategory", owner, c.ID); err != nil {
		return remoteErr("insert", CollectionCategories, c.ID, err)
	}
	defer m.mu.Unlock()
	m.data(owner).categories[c.ID] = c
	return nil
}

func (m *MemoryBackend) UpdateCategory(ctx context.Context, owner string, c models.Category) error {
	if err := m.enter(ctx, "UpdateCategory", owner, c.ID); err != nil {
		return remoteErr("update", CollectionCategories, c.ID, err)
	}
	defer m.mu.Unlock()
	d := m.data(owner)
	if _, ok := d.categories[c.ID]; ok {
		d.categories[c.ID] = c
	}
	return nil
}

func (m *MemoryBackend) DeleteCategory(ctx context.Context, owner, id string) error {
	if err := m.enter(ctx, "DeleteCategory", owner, id); err != nil {
		return remoteErr("delete", CollectionCategories, id, err)
	}
	defer m.mu.Unlock()
	delete(m.data(owner).categories, id)
	return nil
}

func (m *MemoryBackend) FetchCategories(ctx context.Context, owner string) ([]models.Category, error) {
	if err := m.enter(ctx, "FetchCategories", owner, ""); err != nil {
		return nil, remoteErr("fetch", CollectionCategories, "", err)
	}
	defer m.mu.Unlock()
	d := m.data(owner)
	out := make([]models.Category, 0, len(d.categories))
	for _, c := range d.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryBackend) UpsertSetting(ctx context.Context, owner, key string, value json.RawMessage) error {
	if err := m.enter(ctx, "UpsertSetting", owner, key); err != nil {
		return remoteErr("upsert", CollectionSettings, key, err)
	}
	defer m.mu.Unlock()
	cp := make(json.RawMessage, len(value))
	copy(cp, value)
	m.data(owner).settings[key] = cp
	return nil
}

func (m *MemoryBackend) FetchSettings(ctx context.Context, owner string) (map[string]json.RawMessage, error) {
	if err := m.enter(ctx, "FetchSettings", owner, ""); err != nil {
		return nil, remoteErr("fetch", CollectionSettings, "", err)
	}
	defer m.mu.Unlock()
	d := m.data(owner)
	out := make(map[string]json.RawMessage, len(d.settings))
	for k, v := range d.settings {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryBackend) UpsertAchievements(ctx context.Context, owner string, achievements []models.Achievement) error {
	if err := m.enter(ctx, "UpsertAchievements", owner, ""); err != nil {
		return remoteErr("upsert", CollectionAchievements, "", err)
	}
	defer m.mu.Unlock()
	d := m.data(owner)
	for _, a := range achievements {
		d.achievements[a.ID] = a
	}
	return nil
}

func (m *MemoryBackend) FetchAchievements(ctx context.Context, owner string) ([]models.Achievement, error) {
	if err := m.enter(ctx, "FetchAchievements", owner, ""); err != nil {
		return nil, remoteErr("fetch", CollectionAchievements, "", err)
	}
	defer m.mu.Unlock()
	d := m.data(owner)
	out := make([]models.Achievement, 0, len(d.achievements))
	for _, a := range d.achievements {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Seed stores transactions directly, bypassing the call log and failures.
func (m *MemoryBackend) Seed(owner string, txs ...models.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.data(owner)
	for _, tx := range txs {
		d.transactions[tx.ID] = tx.Clone()
	}
}

// SeedCategories stores categories directly.
func (m *MemoryBackend) SeedCategories(owner string, cats ...models.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.data(owner)
	for _, c := range cats {
		d.categories[c.ID] = c
	}
}

// Transaction returns the stored transaction with id, if any.
func (m *MemoryBackend) Transaction(owner, id string) (models.Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.data(owner).transactions[id]
	return tx.Clone(), ok
}

// Setting returns the raw stored value of a setting.
func (m *MemoryBackend) Setting(owner, key string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data(owner).settings[key]
	return v, ok
}
