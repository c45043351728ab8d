package expense

import (
	"context"
	"encoding/json"
	"time"

	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/models"
	"edwinliby/xpense-sync/internal/queue"
	"edwinliby/xpense-sync/internal/store"
	"edwinliby/xpense-sync/internal/syncer"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// snapshot is the remote state of one owner.
type snapshot struct {
	transactions []models.Transaction
	categories   []models.Category
	settings     map[string]json.RawMessage
	achievements []models.Achievement
}

// Load is Reload for the first session start.
func (s *Store) Load(ctx context.Context) error {
	return s.Reload(ctx)
}

// Reload rebuilds the state for the current identity:
//  1. local state of the identity is loaded from storage;
//  2. when logged in, the remote snapshot is fetched;
//  3. pending operations are replayed over it so unsynced changes stay visible;
//  4. transactions are split into active and trash by deletedAt;
//  5. the result is persisted as the new local baseline;
//  6. recurring templates are expanded.
//
// A failed remote fetch keeps the local state. Only errors reading the local
// queue are returned.
func (s *Store) Reload(ctx context.Context) error {
	owner := ""
	if s.session != nil {
		owner, _ = s.session.Current()
	}
	s.mu.Lock()
	// Background drains of the previous identity stop here; anything they
	// still hold is bound to the old queue epoch.
	s.sessionCancel()
	s.sessionCtx, s.sessionCancel = context.WithCancel(s.bgCtx)
	s.owner = owner
	s.storage = store.NewNamespaced(s.base, owner)
	s.queue.Reset(s.storage)
	s.resetLocked()
	s.loadLocalLocked(ctx)
	if err := s.queue.Load(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	var snap *snapshot
	if owner != "" && s.backend != nil && !s.monitor.IsOffline() {
		fetched, err := s.fetch(ctx, owner)
		if err != nil {
			s.logger.WithError(err).Warn("Remote fetch failed, using local state",
				logging.F(logging.FieldOwner, owner))
		} else {
			snap = fetched
		}
	}

	s.mu.Lock()
	if s.owner != owner {
		// Identity changed while fetching; that reload wins.
		s.mu.Unlock()
		return nil
	}
	if snap != nil {
		s.mergeLocked(snap, s.queue.Snapshot())
		s.persistLocked(ctx, store.AllKeys...)
	}

	res := s.expander.ExpandAll(s.transactions)
	var muts []mutation
	if !res.Empty() {
		for _, tpl := range res.Templates {
			if i := indexOf(s.transactions, tpl.ID); i >= 0 {
				s.transactions[i] = tpl
			}
			muts = append(muts, mut(queue.OpUpdateTransaction, tpl))
		}
		for _, inst := range res.Instances {
			muts = append(muts, mut(queue.OpAddTransaction, inst))
		}
		s.transactions = append(s.transactions, res.Instances...)
		sortByDate(s.transactions)
		s.persistLocked(ctx, store.KeyTransactions)
	}
	muts = append(muts, s.derivedLocked(ctx)...)

	s.logger.Info("State loaded",
		logging.F(logging.FieldOwner, owner),
		logging.F("remote", snap != nil),
		logging.F("transactions", len(s.transactions)),
		logging.F("trash", len(s.trash)),
		logging.F("pending", s.queue.Len()))
	s.commitLocked(ctx, muts)

	if owner != "" && s.queue.Len() > 0 && !s.monitor.IsOffline() {
		s.kickDrain()
	}
	return nil
}

func (s *Store) loadLocalLocked(ctx context.Context) {
	get := func(key string, v interface{}) {
		if _, err := store.GetJSON(ctx, s.storage, key, v); err != nil {
			s.logger.WithError(err).Warn("Failed to read local state", logging.F(logging.FieldKey, key))
		}
	}
	get(store.KeyTransactions, &s.transactions)
	get(store.KeyTrash, &s.trash)

	var categories []models.Category
	get(store.KeyCategories, &categories)
	if len(categories) > 0 {
		s.categories = withPredefined(s.predefined, categories)
	}
	get(store.KeyBudget, &s.settings.Budget)
	get(store.KeyIncome, &s.settings.Income)
	get(store.KeyIncomeStartDate, &s.settings.IncomeStartDate)
	get(store.KeyCurrency, &s.settings.Currency)
	get(store.KeyDismissedWarnings, &s.settings.DismissedWarnings)
	get(store.KeyAchievements, &s.achievements)
	if s.settings.Currency == "" {
		s.settings.Currency = s.defaultCcy
	}

	// Repair lists written by an older build that mixed the two.
	s.transactions, s.trash = partition(append(s.transactions, s.trash...))
}

func (s *Store) fetch(ctx context.Context, owner string) (*snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.transactions, err = s.backend.FetchTransactions(gctx, owner)
		return err
	})
	g.Go(func() error {
		var err error
		snap.categories, err = s.backend.FetchCategories(gctx, owner)
		return err
	})
	g.Go(func() error {
		var err error
		snap.settings, err = s.backend.FetchSettings(gctx, owner)
		return err
	})
	g.Go(func() error {
		var err error
		snap.achievements, err = s.backend.FetchAchievements(gctx, owner)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// mergeLocked replaces local state with snap overlaid by pending operations.
func (s *Store) mergeLocked(snap *snapshot, pending []queue.Operation) {
	txs := make(map[string]models.Transaction, len(snap.transactions))
	order := make([]string, 0, len(snap.transactions))
	for _, tx := range snap.transactions {
		if _, ok := txs[tx.ID]; !ok {
			order = append(order, tx.ID)
		}
		txs[tx.ID] = tx
	}
	cats := make(map[string]models.Category, len(snap.categories))
	catOrder := make([]string, 0, len(snap.categories))
	for _, c := range snap.categories {
		if _, ok := cats[c.ID]; !ok {
			catOrder = append(catOrder, c.ID)
		}
		cats[c.ID] = c
	}
	settings := s.settings
	for key, raw := range snap.settings {
		s.applySetting(&settings, key, raw)
	}
	achievements := snap.achievements
	if len(achievements) == 0 {
		achievements = s.achievements
	}

	for _, op := range pending {
		switch {
		case op.Type == queue.OpPermanentlyDeleteTransaction:
			var p queue.IDPayload
			if op.Decode(&p) == nil {
				delete(txs, p.ID)
			}
		case op.Type.IsTransactionOp():
			tx, err := syncer.DecodeTransaction(op)
			if err != nil {
				continue
			}
			if _, ok := txs[tx.ID]; !ok {
				order = append(order, tx.ID)
			}
			txs[tx.ID] = tx
		case op.Type == queue.OpDeleteCategory:
			var p queue.IDPayload
			if op.Decode(&p) == nil {
				delete(cats, p.ID)
			}
		case op.Type.IsCategoryOp():
			c, err := syncer.DecodeCategory(op)
			if err != nil {
				continue
			}
			if _, ok := cats[c.ID]; !ok {
				catOrder = append(catOrder, c.ID)
			}
			cats[c.ID] = c
		case op.Type == queue.OpUpdateAchievements:
			var list []models.Achievement
			if op.Decode(&list) == nil {
				achievements = mergeAchievements(achievements, list)
			}
		default:
			if key, ok := syncer.SettingKey(op.Type); ok {
				s.applySetting(&settings, key, op.Payload)
			}
		}
	}

	merged := make([]models.Transaction, 0, len(txs))
	for _, id := range order {
		if tx, ok := txs[id]; ok {
			merged = append(merged, tx)
		}
	}
	s.transactions, s.trash = partition(merged)

	custom := make([]models.Category, 0, len(cats))
	for _, id := range catOrder {
		if c, ok := cats[id]; ok {
			custom = append(custom, c)
		}
	}
	s.categories = withPredefined(s.predefined, custom)
	if settings.Currency == "" {
		settings.Currency = s.defaultCcy
	}
	s.settings = settings
	s.achievements = achievements
}

func (s *Store) applySetting(dst *models.Settings, key string, raw json.RawMessage) {
	var err error
	switch key {
	case models.SettingBudget:
		var v decimal.Decimal
		if err = json.Unmarshal(raw, &v); err == nil {
			dst.Budget = v
		}
	case models.SettingIncome:
		var v decimal.Decimal
		if err = json.Unmarshal(raw, &v); err == nil {
			dst.Income = v
		}
	case models.SettingIncomeStartDate:
		var v *time.Time
		if err = json.Unmarshal(raw, &v); err == nil {
			dst.IncomeStartDate = v
		}
	case models.SettingCurrency:
		var v string
		if err = json.Unmarshal(raw, &v); err == nil && v != "" {
			dst.Currency = v
		}
	case models.SettingDismissedWarnings:
		var v []string
		if err = json.Unmarshal(raw, &v); err == nil {
			dst.DismissedWarnings = v
		}
	}
	if err != nil {
		s.logger.WithError(err).Warn("Ignoring malformed setting", logging.F(logging.FieldKey, key))
	}
}

// partition splits txs by deletedAt and sorts both lists.
func partition(txs []models.Transaction) (active, trash []models.Transaction) {
	for _, tx := range txs {
		if tx.IsTrashed() {
			trash = append(trash, tx)
		} else {
			active = append(active, tx)
		}
	}
	sortByDate(active)
	sortByDeletedAt(trash)
	return active, trash
}

// withPredefined returns the predefined set followed by the other categories.
// A stored copy of a predefined category replaces the built-in one.
func withPredefined(predefined, stored []models.Category) []models.Category {
	byID := make(map[string]models.Category, len(stored))
	for _, c := range stored {
		byID[c.ID] = c
	}
	out := make([]models.Category, 0, len(predefined)+len(stored))
	seen := make(map[string]bool, len(predefined))
	for _, p := range predefined {
		if c, ok := byID[p.ID]; ok {
			c.IsPredefined = true
			p = c
		}
		out = append(out, p)
		seen[p.ID] = true
	}
	for _, c := range stored {
		if !seen[c.ID] {
			c.IsPredefined = false
			out = append(out, c)
			seen[c.ID] = true
		}
	}
	return out
}
