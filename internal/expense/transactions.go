package expense

import (
	"context"
	"strings"

	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/models"
	"edwinliby/xpense-sync/internal/queue"
	"edwinliby/xpense-sync/internal/store"
	"edwinliby/xpense-sync/internal/syncerror"
)

var txKeys = []string{store.KeyTransactions, store.KeyTrash}

func validateTransaction(tx models.Transaction) error {
	if !tx.Amount.IsPositive() {
		return syncerror.NewValidationError("amount", "must be positive")
	}
	if !tx.Type.IsValid() {
		return syncerror.NewValidationError("type", "must be income or expense")
	}
	if strings.TrimSpace(tx.Category) == "" {
		return syncerror.NewValidationError("category", "must not be empty")
	}
	if tx.Date.IsZero() {
		return syncerror.NewValidationError("date", "must be set")
	}
	return nil
}

// AddTransaction stores a new transaction and returns it with its id. A
// recurring template also gets its instances up to the horizon.
func (s *Store) AddTransaction(ctx context.Context, in models.Transaction) (models.Transaction, error) {
	if err := validateTransaction(in); err != nil {
		return models.Transaction{}, err
	}
	tx := in.Clone()
	if tx.ID == "" {
		tx.ID = s.newID()
	}
	tx.Amount = models.RoundAmount(tx.Amount)
	tx.DeletedAt = nil
	tx.NextOccurrence = nil

	s.mu.Lock()
	if indexOf(s.transactions, tx.ID) >= 0 || indexOf(s.trash, tx.ID) >= 0 {
		s.mu.Unlock()
		return models.Transaction{}, syncerror.NewValidationError("id", "already exists")
	}
	if tx.Currency == "" {
		tx.Currency = s.settings.Currency
	}

	var instances []models.Transaction
	if tx.IsTemplate() {
		tx, instances, _ = s.expander.Expand(tx)
	}
	s.transactions = append(s.transactions, tx)
	s.transactions = append(s.transactions, instances...)
	sortByDate(s.transactions)
	s.persistLocked(ctx, txKeys...)

	muts := []mutation{mut(queue.OpAddTransaction, tx)}
	for _, inst := range instances {
		muts = append(muts, mut(queue.OpAddTransaction, inst))
	}
	muts = append(muts, s.derivedLocked(ctx)...)

	s.logger.Info("Transaction added",
		logging.F(logging.FieldTransactionID, tx.ID),
		logging.F(logging.FieldCategory, tx.Category),
		logging.F(logging.FieldCount, len(instances)))
	s.commitLocked(ctx, muts)
	return tx.Clone(), nil
}

// EditTransaction replaces an active transaction. Changing a template's date
// or interval restarts its schedule from the new date.
func (s *Store) EditTransaction(ctx context.Context, in models.Transaction) (models.Transaction, error) {
	if err := validateTransaction(in); err != nil {
		return models.Transaction{}, err
	}

	s.mu.Lock()
	i := indexOf(s.transactions, in.ID)
	if i < 0 {
		s.mu.Unlock()
		return models.Transaction{}, syncerror.ErrNotFound
	}
	prev := s.transactions[i]
	tx := in.Clone()
	tx.Amount = models.RoundAmount(tx.Amount)
	tx.DeletedAt = nil
	if !tx.IsRecurring {
		tx.NextOccurrence = nil
		tx.RecurrenceInterval = ""
	} else if !prev.IsTemplate() || !prev.Date.Equal(tx.Date) || prev.Interval() != tx.Interval() {
		tx.NextOccurrence = nil
	} else {
		tx.NextOccurrence = prev.NextOccurrence
	}

	var instances []models.Transaction
	if tx.IsTemplate() {
		tx, instances, _ = s.expander.Expand(tx)
	}
	s.transactions[i] = tx
	s.transactions = append(s.transactions, instances...)
	sortByDate(s.transactions)
	s.persistLocked(ctx, txKeys...)

	muts := []mutation{mut(queue.OpUpdateTransaction, tx)}
	for _, inst := range instances {
		muts = append(muts, mut(queue.OpAddTransaction, inst))
	}
	muts = append(muts, s.derivedLocked(ctx)...)

	s.logger.Info("Transaction edited", logging.F(logging.FieldTransactionID, tx.ID))
	s.commitLocked(ctx, muts)
	return tx.Clone(), nil
}

// MarkPaidBack sets the repayment flag of a lent transaction.
func (s *Store) MarkPaidBack(ctx context.Context, id string, paid bool) (models.Transaction, error) {
	tx, trashed, ok := s.Transaction(id)
	if !ok || trashed {
		return models.Transaction{}, syncerror.ErrNotFound
	}
	tx.IsPaidBack = paid
	return s.EditTransaction(ctx, tx)
}

// DeleteTransaction moves a transaction to the trash. Deleting a recurring
// template also trashes its instances dated after now, in the same step.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	i := indexOf(s.transactions, id)
	if i < 0 {
		s.mu.Unlock()
		return syncerror.ErrNotFound
	}
	now := s.clock()
	tx := s.transactions[i]

	ids := map[string]bool{id: true}
	if tx.IsTemplate() {
		for _, other := range s.transactions {
			if other.ParentID == id && other.Date.After(now) {
				ids[other.ID] = true
			}
		}
	}

	var muts []mutation
	kept := s.transactions[:0:0]
	for _, t := range s.transactions {
		if !ids[t.ID] {
			kept = append(kept, t)
			continue
		}
		t.DeletedAt = models.TimePtr(now)
		s.trash = append(s.trash, t)
		muts = append(muts, mut(queue.OpDeleteTransaction, t))
	}
	s.transactions = kept
	sortByDeletedAt(s.trash)
	s.persistLocked(ctx, txKeys...)
	muts = append(muts, s.derivedLocked(ctx)...)

	s.logger.Info("Transaction moved to trash",
		logging.F(logging.FieldTransactionID, id),
		logging.F(logging.FieldCount, len(ids)))
	s.commitLocked(ctx, muts)
	return nil
}

// RestoreTransaction moves a trashed transaction back to the active list.
func (s *Store) RestoreTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	i := indexOf(s.trash, id)
	if i < 0 {
		s.mu.Unlock()
		return syncerror.ErrNotFound
	}
	tx := s.trash[i]
	tx.DeletedAt = nil
	s.trash = removeAt(s.trash, i)
	s.transactions = append(s.transactions, tx)
	sortByDate(s.transactions)
	s.persistLocked(ctx, txKeys...)

	muts := []mutation{mut(queue.OpRestoreTransaction, tx)}
	muts = append(muts, s.derivedLocked(ctx)...)

	s.logger.Info("Transaction restored", logging.F(logging.FieldTransactionID, id))
	s.commitLocked(ctx, muts)
	return nil
}

// PermanentlyDeleteTransaction removes a trashed transaction for good.
func (s *Store) PermanentlyDeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	i := indexOf(s.trash, id)
	if i < 0 {
		s.mu.Unlock()
		return syncerror.ErrNotFound
	}
	s.trash = removeAt(s.trash, i)
	s.persistLocked(ctx, store.KeyTrash)

	s.logger.Info("Transaction permanently deleted", logging.F(logging.FieldTransactionID, id))
	s.commitLocked(ctx, []mutation{mut(queue.OpPermanentlyDeleteTransaction, queue.IDPayload{ID: id})})
	return nil
}

// EmptyTrash permanently deletes every trashed transaction.
func (s *Store) EmptyTrash(ctx context.Context) int {
	s.mu.Lock()
	muts := make([]mutation, 0, len(s.trash))
	for _, t := range s.trash {
		muts = append(muts, mut(queue.OpPermanentlyDeleteTransaction, queue.IDPayload{ID: t.ID}))
	}
	s.trash = nil
	s.persistLocked(ctx, store.KeyTrash)
	s.commitLocked(ctx, muts)
	return len(muts)
}
