package expense

import (
	"context"
	"time"

	"edwinliby/xpense-sync/internal/currency"
	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/models"
	"edwinliby/xpense-sync/internal/queue"
	"edwinliby/xpense-sync/internal/store"
	"edwinliby/xpense-sync/internal/syncerror"

	"github.com/shopspring/decimal"
)

// SetBudget sets the monthly budget.
func (s *Store) SetBudget(ctx context.Context, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return syncerror.NewValidationError("budget", "must not be negative")
	}
	amount = models.RoundAmount(amount)

	s.mu.Lock()
	s.settings.Budget = amount
	s.persistLocked(ctx, store.KeyBudget)
	muts := []mutation{mut(queue.OpSetBudget, amount)}
	muts = append(muts, s.derivedLocked(ctx)...)
	s.commitLocked(ctx, muts)
	return nil
}

// SetIncome sets the monthly income.
func (s *Store) SetIncome(ctx context.Context, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return syncerror.NewValidationError("income", "must not be negative")
	}
	amount = models.RoundAmount(amount)

	s.mu.Lock()
	s.settings.Income = amount
	s.persistLocked(ctx, store.KeyIncome)
	s.commitLocked(ctx, []mutation{mut(queue.OpSetIncome, amount)})
	return nil
}

// SetIncomeStartDate sets or, with nil, clears the date income is counted from.
func (s *Store) SetIncomeStartDate(ctx context.Context, date *time.Time) error {
	var v *time.Time
	if date != nil {
		v = models.TimePtr(date.UTC())
	}

	s.mu.Lock()
	s.settings.IncomeStartDate = v
	s.persistLocked(ctx, store.KeyIncomeStartDate)
	s.commitLocked(ctx, []mutation{mut(queue.OpSetIncomeStartDate, v)})
	return nil
}

// SetCurrency converts every amount to code at the current rate. The rate is
// fetched first; if that fails nothing changes and a RateError is returned.
// Otherwise budget, income and every active and trashed transaction are
// rewritten and each change is sent as its own operation, so a partial or
// offline failure leaves the full batch queued. Concurrent calls run one at
// a time.
func (s *Store) SetCurrency(ctx context.Context, code string) error {
	code = currency.NormalizeCode(code)
	if !currency.ValidCode(code) {
		return syncerror.NewValidationError("currency", "must be a three letter ISO code")
	}

	s.currencyMu.Lock()
	defer s.currencyMu.Unlock()

	from := s.Settings().Currency
	if from == code {
		return nil
	}
	if s.rates == nil {
		return &syncerror.RateError{From: from, To: code, Err: errNoRateProvider}
	}
	rate, err := s.rates.FetchRate(ctx, from, code)
	if err != nil {
		s.logger.WithError(err).Error("Currency change aborted",
			logging.F(logging.FieldCurrency, code))
		return err
	}

	s.mu.Lock()
	var muts []mutation
	convert := func(tx models.Transaction) models.Transaction {
		// OriginalAmount and ExchangeRate describe the latest conversion so
		// that Amount is always OriginalAmount times ExchangeRate.
		original := tx.Amount
		tx.OriginalAmount = &original
		r := rate
		tx.ExchangeRate = &r
		tx.Amount = models.ConvertAmount(original, rate)
		tx.Currency = code
		return tx
	}
	for i := range s.transactions {
		s.transactions[i] = convert(s.transactions[i])
		muts = append(muts, mut(queue.OpUpdateTransaction, s.transactions[i]))
	}
	for i := range s.trash {
		s.trash[i] = convert(s.trash[i])
		muts = append(muts, mut(queue.OpUpdateTransaction, s.trash[i]))
	}
	s.settings.Budget = models.ConvertAmount(s.settings.Budget, rate)
	s.settings.Income = models.ConvertAmount(s.settings.Income, rate)
	s.settings.Currency = code
	muts = append(muts,
		mut(queue.OpSetBudget, s.settings.Budget),
		mut(queue.OpSetIncome, s.settings.Income),
		mut(queue.OpSetCurrency, code),
	)
	s.persistLocked(ctx, store.KeyTransactions, store.KeyTrash, store.KeyBudget, store.KeyIncome, store.KeyCurrency)
	muts = append(muts, s.derivedLocked(ctx)...)

	s.logger.Info("Currency changed",
		logging.F(logging.FieldCurrency, code),
		logging.F(logging.FieldRate, rate.String()),
		logging.F(logging.FieldCount, len(s.transactions)+len(s.trash)))
	s.commitLocked(ctx, muts)
	return nil
}

// DismissWarning hides a budget warning by key.
func (s *Store) DismissWarning(ctx context.Context, key string) error {
	if key == "" {
		return syncerror.NewValidationError("warning", "must not be empty")
	}
	s.mu.Lock()
	for _, k := range s.settings.DismissedWarnings {
		if k == key {
			s.mu.Unlock()
			return nil
		}
	}
	s.settings.DismissedWarnings = append(s.settings.DismissedWarnings, key)
	dismissed := append([]string(nil), s.settings.DismissedWarnings...)
	s.persistLocked(ctx, store.KeyDismissedWarnings)
	s.commitLocked(ctx, []mutation{mut(queue.OpDismissWarning, dismissed)})
	return nil
}

// UpdateAchievements merges achievements by id. The remote copy is
// overwritten, last writer wins.
func (s *Store) UpdateAchievements(ctx context.Context, achievements []models.Achievement) error {
	s.mu.Lock()
	s.achievements = mergeAchievements(s.achievements, achievements)
	all := append([]models.Achievement(nil), s.achievements...)
	s.persistLocked(ctx, store.KeyAchievements)
	s.commitLocked(ctx, []mutation{mut(queue.OpUpdateAchievements, all)})
	return nil
}

func mergeAchievements(current, updates []models.Achievement) []models.Achievement {
	out := append([]models.Achievement(nil), current...)
	for _, u := range updates {
		found := false
		for i := range out {
			if out[i].ID == u.ID {
				out[i] = u
				found = true
				break
			}
		}
		if !found {
			out = append(out, u)
		}
	}
	return out
}
