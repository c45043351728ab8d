package expense

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"edwinliby/xpense-sync/internal/dateutils"
	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/models"
	"edwinliby/xpense-sync/internal/queue"
	"edwinliby/xpense-sync/internal/store"

	"github.com/shopspring/decimal"
)

var errNoRateProvider = errors.New("no rate provider configured")

// WarningThresholds are the budget percentages that raise a warning.
var WarningThresholds = []int{80, 100}

// WarningKey identifies the warning for month and threshold, e.g. "2025-06:80".
func WarningKey(month string, threshold int) string {
	return fmt.Sprintf("%s:%d", month, threshold)
}

// MonthlySpending sums active expenses in the current month.
func (s *Store) MonthlySpending() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spentLocked()
}

func (s *Store) spentLocked() decimal.Decimal {
	now := s.clock()
	spent := decimal.Zero
	for _, tx := range s.transactions {
		if tx.Type == models.TypeExpense && dateutils.SameMonth(tx.Date, now) {
			spent = spent.Add(tx.Amount)
		}
	}
	return spent
}

// BudgetWarnings returns the undismissed warnings for the current month.
func (s *Store) BudgetWarnings() []models.BudgetWarning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warningsLocked()
}

func (s *Store) warningsLocked() []models.BudgetWarning {
	budget := s.settings.Budget
	if !budget.IsPositive() {
		return nil
	}
	dismissed := make(map[string]bool, len(s.settings.DismissedWarnings))
	for _, k := range s.settings.DismissedWarnings {
		dismissed[k] = true
	}
	spent := s.spentLocked()
	month := dateutils.MonthKey(s.clock())

	var out []models.BudgetWarning
	for _, t := range WarningThresholds {
		limit := budget.Mul(decimal.NewFromInt(int64(t))).Div(decimal.NewFromInt(100))
		key := WarningKey(month, t)
		if spent.LessThan(limit) || dismissed[key] {
			continue
		}
		out = append(out, models.BudgetWarning{Key: key, Threshold: t, Spent: spent, Budget: budget})
	}
	return out
}

// derivedLocked recomputes state that depends on transactions and settings.
// It logs newly raised budget warnings and returns the achievement update, if any.
func (s *Store) derivedLocked(ctx context.Context) []mutation {
	for _, w := range s.warningsLocked() {
		if s.raised[w.Key] {
			continue
		}
		s.raised[w.Key] = true
		s.logger.Warn("Budget threshold reached",
			logging.F(logging.FieldKey, w.Key),
			logging.F("spent", w.Spent.String()),
			logging.F("budget", w.Budget.String()))
	}

	if s.evaluator == nil {
		return nil
	}
	next := s.evaluator(models.CloneTransactions(s.transactions), append([]models.Achievement(nil), s.achievements...))
	if next == nil {
		return nil
	}
	merged := mergeAchievements(s.achievements, next)
	if reflect.DeepEqual(merged, s.achievements) {
		return nil
	}
	s.achievements = merged
	s.persistLocked(ctx, store.KeyAchievements)
	return []mutation{mut(queue.OpUpdateAchievements, append([]models.Achievement(nil), s.achievements...))}
}
