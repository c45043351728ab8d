// Package models provides the data structures shared by the sync core: the
// entities persisted locally, replayed through the operation queue and stored remotely.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes money coming in from money going out.
type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// IsValid reports whether t is one of the known transaction types.
func (t TransactionType) IsValid() bool {
	return t == TypeIncome || t == TypeExpense
}

// Recurrence intervals understood by the recurring expander.
const (
	IntervalWeekly  = "weekly"
	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"
)

// Transaction is a single income or expense record.
//
// A transaction is active while DeletedAt is nil and trashed otherwise. The
// expense store keeps active and trashed transactions in two disjoint lists.
type Transaction struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Category    string          `json:"category"` // Category.Name, not Category.ID
	Date        time.Time       `json:"date"`
	Description string          `json:"description,omitempty"`
	Receipt     string          `json:"receipt,omitempty"`

	// Peer debt
	IsFriendPayment bool   `json:"isFriendPayment,omitempty"`
	PaidBy          string `json:"paidBy,omitempty"`
	IsLent          bool   `json:"isLent,omitempty"`
	LentTo          string `json:"lentTo,omitempty"`
	IsPaidBack      bool   `json:"isPaidBack,omitempty"`

	// Recurrence. ParentID links a generated instance back to its template.
	IsRecurring        bool       `json:"isRecurring,omitempty"`
	RecurrenceInterval string     `json:"recurrenceInterval,omitempty"`
	NextOccurrence     *time.Time `json:"nextOccurrence,omitempty"`
	ParentID           string     `json:"parentId,omitempty"`

	DeletedAt *time.Time `json:"deletedAt"`

	// Set when the amount was converted from another currency. OriginalAmount
	// is the amount before the latest conversion.
	Currency       string           `json:"currency,omitempty"`
	OriginalAmount *decimal.Decimal `json:"originalAmount,omitempty"`
	ExchangeRate   *decimal.Decimal `json:"exchangeRate,omitempty"`
}

// IsTrashed reports whether the transaction is soft-deleted.
func (t *Transaction) IsTrashed() bool {
	return t.DeletedAt != nil
}

// IsTemplate reports whether the transaction is a recurring template.
func (t *Transaction) IsTemplate() bool {
	return t.IsRecurring && t.ParentID == ""
}

// Interval returns the normalized recurrence interval, defaulting to monthly.
func (t *Transaction) Interval() string {
	switch strings.ToLower(strings.TrimSpace(t.RecurrenceInterval)) {
	case IntervalWeekly:
		return IntervalWeekly
	case IntervalYearly:
		return IntervalYearly
	default:
		return IntervalMonthly
	}
}

// Clone returns a deep copy so that callers never alias store state.
func (t Transaction) Clone() Transaction {
	c := t
	c.NextOccurrence = cloneTime(t.NextOccurrence)
	c.DeletedAt = cloneTime(t.DeletedAt)
	c.OriginalAmount = cloneDecimal(t.OriginalAmount)
	c.ExchangeRate = cloneDecimal(t.ExchangeRate)
	return c
}

// CloneTransactions deep-copies a slice of transactions.
func CloneTransactions(in []Transaction) []Transaction {
	if in == nil {
		return nil
	}
	out := make([]Transaction, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
