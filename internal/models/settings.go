package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Setting names. Each setting is its own remote row and its own queue entity.
const (
	SettingBudget            = "budget"
	SettingIncome            = "income"
	SettingIncomeStartDate   = "incomeStartDate"
	SettingCurrency          = "currency"
	SettingDismissedWarnings = "dismissedWarnings"
)

// DefaultCurrency is used until the user picks one.
const DefaultCurrency = "USD"

// Settings holds the scalar per-user preferences.
type Settings struct {
	Budget            decimal.Decimal `json:"budget"`
	Income            decimal.Decimal `json:"income"`
	IncomeStartDate   *time.Time      `json:"incomeStartDate"`
	Currency          string          `json:"currency"`
	DismissedWarnings []string        `json:"dismissedWarnings"`
}

// Achievement tracks progress toward an unlock. Sync is last-writer-wins.
type Achievement struct {
	ID         string     `json:"id"`
	Progress   int        `json:"progress"`
	UnlockedAt *time.Time `json:"unlockedAt"`
}

// BudgetWarning is a derived notification that monthly spending crossed a
// threshold of the budget.
type BudgetWarning struct {
	Key       string          `json:"key"` // "2006-01:80"
	Threshold int             `json:"threshold"`
	Spent     decimal.Decimal `json:"spent"`
	Budget    decimal.Decimal `json:"budget"`
}
