package remote

import (
	"encoding/json"
	"time"

	"edwinliby/xpense-sync/internal/models"

	"github.com/shopspring/decimal"
)

// Rows are keyed by (owner_id, id): ids such as the predefined category ids
// repeat across owners.
type transactionRow struct {
	OwnerID            string          `gorm:"type:varchar(64);primaryKey"`
	ID                 string          `gorm:"type:varchar(64);primaryKey"`
	Amount             decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	Type               string          `gorm:"type:varchar(15);not null"`
	Category           string          `gorm:"type:varchar(100)"`
	Date               time.Time       `gorm:"not null"`
	Description        string          `gorm:"type:varchar(255)"`
	Receipt            string          `gorm:"type:varchar(512)"`
	IsFriendPayment    bool
	PaidBy             string `gorm:"type:varchar(100)"`
	IsLent             bool
	LentTo             string `gorm:"type:varchar(100)"`
	IsPaidBack         bool
	IsRecurring        bool
	RecurrenceInterval string `gorm:"type:varchar(15)"`
	NextOccurrence     *time.Time
	ParentID           string           `gorm:"type:varchar(64);index:idx_transactions_parent"`
	TrashedAt          *time.Time       `gorm:"column:deleted_at;index:idx_transactions_deleted"`
	Currency           string           `gorm:"type:varchar(8)"`
	OriginalAmount     *decimal.Decimal `gorm:"type:decimal(15,2)"`
	ExchangeRate       *decimal.Decimal `gorm:"type:decimal(18,8)"`
}

func (transactionRow) TableName() string { return CollectionTransactions }

func newTransactionRow(owner string, tx models.Transaction) transactionRow {
	return transactionRow{
		ID:                 tx.ID,
		OwnerID:            owner,
		Amount:             tx.Amount,
		Type:               string(tx.Type),
		Category:           tx.Category,
		Date:               tx.Date.UTC(),
		Description:        tx.Description,
		Receipt:            tx.Receipt,
		IsFriendPayment:    tx.IsFriendPayment,
		PaidBy:             tx.PaidBy,
		IsLent:             tx.IsLent,
		LentTo:             tx.LentTo,
		IsPaidBack:         tx.IsPaidBack,
		IsRecurring:        tx.IsRecurring,
		RecurrenceInterval: tx.RecurrenceInterval,
		NextOccurrence:     utcPtr(tx.NextOccurrence),
		ParentID:           tx.ParentID,
		TrashedAt:          utcPtr(tx.DeletedAt),
		Currency:           tx.Currency,
		OriginalAmount:     tx.OriginalAmount,
		ExchangeRate:       tx.ExchangeRate,
	}
}

func (r transactionRow) model() models.Transaction {
	return models.Transaction{
		ID:                 r.ID,
		Amount:             r.Amount,
		Type:               models.TransactionType(r.Type),
		Category:           r.Category,
		Date:               r.Date.UTC(),
		Description:        r.Description,
		Receipt:            r.Receipt,
		IsFriendPayment:    r.IsFriendPayment,
		PaidBy:             r.PaidBy,
		IsLent:             r.IsLent,
		LentTo:             r.LentTo,
		IsPaidBack:         r.IsPaidBack,
		IsRecurring:        r.IsRecurring,
		RecurrenceInterval: r.RecurrenceInterval,
		NextOccurrence:     utcPtr(r.NextOccurrence),
		ParentID:           r.ParentID,
		DeletedAt:          utcPtr(r.TrashedAt),
		Currency:           r.Currency,
		OriginalAmount:     r.OriginalAmount,
		ExchangeRate:       r.ExchangeRate,
	}
}

type categoryRow struct {
	OwnerID      string `gorm:"type:varchar(64);primaryKey"`
	ID           string `gorm:"type:varchar(64);primaryKey"`
	Name         string `gorm:"type:varchar(100);not null"`
	Icon         string `gorm:"type:varchar(64)"`
	Color        string `gorm:"type:varchar(16)"`
	IsPredefined bool
}

func (categoryRow) TableName() string { return CollectionCategories }

func newCategoryRow(owner string, c models.Category) categoryRow {
	return categoryRow{ID: c.ID, OwnerID: owner, Name: c.Name, Icon: c.Icon, Color: c.Color, IsPredefined: c.IsPredefined}
}

func (r categoryRow) model() models.Category {
	return models.Category{ID: r.ID, Name: r.Name, Icon: r.Icon, Color: r.Color, IsPredefined: r.IsPredefined}
}

type settingRow struct {
	OwnerID string `gorm:"type:varchar(64);primaryKey"`
	Key     string `gorm:"type:varchar(64);primaryKey"`
	Value   string `gorm:"type:text;not null"`
}

func (settingRow) TableName() string { return CollectionSettings }

type achievementRow struct {
	OwnerID    string `gorm:"type:varchar(64);primaryKey"`
	ID         string `gorm:"type:varchar(64);primaryKey"`
	Progress   int
	UnlockedAt *time.Time
}

func (achievementRow) TableName() string { return CollectionAchievements }

func (r achievementRow) model() models.Achievement {
	return models.Achievement{ID: r.ID, Progress: r.Progress, UnlockedAt: utcPtr(r.UnlockedAt)}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func rawSetting(value string) json.RawMessage {
	return json.RawMessage(value)
}
