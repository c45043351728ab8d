// Package remote defines the remote backing store contract used by the sync
// core and provides a gorm-backed implementation and an in-memory one.
//
// The store has four collections (transactions, categories, user settings,
// achievements). Every row is scoped by an owner id. Inserts, updates and
// deletes are keyed by entity id so that replaying an operation is idempotent.
package remote

import (
	"context"
	"encoding/json"

	"edwinliby/xpense-sync/internal/models"
)

// Collection names, used in errors and logs.
const (
	CollectionTransactions = "transactions"
	CollectionCategories   = "categories"
	CollectionSettings     = "user_settings"
	CollectionAchievements = "achievements"
)

// Backend is the CRUD contract of the remote store.
type Backend interface {
	// InsertTransaction stores tx. Inserting an id that already exists
	// overwrites it, which keeps retried inserts idempotent.
	InsertTransaction(ctx context.Context, owner string, tx models.Transaction) error
	// UpdateTransaction overwrites the row with tx.ID. Missing rows are ignored.
	UpdateTransaction(ctx context.Context, owner string, tx models.Transaction) error
	DeleteTransaction(ctx context.Context, owner, id string) error
	FetchTransactions(ctx context.Context, owner string) ([]models.Transaction, error)

	InsertCategory(ctx context.Context, owner string, c models.Category) error
	UpdateCategory(ctx context.Context, owner string, c models.Category) error
	DeleteCategory(ctx context.Context, owner, id string) error
	FetchCategories(ctx context.Context, owner string) ([]models.Category, error)

	UpsertSetting(ctx context.Context, owner, key string, value json.RawMessage) error
	FetchSettings(ctx context.Context, owner string) (map[string]json.RawMessage, error)

	UpsertAchievements(ctx context.Context, owner string, achievements []models.Achievement) error
	FetchAchievements(ctx context.Context, owner string) ([]models.Achievement, error)
}
