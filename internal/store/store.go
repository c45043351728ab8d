// Package store provides the local durable store: a namespaced key -> JSON
// value persistence layer with no transactions across keys. Every collection of
// application state lives under its own key so a failed write of one key cannot
// corrupt another.
package store

import (
	"context"
	"encoding/json"
	"strings"

	"edwinliby/xpense-sync/internal/syncerror"
)

// Keys under which application state is persisted.
const (
	KeyTransactions      = "transactions"
	KeyTrash             = "trash"
	KeyCategories        = "categories"
	KeyBudget            = "budget"
	KeyIncome            = "income"
	KeyIncomeStartDate   = "incomeStartDate"
	KeyCurrency          = "currency"
	KeyAchievements      = "achievements"
	KeyDismissedWarnings = "dismissedWarnings"
	KeyPendingOperations = "pendingOperations"
)

// AllKeys lists every state key, in load order.
var AllKeys = []string{
	KeyTransactions,
	KeyTrash,
	KeyCategories,
	KeyBudget,
	KeyIncome,
	KeyIncomeStartDate,
	KeyCurrency,
	KeyAchievements,
	KeyDismissedWarnings,
	KeyPendingOperations,
}

// Storage is the local persistence medium.
type Storage interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Namespaced prefixes every key with a namespace, one per identity, so two
// users' local copies never share a key.
type Namespaced struct {
	base   Storage
	prefix string
}

// AnonymousNamespace is used when nobody is logged in.
const AnonymousNamespace = "anonymous"

// NewNamespaced wraps base under namespace ns.
func NewNamespaced(base Storage, ns string) *Namespaced {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		ns = AnonymousNamespace
	}
	return &Namespaced{base: base, prefix: ns + "/"}
}

// Namespace returns the namespace without the trailing separator.
func (n *Namespaced) Namespace() string {
	return strings.TrimSuffix(n.prefix, "/")
}

func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.base.Get(ctx, n.prefix+key)
}

func (n *Namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.base.Set(ctx, n.prefix+key, value)
}

func (n *Namespaced) Remove(ctx context.Context, key string) error {
	return n.base.Remove(ctx, n.prefix+key)
}

// GetJSON loads key into v. It reports false when the key is absent.
func GetJSON(ctx context.Context, s Storage, key string, v interface{}) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil {
		return false, &syncerror.PersistError{Key: key, Op: "get", Err: err}
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, &syncerror.PersistError{Key: key, Op: "get", Err: err}
	}
	return true, nil
}

// SetJSON serializes v and stores it under key.
func SetJSON(ctx context.Context, s Storage, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &syncerror.PersistError{Key: key, Op: "set", Err: err}
	}
	if err := s.Set(ctx, key, data); err != nil {
		return &syncerror.PersistError{Key: key, Op: "set", Err: err}
	}
	return nil
}
