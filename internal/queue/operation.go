// Package queue implements the operation queue: an ordered, persisted log of
// mutations that have been applied locally but not yet acknowledged by the
// remote store.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// OpType names a mutation kind. The set is closed.
type OpType string

const (
	OpAddTransaction               OpType = "ADD_TRANSACTION"
	OpUpdateTransaction            OpType = "UPDATE_TRANSACTION"
	OpDeleteTransaction            OpType = "DELETE_TRANSACTION"
	OpRestoreTransaction           OpType = "RESTORE_TRANSACTION"
	OpPermanentlyDeleteTransaction OpType = "PERMANENTLY_DELETE_TRANSACTION"
	OpAddCategory                  OpType = "ADD_CATEGORY"
	OpUpdateCategory               OpType = "UPDATE_CATEGORY"
	OpDeleteCategory               OpType = "DELETE_CATEGORY"
	OpSetBudget                    OpType = "SET_BUDGET"
	OpSetIncome                    OpType = "SET_INCOME"
	OpSetIncomeStartDate           OpType = "SET_INCOME_START_DATE"
	OpSetCurrency                  OpType = "SET_CURRENCY"
	OpDismissWarning               OpType = "DISMISS_WARNING"
	OpUpdateAchievements           OpType = "UPDATE_ACHIEVEMENTS"
)

// AllOpTypes lists every operation type.
var AllOpTypes = []OpType{
	OpAddTransaction, OpUpdateTransaction, OpDeleteTransaction, OpRestoreTransaction,
	OpPermanentlyDeleteTransaction, OpAddCategory, OpUpdateCategory, OpDeleteCategory,
	OpSetBudget, OpSetIncome, OpSetIncomeStartDate, OpSetCurrency, OpDismissWarning,
	OpUpdateAchievements,
}

// IsValid reports whether t belongs to the closed set.
func (t OpType) IsValid() bool {
	for _, known := range AllOpTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsTransactionOp reports whether t targets a single transaction.
func (t OpType) IsTransactionOp() bool {
	switch t {
	case OpAddTransaction, OpUpdateTransaction, OpDeleteTransaction,
		OpRestoreTransaction, OpPermanentlyDeleteTransaction:
		return true
	}
	return false
}

// IsCategoryOp reports whether t targets a single category.
func (t OpType) IsCategoryOp() bool {
	return t == OpAddCategory || t == OpUpdateCategory || t == OpDeleteCategory
}

// Operation is a queued mutation.
type Operation struct {
	ID        string          `json:"id"`
	Type      OpType          `json:"type"`
	Entity    string          `json:"entity"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Decode unmarshals the payload into v.
func (o Operation) Decode(v interface{}) error {
	if err := json.Unmarshal(o.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", o.Type, err)
	}
	return nil
}

// IDPayload is the payload of operations that only need an entity id.
type IDPayload struct {
	ID string `json:"id"`
}

// EntityKey derives the ordering key of an operation: operations with the same
// key must reach the remote store in enqueue order.
func EntityKey(t OpType, payload json.RawMessage) (string, error) {
	switch {
	case t.IsTransactionOp(), t.IsCategoryOp():
		var p IDPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.ID == "" {
			return "", fmt.Errorf("%s payload has no id", t)
		}
		if t.IsTransactionOp() {
			return "transaction:" + p.ID, nil
		}
		return "category:" + p.ID, nil
	case t == OpUpdateAchievements:
		return "achievements", nil
	default:
		return "setting:" + string(t), nil
	}
}
