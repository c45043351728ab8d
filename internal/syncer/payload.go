package syncer

import (
	"encoding/json"
	"fmt"

	"edwinliby/xpense-sync/internal/models"
	"edwinliby/xpense-sync/internal/queue"
)

// SettingKey returns the remote settings row written by a setting operation.
func SettingKey(t queue.OpType) (string, bool) {
	switch t {
	case queue.OpSetBudget:
		return models.SettingBudget, true
	case queue.OpSetIncome:
		return models.SettingIncome, true
	case queue.OpSetIncomeStartDate:
		return models.SettingIncomeStartDate, true
	case queue.OpSetCurrency:
		return models.SettingCurrency, true
	case queue.OpDismissWarning:
		return models.SettingDismissedWarnings, true
	}
	return "", false
}

// SettingOp returns the operation type that writes the named setting.
func SettingOp(key string) (queue.OpType, error) {
	switch key {
	case models.SettingBudget:
		return queue.OpSetBudget, nil
	case models.SettingIncome:
		return queue.OpSetIncome, nil
	case models.SettingIncomeStartDate:
		return queue.OpSetIncomeStartDate, nil
	case models.SettingCurrency:
		return queue.OpSetCurrency, nil
	case models.SettingDismissedWarnings:
		return queue.OpDismissWarning, nil
	}
	return "", fmt.Errorf("unknown setting %q", key)
}

// DecodeTransaction extracts the transaction carried by a transaction op.
// Permanent deletes carry only an id.
func DecodeTransaction(op queue.Operation) (models.Transaction, error) {
	var tx models.Transaction
	if err := op.Decode(&tx); err != nil {
		return models.Transaction{}, err
	}
	if tx.ID == "" {
		return models.Transaction{}, fmt.Errorf("%s %s: payload has no id", op.Type, op.ID)
	}
	return tx, nil
}

// DecodeCategory extracts the category carried by a category op.
func DecodeCategory(op queue.Operation) (models.Category, error) {
	var c models.Category
	if err := op.Decode(&c); err != nil {
		return models.Category{}, err
	}
	if c.ID == "" {
		return models.Category{}, fmt.Errorf("%s %s: payload has no id", op.Type, op.ID)
	}
	return c, nil
}

func rawPayload(op queue.Operation) json.RawMessage {
	if len(op.Payload) == 0 {
		return json.RawMessage("null")
	}
	return op.Payload
}
