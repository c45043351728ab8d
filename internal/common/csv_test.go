package common

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTransactions() []models.Transaction {
	rate := decimal.RequireFromString("0.9")
	original := decimal.RequireFromString("50")
	deleted := time.Date(2025, 4, 12, 8, 0, 0, 0, time.UTC)
	return []models.Transaction{
		{
			ID:             "t1",
			Amount:         decimal.RequireFromString("45"),
			Type:           models.TypeExpense,
			Category:       "Food",
			Date:           time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC),
			Description:    "Groceries, weekly",
			Currency:       "EUR",
			OriginalAmount: &original,
			ExchangeRate:   &rate,
		},
		{
			ID:                 "t2",
			Amount:             decimal.RequireFromString("2500.5"),
			Type:               models.TypeIncome,
			Category:           "Salary",
			Date:               time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
			IsRecurring:        true,
			RecurrenceInterval: models.IntervalMonthly,
			IsLent:             true,
			LentTo:             "Sam",
			DeletedAt:          &deleted,
		},
	}
}

func TestWriteTransactions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTransactions(&buf, sampleTransactions(), ','))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID,Date,Type,Category,Amount,Currency"))
	assert.Contains(t, lines[1], `t1,2025-04-10,expense,Food,45.00,EUR,"Groceries, weekly"`)
	assert.Contains(t, lines[1], "50.00,0.9,")
	assert.Contains(t, lines[2], "2500.50")
	assert.Contains(t, lines[2], "Sam")
	assert.True(t, strings.HasSuffix(lines[2], "2025-04-12"))
}

func TestWriteTransactions_Delimiter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTransactions(&buf, sampleTransactions()[:1], ';'))
	assert.True(t, strings.HasPrefix(buf.String(), "ID;Date;Type;"))
	assert.Contains(t, buf.String(), ";Groceries, weekly;")
}

func TestWriteTransactionsToCSV_RoundTrip(t *testing.T) {
	logger := logging.NewMockLogger()
	path := filepath.Join(t.TempDir(), "nested", "export.csv")

	require.NoError(t, WriteTransactionsToCSV(sampleTransactions(), path, ';', logger))
	assert.True(t, logger.HasEntry("INFO", "Wrote transactions to CSV file"))

	got, err := ReadTransactionsFromCSV(path, ';', logger)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "t1", got[0].ID)
	assert.True(t, decimal.RequireFromString("45").Equal(got[0].Amount))
	assert.Equal(t, models.TypeExpense, got[0].Type)
	assert.Equal(t, "Groceries, weekly", got[0].Description)
	assert.Equal(t, "EUR", got[0].Currency)
	assert.Nil(t, got[0].OriginalAmount)

	assert.Equal(t, models.TypeIncome, got[1].Type)
	assert.True(t, got[1].IsRecurring)
	assert.True(t, got[1].IsLent)
	assert.Equal(t, "Sam", got[1].LentTo)
	assert.Nil(t, got[1].DeletedAt)
	assert.Equal(t, 2025, got[1].Date.Year())
}

func TestWriteTransactionsToCSV_Nil(t *testing.T) {
	err := WriteTransactionsToCSV(nil, filepath.Join(t.TempDir(), "x.csv"), ',', nil)
	assert.Error(t, err)
}

func TestReadTransactionsFromCSV_BankExport(t *testing.T) {
	content := `Date,Category,Amount,Description
2025-03-02,Transport,-12.50,Bus
02.03.2025,Food,"1.234,50",Party
not-a-date,Food,3,Broken
2025-03-04,Food,,Empty amount`
	path := filepath.Join(t.TempDir(), "bank.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	logger := logging.NewMockLogger()
	got, err := ReadTransactionsFromCSV(path, ',', logger)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, models.TypeExpense, got[0].Type)
	assert.True(t, decimal.RequireFromString("12.5").Equal(got[0].Amount))
	assert.Empty(t, got[0].ID)
	assert.True(t, decimal.RequireFromString("1234.5").Equal(got[1].Amount))
	assert.Len(t, logger.GetEntriesByLevel("WARN"), 2)
}

func TestReadCSVFile_Missing(t *testing.T) {
	_, err := ReadCSVFile[TransactionRow](filepath.Join(t.TempDir(), "nope.csv"), ',')
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error opening CSV file")
}
