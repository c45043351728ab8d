// Package common provides CSV import and export of transactions.
package common

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"edwinliby/xpense-sync/internal/currency"
	"edwinliby/xpense-sync/internal/dateutils"
	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/models"

	"github.com/gocarina/gocsv"
)

// TransactionRow is the flat CSV layout of a transaction. Amounts are written
// with two decimals and dates as YYYY-MM-DD.
type TransactionRow struct {
	ID                 string `csv:"ID"`
	Date               string `csv:"Date"`
	Type               string `csv:"Type"`
	Category           string `csv:"Category"`
	Amount             string `csv:"Amount"`
	Currency           string `csv:"Currency"`
	Description        string `csv:"Description"`
	IsRecurring        string `csv:"IsRecurring"`
	RecurrenceInterval string `csv:"RecurrenceInterval"`
	ParentID           string `csv:"ParentID"`
	PaidBy             string `csv:"PaidBy"`
	LentTo             string `csv:"LentTo"`
	IsPaidBack         string `csv:"IsPaidBack"`
	OriginalAmount     string `csv:"OriginalAmount"`
	ExchangeRate       string `csv:"ExchangeRate"`
	DeletedAt          string `csv:"DeletedAt"`
}

// NewTransactionRow flattens a transaction.
func NewTransactionRow(tx models.Transaction) TransactionRow {
	row := TransactionRow{
		ID:                 tx.ID,
		Date:               dateutils.ToISODate(tx.Date),
		Type:               string(tx.Type),
		Category:           tx.Category,
		Amount:             tx.Amount.StringFixed(2),
		Currency:           tx.Currency,
		Description:        tx.Description,
		IsRecurring:        strconv.FormatBool(tx.IsRecurring),
		RecurrenceInterval: tx.RecurrenceInterval,
		ParentID:           tx.ParentID,
		IsPaidBack:         strconv.FormatBool(tx.IsPaidBack),
	}
	if tx.IsFriendPayment {
		row.PaidBy = tx.PaidBy
	}
	if tx.IsLent {
		row.LentTo = tx.LentTo
	}
	if tx.OriginalAmount != nil {
		row.OriginalAmount = tx.OriginalAmount.StringFixed(2)
	}
	if tx.ExchangeRate != nil {
		row.ExchangeRate = tx.ExchangeRate.String()
	}
	if tx.DeletedAt != nil {
		row.DeletedAt = dateutils.ToISODate(*tx.DeletedAt)
	}
	return row
}

// Transaction converts an imported row back into a transaction. Import
// ignores DeletedAt, ParentID and conversion columns: imported rows are new
// active transactions.
func (r TransactionRow) Transaction() (models.Transaction, error) {
	amount, err := currency.ParseAmount(r.Amount)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("invalid amount %q: %w", r.Amount, err)
	}
	date, err := dateutils.ParseDate(r.Date)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("invalid date %q: %w", r.Date, err)
	}

	txType := models.TransactionType(strings.ToLower(strings.TrimSpace(r.Type)))
	if txType == "" {
		txType = models.TypeExpense
	}
	// Negative amounts mark expenses in bank exports.
	if amount.IsNegative() {
		amount = amount.Neg()
		txType = models.TypeExpense
	}

	tx := models.Transaction{
		ID:                 strings.TrimSpace(r.ID),
		Amount:             amount,
		Type:               txType,
		Category:           strings.TrimSpace(r.Category),
		Date:               date,
		Description:        r.Description,
		RecurrenceInterval: r.RecurrenceInterval,
		Currency:           currency.NormalizeCode(r.Currency),
		PaidBy:             r.PaidBy,
		IsFriendPayment:    r.PaidBy != "",
		LentTo:             r.LentTo,
		IsLent:             r.LentTo != "",
	}
	tx.IsRecurring, _ = strconv.ParseBool(r.IsRecurring)
	tx.IsPaidBack, _ = strconv.ParseBool(r.IsPaidBack)
	return tx, nil
}

// WriteTransactions writes transactions as CSV to w.
func WriteTransactions(w io.Writer, transactions []models.Transaction, delimiter rune) error {
	rows := make([]TransactionRow, 0, len(transactions))
	for _, tx := range transactions {
		rows = append(rows, NewTransactionRow(tx))
	}

	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = delimiter
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(csvWriter)); err != nil {
		return fmt.Errorf("error writing CSV data: %w", err)
	}
	return nil
}

// WriteTransactionsToCSV writes transactions to a CSV file, creating the
// parent directory if needed.
func WriteTransactionsToCSV(transactions []models.Transaction, csvFile string, delimiter rune, logger logging.Logger) error {
	if transactions == nil {
		return fmt.Errorf("cannot write nil transactions to CSV")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	dir := filepath.Dir(csvFile)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}

	file, err := os.Create(csvFile) // #nosec G304 -- path comes from the command line
	if err != nil {
		return fmt.Errorf("error creating CSV file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close file")
		}
	}()

	if err := WriteTransactions(file, transactions, delimiter); err != nil {
		return err
	}

	logger.Info("Wrote transactions to CSV file",
		logging.F(logging.FieldFile, csvFile),
		logging.F(logging.FieldCount, len(transactions)))
	return nil
}

// ReadCSVFile reads CSV data into a slice of structs using gocsv.
func ReadCSVFile[TCSVRow any](filePath string, delimiter rune) ([]TCSVRow, error) {
	file, err := os.Open(filePath) // #nosec G304 -- path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("error opening CSV file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	reader := csv.NewReader(file)
	reader.Comma = delimiter
	reader.TrimLeadingSpace = true

	var rows []TCSVRow
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		return nil, fmt.Errorf("error parsing CSV file: %w", err)
	}
	return rows, nil
}

// ReadTransactionsFromCSV imports transactions from a CSV file written by
// WriteTransactionsToCSV or a compatible bank export. Rows that fail to parse
// are skipped and logged.
func ReadTransactionsFromCSV(csvFile string, delimiter rune, logger logging.Logger) ([]models.Transaction, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	rows, err := ReadCSVFile[TransactionRow](csvFile, delimiter)
	if err != nil {
		return nil, err
	}

	out := make([]models.Transaction, 0, len(rows))
	for i, row := range rows {
		tx, err := row.Transaction()
		if err != nil {
			logger.WithError(err).Warn("Skipping invalid CSV row",
				logging.F(logging.FieldFile, csvFile),
				logging.F("row", i+2))
			continue
		}
		out = append(out, tx)
	}

	logger.Info("Read transactions from CSV file",
		logging.F(logging.FieldFile, csvFile),
		logging.F(logging.FieldCount, len(out)))
	return out, nil
}
