// Package tx handles transaction commands
package tx

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"edwinliby/xpense-sync/cmd/root"
	"edwinliby/xpense-sync/internal/common"
	"edwinliby/xpense-sync/internal/currency"
	"edwinliby/xpense-sync/internal/dateutils"
	"edwinliby/xpense-sync/internal/models"

	"github.com/spf13/cobra"
)

// Flags holds the values shared by add and edit
type Flags struct {
	Amount      string
	Type        string
	Category    string
	Date        string
	Description string
	Recurring   string
	PaidBy      string
	LentTo      string
	Month       string
	Unset       bool
}

var flags = Flags{}

// Cmd represents the tx command
var Cmd = &cobra.Command{
	Use:   "tx",
	Short: "Add, edit, delete and list transactions",
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a new transaction",
	Args:  cobra.NoArgs,
	RunE:  addFunc,
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change an active transaction",
	Args:  cobra.ExactArgs(1),
	RunE:  editFunc,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Move a transaction to the trash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		if err := s.DeleteTransaction(cmd.Context(), args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to trash\n", args[0])
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a transaction from the trash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		if err := s.RestoreTransaction(cmd.Context(), args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", args[0])
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge [id]",
	Short: "Permanently delete a trashed transaction, or empty the trash",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			n := s.EmptyTrash(cmd.Context())
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Purged %d transactions\n", n)
			return nil
		}
		if err := s.PermanentlyDeleteTransaction(cmd.Context(), args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", args[0])
		return nil
	},
}

var paidCmd = &cobra.Command{
	Use:   "paid <id>",
	Short: "Mark a lent or shared transaction as paid back",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		tx, err := s.MarkPaidBack(cmd.Context(), args[0], !flags.Unset)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s paid back: %t\n", tx.ID, tx.IsPaidBack)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active transactions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		txs := s.Transactions()
		if flags.Month != "" {
			txs = filterMonth(txs, flags.Month)
		}
		return Print(cmd.OutOrStdout(), txs, s.Settings().Currency)
	},
}

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "List trashed transactions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		return Print(cmd.OutOrStdout(), s.Trash(), s.Settings().Currency)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Add every row of a CSV file as a new transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		rows, err := common.ReadTransactionsFromCSV(args[0], root.Delimiter(), root.App.GetLogger())
		if err != nil {
			return err
		}
		added := 0
		for _, tx := range rows {
			tx.ID = ""
			if _, err := s.AddTransaction(cmd.Context(), tx); err != nil {
				root.Log.WithError(err).Warn("Skipping transaction")
				continue
			}
			added++
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d transactions\n", added, len(rows))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{addCmd, editCmd} {
		c.Flags().StringVarP(&flags.Amount, "amount", "a", "", "Amount, e.g. 12.50 or 12,50")
		c.Flags().StringVarP(&flags.Type, "type", "t", string(models.TypeExpense), "expense or income")
		c.Flags().StringVarP(&flags.Category, "category", "c", "", "Category name")
		c.Flags().StringVarP(&flags.Date, "date", "d", "", "Date (default today)")
		c.Flags().StringVarP(&flags.Description, "description", "m", "", "Description")
		c.Flags().StringVarP(&flags.Recurring, "recurring", "r", "", "Repeat weekly, monthly or yearly")
		c.Flags().StringVar(&flags.PaidBy, "paid-by", "", "Friend who paid")
		c.Flags().StringVar(&flags.LentTo, "lent-to", "", "Friend the money was lent to")
	}
	_ = addCmd.MarkFlagRequired("amount")
	_ = addCmd.MarkFlagRequired("category")
	paidCmd.Flags().BoolVar(&flags.Unset, "unset", false, "Mark as not paid back")
	listCmd.Flags().StringVar(&flags.Month, "month", "", "Only show this month (YYYY-MM)")

	Cmd.AddCommand(addCmd, editCmd, deleteCmd, restoreCmd, purgeCmd, paidCmd, listCmd, trashCmd, importCmd)
}

func addFunc(cmd *cobra.Command, args []string) error {
	s, err := root.Store()
	if err != nil {
		return err
	}
	tx := models.Transaction{Date: time.Now()}
	if err := apply(cmd, &tx); err != nil {
		return err
	}
	created, err := s.AddTransaction(cmd.Context(), tx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), created.ID)
	return nil
}

func editFunc(cmd *cobra.Command, args []string) error {
	s, err := root.Store()
	if err != nil {
		return err
	}
	tx, trashed, ok := s.Transaction(args[0])
	if !ok || trashed {
		return fmt.Errorf("no active transaction %s", args[0])
	}
	if err := apply(cmd, &tx); err != nil {
		return err
	}
	if _, err := s.EditTransaction(cmd.Context(), tx); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", tx.ID)
	return nil
}

// apply copies the flags that were set on cmd onto tx.
func apply(cmd *cobra.Command, tx *models.Transaction) error {
	f := cmd.Flags()
	if f.Changed("amount") {
		amount, err := currency.ParseAmount(flags.Amount)
		if err != nil {
			return err
		}
		tx.Amount = amount
	}
	if f.Changed("type") || tx.Type == "" {
		tx.Type = models.TransactionType(strings.ToLower(flags.Type))
	}
	if f.Changed("category") {
		tx.Category = flags.Category
	}
	if f.Changed("date") {
		date, err := dateutils.ParseDate(flags.Date)
		if err != nil {
			return err
		}
		tx.Date = date
	}
	if f.Changed("description") {
		tx.Description = flags.Description
	}
	if f.Changed("recurring") {
		tx.IsRecurring = flags.Recurring != ""
		tx.RecurrenceInterval = flags.Recurring
	}
	if f.Changed("paid-by") {
		tx.PaidBy = flags.PaidBy
		tx.IsFriendPayment = flags.PaidBy != ""
	}
	if f.Changed("lent-to") {
		tx.LentTo = flags.LentTo
		tx.IsLent = flags.LentTo != ""
	}
	return nil
}

func filterMonth(txs []models.Transaction, month string) []models.Transaction {
	out := txs[:0:0]
	for _, tx := range txs {
		if dateutils.MonthKey(tx.Date) == month {
			out = append(out, tx)
		}
	}
	return out
}

// Print writes transactions as an aligned table.
func Print(w io.Writer, txs []models.Transaction, code string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tDATE\tTYPE\tCATEGORY\tAMOUNT\tDESCRIPTION")
	for _, tx := range txs {
		desc := tx.Description
		if tx.IsTemplate() {
			desc = strings.TrimSpace(desc + " (every " + tx.Interval() + ")")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.ID, dateutils.ToISODate(tx.Date), tx.Type, tx.Category,
			currency.Format(tx.Amount, code), desc)
	}
	return tw.Flush()
}
