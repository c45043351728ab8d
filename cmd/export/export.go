// Package export handles CSV export of transactions
package export

import (
	"edwinliby/xpense-sync/cmd/root"
	"edwinliby/xpense-sync/internal/common"
	"edwinliby/xpense-sync/internal/models"

	"github.com/spf13/cobra"
)

var (
	output       string
	includeTrash bool
)

// Cmd represents the export command
var Cmd = &cobra.Command{
	Use:   "export",
	Short: "Export transactions to CSV",
	Long: `Export active transactions to CSV, newest first. Without --output the
CSV is written to standard output.`,
	Args: cobra.NoArgs,
	RunE: exportFunc,
}

func init() {
	Cmd.Flags().StringVarP(&output, "output", "o", "", "Output file")
	Cmd.Flags().BoolVar(&includeTrash, "include-trash", false, "Also export trashed transactions")
}

func exportFunc(cmd *cobra.Command, args []string) error {
	s, err := root.Store()
	if err != nil {
		return err
	}
	txs := s.Transactions()
	if includeTrash {
		txs = append(txs, s.Trash()...)
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	if output == "" {
		return common.WriteTransactions(cmd.OutOrStdout(), txs, root.Delimiter())
	}
	return common.WriteTransactionsToCSV(txs, output, root.Delimiter(), root.App.GetLogger())
}
