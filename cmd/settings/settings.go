// Package settings handles budget, income and currency commands
package settings

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"edwinliby/xpense-sync/cmd/root"
	"edwinliby/xpense-sync/internal/currency"
	"edwinliby/xpense-sync/internal/dateutils"

	"github.com/spf13/cobra"
)

// Cmd represents the settings command
var Cmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and change budget, income and currency",
}

var budgetCmd = &cobra.Command{
	Use:   "budget <amount>",
	Short: "Set the monthly budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		amount, err := currency.ParseAmount(args[0])
		if err != nil {
			return err
		}
		return s.SetBudget(cmd.Context(), amount)
	},
}

var incomeCmd = &cobra.Command{
	Use:   "income <amount>",
	Short: "Set the monthly income",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		amount, err := currency.ParseAmount(args[0])
		if err != nil {
			return err
		}
		return s.SetIncome(cmd.Context(), amount)
	},
}

var incomeStartCmd = &cobra.Command{
	Use:   "income-start [date]",
	Short: "Set the date income starts counting from, or clear it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return s.SetIncomeStartDate(cmd.Context(), nil)
		}
		date, err := dateutils.ParseDate(args[0])
		if err != nil {
			return err
		}
		return s.SetIncomeStartDate(cmd.Context(), &date)
	},
}

var currencyCmd = &cobra.Command{
	Use:   "currency <code>",
	Short: "Change the display currency, converting every stored amount",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		if err := s.SetCurrency(cmd.Context(), args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Currency is now %s\n", s.Settings().Currency)
		return nil
	},
}

var dismissCmd = &cobra.Command{
	Use:   "dismiss <warning-key>",
	Short: "Dismiss a budget warning such as 2025-04:80",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		return s.DismissWarning(cmd.Context(), args[0])
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show settings, this month's spending and active warnings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		st := s.Settings()
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintf(tw, "Currency\t%s\n", st.Currency)
		_, _ = fmt.Fprintf(tw, "Budget\t%s\n", currency.Format(st.Budget, st.Currency))
		_, _ = fmt.Fprintf(tw, "Income\t%s\n", currency.Format(st.Income, st.Currency))
		start := "-"
		if st.IncomeStartDate != nil {
			start = dateutils.ToISODate(*st.IncomeStartDate)
		}
		_, _ = fmt.Fprintf(tw, "Income start\t%s\n", start)
		_, _ = fmt.Fprintf(tw, "Spent this month\t%s\n", currency.Format(s.MonthlySpending(), st.Currency))
		var keys []string
		for _, w := range s.BudgetWarnings() {
			keys = append(keys, w.Key)
		}
		if len(keys) > 0 {
			_, _ = fmt.Fprintf(tw, "Warnings\t%s\n", strings.Join(keys, ", "))
		}
		return tw.Flush()
	},
}

func init() {
	Cmd.AddCommand(budgetCmd, incomeCmd, incomeStartCmd, currencyCmd, dismissCmd, showCmd)
}
