// Package sync handles queue inspection and manual replay commands
package sync

import (
	"fmt"
	"text/tabwriter"

	"edwinliby/xpense-sync/cmd/root"

	"github.com/spf13/cobra"
)

// Cmd represents the sync command
var Cmd = &cobra.Command{
	Use:   "sync",
	Short: "Inspect and replay the pending operation queue",
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show identity, connectivity and pending operations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		owner := s.Owner()
		if owner == "" {
			owner = "(anonymous, local only)"
		}
		pending := s.PendingOperations()

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "User:    %s\n", owner)
		_, _ = fmt.Fprintf(out, "Offline: %t\n", s.Offline())
		_, _ = fmt.Fprintf(out, "Pending: %d\n", len(pending))
		if len(pending) == 0 {
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tTYPE\tENTITY\tQUEUED")
		for _, op := range pending {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", op.ID, op.Type, op.Entity, op.Timestamp.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	},
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Replay pending operations against the remote now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		s.WaitDrains()
		res := s.Drain(cmd.Context())
		if res.Skipped {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "A replay is already running")
			return nil
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d of %d operations, %d still pending\n",
			res.Succeeded, res.Attempted, res.Retained)
		return nil
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reconcile local state with the remote snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := root.Store()
		if err != nil {
			return err
		}
		if err := s.Reload(cmd.Context()); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d transactions, %d in trash\n", len(s.Transactions()), len(s.Trash()))
		return nil
	},
}

func init() {
	Cmd.AddCommand(statusCmd, drainCmd, reloadCmd)
}
