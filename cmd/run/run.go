// Package run keeps the sync core running in the foreground
package run

import (
	"context"
	"os/signal"
	"syscall"

	"edwinliby/xpense-sync/cmd/root"

	"github.com/spf13/cobra"
)

// Cmd represents the run command
var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Run connectivity polling, sync retry and the trash sweeper until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runFunc,
}

func runFunc(cmd *cobra.Command, args []string) error {
	if root.App == nil {
		return root.ErrNotInitialized
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Serve(ctx)
}

// Serve starts background jobs and blocks until ctx is done.
func Serve(ctx context.Context) error {
	if err := root.App.Start(); err != nil {
		return err
	}
	s := root.App.GetStore()
	root.Log.WithField("owner", s.Owner()).Info("Sync running, press Ctrl+C to stop")

	// Replay anything left from a previous session straight away.
	if len(s.PendingOperations()) > 0 && !s.Offline() {
		s.Drain(ctx)
	}
	s.Sweep(ctx)

	<-ctx.Done()
	root.Log.Info("Shutting down")
	return nil
}
