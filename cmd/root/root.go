// Package root contains the root command for the application
package root

import (
	"errors"
	"time"

	"edwinliby/xpense-sync/internal/config"
	"edwinliby/xpense-sync/internal/container"
	"edwinliby/xpense-sync/internal/expense"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CloseTimeout bounds how long a command waits for background drains on exit.
const CloseTimeout = 10 * time.Second

// CommonFlags represents the flags that are common to all commands
type CommonFlags struct {
	User      string
	DataDir   string
	LogLevel  string
	Delimiter string
}

// ErrNotInitialized is returned when a command runs before the container
// was built.
var ErrNotInitialized = errors.New("application not initialized")

var (
	// Log is the shared logger instance for commands
	Log = logrus.New()

	// App is the wired application, built before every command runs
	App *container.Container

	// Cmd is the root command
	Cmd = &cobra.Command{
		Use:   "xpense-sync",
		Short: "Offline-first expense tracker with remote sync.",
		Long: `xpense-sync records income and expenses locally and keeps them in sync
with a remote store. Changes made while offline are queued and replayed
in order once the remote is reachable again.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			Log.Info("Use --help to see available commands")
		},
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}

	// SharedFlags holds the persistent flag values
	SharedFlags = CommonFlags{}
)

// Init initializes the root command and all flags
func Init() {
	Cmd.PersistentFlags().StringVarP(&SharedFlags.User, "user", "u", "", "Act as this user (overrides auth.user)")
	Cmd.PersistentFlags().StringVar(&SharedFlags.DataDir, "data-dir", "", "Directory for local and sqlite remote databases")
	Cmd.PersistentFlags().StringVar(&SharedFlags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	Cmd.PersistentFlags().StringVar(&SharedFlags.Delimiter, "csv-delimiter", "", "CSV delimiter for import and export")
}

func setup(cmd *cobra.Command, args []string) error {
	if App != nil {
		return nil
	}
	config.LoadEnv()

	cfg, err := config.InitializeConfig()
	if err != nil {
		return err
	}
	applyFlags(cfg)
	Log = config.ConfigureLoggingFromConfig(cfg)

	app, err := container.NewContainer(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	App = app
	return nil
}

func applyFlags(cfg *config.Config) {
	if SharedFlags.User != "" {
		cfg.Auth.User = SharedFlags.User
		cfg.Auth.Token = ""
	}
	if SharedFlags.DataDir != "" {
		cfg.Data.Directory = SharedFlags.DataDir
	}
	if SharedFlags.LogLevel != "" {
		if _, err := logrus.ParseLevel(SharedFlags.LogLevel); err == nil {
			cfg.Log.Level = SharedFlags.LogLevel
		}
	}
	if len(SharedFlags.Delimiter) == 1 {
		cfg.CSV.Delimiter = SharedFlags.Delimiter
	}
}

func teardown(cmd *cobra.Command, args []string) error {
	if App == nil {
		return nil
	}
	err := App.Close(CloseTimeout)
	App = nil
	return err
}

// Store returns the expense store of the running application.
func Store() (*expense.Store, error) {
	if App == nil {
		return nil, ErrNotInitialized
	}
	return App.GetStore(), nil
}

// Delimiter returns the configured CSV delimiter.
func Delimiter() rune {
	if App == nil {
		return ','
	}
	return []rune(App.GetConfig().CSV.Delimiter)[0]
}
