package main

import (
	"fmt"
	"os"
	"strings"

	"edwinliby/xpense-sync/cmd/category"
	"edwinliby/xpense-sync/cmd/export"
	"edwinliby/xpense-sync/cmd/root"
	"edwinliby/xpense-sync/cmd/run"
	"edwinliby/xpense-sync/cmd/settings"
	synccmd "edwinliby/xpense-sync/cmd/sync"
	"edwinliby/xpense-sync/cmd/tx"
	"edwinliby/xpense-sync/internal/config"

	"github.com/sirupsen/logrus"
)

func init() {
	// .env first so XPENSE_ variables are visible to viper
	config.LoadEnv()

	logrus.SetLevel(levelFromEnv())

	root.Init()
	root.Cmd.AddCommand(tx.Cmd)
	root.Cmd.AddCommand(category.Cmd)
	root.Cmd.AddCommand(settings.Cmd)
	root.Cmd.AddCommand(synccmd.Cmd)
	root.Cmd.AddCommand(export.Cmd)
	root.Cmd.AddCommand(run.Cmd)
}

// levelFromEnv reads XPENSE_LOG_LEVEL before any logger is configured.
func levelFromEnv() logrus.Level {
	level, err := logrus.ParseLevel(strings.ToLower(config.GetEnv("XPENSE_LOG_LEVEL", "info")))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func main() {
	if err := root.Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
