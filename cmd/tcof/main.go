// Command tcof runs the TCOF Toolkit backend.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Strob0t/tcof/internal/config"
)

var configPath string

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tcof",
		Short:         "TCOF Toolkit backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "path to the YAML config file")
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}
