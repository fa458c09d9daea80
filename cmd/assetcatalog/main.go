// ABOUTME: Command line entry point for the asset catalog
// ABOUTME: Loads configuration once and hands a ready store to each subcommand

package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"

	"github.com/nainya/assetcatalog/internal/backend"
	"github.com/nainya/assetcatalog/internal/config"
	"github.com/nainya/assetcatalog/internal/logger"
	"github.com/nainya/assetcatalog/internal/metrics"
	"github.com/nainya/assetcatalog/pkg/store"
)

// Error is the class of command line errors.
var Error = errs.Class("assetcatalog")

var (
	configFile string

	cfg *config.Config
	log *logger.Logger

	rootCmd = &cobra.Command{
		Use:               "assetcatalog",
		Short:             "Store and query media asset metadata",
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "print the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  printConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file")
	rootCmd.AddCommand(configCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(config.New(), configFile)
	if err != nil {
		return err
	}
	cfg = c
	logger.InitGlobalLogger(logger.Config{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		Output: cmd.ErrOrStderr(),
	})
	log = logger.GetGlobalLogger()
	return nil
}

// openStore opens the configured store. m may be nil.
func openStore(ctx context.Context, m *metrics.Metrics) (store.Store, error) {
	return backend.Open(ctx, cfg, m, log)
}

func printConfig(cmd *cobra.Command, args []string) error {
	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
