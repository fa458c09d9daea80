package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"

	"github.com/nainya/assetcatalog/internal/metrics"
	"github.com/nainya/assetcatalog/internal/server"
	"github.com/nainya/assetcatalog/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "keep the store open and serve metrics, health and profiling endpoints",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// readiness probes the store with a single-result query.
func readiness(s store.Store) server.ReadyFunc {
	return func(ctx context.Context) error {
		it, err := s.Query(ctx, nil, store.Options{MaxResults: 1})
		if err != nil {
			return err
		}
		_, err = store.Collect(it)
		return err
	}
}

func serve(cmd *cobra.Command, args []string) (err error) {
	if cfg.Metrics.Port <= 0 {
		return Error.New("metrics.port must be set to serve")
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	s, err := openStore(ctx, m)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, s.Close()) }()

	return server.NewObservabilityServer(cfg.Metrics.Port, reg, readiness(s), cfg.Backend, log).Run(ctx)
}
