package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/stategraph/internal/server"
	"github.com/randalmurphal/stategraph/pkg/stategraph/observability"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
		dryRun  bool
		driver  string
		dsn     string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workflows over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			completer, err := a.completer(dryRun)
			if err != nil {
				return err
			}
			catalog, err := a.catalog(completer)
			if err != nil {
				return err
			}
			store, err := a.openJournal(cmd, driver, dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			opts := server.Options{
				Catalog:       catalog,
				Journal:       store,
				Logger:        a.logger,
				MaxIterations: a.cfg.Engine.MaxIterations,
				RunTimeout:    timeout,
			}
			if a.cfg.Metrics.Enabled {
				if err := a.wireMetrics(&opts); err != nil {
					return err
				}
			}

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			return server.ListenAndServe(cmd.Context(), addr, server.NewHandler(opts), a.logger)
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	f.DurationVar(&timeout, "run-timeout", 2*time.Minute, "Upper bound on each invoke")
	f.BoolVar(&dryRun, "dry-run", false, "Echo prompts instead of calling the model")
	f.StringVar(&driver, "journal", "", "Journal driver: memory, sqlite, redis")
	f.StringVar(&dsn, "journal-dsn", "", "Journal location (sqlite path or redis URL)")
	return cmd
}

// wireMetrics installs the configured metrics backend. Both expose
// /metrics through a Prometheus registry.
func (a *app) wireMetrics(opts *server.Options) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	opts.Gatherer = reg

	if a.cfg.Metrics.Provider == "otel" {
		// Run metrics go to the global meter provider; /metrics keeps the
		// runtime collectors.
		opts.Metrics = observability.NewMetricsRecorder(nil)
		a.logger.Info("run metrics exported through the global OpenTelemetry meter provider")
		return nil
	}
	m, err := observability.NewPrometheusMetrics(reg)
	if err != nil {
		return err
	}
	opts.Metrics = m
	return nil
}
