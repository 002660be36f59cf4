package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/relay/exchange"
	"github.com/tailored-agentic-units/relay/observability"
	"github.com/tailored-agentic-units/relay/observability/metrics"
	"github.com/tailored-agentic-units/relay/rpc"
	"github.com/tailored-agentic-units/relay/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat and session API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configFile, os.LookupEnv)
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides config and SERVER_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides config and SERVER_PORT)")
	return cmd
}

func runServe(ctx context.Context, cfg config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, "relay")
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	observability.RegisterObserver(metrics.ObserverName, metrics.New(prometheus.DefaultRegisterer))
	names := cfg.ObserverNames()
	if !slices.Contains(names, metrics.ObserverName) {
		names = append(names, metrics.ObserverName)
	}
	observer, err := observability.Resolve(names...)
	if err != nil {
		return fmt.Errorf("failed to resolve observers: %w", err)
	}

	x, err := exchange.New(&cfg.Config, exchange.WithObserver(observer))
	if err != nil {
		return err
	}
	metrics.RegisterRegistryGauges(prometheus.DefaultRegisterer, x.Registry())

	rpcPath, rpcHandler := rpc.NewHandler(x)
	srv := server.New(&cfg.Server, x,
		server.WithLogger(slog.Default()),
		server.WithMetricsHandler(promhttp.Handler()),
		server.WithHandler(rpcPath, rpcHandler),
	)

	slog.Info("relay starting",
		"addr", cfg.Server.Addr(),
		"base_url", cfg.Provider.BaseURL,
		"observers", names,
		"idle_timeout", cfg.Session.IdleTimeout)
	return srv.Run(ctx)
}
