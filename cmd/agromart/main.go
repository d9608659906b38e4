package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"agromart/internal/chain"
	"agromart/internal/config"
	"agromart/internal/contract"
	"agromart/internal/monitor"
	"agromart/internal/projector"
	"agromart/internal/storage"
	"agromart/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "agromart",
		Short:        "Agricultural marketplace ledger service",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Monitor marketplace contract events and project the read model",
		RunE:  runMonitor,
	}
	addMonitorFlags(monitorCmd)
	root.AddCommand(monitorCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Project stored events that were never processed",
		RunE:  runSweep,
	}
	addMonitorFlags(sweepCmd)
	root.AddCommand(sweepCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addMonitorFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().String("contract-address", "", "marketplace contract address")
	cmd.Flags().String("network", "", "network (mainnet, testnet, local)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().Uint64("start-block", 0, "first block to backfill without a checkpoint")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per replay batch")
	cmd.Flags().Int("live-buffer", 1024, "live log queue size during replay")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-delay", 5*time.Second, "delay between retry attempts")
	cmd.Flags().String("metrics-addr", ":9090", "Prometheus metrics listen address")
	cmd.Flags().String("audit", "./data/events.jsonl", "audit JSONL path (empty disables)")
	cmd.Flags().String("currency", "USD", "listing price currency code")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon, cleanup, err := buildMonitor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := prometheus.NewRegistry()
	mon.SetMetrics(monitor.NewMetrics(registry))
	metricsSrv := serveMetrics(cfg.MetricsAddr, registry, logger)
	defer metricsSrv.Close()

	logger.Info("monitor start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("contract", cfg.ContractAddress),
		zap.String("network", cfg.Network),
		zap.Uint64("start_block", cfg.StartBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
	)

	if err := mon.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		mon.Stop()
		<-mon.Done()
	case <-mon.Done():
		// Live loop exited on its own (exhausted reconnects).
	}
	logger.Info("monitor stopped")
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon, cleanup, err := buildMonitor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return mon.Sweep(ctx)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.PGDSN == "" {
		return errors.New("pg-dsn is required")
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("schema applied")
	return nil
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// buildMonitor wires the chain client, event store, decoder, and projector
// into a monitor. The returned cleanup closes the underlying connections.
func buildMonitor(ctx context.Context, cfg config.Config, logger *zap.Logger) (*monitor.Monitor, func(), error) {
	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, err
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		chainClient.Close()
		return nil, nil, err
	}

	decoder, err := contract.NewDecoder()
	if err != nil {
		chainClient.Close()
		store.Close()
		return nil, nil, err
	}

	proj := projector.New(store, cfg.Currency, logger)

	mon := monitor.New(monitor.Config{
		ContractAddress: common.HexToAddress(cfg.ContractAddress),
		StartBlock:      cfg.StartBlock,
		BatchSize:       cfg.BatchSize,
		LiveBuffer:      cfg.LiveBuffer,
		Retry: monitor.RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			Delay:       cfg.RetryDelay,
		},
	}, chainClient, decoder, store, proj, logger, nil)

	if cfg.AuditPath != "" {
		mon.SetAudit(storage.NewJsonlAudit(cfg.AuditPath))
	}

	cleanup := func() {
		chainClient.Close()
		store.Close()
	}
	return mon, cleanup, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
