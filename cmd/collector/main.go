package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cryptoMonitor/internal/assets"
	"cryptoMonitor/internal/collector"
	"cryptoMonitor/internal/config"
	"cryptoMonitor/internal/gateway"
	"cryptoMonitor/internal/normalize"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "collector",
		Short:        "Crypto market snapshot collector",
		SilenceUsage: true,
		RunE:         runCollector,
	}

	root.PersistentFlags().String("config", "", "config file path")
	addRunFlags(root.Flags())

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the market API and store snapshots",
		RunE:  runCollector,
	}
	addRunFlags(runCmd.Flags())
	root.AddCommand(runCmd)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the collector version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return root
}

func runCollector(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	source := assets.NewFileSource(cfg.ConfigPath)
	ids, err := source.Assets()
	if err != nil {
		return fmt.Errorf("asset list: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []collector.Option{
		collector.WithLogger(logger),
		collector.WithHeartbeat(collector.NewHeartbeatWriter(cfg.HeartbeatPath)),
	}
	publisher, err := openPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
		opts = append(opts, collector.WithPublisher(publisher))
	}

	client := gateway.NewClient(cfg.APIURLBase, cfg.Shape(),
		gateway.WithTimeout(cfg.RequestTimeout),
		gateway.WithLogger(logger.Named("gateway")),
	)

	controller := collector.New(collector.Config{
		Interval:          cfg.PollInterval,
		RateLimitCooldown: cfg.RateLimitCooldown,
	}, source, client, normalize.New(cfg.Shape(), cfg.VSCurrency), store, opts...)

	logger.Info("collector start",
		zap.String("version", version),
		zap.String("store", cfg.Store),
		zap.String("schema", cfg.Shape().String()),
		zap.Strings("assets", ids),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Bool("redis", publisher != nil),
		zap.String("heartbeat", cfg.HeartbeatPath),
	)

	return controller.Run(ctx)
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
