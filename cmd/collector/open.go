package main

import (
	"context"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"cryptoMonitor/internal/collector"
	"cryptoMonitor/internal/config"
	"cryptoMonitor/internal/publish"
	"cryptoMonitor/internal/storage"
	"cryptoMonitor/internal/storage/postgres"
	"cryptoMonitor/internal/storage/sqlite"
)

func addRunFlags(flags *pflag.FlagSet) {
	flags.String("api-url-base", "", "market API URL template containing <COINS>")
	flags.String("config-path", "", "YAML file with the COINS asset list")
	flags.String("store", config.StorePostgres, "snapshot store (postgres, sqlite, jsonl)")
	flags.String("sqlite-path", "./data/snapshots.db", "sqlite database path")
	flags.String("jsonl-dir", "./data", "directory for per-asset JSONL files")
	flags.String("schema", "rich", "snapshot shape (rich, minimal)")
	flags.String("vs-currency", "eur", "quote currency")
	flags.String("poll-interval", "11.5s", "delay between cycles")
	flags.String("rate-limit-cooldown", "180s", "extra delay after a rate-limited cycle")
	flags.String("heartbeat-path", "", "optional cycle status file")
	flags.String("redis-addr", "", "optional redis address for latest snapshots")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Storage, error) {
	schema, err := cfg.StorageSchema()
	if err != nil {
		return nil, err
	}

	switch cfg.Store {
	case config.StoreSQLite:
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath, schema)
		if err != nil {
			return nil, &storage.ConnectionError{Backend: cfg.Store, Err: err}
		}
		return store, nil

	case config.StoreJSONL:
		return storage.NewJsonlStorage(cfg.JsonlDir, schema.Shape), nil

	default:
		dsn := postgres.BuildConnString(postgres.ConnParams{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Name:     cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})

		var store *postgres.Store
		err := collector.WithRetry(ctx, cfg.ConnectRetries, cfg.ConnectBackoff, func(ctx context.Context) error {
			var err error
			store, err = postgres.NewStore(ctx, dsn, schema)
			if err != nil {
				logger.Warn("database connect failed", zap.Error(err), zap.String("dsn", postgres.RedactConnString(dsn)))
			}
			return err
		})
		if err != nil {
			return nil, &storage.ConnectionError{Backend: cfg.Store, Err: err}
		}
		return store, nil
	}
}

// openPublisher returns nil when redis is not configured.
func openPublisher(ctx context.Context, cfg config.Config) (*publish.RedisPublisher, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	return publish.Dial(ctx, publish.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.RedisPrefix,
		TTL:      cfg.RedisTTL,
	})
}
