package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"cryptoMonitor/internal/model"
	"cryptoMonitor/internal/storage"
)

// DotEnvFile is loaded into the environment before keys are resolved.
// Variables that are already set win.
var DotEnvFile = ".env"

const coinsPlaceholder = "<COINS>"

// Store backends.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreJSONL    = "jsonl"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	APIURLBase string
	ConfigPath string

	Store      string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string
	JsonlDir   string

	Schema     string
	VSCurrency string

	PollInterval      time.Duration
	RateLimitCooldown time.Duration
	RequestTimeout    time.Duration
	ConnectRetries    int
	ConnectBackoff    time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	RedisTTL      time.Duration

	HeartbeatPath string
	LogLevel      string
}

// ConfigError reports an invalid or missing configuration key.
type ConfigError struct {
	Key string
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Msg)
}

// Load merges .env, config file, environment variables, and flags into Config.
// Keys map to upper-case env names with dashes replaced (api-url-base reads
// API_URL_BASE).
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", DotEnvFile, err)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", StorePostgres)
	v.SetDefault("db-port", 5432)
	v.SetDefault("db-sslmode", "prefer")
	v.SetDefault("sqlite-path", "./data/snapshots.db")
	v.SetDefault("jsonl-dir", "./data")
	v.SetDefault("schema", string(model.ShapeRich))
	v.SetDefault("vs-currency", "eur")
	v.SetDefault("poll-interval", "11.5s")
	v.SetDefault("rate-limit-cooldown", "180s")
	v.SetDefault("request-timeout", "30s")
	v.SetDefault("connect-retries", 3)
	v.SetDefault("connect-backoff", "1s")
	v.SetDefault("redis-prefix", "cryptomonitor")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		APIURLBase:     strings.TrimSpace(v.GetString("api-url-base")),
		ConfigPath:     strings.TrimSpace(v.GetString("config-path")),
		Store:          strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		DBHost:         v.GetString("db-host"),
		DBPort:         v.GetInt("db-port"),
		DBUser:         v.GetString("db-user"),
		DBPassword:     v.GetString("db-password"),
		DBName:         v.GetString("db-name"),
		DBSSLMode:      v.GetString("db-sslmode"),
		SQLitePath:     v.GetString("sqlite-path"),
		JsonlDir:       v.GetString("jsonl-dir"),
		Schema:         v.GetString("schema"),
		VSCurrency:     strings.ToLower(strings.TrimSpace(v.GetString("vs-currency"))),
		ConnectRetries: v.GetInt("connect-retries"),
		RedisAddr:      strings.TrimSpace(v.GetString("redis-addr")),
		RedisPassword:  v.GetString("redis-password"),
		RedisDB:        v.GetInt("redis-db"),
		RedisPrefix:    v.GetString("redis-prefix"),
		HeartbeatPath:  v.GetString("heartbeat-path"),
		LogLevel:       v.GetString("log-level"),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"poll-interval", &cfg.PollInterval},
		{"rate-limit-cooldown", &cfg.RateLimitCooldown},
		{"request-timeout", &cfg.RequestTimeout},
		{"connect-backoff", &cfg.ConnectBackoff},
		{"redis-ttl", &cfg.RedisTTL},
	}
	for _, d := range durations {
		val, err := getDuration(v, d.key)
		if err != nil {
			return Config{}, err
		}
		*d.dst = val
	}

	return cfg, nil
}

// getDuration accepts Go duration strings ("11.5s", "3m") and plain numbers,
// which are read as seconds.
func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	switch typed := v.Get(key).(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return typed, nil
	case int:
		return time.Duration(typed) * time.Second, nil
	case int64:
		return time.Duration(typed) * time.Second, nil
	case float64:
		return time.Duration(typed * float64(time.Second)), nil
	case string:
		return parseDuration(key, typed)
	default:
		return parseDuration(key, fmt.Sprintf("%v", typed))
	}
}

func parseDuration(key, input string) (time.Duration, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(input, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(input)
	if err != nil {
		return 0, &ConfigError{Key: key, Msg: fmt.Sprintf("invalid duration %q", input)}
	}
	return d, nil
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	add := func(key, msg string) {
		errs = append(errs, &ConfigError{Key: key, Msg: msg})
	}

	switch {
	case c.APIURLBase == "":
		add("api-url-base", "is required")
	case !strings.HasPrefix(c.APIURLBase, "http://") && !strings.HasPrefix(c.APIURLBase, "https://"):
		add("api-url-base", "must be an http(s) URL")
	case !strings.Contains(c.APIURLBase, coinsPlaceholder):
		add("api-url-base", "must contain the "+coinsPlaceholder+" placeholder")
	}
	if c.ConfigPath == "" {
		add("config-path", "is required")
	}

	switch c.Store {
	case StorePostgres:
		if c.DBHost == "" {
			add("db-host", "is required for the postgres store")
		}
		if c.DBName == "" {
			add("db-name", "is required for the postgres store")
		}
		if c.DBPort <= 0 || c.DBPort > 65535 {
			add("db-port", fmt.Sprintf("out of range: %d", c.DBPort))
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			add("sqlite-path", "is required for the sqlite store")
		}
	case StoreJSONL:
		if c.JsonlDir == "" {
			add("jsonl-dir", "is required for the jsonl store")
		}
	default:
		add("store", fmt.Sprintf("unknown store %q (postgres, sqlite, jsonl)", c.Store))
	}

	if _, err := c.StorageSchema(); err != nil {
		add("schema", err.Error())
	}

	if c.PollInterval <= 0 {
		add("poll-interval", "must be positive")
	}
	if c.RateLimitCooldown <= 0 {
		add("rate-limit-cooldown", "must be positive")
	}
	if c.RequestTimeout <= 0 {
		add("request-timeout", "must be positive")
	}
	if c.ConnectRetries < 0 {
		add("connect-retries", "must not be negative")
	}
	if c.RedisTTL < 0 {
		add("redis-ttl", "must not be negative")
	}

	return errors.Join(errs...)
}

// Shape returns the configured schema shape, defaulting to rich.
func (c Config) Shape() model.Shape {
	shape, err := model.ParseShape(c.Schema)
	if err != nil {
		return model.ShapeRich
	}
	return shape
}

// StorageSchema resolves the table layout for the configured shape and
// quote currency.
func (c Config) StorageSchema() (storage.Schema, error) {
	shape, err := model.ParseShape(c.Schema)
	if err != nil {
		return storage.Schema{}, err
	}
	return storage.NewSchema(shape, c.VSCurrency)
}
