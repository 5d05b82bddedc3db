// Package collector runs the fetch, normalize and persist cycle on a fixed
// interval.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cryptoMonitor/internal/gateway"
	"cryptoMonitor/internal/model"
	"cryptoMonitor/internal/storage"
)

const (
	DefaultInterval          = 11500 * time.Millisecond
	DefaultRateLimitCooldown = 180 * time.Second
)

// OutcomeAssetListError marks a cycle skipped because the asset list could
// not be read.
const OutcomeAssetListError = "asset_list_error"

// Gateway fetches one batch of raw records.
type Gateway interface {
	Fetch(ctx context.Context, assets []string) gateway.Outcome
}

// AssetSource returns the assets to request. It is consulted every cycle.
type AssetSource interface {
	Assets() ([]string, error)
}

type Normalizer interface {
	Normalize(raw model.RawRecord) (model.Snapshot, error)
}

// Publisher receives every stored snapshot. Its failures never affect
// persistence.
type Publisher interface {
	Publish(ctx context.Context, snap model.Snapshot) error
}

// Config holds the loop timing.
type Config struct {
	Interval          time.Duration
	RateLimitCooldown time.Duration
}

// Status summarizes what a cycle managed to persist.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailure Status = "failure"
	StatusSkipped Status = "skipped"
)

// CycleResult describes one completed cycle.
type CycleResult struct {
	CycleID  string
	Outcome  string
	Status   Status
	Inserted int
	Failed   int
	Delay    time.Duration
	Err      error
}

// Controller owns the poll loop and the store it writes to.
type Controller struct {
	cfg        Config
	assets     AssetSource
	gateway    Gateway
	normalizer Normalizer
	store      storage.Storage
	publisher  Publisher
	heartbeat  *HeartbeatWriter
	logger     *zap.Logger

	sleep func(context.Context, time.Duration) error
	newID func() string
}

// Option configures a Controller.
type Option func(*Controller)

func WithPublisher(p Publisher) Option {
	return func(c *Controller) {
		c.publisher = p
	}
}

func WithHeartbeat(h *HeartbeatWriter) Option {
	return func(c *Controller) {
		c.heartbeat = h
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a Controller. Zero durations in cfg fall back to the defaults.
func New(cfg Config, assets AssetSource, gw Gateway, normalizer Normalizer, store storage.Storage, opts ...Option) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.RateLimitCooldown <= 0 {
		cfg.RateLimitCooldown = DefaultRateLimitCooldown
	}
	c := &Controller{
		cfg:        cfg,
		assets:     assets,
		gateway:    gw,
		normalizer: normalizer,
		store:      store,
		logger:     zap.NewNop(),
		sleep:      Sleep,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run cycles until ctx is cancelled. Cancellation is a clean shutdown and
// returns nil.
func (c *Controller) Run(ctx context.Context) error {
	if c.assets == nil {
		return fmt.Errorf("asset source is nil")
	}
	if c.gateway == nil {
		return fmt.Errorf("gateway is nil")
	}
	if c.normalizer == nil {
		return fmt.Errorf("normalizer is nil")
	}
	if c.store == nil {
		return fmt.Errorf("storage is nil")
	}

	c.logger.Info("collector started",
		zap.Duration("interval", c.cfg.Interval),
		zap.Duration("rate_limit_cooldown", c.cfg.RateLimitCooldown),
	)
	for {
		if ctx.Err() != nil {
			break
		}
		result := c.RunCycle(ctx)
		if err := c.sleep(ctx, result.Delay); err != nil {
			break
		}
	}
	c.logger.Info("collector stopped")
	return nil
}

// RunCycle performs one fetch and persists what it can. It never panics.
func (c *Controller) RunCycle(ctx context.Context) (result CycleResult) {
	started := time.Now()
	result = CycleResult{CycleID: c.newID(), Delay: c.cfg.Interval}
	logger := c.logger.With(zap.String("cycle_id", result.CycleID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("cycle panicked", zap.Any("panic", r), zap.Stack("stack"))
			result.Status = StatusFailure
			result.Err = fmt.Errorf("cycle panic: %v", r)
			result.Delay = c.cfg.Interval
		}
		c.finish(logger, result, time.Since(started))
	}()

	assets, err := c.assets.Assets()
	if err != nil {
		logger.Error("read asset list failed", zap.Error(err))
		result.Outcome = OutcomeAssetListError
		result.Status = StatusSkipped
		result.Err = err
		return result
	}

	out := c.gateway.Fetch(ctx, assets)
	result.Outcome = out.Kind.String()
	switch out.Kind {
	case gateway.KindSuccess:
	case gateway.KindRateLimited:
		result.Status = StatusSkipped
		result.Delay = c.cfg.RateLimitCooldown + c.cfg.Interval
		logger.Warn("rate limited, backing off", zap.Duration("delay", result.Delay))
		return result
	default:
		result.Status = StatusSkipped
		result.Err = outcomeError(out)
		return result
	}

	for _, rec := range out.Records {
		if err := c.processRecord(ctx, logger, rec); err != nil {
			result.Failed++
			logger.Error("asset failed", zap.String("asset", rec.AssetID), zap.Error(err))
			continue
		}
		result.Inserted++
	}
	result.Status = statusFor(result.Inserted, result.Failed)
	return result
}

func (c *Controller) processRecord(ctx context.Context, logger *zap.Logger, rec model.RawRecord) error {
	if err := c.store.EnsureTable(ctx, rec.AssetID); err != nil {
		return err
	}
	snap, err := c.normalizer.Normalize(rec)
	if err != nil {
		return err
	}
	if err := c.store.Insert(ctx, rec.AssetID, snap); err != nil {
		return err
	}
	logger.Debug("snapshot stored", zap.String("asset", rec.AssetID))

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, snap); err != nil {
			logger.Warn("publish latest failed", zap.String("asset", rec.AssetID), zap.Error(err))
		}
	}
	return nil
}

func (c *Controller) finish(logger *zap.Logger, result CycleResult, elapsed time.Duration) {
	logger.Info("cycle complete",
		zap.String("outcome", result.Outcome),
		zap.String("status", string(result.Status)),
		zap.Int("inserted", result.Inserted),
		zap.Int("failed", result.Failed),
		zap.Duration("delay", result.Delay),
		zap.Duration("duration", elapsed),
	)
	if err := c.heartbeat.Write(result); err != nil {
		logger.Warn("write heartbeat failed", zap.Error(err))
	}
}

func statusFor(inserted, failed int) Status {
	switch {
	case failed == 0:
		return StatusSuccess
	case inserted == 0:
		return StatusFailure
	default:
		return StatusPartial
	}
}

func outcomeError(out gateway.Outcome) error {
	if out.Err != nil {
		return out.Err
	}
	return fmt.Errorf("%s: %s", out.Kind, out.Message)
}
