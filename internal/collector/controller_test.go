package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"cryptoMonitor/internal/gateway"
	"cryptoMonitor/internal/model"
	"cryptoMonitor/internal/normalize"
	"cryptoMonitor/internal/storage"
	"cryptoMonitor/internal/storage/sqlite"
)

type staticAssets struct {
	ids []string
	err error
}

func (s staticAssets) Assets() ([]string, error) { return s.ids, s.err }

type fakeGateway struct {
	outcomes []gateway.Outcome
	calls    int
	assets   [][]string
}

func (g *fakeGateway) Fetch(_ context.Context, assets []string) gateway.Outcome {
	g.assets = append(g.assets, assets)
	out := g.outcomes[g.calls%len(g.outcomes)]
	g.calls++
	return out
}

type fakeStore struct {
	mu        sync.Mutex
	ensured   []string
	inserted  []string
	insertErr map[string]error
}

func (s *fakeStore) EnsureTable(_ context.Context, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := storage.ValidateAssetID(assetID); err != nil {
		return &storage.SchemaError{AssetID: assetID, Err: err}
	}
	s.ensured = append(s.ensured, assetID)
	return nil
}

func (s *fakeStore) Insert(_ context.Context, assetID string, _ model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertErr[assetID]; err != nil {
		return &storage.WriteError{AssetID: assetID, Err: err}
	}
	s.inserted = append(s.inserted, assetID)
	return nil
}

func (s *fakeStore) Close() error { return nil }

type fakePublisher struct {
	published []string
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, snap model.Snapshot) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, snap.AssetID)
	return nil
}

type panicNormalizer struct{}

func (panicNormalizer) Normalize(model.RawRecord) (model.Snapshot, error) {
	panic("boom")
}

func richRecord(id string) model.RawRecord {
	fields := map[string]interface{}{
		"id":                               id,
		"symbol":                           id[:3],
		"image":                            "https://assets.example.com/" + id + ".png",
		"current_price":                    json.Number("101.25"),
		"market_cap":                       json.Number("1000000"),
		"total_volume":                     json.Number("50000"),
		"high_24h":                         json.Number("105"),
		"low_24h":                          json.Number("99.5"),
		"price_change_24h":                 json.Number("-1.5"),
		"price_change_percentage_24h":      json.Number("-1.46"),
		"market_cap_change_24h":            json.Number("-15000"),
		"market_cap_change_percentage_24h": json.Number("-1.48"),
		"circulating_supply":               json.Number("9876"),
		"total_supply":                     nil,
		"max_supply":                       nil,
		"ath":                              json.Number("150"),
		"ath_change_percentage":            json.Number("-32.5"),
		"atl":                              json.Number("0.5"),
		"atl_change_percentage":            json.Number("20150.1234567"),
		"last_updated":                     "2024-03-01T12:30:45.123Z",
	}
	return model.RawRecord{AssetID: id, Fields: fields}
}

func successOutcome(records ...model.RawRecord) gateway.Outcome {
	return gateway.Outcome{Kind: gateway.KindSuccess, Records: records, StatusCode: 200}
}

var testConfig = Config{Interval: 10 * time.Second, RateLimitCooldown: 180 * time.Second}

func newTestController(gw Gateway, store storage.Storage, opts ...Option) *Controller {
	c := New(testConfig, staticAssets{ids: []string{"bitcoin", "ethereum", "solana"}}, gw, normalize.New(model.ShapeRich, "eur"), store, opts...)
	id := 0
	c.newID = func() string {
		id++
		return fmt.Sprintf("cycle-%d", id)
	}
	return c
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Config{}, staticAssets{}, &fakeGateway{}, normalize.New(model.ShapeRich, ""), &fakeStore{})
	if c.cfg.Interval != 11500*time.Millisecond {
		t.Fatalf("Interval = %v", c.cfg.Interval)
	}
	if c.cfg.RateLimitCooldown != 180*time.Second {
		t.Fatalf("RateLimitCooldown = %v", c.cfg.RateLimitCooldown)
	}
}

func TestRunCyclePartialFailure(t *testing.T) {
	broken := richRecord("ethereum")
	delete(broken.Fields, "market_cap")
	gw := &fakeGateway{outcomes: []gateway.Outcome{successOutcome(richRecord("bitcoin"), broken, richRecord("solana"))}}
	store := &fakeStore{}
	core, logs := observer.New(zapcore.InfoLevel)
	c := newTestController(gw, store, WithLogger(zap.New(core)))

	result := c.RunCycle(context.Background())

	if result.Status != StatusPartial || result.Inserted != 2 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Delay != testConfig.Interval {
		t.Fatalf("Delay = %v, want %v", result.Delay, testConfig.Interval)
	}
	if want := []string{"bitcoin", "solana"}; !reflect.DeepEqual(store.inserted, want) {
		t.Fatalf("inserted = %v, want %v", store.inserted, want)
	}
	if want := []string{"bitcoin", "ethereum", "solana"}; !reflect.DeepEqual(store.ensured, want) {
		t.Fatalf("ensured = %v, want %v", store.ensured, want)
	}
	if want := []string{"bitcoin", "ethereum", "solana"}; !reflect.DeepEqual(gw.assets[0], want) {
		t.Fatalf("requested = %v, want %v", gw.assets[0], want)
	}

	failures := logs.FilterMessage("asset failed").All()
	if len(failures) != 1 {
		t.Fatalf("expected one asset failure log, got %d", len(failures))
	}
	fields := failures[0].ContextMap()
	if fields["asset"] != "ethereum" || fields["cycle_id"] != "cycle-1" {
		t.Fatalf("unexpected failure fields: %v", fields)
	}
	if logs.FilterMessage("cycle complete").Len() != 1 {
		t.Fatalf("expected a cycle summary log")
	}
}

func TestRunCycleOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		outcome   gateway.Outcome
		wantDelay time.Duration
		wantLabel string
	}{
		{
			name:      "rate limited",
			outcome:   gateway.Outcome{Kind: gateway.KindRateLimited, StatusCode: 429, Message: "http 429"},
			wantDelay: 190 * time.Second,
			wantLabel: "rate_limited",
		},
		{
			name:      "upstream error",
			outcome:   gateway.Outcome{Kind: gateway.KindUpstreamError, StatusCode: 200, Message: "empty payload"},
			wantDelay: 10 * time.Second,
			wantLabel: "upstream_error",
		},
		{
			name:      "transient failure",
			outcome:   gateway.Outcome{Kind: gateway.KindTransientFailure, Message: "dial", Err: errors.New("dial tcp: refused")},
			wantDelay: 10 * time.Second,
			wantLabel: "transient_failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			c := newTestController(&fakeGateway{outcomes: []gateway.Outcome{tt.outcome}}, store)

			result := c.RunCycle(context.Background())

			if result.Status != StatusSkipped {
				t.Fatalf("Status = %s, want skipped", result.Status)
			}
			if result.Delay != tt.wantDelay {
				t.Fatalf("Delay = %v, want %v", result.Delay, tt.wantDelay)
			}
			if result.Outcome != tt.wantLabel {
				t.Fatalf("Outcome = %q, want %q", result.Outcome, tt.wantLabel)
			}
			if len(store.ensured) != 0 || len(store.inserted) != 0 {
				t.Fatalf("store touched on %s: %+v", tt.name, store)
			}
		})
	}
}

func TestRunCycleAssetListError(t *testing.T) {
	gw := &fakeGateway{outcomes: []gateway.Outcome{successOutcome(richRecord("bitcoin"))}}
	c := New(testConfig, staticAssets{err: errors.New("no such file")}, gw, normalize.New(model.ShapeRich, "eur"), &fakeStore{})

	result := c.RunCycle(context.Background())

	if result.Outcome != OutcomeAssetListError || result.Status != StatusSkipped {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Delay != testConfig.Interval {
		t.Fatalf("Delay = %v", result.Delay)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway called %d times", gw.calls)
	}
}

func TestRunCycleAllFailed(t *testing.T) {
	store := &fakeStore{insertErr: map[string]error{"bitcoin": errors.New("disk full")}}
	c := newTestController(&fakeGateway{outcomes: []gateway.Outcome{successOutcome(richRecord("bitcoin"))}}, store)

	result := c.RunCycle(context.Background())

	if result.Status != StatusFailure || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunCycleRecoversPanic(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	gw := &fakeGateway{outcomes: []gateway.Outcome{successOutcome(richRecord("bitcoin"))}}
	c := New(testConfig, staticAssets{ids: []string{"bitcoin"}}, gw, panicNormalizer{}, &fakeStore{}, WithLogger(zap.New(core)))

	result := c.RunCycle(context.Background())

	if result.Status != StatusFailure || result.Err == nil {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Delay != testConfig.Interval {
		t.Fatalf("Delay = %v", result.Delay)
	}
	if logs.FilterMessage("cycle panicked").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestRunCyclePublishes(t *testing.T) {
	pub := &fakePublisher{}
	gw := &fakeGateway{outcomes: []gateway.Outcome{successOutcome(richRecord("bitcoin"), richRecord("solana"))}}
	c := newTestController(gw, &fakeStore{}, WithPublisher(pub))

	c.RunCycle(context.Background())

	if want := []string{"bitcoin", "solana"}; !reflect.DeepEqual(pub.published, want) {
		t.Fatalf("published = %v, want %v", pub.published, want)
	}
}

func TestRunCyclePublishFailureKeepsInsert(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	store := &fakeStore{}
	gw := &fakeGateway{outcomes: []gateway.Outcome{successOutcome(richRecord("bitcoin"))}}
	c := newTestController(gw, store, WithPublisher(&fakePublisher{err: errors.New("redis down")}), WithLogger(zap.New(core)))

	result := c.RunCycle(context.Background())

	if result.Status != StatusSuccess || result.Inserted != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if logs.FilterMessage("publish latest failed").Len() != 1 {
		t.Fatalf("expected publish failure to be logged")
	}
}

func TestRunCycleWritesHeartbeat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "heartbeat.json")
	gw := &fakeGateway{outcomes: []gateway.Outcome{successOutcome(richRecord("bitcoin"))}}
	c := newTestController(gw, &fakeStore{}, WithHeartbeat(NewHeartbeatWriter(path)))

	c.RunCycle(context.Background())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read heartbeat: %v", err)
	}
	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		t.Fatalf("parse heartbeat: %v", err)
	}
	if hb.CycleID != "cycle-1" || hb.Status != "success" || hb.Outcome != "success" || hb.Inserted != 1 {
		t.Fatalf("unexpected heartbeat: %+v", hb)
	}
	if _, err := time.Parse(time.RFC3339Nano, hb.FinishedAt); err != nil {
		t.Fatalf("finished_at %q: %v", hb.FinishedAt, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("tmp file left behind")
	}
}

func TestRunSleepsPerOutcomeAndStopsOnCancel(t *testing.T) {
	gw := &fakeGateway{outcomes: []gateway.Outcome{
		successOutcome(richRecord("bitcoin")),
		{Kind: gateway.KindRateLimited, StatusCode: 429},
		{Kind: gateway.KindUpstreamError, Message: "empty payload"},
	}}
	c := newTestController(gw, &fakeStore{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		if len(delays) == 3 {
			cancel()
		}
		return ctx.Err()
	}

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []time.Duration{10 * time.Second, 190 * time.Second, 10 * time.Second}
	if !reflect.DeepEqual(delays, want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	if gw.calls != 3 {
		t.Fatalf("gateway calls = %d, want 3", gw.calls)
	}
}

func TestRunRequiresDependencies(t *testing.T) {
	c := New(testConfig, staticAssets{}, &fakeGateway{}, normalize.New(model.ShapeRich, "eur"), nil)
	if err := c.Run(context.Background()); err == nil {
		t.Fatalf("expected error for nil storage")
	}
}

func TestRunCycleWithSQLiteStore(t *testing.T) {
	schema, err := storage.NewSchema(model.ShapeRich, "eur")
	if err != nil {
		t.Fatalf("new schema: %v", err)
	}
	store, err := sqlite.NewStore(context.Background(), filepath.Join(t.TempDir(), "collector.db"), schema)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	bad := richRecord("bad-id")
	gw := &fakeGateway{outcomes: []gateway.Outcome{successOutcome(richRecord("bitcoin"), bad)}}
	c := newTestController(gw, store)

	for i := 0; i < 2; i++ {
		result := c.RunCycle(context.Background())
		if result.Status != StatusPartial || result.Inserted != 1 || result.Failed != 1 {
			t.Fatalf("cycle %d: unexpected result %+v", i, result)
		}
	}

	var n int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM "bitcoin_data"`).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}

	var atl float64
	if err := store.DB().QueryRow(`SELECT atl_change_percentage FROM "bitcoin_data" LIMIT 1`).Scan(&atl); err != nil {
		t.Fatalf("read atl change: %v", err)
	}
	if math.Abs(atl-20150.123457) > 1e-9 {
		t.Fatalf("atl_change_percentage = %v, want 20150.123457", atl)
	}
}
