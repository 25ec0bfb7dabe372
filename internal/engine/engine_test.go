package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphabot-go/internal/config"
	"alphabot-go/internal/monitor"
	"alphabot-go/internal/paper"
	"alphabot-go/internal/risk"
	"alphabot-go/internal/signal"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu      sync.Mutex
	signals []signal.Scored
	alerts  []monitor.AlertKind
	closes  []monitor.Result
}

func (r *recorder) NotifySignal(s signal.Scored, size float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
	return nil
}

func (r *recorder) NotifyAlert(t monitor.ActiveTrade, kind monitor.AlertKind, details string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, kind)
	return nil
}

func (r *recorder) NotifyClose(t monitor.ActiveTrade, result monitor.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes = append(r.closes, result)
	return nil
}

type quotes struct {
	mu sync.Mutex
	px map[string]float64
}

func (q *quotes) set(asset string, px float64) {
	q.mu.Lock()
	q.px[asset] = px
	q.mu.Unlock()
}

func (q *quotes) GetCurrentPrice(_ context.Context, asset string) (float64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.px[asset], nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Assets: []config.Asset{{Name: "BTC"}},
		Stream: config.Stream{Provider: "stub", StubIntervalMs: 60_000},
		Gates:  config.Gates{DefaultQuality: "excellent", DefaultMultiplier: 1.2},
		Paper: config.Paper{
			OutcomesPath: filepath.Join(dir, "outcomes.jsonl"),
			TradesPath:   filepath.Join(dir, "trades.jsonl"),
		},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

type harness struct {
	engine *Engine
	clock  *clock
	notes  *recorder
	quotes *quotes
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	h := &harness{
		clock:  &clock{t: time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)},
		notes:  &recorder{},
		quotes: &quotes{px: map[string]float64{}},
	}
	e, err := New(cfg, zerolog.Nop(), WithClock(h.clock.now), WithNotifier(h.notes), WithPriceSource(h.quotes))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	h.engine = e
	return h
}

// feedBullish writes a tight book leaning to the bid plus aggressive buys around 100.
func (h *harness) feedBullish(symbol string) {
	store := h.engine.Ingestor().Store()
	store.Track(symbol)
	now := h.clock.now()
	book := &signal.BookSnapshot{Symbol: symbol, Ts: now}
	for i := 0; i < 5; i++ {
		off := 0.01 * float64(i+1)
		book.Bids = append(book.Bids, signal.Level{Price: 100 - off, Qty: 10})
		book.Asks = append(book.Asks, signal.Level{Price: 100 + off, Qty: 2})
	}
	store.Update(signal.NormalizedEvent{Symbol: symbol, Kind: signal.EventBook, Book: book, Received: now})
	for i := 0; i < 3; i++ {
		store.Update(signal.NormalizedEvent{
			Symbol:   symbol,
			Kind:     signal.EventTrade,
			Trade:    signal.Tick{Symbol: symbol, Price: 100, Size: 5, Side: signal.SideBuy, Ts: now},
			Received: now,
		})
	}
}

func TestRunCycleOpensTradeForStrongSignal(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.feedBullish("BTCUSDT")

	decisions := h.engine.RunCycle(context.Background())
	require.Len(t, decisions, 1)
	d := decisions[0]
	require.True(t, d.Accepted, "reason %q", d.Reason)
	assert.Equal(t, signal.Long, d.Signal.Direction)
	assert.Equal(t, signal.KindOFIMomentum, d.Signal.Kind)
	assert.InDelta(t, 94.5, d.Signal.Total, 0.05)
	assert.Equal(t, signal.TierStrongTake, d.Signal.Tier)
	// 100000 * 0.01 / 1.2 floored to 0.001
	assert.InDelta(t, 833.333, d.Size, 1e-9)

	trades := h.engine.Monitor().Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "BTC", trades[0].Asset)
	assert.InDelta(t, 833.333, h.engine.Account().Position(trades[0].ID), 1e-9)
	require.Len(t, h.notes.signals, 1)

	q, ok := h.engine.Coordinator().Quota("BTC")
	require.True(t, ok)
	assert.Equal(t, 1, q.OpenTrades)
	assert.Equal(t, signal.Long, q.ActiveDirection)
}

func TestLifecycleSettlesEverywhere(t *testing.T) {
	cfg := testConfig(t)
	h := newHarness(t, cfg)
	h.feedBullish("BTCUSDT")
	require.True(t, h.engine.RunCycle(context.Background())[0].Accepted)

	ctx := context.Background()
	for _, px := range []float64{101.2, 102.2, 103.3, 102.1} {
		h.clock.advance(5 * time.Second)
		h.quotes.set("BTC", px)
		h.engine.Monitor().Cycle(ctx)
	}

	assert.Empty(t, h.engine.Monitor().Trades())
	assert.Equal(t, []monitor.Result{monitor.ResultWin}, h.notes.closes)
	assert.Contains(t, h.notes.alerts, monitor.AlertBreakeven)
	assert.Contains(t, h.notes.alerts, monitor.AlertPartial)
	assert.Contains(t, h.notes.alerts, monitor.AlertTrailing)

	closed := h.engine.Ledger().Snapshot()
	require.Len(t, closed, 1)
	// half banked at +2.2%, half stopped at +2.1% after trailing from 103.3
	assert.InDelta(t, 2.15, closed[0].PnLPercent, 1e-9)
	assert.Equal(t, "WIN", closed[0].Result)

	half := 833.333 / 2
	assert.InDelta(t, 100_000+half*2.2+half*2.1, h.engine.Account().Balance(), 1e-6)

	q, _ := h.engine.Coordinator().Quota("BTC")
	assert.Zero(t, q.OpenTrades)
	assert.Empty(t, q.ActiveDirection)
	assert.Equal(t, 1, h.engine.Tracker().Stats(closed[0].SetupKey).Wins)

	require.NoError(t, h.engine.Close())
	history, err := paper.LoadOutcomes(cfg.Paper.OutcomesPath)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, closed[0].SetupKey, history[0].SetupKey)

	raw, err := os.ReadFile(cfg.Paper.TradesPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"result":"WIN"`)
}

func TestNewsBlackoutSuppressesSignals(t *testing.T) {
	cfg := testConfig(t)
	start := time.Date(2026, 3, 3, 13, 30, 0, 0, time.UTC)
	cfg.Gates.NewsWindows = []config.NewsWindow{
		{Name: "cpi", Start: start, End: start.Add(time.Hour), Status: "blocked"},
	}
	h := newHarness(t, cfg)
	h.feedBullish("BTCUSDT")

	assert.Empty(t, h.engine.RunCycle(context.Background()))
	assert.Empty(t, h.engine.Monitor().Trades())
	assert.Empty(t, h.notes.signals)
}

func TestCautionScalesBelowFloor(t *testing.T) {
	cfg := testConfig(t)
	start := time.Date(2026, 3, 3, 13, 30, 0, 0, time.UTC)
	cfg.Gates.NewsWindows = []config.NewsWindow{
		{Name: "fomc", Start: start, End: start.Add(time.Hour), Status: "caution", Assets: []string{"BTC"}},
	}
	h := newHarness(t, cfg)
	h.feedBullish("BTCUSDT")

	// 94.5 * 0.7 falls under the 85 floor
	assert.Empty(t, h.engine.RunCycle(context.Background()))
}

func TestStaleBookSkipsAsset(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.feedBullish("BTCUSDT")
	h.clock.advance(11 * time.Second)

	assert.Empty(t, h.engine.RunCycle(context.Background()))
}

func TestCooldownBlocksSecondSignal(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.feedBullish("BTCUSDT")
	require.True(t, h.engine.RunCycle(context.Background())[0].Accepted)

	h.clock.advance(time.Minute)
	h.feedBullish("BTCUSDT")
	decisions := h.engine.RunCycle(context.Background())
	require.Len(t, decisions, 1)
	assert.False(t, decisions[0].Accepted)
	assert.Len(t, h.engine.Monitor().Trades(), 1)
}

func TestOpenForgetsSweptLevel(t *testing.T) {
	h := newHarness(t, testConfig(t))
	store := h.engine.Ingestor().Store()
	store.Track("BTCUSDT")
	now := h.clock.now()
	book := &signal.BookSnapshot{Symbol: "BTCUSDT", Ts: now}
	for i := 0; i < 20; i++ {
		book.Bids = append(book.Bids, signal.Level{Price: 100 - 0.1*float64(i+1), Qty: 1})
		book.Asks = append(book.Asks, signal.Level{Price: 100 + 0.1*float64(i+1), Qty: 1})
	}
	book.Bids[1].Qty = 40
	store.Update(signal.NormalizedEvent{Symbol: "BTCUSDT", Kind: signal.EventBook, Book: book, Received: now})

	a := h.engine.rules.Analyzer.Analyze(store.Snapshot("BTCUSDT"), now)
	require.Len(t, a.BidWalls, 1)
	level := a.BidWalls[0].Price
	remembered := func() bool {
		for _, lv := range h.engine.rules.Analyzer.Levels("BTCUSDT") {
			if lv.Price == level {
				return true
			}
		}
		return false
	}
	require.True(t, remembered())

	d := risk.Decision{
		Accepted: true,
		Size:     1,
		Signal: signal.Scored{
			Candidate: signal.Candidate{
				Asset:     "BTC",
				Symbol:    "BTCUSDT",
				Kind:      signal.KindLiquiditySweep,
				Direction: signal.Long,
				EntryZone: [2]float64{100, 100},
				Stop:      level * 0.995,
				Targets:   [2]float64{101.5, 103},
				Rationale: signal.Rationale{SweepLevel: level},
				Ts:        now,
			},
			Total: 90,
			Tier:  signal.TierStrongTake,
		},
	}
	require.NoError(t, h.engine.open(d))
	assert.Len(t, h.engine.Monitor().Trades(), 1)
	assert.False(t, remembered(), "level is forgotten once the sweep trades")
}

func TestTrackerWarmsFromOutcomes(t *testing.T) {
	cfg := testConfig(t)
	rec, err := paper.NewJSONLRecorder(cfg.Paper.OutcomesPath)
	require.NoError(t, err)
	for i := 0; i < 11; i++ {
		require.NoError(t, rec.RecordOutcome("ofi_momentum_flip_long_BTC", -1))
	}
	require.NoError(t, rec.Close())

	h := newHarness(t, cfg)
	reduce, _ := h.engine.Tracker().ShouldReduce("ofi_momentum_flip_long_BTC")
	assert.True(t, reduce)

	h.feedBullish("BTCUSDT")
	d := h.engine.RunCycle(context.Background())[0]
	require.True(t, d.Accepted)
	assert.InDelta(t, 416.666, d.Size, 1e-9)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stream.StubIntervalMs = 5
	cfg.Engine.CycleIntervalMs = 20
	cfg.Monitor.PollIntervalMs = 20
	e, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := e.Ingestor().LastPrice("BTCUSDT")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not stop")
	}
}
