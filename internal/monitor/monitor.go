package monitor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"alphabot-go/internal/config"
	"alphabot-go/internal/metrics"
	"alphabot-go/internal/signal"
)

// PriceSource answers current prices for an asset.
type PriceSource interface {
	GetCurrentPrice(ctx context.Context, asset string) (float64, error)
}

// PriceFunc adapts a function to PriceSource.
type PriceFunc func(ctx context.Context, asset string) (float64, error)

// GetCurrentPrice calls f.
func (f PriceFunc) GetCurrentPrice(ctx context.Context, asset string) (float64, error) {
	return f(ctx, asset)
}

// Listener receives lifecycle notifications. Calls happen outside the monitor lock.
type Listener interface {
	OnAlert(trade ActiveTrade, kind AlertKind, details string)
	OnClose(trade ActiveTrade)
}

// pnlEpsilon absorbs float error so a price landing exactly on a threshold counts as reaching it.
const pnlEpsilon = 1e-9

func reached(pnl, threshold float64) bool {
	return pnl+pnlEpsilon >= threshold
}

type event struct {
	trade   ActiveTrade
	kind    AlertKind
	details string
	closed  bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithListener registers a lifecycle listener.
func WithListener(l Listener) Option {
	return func(m *Monitor) { m.listeners = append(m.listeners, l) }
}

// Monitor polls prices for open trades and drives their state machine.
type Monitor struct {
	cfg       config.Monitor
	prices    PriceSource
	log       zerolog.Logger
	now       func() time.Time
	listeners []Listener

	mu     sync.Mutex
	trades map[string]*ActiveTrade

	inCycle atomic.Bool
}

// New builds a monitor.
func New(cfg config.Monitor, prices PriceSource, log zerolog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:    cfg,
		prices: prices,
		log:    log.With().Str("component", "monitor").Logger(),
		now:    time.Now,
		trades: make(map[string]*ActiveTrade),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts tracking an accepted signal.
func (m *Monitor) Open(s signal.Scored, size float64) (ActiveTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trades {
		if t.Asset == s.Asset && t.Direction != s.Direction {
			return ActiveTrade{}, fmt.Errorf("%w: %s %s", ErrDirectionConflict, s.Asset, t.Direction)
		}
	}
	t := NewTrade(s, size, m.now())
	return m.addLocked(t)
}

// Add tracks a prepared trade, keyed by its ID.
func (m *Monitor) Add(t *ActiveTrade) (ActiveTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(t)
}

func (m *Monitor) addLocked(t *ActiveTrade) (ActiveTrade, error) {
	if _, ok := m.trades[t.ID]; ok {
		return ActiveTrade{}, fmt.Errorf("%w: %s", ErrDuplicateTrade, t.ID)
	}
	m.trades[t.ID] = t
	metrics.TradesOpen.Set(float64(len(m.trades)))
	m.log.Info().Str("id", t.ID).Str("asset", t.Asset).Str("direction", string(t.Direction)).
		Float64("entry", t.Entry).Float64("stop", t.Stop).Msg("trade opened")
	return t.Clone(), nil
}

// Trades returns copies of open trades ordered by open time.
func (m *Monitor) Trades() []ActiveTrade {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ActiveTrade, 0, len(m.trades))
	for _, t := range m.trades {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// Trade returns a copy of one open trade.
func (m *Monitor) Trade(id string) (ActiveTrade, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return ActiveTrade{}, false
	}
	return t.Clone(), true
}

// Run polls until ctx is cancelled. A cycle that overruns the interval is followed
// immediately by the next one.
func (m *Monitor) Run(ctx context.Context) error {
	interval := m.cfg.PollInterval()
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Info().Int("open", len(m.Trades())).Msg("monitor stopped")
			return nil
		case <-timer.C:
		}
		start := time.Now()
		m.Cycle(ctx)
		wait := interval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// Cycle runs one pass over the open trades. Concurrent calls are skipped.
func (m *Monitor) Cycle(ctx context.Context) {
	if !m.inCycle.CompareAndSwap(false, true) {
		return
	}
	defer m.inCycle.Store(false)
	start := time.Now()
	defer func() { metrics.MonitorCycle.Observe(time.Since(start).Seconds()) }()

	for _, id := range m.ids() {
		if ctx.Err() != nil {
			return
		}
		m.process(ctx, id)
	}
}

func (m *Monitor) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.trades))
	for id := range m.trades {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// process isolates one trade: a fetch error or panic skips it for this cycle.
func (m *Monitor) process(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("id", id).Interface("panic", r).Msg("trade processing panicked")
		}
	}()

	t, ok := m.Trade(id)
	if !ok {
		return
	}
	asset := t.Asset

	timeout := m.cfg.FetchTimeout()
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	price, err := m.prices.GetCurrentPrice(fetchCtx, asset)
	if err != nil {
		m.log.Warn().Err(err).Str("id", id).Str("asset", asset).Msg("price fetch failed, skipping trade this cycle")
		return
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		m.log.Warn().Str("id", id).Float64("price", price).Msg("ignoring invalid price")
		return
	}

	m.emit(m.update(id, price))
}

func (m *Monitor) update(id string, price float64) []event {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return nil
	}
	events := m.apply(t, price)
	if t.Closed() {
		delete(m.trades, id)
		metrics.TradesOpen.Set(float64(len(m.trades)))
	}
	return events
}

// apply runs the per-cycle rules on t at price. Exit checks precede management.
func (m *Monitor) apply(t *ActiveTrade, price float64) []event {
	now := m.now()
	t.Mark(price, now)
	var events []event
	alert := func(kind AlertKind, details string) {
		metrics.TradeAlerts.WithLabelValues(t.Asset, string(kind)).Inc()
		events = append(events, event{trade: t.Clone(), kind: kind, details: details})
	}

	if t.StopCrossed(price) || t.TargetCrossed(price, 1) {
		hitTarget := !t.StopCrossed(price)
		m.close(t, hitTarget, now)
		return append(events, event{trade: t.Clone(), closed: true})
	}

	sign := t.Direction.Sign()
	if t.Status == StatusOpen && reached(t.PnLPercent, m.cfg.BreakevenPct) {
		if err := t.Transition(StatusBreakeven); err == nil {
			t.Stop = t.Entry
			if t.once(AlertBreakeven) {
				alert(AlertBreakeven, fmt.Sprintf("stop moved to entry %.6g", t.Entry))
			}
		}
	}
	if t.Status == StatusBreakeven && reached(t.PnLPercent, m.cfg.PartialPct) {
		if err := t.Transition(StatusPartial); err == nil {
			frac := m.cfg.PartialFraction
			t.Realized += frac * t.PnLPercent
			t.Remaining = 1 - frac
			if t.once(AlertPartial) {
				alert(AlertPartial, fmt.Sprintf("closed %.0f%% at %.6g", frac*100, price))
			}
		}
	}
	trail := price * (1 - sign*m.cfg.TrailDistancePct/100)
	switch {
	case t.Status == StatusPartial && reached(t.PnLPercent, m.cfg.TrailingPct):
		if err := t.Transition(StatusTrailing); err == nil {
			t.TrailingStop = trail
			t.tighten(trail)
			if t.once(AlertTrailing) {
				alert(AlertTrailing, fmt.Sprintf("trailing stop at %.6g", t.Stop))
			}
		}
	case t.Status == StatusTrailing:
		if t.tighten(trail) {
			t.TrailingStop = t.Stop
		}
	}

	if t.TargetCrossed(price, 0) && t.once(AlertTarget1Hit) {
		alert(AlertTarget1Hit, fmt.Sprintf("target 1 %.6g reached", t.Targets[0]))
	}
	m.proximity(t, price, alert)
	return events
}

func (m *Monitor) proximity(t *ActiveTrade, price float64, alert func(AlertKind, string)) {
	sign := t.Direction.Sign()
	if t.PnLPercent < 0 && !t.Alerts[AlertStopApproaching] {
		dist := sign * (price - t.Stop) / t.Entry * 100
		if dist <= m.cfg.StopProximityPct && t.once(AlertStopApproaching) {
			alert(AlertStopApproaching, fmt.Sprintf("%.2f%% from stop", dist))
		}
	}
	for i, kind := range []AlertKind{AlertTarget1Approaching, AlertTarget2Approaching} {
		target := t.Targets[i]
		if target <= 0 || t.Alerts[kind] || t.TargetCrossed(price, i) {
			continue
		}
		dist := sign * (target - price) / t.Entry * 100
		if dist <= m.cfg.TargetProximityPct && t.once(kind) {
			alert(kind, fmt.Sprintf("%.2f%% from target %d", dist, i+1))
		}
	}
}

func (m *Monitor) close(t *ActiveTrade, hitTarget bool, now time.Time) {
	_ = t.Transition(StatusClosed)
	t.Result = ResultLoss
	if t.PnLPercent > 0 {
		t.Result = ResultWin
	}
	t.ClosedAt = now
	metrics.TradesClosed.WithLabelValues(t.Asset, string(t.Result)).Inc()
	m.log.Info().Str("id", t.ID).Str("asset", t.Asset).Str("result", string(t.Result)).
		Bool("target", hitTarget).Float64("pnl_pct", t.PnLPercent).
		Float64("realized_pct", t.RealizedPnLPercent()).Msg("trade closed")
}

func (m *Monitor) emit(events []event) {
	for _, ev := range events {
		for _, l := range m.listeners {
			if ev.closed {
				l.OnClose(ev.trade)
			} else {
				l.OnAlert(ev.trade, ev.kind, ev.details)
			}
		}
	}
}
