// Package risk gates scored signals per asset and sizes the accepted ones.
package risk

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alphabot-go/internal/config"
	"alphabot-go/internal/metrics"
	"alphabot-go/internal/signal"
)

// Reason names why the coordinator rejected a signal.
type Reason string

const (
	ReasonDailyCap       Reason = "daily_cap"
	ReasonHourlyCap      Reason = "hourly_cap"
	ReasonGlobalCooldown Reason = "global_cooldown"
	ReasonAssetCooldown  Reason = "asset_cooldown"
	ReasonDirectionLock  Reason = "direction_lock"
	ReasonAntiChurn      Reason = "anti_churn"
	ReasonCircuitBreaker Reason = "circuit_breaker"
	ReasonCorrelated     Reason = "correlated"
	ReasonUnknownAsset   Reason = "unknown_asset"
	ReasonZeroSize       Reason = "zero_size"
)

// defaultCorrelation applies to pairs missing from the configured matrix.
const defaultCorrelation = 0.5

// Limits caps the notional committed to a single trade. Zero disables the cap.
type Limits struct {
	MaxNotionalPerTrade float64
}

// Allow reports whether notional fits under the cap.
func (l Limits) Allow(notional float64) bool {
	return l.MaxNotionalPerTrade <= 0 || notional <= l.MaxNotionalPerTrade
}

// Quota is the per-asset bookkeeping. Counts reset on UTC day rollover.
type Quota struct {
	DailyCount        int
	Accepted          []time.Time // accept times within the last hour
	LastSignal        time.Time
	ActiveDirection   signal.Direction // empty when no trade is open
	OpenTrades        int
	LastEntry         float64
	ConsecutiveLosses int
	DailyLosses       int
	BlockedUntil      time.Time
}

// HourlyCount returns accepts within the hour before now.
func (q *Quota) HourlyCount(now time.Time) int {
	n := 0
	for _, ts := range q.Accepted {
		if now.Sub(ts) < time.Hour {
			n++
		}
	}
	return n
}

// Decision is the coordinator verdict for one scored signal.
type Decision struct {
	Signal   signal.Scored
	Accepted bool
	Reason   Reason
	Size     float64
}

// Bankroll supplies the account size used for sizing.
type Bankroll interface {
	Balance() float64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithBankroll sizes against a live balance instead of the configured account size.
func WithBankroll(b Bankroll) Option {
	return func(c *Coordinator) { c.bankroll = b }
}

// WithTracker lets setup performance scale position sizes.
func WithTracker(t *Tracker) Option {
	return func(c *Coordinator) { c.tracker = t }
}

// Coordinator enforces quotas, cooldowns, direction locks and correlation suppression.
type Coordinator struct {
	cfg      config.Coordinator
	assets   map[string]config.Asset
	limits   Limits
	log      zerolog.Logger
	now      func() time.Time
	bankroll Bankroll
	tracker  *Tracker

	mu         sync.Mutex
	quotas     map[string]*Quota
	lastGlobal time.Time
	day        string
}

// NewCoordinator builds a coordinator for the given assets.
func NewCoordinator(cfg config.Coordinator, assets []config.Asset, log zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		assets: make(map[string]config.Asset, len(assets)),
		limits: Limits{MaxNotionalPerTrade: cfg.MaxNotionalPerTrade},
		log:    log.With().Str("component", "coordinator").Logger(),
		now:    time.Now,
		quotas: make(map[string]*Quota, len(assets)),
	}
	for _, a := range assets {
		name := strings.ToUpper(a.Name)
		c.assets[name] = a
		c.quotas[name] = &Quota{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Admit evaluates a batch of simultaneous signals. Signals are considered in
// descending score order, so a correlated lower score loses to the higher one.
// Accepted signals update quotas immediately.
func (c *Coordinator) Admit(batch []signal.Scored) []Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.rollover(now)

	ordered := make([]signal.Scored, len(batch))
	copy(ordered, batch)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Total > ordered[j].Total })

	out := make([]Decision, 0, len(ordered))
	var kept []string
	for _, s := range ordered {
		asset := strings.ToUpper(s.Asset)
		d := Decision{Signal: s}
		if other, hit := c.correlatedWith(asset, kept); hit {
			d.Reason = ReasonCorrelated
			c.log.Debug().Str("asset", asset).Str("kept", other).Msg("suppressed by correlated signal")
		} else if reason, ok := c.check(asset, s, now); !ok {
			d.Reason = reason
		} else if size := c.sizeLocked(asset, s); size <= 0 {
			d.Reason = ReasonZeroSize
		} else {
			d.Accepted = true
			d.Size = size
			c.commit(asset, s, now)
			kept = append(kept, asset)
		}
		if !d.Accepted {
			metrics.SignalsRejected.WithLabelValues(asset, string(d.Reason)).Inc()
			c.log.Info().Str("asset", asset).Str("reason", string(d.Reason)).Float64("score", s.Total).Msg("signal rejected")
		}
		out = append(out, d)
	}
	return out
}

func (c *Coordinator) check(asset string, s signal.Scored, now time.Time) (Reason, bool) {
	q, ok := c.quotas[asset]
	if !ok {
		return ReasonUnknownAsset, false
	}
	switch {
	case now.Before(q.BlockedUntil):
		return ReasonCircuitBreaker, false
	case q.ActiveDirection != "" && q.ActiveDirection != s.Direction:
		return ReasonDirectionLock, false
	case q.DailyCount >= c.cfg.MaxDailyPerAsset:
		return ReasonDailyCap, false
	case q.HourlyCount(now) >= c.cfg.MaxHourlyPerAsset:
		return ReasonHourlyCap, false
	case !c.lastGlobal.IsZero() && now.Sub(c.lastGlobal) < minutes(c.cfg.GlobalCooldownMin):
		return ReasonGlobalCooldown, false
	case !q.LastSignal.IsZero() && now.Sub(q.LastSignal) < minutes(c.cfg.AssetCooldownMin):
		return ReasonAssetCooldown, false
	}
	if q.LastEntry > 0 {
		if math.Abs(s.Entry()-q.LastEntry)/q.LastEntry < c.cfg.AntiChurnPct {
			return ReasonAntiChurn, false
		}
	}
	return "", true
}

func (c *Coordinator) commit(asset string, s signal.Scored, now time.Time) {
	q := c.quotas[asset]
	q.DailyCount++
	q.Accepted = append(pruneHour(q.Accepted, now), now)
	q.LastSignal = now
	q.ActiveDirection = s.Direction
	q.OpenTrades++
	q.LastEntry = s.Entry()
	c.lastGlobal = now
}

func (c *Coordinator) correlatedWith(asset string, kept []string) (string, bool) {
	for _, other := range kept {
		if c.Correlation(asset, other) > c.cfg.CorrelationThreshold {
			return other, true
		}
	}
	return "", false
}

// Correlation returns the configured coefficient for a pair in either order.
func (c *Coordinator) Correlation(a, b string) float64 {
	a, b = strings.ToUpper(a), strings.ToUpper(b)
	if a == b {
		return 1
	}
	if v, ok := c.cfg.Correlations[a+"/"+b]; ok {
		return v
	}
	if v, ok := c.cfg.Correlations[b+"/"+a]; ok {
		return v
	}
	return defaultCorrelation
}

// PositionSize returns the quantity for a signal on asset.
func (c *Coordinator) PositionSize(asset string, s signal.Scored) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sizeLocked(strings.ToUpper(asset), s)
}

func (c *Coordinator) sizeLocked(asset string, s signal.Scored) float64 {
	a := c.assets[asset]
	account := c.cfg.AccountSize
	if c.bankroll != nil {
		account = c.bankroll.Balance()
	}
	regime := 1.0
	if m, ok := c.cfg.RegimeMultipliers[a.VolatilityRegime]; ok {
		regime = m
	}
	if c.tracker != nil {
		regime *= c.tracker.SizeFactor(s.SetupKey())
	}
	qty := PositionSize(account, c.cfg.RiskPerTrade, regime, s.Entry(), s.Stop, a.MinQuantity)
	if entry := s.Entry(); qty > 0 && !c.limits.Allow(qty*entry) {
		qty = floorToStep(c.limits.MaxNotionalPerTrade/entry, a.MinQuantity)
	}
	return qty
}

// PositionSize computes account × risk × regime / |entry − stop|, floored to lotStep.
// A zero lotStep leaves the quantity unrounded.
func PositionSize(account, riskFraction, regime, entry, stop, lotStep float64) float64 {
	perUnit := math.Abs(entry - stop)
	if perUnit == 0 || account <= 0 || riskFraction <= 0 || regime <= 0 {
		return 0
	}
	return floorToStep(account*riskFraction*regime/perUnit, lotStep)
}

func floorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	q := decimal.NewFromFloat(qty)
	st := decimal.NewFromFloat(step)
	return q.Div(st).Floor().Mul(st).InexactFloat64()
}

// Outcome classifies a closed trade for the coordinator.
type Outcome string

const (
	OutcomeWin            Outcome = "win"
	OutcomeLoss           Outcome = "loss"
	OutcomeCircuitBreaker Outcome = "circuit_breaker"
	OutcomeDailyLimit     Outcome = "daily_limit"
)

// Close releases one open trade on the asset and records the result.
func (c *Coordinator) Close(asset string, pnlPercent float64) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.rollover(now)
	asset = strings.ToUpper(asset)
	q, ok := c.quotas[asset]
	if !ok {
		return OutcomeLoss
	}
	q.release()
	if pnlPercent > 0 {
		q.ConsecutiveLosses = 0
		return OutcomeWin
	}
	q.ConsecutiveLosses++
	q.DailyLosses++
	if c.cfg.MaxDailyLosses > 0 && q.DailyLosses >= c.cfg.MaxDailyLosses {
		q.BlockedUntil = now.Add(minutes(c.cfg.DailyLimitMin))
		c.log.Warn().Str("asset", asset).Int("losses", q.DailyLosses).Time("until", q.BlockedUntil).Msg("daily loss limit reached")
		return OutcomeDailyLimit
	}
	if c.cfg.MaxConsecutiveLosses > 0 && q.ConsecutiveLosses >= c.cfg.MaxConsecutiveLosses {
		q.BlockedUntil = now.Add(minutes(c.cfg.CircuitBreakerMin))
		q.ConsecutiveLosses = 0
		c.log.Warn().Str("asset", asset).Time("until", q.BlockedUntil).Msg("circuit breaker tripped")
		return OutcomeCircuitBreaker
	}
	return OutcomeLoss
}

// Release frees one open trade without recording a result.
func (c *Coordinator) Release(asset string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q, ok := c.quotas[strings.ToUpper(asset)]; ok {
		q.release()
	}
}

// release drops the direction lock once the last open trade is gone.
func (q *Quota) release() {
	if q.OpenTrades > 0 {
		q.OpenTrades--
	}
	if q.OpenTrades == 0 {
		q.ActiveDirection = ""
	}
}

// Quota returns a copy of the asset's bookkeeping.
func (c *Coordinator) Quota(asset string) (Quota, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover(c.now())
	q, ok := c.quotas[strings.ToUpper(asset)]
	if !ok {
		return Quota{}, false
	}
	cp := *q
	cp.Accepted = append([]time.Time(nil), q.Accepted...)
	return cp, true
}

// rollover resets daily counters when the UTC date changes. Cooldown timestamps,
// open directions and breaker deadlines carry over.
func (c *Coordinator) rollover(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if day == c.day {
		return
	}
	if c.day != "" {
		for _, q := range c.quotas {
			q.DailyCount = 0
			q.DailyLosses = 0
			q.LastEntry = 0
		}
	}
	c.day = day
}

func pruneHour(ts []time.Time, now time.Time) []time.Time {
	out := ts[:0]
	for _, t := range ts {
		if now.Sub(t) < time.Hour {
			out = append(out, t)
		}
	}
	return out
}

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }
