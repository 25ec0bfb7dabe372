// Package scoring combines analytic outputs into a bounded score and recommendation tier.
package scoring

import (
	"math"
	"sync"

	"alphabot-go/internal/config"
	"alphabot-go/internal/metrics"
	"alphabot-go/internal/signal"
)

// Component caps and weights.
const (
	capMicro     = 92
	capGreeks    = 90
	capLiquidity = 88
	capMomentum  = 85
	capSentiment = 83

	wMicro     = 0.35
	wGreeks    = 0.20
	wLiquidity = 0.20
	wMomentum  = 0.15
	wSentiment = 0.10
)

// Neutral baselines used when a component's input is missing.
const (
	baseMicro     = 60
	baseGreeks    = 65
	baseLiquidity = 60
	baseMomentum  = 55
	baseSentiment = 60
)

// News statuses understood by NewsMultiplier.
const (
	NewsClear      = "clear"
	NewsCaution    = "caution"
	NewsHighImpact = "high_impact"
	NewsBlocked    = "blocked"
)

// NewsMultiplier maps a news status to its score multiplier. An empty status is
// clear; unrecognised ones score as caution, matching the news gate.
func NewsMultiplier(status string) float64 {
	switch status {
	case "", NewsClear:
		return 1.0
	case NewsCaution:
		return 0.7
	case NewsHighImpact:
		return 0.3
	case NewsBlocked:
		return 0
	default:
		return 0.7
	}
}

// Context carries market inputs beyond the candidate itself. Has* flags mark presence.
type Context struct {
	SpreadPct   float64
	HasBook     bool
	BuyPressure float64 // percent of traded notional that was aggressive buying
	HasFlow     bool
	FundingRate float64
	HasFunding  bool
	TimeMult    float64 // 1 is neutral
	NewsStatus  string
}

// TierFor maps a total score to its recommendation tier.
func TierFor(total float64) signal.Tier {
	switch {
	case total >= 90:
		return signal.TierStrongTake
	case total >= 85:
		return signal.TierTake
	case total >= 80:
		return signal.TierConsider
	default:
		return signal.TierPass
	}
}

// Scorer computes component scores and tracks the adaptive acceptance floor.
type Scorer struct {
	cfg config.Scorer

	mu         sync.Mutex
	rejections int
}

// New builds a scorer.
func New(cfg config.Scorer) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score returns the scored candidate. The total is always within [0, 100].
func (s *Scorer) Score(c signal.Candidate, ctx Context) signal.Scored {
	comp := signal.Components{
		Microstructure: micro(c),
		Greeks:         greeksScore(c),
		Liquidity:      liquidity(ctx),
		Momentum:       momentum(c, ctx),
		Sentiment:      sentiment(c, ctx),
	}
	weighted := comp.Microstructure*wMicro +
		comp.Greeks*wGreeks +
		comp.Liquidity*wLiquidity +
		comp.Momentum*wMomentum +
		comp.Sentiment*wSentiment

	newsMult := NewsMultiplier(ctx.NewsStatus)
	total := clamp(weighted*ctx.TimeMult*newsMult, 0, 100)
	if math.IsNaN(total) {
		total = 0
	}
	total = math.Round(total*10) / 10
	tier := TierFor(total)
	metrics.SignalsScored.WithLabelValues(c.Asset, string(tier)).Inc()
	return signal.Scored{
		Candidate:  c,
		Components: comp,
		Total:      total,
		Tier:       tier,
		TimeMult:   ctx.TimeMult,
		NewsMult:   newsMult,
	}
}

// Floor returns the current acceptance threshold.
func (s *Scorer) Floor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.floorLocked()
}

func (s *Scorer) floorLocked() float64 {
	floor := s.cfg.MinScore
	if !s.cfg.Adaptive || s.cfg.AdaptiveAfter <= 0 {
		return floor
	}
	relax := float64(s.rejections/s.cfg.AdaptiveAfter) * s.cfg.AdaptiveStep
	if relax > s.cfg.AdaptiveMaxRelax {
		relax = s.cfg.AdaptiveMaxRelax
	}
	return math.Max(s.cfg.HardFloor, floor-relax)
}

// Accept applies the floor to scored and updates the adaptive state.
func (s *Scorer) Accept(scored signal.Scored) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scored.Total >= s.floorLocked() {
		s.rejections = 0
		return true
	}
	s.rejections++
	return false
}

func micro(c signal.Candidate) float64 {
	r := c.Rationale
	if r.OFI == 0 && r.CVD == 0 {
		return baseMicro
	}
	score := float64(baseMicro) + math.Min(20, math.Abs(r.OFI)*50)
	if r.CVD*c.Direction.Sign() > 0 {
		score += 15
	}
	return math.Min(capMicro, score)
}

func greeksScore(c signal.Candidate) float64 {
	score := float64(baseGreeks)
	if c.Rationale.GammaWall > 0 {
		score += 25
	}
	return math.Min(capGreeks, score)
}

func liquidity(ctx Context) float64 {
	score := float64(baseLiquidity)
	if !ctx.HasBook {
		return score
	}
	switch {
	case ctx.SpreadPct < 0.05:
		score += 25
	case ctx.SpreadPct < 0.1:
		score += 15
	}
	return math.Min(capLiquidity, score)
}

func momentum(c signal.Candidate, ctx Context) float64 {
	score := float64(baseMomentum)
	if !ctx.HasFunding {
		return score
	}
	// crowded opposite side pays funding to us
	if ctx.FundingRate*c.Direction.Sign() < 0 {
		score += 30
	}
	return math.Min(capMomentum, score)
}

func sentiment(c signal.Candidate, ctx Context) float64 {
	score := float64(baseSentiment)
	if !ctx.HasFlow {
		return score
	}
	if (c.Direction == signal.Long && ctx.BuyPressure > 55) || (c.Direction == signal.Short && ctx.BuyPressure < 45) {
		score += 30
	}
	return math.Min(capSentiment, score)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
