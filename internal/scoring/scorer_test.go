package scoring

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphabot-go/internal/config"
	"alphabot-go/internal/signal"
)

func longCandidate() signal.Candidate {
	return signal.Candidate{
		Asset:     "BTC",
		Kind:      signal.KindOFIMomentum,
		Direction: signal.Long,
		Strength:  84,
		Rationale: signal.Rationale{OFI: 0.6, CVD: 1000},
	}
}

func fullContext() Context {
	return Context{
		SpreadPct: 0.01, HasBook: true,
		BuyPressure: 70, HasFlow: true,
		FundingRate: -0.0001, HasFunding: true,
		TimeMult: 1, NewsStatus: NewsClear,
	}
}

func TestScoreComponentsAndCaps(t *testing.T) {
	s := New(config.Scorer{MinScore: 85, HardFloor: 80})
	got := s.Score(longCandidate(), fullContext())

	assert.Equal(t, 92.0, got.Components.Microstructure)
	assert.Equal(t, 65.0, got.Components.Greeks)
	assert.Equal(t, 85.0, got.Components.Liquidity)
	assert.Equal(t, 85.0, got.Components.Momentum)
	assert.Equal(t, 83.0, got.Components.Sentiment)

	want := 92*0.35 + 65*0.20 + 85*0.20 + 85*0.15 + 83*0.10
	assert.InDelta(t, math.Round(want*10)/10, got.Total, 1e-9)
	assert.Equal(t, signal.TierConsider, got.Tier)
}

func TestScoreGammaAndSessionBoost(t *testing.T) {
	s := New(config.Scorer{})
	c := longCandidate()
	c.Rationale.GammaWall = 101
	ctx := fullContext()
	ctx.TimeMult = 1.1
	got := s.Score(c, ctx)
	assert.Equal(t, 90.0, got.Components.Greeks)
	assert.Equal(t, signal.TierStrongTake, got.Tier)
	assert.LessOrEqual(t, got.Total, 100.0)
}

func TestMissingDataUsesBaselines(t *testing.T) {
	s := New(config.Scorer{})
	got := s.Score(signal.Candidate{Asset: "ETH", Direction: signal.Short}, Context{TimeMult: 1})
	assert.Equal(t, signal.Components{
		Microstructure: 60, Greeks: 65, Liquidity: 60, Momentum: 55, Sentiment: 60,
	}, got.Components)
}

func TestNewsMultipliers(t *testing.T) {
	s := New(config.Scorer{})
	base := s.Score(longCandidate(), fullContext()).Total

	for status, mult := range map[string]float64{NewsClear: 1, NewsCaution: 0.7, NewsHighImpact: 0.3, NewsBlocked: 0, "": 1, "unscheduled": 0.7} {
		ctx := fullContext()
		ctx.NewsStatus = status
		got := s.Score(longCandidate(), ctx)
		assert.InDelta(t, base*mult, got.Total, 0.11, status)
		assert.Equal(t, mult, got.NewsMult)
	}
}

func TestShortDirectionScoring(t *testing.T) {
	s := New(config.Scorer{})
	c := signal.Candidate{Asset: "SOL", Direction: signal.Short, Rationale: signal.Rationale{OFI: -0.5, CVD: -10}}
	ctx := fullContext()
	ctx.BuyPressure = 30
	ctx.FundingRate = 0.0003
	got := s.Score(c, ctx)
	assert.Equal(t, 92.0, got.Components.Microstructure)
	assert.Equal(t, 85.0, got.Components.Momentum)
	assert.Equal(t, 83.0, got.Components.Sentiment)

	ctx.FundingRate = -0.0003
	ctx.BuyPressure = 60
	got = s.Score(c, ctx)
	assert.Equal(t, 55.0, got.Components.Momentum)
	assert.Equal(t, 60.0, got.Components.Sentiment)
}

func TestTotalAlwaysBounded(t *testing.T) {
	s := New(config.Scorer{})
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		c := signal.Candidate{
			Asset:     "BTC",
			Direction: signal.Long,
			Rationale: signal.Rationale{OFI: rng.NormFloat64() * 10, CVD: rng.NormFloat64(), GammaWall: rng.Float64()},
		}
		ctx := Context{
			SpreadPct: rng.Float64(), HasBook: rng.Intn(2) == 0,
			BuyPressure: rng.Float64() * 100, HasFlow: true,
			FundingRate: rng.NormFloat64(), HasFunding: true,
			TimeMult: rng.Float64() * 5, NewsStatus: NewsCaution,
		}
		got := s.Score(c, ctx)
		require.GreaterOrEqual(t, got.Total, 0.0)
		require.LessOrEqual(t, got.Total, 100.0)
	}
	got := s.Score(longCandidate(), Context{TimeMult: math.Inf(1)})
	assert.Equal(t, 100.0, got.Total)
	got = s.Score(longCandidate(), Context{TimeMult: -3})
	assert.Equal(t, 0.0, got.Total)
}

func TestTierBoundaries(t *testing.T) {
	assert.Equal(t, signal.TierStrongTake, TierFor(90))
	assert.Equal(t, signal.TierTake, TierFor(89.9))
	assert.Equal(t, signal.TierTake, TierFor(85))
	assert.Equal(t, signal.TierConsider, TierFor(80))
	assert.Equal(t, signal.TierPass, TierFor(79.9))
	assert.Equal(t, "exceptional", TierFor(95).Confidence())
	assert.Equal(t, "low", TierFor(10).Confidence())
}

func TestAdaptiveFloor(t *testing.T) {
	s := New(config.Scorer{MinScore: 85, HardFloor: 82, Adaptive: true, AdaptiveAfter: 2, AdaptiveStep: 1, AdaptiveMaxRelax: 5})
	low := signal.Scored{Total: 70}

	assert.Equal(t, 85.0, s.Floor())
	assert.False(t, s.Accept(low))
	assert.Equal(t, 85.0, s.Floor())
	assert.False(t, s.Accept(low))
	assert.Equal(t, 84.0, s.Floor())
	for i := 0; i < 20; i++ {
		s.Accept(low)
	}
	assert.Equal(t, 82.0, s.Floor(), "never below hard floor")

	assert.True(t, s.Accept(signal.Scored{Total: 82.5}))
	assert.Equal(t, 85.0, s.Floor(), "reset on acceptance")
}

func TestStaticFloor(t *testing.T) {
	s := New(config.Scorer{MinScore: 85, HardFloor: 80})
	for i := 0; i < 50; i++ {
		s.Accept(signal.Scored{Total: 10})
	}
	assert.Equal(t, 85.0, s.Floor())
	assert.True(t, s.Accept(signal.Scored{Total: 85}))
}
