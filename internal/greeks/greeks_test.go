package greeks

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphabot-go/internal/config"
	"alphabot-go/internal/signal"
)

func TestCalculateKnownValues(t *testing.T) {
	call, err := Calculate(100, 100, 1, 0.05, 0.2, Call)
	require.NoError(t, err)
	assert.InDelta(t, 0.6368, call.Delta, 1e-4)
	assert.InDelta(t, 0.018762, call.Gamma, 1e-6)
	assert.InDelta(t, 0.3752, call.Vega, 1e-4)
	assert.InDelta(t, -0.01757, call.Theta, 1e-5)

	put, err := Calculate(100, 100, 1, 0.05, 0.2, Put)
	require.NoError(t, err)
	assert.InDelta(t, -0.3632, put.Delta, 1e-4)
	assert.InDelta(t, call.Gamma, put.Gamma, 1e-12)
	assert.InDelta(t, -0.00454, put.Theta, 1e-5)
	assert.InDelta(t, 1.0, call.Delta-put.Delta, 1e-12)
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	for _, in := range [][4]float64{{0, 100, 1, 0.2}, {100, 0, 1, 0.2}, {100, 100, 0, 0.2}, {100, 100, 1, 0}} {
		_, err := Calculate(in[0], in[1], in[2], 0.05, in[3], Call)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func testEngine() *Engine {
	cfg := config.Greeks{
		RiskFreeRate:      0.05,
		DefaultExpiryDays: 7,
		HighDistancePct:   0.02,
		MediumDistancePct: 0.05,
		HighExposure:      1000,
		MediumExposure:    500,
	}
	return NewEngine(cfg)
}

func TestLoadChainAndExposure(t *testing.T) {
	chain, err := LoadChain("BTC", filepath.Join("testdata", "chain.json"))
	require.NoError(t, err)
	require.Len(t, chain.Strikes, 4, "row without strike is skipped")

	now := time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC)
	exp, err := testEngine().Exposure(61500, chain, now)
	require.NoError(t, err)
	assert.InDelta(t, 7.0/365, exp.Years, 1e-9)
	require.Len(t, exp.ByStrike, 3, "later expiry rows are excluded")
	assert.Equal(t, 60000.0, exp.ByStrike[0].Strike)
	assert.Equal(t, 62000.0, exp.Wall.Strike)
	assert.Greater(t, exp.Wall.Call, 0.0)
	assert.Greater(t, exp.Wall.Put, 0.0)
	assert.InDelta(t, exp.Total(), exp.TotalCall+exp.TotalPut, 1e-9)

	sq, ok := testEngine().Squeeze(exp)
	require.True(t, ok)
	assert.Equal(t, TierHigh, sq.Tier)
	assert.Equal(t, signal.Long, sq.Direction)
	assert.InDelta(t, 500.0/61500, sq.Distance, 1e-12)
	assert.GreaterOrEqual(t, sq.Strength, 85.0)
	assert.LessOrEqual(t, sq.Strength, 95.0)
}

func TestNearestExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, has, err := NearestExpiry(Chain{Strikes: []Strike{{Strike: 1}}}, now)
	require.NoError(t, err)
	assert.False(t, has)

	past := Chain{Strikes: []Strike{{Strike: 1, Expiry: now.Add(-time.Hour)}}}
	_, _, err = NearestExpiry(past, now)
	assert.ErrorIs(t, err, ErrNoFutureExpiry)

	mixed := Chain{Strikes: []Strike{
		{Strike: 1, Expiry: now.Add(-time.Hour)},
		{Strike: 1, Expiry: now.Add(72 * time.Hour)},
		{Strike: 1, Expiry: now.Add(24 * time.Hour)},
	}}
	got, has, err := NearestExpiry(mixed, now)
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, now.Add(24*time.Hour), got)
}

func TestExposureDefaultsExpiryWithoutMetadata(t *testing.T) {
	chain := Chain{Strikes: []Strike{{Strike: 100, CallOI: 10, PutOI: 10}}}
	exp, err := testEngine().Exposure(100, chain, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 7.0/365, exp.Years, 1e-12)

	_, err = testEngine().Exposure(100, Chain{}, time.Now())
	assert.ErrorIs(t, err, ErrEmptyChain)
}

func TestSqueezeTiers(t *testing.T) {
	e := testEngine()
	wall := func(strike, call float64) Exposure {
		return Exposure{Spot: 100, Wall: StrikeExposure{Strike: strike, Call: call}}
	}

	sq, ok := e.Squeeze(wall(98.5, 2000))
	require.True(t, ok)
	assert.Equal(t, TierHigh, sq.Tier)
	assert.Equal(t, signal.Short, sq.Direction)

	sq, ok = e.Squeeze(wall(103, 600))
	require.True(t, ok)
	assert.Equal(t, TierMedium, sq.Tier)
	assert.InDelta(t, 70+(0.05-0.03)/0.05*10, sq.Strength, 1e-9)

	sq, ok = e.Squeeze(wall(101, 600))
	require.True(t, ok, "near wall below high exposure falls to medium")
	assert.Equal(t, TierMedium, sq.Tier)

	_, ok = e.Squeeze(wall(110, 1e9))
	assert.False(t, ok, "too far")
	_, ok = e.Squeeze(wall(101, 100))
	assert.False(t, ok, "too small")
	_, ok = e.Squeeze(wall(100, 1e9))
	assert.False(t, ok, "wall at spot has no pull")
}

func TestParseChainFormats(t *testing.T) {
	chain, err := ParseChain("ETH", []byte(`{"strikes":[{"strike":"2000","call_oi":"5","expiry":"not-a-date"}]}`))
	require.NoError(t, err)
	require.Len(t, chain.Strikes, 1)
	assert.Equal(t, 2000.0, chain.Strikes[0].Strike)
	assert.Equal(t, 5.0, chain.Strikes[0].CallOI)
	assert.True(t, chain.Strikes[0].Expiry.IsZero())

	_, err = ParseChain("ETH", []byte(`{"x":1}`))
	assert.Error(t, err)
	_, err = ParseChain("ETH", []byte(`[]`))
	assert.ErrorIs(t, err, ErrEmptyChain)
}
