package gate

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphabot-go/internal/config"
)

func at(hh, mm int) func() time.Time {
	return func() time.Time { return time.Date(2026, 3, 18, hh, mm, 0, 0, time.UTC) }
}

func gates() config.Gates {
	return config.Gates{
		DefaultQuality:    QualityModerate,
		DefaultMultiplier: 1.0,
		Sessions: []config.Session{
			{Name: "us_open", StartUTC: "13:30", EndUTC: "16:00", Quality: "excellent", Multiplier: 1.1},
			{Name: "europe", StartUTC: "11:00", EndUTC: "13:30", Quality: "moderate", Multiplier: 1.0, MinScore: 85},
			{Name: "dead", StartUTC: "22:00", EndUTC: "01:00", Quality: "avoid", Multiplier: 0.5},
		},
		NewsWindows: []config.NewsWindow{
			{Name: "fomc", Start: time.Date(2026, 3, 18, 16, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 18, 19, 0, 0, 0, time.UTC), Status: "high_impact"},
			{Name: "etf", Start: time.Date(2026, 3, 18, 18, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 18, 18, 30, 0, 0, time.UTC), Status: "blocked", Assets: []string{"BTC"}},
		},
	}
}

func TestSessions(t *testing.T) {
	cases := []struct {
		name    string
		clock   func() time.Time
		score   float64
		ok      bool
		quality float64
	}{
		{"excellent accepts any score", at(14, 0), 70, true, 1.1},
		{"moderate with own floor", at(12, 0), 86, true, 1.0},
		{"moderate below own floor", at(12, 0), 84, false, 1.0},
		{"default moderate needs 90", at(8, 0), 89, false, 1.0},
		{"default moderate exceptional", at(8, 0), 90, true, 1.0},
		{"avoid wraps midnight", at(0, 30), 99, false, 0.5},
		{"end is exclusive", at(16, 0), 89, false, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewSessions(gates(), zerolog.Nop(), tc.clock)
			require.NoError(t, err)
			ok, reason := s.ShouldProcess("BTC", tc.score)
			assert.Equal(t, tc.ok, ok, reason)
			assert.NotEmpty(t, reason)
			assert.Equal(t, tc.quality, s.Quality("BTC"))
		})
	}
}

func TestSessionsRejectBadClock(t *testing.T) {
	g := gates()
	g.Sessions[0].StartUTC = "9am"
	_, err := NewSessions(g, zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestNewsWindows(t *testing.T) {
	n := NewNewsWindows(gates(), at(17, 0))
	ok, status := n.CheckTradingAllowed("ETH")
	assert.True(t, ok)
	assert.Equal(t, StatusHighImpact, status)

	n = NewNewsWindows(gates(), at(18, 10))
	ok, status = n.CheckTradingAllowed("btc")
	assert.False(t, ok)
	assert.Equal(t, StatusBlocked, status)
	assert.Len(t, n.Active("BTC"), 2)

	ok, status = n.CheckTradingAllowed("ETH")
	assert.True(t, ok)
	assert.Equal(t, StatusHighImpact, status, "asset-scoped window does not apply")

	n = NewNewsWindows(gates(), at(19, 0))
	_, status = n.CheckTradingAllowed("BTC")
	assert.Equal(t, StatusClear, status)
}

func TestFundingResetCaution(t *testing.T) {
	g := gates()
	g.FundingResetCaution = true
	_, status := NewNewsWindows(g, at(9, 57)).CheckTradingAllowed("SOL")
	assert.Equal(t, StatusCaution, status)
	_, status = NewNewsWindows(g, at(9, 30)).CheckTradingAllowed("SOL")
	assert.Equal(t, StatusClear, status)
}
