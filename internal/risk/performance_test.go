package risk

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"alphabot-go/internal/signal"
)

func TestTrackerStats(t *testing.T) {
	tr := NewTracker()
	tr.RecordOutcome("ofi_momentum_flip_long_BTC", 2)
	tr.RecordOutcome("ofi_momentum_flip_long_BTC", -1)
	tr.RecordOutcome("ofi_momentum_flip_long_BTC", 1)

	s := tr.Stats("ofi_momentum_flip_long_BTC")
	if s.Trades != 3 || s.Wins != 2 || s.Losses != 1 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if math.Abs(s.ProfitFactor-3) > 1e-12 || math.Abs(s.WinRate-2.0/3) > 1e-12 {
		t.Fatalf("unexpected ratios %+v", s)
	}
	if len(tr.Keys()) != 1 {
		t.Fatalf("expected one key")
	}
}

func TestTrackerAdvice(t *testing.T) {
	tr := NewTracker()
	key := "gamma_squeeze_short_ETH"
	for i := 0; i < 10; i++ {
		tr.RecordOutcome(key, -1)
	}
	if reduce, _ := tr.ShouldReduce(key); reduce {
		t.Fatalf("advice needs more than ten trades")
	}
	tr.RecordOutcome(key, -1)
	reduce, why := tr.ShouldReduce(key)
	if !reduce || why == "" {
		t.Fatalf("expected reduction advice")
	}
	if tr.SizeFactor(key) != 0.5 {
		t.Fatalf("expected halved size factor")
	}

	good := "liquidity_sweep_reversal_long_BTC"
	for i := 0; i < 12; i++ {
		pnl := 2.0
		if i%4 == 0 {
			pnl = -1
		}
		tr.RecordOutcome(good, pnl)
	}
	if reduce, _ := tr.ShouldReduce(good); reduce {
		t.Fatalf("healthy setup should keep full size")
	}
}

func TestTrackerScalesCoordinatorSize(t *testing.T) {
	tr := NewTracker()
	s := scored("BTC", signal.Long, 60000, 59400, 90)
	for i := 0; i < 11; i++ {
		tr.RecordOutcome(s.SetupKey(), -1)
	}
	cfg := testConfig()
	clk := &clock{t: time.Now()}
	c := NewCoordinator(cfg.Coordinator, cfg.Assets, zerolog.Nop(), WithClock(clk.now), WithTracker(tr))
	if got := c.PositionSize("BTC", s); math.Abs(got-0.833) > 1e-12 {
		t.Fatalf("expected halved size, got %v", got)
	}
}
