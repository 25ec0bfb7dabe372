package risk

import (
	"math"
	"sync"
)

// Size-reduction thresholds.
const (
	minTradesForAdvice = 10
	minWinRate         = 0.55
	minProfitFactor    = 1.2
	reducedSizeFactor  = 0.5
)

// Stats summarizes closed trades for one setup key.
type Stats struct {
	Trades       int
	Wins         int
	Losses       int
	GrossProfit  float64
	GrossLoss    float64
	TotalPnL     float64
	WinRate      float64
	ProfitFactor float64
}

// Tracker accumulates per-setup results.
type Tracker struct {
	mu    sync.Mutex
	stats map[string]*Stats
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{stats: make(map[string]*Stats)}
}

// RecordOutcome adds one closed trade to the setup's stats.
func (t *Tracker) RecordOutcome(setupKey string, pnlPercent float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[setupKey]
	if !ok {
		s = &Stats{}
		t.stats[setupKey] = s
	}
	s.Trades++
	s.TotalPnL += pnlPercent
	if pnlPercent > 0 {
		s.Wins++
		s.GrossProfit += pnlPercent
	} else {
		s.Losses++
		s.GrossLoss += -pnlPercent
	}
	s.WinRate = float64(s.Wins) / float64(s.Trades)
	switch {
	case s.GrossLoss > 0:
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	case s.GrossProfit > 0:
		s.ProfitFactor = math.Inf(1)
	default:
		s.ProfitFactor = 0
	}
}

// Stats returns a copy of the setup's stats.
func (t *Tracker) Stats(setupKey string) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.stats[setupKey]; ok {
		return *s
	}
	return Stats{}
}

// Keys lists every tracked setup.
func (t *Tracker) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.stats))
	for k := range t.stats {
		out = append(out, k)
	}
	return out
}

// ShouldReduce reports whether the setup has enough history and underperforms.
func (t *Tracker) ShouldReduce(setupKey string) (bool, string) {
	s := t.Stats(setupKey)
	if s.Trades <= minTradesForAdvice {
		return false, ""
	}
	if s.WinRate < minWinRate {
		return true, "win rate below threshold"
	}
	if s.ProfitFactor < minProfitFactor {
		return true, "profit factor below threshold"
	}
	return false, ""
}

// SizeFactor is 0.5 when a reduction is advised, 1 otherwise.
func (t *Tracker) SizeFactor(setupKey string) float64 {
	if reduce, _ := t.ShouldReduce(setupKey); reduce {
		return reducedSizeFactor
	}
	return 1
}
