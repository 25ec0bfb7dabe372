package strategy

import (
	"time"

	"alphabot-go/internal/config"
	"alphabot-go/internal/greeks"
	"alphabot-go/internal/signal"
)

// Set is the ordered rule chain plus the shared analyzer.
type Set struct {
	Analyzer *Microstructure
	Rules    []Strategy
}

// Build wires the analyzer and rules from config. Rule order is priority order.
func Build(an config.Analyzer, g config.Greeks) *Set {
	micro := NewMicrostructure(MicroParams{
		Depth:          an.BookLevels,
		WallMultiplier: an.WallMultiplier,
		VoidGapPct:     an.VoidGapPct,
	})
	rules := []Strategy{
		NewLiquiditySweep(an.SweepBufferPct, an.DeltaRatioMin),
		NewOFIMomentum(an.OFIThreshold),
	}
	if g.Enabled {
		rules = append(rules, NewGammaSqueeze(greeks.NewEngine(g)))
	}
	return &Set{Analyzer: micro, Rules: rules}
}

// Names lists rule identifiers in priority order.
func (s *Set) Names() []string {
	out := make([]string, len(s.Rules))
	for i, r := range s.Rules {
		out[i] = r.Name()
	}
	return out
}

// Evaluate returns the first candidate produced for the analysis.
func (s *Set) Evaluate(asset string, a Analysis, chain *greeks.Chain, now time.Time) (signal.Candidate, bool) {
	in := Input{Asset: asset, Analysis: a, Chain: chain, Now: now}
	for _, r := range s.Rules {
		if c, ok := r.Evaluate(in); ok {
			return c, true
		}
	}
	return signal.Candidate{}, false
}

// Traded forgets the key level a sweep candidate used. Call it only once the
// candidate has become a trade so rejected sweeps keep their level.
func (s *Set) Traded(c signal.Candidate) {
	if c.Kind != signal.KindLiquiditySweep || c.Rationale.SweepLevel <= 0 || s.Analyzer == nil {
		return
	}
	s.Analyzer.Consume(c.Symbol, c.Rationale.SweepLevel)
}
