package strategy

import (
	"alphabot-go/internal/greeks"
	"alphabot-go/internal/signal"
)

// GammaSqueeze targets the gamma wall as a price magnet, gated by book imbalance.
type GammaSqueeze struct {
	engine *greeks.Engine
}

// NewGammaSqueeze builds the strategy around a greeks engine.
func NewGammaSqueeze(engine *greeks.Engine) *GammaSqueeze {
	return &GammaSqueeze{engine: engine}
}

// Name returns the identifier for logging.
func (s *GammaSqueeze) Name() string { return string(signal.KindGammaSqueeze) }

// Evaluate needs a chain and a valid mid. Long squeezes against negative OFI are
// skipped, as are short squeezes against positive OFI.
func (s *GammaSqueeze) Evaluate(in Input) (signal.Candidate, bool) {
	a := in.Analysis
	if s.engine == nil || in.Chain == nil || !a.Valid() {
		return signal.Candidate{}, false
	}
	spot := a.Mid
	exp, err := s.engine.Exposure(spot, *in.Chain, in.Now)
	if err != nil {
		return signal.Candidate{}, false
	}
	sq, ok := s.engine.Squeeze(exp)
	if !ok {
		return signal.Candidate{}, false
	}
	if (sq.Direction == signal.Long && a.OFI < 0) || (sq.Direction == signal.Short && a.OFI > 0) {
		return signal.Candidate{}, false
	}

	sign := sq.Direction.Sign()
	return signal.Candidate{
		Asset:     in.Asset,
		Symbol:    a.Symbol,
		Kind:      signal.KindGammaSqueeze,
		Direction: sq.Direction,
		EntryZone: [2]float64{spot, spot},
		Stop:      spot * (1 - sign*0.02),
		Targets:   [2]float64{sq.Magnet, sq.Magnet + (sq.Magnet-spot)*0.5},
		Strength:  sq.Strength,
		Rationale: signal.Rationale{
			OFI:           a.OFI,
			CVD:           a.CVD,
			DeltaRatio:    a.DeltaRatio,
			GammaWall:     sq.Magnet,
			GammaExposure: sq.Exposure,
			WallDistance:  sq.Distance,
			Tier:          string(sq.Tier),
		},
		Ts: in.Now,
	}, true
}
