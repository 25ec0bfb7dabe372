package strategy

import (
	"math"
	"time"

	"alphabot-go/internal/greeks"
	"alphabot-go/internal/signal"
)

// Input is everything a strategy sees for one asset in one cycle.
type Input struct {
	Asset    string
	Analysis Analysis
	Chain    *greeks.Chain
	Now      time.Time
}

// Strategy defines behaviour shared by candidate generators.
type Strategy interface {
	Name() string
	Evaluate(in Input) (signal.Candidate, bool)
}

// LiquiditySweep fires when price trades through a remembered level and snaps back
// beyond it with aggressive flow in the reversal direction.
type LiquiditySweep struct {
	buffer        float64
	deltaRatioMin float64
}

// NewLiquiditySweep builds the sweep rule. Levels come from the analysis; the
// owning Set forgets them once traded.
func NewLiquiditySweep(bufferPct, deltaRatioMin float64) *LiquiditySweep {
	if bufferPct <= 0 {
		bufferPct = 0.002
	}
	if deltaRatioMin <= 0 {
		deltaRatioMin = 0.15
	}
	return &LiquiditySweep{buffer: bufferPct, deltaRatioMin: deltaRatioMin}
}

// Name returns the identifier for logging.
func (s *LiquiditySweep) Name() string { return string(signal.KindLiquiditySweep) }

// Evaluate checks supports for long reversals, then resistances for short ones.
func (s *LiquiditySweep) Evaluate(in Input) (signal.Candidate, bool) {
	a := in.Analysis
	if !a.Valid() || a.LowTrade <= 0 {
		return signal.Candidate{}, false
	}

	if a.DeltaRatio >= s.deltaRatioMin {
		level, ok := 0.0, false
		for _, lv := range a.Supports {
			if a.LowTrade <= lv.Price && a.Mid > lv.Price*(1+s.buffer) && lv.Price > level {
				level, ok = lv.Price, true
			}
		}
		if ok {
			return s.build(in, signal.Long, level), true
		}
	}
	if a.DeltaRatio <= -s.deltaRatioMin {
		level, ok := math.Inf(1), false
		for _, lv := range a.Resistances {
			if a.HighTrade >= lv.Price && a.Mid < lv.Price*(1-s.buffer) && lv.Price < level {
				level, ok = lv.Price, true
			}
		}
		if ok {
			return s.build(in, signal.Short, level), true
		}
	}
	return signal.Candidate{}, false
}

func (s *LiquiditySweep) build(in Input, dir signal.Direction, level float64) signal.Candidate {
	a := in.Analysis
	mid := a.Mid
	sign := dir.Sign()
	return signal.Candidate{
		Asset:     in.Asset,
		Symbol:    a.Symbol,
		Kind:      signal.KindLiquiditySweep,
		Direction: dir,
		EntryZone: [2]float64{mid * 0.998, mid * 1.002},
		Stop:      level * (1 - sign*0.005),
		Targets:   [2]float64{mid * (1 + sign*0.015), mid * (1 + sign*0.03)},
		Strength:  math.Min(95, 70+math.Abs(a.DeltaRatio)*50),
		Rationale: signal.Rationale{
			OFI:        a.OFI,
			CVD:        a.CVD,
			DeltaRatio: a.DeltaRatio,
			SweepLevel: level,
		},
		Ts: in.Now,
	}
}

// OFIMomentum fires when book imbalance is strong and traded flow agrees.
type OFIMomentum struct {
	threshold float64
}

// NewOFIMomentum builds the rule with the absolute OFI threshold.
func NewOFIMomentum(threshold float64) *OFIMomentum {
	if threshold <= 0 {
		threshold = 0.3
	}
	return &OFIMomentum{threshold: threshold}
}

// Name returns the identifier for logging.
func (s *OFIMomentum) Name() string { return string(signal.KindOFIMomentum) }

// Evaluate returns a candidate in the OFI direction when CVD has the same sign.
func (s *OFIMomentum) Evaluate(in Input) (signal.Candidate, bool) {
	a := in.Analysis
	if !a.Valid() || math.Abs(a.OFI) < s.threshold || a.CVD == 0 {
		return signal.Candidate{}, false
	}
	if (a.OFI > 0) != (a.CVD > 0) {
		return signal.Candidate{}, false
	}
	dir := signal.Long
	if a.OFI < 0 {
		dir = signal.Short
	}
	sign := dir.Sign()
	mid := a.Mid
	return signal.Candidate{
		Asset:     in.Asset,
		Symbol:    a.Symbol,
		Kind:      signal.KindOFIMomentum,
		Direction: dir,
		EntryZone: [2]float64{mid * 0.999, mid * 1.001},
		Stop:      mid * (1 - sign*0.012),
		Targets:   [2]float64{mid * (1 + sign*0.02), mid * (1 + sign*0.04)},
		Strength:  clamp(60+math.Abs(a.OFI)*40, 0, 90),
		Rationale: signal.Rationale{OFI: a.OFI, CVD: a.CVD, DeltaRatio: a.DeltaRatio},
		Ts:        in.Now,
	}, true
}
