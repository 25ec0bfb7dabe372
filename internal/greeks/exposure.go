package greeks

import (
	"errors"
	"math"
	"sort"
	"time"

	"alphabot-go/internal/config"
	"alphabot-go/internal/signal"
)

var (
	// ErrEmptyChain is returned when no strikes are available.
	ErrEmptyChain = errors.New("empty option chain")
	// ErrNoFutureExpiry is returned when every listed expiry is in the past.
	ErrNoFutureExpiry = errors.New("option chain has no future expiry")
)

const defaultIV = 0.5

// Strike is one row of an option chain.
type Strike struct {
	Strike float64
	Expiry time.Time // zero when the source carries no expiry
	CallOI float64
	PutOI  float64
	CallIV float64
	PutIV  float64
}

// Chain is the option chain of one underlying.
type Chain struct {
	Underlying string
	Strikes    []Strike
}

// StrikeExposure is gamma x OI x spot for one strike.
type StrikeExposure struct {
	Strike float64
	Call   float64
	Put    float64
}

// Total is call plus put exposure.
func (s StrikeExposure) Total() float64 { return s.Call + s.Put }

// Exposure aggregates gamma exposure across the chain.
type Exposure struct {
	Spot      float64
	Years     float64
	ByStrike  []StrikeExposure // ascending strike
	Wall      StrikeExposure
	TotalCall float64
	TotalPut  float64
}

// Total returns combined exposure.
func (e Exposure) Total() float64 { return e.TotalCall + e.TotalPut }

// Tier classifies how strongly a gamma wall pulls price.
type Tier string

const (
	TierNone   Tier = ""
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Squeeze describes a gamma-wall magnet setup.
type Squeeze struct {
	Direction signal.Direction
	Magnet    float64
	Distance  float64 // fraction of spot
	Exposure  float64
	Strength  float64
	Tier      Tier
}

// Engine prices chains and classifies squeeze setups.
type Engine struct {
	riskFree       float64
	defaultYears   float64
	highDistance   float64
	mediumDistance float64
	highExposure   float64
	mediumExposure float64
}

// NewEngine builds an engine from config.
func NewEngine(cfg config.Greeks) *Engine {
	return &Engine{
		riskFree:       cfg.RiskFreeRate,
		defaultYears:   cfg.DefaultExpiryDays / 365,
		highDistance:   cfg.HighDistancePct,
		mediumDistance: cfg.MediumDistancePct,
		highExposure:   cfg.HighExposure,
		mediumExposure: cfg.MediumExposure,
	}
}

// NearestExpiry picks the closest future expiry. ok is false when no row carries
// expiry metadata; err is set when metadata exists but all of it has passed.
func NearestExpiry(chain Chain, now time.Time) (time.Time, bool, error) {
	var nearest time.Time
	sawExpiry := false
	for _, s := range chain.Strikes {
		if s.Expiry.IsZero() {
			continue
		}
		sawExpiry = true
		if !s.Expiry.After(now) {
			continue
		}
		if nearest.IsZero() || s.Expiry.Before(nearest) {
			nearest = s.Expiry
		}
	}
	if !sawExpiry {
		return time.Time{}, false, nil
	}
	if nearest.IsZero() {
		return time.Time{}, true, ErrNoFutureExpiry
	}
	return nearest, true, nil
}

// Exposure computes per-strike gamma exposure for the nearest expiry.
func (e *Engine) Exposure(spot float64, chain Chain, now time.Time) (Exposure, error) {
	if spot <= 0 {
		return Exposure{}, ErrInvalidInput
	}
	if len(chain.Strikes) == 0 {
		return Exposure{}, ErrEmptyChain
	}
	expiry, hasExpiry, err := NearestExpiry(chain, now)
	if err != nil {
		return Exposure{}, err
	}
	years := e.defaultYears
	if hasExpiry {
		years = expiry.Sub(now).Hours() / 24 / 365
	}

	byStrike := make(map[float64]*StrikeExposure)
	for _, row := range chain.Strikes {
		if hasExpiry && !row.Expiry.IsZero() && !row.Expiry.Equal(expiry) {
			continue
		}
		callIV, putIV := row.CallIV, row.PutIV
		if callIV <= 0 {
			callIV = defaultIV
		}
		if putIV <= 0 {
			putIV = defaultIV
		}
		cg, err := Calculate(spot, row.Strike, years, e.riskFree, callIV, Call)
		if err != nil {
			continue
		}
		pg, err := Calculate(spot, row.Strike, years, e.riskFree, putIV, Put)
		if err != nil {
			continue
		}
		se := byStrike[row.Strike]
		if se == nil {
			se = &StrikeExposure{Strike: row.Strike}
			byStrike[row.Strike] = se
		}
		se.Call += cg.Gamma * row.CallOI * spot
		se.Put += pg.Gamma * row.PutOI * spot
	}
	if len(byStrike) == 0 {
		return Exposure{}, ErrEmptyChain
	}

	out := Exposure{Spot: spot, Years: years, ByStrike: make([]StrikeExposure, 0, len(byStrike))}
	for _, se := range byStrike {
		out.ByStrike = append(out.ByStrike, *se)
		out.TotalCall += se.Call
		out.TotalPut += se.Put
	}
	sort.Slice(out.ByStrike, func(i, j int) bool { return out.ByStrike[i].Strike < out.ByStrike[j].Strike })
	for i, se := range out.ByStrike {
		if i == 0 || se.Total() > out.Wall.Total() {
			out.Wall = se
		}
	}
	return out, nil
}

// Squeeze classifies the gamma wall relative to spot. ok is false when no tier applies.
func (e *Engine) Squeeze(exp Exposure) (Squeeze, bool) {
	spot, magnet := exp.Spot, exp.Wall.Strike
	if spot <= 0 || magnet <= 0 || magnet == spot {
		return Squeeze{}, false
	}
	distance := math.Abs(spot-magnet) / spot
	gex := exp.Wall.Total()

	sq := Squeeze{Magnet: magnet, Distance: distance, Exposure: gex, Direction: signal.Long}
	if magnet < spot {
		sq.Direction = signal.Short
	}
	switch {
	case distance < e.highDistance && gex >= e.highExposure:
		sq.Tier = TierHigh
		sq.Strength = 85 + (e.highDistance-distance)/e.highDistance*10
	case distance < e.mediumDistance && gex >= e.mediumExposure:
		sq.Tier = TierMedium
		sq.Strength = 70 + (e.mediumDistance-distance)/e.mediumDistance*10
	default:
		return Squeeze{}, false
	}
	return sq, true
}
