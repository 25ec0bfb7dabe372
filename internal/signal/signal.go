// Package signal standardizes payloads shared between ingestion, analytics, scoring and lifecycle layers.
package signal

import (
	"fmt"
	"time"
)

// Side is the aggressor side of a trade.
type Side int8

const (
	// SideSell marks a trade where the seller crossed the spread.
	SideSell Side = -1
	// SideBuy marks a trade where the buyer crossed the spread.
	SideBuy Side = 1
)

// AggressorFromMaker resolves the aggressor from the exchange "buyer is maker" flag.
// The maker rested in the book, so the aggressor is always the other side: a maker
// buyer means the seller hit the bid.
func AggressorFromMaker(buyerIsMaker bool) Side {
	if buyerIsMaker {
		return SideSell
	}
	return SideBuy
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Tick models a single executed trade.
type Tick struct {
	Symbol string
	Price  float64
	Size   float64
	Side   Side
	Ts     time.Time
}

// Notional returns price times size.
func (t Tick) Notional() float64 { return t.Price * t.Size }

// Level is one price level of an order book side.
type Level struct {
	Price float64
	Qty   float64
}

// BookSnapshot is a top-of-book depth view. Snapshots are never mutated after publication.
type BookSnapshot struct {
	Symbol   string
	Bids     []Level // best first, descending price
	Asks     []Level // best first, ascending price
	UpdateID int64
	Ts       time.Time
}

// Valid reports whether both sides carry at least one level.
func (b *BookSnapshot) Valid() bool {
	return b != nil && len(b.Bids) > 0 && len(b.Asks) > 0
}

// Mid returns the midpoint between best bid and best ask.
func (b *BookSnapshot) Mid() float64 {
	if !b.Valid() {
		return 0
	}
	return (b.Bids[0].Price + b.Asks[0].Price) / 2
}

// EventKind distinguishes normalized stream events.
type EventKind uint8

const (
	// EventTrade carries a Tick.
	EventTrade EventKind = iota + 1
	// EventBook carries a BookSnapshot.
	EventBook
)

func (k EventKind) String() string {
	switch k {
	case EventTrade:
		return "trade"
	case EventBook:
		return "book"
	default:
		return "unknown"
	}
}

// NormalizedEvent is the exchange-agnostic unit emitted by the ingestor.
type NormalizedEvent struct {
	Symbol   string
	Kind     EventKind
	Trade    Tick
	Book     *BookSnapshot
	Received time.Time
}

// Direction is the bias of a trade setup.
type Direction string

const (
	// Long profits when price rises.
	Long Direction = "long"
	// Short profits when price falls.
	Short Direction = "short"
)

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Short {
		return Long
	}
	return Short
}

// Kind names the rule that produced a candidate.
type Kind string

const (
	KindLiquiditySweep Kind = "liquidity_sweep_reversal"
	KindOFIMomentum    Kind = "ofi_momentum_flip"
	KindGammaSqueeze   Kind = "gamma_squeeze"
)

// Rationale carries the measurements behind a candidate.
type Rationale struct {
	OFI           float64
	CVD           float64
	DeltaRatio    float64
	SweepLevel    float64
	GammaWall     float64
	GammaExposure float64
	WallDistance  float64
	Tier          string
}

// Candidate is an unscored trade idea. Treat as immutable once created.
type Candidate struct {
	Asset     string
	Symbol    string
	Kind      Kind
	Direction Direction
	EntryZone [2]float64
	Stop      float64
	Targets   [2]float64
	Strength  float64
	Rationale Rationale
	Ts        time.Time
}

// Entry returns the midpoint of the entry zone.
func (c Candidate) Entry() float64 {
	return (c.EntryZone[0] + c.EntryZone[1]) / 2
}

// SetupKey identifies the setup family for performance tracking.
func (c Candidate) SetupKey() string {
	return fmt.Sprintf("%s_%s_%s", c.Kind, c.Direction, c.Asset)
}

// Tier is the scorer's recommendation bucket.
type Tier string

const (
	TierStrongTake Tier = "strong_take"
	TierTake       Tier = "take"
	TierConsider   Tier = "consider"
	TierPass       Tier = "pass"
)

// Confidence maps a tier to its confidence label.
func (t Tier) Confidence() string {
	switch t {
	case TierStrongTake:
		return "exceptional"
	case TierTake:
		return "high"
	case TierConsider:
		return "medium"
	default:
		return "low"
	}
}

// Components holds the per-factor scores.
type Components struct {
	Microstructure float64
	Greeks         float64
	Liquidity      float64
	Momentum       float64
	Sentiment      float64
}

// Scored is a candidate with its score breakdown. Treat as immutable.
type Scored struct {
	Candidate
	Components Components
	Total      float64
	Tier       Tier
	TimeMult   float64
	NewsMult   float64
}
