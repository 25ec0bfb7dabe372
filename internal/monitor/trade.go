// Package monitor tracks accepted signals from open to close and manages their stops.
package monitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"alphabot-go/internal/signal"
)

var (
	ErrInvalidTransition = errors.New("invalid trade state transition")
	ErrDuplicateTrade    = errors.New("trade already tracked")
	ErrDirectionConflict = errors.New("opposite direction already open")
	ErrUnknownTrade      = errors.New("trade not found")
)

// Status is the lifecycle stage of a trade.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusBreakeven Status = "BREAKEVEN_SET"
	StatusPartial   Status = "PARTIAL_CLOSED"
	StatusTrailing  Status = "TRAILING"
	StatusClosed    Status = "CLOSED"
)

var statusRank = map[Status]int{
	StatusOpen:      0,
	StatusBreakeven: 1,
	StatusPartial:   2,
	StatusTrailing:  3,
	StatusClosed:    4,
}

// Result is the closed-trade classification.
type Result string

const (
	ResultWin  Result = "WIN"
	ResultLoss Result = "LOSS"
)

// AlertKind names a one-time lifecycle alert.
type AlertKind string

const (
	AlertStopApproaching    AlertKind = "stop_approaching"
	AlertTarget1Approaching AlertKind = "target1_approaching"
	AlertTarget2Approaching AlertKind = "target2_approaching"
	AlertTarget1Hit         AlertKind = "target1_hit"
	AlertBreakeven          AlertKind = "breakeven_set"
	AlertPartial            AlertKind = "partial_close"
	AlertTrailing           AlertKind = "trailing_active"
)

// ActiveTrade is an accepted signal under management. Only the monitor mutates it;
// callers receive copies.
type ActiveTrade struct {
	ID           string
	Asset        string
	Symbol       string
	Kind         signal.Kind
	SetupKey     string
	Direction    signal.Direction
	Entry        float64
	InitialStop  float64
	Stop         float64
	Targets      [2]float64
	Size         float64
	Remaining    float64 // fraction of Size still open
	Score        float64
	Tier         signal.Tier
	CurrentPrice float64
	PnLPercent   float64
	Realized     float64 // percent already banked by partial closes, weighted by fraction
	TrailingStop float64
	Status       Status
	Result       Result
	Alerts       map[AlertKind]bool
	OpenedAt     time.Time
	UpdatedAt    time.Time
	ClosedAt     time.Time
}

// NewTrade builds an OPEN trade from an accepted signal.
func NewTrade(s signal.Scored, size float64, now time.Time) *ActiveTrade {
	entry := s.Entry()
	return &ActiveTrade{
		ID:           uuid.NewString(),
		Asset:        s.Asset,
		Symbol:       s.Symbol,
		Kind:         s.Kind,
		SetupKey:     s.SetupKey(),
		Direction:    s.Direction,
		Entry:        entry,
		InitialStop:  s.Stop,
		Stop:         s.Stop,
		Targets:      s.Targets,
		Size:         size,
		Remaining:    1,
		Score:        s.Total,
		Tier:         s.Tier,
		CurrentPrice: entry,
		Status:       StatusOpen,
		Alerts:       make(map[AlertKind]bool),
		OpenedAt:     now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy.
func (t *ActiveTrade) Clone() ActiveTrade {
	cp := *t
	cp.Alerts = make(map[AlertKind]bool, len(t.Alerts))
	for k, v := range t.Alerts {
		cp.Alerts[k] = v
	}
	return cp
}

// Closed reports whether the trade reached its terminal state.
func (t *ActiveTrade) Closed() bool { return t.Status == StatusClosed }

// Transition moves the trade forward. Transitions never go backwards or repeat.
func (t *ActiveTrade) Transition(to Status) error {
	cur, ok := statusRank[t.Status]
	next, known := statusRank[to]
	if !ok || !known || next <= cur {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	return nil
}

// Mark updates the price and recomputes PnL percent.
func (t *ActiveTrade) Mark(price float64, now time.Time) {
	t.CurrentPrice = price
	t.PnLPercent = t.Direction.Sign() * (price - t.Entry) / t.Entry * 100
	t.UpdatedAt = now
}

// RealizedPnLPercent blends banked partials with the open remainder at the current price.
func (t *ActiveTrade) RealizedPnLPercent() float64 {
	return t.Realized + t.Remaining*t.PnLPercent
}

// StopCrossed reports whether price is at or through the stop.
func (t *ActiveTrade) StopCrossed(price float64) bool {
	if t.Direction == signal.Short {
		return price >= t.Stop
	}
	return price <= t.Stop
}

// TargetCrossed reports whether price reached target i (0 or 1).
func (t *ActiveTrade) TargetCrossed(price float64, i int) bool {
	target := t.Targets[i]
	if target <= 0 {
		return false
	}
	if t.Direction == signal.Short {
		return price <= target
	}
	return price >= target
}

// tighten moves the stop toward price only, never away from it.
func (t *ActiveTrade) tighten(stop float64) bool {
	if t.Direction == signal.Short {
		if stop < t.Stop {
			t.Stop = stop
			return true
		}
		return false
	}
	if stop > t.Stop {
		t.Stop = stop
		return true
	}
	return false
}

func (t *ActiveTrade) once(kind AlertKind) bool {
	if t.Alerts[kind] {
		return false
	}
	t.Alerts[kind] = true
	return true
}
