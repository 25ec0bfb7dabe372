package paper

import (
	"errors"
	"fmt"
	"sync"

	"alphabot-go/internal/signal"
)

var (
	ErrInvalidFill     = errors.New("quantity and price must be positive")
	ErrUnknownPosition = errors.New("unknown position")
	ErrDuplicate       = errors.New("position already open")
	ErrNotionalLimit   = errors.New("position notional limit exceeded")
)

const epsilon = 1e-9

type positionState struct {
	Asset     string
	Direction signal.Direction
	Qty       float64
	Entry     float64
}

// Account is the paper bankroll. Balance moves only with realized PnL, so it can
// feed position sizing directly.
type Account struct {
	mu                 sync.Mutex
	startingCash       float64
	realizedPnL        float64
	peak               float64
	maxNotionalPerOpen float64
	positions          map[string]positionState
}

// PositionSnapshot exposes a read-only view of a single open trade.
type PositionSnapshot struct {
	Asset      string
	Direction  signal.Direction
	Qty        float64
	Entry      float64
	Unrealized float64
}

// Snapshot represents a thread-safe view of the account state, optionally marked to market using provided prices.
type Snapshot struct {
	Balance     float64
	RealizedPnL float64
	Equity      float64
	Drawdown    float64 // fraction below the balance high-water mark
	Positions   map[string]PositionSnapshot
}

// NewAccount constructs an account with a starting bankroll and optional per-trade notional cap.
func NewAccount(startingCash, maxNotionalPerOpen float64) *Account {
	return &Account{
		startingCash:       startingCash,
		peak:               startingCash,
		maxNotionalPerOpen: maxNotionalPerOpen,
		positions:          make(map[string]positionState),
	}
}

// StartingCash returns the initial bankroll used to compute drawdown.
func (a *Account) StartingCash() float64 { return a.startingCash }

// Balance returns starting cash plus realized PnL.
func (a *Account) Balance() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startingCash + a.realizedPnL
}

// Open registers a paper position under the trade id.
func (a *Account) Open(id, asset string, dir signal.Direction, qty, price float64) error {
	if qty <= 0 || price <= 0 {
		return ErrInvalidFill
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.positions[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	if a.maxNotionalPerOpen > 0 && qty*price > a.maxNotionalPerOpen+epsilon {
		return ErrNotionalLimit
	}
	a.positions[id] = positionState{Asset: asset, Direction: dir, Qty: qty, Entry: price}
	return nil
}

// Reduce realizes fraction of the remaining quantity at price and returns the realized PnL.
func (a *Account) Reduce(id string, fraction, price float64) (float64, error) {
	if fraction <= 0 || price <= 0 {
		return 0, ErrInvalidFill
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	pos, ok := a.positions[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPosition, id)
	}
	if fraction > 1 {
		fraction = 1
	}
	qty := pos.Qty * fraction
	realized := (price - pos.Entry) * qty * pos.Direction.Sign()
	a.realize(realized)
	pos.Qty -= qty
	if pos.Qty <= epsilon {
		delete(a.positions, id)
	} else {
		a.positions[id] = pos
	}
	return realized, nil
}

// Close realizes the remaining quantity at price.
func (a *Account) Close(id string, price float64) (float64, error) {
	return a.Reduce(id, 1, price)
}

func (a *Account) realize(pnl float64) {
	a.realizedPnL += pnl
	if bal := a.startingCash + a.realizedPnL; bal > a.peak {
		a.peak = bal
	}
}

// Snapshot returns a copy of balances, marked using the supplied asset prices.
func (a *Account) Snapshot(prices map[string]float64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	balance := a.startingCash + a.realizedPnL
	positions := make(map[string]PositionSnapshot, len(a.positions))
	equity := balance
	for id, pos := range a.positions {
		var unrealized float64
		if mark := prices[pos.Asset]; mark > 0 {
			unrealized = (mark - pos.Entry) * pos.Qty * pos.Direction.Sign()
		}
		positions[id] = PositionSnapshot{
			Asset:      pos.Asset,
			Direction:  pos.Direction,
			Qty:        pos.Qty,
			Entry:      pos.Entry,
			Unrealized: unrealized,
		}
		equity += unrealized
	}
	var dd float64
	if a.peak > 0 {
		dd = (a.peak - balance) / a.peak
	}
	return Snapshot{
		Balance:     balance,
		RealizedPnL: a.realizedPnL,
		Equity:      equity,
		Drawdown:    dd,
		Positions:   positions,
	}
}

// Position returns the open quantity for the trade id.
func (a *Account) Position(id string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positions[id].Qty
}

// RealizedPnL returns total closed-trade profit and loss.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}
