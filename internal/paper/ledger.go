package paper

import (
	"sync"
	"time"
)

// ClosedTrade is the archived record of a finished trade.
type ClosedTrade struct {
	ID         string    `json:"id"`
	Asset      string    `json:"asset"`
	SetupKey   string    `json:"setup_key"`
	Direction  string    `json:"direction"`
	Entry      float64   `json:"entry"`
	Exit       float64   `json:"exit"`
	Size       float64   `json:"size"`
	PnLPercent float64   `json:"pnl_percent"`
	Result     string    `json:"result"`
	Score      float64   `json:"score"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
}

// Ledger stores closed trades in memory for quick inspection.
type Ledger struct {
	mu     sync.Mutex
	trades []ClosedTrade
}

// NewLedger creates an empty ledger optionally pre-sizing storage.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{trades: make([]ClosedTrade, 0, capacity)}
}

// Record appends a closed trade to the ledger.
func (l *Ledger) Record(trade ClosedTrade) {
	l.mu.Lock()
	l.trades = append(l.trades, trade)
	l.mu.Unlock()
}

// Snapshot returns a copy of the recorded trades.
func (l *Ledger) Snapshot() []ClosedTrade {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ClosedTrade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Summary aggregates wins and losses across the ledger.
func (l *Ledger) Summary() (wins, losses int, pnlPercent float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.trades {
		if t.PnLPercent > 0 {
			wins++
		} else {
			losses++
		}
		pnlPercent += t.PnLPercent
	}
	return wins, losses, pnlPercent
}

// Reset clears all stored trades.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.trades = l.trades[:0]
	l.mu.Unlock()
}
