// Package market keeps per-symbol rolling trade buffers and the latest order book.
package market

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"alphabot-go/internal/signal"
)

const (
	// DefaultTradeCapacity bounds each symbol's trade ring.
	DefaultTradeCapacity = 100
	// DefaultDepth is the number of book levels used by derived metrics.
	DefaultDepth = 20
)

// Derived holds metrics computed from a snapshot's book.
type Derived struct {
	OFI         float64
	Mid         float64
	Spread      float64
	SpreadPct   float64
	BidNotional float64
	AskNotional float64
}

// Snapshot is an immutable view of one symbol's state. Readers may hold it freely.
type Snapshot struct {
	Symbol  string
	Trades  []signal.Tick // oldest first
	Book    *signal.BookSnapshot
	Updated time.Time

	depth   int
	once    sync.Once
	derived Derived
}

// Derived computes OFI, mid and spread on first use and caches the result.
func (s *Snapshot) Derived() Derived {
	s.once.Do(func() {
		if !s.Book.Valid() {
			return
		}
		bid, ask := Notional(s.Book, s.depth)
		s.derived.BidNotional = bid
		s.derived.AskNotional = ask
		s.derived.OFI = OFI(s.Book, s.depth)
		s.derived.Mid = s.Book.Mid()
		s.derived.Spread = s.Book.Asks[0].Price - s.Book.Bids[0].Price
		if s.derived.Mid > 0 {
			s.derived.SpreadPct = s.derived.Spread / s.derived.Mid * 100
		}
	})
	return s.derived
}

// LastPrice returns the last traded price, falling back to mid.
func (s *Snapshot) LastPrice() (float64, bool) {
	if s == nil {
		return 0, false
	}
	if n := len(s.Trades); n > 0 {
		return s.Trades[n-1].Price, true
	}
	if s.Book.Valid() {
		return s.Book.Mid(), true
	}
	return 0, false
}

// BookAge reports how old the book is relative to now. Missing books are infinitely old.
func (s *Snapshot) BookAge(now time.Time) time.Duration {
	if s == nil || s.Book == nil {
		return time.Duration(1<<63 - 1)
	}
	ts := s.Book.Ts
	if ts.IsZero() {
		ts = s.Updated
	}
	return now.Sub(ts)
}

// Notional sums price*qty over the top depth levels of each side.
func Notional(book *signal.BookSnapshot, depth int) (bid, ask float64) {
	if book == nil {
		return 0, 0
	}
	for i, l := range book.Bids {
		if depth > 0 && i >= depth {
			break
		}
		bid += l.Price * l.Qty
	}
	for i, l := range book.Asks {
		if depth > 0 && i >= depth {
			break
		}
		ask += l.Price * l.Qty
	}
	return bid, ask
}

// OFI returns (bid - ask) / (bid + ask) notional over the top depth levels, in [-1, 1].
func OFI(book *signal.BookSnapshot, depth int) float64 {
	bid, ask := Notional(book, depth)
	total := bid + ask
	if total <= 0 {
		return 0
	}
	return (bid - ask) / total
}

// State is one symbol's partition. Update must only be called by a single writer.
type State struct {
	symbol   string
	capacity int
	depth    int
	cur      atomic.Pointer[Snapshot]
}

func newState(symbol string, capacity, depth int) *State {
	st := &State{symbol: symbol, capacity: capacity, depth: depth}
	st.cur.Store(&Snapshot{Symbol: symbol, depth: depth})
	return st
}

// Load returns the latest published snapshot.
func (st *State) Load() *Snapshot { return st.cur.Load() }

// Update applies an event and publishes a new snapshot.
func (st *State) Update(ev signal.NormalizedEvent) {
	prev := st.cur.Load()
	next := &Snapshot{
		Symbol:  st.symbol,
		Trades:  prev.Trades,
		Book:    prev.Book,
		Updated: ev.Received,
		depth:   st.depth,
	}
	if next.Updated.IsZero() {
		next.Updated = time.Now()
	}
	switch ev.Kind {
	case signal.EventTrade:
		next.Trades = appendRing(prev.Trades, ev.Trade, st.capacity)
	case signal.EventBook:
		if ev.Book == nil {
			return
		}
		next.Book = ev.Book
	default:
		return
	}
	st.cur.Store(next)
}

// appendRing copies so published slices are never written again.
func appendRing(trades []signal.Tick, t signal.Tick, capacity int) []signal.Tick {
	start := 0
	if len(trades)+1 > capacity {
		start = len(trades) + 1 - capacity
	}
	out := make([]signal.Tick, 0, len(trades)-start+1)
	out = append(out, trades[start:]...)
	return append(out, t)
}

// Store maps symbols to their State partitions.
type Store struct {
	capacity int
	depth    int

	mu     sync.RWMutex
	states map[string]*State
}

// NewStore builds a store with the given trade capacity and book depth.
func NewStore(capacity, depth int) *Store {
	if capacity <= 0 {
		capacity = DefaultTradeCapacity
	}
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Store{capacity: capacity, depth: depth, states: make(map[string]*State)}
}

// Track pre-registers symbols so readers see empty snapshots before data arrives.
func (s *Store) Track(symbols ...string) {
	for _, sym := range symbols {
		s.state(sym)
	}
}

func (s *Store) state(symbol string) *State {
	symbol = strings.ToUpper(symbol)
	s.mu.RLock()
	st, ok := s.states[symbol]
	s.mu.RUnlock()
	if ok {
		return st
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.states[symbol]; ok {
		return st
	}
	st = newState(symbol, s.capacity, s.depth)
	s.states[symbol] = st
	return st
}

// Update routes an event to its symbol partition.
func (s *Store) Update(ev signal.NormalizedEvent) {
	if ev.Symbol == "" {
		return
	}
	s.state(ev.Symbol).Update(ev)
}

// Snapshot returns the latest snapshot for symbol, or nil when untracked.
func (s *Store) Snapshot(symbol string) *Snapshot {
	s.mu.RLock()
	st, ok := s.states[strings.ToUpper(symbol)]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return st.Load()
}

// LastPrice returns the last trade price (or mid) for symbol.
func (s *Store) LastPrice(symbol string) (float64, bool) {
	return s.Snapshot(symbol).LastPrice()
}

// RecentTrades returns up to limit most recent trades, oldest first.
func (s *Store) RecentTrades(symbol string, limit int) []signal.Tick {
	snap := s.Snapshot(symbol)
	if snap == nil {
		return nil
	}
	trades := snap.Trades
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	out := make([]signal.Tick, len(trades))
	copy(out, trades)
	return out
}

// Symbols lists tracked symbols in sorted order.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.states))
	for sym := range s.states {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Capacity returns the per-symbol trade ring size.
func (s *Store) Capacity() int { return s.capacity }

// Depth returns the number of levels used for derived metrics.
func (s *Store) Depth() int { return s.depth }
