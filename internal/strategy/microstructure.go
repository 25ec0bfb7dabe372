// Package strategy turns market state into directional trade candidates.
package strategy

import (
	"math"
	"sync"
	"time"

	"alphabot-go/internal/market"
	"alphabot-go/internal/signal"
)

// LevelKind records why a price level was remembered.
type LevelKind string

const (
	LevelWall LevelKind = "wall"
	LevelVoid LevelKind = "void"
)

// KeyLevel is a wall or void edge identified on an earlier snapshot.
type KeyLevel struct {
	Price float64
	Kind  LevelKind
	Seen  time.Time
}

// Analysis is the microstructure read of one snapshot.
type Analysis struct {
	Symbol       string
	Mid          float64
	SpreadPct    float64
	OFI          float64
	CVD          float64
	BuyNotional  float64
	SellNotional float64
	DeltaRatio   float64 // CVD / total traded notional
	LowTrade     float64
	HighTrade    float64
	BidWalls     []signal.Level
	AskWalls     []signal.Level
	VoidsBelow   []float64
	VoidsAbove   []float64
	Supports     []KeyLevel // remembered before this snapshot, below mid
	Resistances  []KeyLevel // remembered before this snapshot, above mid
	Ts           time.Time
}

// BuyPressure returns aggressive buy notional as a percentage of traded notional (50 when idle).
func (a Analysis) BuyPressure() float64 {
	total := a.BuyNotional + a.SellNotional
	if total <= 0 {
		return 50
	}
	return a.BuyNotional / total * 100
}

// Valid reports whether the snapshot carried a usable book.
func (a Analysis) Valid() bool { return a.Mid > 0 }

// MicroParams tunes the analyzer.
type MicroParams struct {
	Depth          int
	WallMultiplier float64
	VoidGapPct     float64
	LevelTTL       time.Duration
	MaxLevels      int
}

// Microstructure computes OFI, CVD, walls and voids, and remembers key levels per symbol.
type Microstructure struct {
	params MicroParams

	mu     sync.Mutex
	levels map[string][]KeyLevel
}

// NewMicrostructure builds an analyzer, defaulting unset params.
func NewMicrostructure(p MicroParams) *Microstructure {
	if p.Depth <= 0 {
		p.Depth = market.DefaultDepth
	}
	if p.WallMultiplier <= 0 {
		p.WallMultiplier = 5
	}
	if p.VoidGapPct <= 0 {
		p.VoidGapPct = 0.002
	}
	if p.LevelTTL <= 0 {
		p.LevelTTL = 30 * time.Minute
	}
	if p.MaxLevels <= 0 {
		p.MaxLevels = 32
	}
	return &Microstructure{params: p, levels: make(map[string][]KeyLevel)}
}

// Analyze reads snap, returns the analysis and records newly identified levels
// for later snapshots.
func (m *Microstructure) Analyze(snap *market.Snapshot, now time.Time) Analysis {
	a := Analysis{Ts: now}
	if snap == nil {
		return a
	}
	a.Symbol = snap.Symbol
	a.CVD, a.BuyNotional, a.SellNotional = CVD(snap.Trades)
	if total := a.BuyNotional + a.SellNotional; total > 0 {
		a.DeltaRatio = a.CVD / total
	}
	a.LowTrade, a.HighTrade = tradeRange(snap.Trades)
	if !snap.Book.Valid() {
		return a
	}
	d := snap.Derived()
	a.Mid, a.SpreadPct = d.Mid, d.SpreadPct
	a.OFI = market.OFI(snap.Book, m.params.Depth)
	a.BidWalls = Walls(snap.Book.Bids, m.params.Depth, m.params.WallMultiplier)
	a.AskWalls = Walls(snap.Book.Asks, m.params.Depth, m.params.WallMultiplier)
	a.VoidsBelow = Voids(snap.Book.Bids, m.params.Depth, a.Mid, m.params.VoidGapPct)
	a.VoidsAbove = Voids(snap.Book.Asks, m.params.Depth, a.Mid, m.params.VoidGapPct)

	m.mu.Lock()
	defer m.mu.Unlock()
	known := m.prune(snap.Symbol, now)
	for _, lv := range known {
		if lv.Price < a.Mid {
			a.Supports = append(a.Supports, lv)
		} else {
			a.Resistances = append(a.Resistances, lv)
		}
	}
	for _, w := range a.BidWalls {
		known = remember(known, KeyLevel{Price: w.Price, Kind: LevelWall, Seen: now})
	}
	for _, w := range a.AskWalls {
		known = remember(known, KeyLevel{Price: w.Price, Kind: LevelWall, Seen: now})
	}
	for _, p := range a.VoidsBelow {
		known = remember(known, KeyLevel{Price: p, Kind: LevelVoid, Seen: now})
	}
	for _, p := range a.VoidsAbove {
		known = remember(known, KeyLevel{Price: p, Kind: LevelVoid, Seen: now})
	}
	if len(known) > m.params.MaxLevels {
		known = known[len(known)-m.params.MaxLevels:]
	}
	m.levels[snap.Symbol] = known
	return a
}

// Consume forgets a level once a setup has traded it.
func (m *Microstructure) Consume(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	known := m.levels[symbol]
	out := known[:0]
	for _, lv := range known {
		if lv.Price != price {
			out = append(out, lv)
		}
	}
	m.levels[symbol] = out
}

// Levels returns the remembered levels for symbol.
func (m *Microstructure) Levels(symbol string) []KeyLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]KeyLevel(nil), m.levels[symbol]...)
}

func (m *Microstructure) prune(symbol string, now time.Time) []KeyLevel {
	known := m.levels[symbol]
	out := make([]KeyLevel, 0, len(known))
	for _, lv := range known {
		if now.Sub(lv.Seen) <= m.params.LevelTTL {
			out = append(out, lv)
		}
	}
	return out
}

// remember refreshes an existing level or appends a new one.
func remember(levels []KeyLevel, lv KeyLevel) []KeyLevel {
	for i := range levels {
		if levels[i].Price == lv.Price {
			levels[i].Seen = lv.Seen
			return levels
		}
	}
	return append(levels, lv)
}

// CVD sums aggressor-signed notional: buys add, sells subtract.
func CVD(trades []signal.Tick) (cvd, buy, sell float64) {
	for _, t := range trades {
		n := math.Abs(t.Notional())
		switch t.Side {
		case signal.SideBuy:
			buy += n
		case signal.SideSell:
			sell += n
		}
	}
	return buy - sell, buy, sell
}

// Walls returns levels among the top depth whose size exceeds k times the mean size.
func Walls(levels []signal.Level, depth int, k float64) []signal.Level {
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	if len(levels) == 0 {
		return nil
	}
	var sum float64
	for _, l := range levels {
		sum += l.Qty
	}
	mean := sum / float64(len(levels))
	if mean <= 0 {
		return nil
	}
	var out []signal.Level
	for _, l := range levels {
		if l.Qty > k*mean {
			out = append(out, l)
		}
	}
	return out
}

// Voids returns the inner edge price of each gap between adjacent levels wider than gapPct of mid.
func Voids(levels []signal.Level, depth int, mid, gapPct float64) []float64 {
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	if mid <= 0 {
		return nil
	}
	var out []float64
	for i := 0; i+1 < len(levels); i++ {
		if math.Abs(levels[i].Price-levels[i+1].Price) > gapPct*mid {
			out = append(out, levels[i].Price)
		}
	}
	return out
}

func tradeRange(trades []signal.Tick) (low, high float64) {
	for i, t := range trades {
		if i == 0 || t.Price < low {
			low = t.Price
		}
		if t.Price > high {
			high = t.Price
		}
	}
	return low, high
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
