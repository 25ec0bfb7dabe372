package exchange

import (
	"context"
	"math"
	"time"

	"alphabot-go/internal/signal"
)

// runStub emits one trade and one five-level book per symbol per interval.
// Price and book imbalance follow slow deterministic oscillations so analyzers
// see trends that flip between buy and sell pressure.
func (in *Ingestor) runStub(ctx context.Context) error {
	symbols := in.Symbols()
	if len(symbols) == 0 {
		return ErrNoSymbols
	}
	ticker := time.NewTicker(in.stubInterval)
	defer ticker.Stop()

	in.log.Info().Str("provider", ProviderStub).Strs("symbols", symbols).Msg("started synthetic market data")
	if in.onConnect != nil {
		in.onConnect()
	}

	step := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			step++
			for i, sym := range symbols {
				phase := float64(step)/20 + float64(i)
				base := 100.0 * float64(i+1)
				px := base * (1 + 0.01*math.Sin(phase))
				bias := math.Cos(phase)
				side := signal.SideBuy
				if bias < 0 {
					side = signal.SideSell
				}
				if step%3 == 0 {
					side = -side
				}
				in.dispatch(signal.NormalizedEvent{
					Symbol:   sym,
					Kind:     signal.EventTrade,
					Trade:    signal.Tick{Symbol: sym, Price: px, Size: 1, Side: side, Ts: ts},
					Received: ts,
				})
				in.dispatch(signal.NormalizedEvent{
					Symbol:   sym,
					Kind:     signal.EventBook,
					Book:     stubBook(sym, px, bias, int64(step), ts),
					Received: ts,
				})
			}
		}
	}
}

// stubBook builds a book around px; bias in [-1, 1] tilts resting size toward bids.
func stubBook(symbol string, px, bias float64, id int64, ts time.Time) *signal.BookSnapshot {
	const levels = 5
	tick := px * 0.0005
	book := &signal.BookSnapshot{
		Symbol:   symbol,
		Bids:     make([]signal.Level, levels),
		Asks:     make([]signal.Level, levels),
		UpdateID: id,
		Ts:       ts,
	}
	for i := 0; i < levels; i++ {
		off := tick * float64(i+1)
		qty := 1 + float64(i)*0.5
		book.Bids[i] = signal.Level{Price: px - off, Qty: qty * (1 + 0.8*bias)}
		book.Asks[i] = signal.Level{Price: px + off, Qty: qty * (1 - 0.8*bias)}
	}
	return book
}
