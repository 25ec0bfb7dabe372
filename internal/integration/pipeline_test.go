package integration

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"alphabot-go/internal/config"
	"alphabot-go/internal/engine"
	"alphabot-go/internal/exchange"
	"alphabot-go/internal/market"
	"alphabot-go/internal/notify"
	"alphabot-go/internal/risk"
	"alphabot-go/internal/signal"
)

// venue serves spot prices and premium index rows the way the exchange does.
type venue struct {
	mu      sync.Mutex
	prices  map[string]float64
	funding map[string]float64
}

func (v *venue) setPrice(symbol string, px float64) {
	v.mu.Lock()
	v.prices[symbol] = px
	v.mu.Unlock()
}

func (v *venue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()
	symbol := r.URL.Query().Get("symbol")
	switch r.URL.Path {
	case "/api/v3/ticker/price":
		fmt.Fprintf(w, `[{"symbol":%q,"price":"%f"}]`, symbol, v.prices[symbol])
	case "/fapi/v1/premiumIndex":
		fmt.Fprintf(w, `[{"symbol":%q,"markPrice":"1","indexPrice":"1","lastFundingRate":"%f","nextFundingTime":0,"time":0}]`,
			symbol, v.funding[symbol])
	default:
		http.NotFound(w, r)
	}
}

func feedBullish(store *market.Store, symbol string, mid float64, now time.Time) {
	store.Track(symbol)
	book := &signal.BookSnapshot{Symbol: symbol, Ts: now}
	for i := 0; i < 5; i++ {
		off := mid * 0.0001 * float64(i+1)
		book.Bids = append(book.Bids, signal.Level{Price: mid - off, Qty: 10})
		book.Asks = append(book.Asks, signal.Level{Price: mid + off, Qty: 2})
	}
	store.Update(signal.NormalizedEvent{Symbol: symbol, Kind: signal.EventBook, Book: book, Received: now})
	store.Update(signal.NormalizedEvent{
		Symbol:   symbol,
		Kind:     signal.EventTrade,
		Trade:    signal.Tick{Symbol: symbol, Price: mid, Size: 1, Side: signal.SideBuy, Ts: now},
		Received: now,
	})
}

func TestPipelineSignalToStoppedTrade(t *testing.T) {
	v := &venue{
		prices:  map[string]float64{"BTCUSDT": 60000, "ETHUSDT": 3000},
		funding: map[string]float64{"BTCUSDT": -0.0001, "ETHUSDT": 0.0001},
	}
	srv := httptest.NewServer(v)
	defer srv.Close()

	dir := t.TempDir()
	cfg := &config.Config{
		Assets: []config.Asset{
			{Name: "BTC", Symbol: "BTCUSDT", VolatilityRegime: "medium"},
			{Name: "ETH", Symbol: "ETHUSDT", VolatilityRegime: "high", MinQuantity: 0.01},
		},
		Stream:  config.Stream{Provider: "stub", StubIntervalMs: 60_000},
		REST:    config.REST{Enabled: true, RequestsPerSecond: 1000, Burst: 10},
		Monitor: config.Monitor{PriceSource: "rest"},
		Gates: config.Gates{Sessions: []config.Session{
			{Name: "overlap", StartUTC: "13:00", EndUTC: "16:00", Quality: "excellent", Multiplier: 1.1},
		}},
		Paper: config.Paper{
			OutcomesPath: filepath.Join(dir, "outcomes.jsonl"),
			TradesPath:   filepath.Join(dir, "trades.jsonl"),
		},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}

	now := time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	eng, err := engine.New(cfg, zerolog.Nop(),
		engine.WithClock(clock),
		engine.WithNotifier(notify.NewLogNotifier(logger)),
		engine.WithRESTOptions(exchange.WithBaseURLs(srv.URL, srv.URL)),
	)
	if err != nil {
		t.Fatalf("engine.New returned error: %v", err)
	}
	defer eng.Close()

	store := eng.Ingestor().Store()
	feedBullish(store, "BTCUSDT", 60000, now)
	feedBullish(store, "ETHUSDT", 3000, now)

	decisions := eng.RunCycle(context.Background())
	if len(decisions) != 2 {
		t.Fatalf("expected both assets scored, got %d decisions", len(decisions))
	}
	btc, eth := decisions[0], decisions[1]
	if btc.Signal.Asset != "BTC" || !btc.Accepted {
		t.Fatalf("expected BTC accepted first, got %+v", btc)
	}
	if btc.Signal.Components.Momentum != 85 {
		t.Fatalf("expected funding to lift momentum, got %v", btc.Signal.Components.Momentum)
	}
	if eth.Accepted || eth.Reason != risk.ReasonCorrelated {
		t.Fatalf("expected ETH suppressed as correlated, got %+v", eth)
	}
	if !strings.Contains(buf.String(), `"message":"signal"`) {
		t.Fatalf("expected signal notification, got %s", buf.String())
	}

	trades := eng.Monitor().Trades()
	if len(trades) != 1 {
		t.Fatalf("expected one open trade, got %d", len(trades))
	}
	size := trades[0].Size
	if math.Abs(size-1.388) > 1e-9 {
		t.Fatalf("unexpected size %v", size)
	}

	v.setPrice("BTCUSDT", 59200)
	now = now.Add(5 * time.Second)
	eng.Monitor().Cycle(context.Background())

	if len(eng.Monitor().Trades()) != 0 {
		t.Fatalf("expected trade stopped out")
	}
	wins, losses, _ := eng.Ledger().Summary()
	if wins != 0 || losses != 1 {
		t.Fatalf("expected one loss, got %d/%d", wins, losses)
	}
	if !strings.Contains(buf.String(), `"result":"LOSS"`) {
		t.Fatalf("expected close notification, got %s", buf.String())
	}
	want := cfg.Coordinator.AccountSize - size*800
	if got := eng.Account().Balance(); math.Abs(got-want) > 1e-6 {
		t.Fatalf("expected balance %v, got %v", want, got)
	}
	q, _ := eng.Coordinator().Quota("BTC")
	if q.ConsecutiveLosses != 1 || q.OpenTrades != 0 {
		t.Fatalf("unexpected quota after loss %+v", q)
	}
}
