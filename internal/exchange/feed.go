// Package exchange hosts the market stream ingestor and the venue REST client.
package exchange

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"alphabot-go/internal/market"
	"alphabot-go/internal/metrics"
	"alphabot-go/internal/signal"
)

const (
	// ProviderStub emits deterministic synthetic trades and books (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams live trades and partial depth from Binance public websockets.
	ProviderBinance = "binance"
)

var (
	// ErrNoSymbols is returned when subscribing or running without symbols.
	ErrNoSymbols = errors.New("ingestor requires at least one symbol")
	// ErrAlreadyRunning is returned when subscribing after Run started.
	ErrAlreadyRunning = errors.New("ingestor already running")
	// ErrNotSubscribed is returned when Run is called before Subscribe.
	ErrNotSubscribed = errors.New("ingestor has no subscription")
)

const (
	defaultBaseURL      = "wss://stream.binance.com:9443"
	defaultDepthLevels  = 20
	defaultDepthSpeed   = 100 * time.Millisecond
	defaultQueueSize    = 256
	defaultPingInterval = 15 * time.Second
	defaultReadTimeout  = 30 * time.Second
	defaultStubInterval = 500 * time.Millisecond
)

// Ingestor multiplexes one logical stream connection for a symbol set, writes every
// normalized event into the market store and forwards it to subscribers.
type Ingestor struct {
	provider     string
	log          zerolog.Logger
	store        *market.Store
	baseURL      string
	depthLevels  int
	depthSpeed   time.Duration
	queueSize    int
	pingInterval time.Duration
	readTimeout  time.Duration
	stubInterval time.Duration
	backoff      *Backoff
	onConnect    func()

	mu      sync.Mutex
	symbols []string
	queues  map[string]*dropQueue
	out     chan signal.NormalizedEvent
	running bool
}

// Option configures Ingestor construction parameters.
type Option func(*Ingestor)

// WithStore sets the market store the ingestor writes to.
func WithStore(store *market.Store) Option {
	return func(in *Ingestor) {
		if store != nil {
			in.store = store
		}
	}
}

// WithURL overrides the websocket base URL (scheme and host, no path).
func WithURL(url string) Option {
	return func(in *Ingestor) {
		if url != "" {
			in.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithDepth configures the partial depth stream levels and update speed.
func WithDepth(levels int, speed time.Duration) Option {
	return func(in *Ingestor) {
		if levels > 0 {
			in.depthLevels = levels
		}
		if speed > 0 {
			in.depthSpeed = speed
		}
	}
}

// WithQueueSize bounds each per-symbol delivery buffer.
func WithQueueSize(n int) Option {
	return func(in *Ingestor) {
		if n > 0 {
			in.queueSize = n
		}
	}
}

// WithKeepalive overrides ping cadence and read deadline.
func WithKeepalive(ping, read time.Duration) Option {
	return func(in *Ingestor) {
		if ping > 0 {
			in.pingInterval = ping
		}
		if read > 0 {
			in.readTimeout = read
		}
	}
}

// WithBackoff replaces the reconnect policy.
func WithBackoff(b *Backoff) Option {
	return func(in *Ingestor) {
		if b != nil {
			in.backoff = b
		}
	}
}

// WithStubInterval overrides the synthetic event cadence.
func WithStubInterval(d time.Duration) Option {
	return func(in *Ingestor) {
		if d > 0 {
			in.stubInterval = d
		}
	}
}

// WithConnectHook registers a callback fired after each successful connect.
func WithConnectHook(fn func()) Option {
	return func(in *Ingestor) { in.onConnect = fn }
}

// NewIngestor constructs an ingestor backed by the requested provider.
func NewIngestor(provider string, log zerolog.Logger, opts ...Option) *Ingestor {
	if provider == "" {
		provider = ProviderStub
	}
	in := &Ingestor{
		provider:     strings.ToLower(provider),
		log:          log,
		baseURL:      defaultBaseURL,
		depthLevels:  defaultDepthLevels,
		depthSpeed:   defaultDepthSpeed,
		queueSize:    defaultQueueSize,
		pingInterval: defaultPingInterval,
		readTimeout:  defaultReadTimeout,
		stubInterval: defaultStubInterval,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.store == nil {
		in.store = market.NewStore(market.DefaultTradeCapacity, in.depthLevels)
	}
	if in.backoff == nil {
		in.backoff = DefaultBackoff()
	}
	return in
}

// Store exposes the market store the ingestor writes to.
func (in *Ingestor) Store() *market.Store { return in.store }

// Subscribe registers the symbol set and returns the merged event channel.
// The channel is closed when Run returns.
func (in *Ingestor) Subscribe(symbols ...string) (<-chan signal.NormalizedEvent, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.running {
		return nil, ErrAlreadyRunning
	}
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	if len(unique) == 0 {
		return nil, ErrNoSymbols
	}
	in.symbols = in.symbols[:0]
	for sym := range unique {
		in.symbols = append(in.symbols, sym)
	}
	sort.Strings(in.symbols)

	in.queues = make(map[string]*dropQueue, len(in.symbols))
	for _, sym := range in.symbols {
		in.queues[sym] = newDropQueue(in.queueSize)
	}
	in.store.Track(in.symbols...)
	in.out = make(chan signal.NormalizedEvent, len(in.symbols))
	return in.out, nil
}

// Symbols returns the subscribed symbols.
func (in *Ingestor) Symbols() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]string, len(in.symbols))
	copy(out, in.symbols)
	return out
}

// LastPrice reads the last trade price (or mid) from market state.
func (in *Ingestor) LastPrice(symbol string) (float64, bool) {
	return in.store.LastPrice(symbol)
}

// RecentTrades reads up to limit recent trades from market state.
func (in *Ingestor) RecentTrades(symbol string, limit int) []signal.Tick {
	return in.store.RecentTrades(symbol, limit)
}

// Run drives the provider until ctx is canceled. Forwarders are drained and the
// subscriber channel closed before Run returns.
func (in *Ingestor) Run(ctx context.Context) error {
	in.mu.Lock()
	if in.out == nil {
		in.mu.Unlock()
		return ErrNotSubscribed
	}
	if in.running {
		in.mu.Unlock()
		return ErrAlreadyRunning
	}
	in.running = true
	queues := in.queues
	out := in.out
	in.mu.Unlock()

	fwdCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, q := range queues {
		wg.Add(1)
		go func(q *dropQueue) {
			defer wg.Done()
			q.Forward(fwdCtx, out)
		}(q)
	}

	var err error
	switch in.provider {
	case ProviderBinance:
		err = in.runBinance(ctx)
	default:
		err = in.runStub(ctx)
	}

	cancel()
	wg.Wait()
	close(out)
	return err
}

// dispatch is the single writer path: update state, then enqueue without blocking.
func (in *Ingestor) dispatch(ev signal.NormalizedEvent) {
	q, ok := in.queues[ev.Symbol]
	if !ok {
		in.log.Debug().Str("symbol", ev.Symbol).Msg("event for unsubscribed symbol ignored")
		return
	}
	in.store.Update(ev)
	metrics.EventsTotal.WithLabelValues(ev.Symbol, ev.Kind.String()).Inc()
	if q.Push(ev) {
		metrics.EventsDropped.WithLabelValues(ev.Symbol).Inc()
	}
}
