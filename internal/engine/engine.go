// Package engine wires ingestion, analysis, scoring, coordination and trade
// monitoring into the running signal pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"alphabot-go/internal/config"
	"alphabot-go/internal/exchange"
	"alphabot-go/internal/gate"
	"alphabot-go/internal/greeks"
	"alphabot-go/internal/market"
	"alphabot-go/internal/metrics"
	"alphabot-go/internal/monitor"
	"alphabot-go/internal/notify"
	"alphabot-go/internal/paper"
	"alphabot-go/internal/risk"
	"alphabot-go/internal/scoring"
	"alphabot-go/internal/signal"
	"alphabot-go/internal/strategy"
)

// Rejection reasons raised before the coordinator sees a signal.
const (
	reasonStale   = "stale_data"
	reasonNews    = "news_blocked"
	reasonSession = "session"
	reasonScore   = "below_floor"
	reasonMonitor = "monitor_conflict"
)

const (
	ledgerCapacity  = 256
	defaultInterval = 30 * time.Second
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source shared by every component.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithNotifier replaces the default log notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithPriceSource overrides where the monitor reads current prices.
func WithPriceSource(p monitor.PriceSource) Option {
	return func(e *Engine) { e.prices = p }
}

// WithIngestorOptions appends options to the stream ingestor.
func WithIngestorOptions(opts ...exchange.Option) Option {
	return func(e *Engine) { e.ingestOpts = append(e.ingestOpts, opts...) }
}

// WithRESTOptions appends options to the REST client when it is enabled.
func WithRESTOptions(opts ...exchange.RESTOption) Option {
	return func(e *Engine) { e.restOpts = append(e.restOpts, opts...) }
}

// Engine owns every pipeline component for one process.
type Engine struct {
	cfg    *config.Config
	log    zerolog.Logger
	now    func() time.Time
	assets []config.Asset

	ingestor *exchange.Ingestor
	rest     *exchange.RESTClient
	rules    *strategy.Set
	scorer   *scoring.Scorer
	coord    *risk.Coordinator
	tracker  *risk.Tracker
	monitor  *monitor.Monitor
	sessions *gate.Sessions
	news     *gate.NewsWindows
	notifier notify.Notifier
	prices   monitor.PriceSource

	account  *paper.Account
	ledger   *paper.Ledger
	outcomes *paper.JSONLRecorder
	trades   *paper.JSONLRecorder
	chains   map[string]*greeks.Chain

	ingestOpts []exchange.Option
	restOpts   []exchange.RESTOption

	closeOnce sync.Once
}

// New builds an engine from a validated config.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: nil config")
	}
	e := &Engine{
		cfg:    cfg,
		log:    log.With().Str("component", "engine").Logger(),
		now:    time.Now,
		assets: cfg.EnabledAssets(),
		chains: make(map[string]*greeks.Chain),
	}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.assets) == 0 {
		return nil, fmt.Errorf("%w: no enabled assets", config.ErrInvalid)
	}

	st := cfg.Stream
	ingestOpts := []exchange.Option{
		exchange.WithStore(market.NewStore(st.TradeBuffer, st.DepthLevels)),
		exchange.WithURL(st.URL),
		exchange.WithDepth(st.DepthLevels, time.Duration(st.DepthIntervalMs)*time.Millisecond),
		exchange.WithQueueSize(st.EventBuffer),
		exchange.WithKeepalive(st.PingInterval(), st.ReadTimeout()),
		exchange.WithBackoff(exchange.NewBackoff(st.ReconnectInitial(), st.ReconnectMax(), st.ReconnectMultiplier)),
		exchange.WithStubInterval(st.StubInterval()),
		exchange.WithConnectHook(func() { e.log.Info().Str("provider", st.Provider).Msg("market stream connected") }),
	}
	e.ingestor = exchange.NewIngestor(st.Provider, log, append(ingestOpts, e.ingestOpts...)...)

	if cfg.REST.Enabled {
		creds, err := config.LoadCredentials(false)
		if err != nil {
			return nil, err
		}
		restOpts := []exchange.RESTOption{
			exchange.WithAssetSymbols(e.symbolMap()),
			exchange.WithRateLimit(cfg.REST.RequestsPerSecond, cfg.REST.Burst),
			exchange.WithRetry(cfg.REST.MaxAttempts, cfg.REST.RetryBase()),
			exchange.WithRequestTimeout(cfg.REST.Timeout()),
		}
		e.rest = exchange.NewRESTClient(creds, log, append(restOpts, e.restOpts...)...)
	}

	if cfg.Greeks.Enabled {
		for _, a := range e.assets {
			if a.ChainPath == "" {
				continue
			}
			chain, err := greeks.LoadChain(a.Name, a.ChainPath)
			if err != nil {
				e.log.Warn().Err(err).Str("asset", a.Name).Msg("options chain unavailable, gamma rule disabled for asset")
				continue
			}
			e.chains[a.Name] = &chain
		}
	}

	sessions, err := gate.NewSessions(cfg.Gates, log, e.now)
	if err != nil {
		return nil, err
	}
	e.sessions = sessions
	e.news = gate.NewNewsWindows(cfg.Gates, e.now)
	e.rules = strategy.Build(cfg.Analyzer, cfg.Greeks)
	e.scorer = scoring.New(cfg.Scorer)

	e.tracker = risk.NewTracker()
	if err := e.warmTracker(); err != nil {
		return nil, err
	}
	e.account = paper.NewAccount(cfg.Coordinator.AccountSize, cfg.Coordinator.MaxNotionalPerTrade)
	e.ledger = paper.NewLedger(ledgerCapacity)
	e.coord = risk.NewCoordinator(cfg.Coordinator, e.assets, log,
		risk.WithClock(e.now), risk.WithBankroll(e.account), risk.WithTracker(e.tracker))

	if e.notifier == nil {
		e.notifier = notify.NewLogNotifier(log)
	}
	if e.prices == nil {
		e.prices = e.defaultPriceSource()
	}
	e.monitor = monitor.New(cfg.Monitor, e.prices, log, monitor.WithClock(e.now), monitor.WithListener(e))

	if e.outcomes, err = paper.NewJSONLRecorder(cfg.Paper.OutcomesPath); err != nil {
		return nil, fmt.Errorf("open outcomes: %w", err)
	}
	if e.trades, err = paper.NewJSONLRecorder(cfg.Paper.TradesPath); err != nil {
		_ = e.outcomes.Close()
		return nil, fmt.Errorf("open trades: %w", err)
	}
	return e, nil
}

func (e *Engine) symbolMap() map[string]string {
	out := make(map[string]string, len(e.assets))
	for _, a := range e.assets {
		out[a.Name] = a.Symbol
	}
	return out
}

func (e *Engine) symbol(asset string) string {
	asset = strings.ToUpper(asset)
	for _, a := range e.assets {
		if a.Name == asset {
			return a.Symbol
		}
	}
	return asset
}

func (e *Engine) defaultPriceSource() monitor.PriceSource {
	if e.cfg.Monitor.PriceSource == "rest" && e.rest != nil {
		return e.rest
	}
	return monitor.PriceFunc(func(_ context.Context, asset string) (float64, error) {
		px, ok := e.ingestor.Store().LastPrice(e.symbol(asset))
		if !ok {
			return 0, fmt.Errorf("%w: %s", exchange.ErrNoQuote, asset)
		}
		return px, nil
	})
}

// warmTracker replays recorded outcomes so size advice survives restarts.
func (e *Engine) warmTracker() error {
	history, err := paper.LoadOutcomes(e.cfg.Paper.OutcomesPath)
	if err != nil {
		return fmt.Errorf("load outcomes: %w", err)
	}
	for _, o := range history {
		e.tracker.RecordOutcome(o.SetupKey, o.PnLPercent)
	}
	if len(history) > 0 {
		e.log.Info().Int("outcomes", len(history)).Int("setups", len(e.tracker.Keys())).Msg("performance history loaded")
	}
	return nil
}

// Ingestor exposes the stream ingestor and its market store.
func (e *Engine) Ingestor() *exchange.Ingestor { return e.ingestor }

// Monitor exposes the trade lifecycle monitor.
func (e *Engine) Monitor() *monitor.Monitor { return e.monitor }

// Coordinator exposes the asset coordinator.
func (e *Engine) Coordinator() *risk.Coordinator { return e.coord }

// Account exposes the paper bankroll.
func (e *Engine) Account() *paper.Account { return e.account }

// Ledger exposes closed trades of this run.
func (e *Engine) Ledger() *paper.Ledger { return e.ledger }

// Tracker exposes per-setup performance.
func (e *Engine) Tracker() *risk.Tracker { return e.tracker }

// RunCycle evaluates every asset once and opens trades for admitted signals.
func (e *Engine) RunCycle(ctx context.Context) []risk.Decision {
	now := e.now()
	var batch []signal.Scored
	for _, a := range e.assets {
		if ctx.Err() != nil {
			return nil
		}
		if s, ok := e.evaluate(ctx, a, now); ok {
			batch = append(batch, s)
		}
	}
	if len(batch) == 0 {
		return nil
	}

	decisions := e.coord.Admit(batch)
	for i, d := range decisions {
		if !d.Accepted {
			continue
		}
		if err := e.open(d); err != nil {
			e.log.Warn().Err(err).Str("asset", d.Signal.Asset).Msg("accepted signal not opened")
			decisions[i].Accepted = false
			decisions[i].Reason = reasonMonitor
		}
	}
	return decisions
}

// evaluate runs analysis, rules, gates and the scorer for one asset.
func (e *Engine) evaluate(ctx context.Context, a config.Asset, now time.Time) (signal.Scored, bool) {
	log := e.log.With().Str("asset", a.Name).Logger()
	snap := e.ingestor.Store().Snapshot(a.Symbol)
	if maxAge := e.cfg.Engine.MaxDataAge(); maxAge > 0 && snap.BookAge(now) > maxAge {
		log.Debug().Msg("market data stale, skipping asset")
		metrics.SignalsRejected.WithLabelValues(a.Name, reasonStale).Inc()
		return signal.Scored{}, false
	}

	analysis := e.rules.Analyzer.Analyze(snap, now)
	if !analysis.Valid() {
		return signal.Scored{}, false
	}
	candidate, ok := e.rules.Evaluate(a.Name, analysis, e.chains[a.Name], now)
	if !ok {
		return signal.Scored{}, false
	}

	allowed, status := e.news.CheckTradingAllowed(a.Name)
	if !allowed {
		log.Info().Str("kind", string(candidate.Kind)).Str("status", status).Msg("candidate blocked by news window")
		metrics.SignalsRejected.WithLabelValues(a.Name, reasonNews).Inc()
		return signal.Scored{}, false
	}

	sctx := scoring.Context{
		SpreadPct:   analysis.SpreadPct,
		HasBook:     true,
		BuyPressure: analysis.BuyPressure(),
		HasFlow:     analysis.BuyNotional+analysis.SellNotional > 0,
		TimeMult:    e.sessions.Quality(a.Name),
		NewsStatus:  status,
	}
	if e.rest != nil {
		if f, err := e.rest.Funding(ctx, a.Name); err == nil {
			sctx.FundingRate, sctx.HasFunding = f.FundingRate, true
		} else {
			log.Debug().Err(err).Msg("funding unavailable, momentum uses baseline")
		}
	}

	scored := e.scorer.Score(candidate, sctx)
	if ok, why := e.sessions.ShouldProcess(a.Name, scored.Total); !ok {
		log.Info().Float64("score", scored.Total).Str("why", why).Msg("candidate filtered by session")
		metrics.SignalsRejected.WithLabelValues(a.Name, reasonSession).Inc()
		return signal.Scored{}, false
	}
	if !e.scorer.Accept(scored) {
		log.Info().Float64("score", scored.Total).Float64("floor", e.scorer.Floor()).Msg("candidate below score floor")
		metrics.SignalsRejected.WithLabelValues(a.Name, reasonScore).Inc()
		return signal.Scored{}, false
	}
	return scored, true
}

func (e *Engine) open(d risk.Decision) error {
	trade, err := e.monitor.Open(d.Signal, d.Size)
	if err != nil {
		e.coord.Release(d.Signal.Asset)
		return err
	}
	e.rules.Traded(d.Signal.Candidate)
	if err := e.account.Open(trade.ID, trade.Asset, trade.Direction, trade.Size, trade.Entry); err != nil {
		e.log.Warn().Err(err).Str("id", trade.ID).Msg("paper position not opened")
	}
	if err := e.notifier.NotifySignal(d.Signal, d.Size); err != nil {
		e.log.Warn().Err(err).Msg("signal notification failed")
	}
	return nil
}

// OnAlert forwards lifecycle alerts and books partial closes.
func (e *Engine) OnAlert(t monitor.ActiveTrade, kind monitor.AlertKind, details string) {
	if kind == monitor.AlertPartial {
		if _, err := e.account.Reduce(t.ID, e.cfg.Monitor.PartialFraction, t.CurrentPrice); err != nil {
			e.log.Warn().Err(err).Str("id", t.ID).Msg("paper partial close failed")
		}
	}
	if err := e.notifier.NotifyAlert(t, kind, details); err != nil {
		e.log.Warn().Err(err).Str("id", t.ID).Msg("alert notification failed")
	}
}

// OnClose settles a finished trade across coordinator, tracker and records.
func (e *Engine) OnClose(t monitor.ActiveTrade) {
	log := e.log.With().Str("id", t.ID).Str("asset", t.Asset).Logger()
	if _, err := e.account.Close(t.ID, t.CurrentPrice); err != nil {
		log.Warn().Err(err).Msg("paper close failed")
	}

	pnl := t.RealizedPnLPercent()
	switch outcome := e.coord.Close(t.Asset, pnl); outcome {
	case risk.OutcomeCircuitBreaker:
		log.Warn().Int("minutes", e.cfg.Coordinator.CircuitBreakerMin).Msg("circuit breaker tripped")
	case risk.OutcomeDailyLimit:
		log.Warn().Int("minutes", e.cfg.Coordinator.DailyLimitMin).Msg("daily loss limit reached")
	}
	e.tracker.RecordOutcome(t.SetupKey, pnl)
	if reduce, why := e.tracker.ShouldReduce(t.SetupKey); reduce {
		log.Warn().Str("setup", t.SetupKey).Str("why", why).Msg("setup underperforming, size reduced")
	}
	if err := e.outcomes.RecordOutcome(t.SetupKey, pnl); err != nil {
		log.Warn().Err(err).Msg("record outcome failed")
	}

	closed := paper.ClosedTrade{
		ID:         t.ID,
		Asset:      t.Asset,
		SetupKey:   t.SetupKey,
		Direction:  string(t.Direction),
		Entry:      t.Entry,
		Exit:       t.CurrentPrice,
		Size:       t.Size,
		PnLPercent: pnl,
		Result:     string(t.Result),
		Score:      t.Score,
		OpenedAt:   t.OpenedAt,
		ClosedAt:   t.ClosedAt,
	}
	e.ledger.Record(closed)
	if err := e.trades.Record(closed); err != nil {
		log.Warn().Err(err).Msg("record trade failed")
	}
	if err := e.notifier.NotifyClose(t, t.Result); err != nil {
		log.Warn().Err(err).Msg("close notification failed")
	}
}

// Run streams market data and runs the signal loop and the monitor until ctx
// is cancelled. Components get ShutdownGrace to finish after cancellation.
func (e *Engine) Run(ctx context.Context) error {
	symbols := make([]string, 0, len(e.assets))
	for _, a := range e.assets {
		symbols = append(symbols, a.Symbol)
	}
	events, err := e.ingestor.Subscribe(symbols...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.ingestor.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("ingestor: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// state is already applied by the ingestor; draining keeps delivery fresh
		for range events {
		}
		return nil
	})
	g.Go(func() error { return e.signalLoop(gctx) })
	g.Go(func() error { return e.monitor.Run(gctx) })

	e.log.Info().Strs("symbols", symbols).Strs("rules", e.rules.Names()).
		Float64("balance", e.account.Balance()).Msg("engine started")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	grace := e.cfg.Engine.ShutdownGrace()
	select {
	case err := <-done:
		e.logSummary()
		return err
	case <-time.After(grace):
		e.log.Warn().Dur("grace", grace).Msg("components did not stop within grace period")
		return context.DeadlineExceeded
	}
}

func (e *Engine) signalLoop(ctx context.Context) error {
	interval := e.cfg.Engine.CycleInterval()
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, d := range e.RunCycle(ctx) {
				if d.Accepted {
					e.log.Info().Str("asset", d.Signal.Asset).Float64("score", d.Signal.Total).
						Float64("size", d.Size).Msg("signal accepted")
				}
			}
		}
	}
}

func (e *Engine) logSummary() {
	wins, losses, pnl := e.ledger.Summary()
	e.log.Info().Int("wins", wins).Int("losses", losses).Float64("pnl_pct", pnl).
		Int("open", len(e.monitor.Trades())).Float64("balance", e.account.Balance()).Msg("engine stopped")
}

// Close flushes and closes the JSONL recorders.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = errors.Join(e.outcomes.Close(), e.trades.Close())
	})
	return err
}
