// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	Console     bool   `yaml:"console"`
}

// Asset describes one tradable underlying and its stream symbol.
type Asset struct {
	Name             string  `yaml:"name"`
	Symbol           string  `yaml:"symbol"`
	Disabled         bool    `yaml:"disabled"`
	VolatilityRegime string  `yaml:"volatility_regime"` // medium | high | very_high
	MinQuantity      float64 `yaml:"min_quantity"`
	ChainPath        string  `yaml:"chain_path"`
}

// Stream configures the websocket ingestor.
type Stream struct {
	Provider            string  `yaml:"provider"` // binance | stub
	URL                 string  `yaml:"url"`
	DepthLevels         int     `yaml:"depth_levels"`
	DepthIntervalMs     int     `yaml:"depth_interval_ms"`
	TradeBuffer         int     `yaml:"trade_buffer"`
	EventBuffer         int     `yaml:"event_buffer"`
	ReconnectInitialMs  int     `yaml:"reconnect_initial_ms"`
	ReconnectMaxMs      int     `yaml:"reconnect_max_ms"`
	ReconnectMultiplier float64 `yaml:"reconnect_multiplier"`
	PingIntervalMs      int     `yaml:"ping_interval_ms"`
	ReadTimeoutMs       int     `yaml:"read_timeout_ms"`
	StubIntervalMs      int     `yaml:"stub_interval_ms"`
}

// REST configures the quote/funding client.
type REST struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxAttempts       int     `yaml:"max_attempts"`
	RetryBaseMs       int     `yaml:"retry_base_ms"`
	TimeoutMs         int     `yaml:"timeout_ms"`
}

// Analyzer tunes the microstructure rules.
type Analyzer struct {
	BookLevels     int     `yaml:"book_levels"`
	WallMultiplier float64 `yaml:"wall_multiplier"`
	VoidGapPct     float64 `yaml:"void_gap_pct"`
	SweepBufferPct float64 `yaml:"sweep_buffer_pct"`
	DeltaRatioMin  float64 `yaml:"delta_ratio_min"`
	OFIThreshold   float64 `yaml:"ofi_threshold"`
}

// Greeks tunes the gamma engine.
type Greeks struct {
	Enabled           bool    `yaml:"enabled"`
	RiskFreeRate      float64 `yaml:"risk_free_rate"`
	DefaultExpiryDays float64 `yaml:"default_expiry_days"`
	HighDistancePct   float64 `yaml:"high_distance_pct"`
	MediumDistancePct float64 `yaml:"medium_distance_pct"`
	HighExposure      float64 `yaml:"high_exposure"`
	MediumExposure    float64 `yaml:"medium_exposure"`
}

// Scorer tunes acceptance thresholds.
type Scorer struct {
	MinScore         float64 `yaml:"min_score"`
	HardFloor        float64 `yaml:"hard_floor"`
	Adaptive         bool    `yaml:"adaptive"`
	AdaptiveAfter    int     `yaml:"adaptive_after"`
	AdaptiveStep     float64 `yaml:"adaptive_step"`
	AdaptiveMaxRelax float64 `yaml:"adaptive_max_relax"`
}

// Coordinator encodes quotas, cooldowns and sizing inputs.
type Coordinator struct {
	AccountSize          float64            `yaml:"account_size"`
	RiskPerTrade         float64            `yaml:"risk_per_trade"`
	MaxDailyPerAsset     int                `yaml:"max_daily_per_asset"`
	MaxHourlyPerAsset    int                `yaml:"max_hourly_per_asset"`
	GlobalCooldownMin    int                `yaml:"global_cooldown_min"`
	AssetCooldownMin     int                `yaml:"asset_cooldown_min"`
	AntiChurnPct         float64            `yaml:"anti_churn_pct"`
	CorrelationThreshold float64            `yaml:"correlation_threshold"`
	Correlations         map[string]float64 `yaml:"correlations"` // "BTC/ETH": 0.85
	RegimeMultipliers    map[string]float64 `yaml:"regime_multipliers"`
	MaxNotionalPerTrade  float64            `yaml:"max_notional_per_trade"`
	MaxConsecutiveLosses int                `yaml:"max_consecutive_losses"`
	MaxDailyLosses       int                `yaml:"max_daily_losses"`
	CircuitBreakerMin    int                `yaml:"circuit_breaker_min"`
	DailyLimitMin        int                `yaml:"daily_limit_min"`
}

// Monitor tunes the trade lifecycle thresholds.
type Monitor struct {
	PollIntervalMs     int     `yaml:"poll_interval_ms"`
	FetchTimeoutMs     int     `yaml:"fetch_timeout_ms"`
	BreakevenPct       float64 `yaml:"breakeven_pct"`
	PartialPct         float64 `yaml:"partial_pct"`
	PartialFraction    float64 `yaml:"partial_fraction"`
	TrailingPct        float64 `yaml:"trailing_pct"`
	TrailDistancePct   float64 `yaml:"trail_distance_pct"`
	StopProximityPct   float64 `yaml:"stop_proximity_pct"`
	TargetProximityPct float64 `yaml:"target_proximity_pct"`
	PriceSource        string  `yaml:"price_source"` // stream | rest
}

// Engine tunes the signal generation loop.
type Engine struct {
	CycleIntervalMs int `yaml:"cycle_interval_ms"`
	MaxDataAgeMs    int `yaml:"max_data_age_ms"`
	ShutdownGraceMs int `yaml:"shutdown_grace_ms"`
}

// Session is one UTC window with its time-quality multiplier.
type Session struct {
	Name       string  `yaml:"name"`
	StartUTC   string  `yaml:"start_utc"` // HH:MM
	EndUTC     string  `yaml:"end_utc"`
	Quality    string  `yaml:"quality"` // excellent | moderate | avoid
	Multiplier float64 `yaml:"multiplier"`
	MinScore   float64 `yaml:"min_score"`
}

// NewsWindow is a configured blackout around a scheduled event.
type NewsWindow struct {
	Name   string    `yaml:"name"`
	Start  time.Time `yaml:"start"`
	End    time.Time `yaml:"end"`
	Status string    `yaml:"status"` // caution | high_impact | blocked
	Assets []string  `yaml:"assets"`
}

// Gates configures the static time and news gates.
type Gates struct {
	DefaultQuality    string       `yaml:"default_quality"`
	DefaultMultiplier float64      `yaml:"default_multiplier"`
	Sessions          []Session    `yaml:"sessions"`
	NewsWindows       []NewsWindow `yaml:"news_windows"`

	// FundingResetCaution flags the minutes around each hour as caution.
	FundingResetCaution bool `yaml:"funding_reset_caution"`
}

// Paper captures where summary records are written.
type Paper struct {
	OutcomesPath string `yaml:"outcomes_path"`
	TradesPath   string `yaml:"trades_path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App         App         `yaml:"app"`
	Assets      []Asset     `yaml:"assets"`
	Stream      Stream      `yaml:"stream"`
	REST        REST        `yaml:"rest"`
	Analyzer    Analyzer    `yaml:"analyzer"`
	Greeks      Greeks      `yaml:"greeks"`
	Scorer      Scorer      `yaml:"scorer"`
	Coordinator Coordinator `yaml:"coordinator"`
	Monitor     Monitor     `yaml:"monitor"`
	Engine      Engine      `yaml:"engine"`
	Gates       Gates       `yaml:"gates"`
	Paper       Paper       `yaml:"paper"`
}

// Load reads a YAML file from disk, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// EnabledAssets returns assets not marked disabled.
func (c *Config) EnabledAssets() []Asset {
	out := make([]Asset, 0, len(c.Assets))
	for _, a := range c.Assets {
		if !a.Disabled {
			out = append(out, a)
		}
	}
	return out
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.EnabledAssets()) == 0 {
		return fmt.Errorf("%w: no enabled assets", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(c.Assets))
	for _, a := range c.Assets {
		if a.Name == "" || a.Symbol == "" {
			return fmt.Errorf("%w: asset requires name and symbol", ErrInvalid)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("%w: duplicate asset %s", ErrInvalid, a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	switch c.Stream.Provider {
	case "binance", "stub":
	default:
		return fmt.Errorf("%w: unknown stream provider %q", ErrInvalid, c.Stream.Provider)
	}
	if c.Stream.ReconnectMaxMs < c.Stream.ReconnectInitialMs {
		return fmt.Errorf("%w: reconnect_max_ms below reconnect_initial_ms", ErrInvalid)
	}
	if c.Coordinator.RiskPerTrade <= 0 || c.Coordinator.RiskPerTrade > 0.1 {
		return fmt.Errorf("%w: risk_per_trade must be in (0, 0.1]", ErrInvalid)
	}
	if c.Scorer.HardFloor > c.Scorer.MinScore {
		return fmt.Errorf("%w: hard_floor above min_score", ErrInvalid)
	}
	m := c.Monitor
	if !(m.BreakevenPct < m.PartialPct && m.PartialPct < m.TrailingPct) {
		return fmt.Errorf("%w: monitor thresholds must satisfy breakeven < partial < trailing", ErrInvalid)
	}
	if m.PartialFraction <= 0 || m.PartialFraction >= 1 {
		return fmt.Errorf("%w: partial_fraction must be in (0,1)", ErrInvalid)
	}
	switch m.PriceSource {
	case "stream", "rest":
	default:
		return fmt.Errorf("%w: unknown price_source %q", ErrInvalid, m.PriceSource)
	}
	if m.PriceSource == "rest" && !c.REST.Enabled {
		return fmt.Errorf("%w: price_source rest requires rest.enabled", ErrInvalid)
	}
	for _, s := range c.Gates.Sessions {
		if _, _, err := ParseClock(s.StartUTC); err != nil {
			return fmt.Errorf("%w: session %s: %v", ErrInvalid, s.Name, err)
		}
		if _, _, err := ParseClock(s.EndUTC); err != nil {
			return fmt.Errorf("%w: session %s: %v", ErrInvalid, s.Name, err)
		}
	}
	return nil
}

// ParseClock parses an HH:MM wall clock value.
func ParseClock(v string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, 0, fmt.Errorf("parse clock %q: %w", v, err)
	}
	return t.Hour(), t.Minute(), nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// ReconnectInitial returns the first reconnect delay.
func (s Stream) ReconnectInitial() time.Duration { return ms(s.ReconnectInitialMs) }

// ReconnectMax returns the reconnect delay cap.
func (s Stream) ReconnectMax() time.Duration { return ms(s.ReconnectMaxMs) }

// PingInterval returns the websocket ping cadence.
func (s Stream) PingInterval() time.Duration { return ms(s.PingIntervalMs) }

// ReadTimeout returns the read deadline extension per frame.
func (s Stream) ReadTimeout() time.Duration { return ms(s.ReadTimeoutMs) }

// StubInterval returns the synthetic event cadence.
func (s Stream) StubInterval() time.Duration { return ms(s.StubIntervalMs) }

// Timeout returns the per-request deadline.
func (r REST) Timeout() time.Duration { return ms(r.TimeoutMs) }

// RetryBase returns the first retry delay after a rate-limit response.
func (r REST) RetryBase() time.Duration { return ms(r.RetryBaseMs) }

// PollInterval returns the monitor cadence.
func (m Monitor) PollInterval() time.Duration { return ms(m.PollIntervalMs) }

// FetchTimeout bounds each price fetch.
func (m Monitor) FetchTimeout() time.Duration { return ms(m.FetchTimeoutMs) }

// CycleInterval returns the signal generation cadence.
func (e Engine) CycleInterval() time.Duration { return ms(e.CycleIntervalMs) }

// MaxDataAge returns how stale a book may be before an asset is skipped.
func (e Engine) MaxDataAge() time.Duration { return ms(e.MaxDataAgeMs) }

// ShutdownGrace bounds how long ingestion is awaited on shutdown.
func (e Engine) ShutdownGrace() time.Duration { return ms(e.ShutdownGraceMs) }
