package config

import "strings"

// ApplyDefaults fills zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "alphabot"
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = ":9102"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	for i := range c.Assets {
		a := &c.Assets[i]
		a.Name = strings.ToUpper(strings.TrimSpace(a.Name))
		a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))
		if a.Symbol == "" && a.Name != "" {
			a.Symbol = a.Name + "USDT"
		}
		if a.VolatilityRegime == "" {
			a.VolatilityRegime = "medium"
		}
		if a.MinQuantity <= 0 {
			a.MinQuantity = 0.001
		}
	}

	s := &c.Stream
	if s.Provider == "" {
		s.Provider = "binance"
	}
	s.Provider = strings.ToLower(s.Provider)
	if s.URL == "" {
		s.URL = "wss://stream.binance.com:9443"
	}
	if s.DepthLevels == 0 {
		s.DepthLevels = 20
	}
	if s.DepthIntervalMs == 0 {
		s.DepthIntervalMs = 100
	}
	if s.TradeBuffer == 0 {
		s.TradeBuffer = 100
	}
	if s.EventBuffer == 0 {
		s.EventBuffer = 256
	}
	if s.ReconnectInitialMs == 0 {
		s.ReconnectInitialMs = 3000
	}
	if s.ReconnectMaxMs == 0 {
		s.ReconnectMaxMs = 60000
	}
	if s.ReconnectMultiplier == 0 {
		s.ReconnectMultiplier = 1.8
	}
	if s.PingIntervalMs == 0 {
		s.PingIntervalMs = 15000
	}
	if s.ReadTimeoutMs == 0 {
		s.ReadTimeoutMs = 30000
	}
	if s.StubIntervalMs == 0 {
		s.StubIntervalMs = 500
	}

	r := &c.REST
	if r.RequestsPerSecond == 0 {
		r.RequestsPerSecond = 5
	}
	if r.Burst == 0 {
		r.Burst = 2
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.RetryBaseMs == 0 {
		r.RetryBaseMs = 1000
	}
	if r.TimeoutMs == 0 {
		r.TimeoutMs = 3000
	}

	an := &c.Analyzer
	if an.BookLevels == 0 {
		an.BookLevels = 20
	}
	if an.WallMultiplier == 0 {
		an.WallMultiplier = 5
	}
	if an.VoidGapPct == 0 {
		an.VoidGapPct = 0.002
	}
	if an.SweepBufferPct == 0 {
		an.SweepBufferPct = 0.002
	}
	if an.DeltaRatioMin == 0 {
		an.DeltaRatioMin = 0.15
	}
	if an.OFIThreshold == 0 {
		an.OFIThreshold = 0.3
	}

	g := &c.Greeks
	if g.RiskFreeRate == 0 {
		g.RiskFreeRate = 0.05
	}
	if g.DefaultExpiryDays == 0 {
		g.DefaultExpiryDays = 7
	}
	if g.HighDistancePct == 0 {
		g.HighDistancePct = 0.02
	}
	if g.MediumDistancePct == 0 {
		g.MediumDistancePct = 0.05
	}
	if g.HighExposure == 0 {
		g.HighExposure = 500_000
	}
	if g.MediumExposure == 0 {
		g.MediumExposure = 100_000
	}

	sc := &c.Scorer
	if sc.MinScore == 0 {
		sc.MinScore = 85
	}
	if sc.HardFloor == 0 {
		sc.HardFloor = 80
	}
	if sc.AdaptiveAfter == 0 {
		sc.AdaptiveAfter = 10
	}
	if sc.AdaptiveStep == 0 {
		sc.AdaptiveStep = 1
	}
	if sc.AdaptiveMaxRelax == 0 {
		sc.AdaptiveMaxRelax = 5
	}

	co := &c.Coordinator
	if co.AccountSize == 0 {
		co.AccountSize = 100_000
	}
	if co.RiskPerTrade == 0 {
		co.RiskPerTrade = 0.01
	}
	if co.MaxDailyPerAsset == 0 {
		co.MaxDailyPerAsset = 2
	}
	if co.MaxHourlyPerAsset == 0 {
		co.MaxHourlyPerAsset = 1
	}
	if co.GlobalCooldownMin == 0 {
		co.GlobalCooldownMin = 30
	}
	if co.AssetCooldownMin == 0 {
		co.AssetCooldownMin = 60
	}
	if co.AntiChurnPct == 0 {
		co.AntiChurnPct = 0.005
	}
	if co.CorrelationThreshold == 0 {
		co.CorrelationThreshold = 0.8
	}
	if co.Correlations == nil {
		co.Correlations = map[string]float64{"BTC/ETH": 0.85, "BTC/SOL": 0.80, "ETH/SOL": 0.90}
	}
	if co.RegimeMultipliers == nil {
		co.RegimeMultipliers = map[string]float64{"medium": 1.0, "high": 0.8, "very_high": 0.6}
	}
	if co.MaxConsecutiveLosses == 0 {
		co.MaxConsecutiveLosses = 3
	}
	if co.MaxDailyLosses == 0 {
		co.MaxDailyLosses = 5
	}
	if co.CircuitBreakerMin == 0 {
		co.CircuitBreakerMin = 60
	}
	if co.DailyLimitMin == 0 {
		co.DailyLimitMin = 240
	}

	m := &c.Monitor
	if m.PollIntervalMs == 0 {
		m.PollIntervalMs = 5000
	}
	if m.FetchTimeoutMs == 0 {
		m.FetchTimeoutMs = 2000
	}
	if m.BreakevenPct == 0 {
		m.BreakevenPct = 1
	}
	if m.PartialPct == 0 {
		m.PartialPct = 2
	}
	if m.PartialFraction == 0 {
		m.PartialFraction = 0.5
	}
	if m.TrailingPct == 0 {
		m.TrailingPct = 3
	}
	if m.TrailDistancePct == 0 {
		m.TrailDistancePct = 1
	}
	if m.StopProximityPct == 0 {
		m.StopProximityPct = 0.5
	}
	if m.TargetProximityPct == 0 {
		m.TargetProximityPct = 0.3
	}
	if m.PriceSource == "" {
		m.PriceSource = "stream"
	}

	e := &c.Engine
	if e.CycleIntervalMs == 0 {
		e.CycleIntervalMs = 30_000
	}
	if e.MaxDataAgeMs == 0 {
		e.MaxDataAgeMs = 10_000
	}
	if e.ShutdownGraceMs == 0 {
		e.ShutdownGraceMs = 5000
	}

	if c.Gates.DefaultQuality == "" {
		c.Gates.DefaultQuality = "moderate"
	}
	if c.Gates.DefaultMultiplier == 0 {
		c.Gates.DefaultMultiplier = 1.0
	}

	if c.Paper.OutcomesPath == "" {
		c.Paper.OutcomesPath = "data/outcomes.jsonl"
	}
	if c.Paper.TradesPath == "" {
		c.Paper.TradesPath = "data/trades.jsonl"
	}
}
