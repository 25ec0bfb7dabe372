// Package notify delivers signal and trade lifecycle messages.
package notify

import (
	"errors"

	"github.com/rs/zerolog"

	"alphabot-go/internal/metrics"
	"alphabot-go/internal/monitor"
	"alphabot-go/internal/signal"
)

// Notifier is the outbound sink for accepted signals and lifecycle events.
type Notifier interface {
	NotifySignal(s signal.Scored, size float64) error
	NotifyAlert(t monitor.ActiveTrade, kind monitor.AlertKind, details string) error
	NotifyClose(t monitor.ActiveTrade, result monitor.Result) error
}

// LogNotifier writes notifications as structured log lines.
type LogNotifier struct{ log zerolog.Logger }

// NewLogNotifier wraps a zerolog logger.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

// NotifySignal logs an accepted signal with its score breakdown.
func (n *LogNotifier) NotifySignal(s signal.Scored, size float64) error {
	metrics.Notifications.WithLabelValues("signal").Inc()
	n.log.Info().
		Str("asset", s.Asset).
		Str("setup", string(s.Kind)).
		Str("direction", string(s.Direction)).
		Float64("entry_lo", s.EntryZone[0]).
		Float64("entry_hi", s.EntryZone[1]).
		Float64("stop", s.Stop).
		Float64("t1", s.Targets[0]).
		Float64("t2", s.Targets[1]).
		Float64("size", size).
		Float64("score", s.Total).
		Str("tier", string(s.Tier)).
		Str("confidence", s.Tier.Confidence()).
		Float64("micro", s.Components.Microstructure).
		Float64("greeks", s.Components.Greeks).
		Float64("liquidity", s.Components.Liquidity).
		Float64("momentum", s.Components.Momentum).
		Float64("sentiment", s.Components.Sentiment).
		Msg("signal")
	return nil
}

// NotifyAlert logs a one-time lifecycle alert.
func (n *LogNotifier) NotifyAlert(t monitor.ActiveTrade, kind monitor.AlertKind, details string) error {
	metrics.Notifications.WithLabelValues("alert").Inc()
	n.log.Warn().
		Str("id", t.ID).
		Str("asset", t.Asset).
		Str("direction", string(t.Direction)).
		Str("alert", string(kind)).
		Float64("entry", t.Entry).
		Float64("price", t.CurrentPrice).
		Float64("stop", t.Stop).
		Float64("pnl_pct", t.PnLPercent).
		Str("status", string(t.Status)).
		Msg(details)
	return nil
}

// NotifyClose logs the final result of a trade.
func (n *LogNotifier) NotifyClose(t monitor.ActiveTrade, result monitor.Result) error {
	metrics.Notifications.WithLabelValues("close").Inc()
	n.log.Info().
		Str("id", t.ID).
		Str("asset", t.Asset).
		Str("direction", string(t.Direction)).
		Str("result", string(result)).
		Float64("entry", t.Entry).
		Float64("exit", t.CurrentPrice).
		Float64("pnl_pct", t.PnLPercent).
		Float64("realized_pct", t.RealizedPnLPercent()).
		Dur("held", t.ClosedAt.Sub(t.OpenedAt)).
		Msg("trade closed")
	return nil
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

// NotifySignal implements Notifier.
func (f Fanout) NotifySignal(s signal.Scored, size float64) error {
	var errs []error
	for _, n := range f {
		errs = append(errs, n.NotifySignal(s, size))
	}
	return errors.Join(errs...)
}

// NotifyAlert implements Notifier.
func (f Fanout) NotifyAlert(t monitor.ActiveTrade, kind monitor.AlertKind, details string) error {
	var errs []error
	for _, n := range f {
		errs = append(errs, n.NotifyAlert(t, kind, details))
	}
	return errors.Join(errs...)
}

// NotifyClose implements Notifier.
func (f Fanout) NotifyClose(t monitor.ActiveTrade, result monitor.Result) error {
	var errs []error
	for _, n := range f {
		errs = append(errs, n.NotifyClose(t, result))
	}
	return errors.Join(errs...)
}
