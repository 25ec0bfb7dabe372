// Package gate answers the time-of-day and news questions the signal loop asks before accepting a signal.
package gate

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"alphabot-go/internal/config"
)

// Session qualities.
const (
	QualityExcellent = "excellent"
	QualityModerate  = "moderate"
	QualityAvoid     = "avoid"
)

// moderateMinScore is the floor in moderate sessions without their own min_score.
const moderateMinScore = 90

// News statuses, ordered by severity.
const (
	StatusClear      = "clear"
	StatusCaution    = "caution"
	StatusHighImpact = "high_impact"
	StatusBlocked    = "blocked"
)

var severity = map[string]int{
	StatusClear:      0,
	StatusCaution:    1,
	StatusHighImpact: 2,
	StatusBlocked:    3,
}

// Session is the resolved trading window at a point in time.
type Session struct {
	Name       string
	Quality    string
	Multiplier float64
	MinScore   float64
}

type window struct {
	Session
	start, end int // minutes since UTC midnight
}

func (w window) contains(minute int) bool {
	if w.start <= w.end {
		return minute >= w.start && minute < w.end
	}
	// wraps midnight
	return minute >= w.start || minute < w.end
}

// Sessions resolves UTC session windows to quality multipliers.
type Sessions struct {
	windows  []window
	fallback Session
	log      zerolog.Logger
	now      func() time.Time

	mu   sync.Mutex
	last string
}

// NewSessions parses the configured windows. Clock values must already be valid.
func NewSessions(cfg config.Gates, log zerolog.Logger, now func() time.Time) (*Sessions, error) {
	if now == nil {
		now = time.Now
	}
	s := &Sessions{
		fallback: Session{Name: "regular", Quality: cfg.DefaultQuality, Multiplier: cfg.DefaultMultiplier},
		log:      log.With().Str("component", "sessions").Logger(),
		now:      now,
	}
	for _, sc := range cfg.Sessions {
		sh, sm, err := config.ParseClock(sc.StartUTC)
		if err != nil {
			return nil, fmt.Errorf("session %s start: %w", sc.Name, err)
		}
		eh, em, err := config.ParseClock(sc.EndUTC)
		if err != nil {
			return nil, fmt.Errorf("session %s end: %w", sc.Name, err)
		}
		s.windows = append(s.windows, window{
			Session: Session{Name: sc.Name, Quality: strings.ToLower(sc.Quality), Multiplier: sc.Multiplier, MinScore: sc.MinScore},
			start:   sh*60 + sm,
			end:     eh*60 + em,
		})
	}
	return s, nil
}

// Current returns the first configured window containing now, or the default session.
func (s *Sessions) Current() Session {
	now := s.now().UTC()
	minute := now.Hour()*60 + now.Minute()
	cur := s.fallback
	for _, w := range s.windows {
		if w.contains(minute) {
			cur = w.Session
			break
		}
	}
	s.mu.Lock()
	if cur.Name != s.last {
		s.log.Info().Str("session", cur.Name).Str("quality", cur.Quality).Msg("session changed")
		s.last = cur.Name
	}
	s.mu.Unlock()
	return cur
}

// ShouldProcess decides whether a signal with score may be processed now.
func (s *Sessions) ShouldProcess(asset string, score float64) (bool, string) {
	cur := s.Current()
	switch cur.Quality {
	case QualityExcellent:
		return true, "excellent time: " + cur.Name
	case QualityAvoid:
		return false, "avoid window: " + cur.Name
	default:
		floor := cur.MinScore
		if floor <= 0 {
			floor = moderateMinScore
		}
		if score >= floor {
			return true, fmt.Sprintf("moderate time, score %.1f >= %.0f", score, floor)
		}
		return false, fmt.Sprintf("moderate time, score %.1f < %.0f", score, floor)
	}
}

// Quality returns the current time-quality multiplier.
func (s *Sessions) Quality(asset string) float64 {
	return s.Current().Multiplier
}

// NewsWindows maps configured blackout windows to a news status.
type NewsWindows struct {
	windows        []config.NewsWindow
	fundingCaution bool
	now            func() time.Time
}

// NewNewsWindows builds the news gate.
func NewNewsWindows(cfg config.Gates, now func() time.Time) *NewsWindows {
	if now == nil {
		now = time.Now
	}
	return &NewsWindows{windows: cfg.NewsWindows, fundingCaution: cfg.FundingResetCaution, now: now}
}

// CheckTradingAllowed returns the most severe active status for asset. Only
// blocked disallows trading; other statuses scale the score.
func (n *NewsWindows) CheckTradingAllowed(asset string) (bool, string) {
	now := n.now().UTC()
	status := StatusClear
	for _, w := range n.windows {
		if now.Before(w.Start) || !now.Before(w.End) || !covers(w.Assets, asset) {
			continue
		}
		st := strings.ToLower(w.Status)
		if _, ok := severity[st]; !ok {
			st = StatusCaution
		}
		if severity[st] > severity[status] {
			status = st
		}
	}
	if n.fundingCaution && status == StatusClear && (now.Minute() >= 55 || now.Minute() <= 5) {
		status = StatusCaution
	}
	return status != StatusBlocked, status
}

// Active lists windows covering now for asset.
func (n *NewsWindows) Active(asset string) []config.NewsWindow {
	now := n.now().UTC()
	var out []config.NewsWindow
	for _, w := range n.windows {
		if !now.Before(w.Start) && now.Before(w.End) && covers(w.Assets, asset) {
			out = append(out, w)
		}
	}
	return out
}

func covers(assets []string, asset string) bool {
	if len(assets) == 0 {
		return true
	}
	for _, a := range assets {
		if strings.EqualFold(a, asset) {
			return true
		}
	}
	return false
}
