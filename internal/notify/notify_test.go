package notify

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"alphabot-go/internal/monitor"
	"alphabot-go/internal/signal"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	s := signal.Scored{
		Candidate: signal.Candidate{Asset: "BTC", Kind: signal.KindGammaSqueeze, Direction: signal.Long},
		Total:     91.2,
		Tier:      signal.TierStrongTake,
	}
	if err := n.NotifySignal(s, 0.5); err != nil {
		t.Fatalf("NotifySignal returned error: %v", err)
	}
	trade := monitor.ActiveTrade{ID: "abc", Asset: "BTC", Status: monitor.StatusBreakeven}
	if err := n.NotifyAlert(trade, monitor.AlertBreakeven, "stop moved to entry"); err != nil {
		t.Fatalf("NotifyAlert returned error: %v", err)
	}
	if err := n.NotifyClose(trade, monitor.ResultWin); err != nil {
		t.Fatalf("NotifyClose returned error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"gamma_squeeze", "exceptional", "breakeven_set", "stop moved to entry", "WIN"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log does not contain %q: %s", want, out)
		}
	}
}

type failing struct{ *LogNotifier }

func (failing) NotifySignal(signal.Scored, float64) error { return errors.New("sink down") }

func TestFanoutJoinsErrors(t *testing.T) {
	f := Fanout{NewLogNotifier(zerolog.Nop()), failing{NewLogNotifier(zerolog.Nop())}}
	if err := f.NotifySignal(signal.Scored{}, 1); err == nil || !strings.Contains(err.Error(), "sink down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if err := f.NotifyClose(monitor.ActiveTrade{}, monitor.ResultLoss); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
