package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"alphabot-go/internal/metrics"
)

// StreamURL builds the combined stream URL for the subscribed symbols.
func (in *Ingestor) StreamURL() string {
	symbols := in.Symbols()
	streams := make([]string, 0, len(symbols)*2)
	for _, sym := range symbols {
		lower := strings.ToLower(sym)
		streams = append(streams,
			lower+"@trade",
			fmt.Sprintf("%s@depth%d@%dms", lower, in.depthLevels, in.depthSpeed.Milliseconds()),
		)
	}
	return fmt.Sprintf("%s/stream?streams=%s", in.baseURL, strings.Join(streams, "/"))
}

func (in *Ingestor) runBinance(ctx context.Context) error {
	symbols := in.Symbols()
	if len(symbols) == 0 {
		return ErrNoSymbols
	}
	url := in.StreamURL()
	norm := newNormalizer(symbols, in.depthLevels)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := in.consumeBinanceStream(ctx, url, norm)
		metrics.Connected.Set(0)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := in.backoff.Next()
		metrics.Reconnects.Inc()
		in.log.Warn().Err(err).Dur("retry_in", wait).Msg("binance stream disconnected, retrying")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (in *Ingestor) consumeBinanceStream(ctx context.Context, url string, norm normalizer) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	in.backoff.Reset()
	metrics.Connected.Set(1)
	if in.onConnect != nil {
		in.onConnect()
	}
	in.log.Info().Str("provider", ProviderBinance).Strs("symbols", in.Symbols()).Msg("connected market data stream")

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(in.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(in.readTimeout))
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(in.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					in.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	// unblock ReadMessage on cancellation
	go func() {
		<-pingCtx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(in.readTimeout))

		ev, err := norm.Normalize(message, time.Now())
		if err != nil {
			if errors.Is(err, errIgnored) {
				continue
			}
			metrics.MalformedMessages.Inc()
			in.log.Warn().Err(err).Int("bytes", len(message)).Msg("dropping stream message")
			continue
		}
		in.dispatch(ev)
	}
}
