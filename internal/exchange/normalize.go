package exchange

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"alphabot-go/internal/signal"
)

// ErrMalformed marks stream messages that cannot be normalized.
var ErrMalformed = errors.New("malformed stream message")

// errIgnored marks well-formed control messages (subscription acks and the like).
var errIgnored = errors.New("ignored stream message")

// normalizer turns either message shape into a NormalizedEvent.
// soleSymbol is used for raw partial-depth payloads, which carry no symbol.
type normalizer struct {
	soleSymbol string
	maxLevels  int
}

func newNormalizer(symbols []string, maxLevels int) normalizer {
	n := normalizer{maxLevels: maxLevels}
	if len(symbols) == 1 {
		n.soleSymbol = symbols[0]
	}
	return n
}

// Normalize accepts the combined `{stream, data}` wrapper or a raw single-stream event.
func (n normalizer) Normalize(raw []byte, received time.Time) (signal.NormalizedEvent, error) {
	if !gjson.ValidBytes(raw) {
		return signal.NormalizedEvent{}, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return signal.NormalizedEvent{}, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	if root.Get("result").Exists() && root.Get("id").Exists() {
		return signal.NormalizedEvent{}, errIgnored
	}

	if stream := root.Get("stream"); stream.Exists() {
		data := root.Get("data")
		if !data.IsObject() {
			return signal.NormalizedEvent{}, fmt.Errorf("%w: wrapper without data", ErrMalformed)
		}
		symbol, channel := splitStream(stream.String())
		switch {
		case channel == "trade" || channel == "aggTrade":
			return n.trade(data, symbol, received)
		case strings.HasPrefix(channel, "depth"):
			return n.book(data, symbol, received)
		default:
			return signal.NormalizedEvent{}, fmt.Errorf("%w: unsupported stream %q", ErrMalformed, stream.String())
		}
	}

	switch kind := root.Get("e").String(); kind {
	case "trade", "aggTrade":
		return n.trade(root, "", received)
	case "depthUpdate":
		return n.book(root, "", received)
	case "":
		if root.Get("lastUpdateId").Exists() {
			return n.book(root, n.soleSymbol, received)
		}
		return signal.NormalizedEvent{}, fmt.Errorf("%w: missing event type", ErrMalformed)
	default:
		return signal.NormalizedEvent{}, fmt.Errorf("%w: unsupported event %q", ErrMalformed, kind)
	}
}

func (n normalizer) trade(data gjson.Result, symbol string, received time.Time) (signal.NormalizedEvent, error) {
	if s := data.Get("s").String(); s != "" {
		symbol = s
	}
	symbol = strings.ToUpper(symbol)
	if symbol == "" {
		return signal.NormalizedEvent{}, fmt.Errorf("%w: trade without symbol", ErrMalformed)
	}
	px, err := positiveFloat(data.Get("p"))
	if err != nil {
		return signal.NormalizedEvent{}, fmt.Errorf("%w: price: %v", ErrMalformed, err)
	}
	qty, err := positiveFloat(data.Get("q"))
	if err != nil {
		return signal.NormalizedEvent{}, fmt.Errorf("%w: quantity: %v", ErrMalformed, err)
	}
	if !data.Get("m").Exists() {
		return signal.NormalizedEvent{}, fmt.Errorf("%w: trade without maker flag", ErrMalformed)
	}
	tick := signal.Tick{
		Symbol: symbol,
		Price:  px,
		Size:   qty,
		Side:   signal.AggressorFromMaker(data.Get("m").Bool()),
		Ts:     eventTime(data, received, "T", "E"),
	}
	return signal.NormalizedEvent{Symbol: symbol, Kind: signal.EventTrade, Trade: tick, Received: received}, nil
}

func (n normalizer) book(data gjson.Result, symbol string, received time.Time) (signal.NormalizedEvent, error) {
	if s := data.Get("s").String(); s != "" {
		symbol = s
	}
	symbol = strings.ToUpper(symbol)
	if symbol == "" {
		return signal.NormalizedEvent{}, fmt.Errorf("%w: depth without symbol", ErrMalformed)
	}
	bids, err := n.levels(first(data, "bids", "b"))
	if err != nil {
		return signal.NormalizedEvent{}, fmt.Errorf("%w: bids: %v", ErrMalformed, err)
	}
	asks, err := n.levels(first(data, "asks", "a"))
	if err != nil {
		return signal.NormalizedEvent{}, fmt.Errorf("%w: asks: %v", ErrMalformed, err)
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	bids = truncate(bids, n.maxLevels)
	asks = truncate(asks, n.maxLevels)

	book := &signal.BookSnapshot{
		Symbol:   symbol,
		Bids:     bids,
		Asks:     asks,
		UpdateID: first(data, "lastUpdateId", "u").Int(),
		Ts:       eventTime(data, received, "E", "T"),
	}
	return signal.NormalizedEvent{Symbol: symbol, Kind: signal.EventBook, Book: book, Received: received}, nil
}

// levels parses [["price","qty"], ...], skipping zero-quantity removals.
func (n normalizer) levels(arr gjson.Result) ([]signal.Level, error) {
	if !arr.Exists() {
		return nil, nil
	}
	if !arr.IsArray() {
		return nil, errors.New("levels not an array")
	}
	rows := arr.Array()
	out := make([]signal.Level, 0, len(rows))
	for _, row := range rows {
		pair := row.Array()
		if len(pair) < 2 {
			return nil, errors.New("level needs price and quantity")
		}
		px, err := strconv.ParseFloat(pair[0].String(), 64)
		if err != nil || !finite(px) || px <= 0 {
			return nil, fmt.Errorf("bad level price %q", pair[0].String())
		}
		qty, err := strconv.ParseFloat(pair[1].String(), 64)
		if err != nil || !finite(qty) || qty < 0 {
			return nil, fmt.Errorf("bad level quantity %q", pair[1].String())
		}
		if qty == 0 {
			continue
		}
		out = append(out, signal.Level{Price: px, Qty: qty})
	}
	return out, nil
}

func splitStream(stream string) (symbol, channel string) {
	parts := strings.SplitN(stream, "@", 2)
	symbol = strings.ToUpper(parts[0])
	if len(parts) == 2 {
		channel = parts[1]
	}
	return symbol, channel
}

func first(data gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := data.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func eventTime(data gjson.Result, fallback time.Time, keys ...string) time.Time {
	if v := first(data, keys...); v.Exists() && v.Int() > 0 {
		return time.UnixMilli(v.Int())
	}
	return fallback
}

func positiveFloat(v gjson.Result) (float64, error) {
	if !v.Exists() {
		return 0, errors.New("missing")
	}
	f, err := strconv.ParseFloat(v.String(), 64)
	if err != nil {
		return 0, err
	}
	if !finite(f) {
		return 0, fmt.Errorf("non-finite %v", f)
	}
	if f <= 0 {
		return 0, fmt.Errorf("non-positive %v", f)
	}
	return f, nil
}

// finite rejects the NaN and Inf spellings strconv accepts.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func truncate(levels []signal.Level, n int) []signal.Level {
	if n > 0 && len(levels) > n {
		return levels[:n]
	}
	return levels
}
