package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"alphabot-go/internal/config"
)

var (
	// ErrRateLimited is returned once every retry attempt hit the venue rate limit.
	ErrRateLimited = errors.New("rate limited")
	// ErrNoQuote is returned when the venue answers without a usable price.
	ErrNoQuote = errors.New("no quote")
)

// Binance request-weight and IP-ban codes.
const (
	codeTooManyRequests = -1003
	codeTooManyOrders   = -1015
)

// Funding is the perpetual premium index view of one symbol.
type Funding struct {
	Symbol      string
	FundingRate float64
	MarkPrice   float64
	IndexPrice  float64
	Basis       float64 // (mark - index) / index
	NextFunding time.Time
}

// RESTClient answers price and funding queries with a shared rate limit and bounded retry.
type RESTClient struct {
	spot        *binance.Client
	perp        *futures.Client
	limiter     *rate.Limiter
	maxAttempts int
	retryBase   time.Duration
	timeout     time.Duration
	symbols     map[string]string
	log         zerolog.Logger
}

// RESTOption configures the client.
type RESTOption func(*RESTClient)

// WithAssetSymbols maps asset names (BTC) to venue symbols (BTCUSDT).
func WithAssetSymbols(m map[string]string) RESTOption {
	return func(c *RESTClient) {
		for k, v := range m {
			c.symbols[strings.ToUpper(k)] = strings.ToUpper(v)
		}
	}
}

// WithRateLimit sets requests per second and burst.
func WithRateLimit(rps float64, burst int) RESTOption {
	return func(c *RESTClient) {
		if rps > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithRetry bounds rate-limit retries.
func WithRetry(maxAttempts int, base time.Duration) RESTOption {
	return func(c *RESTClient) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if base > 0 {
			c.retryBase = base
		}
	}
}

// WithRequestTimeout bounds each request.
func WithRequestTimeout(d time.Duration) RESTOption {
	return func(c *RESTClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBaseURLs points the spot and futures clients elsewhere (tests, testnet).
func WithBaseURLs(spotURL, futuresURL string) RESTOption {
	return func(c *RESTClient) {
		if spotURL != "" {
			c.spot.BaseURL = spotURL
		}
		if futuresURL != "" {
			c.perp.BaseURL = futuresURL
		}
	}
}

// WithHTTPClient replaces the transport of both clients.
func WithHTTPClient(hc *http.Client) RESTOption {
	return func(c *RESTClient) {
		if hc != nil {
			c.spot.HTTPClient = hc
			c.perp.HTTPClient = hc
		}
	}
}

// NewRESTClient builds a client. Public endpoints work with empty credentials.
func NewRESTClient(creds config.Credentials, log zerolog.Logger, opts ...RESTOption) *RESTClient {
	c := &RESTClient{
		spot:        binance.NewClient(creds.APIKey, creds.APISecret),
		perp:        binance.NewFuturesClient(creds.APIKey, creds.APISecret),
		limiter:     rate.NewLimiter(rate.Limit(5), 2),
		maxAttempts: 3,
		retryBase:   time.Second,
		timeout:     3 * time.Second,
		symbols:     make(map[string]string),
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Symbol resolves an asset name to its venue symbol.
func (c *RESTClient) Symbol(asset string) string {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if sym, ok := c.symbols[asset]; ok {
		return sym
	}
	if strings.HasSuffix(asset, "USDT") {
		return asset
	}
	return asset + "USDT"
}

// GetCurrentPrice returns the latest spot price for asset.
func (c *RESTClient) GetCurrentPrice(ctx context.Context, asset string) (float64, error) {
	symbol := c.Symbol(asset)
	var price float64
	err := c.call(ctx, "price "+symbol, func(ctx context.Context) error {
		prices, err := c.spot.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		for _, p := range prices {
			if !strings.EqualFold(p.Symbol, symbol) {
				continue
			}
			v, err := strconv.ParseFloat(p.Price, 64)
			if err != nil || v <= 0 {
				return fmt.Errorf("%w: %s price %q", ErrNoQuote, symbol, p.Price)
			}
			price = v
			return nil
		}
		return fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	})
	return price, err
}

// Funding returns the perpetual funding rate and basis for asset.
func (c *RESTClient) Funding(ctx context.Context, asset string) (Funding, error) {
	symbol := c.Symbol(asset)
	var out Funding
	err := c.call(ctx, "premium index "+symbol, func(ctx context.Context) error {
		rows, err := c.perp.NewPremiumIndexService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if !strings.EqualFold(r.Symbol, symbol) {
				continue
			}
			mark, _ := strconv.ParseFloat(r.MarkPrice, 64)
			index, _ := strconv.ParseFloat(r.IndexPrice, 64)
			fr, err := strconv.ParseFloat(r.LastFundingRate, 64)
			if err != nil {
				return fmt.Errorf("%w: %s funding %q", ErrNoQuote, symbol, r.LastFundingRate)
			}
			out = Funding{Symbol: symbol, FundingRate: fr, MarkPrice: mark, IndexPrice: index}
			if index > 0 {
				out.Basis = (mark - index) / index
			}
			if r.NextFundingTime > 0 {
				out.NextFunding = time.UnixMilli(r.NextFundingTime)
			}
			return nil
		}
		return fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	})
	return out, err
}

// call runs fn under the limiter, retrying rate-limit responses with doubling waits.
func (c *RESTClient) call(ctx context.Context, op string, fn func(context.Context) error) error {
	wait := c.retryBase
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if werr := c.limiter.Wait(ctx); werr != nil {
			return fmt.Errorf("%s: %w", op, werr)
		}
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err = fn(reqCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !isRateLimited(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if attempt == c.maxAttempts {
			break
		}
		c.log.Warn().Str("op", op).Int("attempt", attempt).Dur("retry_in", wait).Msg("rate limited, backing off")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		wait *= 2
	}
	return fmt.Errorf("%s: %w after %d attempts: %v", op, ErrRateLimited, c.maxAttempts, err)
}

func isRateLimited(err error) bool {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == codeTooManyRequests || apiErr.Code == codeTooManyOrders
	}
	return false
}
