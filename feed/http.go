package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/levterm/market"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public Binance spot REST endpoint.
	DefaultBaseURL = "https://api.binance.com"
	// DefaultTimeout bounds every upstream request.
	DefaultTimeout = 5 * time.Second
)

// HTTP fetches klines and ticker quotes from a Binance compatible REST
// API. Requests are rate limited and time out after the configured
// timeout.
type HTTP struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewHTTP creates a REST source. rps <= 0 disables rate limiting.
func NewHTTP(baseURL string, timeout time.Duration, rps float64) *HTTP {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
	return &HTTP{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    lim,
		now:        time.Now,
	}
}

// FetchSeries downloads up to limit klines, oldest first.
func (h *HTTP) FetchSeries(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.PricePoint, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := url.Values{}
	q.Set("symbol", market.NormalizeSymbol(symbol))
	q.Set("interval", tf.String())
	q.Set("limit", strconv.Itoa(limit))

	body, err := h.get(ctx, "/api/v3/klines", q)
	if err != nil {
		return nil, fmt.Errorf("fetch series %s: %w", symbol, err)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("fetch series %s: decode: %w", symbol, err)
	}

	now := h.now()
	out := make([]market.PricePoint, 0, len(rows))
	for _, row := range rows {
		p, err := market.Normalize(market.SourceKline, row, now)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("fetch series %s: %w", symbol, market.ErrNoPrice)
	}
	return out, nil
}

// FetchLatest reads the last trade price. The quote carries no OHLC so
// the point has open == high == low == close.
func (h *HTTP) FetchLatest(ctx context.Context, symbol string, tf market.Timeframe) (market.PricePoint, error) {
	q := url.Values{}
	q.Set("symbol", market.NormalizeSymbol(symbol))

	body, err := h.get(ctx, "/api/v3/ticker/price", q)
	if err != nil {
		return market.PricePoint{}, fmt.Errorf("fetch latest %s: %w", symbol, err)
	}
	p, err := market.Normalize(market.SourceQuote, body, h.now())
	if err != nil {
		return market.PricePoint{}, fmt.Errorf("fetch latest %s: %w", symbol, err)
	}
	p.Time = tf.Floor(p.Time)
	return p, nil
}

func (h *HTTP) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(h.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
}
