package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rustyeddy/levterm/internal/logging"
	"github.com/rustyeddy/levterm/market"
	"go.uber.org/zap"
)

// DefaultStreamURL is the public Binance spot websocket endpoint.
const DefaultStreamURL = "wss://stream.binance.com:9443/ws"

// Stream subscribes to a kline websocket and hands every normalized
// point to a callback. It reconnects with capped exponential backoff
// until the context is done.
type Stream struct {
	baseURL    string
	dialer     *websocket.Dialer
	logger     *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
	now        func() time.Time
	after      func(time.Duration) <-chan time.Time
}

// NewStream creates a stream client for baseURL (DefaultStreamURL when
// empty).
func NewStream(baseURL string, logger *zap.Logger) *Stream {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	return &Stream{
		baseURL:    strings.TrimRight(baseURL, "/"),
		dialer:     &websocket.Dialer{HandshakeTimeout: DefaultTimeout},
		logger:     logging.OrNop(logger).With(zap.String("component", "stream")),
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		now:        time.Now,
		after:      time.After,
	}
}

// URL returns the subscription URL for symbol and tf.
func (s *Stream) URL(symbol string, tf market.Timeframe) string {
	return fmt.Sprintf("%s/%s@kline_%s", s.baseURL, strings.ToLower(market.NormalizeSymbol(symbol)), tf)
}

// Run blocks until ctx is done, delivering points to fn.
func (s *Stream) Run(ctx context.Context, symbol string, tf market.Timeframe, fn func(market.PricePoint)) error {
	url := s.URL(symbol, tf)
	backoff := s.minBackoff

	for {
		connected, err := s.runOnce(ctx, url, fn)
		if ctx.Err() != nil {
			return nil
		}
		// A session that connected starts over at minBackoff.
		if connected {
			backoff = s.minBackoff
		}
		s.logger.Warn("stream disconnected",
			zap.String("url", url),
			zap.Duration("retry_in", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-s.after(backoff):
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
}

// runOnce serves one connection. connected reports whether the dial
// succeeded.
func (s *Stream) runOnce(ctx context.Context, url string, fn func(market.PricePoint)) (connected bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("stream dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	s.logger.Info("stream connected", zap.String("url", url))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("stream read: %w", err)
		}
		p, err := market.Normalize(market.SourceStreamKline, msg, s.now())
		if err != nil {
			s.logger.Debug("stream message skipped", zap.Error(err))
			continue
		}
		fn(p)
	}
}
