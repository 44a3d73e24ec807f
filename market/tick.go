package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNoPrice is returned when an upstream record has no usable price.
var ErrNoPrice = errors.New("market: no usable price in upstream record")

// Source identifies the shape of an upstream record.
type Source int

const (
	// SourceKline is a REST candle array:
	// [openTimeMs, "open", "high", "low", "close", "volume", ...]
	SourceKline Source = iota
	// SourceStreamKline is a websocket kline event: {"e":"kline","k":{...}}
	SourceStreamKline
	// SourceQuote is a single quote object carrying one trade price.
	SourceQuote
)

func (s Source) String() string {
	switch s {
	case SourceKline:
		return "kline"
	case SourceStreamKline:
		return "stream-kline"
	case SourceQuote:
		return "quote"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// quote fields, in order of preference
var (
	quotePriceKeys = []string{"c", "price", "lastPrice", "p"}
	quoteTimeKeys  = []string{"t", "time", "E", "T"}
)

// Normalize converts one raw upstream record into a PricePoint with Time
// in unix seconds. now is used when the record carries no timestamp.
func Normalize(src Source, raw []byte, now time.Time) (PricePoint, error) {
	var (
		p   PricePoint
		err error
	)
	switch src {
	case SourceKline:
		p, err = normalizeKline(raw)
	case SourceStreamKline:
		p, err = normalizeStreamKline(raw)
	case SourceQuote:
		p, err = normalizeQuote(raw, now)
	default:
		return PricePoint{}, fmt.Errorf("normalize: unknown source %s", src)
	}
	if err != nil {
		return PricePoint{}, err
	}
	if err := p.Validate(); err != nil {
		return PricePoint{}, fmt.Errorf("normalize %s: %w: %v", src, ErrNoPrice, err)
	}
	return p, nil
}

func normalizeKline(raw []byte) (PricePoint, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return PricePoint{}, fmt.Errorf("normalize kline: %w", err)
	}
	if len(arr) < 5 {
		return PricePoint{}, fmt.Errorf("normalize kline: %w: %d fields", ErrNoPrice, len(arr))
	}
	ts, ok := number(arr[0])
	if !ok {
		return PricePoint{}, fmt.Errorf("normalize kline: bad open time %s", arr[0])
	}
	p := PricePoint{Time: toSeconds(ts)}
	var okO, okH, okL, okC bool
	p.Open, okO = number(arr[1])
	p.High, okH = number(arr[2])
	p.Low, okL = number(arr[3])
	p.Close, okC = number(arr[4])
	if !okC {
		return PricePoint{}, fmt.Errorf("normalize kline: %w", ErrNoPrice)
	}
	fillMissing(&p, okO, okH, okL)
	if len(arr) > 5 {
		p.Volume, _ = number(arr[5])
	}
	return p, nil
}

type streamKline struct {
	Event string `json:"e"`
	K     *struct {
		Start  json.RawMessage `json:"t"`
		Open   json.RawMessage `json:"o"`
		High   json.RawMessage `json:"h"`
		Low    json.RawMessage `json:"l"`
		Close  json.RawMessage `json:"c"`
		Volume json.RawMessage `json:"v"`
	} `json:"k"`
}

func normalizeStreamKline(raw []byte) (PricePoint, error) {
	var msg streamKline
	if err := json.Unmarshal(raw, &msg); err != nil {
		return PricePoint{}, fmt.Errorf("normalize stream kline: %w", err)
	}
	if msg.K == nil {
		return PricePoint{}, fmt.Errorf("normalize stream kline: %w: missing k", ErrNoPrice)
	}
	ts, ok := number(msg.K.Start)
	if !ok {
		return PricePoint{}, fmt.Errorf("normalize stream kline: bad start time %s", msg.K.Start)
	}
	p := PricePoint{Time: toSeconds(ts)}
	var okO, okH, okL, okC bool
	p.Open, okO = number(msg.K.Open)
	p.High, okH = number(msg.K.High)
	p.Low, okL = number(msg.K.Low)
	p.Close, okC = number(msg.K.Close)
	if !okC {
		return PricePoint{}, fmt.Errorf("normalize stream kline: %w", ErrNoPrice)
	}
	fillMissing(&p, okO, okH, okL)
	p.Volume, _ = number(msg.K.Volume)
	return p, nil
}

func normalizeQuote(raw []byte, now time.Time) (PricePoint, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return PricePoint{}, fmt.Errorf("normalize quote: %w", err)
	}

	price, found := 0.0, false
	for _, k := range quotePriceKeys {
		if v, ok := obj[k]; ok {
			if price, found = number(v); found && price > 0 {
				break
			}
		}
	}
	if !found || price <= 0 {
		return PricePoint{}, fmt.Errorf("normalize quote: %w", ErrNoPrice)
	}

	ts := now.Unix()
	for _, k := range quoteTimeKeys {
		if v, ok := obj[k]; ok {
			if x, ok := number(v); ok && x > 0 {
				ts = toSeconds(x)
				break
			}
		}
	}
	return Quote(ts, price), nil
}

// fillMissing approximates absent open/high/low with close.
func fillMissing(p *PricePoint, okO, okH, okL bool) {
	if !okO {
		p.Open = p.Close
	}
	if !okH {
		p.High = max(p.Open, p.Close)
	}
	if !okL {
		p.Low = min(p.Open, p.Close)
	}
}

// number decodes a JSON number or a JSON string holding a number.
func number(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// toSeconds floors a timestamp to unix seconds. Values past 1e11 are
// taken to be milliseconds.
func toSeconds(ts float64) int64 {
	if ts > 1e11 {
		return int64(ts) / 1000
	}
	return int64(ts)
}
