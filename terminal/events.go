package terminal

import (
	"sync"
	"time"

	"github.com/rustyeddy/levterm/journal"
	"github.com/rustyeddy/levterm/market"
	"github.com/rustyeddy/levterm/sim"
	"github.com/rustyeddy/levterm/strategies"
	"go.uber.org/zap"
)

type EventKind int

const (
	EventTick EventKind = iota
	EventTrade
	EventForcedExit
	EventSignal
	EventEquity
	EventStale
	EventRejected
)

func (k EventKind) String() string {
	switch k {
	case EventTick:
		return "tick"
	case EventTrade:
		return "trade"
	case EventForcedExit:
		return "forced_exit"
	case EventSignal:
		return "signal"
	case EventEquity:
		return "equity"
	case EventStale:
		return "stale"
	case EventRejected:
		return "rejected"
	}
	return "unknown"
}

// Event is published to subscribers. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind   EventKind
	Time   time.Time
	Symbol string

	Point  market.PricePoint
	Trade  journal.TradeRecord
	Exit   *sim.ExitEvent
	Signal strategies.Recommendation
	Equity journal.EquitySample
	Stale  bool
	Err    error
}

type hub struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	logger *zap.Logger
}

func newHub(logger *zap.Logger) *hub {
	return &hub{subs: make(map[int]chan Event), logger: logger}
}

func (h *hub) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	key := h.next
	h.next++
	h.subs[key] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[key]; ok {
			delete(h.subs, key)
			close(ch)
		}
	}
}

// publish never blocks; a full subscriber misses the event.
func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("subscriber full, event dropped",
				zap.Int("subscriber", key),
				zap.Stringer("kind", ev.Kind))
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, ch := range h.subs {
		delete(h.subs, key)
		close(ch)
	}
}
