package event

import (
	"sync"

	"go.uber.org/zap"

	"pqcall/internal/domain"
)

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event, and the miss is counted and logged
// rather than stalling a call flow.
type Bus struct {
	log *zap.Logger

	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

type subscriber struct {
	ch      chan domain.Event
	dropped int
}

// NewBus constructs an empty bus. A nil logger is replaced with a nop logger.
func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log, subs: make(map[int]*subscriber)}
}

// Subscribe registers a new consumer with the given buffer size and returns
// its channel plus a cancel function. The channel is closed on cancel or bus
// close.
func (b *Bus) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan domain.Event)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan domain.Event, buffer)}
	b.subs[id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
			b.log.Warn("event dropped: slow subscriber",
				zap.String("event", ev.EventName()),
				zap.Int("dropped_total", sub.dropped))
		}
	}
}

// Close shuts the bus down and closes all subscriber channels. Publish after
// Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Discard drops every event. Components accept it as a default sink.
var Discard domain.EventSink = discard{}

type discard struct{}

func (discard) Publish(domain.Event) {}

// Compile-time assertion that Bus satisfies the sink contract.
var _ domain.EventSink = (*Bus)(nil)
