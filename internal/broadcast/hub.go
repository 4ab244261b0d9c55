package broadcast

import (
	"bitwise74/pulsestream/internal/metrics"
	"context"
	"sync"

	"go.uber.org/zap"
)

const defaultBuffer = 16

// Hub is an in-process Broadcaster
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	buffer int
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	return &Hub{
		subs:   make(map[string]map[chan Event]struct{}),
		buffer: buffer,
	}
}

func (h *Hub) Publish(_ context.Context, ownerID string, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrClosed
	}

	for ch := range h.subs[Channel(ownerID)] {
		select {
		case ch <- ev:
			metrics.BroadcastEventsTotal.WithLabelValues("delivered").Inc()
		default:
			// Slow reader, the event is lost for this connection
			metrics.BroadcastEventsTotal.WithLabelValues("dropped").Inc()
			zap.L().Warn("Dropped progress event for slow subscriber",
				zap.String("video_id", ev.VideoID),
				zap.String("channel", Channel(ownerID)))
		}
	}

	return nil
}

func (h *Hub) Subscribe(_ context.Context, ownerID string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	name := Channel(ownerID)
	ch := make(chan Event, h.buffer)

	if h.subs[name] == nil {
		h.subs[name] = make(map[chan Event]struct{})
	}
	h.subs[name][ch] = struct{}{}

	var once sync.Once
	return &Subscription{
		C: ch,
		close: func() {
			once.Do(func() { h.unsubscribe(name, ch) })
		},
	}, nil
}

func (h *Hub) unsubscribe(name string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[name]
	if !ok {
		return
	}

	if _, ok := set[ch]; !ok {
		return
	}

	delete(set, ch)
	close(ch)

	if len(set) == 0 {
		delete(h.subs, name)
	}
}

// Subscribers returns how many connections joined ownerID's channel
func (h *Hub) Subscribers(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs[Channel(ownerID)])
}

// Close ends every subscription
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for name, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, name)
	}

	return nil
}
