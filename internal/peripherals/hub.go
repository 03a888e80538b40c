// Package peripherals fans peripheral connect/disconnect notifications out to
// subscribers.
package peripherals

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Status of a peripheral notification.
type Status string

const (
	StatusConnected    Status = "Connected"
	StatusDisconnected Status = "Disconnected"
)

// Peripheral types reported by the codec.
const (
	TypeTouchPanel = "TouchPanel"
	TypeMicrophone = "AudioMicrophone"
)

// Event is one connect or disconnect notification.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Serial     string    `json:"serial"`
	Status     Status    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

// DefaultBuffer is the per-subscriber channel size.
const DefaultBuffer = 64

// Hub delivers every published event to every current subscriber.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	buffer int
	logger *zerolog.Logger
}

// NewHub creates a Hub. buffer <= 0 uses DefaultBuffer.
func NewHub(buffer int, logger *zerolog.Logger) *Hub {
	if logger == nil {
		logger = &log.Logger
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	componentLogger := logger.With().Str("component", "peripherals").Logger()
	return &Hub{
		subs:   make(map[int]chan Event),
		buffer: buffer,
		logger: &componentLogger,
	}
}

// Subscribe returns a channel of events and a function that removes the
// subscription and closes the channel. Calling unsubscribe twice is safe.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.buffer)
	h.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
	return ch, unsubscribe
}

// Publish delivers ev without blocking. A subscriber whose buffer is full
// misses the event.
func (h *Hub) Publish(ev Event) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Warn().Int("subscriber", id).Str("peripheral", ev.ID).Msg("subscriber buffer full, event dropped")
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
