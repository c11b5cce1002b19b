package session

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sujalmh/vector-loader-automation/internal/core/domain"
	"github.com/sujalmh/vector-loader-automation/internal/progress"
	"github.com/sujalmh/vector-loader-automation/internal/stream"
)

// NotificationType distinguishes per-entity updates from the end of a pass.
type NotificationType string

const (
	NotificationUpdate   NotificationType = "update"
	NotificationTerminal NotificationType = "terminal"
)

// Notification is what subscribers receive for every update and terminal
// event of a pass.
type Notification struct {
	Type   NotificationType `json:"type"`
	PassID string           `json:"pass_id"`

	// Entity is set for updates.
	Entity *domain.Entity `json:"entity,omitempty"`

	Summary          progress.Summary `json:"summary"`
	UpstreamProgress *float64         `json:"upstream_progress,omitempty"`

	// State and Error are set for terminal notifications.
	State stream.State `json:"state,omitempty"`
	Error string       `json:"error,omitempty"`

	// Missed counts the notifications this subscriber lost since its last
	// delivery. A non-zero value means its view is stale.
	Missed uint64 `json:"missed,omitempty"`
}

func updateNotification(u stream.Update) Notification {
	e := u.Entity.Clone()
	return Notification{
		Type:             NotificationUpdate,
		PassID:           u.PassID,
		Entity:           &e,
		Summary:          u.Summary,
		UpstreamProgress: u.UpstreamProgress,
	}
}

func terminalNotification(t stream.Terminal) Notification {
	return Notification{
		Type:    NotificationTerminal,
		PassID:  t.PassID,
		Summary: t.Summary,
		State:   t.State,
		Error:   t.ErrorMessage(),
	}
}

// Hub fans notifications out to subscribers. Publishing never blocks. A
// subscriber whose buffer is full misses updates, and the next notification
// it does receive carries the count in Missed. Terminal notifications are
// always delivered, evicting the oldest buffered update if needed.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	subs    map[chan Notification]*subscriber
	dropped atomic.Uint64
}

type subscriber struct {
	ch     chan Notification
	missed uint64
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[chan Notification]*subscriber),
	}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel; it is safe to call twice.
func (h *Hub) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Notification, buffer)

	h.mu.Lock()
	h.subs[ch] = &subscriber{ch: ch}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers n to every subscriber.
func (h *Hub) Publish(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if n.Type == NotificationTerminal {
			h.makeRoom(sub)
		}

		m := n
		m.Missed = sub.missed
		select {
		case sub.ch <- m:
			sub.missed = 0
		default:
			sub.missed++
			h.dropped.Add(1)
			h.logger.Debug("subscriber full, dropping notification",
				slog.String("pass_id", n.PassID),
				slog.String("type", string(n.Type)),
				slog.Uint64("missed", sub.missed))
		}
	}
}

// makeRoom frees one slot in a full subscriber buffer by discarding the
// oldest notification. Publish is the only sender and holds h.mu, so the
// slot stays free until it sends.
func (h *Hub) makeRoom(sub *subscriber) {
	if len(sub.ch) < cap(sub.ch) {
		return
	}
	select {
	case <-sub.ch:
		sub.missed++
		h.dropped.Add(1)
	default:
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many notifications were not delivered.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
