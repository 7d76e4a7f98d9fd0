// Package notify fans textual events out to live subscribers.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/metrics"
)

// Subscriber receives broadcast text. A non-nil error from Send removes the
// subscriber from the hub.
type Subscriber interface {
	Send(ctx context.Context, text string) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, text string) error

// Send calls f(ctx, text).
func (f SubscriberFunc) Send(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Handle identifies a subscription. The zero Handle is never issued.
type Handle uint64

// Config controls delivery behavior for the Hub.
//   - SendTimeout: per-subscriber deadline for one delivery (default 5s).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	SendTimeout time.Duration
	Logger      *zap.Logger
}

const defaultSendTimeout = 5 * time.Second

type entry struct {
	handle Handle
	sub    Subscriber
}

// Hub keeps subscribers in subscription order. It is safe for concurrent use.
type Hub struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	entries []entry
	next    Handle
}

// NewHub returns an empty Hub.
func NewHub(cfg Config) *Hub {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{cfg: cfg, logger: logger}
}

// Subscribe registers sub after every existing subscriber.
func (h *Hub) Subscribe(sub Subscriber) Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.entries = append(h.entries, entry{handle: h.next, sub: sub})
	metrics.SetSubscribers(len(h.entries))
	return h.next
}

// Unsubscribe removes the subscription. Unknown or already removed handles
// are ignored.
func (h *Hub) Unsubscribe(handle Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(handle)
}

// Len reports the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Broadcast delivers text to every subscriber registered at call time, in
// subscription order, and returns the number of successful deliveries.
// Subscribers whose delivery fails are removed; the rest still receive text.
func (h *Hub) Broadcast(ctx context.Context, text string) int {
	h.mu.Lock()
	snapshot := append([]entry(nil), h.entries...)
	h.mu.Unlock()

	delivered := 0
	var failed []Handle
	for _, e := range snapshot {
		sendCtx, cancel := context.WithTimeout(ctx, h.cfg.SendTimeout)
		err := e.sub.Send(sendCtx, text)
		cancel()
		if err != nil {
			h.logger.Debug("dropping subscriber after failed delivery",
				zap.Uint64("handle", uint64(e.handle)),
				zap.Error(err),
			)
			failed = append(failed, e.handle)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, handle := range failed {
			h.removeLocked(handle)
		}
		h.mu.Unlock()
	}
	metrics.ObserveBroadcast(len(failed))
	return delivered
}

func (h *Hub) removeLocked(handle Handle) {
	for i, e := range h.entries {
		if e.handle == handle {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			metrics.SetSubscribers(len(h.entries))
			return
		}
	}
}
