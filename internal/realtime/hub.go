package realtime

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
	"github.com/sirupsen/logrus"
)

const DefaultBuffer = 64

// Subscription receives the envelopes relevant to its topic. C is closed when
// the subscriber is dropped for falling behind or unsubscribed; a dropped
// subscriber must resubscribe and take a fresh snapshot.
type Subscription struct {
	Topic   Topic
	C       <-chan orders.Envelope
	ch      chan orders.Envelope
	once    sync.Once
	dropped bool
}

func (s *Subscription) close(dropped bool) {
	s.once.Do(func() {
		s.dropped = dropped
		close(s.ch)
	})
}

// Dropped reports whether the hub closed the subscription because its buffer
// was full. Only meaningful after C is closed.
func (s *Subscription) Dropped() bool { return s.dropped }

// Hub fans envelopes out to in-process subscribers. Delivery is at most once
// per subscription and never blocks the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
	buf  int
	log  logrus.FieldLogger
}

func NewHub(buf int, log logrus.FieldLogger) *Hub {
	if buf <= 0 {
		buf = DefaultBuffer
	}
	return &Hub{subs: map[*Subscription]struct{}{}, buf: buf, log: log}
}

func (h *Hub) Subscribe(t Topic) *Subscription {
	ch := make(chan orders.Envelope, h.buf)
	s := &Subscription{Topic: t, C: ch, ch: ch}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	s.close(false)
}

// Publish implements the coordinator's publisher for single-process setups
// and is the sink of the Kafka relay otherwise.
func (h *Hub) Publish(_ context.Context, evs ...orders.Envelope) error {
	var slow []*Subscription

	h.mu.RLock()
subs:
	for s := range h.subs {
		for _, e := range evs {
			if !s.Topic.Relevant(e) {
				continue
			}
			select {
			case s.ch <- e:
			default:
				slow = append(slow, s)
				continue subs
			}
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return nil
	}
	h.mu.Lock()
	for _, s := range slow {
		if _, ok := h.subs[s]; !ok {
			continue
		}
		delete(h.subs, s)
		s.close(true)
		h.log.WithField("topic", s.Topic.String()).Warn("realtime: dropped slow subscriber")
	}
	h.mu.Unlock()
	return nil
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close drops every subscriber, used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		s.close(false)
	}
}
