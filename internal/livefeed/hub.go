// Package livefeed fans committed page records out to live subscribers.
//
// Delivery is latest-value-wins: a slow subscriber never blocks a publisher
// and only ever sees the newest payload it has not consumed yet.
package livefeed

import (
	"context"
	"fmt"
	"sync"
)

// Broker publishes payloads on a topic and hands out subscriptions to it.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string) (<-chan []byte, func())
	Close() error
}

// PageTopic names the topic carrying commits of one page.
func PageTopic(siteID uint, key string) string {
	return fmt.Sprintf("page:%d:%s", siteID, key)
}

type subscriber struct {
	ch chan []byte
}

// Hub is the in-process Broker.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers interest in topic. The returned cancel func closes the
// channel and is safe to call more than once.
func (h *Hub) Subscribe(topic string) (<-chan []byte, func()) {
	sub := &subscriber{ch: make(chan []byte, 1)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[topic] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			set, ok := h.subs[topic]
			if !ok {
				return
			}
			if _, ok := set[sub]; !ok {
				return
			}
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, topic)
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers payload to every current subscriber of topic.
func (h *Hub) Publish(_ context.Context, topic string, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for sub := range h.subs[topic] {
		offer(sub.ch, payload)
	}
	return nil
}

// Subscribers reports how many subscriptions topic has.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for topic, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.subs, topic)
	}
	return nil
}

// offer replaces an unread payload instead of blocking. Callers hold h.mu so
// no other sender races the drain.
func offer(ch chan []byte, payload []byte) {
	select {
	case ch <- payload:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- payload:
	default:
	}
}
