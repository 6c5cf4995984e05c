// Package bus provides the in-process publish/subscribe channel that
// decouples the market feed from the decision loop. One bus instance is
// constructed at bootstrap and injected into every component.
package bus

import (
	"context"
	"sync"

	"leverage-agent/internal/logger"
)

// Topics published by the agent's components.
const (
	TopicPriceUpdate        = "price.update"
	TopicSurvivalTransition = "survival.transition"
	TopicSurvivalShutdown   = "survival.shutdown"
	TopicPositionOpened     = "position.opened"
	TopicPositionClosed     = "position.closed"
)

// Handler consumes one published payload. Handlers run synchronously in
// the publisher's goroutine and must stay bounded.
type Handler func(ctx context.Context, payload any)

type subscriber struct {
	id int
	fn Handler
}

type topicState struct {
	pubMu sync.Mutex // serializes publishes so per-topic order holds
	subs  []subscriber
}

// Bus is a synchronous fan-out event bus. Delivery is in publish order per
// topic; cross-topic ordering is not guaranteed.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]*topicState
	nextID int
}

func New() *Bus {
	return &Bus{topics: make(map[string]*topicState)}
}

// Subscription is the token returned by Subscribe; use it to detach.
type Subscription struct {
	bus   *Bus
	topic string
	id    int
}

// Subscribe registers a handler for a topic and returns its token.
func (b *Bus) Subscribe(topic string, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts := b.topics[topic]
	if ts == nil {
		ts = &topicState{}
		b.topics[topic] = ts
	}
	b.nextID++
	ts.subs = append(ts.subs, subscriber{id: b.nextID, fn: fn})
	return &Subscription{bus: b, topic: topic, id: b.nextID}
}

// Unsubscribe removes the handler; safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	ts := s.bus.topics[s.topic]
	if ts == nil {
		return
	}
	for i, sub := range ts.subs {
		if sub.id == s.id {
			ts.subs = append(ts.subs[:i], ts.subs[i+1:]...)
			break
		}
	}
	s.bus = nil
}

// Publish delivers payload to every current subscriber of topic. A
// panicking handler is recovered and logged so one failing consumer
// cannot break the others or the publisher.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) {
	b.mu.RLock()
	ts := b.topics[topic]
	var subs []subscriber
	if ts != nil {
		subs = make([]subscriber, len(ts.subs))
		copy(subs, ts.subs)
	}
	b.mu.RUnlock()
	if ts == nil || len(subs) == 0 {
		return
	}

	ts.pubMu.Lock()
	defer ts.pubMu.Unlock()
	for _, sub := range subs {
		b.deliver(ctx, topic, sub, payload)
	}
}

func (b *Bus) deliver(ctx context.Context, topic string, sub subscriber, payload any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Event handler panicked", "topic", topic, "subscriber_id", sub.id, "panic", r)
		}
	}()
	sub.fn(ctx, payload)
}
