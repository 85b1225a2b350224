// Package events provides a small in-process pub/sub bus used to fan
// frames, motion events, and connection transitions out to any number
// of subscribers without ever blocking the producer.
package events

import (
	"sync"
	"sync/atomic"
)

type subscriber[T any] struct {
	id     string
	policy DropPolicy
	sent   atomic.Uint64
	drops  atomic.Uint64

	// For DropNew policy
	ch chan<- T

	// For DropOld policy
	latest *Latest[T]
}

// Bus distributes values to subscribers. Publish never blocks: each
// subscriber picks a drop policy at registration and slow consumers
// lose values instead of stalling the producer.
type Bus[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber[T]
	published   atomic.Uint64
	closed      bool
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{
		subscribers: make(map[string]*subscriber[T]),
	}
}

// Subscribe registers a channel with the DropNew policy: when ch is
// full, the incoming value is dropped and counted against the
// subscriber.
func (b *Bus[T]) Subscribe(id string, ch chan<- T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if ch == nil {
		return ErrNilChannel
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = &subscriber[T]{
		id:     id,
		policy: DropNew,
		ch:     ch,
	}
	return nil
}

// SubscribeDropOld registers a latest-value mailbox subscriber. The
// returned receiver always holds the newest published value.
func (b *Bus[T]) SubscribeDropOld(id string) (*Latest[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return nil, ErrSubscriberExists
	}

	sub := &subscriber[T]{
		id:     id,
		policy: DropOld,
		latest: NewLatest[T](),
	}
	b.subscribers[id] = sub
	return sub.latest, nil
}

// Publish delivers v to every current subscriber without blocking.
func (b *Bus[T]) Publish(v T) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	b.published.Add(1)

	for _, sub := range b.subscribers {
		switch sub.policy {
		case DropNew:
			select {
			case sub.ch <- v:
				sub.sent.Add(1)
			default:
				sub.drops.Add(1)
			}

		case DropOld:
			// Overwrite always succeeds while the receiver is open.
			if err := sub.latest.Set(v); err == nil {
				sub.sent.Add(1)
			}
		}
	}
	return nil
}

// Unsubscribe removes a subscriber. DropOld receivers are closed so
// blocked readers wake up.
func (b *Bus[T]) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, exists := b.subscribers[id]
	if !exists {
		return ErrSubscriberNotFound
	}

	if sub.policy == DropOld && sub.latest != nil {
		sub.latest.Close()
	}

	delete(b.subscribers, id)
	return nil
}

// Stats returns a delivery snapshot for one subscriber.
func (b *Bus[T]) Stats(id string) (SubscriberStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, exists := b.subscribers[id]
	if !exists {
		return SubscriberStats{}, ErrSubscriberNotFound
	}

	return SubscriberStats{
		Sent:    sub.sent.Load(),
		Dropped: sub.drops.Load(),
	}, nil
}

// Published returns the total number of values published so far.
func (b *Bus[T]) Published() uint64 {
	return b.published.Load()
}

// Close shuts down the bus and all DropOld receivers. Close is
// idempotent; Publish after Close returns ErrBusClosed.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subscribers {
		if sub.policy == DropOld && sub.latest != nil {
			sub.latest.Close()
		}
	}
	b.subscribers = nil
}
