// Package notification provides ordered publish/subscribe delivery of state values.
package notification

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id     string
	active atomic.Bool
	once   sync.Once
	remove func(id string)
}

// ID returns the subscription ID.
func (s *Subscription) ID() string {
	return s.id
}

// Unsubscribe stops delivery to the subscription. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.active.Store(false)
		s.remove(s.id)
	})
}

type subscriber[T any] struct {
	sub *Subscription
	fn  func(T)
}

// Manager delivers published values to subscribers synchronously, in subscription order.
type Manager[T any] struct {
	mu          sync.RWMutex
	subscribers []subscriber[T]
	closed      bool
}

// NewManager creates a new notification manager.
func NewManager[T any]() *Manager[T] {
	return &Manager[T]{}
}

// Subscribe registers fn and returns its subscription handle.
// fn is called on the publishing goroutine and must not block for long.
func (m *Manager[T]) Subscribe(fn func(T)) *Subscription {
	sub := &Subscription{
		id:     uuid.New().String(),
		remove: m.unsubscribe,
	}
	sub.active.Store(true)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		sub.active.Store(false)
		return sub
	}
	m.subscribers = append(m.subscribers, subscriber[T]{sub: sub, fn: fn})
	return sub
}

func (m *Manager[T]) unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.subscribers {
		if s.sub.id == id {
			m.subscribers = append(m.subscribers[:i:i], m.subscribers[i+1:]...)
			return
		}
	}
}

// Publish delivers v to every active subscriber in subscription order.
// Subscribers added during a publish do not receive v.
func (m *Manager[T]) Publish(v T) {
	m.mu.RLock()
	subs := make([]subscriber[T], len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.RUnlock()

	for _, s := range subs {
		if !s.sub.active.Load() {
			continue
		}
		s.fn(v)
	}
}

// Stream subscribes a buffered channel. When the buffer is full the oldest
// pending value is dropped so the channel always ends with the latest value.
// The returned cancel function unsubscribes and closes the channel.
func (m *Manager[T]) Stream(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	var mu sync.Mutex
	closed := false

	sub := m.Subscribe(func(v T) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		for {
			select {
			case ch <- v:
				return
			default:
			}
			// drop oldest
			select {
			case <-ch:
			default:
			}
		}
	})

	cancel := func() {
		sub.Unsubscribe()
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager[T]) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

// Close removes all subscriptions and rejects new ones.
func (m *Manager[T]) Close() {
	m.mu.Lock()
	subs := m.subscribers
	m.subscribers = nil
	m.closed = true
	m.mu.Unlock()

	for _, s := range subs {
		s.sub.active.Store(false)
	}
}
