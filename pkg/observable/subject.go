// Package observable provides a replay-latest subject: it holds the last
// published value, hands it to new subscribers, then streams later values.
package observable

import "sync"

// Subject fans values out to its subscribers. Publish never blocks on a slow
// subscriber; every subscriber owns an unbounded mailbox.
type Subject[T any] struct {
	mu     sync.Mutex
	value  T
	has    bool
	nextID uint64
	subs   map[uint64]*Subscription[T]
}

func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{subs: make(map[uint64]*Subscription[T])}
}

// Publish stores v as the latest value and enqueues it for every subscriber.
func (s *Subject[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.has = true
	for _, sub := range s.subs {
		sub.enqueue(v)
	}
}

// Value returns the latest published value.
func (s *Subject[T]) Value() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.has
}

// Subscribe replays the latest value, if any, then streams updates.
func (s *Subject[T]) Subscribe() *Subscription[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.attach()
	if s.has {
		sub.enqueue(s.value)
	}
	return sub
}

// SubscribeWith delivers initial as the first value instead of the cached one.
// Callers use it when the current value must be recomputed at subscribe time.
// initial becomes the latest value when nothing was published yet.
func (s *Subject[T]) SubscribeWith(initial T) *Subscription[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.has {
		s.value = initial
		s.has = true
	}
	sub := s.attach()
	sub.enqueue(initial)
	return sub
}

// Len returns the number of live subscriptions.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close ends every subscription.
func (s *Subject[T]) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[uint64]*Subscription[T])
	s.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
}

func (s *Subject[T]) attach() *Subscription[T] {
	s.nextID++
	sub := newSubscription[T](s.nextID, s)
	s.subs[sub.id] = sub
	go sub.pump()
	return sub
}

func (s *Subject[T]) detach(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
