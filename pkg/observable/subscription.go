package observable

import "sync"

// Subscription delivers values on C in publish order. C is closed after
// Close; Close may be called any number of times.
type Subscription[T any] struct {
	C <-chan T

	id     uint64
	parent *Subject[T]
	out    chan T

	mu      sync.Mutex
	queue   []T
	wake    chan struct{}
	done    chan struct{}
	stopped sync.Once
}

func newSubscription[T any](id uint64, parent *Subject[T]) *Subscription[T] {
	out := make(chan T)
	return &Subscription[T]{
		C:      out,
		id:     id,
		parent: parent,
		out:    out,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *Subscription[T]) Close() {
	s.parent.detach(s.id)
	s.stop()
}

func (s *Subscription[T]) stop() {
	s.stopped.Do(func() { close(s.done) })
}

func (s *Subscription[T]) enqueue(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		v := s.queue[0]
		var zero T
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- v:
		case <-s.done:
			return
		}
	}
}
