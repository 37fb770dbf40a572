package clock

import (
	"sync"
	"time"

	"go.uber.org/fx"
)

var Module = fx.Module("clock", fx.Provide(NewSystem))

// Clock returns the current instant. Entitlement expiry is always evaluated
// against a Clock so tests can move time deterministically.
type Clock interface {
	Now() time.Time
}

type system struct{}

func NewSystem() Clock {
	return system{}
}

func (system) Now() time.Time {
	return time.Now().UTC()
}

// Fake is a manually driven Clock.
type Fake struct {
	mu  sync.RWMutex
	now time.Time
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now
}

func (f *Fake) Set(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

func (f *Fake) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}
