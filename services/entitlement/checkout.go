package entitlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"carematch/pkg/config"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// PaymentGateway charges an owner for a plan and returns a payment reference.
// Failures should be *PaymentError so retries can tell transient from final.
type PaymentGateway interface {
	Charge(ctx context.Context, ownerID string, plan Plan) (string, error)
}

type CheckoutOptions struct {
	ProcessingDelay time.Duration
	PaymentTimeout  time.Duration
	MaxRetries      uint64
	RetryBase       time.Duration
}

func CheckoutOptionsFromConfig(cfg *config.Config) CheckoutOptions {
	return CheckoutOptions{
		ProcessingDelay: cfg.Checkout.ProcessingDelay,
		PaymentTimeout:  cfg.Checkout.PaymentTimeout,
		MaxRetries:      cfg.Checkout.MaxRetries,
		RetryBase:       cfg.Checkout.RetryBase,
	}
}

// Checkout runs purchases against one Store: precheck, processing delay,
// charge, then Create. At most one purchase per owner is in flight; a second
// Begin for the same owner fails with a conflict before anything is charged.
type Checkout struct {
	store   *Store
	gateway PaymentGateway
	opts    CheckoutOptions

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewCheckout(store *Store, gateway PaymentGateway, opts CheckoutOptions) *Checkout {
	if opts.RetryBase <= 0 {
		opts.RetryBase = 100 * time.Millisecond
	}
	return &Checkout{store: store, gateway: gateway, opts: opts, inflight: make(map[string]struct{})}
}

func (c *Checkout) claim(ownerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[ownerID]; busy {
		return false
	}
	c.inflight[ownerID] = struct{}{}
	return true
}

func (c *Checkout) release(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, ownerID)
}

// Session is one purchase in flight.
type Session struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status Status
	record *Record
	err    error
}

// Cancel aborts the purchase if it has not resolved yet. Calling it again, or
// after completion, does nothing.
func (s *Session) Cancel() {
	s.cancel()
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the purchase resolves. A declined or failed charge is a
// *PaymentError; an owner who already has access gets a conflict error.
func (s *Session) Wait() (Status, error) {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.err
}

// Record is the issued record, nil until the purchase succeeded.
func (s *Session) Record() *Record {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.clone()
}

func (c *Checkout) Begin(ctx context.Context, ownerID string, plan Plan) *Session {
	ctx, cancel := context.WithCancel(ctx)
	sess := &Session{cancel: cancel, done: make(chan struct{})}
	claimed := c.claim(ownerID)

	go func() {
		defer cancel()

		var rec *Record
		var err error
		if claimed {
			rec, err = c.run(ctx, ownerID, plan)
			c.release(ownerID)
		} else {
			err = ConflictError(c.store.kind, ownerID)
		}

		var st Status
		if err == nil {
			st = DeriveStatus(rec, c.store.clock.Now())
		}

		sess.mu.Lock()
		sess.status, sess.record, sess.err = st, rec, err
		sess.mu.Unlock()
		close(sess.done)

		c.observe(ownerID, plan, err)
	}()

	return sess
}

func (c *Checkout) run(ctx context.Context, ownerID string, plan Plan) (*Record, error) {
	st, err := c.store.StatusOf(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if st.GrantsAccess() {
		return nil, ConflictError(c.store.kind, ownerID)
	}

	if err := sleep(ctx, c.opts.ProcessingDelay); err != nil {
		return nil, err
	}

	ref, err := c.charge(ctx, ownerID, plan)
	if err != nil {
		return nil, err
	}

	// the charge went through; a late cancel must not lose the purchase
	rec, err := c.store.Create(context.WithoutCancel(ctx), ownerID, plan, WithPaymentRef(ref))
	if err != nil {
		zap.L().Error("charged but entitlement not created",
			zap.String("kind", c.store.kind.String()),
			zap.String("owner_id", ownerID),
			zap.String("payment_ref", ref),
			zap.Error(err),
		)
		return nil, err
	}
	return rec, nil
}

func (c *Checkout) charge(ctx context.Context, ownerID string, plan Plan) (string, error) {
	if c.gateway == nil {
		return "", &PaymentError{Reason: "no payment gateway configured"}
	}

	backoff := retry.WithMaxRetries(c.opts.MaxRetries, retry.NewExponential(c.opts.RetryBase))

	var ref string
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		chargeAttemptsTotal.WithLabelValues(c.store.kind.String()).Inc()

		attemptCtx := ctx
		if c.opts.PaymentTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, c.opts.PaymentTimeout)
			defer cancel()
		}

		r, err := c.gateway.Charge(attemptCtx, ownerID, plan)
		if err == nil {
			ref = r
			return nil
		}

		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = &PaymentError{Reason: "payment gateway timed out", Transient: true, Err: err}
		}

		var pe *PaymentError
		if errors.As(err, &pe) && pe.Transient {
			zap.L().Warn("transient payment failure, retrying",
				zap.String("owner_id", ownerID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

func (c *Checkout) observe(ownerID string, plan Plan, err error) {
	result := resultOK
	var pe *PaymentError
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		result = "cancelled"
	case errors.As(err, &pe):
		result = "payment_failed"
	case errors.Is(err, ErrAlreadyEntitled):
		result = "conflict"
	default:
		result = resultError
	}
	checkoutsTotal.WithLabelValues(c.store.kind.String(), result).Inc()

	zap.L().Info("checkout finished",
		zap.String("kind", c.store.kind.String()),
		zap.String("owner_id", ownerID),
		zap.String("plan_id", plan.ID),
		zap.String("result", result),
	)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// MockGateway approves every charge unless told to decline or to fail
// transiently a number of times first.
type MockGateway struct {
	mu        sync.Mutex
	decline   string
	transient int
	latency   time.Duration
	calls     atomic.Int64
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Decline makes every later charge fail with reason. An empty reason approves again.
func (g *MockGateway) Decline(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.decline = reason
}

func (g *MockGateway) FailTransiently(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transient = n
}

func (g *MockGateway) SetLatency(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latency = d
}

func (g *MockGateway) Calls() int {
	return int(g.calls.Load())
}

func (g *MockGateway) Charge(ctx context.Context, ownerID string, plan Plan) (string, error) {
	n := g.calls.Add(1)

	g.mu.Lock()
	latency := g.latency
	decline := g.decline
	transient := g.transient > 0
	if transient {
		g.transient--
	}
	g.mu.Unlock()

	if err := sleep(ctx, latency); err != nil {
		return "", err
	}
	if transient {
		return "", &PaymentError{Reason: "gateway unavailable", Transient: true}
	}
	if decline != "" {
		return "", &PaymentError{Reason: decline}
	}
	return fmt.Sprintf("pay_%s_%s_%d", ownerID, plan.ID, n), nil
}
