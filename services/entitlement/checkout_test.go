package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"carematch/pkg/errutil"

	"github.com/stretchr/testify/require"
)

func newTestCheckout(t *testing.T, delay time.Duration) (*Checkout, *Store, *MockGateway) {
	t.Helper()
	s, _ := newTestStore(t, KindSubscription)
	gw := NewMockGateway()
	c := NewCheckout(s, gw, CheckoutOptions{
		ProcessingDelay: delay,
		PaymentTimeout:  200 * time.Millisecond,
		MaxRetries:      3,
		RetryBase:       time.Millisecond,
	})
	return c, s, gw
}

func waitSession(t *testing.T, sess *Session) (Status, error) {
	t.Helper()
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("checkout did not resolve")
	}
	return sess.Wait()
}

func TestCheckoutSucceeds(t *testing.T) {
	c, s, gw := newTestCheckout(t, 0)

	sess := c.Begin(context.Background(), "P1", monthly)
	st, err := waitSession(t, sess)
	require.NoError(t, err)
	require.Equal(t, StateActive, st.State)
	require.Equal(t, 1, gw.Calls())
	require.Equal(t, st.Record.ID, sess.Record().ID)
	require.Equal(t, "pay_P1_patient-monthly_1", sess.Record().PaymentRef())

	cur, err := s.StatusOf(context.Background(), "P1")
	require.NoError(t, err)
	require.True(t, cur.Same(st))
}

func TestCheckoutCancelBeforeResolution(t *testing.T) {
	c, s, gw := newTestCheckout(t, time.Hour)

	sess := c.Begin(context.Background(), "P1", monthly)
	sess.Cancel()
	sess.Cancel()

	_, err := waitSession(t, sess)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, sess.Record())
	require.Zero(t, gw.Calls())

	st, err := s.StatusOf(context.Background(), "P1")
	require.NoError(t, err)
	require.Equal(t, StateNone, st.State)
}

func TestCheckoutCancelAfterCompletionIsNoop(t *testing.T) {
	c, _, _ := newTestCheckout(t, 0)

	sess := c.Begin(context.Background(), "P1", monthly)
	st, err := waitSession(t, sess)
	require.NoError(t, err)

	sess.Cancel()
	sess.Cancel()

	again, err := sess.Wait()
	require.NoError(t, err)
	require.True(t, st.Same(again))
}

func TestCheckoutParentContextCancels(t *testing.T) {
	c, _, _ := newTestCheckout(t, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	sess := c.Begin(ctx, "P1", monthly)
	cancel()

	_, err := waitSession(t, sess)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCheckoutDeclineIsPaymentError(t *testing.T) {
	c, s, gw := newTestCheckout(t, 0)
	gw.Decline("card declined")

	_, err := waitSession(t, c.Begin(context.Background(), "P1", monthly))

	var pe *PaymentError
	require.ErrorAs(t, err, &pe)
	require.False(t, pe.Transient)
	require.Equal(t, "card declined", pe.Reason)
	require.False(t, errors.Is(err, ErrAlreadyEntitled))
	require.Equal(t, errutil.StatusPaymentRequired, errutil.CodeOf(err))
	require.Equal(t, 1, gw.Calls(), "declines are not retried")

	st, err := s.StatusOf(context.Background(), "P1")
	require.NoError(t, err)
	require.Equal(t, StateNone, st.State)
}

func TestCheckoutRetriesTransientFailures(t *testing.T) {
	c, _, gw := newTestCheckout(t, 0)
	gw.FailTransiently(2)

	st, err := waitSession(t, c.Begin(context.Background(), "P1", monthly))
	require.NoError(t, err)
	require.Equal(t, StateActive, st.State)
	require.Equal(t, 3, gw.Calls())
}

func TestCheckoutGivesUpAfterMaxRetries(t *testing.T) {
	c, _, gw := newTestCheckout(t, 0)
	gw.FailTransiently(10)

	_, err := waitSession(t, c.Begin(context.Background(), "P1", monthly))
	var pe *PaymentError
	require.ErrorAs(t, err, &pe)
	require.True(t, pe.Transient)
	require.Equal(t, 4, gw.Calls())
}

func TestCheckoutTimeoutIsTransient(t *testing.T) {
	c, _, gw := newTestCheckout(t, 0)
	c.opts.MaxRetries = 1
	c.opts.PaymentTimeout = 10 * time.Millisecond
	gw.SetLatency(time.Second)

	_, err := waitSession(t, c.Begin(context.Background(), "P1", monthly))
	var pe *PaymentError
	require.ErrorAs(t, err, &pe)
	require.True(t, pe.Transient)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 2, gw.Calls())
}

func TestCheckoutConflictSkipsPayment(t *testing.T) {
	c, s, gw := newTestCheckout(t, 0)
	_, err := s.Create(context.Background(), "P1", monthly)
	require.NoError(t, err)

	_, err = waitSession(t, c.Begin(context.Background(), "P1", quarterly))
	require.ErrorIs(t, err, ErrAlreadyEntitled)

	var pe *PaymentError
	require.False(t, errors.As(err, &pe))
	require.Zero(t, gw.Calls())
}

func TestCheckoutWithoutGateway(t *testing.T) {
	s, _ := newTestStore(t, KindBoost)
	c := NewCheckout(s, nil, CheckoutOptions{})

	_, err := waitSession(t, c.Begin(context.Background(), "D1", monthly))
	var pe *PaymentError
	require.ErrorAs(t, err, &pe)
}

func TestCheckoutConcurrentBeginChargesOnce(t *testing.T) {
	c, s, gw := newTestCheckout(t, 0)
	gw.SetLatency(50 * time.Millisecond)

	first := c.Begin(context.Background(), "P1", monthly)
	second := c.Begin(context.Background(), "P1", quarterly)

	_, err := waitSession(t, second)
	require.ErrorIs(t, err, ErrAlreadyEntitled)
	require.Nil(t, second.Record())

	st, err := waitSession(t, first)
	require.NoError(t, err)
	require.Equal(t, StateActive, st.State)
	require.Equal(t, 1, gw.Calls())

	cur, err := s.StatusOf(context.Background(), "P1")
	require.NoError(t, err)
	require.Equal(t, monthly.ID, cur.Record.PlanID)

	other := c.Begin(context.Background(), "P2", monthly)
	_, err = waitSession(t, other)
	require.NoError(t, err)
	require.Equal(t, 2, gw.Calls())
}

func TestCheckoutReleasesOwnerAfterFailure(t *testing.T) {
	c, _, gw := newTestCheckout(t, 0)
	gw.Decline("card declined")

	_, err := waitSession(t, c.Begin(context.Background(), "P1", monthly))
	var pe *PaymentError
	require.ErrorAs(t, err, &pe)

	gw.Decline("")
	st, err := waitSession(t, c.Begin(context.Background(), "P1", monthly))
	require.NoError(t, err)
	require.Equal(t, StateActive, st.State)
}
