package entitlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carematch/pkg/errutil"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestCreateThenActive(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, KindSubscription)

	rec, err := s.Create(ctx, "P1", monthly)
	require.NoError(t, err)
	require.Equal(t, "P1", rec.OwnerID)
	require.Equal(t, KindSubscription, rec.Kind)
	require.Equal(t, t0.Add(30*day), rec.ExpiresAt)
	require.Nil(t, rec.CancelledAt)

	clk.Advance(day)
	st, err := s.StatusOf(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, StateActive, st.State)
	require.Equal(t, rec.ID, st.Record.ID)
}

func TestCancelKeepsAccessUntilExpiry(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, KindSubscription)

	created, err := s.Create(ctx, "P1", monthly)
	require.NoError(t, err)

	clk.Set(t0.Add(10 * day))
	rec, err := s.Cancel(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, rec.CancelledAt)
	require.Equal(t, t0.Add(10*day), *rec.CancelledAt)
	require.Equal(t, created.ExpiresAt, rec.ExpiresAt)

	clk.Set(t0.Add(20 * day))
	st, err := s.StatusOf(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, StateCancelled, st.State)
	require.True(t, st.GrantsAccess())
	require.NoError(t, s.Require(ctx, "P1"))

	clk.Set(t0.Add(31 * day))
	st, err = s.StatusOf(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, StateExpired, st.State)
	require.False(t, st.GrantsAccess())

	err = s.Require(ctx, "P1")
	require.ErrorIs(t, err, ErrNoAccess)
	require.Equal(t, errutil.StatusForbidden, errutil.CodeOf(err))
}

func TestReactivateBeforeAndAfterExpiry(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, KindSubscription)

	_, err := s.Create(ctx, "P1", monthly)
	require.NoError(t, err)
	clk.Set(t0.Add(10 * day))
	_, err = s.Cancel(ctx, "P1")
	require.NoError(t, err)

	clk.Set(t0.Add(20 * day))
	rec, err := s.Reactivate(ctx, "P1")
	require.NoError(t, err)
	require.Nil(t, rec.CancelledAt)

	st, err := s.StatusOf(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, StateActive, st.State)

	_, err = s.Cancel(ctx, "P1")
	require.NoError(t, err)

	clk.Set(t0.Add(31 * day))
	_, err = s.Reactivate(ctx, "P1")
	require.ErrorIs(t, err, ErrExpired)
	require.Equal(t, errutil.StatusUnprocessableEntity, errutil.CodeOf(err))

	st, err = s.StatusOf(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, StateExpired, st.State)
}

func TestCreateTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, KindSubscription)

	first, err := s.Create(ctx, "P1", monthly)
	require.NoError(t, err)

	_, err = s.Create(ctx, "P1", quarterly)
	require.ErrorIs(t, err, ErrAlreadyEntitled)
	require.Equal(t, errutil.StatusConflict, errutil.CodeOf(err))

	clk.Advance(2 * day)
	_, err = s.Cancel(ctx, "P1")
	require.NoError(t, err)

	_, err = s.Create(ctx, "P1", quarterly)
	require.ErrorIs(t, err, ErrAlreadyEntitled, "cancelled but unexpired still grants access")

	clk.Set(first.ExpiresAt.Add(time.Second))
	second, err := s.Create(ctx, "P1", quarterly)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, quarterly.ID, second.PlanID)

	st, err := s.StatusOf(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, StateActive, st.State)
	require.Equal(t, second.ID, st.Record.ID)
}

func TestReactivateRejectsActiveAndMissing(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, KindBoost)

	_, err := s.Reactivate(ctx, "D1")
	require.ErrorIs(t, err, ErrNoRecord)
	require.Equal(t, errutil.StatusNotFound, errutil.CodeOf(err))

	_, err = s.Create(ctx, "D1", monthly)
	require.NoError(t, err)

	_, err = s.Reactivate(ctx, "D1")
	require.ErrorIs(t, err, ErrNotCancelled)
	require.Equal(t, errutil.StatusUnprocessableEntity, errutil.CodeOf(err))
}

func TestCancelEdgeCases(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, KindSubscription)

	_, err := s.Cancel(ctx, "P1")
	require.ErrorIs(t, err, ErrNoRecord)

	_, err = s.Create(ctx, "P1", monthly)
	require.NoError(t, err)

	clk.Advance(day)
	first, err := s.Cancel(ctx, "P1")
	require.NoError(t, err)

	clk.Advance(day)
	again, err := s.Cancel(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, *first.CancelledAt, *again.CancelledAt, "second cancel keeps the original instant")

	clk.Set(t0.Add(40 * day))
	_, err = s.Cancel(ctx, "P1")
	require.ErrorIs(t, err, ErrExpired)
}

func TestEmptyOwnerRejected(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, KindSubscription)

	_, err := s.Create(ctx, "", monthly)
	require.Equal(t, errutil.StatusBadRequest, errutil.CodeOf(err))

	_, err = s.Create(ctx, "P1", Plan{ID: "broken"})
	require.Equal(t, errutil.StatusBadRequest, errutil.CodeOf(err))

	_, err = s.Subscribe(ctx, "")
	require.Error(t, err)
}

func TestRecordTermsAreSnapshotted(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, KindSubscription)

	plan := monthly
	rec, err := s.Create(ctx, "P1", plan)
	require.NoError(t, err)

	plan.PriceMinorUnits = 1
	plan.Name = "Renamed"
	rec.PlanName = "mutated by caller"

	st, err := s.StatusOf(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, int64(999), st.Record.PriceMinorUnits)
	require.Equal(t, "Monthly", st.Record.PlanName)
}

func TestSubscribeEmitsCurrentThenTransitions(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	s, clk := newTestStore(t, KindSubscription)

	sub, err := s.Subscribe(ctx, "P1")
	require.NoError(t, err)
	defer sub.Close()

	require.Equal(t, StateNone, receive(t, sub).State)
	requireSilent(t, sub)

	_, err = s.Create(ctx, "P1", monthly)
	require.NoError(t, err)
	require.Equal(t, StateActive, receive(t, sub).State)

	clk.Advance(day)
	_, err = s.Cancel(ctx, "P1")
	require.NoError(t, err)
	st := receive(t, sub)
	require.Equal(t, StateCancelled, st.State)
	require.NotNil(t, st.Record.CancelledAt)

	_, err = s.Reactivate(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, StateActive, receive(t, sub).State)
	requireSilent(t, sub)
}

func TestSubscribeMatchesStatusOf(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, KindSubscription)

	_, err := s.Create(ctx, "P1", monthly)
	require.NoError(t, err)

	clk.Advance(45 * day)
	want, err := s.StatusOf(ctx, "P1")
	require.NoError(t, err)

	sub, err := s.Subscribe(ctx, "P1")
	require.NoError(t, err)
	defer sub.Close()

	got := receive(t, sub)
	require.Equal(t, StateExpired, got.State)
	require.True(t, want.Same(got))
	requireSilent(t, sub)
}

func TestSubscribeAfterExpiryIsNotRepeatedByRefresh(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	s, clk := newTestStore(t, KindSubscription)

	early, err := s.Subscribe(ctx, "P1")
	require.NoError(t, err)
	defer early.Close()
	require.Equal(t, StateNone, receive(t, early).State)

	_, err = s.Create(ctx, "P1", monthly)
	require.NoError(t, err)
	require.Equal(t, StateActive, receive(t, early).State)

	clk.Advance(31 * day)

	late, err := s.Subscribe(ctx, "P1")
	require.NoError(t, err)
	defer late.Close()
	require.Equal(t, StateExpired, receive(t, late).State)
	require.Equal(t, StateExpired, receive(t, early).State)

	require.Zero(t, s.Refresh(ctx))
	requireSilent(t, late)
	requireSilent(t, early)
}

func TestSubscribeIgnoresOtherOwners(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, KindSubscription)

	sub, err := s.Subscribe(ctx, "P1")
	require.NoError(t, err)
	defer sub.Close()
	require.Equal(t, StateNone, receive(t, sub).State)

	_, err = s.Create(ctx, "P2", monthly)
	require.NoError(t, err)
	_, err = s.Cancel(ctx, "P2")
	require.NoError(t, err)

	requireSilent(t, sub)
}

func TestStoresOfDifferentKindsAreIndependent(t *testing.T) {
	ctx := context.Background()
	subs, _ := newTestStore(t, KindSubscription)
	boosts, _ := newTestStore(t, KindBoost)

	_, err := subs.Create(ctx, "U1", monthly)
	require.NoError(t, err)

	st, err := boosts.StatusOf(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, StateNone, st.State)

	_, err = boosts.Create(ctx, "U1", monthly)
	require.NoError(t, err)
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, KindSubscription)

	const workers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Create(ctx, "P1", monthly)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAlreadyEntitled):
				conflicts++
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, conflicts)
	require.Zero(t, s.locks.len())
}

func TestSubscriberNeverSeesPartialState(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, KindSubscription)

	_, err := s.Create(ctx, "P1", monthly)
	require.NoError(t, err)

	sub, err := s.Subscribe(ctx, "P1")
	require.NoError(t, err)
	defer sub.Close()
	receive(t, sub)

	clk.Advance(day)
	_, err = s.Cancel(ctx, "P1")
	require.NoError(t, err)

	// the repository already holds the published state when it arrives
	st := receive(t, sub)
	stored, err := s.StatusOf(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, StateCancelled, st.State)
	require.Equal(t, *stored.Record.CancelledAt, *st.Record.CancelledAt)
}

func TestRefreshRepublishesExpiry(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, KindSubscription)

	_, err := s.Create(ctx, "P1", monthly)
	require.NoError(t, err)
	_, err = s.Create(ctx, "P2", quarterly)
	require.NoError(t, err)

	sub, err := s.Subscribe(ctx, "P1")
	require.NoError(t, err)
	defer sub.Close()
	require.Equal(t, StateActive, receive(t, sub).State)

	require.Zero(t, s.Refresh(ctx))
	requireSilent(t, sub)

	before := testutil.ToFloat64(refreshRepublishedTotal.WithLabelValues("subscription"))

	clk.Set(t0.Add(31 * day))
	require.Equal(t, 1, s.Refresh(ctx))
	require.Equal(t, StateExpired, receive(t, sub).State)
	require.Equal(t, before+1, testutil.ToFloat64(refreshRepublishedTotal.WithLabelValues("subscription")))

	require.Zero(t, s.Refresh(ctx), "expiry is published once")
	requireSilent(t, sub)
}

func TestClearResetsRecordsAndSubscriptions(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, KindSubscription)

	_, err := s.Create(ctx, "P1", monthly)
	require.NoError(t, err)
	sub, err := s.Subscribe(ctx, "P1")
	require.NoError(t, err)
	receive(t, sub)

	s.Clear()

	select {
	case _, ok := <-sub.C:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed by Clear")
	}
	sub.Close()

	st, err := s.StatusOf(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, StateNone, st.State)
	require.Empty(t, s.notifier.Watched())
}

type failingRepo struct{}

func (failingRepo) Get(context.Context, string) (*Record, error) { return nil, errors.New("db down") }
func (failingRepo) Put(context.Context, string, *Record) error   { return errors.New("db down") }

func TestRepositoryFailureIsInternal(t *testing.T) {
	ctx := context.Background()
	s := NewStore(StoreParams{Kind: KindSubscription, IDs: &seqIDs{}, Repo: failingRepo{}})

	_, err := s.Create(ctx, "P1", monthly)
	require.Equal(t, errutil.StatusInternal, errutil.CodeOf(err))

	_, err = s.StatusOf(ctx, "P1")
	require.Equal(t, errutil.StatusInternal, errutil.CodeOf(err))

	_, err = s.Subscribe(ctx, "P1")
	require.Error(t, err)
}

func TestRedisNotifierStillDeliversLocally(t *testing.T) {
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewStore(StoreParams{
		Kind:     KindBoost,
		IDs:      &seqIDs{},
		Notifier: NewRedisNotifier(NewChannelNotifier(), rdb, KindBoost),
	})
	t.Cleanup(s.Clear)

	sub, err := s.Subscribe(ctx, "D1")
	require.NoError(t, err)
	defer sub.Close()
	require.Equal(t, StateNone, receive(t, sub).State)

	_, err = s.Create(ctx, "D1", monthly)
	require.NoError(t, err)
	require.Equal(t, StateActive, receive(t, sub).State)
}
