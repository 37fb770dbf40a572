package entitlement

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"carematch/pkg/clock"
	"carematch/pkg/observable"

	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const day = 24 * time.Hour

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

var (
	monthly   = Plan{ID: "patient-monthly", Name: "Monthly", PriceMinorUnits: 999, BillingPeriodMonths: 1}
	quarterly = Plan{ID: "patient-quarterly", Name: "Quarterly", PriceMinorUnits: 2499, BillingPeriodMonths: 3}
)

type seqIDs struct {
	n atomic.Int64
}

func (s *seqIDs) NewID() string {
	return fmt.Sprintf("rec-%04d", s.n.Add(1))
}

func newTestStore(t *testing.T, kind Kind) (*Store, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(t0)
	s := NewStore(StoreParams{
		Kind:  kind,
		Clock: clk,
		IDs:   &seqIDs{},
	})
	t.Cleanup(s.Clear)
	return s, clk
}

func receive(t *testing.T, sub *observable.Subscription[Status]) Status {
	t.Helper()
	select {
	case st, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed")
		}
		return st
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for status")
	}
	return Status{}
}

func requireSilent(t *testing.T, sub *observable.Subscription[Status]) {
	t.Helper()
	select {
	case st, ok := <-sub.C:
		if ok {
			t.Fatalf("unexpected status %s", st.State)
		}
	case <-time.After(50 * time.Millisecond):
	}
}
