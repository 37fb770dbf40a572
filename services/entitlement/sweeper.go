package entitlement

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sweeper periodically refreshes stores so subscribers observe expiry
// without any write.
type Sweeper struct {
	cron   *cron.Cron
	stores []*Store
}

func NewSweeper(schedule string, stores ...*Store) (*Sweeper, error) {
	s := &Sweeper{
		cron:   cron.New(cron.WithLogger(cronLogger{zap.L().Named("sweeper")})),
		stores: stores,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweeper schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	if _, err := s.Sweep(context.Background()); err != nil {
		zap.L().Warn("entitlement sweep interrupted", zap.Error(err))
	}
}

// Sweep refreshes every store concurrently and returns the number of
// republished statuses. A cancelled ctx stops the remaining owners and is
// returned with the partial count.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	var total atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for _, store := range s.stores {
		g.Go(func() error {
			total.Add(int64(store.Refresh(ctx)))
			return ctx.Err()
		})
	}
	err := g.Wait()
	return int(total.Load()), err
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
