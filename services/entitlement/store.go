package entitlement

import (
	"context"
	"errors"

	"carematch/pkg/clock"
	"carematch/pkg/db/pagination"
	"carematch/pkg/errutil"
	"carematch/pkg/gen"
	"carematch/pkg/observable"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "carematch/services/entitlement"

// Store is the entitlement engine for one Kind. It owns the current record of
// every owner, applies transitions under a per-owner lock and publishes the
// resulting status before the lock is released.
type Store struct {
	kind     Kind
	clock    clock.Clock
	ids      gen.IDGenerator
	repo     Repository
	notifier Notifier
	locks    *ownerLocks
	tracer   trace.Tracer
}

type StoreParams struct {
	Kind     Kind
	Clock    clock.Clock
	IDs      gen.IDGenerator
	Repo     Repository
	Notifier Notifier
}

func NewStore(p StoreParams) *Store {
	if p.Repo == nil {
		p.Repo = NewMemoryRepository()
	}
	if p.Notifier == nil {
		p.Notifier = NewChannelNotifier()
	}
	if p.Clock == nil {
		p.Clock = clock.NewSystem()
	}
	return &Store{
		kind:     p.Kind,
		clock:    p.Clock,
		ids:      p.IDs,
		repo:     p.Repo,
		notifier: p.Notifier,
		locks:    newOwnerLocks(),
		tracer:   otel.Tracer(tracerName),
	}
}

func (s *Store) Kind() Kind {
	return s.kind
}

func (s *Store) start(ctx context.Context, op, ownerID string) (context.Context, trace.Span, *zap.Logger) {
	ctx, span := s.tracer.Start(ctx, "entitlement."+op, trace.WithAttributes(
		attribute.String("entitlement.kind", s.kind.String()),
		attribute.String("entitlement.owner_id", ownerID),
	))
	log := zap.L().With(
		zap.String("kind", s.kind.String()),
		zap.String("owner_id", ownerID),
	)
	if sc := span.SpanContext(); sc.IsValid() {
		log = log.With(zap.String("trace_id", sc.TraceID().String()))
	}
	return ctx, span, log
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Store) observe(op, result string) {
	transitionsTotal.WithLabelValues(s.kind.String(), op, result).Inc()
}

func requireOwner(ownerID string) error {
	if ownerID == "" {
		return errutil.BadRequest("owner id is required", nil, errutil.WithField("owner_id", "must not be empty"))
	}
	return nil
}

// Create issues a new record from plan. It fails with a conflict while the
// current status grants access.
func (s *Store) Create(ctx context.Context, ownerID string, plan Plan, opts ...CreateOption) (rec *Record, err error) {
	ctx, span, log := s.start(ctx, "Create", ownerID)
	defer func() { finish(span, err) }()

	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, errutil.BadRequest("invalid plan", err)
	}

	unlock := s.locks.lock(ownerID)
	defer unlock()

	cur, err := s.repo.Get(ctx, ownerID)
	if err != nil {
		s.observe("create", resultError)
		return nil, errutil.Internal("failed to load entitlement", err)
	}

	now := s.clock.Now()
	if DeriveStatus(cur, now).GrantsAccess() {
		s.observe("create", resultRejected)
		log.Info("create rejected, already entitled", zap.String("record_id", cur.ID))
		return nil, ConflictError(s.kind, ownerID)
	}

	if s.ids == nil {
		return nil, errutil.Internal("id generator not configured", nil)
	}
	rec = newRecord(s.ids.NewID(), ownerID, s.kind, plan, now)
	for _, opt := range opts {
		opt(rec)
	}
	if err := s.repo.Put(ctx, ownerID, rec); err != nil {
		s.observe("create", resultError)
		return nil, errutil.Internal("failed to store entitlement", err)
	}

	s.notifier.Publish(ctx, ownerID, DeriveStatus(rec.clone(), now))
	s.observe("create", resultOK)

	fields := []zap.Field{
		zap.String("record_id", rec.ID),
		zap.String("plan_id", plan.ID),
		zap.Time("expires_at", rec.ExpiresAt),
	}
	if cur != nil {
		fields = append(fields, zap.String("superseded_record_id", cur.ID))
	}
	log.Info("entitlement created", fields...)

	return rec.clone(), nil
}

// Cancel marks the current record cancelled. Access continues until the
// record expires. Cancelling a cancelled record returns it unchanged.
func (s *Store) Cancel(ctx context.Context, ownerID string) (rec *Record, err error) {
	ctx, span, log := s.start(ctx, "Cancel", ownerID)
	defer func() { finish(span, err) }()

	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(ownerID)
	defer unlock()

	cur, err := s.repo.Get(ctx, ownerID)
	if err != nil {
		s.observe("cancel", resultError)
		return nil, errutil.Internal("failed to load entitlement", err)
	}

	now := s.clock.Now()
	switch DeriveStatus(cur, now).State {
	case StateNone:
		s.observe("cancel", resultRejected)
		return nil, NotFoundError(s.kind, ownerID)
	case StateExpired:
		s.observe("cancel", resultRejected)
		return nil, InvalidStateError(s.kind, ownerID, ErrExpired)
	case StateCancelled:
		s.observe("cancel", resultNoop)
		return cur, nil
	}

	cancelledAt := now
	cur.CancelledAt = &cancelledAt
	if err := s.repo.Put(ctx, ownerID, cur); err != nil {
		s.observe("cancel", resultError)
		return nil, errutil.Internal("failed to store entitlement", err)
	}

	s.notifier.Publish(ctx, ownerID, DeriveStatus(cur.clone(), now))
	s.observe("cancel", resultOK)
	log.Info("entitlement cancelled", zap.String("record_id", cur.ID), zap.Time("expires_at", cur.ExpiresAt))

	return cur.clone(), nil
}

// Reactivate clears the cancellation of a record that has not expired yet.
func (s *Store) Reactivate(ctx context.Context, ownerID string) (rec *Record, err error) {
	ctx, span, log := s.start(ctx, "Reactivate", ownerID)
	defer func() { finish(span, err) }()

	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(ownerID)
	defer unlock()

	cur, err := s.repo.Get(ctx, ownerID)
	if err != nil {
		s.observe("reactivate", resultError)
		return nil, errutil.Internal("failed to load entitlement", err)
	}

	now := s.clock.Now()
	switch DeriveStatus(cur, now).State {
	case StateNone:
		s.observe("reactivate", resultRejected)
		return nil, NotFoundError(s.kind, ownerID)
	case StateExpired:
		s.observe("reactivate", resultRejected)
		return nil, InvalidStateError(s.kind, ownerID, ErrExpired)
	case StateActive:
		s.observe("reactivate", resultRejected)
		return nil, InvalidStateError(s.kind, ownerID, ErrNotCancelled)
	}

	cur.CancelledAt = nil
	if err := s.repo.Put(ctx, ownerID, cur); err != nil {
		s.observe("reactivate", resultError)
		return nil, errutil.Internal("failed to store entitlement", err)
	}

	s.notifier.Publish(ctx, ownerID, DeriveStatus(cur.clone(), now))
	s.observe("reactivate", resultOK)
	log.Info("entitlement reactivated", zap.String("record_id", cur.ID))

	return cur.clone(), nil
}

// StatusOf derives the status against the clock on every call.
func (s *Store) StatusOf(ctx context.Context, ownerID string) (Status, error) {
	cur, err := s.repo.Get(ctx, ownerID)
	if err != nil {
		return Status{}, errutil.Internal("failed to load entitlement", err)
	}
	return DeriveStatus(cur, s.clock.Now()), nil
}

// Subscribe emits the current status, then every transition of ownerID.
// The caller must Close the subscription.
func (s *Store) Subscribe(ctx context.Context, ownerID string) (*observable.Subscription[Status], error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(ownerID)
	defer unlock()

	st, err := s.StatusOf(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	// bring existing subscribers up to date first so a later Refresh has
	// nothing left to send the new one
	if last, ok := s.notifier.Last(ownerID); ok && !last.Same(st) {
		s.notifier.Publish(ctx, ownerID, st)
	}
	return s.notifier.Subscribe(ownerID, st), nil
}

// History pages through the records of ownerID, newest first.
func (s *Store) History(ctx context.Context, ownerID string, page pagination.Pagination) ([]*Record, pagination.PageInfo, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, pagination.PageInfo{}, err
	}
	h, ok := s.repo.(HistoryRepository)
	if !ok {
		return nil, pagination.PageInfo{}, errutil.ServiceUnavailable("entitlement history unavailable", nil)
	}
	recs, info, err := h.History(ctx, ownerID, page)
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return nil, pagination.PageInfo{}, errutil.BadRequest("invalid cursor", err, errutil.WithField("cursor", "is malformed"))
	}
	if err != nil {
		return nil, pagination.PageInfo{}, errutil.Internal("failed to list entitlements", err)
	}
	return recs, info, nil
}

// Require returns a forbidden error unless ownerID currently has access.
func (s *Store) Require(ctx context.Context, ownerID string) error {
	st, err := s.StatusOf(ctx, ownerID)
	if err != nil {
		return err
	}
	if !st.GrantsAccess() {
		return ForbiddenError(s.kind, ownerID)
	}
	return nil
}

// Refresh republishes the status of every watched owner whose status moved
// without a write, which only happens at expiry. It returns how many owners
// were republished.
func (s *Store) Refresh(ctx context.Context) int {
	ctx, span := s.tracer.Start(ctx, "entitlement.Refresh", trace.WithAttributes(
		attribute.String("entitlement.kind", s.kind.String()),
	))
	defer span.End()

	count := 0
	for _, ownerID := range s.notifier.Watched() {
		if ctx.Err() != nil {
			break
		}
		republished, err := s.refreshOwner(ctx, ownerID)
		if err != nil {
			zap.L().Warn("failed to refresh entitlement status",
				zap.String("kind", s.kind.String()),
				zap.String("owner_id", ownerID),
				zap.Error(err),
			)
			continue
		}
		if republished {
			count++
		}
	}

	if count > 0 {
		refreshRepublishedTotal.WithLabelValues(s.kind.String()).Add(float64(count))
		zap.L().Info("entitlement statuses refreshed", zap.String("kind", s.kind.String()), zap.Int("republished", count))
	}
	span.SetAttributes(attribute.Int("entitlement.republished", count))
	return count
}

func (s *Store) refreshOwner(ctx context.Context, ownerID string) (bool, error) {
	unlock := s.locks.lock(ownerID)
	defer unlock()

	cur, err := s.StatusOf(ctx, ownerID)
	if err != nil {
		return false, err
	}
	if last, ok := s.notifier.Last(ownerID); ok && last.Same(cur) {
		return false, nil
	}
	s.notifier.Publish(ctx, ownerID, cur)
	return true, nil
}

// Clear wipes the repository when it supports it and closes every
// subscription. Tests only.
func (s *Store) Clear() {
	if r, ok := s.repo.(Resetter); ok {
		r.Reset()
	}
	s.notifier.Reset()
}
