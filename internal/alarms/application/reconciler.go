package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	alarms "optinet-monitor/internal/alarms/domain"
	"optinet-monitor/internal/observability/metrics"
)

// Reconciler keeps local alarm rows consistent with the remote device's
// current-active snapshot. Absence from the snapshot implies resolved, so
// callers must never invoke Reconcile with a partial or failed fetch: a
// fetch failure aborts the whole cycle instead of clearing everything.
type Reconciler struct {
	store  AlarmStore
	clock  Clock
	logger *zap.Logger
}

// ReconcilerOption customizes the reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerClock assigns a clock.
func WithReconcilerClock(clock Clock) ReconcilerOption {
	return func(r *Reconciler) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewReconciler constructs a reconciler.
func NewReconciler(store AlarmStore, logger *zap.Logger, opts ...ReconcilerOption) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("reconciler: nil alarm store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	reconciler := &Reconciler{store: store, clock: systemClock{}, logger: logger}
	for _, opt := range opts {
		opt(reconciler)
	}
	return reconciler, nil
}

// Reconcile aligns local alarms with one remote active-alarm snapshot.
// Remote alarms without an id get a deterministic one derived from their
// identity, so re-fetching the same logical alarm never duplicates a row.
// Locally-ACTIVE ids absent from the snapshot are marked CLEARED.
func (r *Reconciler) Reconcile(ctx context.Context, remote []alarms.Alarm) (upserted, cleared int, err error) {
	activeIDs, err := r.store.ActiveIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("reconciler: list active alarms: %w", err)
	}

	current := make(map[string]struct{}, len(remote))
	for i := range remote {
		alarm := remote[i]
		if alarm.ID == "" {
			alarm.ID = alarms.DeriveAlarmID(alarm.CardSerial, alarm.Type, alarm.TriggeredAt)
		}
		alarm.Status = alarms.StatusActive
		current[alarm.ID] = struct{}{}
		if err := r.store.Upsert(ctx, &alarm); err != nil {
			r.logger.Error("alarm upsert failed",
				zap.String("alarm_id", alarm.ID),
				zap.String("card_serial", alarm.CardSerial),
				zap.Error(err))
			continue
		}
		upserted++
	}

	var stale []string
	for _, id := range activeIDs {
		if _, ok := current[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		n, err := r.store.MarkCleared(ctx, stale, r.clock.Now())
		if err != nil {
			return upserted, 0, fmt.Errorf("reconciler: clear stale alarms: %w", err)
		}
		cleared = n
		for i := 0; i < n; i++ {
			metrics.IncAlarmTransition("reconciler_cleared")
		}
		r.logger.Info("stale alarms cleared", zap.Int("count", cleared))
	}
	return upserted, cleared, nil
}
