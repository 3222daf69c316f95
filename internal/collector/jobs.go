package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	alarms "optinet-monitor/internal/alarms/domain"
	inventory "optinet-monitor/internal/inventory/domain"
	"optinet-monitor/internal/nms"
	"optinet-monitor/internal/observability/metrics"
	telemetry "optinet-monitor/internal/telemetry/domain"
)

// Job names used for metrics and status reporting.
const (
	JobInventory            = "inventory"
	JobAlarms               = "alarms"
	JobMeasurementsCritical = "measurements_critical"
	JobMeasurementsNormal   = "measurements_normal"
)

// defaultCriticalKeys select the measure keys polled on the fast cycle.
// Matching is by substring on the upper-cased key.
var defaultCriticalKeys = []string{"PUMP_POWER", "OSNR", "OSC_POWER"}

// RemoteClient fetches inventory, telemetry and alarms from the NMS.
type RemoteClient interface {
	FetchCards(ctx context.Context) ([]inventory.Card, error)
	FetchMeasurements(ctx context.Context, cardSerial string) ([]telemetry.Measurement, error)
	FetchAlarms(ctx context.Context, filter nms.AlarmFilter) ([]alarms.Alarm, error)
}

// AlarmReconciler aligns local alarms with one remote snapshot.
type AlarmReconciler interface {
	Reconcile(ctx context.Context, remote []alarms.Alarm) (upserted, cleared int, err error)
}

// Jobs holds the collection cycles. Each job is one full fetch-and-persist
// pass; failures inside a cycle are contained per record where the cycle can
// still make progress.
type Jobs struct {
	remote       RemoteClient
	writer       *Writer
	reconciler   AlarmReconciler
	logger       *zap.Logger
	criticalKeys []string
}

// JobsOption customizes the job set.
type JobsOption func(*Jobs)

// WithCriticalKeys overrides the critical measure key patterns.
func WithCriticalKeys(keys []string) JobsOption {
	return func(j *Jobs) {
		if len(keys) == 0 {
			return
		}
		upper := make([]string, 0, len(keys))
		for _, key := range keys {
			if key = strings.ToUpper(strings.TrimSpace(key)); key != "" {
				upper = append(upper, key)
			}
		}
		if len(upper) > 0 {
			j.criticalKeys = upper
		}
	}
}

// NewJobs constructs the job set.
func NewJobs(remote RemoteClient, writer *Writer, reconciler AlarmReconciler, logger *zap.Logger, opts ...JobsOption) (*Jobs, error) {
	if remote == nil {
		return nil, errors.New("jobs: nil remote client")
	}
	if writer == nil {
		return nil, errors.New("jobs: nil writer")
	}
	if reconciler == nil {
		return nil, errors.New("jobs: nil reconciler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	jobs := &Jobs{
		remote:       remote,
		writer:       writer,
		reconciler:   reconciler,
		logger:       logger,
		criticalKeys: defaultCriticalKeys,
	}
	for _, opt := range opts {
		opt(jobs)
	}
	return jobs, nil
}

// CollectCards syncs the full card inventory.
func (j *Jobs) CollectCards(ctx context.Context) error {
	start := time.Now()
	cards, err := j.remote.FetchCards(ctx)
	if err != nil {
		metrics.IncCollectorCycle(JobInventory, "error")
		return fmt.Errorf("jobs: fetch cards: %w", err)
	}
	stored := 0
	for i := range cards {
		if err := j.writer.UpsertCard(ctx, cards[i]); err != nil {
			j.logger.Error("card persist failed, skipping record",
				zap.String("card_serial", cards[i].Serial), zap.Error(err))
			continue
		}
		stored++
	}
	metrics.IncCollectorCycle(JobInventory, "ok")
	metrics.AddCollectorItems(JobInventory, stored)
	metrics.ObserveCollectorCycle(JobInventory, time.Since(start).Seconds())
	j.logger.Info("inventory sync completed",
		zap.Int("fetched", len(cards)), zap.Int("stored", stored))
	return nil
}

// CollectAlarms fetches the remote active-alarm snapshot and reconciles it
// against local state. A fetch failure aborts the cycle without touching any
// alarm: an empty snapshot means resolved, a failed one means unknown.
func (j *Jobs) CollectAlarms(ctx context.Context) error {
	start := time.Now()
	remote, err := j.remote.FetchAlarms(ctx, nms.AlarmFilter{Status: alarms.StatusActive})
	if err != nil {
		metrics.IncCollectorCycle(JobAlarms, "error")
		return fmt.Errorf("jobs: fetch alarms: %w", err)
	}
	upserted, cleared, err := j.reconciler.Reconcile(ctx, remote)
	if err != nil {
		metrics.IncCollectorCycle(JobAlarms, "error")
		return fmt.Errorf("jobs: reconcile alarms: %w", err)
	}
	metrics.IncCollectorCycle(JobAlarms, "ok")
	metrics.AddCollectorItems(JobAlarms, upserted)
	metrics.ObserveCollectorCycle(JobAlarms, time.Since(start).Seconds())
	j.logger.Info("alarm sync completed",
		zap.Int("remote", len(remote)),
		zap.Int("upserted", upserted),
		zap.Int("cleared", cleared))
	return nil
}

// CollectCriticalMeasurements polls only the critical measure keys.
func (j *Jobs) CollectCriticalMeasurements(ctx context.Context) error {
	return j.collectMeasurements(ctx, JobMeasurementsCritical, true)
}

// CollectNormalMeasurements polls the full measurement set.
func (j *Jobs) CollectNormalMeasurements(ctx context.Context) error {
	return j.collectMeasurements(ctx, JobMeasurementsNormal, false)
}

func (j *Jobs) collectMeasurements(ctx context.Context, job string, criticalOnly bool) error {
	start := time.Now()
	cards, err := j.knownCards(ctx)
	if err != nil {
		metrics.IncCollectorCycle(job, "error")
		return err
	}
	if len(cards) == 0 {
		metrics.IncCollectorCycle(job, "ok")
		j.logger.Warn("no cards in inventory, skipping measurement cycle", zap.String("job", job))
		return nil
	}

	stored := 0
	for _, card := range cards {
		if card.Serial == "" {
			continue
		}
		points, err := j.remote.FetchMeasurements(ctx, card.Serial)
		if err != nil {
			j.logger.Error("measurement fetch failed, skipping card",
				zap.String("card_serial", card.Serial), zap.Error(err))
			continue
		}
		for _, point := range points {
			if criticalOnly && !j.isCritical(point.MeasureKey) {
				continue
			}
			if point.Site == "" {
				point.Site = card.Site
			}
			if point.CardPart == "" {
				point.CardPart = card.Part
			}
			if err := j.writer.StoreMeasurement(ctx, point); err != nil {
				j.logger.Error("measurement persist failed, skipping record",
					zap.String("card_serial", point.CardSerial),
					zap.String("measure_key", point.MeasureKey),
					zap.Error(err))
				continue
			}
			stored++
		}
	}
	metrics.IncCollectorCycle(job, "ok")
	metrics.AddCollectorItems(job, stored)
	metrics.ObserveCollectorCycle(job, time.Since(start).Seconds())
	j.logger.Info("measurement cycle completed",
		zap.String("job", job),
		zap.Int("cards", len(cards)),
		zap.Int("stored", stored))
	return nil
}

// knownCards reads the local inventory, syncing it first when empty so a
// fresh deployment can start measuring without waiting for the daily job.
func (j *Jobs) knownCards(ctx context.Context) ([]inventory.Card, error) {
	cards, err := j.writer.cards.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobs: list cards: %w", err)
	}
	if len(cards) > 0 {
		return cards, nil
	}
	j.logger.Info("inventory empty, running card sync first")
	if err := j.CollectCards(ctx); err != nil {
		return nil, err
	}
	cards, err = j.writer.cards.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobs: list cards: %w", err)
	}
	return cards, nil
}

func (j *Jobs) isCritical(measureKey string) bool {
	upper := strings.ToUpper(measureKey)
	for _, pattern := range j.criticalKeys {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}

// RunAll executes every job once, in dependency order. Failures are logged
// and do not stop the remaining jobs.
func (j *Jobs) RunAll(ctx context.Context) {
	for _, job := range []struct {
		name string
		run  func(context.Context) error
	}{
		{JobInventory, j.CollectCards},
		{JobAlarms, j.CollectAlarms},
		{JobMeasurementsCritical, j.CollectCriticalMeasurements},
		{JobMeasurementsNormal, j.CollectNormalMeasurements},
	} {
		if err := job.run(ctx); err != nil {
			j.logger.Error("job failed", zap.String("job", job.name), zap.Error(err))
		}
	}
}
