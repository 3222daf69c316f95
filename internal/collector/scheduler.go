package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default cycle intervals.
const (
	DefaultAlarmInterval    = 15 * time.Second
	DefaultCriticalInterval = 30 * time.Second
	DefaultNormalInterval   = 5 * time.Minute
	DefaultSweepInterval    = time.Minute
	DefaultInventoryAt      = "00:01"
)

// ScheduleConfig sets the cycle cadence. Zero values take the defaults.
type ScheduleConfig struct {
	AlarmInterval    time.Duration
	CriticalInterval time.Duration
	NormalInterval   time.Duration
	SweepInterval    time.Duration
	InventoryAt      string
}

// JobStatus describes one scheduled job for the status surface.
type JobStatus struct {
	Name     string    `json:"name"`
	Interval string    `json:"interval"`
	LastRun  time.Time `json:"last_run,omitempty"`
}

// Scheduler drives the collection jobs. Each job runs in its own loop, so a
// slow or hung cycle stalls only its own slot. Interval changes apply from
// the next tick onward.
type Scheduler struct {
	jobs        *Jobs
	sweep       func(context.Context) error
	logger      *zap.Logger
	inventoryAt string

	mu               sync.RWMutex
	alarmInterval    time.Duration
	criticalInterval time.Duration
	normalInterval   time.Duration
	sweepInterval    time.Duration
	lastRun          map[string]time.Time

	wg sync.WaitGroup
}

// SchedulerOption customizes the scheduler.
type SchedulerOption func(*Scheduler)

// WithRuleSweep attaches the periodic rule sweep.
func WithRuleSweep(sweep func(context.Context) error) SchedulerOption {
	return func(s *Scheduler) {
		s.sweep = sweep
	}
}

// NewScheduler constructs a scheduler.
func NewScheduler(jobs *Jobs, cfg ScheduleConfig, logger *zap.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if jobs == nil {
		return nil, errors.New("scheduler: nil jobs")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InventoryAt == "" {
		cfg.InventoryAt = DefaultInventoryAt
	}
	if _, _, err := parseDailyAt(cfg.InventoryAt); err != nil {
		return nil, errors.New("scheduler: invalid inventory time, want HH:MM")
	}
	scheduler := &Scheduler{
		jobs:             jobs,
		logger:           logger,
		inventoryAt:      cfg.InventoryAt,
		alarmInterval:    orDefault(cfg.AlarmInterval, DefaultAlarmInterval),
		criticalInterval: orDefault(cfg.CriticalInterval, DefaultCriticalInterval),
		normalInterval:   orDefault(cfg.NormalInterval, DefaultNormalInterval),
		sweepInterval:    orDefault(cfg.SweepInterval, DefaultSweepInterval),
		lastRun:          make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(scheduler)
	}
	return scheduler, nil
}

// Start launches all job loops. It returns immediately; loops stop when the
// context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.runLoop(ctx, JobAlarms, func() time.Duration { return s.interval(&s.alarmInterval) }, s.jobs.CollectAlarms)
	s.runLoop(ctx, JobMeasurementsCritical, func() time.Duration { return s.interval(&s.criticalInterval) }, s.jobs.CollectCriticalMeasurements)
	s.runLoop(ctx, JobMeasurementsNormal, func() time.Duration { return s.interval(&s.normalInterval) }, s.jobs.CollectNormalMeasurements)
	if s.sweep != nil {
		s.runLoop(ctx, "rule_sweep", func() time.Duration { return s.interval(&s.sweepInterval) }, s.sweep)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runDaily(ctx)
	}()
	s.logger.Info("scheduler started",
		zap.Duration("alarm_interval", s.alarmInterval),
		zap.Duration("critical_interval", s.criticalInterval),
		zap.Duration("normal_interval", s.normalInterval),
		zap.String("inventory_at", s.inventoryAt))
}

// Wait blocks until all job loops have stopped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// SetIntervals updates the measurement cadence. Zero values keep the current
// interval. The change takes effect at each loop's next tick.
func (s *Scheduler) SetIntervals(critical, normal time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if critical > 0 {
		s.criticalInterval = critical
	}
	if normal > 0 {
		s.normalInterval = normal
	}
	s.logger.Info("collection intervals updated",
		zap.Duration("critical_interval", s.criticalInterval),
		zap.Duration("normal_interval", s.normalInterval))
}

// Status reports all scheduled jobs with their cadence and last run time.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := []JobStatus{
		{Name: JobInventory, Interval: "daily at " + s.inventoryAt, LastRun: s.lastRun[JobInventory]},
		{Name: JobAlarms, Interval: s.alarmInterval.String(), LastRun: s.lastRun[JobAlarms]},
		{Name: JobMeasurementsCritical, Interval: s.criticalInterval.String(), LastRun: s.lastRun[JobMeasurementsCritical]},
		{Name: JobMeasurementsNormal, Interval: s.normalInterval.String(), LastRun: s.lastRun[JobMeasurementsNormal]},
	}
	if s.sweep != nil {
		status = append(status, JobStatus{Name: "rule_sweep", Interval: s.sweepInterval.String(), LastRun: s.lastRun["rule_sweep"]})
	}
	return status
}

func (s *Scheduler) runLoop(ctx context.Context, name string, interval func() time.Duration, run func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval()):
				s.markRun(name)
				if err := run(ctx); err != nil {
					s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
				}
			}
		}
	}()
}

func (s *Scheduler) runDaily(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	hour, minute, _ := parseDailyAt(s.inventoryAt)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			now = now.UTC()
			if now.Hour() != hour || now.Minute() != minute {
				continue
			}
			s.markRun(JobInventory)
			if err := s.jobs.CollectCards(ctx); err != nil {
				s.logger.Error("scheduled job failed", zap.String("job", JobInventory), zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) interval(field *time.Duration) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *field
}

func (s *Scheduler) markRun(name string) {
	s.mu.Lock()
	s.lastRun[name] = time.Now().UTC()
	s.mu.Unlock()
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
