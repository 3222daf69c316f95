package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	alarms "optinet-monitor/internal/alarms/domain"
	"optinet-monitor/internal/eventing"
	"optinet-monitor/internal/observability/metrics"
	telemetry "optinet-monitor/internal/telemetry/domain"
)

// Engine is the stateful per-(rule, card, measure) alarm tracker. It consumes
// measurements, applies threshold/hysteresis/degradation logic, and emits
// trigger and clear transitions.
//
// The active index maps composite keys to the currently open alarm. A key is
// present exactly while the engine judges the condition triggered. All
// evaluation runs under one mutex: jobs may overlap, and concurrent
// evaluation of the same key would race the index.
type Engine struct {
	rules     RuleStore
	store     AlarmStore
	history   MeasurementHistory
	latest    LatestReader
	publisher EventPublisher
	clock     Clock
	logger    *zap.Logger

	mu     sync.Mutex
	active map[string]*alarms.Alarm
}

// EngineOption customizes the engine.
type EngineOption func(*Engine)

// WithClock assigns a clock.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewEngine constructs a rule evaluation engine.
func NewEngine(rules RuleStore, store AlarmStore, history MeasurementHistory, latest LatestReader, publisher EventPublisher, logger *zap.Logger, opts ...EngineOption) (*Engine, error) {
	if rules == nil || store == nil {
		return nil, errors.New("alarm engine: nil store")
	}
	if history == nil {
		return nil, errors.New("alarm engine: nil measurement history")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := &Engine{
		rules:     rules,
		store:     store,
		history:   history,
		latest:    latest,
		publisher: publisher,
		clock:     systemClock{},
		logger:    logger,
		active:    make(map[string]*alarms.Alarm),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Hydrate rebuilds the active index from persisted ACTIVE alarms so that
// alarms raised before a restart can still auto-clear. Alarms without a rule
// binding (reconciler-owned) are not tracked by the engine.
func (e *Engine) Hydrate(ctx context.Context) error {
	open, err := e.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("alarm engine: hydrate: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	restored := 0
	for i := range open {
		alarm := open[i]
		if alarm.RuleID == "" || alarm.MeasureKey == "" {
			continue
		}
		key := alarmKey(alarm.RuleID, alarm.CardSerial, alarm.MeasureKey)
		if alarm.Type == alarms.TypeDegradationDetected {
			key = degradationKey(alarm.RuleID, alarm.CardSerial, alarm.MeasureKey)
		}
		e.active[key] = &alarm
		restored++
	}
	if restored > 0 {
		e.logger.Info("active alarm index hydrated", zap.Int("alarms", restored))
	}
	return nil
}

// ProcessMeasurement evaluates one measurement against all enabled rules
// matching its measure key.
func (e *Engine) ProcessMeasurement(ctx context.Context, m telemetry.Measurement) error {
	if m.MeasureKey == "" {
		return nil
	}
	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("alarm engine: load rules: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rule := range rules {
		if rule.MeasureKey != m.MeasureKey {
			continue
		}
		if err := e.checkRule(ctx, rule, m); err != nil {
			e.logger.Error("rule evaluation failed",
				zap.String("rule_id", rule.ID),
				zap.String("card_serial", m.CardSerial),
				zap.Error(err))
		}
	}
	return nil
}

// CheckAllRules sweeps every enabled rule against the latest known
// measurement per (card, measure key). The sweep lets alarms clear when no
// fresh measurement event arrives but stored data indicates normal.
func (e *Engine) CheckAllRules(ctx context.Context) error {
	if e.latest == nil {
		return errors.New("alarm engine: no latest measurement source")
	}
	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("alarm engine: load rules: %w", err)
	}
	latest, err := e.latest.Latest(ctx)
	if err != nil {
		return fmt.Errorf("alarm engine: load latest measurements: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range latest {
		for _, rule := range rules {
			if rule.MeasureKey != m.MeasureKey {
				continue
			}
			var checkErr error
			if rule.Condition == alarms.ConditionDegradation {
				checkErr = e.checkDegradation(ctx, rule, m)
			} else {
				checkErr = e.checkRule(ctx, rule, m)
			}
			if checkErr != nil {
				e.logger.Error("rule sweep evaluation failed",
					zap.String("rule_id", rule.ID),
					zap.String("card_serial", m.CardSerial),
					zap.Error(checkErr))
			}
		}
	}
	e.logger.Debug("rule sweep completed",
		zap.Int("rules", len(rules)), zap.Int("measurements", len(latest)))
	return nil
}

// checkRule evaluates one threshold rule instance. Trigger uses the outer
// band (threshold widened by hysteresis); clear requires the value back
// inside the widened band. Callers hold the engine mutex.
func (e *Engine) checkRule(ctx context.Context, rule alarms.AlertRule, m telemetry.Measurement) error {
	h := rule.Hysteresis
	min := rule.ThresholdMin
	max := rule.ThresholdMax

	shouldTrigger := false
	switch rule.Condition {
	case alarms.ConditionAbove:
		shouldTrigger = max != nil && m.Value > *max+h
	case alarms.ConditionBelow:
		shouldTrigger = min != nil && m.Value < *min-h
	case alarms.ConditionRange:
		shouldTrigger = min != nil && max != nil && (m.Value < *min-h || m.Value > *max+h)
	}

	key := alarmKey(rule.ID, m.CardSerial, m.MeasureKey)
	_, active := e.active[key]

	switch {
	case shouldTrigger && !active:
		return e.trigger(ctx, rule, m, key, alarms.TypeThresholdExceeded)
	case !shouldTrigger && active && insideClearBand(rule, m.Value, h):
		return e.clear(ctx, key)
	default:
		return nil
	}
}

func insideClearBand(rule alarms.AlertRule, value, h float64) bool {
	min := rule.ThresholdMin
	max := rule.ThresholdMax
	switch rule.Condition {
	case alarms.ConditionAbove:
		return max != nil && value <= *max+h
	case alarms.ConditionBelow:
		return min != nil && value >= *min-h
	case alarms.ConditionRange:
		return min != nil && max != nil && value >= *min-h && value <= *max+h
	default:
		return false
	}
}

// checkDegradation compares the recent average against the older average over
// the rule's lookback window. Below 20 points the two windows overlap; that
// coarse behavior is intentional. Degradation alarms never auto-clear: they
// require external acknowledgement. Callers hold the engine mutex.
func (e *Engine) checkDegradation(ctx context.Context, rule alarms.AlertRule, m telemetry.Measurement) error {
	if rule.Condition != alarms.ConditionDegradation {
		return nil
	}
	window := time.Duration(rule.WindowHours()) * time.Hour
	history, err := e.history.History(ctx, m.CardSerial, m.MeasureKey, window)
	if err != nil {
		return fmt.Errorf("alarm engine: load history: %w", err)
	}
	n := len(history)
	if n < 2 {
		return nil
	}

	span := n
	if span > 10 {
		span = 10
	}
	var sumCurrent, sumPrevious float64
	for _, point := range history[n-span:] {
		sumCurrent += point.Value
	}
	for _, point := range history[:span] {
		sumPrevious += point.Value
	}
	currentAvg := sumCurrent / float64(span)
	previousAvg := sumPrevious / float64(span)

	if rule.ThresholdMin == nil || currentAvg-previousAvg >= *rule.ThresholdMin {
		return nil
	}
	key := degradationKey(rule.ID, m.CardSerial, m.MeasureKey)
	if _, active := e.active[key]; active {
		return nil
	}
	return e.trigger(ctx, rule, m, key, alarms.TypeDegradationDetected)
}

func (e *Engine) trigger(ctx context.Context, rule alarms.AlertRule, m telemetry.Measurement, key, alarmType string) error {
	now := e.clock.Now()
	alarm := &alarms.Alarm{
		ID:          fmt.Sprintf("ALARM-%s-%s-%s", now.Format("20060102150405"), m.CardSerial, m.MeasureKey),
		Type:        alarmType,
		Severity:    rule.Severity,
		CardSerial:  m.CardSerial,
		Site:        m.Site,
		Description: fmt.Sprintf("%s: %s = %g %s (Card: %s)", rule.Name, m.MeasureKey, m.Value, m.Unit, m.CardSerial),
		Status:      alarms.StatusActive,
		RuleID:      rule.ID,
		MeasureKey:  m.MeasureKey,
		TriggeredAt: now,
	}
	if err := e.store.Create(ctx, alarm); err != nil {
		return fmt.Errorf("alarm engine: create alarm: %w", err)
	}
	e.active[key] = alarm
	metrics.IncAlarmTransition("triggered")
	e.logger.Warn("alarm triggered",
		zap.String("alarm_id", alarm.ID),
		zap.String("rule_id", rule.ID),
		zap.String("card_serial", m.CardSerial),
		zap.String("severity", alarm.Severity),
		zap.Float64("value", m.Value))
	e.publish(ctx, eventing.TopicAlarmsTriggered, eventing.EventAlarmTriggered, alarm)
	return nil
}

func (e *Engine) clear(ctx context.Context, key string) error {
	alarm := e.active[key]
	if alarm == nil {
		return nil
	}
	clearedAt := e.clock.Now()
	if _, err := e.store.MarkCleared(ctx, []string{alarm.ID}, clearedAt); err != nil {
		return fmt.Errorf("alarm engine: clear alarm: %w", err)
	}
	delete(e.active, key)
	metrics.IncAlarmTransition("cleared")
	e.logger.Info("alarm cleared", zap.String("alarm_id", alarm.ID))
	e.publish(ctx, eventing.TopicAlarmsCleared, eventing.EventAlarmCleared, eventing.AlarmCleared{AlarmID: alarm.ID})
	return nil
}

// publish is best-effort: the persistence write and the event publish are
// independent actions, not a transaction.
func (e *Engine) publish(ctx context.Context, topic, eventType string, data any) {
	if e.publisher == nil {
		return
	}
	env, err := eventing.NewEnvelope(eventType, data)
	if err != nil {
		e.logger.Error("event envelope build failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	if err := e.publisher.Publish(ctx, topic, env); err != nil {
		e.logger.Error("event publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

func alarmKey(ruleID, cardSerial, measureKey string) string {
	return ruleID + "|" + cardSerial + "|" + measureKey
}

func degradationKey(ruleID, cardSerial, measureKey string) string {
	return alarmKey(ruleID, cardSerial, measureKey) + "|degradation"
}
