package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alarms "optinet-monitor/internal/alarms/domain"
	"optinet-monitor/internal/eventing"
	telemetry "optinet-monitor/internal/telemetry/domain"
)

type stubRules struct {
	rules []alarms.AlertRule
}

func (s stubRules) ListEnabled(context.Context) ([]alarms.AlertRule, error) {
	return s.rules, nil
}

type memAlarmStore struct {
	created []alarms.Alarm
	upserts []alarms.Alarm
	active  map[string]alarms.Alarm
	cleared []string
}

func newMemAlarmStore() *memAlarmStore {
	return &memAlarmStore{active: make(map[string]alarms.Alarm)}
}

func (s *memAlarmStore) Create(_ context.Context, alarm *alarms.Alarm) error {
	s.created = append(s.created, *alarm)
	s.active[alarm.ID] = *alarm
	return nil
}

func (s *memAlarmStore) Upsert(_ context.Context, alarm *alarms.Alarm) error {
	s.upserts = append(s.upserts, *alarm)
	if alarm.Status == alarms.StatusActive {
		s.active[alarm.ID] = *alarm
	}
	return nil
}

func (s *memAlarmStore) ActiveIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memAlarmStore) MarkCleared(_ context.Context, ids []string, _ time.Time) (int, error) {
	n := 0
	for _, id := range ids {
		if _, ok := s.active[id]; ok {
			delete(s.active, id)
			s.cleared = append(s.cleared, id)
			n++
		}
	}
	return n, nil
}

func (s *memAlarmStore) ListActive(context.Context) ([]alarms.Alarm, error) {
	result := make([]alarms.Alarm, 0, len(s.active))
	for _, alarm := range s.active {
		result = append(result, alarm)
	}
	return result, nil
}

type stubHistory struct {
	points []telemetry.Measurement
}

func (s stubHistory) History(context.Context, string, string, time.Duration) ([]telemetry.Measurement, error) {
	return s.points, nil
}

type stubLatest struct {
	points []telemetry.Measurement
}

func (s stubLatest) Latest(context.Context) ([]telemetry.Measurement, error) {
	return s.points, nil
}

type capturedEvent struct {
	topic string
	env   eventing.Envelope
}

type capturingPublisher struct {
	events []capturedEvent
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, env eventing.Envelope) error {
	p.events = append(p.events, capturedEvent{topic: topic, env: env})
	return nil
}

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time { return c.at }

func floatPtr(v float64) *float64 { return &v }

func aboveRule() alarms.AlertRule {
	return alarms.AlertRule{
		ID:           "r-temp",
		Name:         "High temperature",
		MeasureKey:   "TEMPERATURE",
		Condition:    alarms.ConditionAbove,
		ThresholdMax: floatPtr(70),
		Hysteresis:   0.5,
		Severity:     "MAJOR",
		Enabled:      true,
	}
}

func newTestEngine(t *testing.T, rules []alarms.AlertRule, store *memAlarmStore, history stubHistory, latest LatestReader) (*Engine, *capturingPublisher) {
	t.Helper()
	publisher := &capturingPublisher{}
	engine, err := NewEngine(stubRules{rules: rules}, store, history, latest, publisher, nil,
		WithClock(fixedClock{at: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}))
	require.NoError(t, err)
	return engine, publisher
}

func measurement(key string, value float64) telemetry.Measurement {
	return telemetry.Measurement{
		Time:       time.Date(2026, 8, 30, 11, 59, 0, 0, time.UTC),
		CardSerial: "C1",
		Site:       "SITE-A",
		MeasureKey: key,
		Value:      value,
		Unit:       "dBm",
	}
}

func TestAboveRuleTriggersOutsideBand(t *testing.T) {
	store := newMemAlarmStore()
	engine, publisher := newTestEngine(t, []alarms.AlertRule{aboveRule()}, store, stubHistory{}, nil)
	ctx := context.Background()

	// exactly threshold+hysteresis stays quiet
	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("TEMPERATURE", 70.5)))
	assert.Empty(t, store.created)

	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("TEMPERATURE", 70.6)))
	require.Len(t, store.created, 1)

	alarm := store.created[0]
	assert.Equal(t, "ALARM-20260830120000-C1-TEMPERATURE", alarm.ID)
	assert.Equal(t, alarms.TypeThresholdExceeded, alarm.Type)
	assert.Equal(t, "MAJOR", alarm.Severity)
	assert.Equal(t, "High temperature: TEMPERATURE = 70.6 dBm (Card: C1)", alarm.Description)
	assert.Equal(t, "r-temp", alarm.RuleID)
	assert.Equal(t, "TEMPERATURE", alarm.MeasureKey)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, eventing.TopicAlarmsTriggered, publisher.events[0].topic)
	assert.Equal(t, eventing.EventAlarmTriggered, publisher.events[0].env.EventType)
}

func TestAboveRuleDoesNotRetrigger(t *testing.T) {
	store := newMemAlarmStore()
	engine, _ := newTestEngine(t, []alarms.AlertRule{aboveRule()}, store, stubHistory{}, nil)
	ctx := context.Background()

	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("TEMPERATURE", 75)))
	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("TEMPERATURE", 80)))
	assert.Len(t, store.created, 1)
}

func TestAboveRuleClearsInsideBand(t *testing.T) {
	store := newMemAlarmStore()
	engine, publisher := newTestEngine(t, []alarms.AlertRule{aboveRule()}, store, stubHistory{}, nil)
	ctx := context.Background()

	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("TEMPERATURE", 75)))
	require.Len(t, store.created, 1)
	alarmID := store.created[0].ID

	// hysteresis keeps it open just under the trigger point
	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("TEMPERATURE", 70.5)))
	assert.Empty(t, store.cleared)

	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("TEMPERATURE", 70.4)))
	require.Equal(t, []string{alarmID}, store.cleared)

	require.Len(t, publisher.events, 2)
	assert.Equal(t, eventing.TopicAlarmsCleared, publisher.events[1].topic)

	// cleared means it can trigger again
	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("TEMPERATURE", 75)))
	assert.Len(t, store.created, 2)
}

func TestBelowRule(t *testing.T) {
	rule := alarms.AlertRule{
		ID:           "r-pump",
		Name:         "Low pump power",
		MeasureKey:   "PUMP_POWER",
		Condition:    alarms.ConditionBelow,
		ThresholdMin: floatPtr(-10),
		Hysteresis:   1,
		Severity:     "CRITICAL",
		Enabled:      true,
	}
	store := newMemAlarmStore()
	engine, _ := newTestEngine(t, []alarms.AlertRule{rule}, store, stubHistory{}, nil)
	ctx := context.Background()

	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("PUMP_POWER", -11)))
	assert.Empty(t, store.created)

	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("PUMP_POWER", -11.5)))
	assert.Len(t, store.created, 1)

	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("PUMP_POWER", -11)))
	assert.Len(t, store.cleared, 1)
}

func TestRangeRule(t *testing.T) {
	rule := alarms.AlertRule{
		ID:           "r-osc",
		Name:         "OSC power out of range",
		MeasureKey:   "OSC_POWER",
		Condition:    alarms.ConditionRange,
		ThresholdMin: floatPtr(-5),
		ThresholdMax: floatPtr(5),
		Hysteresis:   0.5,
		Severity:     "MINOR",
		Enabled:      true,
	}
	store := newMemAlarmStore()
	engine, _ := newTestEngine(t, []alarms.AlertRule{rule}, store, stubHistory{}, nil)
	ctx := context.Background()

	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("OSC_POWER", 0)))
	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("OSC_POWER", 5.5)))
	assert.Empty(t, store.created)

	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("OSC_POWER", 6)))
	assert.Len(t, store.created, 1)

	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("OSC_POWER", 0)))
	assert.Len(t, store.cleared, 1)

	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("OSC_POWER", -6)))
	assert.Len(t, store.created, 2)
}

func TestNilThresholdDisablesBranch(t *testing.T) {
	rule := aboveRule()
	rule.ThresholdMax = nil
	store := newMemAlarmStore()
	engine, _ := newTestEngine(t, []alarms.AlertRule{rule}, store, stubHistory{}, nil)

	require.NoError(t, engine.ProcessMeasurement(context.Background(), measurement("TEMPERATURE", 1e9)))
	assert.Empty(t, store.created)
}

func degradationRule() alarms.AlertRule {
	return alarms.AlertRule{
		ID:           "r-deg",
		Name:         "OSNR degradation",
		MeasureKey:   "OSNR",
		Condition:    alarms.ConditionDegradation,
		ThresholdMin: floatPtr(-5),
		Severity:     "MAJOR",
		Enabled:      true,
		TimeWindow:   "1 hour",
	}
}

func degradationHistory(older, newer float64, each int) stubHistory {
	var points []telemetry.Measurement
	for i := 0; i < each; i++ {
		points = append(points, telemetry.Measurement{Value: older})
	}
	for i := 0; i < each; i++ {
		points = append(points, telemetry.Measurement{Value: newer})
	}
	return stubHistory{points: points}
}

func TestDegradationTriggers(t *testing.T) {
	store := newMemAlarmStore()
	history := degradationHistory(10, 1, 10) // averages 10 -> 1, delta -9
	engine, publisher := newTestEngine(t, []alarms.AlertRule{degradationRule()}, store, history,
		stubLatest{points: []telemetry.Measurement{measurement("OSNR", 1)}})

	require.NoError(t, engine.CheckAllRules(context.Background()))
	require.Len(t, store.created, 1)
	assert.Equal(t, alarms.TypeDegradationDetected, store.created[0].Type)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, eventing.TopicAlarmsTriggered, publisher.events[0].topic)

	// second sweep on the same trend does not duplicate
	require.NoError(t, engine.CheckAllRules(context.Background()))
	assert.Len(t, store.created, 1)
}

func TestDegradationStaysQuietWithinThreshold(t *testing.T) {
	store := newMemAlarmStore()
	history := degradationHistory(10, 6, 10) // delta -4, threshold -5
	engine, _ := newTestEngine(t, []alarms.AlertRule{degradationRule()}, store, history,
		stubLatest{points: []telemetry.Measurement{measurement("OSNR", 6)}})

	require.NoError(t, engine.CheckAllRules(context.Background()))
	assert.Empty(t, store.created)
}

func TestDegradationNeedsTwoPoints(t *testing.T) {
	store := newMemAlarmStore()
	history := stubHistory{points: []telemetry.Measurement{{Value: 1}}}
	engine, _ := newTestEngine(t, []alarms.AlertRule{degradationRule()}, store, history,
		stubLatest{points: []telemetry.Measurement{measurement("OSNR", 1)}})

	require.NoError(t, engine.CheckAllRules(context.Background()))
	assert.Empty(t, store.created)
}

func TestDegradationIgnoredOnMeasurementPath(t *testing.T) {
	store := newMemAlarmStore()
	history := degradationHistory(10, 1, 10)
	engine, _ := newTestEngine(t, []alarms.AlertRule{degradationRule()}, store, history, nil)

	// trend rules only run on the sweep, not per measurement
	require.NoError(t, engine.ProcessMeasurement(context.Background(), measurement("OSNR", 1)))
	assert.Empty(t, store.created)
}

func TestHydrateRestoresActiveIndex(t *testing.T) {
	store := newMemAlarmStore()
	store.active["ALARM-1"] = alarms.Alarm{
		ID:         "ALARM-1",
		Type:       alarms.TypeThresholdExceeded,
		CardSerial: "C1",
		Status:     alarms.StatusActive,
		RuleID:     "r-temp",
		MeasureKey: "TEMPERATURE",
	}
	// reconciler-owned alarm without a rule binding is not tracked
	store.active["alarm-remote"] = alarms.Alarm{
		ID:         "alarm-remote",
		CardSerial: "C9",
		Status:     alarms.StatusActive,
	}

	engine, _ := newTestEngine(t, []alarms.AlertRule{aboveRule()}, store, stubHistory{}, nil)
	require.NoError(t, engine.Hydrate(context.Background()))

	ctx := context.Background()
	// already active: no second trigger
	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("TEMPERATURE", 80)))
	assert.Empty(t, store.created)

	// back to normal: the restored alarm clears
	require.NoError(t, engine.ProcessMeasurement(ctx, measurement("TEMPERATURE", 60)))
	assert.Equal(t, []string{"ALARM-1"}, store.cleared)
}

func TestCheckAllRulesSkipsMismatchedKeys(t *testing.T) {
	store := newMemAlarmStore()
	engine, _ := newTestEngine(t, []alarms.AlertRule{aboveRule()}, store, stubHistory{},
		stubLatest{points: []telemetry.Measurement{measurement("OSNR", 9000)}})

	require.NoError(t, engine.CheckAllRules(context.Background()))
	assert.Empty(t, store.created)
}
