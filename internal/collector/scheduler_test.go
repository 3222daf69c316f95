package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, cfg ScheduleConfig) *Scheduler {
	t.Helper()
	f := newJobsFixture(t, &fakeRemote{})
	scheduler, err := NewScheduler(f.jobs, cfg, nil)
	require.NoError(t, err)
	return scheduler
}

func TestParseDailyAt(t *testing.T) {
	hour, minute, err := parseDailyAt("00:01")
	require.NoError(t, err)
	assert.Equal(t, 0, hour)
	assert.Equal(t, 1, minute)

	hour, minute, err = parseDailyAt("23:59")
	require.NoError(t, err)
	assert.Equal(t, 23, hour)
	assert.Equal(t, 59, minute)

	for _, invalid := range []string{"24:00", "9am", "", "12:5:1"} {
		_, _, err := parseDailyAt(invalid)
		assert.Error(t, err, "value %q", invalid)
	}
}

func TestNewSchedulerRejectsBadInventoryTime(t *testing.T) {
	f := newJobsFixture(t, &fakeRemote{})
	_, err := NewScheduler(f.jobs, ScheduleConfig{InventoryAt: "nope"}, nil)
	assert.Error(t, err)
}

func TestSchedulerDefaults(t *testing.T) {
	scheduler := newTestScheduler(t, ScheduleConfig{})
	assert.Equal(t, DefaultAlarmInterval, scheduler.alarmInterval)
	assert.Equal(t, DefaultCriticalInterval, scheduler.criticalInterval)
	assert.Equal(t, DefaultNormalInterval, scheduler.normalInterval)
	assert.Equal(t, DefaultInventoryAt, scheduler.inventoryAt)
}

func TestSetIntervals(t *testing.T) {
	scheduler := newTestScheduler(t, ScheduleConfig{})

	scheduler.SetIntervals(10*time.Second, 2*time.Minute)
	assert.Equal(t, 10*time.Second, scheduler.interval(&scheduler.criticalInterval))
	assert.Equal(t, 2*time.Minute, scheduler.interval(&scheduler.normalInterval))

	// zero keeps the current value
	scheduler.SetIntervals(0, time.Minute)
	assert.Equal(t, 10*time.Second, scheduler.interval(&scheduler.criticalInterval))
	assert.Equal(t, time.Minute, scheduler.interval(&scheduler.normalInterval))
}

func TestStatusListsJobs(t *testing.T) {
	scheduler := newTestScheduler(t, ScheduleConfig{InventoryAt: "02:30"})
	status := scheduler.Status()
	require.Len(t, status, 4)

	names := make([]string, 0, len(status))
	for _, job := range status {
		names = append(names, job.Name)
	}
	assert.Equal(t, []string{JobInventory, JobAlarms, JobMeasurementsCritical, JobMeasurementsNormal}, names)
	assert.Equal(t, "daily at 02:30", status[0].Interval)
	assert.True(t, status[1].LastRun.IsZero())
}
