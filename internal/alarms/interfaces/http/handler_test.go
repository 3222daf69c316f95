package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alarms "optinet-monitor/internal/alarms/domain"
)

type stubAlarmService struct {
	active       []alarms.Alarm
	acknowledged []string
	ackErr       error
}

func (s *stubAlarmService) ListActive(context.Context) ([]alarms.Alarm, error) {
	return s.active, nil
}

func (s *stubAlarmService) Acknowledge(_ context.Context, alarmID string, _ time.Time) error {
	if s.ackErr != nil {
		return s.ackErr
	}
	s.acknowledged = append(s.acknowledged, alarmID)
	return nil
}

func TestListActiveAlarms(t *testing.T) {
	service := &stubAlarmService{active: []alarms.Alarm{
		{ID: "A1", Severity: "MAJOR", Status: alarms.StatusActive},
	}}
	handler, err := NewHandler(service)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/alarms", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	var body struct {
		Alarms []alarms.Alarm `json:"alarms"`
		Count  int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "A1", body.Alarms[0].ID)
}

func TestListActiveAlarmsEmpty(t *testing.T) {
	handler, err := NewHandler(&stubAlarmService{})
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/alarms", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"alarms":[],"count":0}`, recorder.Body.String())
}

func TestAcknowledgeAlarm(t *testing.T) {
	service := &stubAlarmService{}
	handler, err := NewHandler(service)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/alarms/A1/acknowledge", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, []string{"A1"}, service.acknowledged)
}

func TestAcknowledgeUnknownAlarm(t *testing.T) {
	service := &stubAlarmService{ackErr: alarms.ErrNotFound}
	handler, err := NewHandler(service)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/alarms/A9/acknowledge", nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestUnknownRoute(t *testing.T) {
	handler, err := NewHandler(&stubAlarmService{})
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodDelete, "/api/v1/alarms/A1", nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}
