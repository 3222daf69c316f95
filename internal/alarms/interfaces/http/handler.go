package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	alarms "optinet-monitor/internal/alarms/domain"
)

// AlarmService is the read/acknowledge surface exposed over HTTP.
type AlarmService interface {
	ListActive(ctx context.Context) ([]alarms.Alarm, error)
	Acknowledge(ctx context.Context, alarmID string, at time.Time) error
}

// Handler serves /api/v1/alarms.
type Handler struct {
	service AlarmService
}

// NewHandler constructs a handler.
func NewHandler(service AlarmService) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alarm handler: nil service")
	}
	return &Handler{service: service}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/alarms")
	path = strings.Trim(path, "/")

	switch {
	case r.Method == http.MethodGet && path == "":
		h.listActive(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/acknowledge"):
		h.acknowledge(w, r, strings.TrimSuffix(path, "/acknowledge"))
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	active, err := h.service.ListActive(r.Context())
	if err != nil {
		http.Error(w, "list alarms failed", http.StatusInternalServerError)
		return
	}
	if active == nil {
		active = []alarms.Alarm{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alarms": active,
		"count":  len(active),
	})
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request, alarmID string) {
	if alarmID == "" {
		http.Error(w, "missing alarm id", http.StatusBadRequest)
		return
	}
	if err := h.service.Acknowledge(r.Context(), alarmID, time.Now().UTC()); err != nil {
		if errors.Is(err, alarms.ErrNotFound) {
			http.Error(w, "alarm not found", http.StatusNotFound)
			return
		}
		http.Error(w, "acknowledge failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"alarm_id": alarmID, "status": alarms.StatusAcknowledged})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
