package nms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	alarms "optinet-monitor/internal/alarms/domain"
	inventory "optinet-monitor/internal/inventory/domain"
	"optinet-monitor/internal/observability/metrics"
	telemetry "optinet-monitor/internal/telemetry/domain"
)

// ErrRemoteUnavailable indicates the retry budget was exhausted against the
// remote NMS for one request.
var ErrRemoteUnavailable = errors.New("nms: remote unavailable")

const (
	defaultTimeout  = 30 * time.Second
	defaultAttempts = 3
	pageSize        = 100

	headerAuthorization = "Authorization"
	headerCSRFToken     = "X-CSRF-Token"
	headerRequestedWith = "X-Requested-With"
)

// AlarmFilter narrows an alarm fetch.
type AlarmFilter struct {
	Status     string
	Severity   string
	CardSerial string
}

// Client talks to the NMS REST API. It owns retry with exponential backoff,
// the anti-forgery token refresh handshake, pagination, and the legacy
// endpoint fallback. Credentials are mutable at runtime; in-flight requests
// keep the values they started with.
type Client struct {
	mu      sync.RWMutex
	baseURL string
	token   string

	http     *resty.Client
	logger   *zap.Logger
	attempts int
	backoff  func(attempt int) time.Duration
	now      func() time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithAttempts sets the retry budget for transient failures.
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithBackoff overrides the retry delay schedule.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(c *Client) {
		if fn != nil {
			c.backoff = fn
		}
	}
}

// NewClient constructs an NMS client.
func NewClient(baseURL, token string, logger *zap.Logger, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("nms: empty base url")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		logger:   logger,
		attempts: defaultAttempts,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	client.http = resty.New().
		SetTimeout(defaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// UpdateCredentials swaps the base URL and/or token. Empty arguments keep
// the current value. New requests pick up the new credentials; in-flight
// requests are unaffected.
func (c *Client) UpdateCredentials(baseURL, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	if token != "" {
		c.token = token
	}
}

func (c *Client) credentials() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL, c.token
}

// FetchCards lists the full card inventory.
func (c *Client) FetchCards(ctx context.Context) ([]inventory.Card, error) {
	items, err := c.fetchPaged(ctx, "/v1/inventory/state", "cards", nil)
	if err != nil {
		c.logger.Warn("card fetch failed on primary endpoint, trying legacy", zap.Error(err))
		items, err = c.fetchSingle(ctx, "/cards", "cards", nil)
		if err != nil {
			return nil, fmt.Errorf("nms: fetch cards: %w", err)
		}
	}
	now := c.now()
	cards := make([]inventory.Card, 0, len(items))
	for _, raw := range items {
		var dto cardDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			c.logger.Warn("skipping undecodable card", zap.Error(err))
			continue
		}
		cards = append(cards, dto.toDomain(now))
	}
	return cards, nil
}

// FetchMeasurements lists measurements, optionally filtered to one card.
func (c *Client) FetchMeasurements(ctx context.Context, cardSerial string) ([]telemetry.Measurement, error) {
	params := map[string]string{}
	if cardSerial != "" {
		params["cardSerial"] = cardSerial
	}
	items, err := c.fetchPaged(ctx, "/v1/measures/state", "measurements", params)
	if err != nil {
		c.logger.Warn("measurement fetch failed on primary endpoint, trying legacy",
			zap.String("card_serial", cardSerial), zap.Error(err))
		legacy := map[string]string{"limit": "1000", "offset": "0"}
		if cardSerial != "" {
			legacy["cardSerial"] = cardSerial
		}
		items, err = c.fetchSingle(ctx, "/measurements", "measurements", legacy)
		if err != nil {
			return nil, fmt.Errorf("nms: fetch measurements: %w", err)
		}
	}
	now := c.now()
	measurements := make([]telemetry.Measurement, 0, len(items))
	for _, raw := range items {
		var dto measurementDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			c.logger.Warn("skipping undecodable measurement", zap.Error(err))
			continue
		}
		measurements = append(measurements, dto.toDomain(now))
	}
	return measurements, nil
}

// FetchAlarms lists alarms matching the filter.
func (c *Client) FetchAlarms(ctx context.Context, filter AlarmFilter) ([]alarms.Alarm, error) {
	params := map[string]string{}
	if filter.Status != "" {
		params["status"] = filter.Status
	}
	if filter.Severity != "" {
		params["severity"] = filter.Severity
	}
	if filter.CardSerial != "" {
		params["cardSerial"] = filter.CardSerial
	}
	items, err := c.fetchSingle(ctx, "/v1/alarm/state", "alarms", params)
	if err != nil {
		c.logger.Warn("alarm fetch failed on primary endpoint, trying legacy", zap.Error(err))
		items, err = c.fetchSingle(ctx, "/alarms", "alarms", params)
		if err != nil {
			return nil, fmt.Errorf("nms: fetch alarms: %w", err)
		}
	}
	now := c.now()
	result := make([]alarms.Alarm, 0, len(items))
	for _, raw := range items {
		var dto alarmDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			c.logger.Warn("skipping undecodable alarm", zap.Error(err))
			continue
		}
		result = append(result, dto.toDomain(now))
	}
	return result, nil
}

// fetchPaged walks page/size pagination until a short page is returned. A
// bare-array response carries no pagination metadata and ends the walk.
func (c *Client) fetchPaged(ctx context.Context, path, resourceKey string, params map[string]string) ([]json.RawMessage, error) {
	var all []json.RawMessage
	for page := 0; ; page++ {
		query := map[string]string{
			"page": strconv.Itoa(page),
			"size": strconv.Itoa(pageSize),
		}
		for k, v := range params {
			query[k] = v
		}
		body, err := c.get(ctx, path, query)
		if err != nil {
			return nil, err
		}
		items, envelope, err := decodeEnvelope(body, resourceKey)
		if err != nil {
			c.logger.Warn("unexpected response shape treated as empty",
				zap.String("path", path), zap.Error(err))
			return all, nil
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
		if len(items) < pageSize || !envelope {
			break
		}
	}
	return all, nil
}

func (c *Client) fetchSingle(ctx context.Context, path, resourceKey string, params map[string]string) ([]json.RawMessage, error) {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	items, _, err := decodeEnvelope(body, resourceKey)
	if err != nil {
		c.logger.Warn("unexpected response shape treated as empty",
			zap.String("path", path), zap.Error(err))
		return nil, nil
	}
	return items, nil
}

// csrfState is the token-attached half of the two-state request protocol.
// It stays empty until an authorization denial forces the refresh handshake;
// once populated, a second denial is surfaced instead of retried.
type csrfState struct {
	token   string
	cookies []*http.Cookie
}

func (c *Client) get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	base, token := c.credentials()
	var csrf csrfState
	var lastErr error

	for attempt := 0; attempt < c.attempts; attempt++ {
		req := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetHeader(headerAuthorization, "Token "+token)
		if csrf.token != "" {
			req.SetHeader(headerCSRFToken, csrf.token)
			req.SetHeader(headerRequestedWith, "XMLHttpRequest")
			req.SetCookies(csrf.cookies)
		}

		resp, err := req.Get(base + path)
		if err != nil {
			lastErr = err
			metrics.IncClientRequest("transport_error")
			if sleepErr := c.sleepBeforeRetry(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		status := resp.StatusCode()
		switch {
		case status < http.StatusMultipleChoices:
			metrics.IncClientRequest("success")
			return resp.Body(), nil

		case status == http.StatusForbidden && csrf.token == "" && bytes.Contains(bytes.ToLower(resp.Body()), []byte("csrf")):
			refreshed, ok := c.refreshCSRF(ctx, base, token)
			if !ok {
				metrics.IncClientRequest("auth_denied")
				return nil, fmt.Errorf("nms: authorization denied (http %d): anti-forgery token unavailable", status)
			}
			c.logger.Info("anti-forgery token refreshed, retrying request", zap.String("path", path))
			csrf = refreshed
			continue

		case status >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("nms: http %d", status)
			metrics.IncClientRequest("server_error")
			c.logger.Warn("server error, will retry",
				zap.Int("status", status),
				zap.Int("attempt", attempt+1),
				zap.Int("budget", c.attempts))
			if sleepErr := c.sleepBeforeRetry(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue

		default:
			metrics.IncClientRequest("client_error")
			return nil, fmt.Errorf("nms: http %d", status)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, lastErr)
}

// refreshCSRF performs the token refresh handshake: a plain GET against the
// base URL, then a case-insensitive scan of response cookies for a name
// containing "csrf", falling back to the known response headers.
func (c *Client) refreshCSRF(ctx context.Context, base, token string) (csrfState, bool) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(headerAuthorization, "Token "+token).
		Get(base + "/")
	if err != nil {
		c.logger.Error("anti-forgery token refresh failed", zap.Error(err))
		return csrfState{}, false
	}
	cookies := resp.Cookies()
	for _, cookie := range cookies {
		if strings.Contains(strings.ToLower(cookie.Name), "csrf") {
			return csrfState{token: cookie.Value, cookies: cookies}, true
		}
	}
	for _, header := range []string{headerCSRFToken, "CSRF-Token"} {
		if v := resp.Header().Get(header); v != "" {
			return csrfState{token: v, cookies: cookies}, true
		}
	}
	c.logger.Error("anti-forgery token not present in refresh response")
	return csrfState{}, false
}

func (c *Client) sleepBeforeRetry(ctx context.Context, attempt int) error {
	if attempt+1 >= c.attempts {
		return nil
	}
	metrics.IncClientRetry()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.backoff(attempt)):
		return nil
	}
}
