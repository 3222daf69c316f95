package collector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Runtime configuration keys in the system_config table.
const (
	ConfigKeyAPIURL           = "NMS_API_URL"
	ConfigKeyAPIToken         = "NMS_API_TOKEN"
	ConfigKeyCriticalInterval = "COLLECT_INTERVAL_CRITICAL"
	ConfigKeyNormalInterval   = "COLLECT_INTERVAL_NORMAL"
)

// SystemConfigStore reads operator-managed runtime configuration.
type SystemConfigStore interface {
	Load(ctx context.Context) (map[string]string, error)
}

// CredentialUpdater swaps the remote endpoint and token at runtime.
type CredentialUpdater interface {
	UpdateCredentials(baseURL, token string)
}

// Runtime applies operator configuration changes without a restart. Values
// absent from the table keep their current setting.
type Runtime struct {
	config      SystemConfigStore
	credentials CredentialUpdater
	scheduler   *Scheduler
	logger      *zap.Logger
}

// NewRuntime constructs the runtime reloader.
func NewRuntime(config SystemConfigStore, credentials CredentialUpdater, scheduler *Scheduler, logger *zap.Logger) (*Runtime, error) {
	if config == nil {
		return nil, errors.New("runtime: nil config store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		config:      config,
		credentials: credentials,
		scheduler:   scheduler,
		logger:      logger,
	}, nil
}

// Reload pulls the system configuration and applies endpoint, token and
// interval overrides.
func (r *Runtime) Reload(ctx context.Context) error {
	values, err := r.config.Load(ctx)
	if err != nil {
		return fmt.Errorf("runtime: load system config: %w", err)
	}

	if r.credentials != nil {
		baseURL := values[ConfigKeyAPIURL]
		token := values[ConfigKeyAPIToken]
		if baseURL != "" || token != "" {
			r.credentials.UpdateCredentials(baseURL, token)
		}
	}
	if r.scheduler != nil {
		critical := intervalSeconds(values[ConfigKeyCriticalInterval])
		normal := intervalSeconds(values[ConfigKeyNormalInterval])
		if critical > 0 || normal > 0 {
			r.scheduler.SetIntervals(critical, normal)
		}
	}
	r.logger.Info("runtime configuration reloaded", zap.Int("keys", len(values)))
	return nil
}

func intervalSeconds(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
