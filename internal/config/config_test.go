package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv("OPTINET_CONFIG", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/optinet")
	t.Setenv("NMS_API_URL", "https://nms.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "https://nms.example.com", cfg.NMS.BaseURL)
	assert.Equal(t, 30, cfg.NMS.TimeoutSeconds)
	assert.Equal(t, "tcp://localhost:1883", cfg.Broker.URL)
	assert.Equal(t, 15, cfg.Collector.AlarmIntervalSeconds)
	assert.Equal(t, 30, cfg.Collector.CriticalIntervalSeconds)
	assert.Equal(t, 300, cfg.Collector.NormalIntervalSeconds)
	assert.Equal(t, "00:01", cfg.Collector.InventoryAt)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadRequiresDatabaseAndNMS(t *testing.T) {
	t.Setenv("OPTINET_CONFIG", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NMS_API_URL", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://localhost/optinet")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_url: postgres://filehost/optinet
nms:
  base_url: https://file.example.com
  token: file-token
collector:
  critical_interval_seconds: 20
  critical_keys: [OSNR, EDFA_GAIN]
log:
  level: debug
`), 0o600))

	t.Setenv("OPTINET_CONFIG", path)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NMS_API_URL", "")
	t.Setenv("NMS_API_TOKEN", "env-token")
	t.Setenv("COLLECT_INTERVAL_NORMAL", "120")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://filehost/optinet", cfg.DatabaseURL)
	assert.Equal(t, "https://file.example.com", cfg.NMS.BaseURL)
	// env wins over the file
	assert.Equal(t, "env-token", cfg.NMS.Token)
	assert.Equal(t, 20, cfg.Collector.CriticalIntervalSeconds)
	assert.Equal(t, 120, cfg.Collector.NormalIntervalSeconds)
	assert.Equal(t, []string{"OSNR", "EDFA_GAIN"}, cfg.Collector.CriticalKeys)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestSplitCSV(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Equal(t, []string{"a", "b"}, splitCSV(" a , b ,"))
}
