package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// NMSConfig points at the remote NMS API.
type NMSConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RedisConfig points at the latest-value cache. An empty address disables
// the cache; sweeps then read from Postgres directly.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BrokerConfig points at the MQTT broker carrying the event channel.
type BrokerConfig struct {
	URL      string `yaml:"url"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// CollectorConfig sets the collection cadence.
type CollectorConfig struct {
	AlarmIntervalSeconds    int      `yaml:"alarm_interval_seconds"`
	CriticalIntervalSeconds int      `yaml:"critical_interval_seconds"`
	NormalIntervalSeconds   int      `yaml:"normal_interval_seconds"`
	SweepIntervalSeconds    int      `yaml:"sweep_interval_seconds"`
	InventoryAt             string   `yaml:"inventory_at"`
	CriticalKeys            []string `yaml:"critical_keys"`
}

// LogConfig sets logger output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full service configuration.
type Config struct {
	HTTPAddr    string          `yaml:"http_addr"`
	DatabaseURL string          `yaml:"database_url"`
	NMS         NMSConfig       `yaml:"nms"`
	Redis       RedisConfig     `yaml:"redis"`
	Broker      BrokerConfig    `yaml:"broker"`
	Collector   CollectorConfig `yaml:"collector"`
	Log         LogConfig       `yaml:"log"`
}

// Load reads configuration from the yaml file named by OPTINET_CONFIG, then
// applies environment overrides on top.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr: ":8080",
		NMS: NMSConfig{
			TimeoutSeconds: 30,
		},
		Broker: BrokerConfig{
			URL:      "tcp://localhost:1883",
			ClientID: "optinet-monitor",
		},
		Collector: CollectorConfig{
			AlarmIntervalSeconds:    15,
			CriticalIntervalSeconds: 30,
			NormalIntervalSeconds:   300,
			SweepIntervalSeconds:    60,
			InventoryAt:             "00:01",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path := os.Getenv("OPTINET_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.NMS.BaseURL = getenvDefault("NMS_API_URL", cfg.NMS.BaseURL)
	cfg.NMS.Token = getenvDefault("NMS_API_TOKEN", cfg.NMS.Token)
	cfg.Redis.Addr = getenvDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenvDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Broker.URL = getenvDefault("BROKER_URL", cfg.Broker.URL)
	cfg.Broker.Username = getenvDefault("BROKER_USERNAME", cfg.Broker.Username)
	cfg.Broker.Password = getenvDefault("BROKER_PASSWORD", cfg.Broker.Password)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Collector.CriticalIntervalSeconds = getenvIntDefault("COLLECT_INTERVAL_CRITICAL", cfg.Collector.CriticalIntervalSeconds)
	cfg.Collector.NormalIntervalSeconds = getenvIntDefault("COLLECT_INTERVAL_NORMAL", cfg.Collector.NormalIntervalSeconds)
	if keys := splitCSV(os.Getenv("CRITICAL_MEASURE_KEYS")); len(keys) > 0 {
		cfg.Collector.CriticalKeys = keys
	}

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("config: database url required")
	}
	if cfg.NMS.BaseURL == "" {
		return cfg, errors.New("config: nms base url required")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
