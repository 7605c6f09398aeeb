package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the typed view of the VITALS_* environment.
type Config struct {
	DBType string
	DBPath string

	HttpHostPort string
	GrpcHostPort string

	DefaultRate  float64
	DefaultBurst int

	Backend     string
	Push        string
	BackendURL  string
	BackendKey  string
	RealtimeURL string
	PostgresDSN string
	Table       string

	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	RedisAddr     string
	RedisPassword string
	RedisStream   string

	TemperatureUnit   string
	CriticalCount     int
	AlertCooldown     time.Duration
	HistoryCapacity   int
	OfflineTimeout    time.Duration
	HeartbeatInterval time.Duration
	MonitorDevices    []string
	Tracing           bool
}

func DefaultConfig() Config {
	return Config{
		DBType:            "file",
		DBPath:            "vitals.db",
		HttpHostPort:      ":1080",
		DefaultRate:       5,
		DefaultBurst:      10,
		Backend:           BackendLocal,
		Push:              PushLocal,
		Table:             DefaultReadingsTable,
		MQTTClientID:      "vital-signs-service",
		RedisStream:       "vitals:alerts",
		TemperatureUnit:   "C",
		CriticalCount:     5,
		AlertCooldown:     30 * time.Second,
		HistoryCapacity:   10,
		OfflineTimeout:    15 * time.Second,
		HeartbeatInterval: 10 * time.Second,
	}
}

// LoadConfig reads the environment on top of DefaultConfig. Unset keys keep
// their default, malformed ones fail with ErrInvalidConfig.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	var err error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str(EnvKeyVitalsDBType, &cfg.DBType)
	str(EnvKeyVitalsDbPath, &cfg.DBPath)
	str(EnvKeyVitalsHttpHostPort, &cfg.HttpHostPort)
	str(EnvKeyVitalsGrpcHostPort, &cfg.GrpcHostPort)
	str(EnvKeyVitalsBackend, &cfg.Backend)
	str(EnvKeyVitalsPush, &cfg.Push)
	str(EnvKeyVitalsBackendURL, &cfg.BackendURL)
	str(EnvKeyVitalsBackendKey, &cfg.BackendKey)
	str(EnvKeyVitalsRealtimeURL, &cfg.RealtimeURL)
	str(EnvKeyVitalsPostgresDSN, &cfg.PostgresDSN)
	str(EnvKeyVitalsTable, &cfg.Table)
	str(EnvKeyVitalsMQTTBroker, &cfg.MQTTBroker)
	str(EnvKeyVitalsMQTTClientID, &cfg.MQTTClientID)
	str(EnvKeyVitalsMQTTUsername, &cfg.MQTTUsername)
	str(EnvKeyVitalsMQTTPassword, &cfg.MQTTPassword)
	str(EnvKeyVitalsRedisAddr, &cfg.RedisAddr)
	str(EnvKeyVitalsRedisPassword, &cfg.RedisPassword)
	str(EnvKeyVitalsRedisStream, &cfg.RedisStream)
	str(EnvKeyVitalsTemperatureUnit, &cfg.TemperatureUnit)

	if v := os.Getenv(EnvKeyVitalsDefaultRate); v != "" {
		if cfg.DefaultRate, err = strconv.ParseFloat(v, 64); err != nil {
			return cfg, fmt.Errorf("%w: %s should be a float64 value", ErrInvalidConfig, EnvKeyVitalsDefaultRate)
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvKeyVitalsDefaultBurst, &cfg.DefaultBurst},
		{EnvKeyVitalsCriticalCount, &cfg.CriticalCount},
		{EnvKeyVitalsHistoryCapacity, &cfg.HistoryCapacity},
	}
	for _, it := range ints {
		if v := os.Getenv(it.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return cfg, fmt.Errorf("%w: %s should be a positive int value", ErrInvalidConfig, it.key)
			}
			*it.dst = n
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvKeyVitalsAlertCooldown, &cfg.AlertCooldown},
		{EnvKeyVitalsOfflineTimeout, &cfg.OfflineTimeout},
		{EnvKeyVitalsHeartbeatInterval, &cfg.HeartbeatInterval},
	}
	for _, it := range durations {
		if v := os.Getenv(it.key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return cfg, fmt.Errorf("%w: %s should be a positive duration like 30s", ErrInvalidConfig, it.key)
			}
			*it.dst = d
		}
	}

	if v := os.Getenv(EnvKeyVitalsTracing); v != "" {
		if cfg.Tracing, err = strconv.ParseBool(v); err != nil {
			return cfg, fmt.Errorf("%w: %s should be true or false", ErrInvalidConfig, EnvKeyVitalsTracing)
		}
	}

	cfg.MonitorDevices = SplitList(os.Getenv(EnvKeyVitalsMonitorDevices))
	cfg.TemperatureUnit = strings.ToUpper(cfg.TemperatureUnit)

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.DBType {
	case "file", "memory":
	default:
		return fmt.Errorf("%w: unknown %s %q", ErrInvalidConfig, EnvKeyVitalsDBType, c.DBType)
	}

	if c.TemperatureUnit != "C" && c.TemperatureUnit != "F" {
		return fmt.Errorf("%w: %s must be C or F", ErrInvalidConfig, EnvKeyVitalsTemperatureUnit)
	}

	switch c.Backend {
	case BackendLocal:
	case BackendPostgrest:
		if c.BackendURL == "" || c.BackendKey == "" {
			return fmt.Errorf("%w: postgrest backend needs %s and %s", ErrInvalidConfig, EnvKeyVitalsBackendURL, EnvKeyVitalsBackendKey)
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres backend needs %s", ErrInvalidConfig, EnvKeyVitalsPostgresDSN)
		}
	default:
		return fmt.Errorf("%w: unknown %s %q", ErrInvalidConfig, EnvKeyVitalsBackend, c.Backend)
	}

	switch c.Push {
	case PushLocal:
	case PushRealtime:
		if c.RealtimeURL == "" || c.BackendKey == "" {
			return fmt.Errorf("%w: realtime push needs %s and %s", ErrInvalidConfig, EnvKeyVitalsRealtimeURL, EnvKeyVitalsBackendKey)
		}
	case PushMQTT:
		if c.MQTTBroker == "" {
			return fmt.Errorf("%w: mqtt push needs %s", ErrInvalidConfig, EnvKeyVitalsMQTTBroker)
		}
	case PushPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres push needs %s", ErrInvalidConfig, EnvKeyVitalsPostgresDSN)
		}
	default:
		return fmt.Errorf("%w: unknown %s %q", ErrInvalidConfig, EnvKeyVitalsPush, c.Push)
	}

	return nil
}
