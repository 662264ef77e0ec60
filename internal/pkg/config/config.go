package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

const (
	DefaultCacheTTL = 30 * time.Second
	minCacheTTL     = 1
	maxCacheTTL     = 999
)

type Config struct {
	VrmCfg          VrmConfig     `envPrefix:"VRM_"`
	MqttCfg         MqttConfig    `envPrefix:"MQTT_"`
	TempUnit        string        `env:"TEMP_UNIT" envDefault:"C"`
	CacheTTL        string        `env:"CACHE_TTL" envDefault:"30"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	CleanupSchedule string        `env:"CLEANUP_SCHEDULE" envDefault:"0 3 * * *"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8000"`
	AdminTokenHash  string        `env:"ADMIN_TOKEN_HASH"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFile         string        `env:"LOG_FILE"`
}

type VrmConfig struct {
	APIKey             string        `env:"API_KEY"`
	BaseURL            string        `env:"BASE_URL" envDefault:"https://vrmapi.victronenergy.com/v2"`
	Timeout            time.Duration `env:"TIMEOUT" envDefault:"10s"`
	DiagnosticsTimeout time.Duration `env:"DIAGNOSTICS_TIMEOUT" envDefault:"15s"`
	RateLimit          float64       `env:"RATE_LIMIT" envDefault:"2"`
	RateBurst          int           `env:"RATE_BURST" envDefault:"4"`
}

type MqttConfig struct {
	Host        string `env:"HOST"`
	Username    string `env:"USER"`
	Password    string `env:"PASS"`
	TopicPrefix string `env:"TOPIC_PREFIX" envDefault:"homeassistant"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) TemperatureUnit() model.TemperatureUnit {
	return ParseTemperatureUnit(c.TempUnit)
}

func (c *Config) DiagnosticsTTL() time.Duration {
	return ParseCacheTTL(c.CacheTTL)
}

// ParseTemperatureUnit treats "C" and "CELSIUS" in any case as Celsius and
// everything else as Fahrenheit.
func ParseTemperatureUnit(raw string) model.TemperatureUnit {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "C", "CELSIUS":
		return model.Celsius
	}
	return model.Fahrenheit
}

// ParseCacheTTL reads a TTL in whole seconds. Values that do not parse or fall
// outside [1, 999] give DefaultCacheTTL.
func ParseCacheTTL(raw string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || secs < minCacheTTL || secs > maxCacheTTL {
		zap.L().Warn("invalid cache ttl, using default",
			zap.String("value", raw),
			zap.Duration("default", DefaultCacheTTL))
		return DefaultCacheTTL
	}
	return time.Duration(secs) * time.Second
}
