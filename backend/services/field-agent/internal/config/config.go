package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "fieldservice/backend/libs/config"
)

// Config defines field agent configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Gateway GatewayConfig `yaml:"gateway"`
	Device  DeviceConfig  `yaml:"device"`
	Session SessionConfig `yaml:"session"`
	Redis   RedisConfig   `yaml:"redis"`
	Events  EventsConfig  `yaml:"events"`
}

type HTTPConfig struct {
	Port string `yaml:"port" env:"FIELD_AGENT_HTTP_PORT"`
}

type GatewayConfig struct {
	URL            string `yaml:"url" env:"VISIT_SERVICE_URL"`
	Token          string `yaml:"token" env:"FIELD_AGENT_GATEWAY_TOKEN"`
	TimeoutSeconds int    `yaml:"timeoutSeconds" env:"FIELD_AGENT_GATEWAY_TIMEOUT"`
}

type DeviceConfig struct {
	ID           string `yaml:"id" env:"FIELD_AGENT_DEVICE_ID"`
	TechnicianID string `yaml:"technicianId" env:"FIELD_AGENT_TECHNICIAN_ID"`
}

type SessionConfig struct {
	SyncStationLogs bool          `yaml:"syncStationLogs" env:"FIELD_AGENT_SYNC_STATION_LOGS"`
	TickInterval    time.Duration `yaml:"tickInterval" env:"FIELD_AGENT_TICK_INTERVAL"`
}

// RedisConfig is optional; an empty address keeps unsubmitted visits in
// memory only.
type RedisConfig struct {
	Addr       string `yaml:"addr" env:"FIELD_AGENT_REDIS_ADDR"`
	Password   string `yaml:"password" env:"FIELD_AGENT_REDIS_PASSWORD"`
	DB         int    `yaml:"db" env:"FIELD_AGENT_REDIS_DB"`
	TTLSeconds int    `yaml:"ttlSeconds" env:"FIELD_AGENT_REDIS_TTL"`
}

type EventsConfig struct {
	WriteTimeout time.Duration `yaml:"writeTimeout" env:"FIELD_AGENT_EVENTS_WRITE_TIMEOUT"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP:    HTTPConfig{Port: "8090"},
		Gateway: GatewayConfig{TimeoutSeconds: 10},
		Device:  DeviceConfig{ID: "default"},
		Session: SessionConfig{SyncStationLogs: true, TickInterval: time.Second},
		Events:  EventsConfig{WriteTimeout: 5 * time.Second},
	}

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Gateway.URL) == "" {
		return nil, errors.New("config: visit service url required")
	}
	if strings.TrimSpace(cfg.Device.ID) == "" {
		return nil, errors.New("config: device id required")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8090"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// GatewayTimeout returns the backend client timeout.
func (c *Config) GatewayTimeout() time.Duration {
	if c.Gateway.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Gateway.TimeoutSeconds) * time.Second
}

// PendingTTL returns how long an unsubmitted visit is kept in redis; zero
// means forever.
func (c *Config) PendingTTL() time.Duration {
	if c.Redis.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}
