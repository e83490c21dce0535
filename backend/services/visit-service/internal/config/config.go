package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "fieldservice/backend/libs/config"
)

// Config defines visit service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

type HTTPConfig struct {
	Port string `yaml:"port" env:"VISITS_HTTP_PORT"`
}

type DatabaseConfig struct {
	DSN     string `yaml:"dsn" env:"VISITS_POSTGRES_DSN"`
	Migrate bool   `yaml:"migrate" env:"VISITS_POSTGRES_MIGRATE"`
}

// RedisConfig is optional; an empty address disables the submitted-visit
// cache and duplicates are caught by postgres alone.
type RedisConfig struct {
	Addr       string `yaml:"addr" env:"VISITS_REDIS_ADDR"`
	Password   string `yaml:"password" env:"VISITS_REDIS_PASSWORD"`
	DB         int    `yaml:"db" env:"VISITS_REDIS_DB"`
	TTLSeconds int    `yaml:"ttlSeconds" env:"VISITS_REDIS_TTL"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret" env:"VISITS_JWT_SECRET"`
}

// RabbitMQConfig is optional; an empty url disables event publishing.
type RabbitMQConfig struct {
	URL      string `yaml:"url" env:"VISITS_RABBITMQ_URL"`
	Exchange string `yaml:"exchange" env:"VISITS_RABBITMQ_EXCHANGE"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP:     HTTPConfig{Port: "8082"},
		Database: DatabaseConfig{Migrate: true},
		Redis:    RedisConfig{TTLSeconds: 7 * 24 * 3600},
		RabbitMQ: RabbitMQConfig{Exchange: "field.visits"},
	}

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("config: jwt secret required")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8082"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// SubmittedTTL returns how long accepted visit ids are cached.
func (c *Config) SubmittedTTL() time.Duration {
	if c.Redis.TTLSeconds <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}
