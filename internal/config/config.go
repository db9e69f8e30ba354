package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        string `yaml:"port" validate:"omitempty,numeric"`
		MetricsPath string `yaml:"metricsPath" validate:"omitempty,startswith=/"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"postgres"`
	Content struct {
		TTL  string `yaml:"ttl"`
		Path string `yaml:"path"`
	} `yaml:"content"`
	Leveling struct {
		XPPerLevel int `yaml:"xpPerLevel" validate:"gte=0"`
	} `yaml:"leveling"`
	Challenge struct {
		QuestionSeconds int `yaml:"questionSeconds" validate:"gte=0,lte=300"`
		MaxXP           int `yaml:"maxXP" validate:"gte=0"`
		DefaultCount    int `yaml:"defaultCount" validate:"gte=0"`
	} `yaml:"challenge"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
	} `yaml:"auth"`
	Log struct {
		Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	} `yaml:"log"`
}

var validate = validator.New()

// Load reads YAML config from path, fills secrets from the environment and validates it.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
