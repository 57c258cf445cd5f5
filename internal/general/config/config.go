package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`
	RabbitMQ struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"rabbitmq"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		GeoKey   string `yaml:"geo_key"`
	} `yaml:"redis"`
	WebSocket struct {
		Port int `yaml:"port"`
	} `yaml:"websocket"`
	JWT struct {
		SecretKey string `yaml:"secret_key"`
	} `yaml:"jwt"`
	Weather struct {
		APIKey       string        `yaml:"api_key"`
		BaseURL      string        `yaml:"base_url"`
		PollInterval time.Duration `yaml:"poll_interval"`
		Watchpoints  []Watchpoint  `yaml:"watchpoints"`
	} `yaml:"weather"`
	Alerts struct {
		ForecastInterval time.Duration `yaml:"forecast_interval"` // per-connection rain check
		RainThresholdMM  float64       `yaml:"rain_threshold_mm"`
		SweepInterval    time.Duration `yaml:"sweep_interval"`  // presence staleness sweep
		StaleAfter       time.Duration `yaml:"stale_after"`     // presence eviction threshold
		CollapseWindow   time.Duration `yaml:"collapse_window"` // repeated-reading collapse
	} `yaml:"alerts"`
}

// Watchpoint is a fixed location the weather poller keeps an eye on.
type Watchpoint struct {
	Region    string  `yaml:"region"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// LoadFromFile loads config from a YAML file to a Config struct, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Redis
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.GeoKey == "" {
		cfg.Redis.GeoKey = "safetrip:hazards"
	}

	// WebSocket
	if cfg.WebSocket.Port == 0 {
		cfg.WebSocket.Port = 8080
	}

	// Weather
	if cfg.Weather.BaseURL == "" {
		cfg.Weather.BaseURL = "https://api.openweathermap.org"
	}
	if cfg.Weather.PollInterval == 0 {
		cfg.Weather.PollInterval = 10 * time.Minute
	}

	// Alerts
	if cfg.Alerts.ForecastInterval == 0 {
		cfg.Alerts.ForecastInterval = 5 * time.Minute
	}
	if cfg.Alerts.RainThresholdMM == 0 {
		cfg.Alerts.RainThresholdMM = 5.0
	}
	if cfg.Alerts.SweepInterval == 0 {
		cfg.Alerts.SweepInterval = 10 * time.Minute
	}
	if cfg.Alerts.StaleAfter == 0 {
		cfg.Alerts.StaleAfter = 30 * time.Minute
	}
	if cfg.Alerts.CollapseWindow == 0 {
		cfg.Alerts.CollapseWindow = 15 * time.Minute
	}

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// WebSocket
	if c.WebSocket.Port <= 0 || c.WebSocket.Port > 65535 {
		problems = append(problems, "websocket.port must be in 1..65535")
	}

	// Weather watchpoints must carry valid coordinates
	for i, wp := range c.Weather.Watchpoints {
		if wp.Latitude < -90 || wp.Latitude > 90 || wp.Longitude < -180 || wp.Longitude > 180 {
			problems = append(problems, fmt.Sprintf("weather.watchpoints[%d] has out-of-range coordinates", i))
		}
		if strings.TrimSpace(wp.Region) == "" {
			problems = append(problems, fmt.Sprintf("weather.watchpoints[%d].region is required", i))
		}
	}

	// Alert timing knobs must stay positive
	if c.Alerts.StaleAfter <= 0 {
		problems = append(problems, "alerts.stale_after must be positive")
	}
	if c.Alerts.SweepInterval <= 0 {
		problems = append(problems, "alerts.sweep_interval must be positive")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
