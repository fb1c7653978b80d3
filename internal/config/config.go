package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Notifications configures delivery of room events.
type Notifications struct {
	// Mode is one of none, log, redis, broker, webhook.
	Mode        string `yaml:"mode" env:"NOTIFICATIONS_MODE"`
	BrokerURL   string `yaml:"broker_url" env:"NOTIFICATIONS_BROKER_URL"`
	WebhookURL  string `yaml:"webhook_url" env:"NOTIFICATIONS_WEBHOOK_URL"`
	MaxAttempts int    `yaml:"max_attempts" env:"NOTIFICATIONS_MAX_ATTEMPTS"`
	BackoffMS   int    `yaml:"backoff_ms" env:"NOTIFICATIONS_BACKOFF_MS"`
	QueueSize   int    `yaml:"queue_size" env:"NOTIFICATIONS_QUEUE_SIZE"`
	Workers     int    `yaml:"workers" env:"NOTIFICATIONS_WORKERS"`
}

type AppConfig struct {
	GameNumRounds              int    `yaml:"game_num_rounds" env:"RPS_GAME_NUM_ROUNDS"`
	MachinePlayerName          string `yaml:"machine_player_name" env:"RPS_MACHINE_PLAYER_NAME"`
	MaxWaitRandomPlayerMinutes int    `yaml:"max_wait_random_player_minutes" env:"RPS_MAX_WAIT_RANDOM_PLAYER_MINUTES"`
	RoomsTopicPattern          string `yaml:"rooms_topic_pattern" env:"RPS_ROOMS_TOPIC_PATTERN"`

	RedisURL    string `yaml:"redis_url" env:"REDIS_URL"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	HTTPAddr    string `yaml:"http_addr" env:"HTTP_ADDR"`

	RoomUpdateMaxAttempts int `yaml:"room_update_max_attempts" env:"ROOM_UPDATE_MAX_ATTEMPTS"`
	RoomUpdateTimeoutMS   int `yaml:"room_update_timeout_ms" env:"ROOM_UPDATE_TIMEOUT_MS"`
	LobbySweepIntervalSec int `yaml:"lobby_sweep_interval_sec" env:"LOBBY_SWEEP_INTERVAL_SEC"`

	Notifications Notifications `yaml:"notifications"`
}

func defaults() *AppConfig {
	return &AppConfig{
		GameNumRounds:              3,
		MachinePlayerName:          "Machine",
		MaxWaitRandomPlayerMinutes: 5,
		RoomsTopicPattern:          "/topic/rooms/%s",
		HTTPAddr:                   ":8080",
		RoomUpdateMaxAttempts:      10,
		RoomUpdateTimeoutMS:        2000,
		LobbySweepIntervalSec:      60,
		Notifications: Notifications{
			Mode:        "redis",
			MaxAttempts: 5,
			BackoffMS:   1000,
			QueueSize:   256,
			Workers:     4,
		},
	}
}

// Load applies defaults, then the YAML file named by RPS_CONFIG_FILE, then
// environment variables.
func Load() (*AppConfig, error) {
	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("RPS_CONFIG_FILE")); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *AppConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *AppConfig) normalize() {
	c.MachinePlayerName = strings.TrimSpace(c.MachinePlayerName)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.Notifications.Mode = strings.ToLower(strings.TrimSpace(c.Notifications.Mode))
}

func (c *AppConfig) Validate() error {
	var errs []error
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if c.GameNumRounds <= 0 {
		errs = append(errs, errors.New("RPS_GAME_NUM_ROUNDS must be positive"))
	}
	if c.MachinePlayerName == "" {
		errs = append(errs, errors.New("RPS_MACHINE_PLAYER_NAME is required"))
	}
	if c.MaxWaitRandomPlayerMinutes <= 0 {
		errs = append(errs, errors.New("RPS_MAX_WAIT_RANDOM_PLAYER_MINUTES must be positive"))
	}
	if c.RoomUpdateMaxAttempts <= 0 || c.RoomUpdateTimeoutMS <= 0 {
		errs = append(errs, errors.New("room update limits must be positive"))
	}
	switch c.Notifications.Mode {
	case "none", "log", "redis":
	case "broker":
		if c.Notifications.BrokerURL == "" {
			errs = append(errs, errors.New("NOTIFICATIONS_BROKER_URL is required in broker mode"))
		}
	case "webhook":
		if c.Notifications.WebhookURL == "" {
			errs = append(errs, errors.New("NOTIFICATIONS_WEBHOOK_URL is required in webhook mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFICATIONS_MODE %q", c.Notifications.Mode))
	}
	if c.Notifications.MaxAttempts <= 0 {
		errs = append(errs, errors.New("NOTIFICATIONS_MAX_ATTEMPTS must be positive"))
	}
	return errors.Join(errs...)
}

func (c *AppConfig) MaxWaitRandomPlayer() time.Duration {
	return time.Duration(c.MaxWaitRandomPlayerMinutes) * time.Minute
}

func (c *AppConfig) RoomUpdateTimeout() time.Duration {
	return time.Duration(c.RoomUpdateTimeoutMS) * time.Millisecond
}

func (c *AppConfig) LobbySweepInterval() time.Duration {
	if c.LobbySweepIntervalSec <= 0 {
		return time.Minute
	}
	return time.Duration(c.LobbySweepIntervalSec) * time.Second
}

func (n Notifications) Backoff() time.Duration {
	if n.BackoffMS <= 0 {
		return time.Second
	}
	return time.Duration(n.BackoffMS) * time.Millisecond
}
