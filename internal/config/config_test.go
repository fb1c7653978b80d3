package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("RPS_GAME_NUM_ROUNDS", "5")
	t.Setenv("RPS_CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GameNumRounds != 5 || cfg.MachinePlayerName != "Machine" || cfg.MaxWaitRandomPlayer() != 5*time.Minute {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Notifications.Mode != "redis" || cfg.Notifications.MaxAttempts != 5 || cfg.Notifications.Backoff() != time.Second {
		t.Fatalf("unexpected notification defaults: %+v", cfg.Notifications)
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rps.yaml")
	body := "game_num_rounds: 2\nmachine_player_name: Robo\nredis_url: redis://file:6379/1\nnotifications:\n  mode: webhook\n  webhook_url: http://hooks.local/rps\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("RPS_CONFIG_FILE", path)
	t.Setenv("RPS_MACHINE_PLAYER_NAME", "  Envbot ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GameNumRounds != 2 || cfg.RedisURL != "redis://file:6379/1" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.MachinePlayerName != "Envbot" {
		t.Fatalf("env should win over file, got %q", cfg.MachinePlayerName)
	}
	if cfg.Notifications.Mode != "webhook" || cfg.Notifications.QueueSize != 256 {
		t.Fatalf("nested section: %+v", cfg.Notifications)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := defaults()
	cfg.GameNumRounds = 0
	cfg.Notifications.Mode = "broker"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"REDIS_URL", "RPS_GAME_NUM_ROUNDS", "NOTIFICATIONS_BROKER_URL"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %s in %v", want, err)
		}
	}
}
