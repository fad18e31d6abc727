package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"scorecard-ingest-go/internal/types"
)

// Config is the service configuration. Values load from config.yaml (path
// overridable via CONFIG_PATH) and individual env vars override the file.
type Config struct {
	Port   string `yaml:"port"`
	DBPath string `yaml:"db_path"`

	// Default transform configuration applied when a job carries none.
	Processing types.ProcessingConfig `yaml:"processing"`

	// Scheduler
	ScheduleDay  int    `yaml:"schedule_day"`  // 0 = Sunday
	ScheduleTime string `yaml:"schedule_time"` // "HH:MM"

	// Completion webhook; empty disables notification.
	WebhookURL string `yaml:"webhook_url"`
}

func Load() (Config, error) {
	cfg := Config{
		Port:         "8080",
		DBPath:       "scorecard-ingest.db",
		Processing:   types.DefaultProcessingConfig(),
		ScheduleDay:  1, // Monday
		ScheduleTime: "06:00",
	}

	path := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		path = envPath
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// Env vars override YAML values
	envOverride(&cfg.Port, "PORT")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ScheduleTime, "SCHEDULE_TIME")
	envOverride(&cfg.WebhookURL, "WEBHOOK_URL")
	envOverrideInt(&cfg.ScheduleDay, "SCHEDULE_DAY")
	envOverrideInt(&cfg.Processing.MaxRetries, "MAX_RETRIES")
	envOverrideFloat(&cfg.Processing.DefaultTrainingWeight, "DEFAULT_TRAINING_WEIGHT")
	envOverrideFloat(&cfg.Processing.Thresholds.AutoApprove, "THRESHOLD_AUTO_APPROVE")
	envOverrideFloat(&cfg.Processing.Thresholds.RequiresReview, "THRESHOLD_REQUIRES_REVIEW")
	envOverrideFloat(&cfg.Processing.Thresholds.AutoReject, "THRESHOLD_AUTO_REJECT")

	if cfg.ScheduleDay < 0 || cfg.ScheduleDay > 6 {
		return cfg, fmt.Errorf("schedule_day %d out of range [0,6]", cfg.ScheduleDay)
	}
	return cfg, nil
}

func envOverride(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func envOverrideInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envOverrideFloat(target *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}
