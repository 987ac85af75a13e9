package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIPort     string
	MetricsPort string
	LogLevel    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NATSURL       string
	NotifySubject string

	ClassifierURL            string
	ClassifierTimeoutSeconds int
	ExecutorURL              string

	RulesPath string
	ReportDir string

	EscalationRecipient string

	ActionTimeoutSeconds int
	StepTimeoutSeconds   int
	SweepTickSeconds     int

	RetryMaxAttempts      int
	RetryInitialBackoffMs int
	RetryMaxBackoffMs     int
}

func Load() Config {
	return Config{
		APIPort:     mustEnv("API_PORT", "8080"),
		MetricsPort: mustEnv("METRICS_PORT", "9090"),
		LogLevel:    mustEnv("LOG_LEVEL", "info"),

		RedisAddr:     mustEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: mustEnv("REDIS_PASSWORD", ""),
		RedisDB:       mustEnvInt("REDIS_DB", 0),

		NATSURL:       mustEnv("NATS_URL", "nats://localhost:4222"),
		NotifySubject: mustEnv("NOTIFY_SUBJECT", "season.notifications"),

		ClassifierURL:            mustEnv("CLASSIFIER_URL", "http://localhost:8090"),
		ClassifierTimeoutSeconds: mustEnvInt("CLASSIFIER_TIMEOUT_SECONDS", 10),
		ExecutorURL:              mustEnv("EXECUTOR_URL", "http://localhost:8091"),

		RulesPath: mustEnv("RULES_PATH", "./configs/rules.yaml"),
		ReportDir: mustEnv("REPORT_DIR", "./data/reports"),

		EscalationRecipient: mustEnv("ESCALATION_RECIPIENT", "oncall"),

		ActionTimeoutSeconds: mustEnvInt("ACTION_TIMEOUT_SECONDS", 15),
		StepTimeoutSeconds:   mustEnvInt("STEP_TIMEOUT_SECONDS", 300),
		SweepTickSeconds:     mustEnvInt("SWEEP_TICK_SECONDS", 60),

		RetryMaxAttempts:      mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoffMs: mustEnvInt("RETRY_INITIAL_BACKOFF_MS", 100),
		RetryMaxBackoffMs:     mustEnvInt("RETRY_MAX_BACKOFF_MS", 2000),
	}
}

func (c Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.ClassifierTimeoutSeconds) * time.Second
}

func (c Config) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutSeconds) * time.Second
}

func (c Config) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutSeconds) * time.Second
}

func (c Config) SweepTick() time.Duration {
	return time.Duration(c.SweepTickSeconds) * time.Second
}

func (c Config) RetryInitialBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoffMs) * time.Millisecond
}

func (c Config) RetryMaxBackoff() time.Duration {
	return time.Duration(c.RetryMaxBackoffMs) * time.Millisecond
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
