package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the process needs from the environment so main
// stays lean. CLI flags override PolicyPath and the run mode; credentials and
// endpoints only ever come from here.
type Config struct {
	HTTPAddr string

	IMAP IMAPConfig
	SMTP SMTPConfig

	// PolicyPath is the override location for the review policy file. When it
	// points nowhere the loader falls back to DefaultPolicyPath, then to the
	// built-in policy.
	PolicyPath        string
	DefaultPolicyPath string

	PollInterval time.Duration

	LedgerPath  string // JSONL ledger, used when PostgresDSN is empty
	PostgresDSN string
	RedisURL    string // optional seen-cache in front of the ledger

	KafkaBrokers []string // optional audit sink
	KafkaTopic   string
}

// IMAPConfig holds inbound mail settings.
type IMAPConfig struct {
	Addr     string // host:port, implicit TLS
	Username string
	Password string
	Folder   string
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		HTTPAddr:          envOr("NDAFLOW_HTTP_ADDR", ":8080"),
		PolicyPath:        os.Getenv("NDAFLOW_POLICY_PATH"),
		DefaultPolicyPath: envOr("NDAFLOW_DEFAULT_POLICY_PATH", "review_policy.json"),
		// Zero means "defer to the policy's polling section".
		PollInterval:      envDuration("NDAFLOW_POLL_INTERVAL", 0),
		LedgerPath:        envOr("NDAFLOW_LEDGER_PATH", "processed.jsonl"),
		PostgresDSN:       os.Getenv("NDAFLOW_POSTGRES_DSN"),
		RedisURL:          os.Getenv("NDAFLOW_REDIS_URL"),
		KafkaTopic:        envOr("NDAFLOW_KAFKA_TOPIC", "ndaflow.audit"),
		IMAP: IMAPConfig{
			Addr:     envOr("NDAFLOW_IMAP_ADDR", "imap.gmail.com:993"),
			Username: os.Getenv("NDAFLOW_IMAP_USER"),
			Password: os.Getenv("NDAFLOW_IMAP_PASSWORD"),
			Folder:   envOr("NDAFLOW_IMAP_FOLDER", "INBOX"),
		},
		SMTP: SMTPConfig{
			Host:     envOr("NDAFLOW_SMTP_HOST", "smtp.gmail.com"),
			Port:     envInt("NDAFLOW_SMTP_PORT", 587),
			Username: os.Getenv("NDAFLOW_SMTP_USER"),
			Password: os.Getenv("NDAFLOW_SMTP_PASSWORD"),
			From:     os.Getenv("NDAFLOW_SMTP_FROM"),
		},
	}
	if brokers := os.Getenv("NDAFLOW_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
