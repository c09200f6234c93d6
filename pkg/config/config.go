package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Ledger        LedgerConfig
	Storage       StorageConfig
	LLM           LLMConfig
	OCR           OCRConfig
	Pipeline      PipelineConfig
	Notify        NotifyConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Host          string
	Port          int
	AllowedOrigin []string
	MaxUploadMB   int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
}

// LedgerConfig points at the local SQLite ledger file.
type LedgerConfig struct {
	Path string
}

type StorageConfig struct {
	Type      string // "local" or "gcs"
	LocalPath string
	GCSBucket string
}

type LLMConfig struct {
	APIKey      string
	APIBase     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	RatePerSec  float64
	MaxAttempts int
	BaseBackoff time.Duration
}

// Enabled reports whether an API key was provided.
func (c LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

type OCRConfig struct {
	Provider    string // "vertex" or "none"
	ProjectID   string
	Region      string
	Model       string
	MaxPages    int
	Concurrency int
	RatePerSec  float64
}

type PipelineConfig struct {
	SweepLimit       int
	ProcessSchedule  string
	FinalizeSchedule string
	SchedulerEnabled bool
}

type NotifyConfig struct {
	ResendAPIKey string
	FromEmail    string
	Reviewers    []string
	ReviewURL    string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	LogLevel       string
	LogFormat      string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:          getEnv("HTTP_HOST", "0.0.0.0"),
			Port:          getEnvAsInt("HTTP_PORT", 8080),
			AllowedOrigin: getEnvAsList("HTTP_ALLOWED_ORIGINS", []string{"*"}),
			MaxUploadMB:   getEnvAsInt("HTTP_MAX_UPLOAD_MB", 25),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Database: getEnv("DB_NAME", "ingest"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
		},
		Ledger: LedgerConfig{
			Path: getEnv("LEDGER_DB_PATH", "./dados_financeiros.db"),
		},
		Storage: StorageConfig{
			Type:      getEnv("STORAGE_TYPE", "local"),
			LocalPath: getEnv("STORAGE_PATH", "./data/blobs"),
			GCSBucket: getEnv("GCS_BUCKET", ""),
		},
		LLM: LLMConfig{
			APIKey:      getEnv("LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
			APIBase:     getEnv("LLM_API_BASE", "https://api.openai.com/v1/chat/completions"),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			Temperature: getEnvAsFloat("LLM_TEMPERATURE", 0.1),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
			RatePerSec:  getEnvAsFloat("LLM_RATE_PER_SEC", 2),
			MaxAttempts: getEnvAsInt("LLM_MAX_ATTEMPTS", 3),
			BaseBackoff: getEnvAsDuration("LLM_BASE_BACKOFF", time.Second),
		},
		OCR: OCRConfig{
			Provider:    getEnv("OCR_PROVIDER", "none"),
			ProjectID:   getEnv("GCP_PROJECT_ID", ""),
			Region:      getEnv("VERTEX_REGION", "us-central1"),
			Model:       getEnv("OCR_MODEL", "gemini-1.5-flash"),
			MaxPages:    getEnvAsInt("OCR_MAX_PAGES", 20),
			Concurrency: getEnvAsInt("OCR_CONCURRENCY", 4),
			RatePerSec:  getEnvAsFloat("OCR_RATE_PER_SEC", 5),
		},
		Pipeline: PipelineConfig{
			SweepLimit:       getEnvAsInt("SWEEP_LIMIT", 50),
			ProcessSchedule:  getEnv("PROCESS_SCHEDULE", "*/5 * * * *"),
			FinalizeSchedule: getEnv("FINALIZE_SCHEDULE", "*/10 * * * *"),
			SchedulerEnabled: getEnvAsBool("SCHEDULER_ENABLED", true),
		},
		Notify: NotifyConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			FromEmail:    getEnv("RESEND_FROM_EMAIL", "Ingest <ingest@localhost>"),
			Reviewers:    getEnvAsList("REVIEWER_EMAILS", nil),
			ReviewURL:    getEnv("REVIEW_BASE_URL", "http://localhost:8080"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Host == "" {
		return errors.New("DB_HOST is required")
	}
	if c.Database.Database == "" {
		return errors.New("DB_NAME is required")
	}
	if c.Ledger.Path == "" {
		return errors.New("LEDGER_DB_PATH is required")
	}
	switch c.Storage.Type {
	case "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return errors.New("GCS_BUCKET is required when STORAGE_TYPE=gcs")
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.Storage.Type)
	}
	if c.OCR.Provider == "vertex" && c.OCR.ProjectID == "" {
		return errors.New("GCP_PROJECT_ID is required when OCR_PROVIDER=vertex")
	}
	if c.Pipeline.SweepLimit <= 0 {
		return errors.New("SWEEP_LIMIT must be positive")
	}
	return nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode, c.MaxConns,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
