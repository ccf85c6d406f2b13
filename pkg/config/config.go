package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database      DatabaseConfig
	LLM           LLMConfig
	Storage       StorageConfig
	Paths         PathsConfig
	Pipeline      PipelineConfig
	Observability ObservabilityConfig
	Notify        NotifyConfig
	Schedule      ScheduleConfig
	Log           LogConfig
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type LLMConfig struct {
	Provider       string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	GeminiAPIKey   string
	PrimaryModel   string
	FallbackModel  string
	Temperature    float64
	RequestsPerMin int
	Timeout        time.Duration
}

type StorageConfig struct {
	Type               string
	LocalPath          string
	S3Bucket           string
	S3Region           string
	S3AccessKeyID      string
	S3SecretAccessKey  string
	S3Endpoint         string
	GCSBucket          string
	GCSCredentialsFile string
}

type PathsConfig struct {
	StatementsDir string
	PdftotextPath string
}

type PipelineConfig struct {
	ArchiveSourcePDFs bool
	UploadArtifacts   bool
	AccountCacheTTL   time.Duration
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
}

type NotifyConfig struct {
	ResendAPIKey string
	From         string
	To           []string
}

// Enabled reports whether batch summaries should be e-mailed.
func (n NotifyConfig) Enabled() bool {
	return n.ResendAPIKey != "" && n.From != "" && len(n.To) > 0
}

type ScheduleConfig struct {
	Spec string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables, after loading a .env
// file from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	provider := getEnv("LLM_PROVIDER", "openai")
	primary, fallback := defaultModels(provider)

	cfg := &Config{
		Database: DatabaseConfig{
			URL:      getEnv("NEON_DB_URL", getEnv("DATABASE_URL", "")),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "statements"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		LLM: LLMConfig{
			Provider:       provider,
			OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
			PrimaryModel:   getEnv("LLM_PRIMARY_MODEL", primary),
			FallbackModel:  getEnv("LLM_FALLBACK_MODEL", fallback),
			Temperature:    getEnvAsFloat("LLM_TEMPERATURE", 0),
			RequestsPerMin: getEnvAsInt("LLM_REQUESTS_PER_MINUTE", 20),
			Timeout:        getEnvAsDuration("LLM_TIMEOUT", 2*time.Minute),
		},
		Storage: StorageConfig{
			Type:               getEnv("STORAGE_TYPE", "local"),
			LocalPath:          getEnv("STORAGE_LOCAL_PATH", "./uploads"),
			S3Bucket:           getEnv("S3_BUCKET_NAME", ""),
			S3Region:           getEnv("AWS_REGION", "us-east-1"),
			S3AccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
			S3SecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Endpoint:         getEnv("AWS_ENDPOINT_URL", ""),
			GCSBucket:          getEnv("GCS_BUCKET", ""),
			GCSCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		Paths: PathsConfig{
			StatementsDir: getEnv("FINANCIAL_STATEMENTS_DIR", "FinancialStatements"),
			PdftotextPath: getEnv("PDFTOTEXT_PATH", "pdftotext"),
		},
		Pipeline: PipelineConfig{
			ArchiveSourcePDFs: getEnvAsBool("ARCHIVE_SOURCE_PDFS", false),
			UploadArtifacts:   getEnvAsBool("UPLOAD_ARTIFACTS", false),
			AccountCacheTTL:   getEnvAsDuration("ACCOUNT_CACHE_TTL", 10*time.Minute),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
		Notify: NotifyConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			From:         getEnv("NOTIFY_FROM", ""),
			To:           getEnvAsList("NOTIFY_TO"),
		},
		Schedule: ScheduleConfig{
			Spec: getEnv("SCHEDULE_SPEC", "0 6 * * *"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	return cfg, nil
}

// defaultModels returns the primary and fallback models for provider.
func defaultModels(provider string) (primary, fallback string) {
	if provider == "gemini" {
		return "gemini-2.5-pro", "gemini-2.5-flash"
	}
	return "gpt-4-0125-preview", "gpt-3.5-turbo-0125"
}

// Validate checks the settings a pipeline run cannot start without.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required"))
		}
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required"))
		}
		for _, m := range []string{c.LLM.PrimaryModel, c.LLM.FallbackModel} {
			if strings.HasPrefix(m, "gpt-") {
				errs = append(errs, fmt.Errorf("model %q is not served by gemini", m))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider))
	}
	if c.LLM.PrimaryModel == "" || c.LLM.FallbackModel == "" {
		errs = append(errs, errors.New("both primary and fallback models are required"))
	}
	if c.Pipeline.UploadArtifacts && c.Storage.Type == "s3" && c.Storage.S3Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET_NAME is required when uploading artifacts to s3"))
	}
	if c.Pipeline.UploadArtifacts && c.Storage.Type == "gcs" && c.Storage.GCSBucket == "" {
		errs = append(errs, errors.New("GCS_BUCKET is required when uploading artifacts to gcs"))
	}
	return errors.Join(errs...)
}

// DSN returns the database connection string. NEON_DB_URL wins over the
// individual host settings.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
