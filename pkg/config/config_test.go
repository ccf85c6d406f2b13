package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NEON_DB_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_PRIMARY_MODEL", "")
	t.Setenv("LLM_FALLBACK_MODEL", "")
	t.Setenv("FINANCIAL_STATEMENTS_DIR", "")
	for _, k := range []string{"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_SSLMODE", "LLM_TEMPERATURE"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4-0125-preview", cfg.LLM.PrimaryModel)
	assert.Equal(t, "gpt-3.5-turbo-0125", cfg.LLM.FallbackModel)
	assert.Equal(t, 0.0, cfg.LLM.Temperature)
	assert.Equal(t, "FinancialStatements", cfg.Paths.StatementsDir)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=statements sslmode=disable",
		cfg.Database.DSN())
}

func TestLoad_GeminiModelDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-test")
	t.Setenv("LLM_PRIMARY_MODEL", "")
	t.Setenv("LLM_FALLBACK_MODEL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.PrimaryModel)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.FallbackModel)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NEON_DB_URL", "postgres://u:p@db.neon.tech/statements")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("ARCHIVE_SOURCE_PDFS", "true")
	t.Setenv("ACCOUNT_CACHE_TTL", "30s")
	t.Setenv("NOTIFY_TO", "ops@example.com, books@example.com ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db.neon.tech/statements", cfg.Database.DSN())
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.True(t, cfg.Pipeline.ArchiveSourcePDFs)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.AccountCacheTTL)
	assert.Equal(t, []string{"ops@example.com", "books@example.com"}, cfg.Notify.To)
}

func TestValidate(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{Provider: "openai", PrimaryModel: "a", FallbackModel: "b"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	cfg.LLM.OpenAIAPIKey = "sk-test"
	assert.NoError(t, cfg.Validate())

	cfg.LLM.Provider = "gemini"
	cfg.LLM.GeminiAPIKey = "g-test"
	cfg.LLM.PrimaryModel = "gpt-4-0125-preview"
	assert.ErrorContains(t, cfg.Validate(), `model "gpt-4-0125-preview" is not served by gemini`)

	cfg.LLM.PrimaryModel = "gemini-2.5-pro"
	assert.NoError(t, cfg.Validate())

	cfg.LLM.Provider = "claude"
	assert.ErrorContains(t, cfg.Validate(), "unknown LLM_PROVIDER")
}

func TestNotifyConfig_Enabled(t *testing.T) {
	assert.False(t, NotifyConfig{}.Enabled())
	assert.True(t, NotifyConfig{ResendAPIKey: "re_x", From: "a@b.c", To: []string{"d@e.f"}}.Enabled())
}
