package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"API_ADDR", "GEMINI_API_KEY", "MIN_TOPIC_LENGTH", "PDF_TIMEOUT_SECONDS", "REDIS_URL", "MINIO_USE_SSL"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	assert.Equal(t, ":8787", cfg.Addr)
	assert.Empty(t, cfg.GeminiAPIKey)
	assert.Equal(t, 3, cfg.MinTopicLength)
	assert.Equal(t, 30*time.Second, cfg.PDFTimeout)
	assert.Empty(t, cfg.RedisURL)
	assert.False(t, cfg.MinioUseSSL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("GEMINI_TEMPERATURE", "0.7")
	t.Setenv("GEMINI_MAX_OUTPUT_TOKENS", "not-a-number")
	t.Setenv("EXPORT_CACHE_TTL_SECONDS", "60")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load()
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 0.7, cfg.GeminiTemperature)
	assert.Equal(t, 8192, cfg.GeminiMaxOutputTokens)
	assert.Equal(t, time.Minute, cfg.ExportCacheTTL)
	assert.True(t, cfg.MinioUseSSL)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("MEILI_URL=http://meili:7700\nAPI_ADDR=:1111\n"), 0o600))

	t.Setenv("MEILI_URL", "")
	t.Setenv("API_ADDR", ":2222")
	require.NoError(t, os.Unsetenv("MEILI_URL"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))

	cfg := Load()
	assert.Equal(t, "http://meili:7700", cfg.MeiliURL)
	assert.Equal(t, ":2222", cfg.Addr, "existing environment wins over .env")
}
