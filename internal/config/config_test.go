package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "curator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
database:
  driver: postgres
  dsn: postgres://u:p@db/curator
bulk:
  pollInterval: 30s
scoring:
  confidenceThreshold: 0.9
taxonomy:
  corpusSize: 1000
`), 0o600))

	t.Setenv(configPathEnv, path)
	t.Setenv(dotenvPathEnv, filepath.Join(dir, "missing.env"))
	t.Setenv(openAIModelEnv, "gpt-env")
	t.Setenv(databaseDSNEnv, "postgres://env/curator")

	cfg := Load()
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://env/curator", cfg.Database.DSN)
	assert.Equal(t, "gpt-env", cfg.Completion.Model)
	assert.Equal(t, 30*time.Second, cfg.Bulk.PollInterval)
	assert.Equal(t, 0.9, cfg.Scoring.ConfidenceThreshold)
	assert.Equal(t, 1000, cfg.Taxonomy.CorpusSize)
	assert.Equal(t, "24h", cfg.Bulk.CompletionWindow, "unset fields keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadReadsDotenv(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(env, []byte("TELEGRAM_CHAT_ID=4242\n"), 0o600))

	t.Setenv(configPathEnv, "")
	t.Setenv(dotenvPathEnv, env)
	t.Setenv(telegramChatIDEnv, "")
	os.Unsetenv(telegramChatIDEnv)

	cfg := Load()
	assert.Equal(t, "4242", cfg.Notifications.Telegram.ChatID)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Default().Validate())

	cfg := Default()
	cfg.Database.Driver = "mysql"
	cfg.Scoring.ConfidenceThreshold = 1.5
	cfg.Scoring.Concurrency = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "confidenceThreshold")
	assert.Contains(t, err.Error(), "concurrency")
}

func TestParseRejectsBrokenYAML(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("logging: [unterminated"))
	require.Error(t, err)
}
