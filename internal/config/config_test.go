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
	chdir(t, t.TempDir())
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-token")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tg-token", cfg.Telegram.Token)
	assert.Equal(t, 5, cfg.Monitor.IntervalMinutes)
	assert.Zero(t, cfg.Monitor.MaxNotifications)
	assert.Equal(t, 5, cfg.GitHub.MaxRepos)
	assert.Equal(t, 365*24*time.Hour, cfg.GitHub.ActiveWithin())
	assert.Equal(t, 30*time.Second, cfg.GitHub.Timeout)
	assert.Equal(t, "./data/subscriptions.db", cfg.Database.Path)
	assert.False(t, cfg.AI.Enabled)
	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddress())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "bot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
telegram:
  token: from-file
monitor:
  interval_minutes: 10
  max_notifications: 3
github:
  timeout: 45s
ai:
  enabled: true
  model: llama3.1
`), 0o644))

	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("COMMITBOT_MONITOR_INTERVAL_MINUTES", "2")
	t.Setenv("GITHUB_PERSONAL_ACCESS_TOKEN", "gh-token")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Telegram.Token)
	assert.Equal(t, 2, cfg.Monitor.IntervalMinutes)
	assert.Equal(t, 3, cfg.Monitor.MaxNotifications)
	assert.Equal(t, 45*time.Second, cfg.GitHub.Timeout)
	assert.Equal(t, "gh-token", cfg.GitHub.Token)
	assert.True(t, cfg.AI.Enabled)
	assert.Equal(t, "llama3.1", cfg.AI.Model)
	assert.Equal(t, "http://localhost:11434", cfg.AI.BaseURL)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	os.Unsetenv("TELEGRAM_BOT_TOKEN")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TELEGRAM_BOT_TOKEN=dotenv-token\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("TELEGRAM_BOT_TOKEN") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv-token", cfg.Telegram.Token)
}

func TestLoadRequiresToken(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("COMMITBOT_TELEGRAM_TOKEN", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram token")
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Telegram: TelegramConfig{Token: "t"},
		Monitor:  MonitorConfig{IntervalMinutes: 0},
	}
	assert.Error(t, cfg.Validate())

	cfg.Monitor.IntervalMinutes = 1
	assert.NoError(t, cfg.Validate())

	cfg.Monitor.MaxNotifications = -1
	assert.Error(t, cfg.Validate())

	cfg.Monitor.MaxNotifications = 0
	cfg.AI = AIConfig{Enabled: true}
	assert.Error(t, cfg.Validate())
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
