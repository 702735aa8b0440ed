package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_SIGNING_SECRET", "secret")
	t.Setenv("SLACK_CHANNEL_ID", " C123 ")
	t.Setenv("MEET_URL", "https://meet.example/xyz")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "sheet-id")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "C123", cfg.SlackChannelID, "channel ID is trimmed")
	assert.Equal(t, "./state.json", cfg.StatePath)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "0 9 * * MON,WED,FRI", cfg.CronSpecDeclaration)
	assert.Equal(t, "*/5 * * * *", cfg.CronSpecEnsureCheck)
	assert.Equal(t, "0 15 * * MON,WED,FRI", cfg.CronSpecSummary)
	assert.Equal(t, "0 17 * * MON,WED,FRI", cfg.CronSpecStart)
}

func TestLoad_MissingRequiredKeys(t *testing.T) {
	setRequired(t)
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("MEET_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLACK_BOT_TOKEN")
	assert.Contains(t, err.Error(), "MEET_URL")
	assert.NotContains(t, err.Error(), "SLACK_SIGNING_SECRET")
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("STATE_PATH", "/var/lib/bot/state.json")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("CRON_SPEC_ENSURE_CHECK", "*/1 * * * *")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/bot/state.json", cfg.StatePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "*/1 * * * *", cfg.CronSpecEnsureCheck)
}
