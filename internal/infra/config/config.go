package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	SlackBotToken            string
	SlackSigningSecret       string
	SlackChannelID           string
	MeetURL                  string
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string // Optional; falls back to ADC when empty
	StatePath                string
	Port                     string
	LogLevel                 string
	Environment              string
	CronSpecDeclaration      string
	CronSpecEnsureCheck      string // Self-healing re-post check
	CronSpecSummary          string
	CronSpecStart            string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	requiredKeys := []string{
		"SLACK_BOT_TOKEN",
		"SLACK_SIGNING_SECRET",
		"SLACK_CHANNEL_ID",
		"MEET_URL",
		"GOOGLE_SPREADSHEET_ID",
	}
	var missing []string
	for _, key := range requiredKeys {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s. Please set them before starting the app", strings.Join(missing, ", "))
	}

	cfg := &AppConfig{
		SlackBotToken:            os.Getenv("SLACK_BOT_TOKEN"),
		SlackSigningSecret:       os.Getenv("SLACK_SIGNING_SECRET"),
		SlackChannelID:           strings.TrimSpace(os.Getenv("SLACK_CHANNEL_ID")),
		MeetURL:                  os.Getenv("MEET_URL"),
		GoogleSpreadsheetID:      os.Getenv("GOOGLE_SPREADSHEET_ID"),
		GoogleServiceAccountJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
	}

	cfg.StatePath = os.Getenv("STATE_PATH")
	if cfg.StatePath == "" {
		cfg.StatePath = "./state.json"
	}

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "3000"
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.CronSpecDeclaration = os.Getenv("CRON_SPEC_DECLARATION")
	if cfg.CronSpecDeclaration == "" {
		cfg.CronSpecDeclaration = "0 9 * * MON,WED,FRI" // 09:00 JST on meeting days
	}
	cfg.CronSpecEnsureCheck = os.Getenv("CRON_SPEC_ENSURE_CHECK")
	if cfg.CronSpecEnsureCheck == "" {
		cfg.CronSpecEnsureCheck = "*/5 * * * *" // Default: every 5 minutes
	}
	cfg.CronSpecSummary = os.Getenv("CRON_SPEC_SUMMARY")
	if cfg.CronSpecSummary == "" {
		cfg.CronSpecSummary = "0 15 * * MON,WED,FRI" // 15:00 JST summary
	}
	cfg.CronSpecStart = os.Getenv("CRON_SPEC_START")
	if cfg.CronSpecStart == "" {
		cfg.CronSpecStart = "0 17 * * MON,WED,FRI" // 17:00 JST session start
	}

	return cfg, nil
}
