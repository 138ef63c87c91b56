package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	KafkaBrokers []string

	RetentionWindow     time.Duration
	SweepInterval       time.Duration
	SweepBatchSize      int
	RelayInterval       time.Duration
	RelayBatchSize      int
	WriteAttempts       int
	WriteBackoff        time.Duration
	CannotAttendPhrases []string

	SheetsSpreadsheetID     string
	SheetsSheetName         string
	SheetsCredentialsFile   string
	SheetsMobileColumn      int
	SheetsLastVotedColumn   int
	SheetsFirstOptionColumn int

	GatewayConsumerGroup       string
	EnableGatewayConsumer      bool
	EnableAttendanceProjection bool
}

func Load() (Config, error) {
	// Local development reads a .env file when one exists; deployed
	// environments inject real environment variables and skip this.
	_ = godotenv.Load()

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "rollcall"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	var brokers []string
	for _, value := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	return Config{
		ServiceName:  service,
		HTTPPort:     port,
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		KafkaBrokers: brokers,

		RetentionWindow:     envDuration("RETENTION_WINDOW", 7*24*time.Hour),
		SweepInterval:       envDuration("SWEEP_INTERVAL", time.Hour),
		SweepBatchSize:      envInt("SWEEP_BATCH_SIZE", 50),
		RelayInterval:       envDuration("RELAY_INTERVAL", 5*time.Second),
		RelayBatchSize:      envInt("RELAY_BATCH_SIZE", 100),
		WriteAttempts:       envInt("STORE_WRITE_ATTEMPTS", 3),
		WriteBackoff:        envDuration("STORE_WRITE_BACKOFF", 100*time.Millisecond),
		CannotAttendPhrases: envList("CANNOT_ATTEND_PHRASES"),

		SheetsSpreadsheetID:     os.Getenv("SHEETS_SPREADSHEET_ID"),
		SheetsSheetName:         os.Getenv("SHEETS_SHEET_NAME"),
		SheetsCredentialsFile:   os.Getenv("SHEETS_CREDENTIALS_FILE"),
		SheetsMobileColumn:      envInt("SHEETS_MOBILE_COLUMN", 3),
		SheetsLastVotedColumn:   envInt("SHEETS_LAST_VOTED_COLUMN", 12),
		SheetsFirstOptionColumn: envInt("SHEETS_FIRST_OPTION_COLUMN", 13),

		GatewayConsumerGroup:       os.Getenv("GATEWAY_CONSUMER_GROUP"),
		EnableGatewayConsumer:      envBool("ENABLE_GATEWAY_CONSUMER", true),
		EnableAttendanceProjection: envBool("ENABLE_ATTENDANCE_PROJECTION", true),
	}, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// envList splits a comma-separated variable, dropping empty segments. An
// unset variable returns nil so callers can fall back to built-in defaults.
func envList(name string) []string {
	var items []string
	for _, value := range strings.Split(os.Getenv(name), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
