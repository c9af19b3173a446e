package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Feed backends accepted in FEED_BACKEND.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
	BackendAMQP      = "amqp"
)

var validBackends = []string{BackendMemory, BackendSQLite, BackendFirestore, BackendAMQP}

type Config struct {
	// HTTP Server
	Port string

	// Feed
	FeedBackend  string
	Collection   string
	PageSize     int
	Timezone     string
	PollInterval time.Duration
	SeedFile     string

	// SQLite
	SQLiteDBPath string

	// Firestore
	FirestoreProjectID       string
	FirestoreDatabase        string
	FirestoreAPIKey          string
	FirestoreCredentialsFile string
	FirestoreCredentialsJSON string
	FirestoreEmulatorHost    string

	// AMQP
	AMQPURL      string
	AMQPExchange string

	// Relay
	RelaySource       string
	RepublishInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		FeedBackend:  getEnv("FEED_BACKEND", BackendMemory),
		Collection:   getEnv("COLLECTION", "gastos"),
		PageSize:     getEnvInt("PAGE_SIZE", 10),
		Timezone:     getEnv("TIMEZONE", "Local"),
		PollInterval: getEnvDuration("POLL_INTERVAL", 5*time.Second),
		SeedFile:     getEnv("SEED_FILE", ""),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/gastos.db"),

		FirestoreProjectID:       getEnv("FIRESTORE_PROJECT_ID", ""),
		FirestoreDatabase:        getEnv("FIRESTORE_DATABASE", "(default)"),
		FirestoreAPIKey:          getEnv("FIRESTORE_API_KEY", ""),
		FirestoreCredentialsFile: getEnv("FIRESTORE_CREDENTIALS_FILE", ""),
		FirestoreCredentialsJSON: getEnv("FIRESTORE_CREDENTIALS_JSON", ""),
		FirestoreEmulatorHost:    getEnv("FIRESTORE_EMULATOR_HOST", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "gastos.snapshots"),

		RelaySource:       getEnv("RELAY_SOURCE", BackendSQLite),
		RepublishInterval: getEnvDuration("REPUBLISH_INTERVAL", 30*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Location resolves Timezone. "Local" and "" mean time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !isValidBackend(c.FeedBackend) {
		errors = append(errors, fmt.Sprintf("invalid feed backend '%s': must be one of %v", c.FeedBackend, validBackends))
	}

	if strings.TrimSpace(c.Collection) == "" {
		errors = append(errors, "collection name cannot be empty")
	}

	if c.PageSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid page size %d: must be at least 1", c.PageSize))
	} else if c.PageSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid page size %d: must be at most 1000", c.PageSize))
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.PollInterval < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid poll interval %v: must be at least 100ms", c.PollInterval))
	} else if c.PollInterval > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid poll interval %v: must be at most 1 hour", c.PollInterval))
	}

	switch c.FeedBackend {
	case BackendSQLite:
		errors = append(errors, c.validateSQLite()...)
	case BackendFirestore:
		errors = append(errors, c.validateFirestore()...)
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	} else if c.FeedBackend == BackendAMQP {
		errors = append(errors, "AMQP_URL is required when using amqp backend")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateRelay checks the extra settings gastos-relay needs.
func (c *Config) ValidateRelay() error {
	var errors []string
	switch c.RelaySource {
	case BackendMemory:
	case BackendSQLite:
		errors = append(errors, c.validateSQLite()...)
	case BackendFirestore:
		errors = append(errors, c.validateFirestore()...)
	default:
		errors = append(errors, fmt.Sprintf("invalid relay source '%s': must be one of [memory sqlite firestore]", c.RelaySource))
	}
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required by the relay")
	}
	if c.RepublishInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid republish interval %v: must be at least 1 second", c.RepublishInterval))
	}
	if len(errors) > 0 {
		return fmt.Errorf("relay configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateSQLite() []string {
	if c.SQLiteDBPath == "" {
		return []string{"SQLite database path cannot be empty when using sqlite backend"}
	}
	dir := filepath.Dir(c.SQLiteDBPath)
	if dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return []string{fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err)}
			}
		}
	}
	return nil
}

func (c *Config) validateFirestore() []string {
	var errors []string
	if c.FirestoreProjectID == "" {
		errors = append(errors, "FIRESTORE_PROJECT_ID is required when using firestore backend")
	}
	if c.FirestoreEmulatorHost != "" {
		return errors
	}
	hasFile := c.FirestoreCredentialsFile != ""
	if !hasFile && c.FirestoreCredentialsJSON == "" && c.FirestoreAPIKey == "" {
		errors = append(errors, "one of FIRESTORE_CREDENTIALS_FILE, FIRESTORE_CREDENTIALS_JSON or FIRESTORE_API_KEY must be provided for firestore backend")
	}
	if hasFile {
		if _, err := os.Stat(c.FirestoreCredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Firestore credentials file does not exist: %s", c.FirestoreCredentialsFile))
		}
	}
	return errors
}

// CredentialsJSON returns the inline credentials or the contents of the
// credentials file.
func (c *Config) CredentialsJSON() ([]byte, error) {
	if c.FirestoreCredentialsJSON != "" {
		return []byte(c.FirestoreCredentialsJSON), nil
	}
	if c.FirestoreCredentialsFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.FirestoreCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	return data, nil
}

func isValidBackend(name string) bool {
	for _, b := range validBackends {
		if b == name {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
