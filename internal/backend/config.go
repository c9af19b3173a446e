package backend

import (
	"fmt"

	"gastos/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	return fromAppConfig(appConfig, BackendType(appConfig.FeedBackend))
}

// RelaySourceFromAppConfig builds the config of the feed the relay reads.
func RelaySourceFromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	return fromAppConfig(appConfig, BackendType(appConfig.RelaySource))
}

func fromAppConfig(appConfig *config.Config, backendType BackendType) (Config, error) {
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", backendType)
	}

	cfg := Config{
		Type:         backendType,
		PollInterval: appConfig.PollInterval,
		SeedFile:     appConfig.SeedFile,
		SQLiteDBPath: appConfig.SQLiteDBPath,

		FirestoreProjectID:    appConfig.FirestoreProjectID,
		FirestoreDatabase:     appConfig.FirestoreDatabase,
		FirestoreAPIKey:       appConfig.FirestoreAPIKey,
		FirestoreEmulatorHost: appConfig.FirestoreEmulatorHost,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
	}

	if backendType == FirestoreBackend {
		creds, err := appConfig.CredentialsJSON()
		if err != nil {
			return Config{}, err
		}
		cfg.FirestoreCredentialsJSON = creds
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case FirestoreBackend:
		if c.FirestoreProjectID == "" {
			return fmt.Errorf("Firestore project id is required for firestore backend")
		}
	case AMQPBackend:
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP URL is required for amqp backend")
		}
	case MemoryBackend:
		// An empty seed file gives an empty feed
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, FirestoreBackend, AMQPBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
