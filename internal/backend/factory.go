package backend

import (
	"context"
	"fmt"

	"gastos/internal/feed/amqp"
	"gastos/internal/feed/firestore"
	"gastos/internal/feed/memory"
	"gastos/internal/feed/sqlite"
	"gastos/internal/log"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend(config)
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case FirestoreBackend:
		return f.createFirestoreBackend(ctx, config)
	case AMQPBackend:
		return f.createAMQPBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	fd := memory.New()
	if config.SeedFile != "" {
		seeded, err := memory.NewFromFile(config.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load seed file: %w", err)
		}
		fd = seeded
	}

	f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile)

	return &BackendResult{Feed: fd, Writer: fd, Cleanup: fd.Close}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	opts := []sqlite.Option{sqlite.WithLogger(f.logger.WithComponent(log.ComponentFeed).Logger)}
	if config.PollInterval > 0 {
		opts = append(opts, sqlite.WithPollInterval(config.PollInterval))
	}
	fd, err := sqlite.Open(config.SQLiteDBPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite feed: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{Feed: fd, Writer: fd, Cleanup: fd.Close}, nil
}

func (f *DefaultFactory) createFirestoreBackend(ctx context.Context, config Config) (*BackendResult, error) {
	fd, err := firestore.New(ctx, firestore.Config{
		ProjectID:       config.FirestoreProjectID,
		Database:        config.FirestoreDatabase,
		APIKey:          config.FirestoreAPIKey,
		CredentialsJSON: config.FirestoreCredentialsJSON,
		EmulatorHost:    config.FirestoreEmulatorHost,
		PollInterval:    config.PollInterval,
	}, f.logger.WithComponent(log.ComponentFeed).Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firestore feed: %w", err)
	}

	f.logger.Info("Initialized Firestore backend",
		"project", config.FirestoreProjectID,
		"emulator", config.FirestoreEmulatorHost != "")

	return &BackendResult{Feed: fd, Writer: fd, Cleanup: fd.Close}, nil
}

func (f *DefaultFactory) createAMQPBackend(config Config) (*BackendResult, error) {
	exchange := config.AMQPExchange
	if exchange == "" {
		exchange = amqp.DefaultExchange
	}
	fd := amqp.NewFeed(config.AMQPURL, exchange, f.logger.WithComponent(log.ComponentAMQP).Logger)

	f.logger.Info("Initialized AMQP backend", "exchange", exchange)

	return &BackendResult{Feed: fd, Cleanup: fd.Close}, nil
}
