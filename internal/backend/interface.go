package backend

import (
	"context"
	"time"

	"gastos/internal/feed"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the feed, its write side when it has one, and a
// cleanup function.
type BackendResult struct {
	Feed    feed.Feed
	Writer  feed.Writer // nil for read-only feeds
	Cleanup CleanupFunc
}

// Close runs Cleanup when set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates feeds based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type         BackendType
	PollInterval time.Duration

	// Memory specific
	SeedFile string

	// SQLite specific
	SQLiteDBPath string

	// Firestore specific
	FirestoreProjectID       string
	FirestoreDatabase        string
	FirestoreAPIKey          string
	FirestoreCredentialsJSON []byte
	FirestoreEmulatorHost    string

	// AMQP specific
	AMQPURL      string
	AMQPExchange string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend    BackendType = "memory"
	SQLiteBackend    BackendType = "sqlite"
	FirestoreBackend BackendType = "firestore"
	AMQPBackend      BackendType = "amqp"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, FirestoreBackend, AMQPBackend:
		return true
	default:
		return false
	}
}
