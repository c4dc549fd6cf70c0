package backend

import (
	"context"

	"ledger/internal/ledger"
)

// CleanupFunc releases resources owned by a backend.
type CleanupFunc func() error

// BackendResult holds the wired storage slot, the optional change notifier
// and the cleanup for both.
type BackendResult struct {
	Persister ledger.Persister
	// Notifier is nil when AMQP is disabled or the broker was unreachable.
	Notifier ledger.Notifier
	Cleanup  CleanupFunc
}

// Ping checks the storage slot when the backend supports it.
func (r *BackendResult) Ping(ctx context.Context) error {
	if p, ok := r.Persister.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// file
	FilePath string

	// sqlite
	SQLiteDBPath string
	SlotName     string

	// change notifications
	AMQPURL           string
	AMQPExchange      string
	AMQPRoutingPrefix string
	AMQPQueue         string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	FileBackend   BackendType = "file"
	SQLiteBackend BackendType = "sqlite"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, FileBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}
