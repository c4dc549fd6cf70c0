package backend

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/amqp"
	applog "ledger/internal/log"
	"ledger/internal/storage"
	"ledger/internal/storage/file"
	"ledger/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case MemoryBackend:
		result = f.createMemoryBackend()
	case FileBackend:
		result = f.createFileBackend(config)
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.attachNotifier(ctx, config, result)
	return result, nil
}

func (f *DefaultFactory) createMemoryBackend() *BackendResult {
	f.logger.Info("Initialized memory backend, entries will not survive a restart")
	return &BackendResult{Persister: memory.New()}
}

func (f *DefaultFactory) createFileBackend(config Config) *BackendResult {
	f.logger.Info("Initialized file backend", applog.FieldBackend, FileBackend, "path", config.FilePath)
	return &BackendResult{Persister: file.New(config.FilePath)}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	slot := config.SlotName
	if slot == "" {
		slot = storage.DefaultSlot
	}

	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend",
		applog.FieldBackend, SQLiteBackend,
		"db_path", config.SQLiteDBPath,
		"slot", slot,
		"schema_version", repo.SchemaVersion())

	return &BackendResult{
		Persister: repo,
		Cleanup:   repo.Close,
	}, nil
}

// attachNotifier connects the AMQP publisher when configured. An unreachable
// broker only disables notifications.
func (f *DefaultFactory) attachNotifier(ctx context.Context, config Config, result *BackendResult) {
	if config.AMQPURL == "" {
		return
	}

	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPRoutingPrefix, config.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change notifications",
			applog.FieldError, err.Error())
		return
	}

	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"routing_prefix", config.AMQPRoutingPrefix,
		"queue", config.AMQPQueue)

	result.Notifier = client
	storageCleanup := result.Cleanup
	result.Cleanup = func() error {
		var errs []error
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close AMQP client: %w", err))
		}
		if storageCleanup != nil {
			if err := storageCleanup(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
