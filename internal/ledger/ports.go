package ledger

import (
	"context"

	"ledger/internal/core"
)

// Ports for outbound adapters.
type (
	// Persister reads and rewrites the single storage slot holding the
	// whole collection. Load returns nil, nil when the slot is absent.
	Persister interface {
		Load(ctx context.Context) ([]core.Entry, error)
		Save(ctx context.Context, entries []core.Entry) error
	}

	// Notifier is told about every applied mutation. Errors are logged and
	// never affect the mutation.
	Notifier interface {
		EntryChanged(ctx context.Context, change core.EntryChange) error
	}
)
