// Package file keeps the ledger slot in a single JSON file on local disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"ledger/internal/core"
)

type Store struct {
	path string
}

// New returns a slot backed by path. The parent directory is created on
// first save.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the slot file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads and decodes the slot file. A missing file returns nil, nil.
func (s *Store) Load(ctx context.Context) ([]core.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	return core.DecodeEntries(data)
}

// Save replaces the slot file atomically. Readers see either the previous
// collection or the new one, never a partial write.
func (s *Store) Save(ctx context.Context, entries []core.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := core.EncodeEntries(entries)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}
