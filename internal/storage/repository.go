// Package storage keeps ledger slots in a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"ledger/internal/core"

	_ "modernc.org/sqlite"
)

// DefaultSlot is the slot name used when none is configured.
const DefaultSlot = "entries"

const (
	selectSlotSQL = `SELECT payload FROM storage_slots WHERE name = ?`
	upsertSlotSQL = `INSERT INTO storage_slots (name, payload, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
)

// SQLiteRepository stores the encoded collection as one row per slot.
type SQLiteRepository struct {
	db            *sql.DB
	slot          string
	schemaVersion uint
}

func NewSQLiteRepository(dbPath, slot string) (*SQLiteRepository, error) {
	if slot == "" {
		slot = DefaultSlot
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Single writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := migrateSlotSchema(dbPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{
		db:            db,
		slot:          slot,
		schemaVersion: version,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// SchemaVersion returns the migration version the database was opened at.
func (r *SQLiteRepository) SchemaVersion() uint {
	return r.schemaVersion
}

// Slot returns the slot name this repository reads and writes.
func (r *SQLiteRepository) Slot() string {
	return r.slot
}

// Load implements ledger.Persister. A missing slot row returns nil, nil.
func (r *SQLiteRepository) Load(ctx context.Context) ([]core.Entry, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, selectSlotSQL, r.slot).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", r.slot, err)
	}

	entries, err := core.DecodeEntries([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("slot %s: %w", r.slot, err)
	}

	slog.DebugContext(ctx, "Ledger slot loaded from SQLite",
		"slot", r.slot,
		"count", len(entries))
	return entries, nil
}

// Save implements ledger.Persister by overwriting the slot row.
func (r *SQLiteRepository) Save(ctx context.Context, entries []core.Entry) error {
	payload, err := core.EncodeEntries(entries)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, upsertSlotSQL, r.slot, string(payload)); err != nil {
		return fmt.Errorf("write slot %s: %w", r.slot, err)
	}

	slog.DebugContext(ctx, "Ledger slot saved to SQLite",
		"slot", r.slot,
		"count", len(entries),
		"bytes", len(payload))
	return nil
}

// Ping checks the database connection; used by readiness probes.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
