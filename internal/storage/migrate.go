package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// slotSchemaVersion is the newest migration under migrations/.
const slotSchemaVersion uint = 1

//go:embed migrations/*.sql
var slotMigrations embed.FS

// migrateSlotSchema brings the storage_slots table at dbPath up to date and
// reports the schema version it ended on. migrate closes the database it is
// handed, so it gets its own handle rather than the repository's.
func migrateSlotSchema(dbPath string) (uint, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("open slot schema database: %w", err)
	}
	defer db.Close()

	target, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("sqlite migration target: %w", err)
	}
	source, err := iofs.New(slotMigrations, "migrations")
	if err != nil {
		return 0, fmt.Errorf("embedded slot migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", target)
	if err != nil {
		return 0, fmt.Errorf("prepare slot migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply slot migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read slot schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("slot schema version %d is dirty", version)
	}
	return version, nil
}
