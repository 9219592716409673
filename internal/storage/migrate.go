package storage

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// migrate applies all pending migrations for the connection's dialect.
func (db *DB) migrate(source string) error {
	src, err := iofs.New(migrationsFS, "migrations/"+string(db.dialect))
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	var m *migrate.Migrate
	switch db.dialect {
	case Postgres:
		m, err = migrate.NewWithSourceInstance("iofs", src, source)
		if err != nil {
			return fmt.Errorf("migrate new: %w", err)
		}
		defer m.Close()
	default:
		// Reuse the open connection so in-memory databases see the schema.
		// m.Close would close that connection, so only the source is released.
		driver, err := sqlite.WithInstance(db.conn, &sqlite.Config{})
		if err != nil {
			return fmt.Errorf("create sqlite driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite", driver)
		if err != nil {
			return fmt.Errorf("migrate new: %w", err)
		}
		defer src.Close()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
