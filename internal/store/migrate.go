package store

import (
    "embed"
    "errors"
    "fmt"
    "log"

    "github.com/golang-migrate/migrate/v4"
    pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
    "github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending schema migrations. Already being at the latest version is not an error.
func (p *Postgres) Migrate() error {
    src, err := iofs.New(migrationsFS, "migrations")
    if err != nil {
        return fmt.Errorf("open embedded migrations: %w", err)
    }
    driver, err := pgxmigrate.WithInstance(p.db, &pgxmigrate.Config{})
    if err != nil {
        return fmt.Errorf("create migrate driver: %w", err)
    }
    // Not closed: closing m would close p.db.
    m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
    if err != nil {
        return fmt.Errorf("create migrate instance: %w", err)
    }
    m.Log = migrateLogger{}
    if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
        return fmt.Errorf("migration up failed: %w", err)
    }
    return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) { log.Printf("[migrate] "+format, v...) }

func (migrateLogger) Verbose() bool { return false }
