package database

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations brings the usage ledger, job queue and event log schemas up
// to the latest version. A schema that is already current is not an error.
func RunMigrations(dsn, migrationsPath string) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	err = m.Up()
	switch {
	case err == nil:
		ver, dirty, _ := m.Version()
		slog.Info("database migrations applied", "version", ver, "dirty", dirty)
	case errors.Is(err, migrate.ErrNoChange):
		ver, _, _ := m.Version()
		slog.Info("database schema up to date", "version", ver)
	default:
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
