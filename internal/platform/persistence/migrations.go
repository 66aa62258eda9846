package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var (
	ErrEmptyMigrationsPath = errors.New("migrations path cannot be empty")
	ErrEmptyDatabaseURL    = errors.New("database URL cannot be empty")
	ErrDirtySchema         = errors.New("schema is dirty after a failed migration")
)

// migrationSource turns a directory into a golang-migrate source URL.
// Paths that already carry a scheme are used as given.
func migrationSource(migrationsPath string) (string, error) {
	migrationsPath = strings.TrimSpace(migrationsPath)
	if migrationsPath == "" {
		return "", ErrEmptyMigrationsPath
	}
	if strings.Contains(migrationsPath, "://") {
		return migrationsPath, nil
	}
	return "file://" + migrationsPath, nil
}

// RunMigrations applies pending up migrations. A dirty schema is reported
// instead of retried; it needs a manual force after the cause is fixed.
func RunMigrations(logger *slog.Logger, databaseURL, migrationsPath string) error {
	sourceURL, err := migrationSource(migrationsPath)
	if err != nil {
		return err
	}
	if databaseURL == "" {
		return ErrEmptyDatabaseURL
	}

	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil || dbErr != nil {
			logger.Warn("Failed to close migrator", "source_error", sourceErr, "database_error", dbErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w: version %d", ErrDirtySchema, version)
	}
	logger.Info("Database schema up to date", "version", version, "source", sourceURL)
	return nil
}
