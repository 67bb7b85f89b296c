// Package migrations applies the embedded SQL schema with golang-migrate.
package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"link2ur.backend/pkg/logger"
)

//go:embed sql/*.sql
var Files embed.FS

type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Close() (error, error)
}

var newMigrator = func(src source.Driver, databaseURL string) (migrator, error) {
	return migrate.NewWithSourceInstance("iofs", src, databaseURL)
}

// Source returns the embedded migration files as a golang-migrate source.
func Source() (source.Driver, error) {
	d, err := iofs.New(Files, "sql")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return d, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func Up(ctx context.Context, databaseURL string) error {
	return run(ctx, databaseURL, "up", func(m migrator) error { return m.Up() })
}

// Down rolls back the given number of migrations; steps <= 0 rolls back all.
func Down(ctx context.Context, databaseURL string, steps int) error {
	return run(ctx, databaseURL, "down", func(m migrator) error {
		if steps <= 0 {
			return m.Down()
		}
		return m.Steps(-steps)
	})
}

func run(ctx context.Context, databaseURL, direction string, apply func(migrator) error) error {
	src, err := Source()
	if err != nil {
		return err
	}
	m, err := newMigrator(src, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err := errors.Join(srcErr, dbErr); err != nil {
			logger.Warn(ctx, "Failed to close migrator", zap.Error(err))
		}
	}()

	if err := apply(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations %s: %w", direction, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	logger.Info(ctx, "Migrations applied",
		zap.String("direction", direction),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}
