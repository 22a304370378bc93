// Package migrate applies the embedded ClickHouse schema.
package migrate

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse" // ClickHouse driver.
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed sql/*.sql
var migrations embed.FS

// Migrator manages ClickHouse schema migrations.
type Migrator interface {
	// Up applies all pending migrations.
	Up(ctx context.Context) error
	// Down rolls back the last migration.
	Down(ctx context.Context) error
	// Status returns the current migration version.
	Status(ctx context.Context) (version uint, dirty bool, err error)
}

type migrator struct {
	log logrus.FieldLogger
	dsn string
}

// New creates a new Migrator.
// The dsn should be a ClickHouse connection string (e.g., "clickhouse://host:9000/database").
func New(log logrus.FieldLogger, dsn string) Migrator {
	return &migrator{
		log: log.WithField("component", "migrate"),
		dsn: dsn,
	}
}

// Source opens the embedded migrations.
func Source() (source.Driver, error) {
	src, err := iofs.New(migrations, "sql")
	if err != nil {
		return nil, fmt.Errorf("creating migration source: %w", err)
	}

	return src, nil
}

// Up applies all pending migrations.
func (m *migrator) Up(ctx context.Context) error {
	mig, release, err := m.newMigrate(ctx)
	if err != nil {
		return err
	}
	defer release()

	m.log.Info("Running migrations...")

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, _, _ := mig.Version()
	m.log.WithField("version", version).Info("Migrations completed successfully")

	return nil
}

// Down rolls back the last migration.
func (m *migrator) Down(ctx context.Context) error {
	mig, release, err := m.newMigrate(ctx)
	if err != nil {
		return err
	}
	defer release()

	m.log.Info("Rolling back last migration...")

	if err := mig.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rolling back migration: %w", err)
	}

	m.log.Info("Rollback completed successfully")

	return nil
}

// Status returns the current migration version.
func (m *migrator) Status(ctx context.Context) (uint, bool, error) {
	mig, release, err := m.newMigrate(ctx)
	if err != nil {
		return 0, false, err
	}
	defer release()

	version, dirty, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("getting migration version: %w", err)
	}

	return version, dirty, nil
}

// newMigrate creates a migrate instance that stops between migrations
// once ctx is done. release closes the instance and detaches it from ctx.
func (m *migrator) newMigrate(ctx context.Context) (*migrate.Migrate, func(), error) {
	src, err := Source()
	if err != nil {
		return nil, nil, err
	}

	mig, err := migrate.NewWithSourceInstance("iofs", src, MultiStatementDSN(m.dsn))
	if err != nil {
		return nil, nil, fmt.Errorf("creating migrate instance: %w", err)
	}

	mig.Log = &logAdapter{log: m.log}

	stop := stopOnDone(ctx, mig.GracefulStop)

	release := func() {
		if srcErr, dbErr := mig.Close(); srcErr != nil || dbErr != nil {
			m.log.WithError(errors.Join(srcErr, dbErr)).Warn("Error closing migrate instance")
		}

		stop()
	}

	return mig, release, nil
}

// stopOnDone signals gracefulStop once ctx is done. The returned func
// unregisters the signal.
func stopOnDone(ctx context.Context, gracefulStop chan bool) func() bool {
	return context.AfterFunc(ctx, func() {
		select {
		case gracefulStop <- true:
		default:
		}
	})
}

// MultiStatementDSN enables multi-statement migrations on dsn.
func MultiStatementDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return dsn + sep + "x-multi-statement=true"
}

// logAdapter routes golang-migrate's logger to logrus.
type logAdapter struct {
	log logrus.FieldLogger
}

func (l *logAdapter) Printf(format string, v ...any) {
	l.log.Debugf(strings.TrimSuffix(format, "\n"), v...)
}

func (l *logAdapter) Verbose() bool {
	return false
}
