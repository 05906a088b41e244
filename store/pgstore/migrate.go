package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgdriver "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings the records schema at dsn up to date.
func Migrate(ctx context.Context, dsn string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "migrate src")
	}
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return errors.Wrap(err, "open sql db")
	}
	defer sqldb.Close()

	// The server may not accept connections yet.
	var pingErr error
	for range 30 {
		pingErr = sqldb.PingContext(ctx)
		if pingErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "ping db")
		case <-time.After(500 * time.Millisecond):
		}
	}
	if pingErr != nil {
		return errors.Wrap(pingErr, "ping db")
	}

	driver, err := pgdriver.WithInstance(sqldb, &pgdriver.Config{})
	if err != nil {
		return errors.Wrap(err, "migrate driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "migrate init")
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migrate up")
	}
	return nil
}
