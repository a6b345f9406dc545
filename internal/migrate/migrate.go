// Package migrate applies the embedded goose migrations on startup.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
	"go.uber.org/zap"

	"github.com/and161185/kobo-sync/migrations"
)

// Up applies pending migrations and returns the resulting schema version.
// Versions are recorded in goose_db_version, so each file runs once; a
// PostgreSQL session lock serializes instances that start together.
func Up(ctx context.Context, dsn string, log *zap.Logger) (int64, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return 0, err
	}
	return run(ctx, db, locker, log)
}

func newProvider(db *sql.DB, locker lock.SessionLocker) (*goose.Provider, error) {
	return goose.NewProvider(goose.DialectPostgres, db, migrations.FS, goose.WithSessionLocker(locker))
}

func run(ctx context.Context, db *sql.DB, locker lock.SessionLocker, log *zap.Logger) (int64, error) {
	p, err := newProvider(db, locker)
	if err != nil {
		return 0, err
	}
	results, err := p.Up(ctx)
	for _, r := range results {
		log.Info("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.String("file", r.Source.Path),
			zap.Duration("dur", r.Duration),
		)
	}
	if err != nil {
		return 0, fmt.Errorf("goose up: %w", err)
	}
	return p.GetDBVersion(ctx)
}
