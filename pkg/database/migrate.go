package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every embedded migration goose has not yet recorded.
// Replicas starting together serialize on a Postgres advisory lock.
func Migrate(ctx context.Context, db *sqlx.DB) ([]string, error) {
	provider, err := newProvider(db.DB)
	if err != nil {
		return nil, err
	}
	results, err := provider.Up(ctx)
	var ran []string
	for _, res := range results {
		if res.Error == nil && res.Source != nil {
			ran = append(ran, res.Source.Path)
		}
	}
	if err != nil {
		return ran, fmt.Errorf("apply migrations: %w", err)
	}
	return ran, nil
}

func newProvider(db *sql.DB) (*goose.Provider, error) {
	files, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, fmt.Errorf("migration lock: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, files, goose.WithSessionLocker(locker))
	if err != nil {
		return nil, fmt.Errorf("migration provider: %w", err)
	}
	return provider, nil
}
