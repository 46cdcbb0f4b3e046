package gormstore

import (
	"context"
	"embed"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

//go:embed migrations
var migrationsFS embed.FS

// RunMigrations applies the embedded migrations for the dialect db was opened with.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	dir, dialect := "migrations/sqlite", "sqlite3"
	if db.Dialector.Name() == "postgres" {
		dir, dialect = "migrations/postgres", "postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.UpContext(ctx, sqlDB, dir); err != nil {
		return errors.Wrap(err, "apply migrations")
	}

	return nil
}
