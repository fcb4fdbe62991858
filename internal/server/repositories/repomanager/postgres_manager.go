// Package repomanager vends SQL-backed job repositories together with the
// goose migrations their schema needs.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/zipbuilder/internal/server/migrations"
	"github.com/dmitrijs2005/zipbuilder/internal/server/repositories/jobs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// PostgresRepositoryManager vends PostgreSQL-backed repositories.
type PostgresRepositoryManager struct{}

// Jobs returns a jobs.Repository bound to db.
func (m *PostgresRepositoryManager) Jobs(db *sql.DB) jobs.Repository {
	return jobs.NewPostgresRepository(db)
}

// RunMigrations applies the embedded postgres migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, "postgres")
}

func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
