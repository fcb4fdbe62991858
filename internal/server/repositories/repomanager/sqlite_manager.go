package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/zipbuilder/internal/server/migrations"
	"github.com/dmitrijs2005/zipbuilder/internal/server/repositories/jobs"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLiteRepositoryManager vends repositories backed by a local SQLite file.
type SQLiteRepositoryManager struct{}

func (m *SQLiteRepositoryManager) Jobs(db *sql.DB) jobs.Repository {
	return jobs.NewSQLiteRepository(db)
}

// RunMigrations applies the embedded sqlite migrations.
func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, "sqlite")
}

func NewSQLiteRepositoryManager() RepositoryManager {
	return &SQLiteRepositoryManager{}
}
