package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/zipbuilder/internal/server/repositories/jobs"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Jobs(db *sql.DB) jobs.Repository
}
