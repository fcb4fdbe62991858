// Package db opens the job store selected by configuration.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/server/config"
	"github.com/dmitrijs2005/zipbuilder/internal/server/repositories/jobs"
	"github.com/dmitrijs2005/zipbuilder/internal/server/repositories/repomanager"
)

// Store is the job repository together with the connection it runs on.
type Store struct {
	Jobs jobs.Repository
	conn *sql.DB
}

// Conn returns the SQL connection, or nil for the in-memory store.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Open connects to the configured job store and applies its migrations.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.JobStore {
	case config.StoreMemory:
		return &Store{Jobs: jobs.NewMemoryRepository()}, nil
	case config.StorePostgres:
		return openSQL(ctx, "pgx", cfg.DatabaseDSN, repomanager.NewPostgresRepositoryManager(), 0)
	case config.StoreSQLite:
		// one writer at a time keeps SQLite from returning SQLITE_BUSY
		return openSQL(ctx, "sqlite", cfg.DatabaseDSN, repomanager.NewSQLiteRepositoryManager(), 1)
	default:
		return nil, fmt.Errorf("%w: unknown job store %q", common.ErrConfiguration, cfg.JobStore)
	}
}

func openSQL(ctx context.Context, driver, dsn string, rm repomanager.RepositoryManager, maxOpen int) (*Store, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if maxOpen > 0 {
		conn.SetMaxOpenConns(maxOpen)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	if err := rm.RunMigrations(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	return &Store{Jobs: rm.Jobs(conn), conn: conn}, nil
}
