package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/zipbuilder/internal/server/repositories/jobs"
	"github.com/pressly/goose/v3"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	if _, ok := NewPostgresRepositoryManager().Jobs(db).(*jobs.PostgresRepository); !ok {
		t.Fatal("postgres manager must vend *jobs.PostgresRepository")
	}
	if _, ok := NewSQLiteRepositoryManager().Jobs(db).(*jobs.SQLiteRepository); !ok {
		t.Fatal("sqlite manager must vend *jobs.SQLiteRepository")
	}
}

func TestRunMigrations_Dirs(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	var dirs []string
	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		dirs = append(dirs, dir)
		if len(opts) != 0 {
			return errors.New("unexpected opts")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	for _, m := range []RepositoryManager{NewPostgresRepositoryManager(), NewSQLiteRepositoryManager()} {
		if err := m.RunMigrations(context.Background(), db); err != nil {
			t.Fatalf("RunMigrations error: %v", err)
		}
	}
	if len(dirs) != 2 || dirs[0] != "postgres" || dirs[1] != "sqlite" {
		t.Fatalf("unexpected migration dirs: %v", dirs)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}
