package dbmigrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/fdg312/meal-planner/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Run executes a goose command ("up", "down", "status", ...) against dbURL.
// An empty migrationsDir uses the SQL files compiled into the binary.
func Run(ctx context.Context, command, dbURL, migrationsDir string, args ...string) error {
	if dbURL == "" {
		return fmt.Errorf("database URL is empty")
	}

	var fsys fs.FS = migrations.FS
	dir := "."
	if migrationsDir != "" {
		fsys = os.DirFS(migrationsDir)
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s failed: %w", command, err)
	}
	return nil
}

// Up applies pending migrations, used by the API at startup.
func Up(ctx context.Context, sel Selection, log logrus.FieldLogger) error {
	if sel.Warning != "" {
		log.Warn(sel.Warning)
	}
	log.WithField("source", sel.Source).Info("applying database migrations")
	return Run(ctx, "up", sel.URL, "")
}

func migrationsList() ([]string, error) {
	return fs.Glob(migrations.FS, "*.sql")
}
