package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresStorage - Postgres реализация Storage
type PostgresStorage struct {
	pool      *pgxpool.Pool
	users     *usersStorage
	recipes   *recipesStorage
	mealPlans *mealPlansStorage
	grocery   *groceryListsStorage
	exports   *exportsStorage
}

type Option func(*options)

type options struct {
	loc      *time.Location
	maxConns int32
}

// WithLocation sets the zone DATE columns are read back in.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

func WithMaxConns(n int32) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConns = n
		}
	}
}

// New открывает пул соединений и проверяет доступность базы
func New(ctx context.Context, databaseURL string, opts ...Option) (*PostgresStorage, error) {
	o := options{loc: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if o.maxConns > 0 {
		poolCfg.MaxConns = o.maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStorage{
		pool:      pool,
		users:     &usersStorage{pool: pool},
		recipes:   &recipesStorage{pool: pool},
		mealPlans: &mealPlansStorage{pool: pool, loc: o.loc},
		grocery:   &groceryListsStorage{pool: pool, loc: o.loc},
		exports:   &exportsStorage{pool: pool},
	}, nil
}

func (p *PostgresStorage) GetUsersStorage() storage.UsersStorage               { return p.users }
func (p *PostgresStorage) GetRecipesStorage() storage.RecipesStorage           { return p.recipes }
func (p *PostgresStorage) GetMealPlansStorage() storage.MealPlansStorage       { return p.mealPlans }
func (p *PostgresStorage) GetGroceryListsStorage() storage.GroceryListsStorage { return p.grocery }
func (p *PostgresStorage) GetExportsStorage() storage.ExportsStorage           { return p.exports }

func (p *PostgresStorage) Mode() string { return "postgres" }

func (p *PostgresStorage) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

// mapError переводит ошибки драйвера в ошибки storage
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrDuplicateKey
	}
	return err
}

// validID: ids are UUID columns, anything else cannot match a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// inLocation re-anchors a DATE value (midnight UTC) to midnight in loc.
func inLocation(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// rowQuerier is satisfied by both the pool and a transaction.
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}
