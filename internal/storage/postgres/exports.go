package postgres

import (
	"context"
	"fmt"

	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type exportsStorage struct {
	pool *pgxpool.Pool
}

const exportColumns = `id::text, user_id, format, range_start::text, range_end::text, object_key, item_count, size_bytes, created_at`

func scanExport(row pgx.Row) (storage.GroceryExport, error) {
	var e storage.GroceryExport
	var key *string
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.Format,
		&e.RangeStart,
		&e.RangeEnd,
		&key,
		&e.ItemCount,
		&e.SizeBytes,
		&e.CreatedAt,
	)
	if err != nil {
		return storage.GroceryExport{}, mapError(err)
	}
	e.ObjectKey = deref(key)
	return e, nil
}

func (s *exportsStorage) Create(ctx context.Context, export *storage.GroceryExport) error {
	if export.ID == "" {
		export.ID = uuid.NewString()
	}

	query := `
		INSERT INTO grocery_exports (id, user_id, format, range_start, range_end, object_key, item_count, size_bytes)
		VALUES ($1, $2, $3, $4::date, $5::date, $6, $7, $8)
		RETURNING created_at
	`
	err := s.pool.QueryRow(ctx, query,
		export.ID,
		export.UserID,
		export.Format,
		export.RangeStart,
		export.RangeEnd,
		nullString(export.ObjectKey),
		export.ItemCount,
		export.SizeBytes,
	).Scan(&export.CreatedAt)
	return mapError(err)
}

func (s *exportsStorage) Get(ctx context.Context, userID, id string) (storage.GroceryExport, error) {
	if !validID(id) {
		return storage.GroceryExport{}, storage.ErrNotFound
	}
	return scanExport(s.pool.QueryRow(ctx, `SELECT `+exportColumns+` FROM grocery_exports WHERE id = $1 AND user_id = $2`, id, userID))
}

func (s *exportsStorage) List(ctx context.Context, userID string, limit, offset int) ([]storage.GroceryExport, error) {
	query := `SELECT ` + exportColumns + ` FROM grocery_exports WHERE user_id = $1 ORDER BY created_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	defer rows.Close()

	exports := []storage.GroceryExport{}
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		exports = append(exports, e)
	}
	return exports, rows.Err()
}

func (s *exportsStorage) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return storage.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM grocery_exports WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
