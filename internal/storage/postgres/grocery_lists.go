package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/weekdate"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type groceryListsStorage struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

const listColumns = `id::text, user_id, name, meal_plan_id::text, total_estimated_cost, is_active, notes,
	shopping_date, created_at, updated_at`

func (s *groceryListsStorage) scanList(row pgx.Row) (storage.GroceryList, error) {
	var l storage.GroceryList
	err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.Name,
		&l.MealPlanID,
		&l.TotalEstimatedCost,
		&l.IsActive,
		&l.Notes,
		&l.ShoppingDate,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return storage.GroceryList{}, mapError(err)
	}
	if l.ShoppingDate != nil {
		d := inLocation(*l.ShoppingDate, s.loc)
		l.ShoppingDate = &d
	}
	return l, nil
}

func dateArg(t *time.Time) *string {
	if t == nil {
		return nil
	}
	key := weekdate.DateKey(*t)
	return &key
}

func (s *groceryListsStorage) attachItems(ctx context.Context, lists []storage.GroceryList) error {
	if len(lists) == 0 {
		return nil
	}
	ids := make([]string, len(lists))
	index := make(map[string]int, len(lists))
	for i, l := range lists {
		ids[i] = l.ID
		index[l.ID] = i
	}

	query := `
		SELECT grocery_list_id::text, id::text, name, amount, unit, category, is_checked, estimated_cost
		FROM grocery_items
		WHERE grocery_list_id = ANY($1::uuid[])
		ORDER BY position
	`
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to load grocery items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var listID string
		var it storage.GroceryItem
		if err := rows.Scan(&listID, &it.ID, &it.Name, &it.Amount, &it.Unit, &it.Category, &it.IsChecked, &it.EstimatedCost); err != nil {
			return err
		}
		i := index[listID]
		lists[i].Items = append(lists[i].Items, it)
	}
	return rows.Err()
}

// replaceItems удаляет старые позиции и пишет новые в исходном порядке
func replaceItems(ctx context.Context, tx pgx.Tx, listID string, items []storage.GroceryItem) error {
	if _, err := tx.Exec(ctx, `DELETE FROM grocery_items WHERE grocery_list_id = $1`, listID); err != nil {
		return fmt.Errorf("failed to clear grocery items: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	rows := make([][]any, len(items))
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		it := items[i]
		rows[i] = []any{it.ID, listID, i, it.Name, it.Amount, it.Unit, it.Category, it.IsChecked, it.EstimatedCost}
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"grocery_items"},
		[]string{"id", "grocery_list_id", "position", "name", "amount", "unit", "category", "is_checked", "estimated_cost"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to insert grocery items: %w", mapError(err))
	}
	return nil
}

func (s *groceryListsStorage) Create(ctx context.Context, list *storage.GroceryList) error {
	if list.ID == "" {
		list.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO grocery_lists (id, user_id, name, meal_plan_id, total_estimated_cost, is_active, notes,
			shopping_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::date, $9, $9)
	`
	_, err = tx.Exec(ctx, query,
		list.ID,
		list.UserID,
		list.Name,
		list.MealPlanID,
		list.TotalEstimatedCost,
		list.IsActive,
		list.Notes,
		dateArg(list.ShoppingDate),
		now,
	)
	if err != nil {
		return mapError(err)
	}
	if err := replaceItems(ctx, tx, list.ID, list.Items); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit grocery list: %w", err)
	}

	list.CreatedAt = now
	list.UpdatedAt = now
	return nil
}

func (s *groceryListsStorage) Get(ctx context.Context, userID, id string) (storage.GroceryList, error) {
	if !validID(id) {
		return storage.GroceryList{}, storage.ErrNotFound
	}
	l, err := s.scanList(s.pool.QueryRow(ctx, `SELECT `+listColumns+` FROM grocery_lists WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return storage.GroceryList{}, err
	}
	lists := []storage.GroceryList{l}
	if err := s.attachItems(ctx, lists); err != nil {
		return storage.GroceryList{}, err
	}
	return lists[0], nil
}

func (s *groceryListsStorage) Update(ctx context.Context, list *storage.GroceryList) error {
	if !validID(list.ID) {
		return storage.ErrNotFound
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE grocery_lists
		SET name = $3, meal_plan_id = $4, total_estimated_cost = $5, is_active = $6, notes = $7,
		    shopping_date = $8::date, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		list.ID,
		list.UserID,
		list.Name,
		list.MealPlanID,
		list.TotalEstimatedCost,
		list.IsActive,
		list.Notes,
		dateArg(list.ShoppingDate),
	).Scan(&list.CreatedAt, &list.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if err := replaceItems(ctx, tx, list.ID, list.Items); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit grocery list: %w", err)
	}
	return nil
}

func (s *groceryListsStorage) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return storage.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM grocery_lists WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *groceryListsStorage) List(ctx context.Context, userID string, filter storage.GroceryListFilter) ([]storage.GroceryList, int, error) {
	where := ` WHERE user_id = $1`
	args := []any{userID}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		where += fmt.Sprintf(" AND is_active = $%d", len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM grocery_lists`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count grocery lists: %w", err)
	}

	query := `SELECT ` + listColumns + ` FROM grocery_lists` + where + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list grocery lists: %w", err)
	}
	lists := []storage.GroceryList{}
	for rows.Next() {
		l, err := s.scanList(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		lists = append(lists, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := s.attachItems(ctx, lists); err != nil {
		return nil, 0, err
	}
	return lists, total, nil
}

func (s *groceryListsStorage) DeleteByUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM grocery_lists WHERE user_id = $1`, userID)
	return err
}
