package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/weekdate"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type mealPlansStorage struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

const planColumns = `id::text, user_id, week_id, week_start, week_end, notes, is_active, total_calories, total_cost,
	shopping_list_generated, last_shopping_list_at, version, created_at, updated_at`

func (s *mealPlansStorage) scanPlan(row pgx.Row) (storage.MealPlan, error) {
	var p storage.MealPlan
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.WeekID,
		&p.WeekStart,
		&p.WeekEnd,
		&p.Notes,
		&p.IsActive,
		&p.TotalCalories,
		&p.TotalCost,
		&p.ShoppingListGenerated,
		&p.LastShoppingListAt,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return storage.MealPlan{}, mapError(err)
	}
	p.WeekStart = inLocation(p.WeekStart, s.loc)
	p.WeekEnd = inLocation(p.WeekEnd, s.loc)
	return p, nil
}

// attachEntries загружает записи для набора планов одним запросом
func (s *mealPlansStorage) attachEntries(ctx context.Context, q rowQuerier, plans []storage.MealPlan) error {
	if len(plans) == 0 {
		return nil
	}
	ids := make([]string, len(plans))
	index := make(map[string]int, len(plans))
	for i, p := range plans {
		ids[i] = p.ID
		index[p.ID] = i
	}

	query := `
		SELECT meal_plan_id::text, id::text, date_key::text, meal_type, recipe_id, snapshot, servings, notes,
		       completed, created_at, updated_at
		FROM meal_entries
		WHERE meal_plan_id = ANY($1::uuid[])
		ORDER BY date_key, array_position(ARRAY['Breakfast','Lunch','Dinner','Snack'], meal_type), created_at
	`
	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to load meal entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var planID string
		var e storage.MealEntry
		var snapshot []byte
		if err := rows.Scan(
			&planID,
			&e.ID,
			&e.DateKey,
			&e.MealType,
			&e.RecipeID,
			&snapshot,
			&e.Servings,
			&e.Notes,
			&e.Completed,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return err
		}
		if err := json.Unmarshal(snapshot, &e.Snapshot); err != nil {
			return fmt.Errorf("failed to decode snapshot of entry %s: %w", e.ID, err)
		}
		if d, err := weekdate.ParseDateKey(e.DateKey, s.loc); err == nil {
			e.Date = d
		}
		i := index[planID]
		plans[i].Entries = append(plans[i].Entries, e)
	}
	return rows.Err()
}

func (s *mealPlansStorage) Load(ctx context.Context, userID, weekID string) (storage.MealPlan, bool, error) {
	p, err := s.scanPlan(s.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM meal_plans WHERE user_id = $1 AND week_id = $2`, userID, weekID))
	if errors.Is(err, storage.ErrNotFound) {
		return storage.MealPlan{}, false, nil
	}
	if err != nil {
		return storage.MealPlan{}, false, fmt.Errorf("failed to load meal plan: %w", err)
	}

	plans := []storage.MealPlan{p}
	if err := s.attachEntries(ctx, s.pool, plans); err != nil {
		return storage.MealPlan{}, false, err
	}
	return plans[0], true, nil
}

func (s *mealPlansStorage) Get(ctx context.Context, userID, id string) (storage.MealPlan, error) {
	if !validID(id) {
		return storage.MealPlan{}, storage.ErrNotFound
	}
	p, err := s.scanPlan(s.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM meal_plans WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return storage.MealPlan{}, err
	}

	plans := []storage.MealPlan{p}
	if err := s.attachEntries(ctx, s.pool, plans); err != nil {
		return storage.MealPlan{}, err
	}
	return plans[0], nil
}

// insertEntries пишет записи плана через batch внутри транзакции
func insertEntries(ctx context.Context, tx pgx.Tx, planID string, entries []storage.MealEntry, now time.Time) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = now
		}
		snapshot, err := json.Marshal(e.Snapshot)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		batch.Queue(`
			INSERT INTO meal_entries (id, meal_plan_id, date_key, meal_type, recipe_id, snapshot, servings, notes,
				completed, created_at, updated_at)
			VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11)`,
			e.ID, planID, e.DateKey, e.MealType, e.RecipeID, snapshot, e.Servings, e.Notes,
			e.Completed, e.CreatedAt, e.UpdatedAt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range entries {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return mapError(err)
		}
	}
	return results.Close()
}

func (s *mealPlansStorage) Create(ctx context.Context, plan *storage.MealPlan) error {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO meal_plans (id, user_id, week_id, week_start, week_end, notes, is_active, total_calories,
			total_cost, shopping_list_generated, last_shopping_list_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4::date, $5::date, $6, $7, $8, $9, $10, $11, 1, $12, $12)
	`
	_, err = tx.Exec(ctx, query,
		plan.ID,
		plan.UserID,
		plan.WeekID,
		weekdate.DateKey(plan.WeekStart),
		weekdate.DateKey(plan.WeekEnd),
		plan.Notes,
		plan.IsActive,
		plan.TotalCalories,
		plan.TotalCost,
		plan.ShoppingListGenerated,
		plan.LastShoppingListAt,
		now,
	)
	if err != nil {
		return mapError(err)
	}
	if err := insertEntries(ctx, tx, plan.ID, plan.Entries, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit meal plan: %w", err)
	}

	plan.Version = 1
	plan.CreatedAt = now
	plan.UpdatedAt = now
	return nil
}

// Save - optimistic concurrency: UPDATE ... WHERE version = $n, записи заменяются целиком.
func (s *mealPlansStorage) Save(ctx context.Context, plan *storage.MealPlan) error {
	if !validID(plan.ID) {
		return storage.ErrNotFound
	}
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE meal_plans
		SET notes = $4, is_active = $5, total_calories = $6, total_cost = $7, shopping_list_generated = $8,
		    last_shopping_list_at = $9, version = version + 1, updated_at = $10
		WHERE id = $1 AND user_id = $2 AND version = $3
		RETURNING version, created_at
	`
	var version int
	var createdAt time.Time
	err = tx.QueryRow(ctx, query,
		plan.ID,
		plan.UserID,
		plan.Version,
		plan.Notes,
		plan.IsActive,
		plan.TotalCalories,
		plan.TotalCost,
		plan.ShoppingListGenerated,
		plan.LastShoppingListAt,
		now,
	).Scan(&version, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM meal_plans WHERE id = $1 AND user_id = $2)`, plan.ID, plan.UserID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to update meal plan: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM meal_entries WHERE meal_plan_id = $1`, plan.ID); err != nil {
		return fmt.Errorf("failed to clear meal entries: %w", err)
	}
	if err := insertEntries(ctx, tx, plan.ID, plan.Entries, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit meal plan: %w", err)
	}

	plan.Version = version
	plan.CreatedAt = createdAt
	plan.UpdatedAt = now
	return nil
}

func (s *mealPlansStorage) queryPlans(ctx context.Context, query string, args ...any) ([]storage.MealPlan, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list meal plans: %w", err)
	}
	plans := []storage.MealPlan{}
	for rows.Next() {
		p, err := s.scanPlan(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		plans = append(plans, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachEntries(ctx, s.pool, plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *mealPlansStorage) List(ctx context.Context, userID string, filter storage.MealPlanFilter) ([]storage.MealPlan, int, error) {
	where := ` WHERE user_id = $1`
	args := []any{userID}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		where += fmt.Sprintf(" AND is_active = $%d", len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM meal_plans`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count meal plans: %w", err)
	}

	query := `SELECT ` + planColumns + ` FROM meal_plans` + where + ` ORDER BY week_start DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	plans, err := s.queryPlans(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return plans, total, nil
}

func (s *mealPlansStorage) ListOverlapping(ctx context.Context, userID string, from, to time.Time) ([]storage.MealPlan, error) {
	query := `SELECT ` + planColumns + ` FROM meal_plans
		WHERE user_id = $1 AND week_end >= $2::date AND week_start <= $3::date
		ORDER BY week_start`
	return s.queryPlans(ctx, query, userID, weekdate.DateKey(from), weekdate.DateKey(to))
}

func (s *mealPlansStorage) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return storage.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM meal_plans WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *mealPlansStorage) DeleteByUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM meal_plans WHERE user_id = $1`, userID)
	return err
}
