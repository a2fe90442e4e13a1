package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type recipesStorage struct {
	pool *pgxpool.Pool
}

const recipeColumns = `id::text, mealdb_id, title, ingredients, detailed_ingredients, tags, diet, instructions,
	category, area, youtube_url, source, nutrition, prep_time, cook_time, servings, image, data_source,
	created_by, is_public, last_updated, created_at, updated_at`

// recipeJSON holds the jsonb columns of a recipe in encoded form.
type recipeJSON struct {
	ingredients []byte
	detailed    []byte
	nutrition   []byte
}

func encodeRecipe(r *storage.Recipe) (recipeJSON, error) {
	var out recipeJSON
	var err error
	ingredients := r.Ingredients
	if ingredients == nil {
		ingredients = []string{}
	}
	if out.ingredients, err = json.Marshal(ingredients); err != nil {
		return out, fmt.Errorf("failed to encode ingredients: %w", err)
	}
	detailed := r.DetailedIngredients
	if detailed == nil {
		detailed = []storage.DetailedIngredient{}
	}
	if out.detailed, err = json.Marshal(detailed); err != nil {
		return out, fmt.Errorf("failed to encode detailed ingredients: %w", err)
	}
	if out.nutrition, err = json.Marshal(r.Nutrition); err != nil {
		return out, fmt.Errorf("failed to encode nutrition: %w", err)
	}
	return out, nil
}

func scanRecipe(row pgx.Row) (storage.Recipe, error) {
	var r storage.Recipe
	var mealDBID *string
	var enc recipeJSON
	err := row.Scan(
		&r.ID,
		&mealDBID,
		&r.Title,
		&enc.ingredients,
		&enc.detailed,
		&r.Tags,
		&r.Diet,
		&r.Instructions,
		&r.Category,
		&r.Area,
		&r.YoutubeURL,
		&r.Source,
		&enc.nutrition,
		&r.PrepTime,
		&r.CookTime,
		&r.Servings,
		&r.Image,
		&r.DataSource,
		&r.CreatedBy,
		&r.IsPublic,
		&r.LastUpdated,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return storage.Recipe{}, mapError(err)
	}
	r.MealDBID = deref(mealDBID)
	if err := json.Unmarshal(enc.ingredients, &r.Ingredients); err != nil {
		return storage.Recipe{}, fmt.Errorf("failed to decode ingredients: %w", err)
	}
	if err := json.Unmarshal(enc.detailed, &r.DetailedIngredients); err != nil {
		return storage.Recipe{}, fmt.Errorf("failed to decode detailed ingredients: %w", err)
	}
	if len(r.DetailedIngredients) == 0 {
		r.DetailedIngredients = nil
	}
	if err := json.Unmarshal(enc.nutrition, &r.Nutrition); err != nil {
		return storage.Recipe{}, fmt.Errorf("failed to decode nutrition: %w", err)
	}
	return r, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func (s *recipesStorage) Get(ctx context.Context, id string) (storage.Recipe, error) {
	if !validID(id) {
		return storage.Recipe{}, storage.ErrNotFound
	}
	return scanRecipe(s.pool.QueryRow(ctx, `SELECT `+recipeColumns+` FROM recipes WHERE id = $1`, id))
}

func (s *recipesStorage) GetByMealDBID(ctx context.Context, mealDBID string) (storage.Recipe, error) {
	return scanRecipe(s.pool.QueryRow(ctx, `SELECT `+recipeColumns+` FROM recipes WHERE mealdb_id = $1`, mealDBID))
}

func (s *recipesStorage) Create(ctx context.Context, recipe *storage.Recipe) error {
	if recipe.ID == "" {
		recipe.ID = uuid.NewString()
	}
	enc, err := encodeRecipe(recipe)
	if err != nil {
		return err
	}
	if recipe.LastUpdated.IsZero() {
		recipe.LastUpdated = time.Now().UTC()
	}

	query := `
		INSERT INTO recipes (id, mealdb_id, title, ingredients, detailed_ingredients, tags, diet, instructions,
			category, area, youtube_url, source, nutrition, prep_time, cook_time, servings, image, data_source,
			created_by, is_public, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query,
		recipe.ID,
		nullString(recipe.MealDBID),
		recipe.Title,
		enc.ingredients,
		enc.detailed,
		nonNil(recipe.Tags),
		nonNil(recipe.Diet),
		recipe.Instructions,
		recipe.Category,
		recipe.Area,
		recipe.YoutubeURL,
		recipe.Source,
		enc.nutrition,
		recipe.PrepTime,
		recipe.CookTime,
		recipe.Servings,
		recipe.Image,
		recipe.DataSource,
		recipe.CreatedBy,
		recipe.IsPublic,
		recipe.LastUpdated,
	).Scan(&recipe.CreatedAt, &recipe.UpdatedAt)
	return mapError(err)
}

func (s *recipesStorage) Update(ctx context.Context, recipe *storage.Recipe) error {
	if !validID(recipe.ID) {
		return storage.ErrNotFound
	}
	enc, err := encodeRecipe(recipe)
	if err != nil {
		return err
	}

	query := `
		UPDATE recipes
		SET mealdb_id = $2, title = $3, ingredients = $4, detailed_ingredients = $5, tags = $6, diet = $7,
		    instructions = $8, category = $9, area = $10, youtube_url = $11, source = $12, nutrition = $13,
		    prep_time = $14, cook_time = $15, servings = $16, image = $17, data_source = $18,
		    created_by = $19, is_public = $20, last_updated = $21, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query,
		recipe.ID,
		nullString(recipe.MealDBID),
		recipe.Title,
		enc.ingredients,
		enc.detailed,
		nonNil(recipe.Tags),
		nonNil(recipe.Diet),
		recipe.Instructions,
		recipe.Category,
		recipe.Area,
		recipe.YoutubeURL,
		recipe.Source,
		enc.nutrition,
		recipe.PrepTime,
		recipe.CookTime,
		recipe.Servings,
		recipe.Image,
		recipe.DataSource,
		recipe.CreatedBy,
		recipe.IsPublic,
		recipe.LastUpdated,
	).Scan(&recipe.CreatedAt, &recipe.UpdatedAt)
	return mapError(err)
}

func (s *recipesStorage) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return storage.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM recipes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// recipeWhere строит WHERE для фильтра; аргументы нумеруются с $1
func recipeWhere(filter storage.RecipeFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	add("(is_public OR created_by = $%d)", filter.Visible)
	if filter.Search != "" {
		add("title ILIKE '%%' || $%d || '%%'", escapeLike(filter.Search))
	}
	if filter.Category != "" {
		add("LOWER(category) = LOWER($%d)", filter.Category)
	}
	if filter.Area != "" {
		add("LOWER(area) = LOWER($%d)", filter.Area)
	}
	if filter.Diet != "" {
		add("$%d = ANY(diet)", filter.Diet)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *recipesStorage) List(ctx context.Context, filter storage.RecipeFilter) ([]storage.Recipe, int, error) {
	where, args := recipeWhere(filter)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM recipes`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count recipes: %w", err)
	}

	query := `SELECT ` + recipeColumns + ` FROM recipes` + where + ` ORDER BY created_at DESC, id`
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
		return nil, 0, fmt.Errorf("failed to list recipes: %w", err)
	}
	defer rows.Close()

	recipes := []storage.Recipe{}
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, 0, err
		}
		recipes = append(recipes, r)
	}
	return recipes, total, rows.Err()
}

func (s *recipesStorage) Tags(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT unnest(tags) AS tag FROM recipes ORDER BY tag`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
