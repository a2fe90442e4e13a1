package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist or belongs to another user.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned by Create on a uniqueness violation.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrConflict is returned by Save when the stored version moved on.
	ErrConflict = errors.New("version conflict")
)

// Storage aggregates all repositories of one backend.
type Storage interface {
	GetUsersStorage() UsersStorage
	GetRecipesStorage() RecipesStorage
	GetMealPlansStorage() MealPlansStorage
	GetGroceryListsStorage() GroceryListsStorage
	GetExportsStorage() ExportsStorage

	// Mode is "memory" or "postgres".
	Mode() string
	Ping(ctx context.Context) error
	Close() error
}

// ---------- Users ----------

type UserProfile struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

type UserPreferences struct {
	DietaryRestrictions []string `json:"dietary_restrictions,omitempty"`
	Allergies           []string `json:"allergies,omitempty"`
	CuisinePreferences  []string `json:"cuisine_preferences,omitempty"`
	DefaultServings     int      `json:"default_servings,omitempty"`
}

type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Profile      UserProfile
	Preferences  UserPreferences
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UsersStorage interface {
	// Create fails with ErrDuplicateKey when email or username is taken.
	Create(ctx context.Context, user *User) error
	Get(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
}

// ---------- Recipes ----------

type Nutrition struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
	Carbs    float64 `json:"carbs"`
}

func (n Nutrition) Add(o Nutrition) Nutrition {
	return Nutrition{
		Calories: n.Calories + o.Calories,
		Protein:  n.Protein + o.Protein,
		Fat:      n.Fat + o.Fat,
		Carbs:    n.Carbs + o.Carbs,
	}
}

func (n Nutrition) Scale(f float64) Nutrition {
	return Nutrition{
		Calories: n.Calories * f,
		Protein:  n.Protein * f,
		Fat:      n.Fat * f,
		Carbs:    n.Carbs * f,
	}
}

type DetailedIngredient struct {
	Name   string `json:"name"`
	Amount string `json:"amount,omitempty"`
	Unit   string `json:"unit,omitempty"`
}

const (
	SourceTheMealDB = "themealdb"
	SourceCustom    = "custom"
	SourceImported  = "imported"
)

type Recipe struct {
	ID                  string
	MealDBID            string // empty for user-authored recipes
	Title               string
	Ingredients         []string
	DetailedIngredients []DetailedIngredient
	Tags                []string
	Diet                []string
	Instructions        string
	Category            string
	Area                string
	YoutubeURL          string
	Source              string
	Nutrition           Nutrition
	PrepTime            *int
	CookTime            *int
	Servings            int
	Image               string
	DataSource          string
	CreatedBy           string
	IsPublic            bool
	LastUpdated         time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type RecipeFilter struct {
	Search   string // case-insensitive match on title
	Category string
	Area     string
	Diet     string
	// Visible limits results to public recipes plus the ones authored by this user.
	Visible string
	Limit   int
	Offset  int
}

type RecipesStorage interface {
	Get(ctx context.Context, id string) (Recipe, error)
	GetByMealDBID(ctx context.Context, mealDBID string) (Recipe, error)
	// Create fails with ErrDuplicateKey when MealDBID is already stored.
	Create(ctx context.Context, recipe *Recipe) error
	Update(ctx context.Context, recipe *Recipe) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter RecipeFilter) ([]Recipe, int, error)
	Tags(ctx context.Context) ([]string, error)
}

// ---------- Meal plans ----------

// RecipeSnapshot is the copy of a recipe taken when it is placed on the calendar.
type RecipeSnapshot struct {
	Title               string               `json:"title"`
	Image               string               `json:"image,omitempty"`
	Ingredients         []string             `json:"ingredients"`
	DetailedIngredients []DetailedIngredient `json:"detailed_ingredients,omitempty"`
	Nutrition           Nutrition            `json:"nutrition"`
	Category            string               `json:"category,omitempty"`
	Area                string               `json:"area,omitempty"`
}

type MealEntry struct {
	ID        string
	DateKey   string // YYYY-MM-DD
	Date      time.Time
	MealType  string
	RecipeID  string
	Snapshot  RecipeSnapshot
	Servings  int
	Notes     string
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type MealPlan struct {
	ID                    string
	UserID                string
	WeekID                string
	WeekStart             time.Time
	WeekEnd               time.Time
	Entries               []MealEntry
	Notes                 string
	IsActive              bool
	TotalCalories         float64
	TotalCost             float64
	ShoppingListGenerated bool
	LastShoppingListAt    *time.Time
	// Version is bumped by every successful Save.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type MealPlanFilter struct {
	IsActive *bool
	Limit    int
	Offset   int
}

// MealPlansStorage persists whole meal plan aggregates, entries included.
type MealPlansStorage interface {
	// Load finds the plan of a user for a week id.
	Load(ctx context.Context, userID, weekID string) (MealPlan, bool, error)
	Get(ctx context.Context, userID, id string) (MealPlan, error)
	// Create fails with ErrDuplicateKey when (user, week) already has a plan.
	Create(ctx context.Context, plan *MealPlan) error
	// Save writes the plan when plan.Version matches the stored version and
	// increments it. A mismatch yields ErrConflict.
	Save(ctx context.Context, plan *MealPlan) error
	List(ctx context.Context, userID string, filter MealPlanFilter) ([]MealPlan, int, error)
	// ListOverlapping returns plans whose week intersects [from, to], by day key.
	ListOverlapping(ctx context.Context, userID string, from, to time.Time) ([]MealPlan, error)
	Delete(ctx context.Context, userID, id string) error
	DeleteByUser(ctx context.Context, userID string) error
}

// ---------- Grocery lists ----------

type GroceryItem struct {
	ID            string
	Name          string
	Amount        string
	Unit          string
	Category      string
	IsChecked     bool
	EstimatedCost float64
}

type GroceryList struct {
	ID                 string
	UserID             string
	Name               string
	MealPlanID         *string
	Items              []GroceryItem
	TotalEstimatedCost float64
	IsActive           bool
	Notes              string
	ShoppingDate       *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type GroceryListFilter struct {
	IsActive *bool
	Limit    int
	Offset   int
}

type GroceryListsStorage interface {
	Create(ctx context.Context, list *GroceryList) error
	Get(ctx context.Context, userID, id string) (GroceryList, error)
	// Update replaces the list and all of its items.
	Update(ctx context.Context, list *GroceryList) error
	Delete(ctx context.Context, userID, id string) error
	List(ctx context.Context, userID string, filter GroceryListFilter) ([]GroceryList, int, error)
	DeleteByUser(ctx context.Context, userID string) error
}

// ---------- Grocery exports ----------

type GroceryExport struct {
	ID         string
	UserID     string
	Format     string // pdf | csv | txt
	RangeStart string // YYYY-MM-DD
	RangeEnd   string // YYYY-MM-DD
	ObjectKey  string
	ItemCount  int
	SizeBytes  int64
	CreatedAt  time.Time
}

type ExportsStorage interface {
	Create(ctx context.Context, export *GroceryExport) error
	Get(ctx context.Context, userID, id string) (GroceryExport, error)
	List(ctx context.Context, userID string, limit, offset int) ([]GroceryExport, error)
	Delete(ctx context.Context, userID, id string) error
}
