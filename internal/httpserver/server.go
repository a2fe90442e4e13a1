package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/fdg312/meal-planner/internal/auth"
	"github.com/fdg312/meal-planner/internal/blob"
	"github.com/fdg312/meal-planner/internal/config"
	"github.com/fdg312/meal-planner/internal/grocery"
	"github.com/fdg312/meal-planner/internal/logging"
	"github.com/fdg312/meal-planner/internal/mealplans"
	"github.com/fdg312/meal-planner/internal/recipes"
	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/storage/memory"
	"github.com/fdg312/meal-planner/internal/storage/postgres"
	"github.com/fdg312/meal-planner/internal/telemetry"
	"github.com/fdg312/meal-planner/internal/themealdb"
	"github.com/fdg312/meal-planner/internal/users"
)

// Server представляет HTTP сервер
type Server struct {
	config  *config.Config
	log     logrus.FieldLogger
	mux     *http.ServeMux
	handler http.Handler
	http    *http.Server

	storage  storage.Storage
	blobs    blob.Store
	blobMode string
	metrics  *telemetry.Metrics
	source   recipes.Source

	authMiddleware *auth.Middleware
}

type Option func(*Server)

// WithStorage skips the DATABASE_URL based storage selection.
func WithStorage(st storage.Storage) Option {
	return func(s *Server) { s.storage = st }
}

// WithBlobStore skips the BLOB_MODE based store selection.
func WithBlobStore(store blob.Store, mode string) Option {
	return func(s *Server) {
		s.blobs = store
		s.blobMode = mode
	}
}

// WithRecipeSource replaces the TheMealDB client.
func WithRecipeSource(src recipes.Source) Option {
	return func(s *Server) { s.source = src }
}

// New собирает storage, сервисы и маршруты
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, opts ...Option) (*Server, error) {
	s := &Server{
		config: cfg,
		log:    log,
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.MetricsEnabled {
		s.metrics = telemetry.New()
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	if s.storage == nil {
		if err := s.initStorage(ctx, loc); err != nil {
			return nil, err
		}
	}
	if s.blobs == nil {
		store, mode, err := blob.NewBlobStore(ctx, cfg.Blob, log)
		if err != nil {
			s.storage.Close()
			return nil, err
		}
		s.blobs, s.blobMode = store, mode
	}
	if s.source == nil {
		s.source = themealdb.New(cfg.MealDBBaseURL, cfg.MealDBTimeout(),
			themealdb.WithConcurrency(cfg.MealDBRandomConcurrency),
			themealdb.WithRecorder(s.metrics),
		)
	}

	s.routes(loc)
	s.handler = s.middleware(s.mux)
	return s, nil
}

// initStorage выбирает Memory или Postgres по DATABASE_URL
func (s *Server) initStorage(ctx context.Context, loc *time.Location) error {
	if s.config.DatabaseURL == "" {
		s.log.Info("storage: using in-memory storage")
		s.storage = memory.New()
		return nil
	}

	s.log.Info("storage: connecting to PostgreSQL")
	pg, err := postgres.New(ctx, s.config.DatabaseURL, postgres.WithLocation(loc))
	if err != nil {
		if s.config.IsProduction() {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		s.log.WithError(err).Warn("storage: PostgreSQL unavailable, falling back to in-memory storage")
		s.storage = memory.New()
		return nil
	}
	s.log.Info("storage: PostgreSQL connected")
	s.storage = pg
	return nil
}

// routes регистрирует маршруты
func (s *Server) routes(loc *time.Location) {
	cfg := s.config

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// Recipes
	recipeService := recipes.NewService(s.storage.GetRecipesStorage(), s.source, s.log, cfg.RecipeStaleAfter())
	recipeHandler := recipes.NewHandler(recipeService, s.log)

	s.mux.HandleFunc("GET /v1/recipes", recipeHandler.HandleList)
	s.mux.HandleFunc("GET /v1/recipes/search", recipeHandler.HandleSearch)
	s.mux.HandleFunc("GET /v1/recipes/random", recipeHandler.HandleRandom)
	s.mux.HandleFunc("GET /v1/recipes/categories", recipeHandler.HandleCategories)
	s.mux.HandleFunc("GET /v1/recipes/areas", recipeHandler.HandleAreas)
	s.mux.HandleFunc("GET /v1/recipes/ingredients", recipeHandler.HandleIngredients)
	s.mux.HandleFunc("GET /v1/recipes/tags", recipeHandler.HandleTags)
	s.mux.HandleFunc("GET /v1/recipes/{id}", recipeHandler.HandleGet)
	s.mux.HandleFunc("POST /v1/recipes", recipeHandler.HandleCreate)
	s.mux.HandleFunc("POST /v1/recipes/import/{mealdbId}", recipeHandler.HandleImport)
	s.mux.HandleFunc("PUT /v1/recipes/{id}", recipeHandler.HandleUpdate)
	s.mux.HandleFunc("DELETE /v1/recipes/{id}", recipeHandler.HandleDelete)

	// Meal plans
	planService := mealplans.NewService(s.storage.GetMealPlansStorage(), recipeService, s.log,
		mealplans.WithLocation(loc),
		mealplans.WithSaveRetries(cfg.MealPlanSaveRetries),
		mealplans.WithRecorder(s.metrics),
	)
	planHandler := mealplans.NewHandler(planService, s.log)

	s.mux.HandleFunc("GET /v1/meal-plans", planHandler.HandleList)
	s.mux.HandleFunc("GET /v1/meal-plans/week", planHandler.HandleGetWeek)
	s.mux.HandleFunc("POST /v1/meal-plans/meals", planHandler.HandleAddMeal)
	s.mux.HandleFunc("DELETE /v1/meal-plans/meals", planHandler.HandleRemoveMeal)
	s.mux.HandleFunc("PATCH /v1/meal-plans/meals/completed", planHandler.HandleSetCompleted)
	s.mux.HandleFunc("GET /v1/meal-plans/grocery-list", planHandler.HandleGroceryList)
	s.mux.HandleFunc("GET /v1/meal-plans/{id}", planHandler.HandleGet)
	s.mux.HandleFunc("PATCH /v1/meal-plans/{id}", planHandler.HandleUpdate)
	s.mux.HandleFunc("DELETE /v1/meal-plans/{id}", planHandler.HandleDelete)

	// Grocery lists and exports
	groceryService := grocery.NewService(s.storage.GetGroceryListsStorage(), planService, s.log)
	exporter := grocery.NewExporter(s.storage.GetExportsStorage(), s.blobs, planService, s.metrics, s.log, grocery.ExporterConfig{
		LocalMode:  s.blobMode == config.BlobModeLocal,
		MaxItems:   cfg.ExportsMaxItems,
		PresignTTL: time.Duration(cfg.Blob.S3.PresignTTLSeconds) * time.Second,
		Location:   loc,
	})
	groceryHandler := grocery.NewHandler(groceryService, exporter, s.log)

	s.mux.HandleFunc("GET /v1/grocery-lists", groceryHandler.HandleList)
	s.mux.HandleFunc("POST /v1/grocery-lists", groceryHandler.HandleCreate)
	s.mux.HandleFunc("POST /v1/grocery-lists/generate", groceryHandler.HandleGenerate)
	s.mux.HandleFunc("POST /v1/grocery-lists/preview", groceryHandler.HandlePreview)
	s.mux.HandleFunc("GET /v1/grocery-lists/{id}", groceryHandler.HandleGet)
	s.mux.HandleFunc("PUT /v1/grocery-lists/{id}", groceryHandler.HandleUpdate)
	s.mux.HandleFunc("DELETE /v1/grocery-lists/{id}", groceryHandler.HandleDelete)
	s.mux.HandleFunc("POST /v1/grocery-lists/{id}/items", groceryHandler.HandleAddItem)
	s.mux.HandleFunc("PUT /v1/grocery-lists/{id}/items/{itemId}", groceryHandler.HandleUpdateItem)
	s.mux.HandleFunc("DELETE /v1/grocery-lists/{id}/items/{itemId}", groceryHandler.HandleRemoveItem)
	s.mux.HandleFunc("PUT /v1/grocery-lists/{id}/check-all", groceryHandler.HandleCheckAll)

	s.mux.HandleFunc("POST /v1/grocery-exports", groceryHandler.HandleCreateExport)
	s.mux.HandleFunc("GET /v1/grocery-exports", groceryHandler.HandleListExports)
	s.mux.HandleFunc("GET /v1/grocery-exports/{id}", groceryHandler.HandleGetExport)
	s.mux.HandleFunc("GET /v1/grocery-exports/{id}/download", groceryHandler.HandleDownloadExport)
	s.mux.HandleFunc("DELETE /v1/grocery-exports/{id}", groceryHandler.HandleDeleteExport)

	// Users
	userService := users.NewService(s.storage.GetUsersStorage(), cfg.BcryptCost, s.log, planService, groceryService, exporter)
	userHandler := users.NewHandler(userService, s.log)

	s.mux.HandleFunc("GET /v1/users/me", userHandler.HandleGetMe)
	s.mux.HandleFunc("PUT /v1/users/me", userHandler.HandleUpdateMe)
	s.mux.HandleFunc("DELETE /v1/users/me", userHandler.HandleDeleteMe)
	s.mux.HandleFunc("PUT /v1/users/me/password", userHandler.HandleChangePassword)
	s.mux.HandleFunc("GET /v1/users/{id}", userHandler.HandleGetPublic)

	// Auth
	authService := auth.NewService(cfg, s.storage.GetUsersStorage(), s.log)
	authHandler := auth.NewHandlers(authService, s.log)
	s.authMiddleware = auth.NewMiddleware(cfg, authService, s.log)

	s.mux.HandleFunc("POST /v1/auth/register", authHandler.HandleRegister)
	s.mux.HandleFunc("POST /v1/auth/login", authHandler.HandleLogin)
	s.mux.HandleFunc("POST /v1/auth/dev", authHandler.HandleDevAuth)
}

// middleware builds the chain, outermost first:
// access log → CORS → rate limit → auth → metrics → router.
// Metrics sit next to the mux so r.Pattern is visible to them.
func (s *Server) middleware(mux http.Handler) http.Handler {
	handler := s.metrics.Middleware(mux)
	handler = s.authMiddleware.RequireAuth(handler)
	handler = RateLimitMiddleware(s.config, handler)
	handler = CORSMiddleware(s.config, handler)
	return logging.AccessLog(s.log, handler)
}

type healthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Blob    string `json:"blob"`
}

// handleHealthz возвращает статус сервера; 503 если база не отвечает
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Storage: s.storage.Mode(), Blob: s.blobMode}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.storage.Ping(ctx); err != nil {
		s.log.WithError(err).Warn("healthz: storage ping failed")
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Handler exposes the full middleware chain, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start запускает HTTP сервер и блокируется до Shutdown
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithFields(logrus.Fields{
		"addr":      addr,
		"storage":   s.storage.Mode(),
		"blob":      s.blobMode,
		"auth_mode": s.config.AuthMode,
	}).Info("server listening")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown останавливает приём запросов и закрывает storage
func (s *Server) Shutdown(ctx context.Context) error {
	var result *multierror.Error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := s.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Close закрывает storage и освобождает ресурсы
func (s *Server) Close() error {
	if s.storage == nil {
		return nil
	}
	if err := s.storage.Close(); err != nil {
		return fmt.Errorf("storage close: %w", err)
	}
	return nil
}
