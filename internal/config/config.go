package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

const (
	BlobModeLocal = "local"
	BlobModeS3    = "s3"
	BlobModeAuto  = "auto"
)

const (
	AuthModeNone     = "none"
	AuthModeDev      = "dev"
	AuthModePassword = "password"
)

// DefaultJWTSecret is only acceptable outside production.
const DefaultJWTSecret = "dev-secret-change-me"

type S3Config struct {
	Endpoint          string
	Region            string
	Bucket            string
	AccessKeyID       string
	SecretAccessKey   string
	PresignTTLSeconds int
}

func (c S3Config) MissingRequired() []string {
	missing := make([]string, 0, 5)
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "S3_ENDPOINT")
	}
	if strings.TrimSpace(c.Region) == "" {
		missing = append(missing, "S3_REGION")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if strings.TrimSpace(c.AccessKeyID) == "" {
		missing = append(missing, "S3_ACCESS_KEY_ID")
	}
	if strings.TrimSpace(c.SecretAccessKey) == "" {
		missing = append(missing, "S3_SECRET_ACCESS_KEY")
	}
	return missing
}

func (c S3Config) IsConfigured() bool {
	return len(c.MissingRequired()) == 0
}

// Diagnostics classifies the S3 settings for startup logs.
func (c S3Config) Diagnostics() (level logrus.Level, code string, msg string) {
	allEmpty := strings.TrimSpace(c.Endpoint) == "" &&
		strings.TrimSpace(c.Region) == "" &&
		strings.TrimSpace(c.Bucket) == "" &&
		strings.TrimSpace(c.AccessKeyID) == "" &&
		strings.TrimSpace(c.SecretAccessKey) == ""

	if allEmpty {
		return logrus.InfoLevel, "s3_not_configured", "not configured (all empty)"
	}

	missing := c.MissingRequired()
	if len(missing) > 0 {
		return logrus.WarnLevel, "s3_partial_config", fmt.Sprintf("partial config, missing=%v", missing)
	}

	return logrus.InfoLevel, "s3_ready", "ready"
}

// DiagnosticsFields describes the settings without secrets.
func (c S3Config) DiagnosticsFields() logrus.Fields {
	return logrus.Fields{
		"endpoint":          nonEmptyOrDash(c.Endpoint),
		"region":            nonEmptyOrDash(c.Region),
		"bucket":            nonEmptyOrDash(c.Bucket),
		"presign_ttl_s":     c.PresignTTLSeconds,
		"access_key_id":     setOrNot(c.AccessKeyID),
		"secret_access_key": setOrNot(c.SecretAccessKey),
	}
}

func nonEmptyOrDash(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}

func setOrNot(v string) string {
	if strings.TrimSpace(v) == "" {
		return "not set"
	}
	return "set"
}

type BlobConfig struct {
	Mode string // local|s3|auto
	S3   S3Config
}

// Config содержит конфигурацию приложения
type Config struct {
	Env      string // local | staging | production
	Port     int
	LogLevel string

	// Database
	DatabaseURL       string // runtime connection (resolved: pooled > url > direct)
	DatabaseURLRaw    string // DATABASE_URL as provided
	DatabaseURLPooled string // DATABASE_URL_POOLED as provided
	DatabaseURLDirect string // for migrations / DDL (may be empty)

	// Migrations
	RunMigrationsOnStartup bool

	// HTTP
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	RateLimitRPS         int
	RateLimitBurst       int
	MetricsEnabled       bool

	// Auth
	AuthMode      string // none | dev | password
	AuthRequired  bool
	JWTSecret     string
	JWTIssuer     string
	JWTTTLMinutes int
	BcryptCost    int

	// Calendar
	Timezone string

	// TheMealDB
	MealDBBaseURL           string
	MealDBTimeoutSeconds    int
	MealDBRandomConcurrency int
	RecipeStaleHours        int

	MealPlanSaveRetries int

	// Exports
	Blob            BlobConfig
	ExportsMaxItems int
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	// APP_ENV (fallback to ENV, default: local)
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = os.Getenv("ENV")
	}
	if env == "" {
		env = "local"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	// ---------- Database ----------
	// Priority: DATABASE_URL_POOLED > DATABASE_URL > DATABASE_URL_DIRECT
	dbPooled := strings.TrimSpace(os.Getenv("DATABASE_URL_POOLED"))
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	dbDirect := strings.TrimSpace(os.Getenv("DATABASE_URL_DIRECT"))

	runtimeDB := dbPooled
	if runtimeDB == "" {
		runtimeDB = dbURL
	}
	if runtimeDB == "" {
		runtimeDB = dbDirect
	}

	// ---------- Auth ----------
	authMode := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))
	switch authMode {
	case AuthModeNone, AuthModeDev, AuthModePassword:
	case "":
		authMode = AuthModePassword
	default:
		logrus.Warnf("config: unknown AUTH_MODE=%q, fallback to %s", authMode, AuthModePassword)
		authMode = AuthModePassword
	}
	authRequired := true
	if v := os.Getenv("AUTH_REQUIRED"); v != "" {
		authRequired = parseBoolEnv("AUTH_REQUIRED")
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = DefaultJWTSecret
	}
	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "meal-planner"
	}

	timezone := strings.TrimSpace(os.Getenv("APP_TIMEZONE"))
	if timezone == "" {
		timezone = "UTC"
	}

	mealDBBaseURL := strings.TrimSpace(os.Getenv("MEALDB_BASE_URL"))
	if mealDBBaseURL == "" {
		mealDBBaseURL = "https://www.themealdb.com/api/json/v1/1"
	}

	// ---------- Blob / S3 ----------
	presignTTL := envInt("PRESIGN_TTL_SECONDS", envInt("S3_PRESIGN_TTL_SECONDS", 900))
	if presignTTL <= 0 {
		presignTTL = 900
	}
	blobCfg := BlobConfig{
		Mode: parseBlobMode("BLOB_MODE", BlobModeLocal),
		S3: S3Config{
			Endpoint:          strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
			Region:            strings.TrimSpace(os.Getenv("S3_REGION")),
			Bucket:            strings.TrimSpace(os.Getenv("S3_BUCKET")),
			AccessKeyID:       strings.TrimSpace(os.Getenv("S3_ACCESS_KEY_ID")),
			SecretAccessKey:   strings.TrimSpace(os.Getenv("S3_SECRET_ACCESS_KEY")),
			PresignTTLSeconds: presignTTL,
		},
	}

	metricsEnabled := true
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		metricsEnabled = parseBoolEnv("METRICS_ENABLED")
	}

	return &Config{
		Env:      env,
		Port:     envInt("PORT", 8080),
		LogLevel: logLevel,

		DatabaseURL:       runtimeDB,
		DatabaseURLRaw:    dbURL,
		DatabaseURLPooled: dbPooled,
		DatabaseURLDirect: dbDirect,

		RunMigrationsOnStartup: parseBoolEnv("RUN_MIGRATIONS_ON_STARTUP"),

		CORSAllowedOrigins:   parseCORSOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"), env),
		CORSAllowCredentials: os.Getenv("CORS_ALLOW_CREDENTIALS") == "1",
		RateLimitRPS:         envInt("RATE_LIMIT_RPS", 0),
		RateLimitBurst:       envInt("RATE_LIMIT_BURST", 0),
		MetricsEnabled:       metricsEnabled,

		AuthMode:      authMode,
		AuthRequired:  authRequired,
		JWTSecret:     jwtSecret,
		JWTIssuer:     jwtIssuer,
		JWTTTLMinutes: envInt("JWT_TTL_MINUTES", 7*24*60),
		BcryptCost:    envInt("BCRYPT_COST", 10),

		Timezone: timezone,

		MealDBBaseURL:           mealDBBaseURL,
		MealDBTimeoutSeconds:    envInt("MEALDB_TIMEOUT_SECONDS", 10),
		MealDBRandomConcurrency: envInt("MEALDB_RANDOM_CONCURRENCY", 4),
		RecipeStaleHours:        envInt("RECIPE_STALE_HOURS", 24),

		MealPlanSaveRetries: envInt("MEAL_PLAN_SAVE_RETRIES", 3),

		Blob:            blobCfg,
		ExportsMaxItems: envInt("EXPORTS_MAX_ITEMS", 500),
	}
}

// IsProduction reports whether Env names a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

// Location resolves APP_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) MealDBTimeout() time.Duration {
	return time.Duration(c.MealDBTimeoutSeconds) * time.Second
}

func (c *Config) RecipeStaleAfter() time.Duration {
	return time.Duration(c.RecipeStaleHours) * time.Hour
}

func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLMinutes) * time.Minute
}

// Validate reports every setting that would make the server misbehave.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Port <= 0 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("PORT must be in 1..65535, got %d", c.Port))
	}
	if _, err := c.Location(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.MealDBTimeoutSeconds <= 0 {
		result = multierror.Append(result, errors.New("MEALDB_TIMEOUT_SECONDS must be positive"))
	}
	if c.MealPlanSaveRetries <= 0 {
		result = multierror.Append(result, errors.New("MEAL_PLAN_SAVE_RETRIES must be positive"))
	}
	if c.JWTTTLMinutes <= 0 {
		result = multierror.Append(result, errors.New("JWT_TTL_MINUTES must be positive"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		result = multierror.Append(result, fmt.Errorf("BCRYPT_COST must be in 4..31, got %d", c.BcryptCost))
	}

	if c.IsProduction() {
		if c.JWTSecret == DefaultJWTSecret {
			result = multierror.Append(result, errors.New("JWT_SECRET must be set in production"))
		}
		if c.AuthMode != AuthModePassword {
			result = multierror.Append(result, fmt.Errorf("AUTH_MODE=%s is not allowed in production", c.AuthMode))
		}
		if c.DatabaseURL == "" {
			result = multierror.Append(result, errors.New("DATABASE_URL must be set in production"))
		}
		if c.Blob.Mode == BlobModeS3 && !c.Blob.S3.IsConfigured() {
			result = multierror.Append(result, fmt.Errorf("BLOB_MODE=s3 but missing: %s", strings.Join(c.Blob.S3.MissingRequired(), ", ")))
		}
	}

	return result.ErrorOrNil()
}

// parseCORSOrigins parses CORS_ALLOWED_ORIGINS env var.
// In local mode, defaults to localhost origins if empty.
func parseCORSOrigins(raw, env string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if env == "local" {
			return []string{"http://localhost:3000", "http://localhost:5173"}
		}
		return nil // prod: deny by default
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

func parseBlobMode(key string, defaultVal string) string {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if mode == "" {
		return defaultVal
	}
	switch mode {
	case BlobModeLocal, BlobModeS3, BlobModeAuto:
		return mode
	default:
		logrus.Warnf("config: unknown %s=%q, fallback to %s", key, mode, defaultVal)
		return defaultVal
	}
}

// envInt reads an int env var with a default value.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}
