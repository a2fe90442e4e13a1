package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/fdg312/meal-planner/internal/config"
	"github.com/fdg312/meal-planner/internal/dbmigrate"
	"github.com/fdg312/meal-planner/internal/httpserver"
	"github.com/fdg312/meal-planner/internal/logging"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.Env)

	logStartupBanner(log, cfg)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrationsOnStartup {
		sel, err := dbmigrate.SelectDatabaseURL(cfg, false)
		if err != nil {
			log.WithError(err).Fatal("startup migrations")
		}
		if err := dbmigrate.Up(ctx, sel, log); err != nil {
			log.WithError(err).Fatal("startup migrations failed")
		}
		log.Info("startup migrations completed")
	}

	server, err := httpserver.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build server")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("server stopped")
		}
		server.Close()
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("shutdown")
		}
	}
}

// logStartupBanner logs the resolved configuration once. Secrets are only
// reported as set / not set.
func logStartupBanner(log logrus.FieldLogger, cfg *config.Config) {
	log.WithFields(logrus.Fields{
		"env":       cfg.Env,
		"port":      cfg.Port,
		"log_level": cfg.LogLevel,
		"timezone":  cfg.Timezone,
	}).Info("meal planner api")

	log.WithFields(logrus.Fields{
		"runtime_url":           describeDBURL(cfg.DatabaseURL, cfg.DatabaseURLPooled),
		"pooled":                setOrNot(cfg.DatabaseURLPooled),
		"direct":                setOrNot(cfg.DatabaseURLDirect),
		"migrations_on_startup": cfg.RunMigrationsOnStartup,
	}).Info("database")

	log.WithFields(logrus.Fields{
		"auth_mode":     cfg.AuthMode,
		"auth_required": cfg.AuthRequired,
		"jwt_secret":    secretStatus(cfg.JWTSecret, config.DefaultJWTSecret),
		"jwt_ttl":       cfg.JWTTTL().String(),
	}).Info("auth")

	log.WithFields(logrus.Fields{
		"base_url":    cfg.MealDBBaseURL,
		"timeout":     cfg.MealDBTimeout().String(),
		"concurrency": cfg.MealDBRandomConcurrency,
		"stale_after": cfg.RecipeStaleAfter().String(),
	}).Info("themealdb")

	blobFields := logrus.Fields{"blob_mode": cfg.Blob.Mode, "exports_max_items": cfg.ExportsMaxItems}
	if cfg.Blob.Mode != config.BlobModeLocal {
		for k, v := range cfg.Blob.S3.DiagnosticsFields() {
			blobFields[k] = v
		}
	}
	log.WithFields(blobFields).Info("blob")
}

func setOrNot(v string) string {
	if strings.TrimSpace(v) == "" {
		return "not set"
	}
	return "set"
}

func secretStatus(v, insecureDefault string) string {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return "not set"
	case v == insecureDefault:
		return "set (default, insecure)"
	default:
		return "set (custom)"
	}
}

func describeDBURL(runtime, pooled string) string {
	if runtime == "" {
		return "not set (in-memory storage)"
	}
	if pooled != "" && runtime == pooled {
		return "set (via DATABASE_URL_POOLED)"
	}
	return "set"
}
