package blob

import (
	"context"
	"fmt"
	"strings"

	appcfg "github.com/fdg312/meal-planner/internal/config"
	"github.com/sirupsen/logrus"
)

// NewBlobStore builds a blob store using mode local|s3|auto and reports the
// effective mode. Local mode and the auto fallback return a MemoryStore.
func NewBlobStore(ctx context.Context, cfg appcfg.BlobConfig, log logrus.FieldLogger) (Store, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = appcfg.BlobModeLocal
	}
	log = log.WithField("component", "blob")

	switch mode {
	case appcfg.BlobModeLocal:
		log.Info("blob: mode=local (forced)")
		return NewMemoryStore(), appcfg.BlobModeLocal, nil

	case appcfg.BlobModeAuto:
		if !cfg.S3.IsConfigured() {
			level, code, msg := cfg.S3.Diagnostics()
			log.WithFields(cfg.S3.DiagnosticsFields()).WithField("code", code).Log(level, "blob.s3: "+msg)
			log.Info("blob: mode=local (auto, S3 not configured)")
			return NewMemoryStore(), appcfg.BlobModeLocal, nil
		}

		store, err := NewS3Store(ctx, cfg.S3.Endpoint, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey)
		if err != nil {
			log.WithError(err).Warn("blob.s3: init failed, fallback=local")
			return NewMemoryStore(), appcfg.BlobModeLocal, nil
		}

		log.WithFields(cfg.S3.DiagnosticsFields()).Info("blob: mode=s3 (auto, configured)")
		return store, appcfg.BlobModeS3, nil

	case appcfg.BlobModeS3:
		if !cfg.S3.IsConfigured() {
			missing := cfg.S3.MissingRequired()
			log.WithFields(cfg.S3.DiagnosticsFields()).WithField("missing", missing).Error("blob.s3: code=s3_config_incomplete")
			return nil, "", fmt.Errorf("BLOB_MODE=s3 requested but missing required config: %s", strings.Join(missing, ", "))
		}

		store, err := NewS3Store(ctx, cfg.S3.Endpoint, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey)
		if err != nil {
			return nil, "", fmt.Errorf("BLOB_MODE=s3 init failed: %w", err)
		}

		log.WithFields(cfg.S3.DiagnosticsFields()).Info("blob: mode=s3 (forced)")
		return store, appcfg.BlobModeS3, nil

	default:
		return nil, "", fmt.Errorf("unsupported blob mode: %s", mode)
	}
}
