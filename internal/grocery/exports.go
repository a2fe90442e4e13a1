package grocery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/blob"
	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/weekdate"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MaxExportRangeDays bounds the date range of one export.
const MaxExportRangeDays = 92

// EntrySource collects planned meals over a date range. *mealplans.Service satisfies it.
type EntrySource interface {
	EntriesForRange(ctx context.Context, userID string, start, end time.Time) ([]storage.MealEntry, []string, error)
}

// ExportRecorder counts produced exports. *telemetry.Metrics satisfies it.
type ExportRecorder interface {
	Export(format string)
}

type ExporterConfig struct {
	// LocalMode streams stored bytes instead of redirecting to presigned URLs.
	LocalMode  bool
	MaxItems   int
	PresignTTL time.Duration
	Location   *time.Location
}

// Exporter renders flat grocery lists to files kept in the blob store.
type Exporter struct {
	store   storage.ExportsStorage
	blobs   blob.Store
	entries EntrySource
	log     logrus.FieldLogger
	metrics ExportRecorder
	cfg     ExporterConfig
	now     func() time.Time
}

func NewExporter(store storage.ExportsStorage, blobs blob.Store, entries EntrySource, metrics ExportRecorder, log logrus.FieldLogger, cfg ExporterConfig) *Exporter {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 500
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Exporter{
		store:   store,
		blobs:   blobs,
		entries: entries,
		log:     log,
		metrics: metrics,
		cfg:     cfg,
		now:     time.Now,
	}
}

type CreateExportRequest struct {
	Format string `json:"format"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

type ExportDTO struct {
	ID          string    `json:"id"`
	Format      string    `json:"format"`
	Start       string    `json:"start"`
	End         string    `json:"end"`
	ItemCount   int       `json:"item_count"`
	SizeBytes   int64     `json:"size_bytes"`
	DownloadURL string    `json:"download_url"`
	CreatedAt   time.Time `json:"created_at"`
}

type ExportsResponse struct {
	Exports []ExportDTO `json:"exports"`
}

// Download is either inline bytes (local mode) or a redirect target.
type Download struct {
	Data        []byte
	ContentType string
	Filename    string
	RedirectURL string
}

func (r *CreateExportRequest) validate(loc *time.Location) (time.Time, time.Time, error) {
	var v apperr.Validator
	r.Format = strings.ToLower(strings.TrimSpace(r.Format))
	v.Check(ValidFormat(r.Format), "format must be one of pdf, csv, txt")

	start, err := weekdate.ParseDateKey(r.Start, loc)
	v.Check(err == nil, "start must be YYYY-MM-DD")
	end := start.AddDate(0, 0, 6)
	if r.End != "" {
		e, err := weekdate.ParseDateKey(r.End, loc)
		v.Check(err == nil, "end must be YYYY-MM-DD")
		end = e
	}
	if err := v.Err(); err != nil {
		return time.Time{}, time.Time{}, err
	}

	days := len(weekdate.Days(start, end))
	v.Check(days > 0, "end date must not be before start date")
	v.Check(days <= MaxExportRangeDays, "date range exceeds maximum of %d days", MaxExportRangeDays)
	return start, end, v.Err()
}

// CreateExport renders the flat list for the range and stores it.
func (x *Exporter) CreateExport(ctx context.Context, userID string, req CreateExportRequest) (storage.GroceryExport, error) {
	if userID == "" {
		return storage.GroceryExport{}, apperr.Unauthorized("unauthorized", "sign in to export grocery lists")
	}
	start, end, err := req.validate(x.cfg.Location)
	if err != nil {
		return storage.GroceryExport{}, err
	}

	entries, _, err := x.entries.EntriesForRange(ctx, userID, start, end)
	if err != nil {
		return storage.GroceryExport{}, err
	}
	lines := FlatLines(entries, &start, &end)
	if len(lines) > x.cfg.MaxItems {
		return storage.GroceryExport{}, apperr.Validation("grocery list has %d items, exports are limited to %d", len(lines), x.cfg.MaxItems)
	}

	startKey, endKey := weekdate.DateKey(start), weekdate.DateKey(end)
	data, err := Render(req.Format, Document{
		Title:       "Grocery List",
		RangeStart:  startKey,
		RangeEnd:    endKey,
		Lines:       lines,
		GeneratedAt: x.now(),
	})
	if err != nil {
		return storage.GroceryExport{}, fmt.Errorf("failed to render export: %w", err)
	}

	objectKey := fmt.Sprintf("grocery-exports/%s/%s_%s_%s.%s", userID, startKey, endKey, uuid.NewString(), req.Format)
	size, err := x.blobs.PutObject(ctx, objectKey, data, ContentType(req.Format))
	if err != nil {
		return storage.GroceryExport{}, fmt.Errorf("failed to store export: %w", err)
	}

	export := storage.GroceryExport{
		UserID:     userID,
		Format:     req.Format,
		RangeStart: startKey,
		RangeEnd:   endKey,
		ObjectKey:  objectKey,
		ItemCount:  len(lines),
		SizeBytes:  size,
	}
	if err := x.store.Create(ctx, &export); err != nil {
		if derr := x.blobs.DeleteObject(ctx, objectKey); derr != nil {
			x.log.WithError(derr).WithField("object_key", objectKey).Warn("failed to remove orphaned export")
		}
		return storage.GroceryExport{}, fmt.Errorf("failed to save export metadata: %w", err)
	}

	if x.metrics != nil {
		x.metrics.Export(req.Format)
	}
	x.log.WithFields(logrus.Fields{
		"user_id":   userID,
		"export_id": export.ID,
		"format":    export.Format,
		"items":     export.ItemCount,
		"bytes":     export.SizeBytes,
	}).Info("grocery export created")
	return export, nil
}

func (x *Exporter) GetExport(ctx context.Context, userID, id string) (storage.GroceryExport, error) {
	e, err := x.store.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.GroceryExport{}, apperr.NotFound("export %s not found", id)
		}
		return storage.GroceryExport{}, fmt.Errorf("failed to get export: %w", err)
	}
	return e, nil
}

func (x *Exporter) ListExports(ctx context.Context, userID string, limit, offset int) ([]storage.GroceryExport, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	exports, err := x.store.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	return exports, nil
}

// DownloadExport returns the bytes in local mode, otherwise a presigned URL.
func (x *Exporter) DownloadExport(ctx context.Context, userID, id string) (Download, error) {
	e, err := x.GetExport(ctx, userID, id)
	if err != nil {
		return Download{}, err
	}

	if !x.cfg.LocalMode {
		url, err := x.blobs.PresignGet(ctx, e.ObjectKey, x.cfg.PresignTTL)
		if err != nil {
			return Download{}, fmt.Errorf("failed to generate presigned URL: %w", err)
		}
		return Download{RedirectURL: url}, nil
	}

	data, err := x.blobs.GetObject(ctx, e.ObjectKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return Download{}, apperr.NotFound("export %s has no stored file", id)
		}
		return Download{}, fmt.Errorf("failed to read export: %w", err)
	}
	return Download{
		Data:        data,
		ContentType: ContentType(e.Format),
		Filename:    fmt.Sprintf("grocery_%s_%s.%s", e.RangeStart, e.RangeEnd, e.Format),
	}, nil
}

func (x *Exporter) DeleteExport(ctx context.Context, userID, id string) error {
	e, err := x.GetExport(ctx, userID, id)
	if err != nil {
		return err
	}

	// metadata deletion matters more than the object
	if e.ObjectKey != "" {
		if err := x.blobs.DeleteObject(ctx, e.ObjectKey); err != nil {
			x.log.WithError(err).WithField("object_key", e.ObjectKey).Warn("failed to delete export object")
		}
	}
	if err := x.store.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("export %s not found", id)
		}
		return fmt.Errorf("failed to delete export metadata: %w", err)
	}
	return nil
}

// DeleteAllForUser removes every export of userID together with its stored file.
func (x *Exporter) DeleteAllForUser(ctx context.Context, userID string) error {
	for {
		exports, err := x.store.List(ctx, userID, 100, 0)
		if err != nil {
			return fmt.Errorf("failed to list exports: %w", err)
		}
		if len(exports) == 0 {
			return nil
		}
		for _, e := range exports {
			if err := x.DeleteExport(ctx, userID, e.ID); err != nil {
				return err
			}
		}
	}
}

// ToExportDTO renders e with a download link under baseURL.
func ToExportDTO(e storage.GroceryExport, baseURL string) ExportDTO {
	return ExportDTO{
		ID:          e.ID,
		Format:      e.Format,
		Start:       e.RangeStart,
		End:         e.RangeEnd,
		ItemCount:   e.ItemCount,
		SizeBytes:   e.SizeBytes,
		DownloadURL: fmt.Sprintf("%s/v1/grocery-exports/%s/download", strings.TrimSuffix(baseURL, "/"), e.ID),
		CreatedAt:   e.CreatedAt,
	}
}
