// Package maintenance removes data that outlives its retention: exported
// Parquet files in the object store and query audit rows in the metadata
// database.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jaysatani-27/buster-ai-sub003/internal/storage"
)

// ExportStore is an object store that can enumerate its keys.
type ExportStore interface {
	storage.Lister
	Delete(ctx context.Context, key string) error
}

type AuditPruner interface {
	PruneQueryAudit(ctx context.Context, cutoff time.Time) (int64, error)
}

type Config struct {
	Interval        time.Duration
	ExportRetention time.Duration
	AuditRetention  time.Duration
}

type Service struct {
	// Exports and Audit are optional; a nil one skips that sweep.
	Exports ExportStore
	Audit   AuditPruner
	Config  Config
	Logger  *slog.Logger
	Clock   func() time.Time
}

type ExportRetentionSummary struct {
	ObjectsScanned int   `json:"objects_scanned"`
	ObjectsExpired int   `json:"objects_expired"`
	ObjectsDeleted int   `json:"objects_deleted"`
	BytesDeleted   int64 `json:"bytes_deleted"`
	Failures       int   `json:"failures"`
}

type AuditRetentionSummary struct {
	RowsDeleted int64 `json:"rows_deleted"`
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()
	if s.Exports == nil && s.Audit == nil {
		return errors.New("maintenance has nothing to sweep")
	}

	ticker := time.NewTicker(s.Config.Interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	if s.Exports != nil && s.Config.ExportRetention > 0 {
		summary, err := s.RunExportRetentionOnce(ctx)
		if err != nil {
			s.Logger.ErrorContext(ctx, "export retention cycle failed", slog.Any("error", err), slog.Any("summary", summary))
		} else {
			s.Logger.InfoContext(ctx, "export retention cycle completed", slog.Any("summary", summary))
		}
	}
	if s.Audit != nil && s.Config.AuditRetention > 0 {
		summary, err := s.RunAuditRetentionOnce(ctx)
		if err != nil {
			s.Logger.ErrorContext(ctx, "audit retention cycle failed", slog.Any("error", err))
		} else {
			s.Logger.InfoContext(ctx, "audit retention cycle completed", slog.Any("summary", summary))
		}
	}
}

// RunExportRetentionOnce deletes export files last modified before the
// retention window. Keys outside an exports/ directory are never touched.
func (s *Service) RunExportRetentionOnce(ctx context.Context) (ExportRetentionSummary, error) {
	s.ensureDefaults()
	if s.Exports == nil {
		return ExportRetentionSummary{}, fmt.Errorf("export store is required")
	}

	objects, err := s.Exports.List(ctx, "")
	if err != nil {
		retentionRunsTotal.WithLabelValues("exports", "failed").Inc()
		return ExportRetentionSummary{}, fmt.Errorf("list exports: %w", err)
	}

	summary := ExportRetentionSummary{ObjectsScanned: len(objects)}
	cutoff := s.Clock().Add(-s.Config.ExportRetention)
	var failures []string
	for _, object := range objects {
		if !storage.IsExportPath(object.Key) || !object.LastModified.Before(cutoff) {
			continue
		}
		summary.ObjectsExpired++
		if err := s.Exports.Delete(ctx, object.Key); err != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("delete %s: %v", object.Key, err))
			continue
		}
		summary.ObjectsDeleted++
		summary.BytesDeleted += object.Size
	}

	exportsDeletedTotal.Add(float64(summary.ObjectsDeleted))
	if len(failures) > 0 {
		retentionRunsTotal.WithLabelValues("exports", "failed").Inc()
		return summary, fmt.Errorf("export retention encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	retentionRunsTotal.WithLabelValues("exports", "completed").Inc()
	return summary, nil
}

func (s *Service) RunAuditRetentionOnce(ctx context.Context) (AuditRetentionSummary, error) {
	s.ensureDefaults()
	if s.Audit == nil {
		return AuditRetentionSummary{}, fmt.Errorf("audit pruner is required")
	}
	deleted, err := s.Audit.PruneQueryAudit(ctx, s.Clock().Add(-s.Config.AuditRetention))
	if err != nil {
		retentionRunsTotal.WithLabelValues("audit", "failed").Inc()
		return AuditRetentionSummary{}, err
	}
	auditRowsDeletedTotal.Add(float64(deleted))
	retentionRunsTotal.WithLabelValues("audit", "completed").Inc()
	return AuditRetentionSummary{RowsDeleted: deleted}, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Config.Interval <= 0 {
		s.Config.Interval = 10 * time.Minute
	}
}
