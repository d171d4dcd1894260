// Package service hosts the ingestion coordinator and the retrieval
// service that sit between the HTTP layer and the event store.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opswatch/pulse/internal/dedup"
	"github.com/opswatch/pulse/internal/metrics"
	"github.com/opswatch/pulse/internal/store"
	"github.com/opswatch/pulse/pkg/models"
)

// DefaultFutureTolerance is how far ahead of ingestion time an event's
// publication timestamp may sit before the event is rejected.
const DefaultFutureTolerance = 24 * time.Hour

// IngestionService validates, deduplicates and stores event batches.
type IngestionService struct {
	store           store.EventStore
	detector        *dedup.Detector
	metrics         *metrics.Metrics
	futureTolerance time.Duration
	logger          *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewIngestionService wires the coordinator. A zero futureTolerance falls
// back to DefaultFutureTolerance.
func NewIngestionService(st store.EventStore, detector *dedup.Detector, m *metrics.Metrics, futureTolerance time.Duration, logger *slog.Logger) *IngestionService {
	if futureTolerance <= 0 {
		futureTolerance = DefaultFutureTolerance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestionService{
		store:           st,
		detector:        detector,
		metrics:         m,
		futureTolerance: futureTolerance,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Ingest processes a batch sequentially, in order. Invalid events are
// soft-skipped, duplicates are skipped, new and updated events are
// upserted. A failure on one event is recorded and the batch continues;
// nothing per-event ever aborts the call. ingested + skipped always equals
// the batch length.
func (s *IngestionService) Ingest(ctx context.Context, events []*models.Event) *models.IngestResult {
	result := &models.IngestResult{Errors: []string{}}
	if len(events) == 0 {
		result.Success = true
		return result
	}

	for _, ev := range events {
		if !s.validate(ev) {
			result.SkippedCount++
			continue
		}

		cls := s.detector.Classify(ctx, ev)
		if cls == dedup.Duplicate {
			s.logger.Debug("skipping duplicate event", "title", ev.Title, "source", ev.Source)
			result.SkippedCount++
			continue
		}

		if err := s.store.Upsert(ctx, []*models.Event{ev}); err != nil {
			msg := fmt.Sprintf("error ingesting event %q: %v", ev.Title, err)
			s.logger.Error("event ingestion failed", "title", ev.Title, "error", err)
			result.Errors = append(result.Errors, msg)
			result.SkippedCount++
			continue
		}

		result.IngestedCount++
		s.logger.Debug("ingested event",
			"title", ev.Title, "source", ev.Source, "classification", cls.String())
	}

	result.Success = len(result.Errors) == 0
	s.metrics.ObserveIngest(result.IngestedCount, result.SkippedCount, len(result.Errors))

	if result.IngestedCount > 0 {
		s.logger.Info("ingestion complete",
			"ingested", result.IngestedCount, "skipped", result.SkippedCount)
	}
	if len(result.Errors) > 0 {
		s.logger.Warn("ingestion completed with errors", "errors", len(result.Errors))
	}
	return result
}

// validate applies the soft-skip rules: non-empty title and source after
// trimming, a publication timestamp that is present and not further in the
// future than the tolerance allows.
func (s *IngestionService) validate(ev *models.Event) bool {
	if ev == nil {
		s.logger.Warn("nil event in batch")
		return false
	}
	if strings.TrimSpace(ev.Title) == "" {
		s.logger.Warn("event missing title", "source", ev.Source)
		return false
	}
	if strings.TrimSpace(ev.Source) == "" {
		s.logger.Warn("event missing source", "title", ev.Title)
		return false
	}
	if ev.PublishedAt.IsZero() {
		s.logger.Warn("event missing published_at", "title", ev.Title)
		return false
	}

	now := s.now()
	if ev.PublishedAt.UTC().After(now.Add(s.futureTolerance)) {
		s.logger.Warn("event published_at too far in the future",
			"title", ev.Title, "published_at", ev.PublishedAt, "now", now)
		return false
	}
	return true
}

// Store exposes the underlying event store for direct lookups.
func (s *IngestionService) Store() store.EventStore {
	return s.store
}

// Stats reports a coarse snapshot of the store.
func (s *IngestionService) Stats(ctx context.Context) (*models.IngestionStats, error) {
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	return &models.IngestionStats{
		TotalEvents: total,
		LastUpdated: s.now(),
	}, nil
}
