// Package dedup decides whether an incoming event is new, a duplicate of a
// stored record, or an update to one.
package dedup

import (
	"context"
	"log/slog"

	"github.com/opswatch/pulse/internal/store"
	"github.com/opswatch/pulse/pkg/models"
)

// Classification is the outcome of duplicate detection for one event.
type Classification int

const (
	// New means nothing stored matches the event.
	New Classification = iota
	// Duplicate means a stored record already carries the same content;
	// ingestion skips the event.
	Duplicate
	// Update means the stored record with the same id has diverged;
	// ingestion overwrites it.
	Update
)

func (c Classification) String() string {
	switch c {
	case Duplicate:
		return "duplicate"
	case Update:
		return "update"
	default:
		return "new"
	}
}

// Detector classifies incoming events against an event store. Store
// failures during lookups never block ingestion: the detector logs a
// warning and fails open to New.
type Detector struct {
	store  store.EventStore
	logger *slog.Logger
}

// NewDetector creates a Detector over the given store.
func NewDetector(st store.EventStore, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{store: st, logger: logger}
}

// Classify applies the duplicate policy, first match wins:
//
//  1. A stored event with the same id is a Duplicate when title, body,
//     status and impact level all match exactly, otherwise an Update.
//     This catches re-polls of the same upstream item.
//  2. If the store supports exact-match metadata filtering, a stored event
//     with the same source, title, body and publication second is a
//     Duplicate. This catches independently generated ids describing the
//     same fact published at the identical instant.
//  3. Otherwise the event is New.
func (d *Detector) Classify(ctx context.Context, ev *models.Event) Classification {
	if ev.ID != "" {
		existing, err := d.store.GetByID(ctx, ev.ID)
		if err != nil {
			d.logger.Warn("duplicate check by id failed, treating event as new",
				"id", ev.ID, "error", err)
			return New
		}
		if existing != nil {
			if existing.Title == ev.Title &&
				existing.Body == ev.Body &&
				existing.Status == ev.Status &&
				existing.ImpactLevel == ev.ImpactLevel {
				return Duplicate
			}
			return Update
		}
	}

	filterer, ok := d.store.(store.MetadataFilter)
	if !ok {
		return New
	}

	matches, err := filterer.QueryByMetadata(ctx, map[string]any{
		"source":          ev.Source,
		"title":           ev.Title,
		"body":            ev.Body,
		"published_at_ts": ev.PublishedAt.Unix(),
	}, 1)
	if err != nil {
		d.logger.Warn("duplicate check by content failed, treating event as new",
			"title", ev.Title, "error", err)
		return New
	}
	if len(matches) > 0 {
		return Duplicate
	}
	return New
}
