// Package store persists events and answers the lookups the ingestion and
// retrieval cores need: by id, by exact metadata, and by vector similarity.
package store

import (
	"context"
	"time"

	"github.com/opswatch/pulse/pkg/models"
)

// Candidate is one raw similarity-search hit before reranking. Distance
// comes from the backend's vector metric; lower means more similar.
type Candidate struct {
	Event    *models.Event
	Distance float64
}

// EventStore is the write/read surface every backend must provide.
// Upsert is idempotent: a second write with the same id replaces the row.
// Concurrent batches hitting the same id resolve last-write-wins; callers
// wanting stronger guarantees need a lock at the store boundary.
type EventStore interface {
	// GetByID returns the stored event, or (nil, nil) when absent.
	GetByID(ctx context.Context, id string) (*models.Event, error)

	// Upsert stores a batch, generating ids for events that carry none.
	Upsert(ctx context.Context, events []*models.Event) error

	// Count returns the total number of stored events.
	Count(ctx context.Context) (int, error)

	// DeleteAll removes every event. Mainly for tests and resets.
	DeleteAll(ctx context.Context) error
}

// MetadataFilter is an optional capability: exact-match lookups over event
// metadata. Backends that support it declare so by implementing the
// interface; callers discover it with a type assertion rather than probing
// at runtime.
type MetadataFilter interface {
	// QueryByMetadata returns events whose fields equal every filter entry.
	// Supported keys: source, title, body, published_at_ts, status,
	// impact_level, news_type.
	QueryByMetadata(ctx context.Context, filter map[string]any, limit int) ([]*models.Event, error)
}

// SimilaritySearcher answers vector similarity queries.
type SimilaritySearcher interface {
	// SimilarityQuery embeds text and returns up to n nearest candidates.
	// A non-zero since excludes events published before it.
	SimilarityQuery(ctx context.Context, text string, n int, since time.Time) ([]Candidate, error)
}
