package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/opswatch/pulse/internal/embed"
	"github.com/opswatch/pulse/pkg/models"
)

// MemStore is an in-process EventStore selected via config (store.driver =
// memory). It keeps events and their document vectors in maps guarded by a
// single mutex, which also gives batch ingestion the read-after-write
// consistency the coordinator assumes.
type MemStore struct {
	embedder embed.Embedder

	mu      sync.RWMutex
	events  map[string]*models.Event
	vectors map[string][]float32
	order   []string // insertion order, for deterministic scans
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(embedder embed.Embedder) *MemStore {
	return &MemStore{
		embedder: embedder,
		events:   make(map[string]*models.Event),
		vectors:  make(map[string][]float32),
	}
}

func (m *MemStore) GetByID(_ context.Context, id string) (*models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (m *MemStore) Upsert(ctx context.Context, events []*models.Event) error {
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		vec, err := m.embedder.Embed(ctx, ev.Document())
		if err != nil {
			return errors.Wrapf(err, "embed event %s", ev.ID)
		}

		m.mu.Lock()
		if _, exists := m.events[ev.ID]; !exists {
			m.order = append(m.order, ev.ID)
		}
		cp := *ev
		m.events[ev.ID] = &cp
		m.vectors[ev.ID] = vec
		m.mu.Unlock()
	}
	return nil
}

func (m *MemStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events), nil
}

func (m *MemStore) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make(map[string]*models.Event)
	m.vectors = make(map[string][]float32)
	m.order = nil
	return nil
}

// QueryByMetadata implements the MetadataFilter capability.
func (m *MemStore) QueryByMetadata(_ context.Context, filter map[string]any, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 10
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.Event{}
	for _, id := range m.order {
		ev := m.events[id]
		if !matchesFilter(ev, filter) {
			continue
		}
		cp := *ev
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matchesFilter(ev *models.Event, filter map[string]any) bool {
	for key, want := range filter {
		var got any
		switch key {
		case "source":
			got = ev.Source
		case "title":
			got = ev.Title
		case "body":
			got = ev.Body
		case "published_at_ts":
			got = ev.PublishedAt.Unix()
		case "status":
			got = ev.Status
		case "impact_level":
			got = ev.ImpactLevel
		case "news_type":
			got = string(ev.NewsType)
		default:
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}

// SimilarityQuery ranks all stored events by cosine distance to the query.
func (m *MemStore) SimilarityQuery(ctx context.Context, text string, n int, since time.Time) ([]Candidate, error) {
	if n <= 0 {
		return []Candidate{}, nil
	}

	queryVec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}

	m.mu.RLock()
	candidates := make([]Candidate, 0, len(m.order))
	for _, id := range m.order {
		ev := m.events[id]
		if !since.IsZero() && ev.PublishedAt.Before(since) {
			continue
		}
		cp := *ev
		candidates = append(candidates, Candidate{
			Event:    &cp,
			Distance: 1 - cosineSimilarity(queryVec, m.vectors[id]),
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
