package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opswatch/pulse/internal/metrics"
	"github.com/opswatch/pulse/internal/scoring"
	"github.com/opswatch/pulse/internal/store"
	"github.com/opswatch/pulse/pkg/models"
)

// Retrieval defaults, applied when an option is left at its zero value
// (alpha and decay excepted: zero is meaningful there, so callers that want
// the defaults use DefaultRetrieveOptions).
const (
	DefaultRetrieveLimit    = 100
	DefaultRetrieveDaysBack = 14
	DefaultRetrieveAlpha    = 0.7
	DefaultRetrieveDecay    = 0.02

	maxOverfetch = 100
)

// RetrieveOptions parameterizes one retrieval call.
type RetrieveOptions struct {
	Limit    int
	DaysBack int
	Alpha    float64
	Decay    float64
}

// DefaultRetrieveOptions returns the documented retrieval defaults.
func DefaultRetrieveOptions() RetrieveOptions {
	return RetrieveOptions{
		Limit:    DefaultRetrieveLimit,
		DaysBack: DefaultRetrieveDaysBack,
		Alpha:    DefaultRetrieveAlpha,
		Decay:    DefaultRetrieveDecay,
	}
}

// retrievalStore is the slice of the store the retrieval path needs.
type retrievalStore interface {
	store.EventStore
	store.SimilaritySearcher
}

// RetrievalService answers ranked queries: overfetch candidates from the
// store inside the recency window, rerank with the hybrid scorer, truncate.
type RetrievalService struct {
	store          retrievalStore
	rdb            *redis.Client
	cacheTTL       time.Duration
	clampRelevancy bool
	metrics        *metrics.Metrics
	logger         *slog.Logger

	now func() time.Time
}

// NewRetrievalService wires the retrieval path. rdb may be nil to disable
// result caching.
func NewRetrievalService(st retrievalStore, rdb *redis.Client, cacheTTL time.Duration, clampRelevancy bool, m *metrics.Metrics, logger *slog.Logger) *RetrievalService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalService{
		store:          st,
		rdb:            rdb,
		cacheTTL:       cacheTTL,
		clampRelevancy: clampRelevancy,
		metrics:        m,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Retrieve returns up to opts.Limit events ranked by the hybrid score.
// Events older than opts.DaysBack are excluded before scoring, not merely
// down-weighted. A negative limit fails fast before any store access.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]*models.Event, error) {
	start := s.now()

	if opts.Limit < 0 {
		s.metrics.ObserveRetrieval("bad_request", time.Since(start))
		return nil, fmt.Errorf("limit must not be negative: %d", opts.Limit)
	}
	if opts.Limit == 0 {
		opts.Limit = DefaultRetrieveLimit
	}

	cacheKey := fmt.Sprintf("retrieve:%s:%d:%d:%g:%g",
		query, opts.Limit, opts.DaysBack, opts.Alpha, opts.Decay)
	if cached, ok := s.cacheGet(ctx, cacheKey); ok {
		s.metrics.ObserveRetrieval("cache_hit", time.Since(start))
		return cached, nil
	}

	var since time.Time
	if opts.DaysBack > 0 {
		since = start.AddDate(0, 0, -opts.DaysBack)
	}

	// Overfetch so reranking has enough pool to reorder by recency.
	fetch := opts.Limit * 3
	if fetch > maxOverfetch {
		fetch = maxOverfetch
	}

	candidates, err := s.store.SimilarityQuery(ctx, query, fetch, since)
	if err != nil {
		s.metrics.ObserveRetrieval("error", time.Since(start))
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	scored := scoring.Rank(candidates, scoring.RankOptions{
		Alpha:          opts.Alpha,
		Decay:          opts.Decay,
		Limit:          opts.Limit,
		Now:            start,
		ClampRelevancy: s.clampRelevancy,
	})

	events := make([]*models.Event, len(scored))
	for i, sc := range scored {
		events[i] = sc.Event
	}

	s.cacheSet(ctx, cacheKey, events)
	s.metrics.ObserveRetrieval("ok", time.Since(start))
	s.logger.Info("retrieval complete",
		"query", query, "results", len(events),
		"days_back", opts.DaysBack, "alpha", opts.Alpha, "decay", opts.Decay)
	return events, nil
}

func (s *RetrievalService) cacheGet(ctx context.Context, key string) ([]*models.Event, bool) {
	if s.rdb == nil {
		return nil, false
	}
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Debug("retrieval cache read failed", "error", err)
		}
		return nil, false
	}
	var events []*models.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, false
	}
	return events, true
}

func (s *RetrievalService) cacheSet(ctx context.Context, key string, events []*models.Event) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Debug("retrieval cache write failed", "error", err)
	}
}
