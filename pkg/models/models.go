package models

import (
	"encoding/json"
	"time"

	dbtypes "github.com/opswatch/pulse/internal/db"
)

// NewsType classifies the kind of operational news an event carries.
// Source adapters emit free-form strings; unrecognized values parse to
// NewsTypeUnknown so new upstream categories never break ingestion.
type NewsType string

const (
	NewsTypeServiceStatus    NewsType = "service_status"
	NewsTypeSecurityAdvisory NewsType = "security_advisory"
	NewsTypeSoftwareBug      NewsType = "software_bug"
	NewsTypeUnknown          NewsType = "unknown"
)

// ParseNewsType maps a raw string onto a known NewsType, falling back to
// NewsTypeUnknown for anything it does not recognize.
func ParseNewsType(s string) NewsType {
	switch NewsType(s) {
	case NewsTypeServiceStatus, NewsTypeSecurityAdvisory, NewsTypeSoftwareBug:
		return NewsType(s)
	default:
		return NewsTypeUnknown
	}
}

// UnmarshalJSON accepts any string and normalizes it through ParseNewsType.
func (t *NewsType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*t = ParseNewsType(s)
	return nil
}

// Event is the unit of ingestion, storage and retrieval: one news or
// incident item from a status page, advisory feed, tracker or forum.
type Event struct {
	ID     string `db:"id" json:"id"`
	Source string `db:"source" json:"source"`
	Title  string `db:"title" json:"title"`
	Body   string `db:"body" json:"body"`

	PublishedAt time.Time  `db:"published_at" json:"published_at"`
	CreatedAt   *time.Time `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
	ResolvedAt  *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`

	Status             string              `db:"status" json:"status,omitempty"`
	ImpactLevel        string              `db:"impact_level" json:"impact_level,omitempty"`
	NewsType           NewsType            `db:"news_type" json:"news_type,omitempty"`
	URL                string              `db:"url" json:"url,omitempty"`
	ShortURL           string              `db:"short_url" json:"short_url,omitempty"`
	AffectedComponents dbtypes.StringSlice `db:"affected_components" json:"affected_components,omitempty"`
}

// Document returns the text indexed for similarity search.
func (e *Event) Document() string {
	if e.Body == "" {
		return e.Title
	}
	return e.Title + " " + e.Body
}

// ScoredEvent annotates an Event with the per-query scores produced during
// retrieval reranking. It lives only for the duration of one retrieval call
// and is never persisted.
type ScoredEvent struct {
	Event          *Event  `json:"event"`
	RelevancyScore float64 `json:"relevancy_score"`
	RecencyScore   float64 `json:"recency_score"`
	CombinedScore  float64 `json:"combined_score"`
}

// IngestResult aggregates the outcome of one ingestion batch.
type IngestResult struct {
	Success       bool     `json:"success"`
	IngestedCount int      `json:"ingested_count"`
	SkippedCount  int      `json:"skipped_count"`
	Errors        []string `json:"errors"`
}

// IngestionStats is a coarse snapshot of the store, exposed for operators.
type IngestionStats struct {
	TotalEvents int       `json:"total_events"`
	LastUpdated time.Time `json:"last_updated"`
}
