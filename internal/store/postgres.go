package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/opswatch/pulse/internal/embed"
	"github.com/opswatch/pulse/pkg/models"
)

// PgStore is the Postgres backend. Event metadata lives in regular columns,
// the document embedding in a pgvector column searched with the cosine
// distance operator.
type PgStore struct {
	db       *sqlx.DB
	embedder embed.Embedder
}

// NewPgStore wraps an open database handle.
func NewPgStore(db *sql.DB, embedder embed.Embedder) *PgStore {
	return &PgStore{db: sqlx.NewDb(db, "postgres"), embedder: embedder}
}

// RunMigrations creates the events table and its indexes. dims must match
// the configured embedding dimension; changing it requires a re-index.
func RunMigrations(db *sql.DB, dims int) error {
	initSQL := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS events(
  id TEXT PRIMARY KEY,
  source TEXT NOT NULL,
  title TEXT NOT NULL,
  body TEXT NOT NULL DEFAULT '',
  published_at TIMESTAMPTZ NOT NULL,
  published_at_ts BIGINT NOT NULL,
  status TEXT NOT NULL DEFAULT '',
  impact_level TEXT NOT NULL DEFAULT '',
  news_type TEXT NOT NULL DEFAULT 'unknown',
  url TEXT NOT NULL DEFAULT '',
  short_url TEXT NOT NULL DEFAULT '',
  affected_components JSONB,
  created_at TIMESTAMPTZ,
  updated_at TIMESTAMPTZ,
  resolved_at TIMESTAMPTZ,
  started_at TIMESTAMPTZ,
  embedding vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_events_published_ts ON events(published_at_ts);
CREATE INDEX IF NOT EXISTS idx_events_source ON events(source);
`, dims)
	_, err := db.Exec(initSQL)
	return err
}

const eventColumns = `id, source, title, body, published_at, published_at_ts, status, impact_level, news_type, url, short_url, affected_components, created_at, updated_at, resolved_at, started_at`

func (p *PgStore) GetByID(ctx context.Context, id string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 LIMIT 1`
	row := p.db.QueryRowContext(ctx, query, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get event %s", id)
	}
	return ev, nil
}

// Upsert embeds each event's document text and writes everything in one
// transaction. Same id replaces the existing row.
func (p *PgStore) Upsert(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}

	docs := make([]string, len(events))
	for i, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		docs[i] = ev.Document()
	}

	vectors, err := p.embedder.EmbedBatch(ctx, docs)
	if err != nil {
		return errors.Wrap(err, "embed documents")
	}
	if len(vectors) != len(events) {
		return errors.Errorf("embedder returned %d vectors for %d events", len(vectors), len(events))
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	stmt := `
INSERT INTO events (` + eventColumns + `, embedding)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12::jsonb,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
 source=EXCLUDED.source,
 title=EXCLUDED.title,
 body=EXCLUDED.body,
 published_at=EXCLUDED.published_at,
 published_at_ts=EXCLUDED.published_at_ts,
 status=EXCLUDED.status,
 impact_level=EXCLUDED.impact_level,
 news_type=EXCLUDED.news_type,
 url=EXCLUDED.url,
 short_url=EXCLUDED.short_url,
 affected_components=EXCLUDED.affected_components,
 created_at=EXCLUDED.created_at,
 updated_at=EXCLUDED.updated_at,
 resolved_at=EXCLUDED.resolved_at,
 started_at=EXCLUDED.started_at,
 embedding=EXCLUDED.embedding;
`

	for i, ev := range events {
		if ev.AffectedComponents == nil {
			ev.AffectedComponents = []string{}
		}
		newsType := ev.NewsType
		if newsType == "" {
			newsType = models.NewsTypeUnknown
		}

		_, err := tx.ExecContext(ctx, stmt,
			ev.ID,
			ev.Source,
			ev.Title,
			ev.Body,
			ev.PublishedAt,
			ev.PublishedAt.Unix(),
			ev.Status,
			ev.ImpactLevel,
			string(newsType),
			ev.URL,
			ev.ShortURL,
			ev.AffectedComponents,
			ev.CreatedAt,
			ev.UpdatedAt,
			ev.ResolvedAt,
			ev.StartedAt,
			pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "upsert event id=%s", ev.ID)
		}
	}

	return tx.Commit()
}

func (p *PgStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := p.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM events`); err != nil {
		return 0, errors.Wrap(err, "count events")
	}
	return count, nil
}

func (p *PgStore) DeleteAll(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM events`)
	return err
}

// QueryByMetadata implements the MetadataFilter capability with exact-match
// predicates over a fixed set of columns.
func (p *PgStore) QueryByMetadata(ctx context.Context, filter map[string]any, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 10
	}

	allowed := map[string]bool{
		"source": true, "title": true, "body": true, "published_at_ts": true,
		"status": true, "impact_level": true, "news_type": true,
	}

	where, args := []string{"1 = 1"}, []any{}
	for key, val := range filter {
		if !allowed[key] {
			return nil, errors.Errorf("unsupported metadata filter key: %s", key)
		}
		where = append(where, fmt.Sprintf("%s = $%d", key, len(args)+1))
		args = append(args, val)
	}
	args = append(args, limit)

	query := `SELECT ` + eventColumns + ` FROM events WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(" ORDER BY published_at_ts DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query events by metadata")
	}
	defer rows.Close()

	list := []*models.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}

// SimilarityQuery embeds the query text and orders events by cosine
// distance (the <=> operator), nearest first.
func (p *PgStore) SimilarityQuery(ctx context.Context, text string, n int, since time.Time) ([]Candidate, error) {
	if n <= 0 {
		return []Candidate{}, nil
	}

	queryVec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}
	vector := pgvector.NewVector(queryVec)

	where, args := []string{"embedding IS NOT NULL"}, []any{vector}
	if !since.IsZero() {
		where = append(where, fmt.Sprintf("published_at_ts >= $%d", len(args)+1))
		args = append(args, since.Unix())
	}
	args = append(args, n)

	query := `
SELECT ` + eventColumns + `, embedding <=> $1 AS distance
FROM events
WHERE ` + strings.Join(where, " AND ") + `
ORDER BY embedding <=> $1
LIMIT $` + fmt.Sprint(len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "similarity query")
	}
	defer rows.Close()

	candidates := []Candidate{}
	for rows.Next() {
		ev := &models.Event{}
		var newsType string
		var distance float64
		err := rows.Scan(
			&ev.ID, &ev.Source, &ev.Title, &ev.Body,
			&ev.PublishedAt, new(int64), &ev.Status, &ev.ImpactLevel, &newsType,
			&ev.URL, &ev.ShortURL, &ev.AffectedComponents,
			&ev.CreatedAt, &ev.UpdatedAt, &ev.ResolvedAt, &ev.StartedAt,
			&distance,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scan similarity result")
		}
		ev.NewsType = models.ParseNewsType(newsType)
		candidates = append(candidates, Candidate{Event: ev, Distance: distance})
	}
	return candidates, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	ev := &models.Event{}
	var newsType string
	err := row.Scan(
		&ev.ID, &ev.Source, &ev.Title, &ev.Body,
		&ev.PublishedAt, new(int64), &ev.Status, &ev.ImpactLevel, &newsType,
		&ev.URL, &ev.ShortURL, &ev.AffectedComponents,
		&ev.CreatedAt, &ev.UpdatedAt, &ev.ResolvedAt, &ev.StartedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.NewsType = models.ParseNewsType(newsType)
	return ev, nil
}
