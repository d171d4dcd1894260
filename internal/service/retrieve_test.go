package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opswatch/pulse/internal/embed"
	"github.com/opswatch/pulse/internal/store"
	"github.com/opswatch/pulse/pkg/models"
)

var retrieveNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newRetrievalFixture(t *testing.T) (*RetrievalService, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore(embed.NewStatic(64))
	svc := NewRetrievalService(st, nil, 0, false, nil, nil)
	svc.now = func() time.Time { return retrieveNow }
	return svc, st
}

func retrieveEvent(id, title string, ageDays int) *models.Event {
	return &models.Event{
		ID:          id,
		Source:      "statuspage",
		Title:       title,
		PublishedAt: retrieveNow.AddDate(0, 0, -ageDays),
	}
}

func TestRetrieveNegativeLimitFailsFast(t *testing.T) {
	svc, _ := newRetrievalFixture(t)
	_, err := svc.Retrieve(context.Background(), "outage", RetrieveOptions{Limit: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

func TestRetrieveDaysBackWindowExcludesOldEvents(t *testing.T) {
	ctx := context.Background()
	svc, st := newRetrievalFixture(t)

	// Two candidates inside the 14-day window, two outside. The one
	// sharing the most query vocabulary and the lowest age must win.
	require.NoError(t, st.Upsert(ctx, []*models.Event{
		retrieveEvent("in_relevant", "critical database outage production incident", 1),
		retrieveEvent("in_other", "minor network blip reported", 5),
		retrieveEvent("out_relevant", "critical database outage production incident archive", 20),
		retrieveEvent("out_other", "old maintenance notice", 30),
	}))

	events, err := svc.Retrieve(ctx, "critical database outage incident", RetrieveOptions{
		Limit:    10,
		DaysBack: 14,
		Alpha:    0.9,
		Decay:    0.02,
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "in_relevant", events[0].ID)
	assert.Equal(t, "in_other", events[1].ID)
}

func TestRetrieveTruncatesToLimit(t *testing.T) {
	ctx := context.Background()
	svc, st := newRetrievalFixture(t)

	require.NoError(t, st.Upsert(ctx, []*models.Event{
		retrieveEvent("a", "service outage alpha", 1),
		retrieveEvent("b", "service outage beta", 2),
		retrieveEvent("c", "service outage gamma", 3),
	}))

	events, err := svc.Retrieve(ctx, "service outage", RetrieveOptions{
		Limit: 2, DaysBack: 14, Alpha: 0.7, Decay: 0.02,
	})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestRetrieveZeroDaysBackMeansNoWindow(t *testing.T) {
	ctx := context.Background()
	svc, st := newRetrievalFixture(t)

	require.NoError(t, st.Upsert(ctx, []*models.Event{
		retrieveEvent("ancient", "legacy system outage", 400),
	}))

	events, err := svc.Retrieve(ctx, "legacy system outage", RetrieveOptions{
		Limit: 10, DaysBack: 0, Alpha: 0.7, Decay: 0.02,
	})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

// recordingStore captures the overfetch size passed to the similarity query.
type recordingStore struct {
	*store.MemStore
	lastN     int
	lastSince time.Time
}

func (r *recordingStore) SimilarityQuery(ctx context.Context, text string, n int, since time.Time) ([]store.Candidate, error) {
	r.lastN = n
	r.lastSince = since
	return r.MemStore.SimilarityQuery(ctx, text, n, since)
}

func TestRetrieveOverfetchPolicy(t *testing.T) {
	ctx := context.Background()
	rec := &recordingStore{MemStore: store.NewMemStore(embed.NewStatic(64))}
	svc := NewRetrievalService(rec, nil, 0, false, nil, nil)
	svc.now = func() time.Time { return retrieveNow }

	_, err := svc.Retrieve(ctx, "outage", RetrieveOptions{Limit: 10, DaysBack: 14, Alpha: 0.7, Decay: 0.02})
	require.NoError(t, err)
	assert.Equal(t, 30, rec.lastN, "limit*3 below the cap")

	_, err = svc.Retrieve(ctx, "outage", RetrieveOptions{Limit: 50, DaysBack: 14, Alpha: 0.7, Decay: 0.02})
	require.NoError(t, err)
	assert.Equal(t, 100, rec.lastN, "overfetch capped at 100")

	assert.Equal(t, retrieveNow.AddDate(0, 0, -14), rec.lastSince)
}

func TestRetrieveDefaultsAppliedForZeroLimit(t *testing.T) {
	ctx := context.Background()
	rec := &recordingStore{MemStore: store.NewMemStore(embed.NewStatic(64))}
	svc := NewRetrievalService(rec, nil, 0, false, nil, nil)
	svc.now = func() time.Time { return retrieveNow }

	_, err := svc.Retrieve(ctx, "outage", RetrieveOptions{DaysBack: 14, Alpha: 0.7, Decay: 0.02})
	require.NoError(t, err)
	assert.Equal(t, 100, rec.lastN, "default limit 100, overfetch capped at 100")
}

func TestRetrieveEmptyStoreReturnsEmpty(t *testing.T) {
	svc, _ := newRetrievalFixture(t)
	events, err := svc.Retrieve(context.Background(), "anything", DefaultRetrieveOptions())
	require.NoError(t, err)
	assert.Empty(t, events)
}
