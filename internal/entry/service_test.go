package entry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/flowkat/internal/domain"
	apperrors "github.com/Proton-105/flowkat/internal/errors"
)

type memoryStore struct {
	nextID  int64
	entries map[int64]*domain.Entry
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[int64]*domain.Entry)}
}

func (m *memoryStore) Upsert(_ context.Context, entry *domain.Entry) error {
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.entries {
		if existing.UserID == entry.UserID && existing.Date.Equal(entry.Date) {
			entry.ID = existing.ID
			*existing = *entry
			return nil
		}
	}
	m.nextID++
	entry.ID = m.nextID
	cp := *entry
	m.entries[entry.ID] = &cp
	return nil
}

func (m *memoryStore) ListByUser(_ context.Context, userID int64) ([]domain.Entry, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Entry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (m *memoryStore) Delete(_ context.Context, userID, entryID int64) error {
	e, ok := m.entries[entryID]
	if !ok || e.UserID != userID {
		return domain.ErrNotFound
	}
	delete(m.entries, entryID)
	return nil
}

func newTestService(store Store, now time.Time) *Service {
	svc := NewService(store, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return now }
	return svc
}

func score(v int) *int {
	return &v
}

func TestSaveNormalizesDate(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, time.Now())

	view, err := svc.Save(context.Background(), 1, Input{Date: "15.03.2024", Score: score(4), Tags: []string{"sport", " ", "sleep"}})
	require.NoError(t, err)
	assert.Equal(t, "15.03.2024", view.Date)
	assert.Equal(t, []string{"sport", "sleep"}, view.Tags)
	assert.Equal(t, "2024-03-15", store.entries[view.ID].Date.Format(domain.DateLayout))

	again, err := svc.Save(context.Background(), 1, Input{Date: "2024-03-15", Score: score(2)})
	require.NoError(t, err)
	assert.Equal(t, view.ID, again.ID)
	assert.Len(t, store.entries, 1)
	assert.Equal(t, 2, store.entries[view.ID].Score)
}

func TestSaveValidation(t *testing.T) {
	svc := newTestService(newMemoryStore(), time.Now())

	tests := []struct {
		name string
		in   Input
	}{
		{name: "missing date", in: Input{Score: score(3)}},
		{name: "missing score", in: Input{Date: "2024-03-15"}},
		{name: "score too low", in: Input{Date: "2024-03-15", Score: score(0)}},
		{name: "score too high", in: Input{Date: "2024-03-15", Score: score(6)}},
		{name: "bad date", in: Input{Date: "2024/03/15", Score: score(3)}},
		{name: "impossible date", in: Input{Date: "31.02.2024", Score: score(3)}},
		{name: "long category", in: Input{Date: "2024-03-15", Score: score(3), Category: string(make([]byte, 101))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Save(context.Background(), 1, tt.in)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, apperrors.StatusOf(err))
		})
	}
}

func TestSaveStoreError(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("connection refused")
	svc := newTestService(store, time.Now())

	_, err := svc.Save(context.Background(), 1, Input{Date: "2024-03-15", Score: score(3)})
	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusOf(err))
}

func TestListStats(t *testing.T) {
	store := newMemoryStore()
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)
	ctx := context.Background()

	for _, in := range []Input{
		{Date: "2024-03-20", Score: score(5)},
		{Date: "2024-03-10", Score: score(3)},
		{Date: "2024-03-07", Score: score(2)}, // 14th day back
		{Date: "2024-03-06", Score: score(1)}, // outside the trailing window
		{Date: "2024-02-28", Score: score(4)},
	} {
		_, err := svc.Save(ctx, 1, in)
		require.NoError(t, err)
	}
	_, err := svc.Save(ctx, 2, Input{Date: "2024-03-20", Score: score(1)})
	require.NoError(t, err)

	res, err := svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, res.Entries, 5)

	first := res.Entries[0]
	assert.Equal(t, "20.03.2024", first.Date)
	assert.Equal(t, "Неделя 12", first.Week)
	assert.Equal(t, "March 2024", first.Month)
	assert.Equal(t, "28.02.2024", res.Entries[4].Date)

	assert.Equal(t, domain.EntryStats{Good: 2, Neutral: 1, Bad: 2, Average: 3, Total: 5}, res.Stats)
	assert.Equal(t, domain.EntryStats{Good: 1, Neutral: 1, Bad: 1, Average: 3.33, Total: 3}, res.Recent)
	assert.Equal(t, domain.EntryStats{Good: 1, Neutral: 1, Bad: 2, Average: 2.75, Total: 4}, res.CurrentMonth)
}

func TestListEmpty(t *testing.T) {
	svc := newTestService(newMemoryStore(), time.Now())

	res, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, res.Entries)
	assert.Empty(t, res.Entries)
	assert.Equal(t, domain.EntryStats{}, res.Stats)
}

func TestDeleteScopedToOwner(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, time.Now())
	ctx := context.Background()

	view, err := svc.Save(ctx, 1, Input{Date: "2024-03-15", Score: score(3)})
	require.NoError(t, err)

	err = svc.Delete(ctx, 2, view.ID)
	assert.Equal(t, http.StatusNotFound, apperrors.StatusOf(err))
	assert.Len(t, store.entries, 1)

	require.NoError(t, svc.Delete(ctx, 1, view.ID))
	assert.Empty(t, store.entries)

	err = svc.Delete(ctx, 1, 0)
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusOf(err))
}

func TestComputeStatsThresholds(t *testing.T) {
	entries := []domain.Entry{{Score: 1}, {Score: 2}, {Score: 3}, {Score: 4}, {Score: 5}, {Score: 4}}
	stats := ComputeStats(entries)

	assert.Equal(t, 3, stats.Good)
	assert.Equal(t, 1, stats.Neutral)
	assert.Equal(t, 2, stats.Bad)
	assert.Equal(t, 6, stats.Total)
	assert.InDelta(t, 3.17, stats.Average, 1e-9)
}
