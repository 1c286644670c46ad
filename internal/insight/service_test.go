package insight

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/flowkat/internal/domain"
	apperrors "github.com/Proton-105/flowkat/internal/errors"
)

type fakeEntries struct {
	entries  []domain.Entry
	err      error
	from, to time.Time
}

func (f *fakeEntries) ListRange(_ context.Context, _ int64, from, to time.Time) ([]domain.Entry, error) {
	f.from, f.to = from, to
	return f.entries, f.err
}

type fakeStore struct {
	saved     *domain.AIAnalysis
	upsertErr error
}

func (f *fakeStore) Get(_ context.Context, _ int64) (*domain.AIAnalysis, error) {
	if f.saved == nil {
		return nil, domain.ErrNotFound
	}
	return f.saved, nil
}

func (f *fakeStore) Upsert(_ context.Context, a *domain.AIAnalysis) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	a.UpdatedAt = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	f.saved = a
	return nil
}

func newTestService(t *testing.T, entries *fakeEntries, store *fakeStore) (*Service, *fakeLLM) {
	t.Helper()

	llm := newFakeLLM(t)
	svc := NewService(entries, store, ProviderOpenAI, 7, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2024, 3, 6, 9, 30, 0, 0, time.UTC) }
	svc.AddProvider(ProviderOpenAI, llm.client(t, ProviderOpenAI))
	return svc, llm
}

func weekEntries() []domain.Entry {
	return []domain.Entry{
		{Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), Score: 4, Tags: []string{"спорт"}},
		{Date: time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), Score: 2},
	}
}

func TestAnalyzeStoresResult(t *testing.T) {
	entries := &fakeEntries{entries: weekEntries()}
	store := &fakeStore{}
	svc, llm := newTestService(t, entries, store)

	res, err := svc.Analyze(context.Background(), 7, "")
	require.NoError(t, err)

	assert.Equal(t, llm.reply, res.Analysis)
	assert.Equal(t, []string{"Больше спать", "Гулять днём"}, res.Recommendations)
	assert.Equal(t, 2, res.TotalEntries)
	assert.Equal(t, ProviderOpenAI, res.Provider)
	assert.False(t, res.UpdatedAt.IsZero())

	assert.Equal(t, time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), entries.from)
	assert.Equal(t, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), entries.to)

	require.NotNil(t, store.saved)
	assert.Equal(t, int64(7), store.saved.UserID)
	assert.Contains(t, llm.last.Messages[1].Content, "Дата: 2024-03-05")
}

func TestAnalyzeWithoutEntriesSkipsProvider(t *testing.T) {
	store := &fakeStore{}
	svc, llm := newTestService(t, &fakeEntries{}, store)

	res, err := svc.Analyze(context.Background(), 7, ProviderOpenAI)
	require.NoError(t, err)

	assert.Equal(t, NotEnoughData, res.Analysis)
	assert.Empty(t, res.Recommendations)
	assert.Equal(t, 0, res.TotalEntries)
	assert.Zero(t, llm.hits)
	assert.Nil(t, store.saved)
}

func TestAnalyzeUnknownProvider(t *testing.T) {
	svc, _ := newTestService(t, &fakeEntries{entries: weekEntries()}, &fakeStore{})

	_, err := svc.Analyze(context.Background(), 7, "gemini")

	assert.Equal(t, http.StatusBadRequest, apperrors.StatusOf(err))
}

func TestAnalyzeUnconfiguredProvider(t *testing.T) {
	svc, _ := newTestService(t, &fakeEntries{entries: weekEntries()}, &fakeStore{})

	_, err := svc.Analyze(context.Background(), 7, ProviderPerplexity)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "E310", appErr.Code)
}

func TestAnalyzeUpstreamFailure(t *testing.T) {
	store := &fakeStore{}
	svc, llm := newTestService(t, &fakeEntries{entries: weekEntries()}, store)
	llm.status = http.StatusUnauthorized

	_, err := svc.Analyze(context.Background(), 7, ProviderOpenAI)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "E300", appErr.Code)
	assert.Contains(t, appErr.UserMessage, "OpenAI")
	assert.Contains(t, appErr.UserMessage, "401")
	assert.Nil(t, store.saved)
}

func TestAnalyzeBreakerOpensAfterRepeatedFailures(t *testing.T) {
	svc, llm := newTestService(t, &fakeEntries{entries: weekEntries()}, &fakeStore{})
	llm.status = http.StatusBadGateway

	for i := 0; i < apperrors.MinRequests; i++ {
		_, err := svc.Analyze(context.Background(), 7, ProviderOpenAI)
		require.Error(t, err)
	}
	hits := llm.hits

	_, err := svc.Analyze(context.Background(), 7, ProviderOpenAI)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "E300", appErr.Code)
	assert.Equal(t, hits, llm.hits)
}

func TestAnalyzeEntryLoadFailure(t *testing.T) {
	svc, llm := newTestService(t, &fakeEntries{err: errors.New("db down")}, &fakeStore{})

	_, err := svc.Analyze(context.Background(), 7, "")

	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusOf(err))
	assert.Zero(t, llm.hits)
}

func TestLatest(t *testing.T) {
	store := &fakeStore{}
	svc, _ := newTestService(t, &fakeEntries{entries: weekEntries()}, store)

	res, err := svc.Latest(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, res)

	_, err = svc.Analyze(context.Background(), 7, "")
	require.NoError(t, err)

	res, err = svc.Latest(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 2, res.TotalEntries)
}
