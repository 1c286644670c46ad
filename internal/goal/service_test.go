package goal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/flowkat/internal/domain"
	apperrors "github.com/Proton-105/flowkat/internal/errors"
)

type mockGoals struct {
	mock.Mock
}

func (m *mockGoals) Get(ctx context.Context, userID int64, year, month int) (*domain.MonthlyGoal, error) {
	args := m.Called(ctx, userID, year, month)
	goal, _ := args.Get(0).(*domain.MonthlyGoal)
	return goal, args.Error(1)
}

func (m *mockGoals) Upsert(ctx context.Context, goal *domain.MonthlyGoal) error {
	args := m.Called(ctx, goal)
	if args.Error(0) == nil {
		goal.ID = 9
	}
	return args.Error(0)
}

type mockEntries struct {
	mock.Mock
}

func (m *mockEntries) ListRange(ctx context.Context, userID int64, from, to time.Time) ([]domain.Entry, error) {
	args := m.Called(ctx, userID, from, to)
	entries, _ := args.Get(0).([]domain.Entry)
	return entries, args.Error(1)
}

func newTestService(goals Store, entries EntryRange) *Service {
	svc := NewService(goals, entries, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC) }
	return svc
}

func floatPtr(v float64) *float64 {
	return &v
}

func TestGetDefaultsToCurrentMonth(t *testing.T) {
	goals := &mockGoals{}
	entries := &mockEntries{}
	svc := newTestService(goals, entries)

	goals.On("Get", mock.Anything, int64(1), 2024, 5).
		Return(&domain.MonthlyGoal{ID: 3, UserID: 1, Year: 2024, Month: 5, GoalScore: 4}, nil)
	entries.On("ListRange", mock.Anything, int64(1),
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	).Return([]domain.Entry{{Score: 4}, {Score: 3}, {Score: 4}}, nil)

	view, err := svc.Get(context.Background(), 1, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, 4.0, view.GoalScore)
	require.NotNil(t, view.Progress)
	assert.InDelta(t, 3.67, *view.Progress, 1e-9)

	goals.AssertExpectations(t)
	entries.AssertExpectations(t)
}

func TestGetMissingGoal(t *testing.T) {
	goals := &mockGoals{}
	svc := newTestService(goals, nil)

	goals.On("Get", mock.Anything, int64(1), 2023, 12).Return(nil, domain.ErrNotFound)

	view, err := svc.Get(context.Background(), 1, 2023, 12)
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestSaveValidation(t *testing.T) {
	svc := newTestService(&mockGoals{}, nil)

	tests := []struct {
		name string
		in   Input
	}{
		{name: "missing score", in: Input{Year: 2024, Month: 5}},
		{name: "missing month", in: Input{Year: 2024, GoalScore: floatPtr(3)}},
		{name: "month too big", in: Input{Year: 2024, Month: 13, GoalScore: floatPtr(3)}},
		{name: "negative score", in: Input{Year: 2024, Month: 5, GoalScore: floatPtr(-0.5)}},
		{name: "score above five", in: Input{Year: 2024, Month: 5, GoalScore: floatPtr(5.1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Save(context.Background(), 1, tt.in)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, apperrors.StatusOf(err))
		})
	}
}

func TestSaveBoundaries(t *testing.T) {
	goals := &mockGoals{}
	entries := &mockEntries{}
	svc := newTestService(goals, entries)

	goals.On("Upsert", mock.Anything, mock.AnythingOfType("*domain.MonthlyGoal")).Return(nil)
	entries.On("ListRange", mock.Anything, int64(1), mock.Anything, mock.Anything).Return([]domain.Entry{}, nil)

	for _, score := range []float64{0, 5, 3.5} {
		view, err := svc.Save(context.Background(), 1, Input{Year: 2024, Month: 12, GoalScore: floatPtr(score)})
		require.NoError(t, err)
		assert.Equal(t, int64(9), view.ID)
		assert.Equal(t, score, view.GoalScore)
		assert.Nil(t, view.Progress)
	}
}

func TestSaveStoreError(t *testing.T) {
	goals := &mockGoals{}
	svc := newTestService(goals, nil)

	goals.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("deadlock"))

	_, err := svc.Save(context.Background(), 1, Input{Year: 2024, Month: 1, GoalScore: floatPtr(4)})
	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusOf(err))
}
