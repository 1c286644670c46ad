// Package insight produces weekly AI analyses of a user's journal.
package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Proton-105/flowkat/internal/domain"
	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/pkg/metrics"
)

const defaultWindowDays = 7

// EntryRange loads entries for the analysis window.
type EntryRange interface {
	ListRange(ctx context.Context, userID int64, from, to time.Time) ([]domain.Entry, error)
}

// Store caches the last analysis per user.
type Store interface {
	Get(ctx context.Context, userID int64) (*domain.AIAnalysis, error)
	Upsert(ctx context.Context, analysis *domain.AIAnalysis) error
}

// Result is returned to clients.
type Result struct {
	Analysis        string    `json:"analysis"`
	Recommendations []string  `json:"recommendations"`
	TotalEntries    int       `json:"total_entries"`
	Provider        string    `json:"provider,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

type provider struct {
	client  Completer
	breaker *apperrors.CircuitBreaker
}

// Service runs analyses through the configured providers.
type Service struct {
	entries         EntryRange
	store           Store
	providers       map[string]provider
	defaultProvider string
	windowDays      int
	loc             *time.Location
	log             *slog.Logger
	now             func() time.Time
}

// NewService constructs the insight service. Register providers with AddProvider.
func NewService(entries EntryRange, store Store, defaultProvider string, windowDays int, loc *time.Location, log *slog.Logger) *Service {
	if defaultProvider == "" {
		defaultProvider = ProviderOpenAI
	}
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		entries:         entries,
		store:           store,
		providers:       make(map[string]provider),
		defaultProvider: defaultProvider,
		windowDays:      windowDays,
		loc:             loc,
		log:             log.With(slog.String("component", "insight")),
		now:             time.Now,
	}
}

// AddProvider registers a completion client under name, each with its own breaker.
func (s *Service) AddProvider(name string, client Completer) {
	breaker := apperrors.NewCircuitBreaker(name, apperrors.WithStateChange(s.breakerChanged))
	s.providers[name] = provider{client: client, breaker: breaker}
}

// Analyze loads the trailing window, asks the provider for an analysis and
// caches the result. An empty window returns a fixed text without an upstream call.
func (s *Service) Analyze(ctx context.Context, userID int64, providerName string) (*Result, error) {
	providerName = strings.ToLower(strings.TrimSpace(providerName))
	if providerName == "" {
		providerName = s.defaultProvider
	}
	if providerName != ProviderOpenAI && providerName != ProviderPerplexity {
		return nil, apperrors.NewValidationError("Неизвестный провайдер: " + providerName)
	}

	today := domain.DateOf(s.now().In(s.loc))
	entries, err := s.entries.ListRange(ctx, userID, today.AddDate(0, 0, -s.windowDays), today.AddDate(0, 0, 1))
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	if len(entries) == 0 {
		return &Result{Analysis: NotEnoughData, Recommendations: []string{}}, nil
	}

	p, ok := s.providers[providerName]
	if !ok {
		return nil, apperrors.NewConfigError(fmt.Sprintf("ai.%s.api_key", providerName))
	}

	text, err := s.complete(ctx, providerName, p, BuildPrompt(entries))
	if err != nil {
		return nil, err
	}

	analysis := &domain.AIAnalysis{
		UserID:          userID,
		Provider:        providerName,
		Analysis:        text,
		Recommendations: ExtractRecommendations(text),
		TotalEntries:    len(entries),
	}
	if err := s.store.Upsert(ctx, analysis); err != nil {
		s.log.Error("failed to cache analysis", slog.Int64("user_id", userID), slog.Any("error", err))
		return nil, apperrors.NewDatabaseError(err)
	}

	s.log.Info("analysis generated",
		slog.Int64("user_id", userID),
		slog.String("provider", providerName),
		slog.Int("entries", len(entries)),
	)
	return toResult(analysis), nil
}

// Latest returns the cached analysis or nil.
func (s *Service) Latest(ctx context.Context, userID int64) (*Result, error) {
	analysis, err := s.store.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return toResult(analysis), nil
}

func (s *Service) complete(ctx context.Context, name string, p provider, prompt string) (string, error) {
	apiName := providerTitle(name)
	started := time.Now()

	var text string
	err := p.breaker.Call(func() error {
		var callErr error
		text, callErr = p.client.Complete(ctx, systemPrompt(name), prompt)
		return callErr
	})

	var upstream *UpstreamError
	switch {
	case err == nil:
		metrics.RecordAIRequest(name, "success", time.Since(started))
		return text, nil
	case apperrors.IsOpen(err):
		metrics.RecordAIRequest(name, "circuit_open", time.Since(started))
		return "", apperrors.NewExternalAPIError(apiName, "", err)
	case errors.As(err, &upstream):
		metrics.RecordAIRequest(name, fmt.Sprintf("http_%d", upstream.Status), time.Since(started))
		s.log.Warn("provider returned error", slog.String("provider", name), slog.Int("status", upstream.Status))
		return "", apperrors.NewExternalAPIError(apiName, fmt.Sprintf("%d %s", upstream.Status, upstream.Body), err)
	default:
		metrics.RecordAIRequest(name, "error", time.Since(started))
		s.log.Warn("provider call failed", slog.String("provider", name), slog.Any("error", err))
		return "", apperrors.NewExternalAPIError(apiName, err.Error(), err)
	}
}

func (s *Service) breakerChanged(name string, from, to apperrors.State) {
	metrics.SetBreakerState(name, int(to))
	s.log.Warn("provider circuit breaker changed state",
		slog.String("provider", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
}

func providerTitle(name string) string {
	switch name {
	case ProviderPerplexity:
		return "Perplexity"
	default:
		return "OpenAI"
	}
}

func toResult(a *domain.AIAnalysis) *Result {
	recs := a.Recommendations
	if recs == nil {
		recs = []string{}
	}
	return &Result{
		Analysis:        a.Analysis,
		Recommendations: recs,
		TotalEntries:    a.TotalEntries,
		Provider:        a.Provider,
		UpdatedAt:       a.UpdatedAt,
	}
}
