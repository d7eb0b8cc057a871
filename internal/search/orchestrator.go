package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/metrics"
)

var ErrInvalidQuery = errors.New("query is required")

type ProviderRegistry interface {
	AllProviders(ctx context.Context) ([]domain.Provider, error)
}

// SettingsReader exposes the user's provider and quota preferences.
// configured is false when the user never chose an enabled set, in which case
// every provider is enabled. A max-results of 0 means unlimited.
type SettingsReader interface {
	EnabledProviderIDs(ctx context.Context) (ids []string, configured bool, err error)
	MaxResults(ctx context.Context) (n int, configured bool, err error)
}

type ProviderStatus struct {
	domain.ProviderInfo
	Enabled bool `json:"enabled"`
	NSFW    bool `json:"nsfw"`
}

// Orchestrator combines registry, settings and engine into one search call.
type Orchestrator struct {
	registry ProviderRegistry
	settings SettingsReader
	engine   *Engine
	client   domain.NetworkClient
	logger   *slog.Logger
}

func NewOrchestrator(registry ProviderRegistry, settings SettingsReader, engine *Engine, client domain.NetworkClient, logger *slog.Logger) *Orchestrator {
	if engine == nil {
		engine = NewEngine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry: registry,
		settings: settings,
		engine:   engine,
		client:   client,
		logger:   logger,
	}
}

// Search reads the settings snapshot, selects the enabled providers able to
// serve category and returns the quota-bounded outcome stream. Errors are
// only returned before the search starts.
func (o *Orchestrator) Search(ctx context.Context, query string, category domain.Category) (*Stream, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidQuery
	}
	if category == "" {
		category = domain.CategoryAll
	}
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, category)
	}

	quota, err := o.quota(ctx)
	if err != nil {
		return nil, err
	}
	providers, err := o.effectiveProviders(ctx, category)
	if err != nil {
		return nil, err
	}

	metrics.SearchesTotal.WithLabelValues(string(category)).Inc()
	if len(providers) == 0 {
		o.logger.Info("search skipped: no enabled providers", slog.String("category", string(category)))
	}
	stream := o.engine.Search(ctx, query, category, o.client, providers)
	return quota.Apply(stream), nil
}

func (o *Orchestrator) quota(ctx context.Context) (Quota, error) {
	maxResults, _, err := o.settings.MaxResults(ctx)
	if err != nil {
		return Quota{}, fmt.Errorf("read max results: %w", err)
	}
	if maxResults == 0 {
		return Unlimited(), nil
	}
	return NewQuota(maxResults)
}

func (o *Orchestrator) effectiveProviders(ctx context.Context, category domain.Category) ([]domain.Provider, error) {
	all, err := o.registry.AllProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	enabled, configured, err := o.settings.EnabledProviderIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("read enabled providers: %w", err)
	}

	selected := SelectProviders(all, category)
	if !configured {
		return selected, nil
	}
	allowed := idSet(enabled)
	out := make([]domain.Provider, 0, len(selected))
	for _, provider := range selected {
		if _, ok := allowed[strings.ToLower(provider.ID())]; ok {
			out = append(out, provider)
		}
	}
	return out, nil
}

// Providers lists every registered provider with its enabled flag.
func (o *Orchestrator) Providers(ctx context.Context) ([]ProviderStatus, error) {
	all, err := o.registry.AllProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	enabled, configured, err := o.settings.EnabledProviderIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("read enabled providers: %w", err)
	}
	allowed := idSet(enabled)

	items := make([]ProviderStatus, 0, len(all))
	for _, provider := range all {
		info := provider.Info()
		_, on := allowed[strings.ToLower(provider.ID())]
		items = append(items, ProviderStatus{
			ProviderInfo: info,
			Enabled:      !configured || on,
			NSFW:         info.NSFW(),
		})
	}
	return items, nil
}

func (o *Orchestrator) ProviderDiagnostics(ctx context.Context) ([]domain.ProviderDiagnostics, error) {
	all, err := o.registry.AllProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	infos := make([]domain.ProviderInfo, 0, len(all))
	for _, provider := range all {
		infos = append(infos, provider.Info())
	}
	return o.engine.ProviderDiagnostics(infos), nil
}

// LastResults is the result cache of the most recent search.
func (o *Orchestrator) LastResults() []domain.Torrent {
	return o.engine.LastResults()
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}
