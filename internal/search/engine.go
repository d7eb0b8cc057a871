package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/metrics"
	"torrentstream/aggregator/internal/telemetry"
)

// Engine fans one query out to a set of providers and streams their outcomes.
type Engine struct {
	logger *slog.Logger
	health *HealthTracker
	tracer trace.Tracer
	now    func() time.Time

	mu   sync.Mutex
	last *ResultCache
}

type EngineOption func(*Engine)

func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithHealthTracker(tracker *HealthTracker) EngineOption {
	return func(e *Engine) {
		if tracker != nil {
			e.health = tracker
		}
	}
}

func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		logger: slog.Default(),
		health: NewHealthTracker(0),
		tracer: telemetry.Tracer(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search starts one task per provider and returns immediately. Every task
// emits exactly one outcome, in order of completion; the outcome channel is
// closed once all tasks are done. Outcomes produced after ctx is cancelled or
// the stream is closed are dropped.
func (e *Engine) Search(ctx context.Context, query string, category domain.Category, client domain.NetworkClient, providers []domain.Provider) *Stream {
	cache := newResultCache()
	e.mu.Lock()
	e.last = cache
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	out := make(chan Outcome, len(providers))
	stream := newStream(out, cancel, cache)

	if len(providers) == 0 {
		close(out)
		cancel()
		return stream
	}

	// Tasks report into results; forward owns out so that Close releases
	// the consumer even while a provider ignores cancellation.
	results := make(chan Outcome, len(providers))
	go forward(stream, results, out)

	encoded := url.QueryEscape(query)
	sc := domain.SearchContext{Category: category, Client: client}

	runCtx, span := e.tracer.Start(runCtx, "search",
		trace.WithAttributes(
			attribute.String("search.query", query),
			attribute.String("search.category", string(category)),
			attribute.Int("search.providers", len(providers)),
		))

	ids := make([]string, 0, len(providers))
	for _, provider := range providers {
		ids = append(ids, provider.ID())
	}
	startedAt := e.now()
	e.logger.Info("search started",
		slog.String("query", query),
		slog.String("category", string(category)),
		slog.Any("providers", ids),
	)

	var wg sync.WaitGroup
	for _, provider := range providers {
		wg.Add(1)
		go func(current domain.Provider) {
			defer wg.Done()
			outcome := e.runProvider(runCtx, current, encoded, sc)
			if runCtx.Err() != nil {
				return
			}
			if !outcome.Failed() {
				cache.add(outcome.Torrents)
				metrics.OutcomesTotal.WithLabelValues("success").Inc()
			} else {
				metrics.OutcomesTotal.WithLabelValues("failure").Inc()
			}
			// buffered to len(providers); a task sends at most once
			results <- outcome
		}(provider)
	}

	go func() {
		wg.Wait()
		close(results)
		span.End()
		e.logger.Info("search completed",
			slog.String("query", query),
			slog.Int("results", cache.Len()),
			slog.Int64("elapsedMs", e.now().Sub(startedAt).Milliseconds()),
			slog.Bool("cancelled", runCtx.Err() != nil),
		)
		cancel()
	}()

	return stream
}

func (e *Engine) runProvider(ctx context.Context, provider domain.Provider, query string, sc domain.SearchContext) (outcome Outcome) {
	info := provider.Info()
	if info.ID == "" {
		info.ID = provider.ID()
	}

	now := e.now()
	if blocked, until, lastErr := e.health.isBlocked(info.ID, now); blocked {
		e.logger.Warn("provider blocked",
			slog.String("provider", info.ID),
			slog.String("until", until.UTC().Format(time.RFC3339)),
			slog.String("lastError", lastErr),
		)
		return failureOutcome(info, fmt.Errorf("%w until %s: %s", errProviderUnhealthy, until.UTC().Format(time.RFC3339), lastErr))
	}

	ctx, span := e.tracer.Start(ctx, "provider.search",
		trace.WithAttributes(attribute.String("provider.id", info.ID)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("provider panic: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.Error("provider panicked", slog.String("provider", info.ID), slog.Any("panic", r))
			e.health.record(info.ID, err, e.now().Sub(now), e.now())
			outcome = failureOutcome(info, err)
		}
	}()

	items, err := provider.Search(ctx, query, sc)
	elapsed := e.now().Sub(now)
	if ctx.Err() != nil {
		// cancelled searches are not provider failures
		return failureOutcome(info, ctx.Err())
	}
	e.health.record(info.ID, err, elapsed, e.now())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("provider failed",
			slog.String("provider", info.ID),
			slog.Int64("elapsedMs", elapsed.Milliseconds()),
			slog.String("error", err.Error()),
		)
		return failureOutcome(info, err)
	}

	span.SetAttributes(attribute.Int("provider.results", len(items)))
	e.logger.Info("provider completed",
		slog.String("provider", info.ID),
		slog.Int("results", len(items)),
		slog.Int64("elapsedMs", elapsed.Milliseconds()),
	)
	return successOutcome(info, items)
}

func forward(stream *Stream, in <-chan Outcome, out chan<- Outcome) {
	defer close(out)
	for {
		select {
		case <-stream.done:
			return
		case outcome, ok := <-in:
			if !ok {
				return
			}
			select {
			case <-stream.done:
				return
			default:
			}
			select {
			case <-stream.done:
				return
			case out <- outcome:
			}
		}
	}
}

// LastResults returns the result cache of the most recently started search.
func (e *Engine) LastResults() []domain.Torrent {
	e.mu.Lock()
	cache := e.last
	e.mu.Unlock()
	return cache.Snapshot()
}

func (e *Engine) ProviderDiagnostics(infos []domain.ProviderInfo) []domain.ProviderDiagnostics {
	return e.health.Diagnostics(infos)
}
