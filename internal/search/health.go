package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/metrics"
)

const (
	providerBlockBase = 2 * time.Minute
	providerBlockMax  = 15 * time.Minute
)

var errProviderUnhealthy = errors.New("provider temporarily unhealthy")

type providerHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

// HealthTracker records per-provider outcomes across searches. With a positive
// failure threshold it also short-circuits providers that keep failing.
type HealthTracker struct {
	threshold int
	mu        sync.Mutex
	health    map[string]*providerHealth
}

func NewHealthTracker(failureThreshold int) *HealthTracker {
	if failureThreshold < 0 {
		failureThreshold = 0
	}
	return &HealthTracker{
		threshold: failureThreshold,
		health:    make(map[string]*providerHealth),
	}
}

func (h *HealthTracker) isBlocked(providerID string, now time.Time) (bool, time.Time, string) {
	if h == nil || h.threshold == 0 {
		return false, time.Time{}, ""
	}
	key := strings.ToLower(strings.TrimSpace(providerID))

	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.health[key]
	if state == nil {
		return false, time.Time{}, ""
	}
	if state.blockedUntil.IsZero() || now.After(state.blockedUntil) {
		return false, time.Time{}, ""
	}
	return true, state.blockedUntil, state.lastError
}

func (h *HealthTracker) record(providerID string, err error, latency time.Duration, now time.Time) {
	if h == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(providerID))
	if key == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.health[key]
	if state == nil {
		state = &providerHealth{}
		h.health[key] = state
	}
	state.totalRequests++
	if latency > 0 {
		state.lastLatency = latency
		metrics.ProviderRequestDuration.WithLabelValues(key).Observe(latency.Seconds())
	}
	timedOut := isTimeoutLikeError(err)
	if timedOut {
		state.timeoutCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.ProviderRequestsTotal.WithLabelValues(key, "ok").Inc()
		metrics.ProviderAvailable.WithLabelValues(key).Set(1)
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	status := "error"
	if timedOut {
		status = "timeout"
	}
	metrics.ProviderRequestsTotal.WithLabelValues(key, status).Inc()

	if h.threshold > 0 && state.consecutiveFailures >= h.threshold {
		state.blockedUntil = now.Add(h.blockDuration(state.consecutiveFailures))
		metrics.ProviderAvailable.WithLabelValues(key).Set(0)
	}
}

// blockDuration is base × 2^(failures - threshold), capped at providerBlockMax.
func (h *HealthTracker) blockDuration(consecutiveFailures int) time.Duration {
	exponent := consecutiveFailures - h.threshold
	if exponent < 0 {
		exponent = 0
	}
	d := providerBlockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d > providerBlockMax {
			return providerBlockMax
		}
	}
	return d
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}

// Diagnostics reports the recorded state of every provider in infos, sorted by id.
func (h *HealthTracker) Diagnostics(infos []domain.ProviderInfo) []domain.ProviderDiagnostics {
	if len(infos) == 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	items := make([]domain.ProviderDiagnostics, 0, len(infos))
	for _, info := range infos {
		item := domain.ProviderDiagnostics{
			ID:       info.ID,
			Name:     info.Name,
			Category: info.Category,
		}
		if state := h.health[strings.ToLower(strings.TrimSpace(info.ID))]; state != nil {
			item.ConsecutiveFailures = state.consecutiveFailures
			if !state.blockedUntil.IsZero() {
				item.BlockedUntil = state.blockedUntil.UTC().Format(time.RFC3339)
			}
			item.LastError = state.lastError
			if !state.lastSuccessAt.IsZero() {
				item.LastSuccessAt = state.lastSuccessAt.UTC().Format(time.RFC3339)
			}
			if !state.lastFailureAt.IsZero() {
				item.LastFailureAt = state.lastFailureAt.UTC().Format(time.RFC3339)
			}
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
			item.TimeoutCount = state.timeoutCount
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return strings.ToLower(items[i].ID) < strings.ToLower(items[j].ID)
	})
	return items
}
