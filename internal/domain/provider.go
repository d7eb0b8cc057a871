package domain

import (
	"context"
	"net/http"
)

type ProviderKind string

const (
	ProviderKindBuiltin ProviderKind = "builtin"
	ProviderKindTorznab ProviderKind = "torznab"
)

type ProviderInfo struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	URL      string       `json:"url"`
	Category Category     `json:"category"`
	Kind     ProviderKind `json:"kind"`
}

func (i ProviderInfo) NSFW() bool {
	return i.Category.IsNSFW()
}

// NetworkClient is the HTTP capability shared by every provider of a search.
// Implementations must be safe for concurrent use.
type NetworkClient interface {
	Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error)
}

// SearchContext is built once per search and shared read-only by all provider tasks.
type SearchContext struct {
	Category Category
	Client   NetworkClient
}

// Provider is one remote source of torrent metadata. Search receives the
// query already percent-encoded and returns either the full result list or an error.
type Provider interface {
	ID() string
	Info() ProviderInfo
	Search(ctx context.Context, query string, sc SearchContext) ([]Torrent, error)
}

type ProviderDiagnostics struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Category            Category `json:"category"`
	ConsecutiveFailures int      `json:"consecutiveFailures"`
	BlockedUntil        string   `json:"blockedUntil,omitempty"`
	LastError           string   `json:"lastError,omitempty"`
	LastSuccessAt       string   `json:"lastSuccessAt,omitempty"`
	LastFailureAt       string   `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64    `json:"lastLatencyMs,omitempty"`
	TotalRequests       int64    `json:"totalRequests"`
	TotalFailures       int64    `json:"totalFailures"`
	TimeoutCount        int64    `json:"timeoutCount"`
}
