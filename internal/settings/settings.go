package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrInvalidMaxResults = errors.New("max results must be >= 0")

const (
	fieldEnabledProviders = "enabledProviders"
	fieldMaxResults       = "maxResults"
)

// Store holds the user's search preferences. An enabled set that was never
// configured means every provider is enabled; max results 0 means unlimited,
// whether stored explicitly or never set.
type Store interface {
	EnabledProviderIDs(ctx context.Context) (ids []string, configured bool, err error)
	MaxResults(ctx context.Context) (n int, configured bool, err error)
	// SetEnabledProviderIDs with nil ids resets the set to "all enabled".
	SetEnabledProviderIDs(ctx context.Context, ids []string) error
	SetMaxResults(ctx context.Context, n int) error
}

// Snapshot is the JSON shape used by the HTTP API and the CLI.
type Snapshot struct {
	EnabledProviders []string `json:"enabledProviders"`
	AllEnabled       bool     `json:"allEnabled"`
	MaxResults       int      `json:"maxResults"`
}

func Load(ctx context.Context, store Store) (Snapshot, error) {
	ids, configured, err := store.EnabledProviderIDs(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	maxResults, _, err := store.MaxResults(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if ids == nil {
		ids = []string{}
	}
	return Snapshot{EnabledProviders: ids, AllEnabled: !configured, MaxResults: maxResults}, nil
}

func normalizeIDs(ids []string) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func validateMaxResults(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxResults, n)
	}
	return nil
}

// MemoryStore keeps settings in process memory.
type MemoryStore struct {
	mu            sync.RWMutex
	enabled       []string
	configured    bool
	maxResults    int
	maxConfigured bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) EnabledProviderIDs(ctx context.Context) ([]string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.configured {
		return nil, false, nil
	}
	return append([]string{}, s.enabled...), true, nil
}

func (s *MemoryStore) MaxResults(ctx context.Context) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxResults, s.maxConfigured, nil
}

func (s *MemoryStore) SetEnabledProviderIDs(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = normalizeIDs(ids)
	s.configured = ids != nil
	return nil
}

func (s *MemoryStore) SetMaxResults(ctx context.Context, n int) error {
	if err := validateMaxResults(n); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxResults = n
	s.maxConfigured = true
	return nil
}

// WithDefaultMaxResults reports fallback until a limit is stored. An explicit
// 0 stays unlimited.
func WithDefaultMaxResults(store Store, fallback int) Store {
	if fallback <= 0 {
		return store
	}
	return &defaultMaxResults{Store: store, fallback: fallback}
}

type defaultMaxResults struct {
	Store
	fallback int
}

func (d *defaultMaxResults) MaxResults(ctx context.Context) (int, bool, error) {
	n, configured, err := d.Store.MaxResults(ctx)
	if err != nil {
		return 0, false, err
	}
	if !configured {
		return d.fallback, false, nil
	}
	return n, true, nil
}
