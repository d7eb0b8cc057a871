package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/providers/torznab"
)

var (
	ErrDuplicateProvider = errors.New("provider id already registered")
	ErrNotFound          = errors.New("provider definition not found")
)

// DefinitionStore persists user-defined Torznab providers.
type DefinitionStore interface {
	ListDefinitions(ctx context.Context) ([]domain.ProviderDefinition, error)
	SaveDefinition(ctx context.Context, def domain.ProviderDefinition) error
	DeleteDefinition(ctx context.Context, id string) error
}

// Registry exposes the built-in providers followed by the user-defined ones.
type Registry struct {
	builtins []domain.Provider
	store    DefinitionStore
	logger   *slog.Logger
	now      func() time.Time
}

func New(store DefinitionStore, logger *slog.Logger, builtins ...domain.Provider) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		builtins: builtins,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *Registry) AllProviders(ctx context.Context) ([]domain.Provider, error) {
	defs, err := r.store.ListDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list provider definitions: %w", err)
	}

	providers := make([]domain.Provider, 0, len(r.builtins)+len(defs))
	seen := make(map[string]struct{}, len(r.builtins)+len(defs))
	for _, p := range r.builtins {
		seen[strings.ToLower(p.ID())] = struct{}{}
		providers = append(providers, p)
	}
	for _, def := range defs {
		def = def.Normalize()
		if _, dup := seen[def.ID]; dup {
			r.logger.Warn("skipping provider definition with duplicate id", slog.String("provider", def.ID))
			continue
		}
		if err := def.Validate(); err != nil {
			r.logger.Warn("skipping invalid provider definition", slog.String("provider", def.ID), slog.String("error", err.Error()))
			continue
		}
		seen[def.ID] = struct{}{}
		providers = append(providers, torznab.NewProvider(def))
	}
	return providers, nil
}

func (r *Registry) Definitions(ctx context.Context) ([]domain.ProviderDefinition, error) {
	defs, err := r.store.ListDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list provider definitions: %w", err)
	}
	return defs, nil
}

// AddDefinition validates def and stores it. Ids must be unique across
// built-in and user-defined providers.
func (r *Registry) AddDefinition(ctx context.Context, def domain.ProviderDefinition) (domain.ProviderDefinition, error) {
	def = def.Normalize()
	if err := def.Validate(); err != nil {
		return domain.ProviderDefinition{}, err
	}
	for _, p := range r.builtins {
		if strings.EqualFold(p.ID(), def.ID) {
			return domain.ProviderDefinition{}, fmt.Errorf("%w: %s", ErrDuplicateProvider, def.ID)
		}
	}
	existing, err := r.store.ListDefinitions(ctx)
	if err != nil {
		return domain.ProviderDefinition{}, fmt.Errorf("list provider definitions: %w", err)
	}
	for _, other := range existing {
		if strings.EqualFold(other.ID, def.ID) {
			return domain.ProviderDefinition{}, fmt.Errorf("%w: %s", ErrDuplicateProvider, def.ID)
		}
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = r.now().UTC()
	}
	if err := r.store.SaveDefinition(ctx, def); err != nil {
		return domain.ProviderDefinition{}, err
	}
	r.logger.Info("provider definition added", slog.String("provider", def.ID), slog.String("category", string(def.Category)))
	return def, nil
}

func (r *Registry) RemoveDefinition(ctx context.Context, id string) error {
	id = strings.ToLower(strings.TrimSpace(id))
	if err := r.store.DeleteDefinition(ctx, id); err != nil {
		return err
	}
	r.logger.Info("provider definition removed", slog.String("provider", id))
	return nil
}

// MemoryStore keeps definitions in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]domain.ProviderDefinition
}

func NewMemoryStore(defs ...domain.ProviderDefinition) *MemoryStore {
	s := &MemoryStore{defs: make(map[string]domain.ProviderDefinition, len(defs))}
	for _, def := range defs {
		def = def.Normalize()
		s.defs[def.ID] = def
	}
	return s
}

func (s *MemoryStore) ListDefinitions(ctx context.Context) ([]domain.ProviderDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ProviderDefinition, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SaveDefinition(ctx context.Context, def domain.ProviderDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ID] = def
	return nil
}

func (s *MemoryStore) DeleteDefinition(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[id]; !ok {
		return ErrNotFound
	}
	delete(s.defs, id)
	return nil
}
