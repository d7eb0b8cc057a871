package search

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"torrentstream/aggregator/internal/domain"
)

type fakeProvider struct {
	id       string
	category domain.Category
	items    []domain.Torrent
	err      error
	delay    time.Duration
	gate     chan struct{}
	hits     atomic.Int32
	lastSeen atomic.Value
}

func (p *fakeProvider) ID() string { return p.id }

func (p *fakeProvider) Info() domain.ProviderInfo {
	category := p.category
	if category == "" {
		category = domain.CategoryAll
	}
	return domain.ProviderInfo{
		ID:       p.id,
		Name:     "Provider " + p.id,
		URL:      "https://" + p.id + ".example",
		Category: category,
		Kind:     domain.ProviderKindBuiltin,
	}
}

func (p *fakeProvider) Search(ctx context.Context, query string, sc domain.SearchContext) ([]domain.Torrent, error) {
	p.hits.Add(1)
	p.lastSeen.Store(query)
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return append([]domain.Torrent(nil), p.items...), nil
}

// stubbornProvider ignores cancellation and reports results anyway.
type stubbornProvider struct {
	id    string
	items []domain.Torrent
}

func (p *stubbornProvider) ID() string { return p.id }

func (p *stubbornProvider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{ID: p.id, Name: p.id, Category: domain.CategoryAll}
}

func (p *stubbornProvider) Search(ctx context.Context, query string, sc domain.SearchContext) ([]domain.Torrent, error) {
	<-ctx.Done()
	return p.items, nil
}

// deafProvider never looks at ctx; it returns only once release is closed.
type deafProvider struct {
	id      string
	release chan struct{}
}

func (p *deafProvider) ID() string { return p.id }

func (p *deafProvider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{ID: p.id, Name: p.id, Category: domain.CategoryAll}
}

func (p *deafProvider) Search(ctx context.Context, query string, sc domain.SearchContext) ([]domain.Torrent, error) {
	<-p.release
	return torrents(p.id, 1), nil
}

type panicProvider struct {
	id string
}

func (p *panicProvider) ID() string { return p.id }

func (p *panicProvider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{ID: p.id, Name: p.id, Category: domain.CategoryAll}
}

func (p *panicProvider) Search(ctx context.Context, query string, sc domain.SearchContext) ([]domain.Torrent, error) {
	panic("boom")
}

func torrents(provider string, n int) []domain.Torrent {
	out := make([]domain.Torrent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Torrent{
			Name:       fmt.Sprintf("%s-%d", provider, i),
			Size:       "1.0 GB",
			Seeders:    i,
			ProviderID: provider,
			InfoHash:   fmt.Sprintf("%s%04d", provider, i),
		})
	}
	return out
}

func providers(ps ...domain.Provider) []domain.Provider {
	return ps
}
