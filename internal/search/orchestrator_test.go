package search

import (
	"context"
	"errors"
	"testing"

	"torrentstream/aggregator/internal/domain"
)

type fakeRegistry struct {
	providers []domain.Provider
	err       error
}

func (r *fakeRegistry) AllProviders(ctx context.Context) ([]domain.Provider, error) {
	return r.providers, r.err
}

type fakeSettings struct {
	enabled    []string
	configured bool
	maxResults int
	err        error
}

func (s *fakeSettings) EnabledProviderIDs(ctx context.Context) ([]string, bool, error) {
	return s.enabled, s.configured, s.err
}

func (s *fakeSettings) MaxResults(ctx context.Context) (int, bool, error) {
	return s.maxResults, s.maxResults != 0, s.err
}

func newTestOrchestrator(reg *fakeRegistry, settings *fakeSettings) *Orchestrator {
	return NewOrchestrator(reg, settings, newTestEngine(), nil, nil)
}

func TestOrchestratorIntersectsCategoryAndEnabledSet(t *testing.T) {
	general := &fakeProvider{id: "general", items: torrents("g", 1)}
	anime := &fakeProvider{id: "anime", category: domain.CategoryAnime, items: torrents("a", 1)}
	movies := &fakeProvider{id: "movies", category: domain.CategoryMovies, items: torrents("m", 1)}
	disabled := &fakeProvider{id: "disabled", category: domain.CategoryAnime, items: torrents("d", 1)}

	reg := &fakeRegistry{providers: providers(general, anime, movies, disabled)}
	settings := &fakeSettings{enabled: []string{"General", "anime", "movies"}, configured: true}

	stream, err := newTestOrchestrator(reg, settings).Search(context.Background(), "naruto", domain.CategoryAnime)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	agg := Drain(context.Background(), stream)
	if len(agg.Successes) != 2 {
		t.Fatalf("successes = %d, want 2", len(agg.Successes))
	}
	if movies.hits.Load() != 0 || disabled.hits.Load() != 0 {
		t.Error("unselected providers were queried")
	}
}

func TestOrchestratorUnconfiguredSettingsEnableAll(t *testing.T) {
	reg := &fakeRegistry{providers: providers(
		&fakeProvider{id: "a", items: torrents("a", 1)},
		&fakeProvider{id: "b", items: torrents("b", 1)},
	)}
	stream, err := newTestOrchestrator(reg, &fakeSettings{}).Search(context.Background(), "q", domain.CategoryAll)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if agg := Drain(context.Background(), stream); len(agg.Successes) != 2 {
		t.Errorf("successes = %d, want 2", len(agg.Successes))
	}
}

func TestOrchestratorEmptyEnabledSetYieldsEmptyStream(t *testing.T) {
	p := &fakeProvider{id: "a", items: torrents("a", 1)}
	settings := &fakeSettings{configured: true}
	stream, err := newTestOrchestrator(&fakeRegistry{providers: providers(p)}, settings).Search(context.Background(), "q", domain.CategoryAll)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := collect(t, stream); len(got) != 0 {
		t.Fatalf("outcomes = %d, want 0", len(got))
	}
	if p.hits.Load() != 0 {
		t.Error("disabled provider queried")
	}
}

func TestOrchestratorAppliesMaxResults(t *testing.T) {
	reg := &fakeRegistry{providers: providers(&fakeProvider{id: "a", items: torrents("a", 10)})}
	stream, err := newTestOrchestrator(reg, &fakeSettings{maxResults: 4}).Search(context.Background(), "q", domain.CategoryAll)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if agg := Drain(context.Background(), stream); len(agg.Successes) != 4 {
		t.Errorf("successes = %d, want 4", len(agg.Successes))
	}
}

func TestOrchestratorErrors(t *testing.T) {
	settingsErr := errors.New("settings unavailable")
	cases := []struct {
		name     string
		query    string
		category domain.Category
		reg      *fakeRegistry
		settings *fakeSettings
		want     error
	}{
		{"blank query", "   ", domain.CategoryAll, &fakeRegistry{}, &fakeSettings{}, ErrInvalidQuery},
		{"unknown category", "q", domain.Category("podcasts"), &fakeRegistry{}, &fakeSettings{}, domain.ErrUnknownCategory},
		{"settings failure", "q", domain.CategoryAll, &fakeRegistry{}, &fakeSettings{err: settingsErr}, settingsErr},
		{"negative max results", "q", domain.CategoryAll, &fakeRegistry{}, &fakeSettings{maxResults: -2}, ErrInvalidQuota},
		{"registry failure", "q", domain.CategoryAll, &fakeRegistry{err: settingsErr}, &fakeSettings{}, settingsErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stream, err := newTestOrchestrator(tc.reg, tc.settings).Search(context.Background(), tc.query, tc.category)
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
			if stream != nil {
				t.Error("stream returned alongside error")
			}
		})
	}
}

func TestOrchestratorProviders(t *testing.T) {
	reg := &fakeRegistry{providers: providers(
		&fakeProvider{id: "a"},
		&fakeProvider{id: "b", category: domain.CategoryPorn},
	)}
	items, err := newTestOrchestrator(reg, &fakeSettings{enabled: []string{"b"}, configured: true}).Providers(context.Background())
	if err != nil {
		t.Fatalf("Providers: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Enabled || !items[1].Enabled {
		t.Errorf("enabled flags = %v, %v", items[0].Enabled, items[1].Enabled)
	}
	if items[0].NSFW || !items[1].NSFW {
		t.Errorf("nsfw flags = %v, %v", items[0].NSFW, items[1].NSFW)
	}
}
