package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"torrentstream/aggregator/internal/app"
	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/settings"
)

type cannedProvider struct {
	id       string
	category domain.Category
	items    []domain.Torrent
	err      error
}

func (p *cannedProvider) ID() string { return p.id }

func (p *cannedProvider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{ID: p.id, Name: p.id, Category: p.category, Kind: domain.ProviderKindBuiltin}
}

func (p *cannedProvider) Search(ctx context.Context, query string, sc domain.SearchContext) ([]domain.Torrent, error) {
	return p.items, p.err
}

func testEnvironment(t *testing.T) *environment {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.db")
	providers := []domain.Provider{
		&cannedProvider{id: "alpha", category: domain.CategoryAll, items: []domain.Torrent{
			{Name: "Debian", Size: "600.0 MB", Seeders: 10, Peers: 2, ProviderID: "alpha", InfoHash: "AAAA"},
			{Name: "Arch", Size: "800.0 MB", ProviderID: "alpha", MagnetURI: "magnet:?xt=urn:btih:BBBB"},
		}},
		&cannedProvider{id: "beta", category: domain.CategoryAnime, err: errors.New("boom")},
	}
	return &environment{
		loadConfig: func() (app.Config, error) {
			return app.Config{SettingsPath: path}, nil
		},
		providers: func(app.Config) []domain.Provider { return providers },
		client:    func(app.Config) domain.NetworkClient { return nil },
		openSettings: func(cfg app.Config) (settings.Store, func() error, error) {
			store, err := settings.OpenBoltStore(cfg.SettingsPath)
			if err != nil {
				return nil, nil, err
			}
			return store, store.Close, nil
		},
	}
}

func run(t *testing.T, env *environment, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(env)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSearchPrintsOutcomesAndSummary(t *testing.T) {
	env := testEnvironment(t)
	out, err := run(t, env, "search", "linux", "iso")
	if err != nil {
		t.Fatalf("search: %v\n%s", err, out)
	}
	for _, want := range []string{
		"[alpha] 2 results",
		"magnet:?xt=urn:btih:AAAA&tr=",
		"Arch | 800.0 MB | S:0 P:0 (dead)",
		"[beta] failed",
		"2 results, 1 of 2 providers failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSearchJSONAndCategory(t *testing.T) {
	env := testEnvironment(t)
	out, err := run(t, env, "search", "--json", "--category", "movies", "x")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the general provider for movies, got %d lines:\n%s", len(lines), out)
	}
	var line outcomeLine
	if err := json.Unmarshal([]byte(lines[0]), &line); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if line.Provider != "alpha" || line.Status != "ok" || len(line.Items) != 2 {
		t.Fatalf("unexpected line %+v", line)
	}
}

func TestSearchRejectsUnknownCategory(t *testing.T) {
	if _, err := run(t, testEnvironment(t), "search", "-c", "cooking", "x"); !errors.Is(err, domain.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestSettingsSetAndShow(t *testing.T) {
	env := testEnvironment(t)
	if _, err := run(t, env, "settings", "set", "--enable", "alpha", "--max-results", "1"); err != nil {
		t.Fatalf("settings set: %v", err)
	}

	out, err := run(t, env, "settings", "show")
	if err != nil {
		t.Fatalf("settings show: %v", err)
	}
	var snapshot settings.Snapshot
	if err := json.Unmarshal([]byte(out), &snapshot); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, out)
	}
	if snapshot.MaxResults != 1 || snapshot.AllEnabled || len(snapshot.EnabledProviders) != 1 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	out, err = run(t, env, "search", "x")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, "[alpha] 1 results") || strings.Contains(out, "[beta]") {
		t.Fatalf("settings not applied to search:\n%s", out)
	}
	if !strings.Contains(out, "1 results, 0 of 1 providers failed") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
}

func TestSettingsSetValidation(t *testing.T) {
	env := testEnvironment(t)
	if _, err := run(t, env, "settings", "set"); err == nil {
		t.Fatal("expected error without flags")
	}
	if _, err := run(t, env, "settings", "set", "--enable", "a", "--all"); err == nil {
		t.Fatal("expected error for conflicting flags")
	}
	if _, err := run(t, env, "settings", "set", "--max-results", "-3"); !errors.Is(err, settings.ErrInvalidMaxResults) {
		t.Fatalf("expected ErrInvalidMaxResults, got %v", err)
	}
}

func TestProvidersCommand(t *testing.T) {
	env := testEnvironment(t)
	if _, err := run(t, env, "settings", "set", "--enable", "beta"); err != nil {
		t.Fatalf("settings set: %v", err)
	}
	out, err := run(t, env, "providers")
	if err != nil {
		t.Fatalf("providers: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(lines[1], "alpha") || !strings.HasSuffix(strings.TrimSpace(lines[1]), "false") {
		t.Errorf("alpha should be disabled: %q", lines[1])
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[2]), "true") {
		t.Errorf("beta should be enabled: %q", lines[2])
	}
}

func TestCategoriesCommand(t *testing.T) {
	out, err := run(t, testEnvironment(t), "categories")
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if !strings.Contains(out, "porn (nsfw)") || !strings.Contains(out, "movies\n") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
