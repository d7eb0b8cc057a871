package piratebay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/netclient"
)

func TestParseAPIItems(t *testing.T) {
	payload := []byte(`[
		{"id":"1","name":"Ubuntu ISO","info_hash":"ABCDEF1234567890ABCDEF1234567890ABCDEF12","size":"2147483648","seeders":"1200","leechers":"80","added":"1700000000","category":"303"}
	]`)

	items, err := parseAPIItems(payload)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("unexpected items count: %d", len(items))
	}
}

func TestParseAPIItemsRejectsGarbage(t *testing.T) {
	if _, err := parseAPIItems([]byte("<html>")); err == nil {
		t.Fatal("expected error for non-json payload")
	}
}

func TestToResult(t *testing.T) {
	provider := NewProvider(Config{})
	result, ok := provider.toResult(apiItem{
		ID:       "42",
		Name:     "Ubuntu ISO",
		InfoHash: "ABCDEF1234567890ABCDEF1234567890ABCDEF12",
		Size:     "2147483648",
		Seeders:  "1200",
		Leechers: "80",
		Added:    "1700000000",
		Category: "303",
	})
	if !ok {
		t.Fatal("expected valid result")
	}
	if result.InfoHash != "abcdef1234567890abcdef1234567890abcdef12" || result.MagnetURI != "" {
		t.Fatalf("unexpected identity: %#v", result)
	}
	if result.Size != "2.0 GB" || result.Seeders != 1200 || result.Peers != 80 {
		t.Fatalf("unexpected counters: %#v", result)
	}
	if result.Category != domain.CategoryApps {
		t.Errorf("category = %q", result.Category)
	}
	if result.DescriptionURL != "https://apibay.org/description.php?id=42" {
		t.Errorf("description url = %q", result.DescriptionURL)
	}
	if err := result.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestToResultSkipsEmptyMarker(t *testing.T) {
	provider := NewProvider(Config{})
	if _, ok := provider.toResult(apiItem{Name: "No results returned", InfoHash: emptyInfoHash, Size: "0"}); ok {
		t.Fatal("placeholder row should be skipped")
	}
}

func TestCategoryFromCode(t *testing.T) {
	cases := map[string]domain.Category{
		"101": domain.CategoryMusic,
		"201": domain.CategoryMovies,
		"205": domain.CategorySeries,
		"301": domain.CategoryApps,
		"401": domain.CategoryGames,
		"501": domain.CategoryPorn,
		"601": domain.CategoryBooks,
		"699": domain.CategoryOther,
		"":    "",
	}
	for code, want := range cases {
		if got := categoryFromCode(code); got != want {
			t.Errorf("categoryFromCode(%q) = %q, want %q", code, got, want)
		}
	}
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "big buck" {
			t.Errorf("q = %q", got)
		}
		if got := r.URL.Query().Get("cat"); got != "201" {
			t.Errorf("cat = %q", got)
		}
		_, _ = w.Write([]byte(`[
			{"id":"1","name":"Big Buck Bunny","info_hash":"AAAA","size":"1048576","seeders":"3","leechers":"1","added":"0","category":"207"},
			{"id":"0","name":"No results returned","info_hash":"0000000000000000000000000000000000000000","size":"0","seeders":"0","leechers":"0","added":"0","category":"0"}
		]`))
	}))
	defer srv.Close()

	provider := NewProvider(Config{Endpoint: srv.URL + "/q.php"})
	items, err := provider.Search(context.Background(), "big+buck", domain.SearchContext{
		Category: domain.CategoryMovies,
		Client:   netclient.New(netclient.Config{}),
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Big Buck Bunny" || items[0].Size != "1.0 MB" {
		t.Fatalf("items = %#v", items)
	}
}
