package yts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/netclient"
)

const samplePayload = `{
  "status": "ok",
  "data": {
    "movie_count": 1,
    "movies": [{
      "url": "https://yts.mx/movies/big-buck-bunny-2008",
      "title": "Big Buck Bunny",
      "title_english": "Big Buck Bunny",
      "year": 2008,
      "torrents": [
        {"hash": "AAAA1111", "quality": "720p", "type": "web", "seeds": 10, "peers": 2, "size": "600 MB", "size_bytes": 629145600, "date_uploaded_unix": 1700000000},
        {"hash": "BBBB2222", "quality": "1080p", "type": "bluray", "seeds": 0, "peers": 0, "size": "1.2 GB", "size_bytes": 0},
        {"hash": "", "quality": "2160p", "size_bytes": 100}
      ]
    }]
  }
}`

func TestParseResponse(t *testing.T) {
	items, err := parseResponse([]byte(samplePayload))
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	first := items[0]
	if first.Name != "Big Buck Bunny (2008) [720p] [web]" || first.Size != "600.0 MB" || first.InfoHash != "AAAA1111" {
		t.Errorf("first = %#v", first)
	}
	if first.Category != domain.CategoryMovies || first.UploadDate != "2023-11-14" {
		t.Errorf("first metadata = %#v", first)
	}
	if items[1].Size != "1.2 GB" || !items[1].IsDead() {
		t.Errorf("second = %#v", items[1])
	}
}

func TestParseResponseAPIError(t *testing.T) {
	_, err := parseResponse([]byte(`{"status":"error","status_message":"bad query"}`))
	if err == nil || !strings.Contains(err.Error(), "bad query") {
		t.Fatalf("error = %v", err)
	}
}

func TestSearchPassesEncodedQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query_term"); got != "big buck" {
			t.Errorf("query_term = %q", got)
		}
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	items, err := NewProvider(Config{Endpoint: srv.URL}).Search(context.Background(), "big+buck",
		domain.SearchContext{Category: domain.CategoryMovies, Client: netclient.New(netclient.Config{})})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("items = %d", len(items))
	}
}
