package yts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/providers/common"
)

const (
	providerID      = "yts"
	providerName    = "YTS"
	defaultEndpoint = "https://yts.mx/api/v2/list_movies.json"
	pageLimit       = 50
)

type Config struct {
	Endpoint string
}

// Provider searches the YTS movie catalogue. Each movie yields one torrent per
// available quality.
type Provider struct {
	endpoint string
}

type listResponse struct {
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
	Data          struct {
		MovieCount int     `json:"movie_count"`
		Movies     []movie `json:"movies"`
	} `json:"data"`
}

type movie struct {
	URL          string         `json:"url"`
	Title        string         `json:"title"`
	TitleEnglish string         `json:"title_english"`
	Year         int            `json:"year"`
	Torrents     []movieTorrent `json:"torrents"`
}

type movieTorrent struct {
	Hash             string `json:"hash"`
	Quality          string `json:"quality"`
	Type             string `json:"type"`
	Seeds            int    `json:"seeds"`
	Peers            int    `json:"peers"`
	Size             string `json:"size"`
	SizeBytes        int64  `json:"size_bytes"`
	DateUploadedUnix int64  `json:"date_uploaded_unix"`
}

func NewProvider(cfg Config) *Provider {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Provider{endpoint: endpoint}
}

func (p *Provider) ID() string {
	return providerID
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		ID:       providerID,
		Name:     providerName,
		URL:      "https://yts.mx",
		Category: domain.CategoryMovies,
		Kind:     domain.ProviderKindBuiltin,
	}
}

func (p *Provider) Search(ctx context.Context, query string, sc domain.SearchContext) ([]domain.Torrent, error) {
	searchURL := fmt.Sprintf("%s?query_term=%s&limit=%d&sort_by=seeds", p.endpoint, query, pageLimit)
	body, err := sc.Client.Get(ctx, searchURL, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, err
	}
	return parseResponse(body)
}

func parseResponse(body []byte) ([]domain.Torrent, error) {
	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode yts response: %w", err)
	}
	if !strings.EqualFold(resp.Status, "ok") {
		return nil, fmt.Errorf("yts api error: %s", resp.StatusMessage)
	}

	results := make([]domain.Torrent, 0, len(resp.Data.Movies))
	for _, m := range resp.Data.Movies {
		title := strings.TrimSpace(m.TitleEnglish)
		if title == "" {
			title = strings.TrimSpace(m.Title)
		}
		if title == "" {
			continue
		}
		for _, t := range m.Torrents {
			hash := strings.TrimSpace(t.Hash)
			size := common.FormatSize(t.SizeBytes)
			if size == "" {
				size = common.NormalizeSize(t.Size)
			}
			if hash == "" || size == "" {
				continue
			}
			name := fmt.Sprintf("%s (%d) [%s]", title, m.Year, t.Quality)
			if t.Type != "" {
				name += " [" + t.Type + "]"
			}
			results = append(results, domain.Torrent{
				Name:           name,
				Size:           size,
				Seeders:        max(t.Seeds, 0),
				Peers:          max(t.Peers, 0),
				ProviderID:     providerID,
				ProviderName:   providerName,
				UploadDate:     common.FormatUnixDate(t.DateUploadedUnix),
				Category:       domain.CategoryMovies,
				DescriptionURL: m.URL,
				InfoHash:       hash,
			})
		}
	}
	return results, nil
}
