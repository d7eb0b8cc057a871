package x1337

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/providers/common"
)

const (
	providerID      = "1337x"
	providerName    = "1337x"
	defaultEndpoint = "https://1337x.to"
	maxDetailPages  = 20
	detailWorkers   = 4
)

var errNoMagnets = errors.New("no magnet links resolved")

var categoryPaths = map[domain.Category]string{
	domain.CategoryMovies: "Movies",
	domain.CategorySeries: "TV",
	domain.CategoryGames:  "Games",
	domain.CategoryMusic:  "Music",
	domain.CategoryApps:   "Apps",
	domain.CategoryAnime:  "Anime",
	domain.CategoryPorn:   "XXX",
	domain.CategoryOther:  "Other",
}

var htmlHeader = http.Header{"Accept": {"text/html,application/xhtml+xml"}}

type Config struct {
	// Endpoint is a comma-separated list of mirrors tried in order.
	Endpoint string
}

type Provider struct {
	endpoints []string
}

type searchRow struct {
	Name       string
	Path       string
	Seeders    int
	Leechers   int
	Size       string
	UploadDate string
}

func NewProvider(cfg Config) *Provider {
	return &Provider{endpoints: parseEndpoints(cfg.Endpoint)}
}

func (p *Provider) ID() string {
	return providerID
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		ID:       providerID,
		Name:     providerName,
		URL:      p.endpoints[0],
		Category: domain.CategoryAll,
		Kind:     domain.ProviderKindBuiltin,
	}
}

func (p *Provider) Search(ctx context.Context, query string, sc domain.SearchContext) ([]domain.Torrent, error) {
	var (
		rows []searchRow
		base string
		err  error
	)
	for _, endpoint := range p.endpoints {
		rows, err = p.fetchRows(ctx, sc.Client, endpoint, query, sc.Category)
		if err == nil {
			base = endpoint
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []domain.Torrent{}, nil
	}
	if len(rows) > maxDetailPages {
		rows = rows[:maxDetailPages]
	}

	magnets := make([]string, len(rows))
	var (
		mu       sync.Mutex
		firstErr error
	)
	// errgroup only bounds concurrency here; detail failures are collected
	// in firstErr and never cancel siblings.
	var g errgroup.Group
	g.SetLimit(detailWorkers)
	for i, row := range rows {
		g.Go(func() error {
			magnet, fetchErr := fetchMagnet(ctx, sc.Client, base+row.Path)
			if fetchErr != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fetchErr
				}
				mu.Unlock()
				// one broken detail page must not sink the rest
				return nil
			}
			magnets[i] = magnet
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]domain.Torrent, 0, len(rows))
	for i, row := range rows {
		if magnets[i] == "" {
			continue
		}
		results = append(results, domain.Torrent{
			Name:           row.Name,
			Size:           row.Size,
			Seeders:        row.Seeders,
			Peers:          row.Leechers,
			ProviderID:     providerID,
			ProviderName:   providerName,
			UploadDate:     row.UploadDate,
			DescriptionURL: base + row.Path,
			MagnetURI:      magnets[i],
		})
	}
	if len(results) == 0 && firstErr != nil {
		return nil, fmt.Errorf("%w: %v", errNoMagnets, firstErr)
	}
	return results, nil
}

func (p *Provider) fetchRows(ctx context.Context, client domain.NetworkClient, endpoint, query string, category domain.Category) ([]searchRow, error) {
	searchURL := endpoint + "/search/" + query + "/1/"
	if path, ok := categoryPaths[category]; ok {
		searchURL = endpoint + "/category-search/" + query + "/" + path + "/1/"
	}
	body, err := client.Get(ctx, searchURL, htmlHeader)
	if err != nil {
		return nil, err
	}
	return parseSearchPage(body)
}

func parseSearchPage(body []byte) ([]searchRow, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	rows := make([]searchRow, 0)
	doc.Find(".table-list tbody tr").Each(func(_ int, s *goquery.Selection) {
		link := s.Find(`td.coll-1.name a[href^="/torrent/"]`).First()
		name := strings.TrimSpace(link.Text())
		path, ok := link.Attr("href")
		if !ok || name == "" {
			return
		}
		// the size cell carries the seeders count in a nested span
		sizeCell := s.Find("td.coll-4.size").Clone()
		sizeCell.Children().Remove()
		size := common.NormalizeSize(sizeCell.Text())
		if size == "" {
			return
		}
		rows = append(rows, searchRow{
			Name:       name,
			Path:       path,
			Seeders:    common.ParseCount(s.Find("td.coll-2.seeds").Text()),
			Leechers:   common.ParseCount(s.Find("td.coll-3.leeches").Text()),
			Size:       size,
			UploadDate: strings.TrimSpace(s.Find("td.coll-date").Text()),
		})
	})
	return rows, nil
}

func fetchMagnet(ctx context.Context, client domain.NetworkClient, detailURL string) (string, error) {
	body, err := client.Get(ctx, detailURL, htmlHeader)
	if err != nil {
		return "", err
	}
	return parseMagnet(body)
}

func parseMagnet(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	magnet, _ := doc.Find(`a[href^="magnet:"]`).First().Attr("href")
	if common.InfoHashFromMagnet(magnet) == "" {
		return "", errors.New("no magnet link found")
	}
	return magnet, nil
}

func parseEndpoints(raw string) []string {
	value := strings.TrimSpace(raw)
	if value == "" {
		value = defaultEndpoint + ",https://1377x.to,https://x1337x.ws"
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		endpoint := strings.TrimRight(strings.TrimSpace(part), "/")
		if endpoint == "" {
			continue
		}
		if _, exists := seen[endpoint]; exists {
			continue
		}
		seen[endpoint] = struct{}{}
		items = append(items, endpoint)
	}
	if len(items) == 0 {
		return []string{defaultEndpoint}
	}
	return items
}
