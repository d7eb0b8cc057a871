package nyaa

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/providers/common"
)

const (
	providerID      = "nyaa"
	providerName    = "Nyaa"
	defaultEndpoint = "https://nyaa.si"
)

type Config struct {
	Endpoint string
}

// Provider reads the nyaa.si RSS feed, restricted to the anime section.
type Provider struct {
	endpoint string
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title    string `xml:"title"`
	Link     string `xml:"link"`
	GUID     string `xml:"guid"`
	PubDate  string `xml:"pubDate"`
	Seeders  string `xml:"seeders"`
	Leechers string `xml:"leechers"`
	InfoHash string `xml:"infoHash"`
	Category string `xml:"category"`
	Size     string `xml:"size"`
}

func NewProvider(cfg Config) *Provider {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
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
		URL:      p.endpoint,
		Category: domain.CategoryAnime,
		Kind:     domain.ProviderKindBuiltin,
	}
}

func (p *Provider) Search(ctx context.Context, query string, sc domain.SearchContext) ([]domain.Torrent, error) {
	// c=1_0 is the anime section, f=0 disables the trusted-only filter
	searchURL := fmt.Sprintf("%s/?page=rss&c=1_0&f=0&q=%s", p.endpoint, query)
	body, err := sc.Client.Get(ctx, searchURL, http.Header{"Accept": {"application/rss+xml, application/xml"}})
	if err != nil {
		return nil, err
	}
	return parseFeed(body)
}

func parseFeed(body []byte) ([]domain.Torrent, error) {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decode nyaa feed: %w", err)
	}

	results := make([]domain.Torrent, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		name := common.CleanHTMLText(item.Title)
		hash := common.NormalizeInfoHash(item.InfoHash)
		size := common.NormalizeSize(item.Size)
		if name == "" || hash == "" || size == "" {
			continue
		}
		results = append(results, domain.Torrent{
			Name:           name,
			Size:           size,
			Seeders:        common.ParseCount(item.Seeders),
			Peers:          common.ParseCount(item.Leechers),
			ProviderID:     providerID,
			ProviderName:   providerName,
			UploadDate:     formatPubDate(item.PubDate),
			Category:       domain.CategoryAnime,
			DescriptionURL: strings.TrimSpace(item.GUID),
			InfoHash:       hash,
		})
	}
	return results, nil
}

func formatPubDate(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC().Format("2006-01-02")
		}
	}
	return value
}
