package rutracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/providers/common"
)

const (
	providerID      = "rutracker"
	providerName    = "RuTracker"
	defaultEndpoint = "https://rutracker.org"
	maxTopicPages   = 15
	topicWorkers    = 3
)

var (
	ErrLoginRequired = errors.New("rutracker login required: provide SEARCH_PROVIDER_RUTRACKER_COOKIE")

	topicIDPattern = regexp.MustCompile(`(?:\?|&)t=([0-9]+)(?:&|$)`)
	hashPattern    = regexp.MustCompile(`(?i)urn:btih:([a-z0-9]{32,40})`)
)

type Config struct {
	Endpoint string
	// Cookie is the raw Cookie header of a logged-in session (bb_session=...).
	Cookie string
}

type Provider struct {
	endpoint string
	header   http.Header
}

type topicEntry struct {
	ID         string
	Name       string
	Seeders    int
	Leechers   int
	Size       string
	UploadDate string
}

func NewProvider(cfg Config) *Provider {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	header := http.Header{
		"Accept":          {"text/html,application/xhtml+xml"},
		"Accept-Language": {"ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7"},
	}
	if cookie := strings.TrimSpace(cfg.Cookie); cookie != "" {
		header.Set("Cookie", cookie)
	}
	return &Provider{endpoint: endpoint, header: header}
}

func (p *Provider) ID() string {
	return providerID
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		ID:       providerID,
		Name:     providerName,
		URL:      p.endpoint,
		Category: domain.CategoryAll,
		Kind:     domain.ProviderKindBuiltin,
	}
}

func (p *Provider) Search(ctx context.Context, query string, sc domain.SearchContext) ([]domain.Torrent, error) {
	payload, err := sc.Client.Get(ctx, p.endpoint+"/forum/tracker.php?nm="+query, p.header)
	if err != nil {
		return nil, err
	}
	page := decodeHTML(payload)
	if isLoginPage(page) {
		return nil, ErrLoginRequired
	}
	entries, err := parseTopics(page)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []domain.Torrent{}, nil
	}
	if len(entries) > maxTopicPages {
		entries = entries[:maxTopicPages]
	}

	hashes := make([]string, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(topicWorkers)
	for i, entry := range entries {
		g.Go(func() error {
			hash, fetchErr := p.fetchTopicHash(gctx, sc.Client, entry.ID)
			if errors.Is(fetchErr, ErrLoginRequired) {
				return fetchErr
			}
			if fetchErr == nil {
				hashes[i] = hash
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]domain.Torrent, 0, len(entries))
	for i, entry := range entries {
		if hashes[i] == "" {
			continue
		}
		results = append(results, domain.Torrent{
			Name:           entry.Name,
			Size:           entry.Size,
			Seeders:        entry.Seeders,
			Peers:          entry.Leechers,
			ProviderID:     providerID,
			ProviderName:   providerName,
			UploadDate:     entry.UploadDate,
			DescriptionURL: p.topicURL(entry.ID),
			InfoHash:       hashes[i],
		})
	}
	return results, nil
}

func (p *Provider) topicURL(topicID string) string {
	return p.endpoint + "/forum/viewtopic.php?t=" + url.QueryEscape(topicID)
}

func (p *Provider) fetchTopicHash(ctx context.Context, client domain.NetworkClient, topicID string) (string, error) {
	payload, err := client.Get(ctx, p.topicURL(topicID), p.header)
	if err != nil {
		return "", err
	}
	page := decodeHTML(payload)
	if isLoginPage(page) {
		return "", ErrLoginRequired
	}
	return parseTopicHash(page)
}

func parseTopics(page string) ([]topicEntry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse tracker page: %w", err)
	}

	entries := make([]topicEntry, 0)
	doc.Find("tr.tCenter").Each(func(_ int, row *goquery.Selection) {
		link := row.Find(`a[href*="viewtopic.php"]`).First()
		href, _ := link.Attr("href")
		id := extractTopicID(href)
		name := common.CleanHTMLText(link.Text())
		if id == "" || name == "" {
			return
		}

		sizeCell := row.Find("td.tor-size")
		size := ""
		if raw, ok := sizeCell.Attr("data-ts_text"); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
				size = common.FormatSize(n)
			}
		}
		if size == "" {
			size = common.NormalizeSize(strings.TrimSuffix(strings.TrimSpace(sizeCell.Text()), "↓"))
		}
		if size == "" {
			return
		}

		uploadDate := ""
		if raw, ok := row.Find("td").Last().Attr("data-ts_text"); ok {
			if ts, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
				uploadDate = common.FormatUnixDate(ts)
			}
		}

		entries = append(entries, topicEntry{
			ID:         id,
			Name:       name,
			Seeders:    common.ParseCount(row.Find(".seedmed").First().Text()),
			Leechers:   common.ParseCount(row.Find(".leechmed").First().Text()),
			Size:       size,
			UploadDate: uploadDate,
		})
	})
	return entries, nil
}

func parseTopicHash(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", err
	}
	if href, ok := doc.Find(`a[href^="magnet:"]`).First().Attr("href"); ok {
		if hash := common.InfoHashFromMagnet(href); hash != "" {
			return hash, nil
		}
	}
	if m := hashPattern.FindStringSubmatch(page); len(m) >= 2 {
		return common.NormalizeInfoHash(m[1]), nil
	}
	return "", errors.New("topic has no magnet link")
}

func extractTopicID(href string) string {
	match := topicIDPattern.FindStringSubmatch(strings.TrimSpace(href))
	if len(match) >= 2 {
		return match[1]
	}
	return ""
}

func isLoginPage(page string) bool {
	content := strings.ToLower(page)
	return strings.Contains(content, `form action="login.php"`) ||
		strings.Contains(content, `name="login_username"`) ||
		strings.Contains(content, `name='login_username'`)
}

// decodeHTML converts Windows-1251 pages to UTF-8; valid UTF-8 passes through.
func decodeHTML(payload []byte) string {
	if utf8.Valid(payload) {
		return string(payload)
	}
	decoded, err := charmap.Windows1251.NewDecoder().Bytes(payload)
	if err != nil {
		return string(bytes.ToValidUTF8(payload, nil))
	}
	return string(decoded)
}
