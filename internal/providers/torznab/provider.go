package torznab

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"golang.org/x/sync/semaphore"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/providers/common"
)

const (
	maxConcurrentDownloads = 4
	torrentDownloadTimeout = 4 * time.Second
)

// ErrAPI is wrapped by errors the indexer reports in a torznab <error> element.
var ErrAPI = errors.New("torznab api error")

// Newznab/torznab category ids per search category.
var categoryIDs = map[domain.Category]string{
	domain.CategoryMovies: "2000",
	domain.CategorySeries: "5000",
	domain.CategoryAnime:  "5070",
	domain.CategoryMusic:  "3000",
	domain.CategoryApps:   "4000",
	domain.CategoryGames:  "1000,4050",
	domain.CategoryPorn:   "6000",
	domain.CategoryBooks:  "7000",
	domain.CategoryOther:  "8000",
}

var xmlHeader = http.Header{"Accept": {"application/xml,text/xml,application/rss+xml"}}

// Provider queries one user-defined Torznab endpoint (Jackett, Prowlarr, ...).
type Provider struct {
	def domain.ProviderDefinition
}

func NewProvider(def domain.ProviderDefinition) *Provider {
	return &Provider{def: def.Normalize()}
}

func (p *Provider) ID() string {
	return p.def.ID
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		ID:       p.def.ID,
		Name:     p.def.Name,
		URL:      p.def.BaseURL,
		Category: p.def.Category,
		Kind:     domain.ProviderKindTorznab,
	}
}

func (p *Provider) Search(ctx context.Context, query string, sc domain.SearchContext) ([]domain.Torrent, error) {
	searchURL, err := p.searchURL(query, sc.Category)
	if err != nil {
		return nil, err
	}
	payload, err := sc.Client.Get(ctx, searchURL, xmlHeader)
	if err != nil {
		return nil, err
	}
	items, err := parseTorznabResponse(payload)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []domain.Torrent{}, nil
	}

	infoHashes := prefetchMissingInfoHashes(ctx, sc.Client, items)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]domain.Torrent, 0, len(items))
	for _, item := range items {
		if result, ok := p.itemToResult(item, infoHashes); ok {
			results = append(results, result)
		}
	}
	return results, nil
}

// searchURL keeps the already-encoded query verbatim and encodes the rest.
func (p *Provider) searchURL(query string, category domain.Category) (string, error) {
	uri, err := url.Parse(p.def.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	params := uri.Query()
	params.Del("q")
	params.Set("t", "search")
	if strings.TrimSpace(params.Get("extended")) == "" {
		params.Set("extended", "1")
	}
	if strings.TrimSpace(params.Get("apikey")) == "" && p.def.APIKey != "" {
		params.Set("apikey", p.def.APIKey)
	}
	target := category
	if target == domain.CategoryAll {
		target = p.def.Category
	}
	if ids, ok := categoryIDs[target]; ok {
		params.Set("cat", ids)
	}
	uri.RawQuery = params.Encode() + "&q=" + query
	return uri.String(), nil
}

func (p *Provider) itemToResult(item torznabItem, infoHashes map[string]string) (domain.Torrent, bool) {
	name := strings.TrimSpace(item.Title)
	if name == "" {
		return domain.Torrent{}, false
	}
	attrs := item.attrMap()

	magnet := firstMagnet(item.Guid, item.Link, item.Enclosure.URL, attrs["magneturl"])
	infoHash := ""
	if magnet == "" {
		infoHash = common.NormalizeInfoHash(attrs["infohash"])
		if infoHash == "" {
			infoHash = infoHashes[item.downloadURL()]
		}
	}
	if magnet == "" && infoHash == "" {
		return domain.Torrent{}, false
	}

	sizeBytes, _ := strconv.ParseInt(attrs["size"], 10, 64)
	if sizeBytes <= 0 {
		sizeBytes, _ = strconv.ParseInt(strings.TrimSpace(item.Size), 10, 64)
	}
	if sizeBytes <= 0 {
		sizeBytes = item.Enclosure.Length
	}
	size := common.FormatSize(sizeBytes)
	if size == "" {
		return domain.Torrent{}, false
	}

	seeders := common.ParseCount(attrs["seeders"])
	leechers := common.ParseCount(attrs["leechers"])
	if leechers == 0 {
		if peers := common.ParseCount(attrs["peers"]); peers > seeders {
			leechers = peers - seeders
		}
	}

	return domain.Torrent{
		Name:           name,
		Size:           size,
		Seeders:        seeders,
		Peers:          leechers,
		ProviderID:     p.def.ID,
		ProviderName:   p.def.Name,
		UploadDate:     formatPubDate(item.PubDate),
		Category:       categoryFromID(attrs["category"]),
		DescriptionURL: firstHTTPURL(item.Comments, attrs["comments"], attrs["details"], item.Guid),
		InfoHash:       infoHash,
		MagnetURI:      magnet,
	}, true
}

// prefetchMissingInfoHashes downloads the .torrent files of items that carry
// neither magnet nor infohash, bounded by maxConcurrentDownloads.
func prefetchMissingInfoHashes(ctx context.Context, client domain.NetworkClient, items []torznabItem) map[string]string {
	urls := make(map[string]struct{})
	for _, item := range items {
		attrs := item.attrMap()
		if firstMagnet(item.Guid, item.Link, item.Enclosure.URL, attrs["magneturl"]) != "" || attrs["infohash"] != "" {
			continue
		}
		if downloadURL := item.downloadURL(); downloadURL != "" {
			urls[downloadURL] = struct{}{}
		}
	}
	if len(urls) == 0 {
		return nil
	}

	sem := semaphore.NewWeighted(maxConcurrentDownloads)
	results := make(map[string]string, len(urls))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for rawURL := range urls {
		wg.Add(1)
		go func(rawURL string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			downloadCtx, cancel := context.WithTimeout(ctx, torrentDownloadTimeout)
			defer cancel()
			payload, err := client.Get(downloadCtx, rawURL, http.Header{"Accept": {"application/x-bittorrent,application/octet-stream,*/*"}})
			if err != nil {
				return
			}
			hash, err := InfoHashFromTorrent(payload)
			if err != nil {
				return
			}
			mu.Lock()
			results[rawURL] = hash
			mu.Unlock()
		}(rawURL)
	}
	wg.Wait()
	return results
}

// InfoHashFromTorrent returns the lowercase hex v1 info-hash of a .torrent file.
func InfoHashFromTorrent(payload []byte) (string, error) {
	mi, err := metainfo.Load(bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("decode torrent: %w", err)
	}
	if len(mi.InfoBytes) == 0 {
		return "", errors.New("torrent has no info dictionary")
	}
	return mi.HashInfoBytes().HexString(), nil
}

type torznabResponse struct {
	XMLName xml.Name
	Code    string         `xml:"code,attr"`
	Desc    string         `xml:"description,attr"`
	Channel torznabChannel `xml:"channel"`
}

type torznabChannel struct {
	Items []torznabItem `xml:"item"`
}

type torznabItem struct {
	Title     string           `xml:"title"`
	Guid      string           `xml:"guid"`
	Link      string           `xml:"link"`
	Comments  string           `xml:"comments"`
	PubDate   string           `xml:"pubDate"`
	Size      string           `xml:"size"`
	Enclosure torznabEnclosure `xml:"enclosure"`
	Attrs     []torznabAttr    `xml:"attr"`
}

type torznabEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func (i torznabItem) attrMap() map[string]string {
	attrs := make(map[string]string, len(i.Attrs))
	for _, attr := range i.Attrs {
		key := strings.ToLower(strings.TrimSpace(attr.Name))
		if key == "" {
			continue
		}
		if _, exists := attrs[key]; exists {
			continue
		}
		attrs[key] = strings.TrimSpace(attr.Value)
	}
	return attrs
}

func (i torznabItem) downloadURL() string {
	if value := strings.TrimSpace(i.Enclosure.URL); value != "" && !common.IsMagnet(value) {
		return value
	}
	if value := strings.TrimSpace(i.Link); value != "" && !common.IsMagnet(value) {
		return value
	}
	return ""
}

func parseTorznabResponse(payload []byte) ([]torznabItem, error) {
	var rss torznabResponse
	if err := xml.Unmarshal(payload, &rss); err != nil {
		return nil, fmt.Errorf("invalid torznab XML: %w", err)
	}
	if rss.XMLName.Local == "error" {
		return nil, fmt.Errorf("%w %s: %s", ErrAPI, rss.Code, rss.Desc)
	}
	return rss.Channel.Items, nil
}

func firstMagnet(candidates ...string) string {
	for _, candidate := range candidates {
		value := strings.TrimSpace(candidate)
		if common.IsMagnet(value) {
			return value
		}
	}
	return ""
}

func firstHTTPURL(candidates ...string) string {
	for _, candidate := range candidates {
		value := strings.TrimSpace(candidate)
		if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
			return value
		}
	}
	return ""
}

func categoryFromID(raw string) domain.Category {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return ""
	}
	switch {
	case id == 5070:
		return domain.CategoryAnime
	case id >= 4050 && id < 4060:
		return domain.CategoryGames
	case id >= 1000 && id < 2000:
		return domain.CategoryGames
	case id >= 2000 && id < 3000:
		return domain.CategoryMovies
	case id >= 3000 && id < 4000:
		return domain.CategoryMusic
	case id >= 4000 && id < 5000:
		return domain.CategoryApps
	case id >= 5000 && id < 6000:
		return domain.CategorySeries
	case id >= 6000 && id < 7000:
		return domain.CategoryPorn
	case id >= 7000 && id < 8000:
		return domain.CategoryBooks
	default:
		return domain.CategoryOther
	}
}

func formatPubDate(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC3339,
	}
	for _, format := range formats {
		if parsed, err := time.Parse(format, value); err == nil {
			return parsed.UTC().Format("2006-01-02")
		}
	}
	return value
}
