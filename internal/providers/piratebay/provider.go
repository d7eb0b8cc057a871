package piratebay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/providers/common"
)

const (
	providerID      = "piratebay"
	defaultEndpoint = "https://apibay.org/q.php"
	emptyInfoHash   = "0000000000000000000000000000000000000000"
)

// apibay top-level category codes; 0 means every category.
var categoryCodes = map[domain.Category]string{
	domain.CategoryMovies: "201",
	domain.CategorySeries: "205",
	domain.CategoryMusic:  "101",
	domain.CategoryGames:  "400",
	domain.CategoryApps:   "300",
	domain.CategoryPorn:   "500",
	domain.CategoryBooks:  "601",
	domain.CategoryOther:  "600",
}

type Config struct {
	Endpoint string
}

type Provider struct {
	endpoint string
	pageBase string
}

type apiItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	InfoHash string `json:"info_hash"`
	Size     string `json:"size"`
	Seeders  string `json:"seeders"`
	Leechers string `json:"leechers"`
	Added    string `json:"added"`
	Category string `json:"category"`
}

func NewProvider(cfg Config) *Provider {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	pageBase := ""
	if base, err := url.Parse(endpoint); err == nil && base.Scheme != "" && base.Host != "" {
		pageBase = base.Scheme + "://" + base.Host
	}
	return &Provider{endpoint: endpoint, pageBase: pageBase}
}

func (p *Provider) ID() string {
	return providerID
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		ID:       providerID,
		Name:     "The Pirate Bay",
		URL:      p.pageBase,
		Category: domain.CategoryAll,
		Kind:     domain.ProviderKindBuiltin,
	}
}

func (p *Provider) Search(ctx context.Context, query string, sc domain.SearchContext) ([]domain.Torrent, error) {
	body, err := sc.Client.Get(ctx, p.searchURL(query, sc.Category), http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, err
	}
	items, err := parseAPIItems(body)
	if err != nil {
		return nil, err
	}

	results := make([]domain.Torrent, 0, len(items))
	for _, item := range items {
		if result, ok := p.toResult(item); ok {
			results = append(results, result)
		}
	}
	return results, nil
}

// searchURL appends the already-encoded query verbatim.
func (p *Provider) searchURL(query string, category domain.Category) string {
	cat := "0"
	if code, ok := categoryCodes[category]; ok {
		cat = code
	}
	sep := "?"
	if strings.Contains(p.endpoint, "?") {
		sep = "&"
	}
	return p.endpoint + sep + "q=" + query + "&cat=" + cat
}

func parseAPIItems(payload []byte) ([]apiItem, error) {
	var items []apiItem
	if err := json.Unmarshal(payload, &items); err == nil {
		return items, nil
	}

	var single map[string]string
	if err := json.Unmarshal(payload, &single); err == nil {
		return []apiItem{}, nil
	}

	return nil, fmt.Errorf("unexpected provider payload")
}

func (p *Provider) toResult(item apiItem) (domain.Torrent, bool) {
	name := strings.TrimSpace(item.Name)
	infoHash := common.NormalizeInfoHash(item.InfoHash)
	if infoHash == "" || infoHash == emptyInfoHash || name == "" {
		return domain.Torrent{}, false
	}
	if strings.Contains(strings.ToLower(name), "no results returned") {
		return domain.Torrent{}, false
	}
	sizeBytes, _ := strconv.ParseInt(strings.TrimSpace(item.Size), 10, 64)
	size := common.FormatSize(sizeBytes)
	if size == "" {
		return domain.Torrent{}, false
	}
	added, _ := strconv.ParseInt(strings.TrimSpace(item.Added), 10, 64)

	descriptionURL := ""
	if id := strings.TrimSpace(item.ID); id != "" && p.pageBase != "" {
		descriptionURL = p.pageBase + "/description.php?id=" + url.QueryEscape(id)
	}

	return domain.Torrent{
		Name:           name,
		Size:           size,
		Seeders:        common.ParseCount(item.Seeders),
		Peers:          common.ParseCount(item.Leechers),
		ProviderID:     providerID,
		ProviderName:   "The Pirate Bay",
		UploadDate:     common.FormatUnixDate(added),
		Category:       categoryFromCode(item.Category),
		DescriptionURL: descriptionURL,
		InfoHash:       infoHash,
	}, true
}

func categoryFromCode(raw string) domain.Category {
	code, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || code <= 0 {
		return ""
	}
	switch {
	case code == 205 || code == 208:
		return domain.CategorySeries
	case code == 601:
		return domain.CategoryBooks
	case code >= 100 && code < 200:
		return domain.CategoryMusic
	case code >= 200 && code < 300:
		return domain.CategoryMovies
	case code >= 300 && code < 400:
		return domain.CategoryApps
	case code >= 400 && code < 500:
		return domain.CategoryGames
	case code >= 500 && code < 600:
		return domain.CategoryPorn
	default:
		return domain.CategoryOther
	}
}
