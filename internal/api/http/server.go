package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/registry"
	"torrentstream/aggregator/internal/search"
	"torrentstream/aggregator/internal/settings"
)

type SearchService interface {
	Search(ctx context.Context, query string, category domain.Category) (*search.Stream, error)
	Providers(ctx context.Context) ([]search.ProviderStatus, error)
	ProviderDiagnostics(ctx context.Context) ([]domain.ProviderDiagnostics, error)
	LastResults() []domain.Torrent
}

type DefinitionService interface {
	Definitions(ctx context.Context) ([]domain.ProviderDefinition, error)
	AddDefinition(ctx context.Context, def domain.ProviderDefinition) (domain.ProviderDefinition, error)
	RemoveDefinition(ctx context.Context, id string) error
}

type Server struct {
	search      SearchService
	settings    settings.Store
	definitions DefinitionService
	logger      *slog.Logger
	rateRPS     float64
	rateBurst   int
}

const maxQueryLength = 500

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithSettings(store settings.Store) ServerOption {
	return func(s *Server) {
		s.settings = store
	}
}

func WithDefinitions(definitions DefinitionService) ServerOption {
	return func(s *Server) {
		s.definitions = definitions
	}
}

// WithRateLimit sets the per-client request budget. Search routes and the
// rest of the API are budgeted separately. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateRPS = rps
		s.rateBurst = burst
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:    searchService,
		logger:    slog.Default(),
		rateRPS:   50,
		rateBurst: 100,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/search/stream", s.handleSearchStream)
	mux.HandleFunc("/search/ws", s.handleSearchWS)
	mux.HandleFunc("/search/results", s.handleResults)
	mux.HandleFunc("/search/providers", s.handleProviders)
	mux.HandleFunc("/search/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("/search/providers/custom", s.handleCustomProviders)
	mux.HandleFunc("/search/settings", s.handleSettings)
	mux.HandleFunc("/search/categories", s.handleCategories)
	traced := otelhttp.NewHandler(mux, "torrent-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !unmetered(r.URL.Path)
		}),
	)
	limited := rateLimitMiddleware(s.rateRPS, s.rateBurst, traced)
	return recoveryMiddleware(s.logger, instrumentMiddleware(s.logger, limited))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

type torrentView struct {
	domain.Torrent
	Magnet string `json:"magnet"`
	Dead   bool   `json:"dead"`
}

type failureView struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Error    string `json:"error"`
}

type outcomeView struct {
	Provider string        `json:"provider"`
	Name     string        `json:"name"`
	URL      string        `json:"url"`
	Status   string        `json:"status"`
	Items    []torrentView `json:"items"`
	Error    string        `json:"error,omitempty"`
}

func toTorrentViews(items []domain.Torrent) []torrentView {
	out := make([]torrentView, 0, len(items))
	for _, item := range items {
		out = append(out, torrentView{Torrent: item, Magnet: item.Magnet(), Dead: item.IsDead()})
	}
	return out
}

func toOutcomeView(outcome search.Outcome) outcomeView {
	view := outcomeView{
		Provider: outcome.ProviderID,
		Name:     outcome.ProviderName,
		URL:      outcome.ProviderURL,
		Status:   "ok",
		Items:    toTorrentViews(outcome.Torrents),
	}
	if outcome.Failed() {
		view.Status = "failed"
		view.Error = outcome.Err.Error()
		var providerErr *search.ProviderError
		if errors.As(outcome.Err, &providerErr) && providerErr.Err != nil {
			view.Error = providerErr.Err.Error()
		}
	}
	return view
}

// parseSearchRequest validates q and category. On failure it has already
// written the error response.
func parseSearchRequest(w http.ResponseWriter, r *http.Request) (string, domain.Category, bool) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return "", "", false
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return "", "", false
	}
	category, err := domain.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown category")
		return "", "", false
	}
	return query, category, true
}

func (s *Server) startSearch(w http.ResponseWriter, r *http.Request, query string, category domain.Category) (*search.Stream, bool) {
	stream, err := s.search.Search(r.Context(), query, category)
	if err == nil {
		return stream, true
	}
	s.logger.Warn("search request failed",
		slog.String("query", truncate(query, 80)),
		slog.String("category", string(category)),
		slog.String("error", err.Error()),
	)
	switch {
	case errors.Is(err, search.ErrInvalidQuery), errors.Is(err, domain.ErrUnknownCategory):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, search.ErrInvalidQuota):
		writeError(w, http.StatusInternalServerError, "invalid_settings", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
	}
	return nil, false
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	query, category, ok := parseSearchRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	stream, ok := s.startSearch(w, r, query, category)
	if !ok {
		return
	}
	agg := search.Drain(r.Context(), stream)

	failures := make([]failureView, 0, len(agg.Failures))
	for _, failure := range agg.Failures {
		message := ""
		if failure.Err != nil {
			message = failure.Err.Error()
		}
		failures = append(failures, failureView{
			Provider: failure.ProviderID,
			Name:     failure.ProviderName,
			URL:      failure.ProviderURL,
			Error:    message,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":     query,
		"category":  category,
		"items":     toTorrentViews(agg.Successes),
		"failures":  failures,
		"providers": agg.Outcomes,
		"elapsedMs": time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	items := toTorrentViews(s.search.LastResults())
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/providers" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	items, err := s.search.Providers(r.Context())
	if err != nil {
		s.logger.Warn("list providers failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list providers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	items, err := s.search.ProviderDiagnostics(r.Context())
	if err != nil {
		s.logger.Warn("provider diagnostics failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load diagnostics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     items,
	})
}

func (s *Server) handleCustomProviders(w http.ResponseWriter, r *http.Request) {
	if s.definitions == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "custom providers are not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		defs, err := s.definitions.Definitions(r.Context())
		if err != nil {
			s.logger.Warn("list provider definitions failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to list custom providers")
			return
		}
		for i := range defs {
			defs[i].APIKey = maskSecret(defs[i].APIKey)
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": defs})
	case http.MethodPost:
		var payload struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			BaseURL  string `json:"baseUrl"`
			APIKey   string `json:"apiKey"`
			Category string `json:"category"`
		}
		if err := decodeJSONBody(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		category, err := domain.ParseCategory(payload.Category)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown category")
			return
		}
		def, err := s.definitions.AddDefinition(r.Context(), domain.ProviderDefinition{
			ID:       payload.ID,
			Name:     payload.Name,
			BaseURL:  payload.BaseURL,
			APIKey:   payload.APIKey,
			Category: category,
		})
		switch {
		case err == nil:
			def.APIKey = maskSecret(def.APIKey)
			writeJSON(w, http.StatusCreated, def)
		case errors.Is(err, domain.ErrInvalidDefinition):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, registry.ErrDuplicateProvider):
			writeError(w, http.StatusConflict, "conflict", err.Error())
		default:
			s.logger.Warn("add provider definition failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to save custom provider")
		}
	case http.MethodDelete:
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "id is required")
			return
		}
		err := s.definitions.RemoveDefinition(r.Context(), id)
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, registry.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", err.Error())
		default:
			s.logger.Warn("remove provider definition failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to remove custom provider")
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var payload struct {
			EnabledProviders *[]string `json:"enabledProviders"`
			AllEnabled       bool      `json:"allEnabled"`
			MaxResults       *int      `json:"maxResults"`
		}
		if err := decodeJSONBody(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if payload.MaxResults != nil {
			if err := s.settings.SetMaxResults(r.Context(), *payload.MaxResults); err != nil {
				if errors.Is(err, settings.ErrInvalidMaxResults) {
					writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
					return
				}
				s.logger.Warn("update max results failed", slog.String("error", err.Error()))
				writeError(w, http.StatusInternalServerError, "internal_error", "failed to save settings")
				return
			}
		}
		var err error
		switch {
		case payload.AllEnabled:
			err = s.settings.SetEnabledProviderIDs(r.Context(), nil)
		case payload.EnabledProviders != nil:
			ids := *payload.EnabledProviders
			if ids == nil {
				ids = []string{}
			}
			err = s.settings.SetEnabledProviderIDs(r.Context(), ids)
		}
		if err != nil {
			s.logger.Warn("update enabled providers failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to save settings")
			return
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snapshot, err := settings.Load(r.Context(), s.settings)
	if err != nil {
		s.logger.Warn("load settings failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	type categoryView struct {
		ID   domain.Category `json:"id"`
		NSFW bool            `json:"nsfw"`
	}
	categories := domain.Categories()
	items := make([]categoryView, 0, len(categories))
	for _, c := range categories {
		items = append(items, categoryView{ID: c, NSFW: c.IsNSFW()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
