package apihttp

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"torrentstream/aggregator/internal/metrics"
)

// Routes that start a provider fan-out. They share one budget per client.
var fanOutRoutes = map[string]string{
	"/search":        "",
	"/search/stream": "sse",
	"/search/ws":     "ws",
}

var knownRoutes = map[string]struct{}{
	"/health": {}, "/metrics": {},
	"/search": {}, "/search/stream": {}, "/search/ws": {}, "/search/results": {},
	"/search/providers": {}, "/search/providers/health": {}, "/search/providers/custom": {},
	"/search/settings": {}, "/search/categories": {},
}

func routeOf(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "/other"
}

func unmetered(path string) bool {
	return path == "/health" || path == "/metrics"
}

// recordingWriter captures the status and body size of a response. It keeps
// Flush and Hijack reachable for SSE and WebSocket handlers.
type recordingWriter struct {
	http.ResponseWriter
	status   int
	size     int
	upgraded bool
}

func (rw *recordingWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func (rw *recordingWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rw *recordingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	conn, buf, err := hijacker.Hijack()
	if err == nil {
		rw.upgraded = true
		rw.status = http.StatusSwitchingProtocols
	}
	return conn, buf, err
}

// instrumentMiddleware logs and meters every request. Search routes are
// labelled with the requested category; stream routes are tracked as open
// streams for as long as the handler runs.
func instrumentMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		route := routeOf(r.URL.Path)
		transport, fanOut := fanOutRoutes[route]
		if transport != "" {
			metrics.OpenStreams.WithLabelValues(transport).Inc()
			defer metrics.OpenStreams.WithLabelValues(transport).Dec()
		}

		start := time.Now()
		rw := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		if transport == "" {
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		}

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", rw.status),
			slog.Int64("durationMs", elapsed.Milliseconds()),
			slog.String("clientIP", clientIP(r)),
		}
		if fanOut {
			q := r.URL.Query()
			attrs = append(attrs,
				slog.String("category", strings.ToLower(strings.TrimSpace(q.Get("category")))),
				slog.String("query", truncate(q.Get("q"), 80)),
			)
		}
		if !rw.upgraded {
			attrs = append(attrs, slog.Int("bytes", rw.size))
		}
		msg := "http request"
		if transport != "" {
			msg = "search stream closed"
		}
		logger.LogAttrs(r.Context(), requestLogLevel(route, rw.status), msg, attrs...)
	})
}

func requestLogLevel(route string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case route == "/health":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("panic recovered",
					slog.Any("error", recovered),
					slog.String("route", routeOf(r.URL.Path)),
					slog.String("stack", string(debug.Stack())),
				)
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// clientLimiter hands out one token bucket per client and budget. Fan-out
// routes draw from the "search" budget, everything else from "api".
type clientLimiter struct {
	rps   rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*clientBucket
	swept   time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*clientBucket),
	}
}

func (l *clientLimiter) allow(budget, client string) bool {
	now := l.now()
	key := budget + "|" + client

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.swept) > l.idle {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > l.idle {
				delete(l.buckets, k)
			}
		}
		l.swept = now
	}
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// rateLimitMiddleware rejects with 429 once a client exhausts its budget.
// rps <= 0 disables limiting.
func rateLimitMiddleware(rps float64, burst int, next http.Handler) http.Handler {
	if rps <= 0 {
		return next
	}
	limiter := newClientLimiter(rps, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unmetered(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		budget := "api"
		if _, ok := fanOutRoutes[r.URL.Path]; ok {
			budget = "search"
		}
		if !limiter.allow(budget, clientIP(r)) {
			metrics.RateLimitedTotal.WithLabelValues(budget).Inc()
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
