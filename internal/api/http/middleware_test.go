package apihttp

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientLimiterSeparatesBudgetsAndClients(t *testing.T) {
	limiter := newClientLimiter(0.001, 1)

	if !limiter.allow("search", "10.0.0.1") {
		t.Fatal("first search request rejected")
	}
	if limiter.allow("search", "10.0.0.1") {
		t.Fatal("second search request allowed")
	}
	if !limiter.allow("api", "10.0.0.1") {
		t.Fatal("api budget drained by search requests")
	}
	if !limiter.allow("search", "10.0.0.2") {
		t.Fatal("other client shares the first client's bucket")
	}
}

func TestClientLimiterForgetsIdleClients(t *testing.T) {
	limiter := newClientLimiter(0.001, 1)
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	limiter.allow("api", "10.0.0.1")
	now = now.Add(limiter.idle + time.Second)
	limiter.allow("api", "10.0.0.2")

	if _, ok := limiter.buckets["api|10.0.0.1"]; ok {
		t.Fatal("idle bucket was not swept")
	}
	if len(limiter.buckets) != 1 {
		t.Fatalf("buckets = %d, want 1", len(limiter.buckets))
	}
}

func TestSearchBudgetDoesNotStarveAPI(t *testing.T) {
	env := newTestEnv(t, WithRateLimit(0.001, 1))

	if resp := env.do(t, http.MethodGet, "/search?q=bunny", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("first search status = %d", resp.StatusCode)
	}
	resp := env.do(t, http.MethodGet, "/search?q=bunny", "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second search status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q", resp.Header.Get("Retry-After"))
	}
	if resp := env.do(t, http.MethodGet, "/search/providers", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("providers status = %d, want 200", resp.StatusCode)
	}
}

func TestInstrumentLogsSearchCategory(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handler := instrumentMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/search?q=sintel&category=Movies", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	for _, want := range []string{"route=/search", "category=movies", "query=sintel", "status=418", "level=WARN"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
}

func TestInstrumentNamesStreamRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handler := instrumentMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/search/stream?q=x", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/torrents/123", nil))

	out := buf.String()
	if !strings.Contains(out, `msg="search stream closed"`) {
		t.Errorf("stream request not named: %q", out)
	}
	if !strings.Contains(out, "route=/other") {
		t.Errorf("unknown path not collapsed: %q", out)
	}
}

func TestRecordingWriterHijackUnsupported(t *testing.T) {
	rw := &recordingWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := rw.Hijack(); err != http.ErrNotSupported {
		t.Fatalf("Hijack error = %v, want ErrNotSupported", err)
	}
	if rw.upgraded || rw.status != http.StatusOK {
		t.Fatalf("failed hijack changed state: %+v", rw)
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": " 1.2.3.4 , 10.0.0.1"}, "127.0.0.1:1234", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": "5.6.7.8"}, "127.0.0.1:1234", "5.6.7.8"},
		{"remote addr", nil, "9.9.9.9:4321", "9.9.9.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			if got := clientIP(req); got != tc.want {
				t.Fatalf("clientIP = %q, want %q", got, tc.want)
			}
		})
	}
}
