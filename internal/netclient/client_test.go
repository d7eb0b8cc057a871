package netclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("User-Agent = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Config{UserAgent: "test-agent"})
	body, err := c.Get(context.Background(), srv.URL, http.Header{"Accept": {"application/json"}})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}
}

func TestGetNon2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(Config{}).Get(context.Background(), srv.URL, nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusForbidden || statusErr.Body != "nope" {
		t.Errorf("status error = %+v", statusErr)
	}
}

func TestGetTruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	body, err := New(Config{MaxBodySize: 4}).Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "0123" {
		t.Errorf("body = %q, want 0123", body)
	}
}

func TestGetHonoursCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := New(Config{}).Get(ctx, srv.URL, nil); err == nil {
		t.Fatal("expected error after context deadline")
	}
}

func TestHostLimiterIsPerHost(t *testing.T) {
	c := New(Config{HostRPS: 1, HostBurst: 1})
	ctx := context.Background()
	if err := c.wait(ctx, "a.example"); err != nil {
		t.Fatalf("wait a: %v", err)
	}
	if err := c.wait(ctx, "b.example"); err != nil {
		t.Fatalf("wait b: %v", err)
	}
	if len(c.limiters) != 2 {
		t.Errorf("limiters = %d, want 2", len(c.limiters))
	}

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := c.wait(short, "A.example"); err == nil {
		t.Error("second request to the same host should have been throttled")
	}
}
