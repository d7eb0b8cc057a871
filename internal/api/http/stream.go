package apihttp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"torrentstream/aggregator/internal/search"
)

type streamSummary struct {
	Final    bool  `json:"final"`
	Items    int   `json:"items"`
	Failures int   `json:"failures"`
	Outcomes int   `json:"outcomes"`
	Elapsed  int64 `json:"elapsedMs"`
}

// forwardOutcomes hands every outcome of stream to emit until the stream ends,
// ctx is cancelled or emit fails. The stream is always closed on return.
func forwardOutcomes(ctx context.Context, stream *search.Stream, emit func(outcomeView) error) (streamSummary, bool) {
	defer stream.Close()
	start := time.Now()
	var summary streamSummary
	for {
		select {
		case <-ctx.Done():
			return summary, false
		case outcome, ok := <-stream.Outcomes():
			if !ok {
				summary.Final = true
				summary.Elapsed = time.Since(start).Milliseconds()
				return summary, true
			}
			summary.Outcomes++
			if outcome.Failed() {
				summary.Failures++
			} else {
				summary.Items += len(outcome.Torrents)
			}
			if err := emit(toOutcomeView(outcome)); err != nil {
				return summary, false
			}
		}
	}
}

func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming is not supported")
		return
	}
	query, category, ok := parseSearchRequest(w, r)
	if !ok {
		return
	}
	stream, ok := s.startSearch(w, r, query, category)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := writeSSEEvent(w, flusher, "bootstrap", map[string]any{
		"query":    query,
		"category": category,
		"status":   "started",
	}); err != nil {
		stream.Close()
		return
	}

	summary, completed := forwardOutcomes(r.Context(), stream, func(view outcomeView) error {
		return writeSSEEvent(w, flusher, "outcome", view)
	})
	if !completed {
		return // Client disconnected
	}
	_ = writeSSEEvent(w, flusher, "done", summary)
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

func (s *Server) handleSearchWS(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	query, category, ok := parseSearchRequest(w, r)
	if !ok {
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read loop only exists to notice the client going away.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msgType string, data any) error {
		payload, err := json.Marshal(wsMessage{Type: msgType, Data: data})
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	stream, err := s.search.Search(ctx, query, category)
	if err != nil {
		_ = send("error", map[string]string{"message": err.Error()})
		return
	}
	if err := send("bootstrap", map[string]any{"query": query, "category": category}); err != nil {
		stream.Close()
		return
	}
	summary, completed := forwardOutcomes(ctx, stream, func(view outcomeView) error {
		return send("outcome", view)
	})
	if !completed {
		return
	}
	_ = send("done", summary)
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "search complete"),
		time.Now().Add(2*time.Second),
	)
}
