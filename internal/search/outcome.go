package search

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"torrentstream/aggregator/internal/domain"
)

// ProviderError attributes a failed search to the provider that produced it.
type ProviderError struct {
	ProviderID   string
	ProviderName string
	ProviderURL  string
	Err          error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.ProviderID, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Outcome is the single result of one provider task: either Torrents or Err.
type Outcome struct {
	ProviderID   string
	ProviderName string
	ProviderURL  string
	Torrents     []domain.Torrent
	Err          error
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

func successOutcome(info domain.ProviderInfo, torrents []domain.Torrent) Outcome {
	return Outcome{
		ProviderID:   info.ID,
		ProviderName: info.Name,
		ProviderURL:  info.URL,
		Torrents:     torrents,
	}
}

func failureOutcome(info domain.ProviderInfo, err error) Outcome {
	return Outcome{
		ProviderID:   info.ID,
		ProviderName: info.Name,
		ProviderURL:  info.URL,
		Err: &ProviderError{
			ProviderID:   info.ID,
			ProviderName: info.Name,
			ProviderURL:  info.URL,
			Err:          err,
		},
	}
}

// ResultCache accumulates every torrent successfully returned during one search.
type ResultCache struct {
	mu    sync.Mutex
	items []domain.Torrent
}

func newResultCache() *ResultCache {
	return &ResultCache{}
}

func (c *ResultCache) add(items []domain.Torrent) {
	if c == nil || len(items) == 0 {
		return
	}
	c.mu.Lock()
	c.items = append(c.items, items...)
	c.mu.Unlock()
}

// Snapshot returns a copy of the cached torrents.
func (c *ResultCache) Snapshot() []domain.Torrent {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Torrent, len(c.items))
	copy(out, c.items)
	return out
}

func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stream delivers outcomes in completion order. The channel returned by
// Outcomes is closed once the search is over or the stream is stopped.
type Stream struct {
	outcomes  <-chan Outcome
	done      chan struct{}
	closeOnce sync.Once
	stop      func()
	cache     *ResultCache
}

func newStream(outcomes <-chan Outcome, stop func(), cache *ResultCache) *Stream {
	return &Stream{
		outcomes: outcomes,
		done:     make(chan struct{}),
		stop:     stop,
		cache:    cache,
	}
}

func (s *Stream) Outcomes() <-chan Outcome {
	return s.outcomes
}

// Close stops the search. Provider tasks still running are cancelled and
// their outcomes discarded. Close is idempotent.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.stop != nil {
			s.stop()
		}
	})
}

// Results returns a snapshot of the search's result cache.
func (s *Stream) Results() []domain.Torrent {
	return s.cache.Snapshot()
}

// Aggregate is a fully drained stream.
type Aggregate struct {
	Successes []domain.Torrent
	Failures  []*ProviderError
	Outcomes  int
}

// Drain consumes the stream until it closes or ctx ends, then closes it.
func Drain(ctx context.Context, stream *Stream) Aggregate {
	defer stream.Close()
	var agg Aggregate
	for {
		select {
		case <-ctx.Done():
			return agg
		case outcome, ok := <-stream.Outcomes():
			if !ok {
				return agg
			}
			agg.Outcomes++
			if outcome.Failed() {
				var providerErr *ProviderError
				if !errors.As(outcome.Err, &providerErr) {
					providerErr = &ProviderError{
						ProviderID:   outcome.ProviderID,
						ProviderName: outcome.ProviderName,
						ProviderURL:  outcome.ProviderURL,
						Err:          outcome.Err,
					}
				}
				agg.Failures = append(agg.Failures, providerErr)
				continue
			}
			agg.Successes = append(agg.Successes, outcome.Torrents...)
		}
	}
}
