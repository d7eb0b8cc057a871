package search

import (
	"errors"
	"fmt"

	"torrentstream/aggregator/internal/metrics"
)

var ErrInvalidQuota = errors.New("quota limit must be positive")

// Quota bounds the number of successful torrents a search delivers.
// The zero value is unlimited.
type Quota struct {
	limit int
}

func Unlimited() Quota {
	return Quota{}
}

func NewQuota(limit int) (Quota, error) {
	if limit <= 0 {
		return Quota{}, fmt.Errorf("%w: %d", ErrInvalidQuota, limit)
	}
	return Quota{limit: limit}, nil
}

func (q Quota) Unlimited() bool {
	return q.limit == 0
}

func (q Quota) Limit() int {
	return q.limit
}

// Apply wraps in so that forwarding stops once limit torrents have been
// delivered. An outcome that would cross the limit is truncated to the
// remainder, forwarded, and the underlying search is cancelled. Failures are
// always forwarded and never counted.
func (q Quota) Apply(in *Stream) *Stream {
	if q.Unlimited() {
		return in
	}

	out := make(chan Outcome)
	stream := newStream(out, in.Close, in.cache)

	go func() {
		defer close(out)
		defer in.Close()

		delivered := 0
		for {
			var (
				outcome Outcome
				ok      bool
			)
			select {
			case <-stream.done:
				return
			case outcome, ok = <-in.Outcomes():
			}
			if !ok {
				return
			}
			select {
			case <-stream.done:
				return
			default:
			}

			if !outcome.Failed() {
				remaining := q.limit - delivered
				if len(outcome.Torrents) > remaining {
					outcome.Torrents = outcome.Torrents[:remaining:remaining]
					metrics.QuotaTruncationsTotal.Inc()
				}
				delivered += len(outcome.Torrents)
			}

			select {
			case out <- outcome:
			case <-stream.done:
				return
			}
			if delivered >= q.limit {
				return
			}
		}
	}()

	return stream
}
