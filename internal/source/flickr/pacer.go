package flickr

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out successive requests to the remote site.
type Pacer interface {
	Wait(ctx context.Context) error
}

// IntervalPacer lets one request through per interval. The first Wait returns
// immediately; each following Wait blocks until the interval has elapsed.
type IntervalPacer struct {
	limiter *rate.Limiter
}

func NewIntervalPacer(interval time.Duration) *IntervalPacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &IntervalPacer{limiter: rate.NewLimiter(limit, 1)}
}

func (p *IntervalPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
