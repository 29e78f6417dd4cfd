package engine

import (
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
	"math"
	"time"
)

// quota hands out request units per partition with a token bucket per partition
type quota struct {
	limit    rate.Limit
	burst    int
	limiters *xsync.MapOf[Location, *rate.Limiter]
}

func newQuota(unitsPerSecond float64, burst int) *quota {
	if burst < 1 {
		burst = int(math.Ceil(unitsPerSecond))
	}
	return &quota{
		limit:    rate.Limit(unitsPerSecond),
		burst:    burst,
		limiters: xsync.NewMapOf[Location, *rate.Limiter](),
	}
}

// take consumes charge units of the partition's budget at now. If the budget is exhausted
// nothing is consumed and the time until enough units are available is returned.
func (q *quota) take(loc Location, charge float64, now time.Time) (time.Duration, bool) {
	lim, _ := q.limiters.LoadOrCompute(loc, func() *rate.Limiter {
		return rate.NewLimiter(q.limit, q.burst)
	})

	// a single request may never need more than the whole bucket
	n := min(int(math.Ceil(charge)), q.burst)
	if n < 1 {
		n = 1
	}

	r := lim.ReserveN(now, n)
	if !r.OK() {
		return time.Second, false
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return delay, false
	}
	return 0, true
}
