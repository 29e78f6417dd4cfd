package query

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("query")

var (
	pagesRead     = metrics.NewCounter(`daudit_query_pages_total`)
	pageDuration  = metrics.NewHistogram(`daudit_query_page_duration_seconds`)
	requestCharge = metrics.NewFloatCounter(`daudit_query_request_charge_total`)
)

// Drain reads every remaining page of it, decodes each item into T and appends project(item)
// to the result. The iterator is consumed, run a new query to start over.
//
// On error the items collected so far are returned together with the error.
func Drain[T, R any](ctx context.Context, it *docstore.FeedIterator, project func(T) R) ([]R, error) {
	var out []R
	for page := 1; it.HasMoreResults(); page++ {
		p, err := it.ReadNext(ctx)
		if err != nil {
			return out, fmt.Errorf("failed to read page %d: %w", page, err)
		}

		log.Debugf("Page take: %s - %.2f request units (%d items)", p.Elapsed, p.RequestCharge, len(p.Items))
		pagesRead.Inc()
		pageDuration.Update(p.Elapsed.Seconds())
		requestCharge.Add(p.RequestCharge)

		for _, raw := range p.Items {
			var item T
			if err := json.Unmarshal(raw, &item); err != nil {
				return out, fmt.Errorf("failed to decode item on page %d: %w", page, err)
			}
			out = append(out, project(item))
		}
	}
	return out, nil
}

// Identity is a projection that keeps the decoded item
func Identity[T any](item T) T { return item }
