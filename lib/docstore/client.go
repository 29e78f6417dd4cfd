package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"time"
)

var log = logger.GetLogger("docstore")

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// Client performs typed document operations on one collection through a handler chain.
// It is safe for concurrent use if the handler is.
type Client struct {
	handler    Handler
	database   string
	collection string
}

// NewClient creates a client that sends every request through handler
func NewClient(handler Handler, database, collection string) *Client {
	return &Client{
		handler:    handler,
		database:   database,
		collection: collection,
	}
}

func (c *Client) Database() string   { return c.database }
func (c *Client) Collection() string { return c.collection }

// CreateItem inserts doc into the partition. The document must carry an "id" field.
func (c *Client) CreateItem(ctx context.Context, partitionKey string, doc any) (*Response, error) {
	return c.write(ctx, OpCreate, partitionKey, doc, "")
}

// UpsertItem inserts or overwrites doc
func (c *Client) UpsertItem(ctx context.Context, partitionKey string, doc any) (*Response, error) {
	return c.write(ctx, OpUpsert, partitionKey, doc, "")
}

// ReplaceItem overwrites an existing document. A non-empty ifMatch makes the write conditional
// on the stored ETag, a mismatch fails with ErrPreconditionFailed.
func (c *Client) ReplaceItem(ctx context.Context, partitionKey string, doc any, ifMatch string) (*Response, error) {
	return c.write(ctx, OpReplace, partitionKey, doc, ifMatch)
}

// ReadItem reads a single document, decode it with Response.Decode
func (c *Client) ReadItem(ctx context.Context, partitionKey, id string) (*Response, error) {
	return c.send(ctx, &Request{Op: OpRead, PartitionKey: partitionKey, ID: id})
}

// DeleteItem deletes a single document
func (c *Client) DeleteItem(ctx context.Context, partitionKey, id string) (*Response, error) {
	return c.send(ctx, &Request{Op: OpDelete, PartitionKey: partitionKey, ID: id})
}

// Query returns a fresh iterator over the query's result pages.
// maxItemCount <= 0 lets the backend pick the page size.
func (c *Client) Query(q Query, maxItemCount int) *FeedIterator {
	return &FeedIterator{
		client:       c,
		query:        q,
		maxItemCount: maxItemCount,
	}
}

func (c *Client) write(ctx context.Context, op Op, partitionKey string, doc any, ifMatch string) (*Response, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("docstore: failed to encode document: %w", err)
	}
	return c.send(ctx, &Request{Op: op, PartitionKey: partitionKey, Body: body, IfMatch: ifMatch})
}

// send fills in the collection, runs the handler chain and converts non-success responses
// into a *StatusError. The response is returned in both cases.
func (c *Client) send(ctx context.Context, req *Request) (*Response, error) {
	req.Database = c.database
	req.Collection = c.collection

	resp, err := c.handler.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ErrorFromResponse(req.Op, resp); err != nil {
		log.Debugf("%s on %s/%s (partition %q) failed: %v", req.Op, c.database, c.collection, req.PartitionKey, err)
		return resp, err
	}
	return resp, nil
}

// --------------------------------------------------------------------------
// Feed Iterator
// --------------------------------------------------------------------------

// FeedPage is one page of query results
type FeedPage struct {
	Items         [][]byte
	Continuation  string
	TotalCount    int
	RequestCharge float64
	Elapsed       time.Duration
}

// FeedIterator walks the pages of a query using the backend's continuation tokens.
// It is not safe for concurrent use.
type FeedIterator struct {
	client       *Client
	query        Query
	maxItemCount int
	continuation string
	done         bool
}

// HasMoreResults reports whether ReadNext can fetch another page
func (it *FeedIterator) HasMoreResults() bool {
	return !it.done
}

// ReadNext fetches the next page. On error the cursor does not move, so the call may be repeated.
func (it *FeedIterator) ReadNext(ctx context.Context) (*FeedPage, error) {
	if it.done {
		return nil, ErrNoMoreResults
	}

	q := it.query
	start := time.Now()
	resp, err := it.client.send(ctx, &Request{
		Op:           OpQuery,
		PartitionKey: q.PartitionKey,
		Query:        &q,
		Continuation: it.continuation,
		MaxItemCount: it.maxItemCount,
	})
	if err != nil {
		return nil, err
	}

	it.continuation = resp.Continuation
	it.done = resp.Continuation == ""

	return &FeedPage{
		Items:         resp.Items,
		Continuation:  resp.Continuation,
		TotalCount:    resp.TotalCount,
		RequestCharge: resp.RequestCharge,
		Elapsed:       time.Since(start),
	}, nil
}
