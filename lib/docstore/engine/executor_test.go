package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"net/http"
	"testing"
	"time"
)

func newTestClient(opts ...ExecutorOption) (*docstore.Client, *Executor) {
	e := NewExecutor(NewMemoryStore(), opts...)
	return docstore.NewClient(e, "Annotations", "EventsData"), e
}

func TestExecutorItemLifecycle(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	created, err := c.CreateItem(ctx, "1-1", map[string]any{"id": "a", "subject": "x"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if created.StatusCode != http.StatusCreated || created.ETag == "" || created.RequestCharge <= 0 {
		t.Errorf("unexpected create response %+v", created)
	}

	if _, err := c.CreateItem(ctx, "1-1", map[string]any{"id": "a"}); !errors.Is(err, docstore.ErrConflict) {
		t.Errorf("duplicate CreateItem = %v, want ErrConflict", err)
	}

	read, err := c.ReadItem(ctx, "1-1", "a")
	if err != nil {
		t.Fatalf("ReadItem failed: %v", err)
	}
	if read.ETag != created.ETag {
		t.Errorf("read etag %s, created %s", read.ETag, created.ETag)
	}

	// replace with the current etag succeeds and rotates it
	replaced, err := c.ReplaceItem(ctx, "1-1", map[string]any{"id": "a", "subject": "y"}, read.ETag)
	if err != nil {
		t.Fatalf("ReplaceItem failed: %v", err)
	}
	if replaced.ETag == read.ETag {
		t.Error("replace did not rotate the etag")
	}

	// the old etag is stale now
	_, err = c.ReplaceItem(ctx, "1-1", map[string]any{"id": "a", "subject": "z"}, read.ETag)
	if !errors.Is(err, docstore.ErrPreconditionFailed) {
		t.Errorf("ReplaceItem with stale etag = %v, want ErrPreconditionFailed", err)
	}

	if _, err := c.UpsertItem(ctx, "1-1", map[string]any{"id": "b"}); err != nil {
		t.Errorf("UpsertItem failed: %v", err)
	}

	if _, err := c.DeleteItem(ctx, "1-1", "a"); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	if _, err := c.ReadItem(ctx, "1-1", "a"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("ReadItem after delete = %v, want ErrNotFound", err)
	}
}

func TestExecutorBadRequests(t *testing.T) {
	e := NewExecutor(NewMemoryStore())
	ctx := context.Background()

	tests := []struct {
		name string
		req  *docstore.Request
	}{
		{"missing collection", &docstore.Request{Op: docstore.OpRead, Database: "db", ID: "a"}},
		{"document without id", &docstore.Request{Op: docstore.OpCreate, Database: "db", Collection: "c", Body: []byte(`{"x":1}`)}},
		{"document not an object", &docstore.Request{Op: docstore.OpUpsert, Database: "db", Collection: "c", Body: []byte(`[1]`)}},
		{"read without id", &docstore.Request{Op: docstore.OpRead, Database: "db", Collection: "c"}},
		{"malformed continuation", &docstore.Request{Op: docstore.OpQuery, Database: "db", Collection: "c", Continuation: "%%%"}},
		{"unknown op", &docstore.Request{Op: docstore.OpUnknown, Database: "db", Collection: "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := e.Send(ctx, tt.req)
			if err != nil {
				t.Fatalf("Send returned error %v", err)
			}
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", resp.StatusCode, resp.Message)
			}
		})
	}
}

func TestExecutorCancelledContext(t *testing.T) {
	e := NewExecutor(NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Send(ctx, &docstore.Request{Op: docstore.OpRead}); !errors.Is(err, context.Canceled) {
		t.Errorf("Send with cancelled context = %v, want context.Canceled", err)
	}
}

func TestExecutorQueryPaging(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	// 25 events in partition 1-1, 5 in 1-2
	for i := 0; i < 30; i++ {
		pk := "1-1"
		if i >= 25 {
			pk = "1-2"
		}
		doc := map[string]any{
			"id":       fmt.Sprintf("e%02d", i),
			"groupKey": pk,
			"created":  base.Add(time.Duration(i) * time.Hour),
		}
		if _, err := c.CreateItem(ctx, pk, doc); err != nil {
			t.Fatalf("CreateItem failed: %v", err)
		}
	}

	q := docstore.Query{
		PartitionKey: "1-1",
		Predicates:   []docstore.Predicate{docstore.Ge("created", base.Add(5*time.Hour))},
		OrderBy:      "created",
		Descending:   true,
	}

	it := c.Query(q, 7)
	var ids []string
	pages := 0
	for it.HasMoreResults() {
		page, err := it.ReadNext(ctx)
		if err != nil {
			t.Fatalf("ReadNext failed: %v", err)
		}
		pages++
		if page.TotalCount != 20 {
			t.Errorf("TotalCount = %d, want 20", page.TotalCount)
		}
		if page.RequestCharge <= 0 {
			t.Error("page has no request charge")
		}
		for _, raw := range page.Items {
			var d struct{ ID string }
			if err := json.Unmarshal(raw, &d); err != nil {
				t.Fatalf("invalid item: %v", err)
			}
			ids = append(ids, d.ID)
		}
	}

	if pages != 3 {
		t.Errorf("pages = %d, want 3", pages)
	}
	if len(ids) != 20 {
		t.Fatalf("got %d ids, want 20", len(ids))
	}
	if ids[0] != "e24" || ids[19] != "e05" {
		t.Errorf("order is wrong: first %s, last %s", ids[0], ids[19])
	}

	// cross partition query sees both partitions
	all := c.Query(docstore.Query{OrderBy: "created"}, 0)
	page, err := all.ReadNext(ctx)
	if err != nil {
		t.Fatalf("cross partition query failed: %v", err)
	}
	if len(page.Items) != 30 || all.HasMoreResults() {
		t.Errorf("cross partition query returned %d items, more=%v", len(page.Items), all.HasMoreResults())
	}
}

func TestExecutorQuota(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	// 10 units per second, a write costs 6 units (5 + 1 started kilobyte)
	e := NewExecutor(NewMemoryStore(), WithQuota(10, 10), WithClock(clock))
	ctx := context.Background()

	write := func(pk, id string) *docstore.Response {
		resp, err := e.Send(ctx, &docstore.Request{
			Op: docstore.OpUpsert, Database: "db", Collection: "c", PartitionKey: pk,
			Body: []byte(fmt.Sprintf(`{"id":%q}`, id)),
		})
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		return resp
	}

	if resp := write("p1", "a"); resp.StatusCode != http.StatusOK {
		t.Fatalf("first write status = %d", resp.StatusCode)
	}
	resp := write("p1", "b")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second write status = %d, want 429", resp.StatusCode)
	}
	if resp.RetryAfterMs <= 0 {
		t.Errorf("RetryAfterMs = %d, want > 0", resp.RetryAfterMs)
	}

	// other partitions have their own budget
	if resp := write("p2", "a"); resp.StatusCode != http.StatusOK {
		t.Errorf("write to another partition status = %d", resp.StatusCode)
	}

	// after the hinted delay the budget is available again
	now = now.Add(time.Duration(resp.RetryAfterMs+1) * time.Millisecond)
	if resp := write("p1", "b"); resp.StatusCode != http.StatusOK {
		t.Errorf("write after retry-after status = %d", resp.StatusCode)
	}
}

func TestContinuationToken(t *testing.T) {
	token := encodeToken(40, 93)
	offset, err := decodeToken(token)
	if err != nil || offset != 40 {
		t.Fatalf("decodeToken = (%d, %v), want 40", offset, err)
	}
	if offset, err := decodeToken(""); err != nil || offset != 0 {
		t.Errorf("empty token = (%d, %v), want 0", offset, err)
	}
	if _, err := decodeToken("bm90IGpzb24"); err == nil {
		t.Error("expected an error for a token that is not json")
	}
}
