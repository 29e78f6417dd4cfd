package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"github.com/ValentinKolb/dAudit/lib/docstore/engine"
	"github.com/ValentinKolb/dAudit/lib/id"
	"github.com/ValentinKolb/dAudit/lib/pipeline"
	"github.com/ValentinKolb/dAudit/lib/settings"
	"math"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func noSleep() pipeline.ThrottlingOption {
	return pipeline.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })
}

// newTestEvents returns an Events instance on its own connection that ends in terminal
func newTestEvents(t *testing.T, connString string, terminal docstore.Handler, opts ...Option) *Events {
	t.Helper()
	if connString == "" {
		connString = "Transport=local"
	}
	m := &ConnectionManager{}
	t.Cleanup(func() { _ = m.Close() })

	opts = append([]Option{
		WithConnections(m),
		WithTerminal(terminal),
		WithThrottlingOptions(noSleep()),
		WithClock(func() time.Time { return t0 }),
	}, opts...)

	e, err := New(connString, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func newStore(t *testing.T) *engine.Executor {
	t.Helper()
	ex := engine.NewExecutor(engine.NewMemoryStore())
	t.Cleanup(func() { _ = ex.Close() })
	return ex
}

// failing answers every request with status
func failing(status int, calls *atomic.Int32) docstore.Handler {
	return docstore.HandlerFunc(func(_ context.Context, _ *docstore.Request) (*docstore.Response, error) {
		if calls != nil {
			calls.Add(1)
		}
		return &docstore.Response{StatusCode: status, Message: "injected"}, nil
	})
}

// rawDocument reads the stored json of an event
func rawDocument(t *testing.T, store docstore.Handler, ev *Event) map[string]any {
	t.Helper()
	c := docstore.NewClient(store, DefaultDatabase, DefaultCollection)
	resp, err := c.ReadItem(context.Background(), ev.GroupKey, ev.ID)
	if err != nil {
		t.Fatalf("ReadItem failed: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		t.Fatalf("invalid document: %v", err)
	}
	return doc
}

// --------------------------------------------------------------------------
// Save
// --------------------------------------------------------------------------

func TestSaveAssignsIdentity(t *testing.T) {
	store := newStore(t)
	e := newTestEvents(t, "", store)
	ctx := context.Background()

	first := &Event{ID: "caller-id", GroupKey: "bogus", ProfileID: 42, ItemID: 42, ItemType: ItemTypeProfile, Subject: "logged in"}
	if err := e.Save(ctx, first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if first.ID == "caller-id" || first.ID == "" {
		t.Errorf("ID = %q, want a generated identifier", first.ID)
	}
	if first.GroupKey != "1-42" {
		t.Errorf("GroupKey = %q, want 1-42", first.GroupKey)
	}
	if !first.Created.Equal(t0) {
		t.Errorf("Created = %s, want %s", first.Created, t0)
	}

	second := &Event{ProfileID: 42, ItemID: 42, ItemType: ItemTypeProfile, Subject: "logged out", Created: t0.Add(time.Hour)}
	if err := e.Save(ctx, second); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("identifiers not increasing: %s then %s", first.ID, second.ID)
	}
	if !second.Created.Equal(t0.Add(time.Hour)) {
		t.Errorf("a caller supplied creation time was replaced: %s", second.Created)
	}

	read, err := e.ReadEvent(ctx, first.GroupKey, first.ID)
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if read.Subject != "logged in" || read.ProfileID != 42 {
		t.Errorf("read back %+v", read)
	}

	if _, err := e.ReadEvent(ctx, "1-42", "missing"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("ReadEvent of a missing event: got %v, want ErrNotFound", err)
	}
}

func TestSaveNormalizes(t *testing.T) {
	tests := []struct {
		name           string
		event          Event
		wantOS         any // stored json value
		wantOSVersion  string
		wantAppVersion string
	}{
		{
			name:           "mobile with unset os",
			event:          Event{InputType: ptr(InputMobileApp), OS: ptr(OS(0)), OSVersion: " 14.1 ", AppVersion: "2.0.1\n"},
			wantOS:         nil,
			wantOSVersion:  "14.1",
			wantAppVersion: "2.0.1",
		},
		{
			name:           "mobile with os",
			event:          Event{InputType: ptr(InputMobileApp), OS: ptr(OSIOS), OSVersion: "17", AppVersion: "3"},
			wantOS:         float64(OSIOS),
			wantOSVersion:  "17",
			wantAppVersion: "3",
		},
		{
			name:   "web never carries an os",
			event:  Event{InputType: ptr(InputWebPortal), OS: ptr(OSWindows)},
			wantOS: nil,
		},
		{
			name:          "no input type is left alone",
			event:         Event{OS: ptr(OS(0)), OSVersion: " 1 "},
			wantOS:        float64(0),
			wantOSVersion: " 1 ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			e := newTestEvents(t, "", store)

			ev := tt.event
			ev.ItemType, ev.ItemID, ev.ProfileID, ev.Subject = ItemTypeProfile, 1, 1, "updated"
			if err := e.Save(context.Background(), &ev); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			doc := rawDocument(t, store, &ev)
			os, ok := doc["os"]
			if !ok {
				t.Fatalf("stored document has no os field: %v", doc)
			}
			if os != tt.wantOS {
				t.Errorf("os = %v, want %v", os, tt.wantOS)
			}
			if ev.OSVersion != tt.wantOSVersion {
				t.Errorf("OSVersion = %q, want %q", ev.OSVersion, tt.wantOSVersion)
			}
			if ev.AppVersion != tt.wantAppVersion {
				t.Errorf("AppVersion = %q, want %q", ev.AppVersion, tt.wantAppVersion)
			}
		})
	}
}

func TestSaveErrors(t *testing.T) {
	e := newTestEvents(t, "MaximumExponentialRetries=0", failing(http.StatusBadRequest, nil))

	if err := e.Save(context.Background(), nil); !errors.Is(err, ErrNilEvent) {
		t.Errorf("Save(nil): got %v, want ErrNilEvent", err)
	}

	err := e.Save(context.Background(), &Event{ItemType: ItemTypeProfile, ItemID: 1})
	if !errors.Is(err, docstore.ErrBadRequest) {
		t.Errorf("got %v, want ErrBadRequest", err)
	}
}

func TestSaveRetriesThrottledWrites(t *testing.T) {
	store := newStore(t)
	var throttled atomic.Int32
	terminal := docstore.HandlerFunc(func(ctx context.Context, req *docstore.Request) (*docstore.Response, error) {
		if throttled.Add(1) <= 2 {
			return &docstore.Response{StatusCode: http.StatusTooManyRequests, RetryAfterMs: 5}, nil
		}
		return store.Send(ctx, req)
	})
	e := newTestEvents(t, "MaximumExponentialRetries=3", terminal)

	ev := &Event{ItemType: ItemTypeProfile, ItemID: 9, ProfileID: 9, Subject: "logged in"}
	if err := e.Save(context.Background(), ev); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if got := throttled.Load(); got != 3 {
		t.Errorf("terminal called %d times, want 3", got)
	}
	if _, err := e.ReadEvent(context.Background(), ev.GroupKey, ev.ID); err != nil {
		t.Errorf("event was not stored: %v", err)
	}
}

func TestSaveMany(t *testing.T) {
	store := newStore(t)
	e := newTestEvents(t, "", store)

	evs := make([]*Event, 10)
	for i := range evs {
		evs[i] = &Event{ItemType: ItemTypeProfile, ItemID: i, ProfileID: i, Subject: "created"}
	}

	results, err := e.SaveMany(context.Background(), evs)
	if err != nil {
		t.Fatalf("SaveMany failed: %v", err)
	}
	if len(results) != len(evs) {
		t.Fatalf("got %d results, want %d", len(results), len(evs))
	}
	for i, r := range results {
		if r.Err != nil || r.Event != evs[i] {
			t.Errorf("result %d = %+v", i, r)
		}
	}

	resp, err := e.QueryEvents(context.Background(), EventQuery{})
	if err != nil {
		t.Fatalf("QueryEvents failed: %v", err)
	}
	if resp.TotalCount != len(evs) {
		t.Errorf("TotalCount = %d, want %d", resp.TotalCount, len(evs))
	}

	if results, err := e.SaveMany(context.Background(), nil); results != nil || err != nil {
		t.Errorf("SaveMany(nil) = %v, %v", results, err)
	}
}

func TestSaveManyCollectsErrors(t *testing.T) {
	store := newStore(t)
	terminal := docstore.HandlerFunc(func(ctx context.Context, req *docstore.Request) (*docstore.Response, error) {
		if req.PartitionKey == "1-2" {
			return &docstore.Response{StatusCode: http.StatusBadRequest}, nil
		}
		return store.Send(ctx, req)
	})
	e := newTestEvents(t, "", terminal)

	evs := []*Event{
		{ItemType: ItemTypeProfile, ItemID: 1},
		{ItemType: ItemTypeProfile, ItemID: 2},
		{ItemType: ItemTypeProfile, ItemID: 3},
	}
	results, err := e.SaveMany(context.Background(), evs)
	if !errors.Is(err, docstore.ErrBadRequest) {
		t.Fatalf("got %v, want ErrBadRequest", err)
	}
	for i, r := range results {
		if failed := r.Err != nil; failed != (i == 1) {
			t.Errorf("result %d: err = %v", i, r.Err)
		}
	}
}

func TestSaveManyReturnsWhenContextDone(t *testing.T) {
	store := newStore(t)
	release := make(chan struct{})
	var completed atomic.Int32
	terminal := docstore.HandlerFunc(func(ctx context.Context, req *docstore.Request) (*docstore.Response, error) {
		<-release
		resp, err := store.Send(ctx, req)
		completed.Add(1)
		return resp, err
	})
	e := newTestEvents(t, "", terminal)

	evs := []*Event{
		{ItemType: ItemTypeProfile, ItemID: 1},
		{ItemType: ItemTypeProfile, ItemID: 2},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	results, err := e.SaveMany(ctx, evs)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}
	for i, r := range results {
		if !errors.Is(r.Err, ErrNotAwaited) {
			t.Errorf("result %d: err = %v, want ErrNotAwaited", i, r.Err)
		}
	}

	// the dispatched saves are not cancelled
	close(release)
	deadline := time.Now().Add(5 * time.Second)
	for completed.Load() < int32(len(evs)) {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d saves completed", completed.Load(), len(evs))
		}
		time.Sleep(5 * time.Millisecond)
	}
	for _, ev := range evs {
		if _, err := e.ReadEvent(context.Background(), ev.GroupKey, ev.ID); err != nil {
			t.Errorf("event %s was not stored: %v", ev.ID, err)
		}
	}
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// seed saves the events with ascending creation times, one minute apart
func seed(t *testing.T, e *Events, evs ...Event) []Event {
	t.Helper()
	for i := range evs {
		evs[i].Created = t0.Add(time.Duration(i) * time.Minute)
		if err := e.Save(context.Background(), &evs[i]); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	return evs
}

func subjects[T any](items []T, subject func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, subject(item))
	}
	return out
}

func equal(a, b []string) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func TestQueryEvents(t *testing.T) {
	e := newTestEvents(t, "", newStore(t))
	seed(t, e,
		Event{ItemType: ItemTypeProfile, ItemID: 1, ProfileID: 1, Subject: "e0", InputType: ptr(InputMobileApp), OS: ptr(OSAndroid), AddedBy: "Ann"},
		Event{ItemType: ItemTypeProfile, ItemID: 2, ProfileID: 2, Subject: "e1", InputType: ptr(InputWebPortal)},
		Event{ItemType: ItemTypeProfile, ItemID: 1, ProfileID: 1, Subject: "e2"},
		Event{ItemType: 2, ItemID: 1, ProfileID: 1, Subject: "e3"},
		Event{ItemType: ItemTypeProfile, ItemID: 3, ProfileID: 3, Subject: "e4"},
	)

	tests := []struct {
		name  string
		query EventQuery
		want  []string
		total int
	}{
		{"everything newest first", EventQuery{}, []string{"e4", "e3", "e2", "e1", "e0"}, 5},
		{"empty profile list is no filter", EventQuery{ProfileIDs: []int{}}, []string{"e4", "e3", "e2", "e1", "e0"}, 5},
		{"profile allow-list", EventQuery{ProfileIDs: []int{1}}, []string{"e3", "e2", "e0"}, 5},
		{"from is inclusive", EventQuery{From: ptr(t0.Add(3 * time.Minute))}, []string{"e4", "e3"}, 2},
		{"to is inclusive", EventQuery{To: ptr(t0.Add(time.Minute))}, []string{"e1", "e0"}, 2},
		{"item type and id", EventQuery{ItemType: ptr(1), ItemID: ptr(1)}, []string{"e2", "e0"}, 2},
		{"subject", EventQuery{Subject: "E3"}, []string{"e3"}, 1},
		{"first page", EventQuery{PageSize: 2}, []string{"e4", "e3"}, 5},
		{"second page", EventQuery{Offset: 2, PageSize: 2}, []string{"e2", "e1"}, 5},
		{"last page", EventQuery{Offset: 4, PageSize: 2}, []string{"e0"}, 5},
		{"past the end", EventQuery{Offset: 10, PageSize: 2}, []string{}, 5},
		{"page then allow-list", EventQuery{PageSize: 2, ProfileIDs: []int{2}}, []string{}, 5},
		{"largest page size", EventQuery{Offset: 1, PageSize: math.MaxInt}, []string{"e3", "e2", "e1", "e0"}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := e.QueryEvents(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("QueryEvents failed: %v", err)
			}
			got := subjects(resp.Items, func(v EventView) string { return v.Subject })
			if !equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if resp.TotalCount != tt.total {
				t.Errorf("TotalCount = %d, want %d", resp.TotalCount, tt.total)
			}
		})
	}

	t.Run("view", func(t *testing.T) {
		resp, err := e.QueryEvents(context.Background(), EventQuery{Subject: "e0"})
		if err != nil || len(resp.Items) != 1 {
			t.Fatalf("QueryEvents = %v, %v", resp, err)
		}
		v := resp.Items[0]
		if v.OS != "Android" || v.InputType != "Mobile App" || v.FullName != "Ann" || !v.Created.Equal(t0) {
			t.Errorf("view = %+v", v)
		}

		resp, _ = e.QueryEvents(context.Background(), EventQuery{Subject: "e1"})
		if v := resp.Items[0]; v.OS != "" || v.InputType != "Web Portal" {
			t.Errorf("view = %+v", v)
		}
	})
}

func TestQueryProfileAudit(t *testing.T) {
	e := newTestEvents(t, "", newStore(t))
	seed(t, e,
		Event{ItemType: ItemTypeProfile, ItemID: 7, ProfileID: 7, Subject: "logged in", Data: "d0"},
		Event{ItemType: ItemTypeProfile, ItemID: 8, ProfileID: 8, Subject: "logged in"},
		Event{ItemType: ItemTypeProfile, ItemID: 7, ProfileID: 7, Subject: "password changed", Data: "d2"},
		Event{ItemType: 2, ItemID: 7, ProfileID: 7, Subject: "logged out"},
	)

	tests := []struct {
		name    string
		from    *time.Time
		subject string
		want    []string
	}{
		{"whole profile", nil, "", []string{"password changed", "logged in"}},
		{"subject", nil, "password", []string{"password changed"}},
		{"from", ptr(t0.Add(time.Minute)), "", []string{"password changed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := e.QueryProfileAudit(context.Background(), tt.from, nil, 7, tt.subject)
			if err != nil {
				t.Fatalf("QueryProfileAudit failed: %v", err)
			}
			got := subjects(report, func(r ProfileEventReport) string { return r.Subject })
			if !equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	report, _ := e.QueryProfileAudit(context.Background(), nil, nil, 99, "")
	if report == nil || len(report) != 0 {
		t.Errorf("unknown profile: got %v, want an empty report", report)
	}
}

func TestQueryLoginEvents(t *testing.T) {
	e := newTestEvents(t, "", newStore(t))
	seed(t, e,
		Event{ItemType: ItemTypeProfile, ItemID: 1, ProfileID: 1, Subject: "logged in", AddedByID: ptr(10)},
		Event{ItemType: ItemTypeProfile, ItemID: 2, ProfileID: 2, Subject: "logged in", AddedByID: ptr(20)},
		Event{ItemType: ItemTypeProfile, ItemID: 1, ProfileID: 1, Subject: "password changed"},
		Event{ItemType: ItemTypeProfile, ItemID: 3, ProfileID: 3, Subject: "session expired"},
		Event{ItemType: 2, ItemID: 1, ProfileID: 1, Subject: "logged out"},
		Event{ItemType: ItemTypeProfile, ItemID: 2, ProfileID: 2, Subject: "logged out"},
	)

	tests := []struct {
		name  string
		query LoginQuery
		want  []string // profile:subject
	}{
		{"every profile", LoginQuery{}, []string{"2:logged out", "3:session expired", "2:logged in", "1:logged in"}},
		{"employee", LoginQuery{EmployeeID: ptr(2)}, []string{"2:logged out", "2:logged in"}},
		{"employee and client", LoginQuery{EmployeeID: ptr(1), ClientID: ptr(3)}, []string{"3:session expired", "1:logged in"}},
		{"subject replaces the login subjects", LoginQuery{EmployeeID: ptr(1), Subject: "password"}, []string{"1:password changed"}},
		{"added by", LoginQuery{AddedByID: ptr(20)}, []string{"2:logged in"}},
		{"to", LoginQuery{To: ptr(t0.Add(time.Minute))}, []string{"2:logged in", "1:logged in"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := e.QueryLoginEvents(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("QueryLoginEvents failed: %v", err)
			}
			got := subjects(report, func(r LoginEventReport) string { return fmt.Sprintf("%d:%s", r.ProfileID, r.Subject) })
			if !equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReportFailureMode(t *testing.T) {
	tests := []struct {
		name       string
		connString string
		opts       []Option
		wantErr    bool
	}{
		{"fails open by default", "MaximumExponentialRetries=0", nil, false},
		{"closed by connection string", "MaximumExponentialRetries=0;ReportFailureMode=closed", nil, true},
		{"closed by option", "MaximumExponentialRetries=0", []Option{WithReportFailureMode(FailClosed)}, true},
		{"option overrides connection string", "MaximumExponentialRetries=0;ReportFailureMode=closed", []Option{WithReportFailureMode(FailOpen)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEvents(t, tt.connString, failing(http.StatusServiceUnavailable, nil), tt.opts...)
			ctx := context.Background()

			audit, err := e.QueryProfileAudit(ctx, nil, nil, 1, "")
			if (err != nil) != tt.wantErr {
				t.Errorf("QueryProfileAudit error = %v, wantErr %v", err, tt.wantErr)
			}
			if audit == nil || len(audit) != 0 {
				t.Errorf("QueryProfileAudit report = %v, want empty", audit)
			}

			logins, err := e.QueryLoginEvents(ctx, LoginQuery{})
			if (err != nil) != tt.wantErr {
				t.Errorf("QueryLoginEvents error = %v, wantErr %v", err, tt.wantErr)
			}
			if logins == nil || len(logins) != 0 {
				t.Errorf("QueryLoginEvents report = %v, want empty", logins)
			}

			// the paged query always reports its failure
			if _, err := e.QueryEvents(ctx, EventQuery{}); err == nil {
				t.Error("QueryEvents succeeded against a failing store")
			}
		})
	}
}

func TestParseReportFailureMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ReportFailureMode
		wantErr bool
	}{
		{"open", FailOpen, false},
		{" Closed ", FailClosed, false},
		{"FailClosed", FailClosed, false},
		{"failopen", FailOpen, false},
		{"sometimes", FailOpen, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseReportFailureMode(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseReportFailureMode(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}

// --------------------------------------------------------------------------
// Connections
// --------------------------------------------------------------------------

func TestConnectionSharedByFirstWriter(t *testing.T) {
	m := &ConnectionManager{}
	t.Cleanup(func() { _ = m.Close() })

	var firstCalls, secondCalls atomic.Int32
	first := failing(http.StatusBadRequest, &firstCalls)
	second := failing(http.StatusBadRequest, &secondCalls)

	a, err := New("Transport=local;MaximumExponentialRetries=0", WithConnections(m), WithTerminal(first))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b, err := New("Transport=local;MaximumExponentialRetries=2", WithConnections(m), WithTerminal(second))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// every instance keeps its own settings
	if a.Settings().MaximumExponentialRetries() != 0 || b.Settings().MaximumExponentialRetries() != 2 {
		t.Errorf("settings = %d, %d", a.Settings().MaximumExponentialRetries(), b.Settings().MaximumExponentialRetries())
	}

	// but the pipeline of the first one is shared
	_ = b.Save(context.Background(), &Event{ItemType: ItemTypeProfile, ItemID: 1})
	if firstCalls.Load() != 1 || secondCalls.Load() != 0 {
		t.Errorf("terminal calls = %d, %d, want 1, 0", firstCalls.Load(), secondCalls.Load())
	}
}

func TestConnectionManagerRetriesFailedOpen(t *testing.T) {
	m := &ConnectionManager{}
	s := settings.New()

	_, err := m.Get(s, func(settings.ThrottleSettings) (*Connection, error) {
		return nil, errors.New("unreachable")
	})
	if err == nil {
		t.Fatal("Get succeeded with a failing open")
	}

	opens := 0
	open := func(settings.ThrottleSettings) (*Connection, error) {
		opens++
		return &Connection{Handler: failing(http.StatusOK, nil)}, nil
	}
	c1, err := m.Get(s, open)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	c2, _ := m.Get(s, open)
	if c1 != c2 || opens != 1 {
		t.Errorf("opens = %d, same connection = %v", opens, c1 == c2)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, _ = m.Get(s, open); opens != 2 {
		t.Errorf("Get after Close did not reopen, opens = %d", opens)
	}
}

func TestNewFromEnvironment(t *testing.T) {
	t.Setenv(ConnectionStringEnv, "Transport=local;MaxRequestsPerTcpConnection=50;Collection=Other")

	store := newStore(t)
	e := newTestEvents(t, " ", store)
	if got := e.Settings().MaxRequestsPerTcpConnection(); got != 50 {
		t.Errorf("MaxRequestsPerTcpConnection = %d, want 50", got)
	}
	if e.client.Collection() != "Other" || e.client.Database() != DefaultDatabase {
		t.Errorf("collection = %s/%s", e.client.Database(), e.client.Collection())
	}
}

func TestNewRejectsInvalidConnectionStrings(t *testing.T) {
	tests := []struct {
		name       string
		connString string
	}{
		{"unknown transport", "Endpoint=localhost:1;Transport=carrier-pigeon"},
		{"remote transport without endpoint", "Transport=tcp"},
		{"unknown serializer", "Endpoint=localhost:1;Serializer=xml"},
		{"invalid failure mode", "ReportFailureMode=sometimes"},
		{"invalid connections per endpoint", "Endpoint=localhost:1;ConnectionsPerEndpoint=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.connString, WithConnections(&ConnectionManager{}))
			if err == nil {
				t.Errorf("New(%q) succeeded", tt.connString)
			}
		})
	}
}

func TestLocalPebbleStore(t *testing.T) {
	dir := t.TempDir()
	connString := "Transport=local;DataDir=" + dir

	save := func() *Event {
		m := &ConnectionManager{}
		defer func() { _ = m.Close() }()
		e, err := New(connString, WithConnections(m))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		ev := &Event{ItemType: ItemTypeProfile, ItemID: 5, ProfileID: 5, Subject: "logged in"}
		if err := e.Save(context.Background(), ev); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		return ev
	}
	ev := save()

	// reopened from disk
	m := &ConnectionManager{}
	defer func() { _ = m.Close() }()
	e, err := New(connString, WithConnections(m), WithIDGenerator(id.NewGenerator()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	read, err := e.ReadEvent(context.Background(), ev.GroupKey, ev.ID)
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if read.Subject != "logged in" {
		t.Errorf("read back %+v", read)
	}
}
