package events

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"github.com/ValentinKolb/dAudit/lib/id"
	"github.com/ValentinKolb/dAudit/lib/pipeline"
	"github.com/ValentinKolb/dAudit/lib/settings"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/sourcegraph/conc"
	"io"
	"strings"
	"sync"
	"time"
)

var log = logger.GetLogger("events")

var (
	// ErrNilEvent is returned by Save for a nil event
	ErrNilEvent = errors.New("events: nil event")

	// ErrNotAwaited is the result of a SaveMany item that had not finished when the context was done.
	// The save keeps running in the background, its outcome is only logged.
	ErrNotAwaited = errors.New("events: save not awaited")
)

// ReportFailureMode decides what the report queries do when the store fails
type ReportFailureMode int

const (
	// FailOpen logs the failure and returns an empty report
	FailOpen ReportFailureMode = iota
	// FailClosed returns the error
	FailClosed
)

func (m ReportFailureMode) String() string {
	if m == FailClosed {
		return "closed"
	}
	return "open"
}

// ParseReportFailureMode parses "open" or "closed" (case-insensitive)
func ParseReportFailureMode(s string) (ReportFailureMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "failopen":
		return FailOpen, nil
	case "closed", "failclosed":
		return FailClosed, nil
	}
	return FailOpen, fmt.Errorf("invalid report failure mode %q", s)
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

// Events saves and queries events. Instances are cheap, every instance carries its own copy of
// the settings parsed from its connection string but they all share one connection per
// ConnectionManager, configured by the settings of the first instance.
//
// All methods are safe for concurrent use.
type Events struct {
	settings    settings.ThrottleSettings
	client      *docstore.Client
	ids         *id.Generator
	failureMode ReportFailureMode
	now         func() time.Time

	connections    *ConnectionManager
	terminal       docstore.Handler
	throttlingOpts []pipeline.ThrottlingOption
}

// Option configures an Events instance
type Option func(e *Events)

// WithConnections uses m instead of DefaultConnections
func WithConnections(m *ConnectionManager) Option {
	return func(e *Events) { e.connections = m }
}

// WithTerminal ends the pipeline in h instead of the handler described by the connection string
func WithTerminal(h docstore.Handler) Option {
	return func(e *Events) { e.terminal = h }
}

// WithThrottlingOptions passes options to the throttling handler of a newly opened connection
func WithThrottlingOptions(opts ...pipeline.ThrottlingOption) Option {
	return func(e *Events) { e.throttlingOpts = append(e.throttlingOpts, opts...) }
}

// WithReportFailureMode overrides the ReportFailureMode of the connection string
func WithReportFailureMode(m ReportFailureMode) Option {
	return func(e *Events) { e.failureMode = m }
}

// WithIDGenerator replaces the process-wide identifier generator
func WithIDGenerator(g *id.Generator) Option {
	return func(e *Events) { e.ids = g }
}

// WithClock replaces time.Now for the creation time of events saved without one
func WithClock(now func() time.Time) Option {
	return func(e *Events) { e.now = now }
}

// New creates an Events instance from a connection string of the form "Key=Value;...".
// An empty connection string is read from DAUDIT_CONNECTION_STRING.
//
// Recognised keys besides the ThrottleSettings fields: Endpoint (comma separated),
// Transport (local|tcp|unix|http), Serializer (binary|json|gob), Database, Collection,
// ConnectionsPerEndpoint, DataDir (local only) and ReportFailureMode (open|closed).
func New(connString string, opts ...Option) (*Events, error) {
	d := settings.ParseDescriptor(connectionString(connString))

	conn, err := connectionOptionsFrom(d)
	if err != nil {
		return nil, err
	}

	e := &Events{
		settings:    settings.FromDescriptor(d),
		ids:         id.Default(),
		now:         time.Now,
		connections: DefaultConnections,
	}
	if raw, ok := d.Get(KeyReportFailureMode); ok {
		if e.failureMode, err = ParseReportFailureMode(raw); err != nil {
			return nil, err
		}
	}
	for _, opt := range opts {
		opt(e)
	}

	shared, err := e.connections.Get(e.settings, func(s settings.ThrottleSettings) (*Connection, error) {
		// an injected terminal is owned by the caller
		terminal := e.terminal
		var closer io.Closer
		if terminal == nil {
			h, c, err := conn.terminal(s)
			if err != nil {
				return nil, err
			}
			terminal, closer = h, c
		}
		return &Connection{
			Handler: docstore.Chain(terminal, pipeline.Throttling(s, e.throttlingOpts...), pipeline.Concurrency()),
			closer:  closer,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.client = docstore.NewClient(shared.Handler, conn.database, conn.collection)
	return e, nil
}

// Settings returns a copy of the settings of this instance
func (e *Events) Settings() settings.ThrottleSettings {
	return e.settings
}

// Save stamps the event with a new identifier and its group key, normalizes it and writes it.
// The event is modified in place. Failures are logged with the item and profile and returned.
func (e *Events) Save(ctx context.Context, ev *Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	ev.stamp(e.ids, e.now())

	// the id is fresh, so a retried write is idempotent
	if _, err := e.client.UpsertItem(ctx, ev.GroupKey, ev); err != nil {
		log.Errorf("An error occurred when saving an event (ItemID: %d, ItemType: %d, ProfileID: %d): %v",
			ev.ItemID, ev.ItemType, ev.ProfileID, err)
		return fmt.Errorf("failed to save event %s: %w", ev.ID, err)
	}
	return nil
}

// SaveResult is the outcome of one event of SaveMany
type SaveResult struct {
	Event *Event
	Err   error
}

// SaveMany saves all events concurrently. It returns when every save finished, the joined
// errors of the failed saves are returned together with the per-event results.
//
// If ctx is done first, SaveMany returns immediately with ctx.Err(). Saves that had not finished
// by then are reported with ErrNotAwaited and keep running, they are neither cancelled nor rolled
// back and a later failure is only logged.
func (e *Events) SaveMany(ctx context.Context, evs []*Event) ([]SaveResult, error) {
	if len(evs) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	returned := false
	results := make([]SaveResult, len(evs))
	for i, ev := range evs {
		results[i] = SaveResult{Event: ev, Err: ErrNotAwaited}
	}

	// dispatched saves are not cancelled with ctx
	saveCtx := context.WithoutCancel(ctx)

	var wg conc.WaitGroup
	for i, ev := range evs {
		wg.Go(func() {
			err := e.Save(saveCtx, ev)

			mu.Lock()
			defer mu.Unlock()
			if !returned {
				results[i].Err = err
			}
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		mu.Lock()
		returned = true
		snapshot := append([]SaveResult(nil), results...)
		mu.Unlock()
		return snapshot, ctx.Err()
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

// ReadEvent reads a single event by its group key and id
func (e *Events) ReadEvent(ctx context.Context, groupKey, eventID string) (*Event, error) {
	resp, err := e.client.ReadItem(ctx, groupKey, eventID)
	if err != nil {
		return nil, err
	}
	var ev Event
	if err := resp.Decode(&ev); err != nil {
		return nil, fmt.Errorf("failed to decode event %s: %w", eventID, err)
	}
	return &ev, nil
}
