package events

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/query"
	"strings"
	"time"
)

// DefaultPageSize is the page size of QueryEvents when none is given
const DefaultPageSize = 200

// loginSubjects are the subjects of the login report when no subject filter is given
var loginSubjects = []string{"logged in", "logged out", "session expired"}

// EventQuery are the filters of QueryEvents, unset fields do not restrict the result
type EventQuery struct {
	From     *time.Time
	To       *time.Time
	ItemType *int
	ItemID   *int
	Subject  string

	// ProfileIDs restricts the returned page to these profiles, empty means every profile
	ProfileIDs []int

	// Offset is the number of matching events to skip (the total count of the previous pages)
	Offset   int
	PageSize int
}

// LoginQuery are the filters of QueryLoginEvents
type LoginQuery struct {
	From       *time.Time
	To         *time.Time
	EmployeeID *int
	ClientID   *int
	Subject    string // empty: every login, logout and session expiry
	AddedByID  *int
}

// QueryEvents returns a page of the events matching q, newest first
func (e *Events) QueryEvents(ctx context.Context, q EventQuery) (*EventsResponse, error) {
	criteria := query.Criteria{
		From:       q.From,
		To:         q.To,
		Subject:    q.Subject,
		ItemType:   q.ItemType,
		ItemID:     q.ItemID,
		ProfileIDs: q.ProfileIDs,
		Offset:     q.Offset,
		PageSize:   q.PageSize,
	}
	if criteria.PageSize <= 0 {
		criteria.PageSize = DefaultPageSize
	}

	all, err := query.Drain(ctx, e.client.Query(query.Build(criteria), criteria.PageSize), query.Identity[Event])
	if err != nil {
		log.Errorf("An error occurred when attempting to search and process events for display: %v", err)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	page := query.Window(all, criteria.Offset, criteria.PageSize)
	page = query.FilterProfiles(page, criteria.ProfileIDs, func(ev Event) int { return ev.ProfileID })

	resp := &EventsResponse{
		Items:      make([]EventView, 0, len(page)),
		TotalCount: len(all),
	}
	for _, ev := range page {
		resp.Items = append(resp.Items, toEventView(ev))
	}
	return resp, nil
}

// QueryProfileAudit returns the events of one profile, newest first. With FailOpen a store
// failure is logged and an empty report returned.
func (e *Events) QueryProfileAudit(ctx context.Context, from, to *time.Time, profileID int, subject string) ([]ProfileEventReport, error) {
	q := query.Build(query.Criteria{
		From:      from,
		To:        to,
		Subject:   subject,
		GroupKeys: []string{ProfileGroupKey(profileID)},
	})

	report, err := query.Drain(ctx, e.client.Query(q, -1), toProfileEventReport)
	if err != nil {
		return []ProfileEventReport{}, e.reportFailure("profile audit", err)
	}
	return nonNil(report), nil
}

// QueryLoginEvents returns login related events of profiles, newest first. Without employee and
// client id every profile is searched, with one or both only those profiles. With FailOpen a
// store failure is logged and an empty report returned.
func (e *Events) QueryLoginEvents(ctx context.Context, q LoginQuery) ([]LoginEventReport, error) {
	criteria := query.Criteria{
		From:      q.From,
		To:        q.To,
		Subject:   q.Subject,
		AddedByID: q.AddedByID,
	}
	if q.EmployeeID != nil {
		criteria.GroupKeys = append(criteria.GroupKeys, ProfileGroupKey(*q.EmployeeID))
	}
	if q.ClientID != nil {
		criteria.GroupKeys = append(criteria.GroupKeys, ProfileGroupKey(*q.ClientID))
	}
	if len(criteria.GroupKeys) == 0 {
		criteria.GroupKeyContains = fmt.Sprintf("%d-", ItemTypeProfile)
	}
	if strings.TrimSpace(criteria.Subject) == "" {
		criteria.SubjectIn = loginSubjects
	}

	report, err := query.Drain(ctx, e.client.Query(query.Build(criteria), -1), toLoginEventReport)
	if err != nil {
		return []LoginEventReport{}, e.reportFailure("login events", err)
	}
	return nonNil(report), nil
}

// reportFailure logs a failed report query and decides, by the failure mode, whether the
// caller sees the error
func (e *Events) reportFailure(report string, err error) error {
	log.Errorf("The %s report failed: %v", report, err)
	if e.failureMode == FailClosed {
		return fmt.Errorf("%s report: %w", report, err)
	}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
