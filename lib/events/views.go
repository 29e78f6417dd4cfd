package events

import "time"

// EventView is the display projection of an event returned by QueryEvents.
// Unset metadata is rendered as empty strings.
type EventView struct {
	Subject    string    `json:"subject" yaml:"subject"`
	FullName   string    `json:"fullName" yaml:"fullName"`
	ProfileID  int       `json:"profileId" yaml:"profileId"`
	AppVersion string    `json:"appVersion" yaml:"appVersion"`
	Created    time.Time `json:"created" yaml:"created"`
	OS         string    `json:"os" yaml:"os"`
	OSVersion  string    `json:"osVersion" yaml:"osVersion"`
	ItemID     int       `json:"itemId" yaml:"itemId"`
	Data       string    `json:"data" yaml:"data"`
	InputType  string    `json:"inputType" yaml:"inputType"`
}

// EventsResponse is one page of QueryEvents. TotalCount counts every event matching the
// query, before the offset, page size and profile allow-list are applied.
type EventsResponse struct {
	Items      []EventView `json:"items" yaml:"items"`
	TotalCount int         `json:"totalCount" yaml:"totalCount"`
}

// ProfileEventReport is a row of the profile audit report
type ProfileEventReport struct {
	Created   time.Time `json:"created" yaml:"created"`
	Data      string    `json:"data" yaml:"data"`
	ProfileID int       `json:"profileId" yaml:"profileId"`
	Subject   string    `json:"subject" yaml:"subject"`
	FullName  string    `json:"fullName" yaml:"fullName"`
}

// LoginEventReport is a row of the login report
type LoginEventReport struct {
	Created      time.Time `json:"created" yaml:"created"`
	Subject      string    `json:"subject" yaml:"subject"`
	ProfileID    int       `json:"profileId" yaml:"profileId"`
	ClientName   string    `json:"clientName" yaml:"clientName"`
	EmployeeName string    `json:"employeeName" yaml:"employeeName"`
	FullName     string    `json:"fullName" yaml:"fullName"`
	Data         string    `json:"data" yaml:"data"`
}

func toEventView(e Event) EventView {
	v := EventView{
		Subject:    e.Subject,
		FullName:   e.AddedBy,
		ProfileID:  e.ProfileID,
		AppVersion: e.AppVersion,
		Created:    e.Created,
		OSVersion:  e.OSVersion,
		ItemID:     e.ItemID,
		Data:       e.Data,
	}
	if e.OS != nil {
		v.OS = e.OS.String()
	}
	if e.InputType != nil {
		v.InputType = e.InputType.String()
	}
	return v
}

// the name columns of the reports are resolved by the caller and stay empty here

func toProfileEventReport(e Event) ProfileEventReport {
	return ProfileEventReport{
		Created:   e.Created,
		Data:      e.Data,
		ProfileID: e.ProfileID,
		Subject:   e.Subject,
	}
}

func toLoginEventReport(e Event) LoginEventReport {
	return LoginEventReport{
		Created:   e.Created,
		Subject:   e.Subject,
		ProfileID: e.ProfileID,
		Data:      e.Data,
	}
}
