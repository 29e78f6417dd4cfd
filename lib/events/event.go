package events

import (
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/id"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Enums
// --------------------------------------------------------------------------

// ItemType discriminates what an event is attached to
type ItemType int

const (
	ItemTypeProfile ItemType = 1
)

// InputType is the channel an event was recorded through
type InputType int

const (
	InputWebPortal InputType = 1
	InputMobileApp InputType = 2
)

// String returns the display name, empty for unknown values
func (t InputType) String() string {
	switch t {
	case InputWebPortal:
		return "Web Portal"
	case InputMobileApp:
		return "Mobile App"
	default:
		return ""
	}
}

// OS is the operating system of a mobile client
type OS int

const (
	OSAndroid OS = 1
	OSIOS     OS = 2
	OSWindows OS = 3
	OSMacOS   OS = 4
	OSLinux   OS = 5
)

// String returns the display name, empty for 0 and unknown values
func (o OS) String() string {
	switch o {
	case OSAndroid:
		return "Android"
	case OSIOS:
		return "iOS"
	case OSWindows:
		return "Windows"
	case OSMacOS:
		return "macOS"
	case OSLinux:
		return "Linux"
	default:
		return ""
	}
}

// --------------------------------------------------------------------------
// Event
// --------------------------------------------------------------------------

// Event is one stored occurrence. ID and GroupKey are assigned by Save, values set by the
// caller are overwritten.
type Event struct {
	ID         string     `json:"id"`
	GroupKey   string     `json:"groupKey"`
	ProfileID  int        `json:"profileId"`
	ItemID     int        `json:"itemId"`
	ItemType   ItemType   `json:"itemType"`
	Subject    string     `json:"subject"`
	Data       string     `json:"data,omitempty"`
	Created    time.Time  `json:"created"`
	OS         *OS        `json:"os"`
	OSVersion  string     `json:"osVersion,omitempty"`
	AppVersion string     `json:"appVersion,omitempty"`
	InputType  *InputType `json:"inputType,omitempty"`
	AddedBy    string     `json:"addedBy,omitempty"`
	AddedByID  *int       `json:"addedById,omitempty"`
}

// GroupKey is the partition key of the events attached to one item: "{itemType}-{itemId}"
func GroupKey(itemType ItemType, itemID int) string {
	return fmt.Sprintf("%d-%d", itemType, itemID)
}

// ProfileGroupKey is the group key of a profile's events
func ProfileGroupKey(profileID int) string {
	return GroupKey(ItemTypeProfile, profileID)
}

// stamp assigns the identifier, group key and (if unset) the creation time, then normalizes
// the channel metadata
func (e *Event) stamp(ids *id.Generator, now time.Time) {
	e.ID = ids.Next().String()
	e.GroupKey = GroupKey(e.ItemType, e.ItemID)
	if e.Created.IsZero() {
		e.Created = now.UTC()
	}
	e.normalize()
}

// normalize cleans the client metadata depending on the input channel.
// Mobile: an OS of 0 becomes unset and the versions are trimmed. Web: the OS is always unset.
func (e *Event) normalize() {
	if e.InputType == nil {
		return
	}
	switch *e.InputType {
	case InputMobileApp:
		if e.OS != nil && *e.OS == 0 {
			e.OS = nil
		}
		e.OSVersion = strings.TrimSpace(e.OSVersion)
		e.AppVersion = strings.TrimSpace(e.AppVersion)
	case InputWebPortal:
		e.OS = nil
	}
}
