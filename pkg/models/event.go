package models

import (
	"sort"
	"strconv"

	"github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

// Event types published on the system event feed
const (
	EventTypeFullStatus   = "full-status-broadcast"
	EventTypeStatusChange = "status-change-broadcast"
)

// Event is one entry of the system event feed.
//
// For status-change events Data maps dotted paths such as
// "UserAirconSettings.Mode" or "RemoteZoneInfo[2].LiveTemp_oC" to their new
// values.  For full-status events Data is a complete lastKnownState tree.
type Event struct {
	// Required: true
	ID *string `json:"id"`

	// Required: true
	Type *string `json:"type"`

	// strictly increasing per system
	// Required: true
	Sequence *int64 `json:"sequence"`

	// Format: date-time
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`

	Data map[string]interface{} `json:"data,omitempty"`
}

// Seq returns the event's sequence marker, or 0 if it has none
func (m *Event) Seq() int64 {
	if m.Sequence == nil {
		return 0
	}
	return *m.Sequence
}

// EventID returns the vendor event identifier
func (m *Event) EventID() string {
	if m.ID == nil {
		return ""
	}
	return *m.ID
}

// EventType returns the event type
func (m *Event) EventType() string {
	if m.Type == nil {
		return ""
	}
	return *m.Type
}

// Validate validates this event
func (m *Event) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("id", "body", m.ID); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("type", "body", m.Type); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("sequence", "body", m.Sequence); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// Events is the response of the events endpoints
type Events struct {
	Events []*Event `json:"events"`
}

// Validate validates this events list
func (m *Events) Validate(formats strfmt.Registry) error {
	var res []error

	for i, e := range m.Events {
		if e == nil {
			continue
		}
		if err := e.Validate(formats); err != nil {
			if ce, ok := err.(*errors.CompositeError); ok {
				for _, inner := range ce.Errors {
					if ve, ok := inner.(*errors.Validation); ok {
						res = append(res, ve.ValidateName("events."+strconv.Itoa(i)))
						continue
					}
					res = append(res, inner)
				}
				continue
			}
			res = append(res, err)
		}
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// Ordered returns the events sorted oldest first by sequence.  The feed
// itself lists newest first.
func (m *Events) Ordered() []*Event {
	out := make([]*Event, 0, len(m.Events))
	for _, e := range m.Events {
		if e != nil {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Seq() < out[j].Seq()
	})
	return out
}
