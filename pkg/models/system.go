package models

import (
	"strconv"
	"strings"

	"github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

// ACSystem is one entry of the account's system list
type ACSystem struct {
	// Required: true
	Serial *string `json:"serial"`

	Description string `json:"description,omitempty"`

	// hardware family, eg. "NEO" or "NX-Gen"
	Type string `json:"type,omitempty"`
}

// SerialNumber returns the normalised (lower case) serial
func (m *ACSystem) SerialNumber() string {
	if m.Serial == nil {
		return ""
	}
	return NormaliseSerial(*m.Serial)
}

// Validate validates this AC system
func (m *ACSystem) Validate(formats strfmt.Registry) error {
	if err := validate.Required("serial", "body", m.Serial); err != nil {
		return err
	}
	if err := validate.RequiredString("serial", "body", *m.Serial); err != nil {
		return err
	}

	return nil
}

// ACSystemsEmbedded is the HAL _embedded block of the systems list
type ACSystemsEmbedded struct {
	ACSystem []*ACSystem `json:"ac-system"`
}

// ACSystems is the response of the ac-systems endpoint
type ACSystems struct {
	Embedded *ACSystemsEmbedded `json:"_embedded"`
}

// Systems returns the listed systems, or nil if the list is empty
func (m *ACSystems) Systems() []*ACSystem {
	if m.Embedded == nil {
		return nil
	}
	return m.Embedded.ACSystem
}

// Validate validates this AC systems list
func (m *ACSystems) Validate(formats strfmt.Registry) error {
	if err := validate.Required("_embedded", "body", m.Embedded); err != nil {
		return err
	}

	var res []error
	for i, s := range m.Embedded.ACSystem {
		if s == nil {
			continue
		}
		if err := s.Validate(formats); err != nil {
			if ve, ok := err.(*errors.Validation); ok {
				res = append(res, ve.ValidateName("_embedded.ac-system."+strconv.Itoa(i)))
			} else {
				res = append(res, err)
			}
		}
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// NormaliseSerial lower-cases and trims a serial number
func NormaliseSerial(serial string) string {
	return strings.ToLower(strings.TrimSpace(serial))
}
