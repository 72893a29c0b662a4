package models

import (
	"github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/go-openapi/validate"
)

// PairingToken is the response of the user-devices endpoint
type PairingToken struct {
	// Required: true
	PairingToken *string `json:"pairingToken"`
}

// Validate validates this pairing token
func (m *PairingToken) Validate(formats strfmt.Registry) error {
	if err := validate.Required("pairingToken", "body", m.PairingToken); err != nil {
		return err
	}
	if err := validate.RequiredString("pairingToken", "body", *m.PairingToken); err != nil {
		return err
	}

	return nil
}

// DeviceCode is the OAuth2 device authorization response.
//
// Field names are the RFC 8628 ones and must not change.
type DeviceCode struct {
	// Required: true
	DeviceCode *string `json:"device_code"`

	// Required: true
	UserCode *string `json:"user_code"`

	// Required: true
	VerificationURI *string `json:"verification_uri"`

	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`

	// Required: true
	ExpiresIn *int64 `json:"expires_in"`

	// polling interval in seconds
	Interval int64 `json:"interval,omitempty"`
}

// Validate validates this device code
func (m *DeviceCode) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("device_code", "body", m.DeviceCode); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("user_code", "body", m.UserCode); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("verification_uri", "body", m.VerificationURI); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("expires_in", "body", m.ExpiresIn); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// MarshalBinary interface implementation
func (m *DeviceCode) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return swag.WriteJSON(m)
}

// UnmarshalBinary interface implementation
func (m *DeviceCode) UnmarshalBinary(b []byte) error {
	var res DeviceCode
	if err := swag.ReadJSON(b, &res); err != nil {
		return err
	}
	*m = res
	return nil
}

// Token is an OAuth2 token response
type Token struct {
	// Required: true
	AccessToken *string `json:"access_token"`

	RefreshToken string `json:"refresh_token,omitempty"`

	TokenType string `json:"token_type,omitempty"`

	// lifetime in seconds
	ExpiresIn int64 `json:"expires_in,omitempty"`

	Scope string `json:"scope,omitempty"`
}

// Validate validates this token
func (m *Token) Validate(formats strfmt.Registry) error {
	if err := validate.Required("access_token", "body", m.AccessToken); err != nil {
		return err
	}
	if err := validate.RequiredString("access_token", "body", *m.AccessToken); err != nil {
		return err
	}

	return nil
}

// TokenError is an RFC 6749 error response from the token endpoint
type TokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
