package models

import "github.com/go-openapi/strfmt"

// Validatable is implemented by every response model
type Validatable interface {
	Validate(formats strfmt.Registry) error
}

// Formats is the registry used to validate vendor responses
var Formats = strfmt.NewFormats()
