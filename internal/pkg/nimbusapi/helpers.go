package nimbusapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-openapi/runtime/middleware/header"
)

// IsJSONContentType accepts application/json and the +json variants the
// API uses for HAL documents.  A missing header is accepted.
func IsJSONContentType(h http.Header) bool {
	if h.Get("Content-Type") == "" {
		return true
	}

	value, _ := header.ParseValueAndParams(h, "Content-Type")
	return value == "application/json" || strings.HasSuffix(value, "+json")
}

func decodeJSON(h http.Header, body []byte, dst interface{}) error {
	if !IsJSONContentType(h) {
		return fmt.Errorf("expected JSON response, got %s", h.Get("Content-Type"))
	}

	if len(body) == 0 {
		return fmt.Errorf("empty response body")
	}

	return json.Unmarshal(body, dst)
}
