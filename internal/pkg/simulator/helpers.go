package simulator

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"

	"github.com/jake-scott/actron-nimbus/internal/pkg/logging"
)

func newID() string {
	return uuid.New().String()
}

// XXXX-XXXX from a fresh UUID
func newUserCode() string {
	id := strings.ToUpper(strings.Replace(uuid.New().String(), "-", "", -1))
	return id[:4] + "-" + id[4:8]
}

func strfmtNow(clock func() time.Time) strfmt.DateTime {
	return strfmt.DateTime(clock().UTC())
}

func writeJSONType(rw http.ResponseWriter, r *http.Request, contentType string, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		logging.Logger(r.Context()).WithError(err).Error("encoding response")
		http.Error(rw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", contentType)
	rw.WriteHeader(status)
	if _, err := rw.Write(b); err != nil {
		logging.Logger(r.Context()).WithError(err).Warn("writing response")
	}
}

func writeJSON(rw http.ResponseWriter, r *http.Request, status int, v interface{}) {
	writeJSONType(rw, r, "application/json", status, v)
}

func writeRaw(rw http.ResponseWriter, r *http.Request, b []byte) {
	rw.Header().Set("Content-Type", "application/json")
	if _, err := rw.Write(b); err != nil {
		logging.Logger(r.Context()).WithError(err).Warn("writing response")
	}
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(rw http.ResponseWriter, r *http.Request, status int, message string) {
	logging.Logger(r.Context()).Debugf("Answering %s %s with %d: %s", r.Method, r.URL.Path, status, message)
	writeJSON(rw, r, status, apiError{Error: http.StatusText(status), Message: message})
}

type tokenErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// RFC 6749 section 5.2 error response
func writeTokenError(rw http.ResponseWriter, r *http.Request, status int, code, description string) {
	logging.Logger(r.Context()).Debugf("Token endpoint error %s: %s", code, description)
	rw.Header().Set("Cache-Control", "no-store")
	writeJSON(rw, r, status, tokenErrorBody{Error: code, ErrorDescription: description})
}
