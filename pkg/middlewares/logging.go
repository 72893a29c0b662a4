package middlewares

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/actron-nimbus/internal/pkg/logging"
)

// TxnIDHeader carries the transaction ID assigned to each request
const TxnIDHeader = "X-Txn-ID"

// request and response bodies are logged up to this many bytes
const maxLoggedBody = 2048

const redacted = "[redacted]"

var redactedHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

// form fields of the pairing and token endpoints that never reach the log
var redactedFields = []string{"password", "refresh_token", "client_secret"}

// recorder captures the status, size and, when body is set, the head of
// the response body
type recorder struct {
	http.ResponseWriter

	status int
	size   int
	body   *bytes.Buffer
}

func (rw *recorder) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *recorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	if rw.body != nil {
		keep(rw.body, b[:n])
	}
	return n, err
}

// teeBody copies the head of a request body as the handler reads it
type teeBody struct {
	io.ReadCloser
	buf *bytes.Buffer
}

func (tb teeBody) Read(b []byte) (int, error) {
	n, err := tb.ReadCloser.Read(b)
	keep(tb.buf, b[:n])
	return n, err
}

func keep(buf *bytes.Buffer, b []byte) {
	room := maxLoggedBody - buf.Len()
	if room <= 0 {
		return
	}
	if len(b) > room {
		b = b[:room]
	}
	buf.Write(b)
}

func redactHeaders(h http.Header) http.Header {
	out := h.Clone()
	for _, k := range redactedHeaders {
		if out.Get(k) != "" {
			out.Set(k, redacted)
		}
	}
	return out
}

func redactBody(contentType string, body string) string {
	if !strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		return body
	}
	form, err := url.ParseQuery(body)
	if err != nil {
		return body
	}
	for _, k := range redactedFields {
		if form.Get(k) != "" {
			form.Set(k, redacted)
		}
	}
	return form.Encode()
}

// NewLoggingMw writes one audit entry per request and tags the request
// context with a fresh transaction ID.  With logBodies the redacted headers
// and the first bytes of each body are also logged at debug.
func NewLoggingMw(logBodies bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			txnID := uuid.New().String()
			start := time.Now()

			// before anything writes a response body
			rw.Header().Set(TxnIDHeader, txnID)
			r = r.WithContext(logging.WithTxnID(r.Context(), txnID))
			ctxLogger := logging.Logger(r.Context())

			rec := &recorder{ResponseWriter: rw, status: http.StatusOK}
			var reqBody *bytes.Buffer
			if logBodies {
				reqBody, rec.body = &bytes.Buffer{}, &bytes.Buffer{}
				r.Body = teeBody{ReadCloser: r.Body, buf: reqBody}
			}

			next.ServeHTTP(rec, r)

			if logBodies {
				ctxLogger.WithFields(logrus.Fields{
					"headers": redactHeaders(r.Header),
					"body":    redactBody(r.Header.Get("Content-Type"), reqBody.String()),
				}).Debug("request")
				ctxLogger.WithFields(logrus.Fields{
					"headers": redactHeaders(rw.Header()),
					"body":    rec.body.String(),
				}).Debug("response")
			}

			entry := ctxLogger.WithFields(logrus.Fields{
				"entrytype": "audit",
				"status":    rec.status,
				"method":    r.Method,
				"path":      r.URL.Path,
				"remote":    r.RemoteAddr,
				"start":     start.Format(time.RFC3339Nano),
				"duration":  time.Since(start),
				"size":      rec.size,
			})
			if serial := r.URL.Query().Get("serial"); serial != "" {
				entry = entry.WithField("serial", serial)
			}

			if rec.status >= http.StatusInternalServerError {
				entry.Warn(http.StatusText(rec.status))
			} else {
				entry.Info(http.StatusText(rec.status))
			}
		})
	}
}
