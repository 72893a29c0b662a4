package middlewares

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"

	"github.com/jake-scott/actron-nimbus/internal/pkg/logging"
)

// body of the 500 sent after a panic, in the API's error shape
var internalErrorBody = []byte(`{"error":"Internal Server Error","message":"unexpected failure, see the server log"}`)

// RecoveryMw answers a panicking handler with a JSON 500
type RecoveryMw struct {
	next http.Handler
}

func NewRecoveryMw() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return NewRecovery(next)
	}
}

func NewRecovery(next http.Handler) *RecoveryMw {
	return &RecoveryMw{next: next}
}

func (mw *RecoveryMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if p == http.ErrAbortHandler {
			panic(p)
		}

		logging.Logger(r.Context()).WithField("panic", fmt.Sprint(p)).
			Errorf("caught panic in %s %s: %s", r.Method, r.URL.Path, debug.Stack())

		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusInternalServerError)
		_, _ = rw.Write(internalErrorBody)
	}()

	mw.next.ServeHTTP(rw, r)
}
