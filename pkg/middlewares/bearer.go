package middlewares

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jake-scott/actron-nimbus/internal/pkg/logging"
)

const bearerPrefix = "Bearer "

// TokenValidator reports whether a bearer token is currently accepted
type TokenValidator func(token string) bool

type BearerAuthMw struct {
	realm string
	valid TokenValidator
	next  http.Handler
}

func NewBearerAuthMw(realm string, valid TokenValidator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return NewBearerAuth(realm, valid, next)
	}
}

func NewBearerAuth(realm string, valid TokenValidator, next http.Handler) *BearerAuthMw {
	return &BearerAuthMw{realm: realm, valid: valid, next: next}
}

func (mw *BearerAuthMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	h := r.Header.Get("Authorization")

	// the scheme name is case insensitive
	if len(h) <= len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		mw.reject(rw, r, "missing bearer token")
		return
	}

	if !mw.valid(strings.TrimSpace(h[len(bearerPrefix):])) {
		mw.reject(rw, r, "invalid or expired bearer token")
		return
	}

	mw.next.ServeHTTP(rw, r)
}

func (mw *BearerAuthMw) reject(rw http.ResponseWriter, r *http.Request, why string) {
	logging.Logger(r.Context()).Debugf("Rejecting %s %s: %s", r.Method, r.URL.Path, why)

	rw.Header().Set("WWW-Authenticate", `Bearer realm="`+mw.realm+`"`)
	http.Error(rw, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}
