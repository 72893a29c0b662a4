package middlewares

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

type CorsMw struct {
	h http.Handler
}

// APICorsOptions allows browser clients on any origin to call the API
// with a bearer token and the given extra request headers
func APICorsOptions(headers ...string) cors.Options {
	return cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: append([]string{"Authorization", "Content-Type"}, headers...),
		ExposedHeaders: []string{TxnIDHeader},
		MaxAge:         600,
	}
}

func NewCorsMw(opts cors.Options) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return NewCors(opts, next)
	}
}

// Called once for each middleware chain
func NewCors(opts cors.Options, next http.Handler) *CorsMw {
	return &CorsMw{
		h: cors.New(opts).Handler(next),
	}
}

// First in the chain, so preflight requests are answered before the
// bearer check
func (mw *CorsMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	mw.h.ServeHTTP(rw, r)
}
