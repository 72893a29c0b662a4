package nimbusapi

import (
	"context"
	"net/url"
	"time"

	"github.com/jake-scott/actron-nimbus/internal/pkg/tokenstore"
)

// API paths, relative to the platform base URL
const (
	SystemsPath      = "/api/v0/client/ac-systems"
	StatusPath       = "/api/v0/client/ac-systems/status/latest"
	EventsLatestPath = "/api/v0/client/ac-systems/events/latest"
	EventsNewerPath  = "/api/v0/client/ac-systems/events/newer"
	CommandPath      = "/api/v0/client/ac-systems/cmds/send"
	AccountPath      = "/api/v0/client/account"
)

// TokenSource supplies bearer tokens to the transport
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context, staleToken string) (tokenstore.Record, error)
}

// Transport performs authenticated JSON calls against the Nimbus API
type Transport interface {
	WithTimeout(d time.Duration) Transport
	Send(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error
	Close()
}
