package nimbusauth

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jake-scott/actron-nimbus/internal/pkg/tokenstore"
)

const defaultMinAccessTokenValidity = time.Second * 60

const (
	// DefaultClientID is the OAuth2 client used for the device-code flow and
	// for refresh tokens obtained from it
	DefaultClientID = "home_assistant"

	// pairing tokens are exchanged under the mobile app's client
	pairingClientID = "app"
	pairingClient   = "ios"

	defaultScope          = "read write"
	defaultBearerLifetime = time.Hour
	defaultPollInterval   = 5

	tokenPath       = "/api/v0/oauth/token"
	userDevicesPath = "/api/v0/client/user-devices"

	deviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"
)

// Authenticator obtains and refreshes Nimbus tokens, keeping them in a
// token store shared with the transport.
type Authenticator struct {
	BaseURL                string
	ClientID               string
	Scope                  string
	MinAccessTokenValidity time.Duration

	// non-exported
	username   string
	password   string
	store      *tokenstore.Store
	httpClient *http.Client
	flight     singleflight.Group
}

func hashOf(s string) string {
	sum := sha1.Sum([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// obfuscate secrets when stringified
func (a *Authenticator) String() string {
	return fmt.Sprintf("BaseURL [%s], ClientID [%s], Scope [%s], username [%s], password [%s], %s",
		a.BaseURL, a.ClientID, a.Scope, a.username, hashOf(a.password), a.store)
}

func New(baseURL string, store *tokenstore.Store) *Authenticator {
	return &Authenticator{
		BaseURL:                strings.TrimRight(baseURL, "/"),
		ClientID:               DefaultClientID,
		Scope:                  defaultScope,
		MinAccessTokenValidity: defaultMinAccessTokenValidity,
		store:                  store,
		httpClient:             http.DefaultClient,
	}
}

func (a *Authenticator) WithCredentials(username, password string) *Authenticator {
	a.username = username
	a.password = password
	return a
}

func (a *Authenticator) WithHTTPClient(c *http.Client) *Authenticator {
	if c != nil {
		a.httpClient = c
	}
	return a
}

func (a *Authenticator) WithClientID(clientID string) *Authenticator {
	if clientID != "" {
		a.ClientID = clientID
	}
	return a
}

// WithMinAccessTokenValidity sets the refresh margin: a bearer token with
// less than d remaining is refreshed before use
func (a *Authenticator) WithMinAccessTokenValidity(d time.Duration) *Authenticator {
	a.MinAccessTokenValidity = d
	return a
}

func (a *Authenticator) HasCredentials() bool {
	return a.username != "" && a.password != ""
}

func (a *Authenticator) Store() *tokenstore.Store {
	return a.store
}

func (a *Authenticator) tokenURL() string {
	return a.BaseURL + tokenPath
}
