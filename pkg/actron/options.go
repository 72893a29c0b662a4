package actron

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Platform is a Nimbus deployment
type Platform string

const (
	PlatformNeo Platform = "neo"
	PlatformQue Platform = "que"
)

var platformURLs = map[Platform]string{
	PlatformNeo: "https://nimbus.actronair.com.au",
	PlatformQue: "https://que.actronair.com.au",
}

// ParsePlatform accepts a platform name case-insensitively
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := platformURLs[p]; !ok {
		return "", errors.Errorf("unknown platform %q, choose from neo, que", s)
	}
	return p, nil
}

// BaseURL of the platform's API
func (p Platform) BaseURL() string {
	return platformURLs[p]
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig) error

type clientConfig struct {
	username       string
	password       string
	baseURL        string
	clientID       string
	pairingToken   string
	refreshToken   string
	httpClient     *http.Client
	requestTimeout time.Duration
	refreshMargin  time.Duration
	clock          func() time.Time
}

func defaultConfig() *clientConfig {
	return &clientConfig{
		baseURL:        PlatformNeo.BaseURL(),
		requestTimeout: 30 * time.Second,
		refreshMargin:  60 * time.Second,
	}
}

// WithCredentials sets the account used to request a pairing token.
func WithCredentials(username, password string) ClientOption {
	return func(c *clientConfig) error {
		if username == "" || password == "" {
			return errors.New("username and password must both be set")
		}
		c.username = username
		c.password = password
		return nil
	}
}

// WithBaseURL points the client at a different API host, such as a
// simulator.  It overrides WithPlatform.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *clientConfig) error {
		u, err := url.Parse(baseURL)
		if err != nil {
			return errors.Wrap(err, "base URL")
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.Errorf("base URL %q must be an absolute http or https URL", baseURL)
		}
		c.baseURL = strings.TrimRight(baseURL, "/")
		return nil
	}
}

// WithPlatform selects the Nimbus deployment.
// Default is neo.
func WithPlatform(p Platform) ClientOption {
	return func(c *clientConfig) error {
		u, ok := platformURLs[p]
		if !ok {
			return errors.Errorf("unknown platform %q", p)
		}
		c.baseURL = u
		return nil
	}
}

// WithClientID sets the OAuth2 client used for the device code flow and
// refresh token grants.
// Default is home_assistant.
func WithClientID(clientID string) ClientOption {
	return func(c *clientConfig) error {
		if strings.TrimSpace(clientID) == "" {
			return errors.New("client ID must not be empty")
		}
		c.clientID = clientID
		return nil
	}
}

// WithPairingToken restores a pairing token saved from an earlier session.
func WithPairingToken(token string) ClientOption {
	return func(c *clientConfig) error {
		if token == "" {
			return errors.New("pairing token must not be empty")
		}
		c.pairingToken = token
		return nil
	}
}

// WithRefreshToken restores a refresh token saved from an earlier session.
func WithRefreshToken(token string) ClientOption {
	return func(c *clientConfig) error {
		if token == "" {
			return errors.New("refresh token must not be empty")
		}
		c.refreshToken = token
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) error {
		if hc == nil {
			return errors.New("HTTP client must not be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithRequestTimeout bounds each API request, token requests excluded.
// Default is 30 seconds.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		c.requestTimeout = d
		return nil
	}
}

// WithRefreshMargin sets how long before its expiry a bearer token is
// refreshed.
// Default is 60 seconds.
func WithRefreshMargin(d time.Duration) ClientOption {
	return func(c *clientConfig) error {
		if d < 0 {
			return errors.New("refresh margin must not be negative")
		}
		c.refreshMargin = d
		return nil
	}
}

// WithClock replaces the time source used for token expiry.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *clientConfig) error {
		if clock == nil {
			return errors.New("clock must not be nil")
		}
		c.clock = clock
		return nil
	}
}
