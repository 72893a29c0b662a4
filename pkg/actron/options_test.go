package actron

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, "https://nimbus.actronair.com.au", cfg.baseURL)
	assert.Equal(t, 30*time.Second, cfg.requestTimeout)
	assert.Equal(t, 60*time.Second, cfg.refreshMargin)
	assert.Nil(t, cfg.httpClient)
	assert.Nil(t, cfg.clock)
}

func TestWithCredentials(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, WithCredentials("me@example.com", "pw")(cfg))
	assert.Equal(t, "me@example.com", cfg.username)
	assert.Equal(t, "pw", cfg.password)

	assert.Error(t, WithCredentials("", "pw")(cfg))
	assert.Error(t, WithCredentials("me@example.com", "")(cfg))
}

func TestWithBaseURL(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, WithBaseURL("http://127.0.0.1:8080/")(cfg))
	assert.Equal(t, "http://127.0.0.1:8080", cfg.baseURL)

	for _, bad := range []string{"", "nimbus.actronair.com.au", "ftp://host", "http://", "://bad"} {
		assert.Error(t, WithBaseURL(bad)(cfg), bad)
	}
}

func TestWithPlatform(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, WithPlatform(PlatformQue)(cfg))
	assert.Equal(t, "https://que.actronair.com.au", cfg.baseURL)

	assert.Error(t, WithPlatform("moon")(cfg))
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform(" QUE ")
	require.NoError(t, err)
	assert.Equal(t, PlatformQue, p)

	_, err = ParsePlatform("moon")
	assert.Error(t, err)
}

func TestWithClientID(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, WithClientID("my_app")(cfg))
	assert.Equal(t, "my_app", cfg.clientID)

	assert.Error(t, WithClientID(" ")(cfg))
}

func TestWithSavedTokens(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, WithPairingToken("p")(cfg))
	require.NoError(t, WithRefreshToken("r")(cfg))
	assert.Equal(t, "p", cfg.pairingToken)
	assert.Equal(t, "r", cfg.refreshToken)

	assert.Error(t, WithPairingToken("")(cfg))
	assert.Error(t, WithRefreshToken("")(cfg))
}

func TestWithHTTPClient(t *testing.T) {
	cfg := defaultConfig()
	hc := &http.Client{}
	require.NoError(t, WithHTTPClient(hc)(cfg))
	assert.Same(t, hc, cfg.httpClient)

	assert.Error(t, WithHTTPClient(nil)(cfg))
}

func TestWithRequestTimeout(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, WithRequestTimeout(5*time.Second)(cfg))
	assert.Equal(t, 5*time.Second, cfg.requestTimeout)

	assert.Error(t, WithRequestTimeout(0)(cfg))
	assert.Error(t, WithRequestTimeout(-1*time.Second)(cfg))
}

func TestWithRefreshMargin(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, WithRefreshMargin(0)(cfg))
	assert.Equal(t, time.Duration(0), cfg.refreshMargin)

	assert.Error(t, WithRefreshMargin(-time.Second)(cfg))
}

func TestWithClock(t *testing.T) {
	cfg := defaultConfig()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, WithClock(func() time.Time { return fixed })(cfg))
	assert.Equal(t, fixed, cfg.clock())

	assert.Error(t, WithClock(nil)(cfg))
}

func TestNew_InvalidOption(t *testing.T) {
	_, err := New(WithRequestTimeout(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid option")
}
