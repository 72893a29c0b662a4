package nimbusauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/jake-scott/actron-nimbus/internal/pkg/logging"
	"github.com/jake-scott/actron-nimbus/internal/pkg/tokenstore"
	"github.com/jake-scott/actron-nimbus/pkg/apierrors"
	"github.com/jake-scott/actron-nimbus/pkg/models"
	"github.com/jake-scott/actron-nimbus/version"
)

// PollStatus is the outcome of one device-code poll
type PollStatus int

const (
	PollPending PollStatus = iota
	PollSlowDown
	PollGranted
)

var pollStatusNames = []string{"pending", "slow_down", "granted"}

func (s PollStatus) String() string {
	if int(s) < 0 || int(s) >= len(pollStatusNames) {
		return fmt.Sprintf("unknown (id: %d)", s)
	}
	return pollStatusNames[s]
}

// PollResult is returned by PollForToken.  Token is set only when the
// status is PollGranted.
type PollResult struct {
	Status PollStatus
	Token  *models.Token
}

// Pending is true while the user has not yet approved the device
func (r PollResult) Pending() bool {
	return r.Status != PollGranted
}

// SlowDownIncrement is added to the poll interval on a slow_down response
const SlowDownIncrement = 5 * time.Second

func (a *Authenticator) oauthConfig(clientID string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: clientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:      a.tokenURL(),
			DeviceAuthURL: a.tokenURL(),
			AuthStyle:     oauth2.AuthStyleInParams,
		},
		Scopes: strings.Fields(a.Scope),
	}
}

func (a *Authenticator) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// convert an oauth2 library failure into one of our error kinds
func oauthError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &apierrors.AuthError{Op: op, StatusCode: status, Body: string(re.Body), Err: err}
	}

	var ue *url.Error
	if errors.As(err, &ue) {
		return &apierrors.AuthError{Op: op, Err: err}
	}

	// oauth2 rejected the response itself (eg. no access_token)
	return &apierrors.ValidationError{Op: op, Err: err}
}

func (a *Authenticator) postForm(ctx context.Context, op string, endpoint string, form url.Values) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, &apierrors.AuthError{Op: op, Err: errors.Wrap(err, "creating request")}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, nil, &apierrors.AuthError{Op: op, Err: errors.Wrap(err, "sending request")}
	}
	defer resp.Body.Close()

	bodyBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &apierrors.AuthError{Op: op, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "reading response body")}
	}

	return resp, bodyBytes, nil
}

// RequestPairingToken registers this client as a user device using the
// account credentials, and stores the returned pairing token
func (a *Authenticator) RequestPairingToken(ctx context.Context, deviceName, deviceUniqueID string) (string, error) {
	const op = "request pairing token"
	ctxLogger := logging.Logger(ctx)

	if !a.HasCredentials() {
		return "", apierrors.NewAuthError(op, 0, "", "username and password are required for pairing")
	}
	if deviceName == "" || deviceUniqueID == "" {
		return "", apierrors.NewValidationError(op, "device name and unique identifier are required")
	}

	form := url.Values{}
	form.Set("username", a.username)
	form.Set("password", a.password)
	form.Set("client", pairingClient)
	form.Set("deviceName", deviceName)
	form.Set("deviceUniqueIdentifier", deviceUniqueID)

	endpoint := a.BaseURL + userDevicesPath
	ctxLogger.Debugf("Sending pairing request to Nimbus URL [%s] for device [%s]", endpoint, deviceName)

	resp, bodyBytes, err := a.postForm(ctx, op, endpoint, form)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", apierrors.NewAuthError(op, resp.StatusCode, string(bodyBytes), "pairing rejected")
	}

	pt := models.PairingToken{}
	if err := json.Unmarshal(bodyBytes, &pt); err != nil {
		return "", &apierrors.ValidationError{Op: op, Err: errors.Wrap(err, "decoding pairing response")}
	}
	if err := pt.Validate(models.Formats); err != nil {
		return "", &apierrors.ValidationError{Op: op, Err: err}
	}

	a.store.Set(tokenstore.NewRecord(tokenstore.TokenTypePairing, *pt.PairingToken, a.store.Now(), 0))
	ctxLogger.Debugf("Stored pairing token: %s", a.store)

	return *pt.PairingToken, nil
}

// RequestDeviceCode starts the OAuth2 device authorization flow
func (a *Authenticator) RequestDeviceCode(ctx context.Context) (*models.DeviceCode, error) {
	const op = "request device code"
	ctxLogger := logging.Logger(ctx)

	ctxLogger.Debugf("Sending device authorization request to Nimbus URL [%s] for client [%s]", a.tokenURL(), a.ClientID)

	da, err := a.oauthConfig(a.ClientID).DeviceAuth(a.oauthContext(ctx))
	if err != nil {
		if aerr := oauthError(op, err); apierrors.IsAuthError(aerr) {
			return nil, aerr
		}
		// oauth2 flattens transport failures here, so treat them all as auth
		return nil, &apierrors.AuthError{Op: op, Err: err}
	}

	dc := &models.DeviceCode{
		Interval: da.Interval,
	}
	if da.DeviceCode != "" {
		dc.DeviceCode = &da.DeviceCode
	}
	if da.UserCode != "" {
		dc.UserCode = &da.UserCode
	}
	if da.VerificationURI != "" {
		dc.VerificationURI = &da.VerificationURI
	}
	if !da.Expiry.IsZero() {
		// oauth2 stamps Expiry from the wall clock, not the store clock
		secs := int64(math.Round(time.Until(da.Expiry).Seconds()))
		dc.ExpiresIn = &secs
	}

	if err := dc.Validate(models.Formats); err != nil {
		return nil, &apierrors.ValidationError{Op: op, Err: err}
	}

	if dc.Interval <= 0 {
		dc.Interval = defaultPollInterval
	}

	dc.VerificationURIComplete = da.VerificationURIComplete
	if dc.VerificationURIComplete == "" {
		dc.VerificationURIComplete = completeVerificationURI(*dc.VerificationURI, *dc.UserCode)
	}

	ctxLogger.Debugf("Device code issued, verify at [%s], expires in %ds", *dc.VerificationURI, *dc.ExpiresIn)
	return dc, nil
}

func completeVerificationURI(uri, userCode string) string {
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + "user_code=" + url.QueryEscape(userCode)
}

// PollForToken performs a single device-code token request.  It never
// blocks waiting for approval: a pending or slow_down answer is returned as
// a result, not an error.
func (a *Authenticator) PollForToken(ctx context.Context, deviceCode string) (PollResult, error) {
	const op = "poll for token"
	ctxLogger := logging.Logger(ctx)

	if deviceCode == "" {
		return PollResult{}, apierrors.NewValidationError(op, "device code is required")
	}

	form := url.Values{}
	form.Set("client_id", a.ClientID)
	form.Set("grant_type", deviceCodeGrantType)
	form.Set("device_code", deviceCode)

	ctxLogger.Debugf("Polling Nimbus URL [%s] for device token", a.tokenURL())

	resp, bodyBytes, err := a.postForm(ctx, op, a.tokenURL(), form)
	if err != nil {
		return PollResult{}, err
	}

	if resp.StatusCode == http.StatusOK {
		tok := models.Token{}
		if err := json.Unmarshal(bodyBytes, &tok); err != nil {
			return PollResult{}, &apierrors.ValidationError{Op: op, Err: errors.Wrap(err, "decoding token response")}
		}
		if err := tok.Validate(models.Formats); err != nil {
			return PollResult{}, &apierrors.ValidationError{Op: op, Err: err}
		}

		a.storeGranted(&tok)
		ctxLogger.Debugf("Device authorization granted: %s", a.store)
		return PollResult{Status: PollGranted, Token: &tok}, nil
	}

	tokErr := models.TokenError{}
	if jerr := json.Unmarshal(bodyBytes, &tokErr); jerr != nil || tokErr.Error == "" {
		return PollResult{}, apierrors.NewAuthError(op, resp.StatusCode, string(bodyBytes), "unexpected token endpoint response")
	}

	switch tokErr.Error {
	case "authorization_pending":
		return PollResult{Status: PollPending}, nil
	case "slow_down":
		ctxLogger.Debugf("Token endpoint asked us to slow down")
		return PollResult{Status: PollSlowDown}, nil
	case "expired_token":
		return PollResult{}, apierrors.NewAuthError(op, resp.StatusCode, string(bodyBytes), "device code has expired")
	case "access_denied":
		return PollResult{}, apierrors.NewAuthError(op, resp.StatusCode, string(bodyBytes), "user denied authorization")
	default:
		return PollResult{}, apierrors.NewAuthError(op, resp.StatusCode, string(bodyBytes), "authorization error: %s", tokErr.Error)
	}
}

// store a bearer (and refresh token if issued) from a token response
func (a *Authenticator) storeGranted(tok *models.Token) {
	now := a.store.Now()
	lifetime := defaultBearerLifetime
	if tok.ExpiresIn > 0 {
		lifetime = time.Duration(tok.ExpiresIn) * time.Second
	}

	records := []tokenstore.Record{
		tokenstore.NewRecord(tokenstore.TokenTypeBearer, *tok.AccessToken, now, lifetime),
	}
	if tok.RefreshToken != "" {
		records = append(records, tokenstore.NewRecord(tokenstore.TokenTypeRefresh, tok.RefreshToken, now, 0))
	}
	a.store.SetAll(records...)
}
