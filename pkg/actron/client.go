// Package actron is a client for the Actron Air Nimbus cloud API.
//
// A Client pairs with or logs in to the account, keeps the bearer token
// fresh, tracks the latest status of every AC system from full snapshots
// and the event feed, and sends set-settings commands.  Commands never
// change the tracked status: the change is seen on the next status update
// or event.
//
// A Client is safe for concurrent use.
package actron

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jake-scott/actron-nimbus/internal/pkg/acstate"
	"github.com/jake-scott/actron-nimbus/internal/pkg/logging"
	"github.com/jake-scott/actron-nimbus/internal/pkg/nimbusapi"
	"github.com/jake-scott/actron-nimbus/internal/pkg/nimbusauth"
	"github.com/jake-scott/actron-nimbus/internal/pkg/tokenstore"
	"github.com/jake-scott/actron-nimbus/pkg/apierrors"
	"github.com/jake-scott/actron-nimbus/pkg/commands"
	"github.com/jake-scott/actron-nimbus/pkg/models"
)

// Device-code poll results
type (
	PollResult = nimbusauth.PollResult
	PollStatus = nimbusauth.PollStatus
)

const (
	PollPending  = nimbusauth.PollPending
	PollSlowDown = nimbusauth.PollSlowDown
	PollGranted  = nimbusauth.PollGranted
)

// SlowDownIncrement is added to the poll interval after a slow_down result
const SlowDownIncrement = nimbusauth.SlowDownIncrement

// SyncState of a system's tracked status
type SyncState = acstate.SyncState

const (
	Unknown = acstate.Unknown
	Synced  = acstate.Synced
	Stale   = acstate.Stale
)

// Token is a bearer token and the time it expires
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// SessionTokens are the long lived tokens worth saving between runs
type SessionTokens struct {
	PairingToken string
	RefreshToken string
}

type Client struct {
	auth  *nimbusauth.Authenticator
	api   nimbusapi.Transport
	state *acstate.Manager

	mu       sync.RWMutex
	systems  []*models.ACSystem
	isClosed bool
}

// New creates a client.  No request is made until an operation is called.
func New(opts ...ClientOption) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, errors.Wrap(err, "invalid option")
		}
	}

	// Close closes the idle connections of hc
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{}
	}

	store := tokenstore.New()
	if cfg.clock != nil {
		store = store.WithClock(cfg.clock)
	}

	auth := nimbusauth.New(cfg.baseURL, store).
		WithHTTPClient(hc).
		WithClientID(cfg.clientID).
		WithMinAccessTokenValidity(cfg.refreshMargin)
	if cfg.username != "" {
		auth = auth.WithCredentials(cfg.username, cfg.password)
	}

	if cfg.pairingToken != "" {
		if err := auth.SetPairingToken(cfg.pairingToken); err != nil {
			return nil, errors.Wrap(err, "invalid option")
		}
	}
	if cfg.refreshToken != "" {
		if err := auth.SetOAuth2Tokens(cfg.refreshToken, "", 0); err != nil {
			return nil, errors.Wrap(err, "invalid option")
		}
	}

	logging.Logger(nil).Debugf("New Nimbus client: %s", auth)

	return &Client{
		auth:  auth,
		api:   nimbusapi.NewLiveClient(cfg.baseURL, auth, hc).WithTimeout(cfg.requestTimeout),
		state: acstate.New(),
	}, nil
}

func (c *Client) checkOpen(op string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.isClosed {
		return &apierrors.APIError{Op: op, Err: apierrors.ErrClosed}
	}
	return nil
}

func checkSerial(op, serial string) (string, error) {
	s := models.NormaliseSerial(serial)
	if s == "" {
		return "", apierrors.NewValidationError(op, "serial number is required")
	}
	return s, nil
}

// RequestPairingToken registers this client with the account given by
// WithCredentials.  An empty deviceUniqueID is replaced by a random one.
func (c *Client) RequestPairingToken(ctx context.Context, deviceName, deviceUniqueID string) (string, error) {
	if err := c.checkOpen("request pairing token"); err != nil {
		return "", err
	}
	if deviceUniqueID == "" {
		deviceUniqueID = uuid.New().String()
	}
	return c.auth.RequestPairingToken(ctx, deviceName, deviceUniqueID)
}

// RefreshToken returns the current bearer token, refreshing it when less
// than the refresh margin remains
func (c *Client) RefreshToken(ctx context.Context) (Token, error) {
	if err := c.checkOpen("refresh token"); err != nil {
		return Token{}, err
	}
	r, err := c.auth.RefreshToken(ctx)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: r.Value, ExpiresAt: r.Expiry()}, nil
}

// RequestDeviceCode starts the device code flow.  Show the user code and
// verification URI to the user, then call PollForToken every Interval
// seconds.
func (c *Client) RequestDeviceCode(ctx context.Context) (*models.DeviceCode, error) {
	if err := c.checkOpen("request device code"); err != nil {
		return nil, err
	}
	return c.auth.RequestDeviceCode(ctx)
}

// PollForToken makes one token request for deviceCode.  Pending and
// slow_down answers are results, not errors.
func (c *Client) PollForToken(ctx context.Context, deviceCode string) (PollResult, error) {
	if err := c.checkOpen("poll for token"); err != nil {
		return PollResult{}, err
	}
	return c.auth.PollForToken(ctx, deviceCode)
}

// SetOAuth2Tokens injects tokens obtained elsewhere
func (c *Client) SetOAuth2Tokens(refreshToken, accessToken string, expiresIn time.Duration) error {
	return c.auth.SetOAuth2Tokens(refreshToken, accessToken, expiresIn)
}

// SessionTokens returns the pairing and refresh tokens currently held
func (c *Client) SessionTokens() SessionTokens {
	var out SessionTokens
	store := c.auth.Store()
	if r, ok := store.Get(tokenstore.TokenTypePairing); ok {
		out.PairingToken = r.Value
	}
	if r, ok := store.Get(tokenstore.TokenTypeRefresh); ok {
		out.RefreshToken = r.Value
	}
	return out
}

// GetACSystems lists the account's systems.  Tracked status of systems no
// longer listed is dropped.
func (c *Client) GetACSystems(ctx context.Context) ([]*models.ACSystem, error) {
	const op = "get AC systems"
	if err := c.checkOpen(op); err != nil {
		return nil, err
	}

	resp := &models.ACSystems{}
	q := url.Values{"includeNeo": {"true"}}
	if err := c.api.Send(ctx, http.MethodGet, nimbusapi.SystemsPath, q, nil, resp); err != nil {
		return nil, err
	}

	systems := make([]*models.ACSystem, 0, len(resp.Systems()))
	listed := make(map[string]bool)
	for _, s := range resp.Systems() {
		if s == nil {
			continue
		}
		systems = append(systems, s)
		listed[s.SerialNumber()] = true
	}

	for _, serial := range c.state.Serials() {
		if !listed[serial] {
			logging.Logger(ctx).Debugf("System %s is no longer listed", serial)
			c.state.Forget(serial)
		}
	}

	c.mu.Lock()
	c.systems = systems
	c.mu.Unlock()

	out := make([]*models.ACSystem, len(systems))
	copy(out, systems)
	return out, nil
}

// Systems returns the list fetched by the last GetACSystems call
func (c *Client) Systems() []*models.ACSystem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.ACSystem, len(c.systems))
	copy(out, c.systems)
	return out
}

func (c *Client) fetchStatus(ctx context.Context, serial string) ([]byte, error) {
	var raw json.RawMessage
	if err := c.api.Send(ctx, http.MethodGet, nimbusapi.StatusPath, url.Values{"serial": {serial}}, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// UpdateStatus fetches full status snapshots.  With no serials every
// listed system is fetched and the tracked set becomes exactly those
// systems; nothing changes if any fetch fails.
func (c *Client) UpdateStatus(ctx context.Context, serials ...string) error {
	const op = "update status"
	if err := c.checkOpen(op); err != nil {
		return err
	}

	if len(serials) > 0 {
		for _, s := range serials {
			serial, err := checkSerial(op, s)
			if err != nil {
				return err
			}
			raw, err := c.fetchStatus(ctx, serial)
			if err != nil {
				return err
			}
			if _, err := c.state.Replace(serial, raw); err != nil {
				return err
			}
		}
		return nil
	}

	systems, err := c.GetACSystems(ctx)
	if err != nil {
		return err
	}

	snapshots := make(map[string][]byte, len(systems))
	for _, s := range systems {
		serial := s.SerialNumber()
		raw, err := c.fetchStatus(ctx, serial)
		if err != nil {
			return err
		}
		snapshots[serial] = raw
	}
	return c.state.ReplaceAll(snapshots)
}

// GetStatus returns a copy of a system's tracked status
func (c *Client) GetStatus(serial string) (*models.Status, bool) {
	return c.state.Get(serial)
}

// State reports whether a system's status is tracked and current
func (c *Client) State(serial string) SyncState {
	return c.state.State(serial)
}

func (c *Client) resync(ctx context.Context, serial string) error {
	logging.Logger(ctx).WithField("serial", serial).Info("Missed events, fetching full status")

	raw, err := c.fetchStatus(ctx, serial)
	if err != nil {
		return errors.Wrapf(err, "resync of %s", serial)
	}
	_, err = c.state.Replace(serial, raw)
	return err
}

// ApplyEvent applies one event from the feed.  Old events are discarded.
// After a sequence gap the full status is fetched again, and the result
// reflects the event.
func (c *Client) ApplyEvent(ctx context.Context, serial string, ev *models.Event) (bool, error) {
	const op = "apply event"
	serial, err := checkSerial(op, serial)
	if err != nil {
		return false, err
	}

	applied, err := c.state.ApplyEvent(serial, ev)
	if !errors.Is(err, acstate.ErrSequenceGap) {
		return applied, err
	}

	if err := c.checkOpen(op); err != nil {
		return false, err
	}
	if err := c.resync(ctx, serial); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateEvents reads the event feed of a system since the last call and
// applies the events oldest first.  It returns the number of events that
// changed the tracked status; a resync counts as one.
func (c *Client) UpdateEvents(ctx context.Context, serial string) (int, error) {
	const op = "update events"
	serial, err := checkSerial(op, serial)
	if err != nil {
		return 0, err
	}
	if err := c.checkOpen(op); err != nil {
		return 0, err
	}
	ctxLogger := logging.Logger(ctx).WithField("serial", serial)

	path := nimbusapi.EventsLatestPath
	q := url.Values{"serial": {serial}}
	if cursor := c.state.LastEventID(serial); cursor != "" {
		path = nimbusapi.EventsNewerPath
		q.Set("newerThanEventId", cursor)
	}

	events := &models.Events{}
	if err := c.api.Send(ctx, http.MethodGet, path, q, nil, events); err != nil {
		return 0, err
	}

	ordered := events.Ordered()
	if len(ordered) == 0 {
		return 0, nil
	}
	newest := ordered[len(ordered)-1].EventID()

	n := 0
	for _, ev := range ordered {
		applied, err := c.state.ApplyEvent(serial, ev)
		if errors.Is(err, acstate.ErrSequenceGap) {
			// the snapshot is newer than anything left in this batch
			if err := c.resync(ctx, serial); err != nil {
				return n, err
			}
			n++
			break
		}
		if err != nil {
			return n, err
		}
		if applied {
			n++
		}
	}

	c.state.SetLastEventID(serial, newest)
	ctxLogger.Debugf("Applied %d of %d events", n, len(ordered))
	return n, nil
}

func (c *Client) limits(serial string) commands.Limits {
	l, _ := c.state.Limits(serial)
	return commands.LimitsFrom(l)
}

func (c *Client) zoneCount(serial string) int {
	n, ok := c.state.ZoneCount(serial)
	if !ok {
		return commands.UnknownZoneCount
	}
	return n
}

// SendCommand sends cmd to a system.  The command is validated before any
// request is made.
func (c *Client) SendCommand(ctx context.Context, serial string, cmd *commands.Command) error {
	const op = "send command"
	serial, err := checkSerial(op, serial)
	if err != nil {
		return err
	}
	if cmd == nil {
		return apierrors.NewValidationError(op, "no command")
	}
	if err := cmd.Validate(models.Formats); err != nil {
		return &apierrors.ValidationError{Op: op, Err: err}
	}
	if err := c.checkOpen(op); err != nil {
		return err
	}

	logging.Logger(ctx).WithField("serial", serial).Debugf("Sending command %s", cmd)
	return c.api.Send(ctx, http.MethodPost, nimbusapi.CommandPath, url.Values{"serial": {serial}}, cmd, nil)
}

// SendCommands merges cmds into a single request.  Where two commands set
// the same path the later one wins.
func (c *Client) SendCommands(ctx context.Context, serial string, cmds ...*commands.Command) error {
	merged := commands.New()
	for _, cmd := range cmds {
		merged.Merge(cmd)
	}
	return c.SendCommand(ctx, serial, merged)
}

func (c *Client) send(ctx context.Context, serial string, cmd *commands.Command, err error) error {
	if err != nil {
		return err
	}
	return c.SendCommand(ctx, serial, cmd)
}

// SetSystemMode turns the system on in mode, or off.  An empty mode keeps
// the current one.
func (c *Client) SetSystemMode(ctx context.Context, serial string, isOn bool, mode string) error {
	cmd, err := commands.SystemMode(isOn, mode)
	return c.send(ctx, serial, cmd, err)
}

func (c *Client) SetFanMode(ctx context.Context, serial string, fanMode string, continuous bool) error {
	cmd, err := commands.FanMode(fanMode, continuous)
	return c.send(ctx, serial, cmd, err)
}

// SetTemperature sets the COOL or HEAT setpoint within the system's limits
func (c *Client) SetTemperature(ctx context.Context, serial string, mode string, temperature float64) error {
	cmd, err := commands.Temperature(mode, temperature, c.limits(serial))
	return c.send(ctx, serial, cmd, err)
}

func (c *Client) SetAutoTemperature(ctx context.Context, serial string, heat, cool float64) error {
	cmd, err := commands.AutoTemperature(heat, cool, c.limits(serial))
	return c.send(ctx, serial, cmd, err)
}

// SetZoneTemperature sets one zone's setpoint.  Zones are numbered from 0.
func (c *Client) SetZoneTemperature(ctx context.Context, serial string, zone int, mode string, temperature float64) error {
	cmd, err := commands.ZoneTemperature(zone, mode, temperature, c.limits(serial), c.zoneCount(serial))
	return c.send(ctx, serial, cmd, err)
}

func (c *Client) SetZoneAutoTemperature(ctx context.Context, serial string, zone int, heat, cool float64) error {
	cmd, err := commands.ZoneAutoTemperature(zone, heat, cool, c.limits(serial), c.zoneCount(serial))
	return c.send(ctx, serial, cmd, err)
}

// SetZone enables or disables one zone
func (c *Client) SetZone(ctx context.Context, serial string, zone int, enabled bool) error {
	cmd, err := commands.Zone(zone, enabled, c.zoneCount(serial))
	return c.send(ctx, serial, cmd, err)
}

// SetMultipleZones enables or disables several zones in one command
func (c *Client) SetMultipleZones(ctx context.Context, serial string, zones map[int]bool) error {
	cmd, err := commands.MultipleZones(zones, c.zoneCount(serial))
	return c.send(ctx, serial, cmd, err)
}

func (c *Client) SetQuietMode(ctx context.Context, serial string, enabled bool) error {
	return c.SendCommand(ctx, serial, commands.QuietMode(enabled))
}

func (c *Client) SetAwayMode(ctx context.Context, serial string, enabled bool) error {
	return c.SendCommand(ctx, serial, commands.AwayMode(enabled))
}

// GetUserInfo returns the account details
func (c *Client) GetUserInfo(ctx context.Context) (map[string]interface{}, error) {
	const op = "get user info"
	if err := c.checkOpen(op); err != nil {
		return nil, err
	}

	info := map[string]interface{}{}
	if err := c.api.Send(ctx, http.MethodGet, nimbusapi.AccountPath, nil, nil, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// Close releases the client's connections.  It is safe to call more than
// once; every later operation fails with apierrors.ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return nil
	}
	c.isClosed = true
	c.api.Close()
	return nil
}
