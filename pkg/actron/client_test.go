package actron

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jake-scott/actron-nimbus/internal/pkg/simulator"
	"github.com/jake-scott/actron-nimbus/pkg/apierrors"
	"github.com/jake-scott/actron-nimbus/pkg/commands"
	"github.com/jake-scott/actron-nimbus/pkg/models"
)

const (
	testUser     = "user@example.com"
	testPassword = "secret"
	testSerial   = "ABC123"
)

func newSimClient(t *testing.T, opts ...ClientOption) (*Client, *simulator.Server) {
	t.Helper()

	sim := simulator.New(simulator.Options{Username: testUser, Password: testPassword})
	require.NoError(t, sim.AddSystem(testSerial, "House", 4))
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)

	base := []ClientOption{
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithCredentials(testUser, testPassword),
		WithRequestTimeout(5 * time.Second),
	}
	c, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, sim
}

func pairAndSync(t *testing.T, c *Client) {
	t.Helper()
	ctx := context.Background()
	_, err := c.RequestPairingToken(ctx, "test", "")
	require.NoError(t, err)
	require.NoError(t, c.UpdateStatus(ctx))
}

func TestPairingThenRefresh(t *testing.T) {
	c, _ := newSimClient(t)
	ctx := context.Background()

	pt, err := c.RequestPairingToken(ctx, "test", "")
	require.NoError(t, err)
	assert.NotEmpty(t, pt)
	assert.Equal(t, pt, c.SessionTokens().PairingToken)

	tok, err := c.RefreshToken(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)
	assert.True(t, tok.ExpiresAt.After(time.Now()))

	// still valid, so no new token
	again, err := c.RefreshToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, tok.AccessToken, again.AccessToken)
}

func TestRefresh_NothingToRefresh(t *testing.T) {
	c, _ := newSimClient(t)
	_, err := c.RefreshToken(context.Background())
	assert.True(t, apierrors.IsAuthError(err))
}

func TestConcurrentCallersShareOneRefresh(t *testing.T) {
	c, sim := newSimClient(t)
	ctx := context.Background()
	_, err := c.RequestPairingToken(ctx, "test", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetACSystems(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, sim.Calls(simulator.TokenPath))
	assert.Equal(t, 10, sim.Calls(simulator.SystemsPath))
}

func TestUpdateStatus_AllSystems(t *testing.T) {
	c, sim := newSimClient(t)
	pairAndSync(t, c)

	st, ok := c.GetStatus("abc123")
	require.True(t, ok)
	assert.Equal(t, "House", st.SystemName())
	assert.Len(t, st.Zones(), 4)
	assert.Equal(t, Synced, c.State(testSerial))
	require.Len(t, c.Systems(), 1)

	// the system list follows the account
	require.NoError(t, sim.AddSystem("XYZ789", "Office", 2))
	sim.RemoveSystem(testSerial)
	require.NoError(t, c.UpdateStatus(context.Background()))

	assert.Equal(t, Unknown, c.State(testSerial))
	assert.Equal(t, Synced, c.State("xyz789"))
}

func TestUpdateStatus_OneSystem(t *testing.T) {
	c, _ := newSimClient(t)
	ctx := context.Background()
	_, err := c.RequestPairingToken(ctx, "test", "")
	require.NoError(t, err)

	require.NoError(t, c.UpdateStatus(ctx, testSerial))
	assert.Equal(t, Synced, c.State(testSerial))

	err = c.UpdateStatus(ctx, "missing")
	assert.True(t, apierrors.IsAPIError(err))

	err = c.UpdateStatus(ctx, " ")
	assert.True(t, apierrors.IsValidationError(err))
}

func TestZoneOutOfRange_NoRequest(t *testing.T) {
	c, sim := newSimClient(t)
	pairAndSync(t, c)
	ctx := context.Background()

	err := c.SetZone(ctx, testSerial, 5, true)
	require.Error(t, err)
	assert.True(t, apierrors.IsValidationError(err))

	err = c.SetMultipleZones(ctx, testSerial, map[int]bool{0: true, 4: true})
	assert.True(t, apierrors.IsValidationError(err))

	err = c.SetZoneTemperature(ctx, testSerial, 4, "COOL", 22)
	assert.True(t, apierrors.IsValidationError(err))

	assert.Equal(t, 0, sim.Calls(simulator.CommandPath))
}

func TestZone_KnownZeroZonesRejected(t *testing.T) {
	c, sim := newSimClient(t)
	pairAndSync(t, c)
	ctx := context.Background()

	_, err := c.state.Replace(testSerial, []byte(`{"lastKnownState":{"RemoteZoneInfo":[]}}`))
	require.NoError(t, err)
	n, ok := c.state.ZoneCount(testSerial)
	require.True(t, ok)
	require.Zero(t, n)

	err = c.SetZone(ctx, testSerial, 3, true)
	assert.True(t, apierrors.IsValidationError(err), "%v", err)
	err = c.SetZone(ctx, testSerial, 0, true)
	assert.True(t, apierrors.IsValidationError(err), "%v", err)

	assert.Equal(t, 0, sim.Calls(simulator.CommandPath))
}

func TestZone_UnknownCountDefersToAPI(t *testing.T) {
	c, _ := newSimClient(t)
	assert.Equal(t, commands.UnknownZoneCount, c.zoneCount("NOSUCH"))
}

func TestSendCommands_MergedIntoOneRequest(t *testing.T) {
	c, sim := newSimClient(t)
	pairAndSync(t, c)
	ctx := context.Background()

	mode, err := commands.SystemMode(true, "HEAT")
	require.NoError(t, err)
	require.NoError(t, c.SendCommands(ctx, testSerial, mode, nil, commands.QuietMode(true), commands.AwayMode(true)))
	assert.Equal(t, 1, sim.Calls(simulator.CommandPath))

	remote, _ := sim.Status(testSerial)
	assert.True(t, remote.Settings().IsOn)
	assert.Equal(t, "HEAT", remote.Settings().Mode)
	assert.True(t, remote.Settings().QuietModeEnabled)
	assert.True(t, remote.Settings().AwayMode)

	// later commands win on the same path
	require.NoError(t, c.SendCommands(ctx, testSerial, commands.QuietMode(true), commands.QuietMode(false)))
	remote, _ = sim.Status(testSerial)
	assert.False(t, remote.Settings().QuietModeEnabled)

	err = c.SendCommands(ctx, testSerial)
	assert.True(t, apierrors.IsValidationError(err))
	assert.Equal(t, 2, sim.Calls(simulator.CommandPath))
}

func TestSetTemperature_UsesSystemLimits(t *testing.T) {
	c, sim := newSimClient(t)
	pairAndSync(t, c)
	ctx := context.Background()

	// the simulated system allows heating down to 10
	require.NoError(t, c.SetTemperature(ctx, testSerial, "HEAT", 12))

	err := c.SetTemperature(ctx, testSerial, "COOL", 31)
	assert.True(t, apierrors.IsValidationError(err))
	assert.Equal(t, 1, sim.Calls(simulator.CommandPath))
}

func TestSetTemperature_DoesNotChangeTrackedStatus(t *testing.T) {
	c, sim := newSimClient(t)
	pairAndSync(t, c)
	ctx := context.Background()

	before, _ := c.GetStatus(testSerial)
	require.NoError(t, c.SetTemperature(ctx, testSerial, "COOL", 21))

	after, _ := c.GetStatus(testSerial)
	assert.Equal(t, before, after)

	remote, _ := sim.Status(testSerial)
	assert.Equal(t, 21.0, remote.Settings().TemperatureSetpointCoolC)

	// the change arrives on the event feed
	n, err := c.UpdateEvents(ctx, testSerial)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, _ := c.GetStatus(testSerial)
	assert.Equal(t, 21.0, st.Settings().TemperatureSetpointCoolC)
	assert.Equal(t, "COOL", st.Settings().Mode)
}

func TestCommands_Applied(t *testing.T) {
	c, sim := newSimClient(t)
	pairAndSync(t, c)
	ctx := context.Background()

	require.NoError(t, c.SetSystemMode(ctx, testSerial, true, "heat"))
	require.NoError(t, c.SetFanMode(ctx, testSerial, "medium", true))
	require.NoError(t, c.SetAutoTemperature(ctx, testSerial, 19, 25))
	require.NoError(t, c.SetZoneAutoTemperature(ctx, testSerial, 1, 18, 26))
	require.NoError(t, c.SetMultipleZones(ctx, testSerial, map[int]bool{0: false, 3: false}))
	require.NoError(t, c.SetQuietMode(ctx, testSerial, true))
	require.NoError(t, c.SetAwayMode(ctx, testSerial, true))

	n, err := c.UpdateEvents(ctx, testSerial)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	st, _ := c.GetStatus(testSerial)
	s := st.Settings()
	assert.True(t, s.IsOn)
	assert.Equal(t, "AUTO", s.Mode)
	assert.Equal(t, "MED-CONT", s.FanMode)
	assert.Equal(t, 19.0, s.TemperatureSetpointHeatC)
	assert.True(t, s.QuietModeEnabled)
	assert.True(t, s.AwayMode)
	assert.Equal(t, []bool{false, true, true, false}, s.EnabledZones)
	assert.Equal(t, 26.0, st.Zones()[1].TemperatureSetpointCoolC)
	assert.False(t, st.Zones()[0].Enabled)

	assert.Len(t, sim.Received(), 7)

	// nothing new
	n, err = c.UpdateEvents(ctx, testSerial)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSendCommand_Validation(t *testing.T) {
	c, sim := newSimClient(t)
	pairAndSync(t, c)
	ctx := context.Background()

	assert.True(t, apierrors.IsValidationError(c.SendCommand(ctx, testSerial, nil)))
	assert.True(t, apierrors.IsValidationError(c.SendCommand(ctx, testSerial, commands.New())))
	assert.True(t, apierrors.IsValidationError(c.SendCommand(ctx, "", commands.QuietMode(true))))
	assert.True(t, apierrors.IsValidationError(c.SetSystemMode(ctx, testSerial, true, "DRY")))
	assert.True(t, apierrors.IsValidationError(c.SetFanMode(ctx, testSerial, "TURBO", false)))

	assert.Equal(t, 0, sim.Calls(simulator.CommandPath))
}

func TestUpdateEvents_GapResyncs(t *testing.T) {
	c, sim := newSimClient(t)
	pairAndSync(t, c)
	ctx := context.Background()

	_, err := sim.PushChange(testSerial, map[string]interface{}{"MasterInfo.LiveTemp_oC": 25.0})
	require.NoError(t, err)
	n, err := c.UpdateEvents(ctx, testSerial)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// one change is never published
	_, err = sim.SkipChange(testSerial, map[string]interface{}{"MasterInfo.LiveOutdoorTemp_oC": 35.0})
	require.NoError(t, err)
	_, err = sim.PushChange(testSerial, map[string]interface{}{"MasterInfo.LiveTemp_oC": 26.0})
	require.NoError(t, err)

	statusCalls := sim.Calls(simulator.StatusPath)
	n, err = c.UpdateEvents(ctx, testSerial)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, statusCalls+1, sim.Calls(simulator.StatusPath))

	assert.Equal(t, Synced, c.State(testSerial))
	st, _ := c.GetStatus(testSerial)
	assert.Equal(t, 35.0, st.LastKnownState.MasterInfo.LiveOutdoorTempC)
	assert.Equal(t, 26.0, st.LastKnownState.MasterInfo.LiveTempC)
}

func TestUpdateEvents_FullStatus(t *testing.T) {
	c, sim := newSimClient(t)
	pairAndSync(t, c)
	ctx := context.Background()

	_, err := sim.SkipChange(testSerial, map[string]interface{}{"UserAirconSettings.Mode": "FAN"})
	require.NoError(t, err)
	_, err = sim.Broadcast(testSerial)
	require.NoError(t, err)

	statusCalls := sim.Calls(simulator.StatusPath)
	n, err := c.UpdateEvents(ctx, testSerial)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, statusCalls, sim.Calls(simulator.StatusPath), "no resync needed")

	st, _ := c.GetStatus(testSerial)
	assert.Equal(t, "FAN", st.Settings().Mode)
}

func TestUpdateEvents_WithoutSnapshot(t *testing.T) {
	c, sim := newSimClient(t)
	ctx := context.Background()
	_, err := c.RequestPairingToken(ctx, "test", "")
	require.NoError(t, err)

	_, err = sim.PushChange(testSerial, map[string]interface{}{"UserAirconSettings.isOn": true})
	require.NoError(t, err)

	n, err := c.UpdateEvents(ctx, testSerial)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, ok := c.GetStatus(testSerial)
	require.True(t, ok)
	assert.True(t, st.Settings().IsOn)
}

func TestApplyEvent(t *testing.T) {
	c, _ := newSimClient(t)
	pairAndSync(t, c)
	ctx := context.Background()

	id, typ, seq := "e2", models.EventTypeStatusChange, int64(2)
	applied, err := c.ApplyEvent(ctx, testSerial, &models.Event{ID: &id, Type: &typ, Sequence: &seq,
		Data: map[string]interface{}{"UserAirconSettings.Mode": "HEAT"}})
	require.NoError(t, err)
	assert.True(t, applied)

	// replayed
	applied, err = c.ApplyEvent(ctx, testSerial, &models.Event{ID: &id, Type: &typ, Sequence: &seq,
		Data: map[string]interface{}{"UserAirconSettings.Mode": "FAN"}})
	require.NoError(t, err)
	assert.False(t, applied)
	st, _ := c.GetStatus(testSerial)
	assert.Equal(t, "HEAT", st.Settings().Mode)

	// a gap fetches the real status again
	far := int64(50)
	applied, err = c.ApplyEvent(ctx, testSerial, &models.Event{ID: &id, Type: &typ, Sequence: &far,
		Data: map[string]interface{}{"UserAirconSettings.Mode": "FAN"}})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, Synced, c.State(testSerial))
	st, _ = c.GetStatus(testSerial)
	assert.Equal(t, "COOL", st.Settings().Mode)

	_, err = c.ApplyEvent(ctx, testSerial, &models.Event{})
	assert.True(t, apierrors.IsValidationError(err))
}

func TestRejectedBearerIsReplaced(t *testing.T) {
	c, sim := newSimClient(t)
	pairAndSync(t, c)

	sim.RevokeBearers()
	_, err := c.GetACSystems(context.Background())
	assert.NoError(t, err)
}

func TestDeviceCodeLogin(t *testing.T) {
	c, sim := newSimClient(t)
	ctx := context.Background()

	dc, err := c.RequestDeviceCode(ctx)
	require.NoError(t, err)

	res, err := c.PollForToken(ctx, *dc.DeviceCode)
	require.NoError(t, err)
	assert.True(t, res.Pending())
	assert.Equal(t, PollPending, res.Status)

	require.True(t, sim.Approve(*dc.UserCode))
	res, err = c.PollForToken(ctx, *dc.DeviceCode)
	require.NoError(t, err)
	assert.Equal(t, PollGranted, res.Status)

	saved := c.SessionTokens().RefreshToken
	require.NotEmpty(t, saved)

	// a later session starts from the saved refresh token
	c2, err := New(WithBaseURL(serveURL(t, sim)), WithRefreshToken(saved))
	require.NoError(t, err)
	defer c2.Close()
	_, err = c2.GetACSystems(ctx)
	assert.NoError(t, err)
}

func serveURL(t *testing.T, sim *simulator.Server) string {
	t.Helper()
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestDeviceCodeLogin_Expired(t *testing.T) {
	c, sim := newSimClient(t)
	ctx := context.Background()

	dc, err := c.RequestDeviceCode(ctx)
	require.NoError(t, err)
	require.True(t, sim.Expire(*dc.UserCode))

	_, err = c.PollForToken(ctx, *dc.DeviceCode)
	require.Error(t, err)
	assert.True(t, apierrors.IsAuthError(err))
}

func TestSetOAuth2Tokens(t *testing.T) {
	c, _ := newSimClient(t)
	assert.True(t, apierrors.IsValidationError(c.SetOAuth2Tokens("", "a", 0)))
	assert.True(t, apierrors.IsValidationError(c.SetOAuth2Tokens("r", "a", -time.Second)))

	require.NoError(t, c.SetOAuth2Tokens("r", "a", time.Hour))
	tok, err := c.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
}

func TestGetUserInfo(t *testing.T) {
	c, _ := newSimClient(t)
	pairAndSync(t, c)

	info, err := c.GetUserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testUser, info["email"])
}

func TestClose(t *testing.T) {
	c, _ := newSimClient(t)
	pairAndSync(t, c)
	ctx := context.Background()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.GetACSystems(ctx)
	assert.True(t, errors.Is(err, apierrors.ErrClosed))

	err = c.SetQuietMode(ctx, testSerial, true)
	assert.True(t, errors.Is(err, apierrors.ErrClosed))

	_, err = c.RequestDeviceCode(ctx)
	assert.True(t, errors.Is(err, apierrors.ErrClosed))

	// tracked status stays readable
	_, ok := c.GetStatus(testSerial)
	assert.True(t, ok)
}
