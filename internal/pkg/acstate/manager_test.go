package acstate

import (
	"io/ioutil"
	"sync"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jake-scott/actron-nimbus/pkg/apierrors"
	"github.com/jake-scott/actron-nimbus/pkg/models"
)

func loadFixture(t *testing.T) []byte {
	t.Helper()
	b, err := ioutil.ReadFile("testdata/status.json")
	require.NoError(t, err)
	return b
}

func newSynced(t *testing.T) *Manager {
	t.Helper()
	m := New()
	_, err := m.Replace("ABC123", loadFixture(t))
	require.NoError(t, err)
	return m
}

func delta(id string, seq int64, data map[string]interface{}) *models.Event {
	typ := models.EventTypeStatusChange
	return &models.Event{ID: &id, Type: &typ, Sequence: &seq, Data: data}
}

func TestReplace_GetNormalisesSerial(t *testing.T) {
	m := newSynced(t)

	st, ok := m.Get("abc123")
	require.True(t, ok)
	assert.Equal(t, "abc123", st.Serial)
	assert.Equal(t, "COOL", st.Settings().Mode)
	assert.True(t, st.Settings().Continuous())
	assert.Equal(t, "House", st.SystemName())
	assert.Equal(t, Synced, m.State("ABC123"))

	seq, ok := m.Sequence("abc123")
	require.True(t, ok)
	assert.EqualValues(t, 100, seq)
}

func TestGet_UnknownSerial(t *testing.T) {
	m := New()
	st, ok := m.Get("nope")
	assert.False(t, ok)
	assert.Nil(t, st)
	assert.Equal(t, Unknown, m.State("nope"))

	_, ok = m.ZoneCount("nope")
	assert.False(t, ok)
}

func TestGet_ZonesDerived(t *testing.T) {
	m := newSynced(t)
	st, _ := m.Get("abc123")

	zones := st.Zones()
	require.Len(t, zones, 4)
	for i, z := range zones {
		assert.Equal(t, i, z.Index)
	}
	assert.True(t, zones[0].Enabled)
	assert.False(t, zones[1].Enabled)
	assert.True(t, zones[2].Enabled)

	// peripheral humidity overrides, out of range readings are ignored
	assert.Equal(t, 50.0, zones[0].Humidity())
	assert.Equal(t, 48.5, zones[1].Humidity())
	assert.Equal(t, 52.0, zones[2].Humidity())

	n, ok := m.ZoneCount("abc123")
	require.True(t, ok)
	assert.Equal(t, 4, n)

	l, ok := m.Limits("abc123")
	require.True(t, ok)
	assert.Equal(t, 18.0, l.SetCoolMin)
	assert.Equal(t, 28.0, l.SetHeatMax)
}

func TestGet_ReturnsCopies(t *testing.T) {
	m := newSynced(t)
	st, _ := m.Get("abc123")
	st.Settings().Mode = "HEAT"
	st.Zones()[0].Title = "changed"

	again, _ := m.Get("abc123")
	assert.Equal(t, "COOL", again.Settings().Mode)
	assert.Equal(t, "Living", again.Zones()[0].Title)
}

func TestReplace_Idempotent(t *testing.T) {
	m := newSynced(t)
	first, _ := m.Get("abc123")

	_, err := m.Replace("abc123", loadFixture(t))
	require.NoError(t, err)
	second, _ := m.Get("abc123")

	assert.Equal(t, first, second)
}

func TestReplace_InvalidLeavesState(t *testing.T) {
	m := newSynced(t)

	_, err := m.Replace("abc123", []byte(`{"isOnline": true}`))
	require.Error(t, err)
	assert.True(t, apierrors.IsValidationError(err))

	st, ok := m.Get("abc123")
	require.True(t, ok)
	assert.Equal(t, "COOL", st.Settings().Mode)
}

func TestReplaceAll_RemovesMissingSerials(t *testing.T) {
	m := newSynced(t)
	_, err := m.Replace("old", loadFixture(t))
	require.NoError(t, err)

	require.NoError(t, m.ReplaceAll(map[string][]byte{
		"ABC123": loadFixture(t),
		"New1":   loadFixture(t),
	}))

	assert.Equal(t, []string{"abc123", "new1"}, m.Serials())
	assert.Equal(t, Unknown, m.State("old"))
}

func TestReplaceAll_AllOrNothing(t *testing.T) {
	m := newSynced(t)

	err := m.ReplaceAll(map[string][]byte{
		"other": loadFixture(t),
		"bad":   []byte(`not json`),
	})
	assert.True(t, apierrors.IsValidationError(err))
	assert.Equal(t, []string{"abc123"}, m.Serials())
}

func TestApplyEvent_InOrderDeltas(t *testing.T) {
	m := newSynced(t)

	events := []*models.Event{
		delta("e1", 101, map[string]interface{}{"UserAirconSettings.Mode": "HEAT"}),
		delta("e2", 102, map[string]interface{}{"RemoteZoneInfo[2].LiveTemp_oC": 19.5}),
		delta("e3", 103, map[string]interface{}{
			"UserAirconSettings.EnabledZones[1]": true,
			"@metadata":                          map[string]interface{}{"ignored": true},
		}),
	}
	for _, ev := range events {
		applied, err := m.ApplyEvent("abc123", ev)
		require.NoError(t, err)
		assert.True(t, applied)
	}

	st, _ := m.Get("abc123")
	assert.Equal(t, "HEAT", st.Settings().Mode)
	assert.Equal(t, 19.5, st.Zones()[2].LiveTempC)
	assert.True(t, st.Zones()[1].Enabled)
	assert.EqualValues(t, 103, st.Sequence)
	assert.Equal(t, "e3", m.LastEventID("abc123"))

	raw, ok := m.Raw("abc123")
	require.True(t, ok)
	assert.Contains(t, string(raw), "UnmodelledBlock")
	assert.NotContains(t, string(raw), "@metadata")
}

func TestApplyEvent_OutOfOrderDiscarded(t *testing.T) {
	m := newSynced(t)
	_, err := m.ApplyEvent("abc123", delta("e1", 101, map[string]interface{}{"UserAirconSettings.Mode": "HEAT"}))
	require.NoError(t, err)
	before, _ := m.Raw("abc123")

	for _, seq := range []int64{101, 100, 50} {
		applied, err := m.ApplyEvent("abc123", delta("old", seq, map[string]interface{}{"UserAirconSettings.Mode": "FAN"}))
		require.NoError(t, err)
		assert.False(t, applied)
	}

	after, _ := m.Raw("abc123")
	assert.Equal(t, before, after)
	assert.Equal(t, Synced, m.State("abc123"))
}

func TestApplyEvent_GapForcesResync(t *testing.T) {
	m := newSynced(t)
	before, _ := m.Raw("abc123")

	applied, err := m.ApplyEvent("abc123", delta("e5", 105, map[string]interface{}{"UserAirconSettings.Mode": "FAN"}))
	assert.False(t, applied)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, ErrSequenceGap))
	assert.Equal(t, Stale, m.State("abc123"))

	after, _ := m.Raw("abc123")
	assert.Equal(t, before, after)

	// a fresh snapshot clears the stale flag
	_, err = m.Replace("abc123", loadFixture(t))
	require.NoError(t, err)
	assert.Equal(t, Synced, m.State("abc123"))
}

func TestApplyEvent_DeltaWithoutSnapshot(t *testing.T) {
	m := New()
	_, err := m.ApplyEvent("abc123", delta("e1", 1, map[string]interface{}{"UserAirconSettings.Mode": "FAN"}))
	assert.True(t, pkgerrors.Is(err, ErrSequenceGap))
}

func TestApplyEvent_BadPathLeavesState(t *testing.T) {
	m := newSynced(t)
	before, _ := m.Raw("abc123")

	for _, data := range []map[string]interface{}{
		{"RemoteZoneInfo[9].LiveTemp_oC": 1.0},
		{"UserAirconSettings.Mode[0]": "x"},
		{"UserAirconSettings..Mode": "x"},
		{"RemoteZoneInfo[x].LiveTemp_oC": 1.0},
	} {
		applied, err := m.ApplyEvent("abc123", delta("bad", 101, data))
		assert.False(t, applied)
		assert.True(t, apierrors.IsValidationError(err), "%v", data)
	}

	after, _ := m.Raw("abc123")
	assert.Equal(t, before, after)
	seq, _ := m.Sequence("abc123")
	assert.EqualValues(t, 100, seq)
}

func TestApplyEvent_InvalidEvent(t *testing.T) {
	m := newSynced(t)
	_, err := m.ApplyEvent("abc123", &models.Event{})
	assert.True(t, apierrors.IsValidationError(err))

	_, err = m.ApplyEvent("abc123", nil)
	assert.True(t, apierrors.IsValidationError(err))
}

func TestApplyEvent_FullStatus(t *testing.T) {
	m := newSynced(t)
	id, typ, seq := "full", models.EventTypeFullStatus, int64(150)

	ev := &models.Event{ID: &id, Type: &typ, Sequence: &seq, Data: map[string]interface{}{
		"UserAirconSettings": map[string]interface{}{"isOn": false, "Mode": "HEAT", "EnabledZones": []interface{}{true}},
		"RemoteZoneInfo": []interface{}{
			map[string]interface{}{"NV_Exists": true, "NV_Title": "Only", "LiveTemp_oC": 20.0, "LiveHumidity_pc": 40.0},
		},
	}}

	applied, err := m.ApplyEvent("abc123", ev)
	require.NoError(t, err)
	assert.True(t, applied)

	st, _ := m.Get("abc123")
	assert.False(t, st.Settings().IsOn)
	require.Len(t, st.Zones(), 1)
	assert.Equal(t, "Only", st.Zones()[0].Title)
	assert.True(t, st.IsOnline)
	n, _ := m.ZoneCount("abc123")
	assert.Equal(t, 1, n)

	// the next delta continues from the full status sequence
	applied, err = m.ApplyEvent("abc123", delta("next", 151, map[string]interface{}{"UserAirconSettings.isOn": true}))
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestApplyEvent_UnknownSequenceAdoptsFirst(t *testing.T) {
	m := New()
	_, err := m.Replace("abc123", []byte(`{"lastKnownState":{"UserAirconSettings":{"Mode":"COOL"}}}`))
	require.NoError(t, err)

	applied, err := m.ApplyEvent("abc123", delta("e", 7000, map[string]interface{}{"UserAirconSettings.Mode": "HEAT"}))
	require.NoError(t, err)
	assert.True(t, applied)

	seq, _ := m.Sequence("abc123")
	assert.EqualValues(t, 7000, seq)
}

func TestApplyEvent_ConcurrentReadersSeeWholeDeltas(t *testing.T) {
	m := newSynced(t)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				st, ok := m.Get("abc123")
				if !ok {
					continue
				}
				// every delta sets both setpoints to the same value
				s := st.Settings()
				assert.Equal(t, s.TemperatureSetpointCoolC, s.TemperatureSetpointHeatC+3)
			}
		}()
	}

	for i := int64(1); i <= 200; i++ {
		v := 20.0 + float64(i%5)
		_, err := m.ApplyEvent("abc123", delta("e", 100+i, map[string]interface{}{
			"UserAirconSettings.TemperatureSetpoint_Heat_oC": v,
			"UserAirconSettings.TemperatureSetpoint_Cool_oC": v + 3,
		}))
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestSetLastEventID(t *testing.T) {
	m := newSynced(t)
	assert.True(t, m.SetLastEventID("ABC123", "e42"))
	assert.Equal(t, "e42", m.LastEventID("abc123"))

	assert.False(t, m.SetLastEventID("abc123", ""))
	assert.False(t, m.SetLastEventID("nope", "e1"))

	// the cursor survives a snapshot
	_, err := m.Replace("abc123", loadFixture(t))
	require.NoError(t, err)
	assert.Equal(t, "e42", m.LastEventID("abc123"))
}

func TestSyncState_String(t *testing.T) {
	assert.Equal(t, "synced", Synced.String())
	assert.Contains(t, SyncState(7).String(), "unknown")
}
