package commands

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jake-scott/actron-nimbus/pkg/apierrors"
	"github.com/jake-scott/actron-nimbus/pkg/models"
)

func wire(t *testing.T, c *Command) map[string]interface{} {
	t.Helper()
	b, err := json.Marshal(c)
	require.NoError(t, err)

	var out struct {
		Command map[string]interface{} `json:"command"`
	}
	require.NoError(t, json.Unmarshal(b, &out))
	require.NotNil(t, out.Command)
	return out.Command
}

func TestMarshal_TypeInsideCommand(t *testing.T) {
	c, err := MultipleZones(map[int]bool{0: true, 2: false}, 4)
	require.NoError(t, err)

	b, err := json.Marshal(c)
	require.NoError(t, err)

	var top map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &top))
	assert.Len(t, top, 1, "only the command object at top level")

	cmd := wire(t, c)
	assert.Equal(t, TypeSetSettings, cmd["type"])
	assert.Equal(t, true, cmd["UserAirconSettings.EnabledZones[0]"])
	assert.Equal(t, false, cmd["UserAirconSettings.EnabledZones[2]"])
}

func TestUnmarshal(t *testing.T) {
	c := &Command{}
	require.NoError(t, json.Unmarshal([]byte(`{"command":{"UserAirconSettings.isOn":true,"type":"set-settings"}}`), c))
	assert.Equal(t, map[string]interface{}{PathIsOn: true}, c.Settings)

	assert.Error(t, json.Unmarshal([]byte(`{"command":{"type":"other"}}`), &Command{}))
	assert.Error(t, json.Unmarshal([]byte(`{}`), &Command{}))
}

func TestValidate(t *testing.T) {
	assert.Error(t, New().Validate(models.Formats))
	assert.Error(t, New().Set("", 1).Validate(models.Formats))
	assert.Error(t, New().Set("type", "x").Validate(models.Formats))
	assert.NoError(t, QuietMode(true).Validate(models.Formats))
}

func TestSystemMode(t *testing.T) {
	c, err := SystemMode(true, "cool")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{PathIsOn: true, PathMode: "COOL"}, c.Settings)

	c, err = SystemMode(false, "HEAT")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{PathIsOn: false}, c.Settings)

	c, err = SystemMode(true, "OFF")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{PathIsOn: false}, c.Settings)

	c, err = SystemMode(true, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{PathIsOn: true}, c.Settings)

	_, err = SystemMode(true, "DRY")
	assert.True(t, apierrors.IsValidationError(err))
}

func TestFanMode(t *testing.T) {
	for in, want := range map[string]string{
		"auto":   "AUTO",
		"LOW":    "LOW",
		"Medium": "MED",
		"MED":    "MED",
		"high":   "HIGH",
	} {
		c, err := FanMode(in, false)
		require.NoError(t, err, in)
		assert.Equal(t, want, c.Settings[PathFanMode])
	}

	c, err := FanMode("MEDIUM", true)
	require.NoError(t, err)
	assert.Equal(t, "MED-CONT", c.Settings[PathFanMode])

	_, err = FanMode("TURBO", false)
	assert.True(t, apierrors.IsValidationError(err))
}

func TestTemperature(t *testing.T) {
	c, err := Temperature("COOL", 24.0, DefaultLimits())
	require.NoError(t, err)
	cmd := wire(t, c)
	assert.Equal(t, "COOL", cmd[PathMode])
	assert.Equal(t, 24.0, cmd[PathCoolSetpoint])
	assert.NotContains(t, cmd, PathHeatSetpoint)

	c, err = Temperature("heat", 19.5, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 19.5, c.Settings[PathHeatSetpoint])

	for _, bad := range []struct {
		mode string
		temp float64
	}{
		{"COOL", 15.9},
		{"COOL", 32.1},
		{"HEAT", math.NaN()},
		{"AUTO", 22},
		{"FAN", 22},
		{"DRY", 22},
	} {
		_, err := Temperature(bad.mode, bad.temp, DefaultLimits())
		assert.True(t, apierrors.IsValidationError(err), "%s %v", bad.mode, bad.temp)
	}
}

func TestTemperature_SystemLimits(t *testing.T) {
	limits := LimitsFrom(&models.UserSetpointLimits{SetCoolMin: 18, SetCoolMax: 30, SetHeatMin: 10})
	assert.Equal(t, 10.0, limits.HeatMin)
	assert.Equal(t, DefaultMaxSetpoint, limits.HeatMax)

	_, err := Temperature("COOL", 17, limits)
	assert.Error(t, err)
	_, err = Temperature("HEAT", 12, limits)
	assert.NoError(t, err)

	assert.Equal(t, DefaultLimits(), LimitsFrom(nil))
}

func TestAutoTemperature(t *testing.T) {
	c, err := AutoTemperature(20, 24, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		PathMode:         "AUTO",
		PathHeatSetpoint: 20.0,
		PathCoolSetpoint: 24.0,
	}, c.Settings)

	_, err = AutoTemperature(25, 24, DefaultLimits())
	assert.True(t, apierrors.IsValidationError(err))
	_, err = AutoTemperature(10, 24, DefaultLimits())
	assert.True(t, apierrors.IsValidationError(err))
}

func TestZoneTemperature(t *testing.T) {
	c, err := ZoneTemperature(2, "COOL", 23, DefaultLimits(), 4)
	require.NoError(t, err)
	assert.Equal(t, 23.0, c.Settings["RemoteZoneInfo[2].TemperatureSetpoint_Cool_oC"])

	c, err = ZoneAutoTemperature(1, 19, 25, DefaultLimits(), 4)
	require.NoError(t, err)
	assert.Equal(t, 19.0, c.Settings["RemoteZoneInfo[1].TemperatureSetpoint_Heat_oC"])
	assert.Equal(t, 25.0, c.Settings["RemoteZoneInfo[1].TemperatureSetpoint_Cool_oC"])

	_, err = ZoneTemperature(4, "COOL", 23, DefaultLimits(), 4)
	assert.True(t, apierrors.IsValidationError(err))
	_, err = ZoneTemperature(0, "AUTO", 23, DefaultLimits(), 4)
	assert.True(t, apierrors.IsValidationError(err))
}

func TestZone(t *testing.T) {
	c, err := Zone(3, true, 4)
	require.NoError(t, err)
	assert.Equal(t, true, c.Settings["UserAirconSettings.EnabledZones[3]"])

	_, err = Zone(5, true, 4)
	assert.True(t, apierrors.IsValidationError(err))
	_, err = Zone(-1, true, 4)
	assert.True(t, apierrors.IsValidationError(err))

	// unknown zone count defers to the API
	_, err = Zone(9, false, UnknownZoneCount)
	assert.NoError(t, err)
	_, err = Zone(-1, false, UnknownZoneCount)
	assert.True(t, apierrors.IsValidationError(err))
}

func TestZone_KnownZeroZones(t *testing.T) {
	_, err := Zone(0, true, 0)
	assert.True(t, apierrors.IsValidationError(err))
	assert.Contains(t, err.Error(), "no zones")

	_, err = ZoneTemperature(0, "COOL", 23, DefaultLimits(), 0)
	assert.True(t, apierrors.IsValidationError(err))
	_, err = ZoneAutoTemperature(0, 19, 25, DefaultLimits(), 0)
	assert.True(t, apierrors.IsValidationError(err))
	_, err = MultipleZones(map[int]bool{0: true}, 0)
	assert.True(t, apierrors.IsValidationError(err))
}

func TestMultipleZones(t *testing.T) {
	_, err := MultipleZones(nil, 4)
	assert.True(t, apierrors.IsValidationError(err))

	_, err = MultipleZones(map[int]bool{1: true, 7: false}, 4)
	assert.True(t, apierrors.IsValidationError(err))
}

func TestQuietAndAway(t *testing.T) {
	assert.Equal(t, true, QuietMode(true).Settings[PathQuietMode])
	assert.Equal(t, false, AwayMode(false).Settings[PathAwayMode])
}

func TestMerge(t *testing.T) {
	c, err := SystemMode(true, "HEAT")
	require.NoError(t, err)
	c.Merge(QuietMode(true)).Merge(nil)

	assert.Equal(t, []string{PathMode, PathQuietMode, PathIsOn}, c.Paths())
	assert.Contains(t, c.String(), "UserAirconSettings.Mode=HEAT")
}
