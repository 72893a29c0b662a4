// Package commands builds set-settings payloads for the Nimbus command
// endpoint.  Builders validate their arguments and never perform I/O.
package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-openapi/strfmt"

	"github.com/jake-scott/actron-nimbus/pkg/apierrors"
)

// TypeSetSettings is the only command type the API accepts
const TypeSetSettings = "set-settings"

// Setting paths
const (
	PathIsOn         = "UserAirconSettings.isOn"
	PathMode         = "UserAirconSettings.Mode"
	PathFanMode      = "UserAirconSettings.FanMode"
	PathCoolSetpoint = "UserAirconSettings.TemperatureSetpoint_Cool_oC"
	PathHeatSetpoint = "UserAirconSettings.TemperatureSetpoint_Heat_oC"
	PathQuietMode    = "UserAirconSettings.QuietModeEnabled"
	PathAwayMode     = "UserAirconSettings.AwayMode"
)

const (
	continuousSuffix = "-CONT"
	enabledZonePath  = "UserAirconSettings.EnabledZones[%d]"
	zoneCoolPath     = "RemoteZoneInfo[%d].TemperatureSetpoint_Cool_oC"
	zoneHeatPath     = "RemoteZoneInfo[%d].TemperatureSetpoint_Heat_oC"
)

// Command is a set of setting paths and their new values.  The target
// serial is supplied when the command is sent.
type Command struct {
	Settings map[string]interface{}
}

func New() *Command {
	return &Command{Settings: make(map[string]interface{})}
}

// Set adds or replaces one setting
func (c *Command) Set(path string, value interface{}) *Command {
	if c.Settings == nil {
		c.Settings = make(map[string]interface{})
	}
	c.Settings[path] = value
	return c
}

// Merge copies other's settings into c
func (c *Command) Merge(other *Command) *Command {
	if other == nil {
		return c
	}
	for k, v := range other.Settings {
		c.Set(k, v)
	}
	return c
}

// Paths lists the setting paths in sorted order
func (c *Command) Paths() []string {
	out := make([]string, 0, len(c.Settings))
	for k := range c.Settings {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate validates this command
func (c *Command) Validate(formats strfmt.Registry) error {
	if c == nil || len(c.Settings) == 0 {
		return fmt.Errorf("command has no settings")
	}
	for k := range c.Settings {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("command has an empty setting path")
		}
		if k == "type" {
			return fmt.Errorf("command setting path %q is reserved", k)
		}
	}
	return nil
}

// MarshalJSON produces {"command": {<path>: <value>, ..., "type": "set-settings"}}
func (c *Command) MarshalJSON() ([]byte, error) {
	body := make(map[string]interface{}, len(c.Settings)+1)
	for k, v := range c.Settings {
		body[k] = v
	}
	body["type"] = TypeSetSettings

	return json.Marshal(struct {
		Command map[string]interface{} `json:"command"`
	}{body})
}

// UnmarshalJSON accepts the wire form produced by MarshalJSON
func (c *Command) UnmarshalJSON(b []byte) error {
	var wire struct {
		Command map[string]interface{} `json:"command"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	if wire.Command == nil {
		return fmt.Errorf("missing command object")
	}
	if t, _ := wire.Command["type"].(string); t != TypeSetSettings {
		return fmt.Errorf("unsupported command type %q", t)
	}
	delete(wire.Command, "type")
	c.Settings = wire.Command
	return nil
}

func (c *Command) String() string {
	parts := make([]string, 0, len(c.Settings))
	for _, k := range c.Paths() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, c.Settings[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func invalid(op, format string, args ...interface{}) error {
	return apierrors.NewValidationError(op, format, args...)
}
