package commands

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jake-scott/actron-nimbus/pkg/models"
)

type Mode string

const (
	ModeAuto Mode = "AUTO"
	ModeCool Mode = "COOL"
	ModeHeat Mode = "HEAT"
	ModeFan  Mode = "FAN"
)

// ParseMode accepts the system modes case-insensitively.  Off is not a
// mode: use SystemMode(false, "").
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModeAuto, ModeCool, ModeHeat, ModeFan:
		return m, nil
	}
	return "", fmt.Errorf("invalid mode %q, choose from AUTO, COOL, HEAT, FAN", s)
}

// FanSpeed is a fan mode without the continuous suffix
type FanSpeed string

const (
	FanAuto   FanSpeed = "AUTO"
	FanLow    FanSpeed = "LOW"
	FanMedium FanSpeed = "MED"
	FanHigh   FanSpeed = "HIGH"
)

// ParseFanMode accepts the fan modes case-insensitively, MEDIUM as MED
func ParseFanMode(s string) (FanSpeed, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, continuousSuffix)
	if v == "MEDIUM" {
		v = string(FanMedium)
	}

	switch f := FanSpeed(v); f {
	case FanAuto, FanLow, FanMedium, FanHigh:
		return f, nil
	}
	return "", fmt.Errorf("invalid fan mode %q, choose from AUTO, LOW, MEDIUM, HIGH", s)
}

// Default setpoint range used when the system does not report its own
const (
	DefaultMinSetpoint = 16.0
	DefaultMaxSetpoint = 32.0
)

// Limits bounds the cool and heat setpoints
type Limits struct {
	CoolMin float64
	CoolMax float64
	HeatMin float64
	HeatMax float64
}

// DefaultLimits is the 16-32 degree range
func DefaultLimits() Limits {
	return Limits{
		CoolMin: DefaultMinSetpoint,
		CoolMax: DefaultMaxSetpoint,
		HeatMin: DefaultMinSetpoint,
		HeatMax: DefaultMaxSetpoint,
	}
}

// LimitsFrom uses the system's NV_Limits where present
func LimitsFrom(l *models.UserSetpointLimits) Limits {
	out := DefaultLimits()
	if l == nil {
		return out
	}
	if l.SetCoolMin > 0 {
		out.CoolMin = l.SetCoolMin
	}
	if l.SetCoolMax > 0 {
		out.CoolMax = l.SetCoolMax
	}
	if l.SetHeatMin > 0 {
		out.HeatMin = l.SetHeatMin
	}
	if l.SetHeatMax > 0 {
		out.HeatMax = l.SetHeatMax
	}
	return out
}

func checkSetpoint(op, which string, v, min, max float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(op, "%s setpoint is not a number", which)
	}
	if v < min || v > max {
		return invalid(op, "%s setpoint %.1f outside %.1f-%.1f", which, v, min, max)
	}
	return nil
}

// UnknownZoneCount leaves zone indexes for the API to reject
const UnknownZoneCount = -1

func checkZone(op string, zone, zoneCount int) error {
	if zone < 0 {
		return invalid(op, "zone %d: zone numbers start at 0", zone)
	}
	if zoneCount == 0 {
		return invalid(op, "zone %d: system has no zones", zone)
	}
	if zoneCount > 0 && zone >= zoneCount {
		return invalid(op, "zone %d out of range, system has %d zones (0-%d)", zone, zoneCount, zoneCount-1)
	}
	return nil
}

// SystemMode turns the system on in mode, or off.  mode may be empty to
// power on in the current mode; it is ignored when turning off.
func SystemMode(isOn bool, mode string) (*Command, error) {
	const op = "system mode"

	c := New().Set(PathIsOn, isOn)
	if !isOn {
		return c, nil
	}

	if strings.EqualFold(strings.TrimSpace(mode), "OFF") {
		return New().Set(PathIsOn, false), nil
	}

	if mode != "" {
		m, err := ParseMode(mode)
		if err != nil {
			return nil, invalid(op, "%s", err)
		}
		c.Set(PathMode, string(m))
	}
	return c, nil
}

// FanMode sets the fan speed, optionally with continuous operation
func FanMode(fanMode string, continuous bool) (*Command, error) {
	f, err := ParseFanMode(fanMode)
	if err != nil {
		return nil, invalid("fan mode", "%s", err)
	}

	v := string(f)
	if continuous {
		v += continuousSuffix
	}
	return New().Set(PathFanMode, v), nil
}

// Temperature sets the system setpoint for COOL or HEAT and selects that
// mode.  AUTO needs both setpoints: use AutoTemperature.
func Temperature(mode string, temperature float64, limits Limits) (*Command, error) {
	const op = "set temperature"

	m, err := ParseMode(mode)
	if err != nil {
		return nil, invalid(op, "%s", err)
	}

	switch m {
	case ModeCool:
		if err := checkSetpoint(op, "cool", temperature, limits.CoolMin, limits.CoolMax); err != nil {
			return nil, err
		}
		return New().Set(PathMode, string(m)).Set(PathCoolSetpoint, temperature), nil
	case ModeHeat:
		if err := checkSetpoint(op, "heat", temperature, limits.HeatMin, limits.HeatMax); err != nil {
			return nil, err
		}
		return New().Set(PathMode, string(m)).Set(PathHeatSetpoint, temperature), nil
	case ModeAuto:
		return nil, invalid(op, "AUTO mode needs both heat and cool setpoints")
	default:
		return nil, invalid(op, "mode %s has no setpoint", m)
	}
}

func checkAuto(op string, heat, cool float64, limits Limits) error {
	if err := checkSetpoint(op, "heat", heat, limits.HeatMin, limits.HeatMax); err != nil {
		return err
	}
	if err := checkSetpoint(op, "cool", cool, limits.CoolMin, limits.CoolMax); err != nil {
		return err
	}
	if heat > cool {
		return invalid(op, "heat setpoint %.1f above cool setpoint %.1f", heat, cool)
	}
	return nil
}

// AutoTemperature selects AUTO with both setpoints
func AutoTemperature(heat, cool float64, limits Limits) (*Command, error) {
	const op = "set auto temperature"

	if err := checkAuto(op, heat, cool, limits); err != nil {
		return nil, err
	}
	return New().
		Set(PathMode, string(ModeAuto)).
		Set(PathHeatSetpoint, heat).
		Set(PathCoolSetpoint, cool), nil
}

// ZoneTemperature sets one zone's COOL or HEAT setpoint
func ZoneTemperature(zone int, mode string, temperature float64, limits Limits, zoneCount int) (*Command, error) {
	const op = "set zone temperature"

	if err := checkZone(op, zone, zoneCount); err != nil {
		return nil, err
	}

	m, err := ParseMode(mode)
	if err != nil {
		return nil, invalid(op, "%s", err)
	}

	switch m {
	case ModeCool:
		if err := checkSetpoint(op, "cool", temperature, limits.CoolMin, limits.CoolMax); err != nil {
			return nil, err
		}
		return New().Set(fmt.Sprintf(zoneCoolPath, zone), temperature), nil
	case ModeHeat:
		if err := checkSetpoint(op, "heat", temperature, limits.HeatMin, limits.HeatMax); err != nil {
			return nil, err
		}
		return New().Set(fmt.Sprintf(zoneHeatPath, zone), temperature), nil
	case ModeAuto:
		return nil, invalid(op, "AUTO mode needs both heat and cool setpoints")
	default:
		return nil, invalid(op, "mode %s has no setpoint", m)
	}
}

// ZoneAutoTemperature sets both of one zone's setpoints
func ZoneAutoTemperature(zone int, heat, cool float64, limits Limits, zoneCount int) (*Command, error) {
	const op = "set zone auto temperature"

	if err := checkZone(op, zone, zoneCount); err != nil {
		return nil, err
	}
	if err := checkAuto(op, heat, cool, limits); err != nil {
		return nil, err
	}
	return New().
		Set(fmt.Sprintf(zoneHeatPath, zone), heat).
		Set(fmt.Sprintf(zoneCoolPath, zone), cool), nil
}

// Zone enables or disables one zone
func Zone(zone int, enabled bool, zoneCount int) (*Command, error) {
	if err := checkZone("set zone", zone, zoneCount); err != nil {
		return nil, err
	}
	return New().Set(fmt.Sprintf(enabledZonePath, zone), enabled), nil
}

// MultipleZones enables or disables several zones in one command
func MultipleZones(zones map[int]bool, zoneCount int) (*Command, error) {
	const op = "set multiple zones"

	if len(zones) == 0 {
		return nil, invalid(op, "no zones given")
	}

	idx := make([]int, 0, len(zones))
	for z := range zones {
		idx = append(idx, z)
	}
	sort.Ints(idx)

	c := New()
	for _, z := range idx {
		if err := checkZone(op, z, zoneCount); err != nil {
			return nil, err
		}
		c.Set(fmt.Sprintf(enabledZonePath, z), zones[z])
	}
	return c, nil
}

func QuietMode(enabled bool) *Command {
	return New().Set(PathQuietMode, enabled)
}

func AwayMode(enabled bool) *Command {
	return New().Set(PathAwayMode, enabled)
}
