package models

import (
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/go-openapi/validate"
)

/*
 *  Full status document of one AC system, as returned by
 *  ac-systems/status/latest.  Only the fields the SDK reads are modelled;
 *  anything else is ignored.
 */

// Status is the full status of one AC system
type Status struct {
	IsOnline bool `json:"isOnline"`

	TimeSinceLastContact string `json:"timeSinceLastContact,omitempty"`

	// event sequence the snapshot is current to
	Sequence int64 `json:"sequence,omitempty"`

	// Required: true
	LastKnownState *LastKnownState `json:"lastKnownState"`

	// set by the state manager
	Serial string `json:"-"`
}

// Validate validates this status
func (m *Status) Validate(formats strfmt.Registry) error {
	if err := validate.Required("lastKnownState", "body", m.LastKnownState); err != nil {
		return err
	}

	return nil
}

// MarshalBinary interface implementation
func (m *Status) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return swag.WriteJSON(m)
}

// UnmarshalBinary interface implementation
func (m *Status) UnmarshalBinary(b []byte) error {
	var res Status
	if err := swag.ReadJSON(b, &res); err != nil {
		return err
	}
	*m = res
	return nil
}

// Settings returns the user settings, never nil
func (m *Status) Settings() *UserAirconSettings {
	if m.LastKnownState == nil || m.LastKnownState.UserAirconSettings == nil {
		return &UserAirconSettings{}
	}
	return m.LastKnownState.UserAirconSettings
}

// Zones returns the zones in vendor order
func (m *Status) Zones() []*Zone {
	if m.LastKnownState == nil {
		return nil
	}
	return m.LastKnownState.RemoteZoneInfo
}

// Limits returns the user setpoint limits reported by the system, if any
func (m *Status) Limits() *UserSetpointLimits {
	if m.LastKnownState == nil || m.LastKnownState.NVLimits == nil {
		return nil
	}
	return m.LastKnownState.NVLimits.UserSetpoint
}

// SystemName returns the name configured on the wall controller
func (m *Status) SystemName() string {
	if m.LastKnownState == nil || m.LastKnownState.NVSystemSettings == nil {
		return ""
	}
	return m.LastKnownState.NVSystemSettings.SystemName
}

// Derive fills the computed zone fields: index, enabled flag (from
// UserAirconSettings.EnabledZones) and peripheral humidity.
func (m *Status) Derive() {
	if m.LastKnownState == nil {
		return
	}
	s := m.LastKnownState

	var enabled []bool
	if s.UserAirconSettings != nil {
		enabled = s.UserAirconSettings.EnabledZones
	}

	for i, z := range s.RemoteZoneInfo {
		if z == nil {
			z = &Zone{}
			s.RemoteZoneInfo[i] = z
		}
		z.Index = i
		z.Enabled = i < len(enabled) && enabled[i]
		z.PeripheralHumidityPC = nil
	}

	if s.AirconSystem == nil {
		return
	}
	for _, p := range s.AirconSystem.Peripherals {
		if p == nil {
			continue
		}
		h := p.Humidity()
		if h == nil {
			continue
		}
		for _, zi := range p.ZoneAssignment {
			if zi < 0 || zi >= len(s.RemoteZoneInfo) {
				continue
			}
			v := *h
			s.RemoteZoneInfo[zi].PeripheralHumidityPC = &v
		}
	}
}

// LastKnownState is the vendor's state tree
type LastKnownState struct {
	AirconSystem       *AirconSystem       `json:"AirconSystem,omitempty"`
	UserAirconSettings *UserAirconSettings `json:"UserAirconSettings,omitempty"`
	MasterInfo         *MasterInfo         `json:"MasterInfo,omitempty"`
	LiveAircon         *LiveAircon         `json:"LiveAircon,omitempty"`
	Alerts             *Alerts             `json:"Alerts,omitempty"`
	RemoteZoneInfo     []*Zone             `json:"RemoteZoneInfo,omitempty"`
	NVLimits           *NVLimits           `json:"NV_Limits,omitempty"`
	NVSystemSettings   *NVSystemSettings   `json:"NV_SystemSettings,omitempty"`
}

type UserAirconSettings struct {
	IsOn                     bool    `json:"isOn"`
	Mode                     string  `json:"Mode,omitempty"`
	FanMode                  string  `json:"FanMode,omitempty"`
	TemperatureSetpointCoolC float64 `json:"TemperatureSetpoint_Cool_oC,omitempty"`
	TemperatureSetpointHeatC float64 `json:"TemperatureSetpoint_Heat_oC,omitempty"`
	EnabledZones             []bool  `json:"EnabledZones,omitempty"`
	QuietModeEnabled         bool    `json:"QuietModeEnabled,omitempty"`
	AwayMode                 bool    `json:"AwayMode,omitempty"`
}

// Continuous reports whether the fan mode carries the -CONT suffix
func (m *UserAirconSettings) Continuous() bool {
	return strings.HasSuffix(m.FanMode, "-CONT")
}

// Zone is one RemoteZoneInfo entry.  Zones are positional: Index i is the
// i-th vendor entry.
type Zone struct {
	Exists                   bool    `json:"NV_Exists"`
	Title                    string  `json:"NV_Title,omitempty"`
	LiveTempC                float64 `json:"LiveTemp_oC"`
	LiveHumidityPC           float64 `json:"LiveHumidity_pc"`
	CanOperate               bool    `json:"CanOperate,omitempty"`
	ZonePosition             int     `json:"ZonePosition,omitempty"`
	TemperatureSetpointCoolC float64 `json:"TemperatureSetpoint_Cool_oC,omitempty"`
	TemperatureSetpointHeatC float64 `json:"TemperatureSetpoint_Heat_oC,omitempty"`

	Index                int      `json:"-"`
	Enabled              bool     `json:"-"`
	PeripheralHumidityPC *float64 `json:"-"`
}

// Humidity prefers the humidity of a peripheral sensor assigned to the zone
func (z *Zone) Humidity() float64 {
	if z.PeripheralHumidityPC != nil {
		return *z.PeripheralHumidityPC
	}
	return z.LiveHumidityPC
}

type AirconSystem struct {
	MasterSerial            string        `json:"MasterSerial,omitempty"`
	MasterWCModel           string        `json:"MasterWCModel,omitempty"`
	MasterWCFirmwareVersion string        `json:"MasterWCFirmwareVersion,omitempty"`
	OutdoorUnit             *OutdoorUnit  `json:"OutdoorUnit,omitempty"`
	Peripherals             []*Peripheral `json:"Peripherals,omitempty"`
}

type OutdoorUnit struct {
	ModelNumber     string   `json:"ModelNumber,omitempty"`
	SerialNumber    string   `json:"SerialNumber,omitempty"`
	SoftwareVersion string   `json:"SoftwareVersion,omitempty"`
	CompSpeed       *float64 `json:"CompSpeed,omitempty"`
	CompPower       *int64   `json:"CompPower,omitempty"`
	CompressorOn    *bool    `json:"CompressorOn,omitempty"`
	AmbTemp         *float64 `json:"AmbTemp,omitempty"`
	Family          string   `json:"Family,omitempty"`
}

type Peripheral struct {
	ZoneAssignment []int         `json:"ZoneAssignment,omitempty"`
	SensorInputs   *SensorInputs `json:"SensorInputs,omitempty"`
}

type SensorInputs struct {
	SHTC1 *SHTC1 `json:"SHTC1,omitempty"`
}

type SHTC1 struct {
	TemperatureC       *float64 `json:"Temperature_oC,omitempty"`
	RelativeHumidityPC *float64 `json:"RelativeHumidity_pc,omitempty"`
}

// Humidity returns the peripheral's relative humidity if it is present and
// in the 0..100 range
func (p *Peripheral) Humidity() *float64 {
	if p.SensorInputs == nil || p.SensorInputs.SHTC1 == nil {
		return nil
	}
	h := p.SensorInputs.SHTC1.RelativeHumidityPC
	if h == nil || *h < 0 || *h > 100 {
		return nil
	}
	return h
}

type MasterInfo struct {
	LiveTempC        float64 `json:"LiveTemp_oC"`
	LiveHumidityPC   float64 `json:"LiveHumidity_pc"`
	LiveOutdoorTempC float64 `json:"LiveOutdoorTemp_oC"`
}

type LiveAircon struct {
	SystemOn                     bool     `json:"SystemOn"`
	CompressorMode               string   `json:"CompressorMode,omitempty"`
	CompressorCapacity           int64    `json:"CompressorCapacity,omitempty"`
	FanRPM                       int64    `json:"FanRPM,omitempty"`
	Defrost                      bool     `json:"Defrost,omitempty"`
	CompressorChasingTemperature *float64 `json:"CompressorChasingTemperature,omitempty"`
	CompressorLiveTemperature    *float64 `json:"CompressorLiveTemperature,omitempty"`
}

type Alerts struct {
	CleanFilter bool `json:"CleanFilter"`
	Defrosting  bool `json:"Defrosting"`
}

type NVLimits struct {
	UserSetpoint *UserSetpointLimits `json:"UserSetpoint_oC,omitempty"`
}

// UserSetpointLimits are the setpoint bounds configured on the system
type UserSetpointLimits struct {
	SetCoolMin float64 `json:"setCool_Min,omitempty"`
	SetCoolMax float64 `json:"setCool_Max,omitempty"`
	SetHeatMin float64 `json:"setHeat_Min,omitempty"`
	SetHeatMax float64 `json:"setHeat_Max,omitempty"`
}

type NVSystemSettings struct {
	SystemName string `json:"SystemName,omitempty"`
}
