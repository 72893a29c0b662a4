package simulator

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Setpoint limits of simulated systems
const (
	simCoolMin = 16.0
	simCoolMax = 30.0
	simHeatMin = 10.0
	simHeatMax = 30.0
)

func newZone(i int) map[string]interface{} {
	return map[string]interface{}{
		"NV_Exists":                   true,
		"NV_Title":                    fmt.Sprintf("Zone %d", i+1),
		"LiveTemp_oC":                 22.0 + float64(i)*0.5,
		"LiveHumidity_pc":             50.0,
		"CanOperate":                  true,
		"TemperatureSetpoint_Cool_oC": 24.0,
		"TemperatureSetpoint_Heat_oC": 20.0,
	}
}

// newStatusDocument builds the status/latest document of a freshly
// installed system: off, COOL, every zone enabled
func newStatusDocument(serial, name string, zones int) ([]byte, error) {
	enabled := make([]interface{}, zones)
	remote := make([]interface{}, zones)
	for i := 0; i < zones; i++ {
		enabled[i] = true
		remote[i] = newZone(i)
	}

	doc := map[string]interface{}{
		"isOnline":             true,
		"timeSinceLastContact": "00:00:01.000",
		"sequence":             1,
		"lastKnownState": map[string]interface{}{
			"AirconSystem": map[string]interface{}{
				"MasterSerial":            serial,
				"MasterWCModel":           "NEO-SIM",
				"MasterWCFirmwareVersion": "0.0.0-sim",
				"OutdoorUnit": map[string]interface{}{
					"ModelNumber": "SIM-1",
					"Family":      "SIM",
				},
				// a wall sensor in the first zone
				"Peripherals": []interface{}{
					map[string]interface{}{
						"ZoneAssignment": []interface{}{0},
						"SensorInputs": map[string]interface{}{
							"SHTC1": map[string]interface{}{
								"Temperature_oC":      22.0,
								"RelativeHumidity_pc": 47.5,
							},
						},
					},
				},
			},
			"UserAirconSettings": map[string]interface{}{
				"isOn":                        false,
				"Mode":                        "COOL",
				"FanMode":                     "AUTO",
				"TemperatureSetpoint_Cool_oC": 24.0,
				"TemperatureSetpoint_Heat_oC": 20.0,
				"EnabledZones":                enabled,
				"QuietModeEnabled":            false,
				"AwayMode":                    false,
			},
			"MasterInfo": map[string]interface{}{
				"LiveTemp_oC":        23.5,
				"LiveHumidity_pc":    52.0,
				"LiveOutdoorTemp_oC": 28.0,
			},
			"LiveAircon": map[string]interface{}{
				"SystemOn":       false,
				"CompressorMode": "OFF",
			},
			"Alerts": map[string]interface{}{
				"CleanFilter": false,
				"Defrosting":  false,
			},
			"RemoteZoneInfo": remote,
			"NV_Limits": map[string]interface{}{
				"UserSetpoint_oC": map[string]interface{}{
					"setCool_Min": simCoolMin,
					"setCool_Max": simCoolMax,
					"setHeat_Min": simHeatMin,
					"setHeat_Max": simHeatMax,
				},
			},
			"NV_SystemSettings": map[string]interface{}{
				"SystemName": name,
			},
		},
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encoding status document")
	}
	return b, nil
}
