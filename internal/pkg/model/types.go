package model

import "strings"

type DeviceKind string

func (k DeviceKind) String() string {
	return string(k)
}

const (
	KindUnknown        DeviceKind = ""
	KindBatteryMonitor DeviceKind = "battery_monitor"
	KindSolarCharger   DeviceKind = "solar_charger"
	KindInverter       DeviceKind = "inverter"
	KindGateway        DeviceKind = "gateway"
)

var Kinds = []DeviceKind{
	KindBatteryMonitor,
	KindSolarCharger,
	KindInverter,
	KindGateway,
}

// Label is the value VRM puts in the "Device" column of a diagnostics record.
func (k DeviceKind) Label() string {
	switch k {
	case KindBatteryMonitor:
		return "Battery Monitor"
	case KindSolarCharger:
		return "Solar Charger"
	case KindInverter:
		return "VE.Bus System"
	case KindGateway:
		return "Gateway"
	}
	return ""
}

// KindFromLabel maps a diagnostics "Device" label to a kind, KindUnknown when unrecognised.
func KindFromLabel(label string) DeviceKind {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "battery monitor":
		return KindBatteryMonitor
	case "solar charger":
		return KindSolarCharger
	case "ve.bus system", "vebus system", "inverter":
		return KindInverter
	case "gateway":
		return KindGateway
	}
	return KindUnknown
}

type TemperatureUnit string

const (
	Celsius    TemperatureUnit = "C"
	Fahrenheit TemperatureUnit = "F"
)

type NumericUnit string

const (
	NumericUnitAmp          NumericUnit = "A"
	NumericUnitAmpHour      NumericUnit = "Ah"
	NumericUnitPercent      NumericUnit = "%"
	NumericUnitWatt         NumericUnit = "W"
	NumericUnitKiloWattHour NumericUnit = "kWh"
	NumericUnitVolt         NumericUnit = "V"
	NumericUnitHertz        NumericUnit = "Hz"
	NumericUnitDegreeC      NumericUnit = "°C"
	NumericUnitDegreeF      NumericUnit = "°F"
	NumericUnitMegaByte     NumericUnit = "MB"
	NumericUnitHour         NumericUnit = "h"
	NumericUnitSecond       NumericUnit = "s"
	NumericUnitNone         NumericUnit = ""
)

type (
	TextSensor  string
	TextSensorz []TextSensor
)

const (
	FirmwareVersionTextSensor TextSensor = "firmware_version"
	EssBatteryStateTextSensor TextSensor = "ess_battery_state"
	ServicesStatusTextSensor  TextSensor = "services_status"
	RelayStatesTextSensor     TextSensor = "relay_states"
	ChargeStateTextSensor     TextSensor = "charge_state_text"
	LoadStateTextSensor       TextSensor = "load_output_state_text"
)

func (t TextSensor) String() string {
	return string(t)
}

func (ts TextSensorz) HasSlug(slug string) bool {
	for _, t := range ts {
		if t.String() == slug {
			return true
		}
	}
	return false
}

var TextSensors TextSensorz = TextSensorz{
	FirmwareVersionTextSensor,
	EssBatteryStateTextSensor,
	ServicesStatusTextSensor,
	RelayStatesTextSensor,
	ChargeStateTextSensor,
	LoadStateTextSensor,
}
