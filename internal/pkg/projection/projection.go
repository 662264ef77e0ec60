// Package projection renders device state into the sensor values published to
// the outside world. Temperatures are converted to the display unit here and
// nowhere else.
package projection

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/anicoll/vrm-integration/internal/pkg/device"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

// Units of measure reported alongside each driver value.
const (
	UOMAmp        = 1
	UOMBoolean    = 2
	UOMCelsius    = 4
	UOMFahrenheit = 17
	UOMIndex      = 25
	UOMKiloWattHr = 33
	UOMPercent    = 51
	UOMRaw        = 56
	UOMStatus     = 68
	UOMVolt       = 72
	UOMWatt       = 73
	UOMHertz      = 90
)

type format int

const (
	number format = iota
	text
	hex
	chargeText
	loadText
)

// Output maps one state field onto a published sensor.
type Output struct {
	Driver      string
	Name        string
	Field       model.Field
	Unit        model.NumericUnit
	UOM         int
	DeviceClass string
	StateClass  string
	format      format
}

func (o Output) Slug() string {
	return strings.ReplaceAll(slug.Make(o.Name), "-", "_")
}

func (o Output) temperature() bool {
	return o.format == number && o.Field.IsTemperature()
}

func measure(driver, name string, f model.Field, unit model.NumericUnit, uom int, class string) Output {
	return Output{Driver: driver, Name: name, Field: f, Unit: unit, UOM: uom, DeviceClass: class, StateClass: "measurement"}
}

func counter(driver, name string, f model.Field, uom int) Output {
	return Output{Driver: driver, Name: name, Field: f, UOM: uom}
}

func alarm(driver, name string, f model.Field) Output {
	return Output{Driver: driver, Name: name, Field: f, UOM: UOMBoolean}
}

func textual(driver, name string, f model.Field, fm format) Output {
	return Output{Driver: driver, Name: name, Field: f, UOM: UOMRaw, format: fm}
}

func temperature(driver, name string, f model.Field) Output {
	return Output{Driver: driver, Name: name, Field: f, Unit: model.NumericUnitDegreeC, UOM: UOMCelsius, DeviceClass: "temperature", StateClass: "measurement"}
}

var outputs = map[model.DeviceKind][]Output{
	model.KindBatteryMonitor: {
		measure("ST", "State of Charge", model.FieldSoc, model.NumericUnitPercent, UOMPercent, "battery"),
		measure("CV", "Voltage", model.FieldVoltage, model.NumericUnitVolt, UOMVolt, "voltage"),
		measure("CC", "Current", model.FieldCurrent, model.NumericUnitAmp, UOMAmp, "current"),
		measure("CPW", "Power", model.FieldPower, model.NumericUnitWatt, UOMWatt, "power"),
		temperature("CLITEMP", "Temperature", model.FieldTemperature),
		alarm("GV0", "Low Voltage Alarm", model.FieldLowVoltageAlarm),
		alarm("GV1", "High Voltage Alarm", model.FieldHighVoltageAlarm),
		alarm("GV2", "Low SOC Alarm", model.FieldLowSocAlarm),
		alarm("GV3", "Low Temperature Alarm", model.FieldLowTempAlarm),
		alarm("GV4", "High Temperature Alarm", model.FieldHighTempAlarm),
	},
	model.KindSolarCharger: {
		measure("ST", "Solar Power", model.FieldSolarPower, model.NumericUnitWatt, UOMWatt, "power"),
		counter("GV0", "Charge State", model.FieldChargeState, UOMStatus),
		measure("CV", "Solar Voltage", model.FieldSolarVoltage, model.NumericUnitVolt, UOMVolt, "voltage"),
		measure("CC", "Battery Current", model.FieldBatteryCurrent, model.NumericUnitAmp, UOMAmp, "current"),
		measure("CPW", "Battery Voltage", model.FieldBatteryVoltage, model.NumericUnitVolt, UOMVolt, "voltage"),
		{Driver: "GV1", Name: "Yield Today", Field: model.FieldYieldToday, Unit: model.NumericUnitKiloWattHour, UOM: UOMKiloWattHr, DeviceClass: "energy", StateClass: "total_increasing"},
		measure("GV2", "Max Power Today", model.FieldMaxPowerToday, model.NumericUnitWatt, UOMWatt, "power"),
		counter("GV3", "Load Output State", model.FieldLoadOutputState, UOMStatus),
		measure("GV4", "Load Current", model.FieldLoadCurrent, model.NumericUnitAmp, UOMAmp, "current"),
		measure("GV5", "Load Voltage", model.FieldLoadVoltage, model.NumericUnitVolt, UOMVolt, "voltage"),
		measure("GV6", "Load Power", model.FieldLoadPower, model.NumericUnitWatt, UOMWatt, "power"),
		measure("GV7", "Battery Power", model.FieldBatteryPower, model.NumericUnitWatt, UOMWatt, "power"),
		temperature("CLITEMP", "MPPT Temperature", model.FieldMpptTemperature),
		temperature("GV8", "Battery Temperature", model.FieldBatteryTemperature),
		textual("", "Charge State Text", model.FieldChargeState, chargeText),
		textual("", "Load Output State Text", model.FieldLoadOutputState, loadText),
	},
	model.KindInverter: {
		measure("ST", "Power", model.FieldPower, model.NumericUnitWatt, UOMWatt, "power"),
		counter("GV0", "Inverter State", model.FieldState, UOMIndex),
		measure("CV", "Voltage", model.FieldVoltage, model.NumericUnitVolt, UOMVolt, "voltage"),
		measure("CC", "Current", model.FieldCurrent, model.NumericUnitAmp, UOMAmp, "current"),
		measure("CPW", "Frequency", model.FieldFrequency, model.NumericUnitHertz, UOMHertz, "frequency"),
		temperature("CLITEMP", "Temperature", model.FieldTemperature),
	},
	model.KindGateway: {
		counter("ST", "System Status", model.FieldSystemStatus, UOMIndex),
		textual("GV0", "Firmware Version", model.FieldFirmwareVersion, text),
		counter("GV1", "Active Alarms", model.FieldActiveAlarms, UOMRaw),
		counter("GV2", "Connected Devices", model.FieldConnectedDevices, UOMRaw),
		alarm("GV3", "VRM Connected", model.FieldVrmConnected),
		{Driver: "GV4", Name: "Free Disk Space", Field: model.FieldFreeDiskSpace, Unit: model.NumericUnitMegaByte, UOM: UOMRaw, DeviceClass: "data_size", StateClass: "measurement"},
		counter("GV5", "Network Type", model.FieldNetworkType, UOMIndex),
		textual("GV6", "ESS Battery State", model.FieldEssBatteryState, hex),
		measure("GV7", "ESS SOC Limit", model.FieldEssSocLimit, model.NumericUnitPercent, UOMPercent, "battery"),
		textual("GV8", "Services Status", model.FieldServicesStatus, hex),
		counter("GV9", "System Errors", model.FieldSystemErrors, UOMRaw),
		measure("GV10", "Grid Setpoint", model.FieldGridSetpoint, model.NumericUnitWatt, UOMWatt, "power"),
		textual("GV11", "Relay States", model.FieldRelayStates, hex),
	},
}

// Outputs lists a kind's published sensors in driver order.
func Outputs(kind model.DeviceKind) []Output {
	return outputs[kind]
}

// ConvertTemperature converts a stored Celsius value to the display unit.
func ConvertTemperature(celsius float64, unit model.TemperatureUnit) float64 {
	if unit == model.Celsius {
		return celsius
	}
	return celsius*9/5 + 32
}

// Temperature returns the display value and unit of measure for a stored
// Celsius reading. ok is false when no sensor reading exists.
func Temperature(celsius float64, unit model.TemperatureUnit) (value float64, uom int, ok bool) {
	if celsius <= 0 || math.IsNaN(celsius) {
		return 0, 0, false
	}
	if unit == model.Celsius {
		return celsius, UOMCelsius, true
	}
	return ConvertTemperature(celsius, unit), UOMFahrenheit, true
}

// Project renders a device state. Non-positive temperatures are omitted.
func Project(state device.State, unit model.TemperatureUnit) []model.DeviceStatus {
	outs := Outputs(state.Kind())
	statuses := make([]model.DeviceStatus, 0, len(outs))
	for _, o := range outs {
		status := model.DeviceStatus{
			Name:        o.Name,
			Slug:        o.Slug(),
			Driver:      o.Driver,
			Unit:        string(o.Unit),
			UOM:         o.UOM,
			DeviceClass: o.DeviceClass,
			StateClass:  o.StateClass,
			Dirty:       true,
		}
		var value string
		switch {
		case o.temperature():
			display, uom, ok := Temperature(state.Float(o.Field), unit)
			if !ok {
				continue
			}
			value = formatFloat(display)
			status.UOM = uom
			if uom == UOMFahrenheit {
				status.Unit = string(model.NumericUnitDegreeF)
			}
		case o.format == hex:
			value = fmt.Sprintf("0x%02X", state.Int(o.Field))
		case o.format == chargeText:
			value = ChargeStateText(state.Int(o.Field))
		case o.format == loadText:
			value = LoadStateText(state.Int(o.Field))
		case o.format == text:
			value = state.Text(o.Field)
		default:
			value = formatValue(state, o.Field)
		}
		status.Value = &value
		statuses = append(statuses, status)
	}
	return statuses
}

// ControllerStatus reports the upstream connection and the seconds until the
// diagnostics cache refreshes.
func ControllerStatus(connected bool, cacheLeft time.Duration) []model.DeviceStatus {
	st := "0"
	if connected {
		st = "1"
	}
	left := strconv.FormatInt(int64(math.Ceil(cacheLeft.Seconds())), 10)
	return []model.DeviceStatus{
		{Name: "Connection Status", Slug: "connection_status", Driver: "ST", Value: &st, UOM: UOMIndex, Dirty: true},
		{Name: "Cache Seconds Left", Slug: "cache_seconds_left", Driver: "GV0", Value: &left, Unit: string(model.NumericUnitSecond), UOM: UOMRaw, DeviceClass: "duration", StateClass: "measurement", Dirty: true},
	}
}

var chargeStates = map[int64]string{
	0: "Off",
	1: "Low Power",
	2: "Fault",
	3: "Bulk",
	4: "Absorption",
	5: "Float",
	6: "Storage",
	7: "Equalize",
	8: "Other",
}

func ChargeStateText(n int64) string {
	if s, ok := chargeStates[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown(%d)", n)
}

func LoadStateText(n int64) string {
	switch n {
	case model.LoadOn:
		return "On"
	case model.LoadOff:
		return "Off"
	}
	return "Unknown"
}

func formatValue(state device.State, f model.Field) string {
	v, _ := state.Value(f)
	switch x := v.(type) {
	case float64:
		return formatFloat(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return state.Text(f)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
