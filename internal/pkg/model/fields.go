package model

import (
	"fmt"
	"strings"
)

// Field is a canonical slot in a device state schema.
type Field string

func (f Field) String() string {
	return string(f)
}

// Battery monitor.
const (
	FieldSoc              Field = "soc"
	FieldVoltage          Field = "voltage"
	FieldCurrent          Field = "current"
	FieldPower            Field = "power"
	FieldTemperature      Field = "temperature"
	FieldConsumedAh       Field = "consumed_ah"
	FieldTimeToGo         Field = "time_to_go"
	FieldLowVoltageAlarm  Field = "low_voltage_alarm"
	FieldHighVoltageAlarm Field = "high_voltage_alarm"
	FieldLowSocAlarm      Field = "low_soc_alarm"
	FieldLowTempAlarm     Field = "low_temp_alarm"
	FieldHighTempAlarm    Field = "high_temp_alarm"
)

// Solar charger.
const (
	FieldSolarVoltage         Field = "solar_voltage"
	FieldSolarCurrent         Field = "solar_current"
	FieldSolarPower           Field = "solar_power"
	FieldYieldToday           Field = "yield_today"
	FieldMaxPowerToday        Field = "max_power_today"
	FieldBatteryVoltage       Field = "battery_voltage"
	FieldBatteryCurrent       Field = "battery_current"
	FieldBatteryPower         Field = "battery_power"
	FieldBatteryTemperature   Field = "battery_temperature"
	FieldChargeState          Field = "charge_state"
	FieldLoadOutputState      Field = "load_output_state"
	FieldLoadCurrent          Field = "load_current"
	FieldLoadVoltage          Field = "load_voltage"
	FieldLoadPower            Field = "load_power"
	FieldMpptTemperature      Field = "mppt_temperature"
	FieldErrorCode            Field = "error_code"
	FieldRelayState           Field = "relay_state"
	FieldOffReason            Field = "off_reason"
	FieldTrackerOperationMode Field = "tracker_operation_mode"
	FieldYieldYesterday       Field = "yield_yesterday"
	FieldYieldUser            Field = "yield_user"
	FieldMaxPowerYesterday    Field = "max_power_yesterday"
)

// Inverter. Power, voltage, current and temperature are shared with the battery monitor.
const (
	FieldState     Field = "state"
	FieldFrequency Field = "frequency"
)

// Gateway.
const (
	FieldSystemStatus     Field = "system_status"
	FieldFirmwareVersion  Field = "firmware_version"
	FieldActiveAlarms     Field = "active_alarms"
	FieldConnectedDevices Field = "connected_devices"
	FieldVrmConnected     Field = "vrm_connected"
	FieldFreeDiskSpace    Field = "free_disk_space"
	FieldNetworkType      Field = "network_type"
	FieldEssBatteryState  Field = "ess_battery_state"
	FieldEssSocLimit      Field = "ess_soc_limit"
	FieldServicesStatus   Field = "services_status"
	FieldSystemErrors     Field = "system_errors"
	FieldGridSetpoint     Field = "grid_setpoint"
	FieldRelayStates      Field = "relay_states"

	// inputs to the derived gateway fields
	FieldFreeDiskSpaceBytes   Field = "free_disk_space_bytes"
	FieldRelay1State          Field = "relay_1_state"
	FieldRelay2State          Field = "relay_2_state"
	FieldHungProcesses        Field = "hung_processes"
	FieldZombieProcesses      Field = "zombie_processes"
	FieldServiceMqttLocal     Field = "service_mqtt_local"
	FieldServiceVncInternet   Field = "service_vnc_internet"
	FieldServiceRemoteSupport Field = "service_remote_support"
	FieldServiceSignalK       Field = "service_signalk"
)

type FieldType int

const (
	FloatField FieldType = iota
	IntField
	// FlagField is an integer normalised to 0 or 1.
	FlagField
	TextField
)

type FieldSpec struct {
	Field   Field
	Type    FieldType
	Default any
	// Hidden fields feed derived values and are never projected.
	Hidden bool
}

// Convert turns a raw upstream value into the field's stored representation:
// float64 for FloatField, int64 for IntField and FlagField, string for TextField.
func (s FieldSpec) Convert(raw any) (any, error) {
	switch s.Type {
	case FloatField:
		return ToFloat(raw)
	case IntField:
		return ToInt(raw)
	case FlagField:
		v, err := ToInt(raw)
		if err != nil {
			return nil, err
		}
		if v != 0 {
			return int64(1), nil
		}
		return int64(0), nil
	case TextField:
		return ToText(raw)
	}
	return nil, fmt.Errorf("unknown field type %d", s.Type)
}

func float(f Field) FieldSpec {
	return FieldSpec{Field: f, Type: FloatField, Default: 0.0}
}

func integer(f Field) FieldSpec {
	return FieldSpec{Field: f, Type: IntField, Default: int64(0)}
}

func flag(f Field) FieldSpec {
	return FieldSpec{Field: f, Type: FlagField, Default: int64(0)}
}

func hidden(s FieldSpec) FieldSpec {
	s.Hidden = true
	return s
}

func withDefault(s FieldSpec, d any) FieldSpec {
	s.Default = d
	return s
}

// LoadState values for FieldLoadOutputState.
const (
	LoadOff     int64 = 0
	LoadOn      int64 = 1
	LoadUnknown int64 = 2
)

// Schemas lists every field a kind carries, in projection order.
var Schemas = map[DeviceKind][]FieldSpec{
	KindBatteryMonitor: {
		float(FieldSoc),
		float(FieldVoltage),
		float(FieldCurrent),
		float(FieldPower),
		float(FieldTemperature),
		float(FieldConsumedAh),
		float(FieldTimeToGo),
		flag(FieldLowVoltageAlarm),
		flag(FieldHighVoltageAlarm),
		flag(FieldLowSocAlarm),
		flag(FieldLowTempAlarm),
		flag(FieldHighTempAlarm),
	},
	KindSolarCharger: {
		float(FieldSolarPower),
		integer(FieldChargeState),
		float(FieldSolarVoltage),
		float(FieldSolarCurrent),
		float(FieldBatteryCurrent),
		float(FieldBatteryVoltage),
		float(FieldBatteryPower),
		float(FieldBatteryTemperature),
		float(FieldYieldToday),
		float(FieldMaxPowerToday),
		withDefault(integer(FieldLoadOutputState), LoadUnknown),
		float(FieldLoadCurrent),
		float(FieldLoadVoltage),
		float(FieldLoadPower),
		float(FieldMpptTemperature),
		integer(FieldErrorCode),
		integer(FieldRelayState),
		integer(FieldOffReason),
		integer(FieldTrackerOperationMode),
		float(FieldYieldYesterday),
		float(FieldYieldUser),
		float(FieldMaxPowerYesterday),
	},
	KindInverter: {
		float(FieldPower),
		integer(FieldState),
		float(FieldVoltage),
		float(FieldCurrent),
		float(FieldFrequency),
		float(FieldTemperature),
	},
	KindGateway: {
		withDefault(integer(FieldSystemStatus), int64(1)),
		{Field: FieldFirmwareVersion, Type: TextField, Default: "0.0.0"},
		integer(FieldActiveAlarms),
		integer(FieldConnectedDevices),
		flag(FieldVrmConnected),
		integer(FieldFreeDiskSpace),
		integer(FieldNetworkType),
		integer(FieldEssBatteryState),
		float(FieldEssSocLimit),
		integer(FieldServicesStatus),
		integer(FieldSystemErrors),
		integer(FieldGridSetpoint),
		integer(FieldRelayStates),
		hidden(float(FieldFreeDiskSpaceBytes)),
		hidden(flag(FieldRelay1State)),
		hidden(flag(FieldRelay2State)),
		hidden(integer(FieldHungProcesses)),
		hidden(integer(FieldZombieProcesses)),
		hidden(flag(FieldServiceMqttLocal)),
		hidden(flag(FieldServiceVncInternet)),
		hidden(flag(FieldServiceRemoteSupport)),
		hidden(flag(FieldServiceSignalK)),
	},
}

// Spec looks up a field in a kind's schema.
func Spec(kind DeviceKind, field Field) (FieldSpec, bool) {
	for _, s := range Schemas[kind] {
		if s.Field == field {
			return s, true
		}
	}
	return FieldSpec{}, false
}

// IsTemperature reports fields stored in Celsius.
func (f Field) IsTemperature() bool {
	return strings.HasSuffix(string(f), "temperature")
}
