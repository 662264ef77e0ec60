package classifier

import "github.com/anicoll/vrm-integration/internal/pkg/model"

var notAlarm = not(contains("alarm"))

var batteryAlarms = []Rule{
	rule(model.FieldLowVoltageAlarm, contains("low voltage alarm")),
	rule(model.FieldHighVoltageAlarm, contains("high voltage alarm")),
	rule(model.FieldLowSocAlarm, contains("low state-of-charge alarm")),
	rule(model.FieldLowTempAlarm, contains("low battery temperature alarm")),
	rule(model.FieldHighTempAlarm, contains("high battery temperature alarm")),
}

// BatteryTelemetry classifies records tagged "Battery Monitor" for one instance.
var BatteryTelemetry = Table{
	Name: "battery_telemetry",
	Kind: model.KindBatteryMonitor,
	Rules: append(append([]Rule{}, batteryAlarms...),
		rule(model.FieldVoltage, equals("voltage")),
		rule(model.FieldCurrent, equals("current")),
		rule(model.FieldSoc, equals("state of charge")),
		rule(model.FieldConsumedAh, equals("consumed amphours")),
		rule(model.FieldTimeToGo, equals("time to go")),
		rule(model.FieldTemperature, allOf(contains("temperature"), notAlarm)),
	),
}

// BatterySweep classifies every record sharing the battery monitor's instance.
var BatterySweep = Table{
	Name: "battery_diagnostics",
	Kind: model.KindBatteryMonitor,
	Rules: append(append([]Rule{}, batteryAlarms...),
		rule(model.FieldSoc, containsAny("state of charge", "soc")),
		rule(model.FieldVoltage, allOf(contains("voltage"), anyOf(contains("battery"), equals("voltage")))),
		rule(model.FieldCurrent, allOf(contains("current"), anyOf(contains("battery"), equals("current")))),
		rule(model.FieldPower, allOf(contains("power"), contains("battery"))),
		rule(model.FieldTemperature, allOf(contains("temperature"), notAlarm)),
		rule(model.FieldTimeToGo, contains("time to go")),
		rule(model.FieldConsumedAh, containsAny("consumed ah", "consumed amphours")),
	),
}

var solarLoad = []Rule{
	rule(model.FieldLoadOutputState, containsAny("load output state", "load state")),
	rule(model.FieldLoadCurrent, contains("load current")),
	rule(model.FieldLoadVoltage, contains("load voltage")),
	rule(model.FieldLoadPower, contains("load power")),
}

var solarTemperature = []Rule{
	rule(model.FieldBatteryTemperature, allOf(contains("temperature"), contains("battery"))),
	rule(model.FieldMpptTemperature, contains("temperature")),
}

// SolarTelemetry classifies records tagged "Solar Charger" for one instance.
var SolarTelemetry = Table{
	Name: "solar_telemetry",
	Kind: model.KindSolarCharger,
	Rules: concat(
		[]Rule{
			rule(model.FieldSolarVoltage, contains("pv voltage")),
			rule(model.FieldSolarPower, contains("pv power")),
			rule(model.FieldBatteryVoltage, equals("voltage")),
			rule(model.FieldBatteryCurrent, equals("current")),
			rule(model.FieldChargeState, contains("charge state")),
			rule(model.FieldYieldToday, contains("yield today")),
			rule(model.FieldMaxPowerToday, contains("maximum charge power today")),
			rule(model.FieldBatteryPower, contains("battery watts")),
		},
		solarLoad,
		solarTemperature,
		[]Rule{
			rule(model.FieldErrorCode, contains("error code")),
			rule(model.FieldRelayState, contains("relay state")),
			rule(model.FieldOffReason, contains("off reason")),
			rule(model.FieldTrackerOperationMode, contains("tracker operation")),
			rule(model.FieldYieldYesterday, contains("yield yesterday")),
			rule(model.FieldYieldUser, contains("yield user")),
			rule(model.FieldMaxPowerYesterday, contains("maximum charge power yesterday")),
		},
	),
}

// SolarSweep classifies every record sharing the solar charger's instance.
var SolarSweep = Table{
	Name: "solar_diagnostics",
	Kind: model.KindSolarCharger,
	Rules: concat(
		[]Rule{
			rule(model.FieldSolarPower, containsAny("yield power", "battery power")),
			rule(model.FieldSolarVoltage, containsAny("pv voltage", "solar voltage")),
			rule(model.FieldSolarCurrent, containsAny("pv current", "solar current")),
			rule(model.FieldBatteryVoltage, contains("battery voltage")),
			rule(model.FieldBatteryCurrent, anyOf(equals("current"), contains("battery current"))),
			rule(model.FieldChargeState, allOf(contains("state"), contains("charge"))),
			rule(model.FieldYieldToday, contains("yield today")),
		},
		solarLoad,
		solarTemperature,
		[]Rule{
			rule(model.FieldErrorCode, contains("error code")),
			rule(model.FieldYieldYesterday, contains("yield yesterday")),
			rule(model.FieldMaxPowerYesterday, contains("maximum charge power yesterday")),
		},
	),
}

// InverterSweep classifies VE.Bus records. Alarm records never feed a reading.
var InverterSweep = Table{
	Name: "inverter_diagnostics",
	Kind: model.KindInverter,
	Rules: []Rule{
		rule(model.FieldState, allOf(anyOf(contains("inverter state"), equals("state"), equals("vebus state"), equals("ve.bus state")), notAlarm)),
		rule(model.FieldFrequency, allOf(contains("frequency"), notAlarm)),
		rule(model.FieldTemperature, allOf(contains("temperature"), notAlarm)),
		rule(model.FieldPower, allOf(contains("power"), notAlarm)),
		rule(model.FieldVoltage, allOf(contains("voltage"), notAlarm)),
		rule(model.FieldCurrent, allOf(contains("current"), notAlarm)),
	},
}

// Gateway classifies records tagged "Gateway" at instance 0.
var Gateway = Table{
	Name: "gateway_diagnostics",
	Kind: model.KindGateway,
	Rules: []Rule{
		rule(model.FieldFreeDiskSpaceBytes, contains("data partition free space")),
		rule(model.FieldNetworkType, contains("default gateway")),
		rule(model.FieldEssSocLimit, contains("ess battery life soc limit")),
		rule(model.FieldEssBatteryState, contains("ess battery life state")),
		rule(model.FieldGridSetpoint, contains("grid setpoint")),
		rule(model.FieldServiceMqttLocal, equals("mqtt local (https)")),
		rule(model.FieldServiceVncInternet, equals("vnc internet")),
		rule(model.FieldServiceRemoteSupport, equals("remote support")),
		rule(model.FieldServiceSignalK, equals("signalk")),
		rule(model.FieldRelay1State, contains("relay 1 state")),
		rule(model.FieldRelay2State, contains("relay 2 state")),
		rule(model.FieldHungProcesses, contains("hung processes")),
		rule(model.FieldZombieProcesses, contains("zombie processes")),
		rule(model.FieldFirmwareVersion, contains("fw version")),
	},
}

func concat(groups ...[]Rule) []Rule {
	out := []Rule{}
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
