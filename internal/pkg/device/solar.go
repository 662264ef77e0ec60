package device

import (
	"github.com/anicoll/vrm-integration/internal/pkg/classifier"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

var solarOverview = keyMap{
	keys(model.FieldSolarPower, "power"),
	keys(model.FieldSolarVoltage, "voltage"),
	keys(model.FieldSolarCurrent, "current"),
	keys(model.FieldChargeState, "state", "charge_state"),
	keys(model.FieldBatteryVoltage, "battery_voltage"),
	keys(model.FieldYieldToday, "yield_today"),
	keys(model.FieldMaxPowerToday, "max_power_today"),
}

var solarDocument = keyMap{
	keys(model.FieldSolarPower, "pv_power"),
	keys(model.FieldSolarVoltage, "pv_voltage"),
	keys(model.FieldSolarCurrent, "pv_current"),
	keys(model.FieldYieldToday, "yield_today"),
	keys(model.FieldMaxPowerToday, "max_power_today"),
	keys(model.FieldBatteryCurrent, "current"),
	keys(model.FieldBatteryVoltage, "battery_voltage"),
	keys(model.FieldChargeState, "charge_state"),
	keys(model.FieldBatteryPower, "battery_power"),
	keys(model.FieldBatteryTemperature, "battery_temperature"),
	keys(model.FieldMpptTemperature, "mppt_temperature"),
	keys(model.FieldErrorCode, "error_code"),
	keys(model.FieldYieldYesterday, "yield_yesterday"),
	keys(model.FieldMaxPowerYesterday, "max_power_yesterday"),
	keys(model.FieldLoadOutputState, "load_output_state"),
	keys(model.FieldLoadCurrent, "load_current"),
	keys(model.FieldLoadVoltage, "load_voltage"),
	keys(model.FieldLoadPower, "load_power"),
}

// NewSolarCharger resolves MPPT solar chargers: live telemetry, then the
// instance sweep, then the overview entry, then the device document.
func NewSolarCharger() *Resolver {
	live := fromRecords("telemetry", classifier.SolarTelemetry, telemetry, model.NoInstance, deriveSolar)
	return NewResolver(model.KindSolarCharger,
		live,
		fromRecords("diagnostics", classifier.SolarSweep, sweep, model.NoInstance, deriveSolar),
		fromDocument("overview", model.KindSolarCharger, overviewEntry, solarOverview, deriveSolar),
		solarDeviceData(live),
	)
}

// solarDeviceData reads the device document. An overview-sourced document that
// reveals the instance of a device discovered without one is retried against
// live telemetry first.
func solarDeviceData(live Strategy) Strategy {
	doc := fromDocument("device_data", model.KindSolarCharger, deviceDocument, solarDocument, deriveSolar)
	return strategy{
		name: "device_data",
		resolve: func(p *Pass) (Update, error) {
			if p.Identity.HasInstance() || p.Sources.Device == nil || p.Sources.Device.Source() != model.SourceSystemOverview {
				return doc.Resolve(p)
			}
			instance := p.Sources.Device.Primary().Instance()
			if instance == model.NoInstance {
				return doc.Resolve(p)
			}
			p.Identity = p.Identity.WithInstance(instance)
			if u, err := live.Resolve(p); err == nil && len(u) > 0 {
				return u, nil
			}
			return doc.Resolve(p)
		},
	}
}

// deriveSolar computes the PV current and applies the load output rules.
func deriveSolar(p *Pass, u Update) Update {
	v := view{u: u, prior: p.Prior}
	if !u.Has(model.FieldSolarCurrent) && u.Has(model.FieldSolarPower) && u.Has(model.FieldSolarVoltage) {
		power, volts := v.Float(model.FieldSolarPower), v.Float(model.FieldSolarVoltage)
		if power > 0 && volts > 0 {
			u[model.FieldSolarCurrent] = power / volts
		} else {
			u[model.FieldSolarCurrent] = 0.0
		}
	}

	switch v.Int(model.FieldLoadOutputState) {
	case model.LoadOff:
		u[model.FieldLoadVoltage] = 0.0
		u[model.FieldLoadPower] = 0.0
	case model.LoadOn:
		current := v.Float(model.FieldLoadCurrent)
		if current <= 0 {
			break
		}
		if !u.Has(model.FieldLoadVoltage) {
			if battery := v.Float(model.FieldBatteryVoltage); battery > 0 {
				u[model.FieldLoadVoltage] = battery
			}
		}
		if !u.Has(model.FieldLoadPower) {
			if volts := v.Float(model.FieldLoadVoltage); volts > 0 {
				u[model.FieldLoadPower] = volts * current
			}
		}
	}
	return u
}
