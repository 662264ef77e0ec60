package device

import (
	"github.com/anicoll/vrm-integration/internal/pkg/classifier"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

var batteryDocument = keyMap{
	keys(model.FieldVoltage, "voltage"),
	keys(model.FieldCurrent, "current"),
	keys(model.FieldPower, "power"),
	keys(model.FieldSoc, "soc"),
	keys(model.FieldTemperature, "temperature"),
	keys(model.FieldConsumedAh, "consumed_ah"),
	keys(model.FieldTimeToGo, "time_to_go"),
}

var batteryOverview = keyMap{
	keys(model.FieldSoc, "soc", "state_of_charge"),
	keys(model.FieldVoltage, "voltage"),
	keys(model.FieldCurrent, "current"),
}

// NewBatteryMonitor resolves battery monitors: live telemetry, then the
// instance sweep, then the device document, then the overview entry.
func NewBatteryMonitor() *Resolver {
	return NewResolver(model.KindBatteryMonitor,
		fromRecords("telemetry", classifier.BatteryTelemetry, telemetry, model.NoInstance, derivePower),
		fromRecords("diagnostics", classifier.BatterySweep, sweep, model.NoInstance, derivePower),
		fromDocument("device_data", model.KindBatteryMonitor, deviceDocument, batteryDocument, derivePower),
		fromDocument("overview", model.KindBatteryMonitor, overviewEntry, batteryOverview, derivePower),
	)
}

// derivePower sets power = voltage * current when the pass carries no power
// reading but changed either input.
func derivePower(p *Pass, u Update) Update {
	if u.Has(model.FieldPower) {
		return u
	}
	if !u.Has(model.FieldVoltage) && !u.Has(model.FieldCurrent) {
		return u
	}
	v := view{u: u, prior: p.Prior}
	u[model.FieldPower] = v.Float(model.FieldVoltage) * v.Float(model.FieldCurrent)
	return u
}
