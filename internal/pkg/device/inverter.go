package device

import (
	"maps"
	"slices"

	"github.com/anicoll/vrm-integration/internal/pkg/classifier"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

var inverterOverview = keyMap{
	keys(model.FieldPower, "power"),
	keys(model.FieldVoltage, "voltage"),
	keys(model.FieldCurrent, "current"),
	keys(model.FieldState, "state"),
	keys(model.FieldFrequency, "frequency"),
	keys(model.FieldTemperature, "temperature"),
}

var inverterDocument = keyMap{
	keys(model.FieldPower, "inverter_power", "ac_power", "power"),
	keys(model.FieldVoltage, "inverter_voltage", "ac_voltage", "voltage"),
	keys(model.FieldCurrent, "inverter_current", "ac_current", "current"),
	keys(model.FieldState, "inverter_state", "state"),
	keys(model.FieldFrequency, "inverter_frequency", "ac_frequency", "frequency"),
	keys(model.FieldTemperature, "inverter_temperature", "temperature"),
}

// NewInverter resolves VE.Bus inverters: the overview entry, then the
// diagnostics sweep at the implicit instance 0, then the device document.
func NewInverter() *Resolver {
	return NewResolver(model.KindInverter,
		fromDocument("overview", model.KindInverter, overviewEntry, inverterOverview, derivePower),
		fromRecords("diagnostics", classifier.InverterSweep, byKind, 0, derivePower),
		strategy{name: "device_data", resolve: inverterDeviceData},
	)
}

// inverterDeviceData reads the device document, then fills missing fields from
// nested objects in key order. Power falls back to voltage * current.
func inverterDeviceData(p *Pass) (Update, error) {
	doc, err := deviceDocument(p)
	if err != nil {
		return nil, err
	}
	u := Update{}
	walk(doc, func(d model.Document) {
		inverterDocument.extract(p, model.KindInverter, d, u)
	})
	if len(u) == 0 {
		return nil, failure(NoUsableFields)
	}
	return derivePower(p, u), nil
}

// walk visits doc then every nested object depth first, keys in sorted order.
func walk(doc model.Document, visit func(model.Document)) {
	visit(doc)
	for _, k := range slices.Sorted(maps.Keys(doc)) {
		if nested := doc.Object(k); nested != nil {
			walk(nested, visit)
		}
	}
}
