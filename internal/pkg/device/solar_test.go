package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

func solarUpdate(t *testing.T, id model.DeviceIdentity, src Sources, prior State) (State, Outcome) {
	t.Helper()
	return NewSolarCharger().Update(id, src, prior)
}

func TestSolarCharger_LoadOffForcesZero(t *testing.T) {
	t.Parallel()
	src := Sources{Diagnostics: batch(
		rec("Solar Charger", 0, "Load output state", 0.0),
		rec("Solar Charger", 0, "Load current", 3.0),
		rec("Solar Charger", 0, "Load voltage", 12.0),
		rec("Solar Charger", 0, "Load power", 36.0),
	)}

	state, out := solarUpdate(t, identity(model.KindSolarCharger, 0, "HQ1"), src, NewState(model.KindSolarCharger))

	require.NoError(t, out.Err())
	assert.Equal(t, model.LoadOff, state.Int(model.FieldLoadOutputState))
	assert.Equal(t, 3.0, state.Float(model.FieldLoadCurrent))
	assert.Equal(t, 0.0, state.Float(model.FieldLoadVoltage))
	assert.Equal(t, 0.0, state.Float(model.FieldLoadPower))
}

func TestSolarCharger_LoadOnSynthesizesVoltageAndPower(t *testing.T) {
	t.Parallel()
	src := Sources{Diagnostics: batch(
		rec("Solar Charger", 0, "Voltage", 12.5),
		rec("Solar Charger", 0, "Load output state", 1.0),
		rec("Solar Charger", 0, "Load current", 2.0),
	)}

	state, out := solarUpdate(t, identity(model.KindSolarCharger, 0, "HQ1"), src, NewState(model.KindSolarCharger))

	require.NoError(t, out.Err())
	assert.Equal(t, 12.5, state.Float(model.FieldBatteryVoltage))
	assert.Equal(t, 12.5, state.Float(model.FieldLoadVoltage))
	assert.Equal(t, 25.0, state.Float(model.FieldLoadPower))
}

func TestSolarCharger_LoadOnWithoutCurrentDoesNotSynthesize(t *testing.T) {
	t.Parallel()
	src := Sources{Diagnostics: batch(
		rec("Solar Charger", 0, "Voltage", 12.5),
		rec("Solar Charger", 0, "Load output state", 1.0),
	)}

	state, _ := solarUpdate(t, identity(model.KindSolarCharger, 0, "HQ1"), src, NewState(model.KindSolarCharger))

	assert.Equal(t, 0.0, state.Float(model.FieldLoadVoltage))
	assert.Equal(t, 0.0, state.Float(model.FieldLoadPower))
}

func TestSolarCharger_LoadUnknownRetainsValues(t *testing.T) {
	t.Parallel()
	prior := NewState(model.KindSolarCharger).Merge(Update{
		model.FieldLoadVoltage: 12.2,
		model.FieldLoadPower:   30.0,
	})
	src := Sources{Diagnostics: batch(
		rec("Solar Charger", 0, "Load current", 1.0),
		rec("Solar Charger", 0, "Voltage", 13.0),
	)}

	state, out := solarUpdate(t, identity(model.KindSolarCharger, 0, "HQ1"), src, prior)

	require.NoError(t, out.Err())
	assert.Equal(t, model.LoadUnknown, state.Int(model.FieldLoadOutputState))
	assert.Equal(t, 1.0, state.Float(model.FieldLoadCurrent))
	assert.Equal(t, 12.2, state.Float(model.FieldLoadVoltage))
	assert.Equal(t, 30.0, state.Float(model.FieldLoadPower))
}

func TestSolarCharger_DerivesPVCurrent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		power float64
		volts float64
		want  float64
	}{
		{"producing", 100, 40, 2.5},
		{"dark", 0, 0.4, 0},
		{"no voltage", 50, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prior := NewState(model.KindSolarCharger).Merge(Update{model.FieldSolarCurrent: 9.0})
			src := Sources{Diagnostics: batch(
				rec("Solar Charger", 1, "PV power", tt.power),
				rec("Solar Charger", 1, "PV voltage", tt.volts),
			)}
			state, _ := solarUpdate(t, identity(model.KindSolarCharger, 1, "HQ1"), src, prior)
			assert.Equal(t, tt.want, state.Float(model.FieldSolarCurrent))
		})
	}
}

func TestSolarCharger_SweepWhenTelemetryEmpty(t *testing.T) {
	t.Parallel()
	src := Sources{Diagnostics: batch(
		rec("", 4, "Yield power", 410.0),
		rec("", 4, "Battery voltage", 26.4),
		rec("", 4, "Charge state", 3.0),
	)}

	state, out := solarUpdate(t, identity(model.KindSolarCharger, 4, "HQ1"), src, NewState(model.KindSolarCharger))

	require.NoError(t, out.Err())
	assert.Equal(t, "diagnostics", out.Strategy)
	assert.Equal(t, 410.0, state.Float(model.FieldSolarPower))
	assert.Equal(t, 26.4, state.Float(model.FieldBatteryVoltage))
	assert.Equal(t, int64(3), state.Int(model.FieldChargeState))
}

func TestSolarCharger_OverviewBeforeDeviceData(t *testing.T) {
	t.Parallel()
	src := Sources{
		Overview: overview(map[string]any{"machineSerialNumber": "HQ1", "power": 120.0, "state": 5}),
		Device: model.Document{
			"source":  model.SourceSystemOverview,
			"records": []any{map[string]any{"pv_power": 999.0}},
		},
	}

	state, out := solarUpdate(t, identity(model.KindSolarCharger, 0, "HQ1"), src, NewState(model.KindSolarCharger))

	require.NoError(t, out.Err())
	assert.Equal(t, "overview", out.Strategy)
	assert.Equal(t, 120.0, state.Float(model.FieldSolarPower))
	assert.Equal(t, int64(5), state.Int(model.FieldChargeState))
}

func TestSolarCharger_DeviceDataRevealsInstance(t *testing.T) {
	t.Parallel()
	src := Sources{
		Diagnostics: batch(
			rec("Solar Charger", 3, "PV power", 200.0),
			rec("Solar Charger", 3, "PV voltage", 50.0),
		),
		Device: model.Document{
			"source":  model.SourceSystemOverview,
			"records": []any{map[string]any{"machineSerialNumber": "HQ1", "instance": 3.0}},
		},
	}

	state, out := solarUpdate(t, identity(model.KindSolarCharger, model.NoInstance, "HQ1"), src, NewState(model.KindSolarCharger))

	require.NoError(t, out.Err())
	assert.Equal(t, "device_data", out.Strategy)
	assert.Equal(t, 3, out.Identity.Instance)
	assert.Equal(t, 200.0, state.Float(model.FieldSolarPower))
	assert.Equal(t, 4.0, state.Float(model.FieldSolarCurrent))
}

func TestSolarCharger_DeviceDataFields(t *testing.T) {
	t.Parallel()
	src := Sources{Device: model.Document{
		"source": model.SourceDiagnostics,
		"records": []any{map[string]any{
			"instance":          7.0,
			"pv_power":          80.0,
			"pv_voltage":        40.0,
			"current":           5.5,
			"load_output_state": 1,
			"load_current":      0.5,
			"battery_voltage":   12.0,
		}},
	}}

	state, out := solarUpdate(t, identity(model.KindSolarCharger, model.NoInstance, "HQ1"), src, NewState(model.KindSolarCharger))

	require.NoError(t, out.Err())
	assert.Equal(t, model.NoInstance, out.Identity.Instance, "only overview documents carry the device instance")
	assert.Equal(t, 2.0, state.Float(model.FieldSolarCurrent))
	assert.Equal(t, 5.5, state.Float(model.FieldBatteryCurrent))
	assert.Equal(t, 12.0, state.Float(model.FieldLoadVoltage))
	assert.Equal(t, 6.0, state.Float(model.FieldLoadPower))
}
