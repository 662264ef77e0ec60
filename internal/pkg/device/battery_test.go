package device

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

func TestBatteryMonitor_DerivesPower(t *testing.T) {
	t.Parallel()
	r := NewBatteryMonitor()
	src := Sources{Diagnostics: batch(
		rec("Battery Monitor", 279, "Voltage", 24.0),
		rec("Battery Monitor", 279, "Current", 2.5),
	)}

	state, out := r.Update(identity(model.KindBatteryMonitor, 279, "HQ2207XXXXX"), src, NewState(model.KindBatteryMonitor))

	require.NoError(t, out.Err())
	assert.Equal(t, "telemetry", out.Strategy)
	assert.Equal(t, 60.0, state.Float(model.FieldPower))
	assert.Equal(t, 24.0, state.Float(model.FieldVoltage))
	assert.Equal(t, 2.5, state.Float(model.FieldCurrent))
}

func TestBatteryMonitor_ExplicitPowerWins(t *testing.T) {
	t.Parallel()
	src := Sources{Diagnostics: batch(
		rec("Battery Monitor", 1, "Voltage", 24.0),
		rec("Battery Monitor", 1, "Current", 2.5),
		rec("Battery Monitor", 1, "Battery power", 58.0),
	)}

	state, out := NewBatteryMonitor().Update(identity(model.KindBatteryMonitor, 1, "a"), src, NewState(model.KindBatteryMonitor))

	// telemetry has no power rule, so the sweep-only record is ignored there
	assert.Equal(t, "telemetry", out.Strategy)
	assert.Equal(t, 60.0, state.Float(model.FieldPower))

	state, out = NewBatteryMonitor().Update(identity(model.KindBatteryMonitor, 1, "a"), Sources{Diagnostics: batch(
		rec("", 1, "Battery voltage", 24.0),
		rec("", 1, "Battery current", 2.5),
		rec("", 1, "Battery power", 58.0),
	)}, NewState(model.KindBatteryMonitor))
	assert.Equal(t, "diagnostics", out.Strategy)
	assert.Equal(t, 58.0, state.Float(model.FieldPower))
}

func TestBatteryMonitor_AlarmIsNotTemperature(t *testing.T) {
	t.Parallel()
	src := Sources{Diagnostics: batch(
		rec("Battery Monitor", 0, "Low Battery Temperature Alarm", 1.0),
	)}

	state, out := NewBatteryMonitor().Update(identity(model.KindBatteryMonitor, 0, "a"), src, NewState(model.KindBatteryMonitor))

	require.NoError(t, out.Err())
	assert.Equal(t, int64(1), state.Int(model.FieldLowTempAlarm))
	assert.Equal(t, 0.0, state.Float(model.FieldTemperature))
}

func TestBatteryMonitor_FallsBackToSweep(t *testing.T) {
	t.Parallel()
	// no record carries the "Battery Monitor" label so telemetry finds nothing
	src := Sources{Diagnostics: batch(
		rec("", 2, "Battery voltage", 12.8),
		rec("", 2, "State of charge", 91.5),
		rec("Solar Charger", 2, "Battery voltage", 99.0),
	)}

	state, out := NewBatteryMonitor().Update(identity(model.KindBatteryMonitor, 2, "a"), src, NewState(model.KindBatteryMonitor))

	require.NoError(t, out.Err())
	assert.Equal(t, "diagnostics", out.Strategy)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "telemetry", out.Failures[0].Strategy)
	assert.Equal(t, NoMatchingRecords, out.Failures[0].Reason)
	assert.Equal(t, 12.8, state.Float(model.FieldVoltage))
	assert.Equal(t, 91.5, state.Float(model.FieldSoc))
}

func TestBatteryMonitor_UnchangedWhenAllStrategiesFail(t *testing.T) {
	t.Parallel()
	prior := NewState(model.KindBatteryMonitor).Merge(Update{
		model.FieldSoc:         77.0,
		model.FieldVoltage:     13.1,
		model.FieldTemperature: 21.5,
	})
	before, err := json.Marshal(prior)
	require.NoError(t, err)

	src := Sources{
		Diagnostics: batch(rec("Battery Monitor", 9, "Voltage", 1.0)),
		Overview:    overview(map[string]any{"machineSerialNumber": "other"}),
	}
	state, out := NewBatteryMonitor().Update(identity(model.KindBatteryMonitor, 1, "a"), src, prior)

	assert.False(t, out.Resolved())
	assert.True(t, errors.Is(out.Err(), ErrAllStrategiesFailed))
	var rf *ResolutionFailure
	assert.True(t, errors.As(out.Err(), &rf))
	assert.Len(t, out.Failures, 4)

	after, err := json.Marshal(state)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.True(t, state.Equal(prior))
}

func TestBatteryMonitor_RetainsAbsentFields(t *testing.T) {
	t.Parallel()
	prior := NewState(model.KindBatteryMonitor).Merge(Update{model.FieldSoc: 80.0, model.FieldTemperature: 19.0})
	src := Sources{Diagnostics: batch(rec("Battery Monitor", 1, "Voltage", 12.5))}

	state, _ := NewBatteryMonitor().Update(identity(model.KindBatteryMonitor, 1, "a"), src, prior)

	assert.Equal(t, 80.0, state.Float(model.FieldSoc))
	assert.Equal(t, 19.0, state.Float(model.FieldTemperature))
	assert.Equal(t, 12.5, state.Float(model.FieldVoltage))
	assert.Equal(t, 80.0, prior.Float(model.FieldSoc))
	assert.Equal(t, 0.0, prior.Float(model.FieldVoltage), "prior snapshot is never mutated")
}

func TestBatteryMonitor_DropsUnconvertibleField(t *testing.T) {
	t.Parallel()
	prior := NewState(model.KindBatteryMonitor).Merge(Update{model.FieldVoltage: 12.0})
	src := Sources{Diagnostics: batch(
		rec("Battery Monitor", 1, "Voltage", "n/a"),
		rec("Battery Monitor", 1, "Current", "-3.5"),
	)}

	state, out := NewBatteryMonitor().Update(identity(model.KindBatteryMonitor, 1, "a"), src, prior)

	require.NoError(t, out.Err())
	require.Len(t, out.Skipped, 1)
	assert.Equal(t, model.FieldVoltage, out.Skipped[0].Field)
	assert.True(t, errors.Is(&out.Skipped[0], model.ErrNotNumeric))
	assert.Equal(t, 12.0, state.Float(model.FieldVoltage))
	assert.Equal(t, -3.5, state.Float(model.FieldCurrent))
	assert.Equal(t, -42.0, state.Float(model.FieldPower))
}

func TestBatteryMonitor_WithoutInstanceUsesDocuments(t *testing.T) {
	t.Parallel()
	src := Sources{
		Diagnostics: batch(rec("Battery Monitor", 0, "Voltage", 24.0)),
		Device: model.Document{
			"source":  model.SourceSystemOverview,
			"records": []any{map[string]any{"soc": 55.0, "voltage": "25.1"}},
		},
	}

	state, out := NewBatteryMonitor().Update(identity(model.KindBatteryMonitor, model.NoInstance, "a"), src, NewState(model.KindBatteryMonitor))

	require.NoError(t, out.Err())
	assert.Equal(t, "device_data", out.Strategy)
	assert.Equal(t, NoMatchingRecords, out.Failures[0].Reason)
	assert.Equal(t, NoMatchingRecords, out.Failures[1].Reason)
	assert.Equal(t, 55.0, state.Float(model.FieldSoc))
	assert.Equal(t, 25.1, state.Float(model.FieldVoltage))
}

func TestBatteryMonitor_OverviewLast(t *testing.T) {
	t.Parallel()
	src := Sources{
		Overview: overview(
			map[string]any{"machineSerialNumber": "HQ1", "state_of_charge": 64, "voltage": 12.9},
		),
	}

	state, out := NewBatteryMonitor().Update(identity(model.KindBatteryMonitor, 1, "hq1"), src, NewState(model.KindBatteryMonitor))

	require.NoError(t, out.Err())
	assert.Equal(t, "overview", out.Strategy)
	assert.Equal(t, []string{"telemetry", "diagnostics", "device_data", "overview"}, NewBatteryMonitor().Strategies())
	assert.Equal(t, 64.0, state.Float(model.FieldSoc))
	assert.Equal(t, 12.9, state.Float(model.FieldVoltage))
}
