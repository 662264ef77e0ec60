package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/vrm-integration/internal/pkg/device"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

var (
	batteryID = model.DeviceIdentity{Kind: model.KindBatteryMonitor, Instance: 279, Serial: "HQ2", Identifier: "HQ2", Name: "Battery Monitor", ProductName: "SmartShunt"}
	solarID   = model.DeviceIdentity{Kind: model.KindSolarCharger, Instance: model.NoInstance, Serial: "HQ3", Identifier: "HQ3", Name: "Solar Charger", ProductName: "SmartSolar MPPT"}
)

func testOverview() model.Document {
	return model.Document{"devices": []any{
		map[string]any{"name": "Battery Monitor", "machineSerialNumber": "HQ2", "instance": 279.0},
		map[string]any{"name": "Solar Charger", "machineSerialNumber": "hq3", "instance": 278.0},
	}}
}

func testBatch() *model.DiagnosticsBatch {
	return &model.DiagnosticsBatch{Records: []model.DiagnosticRecord{
		{Kind: model.KindBatteryMonitor, Label: "Battery Monitor", Instance: 279, Description: "Voltage", RawValue: 12.8},
		{Kind: model.KindBatteryMonitor, Label: "Battery Monitor", Instance: 279, Description: "Current", RawValue: -2.0},
		{Kind: model.KindBatteryMonitor, Label: "Battery Monitor", Instance: 279, Description: "State of charge", RawValue: 87.0},
		{Kind: model.KindBatteryMonitor, Label: "Battery Monitor", Instance: 279, Description: "Battery temperature", RawValue: 20.0},
		{Kind: model.KindSolarCharger, Label: "Solar Charger", Instance: 278, Description: "PV power", RawValue: 120.0},
		{Kind: model.KindSolarCharger, Label: "Solar Charger", Instance: 278, Description: "PV voltage", RawValue: 40.0},
	}}
}

type fixture struct {
	client    *mockVrmClient
	cache     *mockCache
	publisher *mockPublisher
}

func newFixture() *fixture {
	return &fixture{
		client: &mockVrmClient{
			DiscoverFunc: func(ctx context.Context) (int64, []model.DeviceIdentity, error) {
				return 42, []model.DeviceIdentity{batteryID, solarID}, nil
			},
			SystemOverviewFunc: func(ctx context.Context, installationID int64) (model.Document, error) {
				return testOverview(), nil
			},
		},
		cache: &mockCache{
			GetFunc: func(ctx context.Context, installationID int64) (*model.DiagnosticsBatch, error) {
				return testBatch(), nil
			},
			RemainingFunc: func(int64) time.Duration {
				return 29500 * time.Millisecond
			},
		},
		publisher: &mockPublisher{},
	}
}

func (f *fixture) controller(opts ...Option) *Controller {
	return New(f.client, f.cache, f.publisher, opts...)
}

func sensor(statuses []model.DeviceStatus, slug string) (string, bool) {
	s, ok := lo.Find(statuses, func(s model.DeviceStatus) bool {
		return s.Slug == slug
	})
	if !ok {
		return "", false
	}
	return *s.Value, true
}

func TestPoll_ResolvesAndPublishes(t *testing.T) {
	t.Parallel()
	f := newFixture()
	c := f.controller()

	require.NoError(t, c.Poll(context.Background()))

	assert.ElementsMatch(t, []string{"vrm_controller", "hq2", "hq3"}, f.publisher.registered)
	published := f.publisher.last()
	require.Len(t, published, 3)

	battery := published[batteryID.Device()]
	soc, _ := sensor(battery, "state_of_charge")
	assert.Equal(t, "87", soc)
	power, _ := sensor(battery, "power")
	assert.Equal(t, "-25.6", power)

	st, _ := sensor(published[ControllerDevice], "connection_status")
	assert.Equal(t, "1", st)
	left, _ := sensor(published[ControllerDevice], "cache_seconds_left")
	assert.Equal(t, "30", left)
	assert.True(t, c.Healthy())
}

func TestPoll_LearnsInstanceFromOverview(t *testing.T) {
	t.Parallel()
	f := newFixture()
	c := f.controller()

	require.NoError(t, c.Poll(context.Background()))

	view, ok := c.Device("HQ3")
	require.True(t, ok)
	assert.Equal(t, 278, view.Identity.Instance)
	assert.Equal(t, "telemetry", view.Strategy)
	assert.Equal(t, 120.0, view.State.Float(model.FieldSolarPower))
	assert.Equal(t, 3.0, view.State.Float(model.FieldSolarCurrent))
}

func TestPoll_TemperatureUnitAppliesOnlyToProjection(t *testing.T) {
	t.Parallel()
	f := newFixture()
	c := f.controller(WithTemperatureUnit(model.Fahrenheit))

	require.NoError(t, c.Poll(context.Background()))

	temp, ok := sensor(f.publisher.last()[batteryID.Device()], "temperature")
	require.True(t, ok)
	assert.Equal(t, "68", temp)
	view, _ := c.Device("hq2")
	assert.Equal(t, 20.0, view.State.Float(model.FieldTemperature))
}

func TestPoll_DiagnosticsFailureSkipsEveryDevice(t *testing.T) {
	t.Parallel()
	f := newFixture()
	c := f.controller()
	require.NoError(t, c.Poll(context.Background()))
	before := c.Devices()

	errUpstream := errors.New("upstream down")
	f.cache.GetFunc = func(ctx context.Context, installationID int64) (*model.DiagnosticsBatch, error) {
		return nil, errUpstream
	}
	err := c.Poll(context.Background())

	assert.ErrorIs(t, err, errUpstream)
	assert.False(t, c.Healthy())
	published := f.publisher.last()
	require.Len(t, published, 1)
	st, _ := sensor(published[ControllerDevice], "connection_status")
	assert.Equal(t, "0", st)
	after := c.Devices()
	for i := range before {
		assert.True(t, before[i].State.Equal(after[i].State))
	}
}

func TestPoll_DiscoveryFailure(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.client.DiscoverFunc = func(ctx context.Context) (int64, []model.DeviceIdentity, error) {
		return 0, nil, errors.New("unauthorised")
	}
	c := f.controller()

	assert.Error(t, c.Poll(context.Background()))
	assert.Empty(t, c.Devices())
	st, _ := sensor(c.Status(), "connection_status")
	assert.Equal(t, "0", st)
}

func TestPoll_RestoresAndSavesState(t *testing.T) {
	t.Parallel()
	f := newFixture()
	prior := device.NewState(model.KindBatteryMonitor).Merge(device.Update{model.FieldLowSocAlarm: 1, model.FieldSoc: 10.0})
	store := &mockStore{
		LoadStatesFunc: func(ctx context.Context) (map[string]device.State, error) {
			return map[string]device.State{"hq2": prior, "hq3": device.NewState(model.KindGateway)}, nil
		},
	}
	c := f.controller(WithStore(store))

	require.NoError(t, c.Poll(context.Background()))

	view, _ := c.Device("hq2")
	assert.Equal(t, int64(1), view.State.Int(model.FieldLowSocAlarm), "fields absent from the update keep the restored value")
	assert.Equal(t, 87.0, view.State.Float(model.FieldSoc))
	solar, _ := c.Device("hq3")
	assert.Equal(t, model.KindSolarCharger, solar.State.Kind(), "a stored state of another kind is ignored")
	assert.Contains(t, store.saved, "hq2")
}

func TestPoll_CyclesDoNotOverlap(t *testing.T) {
	t.Parallel()
	f := newFixture()
	var inFlight, maxInFlight atomic.Int32
	f.cache.GetFunc = func(ctx context.Context, installationID int64) (*model.DiagnosticsBatch, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return testBatch(), nil
	}
	c := f.controller()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Poll(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestQuery(t *testing.T) {
	t.Parallel()
	f := newFixture()
	c := f.controller()
	require.NoError(t, c.Discover(context.Background()))

	view, err := c.Query(context.Background(), "HQ2")
	require.NoError(t, err)
	assert.Equal(t, "hq2", view.Address)
	assert.Equal(t, "telemetry", view.Strategy)

	_, err = c.Query(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestInvalidateCache(t *testing.T) {
	t.Parallel()
	f := newFixture()
	c := f.controller()

	c.InvalidateCache()
	assert.Equal(t, 1, f.cache.invalidated)
	assert.Equal(t, 29500*time.Millisecond, c.CacheRemaining())
}

func TestPoll_UnresolvedPassDoesNotAdoptInstance(t *testing.T) {
	t.Parallel()
	f := newFixture()
	unserialised := model.DeviceIdentity{Kind: model.KindSolarCharger, Instance: model.NoInstance, Identifier: "solar_charger_42", Name: "Solar Charger"}
	f.client.DiscoverFunc = func(ctx context.Context) (int64, []model.DeviceIdentity, error) {
		return 42, []model.DeviceIdentity{unserialised}, nil
	}
	f.client.SystemOverviewFunc = func(ctx context.Context, installationID int64) (model.Document, error) {
		return model.Document{"devices": []any{
			map[string]any{"identifier": "solar_charger_42", "instance": 278.0},
		}}, nil
	}
	f.cache.GetFunc = func(ctx context.Context, installationID int64) (*model.DiagnosticsBatch, error) {
		return &model.DiagnosticsBatch{}, nil
	}
	c := f.controller()

	require.NoError(t, c.Poll(context.Background()))

	view, ok := c.Device("solar_charger_42")
	require.True(t, ok)
	assert.Empty(t, view.Strategy)
	assert.NotEmpty(t, view.Failures)
	assert.False(t, view.Identity.HasInstance())
}

func TestQuery_WaitsForRunningPoll(t *testing.T) {
	t.Parallel()
	f := newFixture()
	started, release := make(chan struct{}), make(chan struct{})
	var once sync.Once
	f.cache.GetFunc = func(ctx context.Context, installationID int64) (*model.DiagnosticsBatch, error) {
		once.Do(func() {
			close(started)
			<-release
		})
		return testBatch(), nil
	}
	c := f.controller()

	pollDone := make(chan error, 1)
	go func() {
		pollDone <- c.Poll(context.Background())
	}()
	<-started

	queryDone := make(chan error, 1)
	go func() {
		_, err := c.Query(context.Background(), "hq2")
		queryDone <- err
	}()

	select {
	case <-queryDone:
		t.Fatal("query ran while a poll was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-pollDone)
	require.NoError(t, <-queryDone)
}

func TestDiscover_RediscoveryRepublishesTrackedDevices(t *testing.T) {
	t.Parallel()
	f := newFixture()
	c := f.controller()

	require.NoError(t, c.Discover(context.Background()))
	assert.Empty(t, f.publisher.forgotten)

	require.NoError(t, c.Discover(context.Background()))
	assert.ElementsMatch(t, []string{"hq2", "hq3"}, f.publisher.forgotten)
	assert.Len(t, c.Devices(), 2)
}

func TestWidgets(t *testing.T) {
	t.Parallel()
	f := newFixture()
	var gotInstallation int64
	var gotTypes []string
	f.client.WidgetsFunc = func(ctx context.Context, installationID int64, types ...string) (model.Document, error) {
		gotInstallation, gotTypes = installationID, types
		return model.Document{"success": true}, nil
	}
	c := f.controller()

	_, err := c.Widgets(context.Background(), "BatterySummary")
	assert.ErrorIs(t, err, ErrNotDiscovered)

	require.NoError(t, c.Discover(context.Background()))
	doc, err := c.Widgets(context.Background(), "BatterySummary")
	require.NoError(t, err)
	assert.True(t, doc.Has("success"))
	assert.Equal(t, int64(42), gotInstallation)
	assert.Equal(t, []string{"BatterySummary"}, gotTypes)
}
