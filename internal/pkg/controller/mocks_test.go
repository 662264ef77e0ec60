package controller

import (
	"context"
	"sync"
	"time"

	"github.com/anicoll/vrm-integration/internal/pkg/device"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

type mockVrmClient struct {
	DiscoverFunc       func(ctx context.Context) (int64, []model.DeviceIdentity, error)
	SystemOverviewFunc func(ctx context.Context, installationID int64) (model.Document, error)
	WidgetsFunc        func(ctx context.Context, installationID int64, types ...string) (model.Document, error)
}

func (m *mockVrmClient) Discover(ctx context.Context) (int64, []model.DeviceIdentity, error) {
	return m.DiscoverFunc(ctx)
}

func (m *mockVrmClient) SystemOverview(ctx context.Context, installationID int64) (model.Document, error) {
	return m.SystemOverviewFunc(ctx, installationID)
}

func (m *mockVrmClient) Widgets(ctx context.Context, installationID int64, types ...string) (model.Document, error) {
	return m.WidgetsFunc(ctx, installationID, types...)
}

type mockCache struct {
	GetFunc       func(ctx context.Context, installationID int64) (*model.DiagnosticsBatch, error)
	RemainingFunc func(installationID int64) time.Duration
	invalidated   int
}

func (m *mockCache) Get(ctx context.Context, installationID int64) (*model.DiagnosticsBatch, error) {
	return m.GetFunc(ctx, installationID)
}

func (m *mockCache) Remaining(installationID int64) time.Duration {
	if m.RemainingFunc == nil {
		return 0
	}
	return m.RemainingFunc(installationID)
}

func (m *mockCache) Invalidate() {
	m.invalidated++
}

type mockPublisher struct {
	mu         sync.Mutex
	published  []map[model.Device][]model.DeviceStatus
	registered []string
	forgotten  []string
}

func (m *mockPublisher) PublishData(ctx context.Context, data map[model.Device][]model.DeviceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, data)
	return nil
}

func (m *mockPublisher) RegisterDevice(ctx context.Context, d *model.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, d.ID)
	return nil
}

func (m *mockPublisher) Forget(identifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forgotten = append(m.forgotten, identifier)
}

func (m *mockPublisher) last() map[model.Device][]model.DeviceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published[len(m.published)-1]
}

type mockStore struct {
	mu             sync.Mutex
	saved          map[string]device.State
	LoadStatesFunc func(ctx context.Context) (map[string]device.State, error)
}

func (m *mockStore) SaveState(ctx context.Context, deviceID string, state device.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string]device.State{}
	}
	m.saved[deviceID] = state
	return nil
}

func (m *mockStore) LoadStates(ctx context.Context) (map[string]device.State, error) {
	return m.LoadStatesFunc(ctx)
}
