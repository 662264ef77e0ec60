package cmd

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/anicoll/vrm-integration/internal/pkg/controller"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

// MockVrmController is a mock implementation of VrmController.
type MockVrmController struct {
	polls        atomic.Int32
	DiscoverFunc func(ctx context.Context) error
	PollFunc     func(ctx context.Context) error
}

func (m *MockVrmController) Discover(ctx context.Context) error {
	if m.DiscoverFunc != nil {
		return m.DiscoverFunc(ctx)
	}
	return nil
}

func (m *MockVrmController) Poll(ctx context.Context) error {
	m.polls.Add(1)
	if m.PollFunc != nil {
		return m.PollFunc(ctx)
	}
	return nil
}

func (m *MockVrmController) Widgets(ctx context.Context, types ...string) (model.Document, error) {
	return model.Document{}, nil
}

func (m *MockVrmController) Devices() []controller.DeviceView {
	return nil
}

func (m *MockVrmController) Query(ctx context.Context, address string) (controller.DeviceView, error) {
	return controller.DeviceView{}, controller.ErrUnknownDevice
}

func (m *MockVrmController) Status() []model.DeviceStatus {
	return nil
}

func (m *MockVrmController) CacheRemaining() time.Duration {
	return 0
}

func (m *MockVrmController) InvalidateCache() {}

func (m *MockVrmController) Healthy() bool {
	return true
}

// MockDatabase is a mock implementation of Database.
type MockDatabase struct {
	CleanupFunc       func(ctx context.Context) error
	GetPropertiesFunc func(ctx context.Context, identifier string) (model.Properties, error)
}

func (m *MockDatabase) Cleanup(ctx context.Context) error {
	if m.CleanupFunc != nil {
		return m.CleanupFunc(ctx)
	}
	return nil
}

func (m *MockDatabase) GetProperties(ctx context.Context, identifier string) (model.Properties, error) {
	if m.GetPropertiesFunc != nil {
		return m.GetPropertiesFunc(ctx, identifier)
	}
	return nil, nil
}
