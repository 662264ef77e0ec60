package controller

import (
	"context"
	"time"

	"github.com/anicoll/vrm-integration/internal/pkg/device"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

type VrmClient interface {
	Discover(ctx context.Context) (int64, []model.DeviceIdentity, error)
	SystemOverview(ctx context.Context, installationID int64) (model.Document, error)
	Widgets(ctx context.Context, installationID int64, types ...string) (model.Document, error)
}

type DiagnosticsCache interface {
	Get(ctx context.Context, installationID int64) (*model.DiagnosticsBatch, error)
	Remaining(installationID int64) time.Duration
	Invalidate()
}

type Publisher interface {
	PublishData(ctx context.Context, deviceStatusMap map[model.Device][]model.DeviceStatus) error
	RegisterDevice(ctx context.Context, device *model.Device) error
	Forget(identifier string)
}

// Store keeps the last known state of each device across restarts.
type Store interface {
	SaveState(ctx context.Context, deviceID string, state device.State) error
	LoadStates(ctx context.Context) (map[string]device.State, error)
}

type Recorder interface {
	Resolved(kind, strategy string)
	CacheRemaining(left time.Duration)
	PollCompleted(elapsed time.Duration, err error)
}
