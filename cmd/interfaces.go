package cmd

import (
	"context"
	"time"

	"github.com/anicoll/vrm-integration/internal/pkg/controller"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

// VrmController defines what cmd.run expects from the controller: the poll
// loop plus everything the HTTP API serves.
type VrmController interface {
	Discover(ctx context.Context) error
	Poll(ctx context.Context) error
	Widgets(ctx context.Context, types ...string) (model.Document, error)
	Devices() []controller.DeviceView
	Query(ctx context.Context, address string) (controller.DeviceView, error)
	Status() []model.DeviceStatus
	CacheRemaining() time.Duration
	InvalidateCache()
	Healthy() bool
}

// Database is the optional store behind the cleanup job and /api/properties.
type Database interface {
	Cleanup(ctx context.Context) error
	GetProperties(ctx context.Context, identifier string) (model.Properties, error)
}
