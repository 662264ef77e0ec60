package publisher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

var errAlreadyRegistered = errors.New("publisher already registered")

var (
	mu                   sync.RWMutex
	registeredPublishers = make(map[string]publisher)
	sensors              sync.Map
	now                  = time.Now
)

type publisher interface {
	Write(ctx context.Context, data []model.SensorReading) error
	RegisterDevice(ctx context.Context, device *model.Device) error
}

func RegisterPublisher(name string, p publisher) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registeredPublishers[name]; ok {
		return errAlreadyRegistered
	}
	registeredPublishers[name] = p
	return nil
}

// PublishData hands every sensor whose value changed since it was last
// delivered to a publisher to that publisher. A value is remembered per
// publisher only once its Write succeeds, so failed values are offered again
// on the next call. Publisher failures are logged, not returned.
func PublishData(ctx context.Context, deviceStatusMap map[model.Device][]model.DeviceStatus) error {
	data := make([]model.SensorReading, 0)
	ts := now()
	for device, statuses := range deviceStatusMap {
		for _, status := range statuses {
			if status.Value == nil || *status.Value == "" {
				continue
			}
			data = append(data, model.SensorReading{
				Device:      device,
				Name:        status.Name,
				Slug:        status.Slug,
				Value:       *status.Value,
				Unit:        status.Unit,
				DeviceClass: status.DeviceClass,
				StateClass:  status.StateClass,
				Timestamp:   ts,
			})
		}
	}
	if len(data) == 0 {
		return nil
	}

	mu.RLock()
	defer mu.RUnlock()
	for name, p := range registeredPublishers {
		changed := lo.Filter(data, func(r model.SensorReading, _ int) bool {
			return shouldUpdate(name, r.Device.ID, r.Slug, r.Value)
		})
		if len(changed) == 0 {
			continue
		}
		if err := p.Write(ctx, changed); err != nil {
			zap.L().Error("failed to publish data", zap.Error(err), zap.String("publisher", name))
			continue
		}
		for _, r := range changed {
			sensors.Store(sensorKey{publisher: name, device: r.Device.ID, slug: r.Slug}, r.Value)
		}
		zap.L().Debug("updated sensors", zap.Int("count", len(changed)), zap.String("publisher", name))
	}
	return nil
}

func RegisterDevice(ctx context.Context, device *model.Device) error {
	mu.RLock()
	defer mu.RUnlock()
	for name, p := range registeredPublishers {
		if err := p.RegisterDevice(ctx, device); err != nil {
			zap.L().Error("failed to register device", zap.Error(err), zap.String("publisher", name))
			continue
		}
		zap.L().Debug("registered device", zap.String("device", device.ID), zap.String("publisher", name))
	}
	return nil
}

// Forget drops the remembered values of a device so its next update is
// published in full.
func Forget(identifier string) {
	sensors.Range(func(key, _ any) bool {
		if key.(sensorKey).device == identifier {
			sensors.Delete(key)
		}
		return true
	})
}

type sensorKey struct {
	publisher string
	device    string
	slug      string
}

func shouldUpdate(publisher, identifier, slug, newValue string) bool {
	oldValue, exists := sensors.Load(sensorKey{publisher: publisher, device: identifier, slug: slug})
	if exists && strings.EqualFold(newValue, oldValue.(string)) {
		return false
	}
	if !exists {
		zap.L().Info("new sensor value",
			zap.String("publisher", publisher),
			zap.String("device", identifier),
			zap.String("sensor", slug),
			zap.String("value", newValue))
	}
	return true
}

// Hub exposes the package registry to callers that take a publisher as a dependency.
type Hub struct{}

func (Hub) PublishData(ctx context.Context, deviceStatusMap map[model.Device][]model.DeviceStatus) error {
	return PublishData(ctx, deviceStatusMap)
}

func (Hub) RegisterDevice(ctx context.Context, device *model.Device) error {
	return RegisterDevice(ctx, device)
}

func (Hub) Forget(identifier string) {
	Forget(identifier)
}
