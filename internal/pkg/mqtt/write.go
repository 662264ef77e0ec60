package mqtt

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

const manufacturer = "Victron Energy"

func (s *service) Write(ctx context.Context, data []model.SensorReading) error {
	for _, d := range data {
		if err := s.configureSensor(d); err != nil {
			return err
		}
		if err := s.PublishData(d); err != nil {
			return err
		}
	}
	return nil
}

// RegisterDevice is a no-op: Home Assistant discovery is per sensor and
// happens on a sensor's first reading.
func (s *service) RegisterDevice(ctx context.Context, device *model.Device) error {
	return nil
}

func (s *service) sensorTopic(identifier, slug string) string {
	return fmt.Sprintf("%s/sensor/%s/%s", s.prefix, identifier, slug)
}

func (s *service) configureSensor(reading model.SensorReading) error {
	key := reading.Device.ID + "/" + reading.Slug
	s.mu.Lock()
	_, exists := s.configuredSensors[key]
	s.mu.Unlock()
	if exists {
		return nil
	}

	payload, err := json.Marshal(s.registerMsg(reading))
	if err != nil {
		return err
	}
	topic := s.sensorTopic(reading.Device.ID, reading.Slug) + "/config"
	token := s.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(time.Second * 5) {
		return fmt.Errorf("timed out configuring sensor %s", key)
	}
	if err := token.Error(); err != nil {
		return err
	}
	s.mu.Lock()
	s.configuredSensors[key] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("configured sensor", zap.String("topic", topic))
	return nil
}

func (s *service) PublishData(reading model.SensorReading) error {
	payload := map[string]string{
		"value": reading.Value,
	}
	if !reading.IsText() {
		payload["unit_of_measurement"] = reading.Unit
	}

	publishData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	token := s.client.Publish(s.sensorTopic(reading.Device.ID, reading.Slug)+"/state", 0, false, publishData)
	if !token.WaitTimeout(time.Second * 10) {
		return fmt.Errorf("timed out publishing %s/%s", reading.Device.ID, reading.Slug)
	}
	return token.Error()
}

func (s *service) registerMsg(reading model.SensorReading) model.RegisterMessage {
	device := reading.Device
	deviceName := device.Name
	if deviceName == "" {
		deviceName = device.Model
	}
	msg := model.RegisterMessage{
		Tilda:         s.sensorTopic(device.ID, reading.Slug),
		Name:          reading.Name,
		ID:            fmt.Sprintf("%s_%s", device.ID, reading.Slug),
		StateTopic:    "~/state",
		ValueTemplate: "{{ value_json.value }}",
		Device: model.RegisterDevice{
			Name:         deviceName,
			Identifiers:  []string{device.ID},
			Model:        device.Model,
			Manufacturer: manufacturer,
		},
	}
	if !reading.IsText() {
		msg.UnitOfMeasurement = reading.Unit
		msg.DeviceClass = reading.DeviceClass
		msg.StateClass = reading.StateClass
	}
	return msg
}
