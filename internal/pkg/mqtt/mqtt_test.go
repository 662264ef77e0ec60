package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/vrm-integration/internal/pkg/config"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

type token struct {
	err error
}

func (t *token) Wait() bool {
	return true
}

func (t *token) WaitTimeout(time.Duration) bool {
	return true
}

func (t *token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *token) Error() error {
	return t.err
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	paho_mqtt.Client
	mu        sync.Mutex
	published []message
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) paho_mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, message{topic: topic, retained: retained, payload: payload.([]byte)})
	return &token{}
}

func (c *fakeClient) Connect() paho_mqtt.Token {
	return &token{}
}

func reading(slug, value, unit string) model.SensorReading {
	return model.SensorReading{
		Device:      model.Device{ID: "hq2", Kind: model.KindBatteryMonitor, Model: "SmartShunt", Name: "Battery Monitor"},
		Name:        "Sensor " + slug,
		Slug:        slug,
		Value:       value,
		Unit:        unit,
		DeviceClass: "voltage",
		StateClass:  "measurement",
	}
}

func TestWrite_ConfiguresOnceThenPublishesState(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	s := New(client, "")

	require.NoError(t, s.Connect())
	require.NoError(t, s.Write(context.Background(), []model.SensorReading{reading("voltage", "12.8", "V")}))
	require.NoError(t, s.Write(context.Background(), []model.SensorReading{reading("voltage", "12.9", "V")}))

	require.Len(t, client.published, 3)
	cfg := client.published[0]
	assert.Equal(t, "homeassistant/sensor/hq2/voltage/config", cfg.topic)
	assert.True(t, cfg.retained)

	var msg model.RegisterMessage
	require.NoError(t, json.Unmarshal(cfg.payload, &msg))
	assert.Equal(t, "homeassistant/sensor/hq2/voltage", msg.Tilda)
	assert.Equal(t, "hq2_voltage", msg.ID)
	assert.Equal(t, "V", msg.UnitOfMeasurement)
	assert.Equal(t, "voltage", msg.DeviceClass)
	assert.Equal(t, "Victron Energy", msg.Device.Manufacturer)

	state := client.published[2]
	assert.Equal(t, "homeassistant/sensor/hq2/voltage/state", state.topic)
	assert.False(t, state.retained)
	assert.JSONEq(t, `{"value":"12.9","unit_of_measurement":"V"}`, string(state.payload))
}

func TestWrite_TextSensorHasNoUnit(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	s := New(client, "ha")

	require.NoError(t, s.Write(context.Background(), []model.SensorReading{reading("firmware_version", "3.20", "")}))

	require.Len(t, client.published, 2)
	var msg model.RegisterMessage
	require.NoError(t, json.Unmarshal(client.published[0].payload, &msg))
	assert.Empty(t, msg.UnitOfMeasurement)
	assert.Empty(t, msg.DeviceClass)
	assert.Equal(t, "ha/sensor/hq2/firmware_version/state", client.published[1].topic)
	assert.JSONEq(t, `{"value":"3.20"}`, string(client.published[1].payload))
}

func TestOptions(t *testing.T) {
	t.Parallel()
	opts := Options(config.MqttConfig{Host: "tcp://broker:1883", Username: "u", Password: "p"})

	assert.Len(t, opts.Servers, 1)
	assert.Equal(t, "u", opts.Username)
	assert.Contains(t, opts.ClientID, "vrm-integration-")
}
