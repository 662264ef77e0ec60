package mqtt

import (
	"errors"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anicoll/vrm-integration/internal/pkg/config"
)

const defaultPrefix = "homeassistant"

type service struct {
	client paho_mqtt.Client
	logger *zap.Logger
	prefix string

	mu                sync.Mutex
	configuredSensors map[string]struct{}
}

// Options builds client options for the configured broker. The client id
// carries a random suffix so parallel instances do not kick each other off.
func Options(cfg config.MqttConfig) *paho_mqtt.ClientOptions {
	opts := paho_mqtt.NewClientOptions()
	opts.AddBroker(cfg.Host)
	opts.SetClientID("vrm-integration-" + uuid.NewString()[:8])
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(paho_mqtt.Client) {
		zap.L().Info("connected to mqtt broker", zap.String("host", cfg.Host))
	})
	opts.SetConnectionLostHandler(func(_ paho_mqtt.Client, err error) {
		zap.L().Warn("mqtt connection lost", zap.Error(err))
	})
	return opts
}

func New(client paho_mqtt.Client, prefix string) *service {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &service{
		client:            client,
		logger:            zap.L(),
		prefix:            prefix,
		configuredSensors: map[string]struct{}{},
	}
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(time.Second * 5)
	if res {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("unable to connect in time")
}

func (s *service) Close() error {
	s.client.Disconnect(250)
	return nil
}
