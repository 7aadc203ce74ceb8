package metrics

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout       = 5 * time.Second
	connectRetryInterval = 10 * time.Second
	maxReconnectInterval = 60 * time.Second
	keepAlive            = 60 * time.Second
	disconnectQuiesceMs  = 250
)

// BrokerConfig is the MQTT broker connection configuration.
type BrokerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	UseTLS      bool   `yaml:"useTls"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topicPrefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// rotatorState is the device-state payload published by the rotator
// controller.
type rotatorState struct {
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
	Status    string  `json:"status"`
}

// Publisher pushes pipeline metrics to an MQTT broker and subscribes
// to rotator state updates for margin annotations.
type Publisher struct {
	client mqtt.Client
	config BrokerConfig
	logger *slog.Logger
}

// WithLogger sets the publisher logger.
func WithLogger(logger *slog.Logger) func(*Publisher) {
	return func(p *Publisher) {
		p.logger = logger.With(slog.String("component", "mqtt"))
	}
}

func clientID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "groundscope_" + hex.EncodeToString(b)
}

// NewPublisher connects to the broker. The initial connection attempt
// is bounded; failures are logged and retried in the background, never
// fatal to the pipeline.
func NewPublisher(config BrokerConfig, options ...func(*Publisher)) *Publisher {
	p := &Publisher{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(p)
	}

	if !config.Enabled {
		return p
	}

	scheme := "tcp"
	if config.UseTLS {
		scheme = "tls"
	}
	broker := fmt.Sprintf("%s://%s:%d", scheme, config.Host, config.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID())

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(connectRetryInterval)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.SetKeepAlive(keepAlive)
	opts.SetConnectTimeout(connectTimeout)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.logger.Info("broker connected", slog.String("broker", broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Warn("broker connection lost", slog.String("error", err.Error()))
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		p.logger.Info("reconnecting to broker")
	})

	p.client = mqtt.NewClient(opts)

	token := p.client.Connect()
	if token.WaitTimeout(connectTimeout) && token.Error() != nil {
		p.logger.Warn("initial broker connection failed, retrying in background",
			slog.String("error", token.Error().Error()))
	}

	return p
}

// PublishStatus publishes one metrics snapshot to <prefix>/metrics.
func (p *Publisher) PublishStatus(status Status) error {
	if p.client == nil || !p.client.IsConnected() {
		return nil // metrics are best-effort while disconnected
	}

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshaling metrics: %w", err)
	}

	topic := p.config.TopicPrefix + "/metrics"
	token := p.client.Publish(topic, p.config.QoS, p.config.Retain, data)

	go func() {
		if token.Wait() && token.Error() != nil {
			p.logger.Warn("metrics publish failed",
				slog.String("topic", topic),
				slog.String("error", token.Error().Error()))
		}
	}()

	return nil
}

// SubscribeRotator delivers rotator state updates as short annotation
// strings. JSON payloads are formatted; anything else is passed through
// verbatim.
func (p *Publisher) SubscribeRotator(handler func(text string)) error {
	if p.client == nil {
		return nil
	}

	topic := p.config.TopicPrefix + "/rotator/state"
	token := p.client.Subscribe(topic, p.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		handler(formatRotator(msg.Payload()))
	})

	if token.WaitTimeout(connectTimeout) && token.Error() != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, token.Error())
	}
	return nil
}

func formatRotator(payload []byte) string {
	var state rotatorState
	if err := json.Unmarshal(payload, &state); err != nil || state.Status == "" {
		return string(payload)
	}
	return fmt.Sprintf("rot %s az %.0f el %.0f", state.Status, state.Azimuth, state.Elevation)
}

// Disconnect closes the broker connection.
func (p *Publisher) Disconnect() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesceMs)
		p.logger.Info("broker disconnected")
	}
}
