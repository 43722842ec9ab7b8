// Package mqtt publishes appliance observability events (inference
// results, audio-dump metadata, low-power transitions) to an external
// broker via github.com/eclipse/paho.mqtt.golang, independently of the
// dashboard's websocket fan-out.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

// Config holds MQTT publisher configuration.
type Config struct {
	Enabled     bool
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	Retained    bool
}

// Publisher handles MQTT event publishing.
type Publisher struct {
	config Config
	log    *logger.Logger
	client paho.Client
}

// InferenceEvent reports a vision or voice algorithm result reaching
// the output manager.
type InferenceEvent struct {
	DeviceID  int       `json:"device_id"`
	Source    string    `json:"source"` // "vision", "voice", "lpm"
	Result    []byte    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

// AudioDumpEvent reports raw/cleaned audio buffers handed to an output
// device's dump handler.
type AudioDumpEvent struct {
	RawBytes     int       `json:"raw_bytes"`
	CleanedBytes int       `json:"cleaned_bytes"`
	Timestamp    time.Time `json:"timestamp"`
}

// LPMEvent reports a low-power-mode pre-sleep transition.
type LPMEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// New creates a new MQTT publisher. The client itself is not
// connected until Start succeeds.
func New(config Config, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}
	return &Publisher{
		config: config,
		log:    log.WithComponent("mqtt"),
	}
}

// Start connects to the configured broker. It is a no-op when the
// publisher is disabled.
func (p *Publisher) Start(ctx context.Context) error {
	if !p.config.Enabled {
		p.log.Info("mqtt publisher disabled")
		return nil
	}

	opts := paho.NewClientOptions().
		AddBroker(p.config.Broker).
		SetClientID(p.config.ClientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt: connecting to %s: timed out", p.config.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connecting to %s: %w", p.config.Broker, err)
	}

	p.log.Info("mqtt publisher connected",
		logger.String("broker", p.config.Broker),
		logger.String("client_id", p.config.ClientID))

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

// Stop disconnects the underlying client. Safe to call on a disabled
// or never-started publisher.
func (p *Publisher) Stop() {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	p.log.Info("stopping mqtt publisher")
	p.client.Disconnect(250)
}

// PublishInference publishes a vision/voice/lpm inference result.
func (p *Publisher) PublishInference(event InferenceEvent) error {
	if !p.config.Enabled {
		return nil
	}
	return p.publish(p.formatTopic(fmt.Sprintf("inference/%s", event.Source)), event)
}

// PublishAudioDump publishes audio-dump size metadata.
func (p *Publisher) PublishAudioDump(event AudioDumpEvent) error {
	if !p.config.Enabled {
		return nil
	}
	return p.publish(p.formatTopic("audio/dump"), event)
}

// PublishLPM publishes a low-power pre-sleep transition.
func (p *Publisher) PublishLPM(event LPMEvent) error {
	if !p.config.Enabled {
		return nil
	}
	return p.publish(p.formatTopic("lpm/presleep"), event)
}

func (p *Publisher) publish(topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to serialize event", logger.String("topic", topic), logger.Error(err))
		return err
	}

	if p.client == nil || !p.client.IsConnected() {
		p.log.Debug("dropping publish, client not connected",
			logger.String("topic", topic), logger.Int("payload_size", len(payload)))
		return nil
	}

	token := p.client.Publish(topic, p.config.QoS, p.config.Retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt: publishing to %s: timed out", topic)
	}
	return token.Error()
}

func (p *Publisher) formatTopic(suffix string) string {
	prefix := strings.TrimSuffix(p.config.TopicPrefix, "/")
	if prefix == "" {
		return suffix
	}
	return fmt.Sprintf("%s/%s", prefix, suffix)
}
