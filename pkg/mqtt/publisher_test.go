package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestNewPublisher(t *testing.T) {
	config := Config{
		Enabled:     true,
		Broker:      "tcp://localhost:1883",
		TopicPrefix: "appliance/test",
		ClientID:    "test-client",
		QoS:         1,
		Retained:    false,
	}

	pub := New(config, nil)
	if pub == nil {
		t.Fatal("expected non-nil publisher")
	}
	if pub.config.Broker != config.Broker {
		t.Errorf("expected broker %s, got %s", config.Broker, pub.config.Broker)
	}
}

func TestPublisher_StartWhenDisabled(t *testing.T) {
	pub := New(Config{Enabled: false}, nil)
	if err := pub.Start(context.Background()); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_StopWithoutStart(t *testing.T) {
	pub := New(Config{Enabled: false}, nil)
	pub.Stop() // must not panic
}

func TestPublisher_PublishInferenceWhenDisabled(t *testing.T) {
	pub := New(Config{Enabled: false, TopicPrefix: "appliance/test"}, nil)

	event := InferenceEvent{DeviceID: 1, Source: "vision", Result: []byte{1, 2, 3}, Timestamp: time.Now()}
	if err := pub.PublishInference(event); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishAudioDumpWhenDisabled(t *testing.T) {
	pub := New(Config{Enabled: false, TopicPrefix: "appliance/test"}, nil)

	event := AudioDumpEvent{RawBytes: 4096, CleanedBytes: 2048, Timestamp: time.Now()}
	if err := pub.PublishAudioDump(event); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishLPMWhenDisabled(t *testing.T) {
	pub := New(Config{Enabled: false, TopicPrefix: "appliance/test"}, nil)

	if err := pub.PublishLPM(LPMEvent{Timestamp: time.Now()}); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishWithoutConnectedClientDoesNotError(t *testing.T) {
	// Enabled but never Start()ed: client is nil, publish should log and
	// return nil rather than panic or error.
	pub := New(Config{Enabled: true, TopicPrefix: "appliance/test"}, nil)

	event := InferenceEvent{DeviceID: 1, Source: "voice", Timestamp: time.Now()}
	if err := pub.PublishInference(event); err != nil {
		t.Errorf("expected no error publishing without a connected client, got %v", err)
	}
}

func TestTopicFormat(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		suffix   string
		expected string
	}{
		{"simple topic", "appliance/sim", "inference/vision", "appliance/sim/inference/vision"},
		{"trailing slash in prefix", "appliance/sim/", "inference/vision", "appliance/sim/inference/vision"},
		{"empty prefix", "", "inference/vision", "inference/vision"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := New(Config{TopicPrefix: tt.prefix}, nil)
			if got := pub.formatTopic(tt.suffix); got != tt.expected {
				t.Errorf("expected topic %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestEventSerialization(t *testing.T) {
	tests := []struct {
		name  string
		event interface{}
	}{
		{"InferenceEvent", InferenceEvent{DeviceID: 1, Source: "vision", Result: []byte{1, 2}, Timestamp: time.Now()}},
		{"AudioDumpEvent", AudioDumpEvent{RawBytes: 100, CleanedBytes: 50, Timestamp: time.Now()}},
		{"LPMEvent", LPMEvent{Timestamp: time.Now()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := json.Marshal(tt.event); err != nil {
				t.Errorf("failed to serialize %s: %v", tt.name, err)
			}
		})
	}
}
