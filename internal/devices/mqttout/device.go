// Package mqttout adapts pkg/mqtt's Publisher into an output-manager
// device: inference results and audio-dump metadata are republished
// to an external MQTT broker instead of (or alongside) the dashboard.
package mqttout

import (
	"time"

	"github.com/dbehnke/dmr-nexus/pkg/devices"
	"github.com/dbehnke/dmr-nexus/pkg/logger"
	"github.com/dbehnke/dmr-nexus/pkg/mqtt"
)

// Device is an Other-class output device backed by an MQTT
// publisher.
type Device struct {
	base devices.Base
	pub  *mqtt.Publisher
	log  *logger.Logger
}

// New wraps pub as an output device named name.
func New(id int, name string, pub *mqtt.Publisher, log *logger.Logger) *Device {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}
	return &Device{base: devices.Base{ID: id, Name: name, State: devices.Registered}, pub: pub, log: log.WithComponent("mqttout")}
}

func (d *Device) Init() error {
	d.base.State = devices.Initialized
	return nil
}

func (d *Device) Deinit() error {
	d.base.State = devices.Deinitialized
	return nil
}

func (d *Device) Start() error {
	d.base.State = devices.Started
	return nil
}

func (d *Device) Stop() error {
	d.base.State = devices.Stopped
	return nil
}

// Kind reports this device as an Other-class output, so it
// never contends with the dashboard's UI slot.
func (d *Device) Kind() devices.OutputKind { return devices.OutputOther }

func sourceName(s devices.ResultSource) string {
	switch s {
	case devices.SourceVision:
		return "vision"
	case devices.SourceVoice:
		return "voice"
	case devices.SourceLPM:
		return "lpm"
	default:
		return "unknown"
	}
}

// InferenceComplete republishes a result to the configured broker. It
// never requests an overlay change.
func (d *Device) InferenceComplete(devID int, source devices.ResultSource, result []byte) (overlayChanged bool) {
	if err := d.pub.PublishInference(mqtt.InferenceEvent{
		DeviceID:  devID,
		Source:    sourceName(source),
		Result:    result,
		Timestamp: time.Now(),
	}); err != nil {
		d.log.Error("publishing inference event", logger.Error(err))
	}
	return false
}

// HandleAudioDump republishes audio-dump size metadata.
func (d *Device) HandleAudioDump(raw, cleaned []byte) error {
	return d.pub.PublishAudioDump(mqtt.AudioDumpEvent{
		RawBytes:     len(raw),
		CleanedBytes: len(cleaned),
		Timestamp:    time.Now(),
	})
}

var (
	_ devices.Lifecycle   = (*Device)(nil)
	_ devices.EventHandler = (*Device)(nil)
	_ devices.DumpHandler = (*Device)(nil)
)
