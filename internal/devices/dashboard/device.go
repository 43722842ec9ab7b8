package dashboard

import (
	"fmt"

	"github.com/dbehnke/dmr-nexus/pkg/devices"
)

// sourceName maps a devices.ResultSource to the wire-level event name
// browsers subscribe to.
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

// Device is the output manager's UI-class event sink: a websocket hub
// the output manager drives directly, without an HTTP round trip.
type Device struct {
	base devices.Base
	hub  *Hub
}

// New wraps hub as an output device named name.
func New(id int, name string, hub *Hub) *Device {
	return &Device{base: devices.Base{ID: id, Name: name, State: devices.Registered}, hub: hub}
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

// Kind reports this device as a UI-class output, so the output
// manager enforces its single-UI-receiver constraint against it.
func (d *Device) Kind() devices.OutputKind { return devices.OutputUI }

// InferenceComplete fans an inference result out to every connected
// dashboard client. It never requests an overlay change itself - that
// is a display-manager concern.
func (d *Device) InferenceComplete(devID int, source devices.ResultSource, result []byte) (overlayChanged bool) {
	d.hub.Broadcast(Event{
		Type: "inference",
		Data: map[string]interface{}{
			"device_id": devID,
			"source":    sourceName(source),
			"bytes":     len(result),
		},
	})
	return false
}

// HandleInputNotify forwards a raw input notification to dashboard
// clients for live debugging.
func (d *Device) HandleInputNotify(data []byte) error {
	d.hub.Broadcast(Event{
		Type: "input_notify",
		Data: map[string]interface{}{"bytes": len(data)},
	})
	return nil
}

// HandleAudioDump reports raw/cleaned audio buffer sizes without
// shipping the audio itself over the websocket.
func (d *Device) HandleAudioDump(raw, cleaned []byte) error {
	d.hub.Broadcast(Event{
		Type: "audio_dump",
		Data: map[string]interface{}{
			"raw_bytes":     len(raw),
			"cleaned_bytes": len(cleaned),
		},
	})
	return nil
}

// BroadcastHeartbeat reports client connectivity, intended to be
// driven by a periodic ticker owned by the caller.
func (d *Device) BroadcastHeartbeat() {
	d.hub.Broadcast(Event{
		Type: "heartbeat",
		Data: map[string]interface{}{"clients": d.hub.ClientCount()},
	})
}

var _ fmt.Stringer = (*Device)(nil)

func (d *Device) String() string {
	return fmt.Sprintf("dashboard[%d %s]", d.base.ID, d.base.Name)
}

var (
	_ devices.Lifecycle          = (*Device)(nil)
	_ devices.EventHandler        = (*Device)(nil)
	_ devices.InputNotifyHandler = (*Device)(nil)
	_ devices.DumpHandler        = (*Device)(nil)
)
