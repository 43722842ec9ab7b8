// Package testfakes provides minimal in-memory device implementations
// of every pkg/devices capability interface, for the simulator binary
// and for manager-level tests that want a real device rather than a
// hand-rolled local fake.
package testfakes

import (
	"sync"

	"github.com/dbehnke/dmr-nexus/pkg/devices"
	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
)

// Capture is an in-memory devices.CaptureDevice: Enqueue pushes frames
// in, and the device reports them back through onEvent exactly as a
// real capture driver would.
type Capture struct {
	mu      sync.Mutex
	onEvent devices.EventCallback
	format  fwkmsg.PixelFormat
	queue   [][]byte
}

// NewCapture creates a Capture device that will report frames tagged
// with format once dequeued.
func NewCapture(format fwkmsg.PixelFormat) *Capture {
	return &Capture{format: format}
}

func (c *Capture) Init() error   { return nil }
func (c *Capture) Deinit() error { return nil }
func (c *Capture) Start() error  { return nil }
func (c *Capture) Stop() error   { return nil }

func (c *Capture) InitCapture(width, height int, onEvent devices.EventCallback, _ any) error {
	c.mu.Lock()
	c.onEvent = onEvent
	c.mu.Unlock()
	onEvent(0, nil, false) // EventCameraDeviceInit
	return nil
}

// Enqueue hands buf to the device as a captured frame and immediately
// signals dequeue-ready, simulating the driver's own capture thread.
func (c *Capture) Enqueue(buf []byte) error {
	c.mu.Lock()
	c.queue = append(c.queue, buf)
	cb := c.onEvent
	c.mu.Unlock()
	if cb != nil {
		cb(1, nil, true) // EventCameraDequeue, fromInterrupt
	}
	return nil
}

func (c *Capture) Dequeue() ([]byte, fwkmsg.PixelFormat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, c.format, nil
	}
	buf := c.queue[0]
	c.queue = c.queue[1:]
	return buf, c.format, nil
}

// Display is an in-memory devices.DisplayDevice recording every
// blitted buffer.
type Display struct {
	mu       sync.Mutex
	geometry fwkmsg.FrameDescriptor
	Blits    [][]byte
	NextFail bool
}

// NewDisplay creates a Display advertising geometry.
func NewDisplay(geometry fwkmsg.FrameDescriptor) *Display {
	return &Display{geometry: geometry}
}

func (d *Display) Init() error   { return nil }
func (d *Display) Deinit() error { return nil }
func (d *Display) Start() error  { return nil }
func (d *Display) Stop() error   { return nil }

func (d *Display) Geometry() fwkmsg.FrameDescriptor { return d.geometry }

func (d *Display) Blit(data []byte, _, _ int) (devices.BlitStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.NextFail {
		d.NextFail = false
		return devices.BlitFailed, nil
	}
	d.Blits = append(d.Blits, append([]byte(nil), data...))
	return devices.BlitSuccess, nil
}

// Input is an in-memory input-manager device that simply records
// whatever notifications it receives.
type Input struct {
	mu       sync.Mutex
	Notified [][]byte
}

func NewInput() *Input { return &Input{} }

func (i *Input) Init() error   { return nil }
func (i *Input) Deinit() error { return nil }
func (i *Input) Start() error  { return nil }
func (i *Input) Stop() error   { return nil }

func (i *Input) InputNotify(data []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Notified = append(i.Notified, append([]byte(nil), data...))
	return nil
}

// VisionAlgo is an in-memory devices.VisionAlgoDevice driven by a
// caller-supplied RunFunc, defaulting to a no-op pass.
type VisionAlgo struct {
	frames  [devices.VAlgoFrameKinds]devices.FrameRequirement
	RunFunc func(frames map[devices.FrameKind][]byte) ([]devices.VisionEvent, error)
}

// NewVisionAlgo creates a VisionAlgo advertising frames.
func NewVisionAlgo(frames [devices.VAlgoFrameKinds]devices.FrameRequirement) *VisionAlgo {
	return &VisionAlgo{frames: frames}
}

func (v *VisionAlgo) Init() error   { return nil }
func (v *VisionAlgo) Deinit() error { return nil }
func (v *VisionAlgo) Start() error  { return nil }
func (v *VisionAlgo) Stop() error   { return nil }

func (v *VisionAlgo) Frames() [devices.VAlgoFrameKinds]devices.FrameRequirement { return v.frames }

func (v *VisionAlgo) Run(frames map[devices.FrameKind][]byte) ([]devices.VisionEvent, error) {
	if v.RunFunc != nil {
		return v.RunFunc(frames)
	}
	return nil, nil
}

// AFE is an in-memory devices.AFEDevice driven by a caller-supplied
// RunFunc, defaulting to echoing the input back as a AFEDone event.
type AFE struct {
	RunFunc  func(audio []byte) ([]devices.AFEEvent, error)
	Notified [][]byte
	mu       sync.Mutex
}

func NewAFE() *AFE { return &AFE{} }

func (a *AFE) Init() error   { return nil }
func (a *AFE) Deinit() error { return nil }
func (a *AFE) Start() error  { return nil }
func (a *AFE) Stop() error   { return nil }

func (a *AFE) InputNotify(data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Notified = append(a.Notified, append([]byte(nil), data...))
	return nil
}

func (a *AFE) Run(audio []byte) ([]devices.AFEEvent, error) {
	if a.RunFunc != nil {
		return a.RunFunc(audio)
	}
	return []devices.AFEEvent{{Kind: devices.AFEDone, Cleaned: audio}}, nil
}

// VoiceAlgo is an in-memory devices.VoiceAlgoDevice driven by
// caller-supplied hooks, defaulting to "never detects anything".
type VoiceAlgo struct {
	mu           sync.Mutex
	WakeWordFunc func(audio []byte, languages devices.VoiceLanguage) (devices.VoiceLanguage, int)
	CommandFunc  func(audio []byte, language devices.VoiceLanguage) ([]byte, bool)
	Model        struct {
		Demo       int
		Language   devices.VoiceLanguage
		PushToTalk bool
	}
	Gain float64
}

func NewVoiceAlgo() *VoiceAlgo { return &VoiceAlgo{} }

func (v *VoiceAlgo) Init() error   { return nil }
func (v *VoiceAlgo) Deinit() error { return nil }
func (v *VoiceAlgo) Start() error  { return nil }
func (v *VoiceAlgo) Stop() error   { return nil }

func (v *VoiceAlgo) ScanWakeWord(audio []byte, languages devices.VoiceLanguage) (devices.VoiceLanguage, int) {
	if v.WakeWordFunc != nil {
		return v.WakeWordFunc(audio, languages)
	}
	return devices.LanguageUndefined, 0
}

func (v *VoiceAlgo) ScanCommand(audio []byte, language devices.VoiceLanguage) ([]byte, bool) {
	if v.CommandFunc != nil {
		return v.CommandFunc(audio, language)
	}
	return nil, false
}

func (v *VoiceAlgo) Calibrate(_ []byte) error { return nil }

func (v *VoiceAlgo) SetVoiceModel(demo int, language devices.VoiceLanguage, pushToTalk bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Model.Demo, v.Model.Language, v.Model.PushToTalk = demo, language, pushToTalk
	return nil
}

func (v *VoiceAlgo) SetSpeakerVolume(gain float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Gain = gain
	return nil
}

// MulticoreLink is an in-memory devices.MulticoreDevice: Send appends
// to Sent, and Deliver lets a test drive the installed receive handler
// as if a frame arrived from the peer core.
type MulticoreLink struct {
	mu      sync.Mutex
	Sent    [][]byte
	handler func(data []byte)
}

func NewMulticoreLink() *MulticoreLink { return &MulticoreLink{} }

func (l *MulticoreLink) Init() error   { return nil }
func (l *MulticoreLink) Deinit() error { return nil }
func (l *MulticoreLink) Start() error  { return nil }
func (l *MulticoreLink) Stop() error   { return nil }

func (l *MulticoreLink) Send(buf []byte) error {
	l.mu.Lock()
	l.Sent = append(l.Sent, append([]byte(nil), buf...))
	l.mu.Unlock()
	return nil
}

func (l *MulticoreLink) SetReceiveHandler(handler func(data []byte)) {
	l.mu.Lock()
	l.handler = handler
	l.mu.Unlock()
}

// Deliver invokes the installed receive handler with data, as the
// peer link's own reader goroutine would.
func (l *MulticoreLink) Deliver(data []byte) {
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()
	if h != nil {
		h(data)
	}
}
