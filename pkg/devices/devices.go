// Package devices declares the capability-set interfaces every device
// class plugs into its manager through. Where the original firmware
// used a function-pointer vtable with null slots for optional
// behavior, this port splits optional behavior into small separate
// interfaces that a manager type-asserts for, per the "Function-pointer
// vtables with null slots" re-architecture note.
package devices

import "github.com/dbehnke/dmr-nexus/pkg/fwkmsg"

// State is a device's lifecycle position. Transitions are driven only
// by the owning manager's task-init path or a low-power pre-sleep
// message.
type State int

const (
	Registered State = iota
	Initialized
	Started
	Stopped
	Deinitialized
)

// Base is the fields every device record carries regardless of class:
// a stable registry-assigned id and a human-readable name.
type Base struct {
	ID    int
	Name  string
	State State
}

// EventCallback is how a device reports an asynchronous event (e.g.
// CameraDeviceInit, RequestFrame) back to its manager. fromInterrupt
// indicates the call originates off the manager's own goroutine and
// must route through PutFromInterrupt semantics.
type EventCallback func(event int, param any, fromInterrupt bool)

// Lifecycle is the operator set every device class shares.
type Lifecycle interface {
	Init() error
	Deinit() error
	Start() error
	Stop() error
}

// InputNotifier is implemented by devices that accept framework-wide
// notifications (AFE feedback, UI state changes, etc.) regardless of
// their primary class.
type InputNotifier interface {
	InputNotify(data []byte) error
}

// PostProcessor is an optional camera-device capability: a hook the
// camera manager invokes on a freshly captured buffer before transform.
type PostProcessor interface {
	PostProcess(buf []byte, format *fwkmsg.PixelFormat) error
}

// CaptureDevice is a camera manager device.
type CaptureDevice interface {
	Lifecycle
	InitCapture(width, height int, onEvent EventCallback, userdata any) error
	Enqueue(buf []byte) error
	Dequeue() (buf []byte, format fwkmsg.PixelFormat, err error)
}

// DisplayDevice is a display manager device.
type DisplayDevice interface {
	Lifecycle
	Blit(data []byte, width, height int) (BlitStatus, error)
	Geometry() fwkmsg.FrameDescriptor
}

// BlitStatus is the outcome of a display Blit call.
type BlitStatus int

const (
	BlitSuccess BlitStatus = iota
	BlitNonBlocking
	BlitFailed
)

// InputDevice is an input manager device (button, shell, mic trigger,
// framework-query source).
type InputDevice interface {
	Lifecycle
}

// OutputKind classifies an output device for the single-UI-receiver
// constraint.
type OutputKind int

const (
	OutputUI OutputKind = iota
	OutputAudio
	OutputOther
)

// ResultSource names where an inference result handed to an output
// device's EventHandler came from.
type ResultSource int

const (
	SourceVision ResultSource = iota
	SourceVoice
	SourceLPM
)

// EventHandler is what an output device registers with the output
// manager; InferenceComplete is called for vision/voice results and
// LPM transitions.
type EventHandler interface {
	Kind() OutputKind
	InferenceComplete(devID int, source ResultSource, result []byte) (overlayChanged bool)
}

// InputNotifyHandler is an optional output-device capability invoked
// on InputNotify broadcasts.
type InputNotifyHandler interface {
	HandleInputNotify(data []byte) error
}

// DumpHandler is an optional output-device capability invoked on
// AudioDump messages.
type DumpHandler interface {
	HandleAudioDump(raw, cleaned []byte) error
}

// OverlaySurfaceProvider is an optional UI-kind EventHandler
// capability: when InferenceComplete reports an overlay change, the
// output manager type-asserts for this to get the surface descriptor
// it forwards to the camera manager.
type OverlaySurfaceProvider interface {
	OverlaySurface() *fwkmsg.FrameDescriptor
}

// FrameKind indexes an algorithm device's supported frame kinds (RGB,
// IR, ...). The concrete kind values are application-defined; the
// vision-algo manager only cares about equality and the fixed-size
// VAlgoFrameKinds bound. Aliased from fwkmsg so algorithm-device
// results and request/response messages share one type.
type FrameKind = fwkmsg.FrameKind

// VAlgoFrameKinds bounds the per-device frame-kind table.
const VAlgoFrameKinds = 4

// FrameRequirement is one entry of an algorithm device's declared
// frame needs.
type FrameRequirement struct {
	Supported bool
	AutoStart bool
	Width     int
	Height    int
	Format    fwkmsg.PixelFormat
	Rotate    fwkmsg.Rotation
}

// VisionResultKind names the kind of event a vision-algorithm device
// reports from a Run call, mirroring the firmware callback's event
// enumeration (VisionResultUpdate, VisionLedPwmControl,
// VisionCamExpControl, VisionRecordControl, RequestFrame).
type VisionResultKind int

const (
	VisionResultUpdate VisionResultKind = iota
	VisionLedPwmControl
	VisionCamExpControl
	VisionRecordControl
	VisionRequestFrame
)

// VisionEvent is one event a vision-algorithm device's Run call
// reports back to its manager. Copy mirrors the firmware callback's
// event.copy flag: when true the manager deep-copies Data before
// forwarding it, since the device may reuse its backing storage.
type VisionEvent struct {
	Kind VisionResultKind
	Data []byte
	Copy bool
}

// VisionAlgoDevice is a vision-algorithm manager device.
type VisionAlgoDevice interface {
	Lifecycle
	Frames() [VAlgoFrameKinds]FrameRequirement
	Run(frames map[FrameKind][]byte) ([]VisionEvent, error)
}

// AFEEventKind names what an AFE device reports from a Run call.
type AFEEventKind int

const (
	AFEDone AFEEventKind = iota
	AFEDump
)

// AFEEvent is one event an AFE device's Run call reports back to the
// audio-processing manager. Raw is only populated for AFEDump.
type AFEEvent struct {
	Kind    AFEEventKind
	Cleaned []byte
	Raw     []byte
}

// AFEDevice is an audio-processing manager device (acoustic front end:
// noise suppression, echo cancellation, beamforming).
type AFEDevice interface {
	Lifecycle
	InputNotifier
	Run(audio []byte) ([]AFEEvent, error)
}

// VoiceLanguage is a bitmask of active ASR languages. Undefined means
// "leave whatever is currently active unchanged". Aliased from fwkmsg
// so ASR result messages and this capability interface share one type.
type VoiceLanguage = fwkmsg.VoiceLanguage

const (
	LanguageUndefined VoiceLanguage = 0
	LanguageEnglish   VoiceLanguage = 1
	LanguageChinese   VoiceLanguage = 2
	LanguageGerman    VoiceLanguage = 4
	LanguageFrench    VoiceLanguage = 8
)

// VoiceAlgoDevice is a voice-algorithm manager device running ASR.
// ScanWakeWord checks audio against every active language's wake-word
// model, returning the language that fired (0 if none) and an
// estimated utterance length in samples. ScanCommand checks audio
// against the command model for a single active language.
type VoiceAlgoDevice interface {
	Lifecycle
	ScanWakeWord(audio []byte, languages VoiceLanguage) (detected VoiceLanguage, utteranceLen int)
	ScanCommand(audio []byte, language VoiceLanguage) (result []byte, detected bool)
	Calibrate(audio []byte) error
	SetVoiceModel(demo int, language VoiceLanguage, pushToTalk bool) error
	SetSpeakerVolume(gain float64) error
}

// MulticoreDevice hosts the single multicore bridge peer link.
// SetReceiveHandler installs the callback the device invokes - from
// its own reader goroutine, the host equivalent of the firmware's
// MsgReceive interrupt - whenever a frame arrives from the peer core.
type MulticoreDevice interface {
	Lifecycle
	Send(buf []byte) error
	SetReceiveHandler(handler func(data []byte))
}
