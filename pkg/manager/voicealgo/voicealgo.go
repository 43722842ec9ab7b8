// Package voicealgo implements the voice-algorithm manager: a wake-word
// / voice-command ASR state machine driven by cleaned audio blocks from
// the audio-processing manager, with back-pressure feedback to the AFE
// and an optional self-wake-up guard against the device's own speaker.
package voicealgo

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/dbehnke/dmr-nexus/pkg/devices"
	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
	"github.com/dbehnke/dmr-nexus/pkg/fwktask"
	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

// State is the ASR state machine's current phase.
type State int

const (
	Stopped State = iota
	WakeWord
	VoiceCommand
)

// DefaultCommandTimeout is how long the manager waits for a voice
// command before giving up and reporting Timeout. Per-instance timeout
// may be overridden but must never go below MinCommandTimeout.
const (
	DefaultCommandTimeout = 60 * time.Second
	MinCommandTimeout     = 4 * time.Second
	selfWakeConfirmWindow = 20 * 30 * time.Millisecond
)

// ResultStatus names the outcome reported in a VAlgoASRResultUpdate.
type ResultStatus int

const (
	StatusWakeWordDetected ResultStatus = iota
	StatusCommandDetected
	StatusTimeout
)

// Manager runs the ASR state machine against one voice-algorithm
// device.
type Manager struct {
	bus    *fwkmsg.Bus
	kernel *fwktask.Kernel
	log    *logger.Logger

	mu               sync.Mutex
	dev              devices.VoiceAlgoDevice
	state            State
	activeLanguages  devices.VoiceLanguage
	activeLanguage   devices.VoiceLanguage
	demo             int
	pushToTalk       bool
	commandTimeout   time.Duration
	timer            *time.Timer
	selfWakeEnabled  bool
	speakerStreaming bool
	lastSpeakerWake  time.Time
}

// New creates a Manager. commandTimeout of 0 uses DefaultCommandTimeout;
// a nonzero value below MinCommandTimeout is clamped up to it.
func New(bus *fwkmsg.Bus, kernel *fwktask.Kernel, dev devices.VoiceAlgoDevice, commandTimeout time.Duration, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	if commandTimeout <= 0 {
		commandTimeout = DefaultCommandTimeout
	} else if commandTimeout < MinCommandTimeout {
		commandTimeout = MinCommandTimeout
	}
	return &Manager{
		bus: bus, kernel: kernel, dev: dev, log: log.WithComponent("voice_algo"),
		state: Stopped, activeLanguages: devices.LanguageEnglish, commandTimeout: commandTimeout,
	}
}

// EnableSelfWakeProtection turns on the parallel speaker-signal
// wake-word pass used to reject self-triggered detections.
func (m *Manager) EnableSelfWakeProtection(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selfWakeEnabled = enabled
}

// Start initializes the device and transitions into WakeWord.
func (m *Manager) Start() error {
	return m.kernel.StartTask(fwktask.Spec{
		ManagerID: fwkmsg.TaskVoiceAlgo,
		Name:      "voice_algo",
		OnInit:    m.onInit,
		OnMessage: m.onMessage,
	})
}

func (m *Manager) onInit(_ any) error {
	if err := m.dev.Init(); err != nil {
		return err
	}
	if err := m.dev.Start(); err != nil {
		return err
	}
	m.mu.Lock()
	m.state = WakeWord
	m.mu.Unlock()
	return nil
}

func (m *Manager) onMessage(msg *fwkmsg.Message, _ any) {
	switch msg.ID {
	case fwkmsg.VAlgoASRInputProcess:
		m.handleAudio(msg.Payload.Data)
	case fwkmsg.StopVoiceCommand:
		m.stopVoiceCommand()
	case fwkmsg.SpeakerToAfeFeedback:
		m.handleSpeakerAudio(msg.Payload.Data)
	case fwkmsg.InputFrameworkGetComponents:
		m.handleFrameworkQuery(msg.Payload.Framework)
	default:
		m.log.Debug("unhandled message", logger.String("msg", fwkmsg.NameOf(msg.ID)))
	}
}

func (m *Manager) handleAudio(audio []byte) {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()

	switch state {
	case Stopped:
		if err := m.dev.Calibrate(audio); err != nil {
			m.log.Error("AFE self-calibration failed", logger.Error(err))
		}
	case WakeWord:
		m.scanWakeWord(audio)
	case VoiceCommand:
		m.scanCommand(audio)
	}
}

func (m *Manager) scanWakeWord(audio []byte) {
	m.mu.Lock()
	languages := m.activeLanguages
	m.mu.Unlock()

	detected, uttLen := m.dev.ScanWakeWord(audio, languages)
	if detected == devices.LanguageUndefined {
		return
	}

	m.mu.Lock()
	if m.selfWakeEnabled && time.Since(m.lastSpeakerWake) < selfWakeConfirmWindow {
		m.mu.Unlock()
		m.log.Debug("discarding self-triggered wake word", logger.Int("language", int(detected)))
		return
	}
	m.state = VoiceCommand
	m.activeLanguage = detected
	m.armTimeout()
	m.mu.Unlock()

	m.postResult(StatusWakeWordDetected, detected, nil)
	m.postAfeFeedback(fwkmsg.AsrToAfeFeedback, uttLen)
}

func (m *Manager) scanCommand(audio []byte) {
	m.mu.Lock()
	language := m.activeLanguage
	m.mu.Unlock()

	result, detected := m.dev.ScanCommand(audio, language)
	if !detected {
		return
	}

	m.mu.Lock()
	m.disarmTimeout()
	m.state = WakeWord
	m.mu.Unlock()

	m.postResult(StatusCommandDetected, language, result)
}

// armTimeout must be called with m.mu held.
func (m *Manager) armTimeout() {
	m.disarmTimeout()
	m.timer = time.AfterFunc(m.commandTimeout, m.onTimeout)
}

// disarmTimeout must be called with m.mu held.
func (m *Manager) disarmTimeout() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) onTimeout() {
	m.mu.Lock()
	if m.state != VoiceCommand {
		m.mu.Unlock()
		return
	}
	language := m.activeLanguage
	m.state = WakeWord
	m.timer = nil
	m.mu.Unlock()

	m.postResult(StatusTimeout, language, nil)
}

func (m *Manager) stopVoiceCommand() {
	m.mu.Lock()
	m.disarmTimeout()
	m.state = WakeWord
	m.mu.Unlock()
}

// handleSpeakerAudio runs the self-wake-up guard's parallel wake-word
// pass against the device's own speaker output.
func (m *Manager) handleSpeakerAudio(audio []byte) {
	m.mu.Lock()
	enabled := m.selfWakeEnabled
	streaming := m.speakerStreaming
	languages := m.activeLanguages
	m.mu.Unlock()
	if !enabled || !streaming {
		return
	}
	if detected, _ := m.dev.ScanWakeWord(audio, languages); detected != devices.LanguageUndefined {
		m.mu.Lock()
		m.lastSpeakerWake = time.Now()
		m.mu.Unlock()
	}
}

func (m *Manager) postResult(status ResultStatus, language devices.VoiceLanguage, result []byte) {
	msg := &fwkmsg.Message{
		ID:         fwkmsg.VAlgoASRResultUpdate,
		OwnerFrees: true,
		Payload:    fwkmsg.Payload{Status: int(status), Language: language, Data: result, FreeAfterConsumed: true},
	}
	if err := m.bus.Put(fwkmsg.TaskOutput, msg); err != nil {
		m.log.Error("posting ASR result", logger.Error(err))
	}
}

func (m *Manager) postAfeFeedback(id fwkmsg.ID, utteranceLen int) {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, uint32(utteranceLen))
	msg := &fwkmsg.Message{ID: id, OwnerFrees: true, Payload: fwkmsg.Payload{Data: data, FreeAfterConsumed: true}}
	if err := m.bus.Put(fwkmsg.TaskAudio, msg); err != nil {
		m.log.Error("posting AFE feedback", logger.Error(err))
	}
}

// SetVoiceModel reinitializes the ASR engine when language differs
// from what's currently active; LanguageUndefined keeps it unchanged.
func (m *Manager) SetVoiceModel(demo int, language devices.VoiceLanguage, pushToTalk bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if language != devices.LanguageUndefined && language == m.activeLanguages && demo == m.demo && pushToTalk == m.pushToTalk {
		return nil
	}
	effective := language
	if effective == devices.LanguageUndefined {
		effective = m.activeLanguages
	}
	if err := m.dev.SetVoiceModel(demo, effective, pushToTalk); err != nil {
		return err
	}
	m.activeLanguages = effective
	m.demo = demo
	m.pushToTalk = pushToTalk
	return nil
}

// SetSpeakerVolume computes the AFE gain for a 0..100 volume level and
// forwards it to the device. gain = -0.0018*v'^3 + 0.028*v'^2 with
// v' = v/10 in the 0..10 domain.
func (m *Manager) SetSpeakerVolume(v int) error {
	vPrime := float64(v) / 10.0
	gain := -0.0018*vPrime*vPrime*vPrime + 0.028*vPrime*vPrime
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dev.SetSpeakerVolume(gain)
}

// SetSpeakerStreaming records whether the speaker is currently
// emitting audio, gating the self-wake-up guard's parallel pass.
func (m *Manager) SetSpeakerStreaming(streaming bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speakerStreaming = streaming
}

// CurrentState returns the ASR state machine's phase, for diagnostics
// and tests.
func (m *Manager) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) handleFrameworkQuery(req *fwkmsg.FrameworkRequest) {
	if req == nil || req.Respond == nil {
		return
	}
	req.Respond(fwkmsg.TaskComponent{ManagerID: fwkmsg.TaskVoiceAlgo, DeviceID: 0, DeviceName: "voice_algo"}, true)
}
