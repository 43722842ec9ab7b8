// Package audio implements the audio-processing manager: it owns the
// acoustic front-end (AFE) devices, fans raw microphone blocks out to
// every registered device on every capture interrupt, and forwards
// cleaned audio to the voice-algorithm manager.
package audio

import (
	"fmt"
	"sync"

	"github.com/dbehnke/dmr-nexus/pkg/devices"
	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
	"github.com/dbehnke/dmr-nexus/pkg/fwktask"
	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

// MaxDevices bounds the AFE device registry.
const MaxDevices = 4

type deviceSlot struct {
	id   int
	name string
	dev  devices.AFEDevice
	// doneMsg is reused across every Done event this device reports,
	// mirroring the firmware's pre-allocated request-message slot: the
	// cleaned-audio handoff to voice-algo is frequent enough that a new
	// heap allocation per block would be wasteful, unlike the dump path
	// which is rare and can afford one.
	doneMsg *fwkmsg.Message
}

// Manager owns the AFE device registry.
type Manager struct {
	bus    *fwkmsg.Bus
	kernel *fwktask.Kernel
	log    *logger.Logger

	mu    sync.Mutex
	slots []*deviceSlot
}

// New creates a Manager.
func New(bus *fwkmsg.Bus, kernel *fwktask.Kernel, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	return &Manager{bus: bus, kernel: kernel, log: log.WithComponent("audio")}
}

// RegisterDevice adds an AFE device.
func (m *Manager) RegisterDevice(name string, dev devices.AFEDevice) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.slots) >= MaxDevices {
		return 0, fmt.Errorf("audio: registry full (max %d)", MaxDevices)
	}
	id := len(m.slots)
	m.slots = append(m.slots, &deviceSlot{
		id: id, name: name, dev: dev,
		doneMsg: &fwkmsg.Message{ID: fwkmsg.VAlgoASRInputProcess, Payload: fwkmsg.Payload{DevID: id}},
	})
	return id, nil
}

// Start initializes every registered AFE device and spawns the
// manager's receive loop.
func (m *Manager) Start() error {
	return m.kernel.StartTask(fwktask.Spec{
		ManagerID: fwkmsg.TaskAudio,
		Name:      "audio",
		OnInit:    m.onInit,
		OnMessage: m.onMessage,
	})
}

func (m *Manager) onInit(_ any) error {
	for _, slot := range m.slots {
		if err := slot.dev.Init(); err != nil {
			return fmt.Errorf("audio: init %s: %w", slot.name, err)
		}
		if err := slot.dev.Start(); err != nil {
			return fmt.Errorf("audio: start %s: %w", slot.name, err)
		}
	}
	return nil
}

func (m *Manager) onMessage(msg *fwkmsg.Message, _ any) {
	switch msg.ID {
	case fwkmsg.InputAudioReceived:
		m.handleAudioReceived(msg.Payload.Data)
	case fwkmsg.InputNotify, fwkmsg.AsrToAfeFeedback, fwkmsg.SpeakerToAfeFeedback:
		m.fanOutNotify(msg.Payload.Data)
	case fwkmsg.InputFrameworkGetComponents:
		m.handleFrameworkQuery(msg.Payload.Framework)
	default:
		m.log.Debug("unhandled message", logger.String("msg", fwkmsg.NameOf(msg.ID)))
	}
}

// handleAudioReceived invokes every registered AFE device on every
// audio-received event, not only the one whose capture interrupt
// fired - this loop mirrors that breadth deliberately.
func (m *Manager) handleAudioReceived(audio []byte) {
	m.mu.Lock()
	slots := append([]*deviceSlot(nil), m.slots...)
	m.mu.Unlock()

	for _, slot := range slots {
		events, err := slot.dev.Run(audio)
		if err != nil {
			m.log.Error("AFE run failed", logger.String("device", slot.name), logger.Error(err))
			continue
		}
		for _, ev := range events {
			switch ev.Kind {
			case devices.AFEDone:
				m.postDone(slot, ev.Cleaned)
			case devices.AFEDump:
				m.postDump(slot, ev.Raw, ev.Cleaned)
			default:
				m.log.Error("unknown AFE event kind", logger.Int("kind", int(ev.Kind)))
			}
		}
	}
}

func (m *Manager) postDone(slot *deviceSlot, cleaned []byte) {
	slot.doneMsg.Payload.Data = cleaned
	if err := m.bus.Put(fwkmsg.TaskVoiceAlgo, slot.doneMsg); err != nil {
		m.log.Error("posting cleaned audio", logger.String("device", slot.name), logger.Error(err))
	}
}

func (m *Manager) postDump(slot *deviceSlot, raw, cleaned []byte) {
	dump := &fwkmsg.Message{
		ID:         fwkmsg.AudioDump,
		OwnerFrees: true,
		Payload: fwkmsg.Payload{
			DevID:             slot.id,
			Dump:              &fwkmsg.AudioDumpData{Raw: raw, Cleaned: cleaned},
			FreeAfterConsumed: true,
		},
	}
	if err := m.bus.Put(fwkmsg.TaskOutput, dump); err != nil {
		m.log.Error("posting audio dump", logger.String("device", slot.name), logger.Error(err))
	}
}

func (m *Manager) fanOutNotify(data []byte) {
	m.mu.Lock()
	slots := append([]*deviceSlot(nil), m.slots...)
	m.mu.Unlock()
	for _, slot := range slots {
		if err := slot.dev.InputNotify(data); err != nil {
			m.log.Error("device InputNotify failed", logger.String("device", slot.name), logger.Error(err))
		}
	}
}

func (m *Manager) handleFrameworkQuery(req *fwkmsg.FrameworkRequest) {
	if req == nil || req.Respond == nil {
		return
	}
	m.mu.Lock()
	slots := append([]*deviceSlot(nil), m.slots...)
	m.mu.Unlock()
	for _, s := range slots {
		req.Respond(fwkmsg.TaskComponent{ManagerID: fwkmsg.TaskAudio, DeviceID: s.id, DeviceName: s.name}, false)
	}
	req.Respond(fwkmsg.TaskComponent{}, true)
}
