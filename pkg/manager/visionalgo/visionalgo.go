// Package visionalgo implements the vision-algorithm manager: it
// registers algorithm devices that each require one or more camera
// frames of declared geometry, gates execution until every required
// frame has arrived, and repackages device results as messages bound
// for the output manager, the camera manager, or back to itself.
package visionalgo

import (
	"fmt"
	"sync"

	"github.com/dbehnke/dmr-nexus/pkg/devices"
	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
	"github.com/dbehnke/dmr-nexus/pkg/fwktask"
	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

// MaxDevices bounds the algorithm device registry.
const MaxDevices = 4

type deviceSlot struct {
	id        int
	name      string
	dev       devices.VisionAlgoDevice
	frames    [devices.VAlgoFrameKinds]devices.FrameRequirement
	ready     [devices.VAlgoFrameKinds]bool
	collected [devices.VAlgoFrameKinds][]byte
}

// Manager owns the vision-algorithm device registry and the per-
// device/per-kind frame-ready gate.
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
	return &Manager{bus: bus, kernel: kernel, log: log.WithComponent("visionalgo")}
}

// RegisterDevice adds an algorithm device, snapshotting its declared
// frame requirements.
func (m *Manager) RegisterDevice(name string, dev devices.VisionAlgoDevice) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.slots) >= MaxDevices {
		return 0, fmt.Errorf("visionalgo: registry full (max %d)", MaxDevices)
	}
	id := len(m.slots)
	m.slots = append(m.slots, &deviceSlot{id: id, name: name, dev: dev, frames: dev.Frames()})
	return id, nil
}

// Start initializes every registered device, posts an initial
// VAlgoRequestFrame for each supported-and-autostart frame kind, and
// spawns the manager's receive loop.
func (m *Manager) Start() error {
	return m.kernel.StartTask(fwktask.Spec{
		ManagerID: fwkmsg.TaskVisionAlgo,
		Name:      "vision_algo",
		OnInit:    m.onInit,
		OnMessage: m.onMessage,
	})
}

func (m *Manager) onInit(_ any) error {
	for _, slot := range m.slots {
		if err := slot.dev.Init(); err != nil {
			m.log.Error("algorithm device init failed", logger.String("device", slot.name), logger.Error(err))
			continue
		}
		if err := slot.dev.Start(); err != nil {
			m.log.Error("algorithm device start failed", logger.String("device", slot.name), logger.Error(err))
			continue
		}
		for k, req := range slot.frames {
			if req.Supported && req.AutoStart {
				m.requestFrame(slot, devices.FrameKind(k), true)
			}
		}
	}
	return nil
}

func (m *Manager) requestFrame(slot *deviceSlot, kind devices.FrameKind, withGeometry bool) {
	var geom *fwkmsg.FrameDescriptor
	if withGeometry {
		req := slot.frames[kind]
		geom = &fwkmsg.FrameDescriptor{
			DevID: slot.id, Width: req.Width, Height: req.Height,
			Active:    fwkmsg.Rect{Left: 0, Top: 0, Right: req.Width - 1, Bottom: req.Height - 1},
			SrcFormat: req.Format, DstFormat: req.Format, Rotate: req.Rotate,
		}
	}
	msg := &fwkmsg.Message{
		ID:         fwkmsg.VAlgoRequestFrame,
		OwnerFrees: true,
		Payload:    fwkmsg.Payload{DevID: slot.id, Kind: kind, Frame: geom, FreeAfterConsumed: geom != nil},
	}
	if err := m.bus.Put(fwkmsg.TaskCamera, msg); err != nil {
		m.log.Error("posting frame request", logger.String("device", slot.name), logger.Error(err))
	}
}

func (m *Manager) onMessage(msg *fwkmsg.Message, _ any) {
	switch msg.ID {
	case fwkmsg.VAlgoResponseFrame:
		m.handleResponse(msg)
	case fwkmsg.InputFrameworkGetComponents:
		m.handleFrameworkQuery(msg.Payload.Framework)
	default:
		m.log.Debug("unhandled message", logger.String("msg", fwkmsg.NameOf(msg.ID)))
	}
}

func (m *Manager) handleResponse(msg *fwkmsg.Message) {
	id, kind := msg.Payload.DevID, msg.Payload.Kind
	m.mu.Lock()
	var slot *deviceSlot
	for _, s := range m.slots {
		if s.id == id {
			slot = s
			break
		}
	}
	if slot == nil || int(kind) < 0 || int(kind) >= devices.VAlgoFrameKinds {
		m.mu.Unlock()
		m.log.Error("frame response for unknown device/kind", logger.Int("device", id))
		return
	}
	if msg.Payload.Frame != nil {
		slot.collected[kind] = msg.Payload.Frame.Data
	}
	slot.ready[kind] = true

	allReady := true
	for k, req := range slot.frames {
		if req.Supported && !slot.ready[k] {
			allReady = false
			break
		}
	}
	if !allReady {
		m.mu.Unlock()
		return
	}

	frames := make(map[devices.FrameKind][]byte, devices.VAlgoFrameKinds)
	for k, req := range slot.frames {
		if req.Supported {
			frames[devices.FrameKind(k)] = slot.collected[k]
		}
	}
	for k := range slot.ready {
		slot.ready[k] = false
		slot.collected[k] = nil
	}
	m.mu.Unlock()

	events, err := slot.dev.Run(frames)
	if err != nil {
		m.log.Error("algorithm run failed", logger.String("device", slot.name), logger.Error(err))
		return
	}
	m.dispatchEvents(slot, events)

	for k, req := range slot.frames {
		if req.Supported {
			m.requestFrame(slot, devices.FrameKind(k), false)
		}
	}
}

func (m *Manager) dispatchEvents(slot *deviceSlot, events []devices.VisionEvent) {
	for _, ev := range events {
		data := ev.Data
		if ev.Copy {
			data = append([]byte(nil), ev.Data...)
		}
		switch ev.Kind {
		case devices.VisionResultUpdate:
			m.post(fwkmsg.TaskOutput, fwkmsg.VAlgoResultUpdate, slot.id, data)
		case devices.VisionLedPwmControl:
			m.post(fwkmsg.TaskCamera, fwkmsg.VisionLedPwmControl, slot.id, data)
		case devices.VisionCamExpControl:
			m.post(fwkmsg.TaskCamera, fwkmsg.VisionCamExpControl, slot.id, data)
		case devices.VisionRecordControl:
			m.post(fwkmsg.TaskCamera, fwkmsg.VisionRecordControl, slot.id, data)
		case devices.VisionRequestFrame:
			m.post(fwkmsg.TaskCamera, fwkmsg.VisionRequestFrame, slot.id, data)
		default:
			m.log.Error("unknown vision event kind", logger.Int("kind", int(ev.Kind)))
		}
	}
}

func (m *Manager) post(target fwkmsg.ManagerID, id fwkmsg.ID, devID int, data []byte) {
	msg := &fwkmsg.Message{ID: id, OwnerFrees: true, Payload: fwkmsg.Payload{DevID: devID, Data: data, FreeAfterConsumed: true}}
	if err := m.bus.Put(target, msg); err != nil {
		m.log.Error("posting algorithm result", logger.String("target", target.String()), logger.Error(err))
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
		req.Respond(fwkmsg.TaskComponent{ManagerID: fwkmsg.TaskVisionAlgo, DeviceID: s.id, DeviceName: s.name}, false)
	}
	req.Respond(fwkmsg.TaskComponent{}, true)
}
