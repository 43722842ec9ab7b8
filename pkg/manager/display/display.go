// Package display implements the display manager: it drives display
// devices, issues pull-style frame requests to the camera manager, and
// blits the responses it receives.
package display

import (
	"fmt"
	"sync"

	"github.com/dbehnke/dmr-nexus/pkg/devices"
	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
	"github.com/dbehnke/dmr-nexus/pkg/fwktask"
	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

// MaxDevices bounds the display device registry; device ids double as
// the requester id the camera manager keys its request table by.
const MaxDevices = 4

type deviceSlot struct {
	id   int
	name string
	dev  devices.DisplayDevice
}

// Collector is the metrics surface the display manager reports
// through.
type Collector interface {
	DisplayBlit(device, status string)
}

// Manager owns the display device registry.
type Manager struct {
	bus     *fwkmsg.Bus
	kernel  *fwktask.Kernel
	log     *logger.Logger
	metrics Collector

	mu    sync.Mutex
	slots []*deviceSlot
	fps   uint64
}

// New creates a Manager. metrics may be nil.
func New(bus *fwkmsg.Bus, kernel *fwktask.Kernel, metrics Collector, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	return &Manager{bus: bus, kernel: kernel, metrics: metrics, log: log.WithComponent("display")}
}

// RegisterDevice adds a display device, returning the id (also the
// requester id the camera manager's request table uses) or an error
// if the registry is full.
func (m *Manager) RegisterDevice(name string, dev devices.DisplayDevice) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.slots) >= MaxDevices {
		return 0, fmt.Errorf("display: registry full (max %d)", MaxDevices)
	}
	id := len(m.slots)
	m.slots = append(m.slots, &deviceSlot{id: id, name: name, dev: dev})
	return id, nil
}

// Start initializes and starts every registered display device, posts
// an initial DisplayRequestFrame per device pre-populated with its
// capability geometry, and spawns the manager's receive loop.
func (m *Manager) Start() error {
	return m.kernel.StartTask(fwktask.Spec{
		ManagerID: fwkmsg.TaskDisplay,
		Name:      "display",
		OnInit:    m.onInit,
		OnMessage: m.onMessage,
	})
}

func (m *Manager) onInit(_ any) error {
	for _, slot := range m.slots {
		if err := slot.dev.Init(); err != nil {
			return fmt.Errorf("display: init %s: %w", slot.name, err)
		}
		if err := slot.dev.Start(); err != nil {
			return fmt.Errorf("display: start %s: %w", slot.name, err)
		}
		geom := slot.dev.Geometry()
		m.requestFrame(slot.id, &geom)
	}
	return nil
}

func (m *Manager) requestFrame(id int, geom *fwkmsg.FrameDescriptor) {
	msg := &fwkmsg.Message{
		ID:         fwkmsg.DisplayRequestFrame,
		OwnerFrees: true,
		Payload:    fwkmsg.Payload{DevID: id, Frame: geom, FreeAfterConsumed: geom != nil},
	}
	if err := m.bus.Put(fwkmsg.TaskCamera, msg); err != nil {
		m.log.Error("posting display request", logger.Int("device", id), logger.Error(err))
	}
}

func (m *Manager) onMessage(msg *fwkmsg.Message, _ any) {
	switch msg.ID {
	case fwkmsg.DisplayResponseFrame:
		m.handleResponse(msg)
	case fwkmsg.InputNotify:
		m.handleInputNotify(msg.Payload.Input)
	case fwkmsg.InputFrameworkGetComponents:
		m.handleFrameworkQuery(msg.Payload.Framework)
	default:
		m.log.Debug("unhandled message", logger.String("msg", fwkmsg.NameOf(msg.ID)))
	}
}

func (m *Manager) handleResponse(msg *fwkmsg.Message) {
	id := msg.Payload.DevID
	m.mu.Lock()
	var slot *deviceSlot
	for _, s := range m.slots {
		if s.id == id {
			slot = s
			break
		}
	}
	m.mu.Unlock()
	if slot == nil || msg.Payload.Frame == nil {
		m.log.Error("display response for unknown device", logger.Int("device", id))
		return
	}

	frame := msg.Payload.Frame
	status, err := slot.dev.Blit(frame.Data, frame.Width, frame.Height)
	if err != nil {
		m.log.Error("blit failed", logger.String("device", slot.name), logger.Error(err))
		return
	}

	switch status {
	case devices.BlitSuccess, devices.BlitNonBlocking:
		m.mu.Lock()
		m.fps++
		m.mu.Unlock()
		if m.metrics != nil {
			statusName := "success"
			if status == devices.BlitNonBlocking {
				statusName = "non_blocking"
			}
			m.metrics.DisplayBlit(slot.name, statusName)
		}
		// Subsequent requests need only ID/DevID - the camera
		// manager retains the full descriptor from the initial post.
		m.requestFrame(id, nil)
	case devices.BlitFailed:
		m.log.Error("blit reported failure status", logger.String("device", slot.name))
	}
}

func (m *Manager) handleInputNotify(input *fwkmsg.InputDescriptor) {
	if input == nil {
		return
	}
	m.mu.Lock()
	slots := append([]*deviceSlot(nil), m.slots...)
	m.mu.Unlock()
	for _, s := range slots {
		if notifier, ok := s.dev.(devices.InputNotifier); ok {
			if err := notifier.InputNotify(input.Data); err != nil {
				m.log.Error("device InputNotify failed", logger.String("device", s.name), logger.Error(err))
			}
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
		req.Respond(fwkmsg.TaskComponent{ManagerID: fwkmsg.TaskDisplay, DeviceID: s.id, DeviceName: s.name}, false)
	}
	req.Respond(fwkmsg.TaskComponent{}, true)
}

// FPS returns the cumulative blit counter, for diagnostics and tests.
func (m *Manager) FPS() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps
}
