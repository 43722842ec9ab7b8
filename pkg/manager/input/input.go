// Package input implements the input manager: it registers input
// devices (buttons, shells, mic-trigger sources, framework-query
// sources) and fans their
// events out to subscribed managers over the message substrate.
//
// Devices never hold a reference to the bus directly. Registration
// hands back a small Handle - the capability-storm mitigation from the
// re-architecture notes: a driver can only enqueue pre-typed events
// through the handle it was given, not call arbitrary framework code.
package input

import (
	"fmt"
	"sync"

	"github.com/dbehnke/dmr-nexus/pkg/devices"
	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
	"github.com/dbehnke/dmr-nexus/pkg/fwktask"
	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

// MaxDevices bounds the input device registry.
const MaxDevices = 8

// Device is the input-manager device capability set.
type Device interface {
	devices.Lifecycle
	devices.InputNotifier
}

type slot struct {
	used bool
	id   int
	name string
	dev  Device
}

// Manager owns the input device registry and posts Recv/AudioRecv/
// FrameworkRecv events to their subscribed destinations.
type Manager struct {
	bus    *fwkmsg.Bus
	kernel *fwktask.Kernel
	log    *logger.Logger

	mu      sync.RWMutex
	slots   [MaxDevices]slot
	dropped int
}

// New creates a Manager posting through bus.
func New(bus *fwkmsg.Bus, kernel *fwktask.Kernel, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	return &Manager{bus: bus, kernel: kernel, log: log.WithComponent("input")}
}

// Handle is the opaque capability a registered device uses to post
// events. It is the only way a device can reach the rest of the
// framework.
type Handle struct {
	m  *Manager
	id int
}

// RegisterDevice assigns dev the first free slot and returns its
// handle. Returns an error without mutating the registry if full.
func (m *Manager) RegisterDevice(name string, dev Device) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if !m.slots[i].used {
			m.slots[i] = slot{used: true, id: i, name: name, dev: dev}
			return &Handle{m: m, id: i}, nil
		}
	}
	return nil, fmt.Errorf("input: registry full (max %d)", MaxDevices)
}

// Start registers the manager's own mailbox with the task kernel. The
// input manager has no messages routed to itself in ordinary
// operation (ReceiverMask bit TaskInput is legal but unusual); any
// that arrive are logged and dropped since they carry no further
// action for this manager.
func (m *Manager) Start() error {
	return m.kernel.StartTask(fwktask.Spec{
		ManagerID: fwkmsg.TaskInput,
		Name:      "input",
		OnMessage: func(msg *fwkmsg.Message, _ any) {
			m.log.Debug("unexpected message on input mailbox", logger.String("msg", fwkmsg.NameOf(msg.ID)))
		},
	})
}

// PostRecv fans out data to every manager set in mask. When copy is
// true each recipient gets its own copy; otherwise all recipients
// share the same backing array and the single consumer is responsible
// for eventually letting it be collected. Receiver bits naming an
// unregistered manager are silently skipped.
func (h *Handle) PostRecv(mask uint32, data []byte, copy bool) {
	for id := fwkmsg.ManagerID(0); id < fwkmsg.TaskCount; id++ {
		if mask&(1<<uint(id)) == 0 {
			continue
		}
		if !h.m.bus.Registered(id) {
			continue
		}
		payload := data
		if copy {
			payload = append([]byte(nil), data...)
		}
		msg := &fwkmsg.Message{
			ID:         fwkmsg.InputReceive,
			OwnerFrees: true,
			Payload:    fwkmsg.Payload{DevID: h.id, Input: &fwkmsg.InputDescriptor{ReceiverMask: mask, Data: payload, Copy: copy}, FreeAfterConsumed: true},
		}
		if err := h.m.bus.Put(id, msg); err != nil {
			h.m.mu.Lock()
			h.m.dropped++
			h.m.mu.Unlock()
			h.m.log.Error("posting input recv", logger.String("target", id.String()), logger.Error(err))
		}
	}
}

// PostAudioRecv routes a raw audio capture to the audio-processing
// manager only.
func (h *Handle) PostAudioRecv(audio []byte) {
	msg := &fwkmsg.Message{
		ID:         fwkmsg.InputAudioReceived,
		OwnerFrees: true,
		Payload:    fwkmsg.Payload{DevID: h.id, Data: audio, FreeAfterConsumed: true},
	}
	if err := h.m.bus.Put(fwkmsg.TaskAudio, msg); err != nil {
		h.m.mu.Lock()
		h.m.dropped++
		h.m.mu.Unlock()
		h.m.log.Error("posting audio recv", logger.Error(err))
	}
}

// PostFrameworkRecv dispatches a self-describing framework query to
// target, or answers GetManagerInfo locally by enumerating started
// tasks.
func (h *Handle) PostFrameworkRecv(target fwkmsg.ManagerID, req fwkmsg.FrameworkRequest) {
	msg := &fwkmsg.Message{
		ID:         fwkmsg.InputFrameworkGetComponents,
		OwnerFrees: true,
		Payload:    fwkmsg.Payload{DevID: h.id, Framework: &req, FreeAfterConsumed: true},
	}
	if err := h.m.bus.Put(target, msg); err != nil {
		h.m.log.Error("posting framework query", logger.String("target", target.String()), logger.Error(err))
	}
}

// GetManagerInfo answers a FrameworkGetManagerInfo query locally by
// enumerating every task the kernel has started.
func (m *Manager) GetManagerInfo(respond func(component fwkmsg.TaskComponent, isFinal bool)) {
	for id := fwkmsg.ManagerID(0); id < fwkmsg.TaskCount; id++ {
		name, _, ok := m.kernel.TaskInfo(id)
		if !ok {
			continue
		}
		respond(fwkmsg.TaskComponent{ManagerID: id, DeviceID: -1, DeviceName: name}, false)
	}
	respond(fwkmsg.TaskComponent{}, true)
}

// DroppedCount reports how many posts have failed (full/unregistered
// mailbox) since startup, for diagnostics and tests.
func (m *Manager) DroppedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropped
}
