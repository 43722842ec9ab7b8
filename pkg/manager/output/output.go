// Package output implements the output manager: it fans inference
// results, input notifications, and audio dumps out to a chained list
// of registered event handlers, enforces the single-UI-receiver
// constraint, and latches sleep to drop results until a restart.
package output

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/dbehnke/dmr-nexus/pkg/devices"
	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
	"github.com/dbehnke/dmr-nexus/pkg/fwktask"
	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

type deviceEntry struct {
	id      int
	name    string
	kind    devices.OutputKind
	handler devices.EventHandler
}

// Manager owns the output device/handler registry.
type Manager struct {
	bus    *fwkmsg.Bus
	kernel *fwktask.Kernel
	log    *logger.Logger

	mu       sync.Mutex
	handlers *list.List // of *deviceEntry
	hasUI    bool
	sleeping bool
	nextID   int
}

// New creates a Manager.
func New(bus *fwkmsg.Bus, kernel *fwktask.Kernel, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	return &Manager{bus: bus, kernel: kernel, log: log.WithComponent("output"), handlers: list.New()}
}

// RegisterEventHandler chains handler into the output list. A second
// UI-kind handler is rejected.
func (m *Manager) RegisterEventHandler(name string, handler devices.EventHandler) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if handler.Kind() == devices.OutputUI && m.hasUI {
		return 0, fmt.Errorf("output: a UI event handler is already registered")
	}
	id := m.nextID
	m.nextID++
	m.handlers.PushBack(&deviceEntry{id: id, name: name, kind: handler.Kind(), handler: handler})
	if handler.Kind() == devices.OutputUI {
		m.hasUI = true
	}
	return id, nil
}

// Start spawns the manager's receive loop. Output handlers have no
// lifecycle of their own beyond registration.
func (m *Manager) Start() error {
	return m.kernel.StartTask(fwktask.Spec{
		ManagerID: fwkmsg.TaskOutput,
		Name:      "output",
		OnMessage: m.onMessage,
	})
}

func (m *Manager) onMessage(msg *fwkmsg.Message, _ any) {
	switch msg.ID {
	case fwkmsg.VAlgoResultUpdate:
		m.dispatchInference(msg.Payload.DevID, devices.SourceVision, msg.Payload.Data)
	case fwkmsg.VAlgoASRResultUpdate:
		m.dispatchInference(msg.Payload.DevID, devices.SourceVoice, msg.Payload.Data)
	case fwkmsg.LpmPreEnterSleep:
		m.dispatchInference(msg.Payload.DevID, devices.SourceLPM, msg.Payload.Data)
		m.mu.Lock()
		m.sleeping = true
		m.mu.Unlock()
	case fwkmsg.InputNotify:
		m.dispatchInputNotify(msg.Payload.Data)
	case fwkmsg.AudioDump:
		m.dispatchAudioDump(msg.Payload.Dump)
	case fwkmsg.InputFrameworkGetComponents:
		m.handleFrameworkQuery(msg.Payload.Framework)
	default:
		m.log.Debug("unhandled message", logger.String("msg", fwkmsg.NameOf(msg.ID)))
	}
}

// dispatchInference walks the handler list and invokes InferenceComplete
// on each; a UI handler reporting an overlay change posts a
// DispatchOverlay to the camera manager. Once latched asleep, results
// are dropped - the firmware source never clears this on wake, and
// this port preserves that (only a manager restart clears it).
func (m *Manager) dispatchInference(devID int, source devices.ResultSource, result []byte) {
	m.mu.Lock()
	if m.sleeping {
		m.mu.Unlock()
		return
	}
	entries := m.snapshot()
	m.mu.Unlock()

	for _, e := range entries {
		changed := e.handler.InferenceComplete(devID, source, result)
		if changed && e.kind == devices.OutputUI {
			m.postOverlayChanged(e)
		}
	}
}

func (m *Manager) postOverlayChanged(e *deviceEntry) {
	var surface *fwkmsg.FrameDescriptor
	if provider, ok := e.handler.(devices.OverlaySurfaceProvider); ok {
		surface = provider.OverlaySurface()
	}
	msg := &fwkmsg.Message{
		ID:         fwkmsg.DispatchOverlay,
		OwnerFrees: true,
		Payload:    fwkmsg.Payload{DevID: e.id, Overlay: &fwkmsg.OverlayRequest{Surface: surface, Show: true}},
	}
	if err := m.bus.Put(fwkmsg.TaskCamera, msg); err != nil {
		m.log.Error("posting overlay dispatch", logger.Error(err))
	}
}

func (m *Manager) dispatchInputNotify(data []byte) {
	m.mu.Lock()
	entries := m.snapshot()
	m.mu.Unlock()
	for _, e := range entries {
		if handler, ok := e.handler.(devices.InputNotifyHandler); ok {
			if err := handler.HandleInputNotify(data); err != nil {
				m.log.Error("handler InputNotify failed", logger.String("handler", e.name), logger.Error(err))
			}
		}
	}
}

func (m *Manager) dispatchAudioDump(dump *fwkmsg.AudioDumpData) {
	if dump == nil {
		return
	}
	m.mu.Lock()
	entries := m.snapshot()
	m.mu.Unlock()
	for _, e := range entries {
		if handler, ok := e.handler.(devices.DumpHandler); ok {
			if err := handler.HandleAudioDump(dump.Raw, dump.Cleaned); err != nil {
				m.log.Error("handler audio dump failed", logger.String("handler", e.name), logger.Error(err))
			}
		}
	}
}

// snapshot must be called with m.mu held; it copies the handler list
// so dispatch can run without holding the lock across handler calls.
func (m *Manager) snapshot() []*deviceEntry {
	entries := make([]*deviceEntry, 0, m.handlers.Len())
	for e := m.handlers.Front(); e != nil; e = e.Next() {
		entries = append(entries, e.Value.(*deviceEntry))
	}
	return entries
}

func (m *Manager) handleFrameworkQuery(req *fwkmsg.FrameworkRequest) {
	if req == nil || req.Respond == nil {
		return
	}
	m.mu.Lock()
	entries := m.snapshot()
	m.mu.Unlock()
	for _, e := range entries {
		req.Respond(fwkmsg.TaskComponent{ManagerID: fwkmsg.TaskOutput, DeviceID: e.id, DeviceName: e.name}, false)
	}
	req.Respond(fwkmsg.TaskComponent{}, true)
}
