// Package camera implements the camera manager: the hardest-working
// subsystem in the framework. It drives capture devices through their
// init/start lifecycle, services pull-style frame requests from the
// display and vision-algorithm managers by matching captured pixel
// format against each pending request, and performs the rotate/flip/
// scale transform through the graphics package before posting a
// response; pixel formats are matched, not converted.
package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dbehnke/dmr-nexus/pkg/devices"
	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
	"github.com/dbehnke/dmr-nexus/pkg/fwktask"
	"github.com/dbehnke/dmr-nexus/pkg/graphics"
	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

// Bounds on the request tables, matching the typical N=2..4 the data
// model calls for.
const (
	MaxCameraDevices = 4
	MaxDisplayDevices = 4
	MaxVAlgoDevices   = 4
)

// Event codes a capture device reports through its EventCallback.
const (
	EventCameraDeviceInit = iota
	EventCameraDequeue
)

// initTimeout bounds how long task-init waits for a camera device's
// asynchronous init-done callback before giving up and aborting
// manager start-up (the camera init-failure policy from the error
// taxonomy).
const initTimeout = 5 * time.Second

type cameraSlot struct {
	id       int
	name     string
	dev      devices.CaptureDevice
	geometry fwkmsg.FrameDescriptor // static declared capture geometry (width/height/pitch/rotate)
	initDone chan struct{}
}

// requestSlot tracks one requester's outstanding ask. geometry is
// retained across requests once first supplied: a requester's first
// post carries the full destination descriptor (including its stable
// framebuffer pointer); subsequent posts may carry only an ID,
// relying on the camera manager to remember the rest.
type requestSlot struct {
	pending     bool
	hasGeometry bool
	requesterID int
	kind        fwkmsg.FrameKind
	geometry    fwkmsg.FrameDescriptor
}

// Collector is the subset of the metrics collector the camera manager
// reports through; satisfied by *metrics.Collector or a test double.
type Collector interface {
	FrameCaptured(device string)
	FrameDropped(id fwkmsg.ManagerID)
}

// Manager drives capture devices and services display/vision-algo
// frame requests.
type Manager struct {
	bus    *fwkmsg.Bus
	kernel *fwktask.Kernel
	log    *logger.Logger
	metrics Collector

	mu            sync.Mutex
	cameras       []*cameraSlot // registration order, preserved for LPM deinit ordering
	displayReq    [MaxDisplayDevices]requestSlot
	vAlgoReq      [MaxVAlgoDevices][devices.VAlgoFrameKinds]requestSlot
	overlay       *fwkmsg.OverlayRequest
	framesCounter uint64
}

// New creates a Manager. metrics may be nil.
func New(bus *fwkmsg.Bus, kernel *fwktask.Kernel, metrics Collector, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	return &Manager{bus: bus, kernel: kernel, metrics: metrics, log: log.WithComponent("camera")}
}

// RegisterDevice adds a capture device with its static declared
// geometry (width, height, pitch, and its fixed capture rotation).
// Registration itself does not init or start the device - that
// happens once, in registration order, when Start is called.
func (m *Manager) RegisterDevice(name string, dev devices.CaptureDevice, geometry fwkmsg.FrameDescriptor) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.cameras) >= MaxCameraDevices {
		return 0, fmt.Errorf("camera: registry full (max %d)", MaxCameraDevices)
	}
	id := len(m.cameras)
	geometry.DevID = id
	m.cameras = append(m.cameras, &cameraSlot{id: id, name: name, dev: dev, geometry: geometry, initDone: make(chan struct{})})
	return id, nil
}

// Start runs task-init (init + await-ready + start for every
// registered camera, in registration order) and spawns the manager's
// receive loop. A device init failure aborts manager start-up
// entirely, per the error taxonomy's camera-specific exception to
// "device op failure is logged and the manager continues".
func (m *Manager) Start() error {
	return m.kernel.StartTask(fwktask.Spec{
		ManagerID: fwkmsg.TaskCamera,
		Name:      "camera",
		OnInit:    m.onInit,
		OnMessage: m.onMessage,
	})
}

func (m *Manager) onInit(_ any) error {
	for _, slot := range m.cameras {
		slot := slot
		onEvent := func(event int, _ any, fromInterrupt bool) {
			switch event {
			case EventCameraDeviceInit:
				close(slot.initDone)
			case EventCameraDequeue:
				m.postDequeue(slot.id, fromInterrupt)
			}
		}
		if err := slot.dev.InitCapture(slot.geometry.Width, slot.geometry.Height, onEvent, nil); err != nil {
			return fmt.Errorf("camera: init %s: %w", slot.name, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		select {
		case <-slot.initDone:
		case <-ctx.Done():
			cancel()
			return fmt.Errorf("camera: %s did not report init complete within %s", slot.name, initTimeout)
		}
		cancel()

		if err := slot.dev.Start(); err != nil {
			return fmt.Errorf("camera: start %s: %w", slot.name, err)
		}
	}
	return nil
}

// postDequeue is called from a capture device's own callback/goroutine
// (the ISR-equivalent path) when a fresh buffer is ready; it re-posts
// CameraDequeue onto the manager's own mailbox so servicing happens on
// the manager's goroutine.
func (m *Manager) postDequeue(camID int, fromInterrupt bool) {
	msg := &fwkmsg.Message{ID: fwkmsg.CameraDequeue, OwnerFrees: true, Payload: fwkmsg.Payload{DevID: camID}}
	var err error
	if fromInterrupt {
		_, err = m.bus.PutFromInterrupt(fwkmsg.TaskCamera, msg)
	} else {
		err = m.bus.Put(fwkmsg.TaskCamera, msg)
	}
	if err != nil {
		m.log.Error("posting camera dequeue", logger.Error(err))
	}
}

func (m *Manager) onMessage(msg *fwkmsg.Message, _ any) {
	switch msg.ID {
	case fwkmsg.CameraDequeue:
		m.handleDequeue(msg.Payload.DevID)
	case fwkmsg.DisplayRequestFrame:
		m.handleDisplayRequest(msg)
	case fwkmsg.VAlgoRequestFrame:
		m.handleVAlgoRequest(msg)
	case fwkmsg.DispatchOverlay:
		m.mu.Lock()
		m.overlay = msg.Payload.Overlay
		m.mu.Unlock()
	case fwkmsg.LpmPreEnterSleep:
		m.handleLpmSleep()
	case fwkmsg.InputNotify:
		m.handleInputNotify(msg.Payload.Input)
	case fwkmsg.InputFrameworkGetComponents:
		m.handleFrameworkQuery(msg.Payload.Framework)
	default:
		m.log.Debug("unhandled message", logger.String("msg", fwkmsg.NameOf(msg.ID)))
	}
}

func (m *Manager) handleDisplayRequest(msg *fwkmsg.Message) {
	id := msg.Payload.DevID
	if id < 0 || id >= MaxDisplayDevices {
		m.log.Error("display request from out-of-range requester", logger.Int("requester", id))
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fillRequest(&m.displayReq[id], id, 0, msg.Payload.Frame)
}

func (m *Manager) handleVAlgoRequest(msg *fwkmsg.Message) {
	id, kind := msg.Payload.DevID, msg.Payload.Kind
	if id < 0 || id >= MaxVAlgoDevices || int(kind) < 0 || int(kind) >= devices.VAlgoFrameKinds {
		m.log.Error("vision-algo request out of range", logger.Int("requester", id))
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fillRequest(&m.vAlgoReq[id][kind], id, kind, msg.Payload.Frame)
}

// fillRequest applies the coalescing rule: an already-pending slot is
// left untouched. frame, if non-nil, (re)establishes the retained
// geometry; a nil frame relies on geometry already on file.
func (m *Manager) fillRequest(slot *requestSlot, requesterID int, kind fwkmsg.FrameKind, frame *fwkmsg.FrameDescriptor) {
	if slot.pending {
		return
	}
	if frame != nil {
		slot.geometry = *frame
		slot.hasGeometry = true
	}
	if !slot.hasGeometry {
		m.log.Error("frame request with no geometry on file", logger.Int("requester", requesterID))
		return
	}
	slot.pending = true
	slot.requesterID = requesterID
	slot.kind = kind
}

func (m *Manager) handleDequeue(camID int) {
	m.mu.Lock()
	var slot *cameraSlot
	for _, c := range m.cameras {
		if c.id == camID {
			slot = c
			break
		}
	}
	m.mu.Unlock()
	if slot == nil {
		m.log.Error("dequeue for unregistered camera", logger.Int("camera", camID))
		return
	}

	buf, format, err := slot.dev.Dequeue()
	if err != nil {
		m.log.Error("dequeue failed", logger.String("camera", slot.name), logger.Error(err))
		return
	}

	if pp, ok := slot.dev.(devices.PostProcessor); ok {
		if err := pp.PostProcess(buf, &format); err != nil {
			m.log.Error("post-process failed", logger.String("camera", slot.name), logger.Error(err))
		}
	}

	captured := slot.geometry
	captured.SrcFormat = format
	captured.Data = buf

	m.mu.Lock()
	overlay := m.overlay
	for i := range m.displayReq {
		req := &m.displayReq[i]
		if !req.pending || req.geometry.SrcFormat != format {
			continue
		}
		if m.service(captured, req, overlay, fwkmsg.TaskDisplay, fwkmsg.DisplayResponseFrame) {
			req.pending = false
		}
	}
	for i := range m.vAlgoReq {
		for k := range m.vAlgoReq[i] {
			req := &m.vAlgoReq[i][k]
			if !req.pending || req.geometry.SrcFormat != format {
				continue
			}
			if m.service(captured, req, overlay, fwkmsg.TaskVisionAlgo, fwkmsg.VAlgoResponseFrame) {
				req.pending = false
			}
		}
	}
	m.mu.Unlock()

	if err := slot.dev.Enqueue(nil); err != nil {
		m.log.Error("recycling capture buffer failed", logger.String("camera", slot.name), logger.Error(err))
	}
	m.framesCounter++
	if m.metrics != nil {
		m.metrics.FrameCaptured(slot.name)
	}
}

// service runs the rotation/flip algorithm and blits (or composes,
// when an overlay is registered) into the requester's destination
// buffer, then posts the response. It returns true if the request was
// serviced and its slot should be cleared; false if the request is
// ill-posed and must be left filled for the requester to retry.
func (m *Manager) service(captured fwkmsg.FrameDescriptor, req *requestSlot, overlay *fwkmsg.OverlayRequest, target fwkmsg.ManagerID, responseID fwkmsg.ID) bool {
	src := graphics.FromFrame(&captured)
	dst := graphics.FromFrame(&req.geometry)

	plan, err := graphics.PlanTransform(src, dst, captured.Rotate, req.geometry.Rotate)
	if err != nil {
		m.log.Error("ill-posed frame request, abandoning", logger.Error(err))
		return false
	}

	if overlay != nil && overlay.Show && overlay.Surface != nil {
		if err := graphics.Compose(plan, graphics.FromFrame(overlay.Surface), graphics.FlipNone); err != nil {
			m.log.Error("compose failed", logger.Error(err))
			return false
		}
	} else if err := graphics.Blit(plan, graphics.FlipNone); err != nil {
		m.log.Error("blit failed", logger.Error(err))
		return false
	}

	resp := req.geometry
	resp.DevID = req.requesterID
	resp.SrcFormat = captured.SrcFormat
	respMsg := &fwkmsg.Message{
		ID:         responseID,
		OwnerFrees: true,
		Payload:    fwkmsg.Payload{DevID: req.requesterID, Kind: req.kind, Frame: &resp, FreeAfterConsumed: true},
	}
	if err := m.bus.Put(target, respMsg); err != nil {
		m.log.Error("posting frame response", logger.String("target", target.String()), logger.Error(err))
		if m.metrics != nil {
			m.metrics.FrameDropped(target)
		}
		return false
	}
	return true
}

func (m *Manager) handleLpmSleep() {
	m.mu.Lock()
	cameras := append([]*cameraSlot(nil), m.cameras...)
	m.mu.Unlock()
	for _, c := range cameras {
		if err := c.dev.Deinit(); err != nil {
			m.log.Error("deinit on sleep failed", logger.String("camera", c.name), logger.Error(err))
		}
	}
}

func (m *Manager) handleInputNotify(input *fwkmsg.InputDescriptor) {
	if input == nil {
		return
	}
	m.mu.Lock()
	cameras := append([]*cameraSlot(nil), m.cameras...)
	m.mu.Unlock()
	for _, c := range cameras {
		if notifier, ok := c.dev.(devices.InputNotifier); ok {
			if err := notifier.InputNotify(input.Data); err != nil {
				m.log.Error("device InputNotify failed", logger.String("camera", c.name), logger.Error(err))
			}
		}
	}
}

func (m *Manager) handleFrameworkQuery(req *fwkmsg.FrameworkRequest) {
	if req == nil || req.Respond == nil {
		return
	}
	m.mu.Lock()
	cameras := append([]*cameraSlot(nil), m.cameras...)
	m.mu.Unlock()
	for _, c := range cameras {
		req.Respond(fwkmsg.TaskComponent{ManagerID: fwkmsg.TaskCamera, DeviceID: c.id, DeviceName: c.name}, false)
	}
	req.Respond(fwkmsg.TaskComponent{}, true)
}

// NotifyDequeue is the hook a fake/real capture device's own callback
// invokes for the EventCameraDequeue event; it exists separately from
// the EventCallback switch so tests can simulate a capture completion
// without building a full device.
func (m *Manager) NotifyDequeue(camID int, fromInterrupt bool) {
	m.postDequeue(camID, fromInterrupt)
}
