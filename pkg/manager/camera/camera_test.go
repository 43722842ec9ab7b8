package camera

import (
	"testing"
	"time"

	"github.com/dbehnke/dmr-nexus/pkg/devices"
	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
	"github.com/dbehnke/dmr-nexus/pkg/fwktask"
)

type fakeCamera struct {
	onEvent    devices.EventCallback
	enqueued   int
	frame      []byte
	format     fwkmsg.PixelFormat
	dequeueErr error
}

func (f *fakeCamera) Init() error   { return nil }
func (f *fakeCamera) Deinit() error { return nil }
func (f *fakeCamera) Start() error  { return nil }
func (f *fakeCamera) Stop() error   { return nil }
func (f *fakeCamera) InitCapture(w, h int, onEvent devices.EventCallback, _ any) error {
	f.onEvent = onEvent
	go onEvent(EventCameraDeviceInit, nil, false)
	return nil
}
func (f *fakeCamera) Enqueue(buf []byte) error { f.enqueued++; return nil }
func (f *fakeCamera) Dequeue() ([]byte, fwkmsg.PixelFormat, error) {
	return f.frame, f.format, f.dequeueErr
}

func newManager(t *testing.T) (*Manager, *fwkmsg.Bus) {
	t.Helper()
	bus := fwkmsg.NewBus(8, nil)
	kernel := fwktask.NewKernel(bus, nil)
	bus.RegisterMailbox(fwkmsg.TaskDisplay)
	bus.RegisterMailbox(fwkmsg.TaskVisionAlgo)
	m := New(bus, kernel, nil, nil)
	return m, bus
}

func frameOf(w, h int, format fwkmsg.PixelFormat, data []byte) fwkmsg.FrameDescriptor {
	return fwkmsg.FrameDescriptor{
		Width: w, Height: h, Pitch: w,
		Active:    fwkmsg.Rect{Left: 0, Top: 0, Right: w - 1, Bottom: h - 1},
		SrcFormat: format, DstFormat: format,
		Data: data,
	}
}

func TestCameraManager_CaptureToDisplay_SingleFrame(t *testing.T) {
	m, bus := newManager(t)
	cam := &fakeCamera{frame: make([]byte, 64*48), format: fwkmsg.FormatGray8}
	camID, err := m.RegisterDevice("cam0", cam, frameOf(64, 48, fwkmsg.FormatGray8, nil))
	if err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // allow init-done callback to run

	dst := frameOf(64, 48, fwkmsg.FormatGray8, make([]byte, 64*48))
	req := &fwkmsg.Message{
		ID: fwkmsg.DisplayRequestFrame, OwnerFrees: true,
		Payload: fwkmsg.Payload{DevID: 0, Frame: &dst},
	}
	if err := bus.Put(fwkmsg.TaskCamera, req); err != nil {
		t.Fatalf("posting display request: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	m.NotifyDequeue(camID, false)

	select {
	case resp := <-bus.Chan(fwkmsg.TaskDisplay):
		if resp.ID != fwkmsg.DisplayResponseFrame {
			t.Fatalf("expected DisplayResponseFrame, got %v", resp.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for display response")
	}

	if cam.enqueued != 1 {
		t.Fatalf("expected Enqueue(nil) called once, got %d", cam.enqueued)
	}
}

func TestCameraManager_CoalescesUnfilledDisplayRequest(t *testing.T) {
	m, bus := newManager(t)
	cam := &fakeCamera{frame: make([]byte, 8), format: fwkmsg.FormatGray8}
	camID, _ := m.RegisterDevice("cam0", cam, frameOf(8, 1, fwkmsg.FormatGray8, nil))
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	dst1 := frameOf(8, 1, fwkmsg.FormatGray8, make([]byte, 8))
	dst2 := frameOf(8, 1, fwkmsg.FormatGray8, make([]byte, 8))
	_ = bus.Put(fwkmsg.TaskCamera, &fwkmsg.Message{ID: fwkmsg.DisplayRequestFrame, OwnerFrees: true, Payload: fwkmsg.Payload{DevID: 0, Frame: &dst1}})
	_ = bus.Put(fwkmsg.TaskCamera, &fwkmsg.Message{ID: fwkmsg.DisplayRequestFrame, OwnerFrees: true, Payload: fwkmsg.Payload{DevID: 0, Frame: &dst2}})
	time.Sleep(10 * time.Millisecond)

	m.mu.Lock()
	held := m.displayReq[0].geometry.Data
	m.mu.Unlock()
	if &held[0] != &dst1.Data[0] {
		t.Fatal("expected the first request to be retained, second coalesced away")
	}

	m.NotifyDequeue(camID, false)
	select {
	case <-bus.Chan(fwkmsg.TaskDisplay):
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestCameraManager_LpmDeinitsEveryCameraInRegistrationOrder(t *testing.T) {
	m, bus := newManager(t)
	_ = bus
	var order []string
	cam1 := &deinitOrderCamera{name: "a", order: &order}
	cam2 := &deinitOrderCamera{name: "b", order: &order}
	m.RegisterDevice("a", cam1, frameOf(1, 1, fwkmsg.FormatGray8, nil))
	m.RegisterDevice("b", cam2, frameOf(1, 1, fwkmsg.FormatGray8, nil))
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	_ = m.bus.Put(fwkmsg.TaskCamera, &fwkmsg.Message{ID: fwkmsg.LpmPreEnterSleep, OwnerFrees: true})
	time.Sleep(20 * time.Millisecond)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected deinit order [a b], got %v", order)
	}
}

type deinitOrderCamera struct {
	name  string
	order *[]string
}

func (d *deinitOrderCamera) Init() error   { return nil }
func (d *deinitOrderCamera) Deinit() error { *d.order = append(*d.order, d.name); return nil }
func (d *deinitOrderCamera) Start() error  { return nil }
func (d *deinitOrderCamera) Stop() error   { return nil }
func (d *deinitOrderCamera) InitCapture(w, h int, onEvent devices.EventCallback, _ any) error {
	go onEvent(EventCameraDeviceInit, nil, false)
	return nil
}
func (d *deinitOrderCamera) Enqueue(buf []byte) error { return nil }
func (d *deinitOrderCamera) Dequeue() ([]byte, fwkmsg.PixelFormat, error) {
	return nil, fwkmsg.FormatGray8, nil
}
