package multicore

import (
	"testing"
	"time"

	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
	"github.com/dbehnke/dmr-nexus/pkg/fwktask"
)

type fakeLink struct {
	sent    [][]byte
	handler func(data []byte)
}

func (f *fakeLink) Init() error   { return nil }
func (f *fakeLink) Deinit() error { return nil }
func (f *fakeLink) Start() error  { return nil }
func (f *fakeLink) Stop() error   { return nil }
func (f *fakeLink) Send(buf []byte) error {
	f.sent = append(f.sent, append([]byte(nil), buf...))
	return nil
}
func (f *fakeLink) SetReceiveHandler(handler func(data []byte)) { f.handler = handler }

func newTestManager(t *testing.T) (*Manager, *fwkmsg.Bus, *fakeLink) {
	t.Helper()
	bus := fwkmsg.NewBus(8, nil)
	kernel := fwktask.NewKernel(bus, nil)
	bus.RegisterMailbox(fwkmsg.TaskMulticore)
	bus.RegisterMailbox(fwkmsg.TaskOutput)
	bus.RegisterMailbox(fwkmsg.TaskDisplay)
	link := &fakeLink{}
	m := New(bus, kernel, link, nil)
	return m, bus, link
}

func TestMulticoreManager_SizeKnownOutboundSendsHeaderOnly(t *testing.T) {
	m, bus, link := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	msg := &fwkmsg.Message{
		ID:        fwkmsg.DisplayRequestFrame,
		Multicore: fwkmsg.MulticoreFlags{IsMulticoreMessage: true, RemoteTask: fwkmsg.TaskDisplay},
		Payload:   fwkmsg.Payload{DevID: 3},
	}
	if err := bus.Put(fwkmsg.TaskDisplay, msg); err != nil {
		t.Fatalf("posting: %v", err)
	}

	deadline := time.After(time.Second)
	for len(link.sent) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for send")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(link.sent[0]) != headerSize {
		t.Fatalf("expected header-only frame of %d bytes, got %d", headerSize, len(link.sent[0]))
	}
}

func TestMulticoreManager_DataBearingOutboundSendsHeaderPlusPayload(t *testing.T) {
	m, bus, link := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	msg := &fwkmsg.Message{
		ID:        fwkmsg.VAlgoResultUpdate,
		Scope:     fwkmsg.ScopeRemote,
		Multicore: fwkmsg.MulticoreFlags{RemoteTask: fwkmsg.TaskOutput},
		Payload:   fwkmsg.Payload{DevID: 1, Data: []byte("hello")},
	}
	if err := bus.Put(fwkmsg.TaskOutput, msg); err != nil {
		t.Fatalf("posting: %v", err)
	}

	deadline := time.After(time.Second)
	for len(link.sent) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for send")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(link.sent[0]) != headerSize+len("hello") {
		t.Fatalf("expected header+payload frame, got %d bytes", len(link.sent[0]))
	}
	if string(link.sent[0][headerSize:]) != "hello" {
		t.Fatalf("expected payload bytes appended verbatim, got %q", link.sent[0][headerSize:])
	}
}

func TestMulticoreManager_InboundDecodesAndPostsLocally(t *testing.T) {
	m, bus, link := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	header := encodeHeader(wireHeader{ID: fwkmsg.VAlgoResultUpdate, DevID: 7, RemoteTask: fwkmsg.TaskOutput, PayloadSize: 3})
	frame := append(append([]byte(nil), header...), []byte("abc")...)
	link.handler(frame)

	select {
	case out := <-bus.Chan(fwkmsg.TaskOutput):
		if out.ID != fwkmsg.VAlgoResultUpdate || out.Payload.DevID != 7 {
			t.Fatalf("unexpected decoded message: %+v", out)
		}
		if string(out.Payload.Data) != "abc" {
			t.Fatalf("expected decoded payload, got %q", out.Payload.Data)
		}
		if !out.Multicore.WasMulticoreMessage || out.Multicore.IsMulticoreMessage {
			t.Fatalf("expected WasMulticoreMessage set and IsMulticoreMessage cleared, got %+v", out.Multicore)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decoded inbound message")
	}
}

func TestMulticoreManager_InboundDropsForUnregisteredTarget(t *testing.T) {
	m, _, link := newTestManager(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	header := encodeHeader(wireHeader{ID: fwkmsg.VAlgoResultUpdate, RemoteTask: fwkmsg.TaskVoiceAlgo, PayloadSize: 0})
	link.handler(header)
}
