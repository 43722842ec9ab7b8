package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/dbehnke/dmr-nexus/pkg/devices"
)

func TestDevice_LifecycleTransitions(t *testing.T) {
	d := New(1, "dashboard0", NewHub(nil))
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := d.Deinit(); err != nil {
		t.Fatalf("Deinit: %v", err)
	}
}

func TestDevice_KindIsUI(t *testing.T) {
	d := New(1, "dashboard0", NewHub(nil))
	if d.Kind() != devices.OutputUI {
		t.Fatalf("expected OutputUI, got %v", d.Kind())
	}
}

func TestDevice_InferenceCompleteNeverRequestsOverlayChange(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	d := New(1, "dashboard0", hub)
	if changed := d.InferenceComplete(0, devices.SourceVision, []byte{1, 2, 3}); changed {
		t.Fatalf("expected dashboard device to never request an overlay change")
	}
	time.Sleep(10 * time.Millisecond) // let the broadcast drain without panicking
}

func TestDevice_HandleInputNotifyAndAudioDumpDoNotError(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	d := New(1, "dashboard0", hub)
	if err := d.HandleInputNotify([]byte{1, 2}); err != nil {
		t.Fatalf("HandleInputNotify: %v", err)
	}
	if err := d.HandleAudioDump([]byte{1, 2, 3}, []byte{1}); err != nil {
		t.Fatalf("HandleAudioDump: %v", err)
	}
}
