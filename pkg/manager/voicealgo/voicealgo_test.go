package voicealgo

import (
	"testing"
	"time"

	"github.com/dbehnke/dmr-nexus/pkg/devices"
	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
	"github.com/dbehnke/dmr-nexus/pkg/fwktask"
)

type fakeVoiceDev struct {
	wakeDetect    devices.VoiceLanguage
	wakeUttLen    int
	commandResult []byte
	commandHit    bool
	calibrations  int
	lastGain      float64
	modelLanguage devices.VoiceLanguage
}

func (f *fakeVoiceDev) Init() error   { return nil }
func (f *fakeVoiceDev) Deinit() error { return nil }
func (f *fakeVoiceDev) Start() error  { return nil }
func (f *fakeVoiceDev) Stop() error   { return nil }
func (f *fakeVoiceDev) ScanWakeWord(audio []byte, languages devices.VoiceLanguage) (devices.VoiceLanguage, int) {
	return f.wakeDetect, f.wakeUttLen
}
func (f *fakeVoiceDev) ScanCommand(audio []byte, language devices.VoiceLanguage) ([]byte, bool) {
	return f.commandResult, f.commandHit
}
func (f *fakeVoiceDev) Calibrate(audio []byte) error { f.calibrations++; return nil }
func (f *fakeVoiceDev) SetVoiceModel(demo int, language devices.VoiceLanguage, pushToTalk bool) error {
	f.modelLanguage = language
	return nil
}
func (f *fakeVoiceDev) SetSpeakerVolume(gain float64) error { f.lastGain = gain; return nil }

func newTestManager(t *testing.T, dev devices.VoiceAlgoDevice, timeout time.Duration) (*Manager, *fwkmsg.Bus) {
	t.Helper()
	bus := fwkmsg.NewBus(8, nil)
	kernel := fwktask.NewKernel(bus, nil)
	bus.RegisterMailbox(fwkmsg.TaskOutput)
	bus.RegisterMailbox(fwkmsg.TaskAudio)
	m := New(bus, kernel, dev, timeout, nil)
	return m, bus
}

func TestVoiceAlgoManager_WakeWordTransitionsToVoiceCommand(t *testing.T) {
	dev := &fakeVoiceDev{wakeDetect: devices.LanguageEnglish, wakeUttLen: 1600}
	m, bus := newTestManager(t, dev, 0)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	msg := &fwkmsg.Message{ID: fwkmsg.VAlgoASRInputProcess, Payload: fwkmsg.Payload{Data: []byte("mic")}}
	if err := bus.Put(fwkmsg.TaskVoiceAlgo, msg); err != nil {
		t.Fatalf("posting audio: %v", err)
	}

	select {
	case out := <-bus.Chan(fwkmsg.TaskOutput):
		if out.ID != fwkmsg.VAlgoASRResultUpdate || ResultStatus(out.Payload.Status) != StatusWakeWordDetected {
			t.Fatalf("unexpected result message: %+v", out)
		}
		if out.Payload.Language != devices.LanguageEnglish {
			t.Fatalf("expected detected language in result, got %v", out.Payload.Language)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for wake-word result")
	}

	select {
	case fb := <-bus.Chan(fwkmsg.TaskAudio):
		if fb.ID != fwkmsg.AsrToAfeFeedback {
			t.Fatalf("expected AsrToAfeFeedback, got %v", fb.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for AFE feedback")
	}

	deadline := time.After(time.Second)
	for m.CurrentState() != VoiceCommand {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for state transition")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestVoiceAlgoManager_CommandTimeoutReturnsToWakeWord(t *testing.T) {
	dev := &fakeVoiceDev{wakeDetect: devices.LanguageEnglish}
	m, bus := newTestManager(t, dev, MinCommandTimeout)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := bus.Put(fwkmsg.TaskVoiceAlgo, &fwkmsg.Message{ID: fwkmsg.VAlgoASRInputProcess, Payload: fwkmsg.Payload{Data: []byte("mic")}}); err != nil {
		t.Fatalf("posting audio: %v", err)
	}
	<-bus.Chan(fwkmsg.TaskOutput) // wake-word result
	<-bus.Chan(fwkmsg.TaskAudio)  // AFE feedback

	select {
	case out := <-bus.Chan(fwkmsg.TaskOutput):
		if ResultStatus(out.Payload.Status) != StatusTimeout {
			t.Fatalf("expected timeout result, got status %d", out.Payload.Status)
		}
	case <-time.After(2 * MinCommandTimeout):
		t.Fatal("timed out waiting for command timeout result")
	}
	if m.CurrentState() != WakeWord {
		t.Fatalf("expected state back to WakeWord after timeout, got %v", m.CurrentState())
	}
}

func TestVoiceAlgoManager_StopVoiceCommandResetsImmediately(t *testing.T) {
	dev := &fakeVoiceDev{wakeDetect: devices.LanguageEnglish}
	m, bus := newTestManager(t, dev, 0)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := bus.Put(fwkmsg.TaskVoiceAlgo, &fwkmsg.Message{ID: fwkmsg.VAlgoASRInputProcess, Payload: fwkmsg.Payload{Data: []byte("mic")}}); err != nil {
		t.Fatalf("posting audio: %v", err)
	}
	<-bus.Chan(fwkmsg.TaskOutput)
	<-bus.Chan(fwkmsg.TaskAudio)

	deadline := time.After(time.Second)
	for m.CurrentState() != VoiceCommand {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for VoiceCommand state")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := bus.Put(fwkmsg.TaskVoiceAlgo, &fwkmsg.Message{ID: fwkmsg.StopVoiceCommand}); err != nil {
		t.Fatalf("posting stop: %v", err)
	}
	deadline = time.After(time.Second)
	for m.CurrentState() != WakeWord {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for reset to WakeWord")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestVoiceAlgoManager_SpeakerVolumeFormula(t *testing.T) {
	dev := &fakeVoiceDev{}
	m, _ := newTestManager(t, dev, 0)
	if err := m.SetSpeakerVolume(100); err != nil {
		t.Fatalf("SetSpeakerVolume: %v", err)
	}
	if diff := dev.lastGain - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected gain 1.0 at volume 100, got %v", dev.lastGain)
	}
	if err := m.SetSpeakerVolume(10); err != nil {
		t.Fatalf("SetSpeakerVolume: %v", err)
	}
	if diff := dev.lastGain - 0.0262; diff > 1e-4 || diff < -1e-4 {
		t.Fatalf("expected gain ~0.0262 at volume 10, got %v", dev.lastGain)
	}
}

func TestVoiceAlgoManager_SelfWakeGuardRejectsWithinConfirmWindow(t *testing.T) {
	dev := &fakeVoiceDev{wakeDetect: devices.LanguageEnglish}
	m, bus := newTestManager(t, dev, 0)
	m.EnableSelfWakeProtection(true)
	m.SetSpeakerStreaming(true)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := bus.Put(fwkmsg.TaskVoiceAlgo, &fwkmsg.Message{ID: fwkmsg.SpeakerToAfeFeedback, Payload: fwkmsg.Payload{Data: []byte("speaker")}}); err != nil {
		t.Fatalf("posting speaker audio: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := bus.Put(fwkmsg.TaskVoiceAlgo, &fwkmsg.Message{ID: fwkmsg.VAlgoASRInputProcess, Payload: fwkmsg.Payload{Data: []byte("mic")}}); err != nil {
		t.Fatalf("posting mic audio: %v", err)
	}

	select {
	case <-bus.Chan(fwkmsg.TaskOutput):
		t.Fatal("expected self-triggered wake word to be discarded")
	case <-time.After(200 * time.Millisecond):
	}
	if m.CurrentState() != WakeWord {
		t.Fatalf("expected state to remain WakeWord, got %v", m.CurrentState())
	}
}
