package atproto

import (
	"bytes"
	"strings"
	"testing"
)

func TestParser_DecodesCRLFTerminatedLine(t *testing.T) {
	p := NewParser(strings.NewReader("AT+PWOFFRSP=ACK\r\n"))
	ev, err := p.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if ev.Kind != FaceIDPowerOffAck {
		t.Fatalf("expected FaceIdPowerOffAck, got %v", ev.Kind)
	}
}

func TestParser_DecodesLFCRTerminatedLine(t *testing.T) {
	// The reversed orientation must also be accepted.
	p := NewParser(strings.NewReader("AT+PWOFFRSP=NACK\n\r"))
	ev, err := p.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if ev.Kind != FaceIDPowerOffNack {
		t.Fatalf("expected FaceIdPowerOffNack, got %v", ev.Kind)
	}
}

func TestParser_EmbeddedTerminatorEndsLineAtFirstOccurrence(t *testing.T) {
	// The scan is incremental: an embedded \n\r ends the line there,
	// rather than being preserved as payload bytes.
	p := NewParser(strings.NewReader("AT+FACERES=AB\n\rCD\r\n"))
	ev, err := p.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if ev.Kind != FaceIDValid {
		t.Fatalf("expected FaceIdValid, got %v", ev.Kind)
	}
	if string(ev.Payload) != "AB" {
		t.Fatalf("expected payload truncated at first terminator, got %q", ev.Payload)
	}

	// The remainder is parsed as its own (unrecognized) line.
	ev2, err := p.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent (remainder): %v", err)
	}
	if ev2.Kind != EventUnknown {
		t.Fatalf("expected EventUnknown for remainder %q, got %v", ev2.Raw, ev2.Kind)
	}
}

func TestParser_FaceResFail(t *testing.T) {
	p := NewParser(strings.NewReader("AT+FACERES=FAIL\r\n"))
	ev, err := p.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if ev.Kind != FaceIDInvalid {
		t.Fatalf("expected FaceIdInvalid, got %v", ev.Kind)
	}
}

func TestParser_FaceRegResultVariants(t *testing.T) {
	tests := []struct {
		line       string
		wantStatus string
		wantPayload string
	}{
		{"AT+FACEREG=OK\r\n", "OK", ""},
		{"AT+FACEREG=DUPLICATE\r\n", "DUPLICATE", ""},
		{"AT+FACEREG=FAIL\r\n", "FAIL", ""},
		{"AT+FACEREG=deadbeef\r\n", "", "deadbeef"},
	}
	for _, tt := range tests {
		p := NewParser(strings.NewReader(tt.line))
		ev, err := p.ReadEvent()
		if err != nil {
			t.Fatalf("ReadEvent(%q): %v", tt.line, err)
		}
		if ev.Kind != FaceRegResult {
			t.Fatalf("expected FaceRegResult for %q, got %v", tt.line, ev.Kind)
		}
		if ev.Status != tt.wantStatus {
			t.Errorf("%q: expected status %q, got %q", tt.line, tt.wantStatus, ev.Status)
		}
		if string(ev.Payload) != tt.wantPayload {
			t.Errorf("%q: expected payload %q, got %q", tt.line, tt.wantPayload, ev.Payload)
		}
	}
}

func TestParser_FaceDeleteResult(t *testing.T) {
	p := NewParser(strings.NewReader("AT+FACEDREG=OK\r\nAT+FACEDEL=SUCCESS\r\n"))
	first, err := p.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if first.Kind != FaceDeleteResult || first.Status != "OK" {
		t.Fatalf("expected FaceDeleteResult/OK, got %v/%s", first.Kind, first.Status)
	}
	second, err := p.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if second.Kind != FaceDeleteResult || second.Status != "SUCCESS" {
		t.Fatalf("expected FaceDeleteResult/SUCCESS, got %v/%s", second.Kind, second.Status)
	}
}

func TestParser_MultipleLinesInSequence(t *testing.T) {
	p := NewParser(strings.NewReader("AT+PWOFFRSP=ACK\r\nAT+FACERES=FAIL\r\n"))
	ev1, err := p.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent 1: %v", err)
	}
	if ev1.Kind != FaceIDPowerOffAck {
		t.Fatalf("expected FaceIdPowerOffAck first, got %v", ev1.Kind)
	}
	ev2, err := p.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent 2: %v", err)
	}
	if ev2.Kind != FaceIDInvalid {
		t.Fatalf("expected FaceIdInvalid second, got %v", ev2.Kind)
	}
}

func TestSendPowerOffRequest(t *testing.T) {
	var buf bytes.Buffer
	if err := SendPowerOffRequest(&buf); err != nil {
		t.Fatalf("SendPowerOffRequest: %v", err)
	}
	if buf.String() != PowerOffRequest {
		t.Fatalf("expected %q, got %q", PowerOffRequest, buf.String())
	}
}
