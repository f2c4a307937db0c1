package session

import (
	"strings"
	"testing"
)

func TestVContQueryListsSupportedActions(t *testing.T) {
	d := newTestDelegate(0)
	r := NewRegistry()
	d.registerExecution(r)

	resp := mustDispatch(t, r, "vCont?")
	if resp != vContSupported {
		t.Fatalf("got %s, want %s", resp, vContSupported)
	}
}

func TestContinueProducesTerminalStopReply(t *testing.T) {
	d := newTestDelegate(0)
	r := NewRegistry()
	d.registerExecution(r)

	// the fake control's Wait always reports a zero wait status, which
	// decodes as a normal exit with code 0 — the simplest terminal stop
	// a synchronous continue can hit in this harness.
	resp := mustDispatch(t, r, "c")
	if !strings.HasPrefix(resp, "W") {
		t.Fatalf("expected a W-prefixed terminal reply, got %s", resp)
	}
}

func TestSingleStepProducesStopReply(t *testing.T) {
	d := newTestDelegate(0)
	r := NewRegistry()
	d.registerExecution(r)

	resp := mustDispatch(t, r, "s")
	if resp == "" {
		t.Fatal("expected a non-empty stop reply")
	}
}

func TestContinueWithSignal(t *testing.T) {
	d := newTestDelegate(0)
	r := NewRegistry()
	d.registerExecution(r)

	resp := mustDispatch(t, r, "C05")
	if resp == "" {
		t.Fatal("expected a non-empty stop reply")
	}
}

func TestContinueWithMalformedSignalErrors(t *testing.T) {
	d := newTestDelegate(0)
	resp, err := d.registerAndDispatchC("Czz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp[0] != 'E' {
		t.Fatalf("expected E-reply for malformed signal, got %s", resp)
	}
}

func (d *DebugDelegate) registerAndDispatchC(payload string) ([]byte, error) {
	r := NewRegistry()
	d.registerExecution(r)
	resp, err, _ := r.Dispatch(payload)
	return resp, err
}

func TestVContMultiClauseResumesAndWaits(t *testing.T) {
	d := newTestDelegate(0)
	r := NewRegistry()
	d.registerExecution(r)

	resp := mustDispatch(t, r, "vCont;c")
	if resp == "" {
		t.Fatal("expected a stop reply")
	}
}

func TestVContUnknownActionErrors(t *testing.T) {
	d := newTestDelegate(0)
	r := NewRegistry()
	d.registerExecution(r)

	resp, err, ok := r.Dispatch("vCont;Q")
	if !ok || err != nil {
		t.Fatalf("dispatch failed: ok=%v err=%v", ok, err)
	}
	if resp[0] != 'E' {
		t.Fatalf("expected E-reply for an unknown vCont action, got %s", resp)
	}
}

func TestParseVContThreadIDAcceptsProcessQualifiedForm(t *testing.T) {
	tid, err := parseVContThreadID("p1.a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tid != 0xa {
		t.Fatalf("got %d, want 10", tid)
	}
}

func TestParseVContThreadIDAcceptsAll(t *testing.T) {
	tid, err := parseVContThreadID("-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tid != -1 {
		t.Fatalf("got %d, want -1", tid)
	}
}
