package session

import (
	"fmt"
	"strings"
	"testing"
)

func TestSelectThreadAnyOrAll(t *testing.T) {
	d := newTestDelegate(0)
	if resp, err := d.selectThread("-1"); err != nil || string(resp) != "OK" {
		t.Fatalf("got resp=%s err=%v", resp, err)
	}
	if resp, err := d.selectThread("0"); err != nil || string(resp) != "OK" {
		t.Fatalf("got resp=%s err=%v", resp, err)
	}
}

func TestSelectThreadMissingSpec(t *testing.T) {
	d := newTestDelegate(0)
	resp, err := d.selectThread("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp[0] != 'E' {
		t.Fatalf("expected E-reply for missing thread id, got %s", resp)
	}
}

func TestSelectThreadByTID(t *testing.T) {
	d := newTestDelegate(0)
	resp, err := d.selectThread("1092") // hex 1092 == decimal 4242, the main thread
	if err != nil || string(resp) != "OK" {
		t.Fatalf("got resp=%s err=%v", resp, err)
	}
}

func TestThreadInfoIterationEndsWithL(t *testing.T) {
	d := newTestDelegate(0)
	r := NewRegistry()
	d.registerThreads(r)

	first := mustDispatch(t, r, "qfThreadInfo")
	if !strings.HasPrefix(first, "m") {
		t.Fatalf("expected an m-prefixed batch, got %s", first)
	}

	second := mustDispatch(t, r, "qsThreadInfo")
	if second != "l" {
		t.Fatalf("expected end-of-iteration marker, got %s", second)
	}
}

func mustDispatch(t *testing.T, r *Registry, cmd string) string {
	t.Helper()
	resp, err, ok := r.Dispatch(cmd)
	if !ok || err != nil {
		t.Fatalf("dispatch %s failed: ok=%v err=%v", cmd, ok, err)
	}
	return string(resp)
}

func TestThreadExtraInfoReportsState(t *testing.T) {
	d := newTestDelegate(0)
	var tid int
	for id := range d.Proc.Threads {
		tid = id
	}
	resp, err := d.qThreadExtraInfo(fmt.Sprintf("qThreadExtraInfo,%x", tid))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded, err := decodeHexString(string(resp))
	if err != nil {
		t.Fatalf("response not hex: %s", resp)
	}
	if !strings.Contains(decoded, "stopped") {
		t.Fatalf("expected a stopped thread description, got %s", decoded)
	}
}

func TestThreadExtraInfoUnknownTID(t *testing.T) {
	d := newTestDelegate(0)
	resp, err := d.qThreadExtraInfo("qThreadExtraInfo,ffff")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp[0] != 'E' {
		t.Fatalf("expected E-reply for an unknown tid, got %s", resp)
	}
}
