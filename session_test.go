package agent

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/debugstub/ds2agent/internal/frame"
	"github.com/debugstub/ds2agent/internal/process"
)

// pipeReader accumulates everything a peer writes on a net.Pipe conn so a
// test can poll for an expected reply without racing the session's
// goroutine, mirroring how internal/channel's own tests drive a Channel
// over net.Pipe rather than a canned stream.
type pipeReader struct {
	mu  sync.Mutex
	buf []byte
}

func startPipeReader(conn net.Conn) *pipeReader {
	r := &pipeReader{}
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				r.mu.Lock()
				r.buf = append(r.buf, buf[:n]...)
				r.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return r
}

func (r *pipeReader) snapshot() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.buf)
}

func waitForReply(t *testing.T, r *pipeReader, contains string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := r.snapshot(); strings.Contains(s, contains) {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in reply bytes, got %q", contains, r.snapshot())
	return ""
}

func TestDebugSessionRespondsToQSupported(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	reader := startPipeReader(client)

	ctrl := NewFakeNativeControl()
	proc := process.New(555, true, ctrl, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess := NewDebugSession(ctx, server, proc, nil, nil, nil)
	go sess.Run(ctx)

	client.Write(frame.Encode([]byte("qSupported:multiprocess+")))
	waitForReply(t, reader, "QStartNoAckMode+")
}

func TestDebugSessionTogglesNoAckModeAfterHandshake(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	reader := startPipeReader(client)

	ctrl := NewFakeNativeControl()
	proc := process.New(555, true, ctrl, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess := NewDebugSession(ctx, server, proc, nil, nil, nil)
	go sess.Run(ctx)

	client.Write(frame.Encode([]byte("QStartNoAckMode")))
	waitForReply(t, reader, "OK")

	if !sess.delegate.NoAckRequested() {
		t.Fatal("expected the delegate to report no-ack mode after QStartNoAckMode")
	}
}

func TestPlatformSessionServesHandshake(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	reader := startPipeReader(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess := NewPlatformSession(ctx, server, nil, nil, nil, nil)
	go sess.Run(ctx)

	client.Write(frame.Encode([]byte("qSupported:multiprocess+")))
	waitForReply(t, reader, "QStartNoAckMode+")
}
