package agent

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/debugstub/ds2agent/internal/agenterr"
	"github.com/debugstub/ds2agent/internal/arch/riscv"
	"github.com/debugstub/ds2agent/internal/interfaces"
	"github.com/debugstub/ds2agent/internal/process"
	"golang.org/x/sys/unix"
)

// FakeStream is an in-memory interfaces.ByteStream: writes go to an
// outbound buffer a test can inspect, reads drain an inbound buffer a
// test fills ahead of time. Useful for exercising a Channel without a
// real socket or character device.
type FakeStream struct {
	mu     sync.Mutex
	inbox  bytes.Buffer
	outbox bytes.Buffer
	closed bool
}

// NewFakeStream creates an empty FakeStream.
func NewFakeStream() *FakeStream {
	return &FakeStream{}
}

// Feed appends bytes a subsequent Read will return, simulating data
// arriving from a peer.
func (s *FakeStream) Feed(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbox.Write(p)
}

// Read implements interfaces.ByteStream.
func (s *FakeStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inbox.Len() == 0 {
		if s.closed {
			return 0, io.EOF
		}
		return 0, io.EOF
	}
	return s.inbox.Read(p)
}

// Write implements interfaces.ByteStream, recording everything written
// so a test can inspect what a Channel sent.
func (s *FakeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.outbox.Write(p)
}

// Close implements interfaces.ByteStream.
func (s *FakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Sent returns everything written so far.
func (s *FakeStream) Sent() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, s.outbox.Len())
	copy(out, s.outbox.Bytes())
	return out
}

// IsClosed reports whether Close has been called.
func (s *FakeStream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ interfaces.ByteStream = (*FakeStream)(nil)

// FakeObserver records every observation it receives, for tests that
// want to assert a session emitted the right metrics calls without
// wiring a real Metrics instance.
type FakeObserver struct {
	mu       sync.Mutex
	Packets  []FakePacketObservation
	Stops    []FakeStopObservation
	Commands []FakeCommandObservation
	MemOps   []FakeMemoryObservation
}

type FakePacketObservation struct {
	Bytes   int
	Inbound bool
}

type FakeStopObservation struct {
	Reason string
}

type FakeCommandObservation struct {
	Name    string
	Success bool
}

type FakeMemoryObservation struct {
	Bytes   int
	Write   bool
	Success bool
}

// NewFakeObserver creates an empty FakeObserver.
func NewFakeObserver() *FakeObserver {
	return &FakeObserver{}
}

var _ interfaces.Observer = (*FakeObserver)(nil)

func (o *FakeObserver) ObservePacket(bytes int, inbound bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Packets = append(o.Packets, FakePacketObservation{Bytes: bytes, Inbound: inbound})
}

func (o *FakeObserver) ObserveStop(reason string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Stops = append(o.Stops, FakeStopObservation{Reason: reason})
}

func (o *FakeObserver) ObserveCommand(name string, _ time.Duration, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Commands = append(o.Commands, FakeCommandObservation{Name: name, Success: success})
}

func (o *FakeObserver) ObserveMemoryOp(bytes int, write bool, _ uint64, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.MemOps = append(o.MemOps, FakeMemoryObservation{Bytes: bytes, Write: write, Success: success})
}

// FakeNativeControl is an in-memory stand-in for native.Control, shared
// by packages outside internal/process that need a cheap tracer double
// (session-layer tests in particular): memory is a flat byte map,
// registers are held per-pid, and continue, single-step, detach and kill
// calls are recorded by pid.
type FakeNativeControl struct {
	mu sync.Mutex

	Mem   map[uint64]byte
	Regs  map[int]riscv.CPUState
	HWCap bool

	Continued []int
	Stepped   []int
	Detached  []int
	Killed    []int
}

// NewFakeNativeControl creates an empty FakeNativeControl.
func NewFakeNativeControl() *FakeNativeControl {
	return &FakeNativeControl{
		Mem:  make(map[uint64]byte),
		Regs: make(map[int]riscv.CPUState),
	}
}

// WriteAt seeds the fake's memory image starting at addr, for test setup.
func (c *FakeNativeControl) WriteAt(addr uint64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, b := range data {
		c.Mem[addr+uint64(i)] = b
	}
}

func (c *FakeNativeControl) Continue(pid int, sig int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Continued = append(c.Continued, pid)
	return nil
}

func (c *FakeNativeControl) SingleStep(pid int, sig int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.HWCap {
		return agenterr.New("fakecontrol.singlestep", agenterr.Unsupported, "hardware single-step unavailable")
	}
	c.Stepped = append(c.Stepped, pid)
	return nil
}

func (c *FakeNativeControl) Detach(pid int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Detached = append(c.Detached, pid)
	return nil
}

func (c *FakeNativeControl) Kill(pid int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Killed = append(c.Killed, pid)
	return nil
}

func (c *FakeNativeControl) Wait(pid int, hang bool) (int, unix.WaitStatus, error) {
	return pid, unix.WaitStatus(0), nil
}

func (c *FakeNativeControl) ReadMemory(pid int, addr uint64, size int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		out[i] = c.Mem[addr+uint64(i)]
	}
	return out, nil
}

func (c *FakeNativeControl) WriteMemory(pid int, addr uint64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, b := range data {
		c.Mem[addr+uint64(i)] = b
	}
	return nil
}

func (c *FakeNativeControl) GetGPRegs(pid int, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.Regs[pid]
	copy(buf, state.Marshal())
	return nil
}

func (c *FakeNativeControl) SetGPRegs(pid int, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var state riscv.CPUState
	if err := state.Unmarshal(buf); err != nil {
		return err
	}
	c.Regs[pid] = state
	return nil
}

var _ process.NativeControl = (*FakeNativeControl)(nil)
