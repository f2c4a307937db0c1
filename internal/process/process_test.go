package process

import (
	"testing"

	"github.com/debugstub/ds2agent/internal/arch/riscv"
	"github.com/debugstub/ds2agent/internal/interrupt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeControl is a minimal in-memory stand-in for native.Control: memory is
// a flat byte map, registers are held per-pid, and continue, single-step,
// detach and kill calls (plus the last resume signal) are recorded so tests
// can assert on what the process model asked of the tracer.
type fakeControl struct {
	mem   map[uint64]byte
	regs  map[int]riscv.CPUState
	hwCap bool

	continued  []int
	stepped    []int
	detached   []int
	killed     []int
	lastSignal int
}

func newFakeControl() *fakeControl {
	return &fakeControl{mem: make(map[uint64]byte), regs: make(map[int]riscv.CPUState)}
}

func (c *fakeControl) Continue(pid int, sig int) error {
	c.continued = append(c.continued, pid)
	c.lastSignal = sig
	return nil
}

func (c *fakeControl) SingleStep(pid int, sig int) error {
	c.stepped = append(c.stepped, pid)
	c.lastSignal = sig
	return nil
}

func (c *fakeControl) Detach(pid int) error {
	c.detached = append(c.detached, pid)
	return nil
}

func (c *fakeControl) Kill(pid int) error {
	c.killed = append(c.killed, pid)
	return nil
}

func (c *fakeControl) Wait(pid int, hang bool) (int, unix.WaitStatus, error) {
	return pid, unix.WaitStatus(0), nil
}

func (c *fakeControl) ReadMemory(pid int, addr uint64, size int) ([]byte, error) {
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		out[i] = c.mem[addr+uint64(i)]
	}
	return out, nil
}

func (c *fakeControl) WriteMemory(pid int, addr uint64, data []byte) error {
	for i, b := range data {
		c.mem[addr+uint64(i)] = b
	}
	return nil
}

func (c *fakeControl) GetGPRegs(pid int, buf []byte) error {
	state := c.regs[pid]
	copy(buf, state.Marshal())
	return nil
}

func (c *fakeControl) SetGPRegs(pid int, buf []byte) error {
	var state riscv.CPUState
	if err := state.Unmarshal(buf); err != nil {
		return err
	}
	c.regs[pid] = state
	return nil
}

func (c *fakeControl) writeAt(addr uint64, data []byte) {
	for i, b := range data {
		c.mem[addr+uint64(i)] = b
	}
}

func TestNewProcessHasStoppedMainThread(t *testing.T) {
	ctrl := newFakeControl()
	p := New(1000, true, ctrl, 0)

	thread, err := p.CurrentThread()
	require.NoError(t, err)
	assert.Equal(t, 1000, thread.TID)
	assert.Equal(t, Stopped, thread.State)
}

func TestSelectThreadSwitchesCurrent(t *testing.T) {
	ctrl := newFakeControl()
	p := New(1000, true, ctrl, 0)
	p.AddThread(1001)

	require.NoError(t, p.SelectThread(1001))
	thread, err := p.CurrentThread()
	require.NoError(t, err)
	assert.Equal(t, 1001, thread.TID)
}

func TestSelectThreadRejectsUnknownTID(t *testing.T) {
	ctrl := newFakeControl()
	p := New(1000, true, ctrl, 0)
	assert.Error(t, p.SelectThread(9999))
}

func TestRegistersRejectedWhileRunning(t *testing.T) {
	ctrl := newFakeControl()
	p := New(1000, true, ctrl, 0)
	thread, _ := p.CurrentThread()
	thread.State = Running

	_, err := thread.Registers()
	assert.Error(t, err)
}

func TestSetRegistersUpdatesCacheAndControl(t *testing.T) {
	ctrl := newFakeControl()
	p := New(1000, true, ctrl, 0)
	thread, _ := p.CurrentThread()

	state := &riscv.CPUState{PC: 0x4000}
	require.NoError(t, thread.SetRegisters(state))

	got, err := thread.Registers()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x4000), got.PC)
	assert.Equal(t, uint64(0x4000), ctrl.regs[1000].PC)
}

func TestResumeAllContinuesEveryStoppedThread(t *testing.T) {
	ctrl := newFakeControl()
	p := New(1000, true, ctrl, 0)
	p.AddThread(1001)

	require.NoError(t, p.ResumeAll())
	assert.ElementsMatch(t, []int{1000, 1001}, ctrl.continued)

	for _, thread := range p.Threads {
		assert.Equal(t, Running, thread.State)
	}
}

func TestResumeOneSwallowsSignalOutsidePassthroughSet(t *testing.T) {
	ctrl := newFakeControl()
	p := New(1000, true, ctrl, 0)

	require.NoError(t, p.Resume(Request{TID: 1000, Action: ActionContinueSignal, Signal: int(unix.SIGUSR1)}))
	assert.Equal(t, 0, ctrl.lastSignal)
}

func TestResumeOnePassesThroughAllowedSignal(t *testing.T) {
	ctrl := newFakeControl()
	p := New(1000, true, ctrl, 0)
	p.Passthrough[int(unix.SIGUSR1)] = true

	require.NoError(t, p.Resume(Request{TID: 1000, Action: ActionContinueSignal, Signal: int(unix.SIGUSR1)}))
	assert.Equal(t, int(unix.SIGUSR1), ctrl.lastSignal)
}

func TestStepUsesHardwareSingleStepWhenAvailable(t *testing.T) {
	ctrl := newFakeControl()
	p := New(1000, true, ctrl, 0)
	thread, _ := p.CurrentThread()
	thread.hwStep = true

	require.NoError(t, p.step(1000, 0))
	assert.Equal(t, []int{1000}, ctrl.stepped)
	assert.Empty(t, ctrl.continued)
}

func TestStepPlantsOneShotBreakpointWithoutHardwareSupport(t *testing.T) {
	ctrl := newFakeControl()
	// addi x0, x0, 0 at 0x1000: a plain 4-byte RVI instruction with no
	// control-flow effect, so the successor is pc+4.
	ctrl.writeAt(0x1000, []byte{0x13, 0x00, 0x00, 0x00})
	ctrl.writeAt(0x1004, []byte{0x13, 0x00, 0x00, 0x00})

	p := New(1000, true, ctrl, 0)
	thread, _ := p.CurrentThread()
	require.NoError(t, thread.SetRegisters(&riscv.CPUState{PC: 0x1000}))

	require.NoError(t, p.step(1000, 0))

	site, ok := p.Breakpoints.Lookup(0x1004)
	require.True(t, ok)
	assert.Equal(t, 4, site.Size)
	assert.Equal(t, []int{1000}, ctrl.continued)
}

func TestHandleWaitReportsBreakpointHit(t *testing.T) {
	ctrl := newFakeControl()
	p := New(1000, true, ctrl, 0)
	thread, _ := p.CurrentThread()
	require.NoError(t, thread.SetRegisters(&riscv.CPUState{PC: 0x2000}))

	_, err := p.Breakpoints.Add(0x2000, 0 /* Permanent */, 4, 0 /* ModeExec */, false)
	require.NoError(t, err)

	status := unix.WaitStatus(unix.SIGTRAP<<8 | 0x7f)
	_, reason, err := p.HandleWait(1000, status)
	require.NoError(t, err)
	assert.Equal(t, StopBreakpoint, reason.Kind)
	require.NotNil(t, reason.Site)
	assert.Equal(t, uint64(0x2000), reason.Site.Addr)
}

func TestHandleWaitReportsOrdinarySignal(t *testing.T) {
	ctrl := newFakeControl()
	p := New(1000, true, ctrl, 0)
	thread, _ := p.CurrentThread()
	require.NoError(t, thread.SetRegisters(&riscv.CPUState{PC: 0x3000}))

	status := unix.WaitStatus(unix.SIGSEGV<<8 | 0x7f)
	_, reason, err := p.HandleWait(1000, status)
	require.NoError(t, err)
	assert.Equal(t, StopSignal, reason.Kind)
	assert.Equal(t, int(unix.SIGSEGV), reason.Signal)
}

func TestHandleWaitReportsExit(t *testing.T) {
	ctrl := newFakeControl()
	p := New(1000, true, ctrl, 0)

	status := unix.WaitStatus(7 << 8) // exited with status 7
	thread, reason, err := p.HandleWait(1000, status)
	require.NoError(t, err)
	assert.Equal(t, StopExited, reason.Kind)
	assert.Equal(t, 7, reason.ExitCode)
	assert.Equal(t, Terminated, thread.State)
}

type fakeForker struct{ pid int }

func (f fakeForker) ForkExit() (int, error) { return f.pid, nil }

func TestHandleWaitResolvesPendingInterrupt(t *testing.T) {
	ctrl := newFakeControl()
	p := New(1000, true, ctrl, 0)
	p.Waiter = interrupt.NewWaiterWithForker(fakeForker{pid: 4242})
	require.NoError(t, p.Waiter.SendInterrupt())

	status := unix.WaitStatus(0) // forked child's clean exit
	_, reason, err := p.HandleWait(4242, status)
	require.NoError(t, err)
	assert.Equal(t, StopInterrupted, reason.Kind)
}

func TestDetachReleasesEveryThread(t *testing.T) {
	ctrl := newFakeControl()
	p := New(1000, true, ctrl, 0)
	p.AddThread(1001)

	require.NoError(t, p.Detach())
	assert.ElementsMatch(t, []int{1000, 1001}, ctrl.detached)
}

func TestTerminateKillsProcess(t *testing.T) {
	ctrl := newFakeControl()
	p := New(1000, true, ctrl, 0)

	require.NoError(t, p.Terminate())
	assert.Equal(t, []int{1000}, ctrl.killed)
}
