// Package process implements the inferior process and thread model: the
// state machine that tracks each thread's running/stopped/terminated
// status, dispatches wait events, and implements "stop-the-world /
// resume selected" over the native control primitives.
package process

import (
	"github.com/debugstub/ds2agent/internal/agenterr"
	"github.com/debugstub/ds2agent/internal/arch/riscv"
	"github.com/debugstub/ds2agent/internal/arch/x86"
	"github.com/debugstub/ds2agent/internal/breakpoint"
	"github.com/debugstub/ds2agent/internal/interrupt"
	"golang.org/x/sys/unix"
)

// State is a thread's lifecycle state.
type State int

const (
	Running State = iota
	Stopped
	Terminated
)

// StopKind classifies why a thread last stopped.
type StopKind int

const (
	StopNone StopKind = iota
	StopBreakpoint
	StopTrace
	StopSignal
	StopExited
	StopKilled
	StopInterrupted
)

// StopReason describes the most recent stop of a thread.
type StopReason struct {
	Kind        StopKind
	Signal      int
	Site        *breakpoint.Site // set for StopBreakpoint
	ExitCode    int
	Description string
}

// NativeControl is the subset of native.Control the process model drives.
// Expressed as an interface so tests can substitute a fake tracer.
type NativeControl interface {
	Continue(pid int, sig int) error
	SingleStep(pid int, sig int) error
	Detach(pid int) error
	Kill(pid int) error
	Wait(pid int, hang bool) (int, unix.WaitStatus, error)
	ReadMemory(pid int, addr uint64, size int) ([]byte, error)
	WriteMemory(pid int, addr uint64, data []byte) error
	GetGPRegs(pid int, buf []byte) error
	SetGPRegs(pid int, buf []byte) error
}

// Thread is one traced thread of control.
type Thread struct {
	TID   int
	PID   int // owning process id
	State State
	Stop  StopReason

	regsLoaded bool
	regs       riscv.CPUState

	hwStep bool // true if the native layer supports hardware single-step

	ctrl NativeControl
}

// threadMemory adapts a Thread to the narrow Memory interfaces the
// breakpoint manager and RISC-V decoder need.
type threadMemory struct{ t *Thread }

func (m threadMemory) ReadMemory(addr uint64, size int) ([]byte, error) {
	return m.t.ctrl.ReadMemory(m.t.TID, addr, size)
}

func (m threadMemory) WriteMemory(addr uint64, data []byte) error {
	return m.t.ctrl.WriteMemory(m.t.TID, addr, data)
}

// Registers returns the thread's cached CPU state, loading it from native
// control on first access. Per the data model invariant, this is only
// valid while the thread is Stopped.
func (t *Thread) Registers() (*riscv.CPUState, error) {
	if t.State != Stopped {
		return nil, agenterr.New("thread.registers", agenterr.InvalidArgument, "thread is not stopped")
	}
	if t.regsLoaded {
		return &t.regs, nil
	}
	buf := make([]byte, len(t.regs.Marshal()))
	if err := t.ctrl.GetGPRegs(t.TID, buf); err != nil {
		return nil, agenterr.Wrap("thread.registers", err)
	}
	if err := t.regs.Unmarshal(buf); err != nil {
		return nil, agenterr.Wrap("thread.registers", err)
	}
	t.regsLoaded = true
	return &t.regs, nil
}

// SetRegisters writes state back to native control and updates the cache.
func (t *Thread) SetRegisters(state *riscv.CPUState) error {
	if t.State != Stopped {
		return agenterr.New("thread.setRegisters", agenterr.InvalidArgument, "thread is not stopped")
	}
	if err := t.ctrl.SetGPRegs(t.TID, state.Marshal()); err != nil {
		return agenterr.Wrap("thread.setRegisters", err)
	}
	t.regs = *state
	t.regsLoaded = true
	return nil
}

func (t *Thread) invalidateRegisters() {
	t.regsLoaded = false
}

// Arch selects which software single-step planner and trap encoding a
// Process's breakpoint manager uses. RISC-V is the primary, fully wired
// target; X86 only wires the step planner and INT3 trap encoding, not a
// parallel register wire format (internal/session's register commands
// remain RISC-V-only).
type Arch int

const (
	ArchRISCV Arch = iota
	ArchX86
)

// Process owns a traced inferior: its thread table, the breakpoint
// manager guarding its address space, the signal passthrough set, and
// the wait interrupter unblocking a synchronous wait.
type Process struct {
	PID      int
	Attached bool
	Arch     Arch

	Threads     map[int]*Thread
	CurrentTID  int
	Passthrough map[int]bool

	Breakpoints *breakpoint.Manager
	Waiter      *interrupt.Waiter

	ctrl NativeControl
}

// New constructs a Process for pid, already stopped at its initial trace
// event, with one thread (pid itself, the usual case before a thread
// library registers additional threads).
func New(pid int, attached bool, ctrl NativeControl, hwSlots int) *Process {
	p := &Process{
		PID:         pid,
		Attached:    attached,
		Threads:     make(map[int]*Thread),
		Passthrough: make(map[int]bool),
		Waiter:      interrupt.NewWaiter(),
		ctrl:        ctrl,
	}
	main := &Thread{TID: pid, PID: pid, State: Stopped, ctrl: ctrl}
	p.Threads[pid] = main
	p.CurrentTID = pid
	p.Breakpoints = breakpoint.NewManager(threadMemory{main}, riscv.Trap{}, riscv.Trap{}, hwSlots)
	return p
}

// NewX86 constructs a Process the same way New does, but selects the x86
// software single-step planner and INT3 trap encoding instead of
// RISC-V's, for an x86-64 inferior.
func NewX86(pid int, attached bool, ctrl NativeControl, hwSlots int) *Process {
	p := New(pid, attached, ctrl, hwSlots)
	p.Arch = ArchX86
	p.Breakpoints = breakpoint.NewManager(threadMemory{p.Threads[pid]}, x86.Trap{}, x86.Trap{}, hwSlots)
	return p
}

// AddThread registers a newly observed thread (e.g. from a
// PTRACE_EVENT_CLONE stop).
func (p *Process) AddThread(tid int) *Thread {
	t := &Thread{TID: tid, PID: p.PID, State: Stopped, ctrl: p.ctrl}
	p.Threads[tid] = t
	return t
}

// CurrentThread returns the thread selected by Hg/Hc, defaulting to the
// process's main thread if none was ever selected.
func (p *Process) CurrentThread() (*Thread, error) {
	t, ok := p.Threads[p.CurrentTID]
	if !ok {
		return nil, agenterr.New("process.currentThread", agenterr.NotFound, "no such thread")
	}
	return t, nil
}

// SelectThread changes the current thread for subsequent register/memory
// operations.
func (p *Process) SelectThread(tid int) error {
	if _, ok := p.Threads[tid]; !ok {
		return agenterr.New("process.selectThread", agenterr.NotFound, "no such thread")
	}
	p.CurrentTID = tid
	return nil
}

// ReadMemory reads through the breakpoint manager so any installed
// software site's saved bytes are spliced back in.
func (p *Process) ReadMemory(addr uint64, size int) ([]byte, error) {
	return p.Breakpoints.ReadMemory(addr, size)
}

// WriteMemory writes through the breakpoint manager, which shadows any
// write overlapping an installed site rather than clobbering the trap.
func (p *Process) WriteMemory(addr uint64, data []byte) error {
	return p.Breakpoints.WriteMemory(addr, data)
}

// Detach removes all software breakpoint sites (restoring original
// bytes) and releases tracing on every thread.
func (p *Process) Detach() error {
	if err := p.Breakpoints.DetachAll(); err != nil {
		return err
	}
	for tid := range p.Threads {
		if err := p.ctrl.Detach(tid); err != nil {
			return agenterr.Wrap("process.detach", err)
		}
	}
	return nil
}

// Terminate sends an unconditional kill to the process, per the
// terminate() lifecycle operation.
func (p *Process) Terminate() error {
	if err := p.ctrl.Kill(p.PID); err != nil {
		return agenterr.Wrap("process.terminate", err)
	}
	return nil
}
