package process

import (
	"github.com/debugstub/ds2agent/internal/agenterr"
	"github.com/debugstub/ds2agent/internal/arch/riscv"
	"github.com/debugstub/ds2agent/internal/arch/x86"
	"github.com/debugstub/ds2agent/internal/breakpoint"
	"golang.org/x/sys/unix"
)

// Action is a per-thread resume request, mirroring vCont's action letters.
type Action int

const (
	ActionContinue Action = iota
	ActionStep
	ActionContinueSignal
	ActionStepSignal
)

// Request pairs a resume action with an optional signal (for C/S-style
// actions) targeting one thread.
type Request struct {
	TID    int
	Action Action
	Signal int
}

// ResumeAll maps "continue all" to a per-thread continue, with no signal,
// on each stopped thread.
func (p *Process) ResumeAll() error {
	for tid, t := range p.Threads {
		if t.State != Stopped {
			continue
		}
		if err := p.resumeOne(tid, 0); err != nil {
			return err
		}
	}
	return nil
}

// Resume executes a single vCont-style request against one thread.
func (p *Process) Resume(req Request) error {
	switch req.Action {
	case ActionContinue, ActionContinueSignal:
		return p.resumeOne(req.TID, req.Signal)
	case ActionStep, ActionStepSignal:
		return p.step(req.TID, req.Signal)
	default:
		return agenterr.New("process.resume", agenterr.InvalidArgument, "unknown resume action")
	}
}

func (p *Process) resumeOne(tid int, sig int) error {
	t, ok := p.Threads[tid]
	if !ok {
		return agenterr.New("process.resume", agenterr.NotFound, "no such thread")
	}
	effective := 0
	if sig != 0 {
		if p.Passthrough[sig] {
			effective = sig
		}
		// Signals not in the passthrough set are swallowed here: they were
		// already queued as a stop reason when the wait event arrived.
	}
	if err := p.ctrl.Continue(tid, effective); err != nil {
		return agenterr.Wrap("process.resume", err)
	}
	t.State = Running
	t.invalidateRegisters()
	return nil
}

// step resumes tid for exactly one instruction: hardware single-step if
// the native layer supports it, otherwise the software planner plants a
// one-shot breakpoint at the predicted successor and the thread is
// continued normally.
func (p *Process) step(tid int, sig int) error {
	t, ok := p.Threads[tid]
	if !ok {
		return agenterr.New("process.step", agenterr.NotFound, "no such thread")
	}
	if t.hwStep {
		if err := p.ctrl.SingleStep(tid, sig); err != nil {
			return agenterr.Wrap("process.step", err)
		}
		t.State = Running
		t.invalidateRegisters()
		return nil
	}
	if p.Arch == ArchX86 {
		return p.plantX86StepBreakpoints(t, sig)
	}
	return p.plantStepBreakpoint(t, sig)
}

func (p *Process) plantStepBreakpoint(t *Thread, sig int) error {
	regs, err := t.Registers()
	if err != nil {
		return err
	}
	plan, err := riscv.PlanStep(threadMemory{t}, regs, false)
	if err != nil {
		if riscv.IsBug(err) {
			// Internal invariant violation: per the error-handling design
			// this is unrecoverable for the inferior.
			p.ctrl.Kill(t.PID)
		}
		return agenterr.Wrap("process.step", err)
	}
	if _, err := p.Breakpoints.Add(plan.Addr, breakpoint.TemporaryOneShot, plan.Size, breakpoint.ModeExec, false); err != nil {
		return err
	}
	return p.resumeOne(t.TID, sig)
}

// plantX86StepBreakpoints mirrors plantStepBreakpoint for an x86 target: a
// conditional branch can yield two candidate landing addresses rather than
// RISC-V's one, since the planner does not evaluate flags.
func (p *Process) plantX86StepBreakpoints(t *Thread, sig int) error {
	plan, err := x86.PlanStep(threadMemory{t}, x86ThreadRegs{t})
	if err != nil {
		return agenterr.Wrap("process.step", err)
	}
	for _, addr := range plan.Addrs {
		if _, err := p.Breakpoints.Add(addr, breakpoint.TemporaryOneShot, 0, breakpoint.ModeExec, false); err != nil {
			return err
		}
	}
	return p.resumeOne(t.TID, sig)
}

// WaitAny blocks for the next wait event from any thread of the process
// and dispatches it through HandleWait. Callers that drive a session's
// receive loop use this after resuming to learn when and why the
// inferior stopped again.
func (p *Process) WaitAny() (*Thread, StopReason, error) {
	tid, status, err := p.ctrl.Wait(-1, true)
	if err != nil {
		return nil, StopReason{}, agenterr.Wrap("process.waitAny", err)
	}
	return p.HandleWait(tid, status)
}

// HandleWait consumes one OS wait event for tid and updates thread state,
// returning the resulting stop reason. If the wait event was the pending
// interrupt being resolved, the reason is StopInterrupted.
func (p *Process) HandleWait(tid int, status unix.WaitStatus) (*Thread, StopReason, error) {
	t, ok := p.Threads[tid]
	if !ok {
		t = p.AddThread(tid)
	}

	if p.Waiter.CheckInterrupt(tid, status) {
		t.State = Stopped
		reason := StopReason{Kind: StopInterrupted}
		t.Stop = reason
		return t, reason, nil
	}

	switch {
	case status.Exited():
		t.State = Terminated
		reason := StopReason{Kind: StopExited, ExitCode: status.ExitStatus()}
		t.Stop = reason
		return t, reason, nil
	case status.Signaled():
		t.State = Terminated
		reason := StopReason{Kind: StopKilled, Signal: int(status.Signal())}
		t.Stop = reason
		return t, reason, nil
	case status.Stopped():
		return p.handleStopSignal(t, status)
	default:
		return t, StopReason{}, agenterr.New("process.handleWait", agenterr.Unknown, "unrecognized wait status")
	}
}

func (p *Process) handleStopSignal(t *Thread, status unix.WaitStatus) (*Thread, StopReason, error) {
	t.State = Stopped
	t.invalidateRegisters()
	sig := status.StopSignal()

	if sig == unix.SIGTRAP {
		regs, err := t.Registers()
		if err == nil {
			if site, hit := p.Breakpoints.Hit(regs.PC); hit {
				reason := StopReason{Kind: StopBreakpoint, Site: site}
				t.Stop = reason
				return t, reason, nil
			}
		}
		reason := StopReason{Kind: StopTrace}
		t.Stop = reason
		return t, reason, nil
	}

	reason := StopReason{Kind: StopSignal, Signal: int(sig)}
	t.Stop = reason
	return t, reason, nil
}
