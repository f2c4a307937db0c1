//go:build linux

// Package native wraps the host OS debugging primitives — trace attach,
// continue, single-step, memory peek/poke, register-set transfer — behind
// one small contract per operation, with structured per-call logging in
// the same style the rest of this agent logs at its boundaries.
package native

import (
	"fmt"
	"unsafe"

	"github.com/debugstub/ds2agent/internal/agenterr"
	"github.com/debugstub/ds2agent/internal/logging"
	"golang.org/x/sys/unix"
)

// NT_PRSTATUS and NT_FPREGSET select the general-purpose and
// floating-point register sets for PTRACE_GETREGSET/SETREGSET, per the
// portable ELF core-note numbering every architecture shares.
const (
	ntPRStatus = 1
	ntFPRegSet = 2
)

// Control is the per-process handle onto the native tracing primitives.
// It carries no process state of its own beyond the logger; the process
// model above it owns thread bookkeeping.
type Control struct {
	logger *logging.Logger
}

// NewControl constructs a Control that logs through logger (the package
// default logger if nil).
func NewControl(logger *logging.Logger) *Control {
	if logger == nil {
		logger = logging.Default()
	}
	return &Control{logger: logger}
}

// Attach traces an already-running process, per trace-attach in the
// process model's attach lifecycle.
func (c *Control) Attach(pid int) error {
	c.logger.Debug("ptrace attach", "pid", pid)
	if err := unix.PtraceAttach(pid); err != nil {
		return agenterr.Wrap("native.attach", err)
	}
	return nil
}

// TraceMe is called in the forked child before exec, per the spawn
// lifecycle (fork; setpgid(0,0); drop setgid; trace_me; exec).
func TraceMe() error {
	return unix.PtraceTraceme()
}

// SetOptions configures per-OS trace options (follow-fork, report-exec,
// suppress group-stop) after the initial stop.
func (c *Control) SetOptions(pid int, options int) error {
	c.logger.Debug("ptrace setoptions", "pid", pid, "options", fmt.Sprintf("0x%x", options))
	if err := unix.PtraceSetOptions(pid, options); err != nil {
		return agenterr.Wrap("native.setOptions", err)
	}
	return nil
}

// Detach releases tracing, letting the inferior run free.
func (c *Control) Detach(pid int) error {
	c.logger.Debug("ptrace detach", "pid", pid)
	if err := unix.PtraceDetach(pid); err != nil {
		return agenterr.Wrap("native.detach", err)
	}
	return nil
}

// Continue resumes pid, delivering sig (0 for none).
func (c *Control) Continue(pid int, sig int) error {
	c.logger.Debug("ptrace cont", "pid", pid, "sig", sig)
	if err := unix.PtraceCont(pid, sig); err != nil {
		return agenterr.Wrap("native.continue", err)
	}
	return nil
}

// SingleStep requests one hardware instruction step on pid, delivering
// sig (0 for none). Callers should prefer this over the software planner
// whenever the architecture supports it.
func (c *Control) SingleStep(pid int, sig int) error {
	c.logger.Debug("ptrace singlestep", "pid", pid, "sig", sig)
	if _, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_SINGLESTEP, uintptr(pid), 0, uintptr(sig), 0, 0); errno != 0 {
		return agenterr.Wrap("native.step", errno)
	}
	return nil
}

// Kill sends an unconditional SIGKILL to pid, per terminate().
func (c *Control) Kill(pid int) error {
	c.logger.Debug("kill", "pid", pid)
	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		return agenterr.Wrap("native.kill", err)
	}
	return nil
}

// Wait blocks (or polls, if hang is false) for a state change in the
// child selected by pid as wait4 reads it (a specific pid, or -1 for any
// child), matching the POSIX wait() primitive the process model's event
// loop drives.
func (c *Control) Wait(pid int, hang bool) (stoppedPID int, status unix.WaitStatus, err error) {
	var ws unix.WaitStatus
	flags := 0
	if !hang {
		flags = unix.WNOHANG
	}
	got, werr := unix.Wait4(pid, &ws, flags, nil)
	if werr != nil {
		return 0, 0, agenterr.Wrap("native.wait", werr)
	}
	return got, ws, nil
}

// ReadMemory reads size bytes at addr from pid's address space via
// PTRACE_PEEKTEXT-equivalent bulk transfer.
func (c *Control) ReadMemory(pid int, addr uint64, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := unix.PtracePeekText(pid, uintptr(addr), buf)
	if err != nil {
		return nil, agenterr.Wrap("native.readMemory", err)
	}
	return buf[:n], nil
}

// WriteMemory writes data to addr in pid's address space.
func (c *Control) WriteMemory(pid int, addr uint64, data []byte) error {
	_, err := unix.PtracePokeText(pid, uintptr(addr), data)
	if err != nil {
		return agenterr.Wrap("native.writeMemory", err)
	}
	return nil
}

// GetRegisterSet reads the register set identified by setType (ntPRStatus
// or ntFPRegSet) into buf via PTRACE_GETREGSET, the architecture-portable
// mechanism every register layout (including RISC-V) shares.
func (c *Control) GetRegisterSet(pid int, setType int, buf []byte) error {
	iov := unix.Iovec{Base: &buf[0], Len: uint64(len(buf))}
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_GETREGSET,
		uintptr(pid), uintptr(setType), uintptr(unsafe.Pointer(&iov)), 0, 0)
	if errno != 0 {
		return agenterr.Wrap("native.getRegisterSet", errno)
	}
	return nil
}

// SetRegisterSet writes buf back via PTRACE_SETREGSET.
func (c *Control) SetRegisterSet(pid int, setType int, buf []byte) error {
	iov := unix.Iovec{Base: &buf[0], Len: uint64(len(buf))}
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_SETREGSET,
		uintptr(pid), uintptr(setType), uintptr(unsafe.Pointer(&iov)), 0, 0)
	if errno != 0 {
		return agenterr.Wrap("native.setRegisterSet", errno)
	}
	return nil
}

// GetGPRegs reads the general-purpose register set (NT_PRSTATUS).
func (c *Control) GetGPRegs(pid int, buf []byte) error {
	return c.GetRegisterSet(pid, ntPRStatus, buf)
}

// SetGPRegs writes the general-purpose register set.
func (c *Control) SetGPRegs(pid int, buf []byte) error {
	return c.SetRegisterSet(pid, ntPRStatus, buf)
}

// GetFPRegs reads the floating-point register set (NT_FPREGSET).
func (c *Control) GetFPRegs(pid int, buf []byte) error {
	return c.GetRegisterSet(pid, ntFPRegSet, buf)
}

// SetFPRegs writes the floating-point register set.
func (c *Control) SetFPRegs(pid int, buf []byte) error {
	return c.SetRegisterSet(pid, ntFPRegSet, buf)
}
