// Package interrupt implements the wait interrupter: a single-slot latch
// that unblocks a synchronous OS wait when every inferior thread is
// already stopped and the debugger asks for an asynchronous interrupt.
package interrupt

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Forker spawns a short-lived child that immediately exits, returning its
// pid. Extracted as an interface so tests can substitute a fake without
// actually forking.
type Forker interface {
	ForkExit() (pid int, err error)
}

// osForker forks a real child via fork+_exit(0).
type osForker struct{}

func (osForker) ForkExit() (int, error) {
	pid, _, errno := unix.RawSyscall(unix.SYS_FORK, 0, 0, 0)
	if errno != 0 {
		return 0, errno
	}
	if pid == 0 {
		unix.RawSyscall(unix.SYS_EXIT, 0, 0, 0)
	}
	return int(pid), nil
}

// Waiter is the mutex-protected single-slot latch described in the
// process model's wait-interrupt discipline. At most one interrupt may
// be in flight; a second send_interrupt while one is pending is a no-op.
type Waiter struct {
	mu     sync.Mutex
	forker Forker
	pid    int
	armed  bool
}

// NewWaiter constructs a Waiter using the real OS forker.
func NewWaiter() *Waiter {
	return &Waiter{forker: osForker{}}
}

// NewWaiterWithForker constructs a Waiter backed by a caller-supplied
// Forker, letting tests (in this package and callers of it) substitute a
// fake without actually forking.
func NewWaiterWithForker(f Forker) *Waiter {
	return &Waiter{forker: f}
}

// SendInterrupt arms the latch if it is empty; if already armed, it is a
// no-op.
func (w *Waiter) SendInterrupt() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.armed {
		return nil
	}
	pid, err := w.forker.ForkExit()
	if err != nil {
		return err
	}
	w.pid = pid
	w.armed = true
	return nil
}

// CheckInterrupt reports whether the wait event (tid, status) was the
// pending interrupt: the slot is armed, tid matches the forked pid, and
// status is a clean exit. If so, the slot is cleared and true is
// returned; the caller should suppress this wait event and surface the
// thread's real pending stop as Interrupted instead.
func (w *Waiter) CheckInterrupt(tid int, status unix.WaitStatus) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed {
		return false
	}
	if tid != w.pid || !status.Exited() || status.ExitStatus() != 0 {
		return false
	}
	w.armed = false
	w.pid = 0
	return true
}

// Armed reports whether an interrupt is currently in flight.
func (w *Waiter) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}
