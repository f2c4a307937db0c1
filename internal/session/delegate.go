package session

import (
	"time"

	"github.com/debugstub/ds2agent/internal/fileops"
	"github.com/debugstub/ds2agent/internal/interfaces"
	"github.com/debugstub/ds2agent/internal/process"
)

// DebugDelegate serves a session attached to one inferior: execution
// control, thread selection, state queries and breakpoints on top of the
// handshake and file-op groups it shares with PlatformDelegate.
type DebugDelegate struct {
	CommonDelegate

	Proc     *process.Process
	Observer interfaces.Observer
	RV32     bool

	threadIterTIDs []int
	threadIterPos  int
}

// NewDebugDelegate wires a delegate around an already-attached process.
func NewDebugDelegate(proc *process.Process, files *fileops.Table, observer interfaces.Observer) *DebugDelegate {
	if observer == nil {
		observer = NoOpObserver{}
	}
	return &DebugDelegate{
		CommonDelegate: CommonDelegate{Files: files},
		Proc:           proc,
		Observer:       observer,
	}
}

// NoOpObserver is a minimal interfaces.Observer the delegate falls back
// to when no metrics sink was supplied.
type NoOpObserver struct{}

func (NoOpObserver) ObservePacket(int, bool)                   {}
func (NoOpObserver) ObserveStop(string, time.Duration)         {}
func (NoOpObserver) ObserveCommand(string, time.Duration, bool) {}
func (NoOpObserver) ObserveMemoryOp(int, bool, uint64, bool)    {}

// Register wires every command group this delegate serves into r.
func (d *DebugDelegate) Register(r *Registry) {
	d.RegisterHandshake(r)
	d.RegisterFileOps(r)
	d.registerExecution(r)
	d.registerThreads(r)
	d.registerState(r)
	d.registerBreakpoints(r)
}

// observeCommand wraps fn, timing it and reporting the outcome.
func (d *DebugDelegate) observeCommand(name string, fn func() ([]byte, error)) ([]byte, error) {
	start := time.Now()
	resp, err := fn()
	d.Observer.ObserveCommand(name, time.Since(start), err == nil)
	return resp, err
}

var _ interfaces.Observer = NoOpObserver{}
