package agent

import (
	"context"
	"net"

	"github.com/debugstub/ds2agent/internal/channel"
	"github.com/debugstub/ds2agent/internal/fileops"
	"github.com/debugstub/ds2agent/internal/interfaces"
	"github.com/debugstub/ds2agent/internal/logging"
	"github.com/debugstub/ds2agent/internal/process"
	"github.com/debugstub/ds2agent/internal/session"
)

// delegate is the surface every internal/session delegate exposes to the
// Session that owns it: registering its command groups, and reporting
// whether the debugger has negotiated no-ack mode so the channel's codec
// can be switched to match.
type delegate interface {
	Register(r *session.Registry)
	NoAckRequested() bool
}

// Session glues a transport-backed channel to a command registry and
// runs the synchronous receive/dispatch/reply loop a GDB-RSP connection
// follows: one command in flight at a time, reply sent before the next
// packet is read, mirroring how the teacher's queue runner pairs one
// completion with one submission per tag.
type Session struct {
	ch       *channel.Channel
	registry *session.Registry
	delegate delegate
	logger   interfaces.Logger
	observer interfaces.Observer
	files    *fileops.Table
}

// NewDebugSession wires a Session that controls proc directly: execution
// control, thread selection, register/memory access and breakpoints, on
// top of the handshake and file-op groups every session serves.
func NewDebugSession(ctx context.Context, stream interfaces.ByteStream, proc *process.Process, files *fileops.Table, logger *logging.Logger, m *Metrics) *Session {
	if logger == nil {
		logger = logging.Default()
	}
	obs := observerOrNoOp(m)
	d := session.NewDebugDelegate(proc, files, obs)
	r := session.NewRegistry()
	d.Register(r)

	return &Session{
		ch:       channel.New(ctx, stream, logger),
		registry: r,
		delegate: d,
		logger:   logger,
		observer: obs,
		files:    files,
	}
}

// NewPlatformSession wires a Session with no attached inferior: it only
// serves the handshake, file-op and platform (qLaunchGDBServer and
// friends) command groups, spawning debug sessions on demand via server.
func NewPlatformSession(ctx context.Context, stream interfaces.ByteStream, files *fileops.Table, logger *logging.Logger, m *Metrics, server session.SpawnedSessionServer) *Session {
	if logger == nil {
		logger = logging.Default()
	}
	obs := observerOrNoOp(m)
	d := session.NewPlatformDelegate(files, obs, server)
	r := session.NewRegistry()
	d.Register(r)

	return &Session{
		ch:       channel.New(ctx, stream, logger),
		registry: r,
		delegate: d,
		logger:   logger,
		observer: obs,
		files:    files,
	}
}

func observerOrNoOp(m *Metrics) interfaces.Observer {
	if m == nil {
		return NoOpObserver{}
	}
	return NewMetricsObserver(m)
}

// ServeSpawned implements session.SpawnedSessionServer: it runs a fresh
// debug session over conn for proc until the debugger disconnects. Run's
// error is only logged, not propagated, since the parent platform
// session has already replied to qLaunchGDBServer by the time this runs.
func (s *Session) ServeSpawned(conn net.Conn, proc *process.Process) {
	child := NewDebugSession(context.Background(), conn, proc, s.files, s.loggerOrNil(), nil)
	if err := child.Run(context.Background()); err != nil {
		s.logger.Debugf("session: spawned child session ended: %v", err)
	}
}

func (s *Session) loggerOrNil() *logging.Logger {
	if l, ok := s.logger.(*logging.Logger); ok {
		return l
	}
	return nil
}

// Run drives the receive loop until the channel closes or ctx is
// cancelled. Every inbound payload is dispatched through the registry;
// an unmatched command gets an empty reply, the RSP convention for "not
// supported".
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return s.ch.Close()
		default:
		}

		ev, err := s.ch.Receive(true, -1)
		if err != nil {
			continue
		}

		switch ev.Kind {
		case channel.EventClosed:
			return nil
		case channel.EventInterrupt:
			s.observer.ObservePacket(0, true)
			continue
		case channel.EventPayload:
			s.observer.ObservePacket(len(ev.Payload), true)
			s.dispatch(ev.Payload)
		}
	}
}

func (s *Session) dispatch(payload []byte) {
	resp, err, ok := s.registry.Dispatch(string(payload))
	if !ok {
		resp = nil
	}
	if resp != nil {
		s.observer.ObservePacket(len(resp), false)
	}
	if !ok || resp != nil || err != nil {
		_ = s.ch.SendPacket(resp)
	}

	if s.delegate.NoAckRequested() {
		s.ch.SetNoAck(true)
	}
}
