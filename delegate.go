package agent

import "github.com/debugstub/ds2agent/internal/session"

// SessionDelegate is the public seam over a Session's command dispatch:
// anything satisfying it can be registered into a Session's registry, the
// same contract internal/session's DebugDelegate and PlatformDelegate
// meet. Exported so a caller embedding this package can add its own
// command groups (e.g. a vendor qXfer extension) without reaching into
// internal/session.
type SessionDelegate interface {
	Register(r *session.Registry)
	NoAckRequested() bool
}

var _ delegate = SessionDelegate(nil)
