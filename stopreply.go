package agent

import (
	"fmt"

	"github.com/debugstub/ds2agent/internal/process"
)

// TerminalReply formats the W/X packet for a process's final stop: W for
// a normal exit, X for death by signal, independent of any in-flight
// command's own stop-reply formatting inside internal/session. Neither
// the CLI entrypoint nor Session calls it; it is part of the package's
// exported surface only.
func TerminalReply(reason process.StopReason) ([]byte, bool) {
	switch reason.Kind {
	case process.StopExited:
		return []byte(fmt.Sprintf("W%02x", reason.ExitCode&0xff)), true
	case process.StopKilled:
		return []byte(fmt.Sprintf("X%02x", reason.Signal&0xff)), true
	default:
		return nil, false
	}
}
