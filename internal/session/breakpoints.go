package session

import (
	"strings"

	"github.com/debugstub/ds2agent/internal/agenterr"
	"github.com/debugstub/ds2agent/internal/breakpoint"
)

// registerBreakpoints wires the Z/z insert/remove commands. Type 0 is a
// software breakpoint; type 1 is a hardware breakpoint; types 2/3/4 are
// write/read/access watchpoints. Every type funnels through the same
// breakpoint.Manager, which rejects watchpoints on targets with no
// hardware debug-register slots.
func (d *DebugDelegate) registerBreakpoints(r *Registry) {
	r.Prefix("Z", d.insertBreakpoint)
	r.Prefix("z", d.removeBreakpoint)
}

func breakpointMode(kind int) (mode breakpoint.Mode, hardware bool, err error) {
	switch kind {
	case 0:
		return breakpoint.ModeExec, false, nil
	case 1:
		return breakpoint.ModeExec, true, nil
	case 2:
		return breakpoint.ModeWrite, true, nil
	case 3:
		return breakpoint.ModeRead, true, nil
	case 4:
		return breakpoint.ModeAccess, true, nil
	default:
		return 0, false, agenterr.New("breakpoint", agenterr.InvalidArgument, "unknown Z/z type")
	}
}

func parseZArgs(rest string) (kind int, addr uint64, size int, err error) {
	parts := strings.Split(rest, ",")
	if len(parts) != 3 {
		return 0, 0, 0, agenterr.New("breakpoint", agenterr.InvalidArgument, "expected type,addr,kind")
	}
	kind, err = parseHexInt(parts[0])
	if err != nil {
		return 0, 0, 0, err
	}
	addr, err = parseHexUint64(parts[1])
	if err != nil {
		return 0, 0, 0, err
	}
	size, err = parseHexInt(parts[2])
	if err != nil {
		return 0, 0, 0, err
	}
	return kind, addr, size, nil
}

func (d *DebugDelegate) insertBreakpoint(payload string) ([]byte, error) {
	kind, addr, size, err := parseZArgs(strings.TrimPrefix(payload, "Z"))
	if err != nil {
		return errReply(err), nil
	}
	mode, hardware, err := breakpointMode(kind)
	if err != nil {
		return errReply(err), nil
	}
	if _, err := d.Proc.Breakpoints.Add(addr, breakpoint.Permanent, size, mode, hardware); err != nil {
		return errReply(err), nil
	}
	return okReply, nil
}

func (d *DebugDelegate) removeBreakpoint(payload string) ([]byte, error) {
	_, addr, _, err := parseZArgs(strings.TrimPrefix(payload, "z"))
	if err != nil {
		return errReply(err), nil
	}
	if err := d.Proc.Breakpoints.Remove(addr); err != nil {
		return errReply(err), nil
	}
	return okReply, nil
}
