// Package breakpoint implements the reference-counted breakpoint and
// watchpoint manager: an arena of sites indexed by address, software
// trap-opcode installation with memory splicing, and a hardware
// debug-register bank abstraction for architectures that support one.
package breakpoint

import "github.com/debugstub/ds2agent/internal/agenterr"

// Mode identifies what a site watches for.
type Mode int

const (
	ModeExec Mode = iota
	ModeRead
	ModeWrite
	ModeAccess
)

// Lifetime controls when a site is automatically removed.
type Lifetime int

const (
	// Permanent sites are only removed by an explicit remove() call.
	Permanent Lifetime = iota
	// Temporary sites are handled like Permanent by the manager: they are
	// removed only by an explicit remove() or by detaching all sites; the
	// manager has no separate sweep of them.
	Temporary
	// TemporaryOneShot sites are removed by the manager on first hit.
	TemporaryOneShot
)

// Site is one installed breakpoint or watchpoint.
type Site struct {
	ID       int
	Addr     uint64
	Size     int
	Mode     Mode
	Lifetime Lifetime
	RefCount int

	// Saved holds the original bytes a software site overwrote with a
	// trap opcode. Empty for hardware sites.
	Saved []byte
	// Hardware is true if this site occupies a debug-register slot
	// rather than patched memory.
	Hardware bool
	// Slot is the debug-register index for a hardware site.
	Slot int
}

func isValid(size int, mode Mode, hardware bool) error {
	if !hardware && mode != ModeExec {
		return agenterr.New("breakpoint.add", agenterr.Unsupported, "watchpoints require hardware support")
	}
	// Hardware sites (breakpoints or watchpoints) occupy a debug register
	// sized to the access being watched, so the wider 8-byte width is
	// valid there. Software sites are a patched trap opcode in memory;
	// spec.md restricts those to {0, 2, 4}.
	if hardware {
		switch size {
		case 0, 1, 2, 4, 8:
			return nil
		default:
			return agenterr.New("breakpoint.add", agenterr.InvalidArgument, "hardware site size must be 0, 1, 2, 4 or 8")
		}
	}
	switch size {
	case 0, 2, 4:
		return nil
	default:
		return agenterr.New("breakpoint.add", agenterr.InvalidArgument, "size must be 0, 2 or 4")
	}
}
