package x86

import "github.com/debugstub/ds2agent/internal/breakpoint"

// Trap implements the breakpoint package's SizeChooser and TrapEncoder
// interfaces for x86: every software breakpoint is the single-byte INT3
// opcode, so there is nothing to choose.
type Trap struct{}

// ChooseSize always returns 1; x86 has no RISC-V-style instruction-width
// ambiguity to resolve.
func (Trap) ChooseSize(mem breakpoint.Memory, addr uint64) (int, error) {
	return 1, nil
}

// TrapBytes returns the INT3 opcode regardless of size.
func (Trap) TrapBytes(size int) []byte {
	return []byte{0xcc}
}
