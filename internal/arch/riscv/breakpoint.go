package riscv

import (
	"github.com/debugstub/ds2agent/internal/breakpoint"
	"github.com/debugstub/ds2agent/internal/constants"
)

// Trap implements the breakpoint package's SizeChooser and TrapEncoder
// interfaces for RISC-V: choose_size reads the instruction at an address
// to decide between the compressed and full trap opcode, and TrapBytes
// returns the little-endian encoding of whichever was chosen.
type Trap struct{}

// ChooseSize reads the two bytes at addr and returns 4 if they decode as
// the start of a full RVI instruction (low two bits == 0b11), else 2.
func (Trap) ChooseSize(mem breakpoint.Memory, addr uint64) (int, error) {
	data, err := mem.ReadMemory(addr, 2)
	if err != nil {
		return 0, err
	}
	if le16(data)&constants.RiscvQuadrantMask == constants.RiscvQuadrantRVI {
		return constants.RiscvEBreakSize, nil
	}
	return constants.RiscvCEBreakSize, nil
}

// TrapBytes returns the little-endian trap opcode bytes for a breakpoint
// of the given size: c.ebreak (2 bytes) or ebreak (4 bytes).
func (Trap) TrapBytes(size int) []byte {
	if size == constants.RiscvCEBreakSize {
		b := make([]byte, 2)
		b[0] = byte(constants.RiscvCEBreak)
		b[1] = byte(constants.RiscvCEBreak >> 8)
		return b
	}
	b := make([]byte, 4)
	b[0] = byte(constants.RiscvEBreak)
	b[1] = byte(constants.RiscvEBreak >> 8)
	b[2] = byte(constants.RiscvEBreak >> 16)
	b[3] = byte(constants.RiscvEBreak >> 24)
	return b
}
