package riscv

import "github.com/debugstub/ds2agent/internal/constants"

// Plan describes where a one-shot trap must be installed to emulate a
// single hardware step, and which trap opcode fits there.
type Plan struct {
	Addr      uint64
	Size      int
	TrapValue uint32
}

// PlanStep computes the software single-step plan for a thread currently
// stopped at regs.PC. rv32 distinguishes RV32 from RV64 for the one
// ambiguous compressed encoding (C.JAL vs reserved).
func PlanStep(mem Memory, regs *CPUState, rv32 bool) (Plan, error) {
	addr, size, err := Successor(mem, regs, regs.PC, rv32)
	if err != nil {
		return Plan{}, err
	}
	trap := constants.RiscvEBreak
	if size == 2 {
		trap = uint32(constants.RiscvCEBreak)
	}
	return Plan{Addr: addr, Size: size, TrapValue: trap}, nil
}
