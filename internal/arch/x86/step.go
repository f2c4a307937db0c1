// Package x86 implements the x86-64 fallback software single-step
// planner: used only when a traced thread's native layer lacks hardware
// single-step support, decoding via x86asm instead of a hand-rolled
// table the way the RISC-V planner does.
package x86

import (
	"strings"

	"github.com/debugstub/ds2agent/internal/agenterr"
	"golang.org/x/arch/x86/x86asm"
)

// maxInstLen is the longest possible x86 instruction encoding.
const maxInstLen = 15

// Memory is the narrow read surface the planner needs.
type Memory interface {
	ReadMemory(addr uint64, size int) ([]byte, error)
}

// Regs is the narrow register surface the planner needs: RIP to decode
// from, and named 64-bit GPR reads to resolve register-indirect jumps.
type Regs interface {
	RIP() uint64
	GPR(name string) (uint64, error)
}

// Plan lists every address that must receive a one-shot int3 trap to
// emulate a single step from the current RIP. A conditional branch
// yields two addresses (fallthrough and taken target) because flags are
// not evaluated; an unconditional or resolvable indirect branch yields
// one.
type Plan struct {
	Addrs []uint64
}

// PlanStep decodes the instruction at regs.RIP() and computes every
// address a single step from there might land on.
func PlanStep(mem Memory, regs Regs) (Plan, error) {
	rip := regs.RIP()
	code, err := mem.ReadMemory(rip, maxInstLen)
	if err != nil {
		return Plan{}, err
	}

	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return Plan{}, agenterr.Wrap("x86.step", err)
	}

	fallthroughAddr := rip + uint64(inst.Len)

	switch inst.Op {
	case x86asm.JMP:
		target, ok, err := branchTarget(inst, rip, regs, mem)
		if err != nil {
			return Plan{}, err
		}
		if !ok {
			return Plan{Addrs: []uint64{fallthroughAddr}}, nil
		}
		return Plan{Addrs: []uint64{target}}, nil

	case x86asm.CALL:
		target, ok, err := branchTarget(inst, rip, regs, mem)
		if err != nil {
			return Plan{}, err
		}
		if !ok {
			return Plan{Addrs: []uint64{fallthroughAddr}}, nil
		}
		return Plan{Addrs: []uint64{target}}, nil

	case x86asm.RET:
		sp, err := regs.GPR("rsp")
		if err != nil {
			return Plan{}, err
		}
		ret, err := mem.ReadMemory(sp, 8)
		if err != nil {
			return Plan{}, err
		}
		return Plan{Addrs: []uint64{le64(ret)}}, nil

	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JE, x86asm.JG,
		x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE, x86asm.JNO, x86asm.JNP,
		x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JS,
		x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ,
		x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		target, ok, err := branchTarget(inst, rip, regs, mem)
		if err != nil {
			return Plan{}, err
		}
		if !ok {
			return Plan{Addrs: []uint64{fallthroughAddr}}, nil
		}
		return Plan{Addrs: []uint64{fallthroughAddr, target}}, nil

	default:
		return Plan{Addrs: []uint64{fallthroughAddr}}, nil
	}
}

// branchTarget resolves a jump/call's destination when it is a relative
// displacement or a register operand. Memory-indirect operands
// (`jmp [rax+8]` and similar) are not resolved; the caller falls back to
// trapping fallthrough only, which keeps the planner safe (it never
// reports a wrong target) at the cost of occasionally missing the real
// one for this rare case.
func branchTarget(inst x86asm.Inst, rip uint64, regs Regs, mem Memory) (uint64, bool, error) {
	if len(inst.Args) == 0 || inst.Args[0] == nil {
		return 0, false, nil
	}
	switch arg := inst.Args[0].(type) {
	case x86asm.Rel:
		return uint64(int64(rip) + int64(inst.Len) + int64(arg)), true, nil
	case x86asm.Reg:
		v, err := regs.GPR(strings.ToLower(arg.String()))
		if err != nil {
			return 0, false, nil
		}
		return v, true, nil
	default:
		return 0, false, nil
	}
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
