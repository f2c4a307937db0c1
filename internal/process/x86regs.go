package process

import (
	"github.com/debugstub/ds2agent/internal/agenterr"
)

// x86GPRegsLen is the byte length of Linux's x86_64 user_regs_struct: 27
// unsigned long fields, the NT_PRSTATUS layout PTRACE_GETREGSET fills in
// for an x86-64 target thread.
const x86GPRegsLen = 27 * 8

// x86 user_regs_struct field indices (Linux asm/user_64.h), used to pick
// a single register out of the raw GETREGSET buffer without decoding the
// rest: only RIP and a handful of GPRs are needed to resolve a single
// step's branch target.
const (
	x86FieldR15 = iota
	x86FieldR14
	x86FieldR13
	x86FieldR12
	x86FieldRBP
	x86FieldRBX
	x86FieldR11
	x86FieldR10
	x86FieldR9
	x86FieldR8
	x86FieldRAX
	x86FieldRCX
	x86FieldRDX
	x86FieldRSI
	x86FieldRDI
	x86FieldOrigRAX
	x86FieldRIP
	x86FieldCS
	x86FieldEFlags
	x86FieldRSP
)

var x86GPRFieldByName = map[string]int{
	"rax": x86FieldRAX, "rbx": x86FieldRBX, "rcx": x86FieldRCX, "rdx": x86FieldRDX,
	"rsi": x86FieldRSI, "rdi": x86FieldRDI, "rbp": x86FieldRBP, "rsp": x86FieldRSP,
	"r8": x86FieldR8, "r9": x86FieldR9, "r10": x86FieldR10, "r11": x86FieldR11,
	"r12": x86FieldR12, "r13": x86FieldR13, "r14": x86FieldR14, "r15": x86FieldR15,
}

// x86ThreadRegs adapts a Thread to the narrow RIP/GPR surface
// internal/arch/x86's step planner needs, reading directly through
// NativeControl rather than Thread's RISC-V-typed register cache (which
// only ever holds a riscv.CPUState).
type x86ThreadRegs struct{ t *Thread }

func (r x86ThreadRegs) raw() ([]byte, error) {
	buf := make([]byte, x86GPRegsLen)
	if err := r.t.ctrl.GetGPRegs(r.t.TID, buf); err != nil {
		return nil, agenterr.Wrap("x86regs.raw", err)
	}
	return buf, nil
}

func (r x86ThreadRegs) field(idx int) (uint64, error) {
	buf, err := r.raw()
	if err != nil {
		return 0, err
	}
	off := idx * 8
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(buf[off+i])
	}
	return v, nil
}

// RIP implements x86.Regs.
func (r x86ThreadRegs) RIP() uint64 {
	v, err := r.field(x86FieldRIP)
	if err != nil {
		return 0
	}
	return v
}

// GPR implements x86.Regs, resolving a lowercase 64-bit register name
// (rax, rsp, r8, ...). Names outside that set report an error so the
// planner falls back to the fallthrough-only, never-wrong plan.
func (r x86ThreadRegs) GPR(name string) (uint64, error) {
	idx, ok := x86GPRFieldByName[name]
	if !ok {
		return 0, agenterr.New("x86regs.gpr", agenterr.InvalidArgument, "unsupported register name")
	}
	return r.field(idx)
}
