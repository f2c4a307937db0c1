package riscv

import (
	"github.com/debugstub/ds2agent/internal/constants"
)

// Memory is the narrow read surface the single-step planner needs.
type Memory interface {
	ReadMemory(addr uint64, size int) ([]byte, error)
}

// bugSignal is raised for instruction patterns the architecture forbids
// (illegal branch funct3 values). The caller treats this as an
// unrecoverable invariant violation: log and abort, per the error
// handling design's treatment of internal invariant violations.
type bugSignal struct{ msg string }

func (b *bugSignal) Error() string { return b.msg }

// IsBug reports whether err came from an illegal-encoding invariant
// violation rather than an ordinary I/O failure.
func IsBug(err error) bool {
	_, ok := err.(*bugSignal)
	return ok
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func signExtend(v uint32, bits int) int64 {
	shift := 32 - bits
	return int64(int32(v<<shift)) >> shift
}

// Successor computes the address and encoding size (2 or 4 bytes) of the
// instruction that will execute after the one at pc, per §4.5's
// algorithm. rv32 selects whether quadrant-1 funct3==1 is C.JAL (RV32
// only) or reserved (RV64).
func Successor(mem Memory, regs *CPUState, pc uint64, rv32 bool) (addr uint64, size int, err error) {
	lo, err := mem.ReadMemory(pc, 2)
	if err != nil {
		return 0, 0, err
	}
	half := le16(lo)

	if half&constants.RiscvQuadrantMask == constants.RiscvQuadrantRVI {
		hi, err := mem.ReadMemory(pc, 4)
		if err != nil {
			return 0, 0, err
		}
		instr := le32(hi)
		addr, err = successorRVI(regs, pc, instr)
		if err != nil {
			return 0, 0, err
		}
	} else {
		addr = successorRVC(regs, pc, half, rv32)
	}

	dst, err := mem.ReadMemory(addr, 2)
	if err != nil {
		return 0, 0, err
	}
	if le16(dst)&constants.RiscvQuadrantMask == constants.RiscvQuadrantRVI {
		size = 4
	} else {
		size = 2
	}
	return addr, size, nil
}

func successorRVI(regs *CPUState, pc uint64, instr uint32) (uint64, error) {
	opcode := instr & constants.RiscvOpcodeMask

	switch opcode {
	case constants.RiscvOpBranch:
		rs1 := int((instr >> 15) & 0x1f)
		rs2 := int((instr >> 20) & 0x1f)
		funct3 := (instr >> 12) & 0x7

		imm := ((instr >> 31) & 0x1) << 12
		imm |= ((instr >> 7) & 0x1) << 11
		imm |= ((instr >> 25) & 0x3f) << 5
		imm |= ((instr >> 8) & 0xf) << 1
		offset := signExtend(imm, 13)

		a, b := regs.Reg(rs1), regs.Reg(rs2)
		var taken bool
		switch funct3 {
		case 0: // BEQ
			taken = a == b
		case 1: // BNE
			taken = a != b
		case 4: // BLT
			taken = int64(a) < int64(b)
		case 5: // BGE
			taken = int64(a) >= int64(b)
		case 6: // BLTU
			taken = a < b
		case 7: // BGEU
			taken = a >= b
		default:
			return 0, &bugSignal{msg: "riscv: illegal branch funct3"}
		}
		if taken {
			return uint64(int64(pc) + offset), nil
		}
		return pc + 4, nil

	case constants.RiscvOpJALR:
		funct3 := (instr >> 12) & 0x7
		if funct3 != 0 {
			return pc + 4, nil
		}
		rs1 := int((instr >> 15) & 0x1f)
		imm := signExtend(instr>>20, 12)
		return uint64(int64(regs.Reg(rs1)) + imm), nil

	case constants.RiscvOpJAL:
		imm := ((instr >> 31) & 0x1) << 20
		imm |= ((instr >> 12) & 0xff) << 12
		imm |= ((instr >> 20) & 0x1) << 11
		imm |= ((instr >> 21) & 0x3ff) << 1
		offset := signExtend(imm, 21)
		return uint64(int64(pc) + offset), nil

	default:
		return pc + 4, nil
	}
}

func successorRVC(regs *CPUState, pc uint64, instr uint16, rv32 bool) uint64 {
	quadrant := instr & 0x3
	funct3 := (instr >> 13) & 0x7

	switch quadrant {
	case 1:
		if funct3 == 5 || (rv32 && funct3 == 1) {
			var imm uint32
			imm |= bit(instr, 12) << 11
			imm |= bit(instr, 11) << 4
			imm |= bit(instr, 10) << 9
			imm |= bit(instr, 9) << 8
			imm |= bit(instr, 8) << 10
			imm |= bit(instr, 7) << 6
			imm |= bit(instr, 6) << 7
			imm |= bits(instr, 5, 3) << 1
			imm |= bit(instr, 2) << 5
			offset := signExtend(imm, 12)
			return uint64(int64(pc) + offset)
		}
		if funct3 == 6 || funct3 == 7 {
			rs := 8 + int((instr>>7)&0x7)
			var imm uint32
			imm |= bit(instr, 12) << 8
			imm |= bits(instr, 11, 10) << 3
			imm |= bits(instr, 6, 5) << 6
			imm |= bits(instr, 4, 3) << 1
			imm |= bit(instr, 2) << 5
			offset := signExtend(imm, 9)

			isZero := regs.Reg(rs) == 0
			taken := (funct3 == 6 && isZero) || (funct3 == 7 && !isZero)
			if taken {
				return uint64(int64(pc) + offset)
			}
			return pc + 2
		}
		return pc + 2

	case 2:
		funct4 := (instr >> 12) & 0xf
		rs1 := int((instr >> 7) & 0x1f)
		rs2 := int((instr >> 2) & 0x1f)
		if (funct4 == 8 || funct4 == 9) && rs2 == 0 && rs1 != 0 {
			return regs.Reg(rs1)
		}
		return pc + 2

	default:
		return pc + 2
	}
}

func bit(instr uint16, n int) uint32 {
	return uint32((instr >> n) & 0x1)
}

func bits(instr uint16, hi, lo int) uint32 {
	mask := uint16(1<<(hi-lo+1)) - 1
	return uint32((instr >> lo) & mask)
}
