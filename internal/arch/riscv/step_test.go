package riscv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMemory is a sparse byte-addressable memory for decoder tests.
type fakeMemory struct {
	bytes map[uint64]byte
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{bytes: make(map[uint64]byte)}
}

func (m *fakeMemory) writeAt(addr uint64, data []byte) {
	for i, b := range data {
		m.bytes[addr+uint64(i)] = b
	}
}

func (m *fakeMemory) ReadMemory(addr uint64, size int) ([]byte, error) {
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		out[i] = m.bytes[addr+uint64(i)]
	}
	return out, nil
}

func TestSuccessorNonBranchRVI(t *testing.T) {
	mem := newFakeMemory()
	// addi x1, x0, 1 : opcode 0x13, not branch/jalr/jal
	mem.writeAt(0x1000, []byte{0x93, 0x00, 0x10, 0x00})
	mem.writeAt(0x1004, []byte{0x73, 0x00, 0x10, 0x00})

	regs := &CPUState{PC: 0x1000}
	addr, size, err := Successor(mem, regs, regs.PC, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1004), addr)
	assert.Equal(t, 4, size)
}

func TestSuccessorRVCDefaultAdvance(t *testing.T) {
	mem := newFakeMemory()
	// c.nop at 0x2000 (quadrant 1, funct3 0, not a control-flow instruction)
	mem.writeAt(0x2000, []byte{0x01, 0x00})
	mem.writeAt(0x2002, []byte{0x02, 0x90}) // c.ebreak destination, irrelevant

	regs := &CPUState{PC: 0x2000}
	addr, size, err := Successor(mem, regs, regs.PC, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x2002), addr)
	assert.Equal(t, 2, size)
}

func TestSuccessorJAL(t *testing.T) {
	mem := newFakeMemory()
	// jal x1, +0x20 at pc=0x1000 -> target 0x1020
	// imm[20], imm[11] and imm[19:12] = 0, rd=x1, opcode=0x6f
	// offset 0x20 = 0b10_0000 -> imm[10:1] bits: value>>1 = 0x10 = 0b0010000
	imm := uint32(0x20)
	instr := uint32(constants_RiscvOpJAL)
	instr |= (1) << 7 // rd = x1
	instr |= ((imm >> 20) & 0x1) << 31
	instr |= ((imm >> 12) & 0xff) << 12
	instr |= ((imm >> 11) & 0x1) << 20
	instr |= ((imm >> 1) & 0x3ff) << 21
	mem.writeAt(0x1000, le32bytes(instr))
	mem.writeAt(0x1020, []byte{0x73, 0x00, 0x10, 0x00}) // ebreak, 4-byte dest

	regs := &CPUState{PC: 0x1000}
	addr, size, err := Successor(mem, regs, regs.PC, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1020), addr)
	assert.Equal(t, 4, size)
}

func TestSuccessorBranchTaken(t *testing.T) {
	mem := newFakeMemory()
	// beq x1, x2, +8 at pc=0x1000 -> taken when x1==x2 -> target 0x1008
	instr := encodeBType(0, 1, 2, 8)
	mem.writeAt(0x1000, le32bytes(instr))
	mem.writeAt(0x1008, []byte{0x02, 0x90}) // 2-byte dest (c.ebreak)

	regs := &CPUState{PC: 0x1000}
	regs.SetReg(1, 5)
	regs.SetReg(2, 5)

	addr, size, err := Successor(mem, regs, regs.PC, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1008), addr)
	assert.Equal(t, 2, size)
}

func TestSuccessorBranchNotTaken(t *testing.T) {
	mem := newFakeMemory()
	instr := encodeBType(0, 1, 2, 8)
	mem.writeAt(0x1000, le32bytes(instr))
	mem.writeAt(0x1004, []byte{0x73, 0x00, 0x10, 0x00})

	regs := &CPUState{PC: 0x1000}
	regs.SetReg(1, 5)
	regs.SetReg(2, 9)

	addr, size, err := Successor(mem, regs, regs.PC, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1004), addr)
	assert.Equal(t, 4, size)
}

func TestPlanStepChoosesTrapSizeFourByte(t *testing.T) {
	mem := newFakeMemory()
	mem.writeAt(0x1000, []byte{0x93, 0x00, 0x10, 0x00})
	mem.writeAt(0x1004, []byte{0x73, 0x00, 0x10, 0x00})

	regs := &CPUState{PC: 0x1000}
	plan, err := PlanStep(mem, regs, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1004), plan.Addr)
	assert.Equal(t, 4, plan.Size)
	assert.Equal(t, uint32(0x00100073), plan.TrapValue)
}

func TestPlanStepChoosesTrapSizeTwoByte(t *testing.T) {
	mem := newFakeMemory()
	mem.writeAt(0x2000, []byte{0x01, 0x00})
	mem.writeAt(0x2002, []byte{0x02, 0x90})

	regs := &CPUState{PC: 0x2000}
	plan, err := PlanStep(mem, regs, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x2002), plan.Addr)
	assert.Equal(t, 2, plan.Size)
	assert.Equal(t, uint32(0x9002), plan.TrapValue)
}

func TestSuccessorIllegalBranchFunct3IsBug(t *testing.T) {
	mem := newFakeMemory()
	instr := encodeBType(2, 1, 2, 8) // funct3=2 is illegal
	mem.writeAt(0x1000, le32bytes(instr))

	regs := &CPUState{PC: 0x1000}
	_, _, err := Successor(mem, regs, regs.PC, false)
	require.Error(t, err)
	assert.True(t, IsBug(err))
}

const constants_RiscvOpJAL = 0x6f

func le32bytes(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func encodeBType(funct3 uint32, rs1, rs2 int, offset uint32) uint32 {
	instr := uint32(0x63)
	instr |= ((offset >> 11) & 0x1) << 7
	instr |= ((offset >> 1) & 0xf) << 8
	instr |= funct3 << 12
	instr |= uint32(rs1) << 15
	instr |= uint32(rs2) << 20
	instr |= ((offset >> 5) & 0x3f) << 25
	instr |= ((offset >> 12) & 0x1) << 31
	return instr
}
