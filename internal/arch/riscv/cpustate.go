// Package riscv implements the RISC-V pieces of the core: the software
// single-step planner's instruction decode, and the register-state
// layout the native control and breakpoint layers marshal over the wire.
package riscv

import "encoding/binary"

// NumGPR is the number of general-purpose registers, x0..x31.
const NumGPR = 32

// CPUState is a union view of the general-purpose register file and
// floating-point state for a single thread. x0 always reads as zero and
// silently discards writes, matching the architecture's hard-wired zero
// register. Quad-precision float state (the Q extension) is omitted: the
// original agent this is modeled on left it unimplemented everywhere it
// appears, and this agent does the same.
type CPUState struct {
	GPR [NumGPR]uint64
	PC  uint64
	FPR [NumGPR]uint64 // f0..f31, double-precision view
	FCSR uint32
}

// Reg reads general-purpose register i, materializing x0 as zero.
func (s *CPUState) Reg(i int) uint64 {
	if i == 0 {
		return 0
	}
	return s.GPR[i]
}

// SetReg writes general-purpose register i, ignoring writes to x0.
func (s *CPUState) SetReg(i int, v uint64) {
	if i == 0 {
		return
	}
	s.GPR[i] = v
}

// Marshal serializes the register file as little-endian bytes in GPR,
// PC, FPR, FCSR order — the layout the g/G packets read and write.
func (s *CPUState) Marshal() []byte {
	buf := make([]byte, NumGPR*8+8+NumGPR*8+4)
	off := 0
	for i := 0; i < NumGPR; i++ {
		binary.LittleEndian.PutUint64(buf[off:], s.GPR[i])
		off += 8
	}
	binary.LittleEndian.PutUint64(buf[off:], s.PC)
	off += 8
	for i := 0; i < NumGPR; i++ {
		binary.LittleEndian.PutUint64(buf[off:], s.FPR[i])
		off += 8
	}
	binary.LittleEndian.PutUint32(buf[off:], s.FCSR)
	return buf
}

// Unmarshal is the inverse of Marshal.
func (s *CPUState) Unmarshal(data []byte) error {
	want := NumGPR*8 + 8 + NumGPR*8 + 4
	if len(data) < want {
		return errShortRegisterBuffer
	}
	off := 0
	for i := 0; i < NumGPR; i++ {
		s.GPR[i] = binary.LittleEndian.Uint64(data[off:])
		off += 8
	}
	s.PC = binary.LittleEndian.Uint64(data[off:])
	off += 8
	for i := 0; i < NumGPR; i++ {
		s.FPR[i] = binary.LittleEndian.Uint64(data[off:])
		off += 8
	}
	s.FCSR = binary.LittleEndian.Uint32(data[off:])
	return nil
}

// RegisterOffset returns the byte offset of GPR i within Marshal's
// output, for single-register p/P access.
func RegisterOffset(i int) int {
	return i * 8
}

// PCOffset is the byte offset of the PC field within Marshal's output.
const PCOffset = NumGPR * 8

type marshalError string

func (e marshalError) Error() string { return string(e) }

const errShortRegisterBuffer marshalError = "riscv: register buffer too short"
