package session

import (
	"fmt"
	"strings"

	"github.com/debugstub/ds2agent/internal/agenterr"
	"github.com/debugstub/ds2agent/internal/arch/riscv"
	"golang.org/x/sys/unix"
)

// registerState wires the register and memory access commands plus the
// descriptive q-queries a debugger issues once at connection time.
func (d *DebugDelegate) registerState(r *Registry) {
	r.Exact("g", d.readAllRegisters)
	r.Prefix("G", d.writeAllRegisters)
	r.Prefix("p", d.readOneRegister)
	r.Prefix("P", d.writeOneRegister)
	r.Prefix("m", d.readMemory)
	r.Prefix("M", d.writeMemoryHex)
	r.Prefix("X", d.writeMemoryBinary)
	r.Prefix("qRegisterInfo", d.qRegisterInfo)
	r.Exact("qProcessInfo", d.qProcessInfo)
	r.Exact("qHostInfo", d.qHostInfo)
}

func (d *DebugDelegate) currentRegs() (*riscv.CPUState, error) {
	t, err := d.Proc.CurrentThread()
	if err != nil {
		return nil, err
	}
	return t.Registers()
}

func (d *DebugDelegate) readAllRegisters(string) ([]byte, error) {
	regs, err := d.currentRegs()
	if err != nil {
		return errReply(err), nil
	}
	return []byte(encodeHex(regs.Marshal())), nil
}

func (d *DebugDelegate) writeAllRegisters(payload string) ([]byte, error) {
	data, err := decodeHex(strings.TrimPrefix(payload, "G"))
	if err != nil {
		return errReply(err), nil
	}
	var state riscv.CPUState
	if err := state.Unmarshal(data); err != nil {
		return errReply(err), nil
	}
	t, err := d.Proc.CurrentThread()
	if err != nil {
		return errReply(err), nil
	}
	if err := t.SetRegisters(&state); err != nil {
		return errReply(err), nil
	}
	return okReply, nil
}

// regByteOffset returns the byte range within CPUState.Marshal()'s
// output for gdb register number n: 0..31 are x0..x31, 32 is pc.
func regByteOffset(n int) (int, int, error) {
	switch {
	case n >= 0 && n < riscv.NumGPR:
		off := riscv.RegisterOffset(n)
		return off, off + 8, nil
	case n == pcRegNo:
		return riscv.PCOffset, riscv.PCOffset + 8, nil
	default:
		return 0, 0, agenterr.New("register", agenterr.InvalidArgument, "unknown register number")
	}
}

func (d *DebugDelegate) readOneRegister(payload string) ([]byte, error) {
	n, err := parseHexInt(strings.TrimPrefix(payload, "p"))
	if err != nil {
		return errReply(err), nil
	}
	regs, err := d.currentRegs()
	if err != nil {
		return errReply(err), nil
	}
	lo, hi, err := regByteOffset(n)
	if err != nil {
		return errReply(err), nil
	}
	return []byte(encodeHex(regs.Marshal()[lo:hi])), nil
}

func (d *DebugDelegate) writeOneRegister(payload string) ([]byte, error) {
	rest := strings.TrimPrefix(payload, "P")
	numStr, valStr, found := strings.Cut(rest, "=")
	if !found {
		return errReply(agenterr.New("P", agenterr.InvalidArgument, "expected n=value")), nil
	}
	n, err := parseHexInt(numStr)
	if err != nil {
		return errReply(err), nil
	}
	val, err := decodeHex(valStr)
	if err != nil {
		return errReply(err), nil
	}
	t, err := d.Proc.CurrentThread()
	if err != nil {
		return errReply(err), nil
	}
	regs, err := t.Registers()
	if err != nil {
		return errReply(err), nil
	}
	buf := regs.Marshal()
	lo, hi, err := regByteOffset(n)
	if err != nil {
		return errReply(err), nil
	}
	if hi-lo != len(val) {
		return errReply(agenterr.New("P", agenterr.InvalidArgument, "register size mismatch")), nil
	}
	copy(buf[lo:hi], val)
	var updated riscv.CPUState
	if err := updated.Unmarshal(buf); err != nil {
		return errReply(err), nil
	}
	if err := t.SetRegisters(&updated); err != nil {
		return errReply(err), nil
	}
	return okReply, nil
}

func parseMemArgs(rest string) (addr uint64, size int, err error) {
	addrStr, sizeStr, found := strings.Cut(rest, ",")
	if !found {
		return 0, 0, agenterr.New("memory", agenterr.InvalidArgument, "expected addr,length")
	}
	addr, err = parseHexUint64(addrStr)
	if err != nil {
		return 0, 0, err
	}
	size, err = parseHexInt(sizeStr)
	if err != nil {
		return 0, 0, err
	}
	return addr, size, nil
}

func (d *DebugDelegate) readMemory(payload string) ([]byte, error) {
	addr, size, err := parseMemArgs(strings.TrimPrefix(payload, "m"))
	if err != nil {
		return errReply(err), nil
	}
	data, err := d.Proc.ReadMemory(addr, size)
	d.Observer.ObserveMemoryOp(size, false, 0, err == nil)
	if err != nil {
		return errReply(err), nil
	}
	return []byte(encodeHex(data)), nil
}

func (d *DebugDelegate) writeMemoryHex(payload string) ([]byte, error) {
	rest := strings.TrimPrefix(payload, "M")
	header, hexData, found := strings.Cut(rest, ":")
	if !found {
		return errReply(agenterr.New("M", agenterr.InvalidArgument, "expected addr,length:data")), nil
	}
	addr, _, err := parseMemArgs(header)
	if err != nil {
		return errReply(err), nil
	}
	data, err := decodeHex(hexData)
	if err != nil {
		return errReply(err), nil
	}
	err = d.Proc.WriteMemory(addr, data)
	d.Observer.ObserveMemoryOp(len(data), true, 0, err == nil)
	if err != nil {
		return errReply(err), nil
	}
	return okReply, nil
}

func (d *DebugDelegate) writeMemoryBinary(payload string) ([]byte, error) {
	rest := strings.TrimPrefix(payload, "X")
	header, data, found := strings.Cut(rest, ":")
	if !found {
		return errReply(agenterr.New("X", agenterr.InvalidArgument, "expected addr,length:data")), nil
	}
	addr, _, err := parseMemArgs(header)
	if err != nil {
		return errReply(err), nil
	}
	err = d.Proc.WriteMemory(addr, []byte(data))
	d.Observer.ObserveMemoryOp(len(data), true, 0, err == nil)
	if err != nil {
		return errReply(err), nil
	}
	return okReply, nil
}

// registerNames mirrors the RISC-V integer ABI names, used only for
// qRegisterInfo's descriptive "name:" field; the wire layout itself is
// purely positional.
var registerNames = [riscv.NumGPR]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

func (d *DebugDelegate) qRegisterInfo(payload string) ([]byte, error) {
	n, err := parseHexInt(strings.TrimPrefix(payload, "qRegisterInfo"))
	if err != nil {
		return errReply(err), nil
	}
	lo, hi, err := regByteOffset(n)
	if err != nil {
		return errReply(err), nil
	}
	name := "pc"
	if n < riscv.NumGPR {
		name = registerNames[n]
	}
	fields := []string{
		fmt.Sprintf("name:%s", name),
		fmt.Sprintf("bitsize:%d", (hi-lo)*8),
		fmt.Sprintf("offset:%d", lo),
		"encoding:uint",
		"format:hex",
		"set:General Purpose Registers",
		fmt.Sprintf("gcc:%d", n),
	}
	return []byte(strings.Join(fields, ";") + ";"), nil
}

func (d *DebugDelegate) qProcessInfo(string) ([]byte, error) {
	fields := []string{
		fmt.Sprintf("pid:%x", d.Proc.PID),
		"triple:" + encodeHexString("riscv64-unknown-linux-gnu"),
		"ostype:linux",
		"vendor:unknown",
		"endian:little",
		"ptrsize:8",
	}
	return []byte(strings.Join(fields, ";") + ";"), nil
}

func (d *DebugDelegate) qHostInfo(string) ([]byte, error) {
	return []byte(hostInfoReply()), nil
}

// hostInfoReply reports the running host's triple/endianness/pointer
// size, read via uname(2) rather than hardcoded to one platform.
func hostInfoReply() string {
	var uts unix.Utsname
	arch := "unknown"
	if err := unix.Uname(&uts); err == nil {
		arch = cString(uts.Machine[:])
	}
	fields := []string{
		fmt.Sprintf("triple:%s", encodeHexString(arch+"-unknown-linux-gnu")),
		"endian:little",
		"ptrsize:8",
		"hostname:" + encodeHexString(hostname()),
	}
	return strings.Join(fields, ";") + ";"
}

func hostname() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return cString(uts.Nodename[:])
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
