package native

import "github.com/debugstub/ds2agent/internal/agenterr"

// CodePayload is an architecture-specific encoder for the short
// instruction sequence code injection executes: a syscall (mmap or
// munmap) followed by a trap, plus the byte offset of the trap within the
// encoded bytes and which register holds the syscall's return value.
type CodePayload interface {
	// Mmap encodes a payload that performs mmap(addr, length, prot, flags,
	// fd, offset) followed by a trap.
	Mmap(length uint64, prot, flags int32) (code []byte, trapOffset int, retReg int)
	// Munmap encodes a payload that performs munmap(addr, length)
	// followed by a trap.
	Munmap(addr, length uint64) (code []byte, trapOffset int, retReg int)
}

// ThreadControl is the narrow surface Inject needs from the process/native
// layers: read/write memory, read/write the full register state, resume
// to the trap and wait for it.
type ThreadControl interface {
	ReadMemory(addr uint64, size int) ([]byte, error)
	WriteMemory(addr uint64, data []byte) error
	SaveState() (interface{}, error)
	RestoreState(saved interface{}) error
	SetPC(addr uint64) error
	RegValue(reg int) (uint64, error)
	RunToTrap() error
}

// Injector performs memory allocation for the inferior via code
// injection: assemble mmap/munmap, save CPU state, overwrite code at PC,
// single-step (or continue) to the trailing trap, read the return value,
// then restore the saved code and state.
//
// A failure partway through is treated as fatal to the inferior per the
// error-handling design: the caller is expected to kill the process
// rather than leave it with patched code and no way back.
type Injector struct {
	payload CodePayload
}

func NewInjector(payload CodePayload) *Injector {
	return &Injector{payload: payload}
}

// Mmap allocates length bytes of inferior memory at the given scratch
// address (where the payload will be written and executed) with the
// given protection/flags, returning the pointer mmap returned.
func (inj *Injector) Mmap(t ThreadControl, scratch, length uint64, prot, flags int32) (uint64, error) {
	code, _, retReg := inj.payload.Mmap(length, prot, flags)
	return inj.run(t, scratch, code, retReg)
}

// Munmap releases a prior Mmap allocation.
func (inj *Injector) Munmap(t ThreadControl, scratch, addr, length uint64) error {
	code, _, retReg := inj.payload.Munmap(addr, length)
	_, err := inj.run(t, scratch, code, retReg)
	return err
}

func (inj *Injector) run(t ThreadControl, scratch uint64, code []byte, retReg int) (uint64, error) {
	saved, err := t.SaveState()
	if err != nil {
		return 0, agenterr.Wrap("native.inject", err)
	}
	savedCode, err := t.ReadMemory(scratch, len(code))
	if err != nil {
		return 0, agenterr.Wrap("native.inject", err)
	}

	if err := t.WriteMemory(scratch, code); err != nil {
		return 0, agenterr.Wrap("native.inject", err)
	}
	if err := t.SetPC(scratch); err != nil {
		return 0, agenterr.Wrap("native.inject", err)
	}
	if err := t.RunToTrap(); err != nil {
		return 0, agenterr.Wrap("native.inject", err)
	}

	ret, err := t.RegValue(retReg)
	if err != nil {
		return 0, agenterr.Wrap("native.inject", err)
	}

	if err := t.WriteMemory(scratch, savedCode); err != nil {
		return 0, agenterr.Wrap("native.inject", err)
	}
	if err := t.RestoreState(saved); err != nil {
		return 0, agenterr.Wrap("native.inject", err)
	}
	return ret, nil
}
