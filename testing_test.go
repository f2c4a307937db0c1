package agent

import (
	"io"
	"testing"
	"time"

	"github.com/debugstub/ds2agent/internal/arch/riscv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeStreamReadWrite(t *testing.T) {
	s := NewFakeStream()
	s.Feed([]byte("hello"))

	buf := make([]byte, 5)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	_, err = s.Write([]byte("world"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(s.Sent()))
}

func TestFakeStreamReadEOFWhenEmpty(t *testing.T) {
	s := NewFakeStream()
	_, err := s.Read(make([]byte, 4))
	assert.ErrorIs(t, err, io.EOF)
}

func TestFakeStreamWriteAfterCloseFails(t *testing.T) {
	s := NewFakeStream()
	require.NoError(t, s.Close())
	assert.True(t, s.IsClosed())

	_, err := s.Write([]byte("x"))
	assert.Error(t, err)
}

func TestFakeObserverRecordsPacketsStopsCommandsMemOps(t *testing.T) {
	o := NewFakeObserver()

	o.ObservePacket(32, true)
	o.ObserveStop("breakpoint", time.Millisecond)
	o.ObserveCommand("g", time.Millisecond, true)
	o.ObserveMemoryOp(16, true, 1000, false)

	require.Len(t, o.Packets, 1)
	assert.Equal(t, 32, o.Packets[0].Bytes)
	assert.True(t, o.Packets[0].Inbound)

	require.Len(t, o.Stops, 1)
	assert.Equal(t, "breakpoint", o.Stops[0].Reason)

	require.Len(t, o.Commands, 1)
	assert.Equal(t, "g", o.Commands[0].Name)
	assert.True(t, o.Commands[0].Success)

	require.Len(t, o.MemOps, 1)
	assert.Equal(t, 16, o.MemOps[0].Bytes)
	assert.True(t, o.MemOps[0].Write)
	assert.False(t, o.MemOps[0].Success)
}

func TestFakeNativeControlMemoryRoundTrip(t *testing.T) {
	c := NewFakeNativeControl()
	c.WriteAt(0x1000, []byte{1, 2, 3, 4})

	data, err := c.ReadMemory(1, 0x1000, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)

	require.NoError(t, c.WriteMemory(1, 0x2000, []byte{0xaa}))
	data, err = c.ReadMemory(1, 0x2000, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa}, data)
}

func TestFakeNativeControlRegisterRoundTrip(t *testing.T) {
	c := NewFakeNativeControl()
	var state riscv.CPUState
	state.SetReg(1, 0xdeadbeef)
	state.PC = 0x8000

	buf := make([]byte, len(state.Marshal()))
	require.NoError(t, c.SetGPRegs(1, state.Marshal()))
	require.NoError(t, c.GetGPRegs(1, buf))

	var readBack riscv.CPUState
	require.NoError(t, readBack.Unmarshal(buf))
	assert.Equal(t, uint64(0xdeadbeef), readBack.Reg(1))
	assert.Equal(t, uint64(0x8000), readBack.PC)
}

func TestFakeNativeControlSingleStepRequiresHWCap(t *testing.T) {
	c := NewFakeNativeControl()
	assert.Error(t, c.SingleStep(1, 0))

	c.HWCap = true
	assert.NoError(t, c.SingleStep(1, 0))
	assert.Equal(t, []int{1}, c.Stepped)
}

func TestFakeNativeControlTracksContinueDetachKill(t *testing.T) {
	c := NewFakeNativeControl()

	require.NoError(t, c.Continue(7, 0))
	require.NoError(t, c.Detach(7))
	require.NoError(t, c.Kill(7))

	assert.Equal(t, []int{7}, c.Continued)
	assert.Equal(t, []int{7}, c.Detached)
	assert.Equal(t, []int{7}, c.Killed)
}
