package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// x86FakeControl reuses fakeControl's memory/call-recording behavior but
// stores registers as a raw byte buffer (the x86_64 user_regs_struct
// layout GETREGSET actually fills in) instead of a riscv.CPUState.
type x86FakeControl struct {
	*fakeControl
	raw map[int][]byte
}

func newX86FakeControl() *x86FakeControl {
	return &x86FakeControl{fakeControl: newFakeControl(), raw: make(map[int][]byte)}
}

func (c *x86FakeControl) GetGPRegs(pid int, buf []byte) error {
	copy(buf, c.raw[pid])
	return nil
}

func (c *x86FakeControl) SetGPRegs(pid int, buf []byte) error {
	c.raw[pid] = append([]byte(nil), buf...)
	return nil
}

func (c *x86FakeControl) setRIP(pid int, rip uint64) {
	buf := make([]byte, x86GPRegsLen)
	off := x86FieldRIP * 8
	for i := 0; i < 8; i++ {
		buf[off+i] = byte(rip >> (8 * i))
	}
	c.raw[pid] = buf
}

func TestX86StepPlantsOneShotBreakpointAtFallthrough(t *testing.T) {
	ctrl := newX86FakeControl()
	ctrl.writeAt(0x1000, []byte{0x90}) // nop
	ctrl.setRIP(2000, 0x1000)

	p := NewX86(2000, true, ctrl, 0)
	require.Equal(t, ArchX86, p.Arch)

	require.NoError(t, p.step(2000, 0))

	site, ok := p.Breakpoints.Lookup(0x1001)
	require.True(t, ok)
	assert.Equal(t, 1, site.Size)
	assert.Equal(t, []int{2000}, ctrl.continued)
}

func TestX86StepPlantsBothTargetsForConditionalJump(t *testing.T) {
	ctrl := newX86FakeControl()
	ctrl.writeAt(0x2000, []byte{0x74, 0x05}) // je +5
	ctrl.setRIP(2000, 0x2000)

	p := NewX86(2000, true, ctrl, 0)
	require.NoError(t, p.step(2000, 0))

	_, fallthroughOK := p.Breakpoints.Lookup(0x2002)
	_, takenOK := p.Breakpoints.Lookup(0x2007)
	assert.True(t, fallthroughOK)
	assert.True(t, takenOK)
}
