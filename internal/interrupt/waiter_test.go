package interrupt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fakeForker struct {
	pid int
	err error
}

func (f fakeForker) ForkExit() (int, error) { return f.pid, f.err }

func cleanExit() unix.WaitStatus {
	// WaitStatus on Linux is a uint32; a clean exit(0) encodes as 0.
	return unix.WaitStatus(0)
}

func signaledStatus() unix.WaitStatus {
	// Terminated by signal 9 (SIGKILL): low 7 bits hold the signal.
	return unix.WaitStatus(9)
}

func TestSendInterruptArmsSlot(t *testing.T) {
	w := NewWaiterWithForker(fakeForker{pid: 4242})
	require.NoError(t, w.SendInterrupt())
	assert.True(t, w.Armed())
}

func TestSecondSendInterruptIsNoOp(t *testing.T) {
	calls := 0
	w := NewWaiterWithForker(countingForker{&calls, 100})
	require.NoError(t, w.SendInterrupt())
	require.NoError(t, w.SendInterrupt())
	assert.Equal(t, 1, calls)
}

type countingForker struct {
	calls *int
	pid   int
}

func (f countingForker) ForkExit() (int, error) {
	*f.calls++
	return f.pid, nil
}

func TestCheckInterruptMatchesAndClearsSlot(t *testing.T) {
	w := NewWaiterWithForker(fakeForker{pid: 4242})
	require.NoError(t, w.SendInterrupt())

	assert.True(t, w.CheckInterrupt(4242, cleanExit()))
	assert.False(t, w.Armed())

	assert.False(t, w.CheckInterrupt(4242, cleanExit()), "second check must return false")
}

func TestCheckInterruptRejectsWrongPid(t *testing.T) {
	w := NewWaiterWithForker(fakeForker{pid: 4242})
	require.NoError(t, w.SendInterrupt())

	assert.False(t, w.CheckInterrupt(9999, cleanExit()))
	assert.True(t, w.Armed(), "non-matching wait must not consume the slot")
}

func TestCheckInterruptRejectsAbnormalExit(t *testing.T) {
	w := NewWaiterWithForker(fakeForker{pid: 4242})
	require.NoError(t, w.SendInterrupt())

	assert.False(t, w.CheckInterrupt(4242, signaledStatus()))
	assert.True(t, w.Armed())
}

func TestCheckInterruptWithEmptySlotReturnsFalse(t *testing.T) {
	w := NewWaiter()
	assert.False(t, w.CheckInterrupt(1, cleanExit()))
}
