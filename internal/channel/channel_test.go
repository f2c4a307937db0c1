package channel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendPacketAndReceive(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	ch := channelOver(server)
	defer ch.Close()

	go func() {
		buf := make([]byte, 64)
		n, _ := client.Read(buf)
		assert.Equal(t, "$OK#9a", string(buf[:n]))
		client.Write([]byte("+"))
	}()

	require.NoError(t, ch.SendPacket([]byte("OK")))
}

func TestReceiveDeliversPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	ch := channelOver(server)
	defer ch.Close()

	go client.Write([]byte("$OK#9a"))

	ev, err := ch.Receive(true, time.Second)
	require.NoError(t, err)
	assert.Equal(t, EventPayload, ev.Kind)
	assert.Equal(t, "OK", string(ev.Payload))
}

func TestReceiveTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	ch := channelOver(server)
	defer ch.Close()

	_, err := ch.Receive(true, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestUncookedReceiveDemotesInterrupt(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	ch := channelOver(server)
	defer ch.Close()

	go client.Write([]byte{0x03})

	ev, err := ch.Receive(false, time.Second)
	require.NoError(t, err)
	assert.Equal(t, EventPayload, ev.Kind)
	assert.Equal(t, []byte{0x03}, ev.Payload)
}

func TestCookedReceivePromotesInterrupt(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	ch := channelOver(server)
	defer ch.Close()

	go client.Write([]byte{0x03})

	ev, err := ch.Receive(true, time.Second)
	require.NoError(t, err)
	assert.Equal(t, EventInterrupt, ev.Kind)
}

func TestCloseIsIdempotent(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	ch := channelOver(server)
	assert.NoError(t, ch.Close())
	assert.NoError(t, ch.Close())
}

func TestClosedStreamYieldsClosedEvent(t *testing.T) {
	client, server := net.Pipe()

	ch := channelOver(server)
	defer ch.Close()

	client.Close()

	ev, err := ch.Receive(true, time.Second)
	require.NoError(t, err)
	assert.Equal(t, EventClosed, ev.Kind)
}

func channelOver(conn net.Conn) *Channel {
	return New(context.Background(), conn, nil)
}
