// Package channel wraps a duplex byte stream (TCP/UNIX socket, character
// device, inherited fd) with a reader goroutine that decouples network
// I/O from session logic: it pumps inbound bytes through the frame codec
// and delivers parsed events to a buffered queue the session consumes
// synchronously, one at a time.
package channel

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/debugstub/ds2agent/internal/constants"
	"github.com/debugstub/ds2agent/internal/frame"
	"github.com/debugstub/ds2agent/internal/interfaces"
)

// Kind identifies what a Receive call produced.
type Kind int

const (
	EventPayload Kind = iota
	EventInterrupt
	EventClosed
)

// Event is one unit delivered to a session's receive loop.
type Event struct {
	Kind    Kind
	Payload []byte
}

// ErrTimeout is returned by Receive when the deadline elapses with no
// event queued.
var ErrTimeout = errors.New("channel: receive timed out")

// Channel decouples session logic from the underlying transport.
type Channel struct {
	stream interfaces.ByteStream
	codec  *frame.Codec
	logger interfaces.Logger

	writeMu  sync.Mutex
	lastSent []byte

	events chan Event

	closeOnce sync.Once
	closed    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New starts a reader goroutine over stream and returns a ready Channel.
func New(ctx context.Context, stream interfaces.ByteStream, logger interfaces.Logger) *Channel {
	ctx, cancel := context.WithCancel(ctx)
	c := &Channel{
		stream: stream,
		codec:  frame.NewCodec(),
		logger: logger,
		events: make(chan Event, constants.DefaultQueueDepth),
		closed: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go c.readLoop()
	return c
}

// SetNoAck toggles no-ack-mode on the underlying codec.
func (c *Channel) SetNoAck(noAck bool) {
	c.codec.SetNoAck(noAck)
}

// SendPacket encodes payload as a GDB-RSP packet and writes it.
func (c *Channel) SendPacket(payload []byte) error {
	wire := frame.Encode(payload)
	return c.writeRaw(wire, true)
}

// SendRaw writes bytes directly, with no framing. Used by the
// platform/spawner session path that does not speak inferior-control RSP.
func (c *Channel) SendRaw(payload []byte) error {
	return c.writeRaw(payload, false)
}

func (c *Channel) writeRaw(wire []byte, remember bool) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if remember {
		c.lastSent = append(c.lastSent[:0], wire...)
	}

	_, err := c.stream.Write(wire)
	if err != nil {
		if c.logger != nil {
			c.logger.Debugf("channel: write failed: %v", err)
		}
		return err
	}
	return nil
}

// Receive returns the next event. If cooked is false the interrupt byte
// is not promoted to a dedicated event; it is delivered as ordinary
// payload bytes instead, for callers (the platform/spawner session) that
// do not drive an inferior and have no use for an asynchronous interrupt.
// A non-negative timeout bounds the wait; a negative timeout waits
// forever.
func (c *Channel) Receive(cooked bool, timeout time.Duration) (Event, error) {
	var timer *time.Timer
	var after <-chan time.Time
	if timeout >= 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		after = timer.C
	}

	select {
	case ev, ok := <-c.events:
		if !ok {
			return Event{Kind: EventClosed}, nil
		}
		if !cooked && ev.Kind == EventInterrupt {
			ev = Event{Kind: EventPayload, Payload: []byte{constants.InterruptByte}}
		}
		return ev, nil
	case <-after:
		return Event{}, ErrTimeout
	case <-c.closed:
		return Event{Kind: EventClosed}, nil
	}
}

// Close stops the reader goroutine. Idempotent.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.stream.Close()
		close(c.closed)
	})
	return err
}

func (c *Channel) readLoop() {
	defer close(c.events)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		buf := getReadBuffer(size4k)
		n, err := c.stream.Read(buf)
		if n > 0 {
			c.handleInbound(buf[:n])
		}
		putReadBuffer(buf)

		if err != nil {
			if err != io.EOF && c.logger != nil {
				c.logger.Debugf("channel: read error: %v", err)
			}
			_ = c.Close()
			return
		}
	}
}

func (c *Channel) handleInbound(data []byte) {
	events, err := c.codec.Feed(data)
	if err != nil {
		if c.logger != nil {
			c.logger.Warnf("channel: codec error: %v", err)
		}
		return
	}

	for _, ev := range events {
		switch ev.Kind {
		case frame.Payload:
			if ack := c.codec.PendingAck(true); ack != nil {
				_ = c.writeRaw(ack, false)
			}
			c.enqueue(Event{Kind: EventPayload, Payload: ev.Payload})
		case frame.ChecksumError:
			if ack := c.codec.PendingAck(false); ack != nil {
				_ = c.writeRaw(ack, false)
			}
		case frame.Interrupt:
			c.enqueue(Event{Kind: EventInterrupt})
		case frame.Nack:
			c.retransmit()
		case frame.Ack:
			// Nothing to do; the peer confirmed receipt of our last packet.
		}
	}
}

func (c *Channel) retransmit() {
	c.writeMu.Lock()
	wire := append([]byte(nil), c.lastSent...)
	c.writeMu.Unlock()

	if len(wire) == 0 {
		return
	}
	if _, err := c.stream.Write(wire); err != nil && c.logger != nil {
		c.logger.Debugf("channel: retransmit failed: %v", err)
	}
}

func (c *Channel) enqueue(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}
