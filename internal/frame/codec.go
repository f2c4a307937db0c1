// Package frame implements the GDB Remote Serial Protocol's packet
// framing: checksum validation and generation, }-escaping, run-length
// decoding, and ack/no-ack-mode bookkeeping. It is a pure byte-in,
// event-out transducer; it performs no I/O itself.
package frame

import (
	"fmt"

	"github.com/debugstub/ds2agent/internal/constants"
)

type parseState int

const (
	stateIdle parseState = iota
	stateInPayload
	stateChecksum1
	stateChecksum2
)

// Codec decodes an inbound byte stream into packet events and encodes
// outbound payloads into wire packets. One Codec is used per direction of
// a connection's traffic (or one per connection, shared, since state is
// only the no-ack flag and in-flight parse state, both connection-scoped).
type Codec struct {
	state parseState

	escapeNext bool
	rleNext    bool
	lastByte   byte
	haveLast   bool

	payload  []byte
	checksum byte // accumulated raw-byte sum, mod 256
	cksum1   byte // first hex digit of expected checksum

	noAck bool
}

// NewCodec returns a Codec ready to parse a fresh stream.
func NewCodec() *Codec {
	return &Codec{}
}

// SetNoAck enables or disables ack-mode bookkeeping once
// QStartNoAckMode has been negotiated and acknowledged.
func (c *Codec) SetNoAck(noAck bool) {
	c.noAck = noAck
}

// NoAck reports whether no-ack mode is currently active.
func (c *Codec) NoAck() bool {
	return c.noAck
}

// Encode wraps payload as a complete wire packet: $<escaped payload>#<cc>.
// It does not emit run-length encoding; RLE is purely a decode-side
// optimization this codec supports receiving, not one it produces.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+4)
	out = append(out, constants.PacketStart)

	var sum byte
	for _, b := range payload {
		switch b {
		case '$', '#', '*', '}':
			out = append(out, constants.EscapeByte)
			e := b ^ 0x20
			out = append(out, e)
			sum += constants.EscapeByte
			sum += e
		default:
			out = append(out, b)
			sum += b
		}
	}

	out = append(out, constants.PacketEnd)
	out = append(out, hexDigit(sum>>4), hexDigit(sum&0xf))
	return out
}

// Feed consumes inbound bytes and returns every event they completed.
// Partial packets are buffered across calls.
func (c *Codec) Feed(data []byte) ([]Event, error) {
	var events []Event

	for _, b := range data {
		switch c.state {
		case stateIdle:
			switch b {
			case constants.PacketStart:
				c.beginPayload()
			case constants.AckByte:
				events = append(events, Event{Kind: Ack})
			case constants.NackByte:
				events = append(events, Event{Kind: Nack})
			case constants.InterruptByte:
				events = append(events, Event{Kind: Interrupt})
			default:
				// Stray byte outside a packet; GDB-RSP streams are not
				// guaranteed clean of spurious whitespace, so ignore it.
			}

		case stateInPayload:
			c.checksum += b

			switch {
			case c.escapeNext:
				c.appendData(b ^ 0x20)
				c.escapeNext = false
			case c.rleNext:
				if b < constants.RLEMinCount {
					events = append(events, Event{Kind: ChecksumError})
					c.beginIdle()
					continue
				}
				if !c.haveLast {
					events = append(events, Event{Kind: ChecksumError})
					c.beginIdle()
					continue
				}
				repeat := int(b) - constants.RLECountBase
				for i := 0; i < repeat; i++ {
					c.payload = append(c.payload, c.lastByte)
				}
				c.rleNext = false
			case b == constants.EscapeByte:
				c.escapeNext = true
			case b == constants.RLEMarker:
				c.rleNext = true
			case b == constants.PacketEnd:
				c.checksum -= b // '#' itself is not part of the payload sum
				c.state = stateChecksum1
			default:
				c.appendData(b)
			}

		case stateChecksum1:
			c.cksum1 = b
			c.state = stateChecksum2

		case stateChecksum2:
			want, err := hexByte(c.cksum1, b)
			if err != nil {
				events = append(events, Event{Kind: ChecksumError})
				c.beginIdle()
				continue
			}
			if want != c.checksum {
				events = append(events, Event{Kind: ChecksumError})
			} else {
				events = append(events, Event{Kind: Payload, Payload: c.payload})
			}
			c.beginIdle()
		}
	}

	return events, nil
}

// PendingAck returns the ack byte the channel should write after
// processing an inbound Payload or ChecksumError event, or nil if
// no-ack mode suppresses it.
func (c *Codec) PendingAck(valid bool) []byte {
	if c.noAck {
		return nil
	}
	if valid {
		return []byte{constants.AckByte}
	}
	return []byte{constants.NackByte}
}

func (c *Codec) beginPayload() {
	c.state = stateInPayload
	c.payload = c.payload[:0]
	c.checksum = 0
	c.escapeNext = false
	c.rleNext = false
	c.haveLast = false
}

func (c *Codec) beginIdle() {
	c.state = stateIdle
}

func (c *Codec) appendData(b byte) {
	c.payload = append(c.payload, b)
	c.lastByte = b
	c.haveLast = true
}

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'a' + (n - 10)
}

func hexNibble(b byte) (byte, error) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', nil
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, nil
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("frame: invalid hex digit %q", b)
	}
}

func hexByte(hi, lo byte) (byte, error) {
	h, err := hexNibble(hi)
	if err != nil {
		return 0, err
	}
	l, err := hexNibble(lo)
	if err != nil {
		return 0, err
	}
	return h<<4 | l, nil
}
