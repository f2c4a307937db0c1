package frame

// Kind identifies what a Feed call produced.
type Kind int

const (
	// Payload carries a fully validated packet body.
	Payload Kind = iota
	// Ack means the peer acknowledged the last packet we sent.
	Ack
	// Nack means the peer rejected the last packet's checksum; the
	// channel must retransmit it.
	Nack
	// ChecksumError means an inbound packet failed its own checksum; the
	// codec has already discarded it, the caller should send a Nack byte
	// (unless no-ack mode is active) and await retransmission.
	ChecksumError
	// Interrupt means a bare Control-C (0x03) arrived outside a packet.
	Interrupt
)

// Event is one decoded unit produced by feeding bytes to a Codec.
type Event struct {
	Kind    Kind
	Payload []byte
}
