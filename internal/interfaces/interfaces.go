// Package interfaces holds small internal interface definitions shared
// across packages, kept separate from the public API to avoid import
// cycles between the root package and its internal subpackages.
package interfaces

import "time"

// Logger is the narrow logging surface internal packages depend on,
// satisfied by *logging.Logger.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Observer receives metrics events from the session and native-control
// layers. Implementations must be safe for concurrent use.
type Observer interface {
	ObservePacket(bytes int, inbound bool)
	ObserveStop(reason string, latency time.Duration)
	ObserveCommand(name string, latency time.Duration, success bool)
	ObserveMemoryOp(bytes int, write bool, latencyNs uint64, success bool)
}

// ByteStream is the minimal duplex byte-stream surface the queue channel
// needs from a transport (TCP conn, UNIX conn, character device file,
// inherited fd).
type ByteStream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}
