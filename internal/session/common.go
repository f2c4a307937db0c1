package session

import (
	"strings"

	"github.com/debugstub/ds2agent/internal/fileops"
)

// CommonDelegate holds the handshake and file-operation state shared by
// every session regardless of which inferior-facing delegate it runs:
// negotiated capabilities and the vFile handle table. DebugDelegate and
// PlatformDelegate both embed it, mirroring the base the two upstream
// PlatformSessionImpl variants share before diverging into "controls one
// inferior" and "spawns new sessions on demand".
type CommonDelegate struct {
	NoAck                  bool
	ThreadSuffixSupported  bool
	ListThreadsInStopReply bool

	Files *fileops.Table
}

// qSupportedFeatures lists the features this agent advertises in reply
// to qSupported, independent of what the debugger itself asked for.
var qSupportedFeatures = []string{
	"PacketSize=20000",
	"QStartNoAckMode+",
	"QThreadSuffixSupported+",
	"QListThreadsInStopReply+",
	"qXfer:features:read-",
	"multiprocess-",
}

// RegisterHandshake wires qSupported, QStartNoAckMode,
// QThreadSuffixSupported and QListThreadsInStopReply.
func (c *CommonDelegate) RegisterHandshake(r *Registry) {
	r.Prefix("qSupported", func(string) ([]byte, error) {
		return []byte(strings.Join(qSupportedFeatures, ";")), nil
	})
	r.Exact("QStartNoAckMode", func(string) ([]byte, error) {
		c.NoAck = true
		return okReply, nil
	})
	r.Exact("QThreadSuffixSupported", func(string) ([]byte, error) {
		c.ThreadSuffixSupported = true
		return okReply, nil
	})
	r.Exact("QListThreadsInStopReply", func(string) ([]byte, error) {
		c.ListThreadsInStopReply = true
		return okReply, nil
	})
}

// NoAckRequested reports whether the debugger has negotiated no-ack mode
// on this connection, so the owning Session can toggle its channel's
// codec to match after replying to the QStartNoAckMode command.
func (c *CommonDelegate) NoAckRequested() bool { return c.NoAck }

// RegisterFileOps wires the vFile:* command group over the handle table,
// shared verbatim by debug and platform sessions since file access has no
// dependency on an attached inferior.
func (c *CommonDelegate) RegisterFileOps(r *Registry) {
	r.Prefix("vFile:open:", c.vFileOpen)
	r.Prefix("vFile:close:", c.vFileClose)
	r.Prefix("vFile:pread:", c.vFilePread)
	r.Prefix("vFile:pwrite:", c.vFilePwrite)
	r.Prefix("vFile:fstat:", c.vFileFstat)
	r.Prefix("vFile:stat:", c.vFileStat)
	r.Prefix("vFile:unlink:", c.vFileUnlink)
	r.Prefix("vFile:readlink:", c.vFileReadlink)
	r.Prefix("vFile:mkdir:", c.vFileMkdir)
	r.Prefix("vFile:chmod:", c.vFileChmod)
}
