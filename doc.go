// Package agent implements a GDB Remote Serial Protocol debug-stub
// agent: a process that attaches to (or spawns) one inferior and speaks
// the wire protocol a debugger expects on the other end of a TCP, UNIX
// socket, character-device, or inherited-fd transport.
//
// The protocol codec, transport channel, breakpoint manager, RISC-V
// decoder, native ptrace control and process model each live in their
// own internal package; this package's Session type glues them together
// behind the handshake/execution/thread/state/breakpoint/file-op/
// platform command groups implemented in internal/session.
package agent
