// Package session implements the GDB Remote Serial Protocol command
// groups: one file per concern (handshake, execution control, thread
// selection, state queries, breakpoints, file operations, platform
// spawning), each registering its handlers into a shared dispatch
// Registry rather than one monolithic switch.
package session

import "strings"

// CommandFunc handles one decoded packet payload (the bytes between the
// `$` and the checksum, already stripped of framing) and returns the
// response payload to send back, unframed. A nil response with a nil
// error means "no reply" (used by notification-style packets).
type CommandFunc func(payload string) ([]byte, error)

type prefixEntry struct {
	prefix string
	fn     CommandFunc
}

// Registry is an ordered dispatch table: exact-match commands are tried
// first, then prefix rules in registration order (longest-registered-first
// is the caller's responsibility — register more specific prefixes
// before general ones).
type Registry struct {
	exact  map[string]CommandFunc
	prefix []prefixEntry
}

// NewRegistry creates an empty dispatch table.
func NewRegistry() *Registry {
	return &Registry{exact: make(map[string]CommandFunc)}
}

// Exact registers a handler for a command matched by exact string equality.
func (r *Registry) Exact(cmd string, fn CommandFunc) {
	r.exact[cmd] = fn
}

// Prefix registers a handler for any payload beginning with prefix.
func (r *Registry) Prefix(prefix string, fn CommandFunc) {
	r.prefix = append(r.prefix, prefixEntry{prefix: prefix, fn: fn})
}

// Dispatch finds and invokes the handler for payload. ok is false when no
// handler matched, in which case the caller should reply with an empty
// packet (the RSP convention for "unsupported command").
func (r *Registry) Dispatch(payload string) (resp []byte, err error, ok bool) {
	if fn, found := r.exact[payload]; found {
		resp, err = fn(payload)
		return resp, err, true
	}
	for _, entry := range r.prefix {
		if strings.HasPrefix(payload, entry.prefix) {
			resp, err = entry.fn(payload)
			return resp, err, true
		}
	}
	return nil, nil, false
}
