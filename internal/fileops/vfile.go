// Package fileops implements the vFile command group: open, close,
// pread, pwrite, fstat, unlink, stat, readlink, mkdir and chmod against
// the host filesystem, with file I/O routed through an io_uring ring and
// an opaque-handle table mapping GDB's small integer file ids to open
// host file descriptors.
package fileops

import (
	"sync"

	"github.com/debugstub/ds2agent/internal/agenterr"
	"golang.org/x/sys/unix"
)

// Ring is the subset of *uring.Ring that file I/O needs, narrowed to an
// interface so tests can substitute a fake instead of a real ring.
type Ring interface {
	Openat(dirfd int, path string, flags int, mode uint32) (int, error)
	Read(fd int, buf []byte, offset int64) (int, error)
	Write(fd int, data []byte, offset int64) (int, error)
	CloseFD(fd int) error
	Statx(dirfd int, path string, flags, mask uint32, stat *unix.Statx_t) error
	Unlinkat(dirfd int, path string, flags int) error
	Mkdirat(dirfd int, path string, mode uint32) error
}

// Table maps opaque vFile handles to open host file descriptors.
type Table struct {
	ring Ring

	mu      sync.Mutex
	nextID  int
	handles map[int]int // vFile handle -> fd
}

// NewTable constructs a handle table backed by ring for file I/O.
func NewTable(ring Ring) *Table {
	return &Table{ring: ring, handles: make(map[int]int), nextID: 1}
}

// requireRing reports agenterr.Unsupported instead of letting a nil Ring
// (a degraded ring that failed to initialize) panic on the first vFile
// command that reaches it.
func (t *Table) requireRing(op string) error {
	if t.ring == nil {
		return agenterr.New(op, agenterr.Unsupported, "file I/O ring unavailable")
	}
	return nil
}

func (t *Table) fd(handle int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd, ok := t.handles[handle]
	if !ok {
		return 0, agenterr.New("vFile", agenterr.InvalidHandle, "unknown file handle")
	}
	return fd, nil
}

// Open opens path with the given flags/mode and returns a new vFile
// handle.
func (t *Table) Open(path string, flags int, mode uint32) (int, error) {
	if err := t.requireRing("vFile.open"); err != nil {
		return 0, err
	}
	fd, err := t.ring.Openat(unix.AT_FDCWD, path, flags, mode)
	if err != nil {
		return 0, agenterr.Wrap("vFile.open", err)
	}
	t.mu.Lock()
	handle := t.nextID
	t.nextID++
	t.handles[handle] = fd
	t.mu.Unlock()
	return handle, nil
}

// Close closes the host fd behind handle and forgets it.
func (t *Table) Close(handle int) error {
	fd, err := t.fd(handle)
	if err != nil {
		return err
	}
	if err := t.ring.CloseFD(fd); err != nil {
		return agenterr.Wrap("vFile.close", err)
	}
	t.mu.Lock()
	delete(t.handles, handle)
	t.mu.Unlock()
	return nil
}

// Pread reads up to len(buf) bytes from handle at offset.
func (t *Table) Pread(handle int, buf []byte, offset int64) (int, error) {
	fd, err := t.fd(handle)
	if err != nil {
		return 0, err
	}
	n, err := t.ring.Read(fd, buf, offset)
	if err != nil {
		return 0, agenterr.Wrap("vFile.pread", err)
	}
	return n, nil
}

// Pwrite writes data to handle at offset.
func (t *Table) Pwrite(handle int, data []byte, offset int64) (int, error) {
	fd, err := t.fd(handle)
	if err != nil {
		return 0, err
	}
	n, err := t.ring.Write(fd, data, offset)
	if err != nil {
		return 0, agenterr.Wrap("vFile.pwrite", err)
	}
	return n, nil
}

// Fstat stats the open file behind handle.
func (t *Table) Fstat(handle int) (unix.Statx_t, error) {
	fd, err := t.fd(handle)
	if err != nil {
		return unix.Statx_t{}, err
	}
	var stat unix.Statx_t
	if err := t.ring.Statx(fd, "", unix.AT_EMPTY_PATH, unix.STATX_ALL, &stat); err != nil {
		return unix.Statx_t{}, agenterr.Wrap("vFile.fstat", err)
	}
	return stat, nil
}

// Stat stats path without requiring it to be open.
func (t *Table) Stat(path string) (unix.Statx_t, error) {
	if err := t.requireRing("vFile.stat"); err != nil {
		return unix.Statx_t{}, err
	}
	var stat unix.Statx_t
	if err := t.ring.Statx(unix.AT_FDCWD, path, 0, unix.STATX_ALL, &stat); err != nil {
		return unix.Statx_t{}, agenterr.Wrap("vFile.stat", err)
	}
	return stat, nil
}

// Unlink removes path.
func (t *Table) Unlink(path string) error {
	if err := t.requireRing("vFile.unlink"); err != nil {
		return err
	}
	if err := t.ring.Unlinkat(unix.AT_FDCWD, path, 0); err != nil {
		return agenterr.Wrap("vFile.unlink", err)
	}
	return nil
}

// Mkdir creates path with mode.
func (t *Table) Mkdir(path string, mode uint32) error {
	if err := t.requireRing("vFile.mkdir"); err != nil {
		return err
	}
	if err := t.ring.Mkdirat(unix.AT_FDCWD, path, mode); err != nil {
		return agenterr.Wrap("vFile.mkdir", err)
	}
	return nil
}

// Readlink resolves a symlink. io_uring has no readlink opcode, so this
// one operation goes through the ordinary syscall rather than the ring.
func (t *Table) Readlink(path string) (string, error) {
	buf := make([]byte, 4096)
	n, err := unix.Readlink(path, buf)
	if err != nil {
		return "", agenterr.Wrap("vFile.readlink", err)
	}
	return string(buf[:n]), nil
}

// Chmod changes path's permission bits. Like Readlink, io_uring has no
// chmod opcode.
func (t *Table) Chmod(path string, mode uint32) error {
	if err := unix.Chmod(path, mode); err != nil {
		return agenterr.Wrap("vFile.chmod", err)
	}
	return nil
}

// CloseAll closes every remaining handle, for session teardown.
func (t *Table) CloseAll() {
	t.mu.Lock()
	handles := make([]int, 0, len(t.handles))
	for h := range t.handles {
		handles = append(handles, h)
	}
	t.mu.Unlock()
	for _, h := range handles {
		t.Close(h)
	}
}
