// Package uring wraps github.com/pawelgaczynski/giouring to back the
// vFile command group with real io_uring submission instead of
// synchronous syscalls: openat, read, write, close, statx, unlinkat and
// mkdirat all go through one shared ring per session.
package uring

import (
	"fmt"
	"sync"

	"github.com/debugstub/ds2agent/internal/logging"
	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"
)

// Ring serializes access to a single giouring.Ring: submission queue
// entries are prepared and submitted under a mutex, then the caller
// blocks on its own completion by matching user_data, mirroring the
// request/response discipline the rest of the agent uses for its
// synchronous-looking external interface.
type Ring struct {
	mu     sync.Mutex
	ring   *giouring.Ring
	logger *logging.Logger
	nextID uint64
}

// New opens a ring with the given submission queue depth.
func New(entries uint32, logger *logging.Logger) (*Ring, error) {
	if logger == nil {
		logger = logging.Default()
	}
	r, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("uring: create ring: %w", err)
	}
	return &Ring{ring: r, logger: logger}, nil
}

// Close releases the ring.
func (r *Ring) Close() {
	if r.ring != nil {
		r.ring.QueueExit()
	}
}

// submit prepares one SQE via prep, submits it, and waits for its
// matching completion, returning the CQE result (res) and any error.
func (r *Ring) submit(prep func(sqe *giouring.SubmissionQueueEntry)) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sqe := r.ring.GetSQE()
	if sqe == nil {
		return 0, fmt.Errorf("uring: submission queue full")
	}
	r.nextID++
	id := r.nextID
	prep(sqe)
	sqe.UserData = id

	if _, err := r.ring.Submit(); err != nil {
		return 0, fmt.Errorf("uring: submit: %w", err)
	}

	cqe, err := r.ring.WaitCQE()
	if err != nil {
		return 0, fmt.Errorf("uring: wait completion: %w", err)
	}
	r.ring.SeenCQE(cqe)
	return cqe.Res, nil
}

// Openat opens path relative to dirfd with the given flags/mode.
func (r *Ring) Openat(dirfd int, path string, flags int, mode uint32) (int, error) {
	res, err := r.submit(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepOpenat(dirfd, path, uint32(flags), mode)
	})
	if err != nil {
		return 0, err
	}
	if res < 0 {
		return 0, unix.Errno(-res)
	}
	return int(res), nil
}

// Read reads len(buf) bytes from fd at offset.
func (r *Ring) Read(fd int, buf []byte, offset int64) (int, error) {
	res, err := r.submit(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepRead(fd, buf, uint64(offset))
	})
	if err != nil {
		return 0, err
	}
	if res < 0 {
		return 0, unix.Errno(-res)
	}
	return int(res), nil
}

// Write writes data to fd at offset.
func (r *Ring) Write(fd int, data []byte, offset int64) (int, error) {
	res, err := r.submit(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepWrite(fd, data, uint64(offset), 0)
	})
	if err != nil {
		return 0, err
	}
	if res < 0 {
		return 0, unix.Errno(-res)
	}
	return int(res), nil
}

// Close closes fd.
func (r *Ring) CloseFD(fd int) error {
	res, err := r.submit(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepClose(fd)
	})
	if err != nil {
		return err
	}
	if res < 0 {
		return unix.Errno(-res)
	}
	return nil
}

// Statx stats path relative to dirfd into stat.
func (r *Ring) Statx(dirfd int, path string, flags, mask uint32, stat *unix.Statx_t) error {
	res, err := r.submit(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepStatx(dirfd, path, flags, mask, stat)
	})
	if err != nil {
		return err
	}
	if res < 0 {
		return unix.Errno(-res)
	}
	return nil
}

// Unlinkat removes path relative to dirfd.
func (r *Ring) Unlinkat(dirfd int, path string, flags int) error {
	res, err := r.submit(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepUnlinkat(dirfd, path, uint32(flags))
	})
	if err != nil {
		return err
	}
	if res < 0 {
		return unix.Errno(-res)
	}
	return nil
}

// Mkdirat creates a directory at path relative to dirfd.
func (r *Ring) Mkdirat(dirfd int, path string, mode uint32) error {
	res, err := r.submit(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepMkdirat(dirfd, path, mode)
	})
	if err != nil {
		return err
	}
	if res < 0 {
		return unix.Errno(-res)
	}
	return nil
}
