package channel

import (
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Dial resolves a CLI endpoint spec into a duplex byte stream:
//
//	tcp://[host]:port      dial TCP
//	unix:///path           dial a UNIX domain socket
//	unix-abstract://name   dial a Linux abstract UNIX socket
//	/path/to/ttyUSB0       open as a raw character device
//
// Listen-mode addresses (server side of tcp/unix) are handled by Listen,
// not Dial.
func Dial(spec string) (net.Conn, error) {
	switch {
	case strings.HasPrefix(spec, "tcp://"):
		return net.Dial("tcp", strings.TrimPrefix(spec, "tcp://"))
	case strings.HasPrefix(spec, "unix://"):
		return net.Dial("unix", strings.TrimPrefix(spec, "unix://"))
	case strings.HasPrefix(spec, "unix-abstract://"):
		name := strings.TrimPrefix(spec, "unix-abstract://")
		return net.Dial("unix", "@"+name)
	default:
		return nil, fmt.Errorf("channel: %q is not a dial-able transport", spec)
	}
}

// Listen opens a listening socket for tcp:// and unix:// / unix-abstract://
// specs, for the forward-connect server case (the agent waits for the
// debugger to connect).
func Listen(spec string) (net.Listener, error) {
	switch {
	case strings.HasPrefix(spec, "tcp://"):
		return net.Listen("tcp", strings.TrimPrefix(spec, "tcp://"))
	case strings.HasPrefix(spec, "unix://"):
		return net.Listen("unix", strings.TrimPrefix(spec, "unix://"))
	case strings.HasPrefix(spec, "unix-abstract://"):
		name := strings.TrimPrefix(spec, "unix-abstract://")
		return net.Listen("unix", "@"+name)
	default:
		return nil, fmt.Errorf("channel: %q is not a listen-able transport", spec)
	}
}

// IsCharDevicePath reports whether spec names a bare path with no "://"
// and no ":" — the character-device/FIFO transport per the CLI surface.
func IsCharDevicePath(spec string) bool {
	return !strings.Contains(spec, "://") && !strings.Contains(spec, ":")
}

// OpenCharDevice opens path and, if it is a TTY, configures it for raw
// 8-bit-clean framing: no input/output/line processing, 8 data bits, no
// modem control lines, one byte at a time with no inter-byte timeout.
func OpenCharDevice(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("channel: open %s: %w", path, err)
	}

	fd := int(f.Fd())
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		// Not a TTY (e.g. a FIFO); leave it as-is.
		return f, nil
	}

	termios.Iflag = 0
	termios.Oflag = 0
	termios.Lflag = 0
	termios.Cflag = (termios.Cflag &^ unix.CSIZE) | unix.CS8 | unix.CLOCAL
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		f.Close()
		return nil, fmt.Errorf("channel: configure raw tty %s: %w", path, err)
	}
	return f, nil
}

// FromFD wraps an inherited file descriptor (--fd N) as a byte stream,
// setting it non-blocking on acquisition.
func FromFD(fd int) (*os.File, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("channel: set fd %d non-blocking: %w", fd, err)
	}
	return os.NewFile(uintptr(fd), fmt.Sprintf("fd/%d", fd)), nil
}
