package session

import (
	"fmt"
	"strings"

	"github.com/debugstub/ds2agent/internal/agenterr"
)

// fReply formats a successful vFile reply: F<hex-result>[;<raw-data>].
func fReply(result int, data []byte) []byte {
	if data == nil {
		return []byte(fmt.Sprintf("F%x", result))
	}
	out := []byte(fmt.Sprintf("F%x;", result))
	return append(out, data...)
}

// fErrReply formats a failed vFile reply: F-1,<hex-errno>.
func fErrReply(err error) []byte {
	code := agenterr.Unknown
	if ae, ok := err.(*agenterr.Error); ok {
		code = ae.Code
	}
	return []byte(fmt.Sprintf("F-1,%x", agenterr.WireErrno(code)))
}

func splitArgs(payload, prefix string) []string {
	rest := strings.TrimPrefix(payload, prefix)
	if rest == "" {
		return nil
	}
	return strings.Split(rest, ",")
}

func (c *CommonDelegate) vFileOpen(payload string) ([]byte, error) {
	args := splitArgs(payload, "vFile:open:")
	if len(args) != 3 {
		return fErrReply(agenterr.New("vFile:open", agenterr.InvalidArgument, "expected path,flags,mode")), nil
	}
	path, err := decodeHexString(args[0])
	if err != nil {
		return fErrReply(err), nil
	}
	flags, err := parseHexInt(args[1])
	if err != nil {
		return fErrReply(err), nil
	}
	mode, err := parseHexUint64(args[2])
	if err != nil {
		return fErrReply(err), nil
	}
	handle, err := c.Files.Open(path, flags, uint32(mode))
	if err != nil {
		return fErrReply(err), nil
	}
	return fReply(handle, nil), nil
}

func (c *CommonDelegate) vFileClose(payload string) ([]byte, error) {
	handle, err := parseHexInt(strings.TrimPrefix(payload, "vFile:close:"))
	if err != nil {
		return fErrReply(err), nil
	}
	if err := c.Files.Close(handle); err != nil {
		return fErrReply(err), nil
	}
	return fReply(0, nil), nil
}

func (c *CommonDelegate) vFilePread(payload string) ([]byte, error) {
	args := splitArgs(payload, "vFile:pread:")
	if len(args) != 3 {
		return fErrReply(agenterr.New("vFile:pread", agenterr.InvalidArgument, "expected fd,count,offset")), nil
	}
	handle, err := parseHexInt(args[0])
	if err != nil {
		return fErrReply(err), nil
	}
	count, err := parseHexInt(args[1])
	if err != nil {
		return fErrReply(err), nil
	}
	offset, err := parseHexUint64(args[2])
	if err != nil {
		return fErrReply(err), nil
	}
	buf := make([]byte, count)
	n, err := c.Files.Pread(handle, buf, int64(offset))
	if err != nil {
		return fErrReply(err), nil
	}
	return fReply(n, buf[:n]), nil
}

func (c *CommonDelegate) vFilePwrite(payload string) ([]byte, error) {
	rest := strings.TrimPrefix(payload, "vFile:pwrite:")
	parts := strings.SplitN(rest, ",", 3)
	if len(parts) != 3 {
		return fErrReply(agenterr.New("vFile:pwrite", agenterr.InvalidArgument, "expected fd,offset,data")), nil
	}
	handle, err := parseHexInt(parts[0])
	if err != nil {
		return fErrReply(err), nil
	}
	offset, err := parseHexUint64(parts[1])
	if err != nil {
		return fErrReply(err), nil
	}
	n, err := c.Files.Pwrite(handle, []byte(parts[2]), int64(offset))
	if err != nil {
		return fErrReply(err), nil
	}
	return fReply(n, nil), nil
}

func (c *CommonDelegate) vFileFstat(payload string) ([]byte, error) {
	handle, err := parseHexInt(strings.TrimPrefix(payload, "vFile:fstat:"))
	if err != nil {
		return fErrReply(err), nil
	}
	st, err := c.Files.Fstat(handle)
	if err != nil {
		return fErrReply(err), nil
	}
	data := encodeStatx(st)
	return fReply(len(data), data), nil
}

func (c *CommonDelegate) vFileStat(payload string) ([]byte, error) {
	path, err := decodeHexString(strings.TrimPrefix(payload, "vFile:stat:"))
	if err != nil {
		return fErrReply(err), nil
	}
	st, err := c.Files.Stat(path)
	if err != nil {
		return fErrReply(err), nil
	}
	data := encodeStatx(st)
	return fReply(len(data), data), nil
}

func (c *CommonDelegate) vFileUnlink(payload string) ([]byte, error) {
	path, err := decodeHexString(strings.TrimPrefix(payload, "vFile:unlink:"))
	if err != nil {
		return fErrReply(err), nil
	}
	if err := c.Files.Unlink(path); err != nil {
		return fErrReply(err), nil
	}
	return fReply(0, nil), nil
}

func (c *CommonDelegate) vFileReadlink(payload string) ([]byte, error) {
	path, err := decodeHexString(strings.TrimPrefix(payload, "vFile:readlink:"))
	if err != nil {
		return fErrReply(err), nil
	}
	target, err := c.Files.Readlink(path)
	if err != nil {
		return fErrReply(err), nil
	}
	return fReply(len(target), []byte(target)), nil
}

func (c *CommonDelegate) vFileMkdir(payload string) ([]byte, error) {
	args := splitArgs(payload, "vFile:mkdir:")
	if len(args) != 2 {
		return fErrReply(agenterr.New("vFile:mkdir", agenterr.InvalidArgument, "expected path,mode")), nil
	}
	path, err := decodeHexString(args[0])
	if err != nil {
		return fErrReply(err), nil
	}
	mode, err := parseHexUint64(args[1])
	if err != nil {
		return fErrReply(err), nil
	}
	if err := c.Files.Mkdir(path, uint32(mode)); err != nil {
		return fErrReply(err), nil
	}
	return fReply(0, nil), nil
}

func (c *CommonDelegate) vFileChmod(payload string) ([]byte, error) {
	args := splitArgs(payload, "vFile:chmod:")
	if len(args) != 2 {
		return fErrReply(agenterr.New("vFile:chmod", agenterr.InvalidArgument, "expected path,mode")), nil
	}
	path, err := decodeHexString(args[0])
	if err != nil {
		return fErrReply(err), nil
	}
	mode, err := parseHexUint64(args[1])
	if err != nil {
		return fErrReply(err), nil
	}
	if err := c.Files.Chmod(path, uint32(mode)); err != nil {
		return fErrReply(err), nil
	}
	return fReply(0, nil), nil
}
