package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/debugstub/ds2agent/internal/fileops"
	"golang.org/x/sys/unix"
)

// fakeRing is a minimal in-memory stand-in for the io_uring-backed Ring
// interface, just enough for exercising the vFile wire-format wrapping
// rather than the file I/O semantics fileops already tests directly.
type fakeRing struct {
	nextFD int
	files  map[int][]byte
}

func newFakeRing() *fakeRing {
	return &fakeRing{nextFD: 3, files: make(map[int][]byte)}
}

func (r *fakeRing) Openat(dirfd int, path string, flags int, mode uint32) (int, error) {
	fd := r.nextFD
	r.nextFD++
	r.files[fd] = nil
	return fd, nil
}

func (r *fakeRing) Read(fd int, buf []byte, offset int64) (int, error) {
	data := r.files[fd]
	if offset >= int64(len(data)) {
		return 0, nil
	}
	return copy(buf, data[offset:]), nil
}

func (r *fakeRing) Write(fd int, data []byte, offset int64) (int, error) {
	existing := r.files[fd]
	need := int(offset) + len(data)
	if need > len(existing) {
		grown := make([]byte, need)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:], data)
	r.files[fd] = existing
	return len(data), nil
}

func (r *fakeRing) CloseFD(fd int) error { return nil }

func (r *fakeRing) Statx(dirfd int, path string, flags, mask uint32, stat *unix.Statx_t) error {
	stat.Size = uint64(len(r.files[dirfd]))
	return nil
}

func (r *fakeRing) Unlinkat(dirfd int, path string, flags int) error { return nil }
func (r *fakeRing) Mkdirat(dirfd int, path string, mode uint32) error { return nil }

func newFileOpsTestDelegate() (*CommonDelegate, *fakeRing) {
	ring := newFakeRing()
	return &CommonDelegate{Files: fileops.NewTable(ring)}, ring
}

func TestVFileOpenCloseRoundTrip(t *testing.T) {
	c, _ := newFileOpsTestDelegate()

	resp, err := c.vFileOpen("vFile:open:" + encodeHexString("/tmp/x") + ",0,0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(string(resp), "F") {
		t.Fatalf("expected F-reply, got %s", resp)
	}

	handlePart := strings.TrimPrefix(string(resp), "F")
	resp2, err := c.vFileClose("vFile:close:" + handlePart)
	if err != nil || string(resp2) != "F0" {
		t.Fatalf("got resp=%s err=%v", resp2, err)
	}
}

func TestVFileOpenRejectsMalformedArgs(t *testing.T) {
	c, _ := newFileOpsTestDelegate()
	resp, err := c.vFileOpen("vFile:open:onlyonearg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(string(resp), "F-1,") {
		t.Fatalf("expected an F-1 error reply, got %s", resp)
	}
}

func TestVFilePwritePreadRoundTrip(t *testing.T) {
	c, _ := newFileOpsTestDelegate()
	openResp, _ := c.vFileOpen("vFile:open:" + encodeHexString("/tmp/x") + ",0,0")
	handle := strings.TrimPrefix(string(openResp), "F")

	if resp, err := c.vFilePwrite("vFile:pwrite:" + handle + ",0,hello"); err != nil || string(resp) != "F5" {
		t.Fatalf("got resp=%s err=%v", resp, err)
	}

	resp, err := c.vFilePread("vFile:pread:" + handle + ",5,0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(string(resp), "hello") {
		t.Fatalf("expected pread reply to end with the written data, got %s", resp)
	}
}

func TestVFileFstatReportsSize(t *testing.T) {
	c, _ := newFileOpsTestDelegate()
	openResp, _ := c.vFileOpen("vFile:open:" + encodeHexString("/tmp/x") + ",0,0")
	handle := strings.TrimPrefix(string(openResp), "F")
	c.vFilePwrite("vFile:pwrite:" + handle + ",0,hello")

	resp, err := c.vFileFstat("vFile:fstat:" + handle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(string(resp), "F") {
		t.Fatalf("expected F-reply, got %s", resp)
	}
}

func TestVFileUnlinkAndMkdir(t *testing.T) {
	c, _ := newFileOpsTestDelegate()
	if resp, err := c.vFileUnlink("vFile:unlink:" + encodeHexString("/tmp/gone")); err != nil || string(resp) != "F0" {
		t.Fatalf("unlink: got resp=%s err=%v", resp, err)
	}
	if resp, err := c.vFileMkdir("vFile:mkdir:" + encodeHexString("/tmp/newdir") + ",1ed"); err != nil || string(resp) != "F0" {
		t.Fatalf("mkdir: got resp=%s err=%v", resp, err)
	}
}

func TestVFileReadlinkAgainstRealSymlink(t *testing.T) {
	c, _ := newFileOpsTestDelegate()
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	link := filepath.Join(dir, "link")
	os.WriteFile(target, []byte("x"), 0o644)
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("setup symlink failed: %v", err)
	}

	resp, err := c.vFileReadlink("vFile:readlink:" + encodeHexString(link))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(resp), "target") {
		t.Fatalf("expected reply to mention the link target, got %s", resp)
	}
}

func TestVFileChmodAgainstRealFile(t *testing.T) {
	c, _ := newFileOpsTestDelegate()
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	os.WriteFile(path, []byte("x"), 0o644)

	resp, err := c.vFileChmod("vFile:chmod:" + encodeHexString(path) + ",1ff")
	if err != nil || string(resp) != "F0" {
		t.Fatalf("got resp=%s err=%v", resp, err)
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		t.Fatalf("stat failed: %v", statErr)
	}
	if info.Mode().Perm() != 0o777 {
		t.Fatalf("expected mode 0777, got %v", info.Mode().Perm())
	}
}
