package session

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// encodeStatx packs a statx result into the vFile:fstat/vFile:stat reply
// layout: a sequence of big-endian fields (dev, ino, mode, nlink, uid,
// gid, rdev, size, blksize, blocks, atime, mtime, ctime), matching the
// fixed "struct stat" shape gdb's remote protocol defines for these
// replies regardless of host struct layout.
func encodeStatx(st unix.Statx_t) []byte {
	var buf []byte
	put32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	put64 := func(v uint64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}

	put32(uint32(st.Dev_major)<<8 | uint32(st.Dev_minor))
	put32(uint32(st.Ino))
	put32(uint32(st.Mode))
	put32(uint32(st.Nlink))
	put32(st.Uid)
	put32(st.Gid)
	put32(uint32(st.Rdev_major)<<8 | uint32(st.Rdev_minor))
	put64(st.Size)
	put32(st.Blksize)
	put64(st.Blocks)
	put32(uint32(st.Atime.Sec))
	put32(uint32(st.Mtime.Sec))
	put32(uint32(st.Ctime.Sec))

	return buf
}
