package session

import (
	"testing"

	"github.com/debugstub/ds2agent/internal/agenterr"
)

func TestHexStringRoundTrip(t *testing.T) {
	s := "/tmp/target.elf"
	encoded := encodeHexString(s)
	decoded, err := decodeHexString(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != s {
		t.Fatalf("round trip mismatch: got %q, want %q", decoded, s)
	}
}

func TestDecodeHexStringRejectsMalformed(t *testing.T) {
	if _, err := decodeHexString("zz"); err == nil {
		t.Fatal("expected error for non-hex input")
	}
}

func TestParseHexUint64(t *testing.T) {
	v, err := parseHexUint64("1000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0x1000 {
		t.Fatalf("got %x, want 0x1000", v)
	}
}

func TestParseHexIntRejectsMalformed(t *testing.T) {
	if _, err := parseHexInt("not-hex"); err == nil {
		t.Fatal("expected error")
	}
}

func TestErrReplyEncodesWireErrno(t *testing.T) {
	err := agenterr.New("test.op", agenterr.NotFound, "missing")
	resp := errReply(err)
	if len(resp) == 0 || resp[0] != 'E' {
		t.Fatalf("expected E-prefixed reply, got %s", resp)
	}
}

func TestErrReplyDefaultsUnknownForPlainError(t *testing.T) {
	resp := errReply(errPlain("boom"))
	want := "E" + encodeHex([]byte{agenterr.WireErrno(agenterr.Unknown)})
	if string(resp) != want {
		t.Fatalf("got %s, want %s", resp, want)
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }
