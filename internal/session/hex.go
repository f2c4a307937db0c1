package session

import (
	"encoding/hex"
	"strconv"

	"github.com/debugstub/ds2agent/internal/agenterr"
)

// encodeHex lowercases, matching the wire convention (§6): every hex
// payload this agent emits is lowercase.
func encodeHex(data []byte) string {
	return hex.EncodeToString(data)
}

func decodeHex(s string) ([]byte, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, agenterr.New("session.decodeHex", agenterr.InvalidArgument, "malformed hex payload")
	}
	return data, nil
}

// encodeHexString hex-encodes a string's raw bytes, used for the ASCII
// text fields qXfer/vFile pack as hex (paths, annex names, ...).
func encodeHexString(s string) string {
	return hex.EncodeToString([]byte(s))
}

func decodeHexString(s string) (string, error) {
	data, err := decodeHex(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseHexUint64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, agenterr.New("session.parseHexUint64", agenterr.InvalidArgument, "malformed hex integer")
	}
	return v, nil
}

func parseHexInt(s string) (int, error) {
	v, err := strconv.ParseInt(s, 16, 64)
	if err != nil {
		return 0, agenterr.New("session.parseHexInt", agenterr.InvalidArgument, "malformed hex integer")
	}
	return int(v), nil
}

// errReply formats err as the session's E<hh> error reply.
func errReply(err error) []byte {
	code := agenterr.Unknown
	if ae, ok := err.(*agenterr.Error); ok {
		code = ae.Code
	}
	return []byte("E" + hex.EncodeToString([]byte{agenterr.WireErrno(code)}))
}

var okReply = []byte("OK")
