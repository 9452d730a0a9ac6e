package gatt

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb) in normalized form.
const (
	sigBasePrefix = "0000"
	sigBaseSuffix = "00001000800000805f9b34fb"
)

// UUID is a normalized GATT UUID: lowercase hex, no dashes, no 0x prefix.
// 128-bit UUIDs in the Bluetooth SIG base range are stored in their 16-bit
// short form.
type UUID string

// NormalizeUUID converts a UUID string to the internal format (lowercase,
// no dashes). Strips a 0x prefix if present (e.g. "0x2902" -> "2902").
// Full 128-bit UUIDs in the Bluetooth SIG base format are reduced to their
// 16-bit short form.
func NormalizeUUID(s string) UUID {
	s = strings.ToLower(strings.ReplaceAll(s, "-", ""))
	s = strings.TrimPrefix(s, "0x")
	if len(s) == 32 && strings.HasPrefix(s, sigBasePrefix) && strings.HasSuffix(s, sigBaseSuffix) {
		return UUID(s[4:8])
	}
	return UUID(s)
}

// UUIDFromWire builds a UUID from raw wire bytes. BGAPI transmits UUIDs in
// reversed byte order, so the slice is reversed before hex encoding. The
// input slice is not modified.
func UUIDFromWire(b []byte) UUID {
	rev := make([]byte, len(b))
	for i, v := range b {
		rev[len(b)-1-i] = v
	}
	return NormalizeUUID(hex.EncodeToString(rev))
}

// Wire returns the UUID as reversed wire-order bytes, expanding a 16-bit
// short form to 2 bytes and a full UUID to 16 bytes.
func (u UUID) Wire() ([]byte, error) {
	raw, err := hex.DecodeString(string(u))
	if err != nil {
		return nil, fmt.Errorf("invalid UUID %q: %w", string(u), err)
	}
	for i, j := 0, len(raw)-1; i < j; i, j = i+1, j-1 {
		raw[i], raw[j] = raw[j], raw[i]
	}
	return raw, nil
}

// Is128Bit reports whether the UUID is a full 128-bit identifier, i.e. one
// that could not be reduced to a SIG 16-bit short form.
func (u UUID) Is128Bit() bool {
	return len(u) == 32
}

func (u UUID) String() string {
	return string(u)
}
