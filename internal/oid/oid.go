// Package oid generates and validates the 24-hex-character object
// identifiers used as primary keys across every collection.
package oid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// New returns a fresh 24-character lowercase hex identifier. The first four
// bytes encode the creation time so ids sort roughly by age, matching the
// ids the store hands out natively.
func New() string {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[:4], uint32(time.Now().UTC().Unix()))
	if _, err := rand.Read(buf[4:]); err != nil {
		// Degrade to a timestamp-only id rather than failing the write.
		binary.BigEndian.PutUint64(buf[4:], uint64(time.Now().UTC().UnixNano()))
	}
	return hex.EncodeToString(buf[:])
}

// Valid reports whether id is syntactically a store identifier: exactly 24
// hex characters. Delete and update actions gate on this before touching the
// store; anything else is treated as a no-op target.
func Valid(id string) bool {
	if len(id) != 24 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
