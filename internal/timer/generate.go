package timer

import (
	"crypto/rand"
	"encoding/binary"
)

// GenerateID returns a fresh 64-bit id, unique with overwhelming
// probability, for a client-initiated timer. Peer-replicated and
// client-retried timers instead reuse an existing id.
func GenerateID() uint64 {
	var buf [8]byte
	// crypto/rand.Read on the package-level Reader never returns a short
	// read or error on any platform this targets; a zero id is still a
	// valid (if unlucky) random outcome and is not treated specially.
	_, _ = rand.Read(buf[:])
	return binary.BigEndian.Uint64(buf[:])
}
