package timer

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// IDHexLen is the length of a timer's canonical URL hex form: an 8-byte
// big-endian id followed by an 8-byte big-endian bloom hash.
//
// See DESIGN.md "Open Question resolutions" #1 for why this is 32 hex
// characters (16 bytes) rather than the 24-hex/12-byte figure named
// elsewhere in the spec: that figure is arithmetically incompatible
// with a 64-bit id and a 64-bit bloom hash both being held at full
// width, and the id's "globally unique with overwhelming probability"
// invariant is the one of the two details this reimplementation
// preserves exactly.
const IDHexLen = 32

// IDHex renders id and bloomHash as the canonical 32-character lowercase
// hex identifier.
func IDHex(id, bloomHash uint64) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], id)
	binary.BigEndian.PutUint64(buf[8:16], bloomHash)
	return hex.EncodeToString(buf[:])
}

// ParseIDHex recovers the id and bloom hash from a timer's canonical
// hex form.
func ParseIDHex(s string) (id, bloomHash uint64, err error) {
	if len(s) != IDHexLen {
		return 0, 0, fmt.Errorf("timer id must be %d hex characters, got %d", IDHexLen, len(s))
	}
	buf, err := hex.DecodeString(s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid timer id: %w", err)
	}
	id = binary.BigEndian.Uint64(buf[0:8])
	bloomHash = binary.BigEndian.Uint64(buf[8:16])
	return id, bloomHash, nil
}

// IDHexWithHash returns the timer's id encoded with the supplied bloom hash
// (normally the OR of its current replicas' signatures).
func (t *Timer) IDHexWithHash(bloomHash uint64) string {
	return IDHex(t.ID, bloomHash)
}

// PeerURL produces the canonical address of the timer on addr (a
// host:port pair as it appears in the cluster's node list), given a
// freshly-computed bloom hash for its current replica set. This is
// spec.md §4.1's `url(host)` operation: every address in this system,
// local or remote, is already a host:port pair, so there is no
// separate form for "the local host" versus "a peer".
func (t *Timer) PeerURL(addr string, bloomHash uint64) string {
	return fmt.Sprintf("http://%s/timers/%s", addr, t.IDHexWithHash(bloomHash))
}
