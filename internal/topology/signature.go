package topology

import (
	"crypto/rand"
	"fmt"
	"math/bits"
)

// Node is a single cluster member: its address (host:port, also its
// identity on the consistent-hash ring) and its bloom signature.
type Node struct {
	Address   string
	Signature uint64
}

// IsCandidate reports whether n's signature is entirely contained in
// bloomHash, i.e. n could be one of the nodes whose signatures were
// OR'd together to produce it.
func (n Node) IsCandidate(bloomHash uint64) bool {
	return n.Signature&bloomHash == n.Signature
}

// BloomHash returns the bitwise OR of every node's signature in nodes,
// the value embedded in a timer's id once its replica set is chosen.
func BloomHash(nodes []Node) uint64 {
	var h uint64
	for _, n := range nodes {
		h |= n.Signature
	}
	return h
}

// GenerateSignature returns a random 64-bit value with exactly b bits
// set, suitable as a node's consistent-hash signature. b must be
// between 1 and 64. Used by cluster bootstrap tooling to hand out
// signatures to new nodes; chronosd itself only ever reads signatures
// out of config.
func GenerateSignature(b int) (uint64, error) {
	if b <= 0 || b > 64 {
		return 0, fmt.Errorf("signature bit count must be between 1 and 64, got %d", b)
	}
	var sig uint64
	for bits.OnesCount64(sig) < b {
		var buf [1]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("reading randomness for signature: %w", err)
		}
		pos := buf[0] % 64
		sig |= uint64(1) << pos
	}
	return sig, nil
}
