// Package topology holds the cluster's consistent-hashing view: node
// signatures, bloom-candidate enumeration, and the consistent-hash ring
// walk that replica selection falls back to when bloom candidates run
// short. A Topology value is an immutable snapshot; config reload
// builds a new one and swaps it in rather than mutating nodes in
// place, so an in-flight dispatch never observes a half-updated
// cluster.
package topology

import (
	"fmt"
	"sort"
)

// Topology is an immutable snapshot of cluster membership.
type Topology struct {
	nodes     []Node
	byAddress map[string]Node
	local     string
	ring      *ring
}

// New builds a Topology from nodes (deduplicated by address, sorted by
// address for deterministic bloom-candidate enumeration order) and the
// local node's address. local must appear in nodes.
func New(nodes []Node, local string, vnodes int) (*Topology, error) {
	byAddress := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byAddress[n.Address] = n
	}
	if _, ok := byAddress[local]; !ok {
		return nil, fmt.Errorf("local address %q is not present in the node list", local)
	}

	sorted := make([]Node, 0, len(byAddress))
	for _, n := range byAddress {
		sorted = append(sorted, n)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	r := newRing(vnodes)
	for _, n := range sorted {
		r.add(n.Address)
	}

	return &Topology{nodes: sorted, byAddress: byAddress, local: local, ring: r}, nil
}

// Local returns the address of this process's own node.
func (t *Topology) Local() string {
	return t.local
}

// Nodes returns the cluster's members in deterministic (address-sorted)
// order. The returned slice must not be mutated.
func (t *Topology) Nodes() []Node {
	return t.nodes
}

// Size returns the number of distinct nodes in the cluster.
func (t *Topology) Size() int {
	return len(t.nodes)
}

// Node looks up a single node by address.
func (t *Topology) Node(addr string) (Node, bool) {
	n, ok := t.byAddress[addr]
	return n, ok
}

// BloomHashFor returns the bitwise OR of the signatures of every
// address in addrs that is a known cluster member. An address not
// currently in the topology (e.g. an explicit replica naming a node
// that has since left the cluster) contributes nothing — spec.md §9's
// open question treats an unreachable named replica the same as any
// other best-effort fan-out failure, so it's simply absent from the
// hash rather than rejected.
func (t *Topology) BloomHashFor(addrs []string) uint64 {
	var h uint64
	for _, a := range addrs {
		if n, ok := t.byAddress[a]; ok {
			h |= n.Signature
		}
	}
	return h
}

// CandidateReplicas enumerates, in deterministic order, every node
// whose signature is a subset of bloomHash. This is a superset of the
// node's actual replica set (spec.md's recovery-from-id guarantee) and
// is also used to name a hint peer when a GET misses locally.
func (t *Topology) CandidateReplicas(bloomHash uint64) []Node {
	out := make([]Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		if n.IsCandidate(bloomHash) {
			out = append(out, n)
		}
	}
	return out
}

// SelectReplicas picks the replica set for a new timer with the given
// id and bloom hash, following spec.md's three-step fallback:
//
//  1. If explicit is non-empty, it is returned verbatim (the caller
//     already decided the replica set, e.g. a client-supplied list).
//  2. Otherwise, bloom-candidate nodes are enumerated in deterministic
//     order and taken up to desired.
//  3. If still short of desired (including when bloomHash is zero),
//     the consistent-hash ring is walked starting from a position
//     seeded by id, skipping nodes already chosen, until desired nodes
//     are picked or the cluster is exhausted.
func (t *Topology) SelectReplicas(id uint64, bloomHash uint64, desired int, explicit []string) []string {
	if len(explicit) > 0 {
		return append([]string(nil), explicit...)
	}
	if desired <= 0 {
		desired = 1
	}

	candidates := t.CandidateReplicas(bloomHash)
	out := make([]string, 0, desired)
	chosen := make(map[string]bool, desired)
	for _, n := range candidates {
		if len(out) >= desired {
			break
		}
		out = append(out, n.Address)
		chosen[n.Address] = true
	}

	if len(out) < desired {
		seed := fmt.Sprintf("timer-%d", id)
		remainder := t.ring.walk(seed, desired-len(out), chosen)
		out = append(out, remainder...)
	}

	return out
}
