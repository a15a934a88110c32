package topology

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"slices"
	"sort"
)

// defaultVnodes mirrors the teacher ring's default: enough virtual
// nodes per physical node to keep load roughly even without the ring
// growing unwieldy for a handful of physical nodes.
const defaultVnodes = 150

// ring is a consistent-hash ring over node addresses, used only as the
// fallback step of replica selection once the bloom-candidate walk runs
// out of candidates.
type ring struct {
	vnodes int
	points map[uint32]string
	sorted []uint32
}

func newRing(vnodes int) *ring {
	if vnodes <= 0 {
		vnodes = defaultVnodes
	}
	return &ring{vnodes: vnodes, points: make(map[uint32]string)}
}

func (r *ring) add(addr string) {
	for i := 0; i < r.vnodes; i++ {
		pos := ringHash(fmt.Sprintf("%s#%d", addr, i))
		r.points[pos] = addr
	}
	r.rebuild()
}

func (r *ring) rebuild() {
	r.sorted = make([]uint32, 0, len(r.points))
	for pos := range r.points {
		r.sorted = append(r.sorted, pos)
	}
	slices.Sort(r.sorted)
}

// walk returns up to n distinct addresses starting at the ring position
// for seed and proceeding clockwise, skipping any address present in
// skip.
func (r *ring) walk(seed string, n int, skip map[string]bool) []string {
	if len(r.sorted) == 0 || n <= 0 {
		return nil
	}
	pos := ringHash(seed)
	idx := r.search(pos)

	out := make([]string, 0, n)
	seen := make(map[string]bool, len(skip))
	for k, v := range skip {
		seen[k] = v
	}
	for i := 0; i < len(r.sorted) && len(out) < n; i++ {
		vpos := r.sorted[(idx+i)%len(r.sorted)]
		addr := r.points[vpos]
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

func (r *ring) search(pos uint32) int {
	idx := sort.Search(len(r.sorted), func(i int) bool {
		return r.sorted[i] >= pos
	})
	if idx == len(r.sorted) {
		idx = 0
	}
	return idx
}

func ringHash(s string) uint32 {
	h := sha256.Sum256([]byte(s))
	return binary.BigEndian.Uint32(h[:4])
}
