package api

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"chronos/internal/timer"
)

// CreateTimer handles POST /timers: allocates a fresh id, selects
// replicas (unless the body already names them), and returns the
// timer's canonical address in the Location header.
func (s *Server) CreateTimer(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	s.handleInboundTimer(c, timer.GenerateID(), 0, body)
}

// GetTimer handles GET /timers/<hex>. A miss on this node is not
// necessarily a miss cluster-wide: if the URL's bloom portion names a
// candidate replica other than this node, the response names it so
// the caller can retry there (spec.md §8 scenario 6).
func (s *Server) GetTimer(c *gin.Context) {
	id, bloomHash, err := timer.ParseIDHex(c.Param("hex"))
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	if t, ok := s.handler.Get(id); ok {
		data, err := t.ToJSON()
		if err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		c.Data(http.StatusOK, "application/json", data)
		return
	}

	topo := s.topo.Get()
	for _, n := range topo.CandidateReplicas(bloomHash) {
		if n.Address != topo.Local() {
			c.String(http.StatusNotFound, "not found on this replica, try %s", n.Address)
			return
		}
	}
	c.String(http.StatusNotFound, "not found")
}

// PutTimer handles PUT /timers/<hex>. An empty body is a delete;
// otherwise the body is parsed and stored exactly as a fresh POST,
// except the id and advisory bloom hint both come from the URL rather
// than being freshly allocated.
func (s *Server) PutTimer(c *gin.Context) {
	id, bloomHash, err := timer.ParseIDHex(c.Param("hex"))
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	if len(body) == 0 {
		s.deleteByID(c, id, bloomHash)
		return
	}
	s.handleInboundTimer(c, id, bloomHash, body)
}

// DeleteTimer handles DELETE /timers/<hex>, equivalent to a PUT with
// an empty body.
func (s *Server) DeleteTimer(c *gin.Context) {
	id, bloomHash, err := timer.ParseIDHex(c.Param("hex"))
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	s.deleteByID(c, id, bloomHash)
}

// handleInboundTimer is the shared body of CreateTimer and the
// non-empty-body half of PutTimer: parse, select replicas when none
// were supplied explicitly, store locally iff this node is one of
// them, and replicate unless the caller already has (spec.md §4.1,
// §4.6).
func (s *Server) handleInboundTimer(c *gin.Context, id uint64, urlBloomHash uint64, body []byte) {
	t, explicit, err := timer.FromJSON(id, body, s.clock.Now())
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	topo := s.topo.Get()

	if explicit {
		if !t.IsLocal(topo.Local()) {
			c.String(http.StatusBadRequest, ErrNotAReplica.Error())
			return
		}
	} else {
		replicas := topo.SelectReplicas(t.ID, urlBloomHash, t.ReplicationFactor, nil)
		if len(replicas) < t.ReplicationFactor {
			log.Printf("api: cluster too small for timer %016x: wanted %d replicas, placed %d",
				t.ID, t.ReplicationFactor, len(replicas))
		}
		t.Replicas = replicas
	}

	bloomHash := topo.BloomHashFor(t.Replicas)

	if t.IsLocal(topo.Local()) {
		s.handler.ApplyIncoming(t)
	}
	if !explicit {
		s.repl.Replicate(t, bloomHash)
	}

	if len(t.Replicas) > 0 {
		c.Header("Location", t.PeerURL(t.Replicas[0], bloomHash))
	}
	c.String(http.StatusOK, "")
}

// deleteByID tombstones the timer with id if this node currently
// holds it, replicating the tombstone to its peers. A missing id is a
// no-op that still reports success (spec.md §8, idempotent delete).
func (s *Server) deleteByID(c *gin.Context, id, bloomHash uint64) {
	existing, ok := s.handler.Get(id)
	if !ok {
		c.Status(http.StatusOK)
		return
	}

	topo := s.topo.Get()
	if !existing.IsLocal(topo.Local()) {
		c.String(http.StatusBadRequest, ErrNotAReplica.Error())
		return
	}

	t := existing.Clone()
	t.BecomeTombstone()
	s.handler.ApplyIncoming(t)
	s.repl.Replicate(t, bloomHash)
	c.Status(http.StatusOK)
}
