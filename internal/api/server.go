// Package api is the HTTP front door: a thin gin adapter translating
// verbs on /timers/<hex> into TimerStore/TimerHandler/Replicator
// operations (spec.md §4.6). No handler here blocks on network I/O
// beyond the replication fan-out, which is itself non-blocking.
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"chronos/internal/clockwork"
	"chronos/internal/config"
	"chronos/internal/handler"
	"chronos/internal/replicator"
	"chronos/internal/topology"
)

// Server holds every dependency a timer-CRUD handler needs.
type Server struct {
	handler *handler.Handler
	repl    *replicator.Replicator
	topo    *topology.Live
	cfg     *config.Live
	clock   clockwork.Clock
	hub     *hub
}

// NewServer wires a Server from its collaborators.
func NewServer(h *handler.Handler, r *replicator.Replicator, topo *topology.Live, cfg *config.Live, clock clockwork.Clock) *Server {
	return &Server{handler: h, repl: r, topo: topo, cfg: cfg, clock: clock, hub: newHub()}
}

// Register mounts every route on router.
func (s *Server) Register(router *gin.Engine) {
	router.GET("/ping", s.Ping)
	router.POST("/timers", s.CreateTimer)
	router.GET("/timers/:hex", s.GetTimer)
	router.PUT("/timers/:hex", s.PutTimer)
	router.DELETE("/timers/:hex", s.DeleteTimer)
	router.GET("/timers/watch", s.Watch)
	router.GET("/cluster/nodes", s.ListNodes)
}

// ListNodes handles GET /cluster/nodes: a read-only operator endpoint
// naming every node in the current topology snapshot and its
// consistent-hash signature. Not part of spec.md §4.6's core contract,
// but additive — chronosctl's "cluster nodes" subcommand needs
// somewhere to read the cluster view from.
func (s *Server) ListNodes(c *gin.Context) {
	topo := s.topo.Get()
	type nodeView struct {
		Address   string `json:"address"`
		Signature string `json:"signature"`
		Local     bool   `json:"local"`
	}
	out := make([]nodeView, 0, topo.Size())
	for _, n := range topo.Nodes() {
		out = append(out, nodeView{
			Address:   n.Address,
			Signature: fmt.Sprintf("%016x", n.Signature),
			Local:     n.Address == topo.Local(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"nodes": out})
}

// Ping answers the liveness probe of spec.md §4.6.
func (s *Server) Ping(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// PublishPop feeds one callback.Result into the /timers/watch stream.
// Called from cmd/chronosd's pump goroutine draining the callback
// pool's completion channel; kept separate from the dispatcher so a
// slow or absent watcher never has a path back to the hot dispatch
// loop.
func (s *Server) PublishPop(id uint64, seq uint64, tombstone, success bool, err error) {
	ev := PopEvent{ID: id, SequenceNumber: seq, Tombstone: tombstone, Success: success}
	if err != nil {
		ev.Error = err.Error()
	}
	s.hub.publish(ev)
}
