// cmd/chronosd is the main entrypoint for a chronos timer node.
//
// Startup order (spec.md §6): parse flags, load config, construct the
// store/replicator/callback pool/handler (the handler starts its own
// dispatcher goroutine), construct the API server, start the HTTP
// listener, then install the SIGHUP reload and SIGINT/SIGTERM shutdown
// signal handlers. Shutdown is the reverse.
//
// Example — three-node cluster, node1:
//
//	./chronosd --local localhost:8080 --bind :8080 \
//	           --peers localhost:8080=0x1,localhost:8081=0x2,localhost:8082=0x4
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"chronos/internal/api"
	"chronos/internal/callback"
	"chronos/internal/clockwork"
	"chronos/internal/config"
	"chronos/internal/handler"
	"chronos/internal/replicator"
	"chronos/internal/store"
	"chronos/internal/topology"
)

func main() {
	fs := flag.NewFlagSet("chronosd", flag.ExitOnError)
	f := config.ParseFlags(fs)
	persistPath := fs.String("persist-path", "/tmp/chronosd/config.json",
		"where to durably record the last-good reloaded config")
	fs.Parse(os.Args[1:])

	persister := config.NewPersister(*persistPath)

	cfg, err := config.Load(f)
	if err != nil {
		if last, loadErr := persister.Load(); loadErr == nil && last != nil {
			log.Printf("chronosd: startup config invalid (%v), falling back to last-good persisted config", err)
			cfg = last
		} else {
			log.Fatalf("chronosd: %v", err)
		}
	}
	if err := persister.Save(cfg); err != nil {
		log.Printf("chronosd: persisting startup config: %v", err)
	}

	topo, err := cfg.Topology()
	if err != nil {
		log.Fatalf("chronosd: building topology: %v", err)
	}

	cfgLive := config.NewLive(cfg)
	topoLive := topology.NewLive(topo)

	clock := clockwork.Real{}
	s := store.New(time.Now())
	repl := replicator.New(cfg.Local, cfg.ReplicationPoolSize, cfg.ReplicationQueueCap)
	pool := callback.New(cfg.CallbackPoolSize, cfg.AlarmThreshold)
	h := handler.New(s, pool, clock, cfg.Local)

	srv := api.NewServer(h, repl, topoLive, cfgLive, clock)

	go pumpCompletions(pool, srv)
	go pumpAlarms(pool)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Logger(), api.Recovery())
	srv.Register(router)

	httpServer := &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("chronosd: node %s listening on %s (%d cluster nodes)", cfg.Local, cfg.BindAddr, topo.Size())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("chronosd: server error: %v", err)
		}
	}()

	reload := func() (*config.Config, error) { return config.Load(f) }

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go watchReload(reload, persister, cfgLive, topoLive, sighup)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("chronosd: shutting down node %s", cfg.Local)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("chronosd: server shutdown error: %v", err)
	}
	h.Stop()
	pool.Close()
	repl.Close()
}

// watchReload reloads config on every SIGHUP, swapping both the live
// config and the live topology snapshot. In-flight timers keep the
// replica lists they were built with — only new selections see the
// swap (spec.md §6, §9).
func watchReload(reload func() (*config.Config, error), persister *config.Persister, cfgLive *config.Live, topoLive *topology.Live, sighup <-chan os.Signal) {
	for range sighup {
		log.Printf("chronosd: SIGHUP received, reloading config")
		next, err := reload()
		if err != nil {
			log.Printf("chronosd: reload failed, keeping previous config: %v", err)
			continue
		}
		nextTopo, err := next.Topology()
		if err != nil {
			log.Printf("chronosd: reload produced an invalid topology, keeping previous config: %v", err)
			continue
		}
		if err := persister.Save(next); err != nil {
			log.Printf("chronosd: persisting reloaded config: %v", err)
		}
		cfgLive.Swap(next)
		topoLive.Swap(nextTopo)
		log.Printf("chronosd: reload complete, %d cluster nodes", nextTopo.Size())
	}
}

func pumpCompletions(pool *callback.Pool, srv *api.Server) {
	for result := range pool.Completions() {
		srv.PublishPop(result.Timer.ID, result.Timer.SequenceNumber, result.Timer.IsTombstone(), result.Success, result.Err)
	}
}

func pumpAlarms(pool *callback.Pool) {
	for id := range pool.Alarms() {
		log.Printf("chronosd: ALARM timer %016x has exceeded its consecutive-failure threshold", id)
	}
}
