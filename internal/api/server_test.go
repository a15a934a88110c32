package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"chronos/internal/callback"
	"chronos/internal/clockwork"
	"chronos/internal/config"
	"chronos/internal/handler"
	"chronos/internal/replicator"
	"chronos/internal/store"
	"chronos/internal/timer"
	"chronos/internal/topology"
)

func newTestServer(t *testing.T, local string, nodes []topology.Node) (*httptest.Server, *Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	topo, err := topology.New(nodes, local, 10)
	if err != nil {
		t.Fatalf("topology.New: %v", err)
	}

	s := store.New(time.Now())
	pool := callback.New(2, 3)
	h := handler.New(s, pool, clockwork.Real{}, local)
	repl := replicator.New(local, 2, 8)
	srv := NewServer(h, repl, topology.NewLive(topo), config.NewLive(&config.Config{Local: local}), clockwork.Real{})

	router := gin.New()
	srv.Register(router)

	ts := httptest.NewServer(router)
	t.Cleanup(func() {
		ts.Close()
		h.Stop()
		pool.Close()
		repl.Close()
	})
	return ts, srv
}

func singleNodeCluster(local string) []topology.Node {
	return []topology.Node{{Address: local, Signature: 0x1}}
}

func TestPingOK(t *testing.T) {
	ts, _ := newTestServer(t, "127.0.0.1:0", singleNodeCluster("127.0.0.1:0"))
	resp, err := http.Get(ts.URL + "/ping")
	if err != nil {
		t.Fatalf("GET /ping: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
}

func TestCreateTimerOnSoleReplicaReturnsLocationAndIsGettable(t *testing.T) {
	local := "127.0.0.1:9100"
	ts, _ := newTestServer(t, local, singleNodeCluster(local))

	body := `{"timing": {"interval": 1000, "repeat-for": 0}, "callback": {"http": {"uri": "http://example.invalid/cb", "opaque": "hi"}}}`
	resp, err := http.Post(ts.URL+"/timers", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /timers: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		t.Fatal("expected a Location header naming the timer's canonical URL")
	}

	getResp, err := http.Get(strings.Replace(loc, "http://"+local, ts.URL, 1))
	if err != nil {
		t.Fatalf("GET created timer: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("want 200 fetching the created timer, got %d", getResp.StatusCode)
	}
}

func TestGetUnknownTimerOnSoleReplicaIs404(t *testing.T) {
	local := "127.0.0.1:9101"
	ts, _ := newTestServer(t, local, singleNodeCluster(local))

	hex := timer.IDHex(999, 0)
	resp, err := http.Get(ts.URL + "/timers/" + hex)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}
}

func TestPutWithExplicitReplicasNotNamingLocalIsRejected(t *testing.T) {
	local := "127.0.0.1:9102"
	ts, _ := newTestServer(t, local, singleNodeCluster(local))

	body := `{"timing": {"interval": 1000, "repeat-for": 0}, "callback": {"http": {"uri": "http://example.invalid/cb", "opaque": "hi"}}, "reliability": {"replicas": ["10.0.0.9:9000"]}}`
	hex := timer.IDHex(42, 0)
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/timers/"+hex, strings.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 (%s), got %d", ErrNotAReplica, resp.StatusCode)
	}
}

func TestDeleteUnknownTimerIsNoopSuccess(t *testing.T) {
	local := "127.0.0.1:9103"
	ts, _ := newTestServer(t, local, singleNodeCluster(local))

	hex := timer.IDHex(7, 0)
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/timers/"+hex, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200 for a no-op delete, got %d", resp.StatusCode)
	}
}

func TestListNodesReportsClusterMembership(t *testing.T) {
	local := "127.0.0.1:9104"
	peer := "127.0.0.2:9104"
	ts, _ := newTestServer(t, local, []topology.Node{
		{Address: local, Signature: 0x1},
		{Address: peer, Signature: 0x2},
	})

	resp, err := http.Get(ts.URL + "/cluster/nodes")
	if err != nil {
		t.Fatalf("GET /cluster/nodes: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
}

func TestPublishPopDeliversToWatcher(t *testing.T) {
	srv := &Server{hub: newHub()}
	ch := srv.hub.subscribe()
	defer srv.hub.unsubscribe(ch)

	srv.PublishPop(42, 1, false, true, nil)

	select {
	case ev := <-ch:
		if ev.ID != 42 || ev.SequenceNumber != 1 || !ev.Success {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the published event")
	}
}
