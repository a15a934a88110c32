package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func parseArgs(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := ParseFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parsing flags: %v", err)
	}
	return Load(f)
}

func TestLoadFromFlagsOnly(t *testing.T) {
	c, err := parseArgs(t, "-local=10.0.0.1:9000", "-peers=10.0.0.1:9000=0x1,10.0.0.2:9000=0x2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Local != "10.0.0.1:9000" {
		t.Fatalf("want local 10.0.0.1:9000, got %s", c.Local)
	}
	if len(c.Nodes) != 2 {
		t.Fatalf("want 2 nodes, got %d", len(c.Nodes))
	}
	if c.Nodes[0].Signature != 1 || c.Nodes[1].Signature != 2 {
		t.Fatalf("unexpected signatures: %+v", c.Nodes)
	}
	if c.CallbackPoolSize != defaultCallbackPoolSize {
		t.Fatalf("want default callback pool size, got %d", c.CallbackPoolSize)
	}
}

func TestLoadRejectsLocalNotInNodeList(t *testing.T) {
	_, err := parseArgs(t, "-local=10.0.0.9:9000", "-peers=10.0.0.1:9000=1,10.0.0.2:9000=2")
	if err == nil {
		t.Fatal("expected an error when local is absent from the node list")
	}
}

func TestLoadTakesLocalAndNodesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chronos.json")
	contents := `{"local": "10.0.0.1:9000", "nodes": [{"address": "10.0.0.1:9000", "signature": 1}, {"address": "10.0.0.2:9000", "signature": 2}]}`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	c, err := parseArgs(t, "-config="+path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Local != "10.0.0.1:9000" {
		t.Fatalf("want local from file, got %s", c.Local)
	}
	if len(c.Nodes) != 2 {
		t.Fatalf("want 2 nodes from file, got %d", len(c.Nodes))
	}
}

func TestPersisterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := NewPersister(filepath.Join(dir, "last-good.json"))

	if got, err := p.Load(); err != nil || got != nil {
		t.Fatalf("want (nil, nil) before any Save, got (%v, %v)", got, err)
	}

	c := &Config{Local: "a", Nodes: []NodeSpec{{Address: "a", Signature: 1}}, BloomBits: 7}
	if err := p.Save(c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := p.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Local != "a" || len(got.Nodes) != 1 {
		t.Fatalf("unexpected round trip result: %+v", got)
	}
}

func TestLiveSwapPreservesOldSnapshotForExistingReaders(t *testing.T) {
	live := NewLive(&Config{Local: "a"})
	held := live.Get()

	live.Swap(&Config{Local: "b"})

	if held.Local != "a" {
		t.Fatalf("previously-held snapshot must not mutate, got %s", held.Local)
	}
	if live.Get().Local != "b" {
		t.Fatalf("want new snapshot active, got %s", live.Get().Local)
	}
}
