// Package config holds chronosd's process-wide configuration: cluster
// node list, local node identity, pool sizing, and the bloom bit
// count. Configuration is loaded once from flags merged over an
// optional JSON file, and held as an atomic.Pointer so a SIGHUP reload
// can swap it in without locking readers out.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"chronos/internal/topology"
)

// NodeSpec is one cluster member as named in the config file: its
// address and its consistent-hash signature.
type NodeSpec struct {
	Address   string `json:"address"`
	Signature uint64 `json:"signature"`
}

// Config is the full set of tunables chronosd needs to start serving.
type Config struct {
	Nodes []NodeSpec `json:"nodes"`
	Local string     `json:"local"`

	BindAddr string `json:"bind_addr"`

	CallbackPoolSize    int `json:"callback_pool_size"`
	ReplicationPoolSize int `json:"replication_pool_size"`
	ReplicationQueueCap int `json:"replication_queue_cap"`
	BloomBits           int `json:"bloom_bits"`
	AlarmThreshold      int `json:"alarm_threshold"`
}

const (
	defaultCallbackPoolSize    = 50
	defaultReplicationPoolSize = 50
	defaultReplicationQueueCap = 1000
	defaultBloomBits           = 7
	defaultAlarmThreshold      = 3
)

// Topology builds an immutable topology.Topology snapshot from c's
// node list, with 150 virtual nodes per physical node (matching the
// teacher's ring default).
func (c *Config) Topology() (*topology.Topology, error) {
	nodes := make([]topology.Node, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		nodes = append(nodes, topology.Node{Address: n.Address, Signature: n.Signature})
	}
	return topology.New(nodes, c.Local, 150)
}

// Validate rejects a config that cannot start a node.
func (c *Config) Validate() error {
	if c.Local == "" {
		return fmt.Errorf("local node address must be set")
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("node list must not be empty")
	}
	found := false
	for _, n := range c.Nodes {
		if n.Address == c.Local {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("local address %q must appear in the node list", c.Local)
	}
	if c.BloomBits <= 0 || c.BloomBits > 64 {
		return fmt.Errorf("bloom_bits must be between 1 and 64, got %d", c.BloomBits)
	}
	return nil
}

// flagSet carries the command-line overlay parsed by Load.
type flagSet struct {
	configPath          string
	local               string
	bindAddr            string
	peers               string
	callbackPoolSize    int
	replicationPoolSize int
	replicationQueueCap int
	bloomBits           int
	alarmThreshold      int
}

// ParseFlags registers chronosd's flags on fs and returns their
// destinations. Separated from Load so cmd/chronosd can call
// flag.Parse() itself (and so tests can supply their own FlagSet).
func ParseFlags(fs *flag.FlagSet) *flagSet {
	f := &flagSet{}
	fs.StringVar(&f.configPath, "config", "", "optional path to a JSON config file")
	fs.StringVar(&f.local, "local", "", "this node's address, as it appears in --peers")
	fs.StringVar(&f.bindAddr, "bind", ":8080", "address to bind the HTTP listener on")
	fs.StringVar(&f.peers, "peers", "", "comma-separated list of addr=signature for every cluster node, including local")
	fs.IntVar(&f.callbackPoolSize, "callback-pool-size", defaultCallbackPoolSize, "HTTP callback worker pool size")
	fs.IntVar(&f.replicationPoolSize, "replication-pool-size", defaultReplicationPoolSize, "replication worker pool size")
	fs.IntVar(&f.replicationQueueCap, "replication-queue-cap", defaultReplicationQueueCap, "replication task queue depth")
	fs.IntVar(&f.bloomBits, "bloom-bits", defaultBloomBits, "number of set bits per node signature")
	fs.IntVar(&f.alarmThreshold, "alarm-threshold", defaultAlarmThreshold, "consecutive callback failures before raising an alarm")
	return f
}

// Load builds a Config from f (already parsed from the command line)
// merged over an optional JSON file named by --config. Only the file's
// "local" and "nodes" are read: a non-empty --local wins over the
// file's "local", and the node list comes from whichever of --peers or
// the file's "nodes" array is non-empty, preferring --peers. Every
// other field comes from the flags (their defaults when not given);
// the file's values for those fields are ignored.
func Load(f *flagSet) (*Config, error) {
	c := &Config{
		BindAddr:            f.bindAddr,
		Local:               f.local,
		CallbackPoolSize:    f.callbackPoolSize,
		ReplicationPoolSize: f.replicationPoolSize,
		ReplicationQueueCap: f.replicationQueueCap,
		BloomBits:           f.bloomBits,
		AlarmThreshold:      f.alarmThreshold,
	}

	if f.configPath != "" {
		fileCfg, err := loadFile(f.configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config file %q: %w", f.configPath, err)
		}
		if c.Local == "" {
			c.Local = fileCfg.Local
		}
		if len(fileCfg.Nodes) > 0 {
			c.Nodes = fileCfg.Nodes
		}
	}

	if f.peers != "" {
		nodes, err := parsePeers(f.peers)
		if err != nil {
			return nil, err
		}
		c.Nodes = nodes
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &c, nil
}

// parsePeers parses "addr1=sig1,addr2=sig2,..." into NodeSpecs.
func parsePeers(spec string) ([]NodeSpec, error) {
	parts := strings.Split(spec, ",")
	nodes := make([]NodeSpec, 0, len(parts))
	for _, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer entry %q: expected addr=signature", p)
		}
		var sig uint64
		if _, err := fmt.Sscanf(kv[1], "0x%x", &sig); err != nil {
			if _, err := fmt.Sscanf(kv[1], "%d", &sig); err != nil {
				return nil, fmt.Errorf("invalid signature for peer %q: %w", kv[0], err)
			}
		}
		nodes = append(nodes, NodeSpec{Address: kv[0], Signature: sig})
	}
	return nodes, nil
}

// Live is the process-wide, hot-swappable config snapshot.
type Live struct {
	ptr atomic.Pointer[Config]
}

// NewLive wraps an initial config.
func NewLive(c *Config) *Live {
	l := &Live{}
	l.ptr.Store(c)
	return l
}

// Get returns the currently active config snapshot.
func (l *Live) Get() *Config {
	return l.ptr.Load()
}

// Swap installs next as the active config, returning the previous one.
// Callers already holding a *Config from Get keep seeing the old
// values — this is the mechanism by which an in-flight timer's
// already-computed replica list survives a reload untouched.
func (l *Live) Swap(next *Config) *Config {
	return l.ptr.Swap(next)
}
