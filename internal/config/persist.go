package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Persister durably records the last-good config across reloads, so a
// SIGHUP that supplies a broken file doesn't leave the node without a
// record of what was last known to work. It writes to a temp file and
// renames over the target, the same write-then-rename discipline a
// write-ahead log uses to make a single write crash-atomic — except
// here there is exactly one record, not a growing log, since a
// reloaded Config always fully replaces its predecessor rather than
// applying as a diff.
type Persister struct {
	path string
}

// NewPersister returns a Persister that reads and writes path.
func NewPersister(path string) *Persister {
	return &Persister{path: path}
}

// Save writes c to disk atomically.
func (p *Persister) Save(c *Config) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("rename temp config into place: %w", err)
	}
	return nil
}

// Load reads the last persisted config, if any. A missing file is not
// an error: it means no config has been saved there yet, and the
// caller should fall back to its flag/file-supplied config.
func (p *Persister) Load() (*Config, error) {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read last-good config: %w", err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse last-good config: %w", err)
	}
	return &c, nil
}
