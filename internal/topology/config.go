// Package topology owns the static factory structure: work classes, lines,
// the DAY/NIGHT shift pair per line, and each shift's ordered process slots.
package topology

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	MinSlotsPerShift = 1
	MaxSlotsPerShift = 10
)

type LineConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	WorkClass string `yaml:"work_class"`
	Slots     int    `yaml:"slots"`
}

type Config struct {
	Factory string       `yaml:"factory"`
	Lines   []LineConfig `yaml:"lines"`
}

func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read topology file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse topology file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.Lines) == 0 {
		return fmt.Errorf("topology: at least one line is required")
	}
	seen := make(map[string]bool, len(c.Lines))
	for i, l := range c.Lines {
		id := strings.TrimSpace(l.ID)
		if id == "" {
			return fmt.Errorf("topology: line %d has empty id", i)
		}
		if seen[id] {
			return fmt.Errorf("topology: duplicate line id %q", id)
		}
		seen[id] = true
		if l.Slots < MinSlotsPerShift || l.Slots > MaxSlotsPerShift {
			return fmt.Errorf("topology: line %q slot count %d out of range [%d,%d]", id, l.Slots, MinSlotsPerShift, MaxSlotsPerShift)
		}
	}
	return nil
}
