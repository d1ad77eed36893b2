// Package identity is the read-only view of the worker registry. Worker
// accounts are owned by an external system; rosterd only resolves ids.
package identity

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	RoleWorker  = "WORKER"
	RoleManager = "MANAGER"
	RoleAdmin   = "ADMIN"
)

type Worker struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Role   string `yaml:"role"`
	Active *bool  `yaml:"active"`
}

func (w Worker) IsActive() bool {
	return w.Active == nil || *w.Active
}

type Directory interface {
	GetWorker(ctx context.Context, workerID string) (Worker, bool, error)
}

type rosterFile struct {
	Workers []Worker `yaml:"workers"`
}

// StaticDirectory serves a roster loaded once at startup.
type StaticDirectory struct {
	mu      sync.RWMutex
	workers map[string]Worker
}

func NewStaticDirectory(workers ...Worker) *StaticDirectory {
	d := &StaticDirectory{workers: make(map[string]Worker, len(workers))}
	for _, w := range workers {
		d.put(w)
	}
	return d
}

func LoadFile(path string) (*StaticDirectory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}
	var f rosterFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse roster file: %w", err)
	}
	d := NewStaticDirectory()
	for _, w := range f.Workers {
		if strings.TrimSpace(w.ID) == "" {
			return nil, fmt.Errorf("roster file: worker with empty id")
		}
		d.put(w)
	}
	return d, nil
}

func (d *StaticDirectory) put(w Worker) {
	if w.Role == "" {
		w.Role = RoleWorker
	}
	d.workers[w.ID] = w
}

func (d *StaticDirectory) GetWorker(_ context.Context, workerID string) (Worker, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	w, ok := d.workers[workerID]
	return w, ok, nil
}

// Upsert exists for tests and for syncing from the upstream registry.
func (d *StaticDirectory) Upsert(w Worker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.put(w)
}
