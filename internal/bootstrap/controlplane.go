// Package bootstrap wires the roster engine together from environment
// configuration. Everything is ROSTERD_* prefixed.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/example/rosterd/internal/assignment"
	"github.com/example/rosterd/internal/identity"
	"github.com/example/rosterd/internal/policy"
	"github.com/example/rosterd/internal/state"
	"github.com/example/rosterd/internal/topology"
	"github.com/example/rosterd/internal/worklog"
)

type Engine struct {
	Store   state.Store
	Feed    state.Feed
	Manager *assignment.Manager
	Machine *worklog.Machine
}

func NewEngineFromEnv(ctx context.Context) (*Engine, error) {
	store, err := newStore(getenv("ROSTERD_STORE", "memory"))
	if err != nil {
		return nil, err
	}
	feed, err := newFeed(getenv("ROSTERD_FEED", "memory"))
	if err != nil {
		return nil, err
	}

	topoPath := getenv("ROSTERD_TOPOLOGY_FILE", "topology.yaml")
	cfg, err := topology.LoadFile(topoPath)
	if err != nil {
		return nil, fmt.Errorf("load topology: %w", err)
	}
	lines, shifts, slots := topology.NewBuilder().Build(cfg)
	if err := store.SeedTopology(ctx, lines, shifts, slots); err != nil {
		return nil, fmt.Errorf("seed topology: %w", err)
	}

	dir, err := newDirectory()
	if err != nil {
		return nil, err
	}
	pol, err := policy.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	windows, err := worklog.LoadWindowsFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load classification windows: %w", err)
	}
	loc, err := newLocation()
	if err != nil {
		return nil, err
	}

	manager := assignment.NewManager(store, dir, assignment.Options{
		PolicyEngine: pol,
		Feed:         feed,
	})
	machine := worklog.NewMachine(store, dir, worklog.Options{
		Windows:  windows,
		Location: loc,
		Feed:     feed,
	})
	return &Engine{Store: store, Feed: feed, Manager: manager, Machine: machine}, nil
}

func newStore(kind string) (state.Store, error) {
	switch kind {
	case "memory":
		return state.NewMemoryStore(), nil
	case "postgres":
		dsn := os.Getenv("ROSTERD_POSTGRES_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("ROSTERD_POSTGRES_DSN is required when ROSTERD_STORE=postgres")
		}
		return state.NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported ROSTERD_STORE value %q", kind)
	}
}

func newFeed(kind string) (state.Feed, error) {
	switch kind {
	case "memory":
		return state.NewMemoryFeed(), nil
	case "redis":
		return state.NewRedisFeed(state.RedisFeedConfig{
			Addr:     getenv("ROSTERD_REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("ROSTERD_REDIS_PASSWORD"),
			DB:       getenvInt("ROSTERD_REDIS_DB", 0),
			Key:      getenv("ROSTERD_REDIS_KEY", "rosterd:events"),
			Timeout:  3 * time.Second,
		}), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported ROSTERD_FEED value %q", kind)
	}
}

func newDirectory() (identity.Directory, error) {
	path := os.Getenv("ROSTERD_ROSTER_FILE")
	if path == "" {
		return identity.NewStaticDirectory(), nil
	}
	dir, err := identity.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	return dir, nil
}

func newLocation() (*time.Location, error) {
	name := getenv("ROSTERD_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("ROSTERD_TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
