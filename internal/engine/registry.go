package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Options are handed to an engine factory.
type Options struct {
	// PacketSamples is the number of samples per channel in one packet
	// read from raw PCM containers.
	PacketSamples int
	Logger        *slog.Logger
}

// Factory builds an engine.
type Factory func(opts Options) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes an engine available under name. Engine packages call it
// from init; registering a name twice panics.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("engine: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("engine: Register called twice for " + name)
	}
	registry[name] = factory
}

// New builds the engine registered under name.
func New(name string, opts Options) (Engine, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown engine %q (available: %v)", name, Names())
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	e, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("creating %s engine: %w", name, err)
	}
	return e, nil
}

// Names returns the registered engine names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
