package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"simplebot/pkg/config"
)

// Factory builds a plugin instance from the runtime configuration.
type Factory func(cfg *config.Config) (Plugin, error)

// Catalog is the set of plugin factories known to the binary. Plugin
// packages add themselves from init, the way database/sql drivers do.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

var defaultCatalog = NewCatalog()

func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory to the default catalog.
func Register(name string, factory Factory) {
	defaultCatalog.Register(name, factory)
}

// Default returns the process-wide catalog.
func Default() *Catalog {
	return defaultCatalog
}

// Register panics on a nil factory or a duplicate name.
func (c *Catalog) Register(name string, factory Factory) {
	if factory == nil {
		panic("plugin: Register factory is nil for " + name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.factories[name]; dup {
		panic("plugin: Register called twice for " + name)
	}
	c.factories[name] = factory
}

// Names lists registered plugin names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Build instantiates the plugin registered under name.
func (c *Catalog) Build(name string, cfg *config.Config) (Plugin, error) {
	c.mu.RLock()
	factory := c.factories[name]
	c.mu.RUnlock()

	p, err := build(factory, cfg)
	if err == nil && p == nil {
		err = errors.New("factory returned nil")
	}
	return p, err
}

// Load instantiates every registered plugin not named in disabled, in
// sorted name order. A failing factory is logged and skipped.
func (c *Catalog) Load(cfg *config.Config, disabled []string, log *slog.Logger) []Plugin {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "plugin.catalog")

	names := c.Names()
	plugins := make([]Plugin, 0, len(names))
	for _, name := range names {
		if slices.Contains(disabled, name) {
			log.Info("Plugin disabled by configuration", "plugin", name)
			continue
		}

		p, err := c.Build(name, cfg)
		switch {
		case errors.Is(err, ErrSkip):
			log.Info("Plugin skipped", "plugin", name, "reason", err)
			continue
		case err != nil:
			log.Error("Failed to load plugin", "plugin", name, "error", err)
			continue
		}

		plugins = append(plugins, p)
	}

	return plugins
}

func build(factory Factory, cfg *config.Config) (p Plugin, err error) {
	if factory == nil {
		return nil, errors.New("factory is not registered")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("factory panic: %v", r)
		}
	}()
	return factory(cfg)
}
