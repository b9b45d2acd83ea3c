// Package plugin defines the plugin contract, the handle plugins register
// through, plugin discovery and the activation lifecycle.
package plugin

import (
	"context"
	"errors"
	"log/slog"

	"simplebot/pkg/bus"
	"simplebot/pkg/config"
	"simplebot/pkg/registry"
)

// ErrSkip is returned by a factory that chooses not to load, for example
// because its credentials are not configured.
var ErrSkip = errors.New("plugin skipped")

// Info describes a plugin.
type Info struct {
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	LongDescription string `json:"long_description,omitempty"`
	Version         string `json:"version,omitempty"`
}

// Plugin is one independently loaded unit of bot behavior. Activate is called
// once before the inbound pipeline opens and Deactivate once after it drains.
type Plugin interface {
	Info() Info
	Activate(ctx context.Context, host Host) error
	Deactivate(ctx context.Context) error
}

// Host is the handle a plugin receives on activation. Registrations made
// through it are tracked and revoked when the plugin is deactivated.
type Host interface {
	AddDetectedListener(kind registry.Kind, l *registry.DetectedListener)
	RemoveDetectedListener(kind registry.Kind, l *registry.DetectedListener)
	AddProcessedListener(kind registry.Kind, l *registry.ProcessedListener)
	RemoveProcessedListener(kind registry.Kind, l *registry.ProcessedListener)
	AddFilter(f *registry.Filter)
	RemoveFilter(f *registry.Filter)
	AddCommand(c *registry.Command)
	RemoveCommand(c *registry.Command)

	// Commands lists every registered command, including other plugins'.
	Commands() []*registry.Command
	// Plugins lists the loaded plugins.
	Plugins() []Info

	Logger() *slog.Logger
	Config(section string) *config.Section
	SaveConfig() error
	DataDir() (string, error)
	// BlobPath returns an unused path for basename in the shared blob dir.
	BlobPath(basename string) (string, error)

	Reply(ctx context.Context, item *bus.InboundMessage, text string) error
	// ReplyHTML sends html as a file, zipped when the item asked for archive
	// output. It returns the written path.
	ReplyHTML(ctx context.Context, item *bus.InboundMessage, html string, basename string) (string, error)
}
