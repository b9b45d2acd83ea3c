package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"simplebot/pkg/blob"
	"simplebot/pkg/bus"
	"simplebot/pkg/config"
	"simplebot/pkg/registry"
)

// Outbox accepts replies for delivery by the transports.
type Outbox interface {
	PublishOutbound(ctx context.Context, msg bus.OutboundMessage) bool
}

// Services are the shared collaborators handed to every plugin host.
type Services struct {
	Registry *registry.Registry
	Store    *config.Store
	Outbox   Outbox
	Blobs    *blob.Store
	BaseDir  string
}

type detectedKey struct {
	kind     registry.Kind
	listener *registry.DetectedListener
}

type processedKey struct {
	kind     registry.Kind
	listener *registry.ProcessedListener
}

// scope is the Host given to one plugin; it records what the plugin added.
type scope struct {
	name     string
	services Services
	log      *slog.Logger
	plugins  func() []Info

	mu        sync.Mutex
	detected  map[detectedKey]struct{}
	processed map[processedKey]struct{}
	filters   map[*registry.Filter]struct{}
	commands  map[*registry.Command]struct{}
}

func newScope(name string, services Services, log *slog.Logger, plugins func() []Info) *scope {
	return &scope{
		name:      name,
		services:  services,
		log:       log,
		plugins:   plugins,
		detected:  make(map[detectedKey]struct{}),
		processed: make(map[processedKey]struct{}),
		filters:   make(map[*registry.Filter]struct{}),
		commands:  make(map[*registry.Command]struct{}),
	}
}

func (s *scope) AddDetectedListener(kind registry.Kind, l *registry.DetectedListener) {
	if l == nil {
		return
	}
	if l.Plugin == "" {
		l.Plugin = s.name
	}
	s.mu.Lock()
	s.detected[detectedKey{kind, l}] = struct{}{}
	s.mu.Unlock()
	s.services.Registry.AddDetectedListener(kind, l)
}

func (s *scope) RemoveDetectedListener(kind registry.Kind, l *registry.DetectedListener) {
	s.mu.Lock()
	delete(s.detected, detectedKey{kind, l})
	s.mu.Unlock()
	s.services.Registry.RemoveDetectedListener(kind, l)
}

func (s *scope) AddProcessedListener(kind registry.Kind, l *registry.ProcessedListener) {
	if l == nil {
		return
	}
	if l.Plugin == "" {
		l.Plugin = s.name
	}
	s.mu.Lock()
	s.processed[processedKey{kind, l}] = struct{}{}
	s.mu.Unlock()
	s.services.Registry.AddProcessedListener(kind, l)
}

func (s *scope) RemoveProcessedListener(kind registry.Kind, l *registry.ProcessedListener) {
	s.mu.Lock()
	delete(s.processed, processedKey{kind, l})
	s.mu.Unlock()
	s.services.Registry.RemoveProcessedListener(kind, l)
}

func (s *scope) AddFilter(f *registry.Filter) {
	if f == nil {
		return
	}
	if f.Plugin == "" {
		f.Plugin = s.name
	}
	s.mu.Lock()
	s.filters[f] = struct{}{}
	s.mu.Unlock()
	s.services.Registry.AddFilter(f)
}

func (s *scope) RemoveFilter(f *registry.Filter) {
	s.mu.Lock()
	delete(s.filters, f)
	s.mu.Unlock()
	s.services.Registry.RemoveFilter(f)
}

func (s *scope) AddCommand(c *registry.Command) {
	if c == nil {
		return
	}
	if c.Plugin == "" {
		c.Plugin = s.name
	}
	s.mu.Lock()
	s.commands[c] = struct{}{}
	s.mu.Unlock()
	s.services.Registry.AddCommand(c)
}

func (s *scope) RemoveCommand(c *registry.Command) {
	s.mu.Lock()
	delete(s.commands, c)
	s.mu.Unlock()
	s.services.Registry.RemoveCommand(c)
}

func (s *scope) Commands() []*registry.Command {
	return s.services.Registry.Commands()
}

func (s *scope) Plugins() []Info {
	if s.plugins == nil {
		return nil
	}
	return s.plugins()
}

func (s *scope) Logger() *slog.Logger {
	return s.log
}

func (s *scope) Config(section string) *config.Section {
	return s.services.Store.Section(section)
}

func (s *scope) SaveConfig() error {
	return s.services.Store.Save()
}

func (s *scope) DataDir() (string, error) {
	return blob.DataDir(s.services.BaseDir, s.name)
}

func (s *scope) BlobPath(basename string) (string, error) {
	if s.services.Blobs == nil {
		return "", errors.New("blob store is not configured")
	}
	return s.services.Blobs.Path(basename), nil
}

func (s *scope) Reply(ctx context.Context, item *bus.InboundMessage, text string) error {
	if item == nil {
		return errors.New("reply target is required")
	}
	if s.services.Outbox == nil || !s.services.Outbox.PublishOutbound(ctx, bus.Reply(item, text)) {
		return fmt.Errorf("queue reply for %s:%s", item.Channel, item.ChatID)
	}
	return nil
}

func (s *scope) ReplyHTML(ctx context.Context, item *bus.InboundMessage, html string, basename string) (string, error) {
	if item == nil {
		return "", errors.New("reply target is required")
	}
	if s.services.Blobs == nil {
		return "", errors.New("blob store is not configured")
	}

	path, mimeType, err := s.services.Blobs.WriteHTML(basename, html, item.Origin)
	if err != nil {
		return "", err
	}

	msg := bus.Reply(item, "")
	msg.Attachment = path
	msg.MimeType = mimeType
	if s.services.Outbox == nil || !s.services.Outbox.PublishOutbound(ctx, msg) {
		return path, fmt.Errorf("queue html reply for %s:%s", item.Channel, item.ChatID)
	}
	return path, nil
}

// revoke removes everything still registered through this scope and
// returns how many registrations it removed.
func (s *scope) revoke() int {
	s.mu.Lock()
	detected, processed, filters, commands := s.detected, s.processed, s.filters, s.commands
	s.detected = make(map[detectedKey]struct{})
	s.processed = make(map[processedKey]struct{})
	s.filters = make(map[*registry.Filter]struct{})
	s.commands = make(map[*registry.Command]struct{})
	s.mu.Unlock()

	reg := s.services.Registry
	for key := range detected {
		reg.RemoveDetectedListener(key.kind, key.listener)
	}
	for key := range processed {
		reg.RemoveProcessedListener(key.kind, key.listener)
	}
	for f := range filters {
		reg.RemoveFilter(f)
	}
	for c := range commands {
		reg.RemoveCommand(c)
	}

	return len(detected) + len(processed) + len(filters) + len(commands)
}
