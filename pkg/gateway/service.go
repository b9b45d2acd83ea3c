// Package gateway runs the bot: it activates plugins, feeds transport items
// through a pool of dispatch workers, routes replies back to the transports
// and serves health and status endpoints.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"simplebot/pkg/blob"
	"simplebot/pkg/bus"
	"simplebot/pkg/channel"
	"simplebot/pkg/config"
	"simplebot/pkg/dispatch"
	"simplebot/pkg/plugin"
	"simplebot/pkg/registry"

	"github.com/google/uuid"
)

const (
	storeFileName = "settings.json"
	blobDirName   = "blobs"

	shutdownTimeout = 10 * time.Second
)

type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	bus        *bus.MessageBus
	registry   *registry.Registry
	store      *config.Store
	plugins    *plugin.Manager
	dispatcher *dispatch.Dispatcher
	router     *router
	channels   []channel.Adapter

	// status disables the HTTP status server when false.
	status bool

	mu            sync.RWMutex
	startedAt     time.Time
	pluginsActive bool
	channelStates map[string]channelState
	eventCounts   map[bus.EventType]int64
}

// Option adjusts a Service before it runs.
type Option func(*Service)

// WithoutStatusServer skips the HTTP status server.
func WithoutStatusServer() Option {
	return func(s *Service) {
		s.status = false
	}
}

// NewService wires the shared bus, registry, settings store and blob store,
// and loads plugins in the order given. Plugins are activated by Run.
func NewService(cfg *config.Config, adapters []channel.Adapter, plugins []plugin.Plugin, log *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	router, err := newRouter(adapters, log)
	if err != nil {
		return nil, err
	}

	store, err := config.OpenStore(filepath.Join(cfg.BaseDir, storeFileName))
	if err != nil {
		return nil, err
	}
	config.ApplyBotDefaults(store)

	blobs, err := blob.NewStore(filepath.Join(cfg.BaseDir, blobDirName))
	if err != nil {
		return nil, err
	}

	messageBus := bus.NewMessageBus()
	reg := registry.New()

	manager := plugin.NewManager(plugin.Services{
		Registry: reg,
		Store:    store,
		Outbox:   messageBus,
		Blobs:    blobs,
		BaseDir:  cfg.BaseDir,
	}, log)
	manager.Load(plugins...)

	dispatcher := dispatch.New(reg, router, log, dispatch.Options{
		CallbackTimeout: time.Duration(cfg.Dispatch.CallbackTimeoutSeconds) * time.Second,
		OutputMarker:    cfg.Dispatch.OutputMarker,
		Events:          messageBus,
	})

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	svc := &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		bus:           messageBus,
		registry:      reg,
		store:         store,
		plugins:       manager,
		dispatcher:    dispatcher,
		router:        router,
		channels:      adapters,
		status:        true,
		channelStates: channelStates,
		eventCounts:   make(map[bus.EventType]int64),
	}
	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Run activates plugins, starts the transports and blocks until ctx is
// canceled or a transport fails. On the way out it drains in-flight
// dispatches, deactivates plugins, and flushes queued replies.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.plugins.ActivateAll(ctx, s.onActivationError); err != nil {
		s.plugins.DeactivateAll(context.Background())
		s.bus.Close()
		return err
	}
	s.mu.Lock()
	s.pluginsActive = true
	s.mu.Unlock()

	events, unsubscribe := s.bus.SubscribeEvents(context.Background(), 0)
	defer unsubscribe()
	go s.countEvents(events)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	serverErrors := make(chan error, 1)
	if s.status {
		go s.runStatusServer(runCtx, serverErrors)
	}

	outboundCtx, cancelOutbound := context.WithCancel(context.Background())
	outboundDone := make(chan struct{})
	go func() {
		defer close(outboundDone)
		s.routeOutbound(outboundCtx)
	}()

	var workers sync.WaitGroup
	for i := 0; i < s.workerCount(); i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			s.dispatchLoop(runCtx)
		}()
	}

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(runCtx, s.accept)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	s.log.Info("Gateway started", "channels", len(s.channels), "workers", s.workerCount())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrors:
	case runErr = <-errCh:
	}

	cancelRun()
	workers.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.plugins.DeactivateAll(shutdownCtx)
	s.mu.Lock()
	s.pluginsActive = false
	s.mu.Unlock()

	cancelOutbound()
	<-outboundDone
	for _, msg := range s.bus.PendingOutbound() {
		s.router.deliver(shutdownCtx, msg)
	}

	if err := s.store.Save(); err != nil {
		s.log.Error("Failed to save settings", "error", err)
	}
	s.bus.Close()

	s.log.Info("Gateway stopped")
	return runErr
}

func (s *Service) onActivationError(info plugin.Info, err error) error {
	if s.cfg.Plugins.SkipFailed {
		s.log.Warn("Skipping plugin that failed to activate", "plugin", info.Name, "error", err)
		return nil
	}
	return err
}

// accept is the channel.Sink shared by every adapter.
func (s *Service) accept(ctx context.Context, item *bus.InboundMessage) bool {
	if item == nil {
		return true
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.ReceivedAt.IsZero() {
		item.ReceivedAt = time.Now().UTC()
	}
	return s.bus.PublishInbound(ctx, item)
}

// dispatchLoop consumes items until ctx is canceled. An item already taken
// off the bus is always dispatched to completion.
func (s *Service) dispatchLoop(ctx context.Context) {
	for {
		item, ok := s.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}

		result := s.dispatcher.Dispatch(context.WithoutCancel(ctx), item)
		s.log.Debug("Item dispatched", "item_id", item.ID, "kind", result.Kind.String(), "outcome", result.Outcome)
	}
}

func (s *Service) routeOutbound(ctx context.Context) {
	for {
		msg, ok := s.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		s.router.deliver(ctx, msg)
	}
}

func (s *Service) countEvents(events <-chan bus.Event) {
	for event := range events {
		s.mu.Lock()
		s.eventCounts[event.Type]++
		s.mu.Unlock()
	}
}

func (s *Service) workerCount() int {
	if s.cfg.Dispatch.Workers <= 0 {
		return 1
	}
	return s.cfg.Dispatch.Workers
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
