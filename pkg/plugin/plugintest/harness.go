// Package plugintest runs plugins against a real registry and dispatcher
// with an in-memory transport, for use in plugin tests.
package plugintest

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"testing"

	"simplebot/pkg/blob"
	"simplebot/pkg/bus"
	"simplebot/pkg/config"
	"simplebot/pkg/dispatch"
	"simplebot/pkg/plugin"
	"simplebot/pkg/registry"
)

// Harness activates plugins on creation and deactivates them on test cleanup.
type Harness struct {
	Registry *registry.Registry
	Store    *config.Store
	Blobs    *blob.Store
	Manager  *plugin.Manager

	dispatcher *dispatch.Dispatcher
	recorder   *recorder
	nextID     int
}

// New loads and activates plugins. Activation failures fail the test.
func New(t testing.TB, plugins ...plugin.Plugin) *Harness {
	t.Helper()

	h := Setup(t, plugins...)
	if err := h.Manager.ActivateAll(context.Background(), nil); err != nil {
		t.Fatalf("activate plugins: %v", err)
	}
	return h
}

// Setup loads plugins without activating them.
func Setup(t testing.TB, plugins ...plugin.Plugin) *Harness {
	t.Helper()

	baseDir := t.TempDir()
	store, err := config.OpenStore("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	config.ApplyBotDefaults(store)

	blobs, err := blob.NewStore(filepath.Join(baseDir, "blobs"))
	if err != nil {
		t.Fatalf("create blob store: %v", err)
	}

	rec := &recorder{}
	reg := registry.New()
	log := slog.New(slog.DiscardHandler)

	manager := plugin.NewManager(plugin.Services{
		Registry: reg,
		Store:    store,
		Outbox:   rec,
		Blobs:    blobs,
		BaseDir:  baseDir,
	}, log)
	manager.Load(plugins...)
	t.Cleanup(func() {
		manager.DeactivateAll(context.Background())
	})

	return &Harness{
		Registry:   reg,
		Store:      store,
		Blobs:      blobs,
		Manager:    manager,
		dispatcher: dispatch.New(reg, rec, log, dispatch.Options{}),
		recorder:   rec,
	}
}

// Item builds a chat-protocol item from sender in a fixed test chat.
func (h *Harness) Item(sender, text string) *bus.InboundMessage {
	h.nextID++
	return &bus.InboundMessage{
		ID:        "item-" + strconv.Itoa(h.nextID),
		Channel:   "test",
		SenderID:  sender,
		ChatID:    "chat",
		MessageID: strconv.Itoa(h.nextID),
		Content:   text,
		Metadata:  map[string]string{bus.MetadataChatVersion: "1.0"},
	}
}

// Send dispatches text from sender and returns the pipeline result.
func (h *Harness) Send(sender, text string) dispatch.Result {
	return h.dispatcher.Dispatch(context.Background(), h.Item(sender, text))
}

// Replies returns and clears the replies plugins queued so far.
func (h *Harness) Replies() []bus.OutboundMessage {
	return h.recorder.takeReplies()
}

// Deleted lists the message ids the pipeline deleted.
func (h *Harness) Deleted() []string {
	return h.recorder.deletedIDs()
}

type recorder struct {
	mu      sync.Mutex
	replies []bus.OutboundMessage
	deleted []string
}

func (r *recorder) PublishOutbound(_ context.Context, msg bus.OutboundMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, msg)
	return true
}

func (r *recorder) Delete(_ context.Context, item *bus.InboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, item.MessageID)
	return nil
}

func (r *recorder) MarkSeen(context.Context, *bus.InboundMessage) error {
	return nil
}

func (r *recorder) takeReplies() []bus.OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.replies
	r.replies = nil
	return out
}

func (r *recorder) deletedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.deleted)
}
