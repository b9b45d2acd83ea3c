package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"simplebot/pkg/bus"
	"simplebot/pkg/channel"
)

// router resolves the adapter that owns an item or reply by channel name. It
// is the dispatch transport and the outbound delivery path.
type router struct {
	adapters map[string]channel.Adapter
	log      *slog.Logger
}

func newRouter(adapters []channel.Adapter, log *slog.Logger) (*router, error) {
	byName := make(map[string]channel.Adapter, len(adapters))
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		name := adapter.Name()
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("duplicate channel adapter %q", name)
		}
		byName[name] = adapter
	}

	return &router{adapters: byName, log: log.With("component", "gateway.router")}, nil
}

func (r *router) adapter(name string) (channel.Adapter, error) {
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("no adapter for channel %q", name)
	}
	return adapter, nil
}

func (r *router) Delete(ctx context.Context, item *bus.InboundMessage) error {
	adapter, err := r.adapter(item.Channel)
	if err != nil {
		return err
	}
	return adapter.Delete(ctx, item)
}

func (r *router) MarkSeen(ctx context.Context, item *bus.InboundMessage) error {
	adapter, err := r.adapter(item.Channel)
	if err != nil {
		return err
	}
	return adapter.MarkSeen(ctx, item)
}

func (r *router) Send(ctx context.Context, msg bus.OutboundMessage) error {
	adapter, err := r.adapter(msg.Channel)
	if err != nil {
		return err
	}
	return adapter.Send(ctx, msg)
}

// deliver sends msg and logs failures; one broken reply never stops the
// outbound loop.
func (r *router) deliver(ctx context.Context, msg bus.OutboundMessage) {
	if err := r.Send(ctx, msg); err != nil {
		r.log.Error("Failed to send reply", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
	}
}
