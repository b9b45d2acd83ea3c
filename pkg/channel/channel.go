package channel

import (
	"context"
	"strings"

	"simplebot/pkg/bus"
)

const messagePreviewLimit = 240

// Sink accepts one inbound item from an adapter. It reports false once the
// gateway stopped accepting items.
type Sink func(context.Context, *bus.InboundMessage) bool

// Adapter bridges one external chat transport (for example Telegram) into
// SimpleBot. Delete and MarkSeen act on the transport account and are called
// by the dispatcher once an item left the pipeline.
type Adapter interface {
	Name() string
	Run(context.Context, Sink) error
	Send(context.Context, bus.OutboundMessage) error
	Delete(context.Context, *bus.InboundMessage) error
	MarkSeen(context.Context, *bus.InboundMessage) error
}

// PreviewText returns a bounded log-safe preview of message text.
func PreviewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}

// AllowFromSet normalizes allow_from values into a lookup set. A nil set
// allows every sender.
func AllowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// SenderAllowed checks senderID against a set built by AllowFromSet.
func SenderAllowed(allowed map[string]struct{}, senderID string) bool {
	if len(allowed) == 0 {
		return true
	}

	_, ok := allowed[strings.TrimSpace(senderID)]
	return ok
}
