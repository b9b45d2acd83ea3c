package registry

import (
	"context"
	"errors"

	"simplebot/pkg/bus"
)

// ErrReject is returned by a detected listener to veto an item. The item is
// deleted and no later listener, filter or handler sees it.
var ErrReject = errors.New("item rejected by listener")

// Kind selects the message or command pipeline.
type Kind int

const (
	KindMessage Kind = iota
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

// DetectFunc may rewrite the text of an inbound item before resolution.
type DetectFunc func(ctx context.Context, item *bus.InboundMessage, text string) (string, error)

// ProcessedFunc observes the outcome of resolution.
type ProcessedFunc func(ctx context.Context, item *bus.InboundMessage, processed bool) error

// FilterFunc reports whether it acted on a message.
type FilterFunc func(ctx context.Context, item *bus.InboundMessage, text string) (bool, error)

// CommandFunc runs a command with the argument text that followed its name.
type CommandFunc func(ctx context.Context, item *bus.InboundMessage, args string) error

// DetectedListener runs before handler and filter resolution. Registration
// identity is the pointer, so a plugin keeps the value it registered.
type DetectedListener struct {
	Name string
	Fn   DetectFunc
	// Plugin is filled in by the plugin host on registration.
	Plugin string
}

// ProcessedListener runs after resolution.
type ProcessedListener struct {
	Name   string
	Fn     ProcessedFunc
	Plugin string
}

// Filter is an independent observer of plain messages.
type Filter struct {
	Name   string
	Fn     FilterFunc
	Plugin string
}

// Command is a named, mutually exclusive action. Name includes the command
// marker, for example "/help".
type Command struct {
	Name        string
	Description string
	Fn          CommandFunc
	Plugin      string
}
