// Package dispatch runs inbound items through the plugin pipeline: detected
// listeners, handler or filter resolution, then processed listeners. Every
// plugin callback runs behind a fault boundary, so one plugin's failure
// never stops the others.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"simplebot/pkg/bus"
	"simplebot/pkg/registry"
)

// DefaultOutputMarker asks for replies rendered as file attachments.
const DefaultOutputMarker = "/z"

// Transport performs the account-level side effects of a dispatch.
type Transport interface {
	Delete(ctx context.Context, item *bus.InboundMessage) error
	MarkSeen(ctx context.Context, item *bus.InboundMessage) error
}

// EventPublisher receives one event per finished dispatch.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event bus.Event) bool
}

type Outcome string

const (
	OutcomeRejectedByIntake   Outcome = "rejected_by_intake"
	OutcomeRejectedByListener Outcome = "rejected_by_listener"
	OutcomeProcessed          Outcome = "processed"
	OutcomeNotProcessed       Outcome = "not_processed"
)

// Result describes how one item left the pipeline.
type Result struct {
	Kind      registry.Kind
	Outcome   Outcome
	Processed bool
	// Text is the item text after the detected listeners ran.
	Text string
	// Command is the name of the handler that matched, if any.
	Command string
}

type Options struct {
	// CallbackTimeout bounds each plugin callback; zero disables it.
	CallbackTimeout time.Duration
	OutputMarker    string
	Events          EventPublisher
}

type Dispatcher struct {
	registry        *registry.Registry
	transport       Transport
	events          EventPublisher
	log             *slog.Logger
	callbackTimeout time.Duration
	outputMarker    string
}

func New(reg *registry.Registry, transport Transport, log *slog.Logger, opts Options) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	marker := opts.OutputMarker
	if marker == "" {
		marker = DefaultOutputMarker
	}

	return &Dispatcher{
		registry:        reg,
		transport:       transport,
		events:          opts.Events,
		log:             log.With("component", "dispatch"),
		callbackTimeout: opts.CallbackTimeout,
		outputMarker:    marker,
	}
}

// Dispatch routes item to the command pipeline when its text starts with
// the command prefix and to the message pipeline otherwise.
func (d *Dispatcher) Dispatch(ctx context.Context, item *bus.InboundMessage) Result {
	if item != nil && IsCommand(item.Content) {
		return d.DispatchCommand(ctx, item)
	}
	return d.DispatchMessage(ctx, item)
}

func (d *Dispatcher) DispatchMessage(ctx context.Context, item *bus.InboundMessage) Result {
	result := Result{Kind: registry.KindMessage}
	log := d.itemLogger(item, registry.KindMessage)
	log.Debug("Received message", "sender_id", senderOf(item))

	if !d.intake(ctx, log, item, &result) {
		return result
	}
	// A dispatch that passed intake always runs to completion.
	ctx = context.WithoutCancel(ctx)

	text, ok := d.detect(ctx, log, registry.KindMessage, item, item.Content)
	result.Text = text
	if !ok {
		d.reject(ctx, log, item, &result)
		return result
	}

	for _, f := range d.registry.Filters() {
		var acted bool
		err := d.guard(ctx, func(ctx context.Context) error {
			var err error
			acted, err = f.Fn(ctx, item, text)
			return err
		})
		if err != nil {
			d.fault(log, "filter", f.Plugin, f.Name, err)
			continue
		}
		if acted {
			result.Processed = true
			log.Debug("Message processed", "filter", f.Name)
		}
	}
	if !result.Processed {
		log.Debug("Message was not processed")
	}

	d.notify(ctx, log, registry.KindMessage, item, result.Processed)
	d.finish(ctx, log, item, &result)
	return result
}

func (d *Dispatcher) DispatchCommand(ctx context.Context, item *bus.InboundMessage) Result {
	result := Result{Kind: registry.KindCommand}
	log := d.itemLogger(item, registry.KindCommand)
	log.Debug("Received command", "sender_id", senderOf(item))

	if !d.intake(ctx, log, item, &result) {
		return result
	}
	ctx = context.WithoutCancel(ctx)

	text := item.Content
	if stripped, ok := CommandArgs(d.outputMarker, text); ok {
		item.Origin = bus.OriginArchive
		text = stripped
	} else {
		item.Origin = bus.OriginDefault
	}

	text, ok := d.detect(ctx, log, registry.KindCommand, item, text)
	result.Text = text
	if !ok {
		d.reject(ctx, log, item, &result)
		return result
	}

	for _, cmd := range d.registry.Commands() {
		args, ok := CommandArgs(cmd.Name, text)
		if !ok {
			continue
		}

		// A matched handler counts as processed even when it fails.
		result.Processed = true
		result.Command = cmd.Name
		if err := d.guard(ctx, func(ctx context.Context) error {
			return cmd.Fn(ctx, item, args)
		}); err != nil {
			d.fault(log, "command", cmd.Plugin, cmd.Name, err)
		}
		log.Debug("Command processed", "command", cmd.Name)
		break
	}
	if !result.Processed {
		log.Debug("Command was not processed")
	}

	d.notify(ctx, log, registry.KindCommand, item, result.Processed)
	d.finish(ctx, log, item, &result)
	return result
}

// intake discards items without chat-protocol metadata before any plugin
// code runs.
func (d *Dispatcher) intake(ctx context.Context, log *slog.Logger, item *bus.InboundMessage, result *Result) bool {
	if item.HasProtocolMetadata() {
		return true
	}

	log.Debug("Item without chat protocol metadata rejected")
	result.Outcome = OutcomeRejectedByIntake
	if item != nil {
		result.Text = item.Content
		d.delete(ctx, log, item)
	}
	d.publish(ctx, item, result)
	return false
}

// detect runs the detected listeners of kind in order. It reports false when
// a listener rejected the item.
func (d *Dispatcher) detect(ctx context.Context, log *slog.Logger, kind registry.Kind, item *bus.InboundMessage, text string) (string, bool) {
	for _, l := range d.registry.DetectedListeners(kind) {
		var next string
		err := d.guard(ctx, func(ctx context.Context) error {
			var err error
			next, err = l.Fn(ctx, item, text)
			return err
		})
		switch {
		case err == nil:
			text = next
		case errors.Is(err, registry.ErrReject):
			log.Debug("Item rejected by listener", "listener", l.Name)
			return text, false
		default:
			d.fault(log, "detected_"+kind.String()+"_listener", l.Plugin, l.Name, err)
		}
	}
	return text, true
}

func (d *Dispatcher) notify(ctx context.Context, log *slog.Logger, kind registry.Kind, item *bus.InboundMessage, processed bool) {
	for _, l := range d.registry.ProcessedListeners(kind) {
		if err := d.guard(ctx, func(ctx context.Context) error {
			return l.Fn(ctx, item, processed)
		}); err != nil {
			d.fault(log, "processed_"+kind.String()+"_listener", l.Plugin, l.Name, err)
		}
	}
}

func (d *Dispatcher) reject(ctx context.Context, log *slog.Logger, item *bus.InboundMessage, result *Result) {
	result.Outcome = OutcomeRejectedByListener
	d.delete(ctx, log, item)
	d.publish(ctx, item, result)
}

func (d *Dispatcher) finish(ctx context.Context, log *slog.Logger, item *bus.InboundMessage, result *Result) {
	result.Outcome = OutcomeNotProcessed
	if result.Processed {
		result.Outcome = OutcomeProcessed
	}

	if d.transport != nil {
		if err := d.transport.MarkSeen(ctx, item); err != nil {
			log.Warn("Failed to mark item seen", "error", err)
		}
	}
	d.publish(ctx, item, result)
}

func (d *Dispatcher) delete(ctx context.Context, log *slog.Logger, item *bus.InboundMessage) {
	if d.transport == nil {
		return
	}
	if err := d.transport.Delete(ctx, item); err != nil {
		log.Warn("Failed to delete item", "error", err)
	}
}

func (d *Dispatcher) publish(ctx context.Context, item *bus.InboundMessage, result *Result) {
	if d.events == nil {
		return
	}

	event := bus.Event{
		Type: bus.EventItemUnprocessed,
		Payload: map[string]string{
			"kind":    result.Kind.String(),
			"outcome": string(result.Outcome),
		},
	}
	switch result.Outcome {
	case OutcomeProcessed:
		event.Type = bus.EventItemProcessed
	case OutcomeRejectedByIntake, OutcomeRejectedByListener:
		event.Type = bus.EventItemRejected
	}
	if result.Command != "" {
		event.Payload["command"] = result.Command
	}
	if item != nil {
		event.Channel = item.Channel
		event.ChatID = item.ChatID
		event.ItemID = item.ID
	}

	d.events.PublishEvent(ctx, event)
}

// fault logs a plugin callback failure with enough context to find it.
func (d *Dispatcher) fault(log *slog.Logger, stage, plugin, callback string, err error) {
	attrs := []any{"stage", stage, "plugin", plugin, "callback", callback, "error", err}

	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		attrs = append(attrs, "stack", string(panicErr.Stack))
	}

	log.Error("Plugin callback failed", attrs...)
}

func (d *Dispatcher) itemLogger(item *bus.InboundMessage, kind registry.Kind) *slog.Logger {
	if item == nil {
		return d.log.With("kind", kind.String())
	}
	return d.log.With("kind", kind.String(), "item_id", item.ID, "channel", item.Channel)
}

func senderOf(item *bus.InboundMessage) string {
	if item == nil {
		return ""
	}
	return item.SenderID
}
