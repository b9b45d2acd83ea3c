// Package assistant answers plain messages with an OpenAI model. Each chat
// keeps its own conversation thread until /reset.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"simplebot/pkg/bus"
	"simplebot/pkg/config"
	"simplebot/pkg/plugin"
	"simplebot/pkg/registry"
)

const name = "assistant"

func init() {
	plugin.Register(name, factory)
}

func factory(cfg *config.Config) (plugin.Plugin, error) {
	if strings.TrimSpace(cfg.Assistant.APIKey) == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", plugin.ErrSkip)
	}

	r, err := newOpenAIResponder(cfg.Assistant, slog.Default().With("component", "plugin.assistant"))
	if err != nil {
		return nil, err
	}
	return newPlugin(r), nil
}

type Plugin struct {
	responder responder
	host      plugin.Host

	filter *registry.Filter
	reset  *registry.Command

	mu      sync.Mutex
	threads map[string]string
}

func newPlugin(r responder) *Plugin {
	return &Plugin{responder: r, threads: make(map[string]string)}
}

func (p *Plugin) Info() plugin.Info {
	return plugin.Info{
		Name:            name,
		Description:     "Answers messages with an AI model.",
		LongDescription: "Every plain message gets an answer. /reset starts a new conversation in the current chat.",
		Version:         "1.0.0",
	}
}

func (p *Plugin) Activate(_ context.Context, host plugin.Host) error {
	p.host = host
	p.filter = &registry.Filter{Name: "assistant.answer", Fn: p.answer}
	p.reset = &registry.Command{Name: "/reset", Description: "Forget the assistant conversation", Fn: p.forget}

	host.AddFilter(p.filter)
	host.AddCommand(p.reset)
	return nil
}

func (p *Plugin) Deactivate(context.Context) error {
	p.host.RemoveFilter(p.filter)
	p.host.RemoveCommand(p.reset)

	p.mu.Lock()
	clear(p.threads)
	p.mu.Unlock()
	return nil
}

func (p *Plugin) answer(ctx context.Context, item *bus.InboundMessage, text string) (bool, error) {
	prompt := strings.TrimSpace(text)
	if prompt == "" {
		return false, nil
	}

	key := threadKey(item)
	p.mu.Lock()
	previous := p.threads[key]
	p.mu.Unlock()

	reply, responseID, err := p.responder.Respond(ctx, previous, prompt)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	p.threads[key] = responseID
	p.mu.Unlock()

	if err := p.host.Reply(ctx, item, reply); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Plugin) forget(ctx context.Context, item *bus.InboundMessage, _ string) error {
	p.mu.Lock()
	delete(p.threads, threadKey(item))
	p.mu.Unlock()

	return p.host.Reply(ctx, item, "Conversation reset.")
}

func threadKey(item *bus.InboundMessage) string {
	return item.Channel + ":" + item.ChatID
}
