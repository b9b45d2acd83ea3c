// Package echo replies with whatever follows /echo.
package echo

import (
	"context"

	"simplebot/pkg/bus"
	"simplebot/pkg/config"
	"simplebot/pkg/plugin"
	"simplebot/pkg/registry"
)

const name = "echo"

func init() {
	plugin.Register(name, func(*config.Config) (plugin.Plugin, error) {
		return New(), nil
	})
}

type Plugin struct {
	host    plugin.Host
	command *registry.Command
}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Info() plugin.Info {
	return plugin.Info{
		Name:            name,
		Description:     "Echoes text back to the sender.",
		LongDescription: "/echo <text> replies with <text>. Without text it replies with the sender's id.",
		Version:         "1.0.0",
	}
}

func (p *Plugin) Activate(_ context.Context, host plugin.Host) error {
	p.host = host
	p.command = &registry.Command{
		Name:        "/echo",
		Description: "Echo the given text back",
		Fn:          p.echo,
	}
	host.AddCommand(p.command)
	return nil
}

func (p *Plugin) Deactivate(context.Context) error {
	p.host.RemoveCommand(p.command)
	return nil
}

func (p *Plugin) echo(ctx context.Context, item *bus.InboundMessage, args string) error {
	if args == "" {
		args = item.SenderID
	}
	return p.host.Reply(ctx, item, args)
}
