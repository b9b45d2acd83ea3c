// Package help lists the loaded plugins and the commands they registered.
// Items sent with the output marker get the listing as an HTML attachment.
package help

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"simplebot/pkg/bus"
	"simplebot/pkg/config"
	"simplebot/pkg/plugin"
	"simplebot/pkg/registry"
)

const name = "help"

func init() {
	plugin.Register(name, func(*config.Config) (plugin.Plugin, error) {
		return New(), nil
	})
}

var page = template.Must(template.New("help").Parse(`<!DOCTYPE html>
<html lang="{{.Locale}}">
<head><meta charset="utf-8"><title>{{.Bot}}</title></head>
<body>
<h1>{{.Bot}}</h1>
<h2>Commands</h2>
<ul>{{range .Commands}}
<li><code>{{.Name}}</code> {{.Description}}</li>{{end}}
</ul>
<h2>Plugins</h2>
<dl>{{range .Plugins}}
<dt>{{.Name}} {{.Version}}</dt>
<dd>{{.Description}}{{if .LongDescription}}<p>{{.LongDescription}}</p>{{end}}</dd>{{end}}
</dl>
</body>
</html>
`))

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
		Description:     "Lists plugins and commands.",
		LongDescription: "/help shows every command. /help <plugin> describes one plugin. Prefix with the output marker to receive an HTML page.",
		Version:         "1.0.0",
	}
}

func (p *Plugin) Activate(_ context.Context, host plugin.Host) error {
	p.host = host
	p.command = &registry.Command{
		Name:        "/help",
		Description: "Show available commands",
		Fn:          p.help,
	}
	host.AddCommand(p.command)
	return nil
}

func (p *Plugin) Deactivate(context.Context) error {
	p.host.RemoveCommand(p.command)
	return nil
}

type listing struct {
	Bot      string
	Locale   string
	Commands []*registry.Command
	Plugins  []plugin.Info
}

func (p *Plugin) help(ctx context.Context, item *bus.InboundMessage, args string) error {
	bot := p.host.Config(config.BotSection)
	data := listing{
		Bot:      bot.Value("displayname", "SimpleBot"),
		Locale:   bot.Value("locale", "en"),
		Commands: p.host.Commands(),
		Plugins:  p.host.Plugins(),
	}

	if args != "" {
		info, ok := findPlugin(data.Plugins, args)
		if !ok {
			return p.host.Reply(ctx, item, fmt.Sprintf("Unknown plugin %q.", args))
		}
		data.Plugins = []plugin.Info{info}
		data.Commands = nil
	}

	if item.Origin == bus.OriginArchive {
		var buf bytes.Buffer
		if err := page.Execute(&buf, data); err != nil {
			return fmt.Errorf("render help page: %w", err)
		}
		_, err := p.host.ReplyHTML(ctx, item, buf.String(), "help")
		return err
	}

	return p.host.Reply(ctx, item, renderText(data))
}

func findPlugin(plugins []plugin.Info, name string) (plugin.Info, bool) {
	for _, info := range plugins {
		if strings.EqualFold(info.Name, name) {
			return info, true
		}
	}
	return plugin.Info{}, false
}

func renderText(data listing) string {
	var b strings.Builder
	b.WriteString(data.Bot)

	if len(data.Commands) > 0 {
		b.WriteString("\n\nCommands:")
		for _, cmd := range data.Commands {
			b.WriteString("\n" + cmd.Name)
			if cmd.Description != "" {
				b.WriteString(" - " + cmd.Description)
			}
		}
	}

	if len(data.Plugins) > 0 {
		b.WriteString("\n\nPlugins:")
		for _, info := range data.Plugins {
			b.WriteString("\n" + strings.TrimSpace(info.Name+" "+info.Version))
			if info.Description != "" {
				b.WriteString(" - " + info.Description)
			}
			if len(data.Plugins) == 1 && info.LongDescription != "" {
				b.WriteString("\n" + info.LongDescription)
			}
		}
	}

	return b.String()
}
