// Package blacklist drops every item from banned senders before any other
// plugin sees it. Admins listed in the blacklist settings section manage the
// ban list with /ban and /unban.
package blacklist

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"simplebot/pkg/bus"
	"simplebot/pkg/config"
	"simplebot/pkg/plugin"
	"simplebot/pkg/registry"
)

const (
	name = "blacklist"

	keyAdmins = "admins"
	keyBanned = "banned"
)

func init() {
	plugin.Register(name, func(*config.Config) (plugin.Plugin, error) {
		return New(), nil
	})
}

type Plugin struct {
	host     plugin.Host
	settings *config.Section

	mu     sync.RWMutex
	admins map[string]struct{}
	banned map[string]struct{}

	listeners []*registry.DetectedListener
	commands  []*registry.Command
}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Info() plugin.Info {
	return plugin.Info{
		Name:            name,
		Description:     "Ignores and deletes messages from banned senders.",
		LongDescription: "Admins use /ban <sender>, /unban <sender> and /banlist. Admins are listed in the blacklist settings section.",
		Version:         "1.0.0",
	}
}

func (p *Plugin) Activate(_ context.Context, host plugin.Host) error {
	p.host = host
	p.settings = host.Config(name)

	p.mu.Lock()
	p.admins = toSet(p.settings.Value(keyAdmins, ""))
	p.banned = toSet(p.settings.Value(keyBanned, ""))
	p.mu.Unlock()

	p.listeners = []*registry.DetectedListener{
		{Name: "blacklist.message", Fn: p.screen},
		{Name: "blacklist.command", Fn: p.screen},
	}
	host.AddDetectedListener(registry.KindMessage, p.listeners[0])
	host.AddDetectedListener(registry.KindCommand, p.listeners[1])

	p.commands = []*registry.Command{
		{Name: "/ban", Description: "Ban a sender", Fn: p.ban},
		{Name: "/unban", Description: "Lift a ban", Fn: p.unban},
		{Name: "/banlist", Description: "List banned senders", Fn: p.list},
	}
	for _, cmd := range p.commands {
		host.AddCommand(cmd)
	}

	host.Logger().Debug("Blacklist loaded", "banned", len(p.banned), "admins", len(p.admins))
	return nil
}

func (p *Plugin) Deactivate(context.Context) error {
	p.host.RemoveDetectedListener(registry.KindMessage, p.listeners[0])
	p.host.RemoveDetectedListener(registry.KindCommand, p.listeners[1])
	for _, cmd := range p.commands {
		p.host.RemoveCommand(cmd)
	}
	return nil
}

func (p *Plugin) screen(_ context.Context, item *bus.InboundMessage, text string) (string, error) {
	if p.isBanned(item.SenderID) {
		return "", registry.ErrReject
	}
	return text, nil
}

func (p *Plugin) ban(ctx context.Context, item *bus.InboundMessage, args string) error {
	return p.update(ctx, item, args, true)
}

func (p *Plugin) unban(ctx context.Context, item *bus.InboundMessage, args string) error {
	return p.update(ctx, item, args, false)
}

func (p *Plugin) update(ctx context.Context, item *bus.InboundMessage, target string, banned bool) error {
	if !p.isAdmin(item.SenderID) {
		return p.host.Reply(ctx, item, "Only admins can change the ban list.")
	}
	if target == "" {
		return p.host.Reply(ctx, item, "Usage: /ban <sender> or /unban <sender>")
	}
	if banned && target == item.SenderID {
		return p.host.Reply(ctx, item, "You cannot ban yourself.")
	}

	p.mu.Lock()
	_, was := p.banned[target]
	if banned {
		p.banned[target] = struct{}{}
	} else {
		delete(p.banned, target)
	}
	p.settings.Set(keyBanned, fromSet(p.banned))
	p.mu.Unlock()

	if err := p.host.SaveConfig(); err != nil {
		return fmt.Errorf("save ban list: %w", err)
	}

	var reply string
	switch {
	case banned && was:
		reply = target + " was already banned."
	case banned:
		reply = target + " banned."
	case was:
		reply = target + " unbanned."
	default:
		reply = target + " was not banned."
	}
	return p.host.Reply(ctx, item, reply)
}

func (p *Plugin) list(ctx context.Context, item *bus.InboundMessage, _ string) error {
	if !p.isAdmin(item.SenderID) {
		return p.host.Reply(ctx, item, "Only admins can see the ban list.")
	}

	p.mu.RLock()
	banned := fromSet(p.banned)
	p.mu.RUnlock()

	if banned == "" {
		return p.host.Reply(ctx, item, "Nobody is banned.")
	}
	return p.host.Reply(ctx, item, "Banned: "+strings.ReplaceAll(banned, ",", ", "))
}

func (p *Plugin) isBanned(sender string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.banned[strings.TrimSpace(sender)]
	return ok
}

func (p *Plugin) isAdmin(sender string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.admins[strings.TrimSpace(sender)]
	return ok
}

func toSet(value string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			set[part] = struct{}{}
		}
	}
	return set
}

// fromSet renders set as a sorted comma-separated list.
func fromSet(set map[string]struct{}) string {
	values := make([]string, 0, len(set))
	for value := range set {
		values = append(values, value)
	}
	slices.Sort(values)
	return strings.Join(values, ",")
}
