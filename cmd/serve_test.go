package cmd

import (
	"context"
	"testing"

	"simplebot/pkg/bus"
	channelpkg "simplebot/pkg/channel"
	"simplebot/pkg/config"
)

type testAdapter struct{ name string }

func (a testAdapter) Name() string { return a.name }

func (a testAdapter) Run(context.Context, channelpkg.Sink) error { return nil }

func (a testAdapter) Send(context.Context, bus.OutboundMessage) error { return nil }

func (a testAdapter) Delete(context.Context, *bus.InboundMessage) error { return nil }

func (a testAdapter) MarkSeen(context.Context, *bus.InboundMessage) error { return nil }

func TestEnabledAdaptersRequiresAtLeastOneChannel(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if _, err := enabledAdapters(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error when no channels are enabled")
	}
}

func TestEnabledAdaptersRejectsTelegramWithoutToken(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Channels.Telegram.Enabled = true
	if _, err := enabledAdapters(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error when telegram token is missing")
	}
}

func TestEnabledAdaptersBuildsConsole(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Channels.Console.Enabled = true

	adapters, err := enabledAdapters(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("enabledAdapters error: %v", err)
	}
	if got := enabledChannelNames(adapters); got != "console" {
		t.Fatalf("enabledChannelNames = %q, want console", got)
	}
}

func TestEnabledChannelNames(t *testing.T) {
	t.Parallel()

	adapters := []channelpkg.Adapter{testAdapter{name: "telegram"}, testAdapter{name: "whatsapp"}}
	if got := enabledChannelNames(adapters); got != "telegram,whatsapp" {
		t.Fatalf("enabledChannelNames = %q, want %q", got, "telegram,whatsapp")
	}
}

func TestStopOnExitCancelsSession(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	adapter := stopOnExit{Adapter: testAdapter{name: "console"}, stop: cancel}

	if err := adapter.Run(ctx, nil); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("expected session context to be canceled after adapter exit")
	}
}
