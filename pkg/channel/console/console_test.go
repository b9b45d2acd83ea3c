package console

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"simplebot/pkg/bus"
	"simplebot/pkg/config"
)

func newTestAdapter(t *testing.T, input string, out *bytes.Buffer) *Adapter {
	t.Helper()

	adapter, err := NewAdapter(config.ConsoleConfig{SenderID: "tester"}, strings.NewReader(input), out, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewAdapter error: %v", err)
	}
	return adapter
}

func TestRunForwardsNonBlankLines(t *testing.T) {
	var out bytes.Buffer
	adapter := newTestAdapter(t, "hello\n\n  \n/echo hi\n", &out)

	var mu sync.Mutex
	var items []*bus.InboundMessage
	err := adapter.Run(context.Background(), func(_ context.Context, item *bus.InboundMessage) bool {
		mu.Lock()
		defer mu.Unlock()
		items = append(items, item)
		return true
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Content != "hello" || items[1].Content != "/echo hi" {
		t.Fatalf("unexpected contents %q, %q", items[0].Content, items[1].Content)
	}
	for _, item := range items {
		if !item.HasProtocolMetadata() {
			t.Fatalf("item %s missing protocol metadata", item.MessageID)
		}
		if item.SenderID != "tester" || item.Channel != channelName || item.ChatID != chatID {
			t.Fatalf("unexpected item routing %+v", item)
		}
	}
	if items[0].MessageID == items[1].MessageID {
		t.Fatal("expected distinct message ids")
	}
}

func TestRunStopsWhenSinkCloses(t *testing.T) {
	var out bytes.Buffer
	adapter := newTestAdapter(t, "one\ntwo\nthree\n", &out)

	calls := 0
	err := adapter.Run(context.Background(), func(context.Context, *bus.InboundMessage) bool {
		calls++
		return false
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("sink calls = %d, want 1", calls)
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	var out bytes.Buffer
	reader, writer := io.Pipe()
	defer writer.Close()

	adapter, err := NewAdapter(config.ConsoleConfig{}, reader, &out, nil)
	if err != nil {
		t.Fatalf("NewAdapter error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- adapter.Run(ctx, func(context.Context, *bus.InboundMessage) bool { return true })
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to return")
	}
}

func TestSendRendersContentAndAttachment(t *testing.T) {
	var out bytes.Buffer
	adapter := newTestAdapter(t, "", &out)

	if err := adapter.Send(context.Background(), bus.OutboundMessage{Content: "pong"}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if err := adapter.Send(context.Background(), bus.OutboundMessage{Attachment: "/tmp/help.htmlzip", MimeType: "application/zip"}); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	printed := out.String()
	if !strings.Contains(printed, "pong") {
		t.Fatalf("output %q missing reply text", printed)
	}
	if !strings.Contains(printed, "/tmp/help.htmlzip") {
		t.Fatalf("output %q missing attachment path", printed)
	}
}

func TestSendSkipsEmptyReplies(t *testing.T) {
	var out bytes.Buffer
	adapter := newTestAdapter(t, "", &out)

	if err := adapter.Send(context.Background(), bus.OutboundMessage{Content: "   "}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output, got %q", out.String())
	}
}

func TestDeletePrintsNotice(t *testing.T) {
	var out bytes.Buffer
	adapter := newTestAdapter(t, "", &out)

	if err := adapter.Delete(context.Background(), &bus.InboundMessage{MessageID: "7"}); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if !strings.Contains(out.String(), "message 7 deleted") {
		t.Fatalf("output %q missing delete notice", out.String())
	}
}

func TestRunStopsOnExitCommand(t *testing.T) {
	var out bytes.Buffer
	adapter := newTestAdapter(t, "one\n QUIT \ntwo\n", &out)

	var got []string
	err := adapter.Run(context.Background(), func(_ context.Context, item *bus.InboundMessage) bool {
		got = append(got, item.Content)
		return true
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(got) != 1 || got[0] != "one" {
		t.Fatalf("items = %v, want [one]", got)
	}
}

func TestIsExitCommand(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "exit", want: true},
		{input: " quit ", want: true},
		{input: ":q", want: true},
		{input: "EXIT", want: true},
		{input: "hello", want: false},
		{input: "quit now", want: false},
	}

	for _, tt := range tests {
		if got := isExitCommand(tt.input); got != tt.want {
			t.Fatalf("isExitCommand(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
