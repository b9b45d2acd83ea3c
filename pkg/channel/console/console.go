// Package console runs the bot against stdin and stdout. Every line typed is
// one inbound item from a single local sender.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"simplebot/pkg/bus"
	"simplebot/pkg/channel"
	"simplebot/pkg/config"

	"github.com/charmbracelet/lipgloss"
)

const (
	channelName = "console"
	chatID      = "local"
	// protocolVersion tags console lines as chat-protocol items.
	protocolVersion = "1.0"
)

type Adapter struct {
	senderID string
	in       io.Reader
	out      io.Writer
	log      *slog.Logger
	theme    theme

	mu     sync.Mutex
	nextID atomic.Int64
}

func NewAdapter(cfg config.ConsoleConfig, in io.Reader, out io.Writer, log *slog.Logger) (*Adapter, error) {
	if in == nil || out == nil {
		return nil, errors.New("console input and output are required")
	}
	if log == nil {
		log = slog.Default()
	}

	senderID := strings.TrimSpace(cfg.SenderID)
	if senderID == "" {
		senderID = channelName
	}

	return &Adapter{
		senderID: senderID,
		in:       in,
		out:      out,
		log:      log.With("component", "channel.console"),
		theme:    defaultTheme(),
	}, nil
}

func (a *Adapter) Name() string {
	return channelName
}

// Run reads lines until the input ends or ctx is canceled.
func (a *Adapter) Run(ctx context.Context, sink channel.Sink) error {
	if sink == nil {
		return errors.New("sink is required")
	}

	a.print(a.theme.banner.Render("SimpleBot console") + "\n" + a.theme.notice.Render("type a message or /help, exit or Ctrl-D to quit"))

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read console input: %w", err)
			}
			return nil
		case line := <-lines:
			if isExitCommand(line) {
				return nil
			}
			item, ok := a.inbound(line)
			if !ok {
				continue
			}
			a.log.Debug("Received message", "message_id", item.MessageID, "content", channel.PreviewText(item.Content))
			if !sink(ctx, item) {
				return nil
			}
		}
	}
}

func (a *Adapter) inbound(line string) (*bus.InboundMessage, bool) {
	content := strings.TrimSpace(line)
	if content == "" {
		return nil, false
	}

	return &bus.InboundMessage{
		Channel:    channelName,
		SenderID:   a.senderID,
		SenderName: a.senderID,
		ChatID:     chatID,
		MessageID:  strconv.FormatInt(a.nextID.Add(1), 10),
		Content:    content,
		ReceivedAt: time.Now().UTC(),
		Metadata:   map[string]string{bus.MetadataChatVersion: protocolVersion},
	}, true
}

func (a *Adapter) Send(_ context.Context, msg bus.OutboundMessage) error {
	parts := []string{a.theme.botTitle.Render("SimpleBot")}
	if text := strings.TrimSpace(msg.Content); text != "" {
		parts = append(parts, a.theme.botBox.Render(text))
	}
	if msg.Attachment != "" {
		parts = append(parts, a.theme.attachment.Render(fmt.Sprintf("attachment %s (%s)", msg.Attachment, msg.MimeType)))
	}
	if len(parts) == 1 {
		return nil
	}

	a.print(lipgloss.JoinVertical(lipgloss.Left, parts...))
	return nil
}

func (a *Adapter) Delete(_ context.Context, item *bus.InboundMessage) error {
	a.print(a.theme.notice.Render(fmt.Sprintf("message %s deleted", item.MessageID)))
	return nil
}

// MarkSeen is a no-op: console lines are read as they are typed.
func (a *Adapter) MarkSeen(context.Context, *bus.InboundMessage) error {
	return nil
}

func (a *Adapter) print(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintln(a.out, text)
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q":
		return true
	default:
		return false
	}
}
