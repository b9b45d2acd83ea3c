package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"simplebot/pkg/bus"
	"simplebot/pkg/channel"
	"simplebot/pkg/config"
	"simplebot/pkg/dispatch"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"

// protocolVersion tags updates written by human Telegram users.
const protocolVersion = "telegram/bot-api"

// Adapter bridges Telegram updates into SimpleBot inbound items and sends
// replies back through the Bot API.
type Adapter struct {
	bot       *telego.Bot
	allowFrom map[string]struct{}
	username  string
	marker    string
	log       *slog.Logger
}

// Option adjusts an Adapter at construction.
type Option func(*Adapter)

// WithOutputMarker sets the marker that may precede a command, so that
// "/z /help@Bot" is normalized like "/help@Bot".
func WithOutputMarker(marker string) Option {
	return func(a *Adapter) {
		if marker = strings.TrimSpace(marker); marker != "" {
			a.marker = marker
		}
	}
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger, opts ...Option) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	adapter := &Adapter{
		bot:       bot,
		allowFrom: channel.AllowFromSet(cfg.AllowFrom),
		marker:    dispatch.DefaultOutputMarker,
		log:       log.With("component", "channel.telegram"),
	}
	for _, opt := range opts {
		opt(adapter)
	}

	return adapter, nil
}

func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and forwards messages to sink.
func (a *Adapter) Run(ctx context.Context, sink channel.Sink) error {
	if sink == nil {
		return errors.New("sink is required")
	}

	me, err := a.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get telegram bot identity: %w", err)
	}
	a.username = me.Username

	updates, err := a.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started", "username", a.username)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			item, ok := a.inbound(update)
			if !ok {
				continue
			}
			if !channel.SenderAllowed(a.allowFrom, item.SenderID) {
				a.log.Debug("Ignoring message from unauthorized sender", "sender_id", item.SenderID)
				continue
			}

			a.log.Info("Received message", "chat_id", item.ChatID, "sender_id", item.SenderID, "content", channel.PreviewText(item.Content))
			if !sink(ctx, item) {
				return nil
			}
		}
	}
}

// inbound converts one update into an item. Messages written by other bots
// or posted anonymously carry no protocol metadata and are discarded by the
// dispatcher at intake.
func (a *Adapter) inbound(update telego.Update) (*bus.InboundMessage, bool) {
	message := update.Message
	if message == nil {
		return nil, false
	}

	content := strings.TrimSpace(message.Text)
	if content == "" {
		content = strings.TrimSpace(message.Caption)
	}
	if content == "" {
		return nil, false
	}

	item := &bus.InboundMessage{
		Channel:    channelName,
		ChatID:     strconv.FormatInt(message.Chat.ID, 10),
		MessageID:  strconv.Itoa(message.MessageID),
		Content:    stripMention(content, a.username, a.marker),
		ReceivedAt: time.Unix(message.Date, 0).UTC(),
		Metadata: map[string]string{
			"update_id": strconv.Itoa(update.UpdateID),
		},
	}

	if from := message.From; from != nil {
		item.SenderID = strconv.FormatInt(from.ID, 10)
		item.SenderName = displayName(from)
		if !from.IsBot {
			item.Metadata[bus.MetadataChatVersion] = protocolVersion
		}
	}

	return item, true
}

func (a *Adapter) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.ChatID), 10, 64)
	if err != nil {
		return fmt.Errorf("parse telegram chat id %q: %w", msg.ChatID, err)
	}
	reply := replyParameters(msg.ReplyTo)

	if msg.Attachment != "" {
		file, err := os.Open(msg.Attachment)
		if err != nil {
			return fmt.Errorf("open attachment: %w", err)
		}
		defer file.Close()

		params := tu.Document(tu.ID(chatID), tu.File(file)).WithCaption(strings.TrimSpace(msg.Content))
		params.ReplyParameters = reply
		if _, err := a.bot.SendDocument(ctx, params); err != nil {
			return fmt.Errorf("send telegram document: %w", err)
		}
		return nil
	}

	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return nil
	}

	a.log.Info("Sending message", "chat_id", msg.ChatID, "content", channel.PreviewText(text))
	params := tu.Message(tu.ID(chatID), text)
	params.ReplyParameters = reply
	if _, err := a.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, item *bus.InboundMessage) error {
	chatID, err := strconv.ParseInt(item.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse telegram chat id %q: %w", item.ChatID, err)
	}
	messageID, err := strconv.Atoi(item.MessageID)
	if err != nil {
		return fmt.Errorf("parse telegram message id %q: %w", item.MessageID, err)
	}

	if err := a.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	}); err != nil {
		return fmt.Errorf("delete telegram message: %w", err)
	}
	return nil
}

// MarkSeen is a no-op: the Bot API has no read receipts.
func (a *Adapter) MarkSeen(context.Context, *bus.InboundMessage) error {
	return nil
}

// stripMention turns "/help@SimpleBot args" into "/help args" so commands
// addressed to this bot in groups match their plain names. When text starts
// with the output marker the mention is removed from the command after it.
func stripMention(text, username, marker string) string {
	if username == "" || !strings.HasPrefix(text, "/") {
		return text
	}

	if marker != "" {
		if rest, ok := strings.CutPrefix(text, marker); ok && rest != "" {
			trimmed := strings.TrimLeftFunc(rest, unicode.IsSpace)
			if len(trimmed) < len(rest) {
				sep := rest[:len(rest)-len(trimmed)]
				return marker + sep + stripCommandMention(trimmed, username)
			}
		}
	}

	return stripCommandMention(text, username)
}

func stripCommandMention(text, username string) string {
	end := strings.IndexFunc(text, unicode.IsSpace)
	if end < 0 {
		end = len(text)
	}

	name, mention, ok := strings.Cut(text[:end], "@")
	if !ok || !strings.HasPrefix(name, "/") || !strings.EqualFold(mention, username) {
		return text
	}
	return name + text[end:]
}

func displayName(user *telego.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name != "" {
		return name
	}
	return user.Username
}

func replyParameters(replyTo string) *telego.ReplyParameters {
	messageID, err := strconv.Atoi(strings.TrimSpace(replyTo))
	if err != nil || messageID == 0 {
		return nil
	}
	return &telego.ReplyParameters{MessageID: messageID, AllowSendingWithoutReply: true}
}
