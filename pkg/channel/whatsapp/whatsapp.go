// Package whatsapp connects SimpleBot to a WhatsApp multi-device session.
// The session is kept in a SQLite store and paired through a terminal QR
// code on first start.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"simplebot/pkg/bus"
	"simplebot/pkg/channel"
	"simplebot/pkg/config"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

const channelName = "whatsapp"

// protocolVersion tags messages received in direct and group chats.
const protocolVersion = "whatsapp/md"

type Adapter struct {
	client *whatsmeow.Client
	log    *slog.Logger

	mu   sync.RWMutex
	ctx  context.Context
	sink channel.Sink
}

func NewAdapter(ctx context.Context, cfg config.WhatsAppConfig, log *slog.Logger) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "channel.whatsapp")

	dsn := strings.TrimSpace(cfg.SessionDSN)
	if dsn == "" {
		return nil, errors.New("channels.whatsapp.session_dsn is required")
	}

	container, err := sqlstore.New(ctx, "sqlite3", dsn, newSlogLogger(log, "store"))
	if err != nil {
		return nil, fmt.Errorf("create whatsapp sql store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get whatsapp device store: %w", err)
	}

	adapter := &Adapter{
		client: whatsmeow.NewClient(deviceStore, newSlogLogger(log, "client")),
		log:    log,
	}
	adapter.client.AddEventHandler(adapter.handleEvent)

	return adapter, nil
}

func (a *Adapter) Name() string {
	return channelName
}

// Run connects the session, pairing it first when needed, and blocks until
// ctx is canceled.
func (a *Adapter) Run(ctx context.Context, sink channel.Sink) error {
	if sink == nil {
		return errors.New("sink is required")
	}

	a.mu.Lock()
	a.ctx = ctx
	a.sink = sink
	a.mu.Unlock()

	if a.client.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		qrChannel, err := a.client.GetQRChannel(qrCtx)
		if err != nil {
			return fmt.Errorf("init whatsapp qr channel: %w", err)
		}
		go a.consumeQR(qrChannel)
		a.log.Info("WhatsApp requires pairing; QR printed to terminal")
	} else {
		a.log.Info("WhatsApp restored previous session", "jid", a.client.Store.ID.String())
	}

	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("connect whatsapp: %w", err)
	}
	a.log.Info("WhatsApp channel started")

	<-ctx.Done()
	a.client.Disconnect()
	a.log.Info("WhatsApp channel stopped")
	return nil
}

func (a *Adapter) consumeQR(qrChannel <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChannel {
		switch evt.Event {
		case "code":
			fmt.Fprintln(os.Stdout, "Scan this WhatsApp QR code from Linked Devices:")
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
		default:
			a.log.Info("WhatsApp QR event", "event", evt.Event)
		}
	}
}

func (a *Adapter) handleEvent(rawEvent any) {
	event, ok := rawEvent.(*events.Message)
	if !ok {
		return
	}

	item, ok := inbound(event)
	if !ok {
		return
	}

	a.mu.RLock()
	ctx, sink := a.ctx, a.sink
	a.mu.RUnlock()
	if sink == nil {
		return
	}

	a.log.Info("Received message", "chat_id", item.ChatID, "sender_id", item.SenderID, "content", channel.PreviewText(item.Content))
	if !sink(ctx, item) {
		a.log.Debug("Inbound item dropped, gateway is shutting down", "message_id", item.MessageID)
	}
}

func inbound(event *events.Message) (*bus.InboundMessage, bool) {
	if event == nil || event.Info.IsFromMe {
		return nil, false
	}

	text := extractText(event.Message)
	if text == "" {
		return nil, false
	}

	item := &bus.InboundMessage{
		Channel:    channelName,
		SenderID:   event.Info.Sender.String(),
		SenderName: event.Info.PushName,
		ChatID:     event.Info.Chat.String(),
		MessageID:  event.Info.ID,
		Content:    text,
		ReceivedAt: event.Info.Timestamp.UTC(),
		Metadata:   map[string]string{},
	}
	if event.Info.Chat.Server != types.BroadcastServer {
		item.Metadata[bus.MetadataChatVersion] = protocolVersion
	}

	return item, true
}

func extractText(message *waE2E.Message) string {
	if message == nil {
		return ""
	}
	if text := strings.TrimSpace(message.GetConversation()); text != "" {
		return text
	}
	if ext := message.GetExtendedTextMessage(); ext != nil {
		if text := strings.TrimSpace(ext.GetText()); text != "" {
			return text
		}
	}
	return ""
}

func (a *Adapter) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chat, err := types.ParseJID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("parse whatsapp chat %q: %w", msg.ChatID, err)
	}

	var message *waE2E.Message
	if msg.Attachment != "" {
		message, err = a.documentMessage(ctx, msg)
		if err != nil {
			return err
		}
	} else {
		text := strings.TrimSpace(msg.Content)
		if text == "" {
			return nil
		}
		message = &waE2E.Message{Conversation: proto.String(text)}
	}

	if _, err := a.client.SendMessage(ctx, chat, message); err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	return nil
}

func (a *Adapter) documentMessage(ctx context.Context, msg bus.OutboundMessage) (*waE2E.Message, error) {
	data, err := os.ReadFile(msg.Attachment)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}

	uploaded, err := a.client.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return nil, fmt.Errorf("upload whatsapp document: %w", err)
	}

	fileName := filepath.Base(msg.Attachment)
	document := &waE2E.DocumentMessage{
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    proto.Uint64(uploaded.FileLength),
		Mimetype:      proto.String(msg.MimeType),
		FileName:      proto.String(fileName),
		Title:         proto.String(fileName),
	}
	if caption := strings.TrimSpace(msg.Content); caption != "" {
		document.Caption = proto.String(caption)
	}

	return &waE2E.Message{DocumentMessage: document}, nil
}

// Delete revokes the item for everyone. WhatsApp only allows this in groups
// where the bot is an admin; elsewhere the item is left in place.
func (a *Adapter) Delete(ctx context.Context, item *bus.InboundMessage) error {
	chat, sender, err := parseItemJIDs(item)
	if err != nil {
		return err
	}
	if chat.Server != types.GroupServer {
		a.log.Debug("Cannot revoke message outside a group", "chat_id", item.ChatID, "message_id", item.MessageID)
		return nil
	}

	if _, err := a.client.SendMessage(ctx, chat, a.client.BuildRevoke(chat, sender, item.MessageID)); err != nil {
		return fmt.Errorf("revoke whatsapp message: %w", err)
	}
	return nil
}

func (a *Adapter) MarkSeen(ctx context.Context, item *bus.InboundMessage) error {
	chat, sender, err := parseItemJIDs(item)
	if err != nil {
		return err
	}

	timestamp := item.ReceivedAt
	if err := a.client.MarkRead(ctx, []types.MessageID{item.MessageID}, timestamp, chat, sender); err != nil {
		return fmt.Errorf("mark whatsapp message read: %w", err)
	}
	return nil
}

func parseItemJIDs(item *bus.InboundMessage) (types.JID, types.JID, error) {
	chat, err := types.ParseJID(item.ChatID)
	if err != nil {
		return types.JID{}, types.JID{}, fmt.Errorf("parse whatsapp chat %q: %w", item.ChatID, err)
	}
	sender, err := types.ParseJID(item.SenderID)
	if err != nil {
		return types.JID{}, types.JID{}, fmt.Errorf("parse whatsapp sender %q: %w", item.SenderID, err)
	}
	return chat, sender, nil
}
