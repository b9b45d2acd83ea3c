package whatsapp

import (
	"testing"
	"time"

	"simplebot/pkg/bus"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func messageEvent(chat types.JID, message *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   chat,
				Sender: types.NewJID("15550001111", types.DefaultUserServer),
			},
			ID:        "3EB0ABC",
			PushName:  "Ada",
			Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Message: message,
	}
}

func TestExtractText(t *testing.T) {
	if got := extractText(nil); got != "" {
		t.Fatalf("extractText(nil) = %q", got)
	}
	if got := extractText(&waE2E.Message{Conversation: proto.String(" hi ")}); got != "hi" {
		t.Fatalf("conversation text = %q, want hi", got)
	}
	extended := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("/help")}}
	if got := extractText(extended); got != "/help" {
		t.Fatalf("extended text = %q, want /help", got)
	}
}

func TestInboundDirectChat(t *testing.T) {
	chat := types.NewJID("15550001111", types.DefaultUserServer)
	item, ok := inbound(messageEvent(chat, &waE2E.Message{Conversation: proto.String("/echo hi")}))
	if !ok {
		t.Fatal("expected item")
	}

	if item.Channel != channelName || item.MessageID != "3EB0ABC" || item.SenderName != "Ada" {
		t.Fatalf("unexpected item %+v", item)
	}
	if item.ChatID != chat.String() {
		t.Fatalf("chat id = %q, want %q", item.ChatID, chat.String())
	}
	if !item.HasProtocolMetadata() {
		t.Fatal("expected direct chat item to carry protocol metadata")
	}
	if item.Metadata[bus.MetadataChatVersion] != protocolVersion {
		t.Fatalf("chat version = %q", item.Metadata[bus.MetadataChatVersion])
	}
}

func TestInboundBroadcastIsUntagged(t *testing.T) {
	item, ok := inbound(messageEvent(types.StatusBroadcastJID, &waE2E.Message{Conversation: proto.String("status")}))
	if !ok {
		t.Fatal("expected item")
	}
	if item.HasProtocolMetadata() {
		t.Fatal("expected broadcast item without protocol metadata")
	}
}

func TestInboundSkipsOwnAndEmptyMessages(t *testing.T) {
	chat := types.NewJID("15550001111", types.DefaultUserServer)

	own := messageEvent(chat, &waE2E.Message{Conversation: proto.String("mine")})
	own.Info.IsFromMe = true
	if _, ok := inbound(own); ok {
		t.Fatal("expected own message to be skipped")
	}

	if _, ok := inbound(messageEvent(chat, &waE2E.Message{})); ok {
		t.Fatal("expected message without text to be skipped")
	}
}

func TestParseItemJIDs(t *testing.T) {
	chat, sender, err := parseItemJIDs(&bus.InboundMessage{ChatID: "12345-678@g.us", SenderID: "15550001111@s.whatsapp.net"})
	if err != nil {
		t.Fatalf("parseItemJIDs error: %v", err)
	}
	if chat.Server != types.GroupServer {
		t.Fatalf("chat server = %q, want %q", chat.Server, types.GroupServer)
	}
	if sender.User != "15550001111" {
		t.Fatalf("sender user = %q", sender.User)
	}
}
