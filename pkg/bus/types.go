package bus

import (
	"strings"
	"time"
)

// Origin selects how replies to an inbound item are rendered.
type Origin string

const (
	// OriginDefault renders replies inline.
	OriginDefault Origin = "unknown"
	// OriginArchive renders replies as a file attachment (zipped HTML).
	OriginArchive Origin = "zhv"
)

// MetadataChatVersion marks items that carry chat-protocol metadata. Items
// without it are treated as foreign mail and discarded at intake.
const MetadataChatVersion = "chat_version"

// InboundMessage is one message or command received from a transport. It is
// passed by pointer through the dispatch pipeline so listeners can mutate it.
type InboundMessage struct {
	ID         string            `json:"id"`
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	SenderName string            `json:"sender_name,omitempty"`
	ChatID     string            `json:"chat_id"`
	MessageID  string            `json:"message_id,omitempty"`
	Content    string            `json:"content"`
	Origin     Origin            `json:"origin,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// HasProtocolMetadata reports whether the transport tagged the item as a
// genuine chat message.
func (m *InboundMessage) HasProtocolMetadata() bool {
	if m == nil {
		return false
	}
	return strings.TrimSpace(m.Metadata[MetadataChatVersion]) != ""
}

// OutboundMessage is a reply routed back to the transport named by Channel.
type OutboundMessage struct {
	Channel    string            `json:"channel"`
	ChatID     string            `json:"chat_id"`
	ReplyTo    string            `json:"reply_to,omitempty"`
	Content    string            `json:"content,omitempty"`
	Attachment string            `json:"attachment,omitempty"`
	MimeType   string            `json:"mime_type,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Reply builds an outbound message addressed to the chat an item came from.
func Reply(item *InboundMessage, content string) OutboundMessage {
	return OutboundMessage{
		Channel: item.Channel,
		ChatID:  item.ChatID,
		ReplyTo: item.MessageID,
		Content: content,
	}
}
