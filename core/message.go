package core

import (
	"fmt"
	"time"
)

// SourceSystem marks messages generated by the runtime itself, such as the
// retrigger a channel sends to its own inbox.
const SourceSystem = "system"

// MessageContent is the closed set of inbound payloads.
type MessageContent interface {
	isMessageContent()
	// RawText returns the textual portion of the payload, or "" if none.
	RawText() string
}

// TextContent is a plain text message.
type TextContent struct {
	Text string
}

func (TextContent) isMessageContent() {}

// RawText implements MessageContent.
func (c TextContent) RawText() string { return c.Text }

// Attachment references media carried by a message.
type Attachment struct {
	Filename string
	MimeType string
	URL      string
}

// MediaContent is a media message with optional caption text.
type MediaContent struct {
	Text        string
	Attachments []Attachment
}

func (MediaContent) isMessageContent() {}

// RawText implements MessageContent.
func (c MediaContent) RawText() string { return c.Text }

// InboundMessage is a message delivered to a channel by a transport adapter
// or synthesized by the runtime.
type InboundMessage struct {
	ID             string
	Source         string // platform name, or SourceSystem
	ConversationID string
	SenderID       string
	AgentID        string // optional
	Content        MessageContent
	Timestamp      time.Time
	Metadata       map[string]any
}

// NewTextMessage builds a text InboundMessage with a fresh id and timestamp.
func NewTextMessage(source, conversationID, senderID, text string) InboundMessage {
	return InboundMessage{
		ID:             NewID(),
		Source:         source,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        TextContent{Text: text},
		Timestamp:      time.Now().UTC(),
		Metadata:       map[string]any{},
	}
}

// Text returns the raw text of the message content.
func (m InboundMessage) Text() string {
	if m.Content == nil {
		return ""
	}
	return m.Content.RawText()
}

// IsSystem reports whether the message was generated internally.
func (m InboundMessage) IsSystem() bool { return m.Source == SourceSystem }

// MetadataString returns a metadata value if it is a non-empty string.
func (m InboundMessage) MetadataString(key string) (string, bool) {
	v, ok := m.Metadata[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// StatusUpdate is a transport level activity signal.
type StatusUpdate int

const (
	// StatusThinking asks the platform to show a typing indicator.
	StatusThinking StatusUpdate = iota
	// StatusStopTyping clears the typing indicator.
	StatusStopTyping
)

// String returns the status name.
func (s StatusUpdate) String() string {
	switch s {
	case StatusThinking:
		return "thinking"
	case StatusStopTyping:
		return "stop_typing"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// OutboundResponse is the closed set of outputs a channel hands to its
// transport.
type OutboundResponse interface{ isOutboundResponse() }

// TextResponse is a reply to show to the user.
type TextResponse struct {
	Text string
}

func (TextResponse) isOutboundResponse() {}

// StatusResponse is an activity signal.
type StatusResponse struct {
	Status StatusUpdate
}

func (StatusResponse) isOutboundResponse() {}
