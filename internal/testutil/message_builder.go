package testutil

import (
	"github.com/hupe1980/channelmesh/core"
)

// MessageBuilder helps construct inbound messages for tests.
// Example:
//
//	msg := NewMessageBuilder("hello").Source("discord").Sender("u1").DisplayName("alice").Build()
type MessageBuilder struct {
	msg core.InboundMessage
}

// NewMessageBuilder starts a text message from sender "user" on source "test".
func NewMessageBuilder(text string) *MessageBuilder {
	return &MessageBuilder{msg: core.NewTextMessage("test", "conv-1", "user", text)}
}

// Source sets the platform name (chainable).
func (b *MessageBuilder) Source(s string) *MessageBuilder { b.msg.Source = s; return b }

// Conversation sets the conversation id (chainable).
func (b *MessageBuilder) Conversation(id string) *MessageBuilder { b.msg.ConversationID = id; return b }

// Sender sets the sender id (chainable).
func (b *MessageBuilder) Sender(id string) *MessageBuilder { b.msg.SenderID = id; return b }

// DisplayName sets the sender_display_name metadata (chainable).
func (b *MessageBuilder) DisplayName(name string) *MessageBuilder {
	return b.Meta("sender_display_name", name)
}

// Meta sets a metadata key (chainable).
func (b *MessageBuilder) Meta(key string, val any) *MessageBuilder {
	if b.msg.Metadata == nil {
		b.msg.Metadata = map[string]any{}
	}
	b.msg.Metadata[key] = val
	return b
}

// System marks the message as runtime generated (chainable).
func (b *MessageBuilder) System() *MessageBuilder { b.msg.Source = core.SourceSystem; return b }

// Build returns the message. Metadata is copied so builders can be reused.
func (b *MessageBuilder) Build() core.InboundMessage {
	msg := b.msg
	msg.Metadata = make(map[string]any, len(b.msg.Metadata))
	for k, v := range b.msg.Metadata {
		msg.Metadata[k] = v
	}
	return msg
}
