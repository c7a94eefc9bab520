package channel

import (
	"strings"

	"github.com/hupe1980/channelmesh/core"
)

// Metadata keys read from inbound messages.
const (
	MetaSenderDisplayName  = "sender_display_name"
	MetaDiscordGuildName   = "discord_guild_name"
	MetaDiscordChannelName = "discord_channel_name"
)

const multiUserNote = "Multiple users may be present. Each message is prefixed with [username]."

// FormatUserMessage prefixes raw with the sender's display name so the model
// knows who is talking. Runtime generated messages pass through unchanged.
func FormatUserMessage(raw string, msg core.InboundMessage) string {
	if msg.IsSystem() {
		return raw
	}
	name, ok := msg.MetadataString(MetaSenderDisplayName)
	if !ok {
		name = msg.SenderID
	}
	return "[" + name + "]: " + raw
}

// BuildConversationContext describes where the conversation takes place.
func BuildConversationContext(msg core.InboundMessage) string {
	var lines []string
	lines = append(lines, "Platform: "+msg.Source)
	if guild, ok := msg.MetadataString(MetaDiscordGuildName); ok {
		lines = append(lines, "Server: "+guild)
	}
	if ch, ok := msg.MetadataString(MetaDiscordChannelName); ok {
		lines = append(lines, "Channel: #"+ch)
	}
	lines = append(lines, multiUserNote)
	return strings.Join(lines, "\n")
}

// BuildSystemPrompt assembles the per-turn system prompt. Empty identity,
// conversation context and status sections are left out.
func BuildSystemPrompt(identity, base, conversationContext, status string) string {
	var sb strings.Builder
	if identity != "" {
		sb.WriteString(identity)
		sb.WriteString("\n\n")
	}
	sb.WriteString(base)
	if conversationContext != "" {
		sb.WriteString("\n\n## Conversation Context\n\n")
		sb.WriteString(conversationContext)
	}
	if status != "" {
		sb.WriteString("\n\n## Current Status\n\n")
		sb.WriteString(status)
	}
	return sb.String()
}
