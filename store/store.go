// Package store persists the conversation log of each channel so that a
// restarted channel can backfill its history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/channelmesh/core"
)

// Kind classifies a Record.
type Kind string

const (
	// KindUser is an attributed user message.
	KindUser Kind = "user"
	// KindReply is text the channel sent to the user.
	KindReply Kind = "reply"
	// KindBranchResult is a branch conclusion merged into history.
	KindBranchResult Kind = "branch_result"
	// KindWorkerResult is a worker result merged into history.
	KindWorkerResult Kind = "worker_result"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Record is one entry of a channel's conversation log.
type Record struct {
	ID             string
	ChannelID      core.ChannelID
	ConversationID string
	Kind           Kind
	Content        string
	CreatedAt      time.Time
}

// NewRecord builds a Record with a fresh id and the current time.
func NewRecord(channelID core.ChannelID, conversationID string, kind Kind, content string) Record {
	return Record{
		ID:             core.NewID(),
		ChannelID:      channelID,
		ConversationID: conversationID,
		Kind:           kind,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}

// ToContent converts the record into a transcript entry. Replies become
// assistant text, everything else user text.
func (r Record) ToContent() core.Content {
	if r.Kind == KindReply {
		return core.NewTextContent(core.RoleAssistant, r.Content)
	}
	return core.NewUserText(r.Content)
}

// Store is a conversation log. Implementations must be safe for concurrent use.
type Store interface {
	// Append adds a record.
	Append(ctx context.Context, rec Record) error

	// Recent returns up to limit of the most recent records of a channel in
	// chronological order. limit <= 0 returns all records.
	Recent(ctx context.Context, channelID core.ChannelID, limit int) ([]Record, error)

	Close() error
}
