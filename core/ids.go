package core

import (
	"fmt"

	"github.com/google/uuid"
)

// ChannelID identifies a user-facing conversation process.
type ChannelID string

// BranchID identifies a reasoning branch spawned from a channel.
type BranchID string

// WorkerID identifies a delegated task worker.
type WorkerID string

// NewBranchID returns a fresh random BranchID.
func NewBranchID() BranchID { return BranchID(uuid.NewString()) }

// NewWorkerID returns a fresh random WorkerID.
func NewWorkerID() WorkerID { return WorkerID(uuid.NewString()) }

// NewID generates a new unique identifier for messages and subscriptions.
func NewID() string { return uuid.NewString() }

// ProcessType categorizes the logical actor behind a ProcessID.
type ProcessType string

const (
	// ProcessTypeChannel is the user-facing conversation process.
	ProcessTypeChannel ProcessType = "channel"
	// ProcessTypeBranch is a short-lived reasoning process.
	ProcessTypeBranch ProcessType = "branch"
	// ProcessTypeWorker is a delegated task process.
	ProcessTypeWorker ProcessType = "worker"
)

// ProcessID is a tagged identifier over {channel, branch, worker}. Hooks and
// status events use it to attribute activity to a logical actor.
type ProcessID struct {
	Type ProcessType `json:"type"`
	ID   string      `json:"id"`
}

// ChannelProcess wraps a ChannelID as a ProcessID.
func ChannelProcess(id ChannelID) ProcessID {
	return ProcessID{Type: ProcessTypeChannel, ID: string(id)}
}

// BranchProcess wraps a BranchID as a ProcessID.
func BranchProcess(id BranchID) ProcessID {
	return ProcessID{Type: ProcessTypeBranch, ID: string(id)}
}

// WorkerProcess wraps a WorkerID as a ProcessID.
func WorkerProcess(id WorkerID) ProcessID {
	return ProcessID{Type: ProcessTypeWorker, ID: string(id)}
}

// String renders the id as "type:id".
func (p ProcessID) String() string { return fmt.Sprintf("%s:%s", p.Type, p.ID) }

// IsZero reports whether the id is unset.
func (p ProcessID) IsZero() bool { return p.Type == "" && p.ID == "" }
