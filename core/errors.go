package core

import (
	"errors"
	"fmt"
)

// ErrUnknownProcess is returned when a branch or worker id is not tracked by
// the channel.
var ErrUnknownProcess = errors.New("unknown process")

// ErrWorkerNotInteractive is returned when routing a follow-up to a worker
// that was not spawned in interactive mode.
var ErrWorkerNotInteractive = errors.New("worker is not interactive")

// ErrWorkerBusy is returned when an interactive worker's follow-up queue is
// full.
var ErrWorkerBusy = errors.New("worker input queue is full")

// BranchLimitReachedError is returned when a channel already runs its
// maximum number of concurrent branches.
type BranchLimitReachedError struct {
	ChannelID ChannelID
	Max       int
}

func (e *BranchLimitReachedError) Error() string {
	return fmt.Sprintf("max concurrent branches (%d) reached for channel %s", e.Max, e.ChannelID)
}

// WorkerLimitReachedError is returned when a channel configured with a worker
// cap already runs that many workers.
type WorkerLimitReachedError struct {
	ChannelID ChannelID
	Max       int
}

func (e *WorkerLimitReachedError) Error() string {
	return fmt.Sprintf("max concurrent workers (%d) reached for channel %s", e.Max, e.ChannelID)
}
