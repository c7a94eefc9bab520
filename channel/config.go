package channel

import (
	"errors"
	"fmt"
	"time"
)

// Config bounds what a channel may do.
type Config struct {
	// MaxConcurrentBranches caps in-flight branches. Must be > 0.
	MaxConcurrentBranches int

	// MaxConcurrentWorkers caps in-flight workers. Zero means unlimited.
	MaxConcurrentWorkers int

	// MaxTurns bounds tool rounds of a channel turn. Must be > 0.
	MaxTurns int

	// BranchMaxTurns and WorkerMaxTurns bound tool rounds of spawned
	// processes. Zero means unlimited.
	BranchMaxTurns int
	WorkerMaxTurns int

	// InboxCapacity is the inbound queue size. Must be > 0.
	InboxCapacity int

	// HistoryBackfill is the number of stored records replayed into history
	// when the channel starts.
	HistoryBackfill int

	// InteractiveIdleTimeout ends interactive workers that get no follow-ups.
	InteractiveIdleTimeout time.Duration
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentBranches:  5,
		MaxConcurrentWorkers:   0,
		MaxTurns:               5,
		BranchMaxTurns:         10,
		WorkerMaxTurns:         25,
		InboxCapacity:          64,
		HistoryBackfill:        0,
		InteractiveIdleTimeout: 10 * time.Minute,
	}
}

// Validate checks the limits.
func (c Config) Validate() error {
	var errs []error
	if c.MaxConcurrentBranches <= 0 {
		errs = append(errs, fmt.Errorf("max concurrent branches must be > 0, got %d", c.MaxConcurrentBranches))
	}
	if c.MaxTurns <= 0 {
		errs = append(errs, fmt.Errorf("max turns must be > 0, got %d", c.MaxTurns))
	}
	if c.InboxCapacity <= 0 {
		errs = append(errs, fmt.Errorf("inbox capacity must be > 0, got %d", c.InboxCapacity))
	}
	if c.MaxConcurrentWorkers < 0 {
		errs = append(errs, fmt.Errorf("max concurrent workers must be >= 0, got %d", c.MaxConcurrentWorkers))
	}
	if c.BranchMaxTurns < 0 || c.WorkerMaxTurns < 0 {
		errs = append(errs, errors.New("branch and worker max turns must be >= 0"))
	}
	if c.HistoryBackfill < 0 {
		errs = append(errs, fmt.Errorf("history backfill must be >= 0, got %d", c.HistoryBackfill))
	}
	if c.InteractiveIdleTimeout < 0 {
		errs = append(errs, errors.New("interactive idle timeout must be >= 0"))
	}
	return errors.Join(errs...)
}
