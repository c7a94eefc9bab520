// Package status aggregates in-flight branches and workers into a short text
// summary that is injected into the channel's system prompt each turn.
package status

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/channelmesh/core"
)

type entry struct {
	process     core.ProcessID
	text        string
	interactive bool
	status      string
	activity    string
}

// Block is the status summary of one channel. It is safe for concurrent use.
type Block struct {
	mu      sync.RWMutex
	entries []*entry
}

// New returns an empty Block.
func New() *Block { return &Block{} }

// AddBranch tracks a branch with its initial text, typically "thinking...".
func (b *Block) AddBranch(id core.BranchID, text string) {
	b.add(&entry{process: core.BranchProcess(id), text: text})
}

// AddWorker tracks a worker with its task description.
func (b *Block) AddWorker(id core.WorkerID, task string, interactive bool) {
	b.add(&entry{process: core.WorkerProcess(id), text: task, interactive: interactive})
}

// RemoveBranch stops tracking a branch. It reports whether it was tracked.
func (b *Block) RemoveBranch(id core.BranchID) bool {
	return b.remove(core.BranchProcess(id))
}

// RemoveWorker stops tracking a worker. It reports whether it was tracked.
func (b *Block) RemoveWorker(id core.WorkerID) bool {
	return b.remove(core.WorkerProcess(id))
}

// Update applies a process event. Terminal events remove their entry,
// WorkerStatus replaces the worker's status line and tool events set or
// clear the activity note. Events for untracked processes are ignored. It
// reports whether anything changed.
func (b *Block) Update(ev core.ProcessEvent) bool {
	switch e := ev.(type) {
	case core.BranchResult:
		return b.RemoveBranch(e.BranchID)
	case core.WorkerComplete:
		return b.RemoveWorker(e.WorkerID)
	case core.WorkerStatus:
		return b.modify(e.Process(), func(en *entry) { en.status = e.Status })
	case core.ToolStarted:
		return b.modify(e.Source, func(en *entry) { en.activity = "using " + e.ToolName })
	case core.ToolCompleted:
		return b.modify(e.Source, func(en *entry) { en.activity = "" })
	default:
		return false
	}
}

// IsEmpty reports whether nothing is tracked.
func (b *Block) IsEmpty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries) == 0
}

// Len returns the number of tracked processes.
func (b *Block) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Render returns a multi-line summary in insertion order, branches first.
// It returns "" when nothing is tracked.
func (b *Block) Render() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.entries) == 0 {
		return ""
	}

	var branches, workers []string
	for _, en := range b.entries {
		switch en.process.Type {
		case core.ProcessTypeBranch:
			branches = append(branches, en.line())
		case core.ProcessTypeWorker:
			workers = append(workers, en.line())
		}
	}

	var sb strings.Builder
	if len(branches) > 0 {
		fmt.Fprintf(&sb, "Active branches (%d):\n", len(branches))
		for _, l := range branches {
			sb.WriteString(l)
		}
	}
	if len(workers) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Active workers (%d):\n", len(workers))
		for _, l := range workers {
			sb.WriteString(l)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (en *entry) line() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- %s: %s", en.process.ID, en.text)
	if en.interactive {
		sb.WriteString(" (interactive)")
	}
	if en.status != "" {
		fmt.Fprintf(&sb, " [status: %s]", en.status)
	}
	if en.activity != "" {
		fmt.Fprintf(&sb, " [%s]", en.activity)
	}
	sb.WriteString("\n")
	return sb.String()
}

func (b *Block) add(en *entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.entries {
		if existing.process == en.process {
			b.entries[i] = en
			return
		}
	}
	b.entries = append(b.entries, en)
}

func (b *Block) remove(p core.ProcessID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, en := range b.entries {
		if en.process == p {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Block) modify(p core.ProcessID, fn func(*entry)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, en := range b.entries {
		if en.process == p {
			fn(en)
			return true
		}
	}
	return false
}
