package core

import "fmt"

// ProcessEvent is a notification published on the process event bus. The bus
// broadcasts every event to every subscriber, so consumers must check whether
// an event concerns them before acting on it.
type ProcessEvent interface {
	isProcessEvent()
	// Process identifies the actor that produced the event.
	Process() ProcessID
}

// BranchResult carries the single conclusion of a finished branch.
type BranchResult struct {
	AgentID    string
	BranchID   BranchID
	ChannelID  ChannelID
	Conclusion string
}

func (BranchResult) isProcessEvent() {}

// Process implements ProcessEvent.
func (e BranchResult) Process() ProcessID { return BranchProcess(e.BranchID) }

// WorkerComplete is published exactly once per worker, on success or failure.
type WorkerComplete struct {
	AgentID   string
	WorkerID  WorkerID
	ChannelID ChannelID // empty for workers not bound to a channel
	Result    string
	Notify    bool
}

func (WorkerComplete) isProcessEvent() {}

// Process implements ProcessEvent.
func (e WorkerComplete) Process() ProcessID { return WorkerProcess(e.WorkerID) }

// WorkerStatus is a progress note reported by a running worker.
type WorkerStatus struct {
	AgentID   string
	WorkerID  WorkerID
	ChannelID ChannelID
	Status    string
}

func (WorkerStatus) isProcessEvent() {}

// Process implements ProcessEvent.
func (e WorkerStatus) Process() ProcessID { return WorkerProcess(e.WorkerID) }

// ToolStarted reports that a process began a tool call.
type ToolStarted struct {
	AgentID  string
	Source   ProcessID
	ToolName string
}

func (ToolStarted) isProcessEvent() {}

// Process implements ProcessEvent.
func (e ToolStarted) Process() ProcessID { return e.Source }

// ToolCompleted reports that a process finished a tool call.
type ToolCompleted struct {
	AgentID  string
	Source   ProcessID
	ToolName string
	Result   string
}

func (ToolCompleted) isProcessEvent() {}

// Process implements ProcessEvent.
func (e ToolCompleted) Process() ProcessID { return e.Source }

// EventName returns a short stable name for logging.
func EventName(ev ProcessEvent) string {
	switch ev.(type) {
	case BranchResult:
		return "branch_result"
	case WorkerComplete:
		return "worker_complete"
	case WorkerStatus:
		return "worker_status"
	case ToolStarted:
		return "tool_started"
	case ToolCompleted:
		return "tool_completed"
	default:
		return fmt.Sprintf("%T", ev)
	}
}
