package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/channelmesh/branch"
	"github.com/hupe1980/channelmesh/bus"
	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/logging"
	"github.com/hupe1980/channelmesh/model"
	"github.com/hupe1980/channelmesh/status"
	"github.com/hupe1980/channelmesh/store"
	"github.com/hupe1980/channelmesh/tool"
	"github.com/hupe1980/channelmesh/worker"
)

// Deps are the agent-wide collaborators shared by all channels.
type Deps struct {
	AgentID string

	// Models resolves the model for each process type.
	Models model.Router

	// Tools is the shared base registry. Every channel layers its own
	// registry on top of it; branches and workers see it directly.
	Tools *tool.Registry

	// Events is the agent's process event bus.
	Events *bus.Bus

	// Store logs the conversation. Optional.
	Store store.Store

	Logger logging.Logger
}

func (d Deps) validate() error {
	var errs []error
	if d.Models == nil {
		errs = append(errs, errors.New("models router is required"))
	}
	if d.Events == nil {
		errs = append(errs, errors.New("event bus is required"))
	}
	return errors.Join(errs...)
}

// Prompts are the system prompts of a channel and its sub-processes.
type Prompts struct {
	System   string
	Identity string
	Branch   string
	Worker   string
}

// Handles keep the terminal event of their process once it is known, so a
// result lost to bus lag can still be merged.
type branchHandle struct {
	description string
	cancel      context.CancelFunc
	outcome     *core.BranchResult
}

type workerHandle struct {
	task    string
	worker  *worker.Worker
	cancel  context.CancelFunc
	outcome *core.WorkerComplete
}

// State is the shared, lock protected state of one channel. It is handed to
// channel tools so they can spawn and steer sub-processes.
//
// History, the branch table, the worker table and the status block are
// locked independently and never held together.
type State struct {
	ChannelID core.ChannelID
	History   *core.History
	Status    *status.Block
	Config    Config
	Deps      Deps
	Prompts   Prompts

	// lifetime is cancelled when the channel stops, taking every spawned
	// process with it.
	lifetime context.Context
	stop     context.CancelFunc

	branchesMu sync.RWMutex
	branches   map[core.BranchID]*branchHandle

	workersMu sync.RWMutex
	workers   map[core.WorkerID]*workerHandle

	// turn is the live transcript while a channel turn holds the history
	// lock. Tools run on the turn goroutine and snapshot from it.
	turnMu sync.Mutex
	turn   *core.Messages

	logger logging.Logger
}

// NewState creates the state of a channel.
func NewState(id core.ChannelID, deps Deps, cfg Config, prompts Prompts) *State {
	lifetime, stop := context.WithCancel(context.Background())
	return &State{
		ChannelID: id,
		History:   core.NewHistory(),
		Status:    status.New(),
		Config:    cfg,
		Deps:      deps,
		Prompts:   prompts,
		lifetime:  lifetime,
		stop:      stop,
		branches:  make(map[core.BranchID]*branchHandle),
		workers:   make(map[core.WorkerID]*workerHandle),
		logger:    logging.With(logging.OrNoOp(deps.Logger), "channel_id", string(id)),
	}
}

// SpawnBranch forks a branch from the current history. It fails with
// *core.BranchLimitReachedError, leaving state unchanged, when the channel
// already runs its maximum number of branches. The branch is tracked and
// shown in the status block before it starts running.
func SpawnBranch(s *State, description string) (core.BranchID, error) {
	history := s.snapshotHistory()

	b := branch.New(s.ChannelID, description, s.Deps.Models.Resolve(core.ProcessTypeBranch), s.Deps.Events,
		func(o *branch.Options) {
			o.AgentID = s.Deps.AgentID
			o.SystemPrompt = s.Prompts.Branch
			o.History = history
			o.Tools = s.Deps.Tools
			o.MaxTurns = s.Config.BranchMaxTurns
			o.Logger = s.Deps.Logger
			o.OnResult = s.finishBranch
		})

	ctx, cancel := context.WithCancel(s.lifetime)

	s.branchesMu.Lock()
	if len(s.branches) >= s.Config.MaxConcurrentBranches {
		s.branchesMu.Unlock()
		cancel()
		return "", &core.BranchLimitReachedError{ChannelID: s.ChannelID, Max: s.Config.MaxConcurrentBranches}
	}
	s.branches[b.ID()] = &branchHandle{description: description, cancel: cancel}
	s.branchesMu.Unlock()

	s.Status.AddBranch(b.ID(), "thinking...")

	go func() {
		defer cancel()
		_, _ = b.Run(ctx)
	}()

	s.logger.Info("channel.branch.spawned", "branch_id", string(b.ID()))

	return b.ID(), nil
}

// SpawnWorker delegates task to a worker. Interactive workers keep accepting
// follow-ups through RouteToWorker. Every worker publishes exactly one
// WorkerComplete with Notify set; failures and panics become a
// "Worker failed: ..." result.
func SpawnWorker(s *State, task string, interactive bool) (core.WorkerID, error) {
	m := s.Deps.Models.Resolve(core.ProcessTypeWorker)
	optFn := func(o *worker.Options) {
		o.AgentID = s.Deps.AgentID
		o.SystemPrompt = s.Prompts.Worker
		o.Tools = s.Deps.Tools
		o.MaxTurns = s.Config.WorkerMaxTurns
		o.IdleTimeout = s.Config.InteractiveIdleTimeout
		o.Logger = s.Deps.Logger
	}

	var w *worker.Worker
	if interactive {
		w = worker.NewInteractive(s.ChannelID, task, m, s.Deps.Events, optFn)
	} else {
		w = worker.New(s.ChannelID, task, m, s.Deps.Events, optFn)
	}

	ctx, cancel := context.WithCancel(s.lifetime)

	s.workersMu.Lock()
	if limit := s.Config.MaxConcurrentWorkers; limit > 0 && len(s.workers) >= limit {
		s.workersMu.Unlock()
		cancel()
		return "", &core.WorkerLimitReachedError{ChannelID: s.ChannelID, Max: limit}
	}
	s.workers[w.ID()] = &workerHandle{task: task, worker: w, cancel: cancel}
	s.workersMu.Unlock()

	s.Status.AddWorker(w.ID(), task, false)

	go func() {
		defer cancel()

		result, err := runWorker(ctx, w)
		if err != nil {
			s.logger.Error("channel.worker.failed", "worker_id", string(w.ID()), "error", err.Error())
			result = fmt.Sprintf("Worker failed: %v", err)
		}
		done := core.WorkerComplete{
			AgentID:   s.Deps.AgentID,
			WorkerID:  w.ID(),
			ChannelID: s.ChannelID,
			Result:    result,
			Notify:    true,
		}
		s.finishWorker(done)
		s.Deps.Events.Publish(done)
	}()

	s.logger.Info("channel.worker.spawned", "worker_id", string(w.ID()), "task", task, "interactive", interactive)

	return w.ID(), nil
}

func runWorker(ctx context.Context, w *worker.Worker) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return w.Run(ctx)
}

// RouteToWorker hands a follow-up message to an interactive worker without
// blocking. A worker that idled out no longer accepts follow-ups and is
// reported as unknown, even while its WorkerComplete is still in flight.
func (s *State) RouteToWorker(id core.WorkerID, message string) error {
	s.workersMu.RLock()
	h, ok := s.workers[id]
	s.workersMu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: worker %s", core.ErrUnknownProcess, id)
	}
	return h.worker.Send(message)
}

// closeWorkerInputs lets every interactive worker finish once its queued
// follow-ups are answered.
func (s *State) closeWorkerInputs() {
	s.workersMu.RLock()
	defer s.workersMu.RUnlock()
	for _, h := range s.workers {
		h.worker.CloseInput()
	}
}

// idle reports whether no branch or worker is tracked.
func (s *State) idle() bool {
	return s.ActiveBranches() == 0 && s.ActiveWorkers() == 0
}

// CancelBranch cancels a running branch. It stays tracked until its
// BranchResult arrives.
func (s *State) CancelBranch(id core.BranchID) error {
	s.branchesMu.RLock()
	h, ok := s.branches[id]
	s.branchesMu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: branch %s", core.ErrUnknownProcess, id)
	}
	h.cancel()
	return nil
}

// CancelWorker cancels a running worker. It stays tracked until its
// WorkerComplete arrives.
func (s *State) CancelWorker(id core.WorkerID) error {
	s.workersMu.RLock()
	h, ok := s.workers[id]
	s.workersMu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: worker %s", core.ErrUnknownProcess, id)
	}
	h.cancel()
	return nil
}

// ActiveBranches returns the number of tracked branches.
func (s *State) ActiveBranches() int {
	s.branchesMu.RLock()
	defer s.branchesMu.RUnlock()
	return len(s.branches)
}

// ActiveWorkers returns the number of tracked workers.
func (s *State) ActiveWorkers() int {
	s.workersMu.RLock()
	defer s.workersMu.RUnlock()
	return len(s.workers)
}

// HasBranch reports whether id is tracked.
func (s *State) HasBranch(id core.BranchID) bool {
	s.branchesMu.RLock()
	defer s.branchesMu.RUnlock()
	_, ok := s.branches[id]
	return ok
}

// HasWorker reports whether id is tracked.
func (s *State) HasWorker(id core.WorkerID) bool {
	s.workersMu.RLock()
	defer s.workersMu.RUnlock()
	_, ok := s.workers[id]
	return ok
}

func (s *State) removeBranch(id core.BranchID) bool {
	s.branchesMu.Lock()
	defer s.branchesMu.Unlock()
	if _, ok := s.branches[id]; !ok {
		return false
	}
	delete(s.branches, id)
	return true
}

func (s *State) removeWorker(id core.WorkerID) bool {
	s.workersMu.Lock()
	defer s.workersMu.Unlock()
	if _, ok := s.workers[id]; !ok {
		return false
	}
	delete(s.workers, id)
	return true
}

func (s *State) finishBranch(r core.BranchResult) {
	s.branchesMu.Lock()
	defer s.branchesMu.Unlock()
	if h, ok := s.branches[r.BranchID]; ok {
		h.outcome = &r
	}
}

func (s *State) finishWorker(r core.WorkerComplete) {
	s.workersMu.Lock()
	defer s.workersMu.Unlock()
	if h, ok := s.workers[r.WorkerID]; ok {
		h.outcome = &r
	}
}

// finished returns the terminal events of tracked processes that have
// already ended, branches first.
func (s *State) finished() []core.ProcessEvent {
	var out []core.ProcessEvent

	s.branchesMu.RLock()
	for _, h := range s.branches {
		if h.outcome != nil {
			out = append(out, *h.outcome)
		}
	}
	s.branchesMu.RUnlock()

	s.workersMu.RLock()
	for _, h := range s.workers {
		if h.outcome != nil {
			out = append(out, *h.outcome)
		}
	}
	s.workersMu.RUnlock()

	return out
}

// beginTurn publishes the live transcript for the duration of a turn.
func (s *State) beginTurn(messages *core.Messages) {
	s.turnMu.Lock()
	s.turn = messages
	s.turnMu.Unlock()
}

func (s *State) endTurn() { s.beginTurn(nil) }

// snapshotHistory copies the transcript. During a turn the history lock is
// held by the turn goroutine, which is also where tools run, so the live
// transcript is read directly instead of through the lock. The calls of the
// round in progress have no responses yet and are left out.
func (s *State) snapshotHistory() core.Messages {
	s.turnMu.Lock()
	live := s.turn
	s.turnMu.Unlock()

	if live != nil {
		return live.WithoutPendingCalls()
	}
	return s.History.Snapshot().WithoutPendingCalls()
}

// record appends to the conversation log, if one is configured.
func (s *State) record(conversationID string, kind store.Kind, content string) {
	if s.Deps.Store == nil {
		return
	}
	rec := store.NewRecord(s.ChannelID, conversationID, kind, content)
	if err := s.Deps.Store.Append(s.lifetime, rec); err != nil {
		s.logger.Warn("channel.store.append_failed", "kind", string(kind), "error", err.Error())
	}
}

// shutdown cancels every process spawned by the channel.
func (s *State) shutdown() { s.stop() }
