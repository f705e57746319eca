package behaviortree

import (
	"fmt"
	"log"
	"math/rand"
	"sync"

	"github.com/dyluth/grove/pkg/blackboard"
)

// DefaultMaxSearchesPerTick bounds how many execution requests one Tick
// processes. Synchronous tasks chain requests, so this also bounds how many
// tasks can start and finish within a tick.
const DefaultMaxSearchesPerTick = 4

// Options configures a Scheduler.
type Options struct {
	// Library resolves subtrees pushed by RunBehavior-style tasks.
	Library *Library
	// Trace receives execution events. Nil disables tracing.
	Trace TraceSink
	// MaxSearchesPerTick defaults to DefaultMaxSearchesPerTick.
	MaxSearchesPerTick int
	// Rand drives service interval deviation. Defaults to a seeded source.
	Rand *rand.Rand
	// Verbose logs scheduler decisions.
	Verbose bool
}

type executionRequest struct {
	executeNode     *Composite
	executeInstance int
	searchStart     NodeIndex
	continueWith    NodeResult
	tryNextChild    bool
}

func (r *executionRequest) reset() {
	*r = executionRequest{searchStart: unsetNodeIndex, continueWith: Succeeded}
}

// pendingExecution is the outcome of a search held back until every
// aborting task has confirmed its abort.
type pendingExecution struct {
	set        bool
	task       *Task
	treeResult NodeResult
}

// Scheduler runs behavior trees for one agent.
//
// A scheduler is driven by Tick and is not safe for concurrent use, with two
// exceptions: NotifyTaskFinished and SendMessage may be called from any
// goroutine. Their effects are applied at the start of the next Tick.
type Scheduler struct {
	bb   *blackboard.Instance
	opts Options
	rng  *rand.Rand

	instances []*treeInstance
	known     []knownInstance
	activeIdx int

	search              searchData
	request             executionRequest
	pending             pendingExecution
	requestedFlowUpdate bool
	waitingForAborting  bool

	running bool
	paused  bool
	loop    bool

	worldTime float64
	serial    uint64

	messageObservers []messageObserver

	mu          sync.Mutex
	completions []completion
	messages    []Message
}

// New creates a scheduler bound to a blackboard instance. bb may be nil for
// trees that use no keys.
func New(bb *blackboard.Instance, opts Options) *Scheduler {
	if opts.MaxSearchesPerTick <= 0 {
		opts.MaxSearchesPerTick = DefaultMaxSearchesPerTick
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	s := &Scheduler{bb: bb, opts: opts, rng: rng}
	s.request.reset()
	s.search.reset()
	return s
}

// Blackboard returns the scheduler's blackboard.
func (s *Scheduler) Blackboard() *blackboard.Instance { return s.bb }

// Library returns the library subtrees are resolved from.
func (s *Scheduler) Library() *Library { return s.opts.Library }

// WorldTime returns the sum of all tick deltas, in seconds.
func (s *Scheduler) WorldTime() float64 { return s.worldTime }

// IsRunning reports whether a tree is running.
func (s *Scheduler) IsRunning() bool { return s.running }

// IsPaused reports whether logic is paused.
func (s *Scheduler) IsPaused() bool { return s.paused }

// TreeHasBeenStarted reports whether a tree is running with at least one instance.
func (s *Scheduler) TreeHasBeenStarted() bool {
	return s.running && len(s.instances) > 0
}

// InstanceCount returns the depth of the instance stack.
func (s *Scheduler) InstanceCount() int { return len(s.instances) }

// ActiveInstanceIndex returns the index of the instance being executed.
func (s *Scheduler) ActiveInstanceIndex() int { return s.activeIdx }

// RootTree returns the tree at the bottom of the stack, or nil.
func (s *Scheduler) RootTree() *Tree {
	if len(s.instances) == 0 {
		return nil
	}
	return s.instances[0].tree
}

// ActiveTree returns the tree of the active instance, or nil.
func (s *Scheduler) ActiveTree() *Tree {
	if inst := s.instanceAt(s.activeIdx); inst != nil {
		return inst.tree
	}
	return nil
}

// ActiveNode returns the active node of the active instance, or nil.
func (s *Scheduler) ActiveNode() Node {
	if inst := s.instanceAt(s.activeIdx); inst != nil {
		return inst.activeNode
	}
	return nil
}

// ActiveNodeType returns what the active node is doing.
func (s *Scheduler) ActiveNodeType() ActiveNodeType {
	if inst := s.instanceAt(s.activeIdx); inst != nil {
		return inst.activeType
	}
	return ActiveComposite
}

// IsRestartPending reports whether the pending request restarts from a node
// rather than continuing after one.
func (s *Scheduler) IsRestartPending() bool {
	return s.request.executeNode != nil && !s.request.tryNextChild
}

// IsExecutionPending reports whether a task chosen by the last search waits
// for aborting tasks before it starts.
func (s *Scheduler) IsExecutionPending() bool {
	return s.pending.set
}

// IsAbortPending reports whether the scheduler waits for latent aborts.
func (s *Scheduler) IsAbortPending() bool {
	return s.waitingForAborting
}

// StartTree starts tree from its root. Starting the tree that is already
// running does nothing; any other running tree is stopped first.
func (s *Scheduler) StartTree(tree *Tree, mode ExecutionMode) error {
	if tree == nil {
		return fmt.Errorf("tree cannot be nil")
	}
	if !tree.IsInitialized() {
		return fmt.Errorf("tree '%s': %w", tree.Name, ErrNotInitialized)
	}
	if s.TreeHasBeenStarted() && s.instances[0].tree == tree {
		return nil
	}

	s.StopTree()
	s.loop = mode == Looped
	s.running = true
	if err := s.PushInstance(tree); err != nil {
		s.running = false
		return err
	}
	s.logf("started tree '%s' (%s)", tree.Name, mode)
	s.emit(TraceTreeStarted, 0, tree.Root, InProgress, mode.String())
	return nil
}

// StopTree stops the running tree and drops all instances. Active tasks are
// aborted without waiting for latent aborts.
func (s *Scheduler) StopTree() {
	if len(s.instances) > 0 {
		if inst := s.instances[s.activeIdx]; inst.activeType == ActiveTask {
			if task, ok := inst.activeNode.(*Task); ok {
				s.abortTaskLogic(task, s.activeIdx)
			}
		}
		for i := len(s.instances) - 1; i >= 0; i-- {
			s.cleanupInstance(i)
		}
		s.emit(TraceTreeStopped, 0, s.instances[0].root, Aborted, "")
		s.logf("stopped tree '%s'", s.instances[0].tree.Name)
	}

	s.instances = nil
	s.known = nil
	s.messageObservers = nil
	s.request.reset()
	s.search.reset()
	s.pending = pendingExecution{}
	s.activeIdx = 0
	s.requestedFlowUpdate = false
	s.waitingForAborting = false
	s.running = false

	s.mu.Lock()
	s.completions = nil
	s.messages = nil
	s.mu.Unlock()
}

// RestartTree aborts whatever runs and restarts the root.
func (s *Scheduler) RestartTree() {
	if len(s.instances) == 0 {
		return
	}
	root := s.instances[0].root
	s.RequestExecution(root, 0, root, -1, Aborted)
}

// PauseLogic freezes the scheduler and queues blackboard notifications.
func (s *Scheduler) PauseLogic() {
	if s.paused {
		return
	}
	s.paused = true
	if s.bb != nil {
		s.bb.PauseUpdates()
	}
	s.logf("logic paused")
}

// ResumeLogic undoes PauseLogic and reschedules a request held while paused.
func (s *Scheduler) ResumeLogic() {
	if !s.paused {
		return
	}
	s.paused = false
	if s.bb != nil {
		s.bb.ResumeUpdates()
	}
	if s.request.executeNode != nil {
		s.scheduleExecutionUpdate()
	}
	s.logf("logic resumed")
}

// Tick advances the scheduler by dt seconds.
//
// It applies queued messages and completions, processes pending execution
// requests, then ticks active aux nodes, parallel tasks and the active task.
func (s *Scheduler) Tick(dt float64) {
	if !s.running || len(s.instances) == 0 || s.paused {
		return
	}
	s.worldTime += dt

	s.deliverMessages()
	s.drainCompletions()

	for i := 0; i < s.opts.MaxSearchesPerTick && s.requestedFlowUpdate; i++ {
		s.processExecutionRequest()
	}
	if !s.running || len(s.instances) == 0 {
		return
	}

	for idx := 0; idx < len(s.instances); idx++ {
		inst := s.instances[idx]
		for _, n := range append([]Node(nil), inst.activeAux...) {
			if idx < len(s.instances) && s.instances[idx] == inst && inst.hasActiveAux(n) {
				s.tickAux(n, idx, dt)
			}
		}
		for _, p := range append([]parallelTask(nil), inst.parallelTasks...) {
			if p.status != TaskInactive {
				s.tickTask(p.task, idx, dt)
			}
		}
	}

	if inst := s.instanceAt(s.activeIdx); inst != nil {
		if task, ok := inst.activeNode.(*Task); ok && (inst.activeType == ActiveTask || inst.activeType == AbortingTask) {
			s.tickTask(task, s.activeIdx, dt)
		}
	}
}

func (s *Scheduler) tickTask(task *Task, idx int, dt float64) {
	if tt, ok := task.Logic.(TaskTicker); ok {
		tt.TickTask(s.newContext(task, idx), dt)
	}
}

func (s *Scheduler) scheduleExecutionUpdate() {
	s.requestedFlowUpdate = true
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.opts.Verbose {
		log.Printf("[Scheduler] "+format, args...)
	}
}
