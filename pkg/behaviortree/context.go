package behaviortree

import (
	"log"
	"math/rand"

	"github.com/dyluth/grove/pkg/blackboard"
)

// NodeContext is handed to every node callback. It binds a node to the
// instance it runs in and exposes the scheduler operations nodes may use.
// A context is only valid for the duration of the callback; do not keep it.
type NodeContext struct {
	s        *Scheduler
	node     Node
	instance int
}

func (s *Scheduler) newContext(n Node, instanceIdx int) *NodeContext {
	return &NodeContext{s: s, node: n, instance: instanceIdx}
}

// Scheduler returns the scheduler running the node.
func (c *NodeContext) Scheduler() *Scheduler { return c.s }

// Node returns the node the callback belongs to.
func (c *NodeContext) Node() Node { return c.node }

// InstanceIndex returns the index of the node's instance on the stack.
func (c *NodeContext) InstanceIndex() int { return c.instance }

// Blackboard returns the scheduler's blackboard.
func (c *NodeContext) Blackboard() *blackboard.Instance { return c.s.bb }

// WorldTime returns the scheduler clock in seconds.
func (c *NodeContext) WorldTime() float64 { return c.s.worldTime }

// Rand returns the scheduler's random source.
func (c *NodeContext) Rand() *rand.Rand { return c.s.rng }

// SearchID identifies the current search pass.
func (c *NodeContext) SearchID() uint32 { return c.s.search.searchID }

// IsRestartPending reports whether the pending request restarts a branch.
func (c *NodeContext) IsRestartPending() bool { return c.s.IsRestartPending() }

// Memory returns the node's own memory, after any scheduler header.
func (c *NodeContext) Memory() Memory {
	inst := c.s.instanceAt(c.instance)
	if inst == nil {
		return nil
	}
	return inst.userMemory(c.node)
}

// Logf writes a node-scoped log line.
func (c *NodeContext) Logf(format string, args ...any) {
	log.Printf("[%s] "+format, append([]any{c.node.Name()}, args...)...)
}

// IsActiveNode reports whether the node is its instance's active node.
func (c *NodeContext) IsActiveNode() bool {
	inst := c.s.instanceAt(c.instance)
	return inst != nil && inst.activeNode == c.node
}

// SetNextTickTime delays the next tick of an aux node by seconds.
func (c *NodeContext) SetNextTickTime(seconds float64) {
	if !isAux(c.node) {
		return
	}
	if inst := c.s.instanceAt(c.instance); inst != nil {
		inst.nodeMemory(c.node).setNextTickRemaining(float32(seconds))
	}
}

// NextTickTime returns the time left until an aux node's next tick.
func (c *NodeContext) NextTickTime() float64 {
	if !isAux(c.node) {
		return 0
	}
	if inst := c.s.instanceAt(c.instance); inst != nil {
		return float64(inst.nodeMemory(c.node).nextTickRemaining())
	}
	return 0
}

// ObserveKey calls fn whenever key changes, for as long as the aux node stays
// relevant. Observers are dropped automatically when it ceases to be relevant.
func (c *NodeContext) ObserveKey(key blackboard.KeyID, fn func(ctx *NodeContext)) {
	if c.s.bb == nil || key == blackboard.InvalidKey {
		return
	}
	node, instanceIdx, s := c.node, c.instance, c.s
	s.bb.RegisterObserver(key, auxOwner{node: node, instance: instanceIdx}, func(_ *blackboard.Instance, _ blackboard.KeyID) blackboard.NotifyResult {
		if !s.IsAuxNodeActive(node, instanceIdx) {
			return blackboard.RemoveObserver
		}
		fn(s.newContext(node, instanceIdx))
		return blackboard.ContinueObserving
	})
}

// Decorator helpers

// CanExecute evaluates a decorator's condition, inversion applied.
func (c *NodeContext) CanExecute() bool {
	d, ok := c.node.(*Decorator)
	if !ok {
		return true
	}
	return d.canExecute(c)
}

// RequestExecution asks the scheduler to react to a change of the decorator's
// condition according to its abort mode.
func (c *NodeContext) RequestExecution() {
	if d, ok := c.node.(*Decorator); ok {
		c.s.RequestExecutionFromDecorator(d, c.instance)
	}
}

// ConditionalFlowAbort requests execution only when the decorator's condition
// disagrees with whether its branch is running. With alwaysRequestWhenPassing
// a passing condition on the running branch restarts that branch.
func (c *NodeContext) ConditionalFlowAbort(alwaysRequestWhenPassing bool) {
	d, ok := c.node.(*Decorator)
	if !ok || d.AbortMode == AbortNone {
		return
	}
	if c.s.instanceAt(c.instance) == nil {
		return
	}

	executing := c.s.IsExecutingBranch(d, c.instance, d.ChildIndex())
	pass := d.canExecute(c)

	switch {
	case executing != pass:
		c.s.RequestExecutionFromDecorator(d, c.instance)
	case executing && pass && (alwaysRequestWhenPassing || c.s.IsAbortPending()):
		c.s.RequestExecution(d.ParentNode(), c.instance, d, d.ChildIndex(), Aborted)
	}
}

// ParentCurrentChild returns the child the node's parent composite is running.
func (c *NodeContext) ParentCurrentChild() int {
	parent := c.node.ParentNode()
	inst := c.s.instanceAt(c.instance)
	if parent == nil || inst == nil {
		return NotInitialized
	}
	return inst.nodeMemory(parent).currentChild()
}

// SetParentChildOverride makes the parent composite pick child i next.
func (c *NodeContext) SetParentChildOverride(i int) {
	parent := c.node.ParentNode()
	inst := c.s.instanceAt(c.instance)
	if parent == nil || inst == nil {
		return
	}
	inst.nodeMemory(parent).setOverrideChild(i)
}

// Composite helpers

// CurrentChild returns the child a composite is running.
func (c *NodeContext) CurrentChild() int {
	inst := c.s.instanceAt(c.instance)
	if inst == nil {
		return NotInitialized
	}
	if _, ok := c.node.(*Composite); !ok {
		return NotInitialized
	}
	return inst.nodeMemory(c.node).currentChild()
}

// RequestExecutionOn asks for a search from this composite, as if requestedBy
// (a child or descendant) finished with result.
func (c *NodeContext) RequestExecutionOn(requestedBy Node, childIndex int, result NodeResult) {
	if comp, ok := c.node.(*Composite); ok {
		c.s.RequestExecution(comp, c.instance, requestedBy, childIndex, result)
	}
}

// RegisterParallelTask keeps t running while the search continues elsewhere.
func (c *NodeContext) RegisterParallelTask(t *Task) {
	c.s.RegisterParallelTask(t)
}

// UnregisterParallelTask stops tracking t as a parallel task.
func (c *NodeContext) UnregisterParallelTask(t *Task) {
	c.s.UnregisterParallelTask(t, c.instance)
}

// TaskStatusOf returns the status of a task in this instance.
func (c *NodeContext) TaskStatusOf(t *Task) TaskStatus {
	return c.s.TaskStatus(t, c.instance)
}

// Task helpers

// TaskRef identifies the current execution of the task.
func (c *NodeContext) TaskRef() TaskRef {
	ref := TaskRef{InstanceIndex: c.instance, ExecutionIndex: c.node.ExecutionIndex()}
	if inst := c.s.instanceAt(c.instance); inst != nil {
		ref.Serial = inst.serials[c.node.ExecutionIndex()]
	}
	return ref
}

// TaskStatus returns the status of the task.
func (c *NodeContext) TaskStatus() TaskStatus {
	if t, ok := c.node.(*Task); ok {
		return c.s.TaskStatus(t, c.instance)
	}
	return TaskInactive
}

// FinishLatentTask reports the result of a task that returned InProgress.
// The completion is applied at the next tick.
func (c *NodeContext) FinishLatentTask(result NodeResult) {
	c.s.NotifyTaskFinished(c.TaskRef(), result)
}

// FinishLatentAbort confirms a latent abort.
func (c *NodeContext) FinishLatentAbort() {
	c.s.NotifyTaskFinished(c.TaskRef(), Aborted)
}

// RegisterMessageObserver delivers messages of msgType to the task until it finishes.
func (c *NodeContext) RegisterMessageObserver(msgType string) {
	c.s.registerMessageObserver(c.node, c.instance, msgType, 0, false)
}

// RegisterMessageObserverWithID delivers messages of msgType carrying
// requestID to the task until it finishes.
func (c *NodeContext) RegisterMessageObserverWithID(msgType string, requestID uint32) {
	c.s.registerMessageObserver(c.node, c.instance, msgType, requestID, true)
}

// PushSubtree starts the named library tree on top of the instance stack.
func (c *NodeContext) PushSubtree(name string) error {
	t, ok := c.s.opts.Library.Get(name)
	if !ok {
		return ErrUnknownSubtree
	}
	return c.s.PushInstance(t)
}

type auxOwner struct {
	node     Node
	instance int
}

// QueueParallelTaskRemoval aborts parallel task t once the current search
// applies its updates. Composites call it while being deactivated.
func (c *NodeContext) QueueParallelTaskRemoval(t *Task) {
	if t == nil || c.s.instanceAt(c.instance) == nil {
		return
	}
	c.s.addUniqueUpdate(nodeUpdate{task: t, instance: c.instance, mode: updateRemove})
}

// NotifyDecoratorsOnDeactivation tells the decorators of child i that the
// child finished outside of a search and returns the result they leave.
// Active self-aborting decorators of the child stop being relevant.
func (c *NodeContext) NotifyDecoratorsOnDeactivation(i int, result NodeResult) NodeResult {
	comp, ok := c.node.(*Composite)
	if !ok || i < 0 || i >= len(comp.Children) || c.s.instanceAt(c.instance) == nil {
		return result
	}
	for _, d := range comp.Children[i].Decorators {
		dctx := c.s.newContext(d, c.instance)
		if result != Aborted {
			if rp, ok := d.Logic.(ResultProcessor); ok {
				rp.OnNodeProcessed(dctx, &result)
			}
		}
		if fo, ok := d.Logic.(DecoratorFlowObserver); ok {
			fo.OnNodeDeactivation(dctx, result)
		}
		if d.AbortMode == AbortSelf && c.s.IsAuxNodeActive(d, c.instance) {
			c.s.deactivateAux(d, c.instance)
		}
	}
	return result
}
