package behaviortree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dyluth/grove/pkg/blackboard"
)

// Minimal strategies so the scheduler can be tested without the nodes package.

type selectorLogic struct{}

func (selectorLogic) NextChild(ctx *NodeContext, prev int, last NodeResult) int {
	n := len(ctx.Node().(*Composite).Children)
	switch {
	case prev == NotInitialized:
		return 0
	case (last == Failed || last == Optional) && prev+1 < n:
		return prev + 1
	}
	return ReturnToParent
}

type sequenceLogic struct{}

func (sequenceLogic) NextChild(ctx *NodeContext, prev int, last NodeResult) int {
	n := len(ctx.Node().(*Composite).Children)
	switch {
	case prev == NotInitialized:
		return 0
	case (last == Succeeded || last == Optional) && prev+1 < n:
		return prev + 1
	}
	return ReturnToParent
}

func (sequenceLogic) CanAbortLowerPriority() bool { return false }
func (sequenceLogic) CanAbortSelf() bool          { return true }

// scriptTask returns result from ExecuteTask and records what happened to it.
type scriptTask struct {
	result      NodeResult
	latentAbort bool
	onExecute   func(ctx *NodeContext)

	executions int
	aborts     int
	finished   []NodeResult
	ref        TaskRef
}

func (t *scriptTask) ExecuteTask(ctx *NodeContext) NodeResult {
	t.executions++
	t.ref = ctx.TaskRef()
	if t.onExecute != nil {
		t.onExecute(ctx)
	}
	return t.result
}

func (t *scriptTask) AbortTask(ctx *NodeContext) NodeResult {
	t.aborts++
	if t.latentAbort {
		return InProgress
	}
	return Aborted
}

func (t *scriptTask) OnTaskFinished(_ *NodeContext, result NodeResult) {
	t.finished = append(t.finished, result)
}

// pushTask pushes a library tree, like a RunBehavior task.
type pushTask struct {
	subtree string
	err     error
}

func (t *pushTask) SubtreeName() string { return t.subtree }

func (t *pushTask) ExecuteTask(ctx *NodeContext) NodeResult {
	if t.err = ctx.PushSubtree(t.subtree); t.err != nil {
		return Failed
	}
	return InProgress
}

// messageTask waits for a message using the scheduler's default handling.
type messageTask struct {
	msgType string
}

func (t *messageTask) ExecuteTask(ctx *NodeContext) NodeResult {
	ctx.RegisterMessageObserver(t.msgType)
	return InProgress
}

// boolKeyCondition passes while a bool key is true and observes it while relevant.
type boolKeyCondition struct {
	key string
	id  blackboard.KeyID
}

func (d *boolKeyCondition) InitializeFromTree(_ Node, tree *Tree) error {
	d.id = tree.Blackboard.KeyID(d.key)
	return nil
}

func (d *boolKeyCondition) CalculateRawCondition(ctx *NodeContext) bool {
	v, _ := ctx.Blackboard().GetValueAsBool(d.id)
	return v
}

func (d *boolKeyCondition) OnBecomeRelevant(ctx *NodeContext) {
	ctx.ObserveKey(d.id, func(ctx *NodeContext) {
		ctx.ConditionalFlowAbort(false)
	})
}

func (d *boolKeyCondition) OnCeaseRelevant(*NodeContext) {}

type constCondition bool

func (c constCondition) CalculateRawCondition(*NodeContext) bool { return bool(c) }

type countingService struct {
	ticks int
}

func (s *countingService) TickNode(*NodeContext, float64) { s.ticks++ }

// sizedTask reserves memory without doing anything with it.
type sizedTask struct {
	size int
}

func (t sizedTask) MemorySize() int                     { return t.size }
func (t sizedTask) ExecuteTask(*NodeContext) NodeResult { return Succeeded }

type traceRecorder struct {
	events []TraceEvent
}

func (r *traceRecorder) OnExecutionEvent(ev TraceEvent) {
	r.events = append(r.events, ev)
}

func (r *traceRecorder) count(kind TraceKind, node string) int {
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind && (node == "" || ev.Node == node) {
			n++
		}
	}
	return n
}

func newTestBlackboard(t *testing.T) (*blackboard.Asset, *blackboard.Instance) {
	t.Helper()
	asset := blackboard.NewAsset("Agent", nil).
		AddKey("Alarm", blackboard.KeyType{Kind: blackboard.KindBool}).
		AddKey("Go", blackboard.KeyType{Kind: blackboard.KindBool}).
		AddKey("Ammo", blackboard.KeyType{Kind: blackboard.KindInt})
	require.NoError(t, asset.Finalize())

	bb, err := blackboard.NewInstance(asset)
	require.NoError(t, err)
	return asset, bb
}

func mustInit(t *testing.T, tree *Tree) *Tree {
	t.Helper()
	require.NoError(t, tree.Initialize())
	return tree
}

func setBool(t *testing.T, bb *blackboard.Instance, key string, v bool) {
	t.Helper()
	require.NoError(t, bb.SetValueAsBoolByName(key, v))
}
