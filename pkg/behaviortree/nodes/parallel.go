package nodes

import (
	"fmt"

	bt "github.com/dyluth/grove/pkg/behaviortree"
)

// ParallelFinishMode decides what happens to the background branch when the
// main task finishes.
type ParallelFinishMode uint8

const (
	// FinishImmediate aborts the background branch as soon as the main task finishes.
	FinishImmediate ParallelFinishMode = iota
	// FinishDelayed lets the current run of the background branch complete.
	FinishDelayed
)

func (m ParallelFinishMode) String() string {
	if m == FinishDelayed {
		return "delayed"
	}
	return "immediate"
}

// ParseParallelFinishMode resolves a finish mode from its string form.
func ParseParallelFinishMode(s string) (ParallelFinishMode, error) {
	switch s {
	case "", "immediate":
		return FinishImmediate, nil
	case "delayed":
		return FinishDelayed, nil
	}
	return 0, fmt.Errorf("unknown parallel finish mode: %q", s)
}

// BackgroundPolicy decides how the background branch's results are used.
type BackgroundPolicy uint8

const (
	// BackgroundRepeat runs the background branch again each time it
	// finishes while the main task is active.
	BackgroundRepeat BackgroundPolicy = iota
	// BackgroundFailAborts fails the parallel, aborting the main task, when
	// the background branch fails.
	BackgroundFailAborts
)

func (p BackgroundPolicy) String() string {
	if p == BackgroundFailAborts {
		return "fail_aborts"
	}
	return "repeat"
}

// ParseBackgroundPolicy resolves a background policy from its string form.
func ParseBackgroundPolicy(s string) (BackgroundPolicy, error) {
	switch s {
	case "", "repeat":
		return BackgroundRepeat, nil
	case "fail_aborts":
		return BackgroundFailAborts, nil
	}
	return 0, fmt.Errorf("unknown background policy: %q", s)
}

const (
	mainChild       = 0
	backgroundChild = 1
)

// parallel memory layout
const (
	parMainResult = 0
	parMainActive = 1
	parForceBg    = 2
	parBgSearch   = 4
	parMemorySize = 8
)

// SimpleParallel runs a main task (child 0) while repeatedly running a
// background branch (child 1). The parallel finishes with the main task's
// result.
type SimpleParallel struct {
	Finish     ParallelFinishMode
	Background BackgroundPolicy
}

func (p *SimpleParallel) MemorySize() int { return parMemorySize }

func (p *SimpleParallel) ValidateComposite(c *bt.Composite) error {
	if len(c.Children) != 2 {
		return fmt.Errorf("simple parallel needs exactly 2 children, has %d", len(c.Children))
	}
	if c.Children[mainChild].Task == nil {
		return fmt.Errorf("simple parallel main child must be a task")
	}
	return nil
}

func (p *SimpleParallel) CanAbortLowerPriority() bool { return false }
func (p *SimpleParallel) CanAbortSelf() bool          { return true }

// Subtrees cannot be pushed from the main task.
func (p *SimpleParallel) CanPushSubtree(_ *bt.NodeContext, childIndex int) bool {
	return childIndex != mainChild
}

func (p *SimpleParallel) NextChild(ctx *bt.NodeContext, prev int, last bt.NodeResult) int {
	mem := ctx.Memory()
	mainActive := mem.Bool(parMainActive)

	switch {
	case prev == bt.NotInitialized:
		mem.SetUint8(parMainResult, uint8(bt.Failed))
		mem.SetBool(parMainActive, false)
		mem.SetBool(parForceBg, false)
		return mainChild

	case prev == backgroundChild && mainActive && last == bt.Failed && p.Background == BackgroundFailAborts:
		return bt.ReturnToParent

	case (mainActive || mem.Bool(parForceBg)) && !ctx.IsRestartPending():
		// a background branch that finished within this search waits for the
		// next one
		if prev == backgroundChild && mem.Uint32(parBgSearch) == ctx.SearchID() {
			if mainActive {
				return bt.SuspendSearch
			}
			return bt.ReturnToParent
		}
		mem.SetBool(parForceBg, false)
		mem.SetUint32(parBgSearch, ctx.SearchID())
		return backgroundChild
	}
	return bt.ReturnToParent
}

func (p *SimpleParallel) OnChildExecution(ctx *bt.NodeContext, childIndex int, result bt.NodeResult) {
	if childIndex != mainChild {
		return
	}
	comp := ctx.Node().(*bt.Composite)
	main := comp.Children[mainChild].Task
	mem := ctx.Memory()

	switch {
	case result == bt.InProgress:
		// a task being aborted cannot become parallel; the abort's search
		// takes over
		if ctx.TaskStatusOf(main) != bt.TaskActive {
			return
		}
		mem.SetUint8(parMainResult, uint8(result))
		ctx.RegisterParallelTask(main)
		mem.SetBool(parMainActive, true)
		mem.SetBool(parForceBg, false)
		ctx.RequestExecutionOn(main, -1, bt.Succeeded)

	case mem.Bool(parMainActive):
		mem.SetBool(parMainActive, false)
		result = ctx.NotifyDecoratorsOnDeactivation(mainChild, result)
		mem.SetUint8(parMainResult, uint8(result))
		ctx.UnregisterParallelTask(main)
		if result == bt.Aborted {
			return
		}
		// a delayed parallel idling without a background task must be woken
		if p.Finish == FinishImmediate || ctx.IsActiveNode() {
			ctx.RequestExecutionOn(main, mainChild, result)
		}

	default:
		mem.SetUint8(parMainResult, uint8(result))
		if result == bt.Succeeded && p.Finish == FinishDelayed {
			mem.SetBool(parForceBg, true)
		}
	}
}

func (p *SimpleParallel) CanNotifyDecoratorsOnDeactivation(ctx *bt.NodeContext, childIndex int, _ bt.NodeResult) bool {
	return childIndex != mainChild || !ctx.Memory().Bool(parMainActive)
}

func (p *SimpleParallel) OnNodeDeactivation(ctx *bt.NodeContext, result *bt.NodeResult) {
	mem := ctx.Memory()
	comp := ctx.Node().(*bt.Composite)

	if !mem.Bool(parMainActive) && *result != bt.Aborted {
		*result = bt.NodeResult(mem.Uint8(parMainResult))
	}
	ctx.QueueParallelTaskRemoval(comp.Children[mainChild].Task)
}

func (p *SimpleParallel) DescribeRuntime(ctx *bt.NodeContext) string {
	mem := ctx.Memory()
	if mem.Bool(parMainActive) {
		return "main task running"
	}
	return fmt.Sprintf("main task %s", bt.NodeResult(mem.Uint8(parMainResult)))
}
