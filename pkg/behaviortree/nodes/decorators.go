package nodes

import (
	"fmt"
	"math"

	bt "github.com/dyluth/grove/pkg/behaviortree"
)

// Cooldown locks its branch for Duration seconds of scheduler time after the
// branch finishes. With an abort mode it polls while relevant and requests
// execution once the lock expires.
type Cooldown struct {
	Duration float64
}

const (
	cooldownLastUse   = 0
	cooldownRequested = 8
)

func (d *Cooldown) MemorySize() int { return 16 }

func (d *Cooldown) InitializeMemory(mem bt.Memory) {
	mem.SetFloat64(cooldownLastUse, -math.MaxFloat64)
}

func (d *Cooldown) CalculateRawCondition(ctx *bt.NodeContext) bool {
	return ctx.WorldTime()-d.Duration >= ctx.Memory().Float64(cooldownLastUse)
}

func (d *Cooldown) OnNodeActivation(*bt.NodeContext) {}

func (d *Cooldown) OnNodeDeactivation(ctx *bt.NodeContext, _ bt.NodeResult) {
	mem := ctx.Memory()
	mem.SetFloat64(cooldownLastUse, ctx.WorldTime())
	mem.SetBool(cooldownRequested, false)
}

func (d *Cooldown) TickNode(ctx *bt.NodeContext, _ float64) {
	mem := ctx.Memory()
	if mem.Bool(cooldownRequested) {
		return
	}
	if d.CalculateRawCondition(ctx) {
		mem.SetBool(cooldownRequested, true)
		ctx.RequestExecution()
	}
}

func (d *Cooldown) DescribeRuntime(ctx *bt.NodeContext) string {
	left := d.Duration - (ctx.WorldTime() - ctx.Memory().Float64(cooldownLastUse))
	if left <= 0 {
		return "ready"
	}
	return fmt.Sprintf("%.2fs left", left)
}

// TimeLimit fails its branch when it runs longer than Limit seconds. It only
// supports the self abort mode.
type TimeLimit struct {
	Limit float64
}

func (d *TimeLimit) MemorySize() int { return 1 }

func (d *TimeLimit) AllowsAbortMode(mode bt.FlowAbortMode) bool {
	return mode == bt.AbortSelf
}

func (d *TimeLimit) CalculateRawCondition(ctx *bt.NodeContext) bool {
	return !ctx.Memory().Bool(0)
}

func (d *TimeLimit) OnBecomeRelevant(ctx *bt.NodeContext) {
	ctx.Memory().SetBool(0, false)
	ctx.SetNextTickTime(d.Limit)
}

func (d *TimeLimit) OnCeaseRelevant(ctx *bt.NodeContext) {
	ctx.Memory().SetBool(0, false)
}

func (d *TimeLimit) TickNode(ctx *bt.NodeContext, _ float64) {
	mem := ctx.Memory()
	if mem.Bool(0) {
		return
	}
	mem.SetBool(0, true)
	ctx.RequestExecution()
}

func (d *TimeLimit) DescribeRuntime(ctx *bt.NodeContext) string {
	if ctx.Memory().Bool(0) {
		return "elapsed"
	}
	return fmt.Sprintf("%.2fs left", ctx.NextTickTime())
}

// Loop runs its branch Count times, or forever when Infinite is set. An
// infinite loop re-runs the branch at most once per search, and stops after
// Timeout seconds when Timeout is positive.
type Loop struct {
	Count    int
	Infinite bool
	Timeout  float64
}

const (
	loopRemaining = 0
	loopSearchID  = 4
	loopStarted   = 8
)

func (d *Loop) MemorySize() int { return 16 }

func (d *Loop) AllowsAbortMode(mode bt.FlowAbortMode) bool {
	return mode == bt.AbortNone
}

func (d *Loop) CalculateRawCondition(*bt.NodeContext) bool { return true }

func (d *Loop) OnNodeActivation(ctx *bt.NodeContext) {
	mem := ctx.Memory()
	if ctx.ParentCurrentChild() != ctx.Node().ChildIndex() {
		mem.SetInt32(loopRemaining, int32(d.Count))
		mem.SetFloat64(loopStarted, ctx.WorldTime())
	}

	again := false
	if d.Infinite {
		if mem.Uint32(loopSearchID) != ctx.SearchID() {
			again = d.Timeout <= 0 || mem.Float64(loopStarted)+d.Timeout > ctx.WorldTime()
		}
		mem.SetUint32(loopSearchID, ctx.SearchID())
	} else {
		remaining := mem.Int32(loopRemaining)
		if remaining > 0 {
			remaining--
			mem.SetInt32(loopRemaining, remaining)
		}
		again = remaining > 0
	}

	if again {
		ctx.SetParentChildOverride(ctx.Node().ChildIndex())
	}
}

func (d *Loop) OnNodeDeactivation(*bt.NodeContext, bt.NodeResult) {}

func (d *Loop) DescribeRuntime(ctx *bt.NodeContext) string {
	if d.Infinite {
		return "infinite"
	}
	return fmt.Sprintf("%d loops left", ctx.Memory().Int32(loopRemaining))
}

// ForceResult replaces the result of its branch.
type ForceResult struct {
	Result bt.NodeResult
}

func (d *ForceResult) CalculateRawCondition(*bt.NodeContext) bool { return true }

func (d *ForceResult) AllowsAbortMode(mode bt.FlowAbortMode) bool {
	return mode == bt.AbortNone
}

func (d *ForceResult) OnNodeProcessed(_ *bt.NodeContext, result *bt.NodeResult) {
	*result = d.Result
}
