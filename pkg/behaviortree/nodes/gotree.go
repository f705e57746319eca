package nodes

import (
	gobt "github.com/joeycumines/go-behaviortree"

	bt "github.com/dyluth/grove/pkg/behaviortree"
)

// GoTree runs a github.com/joeycumines/go-behaviortree node as a task. The
// node is ticked once when the task starts and then once per scheduler tick
// until it stops returning Running. A tick error fails the task.
//
// go-behaviortree nodes keep their own state, so a GoTree node should not be
// shared by trees that may run at the same time.
type GoTree struct {
	Handle string
	Node   gobt.Node
}

func (t *GoTree) MemorySize() int { return 1 }

func (t *GoTree) ExecuteTask(ctx *bt.NodeContext) bt.NodeResult {
	result := t.tick(ctx)
	ctx.Memory().SetBool(0, result == bt.InProgress)
	return result
}

func (t *GoTree) TickTask(ctx *bt.NodeContext, _ float64) {
	mem := ctx.Memory()
	if !mem.Bool(0) || ctx.TaskStatus() != bt.TaskActive {
		return
	}
	if result := t.tick(ctx); result != bt.InProgress {
		mem.SetBool(0, false)
		ctx.FinishLatentTask(result)
	}
}

func (t *GoTree) AbortTask(ctx *bt.NodeContext) bt.NodeResult {
	ctx.Memory().SetBool(0, false)
	return bt.Aborted
}

func (t *GoTree) tick(ctx *bt.NodeContext) bt.NodeResult {
	status, err := t.Node.Tick()
	if err != nil {
		ctx.Logf("go tree '%s' failed: %v", t.Handle, err)
		return bt.Failed
	}
	switch status {
	case gobt.Running:
		return bt.InProgress
	case gobt.Success:
		return bt.Succeeded
	}
	return bt.Failed
}
