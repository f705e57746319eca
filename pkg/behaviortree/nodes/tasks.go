package nodes

import (
	"fmt"
	"regexp"

	bt "github.com/dyluth/grove/pkg/behaviortree"
	"github.com/dyluth/grove/pkg/blackboard"
)

// Wait finishes with Succeeded after Duration seconds, randomized by up to
// Deviation either way. It aborts instantly.
type Wait struct {
	Duration  float64
	Deviation float64
}

func (t *Wait) MemorySize() int { return 4 }

func (t *Wait) ExecuteTask(ctx *bt.NodeContext) bt.NodeResult {
	remaining := t.Duration
	if t.Deviation > 0 {
		remaining += (ctx.Rand().Float64()*2 - 1) * t.Deviation
	}
	if remaining <= 0 {
		return bt.Succeeded
	}
	ctx.Memory().SetFloat32(0, float32(remaining))
	return bt.InProgress
}

func (t *Wait) TickTask(ctx *bt.NodeContext, dt float64) {
	if ctx.TaskStatus() != bt.TaskActive {
		return
	}
	mem := ctx.Memory()
	before := mem.Float32(0)
	after := before - float32(dt)
	mem.SetFloat32(0, after)
	if before > 0 && after <= 0 {
		ctx.FinishLatentTask(bt.Succeeded)
	}
}

func (t *Wait) DescribeRuntime(ctx *bt.NodeContext) string {
	if ctx.TaskStatus() != bt.TaskActive {
		return ""
	}
	return fmt.Sprintf("%.2fs left", ctx.Memory().Float32(0))
}

// RunBehavior pushes a library tree as a subtree. The subtree's result is
// handed to the task's parent when the subtree finishes.
type RunBehavior struct {
	Subtree string
}

func (t *RunBehavior) SubtreeName() string { return t.Subtree }

func (t *RunBehavior) ExecuteTask(ctx *bt.NodeContext) bt.NodeResult {
	if err := ctx.PushSubtree(t.Subtree); err != nil {
		ctx.Logf("failed to run subtree '%s': %v", t.Subtree, err)
		return bt.Failed
	}
	return bt.InProgress
}

// SetValue writes a literal to a key using its text form.
type SetValue struct {
	Key   string
	Value string

	keyID blackboard.KeyID
}

func (t *SetValue) InitializeFromTree(_ bt.Node, tree *bt.Tree) error {
	id, err := resolveKey(tree, t.Key)
	if err != nil {
		return err
	}
	t.keyID = id
	return nil
}

func (t *SetValue) ExecuteTask(ctx *bt.NodeContext) bt.NodeResult {
	bb := ctx.Blackboard()
	if bb == nil {
		return bt.Failed
	}
	if err := bb.SetValueFromString(t.keyID, t.Value); err != nil {
		ctx.Logf("failed to set '%s': %v", t.Key, err)
		return bt.Failed
	}
	return bt.Succeeded
}

// Result finishes instantly with a fixed result.
type Result struct {
	Result bt.NodeResult
}

func (t *Result) ExecuteTask(*bt.NodeContext) bt.NodeResult {
	if t.Result == bt.InProgress || t.Result == bt.Aborted {
		return bt.Failed
	}
	return t.Result
}

// WaitForMessage waits for a message of Type and finishes with its success
// flag. With MatchID only messages carrying RequestID count. A positive
// Timeout fails the task when no message arrives in time. PayloadKey, when
// set, receives the message payload.
type WaitForMessage struct {
	Type       string
	RequestID  uint32
	MatchID    bool
	Timeout    float64
	PayloadKey string

	payloadID blackboard.KeyID
}

const (
	waitMsgRemaining = 0
	waitMsgFinished  = 4
)

func (t *WaitForMessage) MemorySize() int { return 8 }

func (t *WaitForMessage) InitializeFromTree(_ bt.Node, tree *bt.Tree) error {
	if t.Type == "" {
		return fmt.Errorf("message type is required")
	}
	t.payloadID = blackboard.InvalidKey
	if t.PayloadKey == "" {
		return nil
	}
	id, err := resolveKey(tree, t.PayloadKey)
	if err != nil {
		return err
	}
	t.payloadID = id
	return nil
}

func (t *WaitForMessage) ExecuteTask(ctx *bt.NodeContext) bt.NodeResult {
	mem := ctx.Memory()
	mem.SetFloat32(waitMsgRemaining, float32(t.Timeout))
	mem.SetBool(waitMsgFinished, false)

	if t.MatchID {
		ctx.RegisterMessageObserverWithID(t.Type, t.RequestID)
	} else {
		ctx.RegisterMessageObserver(t.Type)
	}
	return bt.InProgress
}

func (t *WaitForMessage) OnMessage(ctx *bt.NodeContext, msg bt.Message) {
	mem := ctx.Memory()
	if mem.Bool(waitMsgFinished) {
		return
	}

	switch ctx.TaskStatus() {
	case bt.TaskActive:
		if t.payloadID != blackboard.InvalidKey {
			if bb := ctx.Blackboard(); bb != nil {
				if err := bb.SetValueFromString(t.payloadID, msg.Payload); err != nil {
					ctx.Logf("failed to store payload in '%s': %v", t.PayloadKey, err)
				}
			}
		}
		mem.SetBool(waitMsgFinished, true)
		if msg.Success {
			ctx.FinishLatentTask(bt.Succeeded)
		} else {
			ctx.FinishLatentTask(bt.Failed)
		}
	case bt.TaskAborting:
		mem.SetBool(waitMsgFinished, true)
		ctx.FinishLatentAbort()
	}
}

func (t *WaitForMessage) TickTask(ctx *bt.NodeContext, dt float64) {
	if t.Timeout <= 0 || ctx.TaskStatus() != bt.TaskActive {
		return
	}
	mem := ctx.Memory()
	if mem.Bool(waitMsgFinished) {
		return
	}
	remaining := mem.Float32(waitMsgRemaining) - float32(dt)
	mem.SetFloat32(waitMsgRemaining, remaining)
	if remaining <= 0 {
		mem.SetBool(waitMsgFinished, true)
		ctx.Logf("timed out waiting for message '%s'", t.Type)
		ctx.FinishLatentTask(bt.Failed)
	}
}

func (t *WaitForMessage) DescribeRuntime(ctx *bt.NodeContext) string {
	if ctx.TaskStatus() != bt.TaskActive {
		return ""
	}
	if t.Timeout > 0 {
		return fmt.Sprintf("waiting for '%s' (%.2fs left)", t.Type, ctx.Memory().Float32(waitMsgRemaining))
	}
	return fmt.Sprintf("waiting for '%s'", t.Type)
}

var logPlaceholder = regexp.MustCompile(`\{([A-Za-z0-9_.]+)\}`)

// Log writes a line and succeeds. {key} placeholders are replaced with the
// key's current value.
type Log struct {
	Message string
}

func (t *Log) ExecuteTask(ctx *bt.NodeContext) bt.NodeResult {
	ctx.Logf("%s", Interpolate(ctx.Blackboard(), t.Message))
	return bt.Succeeded
}

// Interpolate replaces {key} placeholders in text with blackboard values.
// Unknown keys are left as they are.
func Interpolate(bb *blackboard.Instance, text string) string {
	if bb == nil {
		return text
	}
	return logPlaceholder.ReplaceAllStringFunc(text, func(m string) string {
		id := bb.KeyID(m[1 : len(m)-1])
		if id == blackboard.InvalidKey {
			return m
		}
		return bb.DescribeValue(id)
	})
}
