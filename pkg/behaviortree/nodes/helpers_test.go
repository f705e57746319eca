package nodes

import (
	"testing"

	"github.com/stretchr/testify/require"

	bt "github.com/dyluth/grove/pkg/behaviortree"
	"github.com/dyluth/grove/pkg/blackboard"
)

// recordTask returns result from ExecuteTask and records what happened to it.
type recordTask struct {
	result      bt.NodeResult
	latentAbort bool

	executions int
	aborts     int
	finished   []bt.NodeResult
	ref        bt.TaskRef
}

func (t *recordTask) ExecuteTask(ctx *bt.NodeContext) bt.NodeResult {
	t.executions++
	t.ref = ctx.TaskRef()
	return t.result
}

func (t *recordTask) AbortTask(*bt.NodeContext) bt.NodeResult {
	t.aborts++
	if t.latentAbort {
		return bt.InProgress
	}
	return bt.Aborted
}

func (t *recordTask) OnTaskFinished(_ *bt.NodeContext, result bt.NodeResult) {
	t.finished = append(t.finished, result)
}

func latent() *recordTask                 { return &recordTask{result: bt.InProgress} }
func instant(r bt.NodeResult) *recordTask { return &recordTask{result: r} }

func newAgentBlackboard(t *testing.T) (*blackboard.Asset, *blackboard.Instance) {
	t.Helper()
	asset := blackboard.NewAsset("Agent", nil).
		AddKey("Ammo", blackboard.KeyType{Kind: blackboard.KindInt}).
		AddKey("Health", blackboard.KeyType{Kind: blackboard.KindFloat}).
		AddKey("Alarm", blackboard.KeyType{Kind: blackboard.KindBool}).
		AddKey("Name", blackboard.KeyType{Kind: blackboard.KindString}).
		AddKey("Target", blackboard.KeyType{Kind: blackboard.KindString}).
		AddKey("Mode", blackboard.KeyType{Kind: blackboard.KindEnum, EnumName: "Mode", EnumValues: []string{"idle", "patrol", "attack"}}).
		AddKey("Pos", blackboard.KeyType{Kind: blackboard.KindVector}).
		AddKey("Stamp", blackboard.KeyType{Kind: blackboard.KindFloat})
	require.NoError(t, asset.Finalize())

	bb, err := blackboard.NewInstance(asset)
	require.NoError(t, err)
	return asset, bb
}

func buildTree(t *testing.T, name string, asset *blackboard.Asset, root *bt.Composite) *bt.Tree {
	t.Helper()
	tree := bt.NewTree(name, asset, root)
	require.NoError(t, tree.Initialize())
	return tree
}

func startTree(t *testing.T, bb *blackboard.Instance, tree *bt.Tree, mode bt.ExecutionMode) *bt.Scheduler {
	t.Helper()
	s := bt.New(bb, bt.Options{})
	require.NoError(t, s.StartTree(tree, mode))
	return s
}
