package behaviortree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSubtreeFixture(t *testing.T, subtree string) (*Library, *pushTask, *scriptTask, *scriptTask) {
	t.Helper()
	push := &pushTask{subtree: subtree}
	after := &scriptTask{result: InProgress}
	inner := &scriptTask{result: InProgress}

	lib := NewLibrary()
	require.NoError(t, lib.Add(NewTree("main", nil, NewComposite("Root", sequenceLogic{}).
		AddChild(NewTask("Run", push)).
		AddChild(NewTask("After", after)))))
	require.NoError(t, lib.Add(NewTree("sub", nil, NewComposite("SubRoot", sequenceLogic{}).
		AddChild(NewTask("X", inner)))))
	require.NoError(t, lib.Add(NewTree("self", nil, NewComposite("SelfRoot", sequenceLogic{}).
		AddChild(NewTask("Again", &pushTask{subtree: "self"})))))
	return lib, push, inner, after
}

func TestScheduler_SubtreePushAndPop(t *testing.T) {
	lib, _, inner, after := newSubtreeFixture(t, "sub")
	require.NoError(t, lib.Validate())
	main, _ := lib.Get("main")
	rec := &traceRecorder{}

	s := New(nil, Options{Library: lib, Trace: rec})
	require.NoError(t, s.StartTree(main, SingleRun))
	s.Tick(0.1)

	require.Equal(t, 2, s.InstanceCount())
	assert.Equal(t, "sub", s.ActiveTree().Name)
	assert.Equal(t, "main", s.RootTree().Name)
	assert.Equal(t, "X", s.ActiveNode().Name())
	assert.Equal(t, 1, rec.count(TraceInstancePushed, "SubRoot"))

	snap := s.Snapshot()
	require.Len(t, snap.Instances, 2)
	assert.Equal(t, []string{"Root", "Run"}, snap.Instances[0].ActivePath)
	assert.Equal(t, []string{"SubRoot", "X"}, snap.Instances[1].ActivePath)
	assert.Equal(t, 1, snap.Active)

	s.NotifyTaskFinished(inner.ref, Succeeded)
	s.Tick(0.1)

	assert.Equal(t, 1, s.InstanceCount())
	assert.Equal(t, "main", s.ActiveTree().Name)
	assert.Equal(t, 1, after.executions, "subtree result continues the parent sequence")
	assert.Equal(t, 1, rec.count(TraceInstancePopped, "SubRoot"))
}

func TestScheduler_SubtreeFailurePropagates(t *testing.T) {
	lib, _, inner, after := newSubtreeFixture(t, "sub")
	main, _ := lib.Get("main")
	require.NoError(t, lib.Validate())

	s := New(nil, Options{Library: lib})
	require.NoError(t, s.StartTree(main, SingleRun))
	s.Tick(0.1)

	s.NotifyTaskFinished(inner.ref, Failed)
	s.Tick(0.1)

	assert.Equal(t, 0, after.executions)
	assert.False(t, s.IsRunning())
}

func TestScheduler_SubtreePushErrors(t *testing.T) {
	t.Run("unknown subtree fails the task", func(t *testing.T) {
		lib, push, _, after := newSubtreeFixture(t, "missing")
		main, _ := lib.Get("main")
		require.NoError(t, main.Initialize())

		s := New(nil, Options{Library: lib})
		require.NoError(t, s.StartTree(main, SingleRun))
		s.Tick(0.1)

		assert.ErrorIs(t, push.err, ErrUnknownSubtree)
		assert.Equal(t, 0, after.executions)
		assert.False(t, s.IsRunning())
	})

	t.Run("tree already on the stack", func(t *testing.T) {
		lib, _, _, _ := newSubtreeFixture(t, "sub")
		self, _ := lib.Get("self")
		require.NoError(t, self.Initialize())

		s := New(nil, Options{Library: lib})
		require.NoError(t, s.StartTree(self, SingleRun))
		s.Tick(0.1)

		push := self.Root.Children[0].Task.Logic.(*pushTask)
		assert.ErrorIs(t, push.err, ErrCycle)
		assert.Equal(t, 0, s.InstanceCount())
	})

	t.Run("uninitialized tree", func(t *testing.T) {
		lib, push, _, _ := newSubtreeFixture(t, "sub")
		main, _ := lib.Get("main")
		require.NoError(t, main.Initialize())

		s := New(nil, Options{Library: lib})
		require.NoError(t, s.StartTree(main, SingleRun))
		s.Tick(0.1)

		assert.ErrorIs(t, push.err, ErrNotInitialized)
	})
}

func TestScheduler_AbortInsideSubtree(t *testing.T) {
	asset, bb := newTestBlackboard(t)
	inner := &scriptTask{result: InProgress}
	fallback := &scriptTask{result: InProgress}

	lib := NewLibrary()
	gate := NewDecorator("Go?", &boolKeyCondition{key: "Go"}).WithAbortMode(AbortSelf)
	require.NoError(t, lib.Add(NewTree("main", asset, NewComposite("Root", selectorLogic{}).
		AddChild(NewTask("Run", &pushTask{subtree: "sub"}), gate).
		AddChild(NewTask("Fallback", fallback)))))
	require.NoError(t, lib.Add(NewTree("sub", asset, NewComposite("SubRoot", sequenceLogic{}).
		AddChild(NewTask("X", inner)))))
	require.NoError(t, lib.Validate())
	main, _ := lib.Get("main")

	setBool(t, bb, "Go", true)
	s := New(bb, Options{Library: lib})
	require.NoError(t, s.StartTree(main, Looped))
	s.Tick(0.1)
	require.Equal(t, 2, s.InstanceCount())

	setBool(t, bb, "Go", false)
	s.Tick(0.1)

	assert.Equal(t, 1, inner.aborts)
	assert.Equal(t, 1, s.InstanceCount())
	assert.Equal(t, 1, fallback.executions)
	assert.Equal(t, "Fallback", s.ActiveNode().Name())
}
