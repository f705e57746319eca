package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bt "github.com/dyluth/grove/pkg/behaviortree"
	"github.com/dyluth/grove/pkg/blackboard"
)

func TestBlackboardDecorator_Operations(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		op    KeyOperation
		value string
		setup func(t *testing.T, bb *blackboard.Instance)
		pass  bool
	}{
		{name: "int greater", key: "Ammo", op: OpGreater, value: "3", setup: setInt("Ammo", 5), pass: true},
		{name: "int greater at bound", key: "Ammo", op: OpGreater, value: "3", setup: setInt("Ammo", 3), pass: false},
		{name: "int greater or equal", key: "Ammo", op: OpGreaterOrEqual, value: "3", setup: setInt("Ammo", 3), pass: true},
		{name: "int less", key: "Ammo", op: OpLess, value: "3", setup: setInt("Ammo", 1), pass: true},
		{name: "int equal default", key: "Ammo", op: OpEqual, value: "0", pass: true},
		{name: "int not equal default", key: "Ammo", op: OpNotEqual, value: "0", pass: false},
		{name: "float less or equal", key: "Health", op: OpLessOrEqual, value: "0.5", setup: setFloat("Health", 0.5), pass: true},
		{name: "bool is set", key: "Alarm", op: OpIsSet, setup: setBool("Alarm", true), pass: true},
		{name: "bool default is not set", key: "Alarm", op: OpIsSet, pass: false},
		{name: "empty string is not set", key: "Name", op: OpIsNotSet, pass: true},
		{name: "string equal", key: "Name", op: OpEqual, value: "scout", setup: setString("Name", "scout"), pass: true},
		{name: "string contains", key: "Name", op: OpContains, value: "co", setup: setString("Name", "scout"), pass: true},
		{name: "string does not contain", key: "Name", op: OpContains, value: "x", setup: setString("Name", "scout"), pass: false},
		{name: "enum equal by name", key: "Mode", op: OpEqual, value: "patrol", setup: setEnum("Mode", 1), pass: true},
		{name: "enum not equal by name", key: "Mode", op: OpNotEqual, value: "patrol", pass: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asset, bb := newAgentBlackboard(t)
			if tt.setup != nil {
				tt.setup(t, bb)
			}
			d := &Blackboard{Key: tt.key, Op: tt.op, Value: tt.value}
			root := bt.NewComposite("Root", Selector{}).
				AddChild(bt.NewTask("A", latent()), bt.NewDecorator("Check", d)).
				AddChild(bt.NewTask("B", latent()))
			s := startTree(t, bb, buildTree(t, "bb", asset, root), bt.SingleRun)
			s.Tick(0.1)

			want := "B"
			if tt.pass {
				want = "A"
			}
			assert.Equal(t, want, s.ActiveNode().Name())
		})
	}
}

func TestBlackboardDecorator_InitializeErrors(t *testing.T) {
	tests := []struct {
		name    string
		d       *Blackboard
		wantErr string
	}{
		{name: "unknown key", d: &Blackboard{Key: "Nope", Op: OpIsSet}, wantErr: "invalid"},
		{name: "ordering on a string", d: &Blackboard{Key: "Name", Op: OpLess, Value: "3"}, wantErr: "does not support"},
		{name: "contains on an int", d: &Blackboard{Key: "Ammo", Op: OpContains, Value: "3"}, wantErr: "does not support"},
		{name: "bad number", d: &Blackboard{Key: "Ammo", Op: OpEqual, Value: "many"}, wantErr: "invalid number"},
		{name: "bad enum name", d: &Blackboard{Key: "Mode", Op: OpEqual, Value: "flying"}, wantErr: "Mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asset, _ := newAgentBlackboard(t)
			root := bt.NewComposite("Root", Selector{}).
				AddChild(bt.NewTask("A", latent()), bt.NewDecorator("Check", tt.d)).
				AddChild(bt.NewTask("B", latent()))
			err := bt.NewTree("bb", asset, root).Initialize()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestBlackboardDecorator_ObserveModes(t *testing.T) {
	run := func(t *testing.T, mode ObserveMode) *recordTask {
		asset, bb := newAgentBlackboard(t)
		require.NoError(t, bb.SetValueAsIntByName("Ammo", 1))
		a := latent()
		d := bt.NewDecorator("HasAmmo", &Blackboard{Key: "Ammo", Op: OpGreater, Value: "0", Observe: mode}).
			WithAbortMode(bt.AbortSelf)
		root := bt.NewComposite("Root", Selector{}).
			AddChild(bt.NewTask("A", a), d).
			AddChild(bt.NewTask("B", latent()))
		s := startTree(t, bb, buildTree(t, "observe", asset, root), bt.Looped)
		s.Tick(0.1)

		require.NoError(t, bb.SetValueAsIntByName("Ammo", 2))
		s.Tick(0.1)
		assert.Equal(t, "A", s.ActiveNode().Name())
		return a
	}

	t.Run("result change ignores a passing value change", func(t *testing.T) {
		a := run(t, OnResultChange)
		assert.Equal(t, 1, a.executions)
		assert.Equal(t, 0, a.aborts)
	})

	t.Run("value change restarts the branch", func(t *testing.T) {
		a := run(t, OnValueChange)
		assert.Equal(t, 2, a.executions)
		assert.Equal(t, 1, a.aborts)
	})
}

func TestBlackboardDecorator_AbortsWhenConditionFails(t *testing.T) {
	asset, bb := newAgentBlackboard(t)
	require.NoError(t, bb.SetValueAsIntByName("Ammo", 3))
	a, b := latent(), latent()
	root := bt.NewComposite("Root", Selector{}).
		AddChild(bt.NewTask("Shoot", a), bt.NewDecorator("HasAmmo", &Blackboard{Key: "Ammo", Op: OpGreater, Value: "0"}).WithAbortMode(bt.AbortSelf)).
		AddChild(bt.NewTask("Reload", b))
	s := startTree(t, bb, buildTree(t, "abort", asset, root), bt.Looped)
	s.Tick(0.1)

	// same value, no notification
	require.NoError(t, bb.SetValueAsIntByName("Ammo", 3))
	assert.False(t, s.IsRestartPending())

	require.NoError(t, bb.SetValueAsIntByName("Ammo", 0))
	s.Tick(0.1)
	assert.Equal(t, 1, a.aborts)
	assert.Equal(t, "Reload", s.ActiveNode().Name())

	desc := s.Snapshot().Instances[0].Descriptions
	assert.Equal(t, "Ammo greater 0 (0)", desc["HasAmmo"])
}

func TestParseKeyOperation(t *testing.T) {
	op, err := ParseKeyOperation("greater_or_equal")
	require.NoError(t, err)
	assert.Equal(t, OpGreaterOrEqual, op)
	assert.Equal(t, "greater_or_equal", op.String())

	_, err = ParseKeyOperation("bigger")
	assert.Error(t, err)

	mode, err := ParseObserveMode("on_value_change")
	require.NoError(t, err)
	assert.Equal(t, OnValueChange, mode)
	mode, err = ParseObserveMode("")
	require.NoError(t, err)
	assert.Equal(t, OnResultChange, mode)
}

func setInt(key string, v int32) func(*testing.T, *blackboard.Instance) {
	return func(t *testing.T, bb *blackboard.Instance) {
		require.NoError(t, bb.SetValueAsIntByName(key, v))
	}
}

func setFloat(key string, v float32) func(*testing.T, *blackboard.Instance) {
	return func(t *testing.T, bb *blackboard.Instance) {
		require.NoError(t, bb.SetValueAsFloatByName(key, v))
	}
}

func setBool(key string, v bool) func(*testing.T, *blackboard.Instance) {
	return func(t *testing.T, bb *blackboard.Instance) {
		require.NoError(t, bb.SetValueAsBoolByName(key, v))
	}
}

func setString(key, v string) func(*testing.T, *blackboard.Instance) {
	return func(t *testing.T, bb *blackboard.Instance) {
		require.NoError(t, bb.SetValueAsStringByName(key, v))
	}
}

func setEnum(key string, v uint8) func(*testing.T, *blackboard.Instance) {
	return func(t *testing.T, bb *blackboard.Instance) {
		require.NoError(t, bb.SetValueAsEnumByName(key, v))
	}
}
