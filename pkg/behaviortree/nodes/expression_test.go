package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bt "github.com/dyluth/grove/pkg/behaviortree"
	"github.com/dyluth/grove/pkg/blackboard"
)

func TestExpression_Initialize(t *testing.T) {
	asset, _ := newAgentBlackboard(t)

	tests := []struct {
		name     string
		source   string
		wantKeys []string
		wantErr  bool
	}{
		{name: "comparison", source: "Ammo > 3 && !Alarm", wantKeys: []string{"Alarm", "Ammo"}},
		{name: "enum by name", source: `Mode == "patrol"`, wantKeys: []string{"Mode"}},
		{name: "vector field", source: "Pos.X > 1", wantKeys: []string{"Pos"}},
		{name: "repeated key", source: "Ammo > 1 || Ammo < -1", wantKeys: []string{"Ammo"}},
		{name: "syntax error", source: "Ammo >", wantErr: true},
		{name: "not a bool", source: "Ammo + 1", wantErr: true},
		{name: "unknown identifier", source: "Fuel > 1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Expression{Source: tt.source}
			root := bt.NewComposite("Root", Selector{}).
				AddChild(bt.NewTask("A", latent()), bt.NewDecorator("Expr", d)).
				AddChild(bt.NewTask("B", latent()))
			err := bt.NewTree("expr", asset, root).Initialize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKeys, d.ReferencedKeys())
		})
	}

	t.Run("needs a blackboard", func(t *testing.T) {
		root := bt.NewComposite("Root", Selector{}).
			AddChild(bt.NewTask("A", latent()), bt.NewDecorator("Expr", &Expression{Source: "true"})).
			AddChild(bt.NewTask("B", latent()))
		assert.Error(t, bt.NewTree("expr", nil, root).Initialize())
	})
}

func TestExpression_GatesAndObserves(t *testing.T) {
	asset, bb := newAgentBlackboard(t)
	require.NoError(t, bb.SetValueAsIntByName("Ammo", 5))
	require.NoError(t, bb.SetValueAsVectorByName("Pos", blackboard.Vector{X: 2, Y: 0, Z: 0}))

	attack, flee := latent(), latent()
	root := bt.NewComposite("Root", Selector{}).
		AddChild(bt.NewTask("Attack", attack),
			bt.NewDecorator("Armed", &Expression{Source: "Ammo > 3 && !Alarm && Pos.X > 1"}).WithAbortMode(bt.AbortSelf)).
		AddChild(bt.NewTask("Flee", flee))
	s := startTree(t, bb, buildTree(t, "expr", asset, root), bt.Looped)

	s.Tick(0.1)
	require.Equal(t, "Attack", s.ActiveNode().Name())
	assert.Equal(t, "Ammo > 3 && !Alarm && Pos.X > 1 = true", s.Snapshot().Instances[0].Descriptions["Armed"])

	require.NoError(t, bb.SetValueAsBoolByName("Alarm", true))
	s.Tick(0.1)

	assert.Equal(t, 1, attack.aborts)
	assert.Equal(t, "Flee", s.ActiveNode().Name())
}
