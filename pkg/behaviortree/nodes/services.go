package nodes

import (
	"fmt"

	bt "github.com/dyluth/grove/pkg/behaviortree"
	"github.com/dyluth/grove/pkg/blackboard"
)

// SetTimestamp writes the scheduler's world time to a float key on every tick.
type SetTimestamp struct {
	Key string

	keyID blackboard.KeyID
}

func (s *SetTimestamp) InitializeFromTree(_ bt.Node, tree *bt.Tree) error {
	id, err := resolveKey(tree, s.Key, blackboard.KindFloat)
	if err != nil {
		return err
	}
	s.keyID = id
	return nil
}

func (s *SetTimestamp) TickNode(ctx *bt.NodeContext, _ float64) {
	if bb := ctx.Blackboard(); bb != nil {
		if err := bb.SetValueAsFloat(s.keyID, float32(ctx.WorldTime())); err != nil {
			ctx.Logf("failed to write timestamp: %v", err)
		}
	}
}

// Counter adds Step to an int key on every tick.
type Counter struct {
	Key  string
	Step int32

	keyID blackboard.KeyID
}

func (s *Counter) InitializeFromTree(_ bt.Node, tree *bt.Tree) error {
	id, err := resolveKey(tree, s.Key, blackboard.KindInt)
	if err != nil {
		return err
	}
	s.keyID = id
	return nil
}

func (s *Counter) TickNode(ctx *bt.NodeContext, _ float64) {
	bb := ctx.Blackboard()
	if bb == nil {
		return
	}
	v, err := bb.GetValueAsInt(s.keyID)
	if err != nil {
		ctx.Logf("failed to read counter: %v", err)
		return
	}
	if err := bb.SetValueAsInt(s.keyID, v+s.Step); err != nil {
		ctx.Logf("failed to write counter: %v", err)
	}
}

// resolveKey finds a key by name on the tree's blackboard. With kinds given
// the key must have one of them.
func resolveKey(tree *bt.Tree, name string, kinds ...blackboard.Kind) (blackboard.KeyID, error) {
	if tree.Blackboard == nil {
		return blackboard.InvalidKey, fmt.Errorf("key '%s': tree has no blackboard", name)
	}
	id := tree.Blackboard.KeyID(name)
	if id == blackboard.InvalidKey {
		return id, fmt.Errorf("key '%s': %w", name, blackboard.ErrInvalidKey)
	}
	if len(kinds) == 0 {
		return id, nil
	}
	key, _ := tree.Blackboard.Key(id)
	for _, k := range kinds {
		if key.Type.Kind == k {
			return id, nil
		}
	}
	return blackboard.InvalidKey, fmt.Errorf("key '%s' is %s, expected %s: %w", name, key.Type, kinds[0], blackboard.ErrKeyTypeMismatch)
}
