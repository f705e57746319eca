// Package nodes provides the built-in node strategies: composites,
// decorators, services and tasks that trees are assembled from.
package nodes

import bt "github.com/dyluth/grove/pkg/behaviortree"

// Selector runs its children in order until one succeeds.
type Selector struct{}

func (Selector) NextChild(ctx *bt.NodeContext, prev int, last bt.NodeResult) int {
	next := bt.ReturnToParent
	switch {
	case prev == bt.NotInitialized:
		next = 0
	case last == bt.Failed || last == bt.Optional:
		next = prev + 1
	}
	if next >= childCount(ctx) {
		return bt.ReturnToParent
	}
	return next
}

// Sequence runs its children in order until one fails.
type Sequence struct{}

func (Sequence) NextChild(ctx *bt.NodeContext, prev int, last bt.NodeResult) int {
	next := bt.ReturnToParent
	switch {
	case prev == bt.NotInitialized:
		next = 0
	case last == bt.Succeeded || last == bt.Optional:
		next = prev + 1
	}
	if next >= childCount(ctx) {
		return bt.ReturnToParent
	}
	return next
}

func (Sequence) CanAbortLowerPriority() bool { return false }
func (Sequence) CanAbortSelf() bool          { return true }

func childCount(ctx *bt.NodeContext) int {
	if c, ok := ctx.Node().(*bt.Composite); ok {
		return len(c.Children)
	}
	return 0
}
