package behaviortree

import (
	"errors"
	"fmt"
)

var (
	// ErrCycle is returned when a node is reached twice while initializing a
	// tree, or when subtree references form a loop.
	ErrCycle = errors.New("behavior tree cycle")

	// ErrUnknownSubtree is returned when a task references a tree the library
	// does not hold.
	ErrUnknownSubtree = errors.New("unknown subtree")

	// ErrNotInitialized is returned when an uninitialized tree is started or pushed.
	ErrNotInitialized = errors.New("behavior tree not initialized")

	// ErrIncompatibleBlackboard is returned when a tree's blackboard asset is
	// not the scheduler's asset or one of its ancestors.
	ErrIncompatibleBlackboard = errors.New("incompatible blackboard")

	// ErrSubtreeRefused is returned when the active composite does not allow
	// pushing a subtree.
	ErrSubtreeRefused = errors.New("subtree push refused by parent composite")

	// ErrNotRunning is returned by operations that need a started tree.
	ErrNotRunning = errors.New("behavior tree not running")
)

// AbortModeViolation reports a decorator whose abort mode cannot work at its
// position in the tree. Trees carrying one fail to initialize.
type AbortModeViolation struct {
	Tree      string
	Decorator string
	Parent    string
	Mode      FlowAbortMode
	Reason    string
}

func (e *AbortModeViolation) Error() string {
	return fmt.Sprintf("tree '%s': decorator '%s' under '%s': abort mode %s is not allowed: %s",
		e.Tree, e.Decorator, e.Parent, e.Mode, e.Reason)
}

// DoubleCompletionViolation reports a task completion that does not match the
// task's current execution. The scheduler logs it and drops the completion.
type DoubleCompletionViolation struct {
	Ref    TaskRef
	Result NodeResult
	Reason string
}

func (e *DoubleCompletionViolation) Error() string {
	return fmt.Sprintf("task completion %s (%s) ignored: %s", e.Ref, e.Result, e.Reason)
}
