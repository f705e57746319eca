package behaviortree

import (
	"fmt"
	"math"
)

// NodeResult is the outcome of executing or aborting a node.
type NodeResult uint8

const (
	// Succeeded means the node finished with success.
	Succeeded NodeResult = iota
	// Failed means the node finished with failure.
	Failed
	// Optional means the node finished and its parent decides whether to continue.
	Optional
	// Aborted means the node was interrupted.
	Aborted
	// InProgress means the node has not finished yet.
	InProgress
)

var resultNames = [...]string{
	Succeeded:  "succeeded",
	Failed:     "failed",
	Optional:   "optional",
	Aborted:    "aborted",
	InProgress: "in_progress",
}

func (r NodeResult) String() string {
	if int(r) < len(resultNames) {
		return resultNames[r]
	}
	return fmt.Sprintf("result(%d)", uint8(r))
}

// ParseNodeResult resolves a result from its string form.
func ParseNodeResult(s string) (NodeResult, error) {
	for i, n := range resultNames {
		if n == s {
			return NodeResult(i), nil
		}
	}
	return 0, fmt.Errorf("unknown node result: %q", s)
}

// ExecutionMode controls what happens when the tree runs out of nodes.
type ExecutionMode uint8

const (
	// SingleRun stops the tree when the root finishes.
	SingleRun ExecutionMode = iota
	// Looped restarts the root when it finishes.
	Looped
)

func (m ExecutionMode) String() string {
	if m == Looped {
		return "looped"
	}
	return "single_run"
}

// FlowAbortMode controls which branches a decorator may interrupt when its
// condition changes.
type FlowAbortMode uint8

const (
	// AbortNone never interrupts anything.
	AbortNone FlowAbortMode = iota
	// AbortLowerPriority interrupts lower-priority branches when the condition starts passing.
	AbortLowerPriority
	// AbortSelf interrupts the decorated branch when the condition stops passing.
	AbortSelf
	// AbortBoth combines AbortLowerPriority and AbortSelf.
	AbortBoth
)

var abortModeNames = [...]string{
	AbortNone:          "none",
	AbortLowerPriority: "lower_priority",
	AbortSelf:          "self",
	AbortBoth:          "both",
}

func (m FlowAbortMode) String() string {
	if int(m) < len(abortModeNames) {
		return abortModeNames[m]
	}
	return fmt.Sprintf("abort_mode(%d)", uint8(m))
}

// ParseFlowAbortMode resolves an abort mode from its definition-file name.
// An empty string is AbortNone.
func ParseFlowAbortMode(s string) (FlowAbortMode, error) {
	if s == "" {
		return AbortNone, nil
	}
	for i, n := range abortModeNames {
		if n == s {
			return FlowAbortMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown abort mode: %q (valid: none, lower_priority, self, both)", s)
}

// ActiveNodeType describes what the active node of an instance is doing.
type ActiveNodeType uint8

const (
	// ActiveComposite is a composite holding the search, such as a suspended parallel.
	ActiveComposite ActiveNodeType = iota
	// ActiveTask is a task that is executing.
	ActiveTask
	// AbortingTask is a task whose latent abort has not been confirmed yet.
	AbortingTask
	// InactiveTask is a task that has finished and waits for the next search.
	InactiveTask
)

func (t ActiveNodeType) String() string {
	switch t {
	case ActiveComposite:
		return "composite"
	case ActiveTask:
		return "active_task"
	case AbortingTask:
		return "aborting_task"
	case InactiveTask:
		return "inactive_task"
	}
	return "unknown"
}

// TaskStatus is the runtime state of a task node.
type TaskStatus uint8

const (
	// TaskInactive is a task that is neither running nor aborting.
	TaskInactive TaskStatus = iota
	// TaskActive is a task that is running as the active node or in parallel.
	TaskActive
	// TaskAborting is a task that returned InProgress from its abort.
	TaskAborting
)

func (s TaskStatus) String() string {
	switch s {
	case TaskActive:
		return "active"
	case TaskAborting:
		return "aborting"
	}
	return "inactive"
}

// Special child indexes returned by composite strategies.
const (
	// NotInitialized is the current child of a composite that has not picked one yet.
	NotInitialized = -1
	// ReturnToParent ends the composite and hands its result to the parent.
	ReturnToParent = -2
	// SuspendSearch keeps the composite active without a task, waiting for a
	// parallel task to finish.
	SuspendSearch = -3
)

// ChildIndexMode selects which execution index ChildExecutionIndex reports.
type ChildIndexMode uint8

const (
	// TaskNode is the execution index of the child node itself.
	TaskNode ChildIndexMode = iota
	// FirstNode is the execution index of the child's first decorator.
	FirstNode
)

type updateMode uint8

const (
	updateAdd updateMode = iota
	updateRemove
	updateAddForLowerPri
)

func (m updateMode) String() string {
	switch m {
	case updateAdd:
		return "add"
	case updateRemove:
		return "remove"
	}
	return "add_for_lower_pri"
}

const unsetIndex = math.MaxInt32

// NodeIndex orders nodes across the instance stack. Lower instance indexes
// (outer subtrees) come first, then lower execution indexes.
type NodeIndex struct {
	InstanceIndex  int
	ExecutionIndex int
}

// unsetNodeIndex has lower priority than every real node.
var unsetNodeIndex = NodeIndex{InstanceIndex: unsetIndex, ExecutionIndex: unsetIndex}

// TakesPriorityOver reports whether i should run before other.
func (i NodeIndex) TakesPriorityOver(other NodeIndex) bool {
	if i.InstanceIndex != other.InstanceIndex {
		return i.InstanceIndex < other.InstanceIndex
	}
	return i.ExecutionIndex < other.ExecutionIndex
}

// IsSet reports whether the index refers to a node.
func (i NodeIndex) IsSet() bool {
	return i.InstanceIndex < unsetIndex
}

func (i NodeIndex) String() string {
	if !i.IsSet() {
		return "[unset]"
	}
	return fmt.Sprintf("[%d:%d]", i.InstanceIndex, i.ExecutionIndex)
}

// TaskRef identifies one execution of a task. The serial changes every time
// the task starts, so a late completion from an earlier run is detected.
type TaskRef struct {
	InstanceIndex  int    `json:"instance"`
	ExecutionIndex int    `json:"execution"`
	Serial         uint64 `json:"serial"`
}

func (r TaskRef) String() string {
	return fmt.Sprintf("[%d:%d#%d]", r.InstanceIndex, r.ExecutionIndex, r.Serial)
}
