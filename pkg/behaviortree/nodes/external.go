package nodes

import (
	"fmt"
	"math"
	"sort"
	"sync"

	gobt "github.com/joeycumines/go-behaviortree"

	bt "github.com/dyluth/grove/pkg/behaviortree"
)

// ConditionFunc is a host-provided decorator condition.
type ConditionFunc func(ctx *bt.NodeContext) bool

// TaskFuncs are host-provided task callbacks. Execute is required; Tick and
// Abort are optional and behave like the TaskTicker and TaskAborter hooks.
type TaskFuncs struct {
	Execute func(ctx *bt.NodeContext) bt.NodeResult
	Tick    func(ctx *bt.NodeContext, dt float64)
	Abort   func(ctx *bt.NodeContext) bt.NodeResult
}

// Registry holds the host callbacks that External nodes and GoTree tasks
// refer to by handle name. Registration is safe for concurrent use; trees
// resolve their handles when they are built.
type Registry struct {
	mu         sync.RWMutex
	conditions map[string]ConditionFunc
	tasks      map[string]TaskFuncs
	goTrees    map[string]gobt.Node
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conditions: make(map[string]ConditionFunc),
		tasks:      make(map[string]TaskFuncs),
		goTrees:    make(map[string]gobt.Node),
	}
}

// RegisterCondition adds a decorator condition under name.
func (r *Registry) RegisterCondition(name string, fn ConditionFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("condition name and function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conditions[name]; exists {
		return fmt.Errorf("condition '%s' is already registered", name)
	}
	r.conditions[name] = fn
	return nil
}

// RegisterTask adds task callbacks under name.
func (r *Registry) RegisterTask(name string, fns TaskFuncs) error {
	if name == "" || fns.Execute == nil {
		return fmt.Errorf("task name and execute function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[name]; exists {
		return fmt.Errorf("task '%s' is already registered", name)
	}
	r.tasks[name] = fns
	return nil
}

// RegisterGoTree adds a go-behaviortree node under name.
func (r *Registry) RegisterGoTree(name string, node gobt.Node) error {
	if name == "" || node == nil {
		return fmt.Errorf("go tree name and node are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.goTrees[name]; exists {
		return fmt.Errorf("go tree '%s' is already registered", name)
	}
	r.goTrees[name] = node
	return nil
}

// Condition returns the named condition.
func (r *Registry) Condition(name string) (ConditionFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.conditions[name]
	return fn, ok
}

// Task returns the named task callbacks.
func (r *Registry) Task(name string) (TaskFuncs, bool) {
	if r == nil {
		return TaskFuncs{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fns, ok := r.tasks[name]
	return fns, ok
}

// GoTree returns the named go-behaviortree node.
func (r *Registry) GoTree(name string) (gobt.Node, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	node, ok := r.goTrees[name]
	return node, ok
}

// Handles lists every registered handle, grouped by kind.
func (r *Registry) Handles() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string][]string{
		"condition": sortedKeys(r.conditions),
		"task":      sortedKeys(r.tasks),
		"go_tree":   sortedKeys(r.goTrees),
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExternalCondition is a decorator backed by a host condition. With a
// positive Poll interval and an abort mode, it re-evaluates the condition
// every Poll seconds while relevant and requests execution when it flips.
type ExternalCondition struct {
	Handle string
	Fn     ConditionFunc
	Poll   float64
}

func (d *ExternalCondition) CalculateRawCondition(ctx *bt.NodeContext) bool {
	return d.Fn(ctx)
}

func (d *ExternalCondition) OnBecomeRelevant(ctx *bt.NodeContext) {
	ctx.SetNextTickTime(d.Poll)
}

func (d *ExternalCondition) OnCeaseRelevant(*bt.NodeContext) {}

func (d *ExternalCondition) TickNode(ctx *bt.NodeContext, _ float64) {
	if d.Poll <= 0 {
		ctx.SetNextTickTime(math.MaxFloat32)
		return
	}
	ctx.ConditionalFlowAbort(false)
	ctx.SetNextTickTime(d.Poll)
}

// ExternalTask is a task backed by host callbacks.
type ExternalTask struct {
	Handle string
	Funcs  TaskFuncs
}

func (t *ExternalTask) ExecuteTask(ctx *bt.NodeContext) bt.NodeResult {
	return t.Funcs.Execute(ctx)
}

func (t *ExternalTask) TickTask(ctx *bt.NodeContext, dt float64) {
	if t.Funcs.Tick != nil {
		t.Funcs.Tick(ctx, dt)
	}
}

func (t *ExternalTask) AbortTask(ctx *bt.NodeContext) bt.NodeResult {
	if t.Funcs.Abort != nil {
		return t.Funcs.Abort(ctx)
	}
	return bt.Aborted
}
