package behaviortree

// Node is one element of a tree template. Templates are shared by every
// scheduler running the tree and are read-only after Tree.Initialize; all
// per-agent state lives in instance memory.
//
// The set of node kinds is closed: *Composite, *Decorator, *Service and *Task.
type Node interface {
	Name() string
	ExecutionIndex() int
	Depth() int
	ParentNode() *Composite
	ChildIndex() int
	Tree() *Tree

	base() *nodeBase
}

type nodeBase struct {
	name       string
	tree       *Tree
	parent     *Composite
	childIndex int
	execIndex  int
	depth      int
	memOffset  int
	memSize    int
	headerSize int
}

func (n *nodeBase) Name() string           { return n.name }
func (n *nodeBase) ExecutionIndex() int    { return n.execIndex }
func (n *nodeBase) Depth() int             { return n.depth }
func (n *nodeBase) ParentNode() *Composite { return n.parent }
func (n *nodeBase) ChildIndex() int        { return n.childIndex }
func (n *nodeBase) Tree() *Tree            { return n.tree }
func (n *nodeBase) base() *nodeBase        { return n }

// MemoryRange reports the byte range the node occupies in instance memory,
// header included.
func (n *nodeBase) MemoryRange() (offset, size int) {
	return n.memOffset, n.memSize
}

// Strategy interfaces. Each node kind delegates its behavior to one of these.

// CompositeLogic picks children.
type CompositeLogic interface {
	// NextChild returns the index of the child to try after prevChild finished
	// with last, or ReturnToParent. prevChild is NotInitialized on activation.
	NextChild(ctx *NodeContext, prevChild int, last NodeResult) int
}

// DecoratorLogic gates a child.
type DecoratorLogic interface {
	CalculateRawCondition(ctx *NodeContext) bool
}

// ServiceLogic runs periodically while its composite is active.
type ServiceLogic interface {
	TickNode(ctx *NodeContext, dt float64)
}

// TaskLogic does the work at the leaves.
type TaskLogic interface {
	// ExecuteTask returns Succeeded, Failed, Optional or InProgress. An
	// InProgress task must later finish through ctx.FinishLatentTask.
	ExecuteTask(ctx *NodeContext) NodeResult
}

// Optional hooks. Strategies implement the ones they need.

// MemoryUser reserves per-instance memory for a node.
type MemoryUser interface {
	MemorySize() int
}

// MemoryInitializer sets up a node's memory when an instance is created.
// Memory starts zeroed.
type MemoryInitializer interface {
	InitializeMemory(mem Memory)
}

// TreeInitializer runs once during Tree.Initialize, after indexes are
// assigned. Nodes resolve blackboard key names here.
type TreeInitializer interface {
	InitializeFromTree(node Node, tree *Tree) error
}

// Describer renders runtime state for debug snapshots.
type Describer interface {
	DescribeRuntime(ctx *NodeContext) string
}

// ChildExecutionNotifier is told when a direct child task reports a result,
// including InProgress.
type ChildExecutionNotifier interface {
	OnChildExecution(ctx *NodeContext, childIndex int, result NodeResult)
}

// ActivationNotifier is told when the composite is entered by a search.
type ActivationNotifier interface {
	OnNodeActivation(ctx *NodeContext)
}

// DeactivationNotifier is told when the composite returns to its parent and
// may rewrite the result.
type DeactivationNotifier interface {
	OnNodeDeactivation(ctx *NodeContext, result *NodeResult)
}

// SubtreeGate lets a composite refuse subtree pushes from a child.
type SubtreeGate interface {
	CanPushSubtree(ctx *NodeContext, childIndex int) bool
}

// DecoratorNotifyGate lets a composite keep a search from deactivating the
// decorators of one of its children, for children that keep running after the
// search moves on.
type DecoratorNotifyGate interface {
	CanNotifyDecoratorsOnDeactivation(ctx *NodeContext, childIndex int, result NodeResult) bool
}

// AbortCapabilities restricts which abort modes decorators under a composite
// may use. Composites without it allow everything.
type AbortCapabilities interface {
	CanAbortLowerPriority() bool
	CanAbortSelf() bool
}

// CompositeValidator checks the shape of a composite's children at load time.
type CompositeValidator interface {
	ValidateComposite(c *Composite) error
}

// RelevanceObserver is told when an aux node starts and stops being active.
type RelevanceObserver interface {
	OnBecomeRelevant(ctx *NodeContext)
	OnCeaseRelevant(ctx *NodeContext)
}

// AuxTicker receives ticks for an active decorator. Decorators throttle
// themselves with ctx.SetNextTickTime.
type AuxTicker interface {
	TickNode(ctx *NodeContext, dt float64)
}

// DecoratorFlowObserver is told when the decorated child is entered and left.
type DecoratorFlowObserver interface {
	OnNodeActivation(ctx *NodeContext)
	OnNodeDeactivation(ctx *NodeContext, result NodeResult)
}

// ResultProcessor may rewrite the decorated child's result. It is not called
// for aborted branches.
type ResultProcessor interface {
	OnNodeProcessed(ctx *NodeContext, result *NodeResult)
}

// AbortModeFilter restricts the abort modes a decorator supports.
type AbortModeFilter interface {
	AllowsAbortMode(mode FlowAbortMode) bool
}

// TaskAborter handles abort requests. Returning InProgress starts a latent
// abort that ends with ctx.FinishLatentAbort. Tasks without it abort instantly.
type TaskAborter interface {
	AbortTask(ctx *NodeContext) NodeResult
}

// TaskTicker receives ticks while the task is active or aborting.
type TaskTicker interface {
	TickTask(ctx *NodeContext, dt float64)
}

// MessageReceiver handles messages a task observes. Tasks without it finish
// with the message's success flag.
type MessageReceiver interface {
	OnMessage(ctx *NodeContext, msg Message)
}

// SubtreeReferencer names the library tree a task pushes.
type SubtreeReferencer interface {
	SubtreeName() string
}

// TaskFinishNotifier is told after a task finished and left the active state.
type TaskFinishNotifier interface {
	OnTaskFinished(ctx *NodeContext, result NodeResult)
}

// Composite runs children in an order decided by its logic.
type Composite struct {
	nodeBase

	Logic    CompositeLogic
	Children []*Child
	Services []*Service

	lastExecIndex int
}

// Child links a composite to one child node and the decorators gating it.
// Exactly one of Composite and Task is set.
type Child struct {
	Composite  *Composite
	Task       *Task
	Decorators []*Decorator
}

// Node returns the child node.
func (c *Child) Node() Node {
	if c.Composite != nil {
		return c.Composite
	}
	if c.Task != nil {
		return c.Task
	}
	return nil
}

// NewComposite creates a composite node.
func NewComposite(name string, logic CompositeLogic) *Composite {
	return &Composite{nodeBase: nodeBase{name: name, childIndex: -1}, Logic: logic}
}

// AddChild appends a child composite or task with its decorators and returns c.
// Any other node is recorded as an empty child, which Tree.Initialize rejects.
func (c *Composite) AddChild(node Node, decorators ...*Decorator) *Composite {
	child := &Child{Decorators: decorators}
	switch n := node.(type) {
	case *Composite:
		child.Composite = n
	case *Task:
		child.Task = n
	}
	c.Children = append(c.Children, child)
	return c
}

// AddService attaches a service and returns c.
func (c *Composite) AddService(s *Service) *Composite {
	c.Services = append(c.Services, s)
	return c
}

// LastExecutionIndex is the highest execution index in the composite's subtree.
func (c *Composite) LastExecutionIndex() int {
	return c.lastExecIndex
}

// ChildNode returns the node of child i, or nil.
func (c *Composite) ChildNode(i int) Node {
	if i < 0 || i >= len(c.Children) {
		return nil
	}
	return c.Children[i].Node()
}

// ChildExecutionIndex returns the execution index of child i, or of its first
// decorator in FirstNode mode. Past the last child it returns one past the
// composite's subtree.
func (c *Composite) ChildExecutionIndex(i int, mode ChildIndexMode) int {
	child := c.ChildNode(i)
	if child == nil {
		return c.lastExecIndex + 1
	}
	offset := 0
	if mode == FirstNode {
		offset = len(c.Children[i].Decorators)
	}
	return child.ExecutionIndex() - offset
}

// childIndexOf returns the index of node among c's children, or -1.
func (c *Composite) childIndexOf(node Node) int {
	for i, child := range c.Children {
		if child.Node() == node {
			return i
		}
	}
	return -1
}

func (c *Composite) canAbortLowerPriority() bool {
	if caps, ok := c.Logic.(AbortCapabilities); ok {
		return caps.CanAbortLowerPriority()
	}
	return true
}

func (c *Composite) canAbortSelf() bool {
	if caps, ok := c.Logic.(AbortCapabilities); ok {
		return caps.CanAbortSelf()
	}
	return true
}

// Decorator gates one child of a composite.
type Decorator struct {
	nodeBase

	Logic     DecoratorLogic
	AbortMode FlowAbortMode
	Inversed  bool
}

// NewDecorator creates a decorator with AbortNone.
func NewDecorator(name string, logic DecoratorLogic) *Decorator {
	return &Decorator{nodeBase: nodeBase{name: name}, Logic: logic}
}

// WithAbortMode sets the abort mode and returns d.
func (d *Decorator) WithAbortMode(mode FlowAbortMode) *Decorator {
	d.AbortMode = mode
	return d
}

// Inverse flips the condition and returns d.
func (d *Decorator) Inverse() *Decorator {
	d.Inversed = !d.Inversed
	return d
}

// Service ticks while the composite it is attached to is active. Ticks are
// spaced Interval seconds apart, randomized by up to Deviation either way.
type Service struct {
	nodeBase

	Logic     ServiceLogic
	Interval  float64
	Deviation float64
	// TickOnActivation ticks the service in the first tick after it becomes
	// relevant instead of waiting a full interval.
	TickOnActivation bool
}

// NewService creates a service node.
func NewService(name string, logic ServiceLogic, interval, deviation float64) *Service {
	return &Service{nodeBase: nodeBase{name: name}, Logic: logic, Interval: interval, Deviation: deviation}
}

// Task is a leaf doing work.
type Task struct {
	nodeBase

	Logic TaskLogic
}

// NewTask creates a task node.
func NewTask(name string, logic TaskLogic) *Task {
	return &Task{nodeBase: nodeBase{name: name}, Logic: logic}
}

func isAux(n Node) bool {
	switch n.(type) {
	case *Decorator, *Service:
		return true
	}
	return false
}

// logicOf returns the strategy behind a node.
func logicOf(n Node) any {
	switch v := n.(type) {
	case *Composite:
		return v.Logic
	case *Decorator:
		return v.Logic
	case *Service:
		return v.Logic
	case *Task:
		return v.Logic
	}
	return nil
}

func (d *Decorator) canExecute(ctx *NodeContext) bool {
	return d.Inversed != d.Logic.CalculateRawCondition(ctx)
}
