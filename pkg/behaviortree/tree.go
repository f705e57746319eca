package behaviortree

import (
	"errors"
	"fmt"

	"github.com/dyluth/grove/pkg/blackboard"
)

// Tree is a shared, read-only behavior tree template.
//
// Build the node graph, then call Initialize once. Initialize numbers the
// nodes in pre-order, lays out instance memory and validates the graph.
// After that the tree may be run by any number of schedulers at once.
type Tree struct {
	Name       string
	Blackboard *blackboard.Asset
	Root       *Composite

	initialized bool
	memorySize  int
	nodes       []Node
	subtrees    []string
}

// NewTree creates a tree. bb may be nil for trees that use no keys.
func NewTree(name string, bb *blackboard.Asset, root *Composite) *Tree {
	return &Tree{Name: name, Blackboard: bb, Root: root}
}

// IsInitialized reports whether Initialize succeeded.
func (t *Tree) IsInitialized() bool {
	return t.initialized
}

// MemorySize is the number of bytes one instance of the tree needs.
func (t *Tree) MemorySize() int {
	return t.memorySize
}

// Nodes returns every node ordered by execution index.
func (t *Tree) Nodes() []Node {
	return t.nodes
}

// NodeAt returns the node with the given execution index, or nil.
func (t *Tree) NodeAt(execIndex int) Node {
	if execIndex < 0 || execIndex >= len(t.nodes) {
		return nil
	}
	return t.nodes[execIndex]
}

// SubtreeReferences lists the library trees pushed by tasks of this tree.
func (t *Tree) SubtreeReferences() []string {
	return t.subtrees
}

// Initialize assigns execution indexes, depths, parents and memory offsets,
// then validates abort modes and runs node initializers. It is idempotent
// once it has succeeded.
func (t *Tree) Initialize() error {
	if t.initialized {
		return nil
	}
	if t.Root == nil {
		return fmt.Errorf("tree '%s': root composite is required", t.Name)
	}
	if t.Blackboard != nil && !t.Blackboard.IsFinalized() {
		return fmt.Errorf("tree '%s': %w", t.Name, blackboard.ErrNotFinalized)
	}

	b := &treeBuilder{tree: t, visited: make(map[Node]struct{})}
	if err := b.visitComposite(t.Root, nil, -1, 0); err != nil {
		return err
	}

	t.nodes = b.nodes
	t.memorySize = layoutMemory(b.nodes)
	t.subtrees = nil

	for _, n := range t.nodes {
		if err := t.validateNode(n); err != nil {
			return err
		}
		if init, ok := logicOf(n).(TreeInitializer); ok {
			if err := init.InitializeFromTree(n, t); err != nil {
				return fmt.Errorf("tree '%s': node '%s': %w", t.Name, n.Name(), err)
			}
		}
		if ref, ok := logicOf(n).(SubtreeReferencer); ok && ref.SubtreeName() != "" {
			t.subtrees = append(t.subtrees, ref.SubtreeName())
		}
	}

	t.initialized = true
	return nil
}

type treeBuilder struct {
	tree    *Tree
	visited map[Node]struct{}
	nodes   []Node
}

func (b *treeBuilder) add(n Node, parent *Composite, childIndex, depth int) error {
	if _, seen := b.visited[n]; seen {
		return fmt.Errorf("tree '%s': node '%s' is reachable more than once: %w", b.tree.Name, n.Name(), ErrCycle)
	}
	b.visited[n] = struct{}{}

	nb := n.base()
	nb.tree = b.tree
	nb.parent = parent
	nb.childIndex = childIndex
	nb.depth = depth
	nb.execIndex = len(b.nodes)
	b.nodes = append(b.nodes, n)
	return nil
}

func (b *treeBuilder) visitComposite(c *Composite, parent *Composite, childIndex, depth int) error {
	if c.Logic == nil {
		return fmt.Errorf("tree '%s': composite '%s' has no logic", b.tree.Name, c.Name())
	}
	if err := b.add(c, parent, childIndex, depth); err != nil {
		return err
	}

	for _, s := range c.Services {
		if s == nil || s.Logic == nil {
			return fmt.Errorf("tree '%s': composite '%s' has a service without logic", b.tree.Name, c.Name())
		}
		if err := b.add(s, c, -1, depth); err != nil {
			return err
		}
	}

	for i, child := range c.Children {
		for _, d := range child.Decorators {
			if d == nil || d.Logic == nil {
				return fmt.Errorf("tree '%s': child %d of '%s' has a decorator without logic", b.tree.Name, i, c.Name())
			}
			if err := b.add(d, c, i, depth+1); err != nil {
				return err
			}
		}
		switch {
		case child.Composite != nil:
			if err := b.visitComposite(child.Composite, c, i, depth+1); err != nil {
				return err
			}
		case child.Task != nil:
			if child.Task.Logic == nil {
				return fmt.Errorf("tree '%s': task '%s' has no logic", b.tree.Name, child.Task.Name())
			}
			if err := b.add(child.Task, c, i, depth+1); err != nil {
				return err
			}
		default:
			return fmt.Errorf("tree '%s': child %d of '%s' has no node", b.tree.Name, i, c.Name())
		}
	}

	c.lastExecIndex = len(b.nodes) - 1
	return nil
}

// layoutMemory assigns each node an aligned, disjoint memory range and
// returns the total size.
func layoutMemory(nodes []Node) int {
	offset := 0
	for _, n := range nodes {
		nb := n.base()
		switch n.(type) {
		case *Composite:
			nb.headerSize = compositeHeaderSize
		case *Decorator, *Service:
			nb.headerSize = auxHeaderSize
		default:
			nb.headerSize = 0
		}
		size := nb.headerSize
		if mu, ok := logicOf(n).(MemoryUser); ok {
			size += mu.MemorySize()
		}
		nb.memOffset = offset
		nb.memSize = size
		offset += alignMemory(size)
	}
	return offset
}

func (t *Tree) validateNode(n Node) error {
	switch v := n.(type) {
	case *Composite:
		if cv, ok := v.Logic.(CompositeValidator); ok {
			if err := cv.ValidateComposite(v); err != nil {
				return fmt.Errorf("tree '%s': composite '%s': %w", t.Name, v.Name(), err)
			}
		}
	case *Decorator:
		if reason := abortModeViolation(v, t.Root); reason != "" {
			return &AbortModeViolation{
				Tree:      t.Name,
				Decorator: v.Name(),
				Parent:    v.ParentNode().Name(),
				Mode:      v.AbortMode,
				Reason:    reason,
			}
		}
	}
	return nil
}

// abortModeViolation returns why d's abort mode is invalid at its position,
// or "" when it is valid. Lower priority means anything after the decorated
// child in execution order, not only its later siblings.
func abortModeViolation(d *Decorator, root *Composite) string {
	mode := d.AbortMode
	if mode == AbortNone {
		return ""
	}
	if mode > AbortBoth {
		return "unknown abort mode"
	}
	if f, ok := d.Logic.(AbortModeFilter); ok && !f.AllowsAbortMode(mode) {
		return "not supported by the decorator"
	}

	parent := d.ParentNode()
	lower := mode == AbortLowerPriority || mode == AbortBoth
	self := mode == AbortSelf || mode == AbortBoth

	if lower && !parent.canAbortLowerPriority() {
		return "parent composite cannot abort lower priority branches"
	}
	if self && !parent.canAbortSelf() {
		return "parent composite cannot abort its own branches"
	}
	if mode == AbortLowerPriority && lastExecutionIndex(parent.ChildNode(d.ChildIndex())) >= root.LastExecutionIndex() {
		return "nothing of lower priority follows the decorated child"
	}
	return ""
}

// IsAbortModeViolation reports whether err carries an *AbortModeViolation.
func IsAbortModeViolation(err error) bool {
	var v *AbortModeViolation
	return errors.As(err, &v)
}

func lastExecutionIndex(n Node) int {
	if c, ok := n.(*Composite); ok {
		return c.LastExecutionIndex()
	}
	return n.ExecutionIndex()
}
