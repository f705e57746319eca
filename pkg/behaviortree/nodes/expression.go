package nodes

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	bt "github.com/dyluth/grove/pkg/behaviortree"
	"github.com/dyluth/grove/pkg/blackboard"
)

// Expression gates its branch on a boolean expr-lang program evaluated over
// blackboard values. Keys are referenced by name; vectors expose X, Y and Z
// and enums evaluate to their value name. Every referenced key is observed
// while the decorator is relevant.
type Expression struct {
	Source string

	program *vm.Program
	keys    []blackboard.KeyID
	names   []string
}

func (d *Expression) InitializeFromTree(_ bt.Node, tree *bt.Tree) error {
	if tree.Blackboard == nil {
		return fmt.Errorf("expression decorator needs a tree blackboard")
	}

	env := make(map[string]any)
	for _, k := range tree.Blackboard.Keys() {
		env[k.Name] = zeroValue(k.Type)
	}

	program, err := expr.Compile(d.Source, expr.Env(env), expr.AsBool())
	if err != nil {
		return fmt.Errorf("failed to compile expression %q: %w", d.Source, err)
	}

	parsed, err := parser.Parse(d.Source)
	if err != nil {
		return fmt.Errorf("failed to parse expression %q: %w", d.Source, err)
	}
	refs := &identCollector{seen: make(map[string]struct{})}
	ast.Walk(&parsed.Node, refs)

	d.program = program
	d.keys = d.keys[:0]
	d.names = d.names[:0]
	sort.Strings(refs.names)
	for _, name := range refs.names {
		if id := tree.Blackboard.KeyID(name); id != blackboard.InvalidKey {
			d.keys = append(d.keys, id)
			d.names = append(d.names, name)
		}
	}
	return nil
}

func (d *Expression) CalculateRawCondition(ctx *bt.NodeContext) bool {
	bb := ctx.Blackboard()
	if bb == nil || d.program == nil {
		return false
	}

	env := make(map[string]any, len(d.keys))
	for i, id := range d.keys {
		env[d.names[i]] = keyValue(bb, id)
	}
	out, err := expr.Run(d.program, env)
	if err != nil {
		ctx.Logf("expression %q failed: %v", d.Source, err)
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func (d *Expression) OnBecomeRelevant(ctx *bt.NodeContext) {
	for _, id := range d.keys {
		ctx.ObserveKey(id, func(ctx *bt.NodeContext) {
			ctx.ConditionalFlowAbort(false)
		})
	}
}

func (d *Expression) OnCeaseRelevant(*bt.NodeContext) {}

func (d *Expression) DescribeRuntime(ctx *bt.NodeContext) string {
	return fmt.Sprintf("%s = %t", d.Source, d.CalculateRawCondition(ctx))
}

// ReferencedKeys lists the blackboard keys the expression reads.
func (d *Expression) ReferencedKeys() []string {
	return d.names
}

type identCollector struct {
	seen  map[string]struct{}
	names []string
}

func (c *identCollector) Visit(node *ast.Node) {
	ident, ok := (*node).(*ast.IdentifierNode)
	if !ok {
		return
	}
	if _, dup := c.seen[ident.Value]; dup {
		return
	}
	c.seen[ident.Value] = struct{}{}
	c.names = append(c.names, ident.Value)
}

// zeroValue is the value a key type contributes to the type-checking env.
func zeroValue(t blackboard.KeyType) any {
	switch t.Kind {
	case blackboard.KindInt:
		return 0
	case blackboard.KindFloat:
		return 0.0
	case blackboard.KindBool:
		return false
	case blackboard.KindVector:
		return blackboard.Vector{}
	case blackboard.KindRotator:
		return blackboard.Rotator{}
	case blackboard.KindObject:
		return nil
	}
	return ""
}

func keyValue(bb *blackboard.Instance, id blackboard.KeyID) any {
	t, _ := bb.KeyType(id)
	switch t.Kind {
	case blackboard.KindInt:
		v, _ := bb.GetValueAsInt(id)
		return int(v)
	case blackboard.KindFloat:
		v, _ := bb.GetValueAsFloat(id)
		return float64(v)
	case blackboard.KindBool:
		v, _ := bb.GetValueAsBool(id)
		return v
	case blackboard.KindVector:
		v, _ := bb.GetValueAsVector(id)
		return v
	case blackboard.KindRotator:
		v, _ := bb.GetValueAsRotator(id)
		return v
	case blackboard.KindObject:
		v, _ := bb.GetValueAsObject(id)
		return v
	}
	return bb.DescribeValue(id)
}
