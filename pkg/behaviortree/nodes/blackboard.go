package nodes

import (
	"fmt"
	"strconv"
	"strings"

	bt "github.com/dyluth/grove/pkg/behaviortree"
	"github.com/dyluth/grove/pkg/blackboard"
)

// KeyOperation is the test a Blackboard decorator applies to its key.
type KeyOperation uint8

const (
	OpIsSet KeyOperation = iota
	OpIsNotSet
	OpEqual
	OpNotEqual
	OpLess
	OpLessOrEqual
	OpGreater
	OpGreaterOrEqual
	OpContains
)

var opNames = [...]string{
	OpIsSet:          "is_set",
	OpIsNotSet:       "is_not_set",
	OpEqual:          "equal",
	OpNotEqual:       "not_equal",
	OpLess:           "less",
	OpLessOrEqual:    "less_or_equal",
	OpGreater:        "greater",
	OpGreaterOrEqual: "greater_or_equal",
	OpContains:       "contains",
}

func (o KeyOperation) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// ParseKeyOperation resolves an operation from its string form.
func ParseKeyOperation(s string) (KeyOperation, error) {
	for i, n := range opNames {
		if n == s {
			return KeyOperation(i), nil
		}
	}
	return 0, fmt.Errorf("unknown key operation: %q", s)
}

func (o KeyOperation) needsValue() bool {
	return o != OpIsSet && o != OpIsNotSet
}

// ObserveMode controls when a Blackboard decorator reacts to key changes.
type ObserveMode uint8

const (
	// OnResultChange requests execution only when the test result flips.
	OnResultChange ObserveMode = iota
	// OnValueChange also restarts a running branch whenever the value changes
	// and the test still passes.
	OnValueChange
)

// ParseObserveMode resolves an observe mode from its string form.
func ParseObserveMode(s string) (ObserveMode, error) {
	switch s {
	case "", "on_result_change":
		return OnResultChange, nil
	case "on_value_change":
		return OnValueChange, nil
	}
	return 0, fmt.Errorf("unknown observe mode: %q", s)
}

// Blackboard gates its branch on a test of one blackboard key and observes
// the key while relevant.
type Blackboard struct {
	Key     string
	Op      KeyOperation
	Value   string
	Observe ObserveMode

	keyID   blackboard.KeyID
	keyType blackboard.KeyType
	number  float64
}

func (d *Blackboard) InitializeFromTree(_ bt.Node, tree *bt.Tree) error {
	id, err := resolveKey(tree, d.Key)
	if err != nil {
		return err
	}
	key, _ := tree.Blackboard.Key(id)
	d.keyID = id
	d.keyType = key.Type

	if !d.Op.needsValue() {
		return nil
	}
	switch d.Op {
	case OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
		if key.Type.Kind != blackboard.KindInt && key.Type.Kind != blackboard.KindFloat {
			return fmt.Errorf("key '%s' of type %s does not support %s", d.Key, key.Type, d.Op)
		}
	case OpContains:
		if key.Type.Kind != blackboard.KindString && key.Type.Kind != blackboard.KindName {
			return fmt.Errorf("key '%s' of type %s does not support %s", d.Key, key.Type, d.Op)
		}
	}

	switch key.Type.Kind {
	case blackboard.KindInt, blackboard.KindFloat:
		n, err := strconv.ParseFloat(strings.TrimSpace(d.Value), 64)
		if err != nil {
			return fmt.Errorf("key '%s': invalid number %q", d.Key, d.Value)
		}
		d.number = n
	case blackboard.KindEnum, blackboard.KindNativeEnum:
		v, err := blackboard.ParseEnumValue(key.Type, d.Value)
		if err != nil {
			return fmt.Errorf("key '%s': %w", d.Key, err)
		}
		d.number = float64(v)
	case blackboard.KindObject:
		return fmt.Errorf("key '%s': object keys only support is_set and is_not_set", d.Key)
	}
	return nil
}

func (d *Blackboard) CalculateRawCondition(ctx *bt.NodeContext) bool {
	bb := ctx.Blackboard()
	if bb == nil {
		return false
	}

	switch d.Op {
	case OpIsSet:
		return d.isSet(bb)
	case OpIsNotSet:
		return !d.isSet(bb)
	}

	switch d.keyType.Kind {
	case blackboard.KindInt, blackboard.KindFloat, blackboard.KindEnum, blackboard.KindNativeEnum:
		return compareNumbers(d.Op, d.numberValue(bb), d.number)
	}

	text := bb.DescribeValue(d.keyID)
	switch d.Op {
	case OpEqual:
		return text == d.Value
	case OpNotEqual:
		return text != d.Value
	case OpContains:
		return strings.Contains(text, d.Value)
	}
	return false
}

func (d *Blackboard) numberValue(bb *blackboard.Instance) float64 {
	switch d.keyType.Kind {
	case blackboard.KindInt:
		v, _ := bb.GetValueAsInt(d.keyID)
		return float64(v)
	case blackboard.KindFloat:
		v, _ := bb.GetValueAsFloat(d.keyID)
		return float64(v)
	default:
		v, _ := bb.GetValueAsEnum(d.keyID)
		return float64(v)
	}
}

func (d *Blackboard) isSet(bb *blackboard.Instance) bool {
	switch d.keyType.Kind {
	case blackboard.KindObject:
		v, _ := bb.GetValueAsObject(d.keyID)
		return v != nil
	case blackboard.KindBool:
		v, _ := bb.GetValueAsBool(d.keyID)
		return v
	case blackboard.KindVector:
		v, _ := bb.GetValueAsVector(d.keyID)
		return v.IsValid()
	case blackboard.KindRotator:
		v, _ := bb.GetValueAsRotator(d.keyID)
		return v.IsValid()
	case blackboard.KindInt, blackboard.KindFloat, blackboard.KindEnum, blackboard.KindNativeEnum:
		return d.numberValue(bb) != 0
	}
	return bb.DescribeValue(d.keyID) != ""
}

func compareNumbers(op KeyOperation, a, b float64) bool {
	switch op {
	case OpEqual:
		return a == b
	case OpNotEqual:
		return a != b
	case OpLess:
		return a < b
	case OpLessOrEqual:
		return a <= b
	case OpGreater:
		return a > b
	case OpGreaterOrEqual:
		return a >= b
	}
	return false
}

func (d *Blackboard) OnBecomeRelevant(ctx *bt.NodeContext) {
	always := d.Observe == OnValueChange
	ctx.ObserveKey(d.keyID, func(ctx *bt.NodeContext) {
		ctx.ConditionalFlowAbort(always)
	})
}

func (d *Blackboard) OnCeaseRelevant(*bt.NodeContext) {}

func (d *Blackboard) DescribeRuntime(ctx *bt.NodeContext) string {
	bb := ctx.Blackboard()
	if bb == nil {
		return ""
	}
	current := bb.DescribeValue(d.keyID)
	if !d.Op.needsValue() {
		return fmt.Sprintf("%s %s (%s)", d.Key, d.Op, current)
	}
	return fmt.Sprintf("%s %s %s (%s)", d.Key, d.Op, d.Value, current)
}
