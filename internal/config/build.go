package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dyluth/grove/internal/timespec"
	bt "github.com/dyluth/grove/pkg/behaviortree"
	"github.com/dyluth/grove/pkg/behaviortree/nodes"
	"github.com/dyluth/grove/pkg/blackboard"
)

// ErrUnknownHandle is returned when an external node names a handle the
// registry does not hold.
var ErrUnknownHandle = errors.New("unknown external handle")

// Bundle is the runtime form of a configuration: finalized blackboard
// assets and an initialized tree library.
type Bundle struct {
	Assets  map[string]*blackboard.Asset
	Library *bt.Library
}

type (
	compositeFactory func(p *params) (bt.CompositeLogic, error)
	decoratorFactory func(p *params, reg *nodes.Registry) (bt.DecoratorLogic, error)
	serviceFactory   func(p *params) (bt.ServiceLogic, error)
	taskFactory      func(p *params, reg *nodes.Registry) (bt.TaskLogic, error)
)

var compositeFactories = map[string]compositeFactory{
	"selector": func(*params) (bt.CompositeLogic, error) { return nodes.Selector{}, nil },
	"sequence": func(*params) (bt.CompositeLogic, error) { return nodes.Sequence{}, nil },
	"simple_parallel": func(p *params) (bt.CompositeLogic, error) {
		finish, err := nodes.ParseParallelFinishMode(p.str("finish", ""))
		if err != nil {
			return nil, err
		}
		background, err := nodes.ParseBackgroundPolicy(p.str("background", ""))
		if err != nil {
			return nil, err
		}
		return &nodes.SimpleParallel{Finish: finish, Background: background}, nil
	},
}

var decoratorFactories = map[string]decoratorFactory{
	"blackboard": func(p *params, _ *nodes.Registry) (bt.DecoratorLogic, error) {
		key, err := p.required("key")
		if err != nil {
			return nil, err
		}
		op, err := nodes.ParseKeyOperation(p.str("op", "is_set"))
		if err != nil {
			return nil, err
		}
		observe, err := nodes.ParseObserveMode(p.str("observe", ""))
		if err != nil {
			return nil, err
		}
		return &nodes.Blackboard{Key: key, Op: op, Value: p.str("value", ""), Observe: observe}, nil
	},
	"cooldown": func(p *params, _ *nodes.Registry) (bt.DecoratorLogic, error) {
		d, err := p.seconds("duration", 5)
		if err != nil {
			return nil, err
		}
		return &nodes.Cooldown{Duration: d}, nil
	},
	"time_limit": func(p *params, _ *nodes.Registry) (bt.DecoratorLogic, error) {
		limit, err := p.seconds("limit", 5)
		if err != nil {
			return nil, err
		}
		return &nodes.TimeLimit{Limit: limit}, nil
	},
	"loop": func(p *params, _ *nodes.Registry) (bt.DecoratorLogic, error) {
		count, err := p.integer("count", 3)
		if err != nil {
			return nil, err
		}
		infinite, err := p.boolean("infinite", false)
		if err != nil {
			return nil, err
		}
		timeout, err := p.seconds("timeout", 0)
		if err != nil {
			return nil, err
		}
		if !infinite && count < 1 {
			return nil, fmt.Errorf("param 'count' must be >= 1, got %d", count)
		}
		return &nodes.Loop{Count: count, Infinite: infinite, Timeout: timeout}, nil
	},
	"force_result": func(p *params, _ *nodes.Registry) (bt.DecoratorLogic, error) {
		r, err := parseFinalResult(p)
		if err != nil {
			return nil, err
		}
		return &nodes.ForceResult{Result: r}, nil
	},
	"expression": func(p *params, _ *nodes.Registry) (bt.DecoratorLogic, error) {
		src, err := p.required("expr")
		if err != nil {
			return nil, err
		}
		return &nodes.Expression{Source: src}, nil
	},
	"external": func(p *params, reg *nodes.Registry) (bt.DecoratorLogic, error) {
		handle, err := p.required("handle")
		if err != nil {
			return nil, err
		}
		fn, ok := reg.Condition(handle)
		if !ok {
			return nil, fmt.Errorf("%w: condition '%s'", ErrUnknownHandle, handle)
		}
		poll, err := p.seconds("poll", 0)
		if err != nil {
			return nil, err
		}
		return &nodes.ExternalCondition{Handle: handle, Fn: fn, Poll: poll}, nil
	},
}

var serviceFactories = map[string]serviceFactory{
	"set_timestamp": func(p *params) (bt.ServiceLogic, error) {
		key, err := p.required("key")
		if err != nil {
			return nil, err
		}
		return &nodes.SetTimestamp{Key: key}, nil
	},
	"counter": func(p *params) (bt.ServiceLogic, error) {
		key, err := p.required("key")
		if err != nil {
			return nil, err
		}
		step, err := p.integer("step", 1)
		if err != nil {
			return nil, err
		}
		return &nodes.Counter{Key: key, Step: int32(step)}, nil
	},
}

var taskFactories = map[string]taskFactory{
	"wait": func(p *params, _ *nodes.Registry) (bt.TaskLogic, error) {
		d, dev, err := timespec.SecondsWithDeviation(p.str("duration", "5s"))
		if err != nil {
			return nil, fmt.Errorf("param 'duration': %w", err)
		}
		if dev, err = p.seconds("deviation", dev); err != nil {
			return nil, err
		}
		return &nodes.Wait{Duration: d, Deviation: dev}, nil
	},
	"run_behavior": func(p *params, _ *nodes.Registry) (bt.TaskLogic, error) {
		subtree, err := p.required("subtree")
		if err != nil {
			return nil, err
		}
		return &nodes.RunBehavior{Subtree: subtree}, nil
	},
	"set_value": func(p *params, _ *nodes.Registry) (bt.TaskLogic, error) {
		key, err := p.required("key")
		if err != nil {
			return nil, err
		}
		value, ok := p.lookup("value")
		if !ok {
			return nil, fmt.Errorf("param 'value' is required")
		}
		return &nodes.SetValue{Key: key, Value: value}, nil
	},
	"result": func(p *params, _ *nodes.Registry) (bt.TaskLogic, error) {
		r, err := parseFinalResult(p)
		if err != nil {
			return nil, err
		}
		return &nodes.Result{Result: r}, nil
	},
	"wait_for_message": func(p *params, _ *nodes.Registry) (bt.TaskLogic, error) {
		msgType, err := p.required("type")
		if err != nil {
			return nil, err
		}
		timeout, err := p.seconds("timeout", 0)
		if err != nil {
			return nil, err
		}
		task := &nodes.WaitForMessage{Type: msgType, Timeout: timeout, PayloadKey: p.str("payload_key", "")}
		if v, ok := p.lookup("request_id"); ok {
			id, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("param 'request_id': invalid id: %s", v)
			}
			task.RequestID = uint32(id)
			task.MatchID = true
		}
		return task, nil
	},
	"log": func(p *params, _ *nodes.Registry) (bt.TaskLogic, error) {
		msg, err := p.required("message")
		if err != nil {
			return nil, err
		}
		return &nodes.Log{Message: msg}, nil
	},
	"external": func(p *params, reg *nodes.Registry) (bt.TaskLogic, error) {
		handle, err := p.required("handle")
		if err != nil {
			return nil, err
		}
		fns, ok := reg.Task(handle)
		if !ok {
			return nil, fmt.Errorf("%w: task '%s'", ErrUnknownHandle, handle)
		}
		return &nodes.ExternalTask{Handle: handle, Funcs: fns}, nil
	},
	"go_tree": func(p *params, reg *nodes.Registry) (bt.TaskLogic, error) {
		handle, err := p.required("handle")
		if err != nil {
			return nil, err
		}
		node, ok := reg.GoTree(handle)
		if !ok {
			return nil, fmt.Errorf("%w: go tree '%s'", ErrUnknownHandle, handle)
		}
		return &nodes.GoTree{Handle: handle, Node: node}, nil
	},
}

// parseFinalResult reads the 'result' param, which must name a result a
// finished branch can have.
func parseFinalResult(p *params) (bt.NodeResult, error) {
	text, err := p.required("result")
	if err != nil {
		return 0, err
	}
	r, err := bt.ParseNodeResult(text)
	if err != nil {
		return 0, err
	}
	if r != bt.Succeeded && r != bt.Failed && r != bt.Optional {
		return 0, fmt.Errorf("param 'result' must be succeeded, failed or optional, got %s", text)
	}
	return r, nil
}

// Build turns a validated configuration into blackboard assets and an
// initialized tree library. reg resolves external and go_tree handles and
// may be nil when the configuration uses none.
func (c *GroveConfig) Build(reg *nodes.Registry) (*Bundle, error) {
	b := &Bundle{
		Assets:  make(map[string]*blackboard.Asset, len(c.Blackboards)),
		Library: bt.NewLibrary(),
	}

	for _, name := range sortedNames(c.Blackboards) {
		if _, err := c.buildAsset(name, b.Assets); err != nil {
			return nil, err
		}
	}

	for _, name := range sortedNames(c.Trees) {
		spec := c.Trees[name]
		root, err := buildComposite(&spec.Root, reg)
		if err != nil {
			return nil, fmt.Errorf("tree '%s': %w", name, err)
		}
		var asset *blackboard.Asset
		if spec.Blackboard != "" {
			asset = b.Assets[spec.Blackboard]
		}
		if err := b.Library.Add(bt.NewTree(name, asset, root)); err != nil {
			return nil, err
		}
	}

	if err := b.Library.Validate(); err != nil {
		return nil, fmt.Errorf("failed to initialize trees: %w", err)
	}
	return b, nil
}

func (c *GroveConfig) buildAsset(name string, built map[string]*blackboard.Asset) (*blackboard.Asset, error) {
	if a, ok := built[name]; ok {
		return a, nil
	}
	spec, ok := c.Blackboards[name]
	if !ok {
		return nil, fmt.Errorf("unknown blackboard '%s'", name)
	}

	var parent *blackboard.Asset
	if spec.Parent != "" {
		p, err := c.buildAsset(spec.Parent, built)
		if err != nil {
			return nil, err
		}
		parent = p
	}

	asset := blackboard.NewAsset(name, parent)
	for _, k := range spec.Keys {
		kt, err := k.KeyType()
		if err != nil {
			return nil, fmt.Errorf("blackboard '%s': key '%s': %w", name, k.Name, err)
		}
		asset.AddKey(k.Name, kt)
	}
	if err := asset.Finalize(); err != nil {
		return nil, fmt.Errorf("blackboard '%s': %w", name, err)
	}
	built[name] = asset
	return asset, nil
}

func buildNode(spec *NodeSpec, reg *nodes.Registry) (bt.Node, error) {
	if spec.Composite != "" {
		return buildComposite(spec, reg)
	}

	factory, ok := taskFactories[spec.Task]
	if !ok {
		return nil, fmt.Errorf("node '%s': unknown task '%s'", spec.Name, spec.Task)
	}
	p := newParams(spec.Params)
	logic, err := factory(p, reg)
	if err == nil {
		err = p.unused()
	}
	if err != nil {
		return nil, fmt.Errorf("node '%s': %w", spec.Name, err)
	}
	return bt.NewTask(spec.Name, logic), nil
}

func buildComposite(spec *NodeSpec, reg *nodes.Registry) (*bt.Composite, error) {
	factory, ok := compositeFactories[spec.Composite]
	if !ok {
		return nil, fmt.Errorf("node '%s': unknown composite '%s'", spec.Name, spec.Composite)
	}
	p := newParams(spec.Params)
	logic, err := factory(p)
	if err == nil {
		err = p.unused()
	}
	if err != nil {
		return nil, fmt.Errorf("node '%s': %w", spec.Name, err)
	}

	c := bt.NewComposite(spec.Name, logic)
	for _, svcSpec := range spec.Services {
		svc, err := buildService(svcSpec)
		if err != nil {
			return nil, fmt.Errorf("node '%s': %w", spec.Name, err)
		}
		c.AddService(svc)
	}

	for i := range spec.Children {
		child := &spec.Children[i]
		node, err := buildNode(child, reg)
		if err != nil {
			return nil, err
		}
		decorators := make([]*bt.Decorator, 0, len(child.Decorators))
		for _, decSpec := range child.Decorators {
			dec, err := buildDecorator(decSpec, reg)
			if err != nil {
				return nil, fmt.Errorf("node '%s': %w", child.Name, err)
			}
			decorators = append(decorators, dec)
		}
		c.AddChild(node, decorators...)
	}
	return c, nil
}

func buildDecorator(spec DecoratorSpec, reg *nodes.Registry) (*bt.Decorator, error) {
	factory, ok := decoratorFactories[spec.Decorator]
	if !ok {
		return nil, fmt.Errorf("unknown decorator '%s'", spec.Decorator)
	}
	p := newParams(spec.Params)
	logic, err := factory(p, reg)
	if err == nil {
		err = p.unused()
	}
	if err != nil {
		return nil, fmt.Errorf("decorator '%s': %w", spec.Name, err)
	}

	mode, err := bt.ParseFlowAbortMode(spec.Abort)
	if err != nil {
		return nil, fmt.Errorf("decorator '%s': %w", spec.Name, err)
	}
	dec := bt.NewDecorator(spec.Name, logic).WithAbortMode(mode)
	if spec.Inverse {
		dec.Inverse()
	}
	return dec, nil
}

func buildService(spec ServiceSpec) (*bt.Service, error) {
	factory, ok := serviceFactories[spec.Service]
	if !ok {
		return nil, fmt.Errorf("unknown service '%s'", spec.Service)
	}
	p := newParams(spec.Params)
	logic, err := factory(p)
	if err == nil {
		err = p.unused()
	}
	if err != nil {
		return nil, fmt.Errorf("service '%s': %w", spec.Name, err)
	}

	interval, deviation, err := timespec.SecondsWithDeviation(spec.Interval)
	if err != nil {
		return nil, fmt.Errorf("service '%s': interval: %w", spec.Name, err)
	}
	svc := bt.NewService(spec.Name, logic, interval, deviation)
	svc.TickOnActivation = spec.TickOnActivation
	return svc, nil
}

// Instantiate creates a blackboard instance for the named tree and applies
// initial values. The instance is nil for trees without a blackboard.
func (b *Bundle) Instantiate(treeName string, values map[string]string) (*bt.Tree, *blackboard.Instance, error) {
	tree, ok := b.Library.Get(treeName)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", bt.ErrUnknownSubtree, treeName)
	}
	if tree.Blackboard == nil {
		if len(values) > 0 {
			return nil, nil, fmt.Errorf("tree '%s' has no blackboard to hold initial values", treeName)
		}
		return tree, nil, nil
	}

	inst, err := blackboard.NewInstance(tree.Blackboard)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create blackboard for tree '%s': %w", treeName, err)
	}
	if err := ApplyValues(inst, values); err != nil {
		return nil, nil, err
	}
	return tree, inst, nil
}

// ApplyValues sets keys from their text form, in key-name order.
func ApplyValues(inst *blackboard.Instance, values map[string]string) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		id := inst.KeyID(name)
		if id == blackboard.InvalidKey {
			return fmt.Errorf("value for '%s': %w", name, blackboard.ErrInvalidKey)
		}
		if err := inst.SetValueFromString(id, values[name]); err != nil {
			return fmt.Errorf("value for '%s': %w", name, err)
		}
	}
	return nil
}

// Names lists the node kinds a definition file may use, grouped by role.
func Names() map[string][]string {
	return map[string][]string{
		"composite": sortedNames(compositeFactories),
		"decorator": sortedNames(decoratorFactories),
		"service":   sortedNames(serviceFactories),
		"task":      sortedNames(taskFactories),
	}
}

func kindList[V any](m map[string]V) string {
	return strings.Join(sortedNames(m), ", ")
}
