package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	bt "github.com/dyluth/grove/pkg/behaviortree"
	"github.com/dyluth/grove/pkg/blackboard"
)

// Defaults applied by Validate.
const (
	DefaultTickRate        = 10.0
	DefaultServiceInterval = "0.5s"
	DefaultMode            = "looped"
)

// GroveConfig represents the top-level grove.yml configuration
type GroveConfig struct {
	Version     string                    `yaml:"version"`
	Blackboards map[string]BlackboardSpec `yaml:"blackboards,omitempty"`
	Trees       map[string]TreeSpec       `yaml:"trees"`
	Agent       *AgentSpec                `yaml:"agent,omitempty"`
}

// BlackboardSpec declares a blackboard asset. Key order is significant: it
// fixes key ids and the instance value layout.
type BlackboardSpec struct {
	Parent string    `yaml:"parent,omitempty"`
	Keys   []KeySpec `yaml:"keys"`
}

// KeySpec declares one blackboard key
type KeySpec struct {
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"`                 // int, float, bool, string, name, enum, native_enum, vector, rotator, object, class
	Enum      []string `yaml:"enum,omitempty"`       // Required for enum and native_enum keys
	EnumName  string   `yaml:"enum_name,omitempty"`  // Defaults to the key name
	BaseClass string   `yaml:"base_class,omitempty"` // Object and class keys only
}

// TreeSpec declares a behavior tree and the blackboard it runs against
type TreeSpec struct {
	Blackboard string   `yaml:"blackboard,omitempty"`
	Root       NodeSpec `yaml:"root"`
}

// NodeSpec is a composite or task node. Exactly one of Composite and Task is set.
type NodeSpec struct {
	Name       string            `yaml:"name,omitempty"` // Defaults to the node kind
	Composite  string            `yaml:"composite,omitempty"`
	Task       string            `yaml:"task,omitempty"`
	Params     map[string]string `yaml:"params,omitempty"`
	Services   []ServiceSpec     `yaml:"services,omitempty"`   // Composites only
	Decorators []DecoratorSpec   `yaml:"decorators,omitempty"` // Not allowed on the root
	Children   []NodeSpec        `yaml:"children,omitempty"`   // Composites only
}

// DecoratorSpec declares a decorator on the node that carries it
type DecoratorSpec struct {
	Decorator string            `yaml:"decorator"`
	Name      string            `yaml:"name,omitempty"`
	Abort     string            `yaml:"abort,omitempty"` // none, lower_priority, self or both
	Inverse   bool              `yaml:"inverse,omitempty"`
	Params    map[string]string `yaml:"params,omitempty"`
}

// ServiceSpec declares a service on a composite
type ServiceSpec struct {
	Service          string            `yaml:"service"`
	Name             string            `yaml:"name,omitempty"`
	Interval         string            `yaml:"interval,omitempty"` // e.g. "1s" or "1s±0.2s", default 0.5s
	TickOnActivation bool              `yaml:"tick_on_activation,omitempty"`
	Params           map[string]string `yaml:"params,omitempty"`
}

// AgentSpec configures the agent runtime
type AgentSpec struct {
	Tree               string            `yaml:"tree,omitempty"` // Required when more than one tree is defined
	Mode               string            `yaml:"mode,omitempty"` // "looped" (default) or "single_run"
	TickRate           float64           `yaml:"tick_rate,omitempty"`
	MaxSearchesPerTick int               `yaml:"max_searches_per_tick,omitempty"`
	Values             map[string]string `yaml:"values,omitempty"` // Initial blackboard values by key name
}

// Validate performs strict validation on the configuration and applies defaults
func (c *GroveConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: at least one tree
	if len(c.Trees) == 0 {
		return fmt.Errorf("no trees defined")
	}

	for _, name := range sortedNames(c.Blackboards) {
		if err := c.validateBlackboard(name); err != nil {
			return err
		}
	}

	for _, name := range sortedNames(c.Trees) {
		spec := c.Trees[name]
		if spec.Blackboard != "" {
			if _, ok := c.Blackboards[spec.Blackboard]; !ok {
				return fmt.Errorf("tree '%s': unknown blackboard '%s'", name, spec.Blackboard)
			}
		}
		if spec.Root.Composite == "" {
			return fmt.Errorf("tree '%s': root must be a composite", name)
		}
		if len(spec.Root.Decorators) > 0 {
			return fmt.Errorf("tree '%s': the root cannot carry decorators", name)
		}
		seen := make(map[string]string)
		if err := validateNode(name, &spec.Root, "", seen); err != nil {
			return err
		}
		c.Trees[name] = spec
	}

	return c.validateAgent()
}

func (c *GroveConfig) validateBlackboard(name string) error {
	spec := c.Blackboards[name]

	// Parent chain must resolve and terminate
	visited := map[string]bool{name: true}
	for parent := spec.Parent; parent != ""; parent = c.Blackboards[parent].Parent {
		if _, ok := c.Blackboards[parent]; !ok {
			return fmt.Errorf("blackboard '%s': unknown parent '%s'", name, parent)
		}
		if visited[parent] {
			return fmt.Errorf("blackboard '%s': parent chain loops back to '%s'", name, parent)
		}
		visited[parent] = true
	}

	for i, key := range spec.Keys {
		if key.Name == "" {
			return fmt.Errorf("blackboard '%s': key %d has no name", name, i)
		}
		if _, err := key.KeyType(); err != nil {
			return fmt.Errorf("blackboard '%s': key '%s': %w", name, key.Name, err)
		}
	}
	return nil
}

// KeyType converts the declaration into a blackboard key type.
func (k KeySpec) KeyType() (blackboard.KeyType, error) {
	kind, err := blackboard.ParseKind(k.Type)
	if err != nil {
		return blackboard.KeyType{}, err
	}

	t := blackboard.KeyType{Kind: kind}
	switch kind {
	case blackboard.KindEnum, blackboard.KindNativeEnum:
		if len(k.Enum) == 0 {
			return blackboard.KeyType{}, fmt.Errorf("%s keys need at least one enum value", kind)
		}
		if len(k.Enum) > 255 {
			return blackboard.KeyType{}, fmt.Errorf("too many enum values (%d, max 255)", len(k.Enum))
		}
		t.EnumName = k.EnumName
		if t.EnumName == "" {
			t.EnumName = k.Name
		}
		t.EnumValues = append([]string(nil), k.Enum...)
	case blackboard.KindObject, blackboard.KindClass:
		t.BaseClass = k.BaseClass
	default:
		if len(k.Enum) > 0 {
			return blackboard.KeyType{}, fmt.Errorf("enum values are only valid on enum keys")
		}
	}
	return t, nil
}

// validateNode checks structure and kind names, and fills in default names.
// seen maps node names to their paths so duplicates can be reported.
func validateNode(tree string, n *NodeSpec, parentPath string, seen map[string]string) error {
	switch {
	case n.Composite != "" && n.Task != "":
		return fmt.Errorf("tree '%s': node %s sets both composite and task", tree, nodePath(parentPath, n))
	case n.Composite == "" && n.Task == "":
		return fmt.Errorf("tree '%s': node %s must set composite or task", tree, nodePath(parentPath, n))
	}

	if n.Name == "" {
		n.Name = n.Kind()
	}
	path := nodePath(parentPath, n)
	if other, dup := seen[n.Name]; dup {
		return fmt.Errorf("tree '%s': duplicate node name '%s' at %s and %s (set name to tell them apart)", tree, n.Name, other, path)
	}
	seen[n.Name] = path

	if n.Task != "" {
		if _, ok := taskFactories[n.Task]; !ok {
			return fmt.Errorf("tree '%s': node %s: unknown task '%s' (valid: %s)", tree, path, n.Task, kindList(taskFactories))
		}
		if len(n.Children) > 0 || len(n.Services) > 0 {
			return fmt.Errorf("tree '%s': node %s: tasks cannot have children or services", tree, path)
		}
	} else {
		if _, ok := compositeFactories[n.Composite]; !ok {
			return fmt.Errorf("tree '%s': node %s: unknown composite '%s' (valid: %s)", tree, path, n.Composite, kindList(compositeFactories))
		}
		if len(n.Children) == 0 {
			return fmt.Errorf("tree '%s': node %s: composites need at least one child", tree, path)
		}
	}

	for i := range n.Services {
		svc := &n.Services[i]
		if _, ok := serviceFactories[svc.Service]; !ok {
			return fmt.Errorf("tree '%s': node %s: unknown service '%s' (valid: %s)", tree, path, svc.Service, kindList(serviceFactories))
		}
		if svc.Name == "" {
			svc.Name = svc.Service
		}
		if svc.Interval == "" {
			svc.Interval = DefaultServiceInterval
		}
		if err := claimName(tree, seen, svc.Name, path+"["+svc.Name+"]"); err != nil {
			return err
		}
	}

	for i := range n.Decorators {
		dec := &n.Decorators[i]
		if _, ok := decoratorFactories[dec.Decorator]; !ok {
			return fmt.Errorf("tree '%s': node %s: unknown decorator '%s' (valid: %s)", tree, path, dec.Decorator, kindList(decoratorFactories))
		}
		if _, err := bt.ParseFlowAbortMode(dec.Abort); err != nil {
			return fmt.Errorf("tree '%s': node %s: decorator '%s': %w", tree, path, dec.Decorator, err)
		}
		if dec.Name == "" {
			dec.Name = dec.Decorator
		}
		if err := claimName(tree, seen, dec.Name, path+"("+dec.Name+")"); err != nil {
			return err
		}
	}

	for i := range n.Children {
		if err := validateNode(tree, &n.Children[i], path, seen); err != nil {
			return err
		}
	}
	return nil
}

func claimName(tree string, seen map[string]string, name, path string) error {
	if other, dup := seen[name]; dup {
		return fmt.Errorf("tree '%s': duplicate node name '%s' at %s and %s (set name to tell them apart)", tree, name, other, path)
	}
	seen[name] = path
	return nil
}

func (c *GroveConfig) validateAgent() error {
	// Apply default agent config if missing
	if c.Agent == nil {
		c.Agent = &AgentSpec{}
	}
	a := c.Agent

	if a.Tree == "" {
		if len(c.Trees) != 1 {
			return fmt.Errorf("agent.tree is required when more than one tree is defined")
		}
		for name := range c.Trees {
			a.Tree = name
		}
	}
	if _, ok := c.Trees[a.Tree]; !ok {
		return fmt.Errorf("agent.tree: unknown tree '%s'", a.Tree)
	}

	if a.Mode == "" {
		a.Mode = DefaultMode
	}
	if _, err := a.ExecutionMode(); err != nil {
		return err
	}

	if a.TickRate == 0 {
		a.TickRate = DefaultTickRate
	}
	if a.TickRate < 0 {
		return fmt.Errorf("agent.tick_rate must be > 0, got %g", a.TickRate)
	}
	if a.MaxSearchesPerTick < 0 {
		return fmt.Errorf("agent.max_searches_per_tick must be >= 0 (0 = default), got %d", a.MaxSearchesPerTick)
	}
	return nil
}

// ExecutionMode resolves the agent's run mode.
func (a *AgentSpec) ExecutionMode() (bt.ExecutionMode, error) {
	switch a.Mode {
	case "looped", "":
		return bt.Looped, nil
	case "single_run":
		return bt.SingleRun, nil
	}
	return 0, fmt.Errorf("agent.mode: invalid mode: %s (must be 'looped' or 'single_run')", a.Mode)
}

// Kind returns the composite or task kind of the node.
func (n *NodeSpec) Kind() string {
	if n.Composite != "" {
		return n.Composite
	}
	return n.Task
}

func nodePath(parent string, n *NodeSpec) string {
	name := n.Name
	if name == "" {
		name = n.Kind()
	}
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse decodes and validates a grove.yml document
func Parse(data []byte) (*GroveConfig, error) {
	var config GroveConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Load reads and validates grove.yml from the specified path
func Load(path string) (*GroveConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}
