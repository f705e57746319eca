package behaviortree

import (
	"fmt"
	"sort"
)

// Library holds named trees so tasks can push subtrees by name.
type Library struct {
	trees map[string]*Tree
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{trees: make(map[string]*Tree)}
}

// Add registers t under its name.
func (l *Library) Add(t *Tree) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tree name cannot be empty")
	}
	if _, exists := l.trees[t.Name]; exists {
		return fmt.Errorf("tree '%s' is already registered", t.Name)
	}
	l.trees[t.Name] = t
	return nil
}

// Get returns the named tree.
func (l *Library) Get(name string) (*Tree, bool) {
	if l == nil {
		return nil, false
	}
	t, ok := l.trees[name]
	return t, ok
}

// Names returns the registered tree names in sorted order.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.trees))
	for name := range l.trees {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate initializes every tree and checks that subtree references resolve
// and never lead back to a tree already on the path.
func (l *Library) Validate() error {
	names := l.Names()
	for _, name := range names {
		if err := l.trees[name].Initialize(); err != nil {
			return err
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(names))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("subtree path %v -> %s: %w", path, name, ErrCycle)
		case done:
			return nil
		}
		state[name] = visiting
		path = append(path, name)

		for _, ref := range l.trees[name].SubtreeReferences() {
			if _, ok := l.trees[ref]; !ok {
				return fmt.Errorf("tree '%s' references '%s': %w", name, ref, ErrUnknownSubtree)
			}
			if err := visit(ref, path); err != nil {
				return err
			}
		}

		state[name] = done
		return nil
	}

	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}
