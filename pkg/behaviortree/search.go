package behaviortree

import "slices"

// nodeUpdate is a pending change to the set of active aux nodes or parallel
// tasks, collected during a search and applied once it ends.
type nodeUpdate struct {
	aux        Node
	task       *Task
	instance   int
	mode       updateMode
	postUpdate bool
}

func (u nodeUpdate) node() Node {
	if u.aux != nil {
		return u.aux
	}
	return u.task
}

type searchData struct {
	pendingUpdates []nodeUpdate
	searchStart    NodeIndex
	searchID       uint32
}

func (sd *searchData) reset() {
	sd.pendingUpdates = sd.pendingUpdates[:0]
	sd.searchStart = unsetNodeIndex
}

// addUniqueUpdate queues u. A duplicate of a pending update is dropped and a
// pending update of the opposite mode for the same node cancels out.
func (s *Scheduler) addUniqueUpdate(u nodeUpdate) {
	skip := false
	for i := 0; i < len(s.search.pendingUpdates); i++ {
		p := s.search.pendingUpdates[i]
		if p.aux != u.aux || p.task != u.task || p.instance != u.instance {
			continue
		}
		if p.mode == u.mode {
			skip = true
			break
		}
		skip = p.mode == updateRemove || u.mode == updateRemove
		s.search.pendingUpdates = slices.Delete(s.search.pendingUpdates, i, i+1)
		i--
	}

	if !skip && u.mode == updateRemove && u.aux != nil {
		skip = !s.IsAuxNodeActive(u.aux, u.instance)
	}
	if skip {
		return
	}

	_, isService := u.aux.(*Service)
	u.postUpdate = u.mode == updateAdd && isService
	s.search.pendingUpdates = append(s.search.pendingUpdates, u)
}

// Composite search behavior. These run against the active instance.

func (s *Scheduler) onCompositeActivation(c *Composite) {
	idx := s.activeIdx
	s.onCompositeRestart(c)
	if an, ok := c.Logic.(ActivationNotifier); ok {
		an.OnNodeActivation(s.newContext(c, idx))
	}
	for _, svc := range c.Services {
		s.addUniqueUpdate(nodeUpdate{aux: svc, instance: idx, mode: updateAdd})
	}
}

func (s *Scheduler) onCompositeRestart(c *Composite) {
	mem := s.instances[s.activeIdx].nodeMemory(c)
	mem.setCurrentChild(NotInitialized)
	mem.setOverrideChild(NotInitialized)
}

func (s *Scheduler) onCompositeDeactivation(c *Composite, result *NodeResult) {
	idx := s.activeIdx
	if dn, ok := c.Logic.(DeactivationNotifier); ok {
		dn.OnNodeDeactivation(s.newContext(c, idx), result)
	}
	for _, svc := range c.Services {
		s.addUniqueUpdate(nodeUpdate{aux: svc, instance: idx, mode: updateRemove})
	}
}

// onChildActivation enters child i of c: decorators are notified and their
// observers queued, then the child composite is activated.
func (s *Scheduler) onChildActivation(c *Composite, i int) {
	idx := s.activeIdx
	child := c.Children[i]

	for _, d := range child.Decorators {
		if fo, ok := d.Logic.(DecoratorFlowObserver); ok {
			fo.OnNodeActivation(s.newContext(d, idx))
		}
		switch d.AbortMode {
		case AbortLowerPriority:
			s.addUniqueUpdate(nodeUpdate{aux: d, instance: idx, mode: updateRemove})
		case AbortSelf, AbortBoth:
			s.addUniqueUpdate(nodeUpdate{aux: d, instance: idx, mode: updateAdd})
		}
	}

	if child.Composite != nil {
		s.onCompositeActivation(child.Composite)
	}
	s.instances[idx].nodeMemory(c).setCurrentChild(i)
}

// onChildDeactivation leaves the child of c that childNode belongs to. A
// node that is not a direct child (a subtree root) maps to the current child.
func (s *Scheduler) onChildDeactivation(c *Composite, childNode Node, result *NodeResult) {
	i := -1
	if childNode != nil && childNode.ParentNode() == c {
		i = childNode.ChildIndex()
	} else {
		i = s.instances[s.activeIdx].nodeMemory(c).currentChild()
	}
	s.onChildIndexDeactivation(c, i, result)
}

func (s *Scheduler) onChildIndexDeactivation(c *Composite, i int, result *NodeResult) {
	if i < 0 || i >= len(c.Children) {
		return
	}
	idx := s.activeIdx
	child := c.Children[i]

	if child.Composite != nil {
		s.onCompositeDeactivation(child.Composite, result)
	}

	if gate, ok := c.Logic.(DecoratorNotifyGate); ok && !gate.CanNotifyDecoratorsOnDeactivation(s.newContext(c, idx), i, *result) {
		return
	}

	aborted := *result == Aborted
	for _, d := range child.Decorators {
		ctx := s.newContext(d, idx)
		if !aborted {
			if rp, ok := d.Logic.(ResultProcessor); ok {
				rp.OnNodeProcessed(ctx, result)
			}
		}
		if fo, ok := d.Logic.(DecoratorFlowObserver); ok {
			fo.OnNodeDeactivation(ctx, *result)
		}
		switch d.AbortMode {
		case AbortSelf:
			s.addUniqueUpdate(nodeUpdate{aux: d, instance: idx, mode: updateRemove})
		case AbortLowerPriority:
			s.addUniqueUpdate(nodeUpdate{aux: d, instance: idx, mode: updateAddForLowerPri})
		}
	}
}

func (s *Scheduler) notifyDecoratorsOnFailedActivation(c *Composite, i int) {
	idx := s.activeIdx
	for _, d := range c.Children[i].Decorators {
		if d.AbortMode == AbortLowerPriority || d.AbortMode == AbortBoth {
			s.addUniqueUpdate(nodeUpdate{aux: d, instance: idx, mode: updateAddForLowerPri})
		}
	}
}

// doDecoratorsAllowExecution checks every decorator of child i of c in
// instance idx.
func (s *Scheduler) doDecoratorsAllowExecution(c *Composite, idx, i int) bool {
	if i < 0 || i >= len(c.Children) {
		return true
	}
	for _, d := range c.Children[i].Decorators {
		allowed := d.canExecute(s.newContext(d, idx))
		s.emit(TraceSearchStep, idx, d, boolResult(allowed), "decorator check")
		if !allowed {
			return false
		}
	}
	return true
}

// findChildToExecute returns the next child of c that its decorators allow,
// or a special child index. lastResult becomes Failed for every child a
// decorator rejects.
func (s *Scheduler) findChildToExecute(c *Composite, lastResult *NodeResult) int {
	if len(c.Children) == 0 {
		return ReturnToParent
	}
	mem := s.instances[s.activeIdx].nodeMemory(c)

	childIdx := s.nextChild(c, mem.currentChild(), *lastResult)
	for childIdx >= 0 && childIdx < len(c.Children) {
		if s.doDecoratorsAllowExecution(c, s.activeIdx, childIdx) {
			s.onChildActivation(c, childIdx)
			return childIdx
		}
		*lastResult = Failed
		s.notifyDecoratorsOnFailedActivation(c, childIdx)
		childIdx = s.nextChild(c, childIdx, *lastResult)
	}
	if childIdx == SuspendSearch {
		return SuspendSearch
	}
	return ReturnToParent
}

// nextChild resolves the next child: inside the search start's range first,
// then a pending override, then the composite's logic.
func (s *Scheduler) nextChild(c *Composite, prevChild int, last NodeResult) int {
	mem := s.instances[s.activeIdx].nodeMemory(c)
	own := NodeIndex{InstanceIndex: s.activeIdx, ExecutionIndex: c.ExecutionIndex()}

	switch {
	case prevChild == NotInitialized && s.search.searchStart.IsSet() && own.TakesPriorityOver(s.search.searchStart):
		return s.matchingChildIndex(c, s.activeIdx, s.search.searchStart)
	case mem.overrideChild() != NotInitialized && !s.IsRestartPending():
		next := mem.overrideChild()
		mem.setOverrideChild(NotInitialized)
		return next
	default:
		return c.Logic.NextChild(s.newContext(c, s.activeIdx), prevChild, last)
	}
}

// matchingChildIndex returns the child of c whose branch contains idx.
func (s *Scheduler) matchingChildIndex(c *Composite, activeInstance int, idx NodeIndex) int {
	last := len(c.Children) - 1
	if activeInstance == idx.InstanceIndex {
		if c.ExecutionIndex() > idx.ExecutionIndex {
			return ReturnToParent
		}
		for i := range c.Children {
			if c.ChildExecutionIndex(i, FirstNode) > idx.ExecutionIndex {
				if i > 0 {
					return i - 1
				}
				return 0
			}
		}
		return last
	}
	// a start in an outer instance allows every child, one in an inner
	// instance allows none
	if activeInstance > idx.InstanceIndex {
		return last
	}
	return ReturnToParent
}

// conditionalNotifyChildExecution tells c that its child task reported result.
func (s *Scheduler) conditionalNotifyChildExecution(c *Composite, idx int, task *Task, result NodeResult) {
	cn, ok := c.Logic.(ChildExecutionNotifier)
	if !ok {
		return
	}
	if i := c.childIndexOf(task); i >= 0 {
		cn.OnChildExecution(s.newContext(c, idx), i, result)
	}
}

func boolResult(ok bool) NodeResult {
	if ok {
		return Succeeded
	}
	return Failed
}
