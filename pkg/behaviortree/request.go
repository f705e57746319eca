package behaviortree

// RequestExecutionFromDecorator reacts to a change of d's condition. A
// decorator on the running branch aborts it (Self); one outside it preempts
// the running branch (LowerPriority).
func (s *Scheduler) RequestExecutionFromDecorator(d *Decorator, instanceIdx int) {
	if d == nil || d.AbortMode == AbortNone || d.ParentNode() == nil {
		return
	}
	inst := s.instanceAt(instanceIdx)
	if inst == nil || !inst.owns(d) {
		return
	}

	mode := d.AbortMode
	if mode == AbortBoth || mode == AbortSelf {
		if s.IsExecutingBranch(d, instanceIdx, d.ChildIndex()) {
			mode = AbortSelf
		} else {
			mode = AbortLowerPriority
		}
	}

	continueWith := Aborted
	if mode == AbortSelf {
		continueWith = Failed
	}
	s.RequestExecution(d.ParentNode(), instanceIdx, d, d.ChildIndex(), continueWith)
}

// RequestExecutionWithResult continues the search after the active node
// finished with result. Aborted and InProgress are ignored: those flows go
// through decorator requests or RequestExecution.
func (s *Scheduler) RequestExecutionWithResult(result NodeResult) {
	if result == Aborted || result == InProgress {
		return
	}
	inst := s.instanceAt(s.activeIdx)
	if inst == nil {
		return
	}

	parent := s.executeParent(inst)
	var requestedBy Node = inst.root
	if inst.activeNode != nil {
		requestedBy = inst.activeNode
	}
	s.RequestExecution(parent, len(s.instances)-1, requestedBy, -1, result)
}

// executeParent is the composite a search continues from in inst.
func (s *Scheduler) executeParent(inst *treeInstance) *Composite {
	if inst.activeNode == nil {
		return inst.root
	}
	if c, ok := inst.activeNode.(*Composite); ok && inst.activeType == ActiveComposite {
		return c
	}
	return inst.activeNode.ParentNode()
}

// RequestExecution records a request to search from requestedOn in instance
// instanceIdx. Only the highest-priority request survives until it is
// processed.
//
// continueWith Aborted switches to a higher-priority branch: the search
// restarts at the first node of child childIndex, provided the decorators
// on that link and on every link up to the common parent with the running
// branch allow it. Any other result continues the search after requestedBy.
func (s *Scheduler) RequestExecution(requestedOn *Composite, instanceIdx int, requestedBy Node, childIndex int, continueWith NodeResult) {
	if !s.running || requestedOn == nil || requestedBy == nil || s.instanceAt(instanceIdx) == nil {
		return
	}
	s.logf("execution request by %s (result: %s)", requestedBy.Name(), continueWith)

	switchHigher := continueWith == Aborted
	execIdx := NodeIndex{InstanceIndex: instanceIdx, ExecutionIndex: requestedBy.ExecutionIndex()}
	checkDecorators := childIndex >= 0
	if switchHigher {
		if childIndex < 0 {
			childIndex = 0
		}
		execIdx.ExecutionIndex = requestedOn.ChildExecutionIndex(childIndex, FirstNode)
	}

	if s.request.executeNode != nil && s.request.searchStart.TakesPriorityOver(execIdx) {
		s.logf("> skip: already has request with higher priority")
		return
	}

	if switchHigher {
		if checkDecorators && !s.doDecoratorsAllowExecution(requestedOn, instanceIdx, childIndex) {
			s.logf("> skip: decorators are not allowing execution")
			return
		}

		current := s.request.executeNode
		currentIdx := s.request.executeInstance
		if current == nil {
			current = s.executeParent(s.instances[s.activeIdx])
			currentIdx = len(s.instances) - 1
		}

		if s.request.executeNode != requestedOn {
			common, commonIdx := s.findCommonParent(requestedOn, instanceIdx, current, currentIdx)

			// decorators between the requester and the common parent; both
			// are on one stack level because only tasks push subtrees
			if commonIdx == instanceIdx {
				for it := requestedOn; it != nil && it != common; {
					parent := it.ParentNode()
					if parent == nil {
						break
					}
					if !s.doDecoratorsAllowExecution(parent, commonIdx, it.ChildIndex()) {
						s.logf("> skip: decorators are not allowing execution")
						return
					}
					it = parent
				}
			}

			s.request.executeNode = common
			s.request.executeInstance = commonIdx
		}
	} else {
		_, byDecorator := requestedBy.(*Decorator)
		if byDecorator && checkDecorators && childIndex < len(requestedOn.Children) &&
			len(requestedOn.Children[childIndex].Decorators) > 0 &&
			s.doDecoratorsAllowExecution(requestedOn, instanceIdx, childIndex) {
			s.logf("> skip: decorators are still allowing execution")
			return
		}

		s.request.executeNode = requestedOn
		s.request.executeInstance = instanceIdx
	}

	s.request.continueWith = continueWith
	s.request.searchStart = execIdx
	s.request.tryNextChild = !switchHigher
	s.emit(TraceRequest, instanceIdx, requestedBy, continueWith, execIdx.String())

	s.scheduleExecutionUpdate()
}

// findCommonParent returns the closest composite containing both a and b.
// Nodes in different instances are first lifted to the lower instance
// through the active node that pushed the upper one.
func (s *Scheduler) findCommonParent(a *Composite, aIdx int, b *Composite, bIdx int) (*Composite, int) {
	commonIdx := aIdx
	if bIdx < commonIdx {
		commonIdx = bIdx
	}
	common := s.instances[commonIdx]

	nodeA, nodeB := a, b
	if aIdx != commonIdx {
		nodeA = pushingComposite(common)
	}
	if bIdx != commonIdx {
		nodeB = pushingComposite(common)
	}

	for nodeA.Depth() > nodeB.Depth() {
		nodeA = nodeA.ParentNode()
	}
	for nodeB.Depth() > nodeA.Depth() {
		nodeB = nodeB.ParentNode()
	}
	for nodeA != nodeB {
		nodeA = nodeA.ParentNode()
		nodeB = nodeB.ParentNode()
	}
	return nodeA, commonIdx
}

// pushingComposite is the composite owning the task that pushed the next
// instance, or the root when the instance has no active node.
func pushingComposite(inst *treeInstance) *Composite {
	if inst.activeNode == nil || inst.activeNode.ParentNode() == nil {
		return inst.root
	}
	return inst.activeNode.ParentNode()
}

// IsExecutingBranch reports whether the active node of instance instanceIdx
// lies in the branch gated by node, which is child childIndex of its parent
// or one of that child's decorators. A branch being restarted by the pending
// request does not count as executing.
func (s *Scheduler) IsExecutingBranch(node Node, instanceIdx, childIndex int) bool {
	inst := s.instanceAt(instanceIdx)
	if node == nil || inst == nil || !inst.owns(node) || inst.activeNode == nil {
		return false
	}

	test := NodeIndex{InstanceIndex: instanceIdx, ExecutionIndex: node.ExecutionIndex()}
	if s.request.executeNode != nil {
		if s.request.searchStart.TakesPriorityOver(test) || s.request.searchStart == test {
			return false
		}
		if d, ok := node.(*Decorator); ok && d.ParentNode() == s.request.executeNode {
			return false
		}
	}

	if node == Node(inst.root) || node == inst.activeNode {
		return true
	}

	parent := node.ParentNode()
	if parent == nil {
		return false
	}
	active := inst.activeNode.ExecutionIndex()
	next := parent.ChildExecutionIndex(childIndex+1, TaskNode)
	return active >= node.ExecutionIndex() && active < next
}

// IsAuxNodeActive reports whether aux is active in instance instanceIdx.
func (s *Scheduler) IsAuxNodeActive(aux Node, instanceIdx int) bool {
	inst := s.instanceAt(instanceIdx)
	return inst != nil && inst.hasActiveAux(aux)
}
