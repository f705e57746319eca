package behaviortree

import (
	"fmt"
	"slices"
)

// processExecutionRequest runs one search pass for the pending request:
// abort the active task, deactivate up to the request's composite, search
// for the next task, apply the collected aux node updates and execute the
// task found (or finish the tree).
func (s *Scheduler) processExecutionRequest() {
	s.requestedFlowUpdate = false
	if s.paused || len(s.instances) == 0 || s.request.executeNode == nil {
		return
	}

	result := s.request.continueWith
	s.search.searchID++

	if s.instances[s.activeIdx].activeType == ActiveTask {
		s.abortCurrentTask()
	}
	// services and parallel main tasks stay active until aborts finish
	if s.waitingForAborting {
		s.logf("waiting for aborting tasks")
		return
	}

	if s.instances[s.activeIdx].activeNode != Node(s.request.executeNode) {
		if !s.deactivateUpTo(s.request.executeNode, s.request.executeInstance, &result) {
			return
		}

		// apply everything up to the last parallel task removal so no
		// inactive task keeps running while the new one is searched for
		for i := len(s.search.pendingUpdates) - 1; i >= 0; i-- {
			u := s.search.pendingUpdates[i]
			if u.task != nil && u.mode == updateRemove {
				s.applySearchData(nil, i)
				break
			}
		}
	}

	if s.waitingForAborting {
		s.logf("waiting for aborting parallel tasks")
		return
	}

	// drop instances left above the active one (kept so parallels could abort latently)
	if len(s.instances) > s.activeIdx+1 {
		for i := len(s.instances) - 1; i > s.activeIdx; i-- {
			s.cleanupInstance(i)
			s.emit(TraceInstancePopped, i, s.instances[i].root, result, "")
		}
		s.instances = s.instances[:s.activeIdx+1]
	}

	active := s.instances[s.activeIdx]
	testNode := s.request.executeNode

	if active.activeNode == nil {
		active.activeNode = active.root
		active.activeType = ActiveComposite
		s.onCompositeActivation(active.root)
	}

	if !s.request.tryNextChild {
		s.unregisterAuxNodesUpTo(s.request.searchStart)
		s.onCompositeRestart(s.request.executeNode)
		s.search.searchStart = s.request.searchStart
	} else {
		s.search.searchStart = unsetNodeIndex
	}

	var nextTask *Task
	var suspended *Composite
	for testNode != nil && nextTask == nil {
		s.emit(TraceSearchStep, s.activeIdx, testNode, result, "testing")
		childIdx := s.findChildToExecute(testNode, &result)

		switch childIdx {
		case SuspendSearch:
			suspended = testNode
			testNode = nil

		case ReturnToParent:
			childNode := testNode
			testNode = testNode.ParentNode()

			if testNode == nil {
				s.onCompositeDeactivation(childNode, &result)

				// instance 0 stays on the stack so it can loop
				if s.activeIdx > 0 {
					s.applySearchData(nil, -1)

					s.cleanupInstance(s.activeIdx)
					s.emit(TraceInstancePopped, s.activeIdx, childNode, result, "")
					s.instances = s.instances[:s.activeIdx]
					s.activeIdx--

					testNode = s.instances[s.activeIdx].activeNode.ParentNode()
				}
			}
			if testNode != nil {
				s.onChildDeactivation(testNode, childNode, &result)
			}

		default:
			child := testNode.Children[childIdx]
			nextTask = child.Task
			testNode = child.Composite
		}
	}

	// applying search data may issue new requests
	s.request.reset()

	if suspended != nil {
		inst := s.instances[s.activeIdx]
		inst.activeNode = suspended
		inst.activeType = ActiveComposite
		s.applySearchData(suspended, -1)
		s.logf("search suspended at %s", suspended.Name())
		return
	}

	if nextTask != nil {
		s.applySearchData(nextTask, -1)
	} else {
		s.applySearchData(nil, -1)
	}
	s.pending = pendingExecution{set: true, task: nextTask, treeResult: result}

	// removing parallel tasks may have started latent aborts
	if s.waitingForAborting {
		s.logf("waiting for aborting tasks before executing")
		return
	}
	s.processPendingExecution()
}

// processPendingExecution executes the task chosen by the last search, or
// finishes the tree when the search found none.
func (s *Scheduler) processPendingExecution() {
	if s.waitingForAborting || !s.pending.set {
		return
	}
	p := s.pending
	s.pending = pendingExecution{}

	if p.task != nil {
		s.executeTask(p.task)
	} else {
		s.onTreeFinished(p.treeResult)
	}
}

// deactivateUpTo walks from the active node up to node, notifying each
// parent and leaving subtree instances on the way. It returns false when the
// path does not contain node, in which case the tree is restarted.
func (s *Scheduler) deactivateUpTo(node *Composite, nodeInstance int, result *NodeResult) bool {
	deactivated := s.instances[s.activeIdx].activeNode
	deactivateRoot := true

	if deactivated == nil && s.activeIdx > nodeInstance {
		// the instance never activated its root
		deactivated = s.instances[s.activeIdx].root
		deactivateRoot = false
	}

	for deactivated != nil {
		if parent := deactivated.ParentNode(); parent != nil {
			s.onChildDeactivation(parent, deactivated, result)
			deactivated = parent

			inst := s.instances[s.activeIdx]
			inst.activeNode = parent
			inst.activeType = ActiveComposite
		} else {
			if deactivateRoot {
				s.onCompositeDeactivation(s.instances[s.activeIdx].root, result)
			}
			deactivateRoot = true

			if s.activeIdx == 0 {
				s.logf("execution path does not contain %s, restarting tree", node.Name())
				s.RestartTree()
				return false
			}

			s.activeIdx--
			deactivated = s.instances[s.activeIdx].activeNode

			// aux changes of the left subtree
			s.applySearchData(nil, -1)
		}

		if deactivated == Node(node) {
			break
		}
	}
	return true
}

// applySearchData applies pending updates. With upTo < 0 every update is
// applied, post updates included, and the list is cleared; otherwise
// updates 0..upTo are applied and removed.
func (s *Scheduler) applySearchData(newActive Node, upTo int) {
	full := upTo < 0
	limit := len(s.search.pendingUpdates)
	if !full {
		limit = upTo + 1
	}
	newExec := 0
	if newActive != nil {
		newExec = newActive.ExecutionIndex()
	}

	updates := slices.Clone(s.search.pendingUpdates)
	if full {
		s.search.pendingUpdates = s.search.pendingUpdates[:0]
	} else {
		s.search.pendingUpdates = slices.Delete(s.search.pendingUpdates, 0, limit)
	}

	s.applySearchUpdates(updates[:limit], newExec, false)
	if full {
		s.applySearchUpdates(updates, newExec, true)
	}
}

func (s *Scheduler) applySearchUpdates(updates []nodeUpdate, newExec int, post bool) {
	for _, u := range updates {
		if u.postUpdate != post {
			continue
		}
		inst := s.instanceAt(u.instance)
		if inst == nil {
			continue
		}

		parallelIdx := -1
		active := false
		if u.aux != nil {
			active = inst.hasActiveAux(u.aux)
		} else if u.task != nil {
			parallelIdx = inst.parallelIndex(u.task)
			active = parallelIdx >= 0 && inst.parallelTasks[parallelIdx].status == TaskActive
		}

		node := u.node()
		switch u.mode {
		case updateRemove:
			if !active {
				continue
			}
		case updateAdd:
			if active {
				continue
			}
		case updateAddForLowerPri:
			if active || node.ExecutionIndex() > newExec {
				continue
			}
		}

		if u.aux != nil {
			// root services of a looped tree stay active across loops
			if _, isService := u.aux.(*Service); isService && s.loop && u.aux.ParentNode() == s.instances[0].root &&
				u.aux.Tree() == s.instances[0].tree {
				if u.mode == updateRemove || s.instances[0].hasActiveAux(u.aux) {
					continue
				}
			}

			if u.mode == updateRemove {
				s.deactivateAux(u.aux, u.instance)
			} else {
				s.activateAux(u.aux, u.instance)
			}
			continue
		}

		if u.mode == updateRemove {
			idx := NodeIndex{InstanceIndex: u.instance, ExecutionIndex: u.task.ExecutionIndex()}
			s.unregisterMessageObserversFrom(idx)

			res := s.abortTaskLogic(u.task, u.instance)
			s.logf("parallel task aborted: %s (%s)", u.task.Name(), res)
			if res == InProgress {
				inst.parallelTasks[parallelIdx].status = TaskAborting
				s.waitingForAborting = true
			}
			s.onTaskFinished(u.task, u.instance, res)
		} else {
			inst.parallelTasks = append(inst.parallelTasks, parallelTask{task: u.task, status: TaskActive})
		}
	}
}

// unregisterAuxNodesUpTo queues removal of every aux node with lower
// priority than idx.
func (s *Scheduler) unregisterAuxNodesUpTo(idx NodeIndex) {
	for i, inst := range s.instances {
		for _, aux := range inst.activeAux {
			if idx.TakesPriorityOver(NodeIndex{InstanceIndex: i, ExecutionIndex: aux.ExecutionIndex()}) {
				s.addUniqueUpdate(nodeUpdate{aux: aux, instance: i, mode: updateRemove})
			}
		}
	}
}

func (s *Scheduler) executeTask(task *Task) {
	idx := s.activeIdx
	inst := s.instances[idx]
	inst.activeNode = task
	inst.activeType = ActiveTask

	s.serial++
	inst.serials[task.ExecutionIndex()] = s.serial

	s.logf("execute task: %s", task.Name())
	s.emit(TraceTaskExecuted, idx, task, InProgress, "")

	// the task may push a subtree, so the instance index is captured first
	result := task.Logic.ExecuteTask(s.newContext(task, idx))
	s.onTaskFinished(task, idx, result)
}

func (s *Scheduler) abortCurrentTask() {
	idx := s.activeIdx
	inst := s.instances[idx]
	task, ok := inst.activeNode.(*Task)
	if !ok {
		return
	}

	s.unregisterMessageObserversFrom(NodeIndex{InstanceIndex: idx, ExecutionIndex: task.ExecutionIndex()})
	s.logf("abort task: %s", task.Name())

	result := s.abortTaskLogic(task, idx)
	inst.activeType = AbortingTask
	s.emit(TraceTaskAborted, idx, task, result, "")
	s.onTaskFinished(task, idx, result)
}

// abortTaskLogic asks the task to abort. Tasks without an abort hook abort instantly.
func (s *Scheduler) abortTaskLogic(task *Task, idx int) NodeResult {
	if ta, ok := task.Logic.(TaskAborter); ok {
		return ta.AbortTask(s.newContext(task, idx))
	}
	return Aborted
}

// RegisterParallelTask marks task of the active instance as running in
// parallel, so the search can move on while it keeps running.
func (s *Scheduler) RegisterParallelTask(task *Task) {
	inst := s.instanceAt(s.activeIdx)
	if inst == nil || task == nil {
		return
	}
	inst.parallelTasks = append(inst.parallelTasks, parallelTask{task: task, status: TaskActive})
	s.logf("parallel task %s added to active list", task.Name())

	if inst.activeNode == Node(task) {
		inst.activeType = InactiveTask
	}
}

// UnregisterParallelTask removes task from the parallel tasks of instance idx.
func (s *Scheduler) UnregisterParallelTask(task *Task, idx int) {
	inst := s.instanceAt(idx)
	if inst == nil {
		return
	}
	if i := inst.parallelIndex(task); i >= 0 {
		inst.parallelTasks = slices.Delete(inst.parallelTasks, i, i+1)
		s.logf("parallel task %s removed from active list", task.Name())
		s.updateAbortingTasks()
	}
}

// TaskStatus returns the status of task in instance idx. Parallel execution
// takes precedence over the active node state.
func (s *Scheduler) TaskStatus(task *Task, idx int) TaskStatus {
	inst := s.instanceAt(idx)
	if inst == nil || task == nil {
		return TaskInactive
	}
	if i := inst.parallelIndex(task); i >= 0 && inst.parallelTasks[i].status != TaskInactive {
		return inst.parallelTasks[i].status
	}
	if inst.activeNode == Node(task) {
		switch inst.activeType {
		case ActiveTask:
			return TaskActive
		case AbortingTask:
			return TaskAborting
		}
	}
	return TaskInactive
}

func (s *Scheduler) updateAbortingTasks() {
	s.waitingForAborting = len(s.instances) > 0 && s.instances[len(s.instances)-1].activeType == AbortingTask
	for _, inst := range s.instances {
		if s.waitingForAborting {
			return
		}
		s.waitingForAborting = inst.hasAbortingParallelTask()
	}
}

// PushInstance starts tree as a subtree on top of the instance stack. The
// composite owning the active node must allow it, and the tree's blackboard
// must be compatible with the scheduler's.
func (s *Scheduler) PushInstance(tree *Tree) error {
	if tree == nil {
		return fmt.Errorf("tree cannot be nil")
	}
	if !tree.IsInitialized() {
		return fmt.Errorf("tree '%s': %w", tree.Name, ErrNotInitialized)
	}
	if tree.Blackboard != nil && s.bb != nil && !s.bb.IsCompatibleWith(tree.Blackboard) {
		return fmt.Errorf("tree '%s' uses blackboard '%s': %w", tree.Name, tree.Blackboard.Name, ErrIncompatibleBlackboard)
	}
	for _, inst := range s.instances {
		if inst.tree == tree {
			return fmt.Errorf("tree '%s' is already on the instance stack: %w", tree.Name, ErrCycle)
		}
	}

	var origin Node
	if inst := s.instanceAt(s.activeIdx); inst != nil {
		origin = inst.activeNode
		if origin != nil {
			if parent := origin.ParentNode(); parent != nil {
				if gate, ok := parent.Logic.(SubtreeGate); ok &&
					!gate.CanPushSubtree(s.newContext(parent, len(s.instances)-1), origin.ChildIndex()) {
					return fmt.Errorf("tree '%s' from '%s': %w", tree.Name, parent.Name(), ErrSubtreeRefused)
				}
			}
		}
	}

	inst := newTreeInstance(tree)
	inst.identity = s.updateInstanceID(tree, origin, len(s.instances)-1)
	s.instances = append(s.instances, inst)
	s.activeIdx = len(s.instances) - 1
	s.logf("pushed tree '%s' as instance %d", tree.Name, s.activeIdx)
	s.emit(TraceInstancePushed, s.activeIdx, tree.Root, InProgress, "")

	// root services start now and survive looping
	for _, svc := range tree.Root.Services {
		s.activateAux(svc, s.activeIdx)
	}

	s.RequestExecution(tree.Root, s.activeIdx, tree.Root, 0, InProgress)
	return nil
}

// updateInstanceID finds or records the identity of a run of tree started
// from origin: the origin's execution index followed by the active nodes of
// the instances below it.
func (s *Scheduler) updateInstanceID(tree *Tree, origin Node, originInstance int) int {
	path := []int{unsetIndex}
	if origin != nil {
		path[0] = origin.ExecutionIndex()
	}
	for i := originInstance - 1; i >= 0; i-- {
		exec := unsetIndex
		if s.instances[i].activeNode != nil {
			exec = s.instances[i].activeNode.ExecutionIndex()
		}
		path = append(path, exec)
	}

	for i, known := range s.known {
		if known.tree == tree && slices.Equal(known.path, path) {
			return i
		}
	}
	s.known = append(s.known, knownInstance{tree: tree, path: path})
	return len(s.known) - 1
}
