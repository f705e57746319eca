package behaviortree

import "slices"

// treeInstance is one entry of the instance stack: a tree plus the memory
// and activity state of one run of it.
type treeInstance struct {
	tree       *Tree
	root       *Composite
	activeNode Node
	activeType ActiveNodeType

	activeAux     []Node
	parallelTasks []parallelTask

	memory   []byte
	identity int
	serials  map[int]uint64
}

type parallelTask struct {
	task   *Task
	status TaskStatus
}

// knownInstance identifies a subtree run by where it was pushed from, so
// tooling can tell runs of the same tree apart.
type knownInstance struct {
	tree *Tree
	path []int
}

func newTreeInstance(t *Tree) *treeInstance {
	inst := &treeInstance{
		tree:       t,
		root:       t.Root,
		activeType: ActiveComposite,
		memory:     make([]byte, t.MemorySize()),
		serials:    make(map[int]uint64),
	}
	for _, n := range t.Nodes() {
		if c, ok := n.(*Composite); ok {
			mem := inst.nodeMemory(c)
			mem.setCurrentChild(NotInitialized)
			mem.setOverrideChild(NotInitialized)
		}
		if mi, ok := logicOf(n).(MemoryInitializer); ok {
			mi.InitializeMemory(inst.userMemory(n))
		}
	}
	return inst
}

// nodeMemory returns the full range of n, header included.
func (inst *treeInstance) nodeMemory(n Node) Memory {
	b := n.base()
	end := b.memOffset + b.memSize
	return Memory(inst.memory[b.memOffset:end:end])
}

// userMemory returns the part of n's range owned by its logic.
func (inst *treeInstance) userMemory(n Node) Memory {
	b := n.base()
	end := b.memOffset + b.memSize
	return Memory(inst.memory[b.memOffset+b.headerSize : end : end])
}

func (inst *treeInstance) owns(n Node) bool {
	return n != nil && n.Tree() == inst.tree
}

func (inst *treeInstance) hasActiveAux(n Node) bool {
	return slices.Contains(inst.activeAux, n)
}

func (inst *treeInstance) addActiveAux(n Node) {
	inst.activeAux = append(inst.activeAux, n)
}

func (inst *treeInstance) removeActiveAux(n Node) {
	if i := slices.Index(inst.activeAux, n); i >= 0 {
		inst.activeAux = slices.Delete(inst.activeAux, i, i+1)
	}
}

func (inst *treeInstance) parallelIndex(t *Task) int {
	for i, p := range inst.parallelTasks {
		if p.task == t {
			return i
		}
	}
	return -1
}

func (inst *treeInstance) hasAbortingParallelTask() bool {
	for _, p := range inst.parallelTasks {
		if p.status == TaskAborting {
			return true
		}
	}
	return false
}

func (s *Scheduler) instanceAt(i int) *treeInstance {
	if i < 0 || i >= len(s.instances) {
		return nil
	}
	return s.instances[i]
}

// cleanupInstance deactivates every aux node and parallel task of the
// instance at idx. Memory is discarded with the instance.
func (s *Scheduler) cleanupInstance(idx int) {
	inst := s.instances[idx]

	aux := slices.Clone(inst.activeAux)
	for _, n := range aux {
		s.deactivateAux(n, idx)
	}
	inst.activeAux = nil

	for _, p := range inst.parallelTasks {
		s.unregisterMessageObserversFrom(NodeIndex{InstanceIndex: idx, ExecutionIndex: p.task.ExecutionIndex()})
	}
	inst.parallelTasks = nil

	if inst.activeNode != nil {
		s.unregisterMessageObserversFrom(NodeIndex{InstanceIndex: idx, ExecutionIndex: inst.activeNode.ExecutionIndex()})
	}
}

// activateAux makes an aux node relevant in instance idx.
func (s *Scheduler) activateAux(n Node, idx int) {
	inst := s.instances[idx]
	mem := inst.nodeMemory(n)
	mem.setAccumulatedDelta(0)
	mem.setNextTickRemaining(0)
	if svc, ok := n.(*Service); ok && !svc.TickOnActivation {
		mem.setNextTickRemaining(float32(s.nextServiceInterval(svc)))
	}

	inst.addActiveAux(n)
	s.emit(TraceAuxActivated, idx, n, Succeeded, "")
	if ro, ok := logicOf(n).(RelevanceObserver); ok {
		ro.OnBecomeRelevant(s.newContext(n, idx))
	}
}

// deactivateAux makes an aux node irrelevant in instance idx and drops the
// blackboard observers it registered through its context.
func (s *Scheduler) deactivateAux(n Node, idx int) {
	inst := s.instances[idx]
	inst.removeActiveAux(n)
	if ro, ok := logicOf(n).(RelevanceObserver); ok {
		ro.OnCeaseRelevant(s.newContext(n, idx))
	}
	if s.bb != nil {
		s.bb.UnregisterObserversFrom(auxOwner{node: n, instance: idx})
	}
	s.emit(TraceAuxDeactivated, idx, n, Succeeded, "")
}

func (s *Scheduler) nextServiceInterval(svc *Service) float64 {
	if svc.Deviation <= 0 {
		return svc.Interval
	}
	lo := svc.Interval - svc.Deviation
	if lo < 0 {
		lo = 0
	}
	hi := svc.Interval + svc.Deviation
	return lo + s.rng.Float64()*(hi-lo)
}

// tickAux advances an aux node's throttle and ticks it when due.
func (s *Scheduler) tickAux(n Node, idx int, dt float64) {
	inst := s.instances[idx]
	mem := inst.nodeMemory(n)

	remaining := mem.nextTickRemaining() - float32(dt)
	accumulated := mem.accumulatedDelta() + float32(dt)
	if remaining > 0 {
		mem.setNextTickRemaining(remaining)
		mem.setAccumulatedDelta(accumulated)
		return
	}
	mem.setNextTickRemaining(0)
	mem.setAccumulatedDelta(0)

	ctx := s.newContext(n, idx)
	switch v := n.(type) {
	case *Service:
		mem.setNextTickRemaining(float32(s.nextServiceInterval(v)))
		v.Logic.TickNode(ctx, float64(accumulated))
	case *Decorator:
		if ticker, ok := v.Logic.(AuxTicker); ok {
			ticker.TickNode(ctx, float64(accumulated))
		}
	}
}
