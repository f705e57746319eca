package behaviortree

// DebugSnapshot is a point-in-time view of a scheduler for tooling.
type DebugSnapshot struct {
	Running    bool               `json:"running"`
	Paused     bool               `json:"paused"`
	WorldTime  float64            `json:"world_time"`
	Active     int                `json:"active_instance"`
	Instances  []InstanceSnapshot `json:"instances"`
	Blackboard map[string]string  `json:"blackboard,omitempty"`
}

// InstanceSnapshot describes one entry of the instance stack.
type InstanceSnapshot struct {
	Tree          string                 `json:"tree"`
	Identity      []int                  `json:"identity"`
	ActivePath    []string               `json:"active_path"`
	ActiveNode    string                 `json:"active_node,omitempty"`
	ActiveType    string                 `json:"active_type"`
	ActiveAux     []string               `json:"active_aux"`
	ParallelTasks []ParallelTaskSnapshot `json:"parallel_tasks,omitempty"`
	Descriptions  map[string]string      `json:"descriptions,omitempty"`
}

// ParallelTaskSnapshot is a task running next to the active node.
type ParallelTaskSnapshot struct {
	Task   string `json:"task"`
	Status string `json:"status"`
}

// Snapshot captures the scheduler state. It must be called from the tick
// goroutine, like every other scheduler method.
func (s *Scheduler) Snapshot() DebugSnapshot {
	snap := DebugSnapshot{
		Running:   s.running,
		Paused:    s.paused,
		WorldTime: s.worldTime,
		Active:    s.activeIdx,
		Instances: make([]InstanceSnapshot, 0, len(s.instances)),
	}
	if s.bb != nil {
		snap.Blackboard = s.bb.Values()
	}

	for idx, inst := range s.instances {
		is := InstanceSnapshot{
			Tree:       inst.tree.Name,
			ActiveType: inst.activeType.String(),
			ActivePath: activePath(inst),
			ActiveAux:  make([]string, 0, len(inst.activeAux)),
		}
		if inst.identity >= 0 && inst.identity < len(s.known) {
			is.Identity = append(is.Identity, s.known[inst.identity].path...)
		}
		if inst.activeNode != nil {
			is.ActiveNode = inst.activeNode.Name()
		}
		for _, aux := range inst.activeAux {
			is.ActiveAux = append(is.ActiveAux, aux.Name())
		}
		for _, p := range inst.parallelTasks {
			is.ParallelTasks = append(is.ParallelTasks, ParallelTaskSnapshot{Task: p.task.Name(), Status: p.status.String()})
		}

		for _, n := range inst.tree.Nodes() {
			d, ok := logicOf(n).(Describer)
			if !ok {
				continue
			}
			if text := d.DescribeRuntime(s.newContext(n, idx)); text != "" {
				if is.Descriptions == nil {
					is.Descriptions = make(map[string]string)
				}
				is.Descriptions[n.Name()] = text
			}
		}
		snap.Instances = append(snap.Instances, is)
	}
	return snap
}

// activePath lists node names from the root down to the active node.
func activePath(inst *treeInstance) []string {
	var path []string
	for n := inst.activeNode; n != nil; {
		path = append(path, n.Name())
		parent := n.ParentNode()
		if parent == nil {
			break
		}
		n = parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
