package behaviortree

import "log"

type completion struct {
	ref    TaskRef
	result NodeResult
}

// NotifyTaskFinished reports the result of a latent task or the end of a
// latent abort. It is safe to call from any goroutine; the completion is
// applied at the start of the next Tick. A completion that does not match
// the task's current execution is logged and dropped.
func (s *Scheduler) NotifyTaskFinished(ref TaskRef, result NodeResult) {
	s.mu.Lock()
	s.completions = append(s.completions, completion{ref: ref, result: result})
	s.mu.Unlock()
}

func (s *Scheduler) drainCompletions() {
	s.mu.Lock()
	pending := s.completions
	s.completions = nil
	s.mu.Unlock()

	for _, c := range pending {
		if !s.running || len(s.instances) == 0 {
			return
		}
		task, err := s.resolveCompletion(c)
		if err != nil {
			log.Printf("[Scheduler] %v", err)
			s.emit(TraceViolation, c.ref.InstanceIndex, nil, c.result, err.Error())
			continue
		}
		s.onTaskFinished(task, c.ref.InstanceIndex, c.result)
	}
}

func (s *Scheduler) resolveCompletion(c completion) (*Task, error) {
	violation := func(reason string) (*Task, error) {
		return nil, &DoubleCompletionViolation{Ref: c.ref, Result: c.result, Reason: reason}
	}

	if c.result == InProgress {
		return violation("a task cannot finish with in_progress")
	}
	inst := s.instanceAt(c.ref.InstanceIndex)
	if inst == nil {
		return violation("instance is gone")
	}
	task, ok := inst.tree.NodeAt(c.ref.ExecutionIndex).(*Task)
	if !ok {
		return violation("execution index is not a task")
	}
	if inst.serials[c.ref.ExecutionIndex] != c.ref.Serial {
		return violation("task has been restarted since")
	}
	if status := s.TaskStatus(task, c.ref.InstanceIndex); status == TaskInactive {
		return violation("task is not running")
	}
	return task, nil
}

// onTaskFinished handles a task result, whether returned directly from
// ExecuteTask or AbortTask or delivered through NotifyTaskFinished.
func (s *Scheduler) onTaskFinished(task *Task, idx int, result NodeResult) {
	if task == nil || len(s.instances) == 0 || s.instanceAt(idx) == nil {
		return
	}

	s.logf("task %s finished: %s", task.Name(), result)

	wasWaiting := s.waitingForAborting
	if parent := task.ParentNode(); parent != nil {
		s.conditionalNotifyChildExecution(parent, idx, task, result)
	}

	if result == InProgress {
		s.updateAbortingTasks()
		return
	}

	s.emit(TraceTaskFinished, idx, task, result, "")
	s.unregisterMessageObserversFrom(NodeIndex{InstanceIndex: idx, ExecutionIndex: task.ExecutionIndex()})

	active := s.instances[s.activeIdx]
	if s.activeIdx == idx && active.activeNode == Node(task) {
		wasAborting := active.activeType == AbortingTask
		active.activeType = InactiveTask

		if !wasAborting {
			s.RequestExecutionWithResult(result)
		}
	}

	if tn, ok := task.Logic.(TaskFinishNotifier); ok {
		tn.OnTaskFinished(s.newContext(task, idx), result)
	}

	s.updateAbortingTasks()
	if !s.waitingForAborting && wasWaiting {
		if s.pending.set {
			s.processPendingExecution()
		}
		if s.request.executeNode != nil {
			s.scheduleExecutionUpdate()
		}
	}
}

// onTreeFinished runs when a search found no task. A looped tree restarts
// from the root; a single run stops.
func (s *Scheduler) onTreeFinished(result NodeResult) {
	s.activeIdx = 0
	root := s.instances[0].root
	if s.loop {
		s.logf("ran out of nodes to check, looping tree")
	} else {
		s.logf("ran out of nodes to check, stopping tree")
	}
	s.emit(TraceTreeFinished, 0, root, result, "")

	if s.loop {
		top := s.instances[0]
		top.activeNode = nil
		top.activeType = ActiveComposite

		// InProgress, since Aborted would mean switching to a higher priority branch
		s.RequestExecution(root, 0, root, 0, InProgress)
		return
	}
	s.StopTree()
}
