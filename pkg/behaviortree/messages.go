package behaviortree

// Message is an external event a latent task can wait for, such as the
// result of a move request.
type Message struct {
	Type      string
	RequestID uint32
	Success   bool
	Payload   string
}

type messageObserver struct {
	owner     NodeIndex
	task      *Task
	msgType   string
	requestID uint32
	matchID   bool
}

func (o messageObserver) matches(msg Message) bool {
	if o.msgType != msg.Type {
		return false
	}
	return !o.matchID || o.requestID == msg.RequestID
}

// SendMessage queues msg for delivery at the next Tick. It is safe to call
// from any goroutine.
func (s *Scheduler) SendMessage(msg Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

func (s *Scheduler) registerMessageObserver(node Node, idx int, msgType string, requestID uint32, matchID bool) {
	task, ok := node.(*Task)
	if !ok || s.instanceAt(idx) == nil {
		return
	}
	s.messageObservers = append(s.messageObservers, messageObserver{
		owner:     NodeIndex{InstanceIndex: idx, ExecutionIndex: task.ExecutionIndex()},
		task:      task,
		msgType:   msgType,
		requestID: requestID,
		matchID:   matchID,
	})
	s.logf("message[%s] observer added for %s", msgType, task.Name())
}

func (s *Scheduler) unregisterMessageObserversFrom(owner NodeIndex) {
	kept := s.messageObservers[:0]
	removed := 0
	for _, o := range s.messageObservers {
		if o.owner == owner {
			removed++
			continue
		}
		kept = append(kept, o)
	}
	s.messageObservers = kept
	if removed > 0 {
		s.logf("message observers removed for task %s (num: %d)", owner, removed)
	}
}

// MessageObserverCount returns the number of registered message observers.
func (s *Scheduler) MessageObserverCount() int {
	return len(s.messageObservers)
}

func (s *Scheduler) deliverMessages() {
	s.mu.Lock()
	pending := s.messages
	s.messages = nil
	s.mu.Unlock()

	for _, msg := range pending {
		var targets []messageObserver
		for _, o := range s.messageObservers {
			if o.matches(msg) {
				targets = append(targets, o)
			}
		}

		for _, o := range targets {
			if !s.isObserverRegistered(o) {
				continue
			}
			ctx := s.newContext(o.task, o.owner.InstanceIndex)
			if r, ok := o.task.Logic.(MessageReceiver); ok {
				r.OnMessage(ctx, msg)
				continue
			}
			switch s.TaskStatus(o.task, o.owner.InstanceIndex) {
			case TaskActive:
				if msg.Success {
					ctx.FinishLatentTask(Succeeded)
				} else {
					ctx.FinishLatentTask(Failed)
				}
			case TaskAborting:
				ctx.FinishLatentAbort()
			}
		}
	}
}

func (s *Scheduler) isObserverRegistered(o messageObserver) bool {
	for _, r := range s.messageObservers {
		if r == o {
			return true
		}
	}
	return false
}
