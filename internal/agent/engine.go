package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/grove/internal/config"
	bt "github.com/dyluth/grove/pkg/behaviortree"
	"github.com/dyluth/grove/pkg/blackboard"
	"github.com/google/uuid"
)

const defaultFlushTimeout = 2 * time.Second

// Options configures an Engine.
type Options struct {
	Name        string
	Bundle      *config.Bundle
	Tree        string
	Mode        bt.ExecutionMode
	TickRate    float64 // Ticks per second for Run
	MaxSearches int
	Values      map[string]string

	// Client mirrors the blackboard and publishes execution events. Nil runs
	// the agent locally.
	Client        *blackboard.Client
	SnapshotEvery int // Ticks between snapshot writes, 0 disables
	FlushTimeout  time.Duration
	Restore       bool // Load mirrored values before starting

	Trace   bt.TraceSink
	Verbose bool
}

// Snapshot is the JSON document written to the agent's snapshot key.
type Snapshot struct {
	Agent       string           `json:"agent"`
	RunID       string           `json:"run_id"`
	Tree        string           `json:"tree"`
	Ticks       int64            `json:"ticks"`
	TimestampMs int64            `json:"timestamp_ms"`
	Scheduler   bt.DebugSnapshot `json:"scheduler"`
}

// Status is a point-in-time summary safe to read from other goroutines.
type Status struct {
	Agent      string  `json:"agent"`
	RunID      string  `json:"run_id"`
	Tree       string  `json:"tree"`
	Running    bool    `json:"running"`
	Paused     bool    `json:"paused"`
	Ticks      int64   `json:"ticks"`
	WorldTime  float64 `json:"world_time"`
	ActiveNode string  `json:"active_node,omitempty"`
	LastError  string  `json:"last_error,omitempty"`
}

// Engine owns one scheduler and drives it either step by step or from a
// ticker. All scheduler access happens on the goroutine calling Start, Step
// and Run; SendMessage and Status may be called from anywhere.
type Engine struct {
	opts   Options
	runID  string
	tree   *bt.Tree
	bb     *blackboard.Instance
	sched  *bt.Scheduler
	mirror *blackboard.Mirror
	events *eventBuffer
	ticks  int64

	mu     sync.Mutex
	status Status
}

// New instantiates the configured tree and its blackboard.
func New(opts Options) (*Engine, error) {
	if opts.Bundle == nil {
		return nil, fmt.Errorf("agent requires a tree bundle")
	}
	if opts.Name == "" {
		return nil, fmt.Errorf("agent name cannot be empty")
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = defaultFlushTimeout
	}

	tree, bb, err := opts.Bundle.Instantiate(opts.Tree, opts.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate tree '%s': %w", opts.Tree, err)
	}

	e := &Engine{
		opts:  opts,
		runID: uuid.New().String(),
		tree:  tree,
		bb:    bb,
	}

	var sinks traceSinks
	if opts.Trace != nil {
		sinks = append(sinks, opts.Trace)
	}
	if opts.Client != nil {
		e.events = newEventBuffer(opts.Client.AgentName(), e.runID, maxBufferedEvents)
		sinks = append(sinks, e.events)
		if bb != nil {
			e.mirror = blackboard.NewMirror(opts.Client, bb, e.runID)
		}
	}

	var trace bt.TraceSink
	if len(sinks) > 0 {
		trace = sinks
	}
	e.sched = bt.New(bb, bt.Options{
		Library:            opts.Bundle.Library,
		Trace:              trace,
		MaxSearchesPerTick: opts.MaxSearches,
		Verbose:            opts.Verbose,
	})

	e.status = Status{Agent: opts.Name, RunID: e.runID, Tree: tree.Name}
	return e, nil
}

// RunID identifies this run in published events.
func (e *Engine) RunID() string { return e.runID }

// Scheduler exposes the underlying scheduler for tests and local tooling.
func (e *Engine) Scheduler() *bt.Scheduler { return e.sched }

// Blackboard returns the agent's blackboard, nil for a tree without one.
func (e *Engine) Blackboard() *blackboard.Instance { return e.bb }

// Ticks returns the number of completed steps.
func (e *Engine) Ticks() int64 { return e.ticks }

// Status returns the last recorded status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// SendMessage queues an external message for the next tick.
func (e *Engine) SendMessage(msg bt.Message) {
	e.sched.SendMessage(msg)
}

// Start optionally restores the mirrored blackboard and starts the tree.
func (e *Engine) Start(ctx context.Context) error {
	if e.opts.Restore && e.mirror != nil {
		restoreCtx, cancel := context.WithTimeout(ctx, e.opts.FlushTimeout)
		err := e.mirror.Restore(restoreCtx)
		cancel()
		if err != nil {
			return err
		}
		log.Printf("[Agent] Restored blackboard for '%s'", e.opts.Name)
	}

	if err := e.sched.StartTree(e.tree, e.opts.Mode); err != nil {
		return fmt.Errorf("failed to start tree '%s': %w", e.tree.Name, err)
	}

	e.logEvent("agent_started", map[string]interface{}{
		"tree": e.tree.Name,
		"mode": e.opts.Mode.String(),
	})
	e.recordStatus(nil)
	return nil
}

// Step advances the scheduler by dt seconds and pushes the resulting state
// to Redis when a client is configured. Publishing errors are returned but
// leave the scheduler untouched; unsent data is retried on the next step.
func (e *Engine) Step(ctx context.Context, dt float64) error {
	e.sched.Tick(dt)
	e.ticks++

	err := e.publish(ctx)
	e.recordStatus(err)
	return err
}

// Run ticks the tree at the configured rate until ctx is cancelled or a
// single-run tree finishes. Messages published to the agent's channel are
// forwarded to the scheduler.
func (e *Engine) Run(ctx context.Context) error {
	if !e.sched.IsRunning() {
		if err := e.Start(ctx); err != nil {
			return err
		}
	}

	rate := e.opts.TickRate
	if rate <= 0 {
		rate = config.DefaultTickRate
	}
	interval := time.Duration(float64(time.Second) / rate)

	if e.opts.Client != nil {
		sub, err := e.opts.Client.SubscribeMessages(ctx)
		if err != nil {
			return fmt.Errorf("failed to subscribe to messages: %w", err)
		}
		defer sub.Close()
		go e.forwardMessages(ctx, sub)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[Agent] Running '%s' at %.1f ticks/s", e.opts.Name, rate)

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Agent] Shutting down...")
			e.sched.StopTree()
			e.finalFlush()
			return nil

		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now

			if err := e.Step(ctx, dt); err != nil && ctx.Err() == nil {
				log.Printf("[Agent] Failed to publish state: %v", err)
			}

			if !e.sched.IsRunning() {
				e.logEvent("agent_finished", map[string]interface{}{
					"tree":  e.tree.Name,
					"ticks": e.ticks,
				})
				e.finalFlush()
				return nil
			}
		}
	}
}

func (e *Engine) forwardMessages(ctx context.Context, sub *blackboard.Subscription[blackboard.AgentMessage]) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Events():
			if !ok {
				return
			}
			e.logEvent("message_received", map[string]interface{}{
				"type":       msg.Type,
				"request_id": msg.RequestID,
				"success":    msg.Success,
			})
			e.SendMessage(bt.Message{
				Type:      msg.Type,
				RequestID: msg.RequestID,
				Success:   msg.Success,
				Payload:   msg.Payload,
			})
		case err, ok := <-sub.Errors():
			if !ok {
				return
			}
			log.Printf("[Agent] Message subscription error: %v", err)
		}
	}
}

func (e *Engine) publish(ctx context.Context) error {
	if e.opts.Client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.FlushTimeout)
	defer cancel()

	if e.mirror != nil {
		if err := e.mirror.Flush(ctx); err != nil {
			return fmt.Errorf("failed to flush blackboard: %w", err)
		}
	}

	if err := e.events.publish(ctx, e.opts.Client); err != nil {
		return fmt.Errorf("failed to publish execution events: %w", err)
	}

	if e.opts.SnapshotEvery > 0 && e.ticks%int64(e.opts.SnapshotEvery) == 0 {
		if err := e.writeSnapshot(ctx); err != nil {
			return err
		}
	}
	return nil
}

// BuildSnapshot captures the scheduler and blackboard state.
func (e *Engine) BuildSnapshot() Snapshot {
	return Snapshot{
		Agent:       e.opts.Name,
		RunID:       e.runID,
		Tree:        e.tree.Name,
		Ticks:       e.ticks,
		TimestampMs: time.Now().UnixMilli(),
		Scheduler:   e.sched.Snapshot(),
	}
}

func (e *Engine) writeSnapshot(ctx context.Context) error {
	data, err := json.Marshal(e.BuildSnapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := e.opts.Client.WriteSnapshot(ctx, data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// finalFlush pushes whatever the last tick left behind, ignoring the
// cancelled run context.
func (e *Engine) finalFlush() {
	defer e.recordStatus(nil)
	if e.opts.Client == nil {
		return
	}
	ctx := context.Background()
	if err := e.publish(ctx); err != nil {
		log.Printf("[Agent] Final flush failed: %v", err)
	}
	if e.opts.SnapshotEvery > 0 {
		ctx, cancel := context.WithTimeout(ctx, e.opts.FlushTimeout)
		defer cancel()
		if err := e.writeSnapshot(ctx); err != nil {
			log.Printf("[Agent] Final snapshot failed: %v", err)
		}
	}
}

func (e *Engine) recordStatus(err error) {
	st := Status{
		Agent:     e.opts.Name,
		RunID:     e.runID,
		Tree:      e.tree.Name,
		Running:   e.sched.IsRunning(),
		Paused:    e.sched.IsPaused(),
		Ticks:     e.ticks,
		WorldTime: e.sched.WorldTime(),
	}
	if node := e.sched.ActiveNode(); node != nil {
		st.ActiveNode = node.Name()
	}
	if err != nil {
		st.LastError = err.Error()
	}

	e.mu.Lock()
	e.status = st
	e.mu.Unlock()
}

// logEvent logs a structured event in JSON format.
func (e *Engine) logEvent(event string, data map[string]interface{}) {
	logData := map[string]interface{}{
		"level":  "info",
		"agent":  e.opts.Name,
		"run_id": e.runID,
		"event":  event,
	}
	for k, v := range data {
		logData[k] = v
	}

	jsonData, _ := json.Marshal(logData)
	log.Println(string(jsonData))
}
