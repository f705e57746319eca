package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client provides agent-scoped Redis operations for mirrored blackboards.
// All keys and channels are automatically namespaced with the agent name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb       *redis.Client
	agentName string
}

// NewClient creates a new blackboard client for the specified agent.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - agentName: agent identifier (must not be empty)
//
// Returns an error if agentName is empty.
func NewClient(redisOpts *redis.Options, agentName string) (*Client, error) {
	if agentName == "" {
		return nil, fmt.Errorf("agent name cannot be empty")
	}

	return &Client{
		rdb:       redis.NewClient(redisOpts),
		agentName: agentName,
	}, nil
}

// AgentName returns the namespace this client writes to.
func (c *Client) AgentName() string {
	return c.agentName
}

// RedisClient exposes the underlying client for scans and tooling.
func (c *Client) RedisClient() *redis.Client {
	return c.rdb
}

// ForAgent returns a client for another agent that shares this client's
// connection pool. Closing either closes both.
func (c *Client) ForAgent(agentName string) *Client {
	return &Client{rdb: c.rdb, agentName: agentName}
}

// ListAgents returns the sorted names of agents that have written a snapshot
// to this Redis server. Uses SCAN to avoid blocking the server.
func (c *Client) ListAgents(ctx context.Context) ([]string, error) {
	var agents []string
	iter := c.rdb.Scan(ctx, 0, SnapshotKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		if name, ok := AgentFromSnapshotKey(iter.Val()); ok {
			agents = append(agents, name)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan agents: %w", err)
	}
	sort.Strings(agents)
	return agents, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// WriteValues stores key values (canonical text form) in the blackboard hash.
// An empty map is a no-op.
func (c *Client) WriteValues(ctx context.Context, values map[string]interface{}) error {
	if len(values) == 0 {
		return nil
	}
	if err := c.rdb.HSet(ctx, ValuesKey(c.agentName), values).Err(); err != nil {
		return fmt.Errorf("failed to write blackboard values to Redis: %w", err)
	}
	return nil
}

// ReadValues returns the mirrored blackboard hash.
// Returns (nil, redis.Nil) if nothing has been mirrored yet.
func (c *Client) ReadValues(ctx context.Context) (map[string]string, error) {
	values, err := c.rdb.HGetAll(ctx, ValuesKey(c.agentName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read blackboard values from Redis: %w", err)
	}
	if len(values) == 0 {
		return nil, redis.Nil
	}
	return values, nil
}

// PublishChanges publishes change events in one pipeline round trip.
func (c *Client) PublishChanges(ctx context.Context, events []*ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	channel := ChangeEventsChannel(c.agentName)
	pipe := c.rdb.Pipeline()
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("invalid change event: %w", err)
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal change event: %w", err)
		}
		pipe.Publish(ctx, channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish change events: %w", err)
	}
	return nil
}

// PublishExecutionEvent publishes one scheduler trace event.
func (c *Client) PublishExecutionEvent(ctx context.Context, ev *ExecutionEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid execution event: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal execution event: %w", err)
	}
	if err := c.rdb.Publish(ctx, ExecutionEventsChannel(c.agentName), data).Err(); err != nil {
		return fmt.Errorf("failed to publish execution event: %w", err)
	}
	return nil
}

// PublishMessage sends an external message to the agent.
func (c *Client) PublishMessage(ctx context.Context, msg *AgentMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := c.rdb.Publish(ctx, MessagesChannel(c.agentName), data).Err(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// WriteSnapshot stores the latest debug snapshot.
func (c *Client) WriteSnapshot(ctx context.Context, snapshot []byte) error {
	if err := c.rdb.Set(ctx, SnapshotKey(c.agentName), snapshot, 0).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot to Redis: %w", err)
	}
	return nil
}

// ReadSnapshot returns the latest debug snapshot.
// Returns (nil, redis.Nil) if no snapshot has been written.
func (c *Client) ReadSnapshot(ctx context.Context) ([]byte, error) {
	data, err := c.rdb.Get(ctx, SnapshotKey(c.agentName)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read snapshot from Redis: %w", err)
	}
	return data, nil
}

// Subscription represents an active Pub/Sub subscription.
// Caller must call Close() when done to clean up resources.
type Subscription[T any] struct {
	events <-chan *T
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of decoded events.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription[T]) Events() <-chan *T {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures; the subscription continues after them.
func (s *Subscription[T]) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription[T]) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeChanges subscribes to blackboard change events for this agent.
// Events are delivered on a buffered channel (size 10); Redis Pub/Sub is
// at-most-once, so a slow subscriber may miss events.
func (c *Client) SubscribeChanges(ctx context.Context) (*Subscription[ChangeEvent], error) {
	return subscribe[ChangeEvent](ctx, c.rdb, ChangeEventsChannel(c.agentName), "change event")
}

// SubscribeExecutionEvents subscribes to scheduler trace events for this agent.
func (c *Client) SubscribeExecutionEvents(ctx context.Context) (*Subscription[ExecutionEvent], error) {
	return subscribe[ExecutionEvent](ctx, c.rdb, ExecutionEventsChannel(c.agentName), "execution event")
}

// SubscribeMessages subscribes to external messages sent to this agent.
func (c *Client) SubscribeMessages(ctx context.Context) (*Subscription[AgentMessage], error) {
	return subscribe[AgentMessage](ctx, c.rdb, MessagesChannel(c.agentName), "message")
}

func subscribe[T any](ctx context.Context, rdb *redis.Client, channel, label string) (*Subscription[T], error) {
	pubsub := rdb.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed so no publish is missed after return
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	eventsChan := make(chan *T, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event T
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal %s: %w", label, err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription[T]{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
