package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/hook"
)

// Compile-time interface checks.
var (
	_ hook.Extension          = (*Broker)(nil)
	_ hook.ExecutionStarted   = (*Broker)(nil)
	_ hook.ExecutionPaused    = (*Broker)(nil)
	_ hook.ExecutionResumed   = (*Broker)(nil)
	_ hook.ExecutionCompleted = (*Broker)(nil)
	_ hook.ExecutionFailed    = (*Broker)(nil)
	_ hook.ExecutionCancelled = (*Broker)(nil)
	_ hook.ExecutionForked    = (*Broker)(nil)
	_ hook.StepStarted        = (*Broker)(nil)
	_ hook.StepCompleted      = (*Broker)(nil)
	_ hook.StepFailed         = (*Broker)(nil)
	_ hook.StepSkipped        = (*Broker)(nil)
	_ hook.Shutdown           = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time notification broker. It implements the
// hook.Extension interfaces to receive lifecycle events and fans them
// out to subscribers via workspace-scoped topic pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new notification broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements hook.Extension.
func (b *Broker) Name() string { return "notify-broker" }

// Topics returns the topic registry for external use (e.g., the
// websocket gateway).
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Publish broadcasts an event to all matching topics. Used by the hook
// emitters below and by external bridges feeding remote events in.
func (b *Broker) Publish(evt *Event) {
	topics := resolveTopics(evt)
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
}

// Stats returns broker statistics. Dropped deliveries are summed
// across the live subscribers.
func (b *Broker) Stats() BrokerStats {
	count := 0
	var dropped int64
	b.subscribers.Range(func(_, val any) bool {
		count++
		dropped += val.(*Subscriber).Dropped() //nolint:errcheck // sync.Map always stores *Subscriber
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    dropped,
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("notify: marshal event data: " + err.Error())
	}
	return data
}

func executionData(ex *execution.Execution) ExecutionEventData {
	return ExecutionEventData{
		ExecutionID: ex.ID.String(),
		WorkflowID:  ex.WorkflowID.String(),
		Status:      string(ex.Status),
	}
}

func (b *Broker) publishExecution(typ EventType, ex *execution.Execution, data ExecutionEventData) {
	b.Publish(&Event{
		Type:        typ,
		Timestamp:   time.Now().UTC(),
		Version:     ex.Version,
		Topic:       ExecutionTopic(ex.ID.String()),
		WorkspaceID: ex.WorkspaceID,
		Data:        mustMarshal(data),
	})
}

func (b *Broker) publishStep(typ EventType, ex *execution.Execution, data StepEventData) {
	b.Publish(&Event{
		Type:        typ,
		Timestamp:   time.Now().UTC(),
		Version:     ex.Version,
		Topic:       ExecutionTopic(ex.ID.String()),
		WorkspaceID: ex.WorkspaceID,
		Data:        mustMarshal(data),
	})
}

// ── Execution lifecycle hooks ───────────────────────

func (b *Broker) OnExecutionStarted(_ context.Context, ex *execution.Execution) error {
	b.publishExecution(EventExecutionStarted, ex, executionData(ex))
	return nil
}

func (b *Broker) OnExecutionPaused(_ context.Context, ex *execution.Execution, stepID string) error {
	data := executionData(ex)
	data.StepID = stepID
	b.publishExecution(EventExecutionPaused, ex, data)
	return nil
}

func (b *Broker) OnExecutionResumed(_ context.Context, ex *execution.Execution, stepID string) error {
	data := executionData(ex)
	data.StepID = stepID
	b.publishExecution(EventExecutionResumed, ex, data)
	return nil
}

func (b *Broker) OnExecutionCompleted(_ context.Context, ex *execution.Execution, elapsed time.Duration) error {
	data := executionData(ex)
	data.ElapsedMs = elapsed.Milliseconds()
	b.publishExecution(EventExecutionCompleted, ex, data)
	return nil
}

func (b *Broker) OnExecutionFailed(_ context.Context, ex *execution.Execution, execErr error) error {
	data := executionData(ex)
	data.Error = execErr.Error()
	b.publishExecution(EventExecutionFailed, ex, data)
	return nil
}

func (b *Broker) OnExecutionCancelled(_ context.Context, ex *execution.Execution) error {
	b.publishExecution(EventExecutionCancelled, ex, executionData(ex))
	return nil
}

func (b *Broker) OnExecutionForked(_ context.Context, source, fork *execution.Execution, fromStepID string) error {
	data := executionData(fork)
	data.StepID = fromStepID
	data.ForkedFrom = source.ID.String()
	b.publishExecution(EventExecutionForked, fork, data)
	return nil
}

// ── Step lifecycle hooks ────────────────────────────

func (b *Broker) OnStepStarted(_ context.Context, ex *execution.Execution, stepID string) error {
	b.publishStep(EventStepStarted, ex, StepEventData{
		ExecutionID: ex.ID.String(),
		WorkflowID:  ex.WorkflowID.String(),
		StepID:      stepID,
		Status:      string(execution.StepRunning),
	})
	return nil
}

func (b *Broker) OnStepCompleted(_ context.Context, ex *execution.Execution, stepID string, elapsed time.Duration) error {
	b.publishStep(EventStepCompleted, ex, StepEventData{
		ExecutionID: ex.ID.String(),
		WorkflowID:  ex.WorkflowID.String(),
		StepID:      stepID,
		Status:      string(execution.StepCompleted),
		ElapsedMs:   elapsed.Milliseconds(),
	})
	return nil
}

func (b *Broker) OnStepFailed(_ context.Context, ex *execution.Execution, stepID string, stepErr error) error {
	b.publishStep(EventStepFailed, ex, StepEventData{
		ExecutionID: ex.ID.String(),
		WorkflowID:  ex.WorkflowID.String(),
		StepID:      stepID,
		Status:      string(execution.StepFailed),
		Error:       stepErr.Error(),
	})
	return nil
}

func (b *Broker) OnStepSkipped(_ context.Context, ex *execution.Execution, stepID string) error {
	b.publishStep(EventStepSkipped, ex, StepEventData{
		ExecutionID: ex.ID.String(),
		WorkflowID:  ex.WorkflowID.String(),
		StepID:      stepID,
		Status:      string(execution.StepSkipped),
	})
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("notify broker shut down")
	return nil
}
