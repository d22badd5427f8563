package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/antti/imagevault/internal/shared"
)

// Message is one unit of work published onto the bus. ID is the stable
// messageId consumers dedup on; CorrelationID is optional and
// propagated by orchestration code that wants to trace a scan request
// across several messages.
type Message struct {
	ID            string
	CorrelationID string
	Type          string
	Queue         string
	Payload       any
	Priority      int
}

// Bus publishes messages onto asynq-backed queues declared in
// topology.go. Setup (queue declaration with weights) is owned by a
// single responsibility — see cmd/setup — so ordinary publishers never
// redeclare topology.
type Bus struct {
	client     *asynq.Client
	messageTTL time.Duration
}

// New wraps an asynq client. messageTTL is MessageBus.MessageTimeout,
// set on every task as asynq.Timeout: it limits how long one processing
// attempt may run. A message waiting in its queue is not expired or
// dead-lettered by age.
func New(client *asynq.Client, messageTTL time.Duration) *Bus {
	return &Bus{client: client, messageTTL: messageTTL}
}

// Envelope is the on-wire shape every published message is wrapped in.
// Consumers read a task's raw payload into an Envelope and then unmarshal
// Body into whatever payload type their queue carries.
type Envelope struct {
	MessageID     string          `json:"messageId"`
	CorrelationID string          `json:"correlationId,omitempty"`
	MessageType   string          `json:"messageType"`
	Timestamp     time.Time       `json:"timestamp"`
	Priority      int             `json:"priority,omitempty"`
	Body          json.RawMessage `json:"body"`
}

// Body unwraps a task's raw payload to its envelope's body bytes, for
// handlers that only care about the inner, queue-specific payload.
func Body(raw []byte) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, shared.NewValidationError("payload", "unmarshal message envelope: "+err.Error())
	}
	return env.Body, nil
}

func (b *Bus) buildTask(msg Message) (*asynq.Task, []asynq.Option, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	envelope := struct {
		MessageID     string    `json:"messageId"`
		CorrelationID string    `json:"correlationId,omitempty"`
		MessageType   string    `json:"messageType"`
		Timestamp     time.Time `json:"timestamp"`
		Priority      int       `json:"priority,omitempty"`
		Body          any       `json:"body"`
	}{
		MessageID:     msg.ID,
		CorrelationID: msg.CorrelationID,
		MessageType:   msg.Type,
		Timestamp:     time.Now(),
		Priority:      msg.Priority,
		Body:          msg.Payload,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, nil, shared.NewValidationError("payload", "marshal message payload: "+err.Error())
	}

	opts := []asynq.Option{
		asynq.TaskID(msg.ID),
		asynq.Queue(msg.Queue),
		asynq.Timeout(b.messageTTL),
	}

	return asynq.NewTask(msg.Type, payload, opts...), opts, nil
}

// Publish enqueues msg for immediate (best-effort) processing. A
// duplicate ID is a no-op success, via asynq's TaskID dedup.
func (b *Bus) Publish(ctx context.Context, msg Message) error {
	task, opts, err := b.buildTask(msg)
	if err != nil {
		return err
	}
	_, err = b.client.EnqueueContext(ctx, task, opts...)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return shared.NewTransientError(err, "publish message")
	}
	return nil
}

// PublishBatch fans out concurrently and only reports success once every
// publish has acked.
func (b *Bus) PublishBatch(ctx context.Context, msgs []Message) error {
	var wg sync.WaitGroup
	errs := make([]error, len(msgs))

	for i, msg := range msgs {
		wg.Add(1)
		go func(i int, msg Message) {
			defer wg.Done()
			errs[i] = b.Publish(ctx, msg)
		}(i, msg)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("publish batch item %d: %w", i, err)
		}
	}
	return nil
}

// PublishDelayed enqueues msg to become available for processing after
// delay, implemented via asynq's ProcessIn. The messageTTL timeout set in
// buildTask is separate and only limits the processing attempt.
func (b *Bus) PublishDelayed(ctx context.Context, msg Message, delay time.Duration) error {
	task, opts, err := b.buildTask(msg)
	if err != nil {
		return err
	}
	opts = append(opts, asynq.ProcessIn(delay))
	_, err = b.client.EnqueueContext(ctx, task, opts...)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return shared.NewTransientError(err, "publish delayed message")
	}
	return nil
}

// PublishWithPriority stamps msg's envelope with a priority header.
// asynq schedules by queue weight rather than per-message priority, so
// this only affects how consumers that read the envelope choose to order
// their own in-process work; broker-level priority stays optional.
func (b *Bus) PublishWithPriority(ctx context.Context, msg Message, priority int) error {
	msg.Priority = priority
	return b.Publish(ctx, msg)
}

// Close releases the underlying asynq client.
func (b *Bus) Close() error {
	return b.client.Close()
}
