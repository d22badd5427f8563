package bus

import (
	"github.com/hibiken/asynq"

	"github.com/antti/imagevault/internal/shared"
)

// DeadLetter is an operator-facing view of a terminally failed message,
// surfaced via asynq's Inspector over its archived-task set.
type DeadLetter struct {
	ID         string
	Type       string
	Queue      string
	LastError  string
	RetriedMax bool
}

// Inspector reads dead-lettered tasks without consuming them, for an
// operator CLI or admin endpoint to list/requeue.
type Inspector struct {
	inspector *asynq.Inspector
}

// NewInspector wraps an asynq.Inspector bound to the same Redis connection
// options the Bus's client uses.
func NewInspector(redisOpt asynq.RedisConnOpt) *Inspector {
	return &Inspector{inspector: asynq.NewInspector(redisOpt)}
}

// ListDeadLetters returns tasks asynq has archived on the given queue
// after exhausting their retries.
func (i *Inspector) ListDeadLetters(queue string) ([]DeadLetter, error) {
	tasks, err := i.inspector.ListArchivedTasks(queue)
	if err != nil {
		return nil, shared.NewTransientError(err, "list dead letters")
	}

	out := make([]DeadLetter, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, DeadLetter{
			ID:         t.ID,
			Type:       t.Type,
			Queue:      t.Queue,
			LastError:  t.LastErr,
			RetriedMax: t.Retried >= t.MaxRetry,
		})
	}
	return out, nil
}

// Requeue moves a dead-lettered task back onto its queue's pending set
// for another attempt, resetting its retry count.
func (i *Inspector) Requeue(queue, taskID string) error {
	if err := i.inspector.RunTask(queue, taskID); err != nil {
		return shared.NewTransientError(err, "requeue dead letter")
	}
	return nil
}

// Close releases the underlying asynq inspector's connection.
func (i *Inspector) Close() error {
	return i.inspector.Close()
}
