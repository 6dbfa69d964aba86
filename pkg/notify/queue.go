package notify

import (
	"context"
	"log/slog"

	"pearl/pkg/queue"
)

// JobKind is the queue job kind used for notifications.
const JobKind = "notification"

// Enqueuer is the subset of the job queue used here.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload []byte) (queue.Job, error)
}

// QueueNotifier stores messages on the job queue for the Worker.
type QueueNotifier struct {
	Queue Enqueuer
}

func (n QueueNotifier) Notify(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	payload, err := encode(msg)
	if err != nil {
		return err
	}
	_, err = n.Queue.Enqueue(ctx, JobKind, payload)
	return err
}

// Worker turns queued notification jobs into Sender calls.
type Worker struct {
	Sender Sender
	Logger *slog.Logger
}

// Handle is a queue.Handler. Undecodable payloads are dropped, send errors
// are returned so the queue retries.
func (w Worker) Handle(ctx context.Context, job queue.Job) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if job.Kind != JobKind {
		logger.Warn("notification worker skipped job", "job_id", job.ID, "kind", job.Kind)
		return nil
	}
	msg, err := decode(job.Payload)
	if err != nil {
		logger.Error("notification dropped", "job_id", job.ID, "err", err)
		return nil
	}
	return w.Sender.Send(ctx, msg)
}
