// Package queue provides the durable NATS JetStream queue that holds
// pending narration jobs between submission and the worker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/narration-service/internal/core"
)

// JobQueue is a work-queue stream: each job is delivered to one worker and
// removed on acknowledgement. Its task ids are internal; clients poll with
// the correlation id instead.
type JobQueue struct {
	natsConnection   *nats.Conn
	jetstreamContext nats.JetStreamContext
	streamName       string
	subject          string
	consumerName     string
	ackWait          time.Duration
	log              *logger.Logger
}

// New creates the queue, provisioning its stream with a "create-first"
// approach and binding to it when it already exists. ackWait must exceed the
// longest a job may run: an unacked delivery is redelivered after ackWait,
// and a redelivery while the first handler still runs would put two workers
// on the same job.
func New(
	natsConnection *nats.Conn,
	jetstreamContext nats.JetStreamContext,
	streamName, subject, consumerName string,
	ackWait time.Duration,
	log *logger.Logger,
) (*JobQueue, error) {
	_, err := jetstreamContext.AddStream(&nats.StreamConfig{
		Name:        streamName,
		Description: fmt.Sprintf("Pending narration jobs for the %s stream.", streamName),
		Subjects:    []string{subject},
		Retention:   nats.WorkQueuePolicy,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create job stream '%s': %w", streamName, err)
		}

		_, err = jetstreamContext.StreamInfo(streamName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing job stream '%s': %w", streamName, err)
		}
	}

	return &JobQueue{
		natsConnection:   natsConnection,
		jetstreamContext: jetstreamContext,
		streamName:       streamName,
		subject:          subject,
		consumerName:     consumerName,
		ackWait:          ackWait,
		log:              log,
	}, nil
}

// Enqueue durably publishes one job and returns the queue's task id. The
// publish is the submission path's only side effect, so it must stay fast.
func (q *JobQueue) Enqueue(ctx context.Context, job core.AudioJob) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job %s: %w", job.CorrelationID(), err)
	}

	ack, err := q.jetstreamContext.Publish(q.subject, data, nats.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.CorrelationID(), err)
	}

	return fmt.Sprintf("%s-%d", ack.Stream, ack.Sequence), nil
}

// Run delivers jobs to handle until ctx is cancelled, acknowledging each
// delivery after handle returns. The handler owns per-job timeouts; the
// queue only moves messages.
func (q *JobQueue) Run(ctx context.Context, handle func(core.AudioJob)) error {
	sub, err := q.jetstreamContext.Subscribe(q.subject, func(msg *nats.Msg) {
		var job core.AudioJob

		err := json.Unmarshal(msg.Data, &job)
		if err != nil {
			// A job that cannot be parsed can never succeed; drop it
			// rather than poison the queue.
			q.log.Error("Failed to unmarshal job, terminating message: %v", err)

			termErr := msg.Term()
			if termErr != nil {
				q.log.Error("Failed to terminate unparseable message: %v", termErr)
			}

			return
		}

		handle(job)

		ackErr := msg.Ack()
		if ackErr != nil {
			q.log.Error("Failed to acknowledge job %s: %v", job.CorrelationID(), ackErr)
		}
	}, nats.Durable(q.consumerName), nats.ManualAck(), nats.AckWait(q.ackWait))
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", q.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}
