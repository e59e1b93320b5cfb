package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/shopcraft/media-pipeline/internal/bus"
)

// NATSQueue distributes jobs across a worker queue group. Each job is
// delivered to exactly one group member; that member owns the job's
// retries.
type NATSQueue struct {
	client  *bus.Client
	subject string
	group   string

	// JobTimeout bounds one full handler run including retries.
	JobTimeout time.Duration

	sub *nats.Subscription
}

func NewNATSQueue(client *bus.Client, subject, group string) *NATSQueue {
	return &NATSQueue{
		client:     client,
		subject:    subject,
		group:      group,
		JobTimeout: 10 * time.Minute,
	}
}

func (q *NATSQueue) Enqueue(_ context.Context, job Job) error {
	return q.client.PublishJSON(q.subject, job)
}

func (q *NATSQueue) Subscribe(handler Handler, exhausted ExhaustedFunc) error {
	sub, err := q.client.QueueSubscribe(q.subject, q.group, func(data []byte) {
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			if exhausted != nil {
				exhausted(context.Background(), data, fmt.Errorf("decode job: %w", err))
			}
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), q.JobTimeout)
		defer cancel()
		run(ctx, job, handler, exhausted)
	})
	if err != nil {
		return err
	}
	q.sub = sub
	return nil
}

func (q *NATSQueue) Close() error {
	if q.sub != nil {
		return q.sub.Unsubscribe()
	}
	return nil
}
