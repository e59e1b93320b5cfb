// Package queue is the task-queue abstraction for the asynchronous
// variant phase. Retry and backoff belong to the queue, not to handler
// code: a job carries its attempt budget and delay policy, and retries of
// the same job are sequential, never concurrent.
package queue

import (
	"context"
	"time"
)

// BackoffPolicy computes the delay before each retry. Delay doubles per
// attempt starting from Base.
type BackoffPolicy struct {
	Base time.Duration
}

func (p BackoffPolicy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Job is one unit of asynchronous work.
type Job struct {
	ID          string        `json:"id"`
	Payload     []byte        `json:"payload"`
	MaxAttempts int           `json:"max_attempts"`
	BackoffBase time.Duration `json:"backoff_base"`
}

// Handler processes a job payload. A nil return acknowledges the job; an
// error triggers the job's retry budget.
type Handler func(ctx context.Context, payload []byte) error

// ExhaustedFunc is invoked once a job has failed its final attempt.
type ExhaustedFunc func(ctx context.Context, payload []byte, err error)

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Subscribe installs the handler. exhausted may be nil.
	Subscribe(handler Handler, exhausted ExhaustedFunc) error
	Close() error
}

// run executes the handler with the job's sequential retry budget. Shared
// by the NATS and memory implementations.
func run(ctx context.Context, job Job, handler Handler, exhausted ExhaustedFunc) {
	attempts := job.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	policy := BackoffPolicy{Base: job.BackoffBase}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = handler(ctx, job.Payload); err == nil {
			return
		}
		if attempt < attempts {
			select {
			case <-time.After(policy.Delay(attempt)):
			case <-ctx.Done():
				err = ctx.Err()
				attempt = attempts
			}
		}
	}
	if exhausted != nil {
		exhausted(ctx, job.Payload, err)
	}
}
