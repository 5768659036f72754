package queue

import (
	"context"

	"github.com/portsight/portsight-back/internal/domain"
)

// Producer dispatches persisted pending jobs to workers. The message is
// only a wake-up hint: the job row stays the source of truth and workers
// re-claim it atomically, so duplicate delivery is harmless.
type Producer interface {
	Enqueue(ctx context.Context, message domain.DispatchMessage) error
}

// Consumer receives dispatch messages and invokes the worker handler.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.DispatchMessage) error) error
}
