package queue

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/portsight/portsight-back/internal/domain"
)

func TestLocalQueueDeliversMessages(t *testing.T) {
	queue := NewLocalQueue(16, 3, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domain.DispatchMessage, 1)
	go func() {
		_ = queue.Consume(ctx, func(_ context.Context, message domain.DispatchMessage) error {
			received <- message
			return nil
		})
	}()

	message := domain.DispatchMessage{JobID: "job-1", Type: domain.EntityPort, EntityID: "port-1"}
	if err := queue.Enqueue(ctx, message); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case got := <-received:
		if got.JobID != "job-1" || got.EntityID != "port-1" {
			t.Fatalf("unexpected message: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("message never delivered")
	}
}

func TestLocalQueueRetriesThenDeadLetters(t *testing.T) {
	queue := NewLocalQueue(16, 2, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int64
	done := make(chan struct{})
	go func() {
		_ = queue.Consume(ctx, func(_ context.Context, _ domain.DispatchMessage) error {
			if attempts.Add(1) == 2 {
				close(done)
			}
			return errors.New("handler always fails")
		})
	}()

	if err := queue.Enqueue(ctx, domain.DispatchMessage{JobID: "job-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected 2 attempts before dead-lettering, saw %d", attempts.Load())
	}

	deadline := time.Now().Add(2 * time.Second)
	for queue.DLQSize() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("message never reached the DLQ")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if queue.DLQSize() != 1 {
		t.Fatalf("expected 1 dead-lettered message, got %d", queue.DLQSize())
	}
}

func TestLocalQueueConsumeStopsOnContextCancel(t *testing.T) {
	queue := NewLocalQueue(16, 3, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())

	errChan := make(chan error, 1)
	go func() {
		errChan <- queue.Consume(ctx, func(_ context.Context, _ domain.DispatchMessage) error {
			return nil
		})
	}()

	cancel()
	select {
	case err := <-errChan:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("consume loop did not stop after cancel")
	}
}
