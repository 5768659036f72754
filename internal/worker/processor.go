package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/portsight/portsight-back/internal/domain"
	"github.com/portsight/portsight-back/internal/queue"
	"github.com/portsight/portsight-back/internal/repository"
	"github.com/portsight/portsight-back/internal/research"
	"github.com/portsight/portsight-back/internal/service"
)

// Processor consumes dispatch messages and drives claimed jobs through
// the plan -> execute -> assemble pipeline.
type Processor struct {
	consumer          queue.Consumer
	jobs              *service.JobsService
	entities          repository.EntitiesRepository
	executor          *research.Executor
	heartbeatInterval time.Duration
	logger            *log.Logger
}

func NewProcessor(
	consumer queue.Consumer,
	jobs *service.JobsService,
	entities repository.EntitiesRepository,
	executor *research.Executor,
	heartbeatInterval time.Duration,
	logger *log.Logger,
) *Processor {
	if heartbeatInterval <= 0 {
		heartbeatInterval = time.Minute
	}
	return &Processor{
		consumer:          consumer,
		jobs:              jobs,
		entities:          entities,
		executor:          executor,
		heartbeatInterval: heartbeatInterval,
		logger:            logger,
	}
}

func (p *Processor) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.processMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		if p.logger != nil {
			p.logger.Printf("worker consume loop error: %v", err)
		}

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Processor) processMessage(ctx context.Context, message domain.DispatchMessage) (err error) {
	// A job-level failure must never take the worker down; record it on
	// the job and keep consuming.
	defer func() {
		if recovered := recover(); recovered != nil {
			failure := fmt.Sprintf("worker panic: %v", recovered)
			_ = p.jobs.Fail(ctx, message.JobID, failure)
			if p.logger != nil {
				p.logger.Printf("recovered worker panic job_id=%s panic=%v", message.JobID, recovered)
			}
			err = nil
		}
	}()

	if err := p.jobs.Claim(ctx, message.JobID); err != nil {
		// Someone else claimed it, or it already resolved. Either way the
		// message is spent; ack by returning nil.
		if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
			if p.logger != nil {
				p.logger.Printf("skipping dispatch for unclaimable job job_id=%s err=%v", message.JobID, err)
			}
			return nil
		}
		return fmt.Errorf("claim job %s: %w", message.JobID, err)
	}

	stopHeartbeat := p.startHeartbeat(ctx, message.JobID)
	defer stopHeartbeat()

	report, summary, runErr := p.runResearch(ctx, message)
	if runErr != nil {
		_ = p.jobs.Fail(ctx, message.JobID, runErr.Error())
		if p.logger != nil {
			p.logger.Printf("research job failed job_id=%s err=%v", message.JobID, runErr)
		}
		return nil
	}

	if err := p.jobs.Complete(ctx, message.JobID, report, summary); err != nil {
		_ = p.jobs.Fail(ctx, message.JobID, fmt.Sprintf("finalize job: %v", err))
		return nil
	}

	if p.logger != nil {
		p.logger.Printf("research job completed job_id=%s type=%s entity_id=%s",
			message.JobID, message.Type, message.EntityID)
	}
	return nil
}

func (p *Processor) runResearch(ctx context.Context, message domain.DispatchMessage) (string, string, error) {
	entity, err := p.entityContext(ctx, message.Type, message.EntityID)
	if err != nil {
		return "", "", err
	}

	plan := research.Plan(message.Type, entity)
	_ = p.jobs.Progress(ctx, message.JobID, 10)

	results := p.executor.Execute(ctx, plan, func(completed, total int) {
		// 10% for planning, 80% spread across the fan-out, the rest on
		// assembly and finalization.
		_ = p.jobs.Progress(ctx, message.JobID, 10+80*completed/total)
	})

	report, summary := research.Assemble(message.Type, results)
	_ = p.jobs.Progress(ctx, message.JobID, 95)
	return report, summary, nil
}

func (p *Processor) entityContext(
	ctx context.Context,
	entityType domain.EntityType,
	entityID string,
) (domain.EntityContext, error) {
	switch entityType {
	case domain.EntityPort:
		port, err := p.entities.GetPort(ctx, entityID)
		if err != nil {
			return domain.EntityContext{}, fmt.Errorf("load port %s: %w", entityID, err)
		}
		return port.Context(), nil
	case domain.EntityTerminal:
		terminal, err := p.entities.GetTerminal(ctx, entityID)
		if err != nil {
			return domain.EntityContext{}, fmt.Errorf("load terminal %s: %w", entityID, err)
		}
		portName := ""
		if port, err := p.entities.GetPort(ctx, terminal.PortID); err == nil {
			portName = port.Name
		}
		return terminal.Context(portName), nil
	case domain.EntityTerminalOperator:
		operator, err := p.entities.GetOperator(ctx, entityID)
		if err != nil {
			return domain.EntityContext{}, fmt.Errorf("load operator %s: %w", entityID, err)
		}
		return operator.Context(), nil
	default:
		return domain.EntityContext{}, fmt.Errorf("unknown entity type: %s", entityType)
	}
}

// startHeartbeat renews job liveness until the returned stop function is
// called. The interval must stay well under the reaper's stale window.
func (p *Processor) startHeartbeat(ctx context.Context, jobID string) func() {
	heartbeatCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				return
			case <-ticker.C:
				if err := p.jobs.Heartbeat(heartbeatCtx, jobID); err != nil {
					if p.logger != nil {
						p.logger.Printf("heartbeat failed job_id=%s err=%v", jobID, err)
					}
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
