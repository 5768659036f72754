package research

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/portsight/portsight-back/internal/ai"
)

// Provider is the external deep-research backend.
type Provider interface {
	Search(ctx context.Context, request ai.SearchRequest) (ai.SearchResult, error)
	Available() bool
}

// QueryResult is the per-category outcome of one provider query. A
// failed query is data, not an error: the assembler renders it as a
// failure marker under the category's header.
type QueryResult struct {
	Category      string
	Header        string
	Text          string
	Failed        bool
	FailureReason string
}

type ExecutorConfig struct {
	ModelStandard string
	ModelPremium  string
	QueryTimeout  time.Duration
	Concurrency   int
}

// Executor fans a query plan out against the provider. Queries run
// concurrently up to a bounded limit; each gets its own timeout, and one
// query's failure never aborts the rest.
type Executor struct {
	provider Provider
	config   ExecutorConfig
	logger   *log.Logger
}

func NewExecutor(provider Provider, config ExecutorConfig, logger *log.Logger) *Executor {
	if config.ModelStandard == "" {
		config.ModelStandard = "sonar-pro"
	}
	if config.ModelPremium == "" {
		config.ModelPremium = "sonar-deep-research"
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = 2 * time.Minute
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 2
	}
	return &Executor{provider: provider, config: config, logger: logger}
}

// Execute runs every planned query and returns one result per config, in
// plan order regardless of completion order. onProgress, when non-nil,
// is called with (completed, total) after each query settles.
func (e *Executor) Execute(
	ctx context.Context,
	configs []QueryConfig,
	onProgress func(completed, total int),
) []QueryResult {
	results := make([]QueryResult, len(configs))
	total := len(configs)
	var completed atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.config.Concurrency)

	for i, config := range configs {
		i, config := i, config
		group.Go(func() error {
			results[i] = e.runQuery(groupCtx, config)
			if onProgress != nil {
				onProgress(int(completed.Add(1)), total)
			}
			return nil
		})
	}

	// Workers never return errors; failures are recorded in-place.
	_ = group.Wait()
	return results
}

func (e *Executor) runQuery(ctx context.Context, config QueryConfig) QueryResult {
	result := QueryResult{Category: config.Category, Header: config.Header}

	queryCtx, cancel := context.WithTimeout(ctx, e.config.QueryTimeout)
	defer cancel()

	searchResult, err := e.provider.Search(queryCtx, ai.SearchRequest{
		Query:        config.Query,
		SystemPrompt: config.SystemPrompt,
		Model:        e.modelFor(config.Tier),
	})
	if err != nil {
		if e.logger != nil {
			e.logger.Printf("research query failed category=%s err=%v", config.Category, err)
		}
		result.Failed = true
		result.FailureReason = failureReason(queryCtx, err)
		return result
	}

	result.Text = searchResult.Text
	return result
}

func (e *Executor) modelFor(tier ModelTier) string {
	if tier == TierPremium {
		return e.config.ModelPremium
	}
	return e.config.ModelStandard
}

func failureReason(ctx context.Context, err error) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "query timed out"
	}
	return err.Error()
}
