package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"CaseCurator/internal/bulk"
	"CaseCurator/internal/domain"
	"CaseCurator/internal/generation"
	"CaseCurator/internal/ingest"
	"CaseCurator/internal/ports"
	"CaseCurator/internal/quota"
	"CaseCurator/internal/seeds"
	"CaseCurator/internal/taxonomy"
)

// GeneratorDeps wires the driven adapters and domain services of a generation run.
type GeneratorDeps struct {
	Registry     *taxonomy.Registry
	Cases        ports.CaseRepository
	Completion   ports.CompletionClient
	Orchestrator *bulk.Orchestrator
	Ingester     *ingest.Ingester
	Builder      *generation.Builder
	Sampler      *quota.Sampler
	Notifier     ports.Notifier
	Seeds        seeds.Options
	Dataset      string
	Logger       *slog.Logger
	NewRunID     func() string
}

// RunSummary reports one generation run or bulk collection.
type RunSummary struct {
	RunID     string               `json:"run_id"`
	JobID     string               `json:"job_id,omitempty"`
	Requested int                  `json:"requested"`
	Planned   int                  `json:"planned"`
	Synthetic int                  `json:"synthetic_seeds"`
	Satisfied bool                 `json:"quota_satisfied"`
	Ingest    ingest.Summary       `json:"ingest"`
	Progress  []quota.TierProgress `json:"progress,omitempty"`
}

// Generator drives quota-aware generation runs, synchronously or through a bulk job.
type Generator struct {
	deps   GeneratorDeps
	logger *slog.Logger
}

// NewGenerator constructs the use case. Sampler and Builder default when nil.
func NewGenerator(deps GeneratorDeps) *Generator {
	if deps.Sampler == nil {
		deps.Sampler = quota.NewSampler()
	}
	if deps.Builder == nil {
		deps.Builder = generation.NewBuilder(generation.Options{})
	}
	if deps.NewRunID == nil {
		deps.NewRunID = func() string { return "run-" + uuid.NewString()[:8] }
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{deps: deps, logger: logger.With("component", "generator")}
}

// RunSync generates up to n records one completion at a time. Counts are re-read
// from the store before every sampling decision and each result is ingested at once.
func (g *Generator) RunSync(ctx context.Context, n int, c quota.Constraints) (RunSummary, error) {
	if g.deps.Completion == nil {
		return RunSummary{}, fmt.Errorf("run sync: no completion client configured")
	}
	if n < 1 {
		return RunSummary{}, fmt.Errorf("run sync: %w: got %d", quota.ErrInvalidCount, n)
	}
	runID := g.deps.NewRunID()
	sum := RunSummary{RunID: runID, Requested: n}
	log := g.logger.With("run_id", runID)
	seedGen := g.seedGenerator(runID)

	var pool []domain.ScenarioSeed
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return g.finish(ctx, sum, seedGen), err
		}
		needs, err := g.needs(ctx)
		if err != nil {
			return g.finish(ctx, sum, seedGen), err
		}
		sel, err := g.deps.Sampler.Next(needs, c)
		if errors.Is(err, quota.ErrQuotaSatisfied) {
			sum.Satisfied = true
			log.Info("quota satisfied, stopping run", "generated", i)
			break
		}
		if err != nil {
			return g.finish(ctx, sum, seedGen), fmt.Errorf("sample: %w", err)
		}

		if len(pool) == 0 {
			batch := n - i
			if size := seedBatch(g.deps.Seeds); batch > size {
				batch = size
			}
			if left := needs.Remaining(); batch > left {
				batch = left
			}
			if pool, err = seedGen.Generate(ctx, batch); err != nil {
				return g.finish(ctx, sum, seedGen), fmt.Errorf("generate seeds: %w", err)
			}
		}
		seed := pool[0]
		pool = pool[1:]

		req, err := g.deps.Builder.Build(runID, i+1, sel, seed)
		if err != nil {
			return g.finish(ctx, sum, seedGen), err
		}
		sum.Planned++

		raw := domain.RawResult{CorrelationID: req.CorrelationID, SourcePrompt: req.Prompt.User}
		content, err := g.deps.Completion.Complete(ctx, ports.CompletionRequest{
			Model:       req.Prompt.Model,
			System:      req.Prompt.System,
			User:        req.Prompt.User,
			Temperature: req.Prompt.Temperature,
			JSONOutput:  req.Prompt.JSONOutput,
		})
		if err != nil {
			log.Warn("completion failed", "correlation_id", req.CorrelationID, "error", err)
			raw.Err = err.Error()
		} else {
			raw.Payload = []byte(content)
		}
		sum.Ingest = mergeIngest(sum.Ingest, g.deps.Ingester.IngestBatch(ctx, []domain.RawResult{raw}))
	}

	sum = g.finish(ctx, sum, seedGen)
	log.Info("sync run finished", "planned", sum.Planned, "succeeded", sum.Ingest.Succeeded, "failed", sum.Ingest.Failed)
	g.notify(ctx, "Sync run", sum)
	return sum, nil
}

// SubmitBulk plans n selections against a single count snapshot and submits them as one job.
// A quota that fills up part-way yields a smaller job; a fully satisfied quota is an error.
func (g *Generator) SubmitBulk(ctx context.Context, n int, c quota.Constraints) (domain.BulkJob, error) {
	if g.deps.Orchestrator == nil {
		return domain.BulkJob{}, fmt.Errorf("submit bulk: no bulk orchestrator configured")
	}
	if n < 1 {
		return domain.BulkJob{}, fmt.Errorf("submit bulk: %w: got %d", quota.ErrInvalidCount, n)
	}
	needs, err := g.needs(ctx)
	if err != nil {
		return domain.BulkJob{}, err
	}
	plan, _, err := g.deps.Sampler.Plan(needs, n, c)
	if err != nil && !(errors.Is(err, quota.ErrQuotaSatisfied) && len(plan) > 0) {
		return domain.BulkJob{}, fmt.Errorf("plan: %w", err)
	}

	runID := g.deps.NewRunID()
	seedGen := g.seedGenerator(runID)
	pool, err := seedGen.Generate(ctx, len(plan))
	if err != nil {
		return domain.BulkJob{}, fmt.Errorf("generate seeds: %w", err)
	}

	requests := make([]domain.GenerationRequest, 0, len(plan))
	for i, sel := range plan {
		req, err := g.deps.Builder.Build(runID, i+1, sel, pool[i])
		if err != nil {
			return domain.BulkJob{}, err
		}
		requests = append(requests, req)
	}

	job, err := g.deps.Orchestrator.Submit(ctx, runID, requests)
	if err != nil {
		return job, err
	}
	g.logger.Info("bulk run submitted", "run_id", runID, "job_id", job.ID, "requests", len(requests),
		"synthetic_seeds", seedGen.Synthetic())
	return job, nil
}

// PollBulk refreshes the job state once.
func (g *Generator) PollBulk(ctx context.Context, jobID string) (bulk.PollResult, error) {
	if g.deps.Orchestrator == nil {
		return bulk.PollResult{}, fmt.Errorf("poll bulk: no bulk orchestrator configured")
	}
	return g.deps.Orchestrator.Poll(ctx, jobID)
}

// WaitBulk polls every interval until the job is terminal or ctx is done.
func (g *Generator) WaitBulk(ctx context.Context, jobID string, interval time.Duration) (domain.BulkJob, error) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := g.PollBulk(ctx, jobID)
		if err != nil {
			g.logger.Warn("poll failed", "job_id", jobID, "error", err)
		} else if res.Done() {
			return res.Job, nil
		}
		select {
		case <-ctx.Done():
			return res.Job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CollectBulk ingests the results of a completed job and marks it collected.
func (g *Generator) CollectBulk(ctx context.Context, jobID string) (RunSummary, error) {
	if g.deps.Orchestrator == nil {
		return RunSummary{}, fmt.Errorf("collect bulk: no bulk orchestrator configured")
	}
	job, err := g.deps.Orchestrator.Job(ctx, jobID)
	if err != nil {
		return RunSummary{}, fmt.Errorf("load job: %w", err)
	}
	results, err := g.deps.Orchestrator.FetchResults(ctx, jobID)
	if err != nil {
		return RunSummary{}, err
	}

	sum := RunSummary{RunID: job.RunID, JobID: job.ID, Requested: len(job.Requests), Planned: len(job.Requests)}
	sum.Ingest = g.deps.Ingester.IngestBatch(ctx, results)
	if _, err := g.deps.Orchestrator.MarkCollected(ctx, jobID); err != nil {
		return sum, err
	}
	if needs, err := g.needs(ctx); err == nil {
		sum.Progress = needs.ByTier()
		sum.Satisfied = needs.Remaining() == 0
	}
	g.logger.Info("bulk job collected", "job_id", jobID, "run_id", job.RunID,
		"succeeded", sum.Ingest.Succeeded, "failed", sum.Ingest.Failed)
	g.notify(ctx, "Bulk collection", sum)
	return sum, nil
}

// Progress reports current counts against targets.
func (g *Generator) Progress(ctx context.Context) (quota.Needs, error) {
	return g.needs(ctx)
}

func (g *Generator) needs(ctx context.Context) (quota.Needs, error) {
	rows, err := g.deps.Cases.CountByCell(ctx, g.deps.Dataset)
	if err != nil {
		return nil, fmt.Errorf("count cells: %w", err)
	}
	return quota.NeedsFromCounts(g.deps.Registry, quota.CountMap(rows)), nil
}

func (g *Generator) seedGenerator(runID string) *seeds.Generator {
	opts := g.deps.Seeds
	opts.RunID = runID
	return seeds.NewGenerator(g.deps.Completion, opts, g.logger)
}

func (g *Generator) finish(ctx context.Context, sum RunSummary, seedGen *seeds.Generator) RunSummary {
	sum.Synthetic = seedGen.Synthetic()
	if needs, err := g.needs(ctx); err == nil {
		sum.Progress = needs.ByTier()
	}
	return sum
}

func (g *Generator) notify(ctx context.Context, title string, sum RunSummary) {
	if g.deps.Notifier == nil {
		return
	}
	if err := g.deps.Notifier.PublishDigest(ctx, buildDigestMessage(title, sum)); err != nil {
		g.logger.Warn("publish run summary", "run_id", sum.RunID, "error", err)
	}
}

func seedBatch(opts seeds.Options) int {
	if opts.BatchSize > 0 {
		return opts.BatchSize
	}
	return seeds.DefaultBatchSize
}

func mergeIngest(a, b ingest.Summary) ingest.Summary {
	a.Attempted += b.Attempted
	a.Succeeded += b.Succeeded
	a.Failed += b.Failed
	a.Failures = append(a.Failures, b.Failures...)
	a.CaseIDs = append(a.CaseIDs, b.CaseIDs...)
	return a
}
