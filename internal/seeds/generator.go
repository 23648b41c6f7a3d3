// Package seeds produces diverse scenario seeds for a generation run.
package seeds

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"CaseCurator/internal/domain"
	"CaseCurator/internal/ports"
	"CaseCurator/internal/schema"
)

// DefaultBatchSize is the number of seeds requested per completion call.
const DefaultBatchSize = 10

// Options configure a Generator.
type Options struct {
	RunID       string
	Model       string
	Temperature float64
	BatchSize   int
	Capacity    int
}

// Generator asks the completion service for seeds and tops up with synthetic filler.
type Generator struct {
	client  ports.CompletionClient
	opts    Options
	tracker *Tracker
	logger  *slog.Logger

	issued   int
	filler   int
	batches  int
	fallback int
}

// NewGenerator builds a run-scoped generator. client may be nil, in which case
// every seed is synthetic.
func NewGenerator(client ports.CompletionClient, opts Options, logger *slog.Logger) *Generator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		client:  client,
		opts:    opts,
		tracker: NewTracker(opts.Capacity),
		logger:  logger.With("component", "seeds"),
	}
}

// Tracker exposes the run's diversity memory.
func (g *Generator) Tracker() *Tracker {
	return g.tracker
}

// Synthetic reports how many seeds so far came from the fallback lists.
func (g *Generator) Synthetic() int {
	return g.fallback
}

// Generate returns exactly count seeds with unique ids. It only fails when ctx is done.
func (g *Generator) Generate(ctx context.Context, count int) ([]domain.ScenarioSeed, error) {
	out := make([]domain.ScenarioSeed, 0, count)
	for len(out) < count {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		want := g.opts.BatchSize
		if left := count - len(out); left < want {
			want = left
		}

		accepted, err := g.requestBatch(ctx, want)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			g.logger.Warn("seed batch failed, using fallback", "batch", g.batches, "requested", want, "error", err)
		}
		for _, s := range accepted {
			out = append(out, g.issue(s))
		}
		if short := want - len(accepted); short > 0 {
			if err == nil {
				g.logger.Info("seed batch short, topping up with fallback", "batch", g.batches, "requested", want, "accepted", len(accepted))
			}
			for i := 0; i < short; i++ {
				out = append(out, g.issue(g.nextFiller()))
				g.fallback++
			}
		}
		g.batches++
	}
	return out, nil
}

func (g *Generator) issue(s domain.ScenarioSeed) domain.ScenarioSeed {
	g.issued++
	if g.opts.RunID != "" {
		s.ID = fmt.Sprintf("%s-seed-%04d", g.opts.RunID, g.issued)
	} else {
		s.ID = fmt.Sprintf("seed-%04d", g.issued)
	}
	g.tracker.Update(s)
	return s
}

func (g *Generator) nextFiller() domain.ScenarioSeed {
	for {
		s := synthesize(g.filler)
		g.filler++
		if !g.tracker.Contains(s) {
			return s
		}
	}
}

type seedEnvelope struct {
	Seeds []json.RawMessage `json:"seeds"`
}

func (g *Generator) requestBatch(ctx context.Context, n int) ([]domain.ScenarioSeed, error) {
	if g.client == nil {
		return nil, fmt.Errorf("no completion client configured")
	}
	raw, err := g.client.Complete(ctx, ports.CompletionRequest{
		Model:       g.opts.Model,
		System:      seedSystemPrompt,
		User:        BuildSeedPrompt(n, g.tracker, g.batches),
		Temperature: g.opts.Temperature,
		JSONOutput:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("complete seed batch: %w", err)
	}

	var env seedEnvelope
	if err := json.Unmarshal([]byte(schema.StripFences(raw)), &env); err != nil {
		return nil, fmt.Errorf("decode seed batch: %w", err)
	}

	accepted := make([]domain.ScenarioSeed, 0, n)
	for i, item := range env.Seeds {
		if len(accepted) == n {
			break
		}
		if err := schema.ValidateJSON(schema.Seed, item); err != nil {
			g.logger.Debug("seed rejected by schema", "index", i, "field", schema.Field(err), "error", err)
			continue
		}
		var s domain.ScenarioSeed
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		s.Entities = trimAll(s.Entities)
		if err := s.Validate(); err != nil {
			continue
		}
		if g.tracker.Contains(s) || duplicatesWithin(accepted, s) {
			g.logger.Debug("seed rejected as duplicate", "index", i, "topic", s.Topic)
			continue
		}
		accepted = append(accepted, s)
	}
	return accepted, nil
}

func duplicatesWithin(batch []domain.ScenarioSeed, s domain.ScenarioSeed) bool {
	seen := NewTracker(1 << 20)
	seen.Update(batch...)
	return seen.Contains(s)
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
