// Package scoring moves case records through pending, scored and approved or rejected.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"CaseCurator/internal/domain"
	"CaseCurator/internal/ports"
	"CaseCurator/internal/taxonomy"
)

// DefaultThreshold is the minimum judge confidence for automatic approval.
const DefaultThreshold = 0.8

// ErrWrongStatus is returned when an operation is applied in the wrong state.
var ErrWrongStatus = errors.New("case is not in the required status")

// ConsistencyError blocks approval of a record whose label does not fit its cell.
type ConsistencyError struct {
	CaseID string
	Cell   domain.CellKey
	Label  domain.Label
	Err    error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("case %s: label %s inconsistent with %s: %v", e.CaseID, e.Label, e.Cell, e.Err)
}

func (e *ConsistencyError) Unwrap() error {
	return e.Err
}

// Repository is the persistence the engine needs.
type Repository interface {
	ports.CaseRepository
	ports.EvaluationRepository
}

// Options configure the judge call and decision threshold.
type Options struct {
	Model       string
	Temperature float64
	Threshold   float64
}

// Engine scores records with the judge and applies decisions.
type Engine struct {
	reg    *taxonomy.Registry
	repo   Repository
	judge  ports.CompletionClient
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine wires the engine. judge may be nil, in which case every score is the fallback.
func NewEngine(reg *taxonomy.Registry, repo Repository, judge ports.CompletionClient, opts Options, logger *slog.Logger) *Engine {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		reg:    reg,
		repo:   repo,
		judge:  judge,
		opts:   opts,
		logger: logger.With("component", "scoring"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AutoScore asks the judge for a rubric score and moves the record to scored.
// A failing or malformed judge yields mid-scale defaults; the record never stays pending.
func (e *Engine) AutoScore(ctx context.Context, record domain.CaseRecord) (domain.CaseRecord, domain.EvaluationRecord, error) {
	if record.ValidationStatus != domain.StatusPending {
		return record, domain.EvaluationRecord{}, fmt.Errorf("auto-score %s (%s): %w", record.ID, record.ValidationStatus, ErrWrongStatus)
	}
	rubric := RubricFor(record.Cell.Tier)
	ambiguous := record.Cell.Tier.IsAmbiguous(record.Label)

	var judged []Dimension
	for _, d := range rubric.Dimensions {
		if d.Resolution && !ambiguous {
			continue
		}
		judged = append(judged, d)
	}

	eval := domain.EvaluationRecord{CaseID: record.ID, CreatedAt: e.now()}
	out, err := e.callJudge(ctx, record, rubric, judged)
	if err != nil {
		e.logger.Warn("judge failed, using fallback score", "case_id", record.ID, "correlation_id", record.ExternalID, "error", err)
		eval.Verdict = domain.VerdictNeedsReview
		eval.Confidence = 0
		eval.Source = domain.SourceFallback
		eval.Notes = "judge unavailable: " + err.Error()
		out = judgeOutput{}
	} else {
		eval.Verdict = domain.ParseVerdict(out.Verdict)
		eval.Confidence = clamp(out.Confidence, 0, 1)
		eval.Source = domain.SourceJudge
		eval.Notes = strings.TrimSpace(out.Notes)
		eval.Flags = domain.EvaluationFlags{
			Ambiguity:    out.Flags.Ambiguity,
			LogicalIssue: out.Flags.LogicalIssue,
			DomainError:  out.Flags.DomainError,
		}
	}

	score, assessments, missing := e.tally(rubric, ambiguous, out, err == nil)
	eval.Assessments = assessments
	if len(missing) > 0 {
		eval.Notes = strings.TrimSpace(eval.Notes + " missing scores defaulted: " + strings.Join(missing, ", "))
	}

	next := record.WithStatus(domain.StatusScored)
	next.Rubric = &score
	saved, err := e.repo.RecordEvaluation(ctx, next, eval)
	if err != nil {
		return record, eval, fmt.Errorf("record evaluation of %s: %w", record.ID, err)
	}
	return saved, eval, nil
}

func (e *Engine) callJudge(ctx context.Context, record domain.CaseRecord, rubric Rubric, judged []Dimension) (judgeOutput, error) {
	if e.judge == nil {
		return judgeOutput{}, fmt.Errorf("no judge configured")
	}
	raw, err := e.judge.Complete(ctx, ports.CompletionRequest{
		Model:       e.opts.Model,
		System:      judgeSystemPrompt,
		User:        judgePrompt(record, rubric, judged),
		Temperature: e.opts.Temperature,
		JSONOutput:  true,
	})
	if err != nil {
		return judgeOutput{}, err
	}
	return parseJudge(raw)
}

// tally turns judge points into the fixed-scale rubric score. Resolution lines of
// non-ambiguous labels are credited in full; unscored lines get half weight.
func (e *Engine) tally(rubric Rubric, ambiguous bool, out judgeOutput, judged bool) (domain.RubricScore, map[string]domain.Assessment, []string) {
	score := domain.RubricScore{Max: rubric.Max()}
	assessments := map[string]domain.Assessment{}
	var missing []string

	for _, d := range rubric.Dimensions {
		line := domain.DimensionScore{Name: d.Name, Weight: d.Weight}
		switch {
		case d.Resolution && !ambiguous:
			line.Points = d.Weight
			line.AutoCredited = true
			assessments[d.Name] = domain.AssessmentCorrect
		case !judged:
			line.Points = d.Weight / 2
			assessments[d.Name] = domain.AssessmentUncertain
		default:
			pts, ok := out.Scores[d.Name]
			if !ok {
				pts = d.Weight / 2
				missing = append(missing, d.Name)
			}
			line.Points = clamp(pts, 0, d.Weight)
			assessments[d.Name] = domain.ParseAssessment(out.Assessments[d.Name])
		}
		score.Total += line.Points
		score.Dimensions = append(score.Dimensions, line)
	}
	score.Total = math.Round(score.Total*100) / 100
	sort.Strings(missing)
	return score, assessments, missing
}

// Decide applies the latest evaluation to a scored record.
func (e *Engine) Decide(ctx context.Context, record domain.CaseRecord) (domain.CaseRecord, error) {
	if record.ValidationStatus != domain.StatusScored {
		return record, fmt.Errorf("decide %s (%s): %w", record.ID, record.ValidationStatus, ErrWrongStatus)
	}
	eval, err := e.repo.LatestEvaluation(ctx, record.ID)
	if err != nil {
		return record, fmt.Errorf("latest evaluation of %s: %w", record.ID, err)
	}

	var next domain.ValidationStatus
	switch {
	case eval.Verdict == domain.VerdictApproved && eval.Confidence >= e.opts.Threshold:
		if err := e.guard(record); err != nil {
			return record, err
		}
		next = domain.StatusApproved
	case eval.Verdict == domain.VerdictRejected:
		next = domain.StatusRejected
	default:
		return record, nil
	}
	if !record.ValidationStatus.CanAdvanceTo(next) {
		return record, fmt.Errorf("decide %s: %s -> %s: %w", record.ID, record.ValidationStatus, next, ErrWrongStatus)
	}

	saved, err := e.repo.SaveCase(ctx, record.WithStatus(next))
	if err != nil {
		return record, fmt.Errorf("save decision of %s: %w", record.ID, err)
	}
	e.logger.Info("case decided", "case_id", record.ID, "status", next, "confidence", eval.Confidence)
	return saved, nil
}

// Override is a manual review action. Approval still passes the consistency guard.
func (e *Engine) Override(ctx context.Context, caseID string, status domain.ValidationStatus, reviewer, notes string) (domain.CaseRecord, error) {
	record, err := e.repo.GetCase(ctx, caseID)
	if err != nil {
		return domain.CaseRecord{}, fmt.Errorf("load case: %w", err)
	}
	if !record.ValidationStatus.CanOverrideTo(status) {
		return record, fmt.Errorf("override %s: %s -> %s: %w", caseID, record.ValidationStatus, status, ErrWrongStatus)
	}
	if status == domain.StatusApproved {
		if err := e.guard(record); err != nil {
			return record, err
		}
	}

	verdict := domain.VerdictNeedsReview
	switch status {
	case domain.StatusApproved:
		verdict = domain.VerdictApproved
	case domain.StatusRejected:
		verdict = domain.VerdictRejected
	}

	next := record.WithStatus(status)
	if status == domain.StatusPending {
		next.Rubric = nil
	}
	saved, err := e.repo.RecordEvaluation(ctx, next, domain.EvaluationRecord{
		CaseID:     caseID,
		Verdict:    verdict,
		Confidence: 1,
		Notes:      strings.TrimSpace(notes),
		Source:     domain.SourceManual,
		Reviewer:   reviewer,
		CreatedAt:  e.now(),
	})
	if err != nil {
		return record, fmt.Errorf("record override of %s: %w", caseID, err)
	}
	e.logger.Info("case overridden", "case_id", caseID, "status", status, "reviewer", reviewer)
	return saved, nil
}

func (e *Engine) guard(record domain.CaseRecord) error {
	if err := e.reg.CheckConsistency(record.Cell.Key(), record.Label); err != nil {
		return &ConsistencyError{CaseID: record.ID, Cell: record.Cell.Key(), Label: record.Label, Err: err}
	}
	return nil
}

// Failure is one record the batch could not process.
type Failure struct {
	CaseID string `json:"case_id"`
	Reason string `json:"reason"`
}

// Summary reports a validation batch.
type Summary struct {
	Attempted      int       `json:"attempted"`
	Succeeded      int       `json:"succeeded"`
	Failed         int       `json:"failed"`
	Approved       int       `json:"approved"`
	Rejected       int       `json:"rejected"`
	AwaitingReview int       `json:"awaiting_review"`
	Failures       []Failure `json:"failures,omitempty"`
}

// Run scores and decides up to limit pending records with bounded concurrency.
func (e *Engine) Run(ctx context.Context, dataset string, limit, concurrency int) (Summary, error) {
	pending, err := e.repo.ListCases(ctx, ports.CaseFilter{
		Dataset:  dataset,
		Statuses: []domain.ValidationStatus{domain.StatusPending},
		Limit:    limit,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("list pending: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu  sync.Mutex
		sum Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, record := range pending {
		record := record
		g.Go(func() error {
			final, err := e.process(gctx, record)
			mu.Lock()
			defer mu.Unlock()
			sum.Attempted++
			if err != nil {
				sum.Failed++
				sum.Failures = append(sum.Failures, Failure{CaseID: record.ID, Reason: err.Error()})
				return nil
			}
			sum.Succeeded++
			switch final.ValidationStatus {
			case domain.StatusApproved:
				sum.Approved++
			case domain.StatusRejected:
				sum.Rejected++
			default:
				sum.AwaitingReview++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}
	sort.Slice(sum.Failures, func(i, j int) bool { return sum.Failures[i].CaseID < sum.Failures[j].CaseID })
	return sum, ctx.Err()
}

func (e *Engine) process(ctx context.Context, record domain.CaseRecord) (domain.CaseRecord, error) {
	scored, _, err := e.AutoScore(ctx, record)
	if err != nil {
		return record, err
	}
	decided, err := e.Decide(ctx, scored)
	var cerr *ConsistencyError
	if errors.As(err, &cerr) {
		e.logger.Warn("approval blocked", "case_id", record.ID, "error", err)
		return scored, err
	}
	return decided, err
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
