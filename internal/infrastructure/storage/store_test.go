package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CaseCurator/internal/domain"
	"CaseCurator/internal/ports"
)

func tempStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	s, err := NewStoreWithDB(db, DriverSQLite)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func sampleCase(code string, label domain.Label) domain.CaseRecord {
	tier := domain.TierL1
	if code[0] == 'F' {
		tier = domain.TierL3
	}
	if code[0] == 'T' {
		tier = domain.TierL2
	}
	r := domain.CaseRecord{
		DatasetName:      "ds",
		Scenario:         "A clinic changes its intake policy.",
		Claim:            "The policy caused shorter waits.",
		Cell:             domain.Cell{CellKey: domain.CellKey{Tier: tier, Code: code}},
		Variables:        domain.Variables{Exposure: "policy", Outcome: "wait", Auxiliary: []string{"season"}},
		Label:            label,
		WiseAnswer:       "It depends on staffing.",
		Difficulty:       domain.DifficultyMedium,
		Author:           "tester",
		ValidationStatus: domain.StatusPending,
	}
	if tier.IsAmbiguous(label) {
		r.ConditionalResolutions = domain.Resolutions{strPtr("if staffed, yes"), nil}
	}
	return r
}

func TestSaveAndGetCase(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	saved, err := s.SaveCase(ctx, sampleCase("A", domain.LabelAmbiguous))
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	assert.Equal(t, saved.ID, saved.ExternalID)

	got, err := s.GetCase(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Scenario, got.Scenario)
	assert.Equal(t, saved.Variables, got.Variables)
	require.NotNil(t, got.ConditionalResolutions[0])
	assert.Equal(t, "if staffed, yes", *got.ConditionalResolutions[0])
	assert.Nil(t, got.ConditionalResolutions[1])
	assert.Equal(t, saved.CreatedAt.Truncate(time.Microsecond), got.CreatedAt.Truncate(time.Microsecond))

	_, err = s.GetCase(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveCaseEnforcesResolutionInvariant(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	bad := sampleCase("S1", domain.LabelYes)
	bad.ConditionalResolutions = domain.Resolutions{strPtr("x"), strPtr("y")}
	_, err := s.SaveCase(ctx, bad)
	require.ErrorIs(t, err, domain.ErrInvariant)

	missing := sampleCase("A", domain.LabelAmbiguous)
	missing.ConditionalResolutions = domain.Resolutions{}
	_, err = s.SaveCase(ctx, missing)
	require.ErrorIs(t, err, domain.ErrInvariant)

	rows, err := s.ListCases(ctx, ports.CaseFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows, "rejected writes must leave nothing behind")
}

func TestUpsertByExternalID(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	r := sampleCase("T3", domain.LabelNo)
	r.ExternalID = "ext-1"
	first, created, err := s.UpsertByExternalID(ctx, r)
	require.NoError(t, err)
	assert.True(t, created)

	r.Scenario = "Updated scenario."
	second, created, err := s.UpsertByExternalID(ctx, r)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	all, err := s.ListCases(ctx, ports.CaseFilter{Dataset: "ds"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Updated scenario.", all[0].Scenario)

	r.DatasetName = "other"
	_, created, err = s.UpsertByExternalID(ctx, r)
	require.NoError(t, err)
	assert.True(t, created, "same external id in another dataset is a new record")
}

func TestUpsertKeepsReviewState(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	r := sampleCase("T3", domain.LabelNo)
	r.ExternalID = "ext-2"
	first, _, err := s.UpsertByExternalID(ctx, r)
	require.NoError(t, err)
	approved := first.WithStatus(domain.StatusApproved)
	approved.Rubric = &domain.RubricScore{Total: 9, Max: 10}
	_, err = s.SaveCase(ctx, approved)
	require.NoError(t, err)

	r.Scenario = "Refreshed text."
	refreshed, _, err := s.UpsertByExternalID(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, refreshed.ValidationStatus)
	assert.True(t, refreshed.IsVerified)
	require.NotNil(t, refreshed.Rubric)
	assert.Equal(t, "Refreshed text.", refreshed.Scenario)

	r.Cell = domain.Cell{CellKey: domain.CellKey{Tier: domain.TierL2, Code: "T4"}}
	moved, _, err := s.UpsertByExternalID(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, moved.ValidationStatus)
	assert.False(t, moved.IsVerified)
	assert.Nil(t, moved.Rubric)
}

func TestCountByCellMatchesStore(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.SaveCase(ctx, sampleCase("W1", domain.LabelNo))
		require.NoError(t, err)
	}
	_, err := s.SaveCase(ctx, sampleCase("F2", domain.LabelValid))
	require.NoError(t, err)
	rejected := sampleCase("W1", domain.LabelNo).WithStatus(domain.StatusRejected)
	_, err = s.SaveCase(ctx, rejected)
	require.NoError(t, err)

	counts, err := s.CountByCell(ctx, "ds")
	require.NoError(t, err)
	got := map[string]int{}
	for _, c := range counts {
		got[c.Key.String()] = c.Count
	}
	assert.Equal(t, map[string]int{"L1/W1": 4, "L3/F2": 1}, got)

	none, err := s.CountByCell(ctx, "elsewhere")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCountByCellIgnoresReviewOutcome(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	r, err := s.SaveCase(ctx, sampleCase("W1", domain.LabelNo))
	require.NoError(t, err)
	before, err := s.CountByCell(ctx, "ds")
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, 1, before[0].Count)

	_, err = s.RecordEvaluation(ctx, r.WithStatus(domain.StatusRejected), domain.EvaluationRecord{
		Verdict: domain.VerdictRejected, Confidence: 1, Source: domain.SourceManual, Reviewer: "rita",
	})
	require.NoError(t, err)

	after, err := s.CountByCell(ctx, "ds")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestListCasesFilters(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	_, err := s.SaveCase(ctx, sampleCase("W1", domain.LabelNo))
	require.NoError(t, err)
	scored := sampleCase("T1", domain.LabelNo).WithStatus(domain.StatusScored)
	_, err = s.SaveCase(ctx, scored)
	require.NoError(t, err)

	pending, err := s.ListCases(ctx, ports.CaseFilter{Statuses: []domain.ValidationStatus{domain.StatusPending}})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "W1", pending[0].Cell.Code)

	l2, err := s.ListCases(ctx, ports.CaseFilter{Tier: domain.TierL2, Limit: 5})
	require.NoError(t, err)
	require.Len(t, l2, 1)
	assert.Equal(t, domain.StatusScored, l2[0].ValidationStatus)
}

func TestRecordEvaluationIsAppendOnly(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	r, err := s.SaveCase(ctx, sampleCase("F1", domain.LabelInvalid))
	require.NoError(t, err)

	scored := r.WithStatus(domain.StatusScored)
	scored.Rubric = &domain.RubricScore{Total: 7, Max: 10, Dimensions: []domain.DimensionScore{{Name: "clarity", Points: 1, Weight: 1}}}
	_, err = s.RecordEvaluation(ctx, scored, domain.EvaluationRecord{
		Verdict: domain.VerdictNeedsReview, Confidence: 0.5, Source: domain.SourceJudge,
		Assessments: map[string]domain.Assessment{"label": domain.AssessmentCorrect},
	})
	require.NoError(t, err)

	approved := scored.WithStatus(domain.StatusApproved)
	_, err = s.RecordEvaluation(ctx, approved, domain.EvaluationRecord{
		Verdict: domain.VerdictApproved, Confidence: 1, Source: domain.SourceManual, Reviewer: "rita",
		Flags: domain.EvaluationFlags{Ambiguity: true},
	})
	require.NoError(t, err)

	latest, err := s.LatestEvaluation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceManual, latest.Source)
	assert.True(t, latest.Flags.Ambiguity)

	all, err := s.ListEvaluations(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.AssessmentCorrect, all[0].Assessments["label"])

	got, err := s.GetCase(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, got.ValidationStatus)
	assert.True(t, got.IsVerified)
	require.NotNil(t, got.Rubric)
	assert.Equal(t, 7.0, got.Rubric.Total)

	_, err = s.LatestEvaluation(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecordEvaluationRollsBackOnInvalidState(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	r, err := s.SaveCase(ctx, sampleCase("W2", domain.LabelNo))
	require.NoError(t, err)

	broken := r.WithStatus(domain.StatusApproved)
	broken.IsVerified = false
	_, err = s.RecordEvaluation(ctx, broken, domain.EvaluationRecord{Verdict: domain.VerdictApproved, Source: domain.SourceJudge})
	require.ErrorIs(t, err, domain.ErrInvariant)

	_, err = s.RecordEvaluation(ctx, sampleCase("W2", domain.LabelNo), domain.EvaluationRecord{Verdict: domain.VerdictApproved, Source: domain.SourceJudge})
	require.Error(t, err)

	evals, err := s.ListEvaluations(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, evals)
}

func TestDeleteCaseIsIdempotent(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	r, err := s.SaveCase(ctx, sampleCase("S2", domain.LabelYes))
	require.NoError(t, err)

	require.NoError(t, s.DeleteCase(ctx, r.ID))
	require.NoError(t, s.DeleteCase(ctx, r.ID))
	_, err = s.GetCase(ctx, r.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestJobsRoundTripAndOpenListing(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	req := domain.GenerationRequest{
		CorrelationID: "run:L2:T1::00001",
		Cell:          domain.Cell{CellKey: domain.CellKey{Tier: domain.TierL2, Code: "T1"}, Polarities: []domain.Label{domain.LabelNo}},
		Label:         domain.LabelNo,
		Seed:          domain.ScenarioSeed{ID: "s1", Topic: "t", Subdomain: "d", Entities: []string{"e"}},
	}
	job := domain.BulkJob{ID: "job-1", RunID: "run", State: domain.JobCreated, Counts: domain.JobCounts{Total: 1}, Requests: []domain.GenerationRequest{req}}
	require.NoError(t, s.SaveJob(ctx, job))

	job.State = domain.JobCompleted
	job.ExternalID = "batch-1"
	require.NoError(t, s.SaveJob(ctx, job))
	require.NoError(t, s.SaveJob(ctx, domain.BulkJob{ID: "job-2", RunID: "run", State: domain.JobFailed}))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, got.State)
	assert.Equal(t, "batch-1", got.ExternalID)
	require.Len(t, got.Requests, 1)
	assert.Equal(t, req.CorrelationID, got.Requests[0].CorrelationID)
	assert.Equal(t, req.Cell, got.Requests[0].Cell)

	open, err := s.ListOpenJobs(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "job-1", open[0].ID)

	got.Collected = true
	require.NoError(t, s.SaveJob(ctx, got))
	open, err = s.ListOpenJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = s.GetJob(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNewStoreRejectsUnknownDriver(t *testing.T) {
	_, err := NewStoreWithDB(nil, "mysql")
	require.Error(t, err)
}
