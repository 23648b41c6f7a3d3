package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"CaseCurator/internal/bulk"
	"CaseCurator/internal/domain"
	"CaseCurator/internal/infrastructure/storage"
	"CaseCurator/internal/interchange"
	"CaseCurator/internal/ports"
	"CaseCurator/internal/quota"
	"CaseCurator/internal/scoring"
)

const maxImportBytes = 32 << 20

var errNoGenerator = errors.New("generation is not configured")

type constraintsBody struct {
	Tier     string `json:"tier"`
	Polarity string `json:"polarity"`
	Cell     string `json:"cell"`
}

func (b constraintsBody) constraints() (quota.Constraints, error) {
	var c quota.Constraints
	if b.Tier != "" {
		tier, err := domain.ParseTier(b.Tier)
		if err != nil {
			return c, err
		}
		c.Tier = tier
	}
	if b.Polarity != "" {
		c.Polarity = domain.NormalizeLabel(b.Polarity)
	}
	if b.Cell != "" {
		key, err := domain.ParseCellKey(b.Cell)
		if err != nil {
			return c, err
		}
		c.Cell = &key
	}
	return c, nil
}

type generateRequest struct {
	Count int `json:"count" binding:"required,min=1"`
	constraintsBody
}

type reviewRequest struct {
	Status   string `json:"status" binding:"required"`
	Reviewer string `json:"reviewer" binding:"required"`
	Notes    string `json:"notes"`
}

type validateRequest struct {
	Limit       int `json:"limit"`
	Concurrency int `json:"concurrency"`
}

type evaluationView struct {
	ID          string                       `json:"id"`
	Verdict     domain.Verdict               `json:"verdict"`
	Confidence  float64                      `json:"confidence"`
	Assessments map[string]domain.Assessment `json:"assessments,omitempty"`
	Flags       domain.EvaluationFlags       `json:"flags"`
	Notes       string                       `json:"notes,omitempty"`
	Source      domain.EvaluationSource      `json:"source"`
	Reviewer    string                       `json:"reviewer,omitempty"`
	CreatedAt   time.Time                    `json:"created_at"`
}

type cellView struct {
	Cell    string `json:"cell"`
	Target  int    `json:"target"`
	Current int    `json:"current"`
	Deficit int    `json:"deficit"`
}

type jobView struct {
	ID            string           `json:"id"`
	RunID         string           `json:"run_id"`
	ExternalID    string           `json:"external_id,omitempty"`
	State         domain.JobState  `json:"state"`
	Counts        domain.JobCounts `json:"counts"`
	Requests      int              `json:"requests"`
	FailureReason string           `json:"failure_reason,omitempty"`
	Collected     bool             `json:"collected"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func viewJob(j domain.BulkJob) jobView {
	return jobView{
		ID:            j.ID,
		RunID:         j.RunID,
		ExternalID:    j.ExternalID,
		State:         j.State,
		Counts:        j.Counts,
		Requests:      len(j.Requests),
		FailureReason: j.FailureReason,
		Collected:     j.Collected,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

func (s *Server) getQuota(c *gin.Context) {
	counts, err := s.deps.Cases.CountByCell(c.Request.Context(), s.deps.Dataset)
	if err != nil {
		s.fail(c, err)
		return
	}
	needs := quota.NeedsFromCounts(s.deps.Registry, quota.CountMap(counts))
	cells := make([]cellView, 0, len(needs))
	for _, n := range needs {
		cells = append(cells, cellView{Cell: n.Cell.Key().String(), Target: n.Target, Current: n.Current, Deficit: n.Deficit()})
	}
	c.JSON(http.StatusOK, gin.H{
		"dataset":   s.deps.Dataset,
		"remaining": needs.Remaining(),
		"tiers":     needs.ByTier(),
		"cells":     cells,
	})
}

func (s *Server) caseFilter(c *gin.Context) (ports.CaseFilter, error) {
	filter := ports.CaseFilter{Dataset: c.DefaultQuery("dataset", s.deps.Dataset)}
	if raw := c.Query("tier"); raw != "" {
		tier, err := domain.ParseTier(raw)
		if err != nil {
			return filter, err
		}
		filter.Tier = tier
	}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := domain.ValidationStatus(strings.ToLower(strings.TrimSpace(part)))
			if !st.Valid() {
				return filter, fmt.Errorf("unknown status %q", part)
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid limit %q", raw)
		}
		filter.Limit = n
	}
	return filter, nil
}

func (s *Server) listCases(c *gin.Context) {
	filter, err := s.caseFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	records, err := s.deps.Cases.ListCases(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	entries := make([]interchange.Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, interchange.EntryFromRecord(r))
	}
	c.JSON(http.StatusOK, gin.H{"count": len(entries), "cases": entries})
}

func (s *Server) getCase(c *gin.Context) {
	record, err := s.deps.Cases.GetCase(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, interchange.EntryFromRecord(record))
}

func (s *Server) deleteCase(c *gin.Context) {
	if err := s.deps.Cases.DeleteCase(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listEvaluations(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.deps.Cases.GetCase(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	evals, err := s.deps.Cases.ListEvaluations(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]evaluationView, 0, len(evals))
	for _, e := range evals {
		views = append(views, evaluationView{
			ID:          e.ID,
			Verdict:     e.Verdict,
			Confidence:  e.Confidence,
			Assessments: e.Assessments,
			Flags:       e.Flags,
			Notes:       e.Notes,
			Source:      e.Source,
			Reviewer:    e.Reviewer,
			CreatedAt:   e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"case_id": id, "evaluations": views})
}

func (s *Server) reviewCase(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	status := domain.ValidationStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !status.Valid() {
		badRequest(c, fmt.Errorf("unknown status %q", req.Status))
		return
	}
	record, err := s.deps.Engine.Override(c.Request.Context(), c.Param("id"), status, req.Reviewer, req.Notes)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, interchange.EntryFromRecord(record))
}

func (s *Server) generate(c *gin.Context) {
	if s.deps.Generator == nil {
		s.fail(c, errNoGenerator)
		return
	}
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cons, err := req.constraints()
	if err != nil {
		badRequest(c, err)
		return
	}
	sum, err := s.deps.Generator.RunSync(c.Request.Context(), req.Count, cons)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) submitBulk(c *gin.Context) {
	if s.deps.Generator == nil {
		s.fail(c, errNoGenerator)
		return
	}
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cons, err := req.constraints()
	if err != nil {
		badRequest(c, err)
		return
	}
	job, err := s.deps.Generator.SubmitBulk(c.Request.Context(), req.Count, cons)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, viewJob(job))
}

func (s *Server) pollBulk(c *gin.Context) {
	if s.deps.Generator == nil {
		s.fail(c, errNoGenerator)
		return
	}
	res, err := s.deps.Generator.PollBulk(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": viewJob(res.Job), "changed": res.Changed, "done": res.Done()})
}

func (s *Server) collectBulk(c *gin.Context) {
	if s.deps.Generator == nil {
		s.fail(c, errNoGenerator)
		return
	}
	sum, err := s.deps.Generator.CollectBulk(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) validate(c *gin.Context) {
	var req validateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.Concurrency <= 0 {
		req.Concurrency = s.deps.Concurrency
	}
	sum, err := s.deps.Engine.Run(c.Request.Context(), s.deps.Dataset, req.Limit, req.Concurrency)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) export(c *gin.Context) {
	filter, err := s.caseFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	doc, err := s.deps.Exporter.Export(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, doc)
}

func (s *Server) importCases(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		badRequest(c, err)
		return
	}
	sum, err := s.deps.Importer.Import(c.Request.Context(), raw)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// fail maps domain errors onto status codes; anything unrecognised is a 500.
func (s *Server) fail(c *gin.Context, err error) {
	var consistency *scoring.ConsistencyError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &consistency):
		status = http.StatusConflict
	case errors.Is(err, scoring.ErrWrongStatus),
		errors.Is(err, quota.ErrQuotaSatisfied),
		errors.Is(err, bulk.ErrJobNotCompleted),
		errors.Is(err, bulk.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, quota.ErrInvalidCount):
		status = http.StatusBadRequest
	case errors.Is(err, quota.ErrUnsupported):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errNoGenerator):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
