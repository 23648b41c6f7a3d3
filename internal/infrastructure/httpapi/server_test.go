package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CaseCurator/internal/config"
	"CaseCurator/internal/domain"
	"CaseCurator/internal/infrastructure/storage"
	"CaseCurator/internal/interchange"
	"CaseCurator/internal/scoring"
	"CaseCurator/internal/taxonomy"
)

type fixture struct {
	server *Server
	store  *storage.SQLStore
	reg    *taxonomy.Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg, err := taxonomy.Default(taxonomy.DefaultCorpusSize)
	require.NoError(t, err)
	store, err := storage.Open(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := NewServer(config.HTTPConfig{AllowedOrigins: []string{"*"}}, Deps{
		Registry:    reg,
		Cases:       store,
		Engine:      scoring.NewEngine(reg, store, nil, scoring.Options{}, nil),
		Exporter:    interchange.NewExporter(store),
		Importer:    interchange.NewImporter(reg, store, interchange.ImportOptions{Dataset: "default", Author: "api"}, nil),
		Dataset:     "default",
		Concurrency: 2,
	})
	return fixture{server: srv, store: store, reg: reg}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func (f fixture) seed(t *testing.T, code string, label domain.Label) domain.CaseRecord {
	t.Helper()
	cell, ok := f.reg.Lookup(domain.CellKey{Tier: domain.TierL1, Code: code})
	require.True(t, ok)
	rec, err := f.store.SaveCase(context.Background(), domain.CaseRecord{
		DatasetName:      "default",
		Scenario:         "A bakery moved its opening hour and sales rose.",
		Cell:             cell,
		Label:            label,
		Difficulty:       domain.DifficultyEasy,
		ValidationStatus: domain.StatusPending,
	})
	require.NoError(t, err)
	return rec
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestQuotaReportsEveryTier(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "W1", domain.LabelNo)

	w := f.do(t, http.MethodGet, "/api/v1/quota", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Remaining int `json:"remaining"`
		Tiers     []struct {
			Tier    string `json:"tier"`
			Current int    `json:"current"`
		} `json:"tiers"`
		Cells []cellView `json:"cells"`
	}
	decode(t, w, &body)
	require.Len(t, body.Tiers, 3)
	assert.Equal(t, "L1", body.Tiers[0].Tier)
	assert.Equal(t, 1, body.Tiers[0].Current)
	assert.Equal(t, taxonomy.DefaultCorpusSize-1, body.Remaining)
	assert.Len(t, body.Cells, len(f.reg.Cells()))
}

func TestGetCase(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, "W1", domain.LabelNo)

	w := f.do(t, http.MethodGet, "/api/v1/cases/"+rec.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entry interchange.Entry
	decode(t, w, &entry)
	assert.Equal(t, "W1", entry.CategoryCode)
	assert.Nil(t, entry.ConditionalResolutions)

	w = f.do(t, http.MethodGet, "/api/v1/cases/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListCasesFilters(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "W1", domain.LabelNo)
	f.seed(t, "S1", domain.LabelYes)

	w := f.do(t, http.MethodGet, "/api/v1/cases?status=pending&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count int `json:"count"`
	}
	decode(t, w, &body)
	assert.Equal(t, 1, body.Count)

	for _, q := range []string{"status=done", "tier=L9", "limit=-1"} {
		w = f.do(t, http.MethodGet, "/api/v1/cases?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestDeleteCaseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, "W1", domain.LabelNo)

	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodDelete, "/api/v1/cases/"+rec.ID, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
	w := f.do(t, http.MethodGet, "/api/v1/cases/"+rec.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReviewCase(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, "W1", domain.LabelNo)

	w := f.do(t, http.MethodPost, "/api/v1/cases/"+rec.ID+"/review", gin.H{"status": "approved", "reviewer": "ana", "notes": "ok"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var entry interchange.Entry
	decode(t, w, &entry)
	assert.Equal(t, domain.StatusApproved, entry.ValidationStatus)
	assert.True(t, entry.IsVerified)

	w = f.do(t, http.MethodGet, "/api/v1/cases/"+rec.ID+"/evaluations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var evals struct {
		Evaluations []evaluationView `json:"evaluations"`
	}
	decode(t, w, &evals)
	require.Len(t, evals.Evaluations, 1)
	assert.Equal(t, domain.SourceManual, evals.Evaluations[0].Source)
	assert.Equal(t, "ana", evals.Evaluations[0].Reviewer)

	w = f.do(t, http.MethodPost, "/api/v1/cases/"+rec.ID+"/review", gin.H{"status": "approved", "reviewer": "ana"})
	assert.Equal(t, http.StatusConflict, w.Code, "same status twice")
}

func TestReviewRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, "W1", domain.LabelNo)

	w := f.do(t, http.MethodPost, "/api/v1/cases/"+rec.ID+"/review", gin.H{"status": "approved"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "reviewer is required")

	w = f.do(t, http.MethodPost, "/api/v1/cases/"+rec.ID+"/review", gin.H{"status": "done", "reviewer": "ana"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/cases/missing/review", gin.H{"status": "rejected", "reviewer": "ana"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReviewBlocksInconsistentApproval(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, "W1", domain.LabelYes)

	w := f.do(t, http.MethodPost, "/api/v1/cases/"+rec.ID+"/review", gin.H{"status": "approved", "reviewer": "ana"})
	assert.Equal(t, http.StatusConflict, w.Code)

	got, err := f.store.GetCase(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.ValidationStatus)
}

func TestGenerationRoutesWithoutGenerator(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/v1/generate", "/api/v1/bulk"} {
		w := f.do(t, http.MethodPost, path, gin.H{"count": 1})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
	w := f.do(t, http.MethodGet, "/api/v1/bulk/job-1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestValidateFallsBackWithoutJudge(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "W1", domain.LabelNo)
	f.seed(t, "S1", domain.LabelYes)

	w := f.do(t, http.MethodPost, "/api/v1/validate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sum scoring.Summary
	decode(t, w, &sum)
	assert.Equal(t, 2, sum.Attempted)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 2, sum.AwaitingReview)
}

func TestImportThenExport(t *testing.T) {
	f := newFixture(t)
	doc := []byte(`{"cases":[
		{"external_id":"x-1","tier":"L1","category_code":"W2","label":"NO","scenario":"Ice cream sales and drownings both rose."},
		{"external_id":"x-2","tier":"L1","category_code":"A","label":"AMBIGUOUS","scenario":"A tutor's students improved.",
		 "conditional_resolutions":["If grades were curved: NO","If tests were fixed: YES"]},
		{"tier":"L9","category_code":"W1","label":"NO","scenario":"Broken."}
	]}`)

	w := f.do(t, http.MethodPost, "/api/v1/import", doc)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sum interchange.Summary
	decode(t, w, &sum)
	assert.Equal(t, 3, sum.Attempted)
	assert.Equal(t, 2, sum.Created)
	assert.Equal(t, 1, sum.Failed)

	w = f.do(t, http.MethodGet, "/api/v1/export?tier=L1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out interchange.Document
	decode(t, w, &out)
	assert.Equal(t, 2, out.Metadata.Count)
	assert.Equal(t, interchange.SchemaVersion, out.Metadata.SchemaVersion)
	require.Len(t, out.Cases, 2)
	assert.Equal(t, "x-1", out.Cases[0].ExternalID)
	require.Len(t, out.Cases[1].ConditionalResolutions, 2)

	w = f.do(t, http.MethodPost, "/api/v1/import", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cases", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
