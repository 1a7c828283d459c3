package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/resume-rag/internal/config"
	"github.com/fairyhunter13/resume-rag/internal/domain"
	"github.com/fairyhunter13/resume-rag/internal/usecase"
)

type stubResumeRepo struct {
	byID   map[string]domain.Resume
	byHash map[string]domain.Resume
}

func newStubResumeRepo() *stubResumeRepo {
	return &stubResumeRepo{byID: map[string]domain.Resume{}, byHash: map[string]domain.Resume{}}
}

func (s *stubResumeRepo) Upsert(_ domain.Context, r domain.Resume) error {
	s.byID[r.ID] = r
	s.byHash[r.ContentHash] = r
	return nil
}

func (s *stubResumeRepo) Get(_ domain.Context, id string) (domain.Resume, error) {
	r, ok := s.byID[id]
	if !ok {
		return domain.Resume{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *stubResumeRepo) FindByContentHash(_ domain.Context, hash string) (domain.Resume, error) {
	r, ok := s.byHash[hash]
	if !ok {
		return domain.Resume{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *stubResumeRepo) List(_ domain.Context) ([]domain.Resume, error) {
	out := make([]domain.Resume, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r)
	}
	return out, nil
}

func (s *stubResumeRepo) Delete(_ domain.Context, id string) error {
	if _, ok := s.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *stubResumeRepo) SetChunkCount(_ domain.Context, id string, n int) error {
	r := s.byID[id]
	r.ChunkCount = n
	s.byID[id] = r
	return nil
}

func (s *stubResumeRepo) Count(_ domain.Context) (int64, error) { return int64(len(s.byID)), nil }

func (s *stubResumeRepo) CountByFormat(_ domain.Context) (map[string]int64, error) {
	out := map[string]int64{}
	for _, r := range s.byID {
		out[r.FileFormat]++
	}
	return out, nil
}

func (s *stubResumeRepo) SumChunkCounts(_ domain.Context) (int64, error) {
	var n int64
	for _, r := range s.byID {
		n += int64(r.ChunkCount)
	}
	return n, nil
}

type stubJobRepo struct {
	jobs map[string]domain.IngestJob
	n    int
}

func newStubJobRepo() *stubJobRepo { return &stubJobRepo{jobs: map[string]domain.IngestJob{}} }

func (s *stubJobRepo) Create(_ domain.Context, j domain.IngestJob) (string, error) {
	s.n++
	j.ID = fmt.Sprintf("job-%d", s.n)
	s.jobs[j.ID] = j
	return j.ID, nil
}

func (s *stubJobRepo) UpdateStatus(_ domain.Context, id string, st domain.JobStatus, errMsg *string) error {
	j := s.jobs[id]
	j.Status = st
	if errMsg != nil {
		j.Error = *errMsg
	}
	s.jobs[id] = j
	return nil
}

func (s *stubJobRepo) Complete(_ domain.Context, id string, chunkCount int, skipped bool) error {
	j := s.jobs[id]
	j.Status = domain.JobCompleted
	j.ChunkCount = chunkCount
	j.Skipped = skipped
	s.jobs[id] = j
	return nil
}

func (s *stubJobRepo) Get(_ domain.Context, id string) (domain.IngestJob, error) {
	j, ok := s.jobs[id]
	if !ok {
		return domain.IngestJob{}, domain.ErrNotFound
	}
	return j, nil
}

func (s *stubJobRepo) FindByIdempotencyKey(_ domain.Context, _ string) (domain.IngestJob, error) {
	return domain.IngestJob{}, domain.ErrNotFound
}

type stubQueue struct{ enqueued int }

func (s *stubQueue) EnqueueIngest(_ domain.Context, _ domain.IngestTaskPayload) (string, error) {
	s.enqueued++
	return "ok", nil
}

type stubIndex struct{ deleted []string }

func (s *stubIndex) UpsertChunks(_ domain.Context, _ [][]float32, _ []map[string]any, _ []string) error {
	return nil
}

func (s *stubIndex) Search(_ domain.Context, _ []float32, _ int, _ map[string]any) ([]domain.ScoredChunk, error) {
	return []domain.ScoredChunk{{
		Score: 0.9,
		Payload: map[string]any{
			"resume_id":      "jane_1",
			"candidate_name": "Jane Doe",
			"text":           "Go, Kubernetes",
			"content_type":   "resume",
		},
	}}, nil
}

func (s *stubIndex) DeleteByResumeID(_ domain.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type stubAI struct{}

func (stubAI) Embed(_ domain.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func (stubAI) ChatJSON(_ domain.Context, systemPrompt, _ string, _ int) (string, error) {
	if strings.Contains(systemPrompt, "recruiter") {
		return `{"relevance_score": 8, "fit_summary": "strong", "key_strengths": ["go"], "potential_concerns": []}`, nil
	}
	return "Jane Doe has Go experience.", nil
}

type stubRankCache struct{ version int }

func (s *stubRankCache) GetRank(_ domain.Context, _ string) (domain.RankResult, bool, error) {
	return domain.RankResult{}, false, nil
}
func (s *stubRankCache) SetRank(_ domain.Context, _ string, _ domain.RankResult) error { return nil }
func (s *stubRankCache) CorpusVersion(_ domain.Context) (string, error)                { return "0", nil }
func (s *stubRankCache) BumpCorpusVersion(_ domain.Context) error {
	s.version++
	return nil
}

type noExtractor struct{}

func (noExtractor) ExtractPath(_ domain.Context, _, _ string) (string, error) {
	return "extracted text", nil
}

func newTestServer(t *testing.T) (*Server, *stubResumeRepo, *stubJobRepo) {
	t.Helper()
	cfg := config.Config{MaxUploadMB: 1, AppEnv: "test"}
	resumes := newStubResumeRepo()
	jobs := newStubJobRepo()
	ranks := &stubRankCache{}
	index := &stubIndex{}
	srv := NewServer(cfg,
		usecase.NewIngestService(resumes, jobs, &stubQueue{}, noExtractor{}, ranks, index),
		usecase.NewJobService(jobs),
		usecase.NewQueryService(stubAI{}, index, 4),
		usecase.NewRankService(stubAI{}, index, ranks, 20),
		usecase.NewStatsService(resumes),
		nil, nil, nil, nil)
	return srv, resumes, jobs
}

func newRouter(srv *Server) http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/resumes", srv.UploadResumeHandler())
	r.Get("/v1/resumes", srv.ListResumesHandler())
	r.Get("/v1/resumes/{id}", srv.GetResumeHandler())
	r.Delete("/v1/resumes/{id}", srv.DeleteResumeHandler())
	r.Get("/v1/jobs/{id}", srv.JobStatusHandler())
	r.Post("/v1/query", srv.QueryHandler())
	r.Post("/v1/rank", srv.RankHandler())
	r.Get("/v1/stats", srv.StatsHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	return r
}

func multipartUpload(t *testing.T, filename string, content []byte, force bool) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("resume", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	if force {
		require.NoError(t, mw.WriteField("force_update", "true"))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadResume_Accepted(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	body, ctype := multipartUpload(t, "jane.txt", []byte("Jane Doe\nSKILLS\nGo"), false)

	req := httptest.NewRequest(http.MethodPost, "/v1/resumes", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	newRouter(srv).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["resume_id"])
	assert.Equal(t, "queued", resp["status"])
}

func TestUploadResume_MissingFile(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("force_update", "true"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/resumes", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newRouter(srv).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "resume file required")
}

func TestUploadResume_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	body, ctype := multipartUpload(t, "resume.exe", []byte("MZ binary"), false)

	req := httptest.NewRequest(http.MethodPost, "/v1/resumes", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	newRouter(srv).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestUploadResume_TooLarge(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	big := bytes.Repeat([]byte("a"), 2<<20) // 2MB against a 1MB cap
	body, ctype := multipartUpload(t, "big.txt", big, false)

	req := httptest.NewRequest(http.MethodPost, "/v1/resumes", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	newRouter(srv).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUploadResume_NotMultipart(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/resumes", strings.NewReader(`{"resume":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newRouter(srv).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobStatus_ETagAndNotModified(t *testing.T) {
	t.Parallel()

	srv, _, jobs := newTestServer(t)
	id, err := jobs.Create(context.Background(), domain.IngestJob{ResumeID: "r1", Status: domain.JobCompleted, ChunkCount: 3})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id, nil)
	rec := httptest.NewRecorder()
	router := newRouter(srv)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Contains(t, rec.Body.String(), `"chunk_count":3`)

	req = httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id, nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestJobStatus_NotFound(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/missing", nil)
	rec := httptest.NewRecorder()
	newRouter(srv).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestRankEndpoint_ReturnsRankedResumes(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/rank", strings.NewReader(`{"query":"go engineer","max_resumes":5}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newRouter(srv).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Query         string `json:"query"`
		TotalFound    int    `json:"total_found"`
		RankedResumes []struct {
			ResumeID            string `json:"resume_id"`
			RelevanceScore      int    `json:"relevance_score"`
			RecommendationLevel string `json:"recommendation_level"`
		} `json:"ranked_resumes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "go engineer", resp.Query)
	assert.Equal(t, 1, resp.TotalFound)
	require.Len(t, resp.RankedResumes, 1)
	assert.Equal(t, "jane_1", resp.RankedResumes[0].ResumeID)
	assert.Equal(t, 8, resp.RankedResumes[0].RelevanceScore)
}

func TestRankEndpoint_ValidationFailure(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/rank", strings.NewReader(`{"max_resumes":5}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newRouter(srv).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation failed")
}

func TestQueryEndpoint_Answers(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"question":"who knows go?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newRouter(srv).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Jane Doe has Go experience.")
	assert.Contains(t, rec.Body.String(), `"sources"`)
}

func TestQueryEndpoint_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"question":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newRouter(srv).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteResume_NoContentThen404(t *testing.T) {
	t.Parallel()

	srv, resumes, _ := newTestServer(t)
	require.NoError(t, resumes.Upsert(context.Background(), domain.Resume{ID: "jane_1", ContentHash: "h"}))
	router := newRouter(srv)

	req := httptest.NewRequest(http.MethodDelete, "/v1/resumes/jane_1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/v1/resumes/jane_1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndStats(t *testing.T) {
	t.Parallel()

	srv, resumes, _ := newTestServer(t)
	require.NoError(t, resumes.Upsert(context.Background(), domain.Resume{
		ID: "jane_1", ContentHash: "h1", FileFormat: domain.FileFormatPDF, ChunkCount: 4,
		Text: "should never leak",
	}))
	router := newRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/v1/resumes", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
	assert.NotContains(t, rec.Body.String(), "should never leak")

	req = httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_resumes":1`)
	assert.Contains(t, rec.Body.String(), `"total_chunks":4`)
}

func TestReadyz_ReportsFailingProbe(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	srv.DBCheck = func(context.Context) error { return nil }
	srv.RedisCheck = func(context.Context) error { return fmt.Errorf("connection refused") }

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	newRouter(srv).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestReadyz_AllOK(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	ok := func(context.Context) error { return nil }
	srv.DBCheck, srv.RedisCheck, srv.QdrantCheck, srv.TikaCheck = ok, ok, ok, ok

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	newRouter(srv).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
