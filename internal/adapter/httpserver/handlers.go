package httpserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/resume-rag/internal/config"
	"github.com/fairyhunter13/resume-rag/internal/domain"
	"github.com/fairyhunter13/resume-rag/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg         config.Config
	Ingest      usecase.IngestService
	Jobs        usecase.JobService
	Query       usecase.QueryService
	Rank        usecase.RankService
	Stats       usecase.StatsService
	DBCheck     func(ctx context.Context) error
	RedisCheck  func(ctx context.Context) error
	QdrantCheck func(ctx context.Context) error
	TikaCheck   func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, ing usecase.IngestService, jobs usecase.JobService, query usecase.QueryService, rank usecase.RankService, stats usecase.StatsService, dbCheck, redisCheck, qdrantCheck, tikaCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Ingest: ing, Jobs: jobs, Query: query, Rank: rank, Stats: stats, DBCheck: dbCheck, RedisCheck: redisCheck, QdrantCheck: qdrantCheck, TikaCheck: tikaCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// allowedExt enforces the upload allowlist: .pdf, .docx, .txt.
func allowedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".docx", ".txt":
		return true
	}
	return false
}

func validationDetails(err error) map[string]string {
	verrs := map[string]string{}
	if ve, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range ve {
			verrs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return verrs
}

// UploadResumeHandler accepts one resume as multipart field "resume" and
// enqueues its ingest. Duplicate content returns the completed skipped job.
func (s *Server) UploadResumeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
					Code:    "PAYLOAD_TOO_LARGE",
					Message: "upload exceeds size limit",
					Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB},
				}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		file, header, err := r.FormFile("resume")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: resume file required", domain.ErrInvalidArgument), map[string]string{"field": "resume"})
			return
		}
		defer func() { _ = file.Close() }()

		if !allowedExt(header.Filename) {
			writeJSON(w, http.StatusUnsupportedMediaType, errorEnvelope{Error: apiError{
				Code:    "INVALID_ARGUMENT",
				Message: "unsupported file type",
				Details: map[string]any{"filename": header.Filename},
			}})
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: read upload: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		forceUpdate := r.FormValue("force_update") == "true"
		res, err := s.Ingest.Register(r.Context(), header.Filename, content, forceUpdate, r.Header.Get("Idempotency-Key"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}

		status := http.StatusAccepted
		if res.Status == domain.JobCompleted {
			status = http.StatusOK
		}
		writeJSON(w, status, map[string]any{
			"resume_id": res.ResumeID,
			"job_id":    res.JobID,
			"status":    string(res.Status),
			"skipped":   res.Skipped,
		})
	}
}

// JobStatusHandler reports ingest job progress with ETag support.
func (s *Server) JobStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), nil)
			return
		}
		job, err := s.Jobs.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		etag := jobETag(job)
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		body := map[string]any{
			"id":        job.ID,
			"resume_id": job.ResumeID,
			"status":    string(job.Status),
		}
		if job.Status == domain.JobCompleted {
			body["chunk_count"] = job.ChunkCount
			body["skipped"] = job.Skipped
		}
		if job.Error != "" {
			body["error"] = job.Error
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func jobETag(j domain.IngestJob) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s", j.ID, j.Status, j.ChunkCount, j.Error)))
	return `"` + hex.EncodeToString(h[:8]) + `"`
}

// resumeSummary is the list/detail representation; raw text is never exposed.
type resumeSummary struct {
	ID            string                  `json:"id"`
	Filename      string                  `json:"filename"`
	FileFormat    string                  `json:"file_format"`
	Size          int64                   `json:"size_bytes"`
	ChunkCount    int                     `json:"chunk_count"`
	ParsingMethod string                  `json:"parsing_method,omitempty"`
	Profile       domain.CandidateProfile `json:"profile"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

func toSummary(r domain.Resume) resumeSummary {
	return resumeSummary{
		ID:            r.ID,
		Filename:      r.Filename,
		FileFormat:    r.FileFormat,
		Size:          r.Size,
		ChunkCount:    r.ChunkCount,
		ParsingMethod: r.ParsingMethod,
		Profile:       r.Profile,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// ListResumesHandler returns all ingested resumes.
func (s *Server) ListResumesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resumes, err := s.Stats.List(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]resumeSummary, 0, len(resumes))
		for _, res := range resumes {
			out = append(out, toSummary(res))
		}
		writeJSON(w, http.StatusOK, map[string]any{"resumes": out, "total": len(out)})
	}
}

// GetResumeHandler returns one resume by id.
func (s *Server) GetResumeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		res, err := s.Stats.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toSummary(res))
	}
}

// DeleteResumeHandler removes a resume and its indexed chunks.
func (s *Server) DeleteResumeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := s.Ingest.Delete(r.Context(), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// QueryHandler answers a free-form question over the corpus.
func (s *Server) QueryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			Question   string `json:"question" validate:"required,max=2000"`
			ResumeID   string `json:"resume_id" validate:"max=200"`
			FileFormat string `json:"file_format" validate:"omitempty,oneof=pdf docx txt PDF DOCX TXT"`
			TopK       int    `json:"top_k" validate:"min=0,max=20"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		ans, err := s.Query.Ask(r.Context(), req.Question, req.ResumeID, req.FileFormat, req.TopK)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, ans)
	}
}

// RankHandler returns a ranked candidate list for a hiring query.
func (s *Server) RankHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			Query      string `json:"query" validate:"required,max=2000"`
			MaxResumes int    `json:"max_resumes" validate:"min=0,max=100"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		res, err := s.Rank.Rank(r.Context(), req.Query, req.MaxResumes)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// StatsHandler reports corpus totals.
func (s *Server) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.Stats.Stats(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// ReadyzHandler probes DB, Redis, Qdrant and Tika.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name string
			fn   func(ctx context.Context) error
		}{
			{"db", s.DBCheck},
			{"redis", s.RedisCheck},
			{"qdrant", s.QdrantCheck},
			{"tika", s.TikaCheck},
		}
		checks := make([]check, 0, len(probes))
		ok := true
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			if err := p.fn(ctx); err != nil {
				checks = append(checks, check{Name: p.name, OK: false, Details: err.Error()})
				ok = false
			} else {
				checks = append(checks, check{Name: p.name, OK: true})
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
