// Package usecase contains the application services behind the HTTP API.
package usecase

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/resume-rag/internal/domain"
	"github.com/fairyhunter13/resume-rag/internal/ingest"
	"github.com/fairyhunter13/resume-rag/pkg/textx"
)

// IngestService registers uploaded resumes and enqueues ingest jobs.
type IngestService struct {
	Resumes   domain.ResumeRepository
	Jobs      domain.IngestJobRepository
	Queue     domain.Queue
	Extractor domain.TextExtractor
	Ranks     domain.RankingCache
	Index     domain.VectorIndex
}

// NewIngestService wires the upload-side dependencies.
func NewIngestService(resumes domain.ResumeRepository, jobs domain.IngestJobRepository, q domain.Queue, ex domain.TextExtractor, ranks domain.RankingCache, index domain.VectorIndex) IngestService {
	return IngestService{Resumes: resumes, Jobs: jobs, Queue: q, Extractor: ex, Ranks: ranks, Index: index}
}

// UploadResult reports the outcome of registering one resume.
type UploadResult struct {
	ResumeID string
	JobID    string
	Status   domain.JobStatus
	Skipped  bool
}

var formatByExt = map[string]string{
	".pdf":  domain.FileFormatPDF,
	".docx": domain.FileFormatDOCX,
	".txt":  domain.FileFormatTXT,
}

// Register validates an upload, extracts its text, stores the resume row and
// enqueues the ingest job. Unchanged content short-circuits to a completed,
// skipped job unless forceUpdate is set. A non-empty idemKey returns the
// prior job for a repeated request.
func (s IngestService) Register(ctx domain.Context, filename string, content []byte, forceUpdate bool, idemKey string) (UploadResult, error) {
	if len(content) == 0 {
		return UploadResult{}, fmt.Errorf("%w: empty file", domain.ErrInvalidArgument)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	format, ok := formatByExt[ext]
	if !ok {
		return UploadResult{}, fmt.Errorf("%w: unsupported file extension %q", domain.ErrInvalidArgument, ext)
	}
	mime := mimetype.Detect(content)
	if err := checkMIME(ext, mime.String()); err != nil {
		return UploadResult{}, err
	}

	if idemKey != "" {
		if prior, err := s.Jobs.FindByIdempotencyKey(ctx, idemKey); err == nil {
			slog.Info("idempotent upload replay", slog.String("job_id", prior.ID))
			return UploadResult{ResumeID: prior.ResumeID, JobID: prior.ID, Status: prior.Status, Skipped: prior.Skipped}, nil
		}
	}

	hash := ingest.ContentHash(content)
	resumeID := ingest.ResumeID(filename, hash)

	// Unchanged content: complete immediately without touching the pipeline.
	if !forceUpdate {
		if existing, err := s.Resumes.FindByContentHash(ctx, hash); err == nil && existing.ChunkCount > 0 {
			job := domain.IngestJob{ResumeID: existing.ID, Status: domain.JobCompleted, Skipped: true}
			if idemKey != "" {
				job.IdemKey = &idemKey
			}
			jobID, err := s.Jobs.Create(ctx, job)
			if err != nil {
				return UploadResult{}, err
			}
			slog.Info("duplicate content, ingest skipped",
				slog.String("resume_id", existing.ID),
				slog.String("job_id", jobID))
			return UploadResult{ResumeID: existing.ID, JobID: jobID, Status: domain.JobCompleted, Skipped: true}, nil
		}
	}

	text, err := s.extractText(ctx, filename, format, content)
	if err != nil {
		return UploadResult{}, fmt.Errorf("op=ingest.extract: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return UploadResult{}, fmt.Errorf("%w: no text could be extracted", domain.ErrInvalidArgument)
	}

	resume := domain.Resume{
		ID:          resumeID,
		Filename:    filepath.Base(filename),
		FileFormat:  format,
		MIME:        mime.String(),
		Size:        int64(len(content)),
		ContentHash: hash,
		Text:        text,
	}
	if err := s.Resumes.Upsert(ctx, resume); err != nil {
		return UploadResult{}, err
	}

	job := domain.IngestJob{ResumeID: resumeID, Status: domain.JobQueued}
	if idemKey != "" {
		job.IdemKey = &idemKey
	}
	jobID, err := s.Jobs.Create(ctx, job)
	if err != nil {
		return UploadResult{}, err
	}

	if _, err := s.Queue.EnqueueIngest(ctx, domain.IngestTaskPayload{
		JobID:       jobID,
		ResumeID:    resumeID,
		ForceUpdate: forceUpdate,
	}); err != nil {
		msg := "enqueue failed: " + err.Error()
		if uerr := s.Jobs.UpdateStatus(ctx, jobID, domain.JobFailed, &msg); uerr != nil {
			slog.Error("mark job failed", slog.Any("error", uerr))
		}
		return UploadResult{}, fmt.Errorf("op=ingest.enqueue: %w", err)
	}

	return UploadResult{ResumeID: resumeID, JobID: jobID, Status: domain.JobQueued}, nil
}

// Delete removes a resume from storage and the vector index, then
// invalidates cached rankings.
func (s IngestService) Delete(ctx domain.Context, resumeID string) error {
	if err := s.Resumes.Delete(ctx, resumeID); err != nil {
		return err
	}
	if err := s.Index.DeleteByResumeID(ctx, resumeID); err != nil {
		return fmt.Errorf("op=ingest.delete_points: %w", err)
	}
	if err := s.Ranks.BumpCorpusVersion(ctx); err != nil {
		slog.Warn("bump corpus version failed", slog.Any("error", err))
	}
	return nil
}

// extractText routes plain text through sanitization and binary formats
// through the extraction service.
func (s IngestService) extractText(ctx domain.Context, filename, format string, content []byte) (string, error) {
	if format == domain.FileFormatTXT {
		return textx.CollapseWhitespace(textx.SanitizeText(string(content))), nil
	}
	tmp, err := os.CreateTemp("", "resume-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(content); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	return s.Extractor.ExtractPath(ctx, filepath.Base(filename), tmp.Name())
}

// checkMIME rejects uploads whose sniffed content type contradicts the
// extension. Text detection is fuzzy, so .txt accepts any text/* type.
func checkMIME(ext, mime string) error {
	switch ext {
	case ".pdf":
		if !strings.HasPrefix(mime, "application/pdf") {
			return fmt.Errorf("%w: content is %s, not a PDF", domain.ErrInvalidArgument, mime)
		}
	case ".docx":
		if !strings.Contains(mime, "officedocument.wordprocessingml") && !strings.HasPrefix(mime, "application/zip") {
			return fmt.Errorf("%w: content is %s, not a DOCX", domain.ErrInvalidArgument, mime)
		}
	case ".txt":
		if !strings.HasPrefix(mime, "text/") {
			return fmt.Errorf("%w: content is %s, not plain text", domain.ErrInvalidArgument, mime)
		}
	}
	return nil
}
