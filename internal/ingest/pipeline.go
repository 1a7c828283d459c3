package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/resume-rag/internal/adapter/ai"
	"github.com/fairyhunter13/resume-rag/internal/adapter/observability"
	"github.com/fairyhunter13/resume-rag/internal/config"
	"github.com/fairyhunter13/resume-rag/internal/domain"
)

// Parsing method values recorded on the resume row.
const (
	ParsingLLMSemantic   = "llm_semantic"
	ParsingSlidingWindow = "sliding_window"
)

// Pipeline processes queued ingest tasks: profile extraction, section-aware
// chunking, embedding and vector upsert. It implements redpanda.IngestHandler.
type Pipeline struct {
	cfg     config.Config
	resumes domain.ResumeRepository
	jobs    domain.IngestJobRepository
	aicl    domain.AIClient
	index   domain.VectorIndex
	ranks   domain.RankingCache
	chunker *Chunker
	cleaner *ai.ResponseCleaner
}

// NewPipeline wires the pipeline dependencies.
func NewPipeline(cfg config.Config, resumes domain.ResumeRepository, jobs domain.IngestJobRepository, aicl domain.AIClient, index domain.VectorIndex, ranks domain.RankingCache) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		resumes: resumes,
		jobs:    jobs,
		aicl:    aicl,
		index:   index,
		ranks:   ranks,
		chunker: NewChunker(cfg.ChatModel, cfg.ChunkTokens, cfg.ChunkOverlapTokens),
		cleaner: ai.NewResponseCleaner(),
	}
}

// HandleIngest runs the full pipeline for one task. Profile and section
// extraction degrade gracefully; only extraction-free hard failures
// (storage, embeddings, vector upsert) fail the job.
func (p *Pipeline) HandleIngest(ctx context.Context, payload domain.IngestTaskPayload) error {
	if err := p.jobs.UpdateStatus(ctx, payload.JobID, domain.JobProcessing, nil); err != nil {
		return fmt.Errorf("op=ingest.mark_processing: %w", err)
	}

	resume, err := p.resumes.Get(ctx, payload.ResumeID)
	if err != nil {
		return fmt.Errorf("op=ingest.load_resume: %w", err)
	}
	log := slog.With(slog.String("resume_id", resume.ID), slog.String("job_id", payload.JobID))

	// Already indexed and not forced: nothing to do.
	if resume.ChunkCount > 0 && !payload.ForceUpdate {
		log.Info("resume already indexed, skipping")
		return p.jobs.Complete(ctx, payload.JobID, 0, true)
	}

	if resume.Text == "" {
		return fmt.Errorf("op=ingest.validate: %w: resume has no extracted text", domain.ErrInvalidArgument)
	}

	resume.Profile = p.extractProfile(ctx, log, resume.Text)

	chunks, method := p.chunk(ctx, log, resume.ID, resume.Text)
	if len(chunks) == 0 {
		return fmt.Errorf("op=ingest.chunk: %w: no chunks produced", domain.ErrInternal)
	}
	resume.ParsingMethod = method

	if err := p.resumes.Upsert(ctx, resume); err != nil {
		return fmt.Errorf("op=ingest.save_resume: %w", err)
	}

	vectors, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return fmt.Errorf("op=ingest.embed: %w", err)
	}

	if payload.ForceUpdate {
		if err := p.index.DeleteByResumeID(ctx, resume.ID); err != nil {
			return fmt.Errorf("op=ingest.replace_points: %w", err)
		}
	}

	now := time.Now()
	ids := make([]string, len(chunks))
	payloads := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		ids[i] = PointID(resume.ID, ch.Index)
		payloads[i] = ChunkPayload(resume, ch, len(chunks), now)
	}
	if err := p.index.UpsertChunks(ctx, vectors, payloads, ids); err != nil {
		return fmt.Errorf("op=ingest.upsert_points: %w", err)
	}

	if err := p.resumes.SetChunkCount(ctx, resume.ID, len(chunks)); err != nil {
		return fmt.Errorf("op=ingest.set_chunk_count: %w", err)
	}
	if err := p.jobs.Complete(ctx, payload.JobID, len(chunks), false); err != nil {
		return fmt.Errorf("op=ingest.complete: %w", err)
	}
	if err := p.ranks.BumpCorpusVersion(ctx); err != nil {
		log.Warn("bump corpus version failed", slog.Any("error", err))
	}

	observability.ObserveIngest(len(chunks))
	log.Info("resume ingested",
		slog.Int("chunks", len(chunks)),
		slog.String("parsing_method", method))
	return nil
}

// extractProfile asks the LLM for structured candidate fields. Any failure
// degrades to an empty profile; ingest never fails on profile extraction.
func (p *Pipeline) extractProfile(ctx context.Context, log *slog.Logger, text string) domain.CandidateProfile {
	if !p.cfg.LLMParsingEnabled {
		return domain.CandidateProfile{}
	}
	raw, err := p.aicl.ChatJSON(ctx, profileSystemPrompt, truncate(text, maxPromptChars), profileMaxTokens)
	if err != nil {
		log.Warn("profile extraction failed", slog.Any("error", err))
		return domain.CandidateProfile{}
	}
	cleaned, err := p.cleaner.CleanJSON(raw)
	if err != nil {
		log.Warn("profile response not parseable", slog.Any("error", err))
		return domain.CandidateProfile{}
	}
	var profile domain.CandidateProfile
	if err := json.Unmarshal([]byte(cleaned), &profile); err != nil {
		log.Warn("profile response schema mismatch", slog.Any("error", err))
		return domain.CandidateProfile{}
	}
	profile.KeySkills = capList(profile.KeySkills, 10)
	profile.Certifications = capList(profile.Certifications, 5)
	profile.JobTitles = capList(profile.JobTitles, 3)
	profile.Industries = capList(profile.Industries, 3)
	if profile.ExperienceYears < 0 {
		profile.ExperienceYears = 0
	}
	return profile
}

// chunk tries LLM section identification first and falls back to the
// token-budgeted sliding window.
func (p *Pipeline) chunk(ctx context.Context, log *slog.Logger, resumeID, text string) ([]domain.Chunk, string) {
	if p.cfg.LLMParsingEnabled {
		sections, err := p.identifySections(ctx, text)
		if err != nil {
			log.Warn("section identification failed, using sliding window", slog.Any("error", err))
		} else if chunks := p.chunker.FromSections(resumeID, text, sections); len(chunks) > 0 {
			return chunks, ParsingLLMSemantic
		} else {
			log.Info("no usable sections, using sliding window")
		}
	}
	return p.chunker.SlidingWindow(resumeID, text), ParsingSlidingWindow
}

func (p *Pipeline) identifySections(ctx context.Context, text string) ([]Section, error) {
	raw, err := p.aicl.ChatJSON(ctx, sectionsSystemPrompt, truncate(text, maxPromptChars), sectionsMaxTokens)
	if err != nil {
		return nil, err
	}
	cleaned, err := p.cleaner.CleanJSON(raw)
	if err != nil {
		return nil, err
	}
	var sections []Section
	if err := json.Unmarshal([]byte(cleaned), &sections); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	return sections, nil
}

// embedChunks batches embedding calls to bound request sizes.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	batch := p.cfg.EmbedBatchSize
	if batch <= 0 {
		batch = 16
	}
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += batch {
		end := start + batch
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Text)
		}
		vecs, err := p.aicl.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(vecs), len(texts))
		}
		vectors = append(vectors, vecs...)
	}
	return vectors, nil
}

func capList(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}

// truncate cuts s to at most n characters, never splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
