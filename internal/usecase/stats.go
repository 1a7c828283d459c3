package usecase

import (
	"github.com/fairyhunter13/resume-rag/internal/domain"
)

// StatsService reports corpus statistics from the relational store.
type StatsService struct {
	Resumes domain.ResumeRepository
}

// NewStatsService wires the stats dependencies.
func NewStatsService(resumes domain.ResumeRepository) StatsService {
	return StatsService{Resumes: resumes}
}

// CorpusStats summarizes the indexed corpus.
type CorpusStats struct {
	TotalResumes int64            `json:"total_resumes"`
	TotalChunks  int64            `json:"total_chunks"`
	ByFormat     map[string]int64 `json:"by_format"`
}

// Stats returns resume and chunk totals plus a per-format breakdown.
func (s StatsService) Stats(ctx domain.Context) (CorpusStats, error) {
	total, err := s.Resumes.Count(ctx)
	if err != nil {
		return CorpusStats{}, err
	}
	chunks, err := s.Resumes.SumChunkCounts(ctx)
	if err != nil {
		return CorpusStats{}, err
	}
	byFormat, err := s.Resumes.CountByFormat(ctx)
	if err != nil {
		return CorpusStats{}, err
	}
	return CorpusStats{TotalResumes: total, TotalChunks: chunks, ByFormat: byFormat}, nil
}

// List returns all resumes for the listing endpoint.
func (s StatsService) List(ctx domain.Context) ([]domain.Resume, error) {
	return s.Resumes.List(ctx)
}

// Get returns one resume by id.
func (s StatsService) Get(ctx domain.Context, id string) (domain.Resume, error) {
	return s.Resumes.Get(ctx, id)
}
