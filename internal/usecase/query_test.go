package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/resume-rag/internal/domain"
)

type answerAI struct {
	answer     string
	chatErr    error
	embedErr   error
	userPrompt string
}

func (a *answerAI) Embed(_ domain.Context, texts []string) ([][]float32, error) {
	if a.embedErr != nil {
		return nil, a.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (a *answerAI) ChatJSON(_ domain.Context, _, userPrompt string, _ int) (string, error) {
	a.userPrompt = userPrompt
	if a.chatErr != nil {
		return "", a.chatErr
	}
	return a.answer, nil
}

// filterIndex returns canned hits and records the filter it was searched with.
type filterIndex struct {
	fakeSearchIndex
	filter map[string]any
	topK   int
}

func (f *filterIndex) Search(_ domain.Context, _ []float32, topK int, filter map[string]any) ([]domain.ScoredChunk, error) {
	f.filter = filter
	f.topK = topK
	return f.hits, nil
}

func queryHit(resumeID, name, section, text string) domain.ScoredChunk {
	return domain.ScoredChunk{
		Score: 0.82,
		Payload: map[string]any{
			"resume_id":      resumeID,
			"candidate_name": name,
			"section_name":   section,
			"text":           text,
			"chunk_preview":  text,
		},
	}
}

func TestAsk_AnswersWithSources(t *testing.T) {
	t.Parallel()

	index := &filterIndex{fakeSearchIndex: fakeSearchIndex{hits: []domain.ScoredChunk{
		queryHit("jane_1", "Jane Doe", "SKILLS", "Go, Kubernetes, PostgreSQL"),
		queryHit("bob_2", "Bob Roe", "EXPERIENCE", "Led the platform team at Acme."),
	}}}
	aicl := &answerAI{answer: "Jane Doe lists Go and Kubernetes under skills."}
	svc := NewQueryService(aicl, index, 4)

	ans, err := svc.Ask(context.Background(), "who knows kubernetes?", "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe lists Go and Kubernetes under skills.", ans.Text)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "jane_1", ans.Sources[0].ResumeID)
	assert.Equal(t, "SKILLS", ans.Sources[0].SectionName)
	assert.InDelta(t, 0.82, ans.Sources[0].Score, 1e-9)

	// excerpts and the question both reach the model
	assert.Contains(t, aicl.userPrompt, "who knows kubernetes?")
	assert.Contains(t, aicl.userPrompt, "Go, Kubernetes, PostgreSQL")
	assert.Contains(t, aicl.userPrompt, "[candidate: Jane Doe, resume: jane_1]")

	assert.Equal(t, 4, index.topK)
	assert.Equal(t, "resume", index.filter["content_type"])
}

func TestAsk_AppliesResumeAndFormatFilters(t *testing.T) {
	t.Parallel()

	index := &filterIndex{fakeSearchIndex: fakeSearchIndex{hits: []domain.ScoredChunk{
		queryHit("jane_1", "Jane Doe", "SKILLS", "Go"),
	}}}
	svc := NewQueryService(&answerAI{answer: "yes"}, index, 4)

	_, err := svc.Ask(context.Background(), "any go experience?", "jane_1", "pdf", 8)
	require.NoError(t, err)
	assert.Equal(t, "jane_1", index.filter["resume_id"])
	assert.Equal(t, "PDF", index.filter["file_format"])
	assert.Equal(t, 8, index.topK)
}

func TestAsk_NoHitsReturnsFriendlyAnswer(t *testing.T) {
	t.Parallel()

	aicl := &answerAI{answer: "should not be called"}
	svc := NewQueryService(aicl, &filterIndex{}, 4)

	ans, err := svc.Ask(context.Background(), "anything about cobol?", "", "", 0)
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "No matching resume content")
	assert.NotNil(t, ans.Sources)
	assert.Empty(t, ans.Sources)
	// no generation call without context
	assert.Empty(t, aicl.userPrompt)
}

func TestAsk_EmptyQuestionRejected(t *testing.T) {
	t.Parallel()

	svc := NewQueryService(&answerAI{}, &filterIndex{}, 4)
	_, err := svc.Ask(context.Background(), "  ", "", "", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAsk_GenerationFailurePropagates(t *testing.T) {
	t.Parallel()

	index := &filterIndex{fakeSearchIndex: fakeSearchIndex{hits: []domain.ScoredChunk{
		queryHit("jane_1", "Jane Doe", "SKILLS", "Go"),
	}}}
	svc := NewQueryService(&answerAI{chatErr: errors.New("model down")}, index, 4)

	_, err := svc.Ask(context.Background(), "who knows go?", "", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=query.generate")
}

func TestStats_AggregatesCorpus(t *testing.T) {
	t.Parallel()

	resumes := newMemResumeRepo()
	ctx := context.Background()
	require.NoError(t, resumes.Upsert(ctx, domain.Resume{ID: "a", ContentHash: "h1", FileFormat: domain.FileFormatPDF, ChunkCount: 4}))
	require.NoError(t, resumes.Upsert(ctx, domain.Resume{ID: "b", ContentHash: "h2", FileFormat: domain.FileFormatPDF, ChunkCount: 2}))
	require.NoError(t, resumes.Upsert(ctx, domain.Resume{ID: "c", ContentHash: "h3", FileFormat: domain.FileFormatTXT, ChunkCount: 1}))

	svc := NewStatsService(resumes)
	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalResumes)
	assert.Equal(t, int64(7), stats.TotalChunks)
	assert.Equal(t, int64(2), stats.ByFormat[domain.FileFormatPDF])
	assert.Equal(t, int64(1), stats.ByFormat[domain.FileFormatTXT])
}
