package usecase

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/resume-rag/internal/domain"
)

const answerSystemPrompt = `You answer questions about candidates using only the provided resume excerpts.
Be concise and factual. If the excerpts do not contain the answer, say so plainly.
Cite candidates by name or resume id when relevant.`

const answerMaxTokens = 700

// QueryService answers free-form questions over the indexed corpus.
type QueryService struct {
	AI    domain.AIClient
	Index domain.VectorIndex
	TopK  int
}

// NewQueryService wires the question-answering dependencies.
func NewQueryService(aicl domain.AIClient, index domain.VectorIndex, topK int) QueryService {
	if topK <= 0 {
		topK = 4
	}
	return QueryService{AI: aicl, Index: index, TopK: topK}
}

// SourceChunk is one retrieval hit backing an answer.
type SourceChunk struct {
	ResumeID      string  `json:"resume_id"`
	CandidateName string  `json:"candidate_name"`
	SectionName   string  `json:"section_name"`
	Score         float64 `json:"score"`
	Preview       string  `json:"preview"`
}

// Answer holds the generated response and its supporting chunks.
type Answer struct {
	Text    string        `json:"answer"`
	Sources []SourceChunk `json:"sources"`
}

// Ask embeds the question, retrieves the top matching chunks (optionally
// constrained to one resume or file format) and generates an answer.
func (s QueryService) Ask(ctx domain.Context, question, resumeID, fileFormat string, topK int) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("%w: question must not be empty", domain.ErrInvalidArgument)
	}
	if topK <= 0 {
		topK = s.TopK
	}

	vecs, err := s.AI.Embed(ctx, []string{question})
	if err != nil {
		return Answer{}, fmt.Errorf("op=query.embed: %w", err)
	}
	filter := map[string]any{"content_type": "resume"}
	if resumeID != "" {
		filter["resume_id"] = resumeID
	}
	if fileFormat != "" {
		filter["file_format"] = strings.ToUpper(fileFormat)
	}
	hits, err := s.Index.Search(ctx, vecs[0], topK, filter)
	if err != nil {
		return Answer{}, fmt.Errorf("op=query.search: %w", err)
	}
	if len(hits) == 0 {
		return Answer{Text: "No matching resume content was found for this question.", Sources: []SourceChunk{}}, nil
	}

	var ctxParts []string
	sources := make([]SourceChunk, 0, len(hits))
	for _, hit := range hits {
		text := str(hit.Payload["text"])
		name := str(hit.Payload["candidate_name"])
		id := str(hit.Payload["resume_id"])
		ctxParts = append(ctxParts, fmt.Sprintf("[candidate: %s, resume: %s]\n%s", orUnknown(name), id, text))
		sources = append(sources, SourceChunk{
			ResumeID:      id,
			CandidateName: name,
			SectionName:   str(hit.Payload["section_name"]),
			Score:         hit.Score,
			Preview:       str(hit.Payload["chunk_preview"]),
		})
	}

	userPrompt := fmt.Sprintf("Question: %s\n\nResume excerpts:\n%s", question, strings.Join(ctxParts, "\n\n"))
	text, err := s.AI.ChatJSON(ctx, answerSystemPrompt, userPrompt, answerMaxTokens)
	if err != nil {
		return Answer{}, fmt.Errorf("op=query.generate: %w", err)
	}
	return Answer{Text: strings.TrimSpace(text), Sources: sources}, nil
}
