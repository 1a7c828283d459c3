package ingest

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fairyhunter13/resume-rag/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/resume-rag/internal/domain"
)

// minSectionChars drops degenerate sections (stray headings, page footers).
const minSectionChars = 50

// Section is one labeled region of a resume as identified by the LLM.
type Section struct {
	Name          string `json:"section_name"`
	StartPosition int    `json:"start_position"`
}

// Chunker turns resume text into retrieval chunks. Semantic section slicing
// is preferred; a token-budgeted sliding window is the fallback.
type Chunker struct {
	counter       *tokencount.Counter
	model         string
	chunkTokens   int
	overlapTokens int
}

// NewChunker builds a Chunker with the given token budget per chunk.
func NewChunker(model string, chunkTokens, overlapTokens int) *Chunker {
	if chunkTokens <= 0 {
		chunkTokens = 500
	}
	if overlapTokens < 0 || overlapTokens >= chunkTokens {
		overlapTokens = chunkTokens / 10
	}
	return &Chunker{
		counter:       tokencount.NewCounter(),
		model:         model,
		chunkTokens:   chunkTokens,
		overlapTokens: overlapTokens,
	}
}

// FromSections slices text into one chunk per identified section.
// Offsets are character positions as promised by the sectioning prompt,
// so slicing happens over runes, never bytes. Offsets are clamped into
// range and sorted; sections shorter than minSectionChars are dropped.
// Returns nil when nothing usable remains, signaling the caller to fall
// back to SlidingWindow.
func (c *Chunker) FromSections(resumeID, text string, sections []Section) []domain.Chunk {
	if len(sections) == 0 || text == "" {
		return nil
	}
	runes := []rune(text)
	sorted := make([]Section, 0, len(sections))
	for _, s := range sections {
		if s.StartPosition < 0 {
			s.StartPosition = 0
		}
		if s.StartPosition >= len(runes) {
			continue
		}
		sorted = append(sorted, s)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartPosition < sorted[j].StartPosition
	})

	var chunks []domain.Chunk
	for i, s := range sorted {
		end := len(runes)
		if i+1 < len(sorted) {
			end = sorted[i+1].StartPosition
		}
		body := strings.TrimSpace(string(runes[s.StartPosition:end]))
		if utf8.RuneCountInString(body) < minSectionChars {
			continue
		}
		name := strings.TrimSpace(s.Name)
		if name == "" {
			name = "Section"
		}
		chunks = append(chunks, domain.Chunk{
			ResumeID:     resumeID,
			Index:        len(chunks),
			SectionName:  name,
			SectionOrder: i,
			Type:         domain.ChunkTypeSemantic,
			Text:         body,
		})
	}
	return chunks
}

// SlidingWindow splits text into overlapping chunks bounded by the token
// budget. Splits prefer paragraph then sentence boundaries near the limit.
func (c *Chunker) SlidingWindow(resumeID, text string) []domain.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	// token budget converted to a character budget against the actual text,
	// so the split math stays simple and deterministic
	totalTokens := c.counter.CountTokensOrEstimate(text, c.model)
	if totalTokens <= c.chunkTokens {
		return []domain.Chunk{{
			ResumeID:    resumeID,
			Index:       0,
			SectionName: "Full Document",
			Type:        domain.ChunkTypeSliding,
			Text:        text,
		}}
	}
	// window math runs over runes so a boundary never lands inside a
	// multi-byte character
	runes := []rune(text)
	charsPerToken := len(runes) / totalTokens
	if charsPerToken < 1 {
		charsPerToken = 1
	}
	window := c.chunkTokens * charsPerToken
	overlap := c.overlapTokens * charsPerToken

	var chunks []domain.Chunk
	start := 0
	for start < len(runes) {
		end := start + window
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = splitBoundary(runes, start, end)
		}
		body := strings.TrimSpace(string(runes[start:end]))
		if body != "" {
			chunks = append(chunks, domain.Chunk{
				ResumeID:    resumeID,
				Index:       len(chunks),
				SectionName: "Full Document",
				Type:        domain.ChunkTypeSliding,
				Text:        body,
			})
		}
		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// splitBoundary nudges end back to the nearest paragraph, newline or sentence
// break inside the last quarter of the window. Offsets are rune indices; the
// separators are ASCII, so their byte length equals their rune length.
func splitBoundary(runes []rune, start, end int) int {
	floor := start + (end-start)*3/4
	segment := string(runes[floor:end])
	for _, sep := range []string{"\n\n", "\n", ". "} {
		if idx := strings.LastIndex(segment, sep); idx >= 0 {
			return floor + utf8.RuneCountInString(segment[:idx]) + len(sep)
		}
	}
	return end
}
