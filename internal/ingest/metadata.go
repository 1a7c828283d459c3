package ingest

import (
	"strings"
	"time"

	"github.com/fairyhunter13/resume-rag/internal/domain"
	"github.com/fairyhunter13/resume-rag/pkg/textx"
)

const previewChars = 100

// ChunkPayload builds the vector payload stored alongside one chunk. It
// carries both the chunk text and denormalized candidate fields so retrieval
// hits can be rendered and filtered without a database round trip.
func ChunkPayload(r domain.Resume, ch domain.Chunk, totalChunks int, ingestedAt time.Time) map[string]any {
	return map[string]any{
		"text":              ch.Text,
		"resume_id":         r.ID,
		"candidate_name":    r.Profile.CandidateName,
		"filename":          r.Filename,
		"file_format":       r.FileFormat,
		"content_type":      "resume",
		"section_name":      ch.SectionName,
		"section_order":     ch.SectionOrder,
		"chunk_type":        ch.Type,
		"chunk_index":       ch.Index,
		"total_chunks":      totalChunks,
		"chunk_preview":     textx.Preview(ch.Text, previewChars),
		"key_skills":        strings.Join(r.Profile.KeySkills, ", "),
		"experience_years":  r.Profile.ExperienceYears,
		"education":         r.Profile.Education,
		"certifications":    strings.Join(r.Profile.Certifications, ", "),
		"recent_job_titles": strings.Join(r.Profile.JobTitles, ", "),
		"industries":        strings.Join(r.Profile.Industries, ", "),
		"parsing_method":    r.ParsingMethod,
		"ingested_at":       ingestedAt.UTC().Format(time.RFC3339),
	}
}
