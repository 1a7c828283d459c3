package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")
)

// FileFormat values recorded for ingested resumes.
const (
	FileFormatPDF  = "PDF"
	FileFormatDOCX = "DOCX"
	FileFormatTXT  = "TXT"
)

// CandidateProfile holds structured fields the LLM extracts from a resume.
// All fields are best-effort; an empty profile is valid.
type CandidateProfile struct {
	CandidateName   string   `json:"candidate_name"`
	ContactInfo     string   `json:"contact_info"`
	KeySkills       []string `json:"key_skills"`
	ExperienceYears int      `json:"experience_years"`
	Education       string   `json:"education"`
	Certifications  []string `json:"certifications"`
	JobTitles       []string `json:"job_titles"`
	Industries      []string `json:"industries"`
}

// Resume represents one ingested source document.
// Invariants: ID stable for identical file content; ContentHash is the
// sha256 of the raw uploaded bytes; ChunkCount reflects the points stored
// in the vector index for this resume.
type Resume struct {
	ID            string
	Filename      string
	FileFormat    string
	MIME          string
	Size          int64
	ContentHash   string
	Text          string
	Profile       CandidateProfile
	ParsingMethod string
	ChunkCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JobStatus enumerates ingest job states.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// IngestJob tracks the async ingest of a single resume.
type IngestJob struct {
	ID         string
	ResumeID   string
	Status     JobStatus
	Error      string
	ChunkCount int
	Skipped    bool
	IdemKey    *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Chunk is the unit of retrieval: a contiguous slice of a resume's text
// plus the section labeling the chunker attached to it.
type Chunk struct {
	ResumeID     string
	Index        int
	SectionName  string
	SectionOrder int
	Type         string
	Text         string
}

// Chunk type values stored in vector payloads.
const (
	ChunkTypeSemantic = "semantic_section"
	ChunkTypeSliding  = "sliding_window"
)

// Repositories (ports)

type ResumeRepository interface {
	Upsert(ctx Context, r Resume) error
	Get(ctx Context, id string) (Resume, error)
	FindByContentHash(ctx Context, hash string) (Resume, error)
	List(ctx Context) ([]Resume, error)
	Delete(ctx Context, id string) error
	SetChunkCount(ctx Context, id string, n int) error
	Count(ctx Context) (int64, error)
	CountByFormat(ctx Context) (map[string]int64, error)
	SumChunkCounts(ctx Context) (int64, error)
}

type IngestJobRepository interface {
	Create(ctx Context, j IngestJob) (string, error)
	UpdateStatus(ctx Context, id string, status JobStatus, errMsg *string) error
	Complete(ctx Context, id string, chunkCount int, skipped bool) error
	Get(ctx Context, id string) (IngestJob, error)
	FindByIdempotencyKey(ctx Context, key string) (IngestJob, error)
}

// Queue (port)

type Queue interface {
	EnqueueIngest(ctx Context, payload IngestTaskPayload) (string, error)
}

// AIClient (port)

type AIClient interface {
	// Embed returns embedding vectors for texts in input order.
	Embed(ctx Context, texts []string) ([][]float32, error)
	// ChatJSON returns a JSON document matching the schema described by the
	// prompts; callers still validate the payload.
	ChatJSON(ctx Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// TextExtractor (port)
// ExtractPath extracts plain text from a file at path; implementations may
// call external services (e.g. Tika).
type TextExtractor interface {
	ExtractPath(ctx Context, fileName, path string) (string, error)
}

// VectorIndex (port) abstracts the vector store used for chunk retrieval.
// Implementations delegate similarity search to an external engine.
type VectorIndex interface {
	UpsertChunks(ctx Context, vectors [][]float32, payloads []map[string]any, ids []string) error
	Search(ctx Context, vector []float32, topK int, filter map[string]any) ([]ScoredChunk, error)
	DeleteByResumeID(ctx Context, resumeID string) error
}

// ScoredChunk is a retrieval hit: the stored payload plus its similarity score.
type ScoredChunk struct {
	Score   float64
	Payload map[string]any
}

// IngestTaskPayload travels on the ingest queue.
type IngestTaskPayload struct {
	JobID       string `json:"job_id"`
	ResumeID    string `json:"resume_id"`
	ForceUpdate bool   `json:"force_update"`
}

// Context is an alias so domain signatures stay decoupled from call sites;
// adapters and usecases pass context.Context through.
type Context = context.Context
