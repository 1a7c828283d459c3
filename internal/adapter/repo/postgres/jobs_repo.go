package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/resume-rag/internal/domain"
)

// JobRepo persists and loads ingest jobs from PostgreSQL.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

const jobColumns = `id, resume_id, status, COALESCE(error,''), chunk_count, skipped, idempotency_key, created_at, updated_at`

// Create inserts a new job and returns its id.
func (r *JobRepo) Create(ctx domain.Context, j domain.IngestJob) (string, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Create")
	defer span.End()
	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO ingest_jobs (id, resume_id, status, error, chunk_count, skipped, idempotency_key, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)`
	_, err := r.Pool.Exec(ctx, q, id, j.ResumeID, j.Status, j.Error, j.ChunkCount, j.Skipped, j.IdemKey, now)
	if err != nil {
		return "", fmt.Errorf("op=job.create: %w", err)
	}
	return id, nil
}

// UpdateStatus updates a job's status and optional error message.
func (r *JobRepo) UpdateStatus(ctx domain.Context, id string, status domain.JobStatus, errMsg *string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.UpdateStatus")
	defer span.End()
	// Map nil errMsg to empty string to satisfy NOT NULL constraint on error column
	errVal := ""
	if errMsg != nil {
		errVal = *errMsg
	}
	q := `UPDATE ingest_jobs SET status=$2, error=$3, updated_at=$4 WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, status, errVal, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job.update_status: %w", err)
	}
	return nil
}

// Complete marks a job completed with its chunk output.
func (r *JobRepo) Complete(ctx domain.Context, id string, chunkCount int, skipped bool) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Complete")
	defer span.End()
	q := `UPDATE ingest_jobs SET status=$2, chunk_count=$3, skipped=$4, updated_at=$5 WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, domain.JobCompleted, chunkCount, skipped, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job.complete: %w", err)
	}
	return nil
}

// Get loads a job by id.
func (r *JobRepo) Get(ctx domain.Context, id string) (domain.IngestJob, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()
	q := `SELECT ` + jobColumns + ` FROM ingest_jobs WHERE id=$1`
	return scanJob(r.Pool.QueryRow(ctx, q, id), "job.get")
}

// FindByIdempotencyKey loads a job by idempotency key.
func (r *JobRepo) FindByIdempotencyKey(ctx domain.Context, key string) (domain.IngestJob, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.FindByIdempotencyKey")
	defer span.End()
	q := `SELECT ` + jobColumns + ` FROM ingest_jobs WHERE idempotency_key=$1 LIMIT 1`
	return scanJob(r.Pool.QueryRow(ctx, q, key), "job.find_idem")
}

func scanJob(row pgx.Row, op string) (domain.IngestJob, error) {
	var j domain.IngestJob
	var idem *string
	if err := row.Scan(&j.ID, &j.ResumeID, &j.Status, &j.Error, &j.ChunkCount, &j.Skipped, &idem, &j.CreatedAt, &j.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.IngestJob{}, fmt.Errorf("op=%s: %w", op, domain.ErrNotFound)
		}
		return domain.IngestJob{}, fmt.Errorf("op=%s: %w", op, err)
	}
	j.IdemKey = idem
	return j, nil
}
