package usecase

import (
	"time"

	"github.com/fairyhunter13/resume-rag/internal/domain"
)

// staleJobTimeout bounds how long a job may sit in queued/processing before
// status reads report it failed. Covers crashed workers and lost records.
const staleJobTimeout = 10 * time.Minute

// JobService reads ingest job status.
type JobService struct {
	Jobs domain.IngestJobRepository
}

// NewJobService wires the job status dependencies.
func NewJobService(jobs domain.IngestJobRepository) JobService {
	return JobService{Jobs: jobs}
}

// Get loads a job and applies the stale-job policy to non-terminal states.
func (s JobService) Get(ctx domain.Context, id string) (domain.IngestJob, error) {
	job, err := s.Jobs.Get(ctx, id)
	if err != nil {
		return domain.IngestJob{}, err
	}
	if (job.Status == domain.JobQueued || job.Status == domain.JobProcessing) &&
		time.Since(job.UpdatedAt) > staleJobTimeout {
		job.Status = domain.JobFailed
		job.Error = "ingest timed out"
	}
	return job, nil
}
