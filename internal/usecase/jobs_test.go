package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/resume-rag/internal/domain"
)

func TestJobGet_PassesThroughTerminalStates(t *testing.T) {
	t.Parallel()

	jobs := newMemJobRepo()
	id, err := jobs.Create(context.Background(), domain.IngestJob{ResumeID: "r1", Status: domain.JobCompleted, ChunkCount: 7})
	require.NoError(t, err)

	svc := NewJobService(jobs)
	job, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 7, job.ChunkCount)
}

func TestJobGet_StaleQueuedJobReportsFailed(t *testing.T) {
	t.Parallel()

	jobs := newMemJobRepo()
	id, err := jobs.Create(context.Background(), domain.IngestJob{ResumeID: "r1", Status: domain.JobQueued})
	require.NoError(t, err)
	j := jobs.jobs[id]
	j.UpdatedAt = time.Now().Add(-15 * time.Minute)
	jobs.jobs[id] = j

	svc := NewJobService(jobs)
	job, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, "ingest timed out", job.Error)
}

func TestJobGet_RecentProcessingJobUnchanged(t *testing.T) {
	t.Parallel()

	jobs := newMemJobRepo()
	id, err := jobs.Create(context.Background(), domain.IngestJob{ResumeID: "r1", Status: domain.JobProcessing})
	require.NoError(t, err)
	j := jobs.jobs[id]
	j.UpdatedAt = time.Now().Add(-1 * time.Minute)
	jobs.jobs[id] = j

	svc := NewJobService(jobs)
	job, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobProcessing, job.Status)
	assert.Empty(t, job.Error)
}

func TestJobGet_UnknownIDNotFound(t *testing.T) {
	t.Parallel()

	svc := NewJobService(newMemJobRepo())
	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
