package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"packrat/internal/db"
	"packrat/internal/model"
)

func newTestRepo(t *testing.T) *JobRepository {
	t.Helper()
	require.NoError(t, db.Init(filepath.Join(t.TempDir(), "test.db")))
	return NewJobRepository()
}

func newJob(src string) *model.BackupJob {
	return &model.BackupJob{
		SourcePath:     src,
		DestinationDir: "/tmp/backups",
		Status:         model.JobStatusPending,
	}
}

func TestCreateAndGet(t *testing.T) {
	repo := newTestRepo(t)

	job := newJob("/home/user/docs")
	job.Password = "secret"
	require.NoError(t, repo.Create(job))
	require.NotZero(t, job.ID)

	got, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "/home/user/docs", got.SourcePath)
	assert.Equal(t, model.JobStatusPending, got.Status)

	// Password is not a column; it must never survive a round trip.
	assert.Empty(t, got.Password)
}

func TestUpdateStatus(t *testing.T) {
	repo := newTestRepo(t)

	job := newJob("/home/user/docs")
	require.NoError(t, repo.Create(job))

	require.NoError(t, repo.UpdateStatus(job.ID, model.JobStatusArchiving))
	got, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusArchiving, got.Status)
	assert.Nil(t, got.FinishedAt)

	require.NoError(t, repo.UpdateStatus(job.ID, model.JobStatusFailed))
	got, err = repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.NotNil(t, got.FinishedAt)
}

func TestRecordResult(t *testing.T) {
	repo := newTestRepo(t)

	job := newJob("/home/user/docs")
	require.NoError(t, repo.Create(job))

	now := time.Now()
	job.Status = model.JobStatusCompleted
	job.ArchivePath = "/tmp/backups/docs-20260301-020000.zip"
	job.RemoteRef = "gdrive:abc123"
	job.FinishedAt = &now
	require.NoError(t, repo.RecordResult(job))

	got, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Equal(t, job.ArchivePath, got.ArchivePath)
	assert.Equal(t, "gdrive:abc123", got.RemoteRef)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.FinishedAt)
}

func TestRecent(t *testing.T) {
	repo := newTestRepo(t)

	for i := 0; i < 5; i++ {
		job := newJob("/home/user/docs")
		job.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(job))
	}

	jobs, err := repo.Recent(3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	// Newest first.
	assert.True(t, jobs[0].CreatedAt.After(jobs[1].CreatedAt))
	assert.True(t, jobs[1].CreatedAt.After(jobs[2].CreatedAt))
}

func TestGetByID_Missing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByID(9999)
	assert.Error(t, err)
}
