package repository

import (
	"time"

	"packrat/internal/db"
	"packrat/internal/model"
)

type JobRepository struct{}

func NewJobRepository() *JobRepository {
	return &JobRepository{}
}

func (r *JobRepository) Create(job *model.BackupJob) error {
	return db.DB.Create(job).Error
}

func (r *JobRepository) UpdateStatus(id uint, status model.JobStatus) error {
	updates := map[string]any{"status": status}
	if status.Terminal() {
		updates["finished_at"] = time.Now()
	}

	return db.DB.Model(&model.BackupJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *JobRepository) RecordResult(job *model.BackupJob) error {
	return db.DB.Model(&model.BackupJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":       job.Status,
			"archive_path": job.ArchivePath,
			"remote_ref":   job.RemoteRef,
			"error":        job.Error,
			"finished_at":  job.FinishedAt,
		}).Error
}

func (r *JobRepository) Recent(n int) ([]model.BackupJob, error) {
	var jobs []model.BackupJob
	return jobs, db.DB.Order("created_at desc").Limit(n).Find(&jobs).Error
}

func (r *JobRepository) GetByID(id uint) (model.BackupJob, error) {
	var job model.BackupJob
	return job, db.DB.First(&job, id).Error
}
