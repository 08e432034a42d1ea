package model

import (
	"time"

	"gorm.io/gorm"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusValidating JobStatus = "VALIDATING"
	JobStatusArchiving  JobStatus = "ARCHIVING"
	JobStatusUploading  JobStatus = "UPLOADING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// BackupJob is one requested or scheduled backup run. Password is held in
// memory only until the job reaches a terminal state; it is never a column
// and never logged.
type BackupJob struct {
	gorm.Model
	SourcePath     string     `gorm:"not null" json:"source_path"`
	DestinationDir string     `gorm:"not null" json:"destination_dir"`
	Encrypt        bool       `json:"encrypt"`
	Upload         bool       `json:"upload"`
	Remote         string     `json:"remote"`
	Status         JobStatus  `gorm:"not null;default:'PENDING'" json:"status"`
	ArchivePath    string     `json:"archive_path,omitempty"`
	RemoteRef      string     `json:"remote_ref,omitempty"`
	Error          string     `json:"error,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`

	Password string `gorm:"-" json:"-"`
}

// TriggerRequest is the trigger input, shared by the manual path and the
// scheduler.
type TriggerRequest struct {
	SourcePath     string `json:"source_path"`
	DestinationDir string `json:"destination_dir,omitempty"`
	Encrypt        bool   `json:"encrypt"`
	Password       string `json:"password,omitempty"`
	Upload         bool   `json:"upload"`
	Remote         string `json:"remote,omitempty"`
}

// JobSnapshot is the progress surface rendered by the daemon API and CLI.
type JobSnapshot struct {
	JobID      uint       `json:"job_id"`
	SourcePath string     `json:"source_path"`
	Status     JobStatus  `json:"status"`
	Detail     string     `json:"detail,omitempty"`
	Percent    float64    `json:"percent"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}
