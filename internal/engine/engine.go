// Package engine sequences one BackupJob through preflight, archiving,
// optional encryption and optional remote upload, holding the
// single-in-flight guarantee for the whole process.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"packrat/internal/archive"
	"packrat/internal/auth"
	"packrat/internal/config"
	"packrat/internal/logger"
	"packrat/internal/model"
	"packrat/internal/preflight"
	"packrat/internal/remote"
	"packrat/internal/remote/dropbox"
	"packrat/internal/remote/gdrive"
	"packrat/internal/repository"

	"go.uber.org/zap"
)

var (
	ErrBusy        = errors.New("a backup job is already in progress")
	ErrCancelled   = errors.New("backup cancelled")
	ErrNoActiveJob = errors.New("no backup job is running")
)

type Engine struct {
	cfg     *config.Config
	repo    *repository.JobRepository
	builder *archive.Builder

	// Component seams; tests swap these for stubs.
	validate  func(*model.BackupJob) error
	checkAuth func(provider string) error
	newRemote func(ctx context.Context, name string) (remote.Remote, error)
	upload    func(ctx context.Context, r remote.Remote, path string, attempts uint64) (string, error)

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	snap   model.JobSnapshot
	wg     sync.WaitGroup

	events chan model.JobSnapshot
}

func New(cfg *config.Config) *Engine {
	e := &Engine{
		cfg:       cfg,
		repo:      repository.NewJobRepository(),
		builder:   archive.NewBuilder(),
		validate:  preflight.Validate,
		checkAuth: auth.CheckBootstrap,
		upload:    remote.Do,
		events:    make(chan model.JobSnapshot, 64),
	}

	e.newRemote = func(ctx context.Context, name string) (remote.Remote, error) {
		switch name {
		case "gdrive":
			return gdrive.New(ctx, cfg.RemoteFolder, cfg.UploadChunkMB)
		case "dropbox":
			return dropbox.New(ctx, cfg.RemoteFolder, cfg.UploadChunkMB)
		default:
			return nil, fmt.Errorf("unsupported remote: %s", name)
		}
	}

	return e
}

// Events streams status transitions and progress ticks. Slow consumers
// miss events rather than blocking the pipeline.
func (e *Engine) Events() <-chan model.JobSnapshot {
	return e.events
}

// Submit validates and starts a backup job. Preflight runs synchronously:
// a validation failure is returned to the caller right away and the job
// never leaves PENDING. Accepted jobs run on a worker goroutine; a second
// submit while one is active is rejected with ErrBusy.
func (e *Engine) Submit(req model.TriggerRequest) (*model.BackupJob, error) {
	job, err := e.buildJob(req)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	e.active = true
	e.mu.Unlock()

	if err := e.repo.Create(job); err != nil {
		e.release()
		return nil, fmt.Errorf("failed to record job: %w", err)
	}

	if err := e.preflight(job); err != nil {
		job.Error = err.Error()
		job.Password = ""
		e.persistResult(job)
		e.release()

		logger.Log.Warn("job rejected by preflight",
			zap.Uint("id", job.ID),
			zap.String("src", job.SourcePath),
			zap.Error(err))
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.cancel = cancel
	e.snap = model.JobSnapshot{
		JobID:      job.ID,
		SourcePath: job.SourcePath,
		Status:     model.JobStatusPending,
		StartedAt:  time.Now(),
	}
	e.mu.Unlock()

	// The worker owns job from here on; callers get a detached copy so
	// rendering it never races with stage transitions.
	ret := *job
	ret.Password = ""

	e.wg.Add(1)
	go e.run(ctx, job)

	return &ret, nil
}

// Cancel requests cancellation of the active job. The flag is honored
// between archive members and between upload chunks.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active || e.cancel == nil {
		return ErrNoActiveJob
	}

	e.cancel()
	return nil
}

// Snapshot returns the most recent job snapshot and whether a job is
// currently active.
func (e *Engine) Snapshot() (model.JobSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap, e.active
}

// Stop waits for an in-flight job to finish, up to the context deadline.
// It does not cancel the job.
func (e *Engine) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) buildJob(req model.TriggerRequest) (*model.BackupJob, error) {
	if req.SourcePath == "" {
		return nil, errors.New("source_path is required")
	}

	src, err := filepath.Abs(req.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("invalid source path: %w", err)
	}

	dest := req.DestinationDir
	if dest == "" {
		dest = e.cfg.DefaultDestination
	}

	remoteName := req.Remote
	if remoteName == "" {
		remoteName = e.cfg.Remote
	}

	if req.Encrypt && req.Password == "" {
		return nil, archive.ErrPasswordRequired
	}

	return &model.BackupJob{
		SourcePath:     src,
		DestinationDir: dest,
		Encrypt:        req.Encrypt,
		Upload:         req.Upload,
		Remote:         remoteName,
		Status:         model.JobStatusPending,
		Password:       req.Password,
	}, nil
}

func (e *Engine) preflight(job *model.BackupJob) error {
	if err := e.validate(job); err != nil {
		return err
	}

	// A missing bootstrap file is a configuration error; catch it before
	// any archiving starts rather than at the upload stage.
	if job.Upload {
		if err := e.checkAuth(job.Remote); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) run(ctx context.Context, job *model.BackupJob) {
	defer e.wg.Done()
	defer e.release()

	e.transition(job, model.JobStatusValidating, "preflight ok", 0)
	e.transition(job, model.JobStatusArchiving, "archiving", 0)

	archivePath, err := e.builder.Build(ctx, job, func(done, total int, path string) {
		percent := float64(done) / float64(total) * 100
		e.progress(percent, path)
	})
	if err != nil {
		e.fail(job, stageError(ctx, err))
		return
	}
	job.ArchivePath = archivePath

	if job.Upload {
		e.transition(job, model.JobStatusUploading, "uploading "+filepath.Base(archivePath), 100)

		ref, err := e.uploadArchive(ctx, job, archivePath)
		if err != nil {
			// The local archive stays on disk; only the remote step failed.
			e.fail(job, stageError(ctx, err))
			return
		}
		job.RemoteRef = ref
	}

	e.complete(job)
}

func (e *Engine) uploadArchive(ctx context.Context, job *model.BackupJob, archivePath string) (string, error) {
	r, err := e.newRemote(ctx, job.Remote)
	if err != nil {
		return "", err
	}

	return e.upload(ctx, r, archivePath, uint64(e.cfg.UploadRetries))
}

func (e *Engine) transition(job *model.BackupJob, status model.JobStatus, detail string, percent float64) {
	job.Status = status
	if err := e.repo.UpdateStatus(job.ID, status); err != nil {
		logger.Log.Warn("failed to persist job status",
			zap.Uint("id", job.ID),
			zap.Error(err))
	}

	e.mu.Lock()
	e.snap.Status = status
	e.snap.Detail = detail
	e.snap.Percent = percent
	snap := e.snap
	e.mu.Unlock()

	e.emit(snap)

	logger.Log.Info("job status",
		zap.Uint("id", job.ID),
		zap.String("status", string(status)))
}

func (e *Engine) progress(percent float64, detail string) {
	e.mu.Lock()
	e.snap.Percent = percent
	e.snap.Detail = detail
	snap := e.snap
	e.mu.Unlock()

	e.emit(snap)
}

func (e *Engine) complete(job *model.BackupJob) {
	now := time.Now()
	job.Status = model.JobStatusCompleted
	job.FinishedAt = &now
	job.Password = ""
	e.persistResult(job)

	e.mu.Lock()
	e.snap.Status = model.JobStatusCompleted
	e.snap.Detail = job.ArchivePath
	e.snap.Percent = 100
	e.snap.FinishedAt = &now
	snap := e.snap
	e.mu.Unlock()

	e.emit(snap)

	logger.Log.Info("backup completed",
		zap.Uint("id", job.ID),
		zap.String("archive", job.ArchivePath),
		zap.String("remote_ref", job.RemoteRef))
}

func (e *Engine) fail(job *model.BackupJob, err error) {
	now := time.Now()
	job.Status = model.JobStatusFailed
	job.Error = err.Error()
	job.FinishedAt = &now
	job.Password = ""
	e.persistResult(job)

	e.mu.Lock()
	e.snap.Status = model.JobStatusFailed
	e.snap.Error = job.Error
	e.snap.FinishedAt = &now
	snap := e.snap
	e.mu.Unlock()

	e.emit(snap)

	logger.Log.Error("backup failed",
		zap.Uint("id", job.ID),
		zap.Error(err))
}

func (e *Engine) persistResult(job *model.BackupJob) {
	if err := e.repo.RecordResult(job); err != nil {
		logger.Log.Warn("failed to persist job result",
			zap.Uint("id", job.ID),
			zap.Error(err))
	}
}

func (e *Engine) release() {
	e.mu.Lock()
	e.active = false
	e.cancel = nil
	e.mu.Unlock()
}

func (e *Engine) emit(snap model.JobSnapshot) {
	select {
	case e.events <- snap:
	default:
	}
}

func stageError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	return err
}
