// Package scheduler arms a single recurring daily trigger that feeds the
// same submit entry point the manual path uses.
package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"packrat/internal/engine"
	"packrat/internal/logger"
	"packrat/internal/model"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var ErrBadTime = errors.New("time_of_day must be HH:MM")

type SubmitFunc func(model.TriggerRequest) (*model.BackupJob, error)

type Scheduler struct {
	submit SubmitFunc

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	enabled bool
	hour    int
	minute  int
	req     model.TriggerRequest
}

func New(submit SubmitFunc) *Scheduler {
	s := &Scheduler{
		submit: submit,
		cron:   cron.New(),
	}
	s.cron.Start()
	return s
}

// Enable arms the daily trigger, replacing any previous schedule; at most
// one schedule exists at a time. The request is replayed as-is each day.
// A run missed while the process was down waits for the next scheduled
// time; nothing fires at startup.
func (s *Scheduler) Enable(hour, minute int, req model.TriggerRequest) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("%w: %02d:%02d", ErrBadTime, hour, minute)
	}
	if req.SourcePath == "" {
		return errors.New("schedule needs a source_path")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enabled {
		s.cron.Remove(s.entryID)
	}

	id, err := s.cron.AddFunc(fmt.Sprintf("%d %d * * *", minute, hour), s.fire)
	if err != nil {
		return fmt.Errorf("failed to arm schedule: %w", err)
	}

	s.entryID = id
	s.enabled = true
	s.hour = hour
	s.minute = minute
	s.req = req

	logger.Log.Info("schedule armed",
		zap.String("time_of_day", fmt.Sprintf("%02d:%02d", hour, minute)),
		zap.String("src", req.SourcePath))

	return nil
}

// Disable disarms the schedule. A job already in progress keeps running.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return
	}

	s.cron.Remove(s.entryID)
	s.enabled = false

	logger.Log.Info("schedule disabled")
}

func (s *Scheduler) Snapshot() model.ScheduleSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return model.ScheduleSnapshot{}
	}

	snap := model.ScheduleSnapshot{
		Enabled:   true,
		TimeOfDay: fmt.Sprintf("%02d:%02d", s.hour, s.minute),
	}

	if entry := s.cron.Entry(s.entryID); entry.Valid() {
		next := entry.Next
		snap.Next = &next
	}

	return snap
}

// Stop tears the wait loop down at process exit. Like Disable, it never
// cancels an in-flight job.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
	}
}

// fire submits the captured job configuration. A busy engine means the
// trigger is dropped, not queued; any failure leaves the schedule armed
// for the next day.
func (s *Scheduler) fire() {
	s.mu.Lock()
	req := s.req
	s.mu.Unlock()

	job, err := s.submit(req)
	switch {
	case errors.Is(err, engine.ErrBusy):
		logger.Log.Warn("scheduled backup skipped, another job is in progress",
			zap.String("src", req.SourcePath))
	case err != nil:
		logger.Log.Error("scheduled backup rejected",
			zap.String("src", req.SourcePath),
			zap.Error(err))
	default:
		logger.Log.Info("scheduled backup started",
			zap.Uint("id", job.ID),
			zap.String("src", req.SourcePath))
	}
}
