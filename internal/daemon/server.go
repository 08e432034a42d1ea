package daemon

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"packrat/internal/archive"
	"packrat/internal/auth"
	"packrat/internal/engine"
	"packrat/internal/logger"
	"packrat/internal/model"
	"packrat/internal/preflight"
	"packrat/internal/repository"
	"packrat/internal/scheduler"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Server exposes the engine and scheduler to local clients (the CLI or a
// GUI). It renders state; it never drives the pipeline itself.
type Server struct {
	echo    *echo.Echo
	engine  *engine.Engine
	sched   *scheduler.Scheduler
	jobRepo *repository.JobRepository
	port    int
	stopCh  chan struct{}

	mu      sync.Mutex
	lastReq *model.TriggerRequest
}

func NewServer(eng *engine.Engine, sched *scheduler.Scheduler, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		engine:  eng,
		sched:   sched,
		jobRepo: repository.NewJobRepository(),
		port:    port,
		stopCh:  make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/stop", s.handleStop)

	g := s.echo.Group("/jobs")
	g.POST("", s.handleSubmit)
	g.POST("/cancel", s.handleCancel)

	s.echo.GET("/history", s.handleHistory)

	s.echo.POST("/schedule", s.handleScheduleEnable)
	s.echo.DELETE("/schedule", s.handleScheduleDisable)
}

func (s *Server) Start() {
	go func() {
		addr := ":" + strconv.Itoa(s.port)
		logger.Log.Info("daemon server started", zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	s.sched.Stop()
	if err := s.engine.Stop(ctx); err != nil {
		logger.Log.Warn("shutting down with a job still in flight", zap.Error(err))
	}
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func (s *Server) handleStatus(c echo.Context) error {
	snap, active := s.engine.Snapshot()

	resp := map[string]any{
		"active":   active,
		"schedule": s.sched.Snapshot(),
	}
	if snap.JobID != 0 {
		resp["job"] = snap
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSubmit(c echo.Context) error {
	var req model.TriggerRequest
	if err := c.Bind(&req); err != nil || req.SourcePath == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "source_path required"})
	}

	job, err := s.engine.Submit(req)
	switch {
	case errors.Is(err, engine.ErrBusy):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case isValidationError(err):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	s.mu.Lock()
	s.lastReq = &req
	s.mu.Unlock()

	return c.JSON(http.StatusCreated, job)
}

func (s *Server) handleCancel(c echo.Context) error {
	if err := s.engine.Cancel(); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "cancelling"})
}

func (s *Server) handleHistory(c echo.Context) error {
	n, err := strconv.Atoi(c.QueryParam("n"))
	if err != nil || n <= 0 {
		n = 20
	}

	jobs, err := s.jobRepo.Recent(n)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, jobs)
}

type scheduleRequest struct {
	TimeOfDay string `json:"time_of_day"`
	model.TriggerRequest
}

func (s *Server) handleScheduleEnable(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	hour, minute, ok := parseTimeOfDay(req.TimeOfDay)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "time_of_day must be HH:MM"})
	}

	trigger := req.TriggerRequest
	if trigger.SourcePath == "" {
		s.mu.Lock()
		if s.lastReq != nil {
			trigger = *s.lastReq
		}
		s.mu.Unlock()
	}

	if err := s.sched.Enable(hour, minute, trigger); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, s.sched.Snapshot())
}

func (s *Server) handleScheduleDisable(c echo.Context) error {
	s.sched.Disable()
	return c.JSON(http.StatusOK, s.sched.Snapshot())
}

func (s *Server) handleStop(c echo.Context) error {
	s.stopCh <- struct{}{}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func isValidationError(err error) bool {
	return errors.Is(err, preflight.ErrSourceNotFound) ||
		errors.Is(err, preflight.ErrDestinationNotWritable) ||
		errors.Is(err, preflight.ErrInsufficientSpace) ||
		errors.Is(err, archive.ErrPasswordRequired) ||
		errors.Is(err, auth.ErrCredentialsMissing)
}

func parseTimeOfDay(v string) (hour, minute int, ok bool) {
	if len(v) != 5 || v[2] != ':' {
		return 0, 0, false
	}

	h, err := strconv.Atoi(v[:2])
	if err != nil {
		return 0, 0, false
	}

	m, err := strconv.Atoi(v[3:])
	if err != nil {
		return 0, 0, false
	}

	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}

	return h, m, true
}
