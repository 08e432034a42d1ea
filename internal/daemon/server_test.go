package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"packrat/internal/config"
	"packrat/internal/db"
	"packrat/internal/engine"
	"packrat/internal/model"
	"packrat/internal/scheduler"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	require.NoError(t, db.Init(filepath.Join(t.TempDir(), "test.db")))

	cfg := &config.Config{
		DefaultDestination: t.TempDir(),
		Remote:             "gdrive",
		RemoteFolder:       "packrat",
		UploadChunkMB:      8,
		UploadRetries:      3,
	}

	eng := engine.New(cfg)
	sched := scheduler.New(eng.Submit)
	t.Cleanup(sched.Stop)

	return NewServer(eng, sched, 0)
}

func makeSource(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "docs")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0644))
	return src
}

func doJSON(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func waitIdle(t *testing.T, s *Server) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, active := s.engine.Snapshot()
		return !active
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubmit_Created(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(s, http.MethodPost, "/jobs", `{"source_path":"`+makeSource(t)+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var job model.BackupJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.NotZero(t, job.ID)

	waitIdle(t, s)
}

func TestSubmit_MissingSource(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(s, http.MethodPost, "/jobs", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmit_ValidationFailureIsBadRequest(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(s, http.MethodPost, "/jobs", `{"source_path":"/does/not/exist"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "source folder not found")
}

func TestSubmit_EncryptWithoutPassword(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(s, http.MethodPost, "/jobs", `{"source_path":"`+makeSource(t)+`","encrypt":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "password required")
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["active"])
	assert.NotContains(t, resp, "job")
}

func TestHistory(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(s, http.MethodPost, "/jobs", `{"source_path":"`+makeSource(t)+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	waitIdle(t, s)

	rec = doJSON(s, http.MethodGet, "/history?n=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []model.BackupJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobStatusCompleted, jobs[0].Status)
}

func TestCancel_NothingRunning(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(s, http.MethodPost, "/jobs/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestScheduleEnableDisable(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(s, http.MethodPost, "/schedule", `{"time_of_day":"02:00","source_path":"/tmp/docs"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap model.ScheduleSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.True(t, snap.Enabled)
	assert.Equal(t, "02:00", snap.TimeOfDay)

	rec = doJSON(s, http.MethodDelete, "/schedule", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.False(t, snap.Enabled)
}

func TestScheduleEnable_BadTime(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(s, http.MethodPost, "/schedule", `{"time_of_day":"2am","source_path":"/tmp/docs"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleEnable_ReusesLastSubmit(t *testing.T) {
	s := newTestServer(t)
	src := makeSource(t)

	rec := doJSON(s, http.MethodPost, "/jobs", `{"source_path":"`+src+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	waitIdle(t, s)

	rec = doJSON(s, http.MethodPost, "/schedule", `{"time_of_day":"03:30"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap model.ScheduleSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.True(t, snap.Enabled)
}

func TestScheduleEnable_NoSourceAnywhere(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(s, http.MethodPost, "/schedule", `{"time_of_day":"03:30"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in     string
		hour   int
		minute int
		ok     bool
	}{
		{"02:00", 2, 0, true},
		{"23:59", 23, 59, true},
		{"00:00", 0, 0, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"2:00", 0, 0, false},
		{"02-00", 0, 0, false},
		{"ab:cd", 0, 0, false},
		{"", 0, 0, false},
	}

	for _, tc := range cases {
		h, m, ok := parseTimeOfDay(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.hour, h, tc.in)
			assert.Equal(t, tc.minute, m, tc.in)
		}
	}
}
