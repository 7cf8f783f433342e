package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ccgen/internal/fileutil"
	"ccgen/internal/logging"
	"ccgen/internal/models"
	"ccgen/internal/progress"
	"ccgen/internal/runner"
	"ccgen/internal/subtitles"
	"ccgen/internal/tasks"
	"ccgen/internal/transcript"
)

const resultsNotReady = "Results not found or task still in progress"

type submitResponse struct {
	TaskID string `json:"task_id"`
}

type resultsResponse struct {
	TaskID   string               `json:"task_id"`
	SRTFile  string               `json:"srt_file,omitempty"`
	Segments []transcript.Segment `json:"segments"`
}

type taskListResponse struct {
	Tasks []tasks.Summary `json:"tasks"`
}

type modelListResponse struct {
	Models []models.Status `json:"models"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	// A large upload can take longer than the write timeout; the task id
	// must still reach the client.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "expected multipart form with a file field")
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	model := strings.TrimSpace(r.FormValue("model"))
	if model != "" {
		if _, err := models.Resolve(model); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	path, size, err := fileutil.SaveUpload(s.opts.UploadsDir, header.Filename, file)
	if err != nil {
		if errors.Is(err, fileutil.ErrInvalidName) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.requestLogger(r).Error("upload save failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	id, err := s.runner.Submit(runner.Submission{FilePath: path, Model: model, Name: filepath.Base(path)})
	if err != nil {
		_ = os.Remove(path)
		s.requestLogger(r).Error("task submission failed", logging.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.requestLogger(r).Info("transcription submitted",
		logging.String(logging.FieldTaskID, id),
		logging.String("file", filepath.Base(path)),
		logging.Int64("bytes", size),
	)
	s.writeJSON(w, http.StatusOK, submitResponse{TaskID: id})
}

// handleStatus streams log and progress events until the task is terminal
// or the client goes away.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	progress.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	sse := progress.NewSSEWriter(w)
	err := progress.Stream(r.Context(), s.registry, id, s.opts.PollInterval, sse.Emit)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.requestLogger(r).Debug("status stream ended early",
			logging.String(logging.FieldTaskID, id),
			logging.Error(err),
		)
	}
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, err := s.registry.Get(id)
	if err != nil || task.Status != tasks.StatusDone || task.Result == nil {
		s.writeError(w, http.StatusNotFound, resultsNotReady)
		return
	}
	resp := resultsResponse{TaskID: task.ID, Segments: task.Result}
	if task.Output != "" {
		resp.SRTFile = filepath.Base(task.Output)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTaskList(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, taskListResponse{Tasks: s.registry.List()})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	task.Result = nil
	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		s.requestLogger(r).Error("model listing failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list models")
		return
	}
	s.writeJSON(w, http.StatusOK, modelListResponse{Models: list})
}

func (s *Server) handleModelDownload(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	id, err := s.runner.SubmitDownload(key)
	switch {
	case errors.Is(err, models.ErrUnknownModel):
		s.writeError(w, http.StatusNotFound, "Model not found")
		return
	case err != nil:
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, submitResponse{TaskID: id})
}

func (s *Server) handleModelDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if _, ok := models.Lookup(key); !ok {
		s.writeError(w, http.StatusNotFound, "Model not found")
		return
	}
	err := s.store.Delete(r.Context(), key)
	switch {
	case errors.Is(err, models.ErrNotDownloaded):
		s.writeError(w, http.StatusNotFound, "Model not downloaded")
		return
	case errors.Is(err, models.ErrBusy):
		s.writeError(w, http.StatusConflict, "Model download in progress")
		return
	case err != nil:
		s.requestLogger(r).Error("model delete failed", logging.String(logging.FieldModel, key), logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to delete model")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success", "model": key})
}

// handleUpload serves a generated subtitle file once, then removes it. HEAD,
// range and conditional requests leave the file in place.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") ||
		!strings.EqualFold(filepath.Ext(name), subtitles.Extension) {
		s.writeError(w, http.StatusNotFound, "File not found")
		return
	}
	path := filepath.Join(s.opts.UploadsDir, name)
	f, err := os.Open(path)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "File not found")
		return
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		_ = f.Close()
		s.writeError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", "application/x-subrip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	cw := &countingWriter{ResponseWriter: w}
	http.ServeContent(cw, r, name, info.ModTime(), f)
	_ = f.Close()

	if r.Method != http.MethodGet || cw.status != http.StatusOK || cw.written != info.Size() {
		return
	}
	if err := os.Remove(path); err != nil {
		logging.WarnWithContext(s.requestLogger(r), "subtitle cleanup failed", "artifact_cleanup_failure",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "subtitle file stays in the uploads directory"),
		)
		return
	}
	s.requestLogger(r).Debug("served and removed subtitle file", logging.String("path", path))
}

// countingWriter records the status and body bytes of a response.
type countingWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (c *countingWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	n, err := c.ResponseWriter.Write(p)
	c.written += int64(n)
	return n, err
}

func (c *countingWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
