package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meetpipe/meetpipe/internal/database"
	"github.com/meetpipe/meetpipe/internal/export"
	"github.com/meetpipe/meetpipe/internal/pipeline"
	"github.com/meetpipe/meetpipe/internal/task"
)

// TaskHandler exposes the pipeline over HTTP. Stage advancement is
// explicit and caller-driven: one POST runs one stage operation. The
// handler honors the controller's busy gate, rejecting a second
// operation on a task that already has one in flight.
type TaskHandler struct {
	ctrl  *pipeline.Controller
	store pipeline.Store
	log   zerolog.Logger
}

// NewTaskHandler creates the task endpoint handler.
func NewTaskHandler(ctrl *pipeline.Controller, store pipeline.Store, log zerolog.Logger) *TaskHandler {
	return &TaskHandler{ctrl: ctrl, store: store, log: log}
}

// Routes mounts the task endpoints on r.
func (h *TaskHandler) Routes(r chi.Router) {
	r.Post("/tasks", h.Create)
	r.Get("/tasks", h.List)
	r.Get("/tasks/{id}", h.Get)
	r.Get("/tasks/{id}/export", h.Export)
	r.Post("/tasks/{id}/advance", h.stage(""))
	r.Post("/tasks/{id}/transcode", h.stage("transcode"))
	r.Post("/tasks/{id}/upload", h.stage("upload"))
	r.Post("/tasks/{id}/submit", h.stage("submit"))
	r.Post("/tasks/{id}/poll", h.stage("poll"))
}

// taskResponse decorates a task record with its in-flight flag.
type taskResponse struct {
	*task.MeetingTask
	Busy bool `json:"busy"`
}

func (h *TaskHandler) respond(w http.ResponseWriter, status int, t *task.MeetingTask) {
	WriteJSON(w, status, taskResponse{MeetingTask: t, Busy: h.ctrl.Busy(t.ID)})
}

type createRequest struct {
	AudioPath string `json:"audio_path"`
	Title     string `json:"title"`
}

// Create registers a recording or imported audio file as a new task.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AudioPath == "" {
		WriteError(w, http.StatusBadRequest, "audio_path is required")
		return
	}

	t, err := h.ctrl.Create(r.Context(), req.AudioPath, req.Title)
	if err != nil {
		h.log.Error().Err(err).Msg("create task")
		WriteError(w, http.StatusInternalServerError, "failed to create task")
		return
	}
	h.respond(w, http.StatusCreated, t)
}

// List returns all tasks, newest first.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list tasks")
		WriteError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskResponse{MeetingTask: t, Busy: h.ctrl.Busy(t.ID)})
	}
	WriteJSON(w, http.StatusOK, out)
}

// Get returns one task.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, t)
}

// Export renders the task's canonical result as a markdown document.
func (h *TaskHandler) Export(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(export.Markdown(t)))
}

// stage builds a handler running one named stage operation, or — for the
// empty name — whichever operation the task's current status calls for.
// A mismatched guard is a no-op, so re-invoking the current action is
// always safe.
func (h *TaskHandler) stage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := h.load(w, r)
		if !ok {
			return
		}
		if h.ctrl.Busy(t.ID) {
			WriteError(w, http.StatusConflict, "operation already in flight")
			return
		}

		var err error
		switch name {
		case "transcode":
			err = h.ctrl.Transcode(r.Context(), t)
		case "upload":
			err = h.ctrl.Upload(r.Context(), t)
		case "submit":
			err = h.ctrl.Submit(r.Context(), t)
		case "poll":
			err = h.ctrl.Poll(r.Context(), t)
		default:
			err = h.ctrl.Advance(r.Context(), t)
		}
		if err != nil {
			h.log.Error().Err(err).Stringer("task", t.ID).Msg("stage operation")
			WriteError(w, http.StatusInternalServerError, "failed to persist transition")
			return
		}
		h.respond(w, http.StatusOK, t)
	}
}

// load parses the id path param and fetches the task.
func (h *TaskHandler) load(w http.ResponseWriter, r *http.Request) (*task.MeetingTask, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid task id")
		return nil, false
	}
	t, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "task not found")
			return nil, false
		}
		h.log.Error().Err(err).Stringer("task", id).Msg("load task")
		WriteError(w, http.StatusInternalServerError, "failed to load task")
		return nil, false
	}
	return t, true
}
