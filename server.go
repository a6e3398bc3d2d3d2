package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"task-api/internal/errorx"
	"task-api/internal/logger"
	"task-api/internal/manager"
	"task-api/internal/middleware"
	"task-api/internal/validate"
)

const defaultMaxBodyBytes = 1 << 20

type options struct {
	corsOrigins  []string
	maxBodyBytes int64
}

type Option func(*options)

// WithCORS allows cross-origin requests from origins. "*" allows any.
func WithCORS(origins []string) Option {
	return func(o *options) {
		o.corsOrigins = origins
	}
}

// WithMaxBodyBytes caps request bodies. Larger payloads are rejected as malformed.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodyBytes = n
		}
	}
}

func NewRouter(tm *manager.TaskManager, opts ...Option) *chi.Mux {
	o := options{maxBodyBytes: defaultMaxBodyBytes}
	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)
	if len(o.corsOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: o.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler)
	}

	h := &handlers{tm: tm, maxBodyBytes: o.maxBodyBytes}

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", h.createTask)
		r.Get("/", h.getTasks)
		r.Get("/{id}", h.getTask)
		r.Patch("/{id}", h.updateTask)
		r.Delete("/{id}", h.deleteTask)
	})

	r.Post("/tasks_bulk", h.createTasks)
	r.Patch("/tasks_bulk", h.updateTasks)
	r.Delete("/tasks_bulk", h.deleteTasks)
	r.Patch("/tasks_bulk_completed", h.completeTasks)

	return r
}

type handlers struct {
	tm           *manager.TaskManager
	maxBodyBytes int64
}

func (h *handlers) createTask(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	task, err := h.tm.CreateTask(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *handlers) createTasks(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	tasks, err := h.tm.CreateTasks(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tasks)
}

func (h *handlers) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.tm.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// getTasks reads the ids to fetch from the request body.
func (h *handlers) getTasks(w http.ResponseWriter, r *http.Request) {
	ids, ok := h.readIDs(w, r)
	if !ok {
		return
	}
	tasks, err := h.tm.GetTasks(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	task, err := h.tm.UpdateTask(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *handlers) updateTasks(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	tasks, err := h.tm.UpdateTasks(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *handlers) completeTasks(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	summary, err := h.tm.CompleteTasks(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.tm.DeleteTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *handlers) deleteTasks(w http.ResponseWriter, r *http.Request) {
	ids, ok := h.readIDs(w, r)
	if !ok {
		return
	}
	summary, err := h.tm.DeleteTasks(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.tm.Ping(ctx); err != nil {
		logger.Error(ctx, err, "store ping failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readBody returns the request body, writing the error response itself
// when it cannot be read.
func (h *handlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, errorx.MalformedErrorf("payload exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}
		writeError(w, r, errorx.MalformedErrorf("failed to read payload"))
		return nil, false
	}
	return body, true
}

func (h *handlers) readIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	body, ok := h.readBody(w, r)
	if !ok {
		return nil, false
	}
	ids, err := validate.ParseIDs(body)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return ids, true
}

// writeError maps the error taxonomy onto HTTP. Validation errors carry a
// JSON body; not-found and internal errors are bare status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := errorx.As(err)
	switch {
	case ok && e.Type == errorx.ErrorTypeInvalidArgument:
		writeJSON(w, http.StatusBadRequest, e)
	case ok && e.Type == errorx.ErrorTypeNotFound:
		w.WriteHeader(http.StatusNotFound)
	default:
		kv := []any{"method", r.Method, "path", r.URL.Path}
		if ok && e.OriginalError != nil {
			kv = append(kv, "cause", e.OriginalError.Error())
		}
		logger.Error(r.Context(), err, "request failed", kv...)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error(context.Background(), err, "failed to encode response")
	}
}
