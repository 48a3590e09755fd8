package api

import (
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/paddleocr-webui/internal/api/shared"
	"github.com/phrazzld/paddleocr-webui/internal/archive"
	"github.com/phrazzld/paddleocr-webui/internal/markdown"
	"github.com/phrazzld/paddleocr-webui/internal/platform/logger"
	"github.com/phrazzld/paddleocr-webui/internal/storage"
	"github.com/phrazzld/paddleocr-webui/internal/task"
)

// TaskService is the part of the job queue the HTTP layer drives.
type TaskService interface {
	CreateTask() task.Task
	EnqueueBatch(taskID string, specs []task.FileSpec) ([]task.Item, error)
	GetTask(taskID string) (task.Task, error)
	GetItem(taskID, itemID string) (task.Item, error)
	CancelTask(taskID string) error
}

// TaskHandlerConfig holds the handler's settings.
type TaskHandlerConfig struct {
	Limits UploadLimits

	// Ready reports whether the OCR gateway can accept work. Uploads are
	// rejected while it returns an error.
	Ready func() error
}

// TaskHandler serves task creation, progress, cancellation and outputs.
type TaskHandler struct {
	tasks    TaskService
	layout   storage.Layout
	renderer *markdown.Renderer
	config   TaskHandlerConfig
	logger   *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(
	tasks TaskService,
	layout storage.Layout,
	renderer *markdown.Renderer,
	config TaskHandlerConfig,
	logger *slog.Logger,
) (*TaskHandler, error) {
	if tasks == nil {
		return nil, errors.New("task service cannot be nil")
	}
	if renderer == nil {
		return nil, errors.New("markdown renderer cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := shared.ValidateRequest(config.Limits); err != nil {
		return nil, fmt.Errorf("invalid upload limits: %w", err)
	}
	return &TaskHandler{
		tasks:    tasks,
		layout:   layout,
		renderer: renderer,
		config:   config,
		logger:   logger.With("component", "task_handler"),
	}, nil
}

// RegisterRoutes mounts the task API on r.
func (h *TaskHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/tasks", func(r chi.Router) {
		r.Post("/", h.CreateTask)
		r.Route("/{taskID}", func(r chi.Router) {
			r.Get("/", h.GetTask)
			r.Post("/cancel", h.CancelTask)
			r.Get("/download.zip", h.DownloadZip)
			r.Get("/items", h.ListItems)
			r.Get("/items/{itemID}/md", h.GetItemMarkdown)
			r.Get("/items/{itemID}/html", h.GetItemHTML)
			r.Get("/items/{itemID}/files/*", h.GetItemFile)
		})
	})
}

func (h *TaskHandler) log(r *http.Request) *slog.Logger {
	if l := logger.FromContext(r.Context()); l != nil {
		return l.With("component", "task_handler")
	}
	return h.logger
}

// CreateTask handles POST /api/tasks. Every file is validated before the
// task is created, and all files are enqueued in one step.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	if h.config.Ready != nil {
		if err := h.config.Ready(); err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
	}

	form, err := parseUploadForm(w, r, h.config.Limits)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.log(r).Warn("failed to remove multipart temp files", "error", err)
		}
	}()

	t := h.tasks.CreateTask()
	log := h.log(r).With("task_id", t.ID)

	specs, err := saveUploads(h.layout, t.ID, form)
	if err != nil {
		h.abandon(log, t.ID)
		HandleAPIError(w, r, err, "Failed to store uploaded files")
		return
	}

	items, err := h.tasks.EnqueueBatch(t.ID, specs)
	if err != nil {
		h.abandon(log, t.ID)
		HandleAPIError(w, r, err, "Failed to enqueue files")
		return
	}

	resp := CreateTaskResponse{TaskID: t.ID, Items: make([]CreatedItem, 0, len(items))}
	for _, it := range items {
		resp.Items = append(resp.Items, CreatedItem{
			ItemID:   it.ID,
			Filename: it.Filename,
			RelPath:  it.RelPath,
			Status:   string(it.Status),
		})
	}
	log.Info("task submitted", "files", len(items), "force_async", form.ForceAsync)
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// abandon cancels a task whose upload could not be completed so it does not
// linger as queued.
func (h *TaskHandler) abandon(log *slog.Logger, taskID string) {
	if err := h.tasks.CancelTask(taskID); err != nil {
		log.Warn("failed to cancel abandoned task", "error", err)
	}
}

// GetTask handles GET /api/tasks/{taskID}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.GetTask(chi.URLParam(r, "taskID"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// CancelTask handles POST /api/tasks/{taskID}/cancel.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := h.tasks.CancelTask(taskID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	t, err := h.tasks.GetTask(taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	h.log(r).Info("task cancel requested", "task_id", taskID, "status", t.Status)
	shared.RespondWithJSON(w, r, http.StatusOK, CancelResponse{
		TaskID:  t.ID,
		Status:  string(t.Status),
		Message: t.Message,
	})
}

// ListItems handles GET /api/tasks/{taskID}/items.
func (h *TaskHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.GetTask(chi.URLParam(r, "taskID"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	resp := ItemsResponse{TaskID: t.ID, Items: make([]ItemResponse, 0, len(t.Items))}
	for _, it := range t.Items {
		resp.Items = append(resp.Items, itemToResponse(it))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// primaryMarkdown returns the item and the contents of its first markdown
// file, which is merged.md for multi-page results.
func (h *TaskHandler) primaryMarkdown(r *http.Request) (task.Item, string, []byte, error) {
	item, err := h.tasks.GetItem(chi.URLParam(r, "taskID"), chi.URLParam(r, "itemID"))
	if err != nil {
		return task.Item{}, "", nil, err
	}
	if len(item.MarkdownFiles) == 0 {
		return item, "", nil, ErrNoMarkdown
	}
	path := item.MarkdownFiles[0]
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return item, "", nil, fmt.Errorf("%w: markdown file is missing", ErrOutputFileNotFound)
		}
		return item, "", nil, fmt.Errorf("read markdown: %w", err)
	}
	return item, path, data, nil
}

// GetItemMarkdown handles GET /api/tasks/{taskID}/items/{itemID}/md.
func (h *TaskHandler) GetItemMarkdown(w http.ResponseWriter, r *http.Request) {
	item, _, data, err := h.primaryMarkdown(r)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read markdown")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, MarkdownResponse{ItemID: item.ID, MD: string(data)})
}

// GetItemHTML handles GET /api/tasks/{taskID}/items/{itemID}/html. The page
// base is the item's files route. When the primary file is merged.md the page
// files are rendered one by one so each keeps its own image directory.
func (h *TaskHandler) GetItemHTML(w http.ResponseWriter, r *http.Request) {
	item, path, data, err := h.primaryMarkdown(r)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read markdown")
		return
	}

	var body []byte
	if filepath.Base(path) == task.MergedFileName && len(item.MarkdownFiles) > 1 {
		body, err = h.renderPages(item)
	} else {
		body, err = h.renderer.RenderUnder(data, imageDir(item.OutputDir, path))
	}
	if err != nil {
		HandleAPIError(w, r, err, "Failed to render markdown")
		return
	}

	base := fmt.Sprintf("/api/tasks/%s/items/%s/files/", chi.URLParam(r, "taskID"), item.ID)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err = fmt.Fprintf(w,
		"<!doctype html>\n<html><head><meta charset=\"utf-8\"><base href=\"%s\"><title>%s</title></head>\n<body>\n%s</body></html>\n",
		html.EscapeString(base), html.EscapeString(item.RelPath), body)
	if err != nil {
		h.log(r).Warn("failed to write html preview", "error", err)
	}
}

// renderPages renders the per-page markdown files of a merged result,
// separated by rules the way merged.md separates them.
func (h *TaskHandler) renderPages(item task.Item) ([]byte, error) {
	var out []byte
	for i, path := range item.MarkdownFiles[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: markdown file is missing", ErrOutputFileNotFound)
			}
			return nil, fmt.Errorf("read markdown: %w", err)
		}
		page, err := h.renderer.RenderUnder(data, imageDir(item.OutputDir, path))
		if err != nil {
			return nil, err
		}
		if i > 0 {
			out = append(out, "<hr>\n"...)
		}
		out = append(out, page...)
	}
	return out, nil
}

// imageDir is the directory of path relative to the item's output directory,
// in URL form with a trailing slash, or "" at the top level.
func imageDir(outputDir, path string) string {
	dir := relativeTo(outputDir, []string{filepath.Dir(path)})[0]
	if dir == "." {
		return ""
	}
	return dir + "/"
}

// GetItemFile handles GET /api/tasks/{taskID}/items/{itemID}/files/*, serving
// any file from the item's output directory.
func (h *TaskHandler) GetItemFile(w http.ResponseWriter, r *http.Request) {
	item, err := h.tasks.GetItem(chi.URLParam(r, "taskID"), chi.URLParam(r, "itemID"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	path, ok := storage.ResolveWithin(item.OutputDir, chi.URLParam(r, "*"))
	if !ok {
		HandleAPIError(w, r, ErrOutputFileNotFound, "")
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		HandleAPIError(w, r, ErrOutputFileNotFound, "")
		return
	}
	http.ServeFile(w, r, path)
}

// DownloadZip handles GET /api/tasks/{taskID}/download.zip. It streams the
// whole task directory, so it also works for tasks from a previous run.
func (h *TaskHandler) DownloadZip(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	dir := h.layout.TaskDir(taskID)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		HandleAPIError(w, r, fmt.Errorf("%w: %s", archive.ErrNotDirectory, taskID), "")
		return
	}

	name := storage.SafeSegment(taskID) + ".zip"
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)

	if err := archive.WriteDir(r.Context(), w, dir); err != nil {
		// Headers are gone; the client sees a truncated archive.
		h.log(r).Error("failed to stream task archive", "task_id", taskID, "error", err)
	}
}
