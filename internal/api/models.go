package api

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/phrazzld/paddleocr-webui/internal/task"
)

// CreatedItem describes one accepted upload.
type CreatedItem struct {
	ItemID   string `json:"itemId"`
	Filename string `json:"filename"`
	RelPath  string `json:"relpath"`
	Status   string `json:"status"`
}

// CreateTaskResponse is returned by POST /api/tasks.
type CreateTaskResponse struct {
	TaskID string        `json:"taskId"`
	Items  []CreatedItem `json:"items"`
}

// TaskResponse is the progress summary of a task.
type TaskResponse struct {
	TaskID    string    `json:"taskId"`
	Status    string    `json:"status"`
	Total     int       `json:"total"`
	Done      int       `json:"done"`
	Failed    int       `json:"failed"`
	Canceled  int       `json:"canceled"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// CancelResponse is returned by the cancel endpoint.
type CancelResponse struct {
	TaskID  string `json:"taskId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ItemResponse is the full state of one file. MarkdownFiles and Assets are
// relative to the item's output directory and use forward slashes.
type ItemResponse struct {
	ItemID        string   `json:"itemId"`
	Filename      string   `json:"filename"`
	RelPath       string   `json:"relpath"`
	Size          int64    `json:"size"`
	Status        string   `json:"status"`
	Error         string   `json:"error"`
	MarkdownFiles []string `json:"mdFiles"`
	Assets        []string `json:"assets"`
}

// ItemsResponse lists every item of a task in upload order.
type ItemsResponse struct {
	TaskID string         `json:"taskId"`
	Items  []ItemResponse `json:"items"`
}

// MarkdownResponse carries the primary markdown file of an item.
type MarkdownResponse struct {
	ItemID string `json:"itemId"`
	MD     string `json:"md"`
}

func taskToResponse(t task.Task) TaskResponse {
	return TaskResponse{
		TaskID:    t.ID,
		Status:    string(t.Status),
		Total:     t.Total,
		Done:      t.Done,
		Failed:    t.Failed,
		Canceled:  t.Canceled,
		Message:   t.Message,
		CreatedAt: t.CreatedAt,
	}
}

func itemToResponse(it task.Item) ItemResponse {
	return ItemResponse{
		ItemID:        it.ID,
		Filename:      it.Filename,
		RelPath:       it.RelPath,
		Size:          it.Size,
		Status:        string(it.Status),
		Error:         it.Error,
		MarkdownFiles: relativeTo(it.OutputDir, it.MarkdownFiles),
		Assets:        relativeTo(it.OutputDir, it.AssetFiles),
	}
}

// relativeTo rewrites paths relative to base. The result is never nil so it
// encodes as an empty JSON array.
func relativeTo(base string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(base, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = filepath.Base(p)
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}
