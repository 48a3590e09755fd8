package task

import (
	"context"
	"slices"
	"time"

	"github.com/phrazzld/paddleocr-webui/internal/ocr"
)

// Status is the lifecycle state of a task or an item.
type Status string

// Possible status values. Items use every value; tasks never stay running
// once all their items finished.
const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusCanceled:
		return true
	case StatusQueued, StatusRunning:
		return false
	default:
		return false
	}
}

// Task is one user-submitted batch of files.
type Task struct {
	ID        string
	CreatedAt time.Time
	Status    Status
	Message   string

	Total    int
	Done     int
	Failed   int
	Canceled int

	// Items are kept in enqueue order.
	Items []Item
}

// Finished reports whether every item reached a terminal state.
func (t *Task) Finished() bool {
	return t.Done+t.Failed+t.Canceled >= t.Total
}

func (t *Task) clone() Task {
	c := *t
	c.Items = make([]Item, len(t.Items))
	for i := range t.Items {
		c.Items[i] = t.Items[i].clone()
	}
	return c
}

// Item is one file within a task.
type Item struct {
	ID        string
	Filename  string
	RelPath   string
	Size      int64
	Status    Status
	Error     string
	OutputDir string

	MarkdownFiles []string
	AssetFiles    []string
}

func (i *Item) clone() Item {
	c := *i
	c.MarkdownFiles = slices.Clone(i.MarkdownFiles)
	c.AssetFiles = slices.Clone(i.AssetFiles)
	return c
}

// FileSpec describes a file to enqueue.
type FileSpec struct {
	// LocalPath is where the uploaded bytes currently live.
	LocalPath string

	// Filename is the sanitized display name.
	Filename string

	// RelPath preserves folder structure for folder uploads.
	RelPath string

	Size int64

	// ForceAsync sends images through the submit/poll/download path.
	ForceAsync bool

	Options ocr.Options
}

// Job is the unit handed to workers. It is immutable once enqueued.
type Job struct {
	TaskID     string
	ItemID     string
	LocalPath  string
	Filename   string
	RelPath    string
	ForceAsync bool
	Options    ocr.Options
}

// Gateway performs recognition calls against the remote OCR service.
type Gateway interface {
	// SubmitSync recognizes a file in one request.
	SubmitSync(ctx context.Context, data []byte, fileType ocr.FileType, opts ocr.Options) (*ocr.Result, error)

	// SubmitJob starts an asynchronous job and returns its id.
	SubmitJob(ctx context.Context, filePath string, opts ocr.Options) (string, error)

	// PollJob waits for a job to finish. It must return ocr.ErrCanceled once
	// shouldCancel reports true.
	PollJob(ctx context.Context, jobID string, poll ocr.PollConfig, shouldCancel func() bool) (*ocr.JobStatus, error)

	// Download fetches a finished job's JSONL output.
	Download(ctx context.Context, url string) (string, error)
}

// Materializer writes one OCR result into dir.
type Materializer interface {
	Materialize(ctx context.Context, result *ocr.Result, dir string) (ocr.Materialized, error)
}
