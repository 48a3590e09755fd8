package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/phrazzld/paddleocr-webui/internal/ocr"
	"github.com/phrazzld/paddleocr-webui/internal/redact"
	"github.com/phrazzld/paddleocr-webui/internal/storage"
)

// cancelMessage is stored on a task canceled by its user.
const cancelMessage = "canceled by user"

// Config holds configuration for the job queue.
type Config struct {
	// Concurrency is the number of workers.
	Concurrency int

	// QueueSize is the dispatch buffer. Enqueue fails with ErrQueueFull when
	// a batch does not fit.
	QueueSize int

	// PollInterval is the wait between asynchronous job polls.
	PollInterval time.Duration

	// PollMaxWait fails an asynchronous job that has not finished in time.
	PollMaxWait time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:  2,
		QueueSize:    1024,
		PollInterval: 3 * time.Second,
		PollMaxWait:  15 * time.Minute,
	}
}

// entry is the registry record of one task.
type entry struct {
	task  Task
	index map[string]int
}

func (e *entry) item(itemID string) *Item {
	i, ok := e.index[itemID]
	if !ok {
		return nil
	}
	return &e.task.Items[i]
}

// Queue owns the task registry, the dispatch queue and the worker pool.
type Queue struct {
	gateway      Gateway
	materializer Materializer
	layout       storage.Layout
	config       Config
	logger       *slog.Logger

	// mu guards tasks and every field reachable from it.
	mu    sync.Mutex
	tasks map[string]*entry

	jobs *JobQueue
	pool *WorkerPool

	now func() time.Time
}

// New creates a Queue. Workers are started by Start.
func New(
	gateway Gateway,
	materializer Materializer,
	layout storage.Layout,
	config Config,
	logger *slog.Logger,
) (*Queue, error) {
	if gateway == nil {
		return nil, ErrNilGateway
	}
	if materializer == nil {
		return nil, ErrNilMaterializer
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	defaults := DefaultConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.PollMaxWait <= 0 {
		config.PollMaxWait = defaults.PollMaxWait
	}

	logger = logger.With("component", "job_queue")
	q := &Queue{
		gateway:      gateway,
		materializer: materializer,
		layout:       layout,
		config:       config,
		logger:       logger,
		tasks:        make(map[string]*entry),
		jobs:         NewJobQueue(config.QueueSize, logger),
		now:          time.Now,
	}
	q.pool = NewWorkerPool(q.jobs, WorkerPoolConfig{WorkerCount: config.Concurrency}, q.handle, logger)
	return q, nil
}

// Start launches the worker pool.
func (q *Queue) Start() {
	q.pool.Start()
}

// Stop shuts the pool down and rejects further enqueues. In-flight jobs see
// their context canceled.
func (q *Queue) Stop() {
	q.pool.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs.Close()
}

// Layout returns the output layout used for task directories.
func (q *Queue) Layout() storage.Layout {
	return q.layout
}

// CreateTask registers an empty queued task.
func (q *Queue) CreateTask() Task {
	now := q.now()
	e := &entry{
		task: Task{
			ID:        newTaskID(now),
			CreatedAt: now,
			Status:    StatusQueued,
		},
		index: make(map[string]int),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks[e.task.ID] = e

	q.logger.Info("task created", "task_id", e.task.ID)
	return e.task.clone()
}

// GetTask returns a snapshot of a task.
func (q *Queue) GetTask(taskID string) (Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return e.task.clone(), nil
}

// GetItem returns a snapshot of one item.
func (q *Queue) GetItem(taskID, itemID string) (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.tasks[taskID]
	if !ok {
		return Item{}, ErrTaskNotFound
	}
	item := e.item(itemID)
	if item == nil {
		return Item{}, ErrItemNotFound
	}
	return item.clone(), nil
}

// Enqueue adds one file to a task.
func (q *Queue) Enqueue(taskID string, spec FileSpec) (Item, error) {
	items, err := q.EnqueueBatch(taskID, []FileSpec{spec})
	if err != nil {
		return Item{}, err
	}
	return items[0], nil
}

// EnqueueBatch adds files to a task atomically: either every file gets an
// item and a dispatched job, or nothing changes. Items and the Total counter
// change in the same critical section as the dispatch.
func (q *Queue) EnqueueBatch(taskID string, specs []FileSpec) ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.jobs.Closed() {
		return nil, ErrQueueClosed
	}
	e, ok := q.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if e.task.Status.Terminal() {
		return nil, fmt.Errorf("%w: status %s", ErrTaskClosed, e.task.Status)
	}
	if free := q.jobs.Free(); free < len(specs) {
		return nil, fmt.Errorf("%w: %d files, %d slots free", ErrQueueFull, len(specs), free)
	}

	origLen := len(e.task.Items)
	rollback := func() {
		for _, it := range e.task.Items[origLen:] {
			delete(e.index, it.ID)
		}
		e.task.Items = e.task.Items[:origLen]
		e.task.Total = origLen
	}

	created := make([]Item, 0, len(specs))
	for _, spec := range specs {
		itemID := newItemID()
		item := Item{
			ID:        itemID,
			Filename:  spec.Filename,
			RelPath:   spec.RelPath,
			Size:      spec.Size,
			Status:    StatusQueued,
			OutputDir: q.layout.ItemDir(taskID, itemID),
		}

		e.index[item.ID] = len(e.task.Items)
		e.task.Items = append(e.task.Items, item)
		e.task.Total++

		err := q.jobs.Enqueue(Job{
			TaskID:     taskID,
			ItemID:     item.ID,
			LocalPath:  spec.LocalPath,
			Filename:   spec.Filename,
			RelPath:    spec.RelPath,
			ForceAsync: spec.ForceAsync,
			Options:    spec.Options,
		})
		if err != nil {
			rollback()
			return nil, err
		}
		created = append(created, item.clone())
	}

	q.logger.Info("files enqueued", "task_id", taskID, "count", len(specs), "total", e.task.Total)
	return created, nil
}

// CancelTask cancels a task. Queued items are canceled immediately; running
// items are finalized by their workers at the next checkpoint. Canceling a
// task that already reached a terminal state does nothing.
func (q *Queue) CancelTask(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	t := &e.task
	if t.Status.Terminal() {
		return nil
	}

	t.Status = StatusCanceled
	t.Message = cancelMessage
	canceled := 0
	for i := range t.Items {
		if t.Items[i].Status == StatusQueued {
			t.Items[i].Status = StatusCanceled
			t.Canceled++
			canceled++
		}
	}

	q.logger.Info("task canceled", "task_id", taskID, "queued_items_canceled", canceled)
	return nil
}

// isCanceled reports whether the task was canceled. It is the predicate
// consulted at every processing checkpoint.
func (q *Queue) isCanceled(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.tasks[taskID]
	return ok && e.task.Status == StatusCanceled
}

func (q *Queue) checkpoint(taskID string) error {
	if q.isCanceled(taskID) {
		return ocr.ErrCanceled
	}
	return nil
}

// handle is the worker pool's JobHandler.
func (q *Queue) handle(ctx context.Context, workerID int, job Job) {
	logger := q.logger.With(
		"task_id", job.TaskID,
		"item_id", job.ItemID,
		"worker_id", workerID,
	)

	if !q.claim(job) {
		logger.Debug("discarding job")
		return
	}

	logger.Info("processing item", "filename", job.Filename)
	out := q.execute(ctx, job, logger)
	q.finish(job, out, logger)
}

// claim moves the task and item to running. It returns false when the job
// must be discarded: the task is gone or canceled, or the item already
// finished. Cancellation bookkeeping for such items was done by CancelTask.
func (q *Queue) claim(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.tasks[job.TaskID]
	if !ok || e.task.Status == StatusCanceled {
		return false
	}
	item := e.item(job.ItemID)
	if item == nil || item.Status.Terminal() {
		return false
	}

	if e.task.Status == StatusQueued {
		e.task.Status = StatusRunning
	}
	item.Status = StatusRunning
	return true
}

// execute runs the job and converts its error into an outcome. A panic is
// recorded as a failure of this item only.
func (q *Queue) execute(ctx context.Context, job Job, logger *slog.Logger) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing item",
				"panic", r,
				"stack", string(debug.Stack()))
			out = failedOutcome(fmt.Errorf("internal error: %v", r))
		}
	}()

	files, err := q.process(ctx, job)
	switch {
	case err == nil:
		return doneOutcome(files)
	case errors.Is(err, ocr.ErrCanceled):
		return canceledOutcome()
	default:
		return failedOutcome(err)
	}
}

// finish records the outcome of a job and finalizes the task when every item
// is terminal. A canceled task keeps its status.
func (q *Queue) finish(job Job, out outcome, logger *slog.Logger) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.tasks[job.TaskID]
	if !ok {
		return
	}
	t := &e.task
	item := e.item(job.ItemID)
	if item == nil {
		return
	}

	switch out.kind {
	case outcomeDone:
		item.Status = StatusDone
		item.MarkdownFiles = out.files.MarkdownFiles
		item.AssetFiles = out.files.AssetFiles
		t.Done++
		logger.Info("item done",
			"markdown_files", len(item.MarkdownFiles),
			"asset_files", len(item.AssetFiles))
	case outcomeCanceled:
		if item.Status != StatusCanceled {
			item.Status = StatusCanceled
			t.Canceled++
		}
		logger.Info("item canceled")
	case outcomeFailed:
		item.Status = StatusFailed
		item.Error = out.err.Error()
		t.Failed++
		logger.Error("item failed", "error", redact.Credentials(out.err.Error()))
	}

	if t.Finished() && t.Status != StatusCanceled {
		if t.Failed == 0 {
			t.Status = StatusDone
		} else {
			t.Status = StatusFailed
		}
		logger.Info("task finished",
			"status", t.Status,
			"done", t.Done,
			"failed", t.Failed,
			"canceled", t.Canceled)
	}
}
