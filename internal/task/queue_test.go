package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/paddleocr-webui/internal/ocr"
	"github.com/phrazzld/paddleocr-webui/internal/storage"
	"github.com/phrazzld/paddleocr-webui/internal/task/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func testConfig(concurrency int) Config {
	return Config{
		Concurrency:  concurrency,
		QueueSize:    256,
		PollInterval: 5 * time.Millisecond,
		PollMaxWait:  2 * time.Second,
	}
}

func newTestQueue(t *testing.T, gw Gateway, mat Materializer, cfg Config) *Queue {
	t.Helper()
	if mat == nil {
		mat = &mocks.Materializer{}
	}
	layout, err := storage.NewLayout(t.TempDir())
	require.NoError(t, err)

	q, err := New(gw, mat, layout, cfg, setupTestLogger())
	require.NoError(t, err)
	t.Cleanup(q.Stop)
	return q
}

// writeUpload creates a source file the way the upload handler would.
func writeUpload(t *testing.T, name, content string) FileSpec {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return FileSpec{
		LocalPath: path,
		Filename:  name,
		RelPath:   name,
		Size:      int64(len(content)),
	}
}

func waitFinished(t *testing.T, q *Queue, taskID string) Task {
	t.Helper()
	var snap Task
	require.Eventually(t, func() bool {
		var err error
		snap, err = q.GetTask(taskID)
		require.NoError(t, err)
		return snap.Finished() && snap.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return snap
}

func TestNew_Validation(t *testing.T) {
	layout, err := storage.NewLayout(t.TempDir())
	require.NoError(t, err)
	logger := setupTestLogger()

	_, err = New(nil, &mocks.Materializer{}, layout, Config{}, logger)
	assert.ErrorIs(t, err, ErrNilGateway)

	_, err = New(&mocks.Gateway{}, nil, layout, Config{}, logger)
	assert.ErrorIs(t, err, ErrNilMaterializer)

	_, err = New(&mocks.Gateway{}, &mocks.Materializer{}, layout, Config{}, nil)
	assert.ErrorIs(t, err, ErrNilLogger)

	q, err := New(&mocks.Gateway{}, &mocks.Materializer{}, layout, Config{}, logger)
	require.NoError(t, err)
	defaults := DefaultConfig()
	assert.Equal(t, defaults.QueueSize, q.config.QueueSize)
	assert.Equal(t, defaults.PollInterval, q.config.PollInterval)
	assert.Equal(t, defaults.PollMaxWait, q.config.PollMaxWait)
	assert.Equal(t, defaults.Concurrency, q.config.Concurrency)
	assert.Equal(t, defaults.Concurrency, q.pool.workerCount)
}

func TestQueue_DefaultConcurrencyRunsInParallel(t *testing.T) {
	var inFlight atomic.Int32
	release := make(chan struct{})
	gw := &mocks.Gateway{
		SubmitSyncFn: func(ctx context.Context, _ []byte, _ ocr.FileType, _ ocr.Options) (*ocr.Result, error) {
			inFlight.Add(1)
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &ocr.Result{}, nil
		},
	}
	q := newTestQueue(t, gw, nil, testConfig(0))
	q.Start()

	tk := q.CreateTask()
	_, err := q.EnqueueBatch(tk.ID, []FileSpec{
		writeUpload(t, "a.png", "a"),
		writeUpload(t, "b.png", "b"),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return inFlight.Load() == int32(DefaultConfig().Concurrency)
	}, 2*time.Second, 5*time.Millisecond)
	close(release)

	final := waitFinished(t, q, tk.ID)
	assert.Equal(t, 2, final.Done)
}

func TestQueue_CreateAndGetTask(t *testing.T) {
	q := newTestQueue(t, &mocks.Gateway{}, nil, testConfig(1))

	created := q.CreateTask()
	assert.Regexp(t, `^\d{8}_\d{6}_[0-9a-f]{8}$`, created.ID)
	assert.Equal(t, StatusQueued, created.Status)
	assert.Zero(t, created.Total)
	assert.Empty(t, created.Items)

	got, err := q.GetTask(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = q.GetTask("nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = q.GetItem(created.ID, "nope")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestQueue_SnapshotsAreCopies(t *testing.T) {
	q := newTestQueue(t, &mocks.Gateway{}, nil, testConfig(1))
	tk := q.CreateTask()
	_, err := q.Enqueue(tk.ID, writeUpload(t, "a.png", "x"))
	require.NoError(t, err)

	snap, err := q.GetTask(tk.ID)
	require.NoError(t, err)
	snap.Items[0].Status = StatusDone
	snap.Items[0].MarkdownFiles = append(snap.Items[0].MarkdownFiles, "bogus")

	again, err := q.GetTask(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, again.Items[0].Status)
	assert.Empty(t, again.Items[0].MarkdownFiles)
}

func TestQueue_SyncImage(t *testing.T) {
	gw := &mocks.Gateway{
		SubmitSyncFn: func(_ context.Context, data []byte, ft ocr.FileType, opts ocr.Options) (*ocr.Result, error) {
			assert.Equal(t, "png-bytes", string(data))
			assert.Equal(t, ocr.FileTypeImage, ft)
			assert.True(t, opts.UseDocUnwarping)
			return &ocr.Result{LayoutParsingResults: []ocr.LayoutResult{
				{Markdown: ocr.Markdown{Text: "# Title"}},
			}}, nil
		},
	}
	q := newTestQueue(t, gw, nil, testConfig(2))
	q.Start()

	tk := q.CreateTask()
	spec := writeUpload(t, "scan.png", "png-bytes")
	spec.RelPath = "folder/scan.png"
	spec.Options.UseDocUnwarping = true
	item, err := q.Enqueue(tk.ID, spec)
	require.NoError(t, err)

	final := waitFinished(t, q, tk.ID)
	assert.Equal(t, StatusDone, final.Status)
	assert.Equal(t, 1, final.Done)

	got, err := q.GetItem(tk.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
	require.Len(t, got.MarkdownFiles, 1)
	content, err := os.ReadFile(got.MarkdownFiles[0])
	require.NoError(t, err)
	assert.Equal(t, "# Title", string(content))

	staged := q.Layout().InputPath(tk.ID, spec.RelPath, spec.Filename)
	assert.FileExists(t, staged)
	assert.Zero(t, gw.Calls("SubmitJob"))
}

func TestQueue_AsyncPDF_MultiPageMerge(t *testing.T) {
	pages := []string{"\n\nPage one\n\n", "   \n", "Page two\n", "Page three"}
	var jsonl strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&jsonl, `{"result":{"layoutParsingResults":[{"markdown":{"text":%q}}]}}`+"\n", p)
	}

	gw := &mocks.Gateway{
		SubmitJobFn: func(_ context.Context, path string, _ ocr.Options) (string, error) {
			assert.FileExists(t, path)
			return "job-1", nil
		},
		DownloadFn: func(_ context.Context, url string) (string, error) {
			assert.Equal(t, "mock://result.jsonl", url)
			return jsonl.String(), nil
		},
	}
	q := newTestQueue(t, gw, nil, testConfig(1))
	q.Start()

	tk := q.CreateTask()
	item, err := q.Enqueue(tk.ID, writeUpload(t, "report.pdf", "%PDF"))
	require.NoError(t, err)

	final := waitFinished(t, q, tk.ID)
	require.Equal(t, StatusDone, final.Status)

	got, err := q.GetItem(tk.ID, item.ID)
	require.NoError(t, err)
	require.Len(t, got.MarkdownFiles, 5)
	assert.Equal(t, filepath.Join(got.OutputDir, "merged.md"), got.MarkdownFiles[0])
	assert.Equal(t, filepath.Join(got.OutputDir, "page_0", "doc_0.md"), got.MarkdownFiles[1])

	merged, err := os.ReadFile(got.MarkdownFiles[0])
	require.NoError(t, err)
	assert.Equal(t, "Page one\n\n---\n\nPage two\n\n---\n\nPage three", string(merged))

	assert.FileExists(t, q.Layout().RawFile(tk.ID, item.ID))
	assert.Zero(t, gw.Calls("SubmitSync"))
}

type recordingMaterializer struct {
	mock.Mock
}

func (m *recordingMaterializer) Materialize(ctx context.Context, result *ocr.Result, dir string) (ocr.Materialized, error) {
	args := m.Called(ctx, result, dir)
	return args.Get(0).(ocr.Materialized), args.Error(1)
}

func TestQueue_ForceAsyncImage_PageDirs(t *testing.T) {
	gw := &mocks.Gateway{
		DownloadFn: func(context.Context, string) (string, error) {
			return `{"result":{"layoutParsingResults":[]}}` + "\n" + `{"result":{"layoutParsingResults":[]}}` + "\n", nil
		},
	}
	mat := &recordingMaterializer{}
	mat.On("Materialize", mock.Anything, mock.Anything, mock.MatchedBy(func(dir string) bool {
		return strings.HasSuffix(dir, "page_0")
	})).Return(ocr.Materialized{AssetFiles: []string{"a.jpg"}}, nil).Once()
	mat.On("Materialize", mock.Anything, mock.Anything, mock.MatchedBy(func(dir string) bool {
		return strings.HasSuffix(dir, "page_1")
	})).Return(ocr.Materialized{AssetFiles: []string{"b.jpg"}}, nil).Once()

	q := newTestQueue(t, gw, mat, testConfig(1))
	q.Start()

	tk := q.CreateTask()
	spec := writeUpload(t, "photo.jpg", "jpg")
	spec.ForceAsync = true
	item, err := q.Enqueue(tk.ID, spec)
	require.NoError(t, err)

	waitFinished(t, q, tk.ID)
	got, err := q.GetItem(tk.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, got.AssetFiles)
	assert.Empty(t, got.MarkdownFiles)
	mat.AssertExpectations(t)
	assert.Equal(t, 1, gw.Calls("SubmitJob"))
}

func TestQueue_ItemIsolation(t *testing.T) {
	gw := &mocks.Gateway{
		SubmitSyncFn: func(_ context.Context, data []byte, _ ocr.FileType, _ ocr.Options) (*ocr.Result, error) {
			if string(data) == "bad" {
				return nil, fmt.Errorf("%w: HTTP 500: boom", ocr.ErrRequestFailed)
			}
			return &ocr.Result{}, nil
		},
	}
	q := newTestQueue(t, gw, nil, testConfig(2))
	q.Start()

	tk := q.CreateTask()
	items, err := q.EnqueueBatch(tk.ID, []FileSpec{
		writeUpload(t, "good.png", "good"),
		writeUpload(t, "bad.png", "bad"),
	})
	require.NoError(t, err)

	final := waitFinished(t, q, tk.ID)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, 1, final.Done)
	assert.Equal(t, 1, final.Failed)

	good, err := q.GetItem(tk.ID, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, good.Status)

	bad, err := q.GetItem(tk.ID, items[1].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, bad.Status)
	assert.Contains(t, bad.Error, "HTTP 500: boom")
}

func TestQueue_MissingInput(t *testing.T) {
	q := newTestQueue(t, &mocks.Gateway{}, nil, testConfig(1))
	q.Start()

	tk := q.CreateTask()
	item, err := q.Enqueue(tk.ID, FileSpec{
		LocalPath: filepath.Join(t.TempDir(), "gone.png"),
		Filename:  "gone.png",
		RelPath:   "gone.png",
	})
	require.NoError(t, err)

	waitFinished(t, q, tk.ID)
	got, err := q.GetItem(tk.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "input file missing")
}

func TestQueue_AsyncMissingResultURL(t *testing.T) {
	gw := &mocks.Gateway{
		PollJobFn: func(context.Context, string, ocr.PollConfig, func() bool) (*ocr.JobStatus, error) {
			return &ocr.JobStatus{State: ocr.JobStateDone}, nil
		},
	}
	q := newTestQueue(t, gw, nil, testConfig(1))
	q.Start()

	tk := q.CreateTask()
	item, err := q.Enqueue(tk.ID, writeUpload(t, "a.pdf", "%PDF"))
	require.NoError(t, err)

	waitFinished(t, q, tk.ID)
	got, err := q.GetItem(tk.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "resultUrl.jsonUrl")
	assert.Zero(t, gw.Calls("Download"))
}

func TestQueue_PanicIsRecordedAsFailure(t *testing.T) {
	gw := &mocks.Gateway{
		SubmitSyncFn: func(_ context.Context, data []byte, _ ocr.FileType, _ ocr.Options) (*ocr.Result, error) {
			if string(data) == "panic" {
				panic("gateway exploded")
			}
			return &ocr.Result{}, nil
		},
	}
	q := newTestQueue(t, gw, nil, testConfig(1))
	q.Start()

	tk := q.CreateTask()
	items, err := q.EnqueueBatch(tk.ID, []FileSpec{
		writeUpload(t, "p.png", "panic"),
		writeUpload(t, "ok.png", "ok"),
	})
	require.NoError(t, err)

	final := waitFinished(t, q, tk.ID)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, 1, final.Done)

	got, err := q.GetItem(tk.ID, items[0].ID)
	require.NoError(t, err)
	assert.Contains(t, got.Error, "gateway exploded")
}

func TestQueue_EnqueueErrors(t *testing.T) {
	t.Run("unknown_task", func(t *testing.T) {
		q := newTestQueue(t, &mocks.Gateway{}, nil, testConfig(1))
		_, err := q.Enqueue("missing", writeUpload(t, "a.png", "a"))
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("terminal_task", func(t *testing.T) {
		q := newTestQueue(t, &mocks.Gateway{}, nil, testConfig(1))
		tk := q.CreateTask()
		require.NoError(t, q.CancelTask(tk.ID))

		_, err := q.Enqueue(tk.ID, writeUpload(t, "a.png", "a"))
		assert.ErrorIs(t, err, ErrTaskClosed)
	})

	t.Run("queue_full_is_atomic", func(t *testing.T) {
		cfg := testConfig(1)
		cfg.QueueSize = 2
		q := newTestQueue(t, &mocks.Gateway{}, nil, cfg)
		tk := q.CreateTask()

		_, err := q.EnqueueBatch(tk.ID, []FileSpec{
			writeUpload(t, "a.png", "a"),
			writeUpload(t, "b.png", "b"),
			writeUpload(t, "c.png", "c"),
		})
		require.ErrorIs(t, err, ErrQueueFull)

		snap, err := q.GetTask(tk.ID)
		require.NoError(t, err)
		assert.Zero(t, snap.Total)
		assert.Empty(t, snap.Items)
		assert.Equal(t, 2, q.jobs.Free())
	})

	t.Run("queue_closed", func(t *testing.T) {
		q := newTestQueue(t, &mocks.Gateway{}, nil, testConfig(1))
		tk := q.CreateTask()
		q.Stop()

		_, err := q.Enqueue(tk.ID, writeUpload(t, "a.png", "a"))
		assert.ErrorIs(t, err, ErrQueueClosed)
	})
}

func TestQueue_CancelBeforeDispatch(t *testing.T) {
	gw := &mocks.Gateway{}
	q := newTestQueue(t, gw, nil, testConfig(2))

	tk := q.CreateTask()
	_, err := q.EnqueueBatch(tk.ID, []FileSpec{
		writeUpload(t, "a.png", "a"),
		writeUpload(t, "b.png", "b"),
		writeUpload(t, "c.png", "c"),
	})
	require.NoError(t, err)

	require.NoError(t, q.CancelTask(tk.ID))
	q.Start()

	require.Eventually(t, func() bool { return q.jobs.Free() == q.config.QueueSize }, 2*time.Second, 5*time.Millisecond)

	snap, err := q.GetTask(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, snap.Status)
	assert.Equal(t, cancelMessage, snap.Message)
	assert.Equal(t, 3, snap.Canceled)
	assert.Zero(t, snap.Done)
	for _, it := range snap.Items {
		assert.Equal(t, StatusCanceled, it.Status)
	}
	assert.Zero(t, gw.Calls("SubmitSync"))
}

func TestQueue_CancelIsIdempotent(t *testing.T) {
	q := newTestQueue(t, &mocks.Gateway{}, nil, testConfig(1))
	tk := q.CreateTask()
	_, err := q.Enqueue(tk.ID, writeUpload(t, "a.png", "a"))
	require.NoError(t, err)

	require.NoError(t, q.CancelTask(tk.ID))
	require.NoError(t, q.CancelTask(tk.ID))

	snap, err := q.GetTask(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Canceled)
	assert.ErrorIs(t, q.CancelTask("missing"), ErrTaskNotFound)
}

func TestQueue_CancelFinishedTaskIsNoop(t *testing.T) {
	q := newTestQueue(t, &mocks.Gateway{}, nil, testConfig(1))
	q.Start()
	tk := q.CreateTask()
	_, err := q.Enqueue(tk.ID, writeUpload(t, "a.png", "a"))
	require.NoError(t, err)
	waitFinished(t, q, tk.ID)

	require.NoError(t, q.CancelTask(tk.ID))
	snap, err := q.GetTask(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, snap.Status)
	assert.Empty(t, snap.Message)
}

func TestQueue_CancelMidFlight(t *testing.T) {
	polling := make(chan struct{})
	var once atomic.Bool
	gw := &mocks.Gateway{
		PollJobFn: func(ctx context.Context, _ string, _ ocr.PollConfig, shouldCancel func() bool) (*ocr.JobStatus, error) {
			if once.CompareAndSwap(false, true) {
				close(polling)
			}
			for !shouldCancel() {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(2 * time.Millisecond):
				}
			}
			return nil, ocr.ErrCanceled
		},
	}
	q := newTestQueue(t, gw, nil, testConfig(1))
	q.Start()

	tk := q.CreateTask()
	items, err := q.EnqueueBatch(tk.ID, []FileSpec{
		writeUpload(t, "running.pdf", "%PDF"),
		writeUpload(t, "waiting.pdf", "%PDF"),
	})
	require.NoError(t, err)

	select {
	case <-polling:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never started polling")
	}

	require.NoError(t, q.CancelTask(tk.ID))

	snap := waitFinished(t, q, tk.ID)
	assert.Equal(t, StatusCanceled, snap.Status)
	assert.Equal(t, 2, snap.Canceled)
	assert.Zero(t, snap.Done)
	assert.Zero(t, snap.Failed)

	for _, it := range items {
		got, err := q.GetItem(tk.ID, it.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCanceled, got.Status)
		assert.Empty(t, got.Error)
	}
	assert.Equal(t, 1, gw.Calls("PollJob"))
	assert.Zero(t, gw.Calls("Download"))
}

func TestQueue_StopAbortsInFlight(t *testing.T) {
	started := make(chan struct{})
	gw := &mocks.Gateway{
		SubmitSyncFn: func(ctx context.Context, _ []byte, _ ocr.FileType, _ ocr.Options) (*ocr.Result, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	q := newTestQueue(t, gw, nil, testConfig(1))
	q.Start()

	tk := q.CreateTask()
	item, err := q.Enqueue(tk.ID, writeUpload(t, "a.png", "a"))
	require.NoError(t, err)
	<-started

	q.Stop()

	got, err := q.GetItem(tk.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.True(t, strings.Contains(got.Error, context.Canceled.Error()))
}

func TestQueue_Stress(t *testing.T) {
	const n = 100
	var inFlight, peak atomic.Int32
	gw := &mocks.Gateway{
		SubmitSyncFn: func(_ context.Context, data []byte, _ ocr.FileType, _ ocr.Options) (*ocr.Result, error) {
			cur := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(time.Duration(rand.Intn(2000)) * time.Microsecond)
			if strings.HasSuffix(string(data), "7") {
				return nil, errors.New("unlucky")
			}
			return &ocr.Result{}, nil
		},
	}
	q := newTestQueue(t, gw, nil, testConfig(4))
	q.Start()

	tk := q.CreateTask()
	specs := make([]FileSpec, n)
	for i := range specs {
		specs[i] = writeUpload(t, fmt.Sprintf("f%03d.png", i), fmt.Sprintf("%d", i))
	}
	_, err := q.EnqueueBatch(tk.ID, specs)
	require.NoError(t, err)

	// Readers run concurrently with the workers.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			snap, err := q.GetTask(tk.ID)
			if assert.NoError(t, err) {
				assert.LessOrEqual(t, snap.Done+snap.Failed+snap.Canceled, snap.Total)
			}
		}
	}()

	final := waitFinished(t, q, tk.ID)
	<-done

	assert.Equal(t, n, final.Total)
	assert.Equal(t, 10, final.Failed)
	assert.Equal(t, n-10, final.Done)
	assert.Equal(t, StatusFailed, final.Status)
	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.Equal(t, n, gw.Calls("SubmitSync"))
}
