package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/paddleocr-webui/internal/ocr"
)

// Gateway is a mock implementation of task.Gateway
type Gateway struct {
	SubmitSyncFn func(ctx context.Context, data []byte, fileType ocr.FileType, opts ocr.Options) (*ocr.Result, error)
	SubmitJobFn  func(ctx context.Context, filePath string, opts ocr.Options) (string, error)
	PollJobFn    func(ctx context.Context, jobID string, poll ocr.PollConfig, shouldCancel func() bool) (*ocr.JobStatus, error)
	DownloadFn   func(ctx context.Context, url string) (string, error)

	mu    sync.Mutex
	calls map[string]int
}

func (g *Gateway) record(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls[name]++
}

// Calls returns how many times the named method was invoked.
func (g *Gateway) Calls(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

// SubmitSync implements task.Gateway
func (g *Gateway) SubmitSync(
	ctx context.Context,
	data []byte,
	fileType ocr.FileType,
	opts ocr.Options,
) (*ocr.Result, error) {
	g.record("SubmitSync")
	if g.SubmitSyncFn != nil {
		return g.SubmitSyncFn(ctx, data, fileType, opts)
	}
	return &ocr.Result{LayoutParsingResults: []ocr.LayoutResult{
		{Markdown: ocr.Markdown{Text: "text"}},
	}}, nil
}

// SubmitJob implements task.Gateway
func (g *Gateway) SubmitJob(ctx context.Context, filePath string, opts ocr.Options) (string, error) {
	g.record("SubmitJob")
	if g.SubmitJobFn != nil {
		return g.SubmitJobFn(ctx, filePath, opts)
	}
	return "job", nil
}

// PollJob implements task.Gateway
func (g *Gateway) PollJob(
	ctx context.Context,
	jobID string,
	poll ocr.PollConfig,
	shouldCancel func() bool,
) (*ocr.JobStatus, error) {
	g.record("PollJob")
	if g.PollJobFn != nil {
		return g.PollJobFn(ctx, jobID, poll, shouldCancel)
	}
	if shouldCancel != nil && shouldCancel() {
		return nil, ocr.ErrCanceled
	}
	return &ocr.JobStatus{
		JobID:     jobID,
		State:     ocr.JobStateDone,
		ResultURL: ocr.ResultURL{JSONURL: "mock://result.jsonl"},
	}, nil
}

// Download implements task.Gateway
func (g *Gateway) Download(ctx context.Context, url string) (string, error) {
	g.record("Download")
	if g.DownloadFn != nil {
		return g.DownloadFn(ctx, url)
	}
	return `{"result":{"layoutParsingResults":[{"markdown":{"text":"page"}}]}}` + "\n", nil
}
