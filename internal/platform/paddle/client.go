package paddle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phrazzld/paddleocr-webui/internal/ocr"
)

const (
	// DefaultModel is the model requested for asynchronous jobs.
	DefaultModel = "PaddleOCR-VL-1.5"

	defaultTimeout = 60 * time.Second

	// maxErrorBody caps how much of an error response is kept in the message.
	maxErrorBody = 1000

	// cancelCheckInterval bounds how long a poll wait can go without
	// consulting the cancellation predicate.
	cancelCheckInterval = 250 * time.Millisecond
)

// Config configures a Client.
type Config struct {
	// APIURL is the synchronous layout-parsing endpoint.
	APIURL string

	// JobURL is the asynchronous job endpoint. Jobs are polled at JobURL/{id}.
	JobURL string

	// Token is the AI Studio access token.
	Token string

	// Model is sent with asynchronous submissions. Defaults to DefaultModel.
	Model string

	// Timeout applies to each HTTP request. Defaults to 60s.
	Timeout time.Duration

	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to the PaddleOCR-VL endpoints.
type Client struct {
	apiURL string
	jobURL string
	token  string
	model  string
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a Client. Missing URLs are tolerated until the
// corresponding mode is used.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiURL: strings.TrimSpace(cfg.APIURL),
		jobURL: strings.TrimRight(strings.TrimSpace(cfg.JobURL), "/"),
		token:  strings.TrimSpace(cfg.Token),
		model:  model,
		http:   httpClient,
		logger: logger.With("component", "paddle_client"),
	}
}

// Ready reports whether the client has credentials to make any call.
func (c *Client) Ready() error {
	if c.token == "" {
		return fmt.Errorf("%w: missing BAIDU_AI_STUDIO_API_KEY", ocr.ErrNotConfigured)
	}
	return nil
}

type syncRequest struct {
	File     string       `json:"file"`
	FileType ocr.FileType `json:"fileType"`
	ocr.Options
}

// SubmitSync recognizes a file in a single request.
func (c *Client) SubmitSync(
	ctx context.Context,
	data []byte,
	fileType ocr.FileType,
	opts ocr.Options,
) (*ocr.Result, error) {
	if c.apiURL == "" {
		return nil, fmt.Errorf("%w: missing BAIDU_PADDLE_OCR_API_URL for sync mode", ocr.ErrNotConfigured)
	}
	if err := c.Ready(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(syncRequest{
		File:     base64.StdEncoding.EncodeToString(data),
		FileType: fileType,
		Options:  opts,
	})
	if err != nil {
		return nil, fmt.Errorf("paddle: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("paddle: build request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req, "Sync OCR failed")
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Result *ocr.Result `json:"result"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("paddle: decode sync response: %w", err)
	}
	if decoded.Result == nil {
		return nil, fmt.Errorf("%w: result", ocr.ErrMissingField)
	}

	c.logger.DebugContext(ctx, "sync recognition finished",
		"file_type", fileType,
		"layout_results", len(decoded.Result.LayoutParsingResults))
	return decoded.Result, nil
}

// SubmitJob uploads a file as an asynchronous job and returns its id.
func (c *Client) SubmitJob(ctx context.Context, filePath string, opts ocr.Options) (string, error) {
	if c.jobURL == "" {
		return "", fmt.Errorf("%w: missing BAIDU_PADDLE_OCR_JOB_URL for async mode", ocr.ErrNotConfigured)
	}
	if err := c.Ready(); err != nil {
		return "", err
	}

	payload, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("paddle: encode options: %w", err)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("paddle: open input: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("model", c.model); err != nil {
		return "", fmt.Errorf("paddle: write form: %w", err)
	}
	if err := mw.WriteField("optionalPayload", string(payload)); err != nil {
		return "", fmt.Errorf("paddle: write form: %w", err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return "", fmt.Errorf("paddle: write form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("paddle: copy input: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("paddle: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.jobURL, &buf)
	if err != nil {
		return "", fmt.Errorf("paddle: build request: %w", err)
	}
	req.Header.Set("Authorization", "bearer "+c.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	raw, err := c.do(req, "Job submit failed")
	if err != nil {
		return "", err
	}

	var decoded struct {
		Data struct {
			JobID string `json:"jobId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("paddle: decode submit response: %w", err)
	}
	if decoded.Data.JobID == "" {
		return "", fmt.Errorf("%w: data.jobId", ocr.ErrMissingField)
	}

	c.logger.InfoContext(ctx, "ocr job submitted", "job_id", decoded.Data.JobID, "model", c.model)
	return decoded.Data.JobID, nil
}

// PollJob polls a job until it reaches a terminal state, the wait exceeds
// poll.MaxWait, or shouldCancel reports true. shouldCancel is consulted before
// every request and repeatedly while waiting between requests.
func (c *Client) PollJob(
	ctx context.Context,
	jobID string,
	poll ocr.PollConfig,
	shouldCancel func() bool,
) (*ocr.JobStatus, error) {
	if c.jobURL == "" {
		return nil, fmt.Errorf("%w: missing BAIDU_PADDLE_OCR_JOB_URL for async mode", ocr.ErrNotConfigured)
	}
	if err := c.Ready(); err != nil {
		return nil, err
	}
	if shouldCancel == nil {
		shouldCancel = func() bool { return false }
	}

	deadline := time.Now().Add(poll.MaxWait)
	lastState := ""
	for time.Now().Before(deadline) {
		if shouldCancel() {
			return nil, ocr.ErrCanceled
		}

		status, err := c.jobStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		lastState = status.State

		switch status.State {
		case ocr.JobStateDone:
			return status, nil
		case ocr.JobStateFailed:
			msg := status.ErrorMsg
			if msg == "" {
				msg = "unknown error"
			}
			return nil, fmt.Errorf("%w: %s", ocr.ErrJobFailed, msg)
		}

		c.logger.DebugContext(ctx, "ocr job pending", "job_id", jobID, "state", status.State)
		if err := c.wait(ctx, poll.Interval, deadline, shouldCancel); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: after %s; last state=%q", ocr.ErrTimeout, poll.MaxWait, lastState)
}

// wait sleeps for interval (or until deadline) in short steps so that a
// cancellation is noticed without waiting out the full interval.
func (c *Client) wait(ctx context.Context, interval time.Duration, deadline time.Time, shouldCancel func() bool) error {
	end := time.Now().Add(interval)
	if end.After(deadline) {
		end = deadline
	}
	for {
		remaining := time.Until(end)
		if remaining <= 0 {
			return nil
		}
		step := min(remaining, cancelCheckInterval)
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if shouldCancel() {
			return ocr.ErrCanceled
		}
	}
}

func (c *Client) jobStatus(ctx context.Context, jobID string) (*ocr.JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jobURL+"/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("paddle: build request: %w", err)
	}
	req.Header.Set("Authorization", "bearer "+c.token)

	raw, err := c.do(req, "Job poll failed")
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Data *ocr.JobStatus `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("paddle: decode poll response: %w", err)
	}
	if decoded.Data == nil {
		return nil, fmt.Errorf("%w: data", ocr.ErrMissingField)
	}
	return decoded.Data, nil
}

// Download fetches the JSONL output of a finished job.
func (c *Client) Download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("paddle: build request: %w", err)
	}
	raw, err := c.do(req, "Result download failed")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// do executes req and returns the body of a 200 response. Any other status
// becomes ocr.ErrRequestFailed carrying the head of the body.
func (c *Client) do(req *http.Request, failure string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paddle: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("paddle: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		text := string(raw)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, fmt.Errorf("%w: %s: HTTP %d: %s", ocr.ErrRequestFailed, failure, resp.StatusCode, text)
	}
	return raw, nil
}
