package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/phrazzld/paddleocr-webui/internal/ocr"
	"github.com/phrazzld/paddleocr-webui/internal/storage"
)

// process runs one job to completion. Images go through the synchronous
// endpoint; PDFs and forced jobs through submit, poll and download. The
// returned error wraps ocr.ErrCanceled when a checkpoint observed
// cancellation.
func (q *Queue) process(ctx context.Context, job Job) (ocr.Materialized, error) {
	input := q.layout.InputPath(job.TaskID, job.RelPath, job.Filename)
	if err := stageInput(job.LocalPath, input); err != nil {
		return ocr.Materialized{}, err
	}

	fileType := ocr.FileTypeFor(job.Filename)
	if job.ForceAsync || fileType == ocr.FileTypePDF {
		return q.processAsync(ctx, job, input)
	}
	return q.processSync(ctx, job, input, fileType)
}

func (q *Queue) processSync(ctx context.Context, job Job, input string, fileType ocr.FileType) (ocr.Materialized, error) {
	if err := q.checkpoint(job.TaskID); err != nil {
		return ocr.Materialized{}, err
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return ocr.Materialized{}, fmt.Errorf("read input: %w", err)
	}
	result, err := q.gateway.SubmitSync(ctx, data, fileType, job.Options)
	if err != nil {
		return ocr.Materialized{}, err
	}

	dir, err := storage.EnsureDir(q.layout.ItemDir(job.TaskID, job.ItemID))
	if err != nil {
		return ocr.Materialized{}, err
	}
	return q.materializer.Materialize(ctx, result, dir)
}

func (q *Queue) processAsync(ctx context.Context, job Job, input string) (ocr.Materialized, error) {
	var out ocr.Materialized

	if err := q.checkpoint(job.TaskID); err != nil {
		return out, err
	}
	remoteID, err := q.gateway.SubmitJob(ctx, input, job.Options)
	if err != nil {
		return out, err
	}

	poll := ocr.PollConfig{Interval: q.config.PollInterval, MaxWait: q.config.PollMaxWait}
	status, err := q.gateway.PollJob(ctx, remoteID, poll, func() bool {
		return q.isCanceled(job.TaskID)
	})
	if err != nil {
		return out, err
	}
	if err := q.checkpoint(job.TaskID); err != nil {
		return out, err
	}
	if status == nil || status.ResultURL.JSONURL == "" {
		return out, fmt.Errorf("%w: job completed without resultUrl.jsonUrl", ocr.ErrMissingField)
	}

	text, err := q.gateway.Download(ctx, status.ResultURL.JSONURL)
	if err != nil {
		return out, err
	}
	rawPath := q.layout.RawFile(job.TaskID, job.ItemID)
	if _, err := storage.EnsureDir(filepath.Dir(rawPath)); err != nil {
		return out, err
	}
	if err := os.WriteFile(rawPath, []byte(text), 0o644); err != nil {
		return out, fmt.Errorf("write raw result: %w", err)
	}

	pages, err := ocr.ParseJSONL(text)
	if err != nil {
		return out, err
	}
	for i := range pages {
		if err := q.checkpoint(job.TaskID); err != nil {
			return out, err
		}
		dir, err := storage.EnsureDir(q.layout.PageDir(job.TaskID, job.ItemID, i))
		if err != nil {
			return out, err
		}
		m, err := q.materializer.Materialize(ctx, &pages[i], dir)
		if err != nil {
			return out, fmt.Errorf("page %d: %w", i, err)
		}
		out.MarkdownFiles = append(out.MarkdownFiles, m.MarkdownFiles...)
		out.AssetFiles = append(out.AssetFiles, m.AssetFiles...)
	}

	if len(out.MarkdownFiles) > 1 {
		merged, err := writeMerged(q.layout.ItemDir(job.TaskID, job.ItemID), out.MarkdownFiles)
		if err != nil {
			return out, err
		}
		out.MarkdownFiles = append([]string{merged}, out.MarkdownFiles...)
	}
	return out, nil
}

// stageInput makes sure the upload sits at its place in the task's inputs
// area, copying it there when it was saved elsewhere.
func stageInput(src, dest string) error {
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("input file missing: %s", src)
		}
		return fmt.Errorf("stat input: %w", err)
	}

	absSrc, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("resolve input: %w", err)
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("resolve input: %w", err)
	}
	if absSrc == absDest {
		return nil
	}

	if _, err := storage.EnsureDir(filepath.Dir(dest)); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	outFile, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create staged input: %w", err)
	}
	if _, err := io.Copy(outFile, in); err != nil {
		outFile.Close()
		return fmt.Errorf("copy input: %w", err)
	}
	return outFile.Close()
}
