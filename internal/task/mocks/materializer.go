package mocks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/phrazzld/paddleocr-webui/internal/ocr"
)

// Materializer is a mock implementation of task.Materializer. Without
// MaterializeFn it writes each markdown text to doc_{i}.md and skips images.
type Materializer struct {
	MaterializeFn func(ctx context.Context, result *ocr.Result, dir string) (ocr.Materialized, error)
}

// Materialize implements task.Materializer
func (m *Materializer) Materialize(ctx context.Context, result *ocr.Result, dir string) (ocr.Materialized, error) {
	if m.MaterializeFn != nil {
		return m.MaterializeFn(ctx, result, dir)
	}

	var out ocr.Materialized
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return out, err
	}
	for i, page := range result.LayoutParsingResults {
		path := filepath.Join(dir, fmt.Sprintf("doc_%d.md", i))
		if err := os.WriteFile(path, []byte(page.Markdown.Text), 0o644); err != nil {
			return out, err
		}
		out.MarkdownFiles = append(out.MarkdownFiles, path)
	}
	return out, nil
}
