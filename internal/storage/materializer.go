package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/phrazzld/paddleocr-webui/internal/ocr"
	"golang.org/x/sync/errgroup"
)

// DefaultFetchConcurrency bounds parallel image downloads per result.
const DefaultFetchConcurrency = 4

// Materializer writes OCR results to disk: one markdown file per layout
// result plus every image the result references.
type Materializer struct {
	client     *http.Client
	logger     *slog.Logger
	fetchLimit int
}

// MaterializerConfig configures a Materializer.
type MaterializerConfig struct {
	// HTTPClient is used to fetch images. Defaults to a client with a 60s timeout.
	HTTPClient *http.Client

	// FetchConcurrency bounds parallel downloads. Zero or negative means
	// DefaultFetchConcurrency.
	FetchConcurrency int
}

// NewMaterializer creates a Materializer.
func NewMaterializer(cfg MaterializerConfig, logger *slog.Logger) *Materializer {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	limit := cfg.FetchConcurrency
	if limit <= 0 {
		limit = DefaultFetchConcurrency
	}
	return &Materializer{
		client:     client,
		logger:     logger.With("component", "materializer"),
		fetchLimit: limit,
	}
}

// download is one image to fetch. A non-success status skips the image;
// transport errors fail the result.
type download struct {
	url  string
	path string
}

// Materialize writes result into dir and returns the produced paths in a
// deterministic order: markdown files by layout index, assets by layout index
// then by sorted key.
func (m *Materializer) Materialize(ctx context.Context, result *ocr.Result, dir string) (ocr.Materialized, error) {
	var out ocr.Materialized
	if result == nil {
		return out, fmt.Errorf("%w: result", ocr.ErrMissingField)
	}
	if _, err := EnsureDir(dir); err != nil {
		return out, err
	}

	var downloads []download
	for i, res := range result.LayoutParsingResults {
		mdPath := filepath.Join(dir, fmt.Sprintf("doc_%d.md", i))
		if err := os.WriteFile(mdPath, []byte(res.Markdown.Text), 0o644); err != nil {
			return out, fmt.Errorf("storage: write markdown: %w", err)
		}
		out.MarkdownFiles = append(out.MarkdownFiles, mdPath)

		for _, rel := range sortedKeys(res.Markdown.Images) {
			parts := []string{dir}
			for _, p := range SplitRelPath(rel) {
				parts = append(parts, SafeSegment(p))
			}
			if len(parts) == 1 {
				continue
			}
			downloads = append(downloads, download{
				url:  res.Markdown.Images[rel],
				path: filepath.Join(parts...),
			})
		}

		for _, name := range sortedKeys(res.OutputImages) {
			downloads = append(downloads, download{
				url:  res.OutputImages[name],
				path: filepath.Join(dir, fmt.Sprintf("%s_%d.jpg", SafeSegment(name), i)),
			})
		}
	}

	written := make([]bool, len(downloads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.fetchLimit)
	for i, d := range downloads {
		g.Go(func() error {
			ok, err := m.fetch(gctx, d)
			if err != nil {
				return err
			}
			written[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	for i, d := range downloads {
		if written[i] {
			out.AssetFiles = append(out.AssetFiles, d.path)
		}
	}
	return out, nil
}

func (m *Materializer) fetch(ctx context.Context, d download) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return false, fmt.Errorf("storage: build image request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("storage: fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.logger.Warn("skipping image",
			"status_code", resp.StatusCode,
			"path", d.path)
		return false, nil
	}

	if _, err := EnsureDir(filepath.Dir(d.path)); err != nil {
		return false, err
	}
	f, err := os.Create(d.path)
	if err != nil {
		return false, fmt.Errorf("storage: create image: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return false, fmt.Errorf("storage: write image: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("storage: close image: %w", err)
	}
	return true, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
