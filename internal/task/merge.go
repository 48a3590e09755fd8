package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// MergedFileName is the merge of a multi-page result, written at the top of
	// the item directory and listed first among its markdown files.
	MergedFileName = "merged.md"

	// pageDelimiter separates pages in the merged document.
	pageDelimiter = "\n\n---\n\n"
)

// mergeMarkdown joins page texts, each trimmed of surrounding blank lines.
// Pages with no text are left out.
func mergeMarkdown(pages []string) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p = trimBlankLines(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, pageDelimiter)
}

// trimBlankLines drops leading and trailing lines that hold only whitespace.
func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

// writeMerged reads files in order and writes their merge to dir/merged.md.
func writeMerged(dir string, files []string) (string, error) {
	pages := make([]string, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("read page markdown: %w", err)
		}
		pages = append(pages, string(data))
	}

	path := filepath.Join(dir, MergedFileName)
	if err := os.WriteFile(path, []byte(mergeMarkdown(pages)), 0o644); err != nil {
		return "", fmt.Errorf("write merged markdown: %w", err)
	}
	return path, nil
}
