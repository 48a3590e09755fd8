package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	inputsDirName = "inputs"
	rawDirName    = "raw"
)

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeSegment reduces s to a single filesystem-safe path segment. Only the
// last component of a path survives; an empty result becomes "file".
func SafeSegment(s string) string {
	s = strings.ReplaceAll(s, "\\", "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.Trim(strings.TrimSpace(s), ".")
	s = unsafeSegment.ReplaceAllString(s, "_")
	if s == "" {
		return "file"
	}
	return s
}

// SplitRelPath splits a client-supplied relative path into its components,
// dropping empty, "." and ".." parts.
func SplitRelPath(relpath string) []string {
	relpath = strings.TrimLeft(strings.ReplaceAll(relpath, "\\", "/"), "/")
	var parts []string
	for _, p := range strings.Split(relpath, "/") {
		if p == "" || p == "." || p == ".." {
			continue
		}
		parts = append(parts, p)
	}
	return parts
}

// EnsureDir creates dir and its parents.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	return dir, nil
}

// Layout resolves paths inside the output root.
type Layout struct {
	root string
}

// NewLayout returns a Layout rooted at root. The directory is created.
func NewLayout(root string) (Layout, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return Layout{}, fmt.Errorf("storage: output root is required")
	}
	if _, err := EnsureDir(root); err != nil {
		return Layout{}, err
	}
	return Layout{root: root}, nil
}

// Root returns the output root.
func (l Layout) Root() string {
	return l.root
}

// TaskDir is {root}/{task_id}.
func (l Layout) TaskDir(taskID string) string {
	return filepath.Join(l.root, SafeSegment(taskID))
}

// InputsDir holds uploaded originals with their folder structure.
func (l Layout) InputsDir(taskID string) string {
	return filepath.Join(l.TaskDir(taskID), inputsDirName)
}

// RawFile is where the downloaded payload of an asynchronous job is kept.
func (l Layout) RawFile(taskID, itemID string) string {
	return filepath.Join(l.TaskDir(taskID), rawDirName, SafeSegment(itemID)+".jsonl")
}

// ItemDir holds the materialized output of one item.
func (l Layout) ItemDir(taskID, itemID string) string {
	return filepath.Join(l.TaskDir(taskID), SafeSegment(itemID))
}

// PageDir holds the output of one page of a multi-page result.
func (l Layout) PageDir(taskID, itemID string, page int) string {
	return filepath.Join(l.ItemDir(taskID, itemID), fmt.Sprintf("page_%d", page))
}

// InputPath maps an upload to its place under inputs/. The relative path wins
// when it has components; otherwise the filename is used.
func (l Layout) InputPath(taskID, relpath, filename string) string {
	parts := []string{l.InputsDir(taskID)}
	rel := SplitRelPath(relpath)
	if len(rel) == 0 {
		return filepath.Join(append(parts, SafeSegment(filename))...)
	}
	for _, p := range rel {
		parts = append(parts, SafeSegment(p))
	}
	return filepath.Join(parts...)
}

// ResolveWithin joins a client-supplied relative path onto root. It reports
// false when nothing is left after cleaning or the result would leave root.
func ResolveWithin(root, rel string) (string, bool) {
	parts := SplitRelPath(rel)
	if len(parts) == 0 {
		return "", false
	}
	path := filepath.Join(append([]string{root}, parts...)...)
	r, err := filepath.Rel(root, path)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return path, true
}
