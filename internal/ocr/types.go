package ocr

import (
	"path/filepath"
	"strings"
	"time"
)

// FileType is the numeric file type understood by the synchronous endpoint.
type FileType int

// File types accepted by the recognition service.
const (
	FileTypePDF   FileType = 0
	FileTypeImage FileType = 1
)

// FileTypeFor guesses the file type from a filename. Anything that is not a
// PDF is treated as an image.
func FileTypeFor(filename string) FileType {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return FileTypePDF
	}
	return FileTypeImage
}

// Options toggles the optional pipeline stages of the recognition service.
type Options struct {
	UseDocOrientationClassify bool `json:"useDocOrientationClassify"`
	UseDocUnwarping           bool `json:"useDocUnwarping"`
	UseChartRecognition       bool `json:"useChartRecognition"`
}

// Result is the payload returned for one recognized document or page.
type Result struct {
	LayoutParsingResults []LayoutResult `json:"layoutParsingResults"`
}

// LayoutResult is one parsed layout block with its markdown and images.
type LayoutResult struct {
	Markdown     Markdown          `json:"markdown"`
	OutputImages map[string]string `json:"outputImages"`
}

// Markdown holds the recognized text and the images it references, keyed by
// the relative path used inside the text.
type Markdown struct {
	Text   string            `json:"text"`
	Images map[string]string `json:"images"`
}

// Remote job states reported by the asynchronous endpoint.
const (
	JobStateDone   = "done"
	JobStateFailed = "failed"
)

// JobStatus is the data block returned when polling an asynchronous job.
type JobStatus struct {
	JobID     string    `json:"jobId"`
	State     string    `json:"state"`
	ErrorMsg  string    `json:"errorMsg"`
	ResultURL ResultURL `json:"resultUrl"`
}

// ResultURL lists download locations for a finished job.
type ResultURL struct {
	JSONURL string `json:"jsonUrl"`
}

// PollConfig bounds a poll loop.
type PollConfig struct {
	Interval time.Duration
	MaxWait  time.Duration
}

// Materialized lists the files written for one result.
type Materialized struct {
	MarkdownFiles []string
	AssetFiles    []string
}
