package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/phrazzld/paddleocr-webui/internal/api/shared"
	"github.com/phrazzld/paddleocr-webui/internal/ocr"
	"github.com/phrazzld/paddleocr-webui/internal/storage"
	"github.com/phrazzld/paddleocr-webui/internal/task"
)

// Form field names of POST /api/tasks.
const (
	fieldFiles             = "files"
	fieldRelPaths          = "relpaths"
	fieldForceAsync        = "force_async"
	fieldOrientation       = "use_doc_orientation_classify"
	fieldUnwarping         = "use_doc_unwarping"
	fieldChartRecognition  = "use_chart_recognition"
	multipartMemory        = 32 << 20
	multipartEnvelopeBytes = 1 << 20
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// UploadLimits bounds what one POST /api/tasks may carry.
type UploadLimits struct {
	MaxFileBytes  int64 `validate:"gt=0"`
	MaxTotalBytes int64 `validate:"gtefield=MaxFileBytes"`
}

// uploadForm is the parsed and validated upload request.
type uploadForm struct {
	Files      []*multipart.FileHeader `validate:"min=1,dive,required"`
	RelPaths   []string
	ForceAsync bool
	Options    ocr.Options
}

// parseUploadForm reads the multipart body and applies every check that can
// be made before anything is written to disk.
func parseUploadForm(w http.ResponseWriter, r *http.Request, limits UploadLimits) (*uploadForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxTotalBytes+multipartEnvelopeBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrUploadTooLarge
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}

	form := &uploadForm{
		Files:      r.MultipartForm.File[fieldFiles],
		ForceAsync: shared.ParseFormBool(r.FormValue(fieldForceAsync)),
		Options: ocr.Options{
			UseDocOrientationClassify: shared.ParseFormBool(r.FormValue(fieldOrientation)),
			UseDocUnwarping:           shared.ParseFormBool(r.FormValue(fieldUnwarping)),
			UseChartRecognition:       shared.ParseFormBool(r.FormValue(fieldChartRecognition)),
		},
	}
	if err := shared.ValidateRequest(form); err != nil {
		return nil, ErrNoFiles
	}

	if raw := strings.TrimSpace(r.FormValue(fieldRelPaths)); raw != "" {
		if err := json.Unmarshal([]byte(raw), &form.RelPaths); err != nil {
			return nil, fmt.Errorf("%w: must be a JSON array of strings", ErrInvalidRelPaths)
		}
		if len(form.RelPaths) > 0 && len(form.RelPaths) != len(form.Files) {
			return nil, fmt.Errorf("%w: got %d paths for %d files",
				ErrInvalidRelPaths, len(form.RelPaths), len(form.Files))
		}
	}

	var total int64
	for _, fh := range form.Files {
		if !acceptedFormat(fh) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fh.Filename)
		}
		if fh.Size > limits.MaxFileBytes {
			return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, fh.Filename)
		}
		total += fh.Size
		if total > limits.MaxTotalBytes {
			return nil, ErrUploadTooLarge
		}
	}
	return form, nil
}

// acceptedFormat allows PDFs and images by content type or extension.
func acceptedFormat(fh *multipart.FileHeader) bool {
	ct := strings.ToLower(fh.Header.Get("Content-Type"))
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ct == "application/pdf" || ext == ".pdf" {
		return true
	}
	return strings.HasPrefix(ct, "image/") || imageExtensions[ext]
}

// saveUploads writes each file under the task's inputs directory, keeping the
// client's folder structure. A name that is already taken gets a _k suffix,
// and the reported relative path follows the stored name.
func saveUploads(layout storage.Layout, taskID string, form *uploadForm) ([]task.FileSpec, error) {
	inputs, err := storage.EnsureDir(layout.InputsDir(taskID))
	if err != nil {
		return nil, err
	}

	specs := make([]task.FileSpec, 0, len(form.Files))
	for idx, fh := range form.Files {
		original := fh.Filename
		if original == "" {
			original = "file"
		}
		filename := storage.SafeSegment(original)

		rp := original
		if idx < len(form.RelPaths) {
			rp = form.RelPaths[idx]
		}
		display := storage.SplitRelPath(rp)
		if len(display) == 0 {
			display = []string{original}
		}

		safe := make([]string, len(display))
		for i, p := range display {
			safe[i] = storage.SafeSegment(p)
		}
		dest := filepath.Join(append([]string{inputs}, safe...)...)
		if _, err := storage.EnsureDir(filepath.Dir(dest)); err != nil {
			return nil, err
		}

		if k, free := freeName(dest); k > 0 {
			dest = free
			display[len(display)-1] = suffixed(display[len(display)-1], k)
		}

		if err := writeUpload(fh, dest); err != nil {
			return nil, err
		}

		specs = append(specs, task.FileSpec{
			LocalPath:  dest,
			Filename:   filename,
			RelPath:    strings.Join(display, "/"),
			Size:       fh.Size,
			ForceAsync: form.ForceAsync,
			Options:    form.Options,
		})
	}
	return specs, nil
}

// freeName returns 0 and path when path is unused; otherwise the smallest
// k >= 1 for which stem_k.ext is unused, and that path.
func freeName(path string) (int, string) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return 0, path
	}
	dir, base := filepath.Split(path)
	for k := 1; ; k++ {
		cand := filepath.Join(dir, suffixed(base, k))
		if _, err := os.Stat(cand); errors.Is(err, os.ErrNotExist) {
			return k, cand
		}
	}
}

// suffixed inserts _k before the extension: a.pdf -> a_1.pdf, README -> README_1.
func suffixed(name string, k int) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return fmt.Sprintf("%s_%d%s", name[:i], k, name[i:])
	}
	return fmt.Sprintf("%s_%d", name, k)
}

func writeUpload(fh *multipart.FileHeader, dest string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create input file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("write input file: %w", err)
	}
	return out.Close()
}
