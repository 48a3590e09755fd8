package task

import "github.com/phrazzld/paddleocr-webui/internal/ocr"

type outcomeKind int

const (
	outcomeDone outcomeKind = iota
	outcomeCanceled
	outcomeFailed
)

// outcome is the result of processing one job: done with its files, canceled,
// or failed with a reason. Exactly one applies.
type outcome struct {
	kind  outcomeKind
	files ocr.Materialized
	err   error
}

func doneOutcome(files ocr.Materialized) outcome {
	return outcome{kind: outcomeDone, files: files}
}

func canceledOutcome() outcome {
	return outcome{kind: outcomeCanceled}
}

func failedOutcome(err error) outcome {
	return outcome{kind: outcomeFailed, err: err}
}
