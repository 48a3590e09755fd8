package ocr

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSONL parses the downloaded output of an asynchronous job. Each
// non-blank line is one page and carries its payload under "result".
func ParseJSONL(text string) ([]Result, error) {
	var pages []Result
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var envelope struct {
			Result *Result `json:"result"`
		}
		if err := json.Unmarshal([]byte(line), &envelope); err != nil {
			return nil, fmt.Errorf("parse jsonl line %d: %w", lineNo, err)
		}
		if envelope.Result == nil {
			return nil, fmt.Errorf("%w: result on jsonl line %d", ErrMissingField, lineNo)
		}
		pages = append(pages, *envelope.Result)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}
	return pages, nil
}
