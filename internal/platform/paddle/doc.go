// Package paddle implements the OCR gateway against the PaddleOCR-VL service
// hosted on Baidu AI Studio. It speaks two protocols: a synchronous endpoint
// that takes a base64 file and returns the result inline, and an asynchronous
// job API (submit, poll, download JSONL).
package paddle
