// Package ocr defines the vocabulary shared between the job queue and the
// remote PaddleOCR-VL service: recognition options, result payloads, remote job
// status, and the typed errors a gateway may return.
package ocr
