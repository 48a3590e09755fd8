// Package storage owns the on-disk layout of task output and turns OCR
// results into markdown and asset files.
//
// Every task lives under {root}/{task_id}/ with an inputs/ area for uploaded
// originals, a raw/ area for downloaded job payloads, and one directory per
// item for materialized output. The zip export and the markdown viewer locate
// files by this convention, so it must not change.
package storage
