package task

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// newTaskID returns a time-ordered id with a random suffix, such as
// 20250401_120000_1a2b3c4d.
func newTaskID(now time.Time) string {
	return now.Format("20060102_150405") + "_" + randomHex(8)
}

func newItemID() string {
	return randomHex(10)
}

// randomHex returns the first n hex digits of a random UUID. n must not
// exceed 12, which keeps the version nibble out of the result.
func randomHex(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
