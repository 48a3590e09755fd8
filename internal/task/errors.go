package task

import "errors"

// Errors returned by Queue.
var (
	ErrTaskNotFound = errors.New("task not found")
	ErrItemNotFound = errors.New("item not found")

	// ErrTaskClosed is returned when enqueuing into a finished or canceled task.
	ErrTaskClosed = errors.New("task no longer accepts files")

	ErrNilGateway      = errors.New("gateway cannot be nil")
	ErrNilMaterializer = errors.New("materializer cannot be nil")
	ErrNilLogger       = errors.New("logger cannot be nil")
)
