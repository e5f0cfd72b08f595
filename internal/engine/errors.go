package engine

import "errors"

var (
	// ErrWorkerPanic marks a worker that failed abnormally; the run is aborted.
	ErrWorkerPanic = errors.New("worker failed abnormally")
	// ErrAlreadyCompleted is returned when a direction is completed twice.
	ErrAlreadyCompleted = errors.New("direction already completed")
	// ErrNoWorkers is returned for a run configured with zero workers.
	ErrNoWorkers = errors.New("workers must be > 0")
)
