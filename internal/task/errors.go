package task

import "errors"

// Errors returned by the queue and its query API
var (
	// ErrUnknownTaskType is returned by Submit when no handler is registered
	// for the requested task type. No job record is written.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrInvalidSubmission is returned by Submit when required fields are missing.
	ErrInvalidSubmission = errors.New("invalid job submission")

	// ErrQueueClosed is returned by Submit once shutdown has begun.
	ErrQueueClosed = errors.New("job queue is closed")

	// ErrJobNotFound is returned when a job does not exist or is not visible
	// to the requester. Both cases are reported identically.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotReady is returned by GetResult while the job is pending or running.
	ErrJobNotReady = errors.New("job has not finished")

	// ErrInvalidFilter is returned by ListJobs for filter values that can never match.
	ErrInvalidFilter = errors.New("invalid job filter")

	// ErrInvalidTransition is returned by stores when a status change would
	// move a job backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid job status transition")
)
