// Package task manages background job submission, execution, and lifecycle.
// It decouples HTTP requests from slow AI operations: a submitted job is
// persisted as pending, executed on its own goroutine by the handler
// registered for its task type, and finally recorded as completed or failed.
// Callers poll the query API for status, progress, and results.
package task
