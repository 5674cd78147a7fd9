// Package redis publishes job lifecycle events to a Redis pub/sub channel so
// that processes outside the server can follow job progress.
package redis
