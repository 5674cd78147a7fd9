// Package events provides job lifecycle event types and the interfaces used
// to publish them.
//
// The job queue emits an event whenever a job is submitted, starts, reports
// progress, or finishes. Handlers registered with an emitter receive those
// events without the queue knowing who listens: the Redis publisher in
// internal/platform/redis is one such handler.
//
// The primary components are:
// - JobEvent: a single lifecycle transition of a job
// - EventHandler: interface for components that consume events
// - EventEmitter: interface for components that dispatch events
package events
