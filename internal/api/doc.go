// Package api exposes the job queue over HTTP. Handlers translate requests
// into queue operations on behalf of the authenticated caller and map queue
// errors to status codes without leaking internal details.
package api
