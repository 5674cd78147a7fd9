package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/api/shared"
	"github.com/phrazzld/relay-api/internal/task"
)

// requesterFromContext builds the queue requester from the identity the auth
// middleware stored.
func requesterFromContext(r *http.Request) (task.Requester, bool) {
	userID, elevated, ok := shared.Identity(r.Context())
	if !ok {
		return task.Requester{}, false
	}
	return task.Requester{UserID: userID, Elevated: elevated}, true
}

// getPathUUID parses the named chi URL parameter as a UUID.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	raw := chi.URLParam(r, paramName)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", ErrInvalidRequest, paramName)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s has invalid format", ErrInvalidRequest, paramName)
	}
	return id, nil
}

// parseListFilter reads status, task_type, user_id, limit and offset from
// the query string. Paging bounds are applied later by the queue.
func parseListFilter(q url.Values) (task.ListFilter, error) {
	filter := task.ListFilter{
		Status:   task.Status(q.Get("status")),
		TaskType: q.Get("task_type"),
		UserID:   q.Get("user_id"),
	}

	var err error
	if filter.Limit, err = parseIntParam(q, "limit"); err != nil {
		return task.ListFilter{}, err
	}
	if filter.Offset, err = parseIntParam(q, "offset"); err != nil {
		return task.ListFilter{}, err
	}
	return filter, nil
}

func parseIntParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidRequest, name)
	}
	return n, nil
}
