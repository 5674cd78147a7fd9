package shared

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondWithJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	RespondWithJSON(w, req, http.StatusAccepted, map[string]any{"job_id": "abc"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"job_id":"abc"}`, w.Body.String())
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithTraceID(req.Context(), "trace-1"))
	w := httptest.NewRecorder()

	RespondWithError(w, req, http.StatusNotFound, "Job not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Job not found","trace_id":"trace-1"}`, w.Body.String())
}

func TestRespondWithError_NoTraceID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	RespondWithError(w, req, http.StatusBadRequest, "bad")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotContains(t, body, "trace_id")
}

func TestRespondWithErrorAndLog(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		opts      []ResponseOption
		wantLevel string
	}{
		{name: "server error", status: http.StatusInternalServerError, wantLevel: "ERROR"},
		{name: "rate limited", status: http.StatusTooManyRequests, wantLevel: "WARN"},
		{name: "client error", status: http.StatusBadRequest, wantLevel: "DEBUG"},
		{name: "elevated client error", status: http.StatusUnauthorized, opts: []ResponseOption{WithElevatedLogLevel()}, wantLevel: "WARN"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			capture := logger.NewCapture(t)
			req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil).WithContext(capture.Context)
			w := httptest.NewRecorder()

			err := errors.New("dial postgres://relay:hunter22@db:5432/relay failed")
			RespondWithErrorAndLog(w, req, tc.status, "Something went wrong", err, tc.opts...)

			assert.Equal(t, tc.status, w.Code)
			assert.NotContains(t, w.Body.String(), "hunter22")
			assert.NotContains(t, w.Body.String(), "postgres")

			entries, perr := capture.Buffer.Entries()
			require.NoError(t, perr)
			require.Len(t, entries, 1)
			assert.Equal(t, tc.wantLevel, entries[0]["level"])
			assert.Equal(t, "API error response", entries[0]["msg"])
			assert.NotContains(t, entries[0]["error"], "hunter22")
		})
	}
}
