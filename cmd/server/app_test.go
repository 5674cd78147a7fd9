package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/events"
	"github.com/phrazzld/relay-api/internal/generation"
	"github.com/phrazzld/relay-api/internal/mocks"
	"github.com/phrazzld/relay-api/internal/task"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: 0, LogLevel: "debug"},
		Database: config.DatabaseConfig{Driver: config.DriverMemory, Name: "relay"},
		Auth: config.AuthConfig{
			JWTSecret:            "test-secret-that-is-at-least-32-bytes",
			TokenLifetimeMinutes: 60,
		},
		LLM: config.LLMConfig{
			ModelName:         "gemini-2.0-flash",
			ImageModelName:    "imagen-3.0-generate-002",
			MaxRetries:        1,
			RetryDelaySeconds: 1,
		},
		Task: config.TaskConfig{
			RetentionHours:         24,
			CleanupIntervalMinutes: 60,
			ShutdownTimeoutSeconds: 5,
		},
		Redis: config.RedisConfig{Channel: "relay:jobs"},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestApp builds an application and drains its queue on cleanup.
func newTestApp(t *testing.T, cfg *config.Config, opts ...appOption) *application {
	t.Helper()

	app, err := newApplication(context.Background(), cfg, testLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.queue.Shutdown(ctx)
		app.cleanup()
	})
	return app
}

func bearer(t *testing.T, app *application, userID, role string) string {
	t.Helper()
	token, err := app.jwtService.GenerateToken(context.Background(), userID, role)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestNewApplication_WithoutLLM(t *testing.T) {
	app := newTestApp(t, testConfig())

	assert.Empty(t, app.registry.Types())
	assert.IsType(t, &task.MemoryJobStore{}, app.jobStore)
}

func TestNewApplication_WithGenerator(t *testing.T) {
	app := newTestApp(t, testConfig(), withGenerator(mocks.NewMockGenerator()))

	assert.Equal(t, []string{
		generation.TaskContentAnalysis,
		generation.TaskContentGeneration,
		generation.TaskImageGeneration,
	}, app.registry.Types())
}

func TestNewApplication_InvalidAuthConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = "short"

	_, err := newApplication(context.Background(), cfg, testLogger())
	assert.Error(t, err)
}

func TestNewApplication_RecoversInterruptedJobs(t *testing.T) {
	store := task.NewMemoryJobStore()
	now := time.Now().UTC()
	interrupted := task.Job{
		ID:        uuid.New(),
		TaskType:  generation.TaskContentAnalysis,
		UserID:    "user-1",
		Input:     task.Payload{"text": "hello"},
		Status:    task.StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
		StartedAt: &now,
	}
	require.NoError(t, store.CreateJob(context.Background(), interrupted))

	newTestApp(t, testConfig(), withJobStore(store), withGenerator(mocks.NewMockGenerator()))

	got, err := store.GetJob(context.Background(), interrupted.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, "job interrupted before completion", got.Error)
}

func TestRouter_JobLifecycle(t *testing.T) {
	app := newTestApp(t, testConfig(), withGenerator(mocks.NewMockGenerator()))
	router := app.setupRouter()
	auth := bearer(t, app, "user-1", "")

	body := `{"task_type":"content_analysis","input_data":{"text":"Shipping our new queue today!"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
	req.Header.Set("Authorization", auth)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	var submitted task.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	assert.Equal(t, task.StatusPending, submitted.Status)

	var job task.Job
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+submitted.ID.String(), nil)
		req.Header.Set("Authorization", auth)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
			return false
		}
		return job.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, task.StatusCompleted, job.Status)

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/"+submitted.ID.String()+"/result", nil)
	req.Header.Set("Authorization", auth)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var res task.JobResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "positive", res.Result["sentiment"])

	// Another user cannot see the job.
	req = httptest.NewRequest(http.MethodGet, "/api/jobs/"+submitted.ID.String(), nil)
	req.Header.Set("Authorization", bearer(t, app, "user-2", ""))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// An admin can.
	req = httptest.NewRequest(http.MethodGet, "/api/jobs/"+submitted.ID.String(), nil)
	req.Header.Set("Authorization", bearer(t, app, "ops", "admin"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_RequiresAuth(t *testing.T) {
	app := newTestApp(t, testConfig())
	router := app.setupRouter()

	for _, path := range []string{"/api/jobs", "/api/task-types", "/api/jobs/" + uuid.NewString()} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestRouter_Health(t *testing.T) {
	app := newTestApp(t, testConfig())

	w := httptest.NewRecorder()
	app.setupRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestNewApplication_PublishesEventsToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis.URL = "redis://" + mr.Addr()

	subscriber := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = subscriber.Close() })
	sub := subscriber.Subscribe(context.Background(), cfg.Redis.Channel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	app := newTestApp(t, cfg, withGenerator(mocks.NewMockGenerator()))

	job, err := app.queue.Submit(context.Background(), generation.TaskContentGeneration,
		task.Payload{"topic": "release day"}, "user-1")
	require.NoError(t, err)

	seen := make(map[string]bool)
	ch := sub.Channel()
	timeout := time.After(5 * time.Second)
	for !seen[events.TypeJobCompleted] {
		select {
		case msg := <-ch:
			var event events.JobEvent
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
			assert.Equal(t, job.ID, event.JobID)
			seen[event.Type] = true
		case <-timeout:
			t.Fatalf("did not receive completion event, saw %v", seen)
		}
	}
	assert.True(t, seen[events.TypeJobSubmitted])
	assert.True(t, seen[events.TypeJobStarted])
}

func TestNewApplication_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig()
	cfg.Redis.URL = "redis://" + addr

	_, err := newApplication(context.Background(), cfg, testLogger())
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestServe_GracefulShutdown(t *testing.T) {
	app := newTestApp(t, testConfig())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serve(ctx, listener) }()

	url := fmt.Sprintf("http://%s/health", listener.Addr().String())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
	assert.Zero(t, app.queue.InFlightCount())
}

func TestOpenJobStore(t *testing.T) {
	store, closeStore, err := openJobStore(context.Background(),
		config.DatabaseConfig{Driver: config.DriverMemory}, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, store)
	assert.NoError(t, closeStore(context.Background()))

	_, _, err = openJobStore(context.Background(),
		config.DatabaseConfig{Driver: "sqlite"}, testLogger())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestRunMigrations_RequiresPostgres(t *testing.T) {
	err := runMigrations(context.Background(), testConfig(), "up", testLogger())
	assert.ErrorContains(t, err, "migrations require the postgres driver")
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	const key = "RELAY_DOTENV_TEST_VALUE"
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv(key))
}
