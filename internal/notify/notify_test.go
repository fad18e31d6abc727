package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scorecard-ingest-go/internal/logger"
	"scorecard-ingest-go/internal/types"
)

func testJob() types.BatchProcessingJob {
	return types.BatchProcessingJob{ID: "job-1", ProgramID: "bdr-coaching", Status: types.JobCompleted}
}

func TestWebhookDeliversPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewWebhook(logger.New(), srv.URL).JobFinished(testJob())
	require.NoError(t, err)
	assert.Equal(t, "batch_job_finished", got["event"])
	job, ok := got["job"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "job-1", job["id"])
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "temporarily down", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewWebhook(logger.New(), srv.URL).JobFinished(testJob())
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestWebhookGivesUpOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewWebhook(logger.New(), srv.URL).JobFinished(testJob())
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx responses are never retried")
}

func TestNopNeverFails(t *testing.T) {
	assert.NoError(t, Nop{}.JobFinished(testJob()))
}
