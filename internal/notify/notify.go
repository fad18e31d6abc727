// Package notify delivers fire-and-forget completion webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"scorecard-ingest-go/internal/logger"
	"scorecard-ingest-go/internal/types"
)

// Notifier is invoked after a job finishes. Implementations must never block
// job completion on delivery problems; errors are for logging only.
type Notifier interface {
	JobFinished(job types.BatchProcessingJob) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) JobFinished(types.BatchProcessingJob) error { return nil }

// Webhook posts the finished job as JSON, retrying transient failures with
// exponential backoff.
type Webhook struct {
	url    string
	client *http.Client
	log    *logrus.Entry
}

func NewWebhook(log *logger.Logger, url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.WithComponent("notify"),
	}
}

func (w *Webhook) JobFinished(job types.BatchProcessingJob) error {
	payload, err := json.Marshal(map[string]any{
		"event":   "batch_job_finished",
		"job":     job,
		"sent_at": time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	var lastErr error
	op := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("webhook server error: %s", body)
			return lastErr
		}
		if resp.StatusCode >= 400 {
			// Permanent: don't retry on client errors
			lastErr = fmt.Errorf("webhook rejected: %d %s", resp.StatusCode, body)
			return backoff.Permanent(lastErr)
		}
		lastErr = nil
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(op, bo); err != nil {
		w.log.WithField("job_id", job.ID).WithError(lastErr).Warn("webhook delivery failed")
		return lastErr
	}
	w.log.WithField("job_id", job.ID).Debug("webhook delivered")
	return nil
}
