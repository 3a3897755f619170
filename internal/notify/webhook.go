package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/Houeta/listing-monitor/internal/retry"
)

// WebhookPayload is the JSON body posted to the webhook.
type WebhookPayload struct {
	ScanID  string                `json:"scan_id"`
	SentAt  time.Time             `json:"sent_at"`
	Count   int                   `json:"count"`
	Changes []models.ChangeRecord `json:"changes"`
}

// StatusError is returned when the webhook answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status code error: [%d] %s", e.StatusCode, e.Status)
}

// IsRetryable retries transport errors, 429 and 5xx. Other rejections and
// cancellation are final.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// Webhook POSTs change sets as JSON.
type Webhook struct {
	log    *slog.Logger
	client *http.Client
	url    string
	retry  retry.Config
	now    func() time.Time
}

// NewWebhook creates a webhook sink. A nil client gets a 10 second timeout and a nil
// rc.IsRetryable defaults to IsRetryable.
func NewWebhook(log *slog.Logger, url string, client *http.Client, rc retry.Config) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if rc.IsRetryable == nil {
		rc.IsRetryable = IsRetryable
	}
	return &Webhook{
		log:    log.With("sink", "webhook"),
		client: client,
		url:    url,
		retry:  rc,
		now:    time.Now,
	}
}

// Deliver implements Sink. Empty change sets are not posted.
func (w *Webhook) Deliver(ctx context.Context, changes []models.ChangeRecord) error {
	const opn = "notify.Webhook.Deliver"

	if len(changes) == 0 {
		return nil
	}

	body, err := json.Marshal(WebhookPayload{
		ScanID:  changes[0].ScanID,
		SentAt:  w.now().UTC(),
		Count:   len(changes),
		Changes: changes,
	})
	if err != nil {
		return fmt.Errorf("%s: failed to encode payload: %w", opn, err)
	}

	err = retry.Do(ctx, w.retry, func(attempt int) error {
		return w.post(ctx, body, attempt)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	w.log.InfoContext(ctx, "change set delivered", "count", len(changes))
	return nil
}

func (w *Webhook) post(ctx context.Context, body []byte, attempt int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.log.WarnContext(ctx, "webhook request failed", "attempt", attempt, "error", err)
		return fmt.Errorf("failed to post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.log.WarnContext(ctx, "webhook rejected payload", "attempt", attempt, "status", resp.StatusCode)
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return nil
}
