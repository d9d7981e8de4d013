package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Poller is the fixed-interval, bounded status loop shared by the async adapters.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
}

// pollState is what one status check reports.
type pollState int

const (
	statePending pollState = iota
	stateDone
	stateFailed
)

type checkFunc func(ctx context.Context) (state pollState, resultURL string, err error)

// run calls check up to MaxAttempts times, sleeping Interval before each call.
// check returning an error aborts the loop with that error.
func (p Poller) run(ctx context.Context, log *slog.Logger, provider, taskID string, check checkFunc) (string, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 36
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.Interval):
		}

		state, resultURL, err := check(ctx)
		if err != nil {
			return "", err
		}
		switch state {
		case stateDone:
			log.Info("generation task completed", "provider", provider, "task_id", taskID, "attempt", attempt)
			return resultURL, nil
		case stateFailed:
			return "", failure(provider, "task %s failed", taskID)
		}
		if attempt%6 == 0 {
			log.Info("generation task waiting", "provider", provider, "task_id", taskID, "attempt", attempt, "max_attempts", attempts)
		}
	}
	log.Warn("generation task timed out", "provider", provider, "task_id", taskID, "attempts", attempts)
	return "", timeout(provider, taskID, attempts)
}

// doJSON sends payload (if any) as JSON and decodes a 2xx response into out.
func doJSON(ctx context.Context, client *http.Client, method, endpoint string, headers map[string]string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}
	if err := json.Unmarshal(rawBody, out); err != nil {
		return fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(rawBody))
	}
	return nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
