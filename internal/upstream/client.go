// Package upstream is the thin HTTP wrapper around the remote assessment
// backend. It owns request timeouts; the engine above it only relies on
// calls eventually resolving or eventually failing.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"examprep-attempt-service/internal/domain"
)

// Client talks to the assessment backend over JSON/HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// startResponse tolerates the two duration units and the optional data
// wrapper the backend uses on this endpoint.
type startResponse struct {
	Data *startResponse `json:"data"`

	AttemptID       string            `json:"attemptId"`
	Questions       []domain.Question `json:"questions"`
	DurationMinutes int               `json:"durationMinutes"`
	DurationSeconds int               `json:"durationSeconds"`
}

// StartAttempt registers a new attempt for a test and returns the fixed
// question list plus the allotted time. Called once per attempt, before the
// countdown starts.
func (c *Client) StartAttempt(ctx context.Context, testID, userID string) (domain.Attempt, error) {
	body, err := json.Marshal(map[string]string{"userId": userID})
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("start attempt: %w", err)
	}

	raw, err := c.post(ctx, fmt.Sprintf("/tests/%s/attempts", testID), body)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("start attempt: %w", err)
	}

	var parsed startResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.Attempt{}, fmt.Errorf("start attempt: decode response: %w", err)
	}
	if parsed.Data != nil {
		parsed = *parsed.Data
	}

	duration := parsed.DurationSeconds
	if duration == 0 {
		duration = parsed.DurationMinutes * 60
	}
	return domain.Attempt{
		ID:              parsed.AttemptID,
		TestID:          testID,
		UserID:          userID,
		Questions:       parsed.Questions,
		DurationSeconds: duration,
	}, nil
}

// SubmitAttempt posts the transformed answer sheet. The raw body is returned
// untouched for the result reconstructor.
func (c *Client) SubmitAttempt(ctx context.Context, attemptID string, answers []domain.AnswerPayload) ([]byte, error) {
	body, err := json.Marshal(map[string]any{"answers": answers})
	if err != nil {
		return nil, fmt.Errorf("submit attempt: %w", err)
	}
	raw, err := c.post(ctx, fmt.Sprintf("/attempts/%s/submit", attemptID), body)
	if err != nil {
		return nil, fmt.Errorf("submit attempt: %w", err)
	}
	return raw, nil
}

// FetchResult re-reads the result of a previously submitted attempt.
// Idempotent and side-effect free on the backend.
func (c *Client) FetchResult(ctx context.Context, attemptID string) ([]byte, error) {
	raw, err := c.get(ctx, fmt.Sprintf("/attempts/%s/result", attemptID))
	if err != nil {
		return nil, fmt.Errorf("fetch result: %w", err)
	}
	return raw, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend returned %d: %s", resp.StatusCode, truncate(raw, 200))
	}
	return raw, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
