// Package recommend requests study recommendations for a finished attempt
// and derives local focus areas when the generator is unavailable.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"proctor-session-service/internal/domain"
)

// ErrNoTopics is returned when the generator answers without any topic.
var ErrNoTopics = errors.New("no recommendation topics")

type Resource struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

type Topic struct {
	Topic       string     `json:"topic"`
	Description string     `json:"description"`
	Relevance   string     `json:"relevance,omitempty"`
	Resources   []Resource `json:"resources"`
}

// Request describes the graded attempt sent to the generator.
type Request struct {
	AssessmentTitle    string                   `json:"assessmentTitle"`
	AssessmentCategory string                   `json:"assessmentCategory"`
	Questions          []domain.Question        `json:"questions"`
	UserAttempts       []domain.QuestionAttempt `json:"userAttempts"`
}

// Recommender produces study topics for a graded attempt.
type Recommender interface {
	Recommend(ctx context.Context, req Request) ([]Topic, error)
}

// Client calls a remote text-generation service over HTTP.
type Client struct {
	endpoint   string
	http       *http.Client
	maxElapsed time.Duration
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		http:       &http.Client{Timeout: timeout},
		maxElapsed: 2 * timeout,
	}
}

func (c *Client) Recommend(ctx context.Context, req Request) ([]Topic, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode recommendation request: %w", err)
	}

	var topics []Topic
	op := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("recommendation service: %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			return backoff.Permanent(fmt.Errorf("recommendation service: %s", resp.Status))
		}

		var out struct {
			Topics []Topic `json:"topics"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode recommendations: %w", err))
		}
		topics = out.Topics
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, 2), ctx)); err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}
	return topics, nil
}
