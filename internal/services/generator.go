package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// ContentGenerator produces issue content for a topic. Implementations call
// an external model; any error fails the issue.
type ContentGenerator interface {
	Generate(ctx context.Context, topic domain.Topic) (*domain.IssueContent, error)
}

// HTTPGenerator posts the topic as JSON to URL and decodes an IssueContent
// from the response body.
type HTTPGenerator struct {
	URL    string
	Client *http.Client
}

// NewHTTPGenerator returns an HTTPGenerator with a bounded client timeout.
func NewHTTPGenerator(url string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPGenerator{URL: url, Client: &http.Client{Timeout: timeout}}
}

type generateRequest struct {
	TopicID        uint            `json:"topic_id"`
	SubjectID      uint            `json:"subject_id"`
	SequenceNumber int             `json:"sequence_number"`
	Title          string          `json:"title"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// Generate implements ContentGenerator.
func (g *HTTPGenerator) Generate(ctx context.Context, topic domain.Topic) (*domain.IssueContent, error) {
	body, err := json.Marshal(generateRequest{
		TopicID:        topic.ID,
		SubjectID:      topic.SubjectID,
		SequenceNumber: topic.SequenceNumber,
		Title:          topic.Title,
		Data:           json.RawMessage(topic.Data),
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("generator returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out domain.IssueContent
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode generator response: %w", err)
	}
	return &out, nil
}
