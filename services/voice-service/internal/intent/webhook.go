package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookClassifier calls an external classification service over HTTP.
// One endpoint serves every task; the request names the task and carries the
// utterance plus any candidate options.
type WebhookClassifier struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookClassifier(url, token string) *WebhookClassifier {
	return &WebhookClassifier{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type classifyRequest struct {
	Task      string   `json:"task"`
	Utterance string   `json:"utterance"`
	Options   []string `json:"options,omitempty"`
}

type classifyResponse struct {
	Matched bool   `json:"matched"`
	Value   string `json:"value,omitempty"`
	Index   int    `json:"index,omitempty"`
}

func (c *WebhookClassifier) ExtractName(ctx context.Context, utterance string) (string, error) {
	resp, err := c.classify(ctx, classifyRequest{Task: "extract_name", Utterance: utterance})
	if err != nil {
		return "", err
	}
	if !resp.Matched {
		return "", nil
	}
	return resp.Value, nil
}

func (c *WebhookClassifier) ExtractTime(ctx context.Context, utterance string) (string, error) {
	resp, err := c.classify(ctx, classifyRequest{Task: "extract_time", Utterance: utterance})
	if err != nil {
		return "", err
	}
	if !resp.Matched {
		return "", nil
	}
	return resp.Value, nil
}

func (c *WebhookClassifier) Sentiment(ctx context.Context, utterance string) (Sentiment, error) {
	resp, err := c.classify(ctx, classifyRequest{Task: "sentiment", Utterance: utterance})
	if err != nil {
		return SentimentUnknown, err
	}
	if !resp.Matched {
		return SentimentUnknown, nil
	}
	switch strings.ToLower(resp.Value) {
	case "yes", "affirmative", "positive":
		return SentimentAffirmative, nil
	case "no", "negative":
		return SentimentNegative, nil
	}
	return SentimentUnknown, nil
}

func (c *WebhookClassifier) MatchQuestion(ctx context.Context, utterance string, candidates []string) (string, error) {
	resp, err := c.classify(ctx, classifyRequest{Task: "match_question", Utterance: utterance, Options: candidates})
	if err != nil {
		return "", err
	}
	if !resp.Matched {
		return "", nil
	}
	return resp.Value, nil
}

func (c *WebhookClassifier) SelectOption(ctx context.Context, utterance string, options []string) (int, error) {
	resp, err := c.classify(ctx, classifyRequest{Task: "select_option", Utterance: utterance, Options: options})
	if err != nil {
		return NoSelection, err
	}
	if !resp.Matched || resp.Index < 0 || resp.Index >= len(options) {
		return NoSelection, nil
	}
	return resp.Index, nil
}

func (c *WebhookClassifier) classify(ctx context.Context, payload classifyRequest) (classifyResponse, error) {
	if c.url == "" {
		return classifyResponse{}, errors.New("classifier webhook url not configured")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return classifyResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return classifyResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	httpResp, err := c.http.Do(req)
	if err != nil {
		return classifyResponse{}, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return classifyResponse{}, fmt.Errorf("classifier returned status %d", httpResp.StatusCode)
	}
	var resp classifyResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return classifyResponse{}, err
	}
	return resp, nil
}

var _ Classifier = (*WebhookClassifier)(nil)
