package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ChartAggregator/internal/config"
	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/ports"
)

// promptEntries bounds how many chart rows are sent to the model.
const promptEntries = 10

// ChatGPTClient implements ports.Commentator backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.Commentator = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig) *ChatGPTClient {
	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// Comment asks the model for an introductory paragraph about the run's top entries.
func (c *ChatGPTClient) Comment(ctx context.Context, run domain.AggregationRun) (string, error) {
	if c == nil {
		return "", fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("chatgpt client misconfigured")
	}

	payload, err := buildChartJSON(run)
	if err != nil {
		return "", fmt.Errorf("build chatgpt payload: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": safePrompt(c.systemPrompt)},
			{"role": "user", "content": string(payload)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request commentary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&completion); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chatgpt returned no choices")
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chatgpt returned empty commentary")
	}
	return text, nil
}

func buildChartJSON(run domain.AggregationRun) ([]byte, error) {
	type item struct {
		Rank   int     `json:"rank"`
		Title  string  `json:"title"`
		Artist string  `json:"artist"`
		Score  float64 `json:"score,omitempty"`
	}

	entries := run.Entries
	if len(entries) > promptEntries {
		entries = entries[:promptEntries]
	}

	items := make([]item, 0, len(entries))
	for _, e := range entries {
		items = append(items, item{Rank: e.Rank, Title: e.Title, Artist: e.Artist, Score: e.Score})
	}

	return json.Marshal(map[string]any{
		"chart":   run.SourceID,
		"period":  run.PeriodKey,
		"entries": items,
	})
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a helpful assistant that introduces music charts."
	}
	return prompt
}
