package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const tavilyBaseURL = "https://api.tavily.com"

// Tavily queries the Tavily web search API.
type Tavily struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewTavily creates a Tavily gateway with a default HTTP client.
func NewTavily(apiKey string) *Tavily {
	return &Tavily{
		APIKey:  apiKey,
		BaseURL: tavilyBaseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (t *Tavily) Query(ctx context.Context, query string, topK int) ([]Passage, error) {
	if topK <= 0 {
		topK = 3
	}

	body, err := json.Marshal(tavilyRequest{
		APIKey:     t.APIKey,
		Query:      query,
		MaxResults: topK,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("tavily returned %d: %s", resp.StatusCode, msg)
	}

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	passages := make([]Passage, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		passages = append(passages, Passage{
			Text:   r.Content,
			Source: r.URL,
			Score:  r.Score,
		})
	}
	return passages, nil
}
