// Package character adapts an external character builder service. The Keeper
// collects attributes from the player in conversation and submits them here;
// an incomplete submission comes back as a MissingFieldsError naming exactly
// what the service still needs, so the Keeper can ask the player for it.
package character

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Builder generates a playable character sheet from player attributes.
type Builder interface {
	Generate(ctx context.Context, attrs map[string]any) (string, error)
}

// MissingFieldsError reports the attributes the builder requires before it
// can produce a sheet. Field names come from the service verbatim.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("character builder needs: %s", strings.Join(e.Fields, ", "))
}

// HTTPBuilder talks to the character builder over HTTP.
type HTTPBuilder struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPBuilder creates a builder client for the service at baseURL.
func NewHTTPBuilder(baseURL string) *HTTPBuilder {
	return &HTTPBuilder{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type generateResponse struct {
	Sheet         string   `json:"sheet"`
	MissingFields []string `json:"missing_fields"`
}

func (b *HTTPBuilder) Generate(ctx context.Context, attrs map[string]any) (string, error) {
	body, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("marshaling attributes: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var parsed generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return "", fmt.Errorf("decoding response: %w", err)
		}
		return parsed.Sheet, nil

	case http.StatusUnprocessableEntity:
		var parsed generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return "", fmt.Errorf("decoding missing-fields response: %w", err)
		}
		return "", &MissingFieldsError{Fields: parsed.MissingFields}

	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("character builder returned %d: %s", resp.StatusCode, msg)
	}
}
