package llm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	structuredTemperature = 0.0
	freeTextTemperature   = 0.2
)

// TokenSource supplies a valid bearer token for each provider call.
// *TokenGuard is the production implementation.
type TokenSource interface {
	Token(ctx context.Context) (BearerToken, error)
}

// ClientConfig configures the chat-completions client.
type ClientConfig struct {
	BaseURL            string
	Model              string
	Tokens             TokenSource
	InsecureSkipVerify bool
	HTTPClient         *http.Client
}

// Client calls the provider's chat-completions endpoint, either for
// free text or for output conforming to a fixed Schema.
type Client struct {
	baseURL    string
	model      string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient builds a provider client. baseURL should include the API
// prefix, e.g. "https://host/api/v1".
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("llm client: base URL required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("llm client: model required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("llm client: token source required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
		if cfg.InsecureSkipVerify {
			httpClient.Transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
	}
	return &Client{
		baseURL:    baseURL,
		model:      strings.TrimSpace(cfg.Model),
		tokens:     cfg.Tokens,
		httpClient: httpClient,
	}, nil
}

// Complete sends a plain prompt and returns the raw response text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.chat(ctx, systemPrompt, userPrompt, freeTextTemperature)
}

// CompleteStructured asks the provider to answer in the shape of out,
// then validates (and if needed repairs) the returned JSON.
//
// The user message carries the context payload, the question, and a
// reminder of the exact expected shape; the model still gets it wrong
// often enough that ParseStructured keeps a salvage path.
func (c *Client) CompleteStructured(ctx context.Context, systemPrompt, contextBlock, question string, out Schema) error {
	userPrompt := fmt.Sprintf("%s\nUser question: %s\n\nREMINDER OF THE EXACT RESPONSE SCHEMA:\n%s",
		contextBlock, question, out.SchemaHint())
	text, err := c.chat(ctx, "INSTRUCTIONS: "+systemPrompt, userPrompt, structuredTemperature)
	if err != nil {
		return err
	}
	return ParseStructured(text, out)
}

func (c *Client) chat(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	reqBody := chatRequest{
		Model:       c.model,
		Temperature: temperature,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.Value)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp chatErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return "", fmt.Errorf("llm api error: %s", errResp.Error.Message)
		}
		return "", fmt.Errorf("llm api error: %s", resp.Status)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("llm decode: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from llm api")
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from llm api")
	}
	return text, nil
}

// Chat-completions request/response types.

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
