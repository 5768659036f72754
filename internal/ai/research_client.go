package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrProviderUnavailable is returned when no API key is configured.
var ErrProviderUnavailable = errors.New("research provider not configured")

// SearchRequest is one provider query. Model selection comes from the
// query plan; SystemPrompt is optional.
type SearchRequest struct {
	Query        string
	SystemPrompt string
	Model        string
}

type SearchResult struct {
	Text    string
	ModelID string
	Usage   TokenUsage
}

type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type ResearchClientConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// ResearchClient wraps an OpenAI-compatible chat-completions API used as
// the deep-research provider. Transient failures are retried a bounded
// number of times; every call has a hard timeout.
type ResearchClient struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
}

func NewResearchClient(config ResearchClientConfig) *ResearchClient {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "https://api.perplexity.ai"
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	return &ResearchClient{
		apiKey:     strings.TrimSpace(config.APIKey),
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		timeout:    config.Timeout,
		maxRetries: config.MaxRetries,
		httpClient: config.HTTPClient,
	}
}

func (c *ResearchClient) Available() bool {
	return c.apiKey != ""
}

func (c *ResearchClient) Search(ctx context.Context, request SearchRequest) (SearchResult, error) {
	if !c.Available() {
		return SearchResult{}, ErrProviderUnavailable
	}
	if strings.TrimSpace(request.Model) == "" {
		return SearchResult{}, errors.New("model is required")
	}
	if strings.TrimSpace(request.Query) == "" {
		return SearchResult{}, errors.New("query is required")
	}

	messages := make([]map[string]string, 0, 2)
	if strings.TrimSpace(request.SystemPrompt) != "" {
		messages = append(messages, map[string]string{
			"role":    "system",
			"content": strings.TrimSpace(request.SystemPrompt),
		})
	}
	messages = append(messages, map[string]string{
		"role":    "user",
		"content": request.Query,
	})

	payload := map[string]any{
		"model":    request.Model,
		"messages": messages,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return SearchResult{}, fmt.Errorf("marshal provider payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		result, callErr := c.callChatCompletionsAPI(ctx, encoded, request.Model)
		if callErr == nil {
			return result, nil
		}
		lastErr = callErr

		if !IsRetryable(callErr) || attempt == c.maxRetries {
			break
		}

		backoff := time.Duration(300*(attempt+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return SearchResult{}, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if lastErr == nil {
		lastErr = errors.New("unknown provider error")
	}
	return SearchResult{}, lastErr
}

func (c *ResearchClient) callChatCompletionsAPI(
	ctx context.Context,
	payload []byte,
	requestedModel string,
) (SearchResult, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpRequest, err := http.NewRequestWithContext(
		timeoutCtx,
		http.MethodPost,
		c.baseURL+"/chat/completions",
		bytes.NewReader(payload),
	)
	if err != nil {
		return SearchResult{}, fmt.Errorf("create provider request: %w", err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Accept", "application/json")

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return SearchResult{}, fmt.Errorf("provider timeout: %w", err)
		}
		return SearchResult{}, fmt.Errorf("provider transport error: %w", err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return SearchResult{}, fmt.Errorf("read provider body: %w", err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		message := strings.TrimSpace(string(body))
		if len(message) > 700 {
			message = message[:700]
		}
		return SearchResult{}, &providerHTTPError{
			StatusCode: httpResponse.StatusCode,
			Message:    message,
		}
	}

	var raw chatCompletionsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return SearchResult{}, fmt.Errorf("decode provider response: %w", err)
	}

	text := extractText(raw)
	if strings.TrimSpace(text) == "" {
		return SearchResult{}, errors.New("provider response without text output")
	}

	return SearchResult{
		Text:    text,
		ModelID: firstNonEmpty(raw.Model, requestedModel),
		Usage: TokenUsage{
			InputTokens:  raw.Usage.PromptTokens,
			OutputTokens: raw.Usage.CompletionTokens,
			TotalTokens:  raw.Usage.TotalTokens,
		},
	}, nil
}

type chatCompletionsResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func extractText(response chatCompletionsResponse) string {
	if len(response.Choices) == 0 {
		return ""
	}
	content := response.Choices[0].Message.Content
	switch typed := content.(type) {
	case string:
		return strings.TrimSpace(typed)
	case []any:
		fragments := make([]string, 0, len(typed))
		for _, item := range typed {
			fragment, ok := item.(map[string]any)
			if !ok {
				continue
			}
			textValue, _ := fragment["text"].(string)
			if strings.TrimSpace(textValue) == "" {
				continue
			}
			fragments = append(fragments, strings.TrimSpace(textValue))
		}
		return strings.TrimSpace(strings.Join(fragments, "\n"))
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

type providerHTTPError struct {
	StatusCode int
	Message    string
}

func (e *providerHTTPError) Error() string {
	return fmt.Sprintf("research provider status %d: %s", e.StatusCode, e.Message)
}

// IsRetryable classifies transient provider failures: rate limits,
// server errors and timeouts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *providerHTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "timeout") || strings.Contains(message, "temporar")
}
