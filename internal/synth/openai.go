package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/starford/folio/internal/apperr"
)

// OpenAI defaults.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4"
)

// OpenAIConfig configures the OpenAI chat-completions provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
}

// OpenAI calls the /chat/completions endpoint of an OpenAI-compatible API.
type OpenAI struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

var _ Provider = (*OpenAI)(nil)

type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []chatCompletionMsg `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature"`
}

type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *openAIError `json:"error,omitempty"`
}

// NewOpenAI creates the provider. A missing key is reported by Complete
// and Verify, not here, so the server can start without credentials.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAI{
		client:  client,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// Name returns the provider and model.
func (o *OpenAI) Name() string { return "openai:" + o.model }

func missingCredentials() error {
	return &apperr.GenerationError{
		Code:    apperr.CodeMissingCredentials,
		Message: "provider API key is not configured",
	}
}

// Complete sends one system+user chat completion.
func (o *OpenAI) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	if o.apiKey == "" {
		return nil, missingCredentials()
	}

	reqBody := chatCompletionRequest{
		Model: o.model,
		Messages: []chatCompletionMsg{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("synth: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("synth: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &apperr.GenerationError{Code: apperr.CodeUnknown, Message: "provider request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.GenerationError{Code: apperr.CodeUnknown, Message: "read provider response", Err: err}
	}

	var chatResp chatCompletionResponse
	decodeErr := json.Unmarshal(body, &chatResp)
	if resp.StatusCode != http.StatusOK || chatResp.Error != nil {
		return nil, classifyOpenAI(resp.StatusCode, chatResp.Error, body)
	}
	if decodeErr != nil {
		return nil, &apperr.GenerationError{Code: apperr.CodeUnknown, Message: "decode provider response", Err: decodeErr}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &apperr.GenerationError{Code: apperr.CodeUnknown, Message: "provider returned no choices"}
	}

	return &Completion{
		Text:       chatResp.Choices[0].Message.Content,
		TokensUsed: chatResp.Usage.TotalTokens,
	}, nil
}

// Verify checks the key against the /models endpoint without running inference.
func (o *OpenAI) Verify(ctx context.Context) error {
	if o.apiKey == "" {
		return missingCredentials()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("synth: create verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return &apperr.GenerationError{Code: apperr.CodeUnknown, Message: "provider unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		Error *openAIError `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	return classifyOpenAI(resp.StatusCode, payload.Error, body)
}

// classifyOpenAI maps an OpenAI failure onto the generation taxonomy.
func classifyOpenAI(status int, apiErr *openAIError, body []byte) *apperr.GenerationError {
	var errType, errCode, msg string
	if apiErr != nil {
		errType, errCode, msg = apiErr.Type, apiErr.Code, apiErr.Message
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	cause := fmt.Errorf("openai: status %d: %s", status, msg)

	switch {
	case status == http.StatusUnauthorized || errCode == apperr.CodeInvalidAPIKey:
		return &apperr.GenerationError{Code: apperr.CodeInvalidAPIKey, Message: "invalid provider API key", Err: cause}
	case errType == apperr.CodeInsufficientQuota || errCode == apperr.CodeInsufficientQuota:
		return &apperr.GenerationError{Code: apperr.CodeInsufficientQuota, Message: "provider quota exhausted", Err: cause}
	case status == http.StatusTooManyRequests || errCode == apperr.CodeRateLimited:
		return &apperr.GenerationError{Code: apperr.CodeRateLimited, Message: "provider rate limit exceeded, retry shortly", Err: cause}
	default:
		return &apperr.GenerationError{Code: apperr.CodeUnknown, Message: "provider request failed", Err: cause}
	}
}
