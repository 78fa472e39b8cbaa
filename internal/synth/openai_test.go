package synth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/folio/internal/apperr"
)

func openAIServer(t *testing.T, status int, body string) (*httptest.Server, *chatCompletionRequest) {
	t.Helper()
	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestOpenAICompleteSuccess(t *testing.T) {
	srv, got := openAIServer(t, http.StatusOK, `{
		"choices": [{"message": {"content": "# Hola"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`)
	o := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"})

	c, err := o.Complete(context.Background(), Prompt{System: "sys", User: "usr", MaxTokens: 3000, Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "# Hola", c.Text)
	assert.Equal(t, 15, c.TokensUsed)

	assert.Equal(t, DefaultOpenAIModel, got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "usr", got.Messages[1].Content)
	assert.Equal(t, 3000, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
}

func TestOpenAISendsZeroTemperature(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	t.Cleanup(srv.Close)
	o := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})

	_, err := o.Complete(context.Background(), Prompt{User: "usr", MaxTokens: 100, Temperature: 0})
	require.NoError(t, err)
	require.Contains(t, raw, "temperature")
	assert.Equal(t, 0.0, raw["temperature"])
}

func TestOpenAIErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"invalid key", http.StatusUnauthorized,
			`{"error": {"message": "Incorrect API key", "type": "invalid_request_error", "code": "invalid_api_key"}}`,
			apperr.CodeInvalidAPIKey},
		{"quota", http.StatusTooManyRequests,
			`{"error": {"message": "You exceeded your current quota", "type": "insufficient_quota", "code": "insufficient_quota"}}`,
			apperr.CodeInsufficientQuota},
		{"rate limit", http.StatusTooManyRequests,
			`{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`,
			apperr.CodeRateLimited},
		{"server error", http.StatusInternalServerError, `upstream exploded`, apperr.CodeUnknown},
		{"no choices", http.StatusOK, `{"choices": []}`, apperr.CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := openAIServer(t, tt.status, tt.body)
			o := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})

			_, err := o.Complete(context.Background(), Prompt{User: "x"})
			var gerr *apperr.GenerationError
			require.True(t, errors.As(err, &gerr), "err = %v", err)
			assert.Equal(t, tt.want, gerr.Code)
		})
	}
}

func TestOpenAIMissingKey(t *testing.T) {
	o := NewOpenAI(OpenAIConfig{})
	_, err := o.Complete(context.Background(), Prompt{})
	var gerr *apperr.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, apperr.CodeMissingCredentials, gerr.Code)

	require.ErrorAs(t, o.Verify(context.Background()), &gerr)
	assert.Equal(t, apperr.CodeMissingCredentials, gerr.Code)
}

func TestOpenAIVerify(t *testing.T) {
	srv, _ := openAIServer(t, http.StatusOK, `{"data": []}`)
	assert.NoError(t, NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL}).Verify(context.Background()))

	bad, _ := openAIServer(t, http.StatusUnauthorized, `{"error": {"message": "bad key", "code": "invalid_api_key"}}`)
	err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: bad.URL}).Verify(context.Background())
	var gerr *apperr.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, apperr.CodeInvalidAPIKey, gerr.Code)
}

func TestGeminiStatusTaxonomy(t *testing.T) {
	cause := errors.New("cause")
	tests := []struct {
		code   int
		status string
		msg    string
		want   string
	}{
		{400, "INVALID_ARGUMENT", "API key not valid. Please pass a valid API key.", apperr.CodeInvalidAPIKey},
		{403, "PERMISSION_DENIED", "denied", apperr.CodeInvalidAPIKey},
		{429, "RESOURCE_EXHAUSTED", "Resource has been exhausted", apperr.CodeRateLimited},
		{429, "RESOURCE_EXHAUSTED", "Quota exceeded, check your plan and billing details", apperr.CodeInsufficientQuota},
		{500, "INTERNAL", "internal", apperr.CodeUnknown},
	}
	for _, tt := range tests {
		got := classifyGeminiStatus(tt.code, tt.status, tt.msg, cause)
		assert.Equal(t, tt.want, got.Code, "code=%d status=%s", tt.code, tt.status)
		assert.ErrorIs(t, got, cause)
	}
}

func TestGeminiWithoutKeyReportsMissingCredentials(t *testing.T) {
	g, err := NewGemini(context.Background(), GeminiConfig{})
	require.NoError(t, err)
	_, err = g.Complete(context.Background(), Prompt{User: "x"})
	var gerr *apperr.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, apperr.CodeMissingCredentials, gerr.Code)
}

func TestNewProviderKinds(t *testing.T) {
	p, err := NewProvider(context.Background(), ProviderConfig{Kind: KindOpenAI, Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-4o", p.Name())

	_, err = NewProvider(context.Background(), ProviderConfig{Kind: "bard"})
	assert.Error(t, err)
}
