package synth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/starford/folio/internal/apperr"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Gemini generates text through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

var _ Provider = (*Gemini)(nil)

// NewGemini creates the provider. Without a key the client is not built
// and every call reports missing credentials.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	g := &Gemini{model: cfg.Model}
	if cfg.APIKey == "" {
		return g, nil
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("synth: create gemini client: %w", err)
	}
	g.client = client
	return g, nil
}

// Name returns the provider and model.
func (g *Gemini) Name() string { return "gemini:" + g.model }

// Complete runs one generation with the system prompt as instruction.
func (g *Gemini) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	if g.client == nil {
		return nil, missingCredentials()
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.System, genai.RoleUser),
		Temperature:       genai.Ptr(float32(p.Temperature)),
		MaxOutputTokens:   int32(p.MaxTokens),
	}
	contents := []*genai.Content{
		genai.NewContentFromText(p.User, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, classifyGemini(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, &apperr.GenerationError{Code: apperr.CodeUnknown, Message: "provider returned no text"}
	}

	out := &Completion{Text: text}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

// Verify fetches the configured model, which fails on a bad key.
func (g *Gemini) Verify(ctx context.Context) error {
	if g.client == nil {
		return missingCredentials()
	}
	if _, err := g.client.Models.Get(ctx, g.model, nil); err != nil {
		return classifyGemini(err)
	}
	return nil
}

// classifyGemini maps a genai API error onto the generation taxonomy.
func classifyGemini(err error) *apperr.GenerationError {
	code, status, msg := 0, "", err.Error()

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code, status, msg = apiErr.Code, apiErr.Status, apiErr.Message
	case errors.As(err, &apiErrPtr):
		code, status, msg = apiErrPtr.Code, apiErrPtr.Status, apiErrPtr.Message
	}
	return classifyGeminiStatus(code, status, msg, err)
}

func classifyGeminiStatus(code int, status, msg string, cause error) *apperr.GenerationError {
	lower := strings.ToLower(msg)
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden ||
		status == "UNAUTHENTICATED" || status == "PERMISSION_DENIED" ||
		strings.Contains(lower, "api key not valid"):
		return &apperr.GenerationError{Code: apperr.CodeInvalidAPIKey, Message: "invalid provider API key", Err: cause}
	case code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		if strings.Contains(lower, "billing") {
			return &apperr.GenerationError{Code: apperr.CodeInsufficientQuota, Message: "provider quota exhausted", Err: cause}
		}
		return &apperr.GenerationError{Code: apperr.CodeRateLimited, Message: "provider rate limit exceeded, retry shortly", Err: cause}
	default:
		return &apperr.GenerationError{Code: apperr.CodeUnknown, Message: "provider request failed", Err: cause}
	}
}
