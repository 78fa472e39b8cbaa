package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/deriver"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/profile"
)

// Stats summarizes one synthesis.
type Stats struct {
	Words      int             `json:"words"`
	ReadTime   int             `json:"readTime"`
	Category   models.Category `json:"category"`
	TokensUsed int             `json:"tokensUsed"`
}

// Result is an unsaved record plus its stats.
type Result struct {
	Record *models.Record
	Stats  Stats
}

// Service builds records from provider completions. It never persists.
type Service struct {
	provider      Provider
	table         *profile.Table
	excerptLength int
	maxTokens     int
	temperature   float64
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithExcerptLength sets the excerpt bound in characters.
func WithExcerptLength(n int) Option {
	return func(s *Service) { s.excerptLength = n }
}

// WithSampling sets the completion budget and temperature. A temperature of
// zero is kept; negative values leave the default.
func WithSampling(maxTokens int, temperature float64) Option {
	return func(s *Service) {
		if maxTokens > 0 {
			s.maxTokens = maxTokens
		}
		if temperature >= 0 {
			s.temperature = temperature
		}
	}
}

// WithClock overrides the time source used for ids and publishedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service over provider and the category table.
func NewService(provider Provider, table *profile.Table, opts ...Option) *Service {
	s := &Service{
		provider:      provider,
		table:         table,
		excerptLength: deriver.ExcerptLength,
		maxTokens:     DefaultMaxTokens,
		temperature:   DefaultTemperature,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TopicSuggestions returns the suggested topics per category.
func (s *Service) TopicSuggestions() map[models.Category][]string {
	return s.table.Topics()
}

// VerifyCredentials runs the provider's lightweight key check.
func (s *Service) VerifyCredentials(ctx context.Context) error {
	if s.provider == nil {
		return missingCredentials()
	}
	return s.provider.Verify(ctx)
}

// Synthesize asks the provider for an article on topic and derives the
// full record from the returned text.
func (s *Service) Synthesize(ctx context.Context, category models.Category, topic string) (*Result, error) {
	topic = strings.TrimSpace(topic)
	cat, ok := s.table.Lookup(category)
	fields := map[string]string{}
	if !ok {
		fields["category"] = "must be one of medico-estetico, tecnico"
	}
	if topic == "" {
		fields["topic"] = "cannot be blank"
	}
	if len(fields) > 0 {
		return nil, &apperr.ValidationError{Fields: fields}
	}
	if s.provider == nil {
		return nil, missingCredentials()
	}

	user, err := cat.UserPrompt(topic)
	if err != nil {
		return nil, fmt.Errorf("synth: %w", err)
	}

	start := s.now()
	completion, err := s.provider.Complete(ctx, Prompt{
		System:      cat.System,
		User:        user,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		var genErr *apperr.GenerationError
		if !errors.As(err, &genErr) {
			err = &apperr.GenerationError{Code: apperr.CodeUnknown, Message: "provider request failed", Err: err}
		}
		s.logger.Error("generation failed",
			slog.String("provider", s.provider.Name()),
			slog.String("category", string(category)),
			slog.String("error", err.Error()))
		return nil, err
	}

	content := strings.TrimSpace(completion.Text)
	if content == "" {
		return nil, &apperr.GenerationError{Code: apperr.CodeUnknown, Message: "provider returned empty content"}
	}

	now := s.now().UTC()
	id := "blog-" + strconv.FormatInt(now.UnixMilli(), 10)
	title := deriver.Title(content)
	slug := deriver.Slug(title)
	if slug == "" {
		slug = id
	}
	excerpt := deriver.Excerpt(content, s.excerptLength)
	if excerpt == "" {
		excerpt = title
	}

	rec := &models.Record{
		ID:          id,
		Title:       title,
		Slug:        slug,
		Excerpt:     excerpt,
		Content:     content,
		Category:    cat.Name,
		Author:      cat.Author,
		PublishedAt: now,
		ReadTime:    deriver.ReadTime(content),
		Tags:        deriver.Tags(content, s.table.SeedTags(cat.Name), s.table.Keywords()),
		Source:      models.SourceGenerated,
	}

	res := &Result{
		Record: rec,
		Stats: Stats{
			Words:      deriver.WordCount(content),
			ReadTime:   rec.ReadTime,
			Category:   cat.Name,
			TokensUsed: completion.TokensUsed,
		},
	}
	s.logger.Info("article generated",
		slog.String("slug", rec.Slug),
		slog.String("category", string(rec.Category)),
		slog.Int("words", res.Stats.Words),
		slog.Int("tokens", res.Stats.TokensUsed),
		slog.Duration("took", s.now().Sub(start)))
	return res, nil
}
