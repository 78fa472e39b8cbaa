package synth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/profile"
)

type fakeProvider struct {
	CompleteFn func(ctx context.Context, p Prompt) (*Completion, error)
	VerifyFn   func(ctx context.Context) error
	calls      int
	last       Prompt
}

var _ Provider = (*fakeProvider)(nil)

func (f *fakeProvider) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	f.calls++
	f.last = p
	return f.CompleteFn(ctx, p)
}

func (f *fakeProvider) Verify(ctx context.Context) error {
	if f.VerifyFn != nil {
		return f.VerifyFn(ctx)
	}
	return nil
}

func (f *fakeProvider) Name() string { return "fake" }

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newService(t *testing.T, p Provider) *Service {
	t.Helper()
	table, err := profile.Default()
	require.NoError(t, err)
	return NewService(p, table, WithClock(func() time.Time { return fixedNow }))
}

const sampleArticle = "# Tratamiento Láser Facial\n\n" +
	"El **láser** rejuvenece la piel y estimula colágeno nuevo.\n\n" +
	"## Protocolo\n\nCada sesión dura treinta minutos y no requiere reposo prolongado."

func TestSynthesizeBuildsRecord(t *testing.T) {
	p := &fakeProvider{CompleteFn: func(context.Context, Prompt) (*Completion, error) {
		return &Completion{Text: sampleArticle, TokensUsed: 321}, nil
	}}
	svc := newService(t, p)

	res, err := svc.Synthesize(context.Background(), models.CategoryAesthetic, "Rejuvenecimiento facial con láser")
	require.NoError(t, err)
	rec := res.Record

	assert.Equal(t, "blog-"+strconv.FormatInt(fixedNow.UnixMilli(), 10), rec.ID)
	assert.Equal(t, "Tratamiento Láser Facial", rec.Title)
	assert.Equal(t, "tratamiento-laser-facial", rec.Slug)
	assert.Equal(t, "El láser rejuvenece la piel y estimula colágeno nuevo.", rec.Excerpt)
	assert.Equal(t, models.CategoryAesthetic, rec.Category)
	assert.Equal(t, "BIOSKIN Médico", rec.Author)
	assert.Equal(t, models.SourceGenerated, rec.Source)
	assert.Equal(t, 1, rec.ReadTime)
	assert.True(t, rec.PublishedAt.Equal(fixedNow))
	assert.Equal(t, []string{"medicina estética", "tratamientos", "BIOSKIN", "rejuvenecimiento", "láser", "colágeno"}, rec.Tags)
	assert.Empty(t, rec.Image)
	assert.Empty(t, rec.ImagePrimary)
	assert.Empty(t, rec.ImageConclusion)
	assert.False(t, rec.Featured)

	assert.Equal(t, 321, res.Stats.TokensUsed)
	assert.Equal(t, len(strings.Fields(sampleArticle)), res.Stats.Words)
	assert.Equal(t, models.CategoryAesthetic, res.Stats.Category)

	assert.Contains(t, p.last.User, `"Rejuvenecimiento facial con láser"`)
	assert.NotEmpty(t, p.last.System)
	assert.Equal(t, DefaultMaxTokens, p.last.MaxTokens)
	assert.InDelta(t, DefaultTemperature, p.last.Temperature, 1e-9)
}

func TestSynthesizeHonorsZeroTemperature(t *testing.T) {
	p := &fakeProvider{CompleteFn: func(context.Context, Prompt) (*Completion, error) {
		return &Completion{Text: sampleArticle}, nil
	}}
	table, err := profile.Default()
	require.NoError(t, err)
	svc := NewService(p, table, WithClock(func() time.Time { return fixedNow }), WithSampling(1200, 0))

	_, err = svc.Synthesize(context.Background(), models.CategoryAesthetic, "Láser")
	require.NoError(t, err)
	assert.Equal(t, 1200, p.last.MaxTokens)
	assert.Zero(t, p.last.Temperature)
}

func TestSynthesizeTechnicalAuthor(t *testing.T) {
	p := &fakeProvider{CompleteFn: func(context.Context, Prompt) (*Completion, error) {
		return &Completion{Text: "# Mantenimiento de equipos HIFU\n\nGuía técnica."}, nil
	}}
	res, err := newService(t, p).Synthesize(context.Background(), models.CategoryTechnical, "HIFU")
	require.NoError(t, err)
	assert.Equal(t, "BIOSKIN Técnico", res.Record.Author)
	assert.Equal(t, "mantenimiento-de-equipos-hifu", res.Record.Slug)
}

func TestSynthesizeRejectsBeforeCallingProvider(t *testing.T) {
	p := &fakeProvider{CompleteFn: func(context.Context, Prompt) (*Completion, error) {
		t.Fatal("provider must not be called")
		return nil, nil
	}}
	svc := newService(t, p)

	_, err := svc.Synthesize(context.Background(), "cosmetica", "  ")
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "category")
	assert.Contains(t, verr.Fields, "topic")
	assert.Zero(t, p.calls)
}

func TestSynthesizeWithoutTitleUsesPlaceholder(t *testing.T) {
	p := &fakeProvider{CompleteFn: func(context.Context, Prompt) (*Completion, error) {
		return &Completion{Text: "Texto sin encabezado."}, nil
	}}
	res, err := newService(t, p).Synthesize(context.Background(), models.CategoryAesthetic, "tema")
	require.NoError(t, err)
	assert.Equal(t, "Blog Sin Título", res.Record.Title)
	assert.Equal(t, "blog-sin-titulo", res.Record.Slug)
}

func TestSynthesizePropagatesClassifiedErrors(t *testing.T) {
	quota := &apperr.GenerationError{Code: apperr.CodeInsufficientQuota, Message: "provider quota exhausted"}
	p := &fakeProvider{CompleteFn: func(context.Context, Prompt) (*Completion, error) {
		return nil, quota
	}}
	_, err := newService(t, p).Synthesize(context.Background(), models.CategoryAesthetic, "tema")
	assert.Same(t, quota, err)
}

func TestSynthesizeWrapsUnclassifiedErrors(t *testing.T) {
	boom := errors.New("boom")
	p := &fakeProvider{CompleteFn: func(context.Context, Prompt) (*Completion, error) {
		return nil, boom
	}}
	_, err := newService(t, p).Synthesize(context.Background(), models.CategoryAesthetic, "tema")
	var gerr *apperr.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, apperr.CodeUnknown, gerr.Code)
	assert.ErrorIs(t, err, boom)
}

func TestSynthesizeEmptyCompletion(t *testing.T) {
	p := &fakeProvider{CompleteFn: func(context.Context, Prompt) (*Completion, error) {
		return &Completion{Text: "   \n"}, nil
	}}
	_, err := newService(t, p).Synthesize(context.Background(), models.CategoryAesthetic, "tema")
	var gerr *apperr.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, apperr.CodeUnknown, gerr.Code)
}

func TestMissingProvider(t *testing.T) {
	svc := newService(t, nil)
	_, err := svc.Synthesize(context.Background(), models.CategoryAesthetic, "tema")
	var gerr *apperr.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, apperr.CodeMissingCredentials, gerr.Code)

	err = svc.VerifyCredentials(context.Background())
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, apperr.CodeMissingCredentials, gerr.Code)
}

func TestTopicSuggestions(t *testing.T) {
	topics := newService(t, &fakeProvider{}).TopicSuggestions()
	assert.Len(t, topics, 2)
	assert.NotEmpty(t, topics[models.CategoryAesthetic])
	assert.NotEmpty(t, topics[models.CategoryTechnical])
}
