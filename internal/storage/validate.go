package storage

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
)

// Record length limits.
const (
	MinTitleLength   = 5
	MinContentLength = 100
)

// HoldingSlug names the image holding area.
const HoldingSlug = "temporal"

// SlugPattern is the shape every stored slug must have.
var SlugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// reservedSlugs collide with bookkeeping paths: <root>/index.json is the
// summary and the holding area shares the image root with record slugs.
var reservedSlugs = []interface{}{"index", HoldingSlug}

// ValidSlug reports whether slug can name a stored record.
func ValidSlug(slug string) bool {
	if !SlugPattern.MatchString(slug) {
		return false
	}
	for _, r := range reservedSlugs {
		if slug == r {
			return false
		}
	}
	return true
}

func categoryRule() validation.Rule {
	cats := models.Categories()
	allowed := make([]interface{}, len(cats))
	for i, c := range cats {
		allowed[i] = c
	}
	return validation.In(allowed...).Error("must be one of medico-estetico, tecnico")
}

// Validate checks the structural invariants of a candidate record and
// returns an *apperr.ValidationError listing every failing field.
func Validate(r *models.Record) error {
	if r == nil {
		return &apperr.ValidationError{Fields: map[string]string{"record": "cannot be blank"}}
	}
	err := validation.ValidateStruct(r,
		validation.Field(&r.ID, validation.Required),
		validation.Field(&r.Title, validation.Required, validation.RuneLength(MinTitleLength, 0)),
		validation.Field(&r.Slug, validation.Required, validation.Match(SlugPattern).Error("must contain only lowercase letters, digits and single hyphens"),
			validation.NotIn(reservedSlugs...).Error("is reserved")),
		validation.Field(&r.Excerpt, validation.Required),
		validation.Field(&r.Content, validation.Required, validation.RuneLength(MinContentLength, 0)),
		validation.Field(&r.Category, validation.Required, categoryRule()),
		validation.Field(&r.Author, validation.Required),
		validation.Field(&r.PublishedAt, validation.Required),
		validation.Field(&r.Tags, validation.Required, validation.Each(validation.Required)),
	)
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for k, v := range verrs {
			fields[k] = v.Error()
		}
		return &apperr.ValidationError{Fields: fields}
	}
	return err
}
