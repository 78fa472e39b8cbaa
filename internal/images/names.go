package images

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/folio/internal/models"
)

var (
	unsafeNameRe = regexp.MustCompile(`[^a-z0-9]`)
	hyphenRunRe  = regexp.MustCompile(`-+`)
)

// Filename builds the stored name for an upload: the sanitized base name of
// original, a "-<stamp>" suffix and the lowercased original extension.
func Filename(original string, stamp int64) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	ext := filepath.Ext(base)
	name := strings.ToLower(strings.TrimSuffix(base, ext))
	name = unsafeNameRe.ReplaceAllString(name, "-")
	name = hyphenRunRe.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "imagen"
	}
	return name + "-" + strconv.FormatInt(stamp, 10) + strings.ToLower(ext)
}

var typeGroups = []struct {
	typ   models.ImageType
	terms []string
}{
	{models.ImagePrincipal, []string{"principal", "main", "hero"}},
	{models.ImageConclusion, []string{"conclusion", "final", "end"}},
	{models.ImageBefore, []string{"antes", "before"}},
	{models.ImageAfter, []string{"despues", "después", "after"}},
}

// Classify infers the semantic role of an image from its file name.
// The first matching group wins; anything else is content.
func Classify(name string) models.ImageType {
	lower := strings.ToLower(name)
	for _, g := range typeGroups {
		for _, term := range g.terms {
			if strings.Contains(lower, term) {
				return g.typ
			}
		}
	}
	return models.ImageContent
}
