package profile

import (
	"strings"
	"testing"

	"github.com/starford/folio/internal/models"
)

func TestDefaultTable(t *testing.T) {
	tbl, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	for _, c := range models.Categories() {
		p, ok := tbl.Lookup(c)
		if !ok {
			t.Fatalf("Lookup(%q) missing", c)
		}
		if p.Author == "" || p.System == "" {
			t.Errorf("%s: author or system prompt empty", c)
		}
		if len(p.Topics) != 10 {
			t.Errorf("%s: topics = %d, want 10", c, len(p.Topics))
		}
	}
	if got := tbl.SeedTags(models.CategoryTechnical); len(got) != 4 || got[0] != "tecnología" {
		t.Errorf("SeedTags(tecnico) = %v", got)
	}
}

func TestUserPromptRendersTopic(t *testing.T) {
	tbl, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	p, _ := tbl.Lookup(models.CategoryAesthetic)
	got, err := p.UserPrompt("Peeling químico")
	if err != nil {
		t.Fatalf("UserPrompt: %v", err)
	}
	if !strings.Contains(got, `"Peeling químico"`) {
		t.Errorf("prompt does not quote the topic:\n%s", got)
	}
}

func TestKeywordFindWholeWord(t *testing.T) {
	tbl, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	laser := tbl.Keywords()[0]
	tests := []struct {
		text string
		want string
	}{
		{"Tratamiento con LÁSER fraccionado", "LÁSER"},
		{"el laser de CO2", "laser"},
		{"laseres no cuenta", ""},
		{"sin coincidencias", ""},
	}
	for _, tt := range tests {
		if got := laser.Find(tt.text); got != tt.want {
			t.Errorf("Find(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestParseRejectsUnknownCategory(t *testing.T) {
	_, err := Parse([]byte("categories:\n  - name: otro\n    user: x\n"))
	if err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestParseRequiresEveryCategory(t *testing.T) {
	_, err := Parse([]byte("categories:\n  - name: tecnico\n    user: x\n"))
	if err == nil {
		t.Fatal("expected error for missing category")
	}
}

func TestTopicsAreCopies(t *testing.T) {
	tbl, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	topics := tbl.Topics()
	topics[models.CategoryTechnical][0] = "changed"
	if tbl.Topics()[models.CategoryTechnical][0] == "changed" {
		t.Error("Topics leaked internal slice")
	}
}
