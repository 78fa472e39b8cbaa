package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testStore(t *testing.T, names ...string) (*Store, []*FS) {
	t.Helper()
	if len(names) == 0 {
		names = []string{"project"}
	}
	var targets []Target
	var roots []*FS
	for _, n := range names {
		p := tempRoot(t)
		roots = append(roots, p)
		targets = append(targets, Target{Name: n, Provider: p})
	}
	s, err := New(targets, WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, roots
}

func sampleRecord(slug string, published time.Time) *models.Record {
	return &models.Record{
		ID:          "blog-1",
		Title:       "Título de prueba " + slug,
		Slug:        slug,
		Excerpt:     "Resumen breve.",
		Content:     strings.Repeat("contenido ", 20),
		Category:    models.CategoryAesthetic,
		Author:      "BIOSKIN Médico",
		PublishedAt: published,
		ReadTime:    1,
		Tags:        []string{"medicina estética"},
		Source:      models.SourceGenerated,
	}
}

func writeLegacy(t *testing.T, p *FS, r *models.Record) {
	t.Helper()
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Write(r.Slug+".json", data); err != nil {
		t.Fatal(err)
	}
}

func TestValidateBodyBoundary(t *testing.T) {
	r := sampleRecord("limite", fixedNow)
	r.Content = strings.Repeat("a", 99)
	err := Validate(r)
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate(99 chars) = %v, want ValidationError", err)
	}
	if msg, ok := verr.Fields["content"]; !ok || !strings.Contains(msg, "100") {
		t.Errorf("content field error = %q, want mention of 100", msg)
	}

	r.Content = strings.Repeat("a", 100)
	if err := Validate(r); err != nil {
		t.Errorf("Validate(100 chars) = %v, want nil", err)
	}
}

func TestValidateItemizesFields(t *testing.T) {
	r := &models.Record{Title: "abc", Category: "otro", Slug: "Bad Slug"}
	err := Validate(r)
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate = %v, want ValidationError", err)
	}
	for _, f := range []string{"id", "title", "slug", "excerpt", "content", "category", "author", "publishedAt", "tags"} {
		if _, ok := verr.Fields[f]; !ok {
			t.Errorf("missing field error for %q (got %v)", f, verr.Fields)
		}
	}
}

func TestSaveRejectedWritesNothing(t *testing.T) {
	s, roots := testStore(t, "project", "local")
	r := sampleRecord("rechazado", fixedNow)
	r.Tags = nil

	if _, err := s.Save(context.Background(), r); err == nil {
		t.Fatal("expected validation error")
	}
	for _, p := range roots {
		entries, _ := os.ReadDir(p.Root())
		if len(entries) != 0 {
			t.Errorf("%s: store changed after rejected save: %v", p.Root(), entries)
		}
	}
}

func TestSaveWritesOrganizedShapeToEveryTarget(t *testing.T) {
	s, roots := testStore(t, "project", "local")
	res, err := s.Save(context.Background(), sampleRecord("mi-articulo", fixedNow))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(res.Paths) != 4 || len(res.Targets) != 2 {
		t.Errorf("paths = %v, targets = %v", res.Paths, res.Targets)
	}
	for _, p := range roots {
		if !p.Exists("mi-articulo/index.json") || !p.Exists("mi-articulo/metadata.json") {
			t.Errorf("%s: organized files missing", p.Root())
		}
	}

	meta, err := readMetadata(roots[0], "mi-articulo")
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != models.StatusDraft || meta.Structure != models.ShapeOrganized {
		t.Errorf("metadata status/structure = %q/%q", meta.Status, meta.Structure)
	}
	if meta.SavedAt == nil || !meta.SavedAt.Equal(fixedNow) {
		t.Errorf("savedAt = %v, want %v", meta.SavedAt, fixedNow)
	}
	if meta.Source != models.SourceGenerated {
		t.Errorf("source = %q, want provenance preserved", meta.Source)
	}
	if !roots[0].Exists(IndexFile) {
		t.Error("index.json not written to canonical target")
	}
	if roots[1].Exists(IndexFile) {
		t.Error("index.json written to non-canonical target")
	}
}

func TestSaveListGetRoundTripDedupes(t *testing.T) {
	s, roots := testStore(t, "project", "local")
	ctx := context.Background()

	if _, err := s.Save(ctx, sampleRecord("compartido", fixedNow)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	older := sampleRecord("solo-local", fixedNow.Add(-time.Hour))
	writeLegacy(t, roots[1], older)

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(List) = %d, want 2", len(list))
	}
	if list[0].Slug != "compartido" || list[1].Slug != "solo-local" {
		t.Errorf("order = %s, %s", list[0].Slug, list[1].Slug)
	}
	if list[1].Structure != models.ShapeLegacy {
		t.Errorf("legacy record structure = %q", list[1].Structure)
	}

	got, err := s.Get(ctx, "compartido")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Título de prueba compartido" {
		t.Errorf("title = %q", got.Title)
	}
	if _, err := s.Get(ctx, "no-existe"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestListPrefersFirstTarget(t *testing.T) {
	s, roots := testStore(t, "project", "local")
	a := sampleRecord("igual", fixedNow)
	a.Title = "Versión proyecto"
	b := sampleRecord("igual", fixedNow)
	b.Title = "Versión local"
	writeLegacy(t, roots[0], a)
	writeLegacy(t, roots[1], b)

	list, err := s.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Title != "Versión proyecto" {
		t.Errorf("List = %+v, want single project record", list)
	}
}

func TestRebuildIndexClassifiesShapes(t *testing.T) {
	s, roots := testStore(t)
	ctx := context.Background()
	if _, err := s.Save(ctx, sampleRecord("nuevo", fixedNow)); err != nil {
		t.Fatal(err)
	}
	legacy := sampleRecord("viejo", fixedNow.Add(-48*time.Hour))
	legacy.Source = ""
	writeLegacy(t, roots[0], legacy)

	first, err := s.RebuildIndex(ctx)
	if err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	if first.Total != 2 || first.Organized != 1 || first.Legacy != 1 {
		t.Errorf("summary = %+v", first)
	}
	if first.Blogs[0].Slug != "nuevo" {
		t.Errorf("first entry = %q, want newest first", first.Blogs[0].Slug)
	}
	if first.Blogs[1].Source != models.SourceLegacy || first.Blogs[1].Structure != models.ShapeLegacy {
		t.Errorf("legacy entry = %+v", first.Blogs[1])
	}

	second, err := s.RebuildIndex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.Total != first.Total {
		t.Errorf("rebuild not idempotent: %d then %d", first.Total, second.Total)
	}

	onDisk, err := s.ReadIndex(ctx)
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if onDisk.Total != 2 {
		t.Errorf("index.json total = %d", onDisk.Total)
	}
}

func TestDeleteAcrossTargets(t *testing.T) {
	s, roots := testStore(t, "project", "local")
	ctx := context.Background()
	if _, err := s.Save(ctx, sampleRecord("borrar", fixedNow)); err != nil {
		t.Fatal(err)
	}
	writeLegacy(t, roots[1], sampleRecord("borrar", fixedNow))

	ok, err := s.Delete(ctx, "borrar")
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	for _, p := range roots {
		if p.Exists("borrar") || p.Exists("borrar.json") {
			t.Errorf("%s: record still on disk", p.Root())
		}
	}
	ok, err = s.Delete(ctx, "borrar")
	if err != nil || ok {
		t.Errorf("second Delete = %v, %v; want false, nil", ok, err)
	}
	idx, _ := s.ReadIndex(ctx)
	if idx.Total != 0 {
		t.Errorf("index total = %d after delete", idx.Total)
	}
}

func TestAppendImagesAndSetPublication(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	if _, err := s.Save(ctx, sampleRecord("con-fotos", fixedNow)); err != nil {
		t.Fatal(err)
	}
	ref := models.ImageRef{URL: "/images/blog/con-fotos/hero-1.png", Filename: "hero-1.png", Type: models.ImagePrincipal}
	if err := s.AppendImages(ctx, "con-fotos", ref); err != nil {
		t.Fatalf("AppendImages: %v", err)
	}
	published := fixedNow.Add(time.Hour)
	if err := s.SetPublication(ctx, "con-fotos", models.StatusPublished, published); err != nil {
		t.Fatalf("SetPublication: %v", err)
	}

	got, err := s.Get(ctx, "con-fotos")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Images) != 1 || got.Images[0].Filename != "hero-1.png" {
		t.Errorf("images = %+v", got.Images)
	}
	if got.Status != models.StatusPublished || !got.PublishedAt.Equal(published) {
		t.Errorf("status = %q, publishedAt = %v", got.Status, got.PublishedAt)
	}

	// A re-save keeps the associated images.
	if _, err := s.Save(ctx, sampleRecord("con-fotos", fixedNow)); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(ctx, "con-fotos")
	if len(got.Images) != 1 {
		t.Errorf("images after re-save = %d, want 1", len(got.Images))
	}

	if err := s.AppendImages(ctx, "falta", ref); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("AppendImages(missing) = %v, want ErrNotFound", err)
	}
}

func TestLocate(t *testing.T) {
	s, roots := testStore(t)
	ctx := context.Background()
	if _, err := s.Save(ctx, sampleRecord("organizado", fixedNow)); err != nil {
		t.Fatal(err)
	}
	writeLegacy(t, roots[0], sampleRecord("plano", fixedNow))
	_ = roots[0].Write("roto.json", []byte("{not json"))

	loc, err := s.Locate(ctx, "organizado")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.Shape != models.ShapeOrganized || loc.Dir != filepath.Join(roots[0].Root(), "organizado") {
		t.Errorf("organized location = %+v", loc)
	}
	loc, err = s.Locate(ctx, "plano")
	if err != nil || loc.Shape != models.ShapeLegacy {
		t.Errorf("legacy location = %+v, %v", loc, err)
	}
	if _, err := s.Locate(ctx, "roto"); err == nil || !strings.Contains(err.Error(), "roto.json") {
		t.Errorf("Locate(corrupt) = %v, want error naming the file", err)
	}
	if _, err := s.Locate(ctx, "ausente"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Locate(missing) = %v, want ErrNotFound", err)
	}
}

func TestExportMarkdown(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	r := sampleRecord("exportar", fixedNow)
	r.Tags = []string{"uno", "dos"}
	if _, err := s.Save(ctx, r); err != nil {
		t.Fatal(err)
	}
	exp, err := s.Export(ctx, "exportar", "md")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	body := string(exp.Body)
	for _, want := range []string{
		"---\ntitle: Título de prueba exportar\n",
		"slug: exportar\n",
		"tags: uno, dos\n",
		"readTime: 1\n",
		"featured: false\n---\n\ncontenido",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("markdown export missing %q:\n%s", want, body)
		}
	}

	exp, err = s.Export(ctx, "exportar", "toml")
	if err != nil {
		t.Fatalf("Export toml: %v", err)
	}
	if !strings.HasPrefix(string(exp.Body), "+++\n") || !strings.Contains(string(exp.Body), "draft = true") {
		t.Errorf("toml export = %s", exp.Body)
	}

	if _, err := s.Export(ctx, "exportar", "pdf"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Export(pdf) = %v, want ErrUnsupportedFormat", err)
	}
}

func TestStats(t *testing.T) {
	recs := []*models.Record{
		{Category: models.CategoryAesthetic, Author: "A", Content: "uno dos tres", ReadTime: 1},
		{Category: models.CategoryTechnical, Author: "B", Content: "cuatro  cinco", ReadTime: 2},
		{Category: models.CategoryTechnical, Author: "B", Content: "", ReadTime: 2},
	}
	st := ComputeStats(recs)
	if st.Total != 3 || st.ByCategory["tecnico"] != 2 || st.ByAuthor["A"] != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.TotalWords != 5 {
		t.Errorf("totalWords = %d, want 5", st.TotalWords)
	}
	if st.AverageReadTime != 2 {
		t.Errorf("averageReadTime = %d, want 2", st.AverageReadTime)
	}
	if empty := ComputeStats(nil); empty.AverageReadTime != 0 || empty.Total != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}

func TestLegacyRecordWithBareDate(t *testing.T) {
	s, roots := testStore(t)
	ctx := context.Background()
	legacy := `{"id":"blog-7","title":"Artículo antiguo","slug":"viejo","excerpt":"Resumen.",` +
		`"content":"Texto.","category":"tecnico","author":"BIOSKIN","publishedAt":"2024-10-07",` +
		`"readTime":2,"tags":["láser"]}`
	if err := roots[0].Write("viejo.json", []byte(legacy)); err != nil {
		t.Fatal(err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Slug != "viejo" {
		t.Fatalf("list = %+v", list)
	}

	got, err := s.Get(ctx, "viejo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC)
	if !got.PublishedAt.Equal(want) || got.Structure != models.ShapeLegacy {
		t.Errorf("record = %v / %q", got.PublishedAt, got.Structure)
	}

	idx, err := s.RebuildIndex(ctx)
	if err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	if idx.Total != 1 || idx.Legacy != 1 {
		t.Errorf("index total = %d, legacy = %d; want 1, 1", idx.Total, idx.Legacy)
	}
}

func TestReservedSlugs(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	if _, err := s.RebuildIndex(ctx); err != nil {
		t.Fatal(err)
	}

	for _, slug := range []string{"index", HoldingSlug} {
		if ValidSlug(slug) {
			t.Errorf("ValidSlug(%q) = true", slug)
		}
		if _, err := s.Get(ctx, slug); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Get(%q) = %v, want ErrNotFound", slug, err)
		}
		if _, err := s.Locate(ctx, slug); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Locate(%q) = %v, want ErrNotFound", slug, err)
		}

		_, err := s.Save(ctx, sampleRecord(slug, fixedNow))
		var verr *apperr.ValidationError
		if !errors.As(err, &verr) || verr.Fields["slug"] == "" {
			t.Errorf("Save(%q) = %v, want slug validation error", slug, err)
		}
	}
	if !ValidSlug("indexado") {
		t.Error("ValidSlug(indexado) = false")
	}
}
