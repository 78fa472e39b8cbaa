package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/storage"
)

var stamp = time.Unix(1700000000, 42).UTC()

type fakeAssociator struct {
	AppendImagesFn func(ctx context.Context, slug string, refs ...models.ImageRef) error
	calls          map[string][]models.ImageRef
}

var _ Associator = (*fakeAssociator)(nil)

func (f *fakeAssociator) AppendImages(ctx context.Context, slug string, refs ...models.ImageRef) error {
	if f.calls == nil {
		f.calls = make(map[string][]models.ImageRef)
	}
	f.calls[slug] = append(f.calls[slug], refs...)
	if f.AppendImagesFn != nil {
		return f.AppendImagesFn(ctx, slug, refs...)
	}
	return nil
}

func newManager(t *testing.T, cfg Config) (*Manager, *fakeAssociator, string) {
	t.Helper()
	root := t.TempDir()
	files, err := storage.NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	assoc := &fakeAssociator{}
	return New(files, assoc, cfg, WithClock(func() time.Time { return stamp })), assoc, root
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Foto Principal.PNG", "foto-principal-7.png"},
		{"  --Antes__y despues!!.jpg", "antes-y-despues-7.jpg"},
		{"ñandú.webp", "and-7.webp"},
		{"....png", "imagen-7.png"},
		{"../../etc/passwd", "passwd-7"},
	}
	for _, tt := range tests {
		if got := Filename(tt.in, 7); got != tt.want {
			t.Errorf("Filename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want models.ImageType
	}{
		{"hero-banner.png", models.ImagePrincipal},
		{"MAIN.jpg", models.ImagePrincipal},
		{"resultado-final.png", models.ImageConclusion},
		{"antes-tratamiento.png", models.ImageBefore},
		{"Before.png", models.ImageBefore},
		{"después.png", models.ImageAfter},
		{"after-1.png", models.ImageAfter},
		{"detalle.png", models.ImageContent},
		// principal outranks antes.
		{"principal-antes.png", models.ImagePrincipal},
	}
	for _, tt := range tests {
		if got := Classify(tt.name); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestRecordUploadToHolding(t *testing.T) {
	m, assoc, root := newManager(t, Config{})
	ref, err := m.RecordUpload(context.Background(), "", "Hero Shot.png", bytes.NewReader(pngBytes(t, 4, 3)))
	if err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	wantName := fmt.Sprintf("hero-shot-%d.png", stamp.UnixNano())
	if ref.Filename != wantName {
		t.Errorf("filename = %q, want %q", ref.Filename, wantName)
	}
	if ref.URL != "/images/blog/temporal/"+wantName {
		t.Errorf("url = %q", ref.URL)
	}
	if ref.Type != models.ImagePrincipal || ref.Width != 4 || ref.Height != 3 {
		t.Errorf("ref = %+v", ref)
	}
	if _, err := os.Stat(filepath.Join(root, HoldingKey, wantName)); err != nil {
		t.Errorf("file not stored: %v", err)
	}
	if len(assoc.calls) != 0 {
		t.Errorf("holding upload associated: %v", assoc.calls)
	}
}

func TestRecordUploadAssociatesWithSlug(t *testing.T) {
	m, assoc, _ := newManager(t, Config{URLPrefix: "/media/"})
	ref, err := m.RecordUpload(context.Background(), "mi-blog", "a.png", bytes.NewReader(pngBytes(t, 2, 2)))
	if err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	if !strings.HasPrefix(ref.URL, "/media/mi-blog/a-") {
		t.Errorf("url = %q", ref.URL)
	}
	if len(assoc.calls["mi-blog"]) != 1 {
		t.Errorf("associations = %v", assoc.calls)
	}
	if !m.HasImages("mi-blog") || m.HasImages("otro") {
		t.Error("HasImages mismatch")
	}
}

func TestRecordUploadMissingRecordIsNotAnError(t *testing.T) {
	m, assoc, _ := newManager(t, Config{})
	assoc.AppendImagesFn = func(context.Context, string, ...models.ImageRef) error {
		return fmt.Errorf("storage: append: %w", apperr.ErrNotFound)
	}
	if _, err := m.RecordUpload(context.Background(), "aun-no", "x.png", bytes.NewReader(pngBytes(t, 1, 1))); err != nil {
		t.Errorf("RecordUpload = %v, want nil", err)
	}
}

func TestRecordUploadRejects(t *testing.T) {
	m, _, root := newManager(t, Config{MaxUploadBytes: 64})
	ctx := context.Background()

	cases := []struct {
		name  string
		owner string
		file  string
		data  []byte
	}{
		{"not an image", "", "notes.png", []byte("hello, this is plain text and not an image")},
		{"too large", "", "big.png", bytes.Repeat([]byte{0}, 65)},
		{"empty", "", "empty.png", nil},
		{"svg without tag", "", "x.svg", []byte("<html></html>")},
		{"bad owner", "../x", "a.png", pngBytes(t, 1, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.RecordUpload(ctx, tc.owner, tc.file, bytes.NewReader(tc.data))
			var verr *apperr.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Errorf("rejected uploads left files: %v", entries)
	}
}

func TestRecordUploadSVG(t *testing.T) {
	m, _, _ := newManager(t, Config{})
	svg := []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"></svg>`)
	ref, err := m.RecordUpload(context.Background(), "", "logo.svg", bytes.NewReader(svg))
	if err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	if !strings.HasSuffix(ref.Filename, ".svg") || ref.Width != 0 {
		t.Errorf("ref = %+v", ref)
	}
}

func TestRecordUploadDownscales(t *testing.T) {
	m, _, _ := newManager(t, Config{MaxWidth: 10})
	ref, err := m.RecordUpload(context.Background(), "", "wide.png", bytes.NewReader(pngBytes(t, 40, 20)))
	if err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	if ref.Width != 10 || ref.Height != 5 {
		t.Errorf("dims = %dx%d, want 10x5", ref.Width, ref.Height)
	}
}

func TestMigrateHeld(t *testing.T) {
	m, assoc, root := newManager(t, Config{})
	ctx := context.Background()
	for _, name := range []string{"hero.png", "antes.png"} {
		if _, err := m.RecordUpload(ctx, "", name, bytes.NewReader(pngBytes(t, 2, 2))); err != nil {
			t.Fatal(err)
		}
	}

	res, err := m.MigrateHeld(ctx, "nuevo-blog")
	if err != nil {
		t.Fatalf("MigrateHeld: %v", err)
	}
	if len(res.Moved) != 2 || len(res.Failed) != 0 {
		t.Fatalf("result = %+v", res)
	}
	for _, ref := range res.Moved {
		if !strings.HasPrefix(ref.URL, "/images/blog/nuevo-blog/") || ref.Size == 0 {
			t.Errorf("moved ref = %+v", ref)
		}
	}
	if _, err := os.Stat(filepath.Join(root, HoldingKey)); !os.IsNotExist(err) {
		t.Errorf("holding dir still present: %v", err)
	}
	if len(assoc.calls["nuevo-blog"]) != 2 {
		t.Errorf("associated = %v", assoc.calls["nuevo-blog"])
	}

	res, err = m.MigrateHeld(ctx, "nuevo-blog")
	if err != nil || len(res.Moved) != 0 {
		t.Errorf("second MigrateHeld = %+v, %v", res, err)
	}
}

func TestMigrateHeldKeepsNonEmptyHolding(t *testing.T) {
	m, _, root := newManager(t, Config{})
	if err := os.MkdirAll(filepath.Join(root, HoldingKey, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := m.MigrateHeld(context.Background(), "blog"); err != nil {
		t.Fatalf("MigrateHeld: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, HoldingKey)); err != nil {
		t.Errorf("non-empty holding dir removed: %v", err)
	}
}
