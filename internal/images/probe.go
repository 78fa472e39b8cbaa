package images

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 85

var mimeToExt = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/bmp":     ".bmp",
	"image/svg+xml": ".svg",
}

// sniff verifies that data is an image and returns its MIME type. SVG is
// text to the sniffer, so it is accepted on extension plus an <svg tag.
func sniff(data []byte, ext string) (string, error) {
	if ext == ".svg" {
		prefix := data
		if len(prefix) > 1024 {
			prefix = prefix[:1024]
		}
		if !bytes.Contains(prefix, []byte("<svg")) {
			return "", fmt.Errorf("content does not appear to be a valid SVG (missing <svg tag)")
		}
		return "image/svg+xml", nil
	}
	detected := strings.Split(http.DetectContentType(data), ";")[0]
	if !strings.HasPrefix(detected, "image/") {
		return "", fmt.Errorf("only image files are allowed (detected: %s)", detected)
	}
	return detected, nil
}

// probe returns the pixel dimensions of a raster image, or zeros when the
// format has no registered decoder.
func probe(data []byte) (width, height int, format string) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, ""
	}
	return cfg.Width, cfg.Height, format
}

// downscale re-encodes png and jpeg images wider than maxWidth, keeping the
// aspect ratio. Other formats are returned unchanged.
func downscale(data []byte, format string, maxWidth int) ([]byte, int, int, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxWidth {
		return data, w, h, nil
	}

	newH := h * maxWidth / w
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, dst)
	case "jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality})
	default:
		return data, w, h, nil
	}
	if err != nil {
		return nil, 0, 0, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), maxWidth, newH, nil
}
