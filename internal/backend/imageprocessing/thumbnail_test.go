package imageprocessing

import (
	"bytes"
	"testing"
)

func TestThumbnail_ScalesWideImage(t *testing.T) {
	src := createTestPNG(t, 200, 100)

	out, err := Thumbnail(toDataURI("image/png", src), 50)
	if err != nil {
		t.Fatalf("Thumbnail error: %v", err)
	}
	w, h := decodeSize(t, out)
	if w != 50 || h != 25 {
		t.Fatalf("thumbnail size = %dx%d, want 50x25", w, h)
	}
}

func TestThumbnail_KeepsSmallImage(t *testing.T) {
	src := createTestPNG(t, 20, 10)

	out, err := Thumbnail(toDataURI("image/png", src), 50)
	if err != nil {
		t.Fatalf("Thumbnail error: %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Fatalf("expected small PNG to be returned unchanged")
	}
}

func TestThumbnail_SVGWithExplicitSize(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="100" height="50"><rect width="100" height="50" fill="red"/></svg>`)

	out, err := Thumbnail(toDataURI("image/svg+xml", svg), 40)
	if err != nil {
		t.Fatalf("Thumbnail error: %v", err)
	}
	w, h := decodeSize(t, out)
	if w != 40 || h != 20 {
		t.Fatalf("thumbnail size = %dx%d, want 40x20", w, h)
	}
}

func TestThumbnail_SVGFallbackSize(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><circle cx="5" cy="5" r="4"/></svg>`)

	out, err := Thumbnail(toDataURI("image/svg+xml", svg), 32)
	if err != nil {
		t.Fatalf("Thumbnail error: %v", err)
	}
	w, h := decodeSize(t, out)
	if w != 32 || h != 32 {
		t.Fatalf("thumbnail size = %dx%d, want 32x32", w, h)
	}
}

func TestThumbnail_InvalidImage(t *testing.T) {
	if _, err := Thumbnail(toDataURI("image/png", []byte("not an image")), 32); err == nil {
		t.Fatalf("expected error for undecodable image")
	}
}

func TestThumbnail_InvalidWidth(t *testing.T) {
	if _, err := Thumbnail(toDataURI("image/png", createTestPNG(t, 4, 4)), 0); err == nil {
		t.Fatalf("expected error for zero width")
	}
}

func TestParseSvgExplicitSize(t *testing.T) {
	w, h, ok := parseSvgExplicitSize([]byte(`<svg width='120px' height="80">`))
	if !ok || w != 120 || h != 80 {
		t.Fatalf("parseSvgExplicitSize = (%d, %d, %v), want (120, 80, true)", w, h, ok)
	}
	if _, _, ok := parseSvgExplicitSize([]byte(`<svg viewBox="0 0 10 10">`)); ok {
		t.Fatalf("viewBox-only SVG reported an explicit size")
	}
}
