package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseFitMode(t *testing.T) {
	got, err := ParseFitMode(" COVER ")
	if err != nil {
		t.Fatalf("parse fit: %v", err)
	}
	if got != FitCover {
		t.Fatalf("expected %q, got %q", FitCover, got)
	}

	if _, err := ParseFitMode("crop"); err == nil {
		t.Fatal("expected invalid fit error")
	}
	if _, err := ParseFitMode(""); err == nil {
		t.Fatal("expected required fit error")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		raw  string
		want Format
	}{
		{"jpeg", FormatJPEG},
		{"JPG", FormatJPEG},
		{" png ", FormatPNG},
		{"gif", FormatGIF},
		{"webp", FormatWebP},
	}
	for _, tc := range tests {
		got, err := ParseFormat(tc.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q: expected %q, got %q", tc.raw, tc.want, got)
		}
	}

	if _, err := ParseFormat("tiff"); err == nil {
		t.Fatal("expected invalid format error")
	}
}

func TestFormatMediaTypeRoundTrip(t *testing.T) {
	for _, f := range []Format{FormatJPEG, FormatPNG, FormatGIF, FormatWebP} {
		got, ok := FormatFromMediaType(f.MediaType())
		if !ok || got != f {
			t.Fatalf("expected %q from %q, got %q (ok=%v)", f, f.MediaType(), got, ok)
		}
	}
	if _, ok := FormatFromMediaType("application/pdf"); ok {
		t.Fatal("expected pdf to be rejected")
	}
	if FormatJPEG.Extension() != "jpg" {
		t.Fatalf("expected jpg extension, got %q", FormatJPEG.Extension())
	}
}

func TestErrorKindMatching(t *testing.T) {
	err := fmt.Errorf("load: %w", NotFound("img-1"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected not found to match sentinel")
	}
	if errors.Is(err, ErrUnknownPreset) {
		t.Fatal("did not expect unknown preset match")
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindNotFound {
		t.Fatalf("expected kind %q, got %q", KindNotFound, kind)
	}

	var e *Error
	if !errors.As(NoImage(), &e) || !e.Absent {
		t.Fatal("expected NoImage to be marked absent")
	}
}

func TestStorageIOTransient(t *testing.T) {
	cause := errors.New("connection reset")
	err := StorageIO("images/a/original", true, cause)
	if !IsTransient(err) {
		t.Fatal("expected transient")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to unwrap")
	}
	if IsTransient(StorageIO("k", false, cause)) {
		t.Fatal("expected permanent")
	}
}
